package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testPayload struct {
	Account string `json:"account" validate:"required"`
	Code    string `json:"code" validate:"required,alphanum"`
	Sort    int    `json:"sort" validate:"gte=1"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := testPayload{
		Account: "admin",
		Code:    "admin1",
		Sort:    3,
	}
	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	payload := testPayload{
		Account: "",
		Code:    "not valid!",
		Sort:    0,
	}

	err := ValidateStruct(payload)
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 3)

	// Field names come from the json tags, not the Go identifiers.
	fields := make([]string, 0, len(vErrs))
	for _, v := range vErrs {
		fields = append(fields, v.Field)
	}
	require.ElementsMatch(t, []string{"account", "code", "sort"}, fields)
}

func TestMenuPathRule(t *testing.T) {
	type payload struct {
		Path string `json:"path" validate:"omitempty,menupath"`
	}

	for _, path := range []string{"/menu", "/menu/sub", "/user-admin", ""} {
		require.NoError(t, ValidateStruct(payload{Path: path}), "path %q", path)
	}

	for _, path := range []string{"menu", "/", "/menu/", "/me nu"} {
		err := ValidateStruct(payload{Path: path})
		require.Error(t, err, "path %q", path)
		vErrs, ok := err.(ValidationErrors)
		require.True(t, ok)
		require.Equal(t, "menupath", vErrs[0].Tag)
	}
}
