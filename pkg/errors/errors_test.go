package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrUnauthorized
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewConflict(t *testing.T) {
	err := NewConflict("role code already exists")
	if err.StatusCode != http.StatusConflict {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
	if err.Message != "role code already exists" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
}

func TestNewTransactionFaultHidesCause(t *testing.T) {
	cause := stdErrors.New("duplicate key value")
	err := NewTransactionFault("batch update PERMISSION", cause)

	if err.Message != "batch update PERMISSION failed, check parameters or contact admin" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected cause to be preserved for logging")
	}
}
