package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kalendlab/admin-core/internal/models"
)

func TestAuditServiceLogAndList(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newAuditService(t, db)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, AuditEntry{
		Account:   "admin",
		Action:    "auth.login",
		Result:    "success",
		IPAddress: "127.0.0.1",
		Metadata:  map[string]any{"attempts": 1},
	}))
	require.NoError(t, svc.Log(ctx, AuditEntry{
		Account: "admin",
		Action:  "auth.login",
		Result:  "failure",
	}))

	logs, total, err := svc.List(ctx, AuditListOptions{
		Filters: AuditFilters{Action: "auth.login", Result: "success"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, logs, 1)
	require.Equal(t, "admin", logs[0].Account)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(logs[0].Metadata, &meta))
	require.EqualValues(t, 1, meta["attempts"])
}

func TestAuditServiceCleanupOlderThan(t *testing.T) {
	db := openServicesTestDB(t)
	svc := newAuditService(t, db)
	ctx := context.Background()

	require.NoError(t, svc.Log(ctx, AuditEntry{Action: "menu.create", Result: "success"}))

	stale := models.AuditLog{Action: "menu.delete", Result: "success"}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Model(&stale).Update("created_at", time.Now().AddDate(0, 0, -45)).Error)

	removed, err := svc.CleanupOlderThan(ctx, 30)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, total, err := svc.List(ctx, AuditListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)

	_, err = svc.CleanupOlderThan(ctx, 0)
	require.Error(t, err)
}
