package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func resetLogger(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		mu.Lock()
		global = zap.NewNop()
		mu.Unlock()
	})
}

func TestInitConfiguresGlobalLogger(t *testing.T) {
	resetLogger(t)

	require.NoError(t, Init("debug"))
	require.True(t, Logger().Core().Enabled(zap.DebugLevel))
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	resetLogger(t)

	require.NoError(t, Init("chatty"))
	require.True(t, Logger().Core().Enabled(zap.InfoLevel))
	require.False(t, Logger().Core().Enabled(zap.DebugLevel))
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	resetLogger(t)
	core, recorded := observer.New(zap.InfoLevel)
	mu.Lock()
	global = zap.New(core)
	mu.Unlock()

	WithModule("acl").Info("module test")

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "acl", entries[0].ContextMap()["module"])
}
