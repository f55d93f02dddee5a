package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestL_NopBeforeInit(t *testing.T) {
	restore := Replace(nil)
	defer restore()

	assert.NotPanics(t, func() { Info("nobody listens") })
	assert.NoError(t, Sync())
}

func TestReplace_RoutesHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	Debug("listing", String("backend", "sftp"), Int("entries", 3))
	Warn("cleanup failed", Err(errors.New("broken pipe")))

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "listing", first.Message)
	assert.Equal(t, "sftp", first.ContextMap()["backend"])
	assert.Equal(t, int64(3), first.ContextMap()["entries"])

	second := logs.All()[1]
	assert.Equal(t, zapcore.WarnLevel, second.Level)
	assert.Equal(t, "broken pipe", second.ContextMap()["error"])
}

func TestInit_WritesJSONToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "yaami.log")
	require.NoError(t, Init(Config{Level: "warn", Format: "json", OutputPath: out}))
	defer Replace(nil)
	defer SetLevel("info")

	Info("dropped")
	Warn("kept", String("profile", "nas"))
	require.NoError(t, Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"kept"`)
	assert.Contains(t, lines[0], `"profile":"nas"`)

	SetLevel("info")
	Info("now visible")
	require.NoError(t, Sync())
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "now visible")
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	out := filepath.Join(t.TempDir(), "yaami.log")
	require.NoError(t, Init(Config{Level: "chatty", OutputPath: out}))
	defer Replace(nil)

	Debug("hidden")
	Info("shown")
	require.NoError(t, Sync())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}
