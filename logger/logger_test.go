package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
	}{
		{name: "JSON output mode", jsonOutput: true},
		{name: "Console output mode", jsonOutput: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Cleanup()
			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      zapcore.Level
	}{
		{-1, zapcore.WarnLevel},
		{0, zapcore.WarnLevel},
		{1, zapcore.InfoLevel},
		{2, zapcore.DebugLevel},
		{5, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, VerbosityToLevel(tt.verbosity), "verbosity %d", tt.verbosity)
	}
	assert.True(t, ShouldLogTrace(3))
	assert.False(t, ShouldLogTrace(2))
	assert.Equal(t, "Debug (-vv)", LevelName(2))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("nonsense"))
}

func TestComponentLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger
	Logger = zap.New(core).Sugar()
	defer func() { Logger = prev }()

	ComponentLogger(ComponentTwin).Infow("value set", FieldDomain, "biomarkers", FieldField, "hba1c")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, ComponentTwin, entry.LoggerName)
	assert.Equal(t, "biomarkers", entry.ContextMap()[FieldDomain])
}

func TestOrComponent(t *testing.T) {
	explicit := zap.NewNop().Sugar()
	assert.Same(t, explicit, OrComponent(explicit, ComponentStore))
	assert.NotNil(t, OrComponent(nil, ComponentStore))
}

func TestChildLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	child := ChildLogger(zap.New(core).Sugar(), FieldUserID, "u-1")
	child.Infow("loaded")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "u-1", logs.All()[0].ContextMap()[FieldUserID])
}
