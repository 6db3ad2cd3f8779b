package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Shivanand-hulikatti/festreg/internal/config"
)

func TestNew(t *testing.T) {
	log, err := New(config.LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New(config.LogConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.InfoLevel))
	require.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	require.Error(t, err)

	_, err = New(config.LogConfig{Level: "info", Format: "xml"})
	require.Error(t, err)
}
