package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"info":    zapcore.InfoLevel,
		"DEBUG":   zapcore.Level(-DEBUG),
		"trace":   zapcore.Level(-TRACE),
		"warning": zapcore.WarnLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNewWritesToLogDir(t *testing.T) {
	dir := t.TempDir()
	logger, flush, err := New("debug", dir)
	require.NoError(t, err)

	logger.V(DEBUG).Info("stage complete", "stage", "build")
	require.NoError(t, flush())

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	require.Contains(t, string(data), "stage complete")
}
