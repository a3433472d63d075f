package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "solver.log")

	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, Output: &console}))
	assert.Equal(t, path, GetCurrentLogFile())

	WithField("batch", "b-1").Debugf("iteration %d", 3)
	Infof("solved")

	assert.Contains(t, console.String(), "iteration 3")
	assert.Contains(t, console.String(), "batch=b-1")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "solved")
}

func TestInitLevelFallback(t *testing.T) {
	var console bytes.Buffer
	require.NoError(t, Init(Config{Level: "chatty", Output: &console}))
	Debugf("hidden")
	Warnf("shown")
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
	assert.Empty(t, GetCurrentLogFile())
}
