package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	c, err := LoadFromFile("")
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, DefaultLogLevel, c.LogLevel)
	assert.Equal(t, DefaultSolveTimeout, c.Solver.SolveTimeout)
	assert.Equal(t, DefaultParallelism, c.Solver.Parallelism)
	assert.Equal(t, "json", c.Store.Kind)
	assert.Equal(t, DefaultAPIListen, c.API.Listen)
}

func TestLoadYAMLOverridesEnv(t *testing.T) {
	t.Setenv("PRICEFINDER_PARALLELISM", "9")
	t.Setenv("PRICEFINDER_STORE_KIND", "badger")

	path := writeFile(t, "config.yaml", `
log_level: debug
solver:
  numeraire: 0
  max_iterations: 50
  solve_timeout: 250ms
store:
  path: /tmp/solutions
tokens:
  - id: 1
    symbol: WETH
    address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
  - id: 2
    symbol: USDC
    decimals: 6
`)
	c, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, uint16(0), c.Solver.Numeraire)
	assert.Equal(t, 50, c.Solver.MaxIterations)
	assert.Equal(t, 250*time.Millisecond, c.Solver.SolveTimeout)
	assert.Equal(t, 9, c.Solver.Parallelism, "env used when file is silent")
	assert.Equal(t, "badger", c.Store.Kind)
	assert.Equal(t, "/tmp/solutions", c.Store.Path)

	require.Len(t, c.Tokens, 2)
	assert.Equal(t, int32(18), c.Token(1).Decimals)
	assert.Equal(t, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", c.Token(1).Address.Hex())
	assert.Equal(t, int32(6), c.Token(2).Decimals)
	assert.Equal(t, "7", c.Token(7).Symbol)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"solver": {"numeraire": 3, "parallelism": 2}, "api": {"listen": ":9999"}}`)
	c, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint16(3), c.Solver.Numeraire)
	assert.Equal(t, 2, c.Solver.Parallelism)
	assert.Equal(t, ":9999", c.API.Listen)
}

func TestLoadRejectsBadInput(t *testing.T) {
	_, err := LoadFromFile(writeFile(t, "config.toml", "x = 1"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "config.yaml", "solver:\n  solve_timeout: soon\n"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "config.yaml", "tokens:\n  - id: 1\n    address: nope\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	c, err := LoadFromFile("")
	require.NoError(t, err)

	bad := *c
	bad.Store.Kind = "s3"
	assert.Error(t, bad.Validate())

	bad = *c
	bad.Solver.Parallelism = 0
	assert.Error(t, bad.Validate())

	bad = *c
	bad.Tokens = []TokenConfig{{ID: 1}, {ID: 1}}
	assert.Error(t, bad.Validate())
}
