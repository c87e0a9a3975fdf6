package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "soilgrid.db", cfg.Store.SQLitePath)
	assert.InDelta(t, 2.5, cfg.Grid.CellAreaHa, 0.001)
	assert.Equal(t, "sampling_grid", cfg.Grid.BaseName)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, "soilgrid/1.0", cfg.Fetch.UserAgent)
	assert.Equal(t, int64(64<<20), cfg.Fetch.MaxBytes)
	assert.Equal(t, "soilgrid-interp", cfg.Interp.ToolPath)
	assert.Equal(t, 2, cfg.Interp.Workers)
	assert.Equal(t, 300, cfg.Interp.TaskTimeoutSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/soilgrid
grid:
  cell_area_ha: 5.0
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/soilgrid", cfg.Store.DatabaseURL)
	assert.InDelta(t, 5.0, cfg.Grid.CellAreaHa, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Interp.Workers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SOILGRID_STORE_DRIVER", "postgres")
	t.Setenv("SOILGRID_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("SOILGRID_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "soilgrid.db"
	cfg.Grid.CellAreaHa = 2.5
	cfg.Interp.ToolPath = "soilgrid-interp"
	cfg.Interp.Workers = 2
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateGrid(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("grid"))

	cfg.Grid.CellAreaHa = 0
	err := cfg.Validate("grid")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "grid.cell_area_ha must be > 0")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("runs")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/soilgrid"
	assert.NoError(t, cfg.Validate("runs"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("runs")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateInterpolate(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("interpolate"))

	cfg.Interp.ToolPath = ""
	err := cfg.Validate("interpolate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "interp.tool_path is required")

	cfg.Interp.ToolPath = "soilgrid-interp"
	cfg.Interp.Workers = 0
	err = cfg.Validate("interpolate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "interp.workers must be between 1 and 32")

	cfg.Interp.Workers = 33
	assert.Error(t, cfg.Validate("interpolate"))
}

func TestValidateServe(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
