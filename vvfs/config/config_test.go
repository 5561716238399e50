package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/vvfs-sync/vvfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()

	// Change to temp directory so "." holds no config file
	err = os.Chdir(suite.tempDir)
	require.NoError(suite.T(), err)
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), 300*time.Millisecond, cfg.Queue.DebounceDelay)
	assert.Equal(suite.T(), 100*time.Millisecond, cfg.Queue.RenameWindow)
	assert.Equal(suite.T(), 500, cfg.Scan.BatchSize)
	assert.Equal(suite.T(), internal.DefaultIgnoreFile, cfg.Scan.IgnoreFile)
	assert.Equal(suite.T(), internal.DefaultStorageDir, cfg.Storage.Dir)
	assert.Equal(suite.T(), "memory", cfg.Store.Driver)
	assert.Equal(suite.T(), internal.DefaultStoreDSN, cfg.Store.DSN)
	assert.Equal(suite.T(), "info", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
queue:
  debounceDelay: 150ms
  renameWindow: 80ms
scan:
  batchSize: 64
  ignoreFile: ".syncignore"
storage:
  dir: "./state"
store:
  driver: libsql
  dsn: "file:./state/facts.db"
  slowQueryThreshold: 1s
log:
  level: debug
`

	configFile := filepath.Join(suite.tempDir, "config.yaml")
	err := os.WriteFile(configFile, []byte(configContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), 150*time.Millisecond, cfg.Queue.DebounceDelay)
	assert.Equal(suite.T(), 80*time.Millisecond, cfg.Queue.RenameWindow)
	assert.Equal(suite.T(), 64, cfg.Scan.BatchSize)
	assert.Equal(suite.T(), ".syncignore", cfg.Scan.IgnoreFile)
	assert.Equal(suite.T(), "./state", cfg.Storage.Dir)
	assert.Equal(suite.T(), "libsql", cfg.Store.Driver)
	assert.Equal(suite.T(), "file:./state/facts.db", cfg.Store.DSN)
	assert.Equal(suite.T(), time.Second, cfg.Store.SlowQueryThreshold)
	assert.Equal(suite.T(), "debug", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigEnvOverride() {
	suite.T().Setenv("VVFS_SCAN_BATCHSIZE", "42")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 42, cfg.Scan.BatchSize)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidFile() {
	// An explicit path that does not exist is an error, unlike the search path
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigMalformedFile() {
	malformedContent := `
queue:
  debounceDelay: 150ms
  invalid_yaml: [unclosed bracket
`

	configFile := filepath.Join(suite.tempDir, "malformed.yaml")
	err := os.WriteFile(configFile, []byte(malformedContent), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsInvalidValues() {
	configFile := filepath.Join(suite.tempDir, "bad.yaml")
	err := os.WriteFile(configFile, []byte("store:\n  driver: postgres\n"), 0o644)
	require.NoError(suite.T(), err)

	cfg, err := LoadConfig(configFile)

	assert.Error(suite.T(), err)
	assert.Nil(suite.T(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero debounce", mutate: func(c *Config) { c.Queue.DebounceDelay = 0 }, wantErr: true},
		{name: "negative rename window", mutate: func(c *Config) { c.Queue.RenameWindow = -time.Millisecond }, wantErr: true},
		{name: "zero rename window", mutate: func(c *Config) { c.Queue.RenameWindow = 0 }},
		{name: "zero batch size", mutate: func(c *Config) { c.Scan.BatchSize = 0 }, wantErr: true},
		{name: "libsql driver", mutate: func(c *Config) { c.Store.Driver = "libsql" }},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "mysql" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
