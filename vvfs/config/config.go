package config

import (
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/vvfs-sync/vvfs"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Queue   QueueConfig   `mapstructure:"queue"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Storage StorageConfig `mapstructure:"storage"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
}

// QueueConfig stores change queue timings.
type QueueConfig struct {
	DebounceDelay time.Duration `mapstructure:"debounceDelay"`
	RenameWindow  time.Duration `mapstructure:"renameWindow"`
}

// ScanConfig stores initial scan settings.
type ScanConfig struct {
	BatchSize  int    `mapstructure:"batchSize"`
	IgnoreFile string `mapstructure:"ignoreFile"`
}

// StorageConfig stores where identity state is persisted.
type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

// StoreConfig stores fact store connection details.
type StoreConfig struct {
	Driver             string        `mapstructure:"driver"`
	DSN                string        `mapstructure:"dsn"`
	SlowQueryThreshold time.Duration `mapstructure:"slowQueryThreshold"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Default returns the configuration used when no file or env overrides exist.
func Default() *Config {
	return &Config{
		Queue: QueueConfig{
			DebounceDelay: 300 * time.Millisecond,
			RenameWindow:  100 * time.Millisecond,
		},
		Scan: ScanConfig{
			BatchSize:  500,
			IgnoreFile: internal.DefaultIgnoreFile,
		},
		Storage: StorageConfig{Dir: internal.DefaultStorageDir},
		Store: StoreConfig{
			Driver:             internal.DefaultStoreDriver,
			DSN:                internal.DefaultStoreDSN,
			SlowQueryThreshold: 250 * time.Millisecond,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads configuration from file or environment variables.
// A fresh viper instance is used per call so callers never share config state.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
	}

	def := Default()
	v.SetDefault("queue.debounceDelay", def.Queue.DebounceDelay)
	v.SetDefault("queue.renameWindow", def.Queue.RenameWindow)
	v.SetDefault("scan.batchSize", def.Scan.BatchSize)
	v.SetDefault("scan.ignoreFile", def.Scan.IgnoreFile)
	v.SetDefault("storage.dir", def.Storage.Dir)
	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.dsn", def.Store.DSN)
	v.SetDefault("store.slowQueryThreshold", def.Store.SlowQueryThreshold)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()                                   // Read in environment variables that match
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // queue.debounceDelay becomes VVFS_QUEUE_DEBOUNCEDELAY

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		// Config file not found; defaults and env are used.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode into struct")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Queue.DebounceDelay <= 0 {
		return errors.Newf("queue.debounceDelay must be positive, got %s", c.Queue.DebounceDelay)
	}
	if c.Queue.RenameWindow < 0 {
		return errors.Newf("queue.renameWindow must not be negative, got %s", c.Queue.RenameWindow)
	}
	if c.Scan.BatchSize <= 0 {
		return errors.Newf("scan.batchSize must be positive, got %d", c.Scan.BatchSize)
	}
	switch c.Store.Driver {
	case "memory", "libsql":
	default:
		return errors.Newf("store.driver must be memory or libsql, got %q", c.Store.Driver)
	}
	return nil
}
