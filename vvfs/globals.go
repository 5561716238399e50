package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// DefaultAppName is used for config lookup, env prefixes and data directories
	DefaultAppName        = "vvfs-sync"
	DefaultAppCMDShortCut = "vvfs-sync"
	DefaultEnvPrefix      = "VVFS"
	DefaultConfigPath     = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultStorageDir     = DefaultConfigPath
	DefaultIdentityFile   = "identity-map.json"
	DefaultIgnoreFile     = ".vvfsignore"
	DefaultFactsDBName    = "facts.db"

	// Default fact store settings
	DefaultStoreDriver = "memory"
	DefaultStoreDSN    = "file:" + filepath.Join(DefaultStorageDir, DefaultFactsDBName)
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// LogOptions controls where and how verbosely NewLogger writes.
type LogOptions struct {
	Level   string
	File    string // rotated with lumberjack when set
	Console bool   // human readable output on stderr
}

// NewLogger builds the application logger. Unknown levels fall back to info.
func NewLogger(opts LogOptions) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    20, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
		}
		out = zerolog.MultiLevelWriter(out, rotating)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
