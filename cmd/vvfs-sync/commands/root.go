// Package commands implements the vvfs-sync command line.
package commands

import (
	"context"

	internal "github.com/ZanzyTHEbar/vvfs-sync/vvfs"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/config"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/db"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/engine"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/filesystem/listing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configFlag     string
	storageDirFlag string
	dbFlag         string
	logLevelFlag   string
	logFileFlag    string
)

// RootCmd is the vvfs-sync entry point.
var RootCmd = &cobra.Command{
	Use:   internal.DefaultAppCMDShortCut,
	Short: "Keep a fact graph in sync with a directory tree",
	Long: `vvfs-sync mirrors a directory tree into a fact graph.

Every file and folder gets a durable entity id that survives renames. Its
metadata is stored as facts and its place in the tree as contains links.

Examples:
  vvfs-sync scan ~/Music                  # Ingest a tree once
  vvfs-sync watch ~/Music                 # Ingest, then follow changes
  vvfs-sync lookup ~/Music/song.flac      # Show the facts of one path
  vvfs-sync stats --db facts.db           # Show fact store counters`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()
	flags.StringVar(&configFlag, "config", "", "config file (default searches ., ./etc/vvfs-sync and ~/.config/vvfs-sync)")
	flags.StringVar(&storageDirFlag, "storage-dir", "", "directory holding the identity map")
	flags.StringVar(&dbFlag, "db", "", "libsql database for facts (file path or libsql:// URL); in-memory when empty")
	flags.StringVar(&logLevelFlag, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&logFileFlag, "log-file", "", "also write logs to this file, rotated")

	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(statsCmd)
	RootCmd.AddCommand(lookupCmd)
}

// session is everything one command run needs.
type session struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  db.FactStore
	engine *engine.Engine
}

func (s *session) Close() {
	if err := s.engine.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Engine close failed")
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Fact store close failed")
	}
}

// zeroLogger is the logger for commands that do not open a session.
func zeroLogger() zerolog.Logger {
	return internal.NewLogger(internal.LogOptions{Level: logLevelFlag, File: logFileFlag, Console: true})
}

// loadConfig applies command line flags over the file and env configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, err
	}
	if storageDirFlag != "" {
		cfg.Storage.Dir = storageDirFlag
	}
	if dbFlag != "" {
		cfg.Store.Driver = db.DriverName
		cfg.Store.DSN = dbFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	if logFileFlag != "" {
		cfg.Log.File = logFileFlag
	}
	return cfg, cfg.Validate()
}

func openStore(cfg *config.Config, logger zerolog.Logger) (db.FactStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		logger.Debug().Msg("Using in-memory fact store; facts are lost on exit")
		return db.NewMemoryFactStore(), nil
	case db.DriverName:
		return db.NewSQLFactStore(cfg.Store.DSN, logger)
	default:
		return nil, errors.Newf("unknown fact store driver %q", cfg.Store.Driver)
	}
}

// openSession loads config, opens the store and initializes an engine.
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := internal.NewLogger(internal.LogOptions{
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
		Console: true,
	})

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open fact store")
	}

	eng, err := engine.New(engine.Options{
		Store:  store,
		Lister: listing.NewOSLister(logger),
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger, store: store, engine: eng}
	if err := eng.Initialize(ctx, cfg.Storage.Dir); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
