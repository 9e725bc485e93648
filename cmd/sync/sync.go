package sync

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/foldersync/cmd/util"
	"github.com/sidkik/foldersync/pkg/config"
	"github.com/sidkik/foldersync/pkg/errors"
	"github.com/sidkik/foldersync/pkg/fswatch"
	folderSync "github.com/sidkik/foldersync/pkg/sync"
)

// Mocked for unit testing.
var (
	parseSyncConfig = config.ParseSync
	setupLogger     = util.SetupLogger
)

type syncCmd struct {
	configPath string
	opts       config.Sync
}

// New creates a new `sync` command.
func New() *cobra.Command {
	var cmd syncCmd
	cobraCmd := &cobra.Command{
		Use:   "sync",
		Short: "Keep a replica folder identical to a source folder",
		Long: `Periodically make the replica folder an exact copy of the source folder.

Files that are missing or whose contents differ are copied from the source,
and anything in the replica that isn't in the source is removed. Every
operation is logged to the console and to the log file.

Synchronization stops when the source folder is removed, or on Ctrl-C.`,
		Run: func(cobraCmd *cobra.Command, _ []string) {
			cfg, err := cmd.resolve(cobraCmd.Flags().Changed)
			if err != nil {
				util.HandleFatalError(err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	flags := cobraCmd.Flags()
	flags.StringVar(&cmd.opts.Source, "src", "",
		"The folder to synchronize from.")
	flags.StringVar(&cmd.opts.Replica, "dst", config.DefaultReplica,
		"The folder to keep identical to the source. It's created if it doesn't exist.")
	flags.StringVar(&cmd.opts.LogFile, "log-file", config.DefaultLogFile,
		"The file that every synchronization event is logged to.")
	flags.IntVar(&cmd.opts.Interval, "interval", config.DefaultInterval,
		"The number of seconds between synchronizations.")
	flags.BoolVar(&cmd.opts.Watch, "watch", false,
		"Also synchronize as soon as the source folder changes.")
	flags.StringVar(&cmd.configPath, "config", config.DefaultSyncConfigPath,
		"The YAML file to read default options from. Flags override its values.")
	return cobraCmd
}

// resolve merges the options in the config file with the command line flags.
// A flag only overrides the config file if it was explicitly set. The interval
// is validated by the loop.
func (cmd syncCmd) resolve(changed func(string) bool) (config.Sync, error) {
	cfg, err := parseSyncConfig(cmd.configPath)
	if err != nil {
		_, notFound := errors.RootCause(err).(errors.FileNotFound)
		if !notFound || changed("config") {
			return config.Sync{}, err
		}
		log.WithError(err).Debug("No sync config. Only using command line flags.")
		cfg = config.Sync{}
	}

	flagOverrides := []struct {
		flag  string
		apply func()
	}{
		{"src", func() { cfg.Source = cmd.opts.Source }},
		{"dst", func() { cfg.Replica = cmd.opts.Replica }},
		{"log-file", func() { cfg.LogFile = cmd.opts.LogFile }},
		{"interval", func() { cfg.Interval = cmd.opts.Interval }},
		{"watch", func() { cfg.Watch = cmd.opts.Watch }},
	}
	for _, override := range flagOverrides {
		if changed(override.flag) {
			override.apply()
		}
	}

	if cfg.Replica == "" {
		cfg.Replica = config.DefaultReplica
	}
	if cfg.LogFile == "" {
		cfg.LogFile = config.DefaultLogFile
	}
	if !changed("interval") && cfg.Interval == 0 {
		cfg.Interval = config.DefaultInterval
	}

	if cfg.Source == "" {
		return config.Sync{}, errors.NewFriendlyError(
			"No source folder to synchronize from.\n" +
				"Please specify one with the --src flag, or in the sync config.")
	}
	return cfg, nil
}

func run(ctx context.Context, cfg config.Sync) error {
	logger, closeLog, err := setupLogger(cfg.LogFile)
	if err != nil {
		return errors.WithContext(err, "setup logging")
	}
	defer closeLog()

	loop := folderSync.Loop{
		Config: folderSync.Config{
			Source:   cfg.Source,
			Replica:  cfg.Replica,
			Interval: time.Duration(cfg.Interval) * time.Second,
		},
		Sink: folderSync.LogSink{Log: logger},
		Log:  logger,
	}

	if cfg.Watch {
		watcher, err := fswatch.New()
		if err != nil {
			logger.WithError(err).Warn("Failed to start watching for changes. " +
				"Changes will only be picked up every interval.")
		} else {
			defer watcher.Close()
			loop.Notifier = watcher
		}
	}

	return loop.Run(ctx)
}
