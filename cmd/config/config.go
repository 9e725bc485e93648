package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/foldersync/cmd/util"
	"github.com/sidkik/foldersync/pkg/config"
	"github.com/sidkik/foldersync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	stdin           io.Reader = os.Stdin
	parseSyncConfig           = config.ParseSync
	writeSyncConfig           = config.WriteSync
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.Sync
	var path string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the default options for `foldersync sync`",
		Long: "Write the options that `foldersync sync` uses when they aren't " +
			"set by a flag.\nOptions that aren't given as flags are prompted for.",
		Run: func(cobraCmd *cobra.Command, _ []string) {
			err := SetupConfig(path, cliOpts, cobraCmd.Flags().Changed)
			if err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&path, "path", config.DefaultSyncConfigPath,
		"The path to the sync config.")
	cmd.Flags().StringVar(&cliOpts.Source, "src", "",
		"Set the source folder in the config.")
	cmd.Flags().StringVar(&cliOpts.Replica, "dst", "",
		"Set the replica folder in the config.")
	cmd.Flags().StringVar(&cliOpts.LogFile, "log-file", "",
		"Set the log file in the config.")
	cmd.Flags().IntVar(&cliOpts.Interval, "interval", 0,
		"Set the number of seconds between synchronizations in the config.")
	cmd.Flags().BoolVar(&cliOpts.Watch, "watch", false,
		"Set whether to synchronize as soon as the source changes.")

	// Setup the commands for querying the contents of the sync config.
	type getterSpec struct {
		use, short string
		fn         func(config.Sync) string
	}

	getters := []getterSpec{
		{
			use:   "get-source",
			short: "Get the configured source folder",
			fn:    func(cfg config.Sync) string { return cfg.Source },
		},
		{
			use:   "get-replica",
			short: "Get the configured replica folder",
			fn:    func(cfg config.Sync) string { return cfg.Replica },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseSyncConfig(path)
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig writes the sync config at `path`. Options whose flags weren't
// set are prompted for.
func SetupConfig(path string, cliOpts config.Sync, changed func(string) bool) error {
	cfg, err := generateConfig(path, cliOpts, changed)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	if err := writeSyncConfig(path, cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

type prompt struct {
	helpString, prompt, defaultAnswer string
	set                               func(string) error
}

// generateConfig merges the flags with the user's answers. The answers default
// to the current config, or to the values `foldersync sync` would use.
func generateConfig(path string, cliOpts config.Sync, changed func(string) bool) (config.Sync, error) {
	currConfig, err := parseSyncConfig(path)
	if err != nil {
		log.WithError(err).Debug("Failed to read current config")
		currConfig = config.Sync{}
	}

	cfg := cliOpts
	if !changed("watch") {
		cfg.Watch = currConfig.Watch
	}

	var prompts []prompt
	if !changed("src") {
		prompts = append(prompts, prompt{
			helpString:    "Enter the folder to synchronize from.",
			prompt:        "Source folder",
			defaultAnswer: currConfig.Source,
			set:           func(resp string) error { cfg.Source = resp; return nil },
		})
	}

	if !changed("dst") {
		prompts = append(prompts, prompt{
			helpString: "Enter the folder to keep identical to the source.\n" +
				"Anything in it that isn't in the source is deleted.",
			prompt:        "Replica folder",
			defaultAnswer: orDefault(currConfig.Replica, config.DefaultReplica),
			set:           func(resp string) error { cfg.Replica = resp; return nil },
		})
	}

	if !changed("log-file") {
		prompts = append(prompts, prompt{
			helpString:    "Enter the file to log synchronization events to.",
			prompt:        "Log file",
			defaultAnswer: orDefault(currConfig.LogFile, config.DefaultLogFile),
			set:           func(resp string) error { cfg.LogFile = resp; return nil },
		})
	}

	if !changed("interval") {
		currInterval := currConfig.Interval
		if currInterval <= 0 {
			currInterval = config.DefaultInterval
		}
		prompts = append(prompts, prompt{
			helpString:    "Enter the number of seconds between synchronizations.",
			prompt:        "Interval",
			defaultAnswer: strconv.Itoa(currInterval),
			set: func(resp string) (err error) {
				cfg.Interval, err = parseInterval(resp)
				return err
			},
		})
	} else if cfg.Interval <= 0 {
		return config.Sync{}, errors.NewFriendlyError(
			"The interval must be a positive number of seconds.")
	}

	stdinReader := bufio.NewReader(stdin)
	for _, prompt := range prompts {
		for {
			resp, err := promptUser(stdinReader, prompt.helpString, prompt.prompt, prompt.defaultAnswer)
			if err != nil {
				return config.Sync{}, errors.WithContext(err, "read response")
			}

			if err := prompt.set(resp); err != nil {
				fmt.Fprintln(stdout, err)
				continue
			}
			break
		}
	}

	return cfg, nil
}

func parseInterval(resp string) (int, error) {
	interval, err := strconv.Atoi(resp)
	if err != nil || interval <= 0 {
		return 0, errors.New("The interval must be a positive number of seconds. Please try again.")
	}
	return interval, nil
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// promptUser asks the user a single question. An empty answer selects
// `defaultAnswer`, if there is one.
func promptUser(stdinReader *bufio.Reader, helpString, prompt, defaultAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	fmt.Fprintln(stdout, helpString)
	for {
		if defaultAnswer != "" {
			fmt.Fprintf(stdout, "%s [%s]: ", prompt, defaultAnswer)
		} else {
			fmt.Fprintf(stdout, "%s: ", prompt)
		}

		resp, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}

		resp = strings.TrimSpace(resp)
		switch {
		case resp != "":
			return resp, nil
		case defaultAnswer != "":
			return defaultAnswer, nil
		}
	}
}
