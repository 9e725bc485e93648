package config

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

const (
	// DefaultSyncConfigPath is where `foldersync sync` looks for its config
	// if no path is given.
	DefaultSyncConfigPath = "~/.foldersync.yaml"

	// InitialSyncConfigVersion is the first version of the sync config.
	// Config files that do not specify a version will default to this
	// version.
	InitialSyncConfigVersion = "v1alpha1"

	// SupportedSyncConfigVersion is the supported version of the sync config
	// of the current foldersync binary.
	SupportedSyncConfigVersion = "v1alpha1"

	// DefaultReplica, DefaultLogFile, and DefaultInterval are used for the
	// options that aren't set by either the config or a flag.
	DefaultReplica  = "replica"
	DefaultLogFile  = "log.txt"
	DefaultInterval = 10
)

// Sync holds the defaults for `foldersync sync`. Every field can be
// overridden by the command line flags.
type Sync struct {
	Version string `json:"version,omitempty"`

	// Source is the folder that's mirrored.
	Source string `json:"source,omitempty"`

	// Replica is the folder that's kept identical to Source.
	Replica string `json:"replica,omitempty"`

	// LogFile is where the sync log is persisted.
	LogFile string `json:"logFile,omitempty"`

	// Interval is the number of seconds between synchronizations.
	Interval int `json:"interval,omitempty"`

	// Watch enables synchronizing as soon as the source changes.
	Watch bool `json:"watch,omitempty"`
}

func (s Sync) getVersion() string {
	return s.Version
}

// ParseSync parses the sync config at `path`. Relative paths within the config
// are evaluated relative to the directory containing the config.
func ParseSync(path string) (Sync, error) {
	path, err := homedirExpand(path)
	if err != nil {
		return Sync{}, errors.WithContext(err, "expand config path")
	}

	config := Sync{Version: InitialSyncConfigVersion}
	if err := parseConfig(path, &config, SupportedSyncConfigVersion); err != nil {
		return Sync{}, errors.WithContext(err, "parse")
	}

	for _, field := range []*string{&config.Source, &config.Replica, &config.LogFile} {
		*field, err = resolvePath(path, *field)
		if err != nil {
			return Sync{}, errors.WithContext(err, "resolve path")
		}
	}
	return config, nil
}

// WriteSync writes the given sync config to `path`.
func WriteSync(path string, cfg Sync) error {
	cfg.Version = SupportedSyncConfigVersion
	path, err := homedirExpand(path)
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

func resolvePath(configPath, path string) (string, error) {
	if path == "" {
		return "", nil
	}

	path, err := homedirExpand(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(filepath.Dir(configPath), path)
	}
	return path, nil
}
