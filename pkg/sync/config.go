package sync

import (
	"encoding/base64"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"github.com/sidkik/foldersync/pkg/errors"
)

// Mocked out for unit testing.
var (
	fs       = afero.NewOsFs()
	hashFile = HashFile
)

// Config is the configuration for a single run of the sync loop. It doesn't
// change while the loop is running.
type Config struct {
	// Source is the directory that's mirrored.
	Source string

	// Replica is the directory that's kept identical to Source. It's created
	// if it doesn't exist.
	Replica string

	// Interval is the delay between the end of one synchronization and the
	// start of the next.
	Interval time.Duration
}

// Validate returns an error if the config can't be used to run the loop.
func (cfg Config) Validate() error {
	if cfg.Interval <= 0 {
		return errors.InvalidInterval{Interval: cfg.Interval}
	}
	if cfg.Source == "" {
		return errors.MissingFieldError{Field: "source"}
	}
	if cfg.Replica == "" {
		return errors.MissingFieldError{Field: "replica"}
	}

	source, replica := absPath(cfg.Source), absPath(cfg.Replica)
	if isWithin(source, replica) || isWithin(replica, source) {
		return errors.NestedFolders{Source: source, Replica: replica}
	}
	return nil
}

// isWithin returns true if `path` is `dir` or is beneath it.
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// HashFile returns the BLAKE2b-256 hash of the file at the given path. The
// file is streamed through the hasher, so memory use doesn't grow with the
// size of the file.
func HashFile(path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", errors.WithContext(err, "create hasher")
	}

	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
