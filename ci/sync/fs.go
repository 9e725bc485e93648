package sync

import (
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sidkik/foldersync/pkg/errors"
)

type file struct {
	path     string
	contents string
	mode     os.FileMode
	modTime  time.Time
}

func (f file) WithContents(contents string) file {
	f.contents = contents
	return f
}

func (f file) WithMode(mode os.FileMode) file {
	f.mode = mode
	return f
}

func (f file) WithModTime(modTime time.Time) file {
	f.modTime = modTime
	return f
}

func randomFile(path string) file {
	randomTime := time.Date(2019, 11, 10, rand.Intn(23), rand.Intn(59), rand.Intn(59), 0, time.UTC)
	return file{
		path:     path,
		contents: strconv.Itoa(rand.Int()),
		mode:     os.FileMode(0640 | rand.Intn(8)),
		modTime:  randomTime,
	}
}

// mockFs contains helper methods for creating temporary source and replica
// folders for testing.
type mockFs struct {
	root       string
	sourceDir  string
	replicaDir string
	logFile    string
}

type fsOp func(mockFs) error

func newMockFs() (mockFs, error) {
	root, err := os.MkdirTemp("", "foldersync-test")
	if err != nil {
		return mockFs{}, errors.WithContext(err, "make root dir")
	}

	sourceDir := filepath.Join(root, "source")
	if err := os.Mkdir(sourceDir, 0755); err != nil {
		return mockFs{}, errors.WithContext(err, "make source directory")
	}

	return mockFs{
		root:       root,
		sourceDir:  sourceDir,
		replicaDir: filepath.Join(root, "replica"),
		logFile:    filepath.Join(root, "sync.log"),
	}, nil
}

func (fs mockFs) cleanup() error {
	return os.RemoveAll(fs.root)
}

// syncArgs returns the flags for synchronizing the mock folders every
// `interval` seconds.
func (fs mockFs) syncArgs(interval int) []string {
	return []string{
		"--src", fs.sourceDir,
		"--dst", fs.replicaDir,
		"--log-file", fs.logFile,
		"--interval", strconv.Itoa(interval),
	}
}

func createFile(toCreate file) fsOp {
	return func(fs mockFs) error {
		path := filepath.Join(fs.sourceDir, toCreate.path)

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.WithContext(err, "make parent")
		}

		// Remove the old file so that read-only modes don't block the write.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.WithContext(err, "remove")
		}

		if err := os.WriteFile(path, []byte(toCreate.contents), 0600); err != nil {
			return errors.WithContext(err, "write")
		}

		if err := os.Chmod(path, toCreate.mode); err != nil {
			return errors.WithContext(err, "chmod")
		}

		if err := os.Chtimes(path, time.Now(), toCreate.modTime); err != nil {
			return errors.WithContext(err, "chtimes")
		}
		return nil
	}
}

func removeFile(path string) fsOp {
	return func(fs mockFs) error {
		return os.Remove(filepath.Join(fs.sourceDir, path))
	}
}

func removeSource() fsOp {
	return func(fs mockFs) error {
		return os.RemoveAll(fs.sourceDir)
	}
}

// getReplicaFile reads the replica's copy of `path`. It returns false if the
// file doesn't exist.
func getReplicaFile(fs mockFs, path string) (file, bool, error) {
	fullPath := filepath.Join(fs.replicaDir, path)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return file{}, false, nil
		}
		return file{}, false, errors.WithContext(err, "stat")
	}

	contents, err := os.ReadFile(fullPath)
	if err != nil {
		return file{}, false, errors.WithContext(err, "read")
	}

	return file{
		path:     path,
		contents: string(contents),
		mode:     info.Mode(),
		modTime:  info.ModTime().UTC(),
	}, true, nil
}

func shouldExist(exp file) func(mockFs) error {
	return func(fs mockFs) error {
		actual, ok, err := getReplicaFile(fs, exp.path)
		if err != nil {
			return err
		}

		if !ok {
			return errors.New("%s doesn't exist in the replica", exp.path)
		}

		if actual != exp {
			return errors.New("%s doesn't match: expected %+v, got %+v", exp.path, exp, actual)
		}
		return nil
	}
}

func shouldNotExist(exp file) func(mockFs) error {
	return func(fs mockFs) error {
		_, ok, err := getReplicaFile(fs, exp.path)
		if err != nil {
			return err
		}

		if ok {
			return errors.New("%s shouldn't exist in the replica", exp.path)
		}
		return nil
	}
}
