package fswatch

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/foldersync/pkg/errors"
)

var fs = afero.NewOsFs()

// Watcher sends an event on Changes whenever something beneath one of the
// watched directories changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
}

// New creates a Watcher that isn't watching anything yet.
func New() (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	go func() {
		for err := range watcher.Errors {
			log.WithError(err).Debug("File watcher error")
		}
	}()

	return &Watcher{
		watcher: watcher,
		changes: combineUpdates(watcher.Events),
	}, nil
}

// Changes returns the channel that's notified of changes. Bursts of changes
// are combined into a single notification.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Watch watches `root` and every directory beneath it. Because fsnotify
// doesn't watch directories recursively, directories created after the call
// aren't watched until Watch is called again. Watching a directory that's
// already watched is a no-op.
func (w *Watcher) Watch(root string) error {
	paths, err := getPathsToWatch(root)
	if err != nil {
		return errors.WithContext(err, "get paths")
	}

	for _, path := range paths {
		if err := w.watcher.Add(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}
	return nil
}

// Close stops watching all directories.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func combineUpdates(updates <-chan fsnotify.Event) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for range updates {
			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

// getPathsToWatch returns `root` and all of the directories beneath it.
// Events for files are reported through their parent directory, so files
// don't need to be watched themselves. Symlinks aren't followed.
func getPathsToWatch(root string) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return nil, errors.NotDirectory{Path: root}
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
