package sync

import (
	"context"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/foldersync/pkg/errors"
)

// ChangeNotifier lets the loop start the next synchronization as soon as the
// source changes, rather than waiting for the full interval.
type ChangeNotifier interface {
	// Changes receives a value whenever something beneath a watched
	// directory changes.
	Changes() <-chan struct{}

	// Watch starts watching `root` and the directories beneath it. It's
	// called after every synchronization so that new directories are picked
	// up.
	Watch(root string) error
}

// Loop repeatedly synchronizes Config.Replica with Config.Source.
type Loop struct {
	Config

	// Sink receives the events for every synchronized entry. Defaults to a
	// LogSink writing to Log.
	Sink EventSink

	// Log receives diagnostics about the loop itself. Defaults to the
	// logrus standard logger.
	Log logrus.FieldLogger

	// Clock is used to wait between synchronizations. Defaults to the real
	// clock.
	Clock clockwork.Clock

	// Notifier is optional.
	Notifier ChangeNotifier
}

// Run synchronizes the replica with the source, waits for the configured
// interval, and repeats.
//
// It returns nil once `ctx` is cancelled, or once the source directory no
// longer exists. A cycle that has already started always runs to completion.
// It only returns an error if the config is invalid, in which case no
// synchronization is attempted.
func (l Loop) Run(ctx context.Context) error {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	sink := l.Sink
	if sink == nil {
		sink = LogSink{Log: log}
	}

	clock := l.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	defer log.Info("Exiting the synchronization loop.")

	if err := l.Validate(); err != nil {
		log.WithError(err).Error("Invalid configuration. Stopping synchronization.")
		return errors.WithContext(err, "validate config")
	}

	log.WithFields(logrus.Fields{
		"source":   absPath(l.Source),
		"replica":  absPath(l.Replica),
		"interval": l.Interval,
	}).Info("Starting synchronization.")

	var changes <-chan struct{}
	if l.Notifier != nil {
		changes = l.Notifier.Changes()
	}

	for {
		if ctx.Err() != nil {
			log.Info("Synchronization stopped manually.")
			return nil
		}

		if !l.syncOnce(log, sink) {
			return nil
		}

		if l.Notifier != nil {
			if err := l.Notifier.Watch(l.Source); err != nil {
				log.WithError(err).Warn("Failed to watch the source folder for changes. " +
					"Changes will only be picked up every interval.")
			}
		}

		timer := clock.NewTimer(l.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("Synchronization stopped manually.")
			return nil
		case <-timer.Chan():
		case <-changes:
			timer.Stop()
			log.Debug("Source folder changed. Synchronizing early.")
		}
	}
}

// syncOnce runs a single synchronization. It returns false if the loop should
// stop.
func (l Loop) syncOnce(log logrus.FieldLogger, sink EventSink) bool {
	srcInfo, err := fs.Stat(l.Source)
	if err != nil || !srcInfo.IsDir() {
		log.WithField("source", l.Source).Info(
			"The source folder does not exist. Stopping synchronization.")
		return false
	}

	replicaInfo, err := fs.Stat(l.Replica)
	switch {
	case os.IsNotExist(err):
		if err := fs.MkdirAll(l.Replica, 0755); err != nil {
			log.WithError(err).WithField("replica", l.Replica).Error(
				"Failed to create the replica folder. Will retry next interval.")
			return true
		}
		sink.Handle(Event{Kind: Created, Path: l.Replica})
	case err != nil:
		log.WithError(err).WithField("replica", l.Replica).Error(
			"Failed to access the replica folder. Will retry next interval.")
		return true
	case !replicaInfo.IsDir():
		log.WithError(errors.NotDirectory{Path: l.Replica}).Error(
			"The replica folder can't be synchronized. Will retry next interval.")
		return true
	}

	summary := Reconcile(l.Source, l.Replica, sink)
	log.WithFields(summary.Fields()).Info("Synchronization completed.")
	return true
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
