package sync

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/foldersync/pkg/errors"
)

const testInterval = 10 * time.Second

type testLoop struct {
	loop     Loop
	clock    clockwork.FakeClock
	recorder *eventRecorder
	hook     *logrusTest.Hook
	cancel   context.CancelFunc
	done     chan error
}

func newTestLoop(notifier ChangeNotifier) *testLoop {
	logger, hook := logrusTest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	tl := &testLoop{
		clock:    clockwork.NewFakeClock(),
		recorder: &eventRecorder{},
		hook:     hook,
		done:     make(chan error, 1),
	}
	tl.loop = Loop{
		Config: Config{
			Source:   srcRoot,
			Replica:  replicaRoot,
			Interval: testInterval,
		},
		Sink:     tl.recorder,
		Log:      logger,
		Clock:    tl.clock,
		Notifier: notifier,
	}
	return tl
}

func (tl *testLoop) start() {
	ctx, cancel := context.WithCancel(context.Background())
	tl.cancel = cancel
	go func() {
		tl.done <- tl.loop.Run(ctx)
	}()
}

func (tl *testLoop) wait(t *testing.T) error {
	select {
	case err := <-tl.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run didn't return")
		return nil
	}
}

func (tl *testLoop) messages() (msgs []string) {
	for _, entry := range tl.hook.AllEntries() {
		msgs = append(msgs, entry.Message)
	}
	return msgs
}

func TestRunInvalidInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		fs = afero.NewMemMapFs()
		writeFiles(t, map[string]string{"/src/a.txt": "a"})

		tl := newTestLoop(nil)
		tl.loop.Interval = interval
		err := tl.loop.Run(context.Background())

		assert.Equal(t, errors.InvalidInterval{Interval: interval}, errors.RootCause(err))
		assert.Empty(t, tl.recorder.events)
		assertNotExists(t, replicaRoot)
		assert.Equal(t, []string{
			"Invalid configuration. Stopping synchronization.",
			"Exiting the synchronization loop.",
		}, tl.messages())
		assertConfigErrorLogged(t, tl.hook, errors.InvalidInterval{Interval: interval})
	}
}

func assertConfigErrorLogged(t *testing.T, hook *logrusTest.Hook, expErr error) {
	var errorEntries []*logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.ErrorLevel {
			errorEntries = append(errorEntries, entry)
		}
	}

	if assert.Len(t, errorEntries, 1) {
		assert.Equal(t, expErr, errorEntries[0].Data[logrus.ErrorKey])
	}
}

func TestRunNestedFolders(t *testing.T) {
	tests := []struct {
		name            string
		source, replica string
	}{
		{"ReplicaInSource", "/src", "/src/replica"},
		{"SourceInReplica", "/replica/src", "/replica"},
		{"SameFolder", "/src", "/src/"},
	}

	for _, test := range tests {
		fs = afero.NewMemMapFs()
		writeFiles(t, map[string]string{"/src/a.txt": "a", "/replica/src/a.txt": "a"})

		tl := newTestLoop(nil)
		tl.loop.Source = test.source
		tl.loop.Replica = test.replica
		err := tl.loop.Run(context.Background())

		expErr := errors.NestedFolders{
			Source:  absPath(test.source),
			Replica: absPath(test.replica),
		}
		assert.Equal(t, expErr, errors.RootCause(err), test.name)
		assert.Empty(t, tl.recorder.events, test.name)
		assertNotExists(t, "/src/replica")
		assertConfigErrorLogged(t, tl.hook, expErr)
	}
}

func TestRunCreatesReplicaAndSyncsEachInterval(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{"/src/a.txt": "hello"})

	tl := newTestLoop(nil)
	tl.start()

	// Run is waiting for the next interval once the first cycle is done.
	tl.clock.BlockUntil(1)
	assert.Equal(t, []string{"created /replica", "created a.txt"}, tl.recorder.lines())
	assert.Equal(t, "hello", readFile(t, "/replica/a.txt"))

	writeFiles(t, map[string]string{"/src/a.txt": "world"})
	tl.clock.Advance(testInterval)
	tl.clock.BlockUntil(1)
	assert.Equal(t, []string{
		"created /replica",
		"created a.txt",
		"updated a.txt",
	}, tl.recorder.lines())
	assert.Equal(t, "world", readFile(t, "/replica/a.txt"))

	tl.cancel()
	assert.NoError(t, tl.wait(t))

	msgs := tl.messages()
	assert.Equal(t, "Starting synchronization.", msgs[0])
	assert.Contains(t, msgs, "Synchronization completed.")
	assert.Equal(t, "Synchronization stopped manually.", msgs[len(msgs)-2])
	assert.Equal(t, "Exiting the synchronization loop.", msgs[len(msgs)-1])
}

func TestRunStopsWhenSourceRemoved(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{"/src/a.txt": "a"})

	tl := newTestLoop(nil)
	tl.start()
	tl.clock.BlockUntil(1)

	require.NoError(t, fs.RemoveAll(srcRoot))
	tl.clock.Advance(testInterval)
	assert.NoError(t, tl.wait(t))

	msgs := tl.messages()
	assert.Equal(t, "The source folder does not exist. Stopping synchronization.",
		msgs[len(msgs)-2])
	assert.Equal(t, "Exiting the synchronization loop.", msgs[len(msgs)-1])

	// The replica is left as it was after the last cycle.
	assert.Equal(t, "a", readFile(t, "/replica/a.txt"))
}

func TestRunMissingSource(t *testing.T) {
	fs = afero.NewMemMapFs()

	tl := newTestLoop(nil)
	assert.NoError(t, tl.loop.Run(context.Background()))
	assert.Empty(t, tl.recorder.events)
	assertNotExists(t, replicaRoot)
}

func TestRunAlreadyCancelled(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{"/src/a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tl := newTestLoop(nil)
	assert.NoError(t, tl.loop.Run(ctx))
	assert.Empty(t, tl.recorder.events)
	assert.Contains(t, tl.messages(), "Synchronization stopped manually.")
}

func TestRunReplicaIsFile(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{
		"/src/a.txt": "a",
		replicaRoot:  "not a directory",
	})

	tl := newTestLoop(nil)
	tl.start()
	tl.clock.BlockUntil(1)

	assert.Empty(t, tl.recorder.events)
	entry := tl.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, errors.NotDirectory{Path: replicaRoot}, entry.Data[logrus.ErrorKey])

	tl.cancel()
	assert.NoError(t, tl.wait(t))
}

type fakeNotifier struct {
	changes chan struct{}
	watched chan string
}

func (notifier fakeNotifier) Changes() <-chan struct{} {
	return notifier.changes
}

func (notifier fakeNotifier) Watch(root string) error {
	notifier.watched <- root
	return nil
}

func TestRunWakesOnChange(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{"/src/a.txt": "a"})

	notifier := fakeNotifier{
		changes: make(chan struct{}, 1),
		watched: make(chan string, 8),
	}
	tl := newTestLoop(notifier)
	tl.start()
	tl.clock.BlockUntil(1)
	assert.Equal(t, srcRoot, <-notifier.watched)

	writeFiles(t, map[string]string{"/src/b.txt": "b"})
	notifier.changes <- struct{}{}

	// The second cycle watches the source once the first cycle's timer is
	// stopped, so only the second cycle's timer ends up waiting.
	assert.Equal(t, srcRoot, <-notifier.watched)
	tl.clock.BlockUntil(1)
	assert.Equal(t, []string{
		"created /replica",
		"created a.txt",
		"up-to-date a.txt",
		"created b.txt",
	}, tl.recorder.lines())

	tl.cancel()
	assert.NoError(t, tl.wait(t))
}

func TestRunDefaultsToLogSink(t *testing.T) {
	fs = afero.NewMemMapFs()
	writeFiles(t, map[string]string{"/src/a.txt": "a"})

	logger, hook := logrusTest.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	clock := clockwork.NewFakeClock()
	done := make(chan error, 1)
	go func() {
		done <- Loop{
			Config: Config{Source: srcRoot, Replica: replicaRoot, Interval: time.Minute},
			Log:    logger,
			Clock:  clock,
		}.Run(ctx)
	}()
	clock.BlockUntil(1)
	cancel()
	assert.NoError(t, <-done)

	var events []string
	for _, entry := range hook.AllEntries() {
		if label, ok := entry.Data[EventField]; ok {
			events = append(events, label.(string)+" "+entry.Message)
		}
	}
	assert.Equal(t, []string{"CREATED /replica", "CREATED a.txt"}, events)
}
