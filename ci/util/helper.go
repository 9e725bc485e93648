package util

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/foldersync/pkg/errors"
)

// TestHelper contains methods commonly used during integration tests.
type TestHelper struct {
	// Binary is the path to the foldersync binary under test.
	Binary string
}

// NewTestHelper creates a new TestHelper.
func NewTestHelper(binary string) (*TestHelper, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, errors.WithContext(err, "find foldersync binary")
	}
	return &TestHelper{Binary: path}, nil
}

// Start starts the given foldersync command. It returns a reader for the
// stdout output, a channel that receives the exit error once the command
// stops, and any errors from starting the command. The command is stopped
// with SIGTERM when `ctx` is cancelled.
func (helper *TestHelper) Start(ctx context.Context, args ...string) (
	io.Reader, chan error, error) {

	cmd := exec.Command(helper.Binary, args...)

	stdoutReader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}

	stderr := bytes.NewBuffer(nil)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	errChan := make(chan error, 1)
	go func() {
		waitErr := make(chan error)
		go func() {
			waitErr <- cmd.Wait()
			close(waitErr)
		}()

		defer close(errChan)
		select {
		case <-ctx.Done():
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				errChan <- errors.WithContext(err, "kill")
				return
			}
			if err := <-waitErr; err != nil {
				errChan <- fmt.Errorf("stop (%s): stderr: %s", err, stderr)
			}
		case err := <-waitErr:
			if err != nil {
				errChan <- fmt.Errorf("crashed (%s): stderr: %s", err, stderr)
			}
		}
	}()
	return stdoutReader, errChan, nil
}

// Sync runs `foldersync sync` with the given arguments, and waits until the
// first synchronization has started. The returned channel receives nil once
// the command exits successfully.
func (helper *TestHelper) Sync(ctx context.Context, args ...string) (chan error, error) {
	log.Info("Starting foldersync sync")
	cmd := append([]string{"sync"}, args...)
	stdout, cmdErr, startErr := helper.Start(ctx, cmd...)
	if startErr != nil {
		return nil, errors.WithContext(startErr, "start")
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, time.Minute)
	defer cancelWait()

	started := make(chan error, 1)
	go func() {
		started <- waitForOutput(waitCtx, stdout, "Starting synchronization.")
	}()

	select {
	case err := <-cmdErr:
		return nil, errors.WithContext(err, "foldersync sync exited early")
	case err := <-started:
		if err != nil {
			return nil, errors.WithContext(err, "wait for start")
		}
		return cmdErr, nil
	}
}

// waitForOutput blocks until a line containing `expOutput` is written to
// `reader`, or `ctx` has expired. The rest of `reader` is drained in the
// background so that the writer never blocks on a full pipe.
func waitForOutput(ctx context.Context, reader io.Reader, expOutput string) error {
	found := make(chan error, 1)
	go func() {
		matched := false
		scanner := bufio.NewScanner(reader)
		for scanner.Scan() {
			if !matched && strings.Contains(scanner.Text(), expOutput) {
				matched = true
				found <- nil
			}
		}
		if !matched {
			found <- errors.WithContext(io.ErrUnexpectedEOF, "read")
		}
	}()

	select {
	case <-ctx.Done():
		return errors.New("cancelled")
	case err := <-found:
		return err
	}
}

// ErrNeverSynced is returned when the expected number of synchronizations
// never completes.
var ErrNeverSynced = errors.New("never synced")

// CompletedSyncs returns the number of synchronizations recorded in the log
// file at `logFile`.
func CompletedSyncs(logFile string) (int, error) {
	contents, err := os.ReadFile(logFile)
	if err != nil {
		return 0, errors.WithContext(err, "read log")
	}
	return strings.Count(string(contents), "Synchronization completed."), nil
}

// WaitUntilSynced blocks until a synchronization that started after the call
// has completed, according to the log file at `logFile`.
func (helper *TestHelper) WaitUntilSynced(ctx context.Context, logFile string) error {
	start, err := CompletedSyncs(logFile)
	if err != nil {
		return err
	}

	isSynced := func() bool {
		curr, err := CompletedSyncs(logFile)
		if err != nil {
			log.WithError(err).Error("Failed to read sync log")
			return false
		}

		// The synchronization that was running when we started may have
		// missed the changes, so wait for the one after it.
		return curr >= start+2
	}
	if !TestWithRetry(ctx, nil, isSynced) {
		return ErrNeverSynced
	}
	return nil
}

// TestWithRetry runs `test` with an exponential backoff, or whenever
// `trigger` fires, until it passes or `ctx` expires.
func TestWithRetry(ctx context.Context, trigger chan struct{}, test func() bool) bool {
	maxSleepTime := 5 * time.Second
	sleepTime := 100 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return test()
		case <-time.After(sleepTime):
			sleepTime *= 2
			if sleepTime > maxSleepTime {
				sleepTime = maxSleepTime
			}
		case <-trigger:
		}

		if test() {
			return true
		}
	}
}
