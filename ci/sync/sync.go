package sync

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/foldersync/ci/util"
)

func Test(t *testing.T, helper *util.TestHelper) {
	t.Run("FileChange", func(t *testing.T) {
		testFileChange(t, helper)
	})
	t.Run("SourceRemoved", func(t *testing.T) {
		testSourceRemoved(t, helper)
	})
}

func testFileChange(t *testing.T, helper *util.TestHelper) {
	testCtx, cancelTest := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancelTest()

	refFile := randomFile("dir/test-file")
	changedContents := refFile.WithContents("changed contents")
	changedFileMode := refFile.WithMode(os.FileMode(0600))
	changedModTime := refFile.WithModTime(refFile.modTime.Add(1 * time.Minute))

	tests := []struct {
		name   string
		change fsOp
		check  func(mockFs) error
	}{
		{
			name:   "ChangeContents",
			change: createFile(changedContents),
			check:  shouldExist(changedContents),
		},
		{
			// Files are compared by contents, so metadata-only changes are
			// left alone.
			name:   "ChangeMode",
			change: createFile(changedFileMode),
			check:  shouldExist(refFile),
		},
		{
			name:   "ChangeModTime",
			change: createFile(changedModTime),
			check:  shouldExist(refFile),
		},
		{
			name:   "RemoveFile",
			change: removeFile(refFile.path),
			check:  shouldNotExist(refFile),
		},
	}

	fs, err := newMockFs()
	require.NoError(t, err)
	defer fs.cleanup()

	syncCtx, stopSync := context.WithCancel(testCtx)
	syncErr, err := helper.Sync(syncCtx, fs.syncArgs(1)...)
	require.NoError(t, err, "start foldersync sync")

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			require.NoError(t, createFile(refFile)(fs))
			require.NoError(t, helper.WaitUntilSynced(testCtx, fs.logFile))
			require.NoError(t, shouldExist(refFile)(fs))

			require.NoError(t, test.change(fs))
			require.NoError(t, helper.WaitUntilSynced(testCtx, fs.logFile))

			assert.NoError(t, test.check(fs))
		})
	}

	stopSync()
	assert.NoError(t, <-syncErr, "foldersync sync should exit cleanly when stopped")
	assertNoErrorOrWarningLogs(t, fs.logFile)
}

func assertNoErrorOrWarningLogs(t *testing.T, logFile string) {
	logs, err := os.ReadFile(logFile)
	require.NoError(t, err)

	for _, line := range strings.Split(string(logs), "\n") {
		assert.NotContains(t, line, "[WARNING]", "unexpected warning log")
		assert.NotContains(t, line, "[ERROR]", "unexpected error log")
	}
}

func testSourceRemoved(t *testing.T, helper *util.TestHelper) {
	testCtx, cancelTest := context.WithTimeout(context.Background(), time.Minute)
	defer cancelTest()

	fs, err := newMockFs()
	require.NoError(t, err)
	defer fs.cleanup()

	f := randomFile("test-file")
	require.NoError(t, createFile(f)(fs))

	syncErr, err := helper.Sync(testCtx, fs.syncArgs(1)...)
	require.NoError(t, err, "start foldersync sync")
	require.NoError(t, helper.WaitUntilSynced(testCtx, fs.logFile))

	require.NoError(t, removeSource()(fs))
	select {
	case err := <-syncErr:
		assert.NoError(t, err, "foldersync sync should exit cleanly")
	case <-testCtx.Done():
		t.Fatal("foldersync sync didn't stop after the source was removed")
	}

	// The replica is left as it was.
	assert.NoError(t, shouldExist(f)(fs))
}
