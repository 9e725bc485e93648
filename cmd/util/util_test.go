package util

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/foldersync/pkg/errors"
)

func readFile(t *testing.T, path string) string {
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(contents)
}

func TestHandleFatalError(t *testing.T) {
	var exitCode int
	exit = func(code int) { exitCode = code }
	defer func() { exit = os.Exit }()

	logger := logrus.StandardLogger()
	oldOut := logger.Out
	defer logger.SetOutput(oldOut)
	logger.SetOutput(&bytes.Buffer{})
	hook := logrusTest.NewLocal(logger)
	defer logger.ReplaceHooks(make(logrus.LevelHooks))

	HandleFatalError(errors.WithContext(assert.AnError, "sync"))
	assert.Equal(t, 1, exitCode)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)

	hook.Reset()
	exitCode = 0
	HandleFatalError(errors.NewFriendlyError("Friendly"))
	assert.Equal(t, 1, exitCode)
	assert.Empty(t, hook.AllEntries())
}

func TestHandlePanic(t *testing.T) {
	assert.PanicsWithValue(t, "boom", func() {
		defer HandlePanic()
		panic("boom")
	})
}
