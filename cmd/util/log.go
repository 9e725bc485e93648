package util

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/buger/goterm"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sidkik/foldersync/pkg/errors"
	"github.com/sidkik/foldersync/pkg/sync"
)

const timestampFormat = "2006-01-02 15:04:05"

// Mocked for unit testing.
var (
	stdout     io.Writer = os.Stdout
	isTerminal           = func() bool { return isatty.IsTerminal(os.Stdout.Fd()) }
)

// SetupLogger configures the standard logger to write every entry both to
// stdout and to the log file at `path`. The log file is rotated once it grows
// too large. The returned function flushes and closes the log file.
func SetupLogger(path string) (*logrus.Logger, func(), error) {
	logFile := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}

	// Lumberjack opens the file lazily. Write nothing so that a bad path is
	// reported now rather than silently dropping every entry.
	if _, err := logFile.Write(nil); err != nil {
		return nil, nil, errors.WithContext(err, "open log file")
	}

	logger := logrus.StandardLogger()
	logger.SetOutput(stdout)
	logger.SetFormatter(&eventFormatter{color: isTerminal()})
	logger.AddHook(&fileHook{
		levels:    logrus.AllLevels,
		out:       logFile,
		formatter: &eventFormatter{},
	})

	closeLog := func() {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to close log file: %s\n", err)
		}
	}
	return logger, closeLog, nil
}

// eventFormatter renders entries as `<timestamp> [<LABEL>]: <message>`. The
// label is the entry's sync event if it has one, and its level otherwise.
type eventFormatter struct {
	color bool
}

var labelColors = map[string]int{
	sync.Created.Label():  goterm.GREEN,
	sync.UpToDate.Label(): goterm.CYAN,
	sync.Updated.Label():  goterm.YELLOW,
	sync.Deleted.Label():  goterm.MAGENTA,
	sync.Error.Label():    goterm.RED,
	"WARNING":             goterm.YELLOW,
	"FATAL":               goterm.RED,
	"PANIC":               goterm.RED,
}

func (f *eventFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	label := strings.ToUpper(entry.Level.String())
	if event, ok := entry.Data[sync.EventField].(string); ok {
		label = event
	}
	if color, ok := labelColors[label]; ok && f.color {
		label = goterm.Color(label, color)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s [%s]: %s", entry.Time.Format(timestampFormat), label, entry.Message)

	var keys []string
	for key := range entry.Data {
		if key != sync.EventField {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, formatValue(entry.Data[key]))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func formatValue(value interface{}) string {
	var str string
	switch value := value.(type) {
	case error:
		str = value.Error()
	case time.Duration:
		str = value.String()
	default:
		str = fmt.Sprint(value)
	}

	if strings.ContainsAny(str, " \t\n\"=") {
		return fmt.Sprintf("%q", str)
	}
	return str
}

// fileHook writes a copy of every entry to `out`, independently of the
// logger's own output.
type fileHook struct {
	levels    []logrus.Level
	out       io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level {
	return h.levels
}

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return errors.WithContext(err, "format")
	}

	// A failed write must not stop the synchronization, so report it without
	// going back through the logger.
	if _, err := h.out.Write(line); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write to log file: %s\n", err)
	}
	return nil
}
