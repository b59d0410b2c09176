package log

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternFormatting(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithOutput(&Config{Level: "debug", Pattern: "[%level] %msg %field"}, &buf)
	require.NoError(t, err)

	l.WithFields(map[string]interface{}{"stations": 4, "band": "5GHz"}).Info("run started")

	assert.Equal(t, "[INFO] run started band=5GHz,stations=4\n", buf.String())
}

func TestCallerIsReported(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithOutput(&Config{Level: "info", Pattern: "%caller %msg"}, &buf)
	require.NoError(t, err)

	l.Info("hello")

	assert.True(t, strings.HasPrefix(buf.String(), "log/logger_test.go:"), buf.String())
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithOutput(&Config{Level: "warn", Pattern: "%msg"}, &buf)
	require.NoError(t, err)

	l.Info("dropped")
	l.Debug("dropped")
	l.WithError(errors.New("boom")).Warn("kept")

	assert.Equal(t, "kept\n", buf.String())
	assert.False(t, l.IsInfoEnabled())
	assert.False(t, l.IsDebugEnabled())
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(&Config{Appenders: []AppenderConfig{{Type: "kafka"}}})
	assert.ErrorContains(t, err, "kafka")

	_, err = New(&Config{Appenders: []AppenderConfig{{Type: "file"}}})
	assert.ErrorContains(t, err, "filename")
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wifilab.log")
	l, err := New(&Config{
		Level:     "info",
		Pattern:   "%msg",
		Appenders: []AppenderConfig{{Type: "file", File: FileAppenderOpt{Filename: path, MaxSize: 1}}},
	})
	require.NoError(t, err)

	l.Info("to file")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "to file\n", string(data))
}

func TestMultiWriterKeepsWritingAfterError(t *testing.T) {
	var a, b bytes.Buffer
	w := NewMultiWriter().Add(&a).Add(failingWriter{}).Add(&b)

	n, err := w.Write([]byte("x"))

	assert.Equal(t, 1, n)
	assert.Error(t, err)
	assert.Equal(t, "x", a.String())
	assert.Equal(t, "x", b.String())
	assert.Equal(t, 3, w.Len())
}

func TestInitReplacesGlobal(t *testing.T) {
	before := GetLogger()
	require.NotNil(t, before)

	require.NoError(t, Init(&Config{Level: "debug"}))
	t.Cleanup(func() { _ = Init(DefaultConfig()) })

	assert.NotSame(t, before, GetLogger())
	assert.True(t, GetLogger().IsDebugEnabled())
}

func TestDefaultOutputIsStderr(t *testing.T) {
	for _, appenders := range [][]AppenderConfig{nil, DefaultConfig().Appenders, {{Type: "stderr"}}} {
		out, err := buildOutput(appenders)
		require.NoError(t, err)
		mw, ok := out.(*MultiWriter)
		require.True(t, ok)
		assert.Equal(t, []io.Writer{os.Stderr}, mw.writers)
	}

	out, err := buildOutput([]AppenderConfig{{Type: "console"}})
	require.NoError(t, err)
	assert.Equal(t, []io.Writer{os.Stdout}, out.(*MultiWriter).writers)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("closed") }
