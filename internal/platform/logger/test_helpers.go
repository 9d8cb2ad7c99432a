package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLogBuffer collects JSON log lines written from any goroutine.
type TestLogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *TestLogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *TestLogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Reset drops everything captured so far.
func (b *TestLogBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// GetLogEntries decodes the captured output, one map per record.
func (b *TestLogBuffer) GetLogEntries() ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewBufferString(b.String()))
	var entries []map[string]any
	for {
		var entry map[string]any
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
}

func newBufferedLogger(opts *slog.HandlerOptions) (*slog.Logger, *TestLogBuffer) {
	if opts == nil {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}
	buf := &TestLogBuffer{}
	return slog.New(slog.NewJSONHandler(buf, opts)), buf
}

// GetTestLogger returns a debug-level JSON logger and the buffer it writes
// to.
func GetTestLogger(t *testing.T) (*slog.Logger, *TestLogBuffer) {
	t.Helper()
	return newBufferedLogger(nil)
}

// SetupTestLogger is like GetTestLogger but also makes the logger the slog
// default until the test ends. Nil opts log at debug level.
func SetupTestLogger(t *testing.T, opts *slog.HandlerOptions) (*TestLogBuffer, *slog.Logger) {
	t.Helper()

	log, buf := newBufferedLogger(opts)
	previous := slog.Default()
	slog.SetDefault(log)
	t.Cleanup(func() { slog.SetDefault(previous) })
	return buf, log
}

// NewLogCaptureContext returns a context carrying a buffered test logger.
func NewLogCaptureContext(t *testing.T) (context.Context, *TestLogBuffer) {
	t.Helper()
	log, buf := GetTestLogger(t)
	return WithLogger(context.Background(), log), buf
}

// AssertLogContains fails the test unless content appears in the captured
// output.
func AssertLogContains(t *testing.T, buf *TestLogBuffer, content string) {
	t.Helper()
	assert.Contains(t, buf.String(), content)
}

// AssertLogField fails the test unless some record has field set to
// expected. JSON numbers decode as float64.
func AssertLogField(t *testing.T, buf *TestLogBuffer, field string, expected any) {
	t.Helper()

	entries, err := buf.GetLogEntries()
	require.NoError(t, err, "captured logs are not JSON")
	require.NotEmpty(t, entries, "no log records captured")

	for _, entry := range entries {
		if value, ok := entry[field]; ok && value == expected {
			return
		}
	}
	assert.Failf(t, "log field not found", "no record has %s=%v in:\n%s", field, expected, buf.String())
}
