package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC) }

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo})
	log.now = fixedNow

	log.With(RunID("run-1")).Info("row failed", Row(3), Err(errors.New("boom")))
	log.Debug("hidden")

	var entry Entry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "row failed", entry.Message)
	assert.Equal(t, "2025-09-01T12:00:00Z", entry.Timestamp)
	assert.Equal(t, "run-1", entry.Fields["run_id"])
	assert.Equal(t, float64(3), entry.Fields["row"])
	assert.Equal(t, "boom", entry.Fields["error"])
}

func TestLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelDebug, Format: FormatText})
	log.now = fixedNow

	log.Warn("slow request", String("path", "/healthz"), Int("status", 200))

	assert.Equal(t, "2025-09-01T12:00:00Z WARN slow request path=/healthz status=200\n", buf.String())
}

func TestLogger_WithDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(Options{Output: &buf})
	base.now = fixedNow

	_ = base.With(StudentID("s-1"))
	base.Info("plain")

	assert.NotContains(t, buf.String(), "student_id")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("whatever"))
}

func TestContext(t *testing.T) {
	log := Nop()
	ctx := WithContext(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}
