package qcore

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("log_level: debug\nmax_threads: 4\n"))
	require.NoError(t, err)

	want := DefaultConfig()
	want.LogLevel = "debug"
	want.MaxThreads = 4
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, zerolog.DebugLevel, cfg.level())
}

func TestParseConfigErrors(t *testing.T) {
	for _, data := range []string{
		"log_level: loud",
		"log_format: xml",
		"max_threads: 0",
		"warn_rate: -1",
		"max_threads: [",
	} {
		_, err := ParseConfig([]byte(data))
		assert.Error(t, err, data)
	}

	_, err := NewApplication(&Config{})
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_format: json\nqueue_warn_length: 2\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 2, cfg.QueueWarnLength)
	assert.Equal(t, zerolog.WarnLevel, cfg.level())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, zerolog.InfoLevel, "")
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "qcore", entry["component"])

	buf.Reset()
	log = NewLogger(&buf, zerolog.InfoLevel, "console")
	log.Info().Msg("pretty")
	assert.Contains(t, buf.String(), "pretty")
	assert.False(t, json.Valid(buf.Bytes()))
}

func TestWarnerRateLimit(t *testing.T) {
	var buf bytes.Buffer
	w := newWarner(NewLogger(&buf, zerolog.WarnLevel, "json"), 1)

	w.warn("connect").Msg("first")
	w.warn("connect").Msg("second")
	w.warn("thread").Msg("other category")

	out := buf.String()
	assert.Contains(t, out, "first")
	assert.NotContains(t, out, "second")
	assert.Contains(t, out, "other category")
}

func TestQueueWarning(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.QueueWarnLength = 2
	app, err := NewApplication(cfg, WithLogger(NewLogger(&buf, zerolog.WarnLevel, "json")))
	require.NoError(t, err)
	defer app.Close(context.Background())
	l := &eventLog{}
	require.NoError(t, app.Init(l, nil))

	PostEvent(l, NewEvent(EventUser))
	assert.Empty(t, buf.String())
	PostEvent(l, NewEvent(EventUser))
	assert.Contains(t, buf.String(), "posted event queue is growing")
}
