package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIHandler_Format(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := New(&buf, Options{})

	logger.Info("instance created", "instance", "web", "elapsed", 1500*time.Millisecond, "note", "two words")

	assert.Equal(t, "INFO instance created instance=web elapsed=1.5s note=\"two words\"\n", buf.String())
}

func TestCLIHandler_GroupsAndAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := New(&buf, Options{}).With("run", "abc").WithGroup("scope")

	logger.Warn("slow", "project", "ctf", slog.Group("net", "name", "chal-net"))

	assert.Equal(t, "WARN slow run=abc scope.project=ctf scope.net.name=chal-net\n", buf.String())
}

func TestCLIHandler_AttrsAfterGroup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := New(&buf, Options{}).
		With("run", "abc").
		WithGroup("scope").
		With("remote", "lab").
		WithGroup("net")

	logger.Info("ready", "name", "chal-net")

	assert.Equal(t, "INFO ready run=abc scope.remote=lab scope.net.name=chal-net\n", buf.String())
}

func TestCLIHandler_Level(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: slog.LevelWarn})

	logger.Info("hidden")
	logger.Error("shown", "err", errors.New("boom"))

	assert.Equal(t, "ERROR shown err=boom\n", buf.String())
}

func TestCLIHandler_Timestamps(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	New(&buf, Options{Timestamps: true}).Info("hello")

	fields := strings.Fields(buf.String())
	require.Len(t, fields, 3)
	_, err := time.Parse(time.RFC3339, fields[1])
	assert.NoError(t, err)
}

func TestJSONMode(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	New(&buf, Options{Mode: ModeJSON}).Info("hello", "instance", "web")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "web", record["instance"])
}

func TestNewLogr_Verbosity(t *testing.T) {
	t.Parallel()

	var info bytes.Buffer
	log := NewLogr(New(&info, Options{}))
	log.Info("visible", "phase", "network")
	log.V(1).Info("polling")
	assert.Equal(t, "INFO visible phase=network\n", info.String())

	var debug bytes.Buffer
	log = NewLogr(New(&debug, Options{Level: slog.LevelDebug}))
	log.V(1).Info("polling")
	log.Error(errors.New("boom"), "failed")
	assert.Contains(t, debug.String(), "DEBUG polling\n")
	assert.Contains(t, debug.String(), "ERROR failed err=boom\n")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: " warn ", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
