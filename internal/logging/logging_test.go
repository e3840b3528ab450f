package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestNew_HasComponent(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	Init(slog.LevelDebug, FormatText, &buf)

	New("scorer").Info("hello")

	assert.Contains(t, buf.String(), "component=scorer")
	assert.Contains(t, buf.String(), "hello")
}

func TestInit_JSONFormat(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	Init(slog.LevelInfo, FormatJSON, &buf)

	New("recorder").Info("json check")

	assert.Contains(t, buf.String(), `"level":"INFO"`)
	assert.Contains(t, buf.String(), `"component":"recorder"`)
}

func TestInit_LevelGating(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	Init(slog.LevelWarn, FormatText, &buf)

	logger := New("gate")
	logger.Info("suppressed")
	logger.Warn("visible")

	assert.NotContains(t, buf.String(), "suppressed")
	assert.Contains(t, buf.String(), "visible")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: " error ", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
