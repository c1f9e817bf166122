package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log := New()
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	assert.Contains(t, buf.String(), "test message")
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{"default is info", "", zerolog.InfoLevel, false},
		{"debug", "debug", zerolog.DebugLevel, false},
		{"case insensitive", "WARN", zerolog.WarnLevel, false},
		{"unknown", "loud", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := newFromConfig(&bytes.Buffer{}, tt.level, "json")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLevel, log.GetLevel())
		})
	}
}

func TestNewFromConfig_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := newFromConfig(buf, "info", "json")
	require.NoError(t, err)

	log.Info().Str("event_id", "e1").Msg("hello")
	log.Debug().Msg("hidden")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "e1", line["event_id"])
}

func TestNewFromConfig_ConsoleFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log, err := newFromConfig(buf, "info", "console")
	require.NoError(t, err)

	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestWithContext(t *testing.T) {
	ctx := WithContext(context.Background(), New())
	assert.NotNil(t, ctx.Value(LoggerKey))
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	assert.NotZero(t, buf.Len())
}

func TestFromContext_DefaultLogger(t *testing.T) {
	log := FromContext(context.Background())
	assert.NotEqual(t, zerolog.Disabled, log.GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{"owner_id": "o1"})

	log.Info().Msg("x")
	assert.Contains(t, buf.String(), `"owner_id":"o1"`)
}
