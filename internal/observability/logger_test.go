package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		appEnv    string
		level     string
		debugSeen bool
		infoSeen  bool
	}{
		{"production default", "production", "", false, true},
		{"development default", "development", "", true, true},
		{"explicit warn", "development", "warn", false, false},
		{"unparseable level keeps default", "production", "loud", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.appEnv, tt.level)

			logger.Debug().Msg("debug-line")
			logger.Info().Msg("info-line")

			assert.Equal(t, tt.debugSeen, bytes.Contains(buf.Bytes(), []byte("debug-line")))
			assert.Equal(t, tt.infoSeen, bytes.Contains(buf.Bytes(), []byte("info-line")))
		})
	}
}

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "")

	logger.Info().Str("component", "runner").Msg("tick")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "runner", entry["component"])
	assert.Equal(t, "tick", entry["message"])
	assert.Contains(t, entry, "time")
}
