package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/constructos-gateway/internal/logging"
)

func restore(t *testing.T) {
	t.Helper()
	level, logger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(level)
		log.Logger = logger
	})
}

func TestSetup(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	require.Equal(t, zerolog.WarnLevel, logging.Setup(&buf, "WARN", "PROD"))

	log.Info().Msg("dropped")
	log.Warn().Str("component", "gateway").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["message"])
	require.Equal(t, "gateway", line["component"])
	require.Equal(t, "warn", line["level"])
}

func TestSetup_UnknownLevel(t *testing.T) {
	restore(t)

	var buf bytes.Buffer
	require.Equal(t, zerolog.InfoLevel, logging.Setup(&buf, "chatty", "DEV"))
	log.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
}
