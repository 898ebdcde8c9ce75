package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, ParseLevel("WARN"))
	require.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	require.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	lg := New(&buf, "json").With().Str("component", "test").Logger()
	lg.Info().Str("pool", "alpha").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "hello", entry["message"])
	require.Equal(t, "alpha", entry["pool"])
	require.Equal(t, "test", entry["component"])
}

func TestFileWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.log")

	w, err := FileWriter(path)
	require.NoError(t, err)
	lg := New(w, "json")
	lg.Info().Msg("first")
	require.NoError(t, w.Close())

	w, err = FileWriter(path)
	require.NoError(t, err)
	lg = New(w, "json")
	lg.Info().Msg("second")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, bytes.Count(data, []byte("\n")))
}
