package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_JSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, c, err := New(Settings{Level: "debug"}, &buf, false)
	require.NoError(t, err)
	require.Nil(t, c)

	logger.Debug().Str("submission_id", "abc").Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["message"])
	require.Equal(t, "abc", line["submission_id"])
	require.Equal(t, "debug", line["level"])
}

func TestNew_ConsoleOnTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Settings{Format: FormatAuto}, &buf, true)
	require.NoError(t, err)
	logger.Info().Msg("hello")
	require.Contains(t, buf.String(), "hello")
	require.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Settings{Level: "WARN", Format: FormatJSON}, &buf, true)
	require.NoError(t, err)
	logger.Info().Msg("quiet")
	require.Empty(t, buf.String())
	logger.Warn().Msg("loud")
	require.Contains(t, buf.String(), "loud")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")
	logger, c, err := New(Settings{File: path}, nil, true)
	require.NoError(t, err)
	require.NotNil(t, c)
	logger.Info().Msg("to file")
	require.NoError(t, c.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"message":"to file"`)
}

func TestNew_Invalid(t *testing.T) {
	_, _, err := New(Settings{Level: "loudest"}, &bytes.Buffer{}, false)
	require.Error(t, err)
	_, _, err = New(Settings{Format: "xml"}, &bytes.Buffer{}, false)
	require.Error(t, err)
}
