package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chat-popup/pkg/config"
	"github.com/go-go-golems/chat-popup/pkg/events"
	"github.com/go-go-golems/chat-popup/pkg/session"
)

func TestApplyFlags_OnlyChangedFlagsOverride(t *testing.T) {
	old := flags
	t.Cleanup(func() { flags = old })

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "")
	cmd.Flags().StringVar(&flags.store, "store", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--base-url", "http://flag", "--timeout", "5s"}))

	s := config.Defaults()
	s.BaseURL = "http://env"
	s.Session.Type = session.TypeSQLite
	applyFlags(cmd, &s)

	require.Equal(t, "http://flag", s.BaseURL)
	require.Equal(t, 5*time.Second, s.Timeout)
	require.Equal(t, session.TypeSQLite, s.Session.Type)
}

func TestFormatEvent(t *testing.T) {
	line := formatEvent(events.TranscriptEvent{
		Seq: 3, Kind: "appended", Index: 1, Role: "user", Status: "final",
		Content: "hi", Attachment: "r.pdf",
	})
	require.Contains(t, line, "#3")
	require.Contains(t, line, "user/final: hi")
	require.Contains(t, line, "(file r.pdf)")
}

func TestStoreLabel(t *testing.T) {
	require.Equal(t, "redis", storeLabel(session.Settings{Type: session.TypeRedis, Path: "/ignored"}))
	require.Equal(t, "file /tmp/s.yaml", storeLabel(session.Settings{Path: "/tmp/s.yaml"}))
	require.Equal(t, "sqlite /tmp/s.db", storeLabel(session.Settings{Type: session.TypeSQLite, Path: "/tmp/s.db"}))
}

func TestRenderStyle_KeepsExplicitStyle(t *testing.T) {
	require.Equal(t, "dark", renderStyle("dark", false))
	require.Equal(t, "auto", renderStyle("auto", true))
}

func TestOwnsTerminal(t *testing.T) {
	require.True(t, ownsTerminal(newChatCommand()))

	send := newSendCommand()
	require.False(t, ownsTerminal(send))
	require.NoError(t, send.Flags().Set("interactive", "true"))
	require.True(t, ownsTerminal(send))

	require.False(t, ownsTerminal(newSessionCommand()))
}
