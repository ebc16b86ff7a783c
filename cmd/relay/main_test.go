package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/internal/command"
	"tgrelay/internal/config"
)

func TestBuildFramesRoundTrips(t *testing.T) {
	frames, err := buildFrames(sendOptions{
		destination: "telegram", chatID: 7, hasChatID: true, list: "ops",
		text: "hello", status: "ok", action: "send_message", image: "/tmp/a.png",
	})
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "telegram", string(frames[0]))

	cmd, err := command.Decode(frames)
	require.NoError(t, err)
	require.NotNil(t, cmd.ChatID)
	assert.Equal(t, int64(7), *cmd.ChatID)
	require.NotNil(t, cmd.SubscriberList)
	assert.Equal(t, "ops", *cmd.SubscriberList)
	assert.Equal(t, "hello", cmd.Text)
	assert.True(t, cmd.HasImage())
}

func TestBuildFramesOmitsUnsetDestinations(t *testing.T) {
	frames, err := buildFrames(sendOptions{destination: "telegram", text: "hi", status: "ok", action: "send_message"})
	require.NoError(t, err)
	assert.JSONEq(t, `["ok","send_message",{"text":"hi"}]`, string(frames[1]))
}

func TestPrintSummaryHidesToken(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, "/etc/relay.toml", &config.Config{
		Telegram: config.TelegramConfig{
			BotToken:        "123:secret",
			OwnerChatID:     42,
			ZMQEndpoint:     config.DefaultZMQEndpoint,
			SubscriberLists: map[string][]int64{"b": {2}, "a": {1, 3}},
		},
		Journal: config.JournalConfig{Driver: "none"},
	})
	out := buf.String()
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "owner:     42")
	assert.Contains(t, out, "  a (2): 1, 3\n  b (1): 2\n")
}

func TestRootHasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"run", "send", "check"} {
		c, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}
