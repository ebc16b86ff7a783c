package telegram

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"tgrelay/internal/delivery"
	logx "tgrelay/pkg/logx"
)

var _ delivery.Splitter = (*Adapter)(nil)

func TestSplitTextShortIsUnchanged(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitText("hello", 10))
	assert.Equal(t, []string{""}, splitText("", 10))
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	s := strings.Repeat("x", 5) + "\n" + strings.Repeat("y", 5)
	assert.Equal(t, []string{"xxxxx", "yyyyy"}, splitText(s, 8))
}

func TestSplitTextHardCut(t *testing.T) {
	assert.Equal(t, []string{"xxxx", "xxxx", "xx"}, splitText(strings.Repeat("x", 10), 4))
}

func TestSplitTextCountsRunes(t *testing.T) {
	s := strings.Repeat("é", 6)
	got := splitText(s, 3)
	assert.Equal(t, []string{"ééé", "ééé"}, got)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
}

func TestHelpText(t *testing.T) {
	want := "These commands are supported:\n/id - Display this chat's ID.\n/help - Show this help text."
	assert.Equal(t, want, HelpText())
}

func TestInvokerOf(t *testing.T) {
	assert.Equal(t, Invoker{Name: "unknown", Username: "unknown", ID: "unknown"}, invokerOf(nil))
	assert.Equal(t, Invoker{Name: "Ada", Username: "unknown", ID: "42"}, invokerOf(&tele.User{ID: 42, FirstName: "Ada"}))
	assert.Equal(t, Invoker{Name: "Ada", Username: "ada", ID: "42"}, invokerOf(&tele.User{ID: 42, FirstName: "Ada", Username: "ada"}))
}

func TestTeleCommandsMirrorMenu(t *testing.T) {
	cmds := teleCommands()
	require.Len(t, cmds, len(Commands))
	assert.Equal(t, "id", cmds[0].Text)
	assert.Equal(t, "help", cmds[1].Text)
}

func TestNewRejectsEmptyToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, logx.Nop())
	require.Error(t, err)
}

func TestStartWithoutCommandsIsNoop(t *testing.T) {
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Stop(context.Background()))
}

func TestCallHonoursCancelledContext(t *testing.T) {
	a, err := New(Config{Token: "123:abc", Offline: true, RatePerSec: 1}, logx.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = a.call(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSplitMatchesTextLimit(t *testing.T) {
	a, err := New(Config{Token: "123:abc", Offline: true}, logx.Nop())
	require.NoError(t, err)

	text := strings.Repeat("x", TextLimit+10)
	chunks := a.Split(text)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], TextLimit)
	assert.Equal(t, text, strings.Join(chunks, ""))
	assert.Equal(t, []string{"short"}, a.Split("short"))
}
