package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/internal/command"
)

func ptr[T any](v T) *T { return &v }

var table = Table{
	Owner: 1000,
	Lists: map[string][]int64{
		"ops":   {10, 20, 30},
		"empty": {},
	},
}

func TestResolveDirect(t *testing.T) {
	reqs := Resolve(command.Command{ChatID: ptr(int64(42)), Text: "hi", ImagePath: ptr("/tmp/a.png")}, table)
	require.Len(t, reqs, 1)
	assert.Equal(t, Request{ChatID: 42, Text: "hi", ImagePath: "/tmp/a.png", Rule: RuleDirect}, reqs[0])
}

func TestResolveDirectWinsOverList(t *testing.T) {
	cmd := command.Command{ChatID: ptr(int64(42)), SubscriberList: ptr("ops"), Text: "hi"}
	reqs := Resolve(cmd, table)
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(42), reqs[0].ChatID)
	assert.Equal(t, RuleDirect, Match(cmd, table))
}

func TestResolveListKeepsOrderAndImage(t *testing.T) {
	reqs := Resolve(command.Command{SubscriberList: ptr("ops"), Text: "deploy", ImagePath: ptr("/tmp/g.png")}, table)
	require.Len(t, reqs, 3)
	for i, want := range []int64{10, 20, 30} {
		assert.Equal(t, want, reqs[i].ChatID)
		assert.Equal(t, "deploy", reqs[i].Text)
		assert.Equal(t, "/tmp/g.png", reqs[i].ImagePath)
		assert.Equal(t, RuleList, reqs[i].Rule)
		assert.Equal(t, "ops", reqs[i].List)
	}
}

func TestResolveEmptyListSendsNothing(t *testing.T) {
	assert.Empty(t, Resolve(command.Command{SubscriberList: ptr("empty"), Text: "x"}, table))
}

func TestResolveUnknownListNotifiesOwner(t *testing.T) {
	reqs := Resolve(command.Command{SubscriberList: ptr("nope"), Text: "x", ImagePath: ptr("/tmp/i.png")}, table)
	require.Len(t, reqs, 1)
	assert.Equal(t, int64(1000), reqs[0].ChatID)
	assert.Equal(t, "Warning: unknown subscriber list 'nope'", reqs[0].Text)
	assert.False(t, reqs[0].HasImage())
	assert.Equal(t, RuleUnknownList, reqs[0].Rule)
}

func TestResolveOwnerFallback(t *testing.T) {
	reqs := Resolve(command.Command{Text: "hello", ImagePath: ptr("/tmp/o.png")}, table)
	require.Len(t, reqs, 1)
	assert.Equal(t, Request{ChatID: 1000, Text: "hello", ImagePath: "/tmp/o.png", Rule: RuleOwner}, reqs[0])
}

func TestResolveIsPure(t *testing.T) {
	cmd := command.Command{SubscriberList: ptr("ops"), Text: "x"}
	assert.Equal(t, Resolve(cmd, table), Resolve(cmd, table))
	assert.Equal(t, []int64{10, 20, 30}, table.Lists["ops"])
}
