package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgrelay/internal/delivery"
	"tgrelay/internal/dispatch"
	"tgrelay/internal/eventbus"
	logx "tgrelay/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop())
	require.ErrorContains(t, err, "unknown journal driver")
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{Driver: "file"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err)
}

func exerciseStore(t *testing.T, st Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, status := range []string{"sent", "failed", "degraded"} {
		require.NoError(t, st.Append(ctx, Entry{
			At: at.Add(time.Duration(i) * time.Second), Event: "delivery." + status,
			BatchID: "b1", ChatID: 42, Rule: "direct", Kind: "text", Status: status, Attempts: i + 1, Preview: "hi",
		}))
	}

	all, err := st.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "sent", all[0].Status)
	assert.Equal(t, int64(42), all[0].ChatID)
	assert.True(t, at.Equal(all[0].At))

	last, err := st.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "failed", last[0].Status)
	assert.Equal(t, "degraded", last[1].Status)
	assert.Equal(t, 3, last[1].Attempts)

	require.NoError(t, st.Close())
	assert.ErrorIs(t, st.Append(ctx, Entry{Event: "x"}), ErrClosed)
}

func TestFileStore(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j", "journal.jsonl")}, logx.Nop())
	require.NoError(t, err)
	exerciseStore(t, st)
}

func TestSQLiteStore(t *testing.T) {
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "journal.db"), BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	exerciseStore(t, st)
}

func TestEntryFromEvent(t *testing.T) {
	at := time.Now()
	e, ok := EntryFromEvent(eventbus.Event{Type: delivery.EventFailed, Data: delivery.Outcome{
		BatchID: "b", ChatID: 7, Rule: "owner", Kind: delivery.KindText, Status: "failed", Attempts: 3, Error: "boom", At: at,
	}})
	require.True(t, ok)
	assert.Equal(t, delivery.EventFailed, e.Event)
	assert.Equal(t, "text", e.Kind)
	assert.Equal(t, "boom", e.Error)

	e, ok = EntryFromEvent(eventbus.Event{Type: dispatch.EventRejected, Data: dispatch.Rejected{BatchID: "r", Error: "bad", At: at}})
	require.True(t, ok)
	assert.Equal(t, "rejected", e.Status)
	assert.Equal(t, "r", e.BatchID)

	_, ok = EntryFromEvent(eventbus.Event{Type: "other", Data: 1})
	assert.False(t, ok)
}

func TestRecorderRecord(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "journal.jsonl")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	r := NewRecorder(st, logx.Nop())
	r.Record(eventbus.Event{Type: delivery.EventSent, Data: delivery.Outcome{ChatID: 1, Status: "sent", Kind: delivery.KindImage}})
	r.Record(eventbus.Event{Type: "ignored", Data: "x"})

	got, err := st.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "image", got[0].Kind)
}

func TestRecorderRunStopsOnCancel(t *testing.T) {
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "journal.jsonl")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewRecorder(st, logx.Nop()).Run(ctx, eventbus.New())
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("recorder did not stop")
	}
}
