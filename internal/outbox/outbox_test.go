package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/memstore"
	"github.com/qtosh1/botlyhub/internal/models"
)

func openQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func entryAt(ts time.Time, action string) models.BotLog {
	return models.BotLog{BotID: 1, UserID: 2, Action: action, Status: models.LogInfo, Timestamp: ts}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(OpenOptions{})
	assert.Error(t, err)
}

func TestQueueIsFIFOByTimestamp(t *testing.T) {
	q := openQueue(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(entryAt(base.Add(2*time.Second), "third")))
	require.NoError(t, q.Enqueue(entryAt(base, "first")))
	require.NoError(t, q.Enqueue(entryAt(base.Add(time.Second), "second")))

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := q.Peek(2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0].Entry.Action)
	assert.Equal(t, "second", items[1].Entry.Action)

	require.NoError(t, q.Ack(items[0].Key))
	n, err = q.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

type flakySink struct {
	store   *memstore.Store
	failAt  int
	calls   int
	failErr error
}

func (f *flakySink) InsertLog(ctx context.Context, entry models.BotLog) (*models.BotLog, error) {
	f.calls++
	if f.calls == f.failAt {
		return nil, f.failErr
	}
	return f.store.InsertLog(ctx, entry)
}

func TestDrainOnceStopsAtFirstFailure(t *testing.T) {
	q := openQueue(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, action := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(entryAt(base.Add(time.Duration(i)*time.Second), action)))
	}
	store := memstore.New()
	sink := &flakySink{store: store, failAt: 2, failErr: errors.New("db down")}
	d := NewDrainer(DrainerOptions{Queue: q, Sink: sink, Logger: logger.Discard()})

	n, err := d.DrainOnce(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)

	left, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	n, err = d.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := store.ListLogs(context.Background(), models.LogFilter{UserID: 2})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "c", rows[0].Action)
	assert.Equal(t, base, rows[2].Timestamp)
}

func TestDrainerLoopDelivers(t *testing.T) {
	q := openQueue(t)
	require.NoError(t, q.Enqueue(entryAt(time.Now().UTC(), "spooled")))
	store := memstore.New()
	d := NewDrainer(DrainerOptions{Queue: q, Sink: store, Logger: logger.Discard(), Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	assert.Eventually(t, func() bool {
		n, err := q.Len()
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	rows, err := store.ListLogs(ctx, models.LogFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "spooled", rows[0].Action)
}

func TestDirectoryIsExclusive(t *testing.T) {
	dir := t.TempDir()
	q, err := Open(OpenOptions{Path: dir})
	require.NoError(t, err)

	_, err = Open(OpenOptions{Path: dir})
	assert.Error(t, err, "a second writer must not share the directory")

	require.NoError(t, q.Enqueue(entryAt(time.Now().UTC(), "spooled")))
	require.NoError(t, q.Close())

	ro, err := Open(OpenOptions{Path: dir, ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()
	n, err := ro.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
