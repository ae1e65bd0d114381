package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/memstore"
	"github.com/qtosh1/botlyhub/internal/models"
)

type failingStore struct {
	*memstore.Store
	err error
}

func (f failingStore) InsertLog(context.Context, models.BotLog) (*models.BotLog, error) {
	return nil, f.err
}

type memSpool struct {
	mu      sync.Mutex
	entries []models.BotLog
	err     error
}

func (m *memSpool) Enqueue(entry models.BotLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestAppendStampsAndLists(t *testing.T) {
	store := memstore.New()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	l := New(Options{Store: store, Logger: logger.Discard(), Now: func() time.Time { return at }})
	ctx := context.Background()

	l.Append(ctx, models.BotLog{ID: 42, BotID: 1, UserID: 7, Action: "Bot connected", Status: "bogus"})

	rows, err := l.List(ctx, models.LogFilter{UserID: 7})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.LogInfo, rows[0].Status)
	assert.Equal(t, at.UTC(), rows[0].Timestamp)
	assert.NotEqual(t, int64(42), rows[0].ID)
}

func TestTimestampsNeverGoBackwards(t *testing.T) {
	store := memstore.New()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base.Add(time.Minute), base.Add(-time.Hour), base.Add(2 * time.Minute)}
	i := 0
	l := New(Options{Store: store, Logger: logger.Discard(), Now: func() time.Time {
		ts := ticks[i%len(ticks)]
		i++
		return ts
	}})
	ctx := context.Background()
	for range ticks {
		l.Append(ctx, models.BotLog{BotID: 1, UserID: 7, Action: "tick", Status: models.LogInfo})
	}

	rows, err := l.List(ctx, models.LogFilter{BotID: 1})
	require.NoError(t, err)
	require.Len(t, rows, len(ticks))
	for i := len(rows) - 1; i > 0; i-- {
		assert.False(t, rows[i-1].Timestamp.Before(rows[i].Timestamp))
	}
	assert.Equal(t, base.Add(2*time.Minute), rows[0].Timestamp)
}

func TestAppendSpoolsOnStoreFailure(t *testing.T) {
	spool := &memSpool{}
	l := New(Options{
		Store:   failingStore{Store: memstore.New(), err: errors.New("connection refused")},
		Spooler: spool,
		Logger:  logger.Discard(),
	})

	l.Append(context.Background(), models.BotLog{BotID: 3, UserID: 9, Action: "Runtime stopped", Status: models.LogInfo})

	require.Len(t, spool.entries, 1)
	assert.Equal(t, "Runtime stopped", spool.entries[0].Action)
	assert.False(t, spool.entries[0].Timestamp.IsZero())
}

func TestAppendSwallowsErrorsWithoutSpool(t *testing.T) {
	failing := failingStore{Store: memstore.New(), err: errors.New("down")}
	l := New(Options{Store: failing, Logger: logger.Discard()})
	assert.NotPanics(t, func() {
		l.Append(context.Background(), models.BotLog{BotID: 1, Action: "x"})
	})

	spool := &memSpool{err: errors.New("disk full")}
	l = New(Options{Store: failing, Spooler: spool, Logger: logger.Discard()})
	assert.NotPanics(t, func() {
		l.Append(context.Background(), models.BotLog{BotID: 1, Action: "x"})
	})
	assert.Empty(t, spool.entries)
}

func TestListFiltersAndClamps(t *testing.T) {
	store := memstore.New()
	l := New(Options{Store: store, Logger: logger.Discard()})
	ctx := context.Background()
	for i := 0; i < 120; i++ {
		l.Append(ctx, models.BotLog{BotID: int64(i%2 + 1), UserID: 5, Action: "entry", Status: models.LogSuccess})
	}

	rows, err := l.List(ctx, models.LogFilter{UserID: 5})
	require.NoError(t, err)
	assert.Len(t, rows, DefaultLimit)

	rows, err = l.List(ctx, models.LogFilter{UserID: 5, Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, rows, MaxLimit)

	rows, err = l.List(ctx, models.LogFilter{BotID: 2, Limit: 100})
	require.NoError(t, err)
	assert.Len(t, rows, 60)
	for _, r := range rows {
		assert.Equal(t, int64(2), r.BotID)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1))
}
