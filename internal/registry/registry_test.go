package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtosh1/botlyhub/internal/activity"
	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/memstore"
	"github.com/qtosh1/botlyhub/internal/models"
)

type stubChecker struct {
	mu     sync.Mutex
	result bool
	err    error
	calls  int
}

func (s *stubChecker) IsAdministrator(context.Context, models.Bot, models.Channel) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.result, s.err
}

func (s *stubChecker) set(result bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result, s.err = result, err
}

func (s *stubChecker) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubBroadcaster struct {
	sent []string
	err  error
}

func (b *stubBroadcaster) SendToChannel(_ context.Context, _ models.Channel, text string) error {
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, text)
	return nil
}

type fixture struct {
	reg     *Registry
	store   *memstore.Store
	log     *activity.Log
	checker *stubChecker
	caster  *stubBroadcaster
	userID  int64
	bot     *models.Bot
	channel *models.Channel
}

// clock advances one second per call so log timestamps are distinct.
type clock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	clk := &clock{cur: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	logs := activity.New(activity.Options{Store: store, Logger: logger.Discard(), Now: clk.Now})
	checker := &stubChecker{}
	caster := &stubBroadcaster{}

	user, err := store.SyncUser(ctx, models.User{ID: 1001, Name: "Owner"})
	require.NoError(t, err)
	bot, err := store.UpsertBot(ctx, models.Bot{Name: "Poster", Price: decimal.Zero, Category: "tools"})
	require.NoError(t, err)
	channel, err := store.InsertChannel(ctx, models.Channel{UserID: user.ID, Name: "News", TelegramChat: "@news"})
	require.NoError(t, err)
	_, err = store.AddUserBot(ctx, user.ID, bot.ID, "free")
	require.NoError(t, err)

	reg := New(Options{
		Store:         store,
		Checker:       checker,
		Broadcaster:   caster,
		Activity:      logs,
		Logger:        logger.Discard(),
		VerifyTimeout: time.Second,
		Now:           clk.Now,
	})
	return &fixture{
		reg:     reg,
		store:   store,
		log:     logs,
		checker: checker,
		caster:  caster,
		userID:  user.ID,
		bot:     bot,
		channel: channel,
	}
}

func (f *fixture) connect(t *testing.T) *models.BotConnection {
	t.Helper()
	conn, err := f.reg.Create(context.Background(), f.userID, f.bot.ID, f.channel.ID)
	require.NoError(t, err)
	return conn
}

func (f *fixture) active(t *testing.T) *models.BotConnection {
	t.Helper()
	conn := f.connect(t)
	f.checker.set(true, nil)
	passed, err := f.reg.Verify(context.Background(), conn.ID)
	require.NoError(t, err)
	require.True(t, passed)
	conn, err = f.reg.Get(context.Background(), conn.ID)
	require.NoError(t, err)
	return conn
}

func (f *fixture) logs(t *testing.T) []models.BotLog {
	t.Helper()
	rows, err := f.log.List(context.Background(), models.LogFilter{UserID: f.userID, Limit: activity.MaxLimit})
	require.NoError(t, err)
	return rows
}

func TestVerifySuccessActivatesConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn := f.connect(t)
	got, err := f.reg.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionPending, got.Status)
	assert.False(t, got.IsAdminVerified)
	before := len(f.logs(t))

	f.checker.set(true, nil)
	passed, err := f.reg.Verify(ctx, conn.ID)
	require.NoError(t, err)
	assert.True(t, passed)

	got, err = f.reg.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, got.Status)
	assert.True(t, got.IsAdminVerified)
	assert.NotNil(t, got.LastCheckAt)
	require.NotNil(t, got.RuntimeID)
	assert.Regexp(t, `^rt_[0-9a-f]{12}$`, *got.RuntimeID)

	rows := f.logs(t)
	require.Len(t, rows, before+1)
	assert.Contains(t, []models.LogStatus{models.LogSuccess, models.LogInfo}, rows[0].Status)
	require.NotNil(t, rows[0].ChannelID)
	assert.Equal(t, f.channel.ID, *rows[0].ChannelID)
}

func TestVerifyFailureBlocksStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn := f.connect(t)
	f.checker.set(false, nil)
	passed, err := f.reg.Verify(ctx, conn.ID)
	require.NoError(t, err)
	assert.False(t, passed)

	got, err := f.reg.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionMissingPermissions, got.Status)
	assert.False(t, got.IsAdminVerified)

	_, err = f.reg.SetRuntimeStatus(ctx, conn.ID, models.ConnectionActive)
	assert.ErrorIs(t, err, ErrNotVerified)

	got, err = f.reg.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionMissingPermissions, got.Status)
}

func TestStopThenStartKeepsVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn := f.active(t)
	calls := f.checker.count()
	before := len(f.logs(t))

	stopped, err := f.reg.SetRuntimeStatus(ctx, conn.ID, models.ConnectionStopped)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStopped, stopped.Status)
	assert.True(t, stopped.IsAdminVerified)
	assert.Nil(t, stopped.RuntimeID)
	assert.Nil(t, stopped.UptimeStart)

	rows := f.logs(t)
	require.Len(t, rows, before+1)
	assert.Equal(t, "Runtime stopped", rows[0].Action)

	started, err := f.reg.SetRuntimeStatus(ctx, conn.ID, models.ConnectionActive)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, started.Status)
	assert.NotNil(t, started.RuntimeID)
	assert.NotNil(t, started.UptimeStart)
	assert.Equal(t, calls, f.checker.count(), "start must not re-run the permission check")
}

func TestInvariantHoldsAcrossOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.connect(t)

	steps := []func() error{
		func() error { f.checker.set(false, nil); _, err := f.reg.Verify(ctx, conn.ID); return err },
		func() error { f.checker.set(true, nil); _, err := f.reg.Verify(ctx, conn.ID); return err },
		func() error { _, err := f.reg.Stop(ctx, conn.ID); return err },
		func() error { _, err := f.reg.SetRuntimeStatus(ctx, conn.ID, models.ConnectionBooting); return err },
		func() error { _, err := f.reg.Start(ctx, conn.ID); return err },
		func() error { _, err := f.reg.Restart(ctx, conn.ID); return err },
		func() error { f.checker.set(false, nil); _, err := f.reg.Verify(ctx, conn.ID); return err },
		func() error { _, err := f.reg.Start(ctx, conn.ID); return err },
	}
	for i, step := range steps {
		_ = step()
		got, err := f.reg.Get(ctx, conn.ID)
		require.NoError(t, err)
		assert.NoError(t, CheckInvariant(got.State()), "step %d", i)
		if got.Status == models.ConnectionMissingPermissions || got.Status == models.ConnectionPending {
			assert.False(t, got.IsAdminVerified, "step %d", i)
		}
		if got.Status.Running() {
			assert.True(t, got.IsAdminVerified, "step %d", i)
		}
	}
}

func TestRepeatedVerifyConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failing := f.connect(t)
	f.checker.set(false, nil)
	for i := 0; i < 5; i++ {
		_, err := f.reg.Verify(ctx, failing.ID)
		require.NoError(t, err)
		got, err := f.reg.Get(ctx, failing.ID)
		require.NoError(t, err)
		assert.NotEqual(t, models.ConnectionActive, got.Status)
	}

	f.checker.set(true, nil)
	var runtimeID string
	for i := 0; i < 5; i++ {
		_, err := f.reg.Verify(ctx, failing.ID)
		require.NoError(t, err)
		got, err := f.reg.Get(ctx, failing.ID)
		require.NoError(t, err)
		assert.Equal(t, models.ConnectionActive, got.Status)
		require.NotNil(t, got.RuntimeID)
		if i == 0 {
			runtimeID = *got.RuntimeID
		}
		assert.Equal(t, runtimeID, *got.RuntimeID, "re-verifying an active connection keeps its runtime")
	}
}

func TestCheckerErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.connect(t)

	f.checker.set(false, errors.New("telegram unavailable"))
	_, err := f.reg.Verify(ctx, conn.ID)
	require.Error(t, err)

	got, err := f.reg.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionPending, got.Status)
	assert.Nil(t, got.LastCheckAt)
	assert.Equal(t, models.LogError, f.logs(t)[0].Status)
}

func TestCreateRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.connect(t)
	_, err := f.reg.Create(ctx, f.userID, f.bot.ID, f.channel.ID)
	assert.ErrorIs(t, err, ErrDuplicateConnection)

	other, err := f.store.UpsertBot(ctx, models.Bot{Name: "Paid", Price: decimal.NewFromInt(50)})
	require.NoError(t, err)
	_, err = f.reg.Create(ctx, f.userID, other.ID, f.channel.ID)
	assert.ErrorIs(t, err, ErrNotOwned)

	stranger, err := f.store.InsertChannel(ctx, models.Channel{UserID: 777, Name: "Foreign", TelegramChat: "@foreign"})
	require.NoError(t, err)
	_, err = f.reg.Create(ctx, f.userID, f.bot.ID, stranger.ID)
	assert.ErrorIs(t, err, ErrChannelNotFound)

	_, err = f.reg.Get(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuntimeTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.active(t)
	before := len(f.logs(t))

	same, err := f.reg.SetRuntimeStatus(ctx, conn.ID, models.ConnectionActive)
	require.NoError(t, err)
	assert.Equal(t, *conn.RuntimeID, *same.RuntimeID)
	rows := f.logs(t)
	require.Len(t, rows, before+1)
	assert.Equal(t, models.LogInfo, rows[0].Status)

	_, err = f.reg.SetRuntimeStatus(ctx, conn.ID, models.ConnectionBooting)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.reg.SetRuntimeStatus(ctx, conn.ID, models.ConnectionPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	restarted, err := f.reg.Restart(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, restarted.Status)
	assert.NotEqual(t, *conn.RuntimeID, *restarted.RuntimeID)
}

func TestBroadcast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.connect(t)

	assert.ErrorIs(t, f.reg.Broadcast(ctx, conn.ID, "  "), ErrEmptyMessage)
	assert.ErrorIs(t, f.reg.Broadcast(ctx, conn.ID, "hello"), ErrNotVerified)

	f.checker.set(true, nil)
	_, err := f.reg.Verify(ctx, conn.ID)
	require.NoError(t, err)

	require.NoError(t, f.reg.Broadcast(ctx, conn.ID, "Launch day: everything is 50% off this weekend"))
	assert.Len(t, f.caster.sent, 1)
	assert.Equal(t, "Broadcast: Launch day: everything is 50% ...", f.logs(t)[0].Action)

	f.caster.err = errors.New("flood wait")
	assert.Error(t, f.reg.Broadcast(ctx, conn.ID, "again"))
	assert.Equal(t, models.LogError, f.logs(t)[0].Status)
}

func TestEveryOperationAppendsOrderedLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn := f.connect(t)
	f.checker.set(true, nil)
	ops := 1
	_, _ = f.reg.Verify(ctx, conn.ID)
	ops++
	_, _ = f.reg.Stop(ctx, conn.ID)
	ops++
	_, _ = f.reg.Start(ctx, conn.ID)
	ops++
	_, _ = f.reg.Start(ctx, conn.ID)
	ops++
	_, _ = f.reg.Create(ctx, f.userID, f.bot.ID, f.channel.ID)
	ops++

	rows := f.logs(t)
	assert.GreaterOrEqual(t, len(rows), ops)
	assert.True(t, sort.SliceIsSorted(rows, func(i, j int) bool {
		return rows[i].Timestamp.After(rows[j].Timestamp)
	}), "logs are listed newest first")
	for i := 1; i < len(rows); i++ {
		assert.False(t, rows[i].Timestamp.After(rows[i-1].Timestamp))
	}
}

type staleStore struct {
	*memstore.Store
}

func (s staleStore) UpdateConnectionState(context.Context, int64, models.ConnectionStatus, models.ConnectionState) (*models.BotConnection, error) {
	return nil, models.ErrStale
}

func TestLostUpdateReportsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.active(t)

	reg := New(Options{
		Store:    staleStore{f.store},
		Checker:  f.checker,
		Activity: f.log,
		Logger:   logger.Discard(),
	})

	before := len(f.logs(t))
	_, err := reg.Verify(ctx, conn.ID)
	assert.ErrorIs(t, err, ErrConflict)
	rows := f.logs(t)
	require.Len(t, rows, before+1)
	assert.Equal(t, models.LogError, rows[0].Status)
	assert.Contains(t, rows[0].Action, "changed concurrently")

	_, err = reg.Stop(ctx, conn.ID)
	assert.ErrorIs(t, err, ErrConflict)
	rows = f.logs(t)
	require.Len(t, rows, before+2)
	assert.Equal(t, models.LogError, rows[0].Status)

	got, err := f.reg.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, got.Status)
}

// interleavingStore starts a concurrent Stop while the first stop of a
// restart is being written.
type interleavingStore struct {
	*memstore.Store
	once sync.Once
	stop func()
	done chan struct{}
}

func (s *interleavingStore) UpdateConnectionState(ctx context.Context, id int64, expected models.ConnectionStatus, next models.ConnectionState) (*models.BotConnection, error) {
	if next.Status == models.ConnectionStopped {
		s.once.Do(func() {
			go func() {
				defer close(s.done)
				s.stop()
			}()
		})
	}
	return s.Store.UpdateConnectionState(ctx, id, expected, next)
}

func TestRestartIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.active(t)

	store := &interleavingStore{Store: f.store, done: make(chan struct{})}
	reg := New(Options{
		Store:    store,
		Checker:  f.checker,
		Activity: f.log,
		Logger:   logger.Discard(),
	})
	store.stop = func() { _, _ = reg.Stop(ctx, conn.ID) }

	restarted, err := reg.Restart(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, restarted.Status)
	<-store.done

	rows := f.logs(t)
	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, "Runtime stopped", rows[0].Action, "the concurrent stop runs after the restart")
	assert.Equal(t, "Runtime "+*restarted.RuntimeID+" started", rows[1].Action)
	assert.Equal(t, "Runtime stopped", rows[2].Action)

	got, err := f.reg.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionStopped, got.Status)
	assert.True(t, got.IsAdminVerified)
}

func TestConcurrentVerifyAndStop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conn := f.active(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.reg.Verify(ctx, conn.ID)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.reg.Stop(ctx, conn.ID)
		}()
	}
	wg.Wait()

	got, err := f.reg.Get(ctx, conn.ID)
	require.NoError(t, err)
	assert.NoError(t, CheckInvariant(got.State()))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.ConnectionActive, models.ConnectionStopped))
	assert.True(t, CanTransition(models.ConnectionStopped, models.ConnectionBooting))
	assert.True(t, CanTransition(models.ConnectionBooting, models.ConnectionActive))
	assert.False(t, CanTransition(models.ConnectionPending, models.ConnectionActive))
	assert.False(t, CanTransition(models.ConnectionMissingPermissions, models.ConnectionStopped))
	assert.False(t, CanTransition(models.ConnectionActive, models.ConnectionBooting))
}
