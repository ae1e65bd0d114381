package watcher

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
	"github.com/qtosh1/botlyhub/internal/registry"
)

type chatAdmins map[string]bool

func (c chatAdmins) IsAdministrator(_ context.Context, _ models.Bot, ch models.Channel) (bool, error) {
	ok, known := c[ch.TelegramChat]
	if !known {
		return false, errors.New("chat not found")
	}
	return ok, nil
}

func activeConnection(t *testing.T, store *memstore.Store, reg *registry.Registry, chat string) int64 {
	t.Helper()
	ctx := context.Background()
	bot, err := store.UpsertBot(ctx, models.Bot{Name: "bot " + chat, CatalogStatus: models.CatalogActive})
	require.NoError(t, err)
	ch, err := store.InsertChannel(ctx, models.Channel{UserID: 1, Name: chat, TelegramChat: chat})
	require.NoError(t, err)
	_, err = store.AddUserBot(ctx, 1, bot.ID, "free")
	require.NoError(t, err)
	conn, err := reg.Create(ctx, 1, bot.ID, ch.ID)
	require.NoError(t, err)
	passed, err := reg.Verify(ctx, conn.ID)
	require.NoError(t, err)
	require.True(t, passed)
	return conn.ID
}

func TestSweepRevokesLostRights(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	admins := chatAdmins{"@kept": true, "@lost": true, "@flaky": true}
	reg := registry.New(registry.Options{Store: store, Checker: admins, Logger: logger.Discard(), VerifyTimeout: time.Second})

	kept := activeConnection(t, store, reg, "@kept")
	lost := activeConnection(t, store, reg, "@lost")
	activeConnection(t, store, reg, "@flaky")

	admins["@lost"] = false
	delete(admins, "@flaky")

	w := New(Options{Source: store, Checker: admins, Verifier: reg, Logger: logger.Discard()})
	checked, revoked, err := w.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.Equal(t, 1, revoked)

	got, err := reg.Get(ctx, lost)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionMissingPermissions, got.Status)
	assert.False(t, got.IsAdminVerified)

	got, err = reg.Get(ctx, kept)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionActive, got.Status)
}

func TestSweepRespectsBatch(t *testing.T) {
	store := memstore.New()
	admins := chatAdmins{"@a": true, "@b": true, "@c": true}
	reg := registry.New(registry.Options{Store: store, Checker: admins, Logger: logger.Discard()})
	for chat := range admins {
		activeConnection(t, store, reg, chat)
	}

	w := New(Options{Source: store, Checker: admins, Verifier: reg, Logger: logger.Discard(), Batch: 2})
	checked, revoked, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.Zero(t, revoked)
}

func TestRunStopsWithContext(t *testing.T) {
	store := memstore.New()
	reg := registry.New(registry.Options{Store: store, Checker: chatAdmins{}, Logger: logger.Discard()})
	w := New(Options{Source: store, Checker: chatAdmins{}, Verifier: reg, Logger: logger.Discard(), Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Run(ctx), context.DeadlineExceeded)
}
