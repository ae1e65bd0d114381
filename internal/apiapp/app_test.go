package apiapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qtosh1/botlyhub/internal/config"
	"github.com/qtosh1/botlyhub/internal/models"
)

func TestProcessesSpoolSeparately(t *testing.T) {
	cfg := config.Config{StoreDriver: config.DriverPostgres, OutboxPath: t.TempDir()}

	api, err := OpenOutbox(cfg, config.ProcessAPI)
	require.NoError(t, err)
	defer api.Close()
	bot, err := OpenOutbox(cfg, config.ProcessBot)
	require.NoError(t, err, "api and bot must be able to run side by side")
	defer bot.Close()

	require.NoError(t, api.Enqueue(models.BotLog{BotID: 1, UserID: 2, Action: "from api", Status: models.LogInfo, Timestamp: time.Now().UTC()}))
	n, err := bot.Len()
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.NotEqual(t, cfg.OutboxDir(config.ProcessAPI), cfg.OutboxDir(config.ProcessBot))
}

func TestMemoryDriverSpoolsInMemory(t *testing.T) {
	cfg := config.Config{StoreDriver: config.DriverMemory}
	a, err := OpenOutbox(cfg, config.ProcessAPI)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenOutbox(cfg, config.ProcessAPI)
	require.NoError(t, err)
	defer b.Close()
}
