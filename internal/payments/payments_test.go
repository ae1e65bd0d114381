package payments

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/qtosh1/botlyhub/internal/catalog"
	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/memstore"
	"github.com/qtosh1/botlyhub/internal/models"
	"github.com/qtosh1/botlyhub/internal/ton"
)

type nopActivity struct{}

func (nopActivity) Append(context.Context, models.BotLog) {}

func setup(t *testing.T, merchant string) (*Service, *catalog.Service, models.Bot) {
	t.Helper()
	store := memstore.New()
	cat := catalog.New(store, nopActivity{}, logger.Discard())
	bot, err := cat.Save(context.Background(), models.Bot{Name: "Paid", Price: decimal.NewFromInt(250)})
	require.NoError(t, err)
	svc := New(Options{
		Catalog:             cat,
		StarsPerTon:         100,
		MerchantWallet:      merchant,
		TxTTL:               5 * time.Minute,
		TrustClientReceipts: true,
		Logger:              logger.Discard(),
		Now:                 func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	return svc, cat, *bot
}

func merchantAddress() string {
	return address.NewAddress(0, 0, make([]byte, 32)).String()
}

func TestQuote(t *testing.T) {
	svc, _, bot := setup(t, "")
	q, err := svc.Quote(context.Background(), bot.ID)
	require.NoError(t, err)
	assert.True(t, q.Stars.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "2.5", q.Ton.String())

	assert.Equal(t, "0.33", svc.ToTon(decimal.NewFromInt(33)).String())
}

func TestTonTransaction(t *testing.T) {
	svc, _, bot := setup(t, merchantAddress())
	tx, err := svc.TonTransaction(context.Background(), bot.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_300), tx.ValidUntil)
	require.Len(t, tx.Messages, 1)
	assert.Equal(t, "2500000000", tx.Messages[0].Amount)

	want, err := ton.NormalizeAddress(merchantAddress())
	require.NoError(t, err)
	assert.Equal(t, want, tx.Messages[0].Address)
}

func TestTonTransactionWithoutMerchant(t *testing.T) {
	svc, _, bot := setup(t, "")
	_, err := svc.TonTransaction(context.Background(), bot.ID)
	assert.ErrorIs(t, err, ErrMerchantMissing)

	svc, _, bot = setup(t, "definitely-not-ton")
	_, err = svc.TonTransaction(context.Background(), bot.ID)
	assert.ErrorIs(t, err, ErrMerchantMissing)
}

func TestConfirmStarsGrantsOwnership(t *testing.T) {
	svc, cat, bot := setup(t, "")
	ctx := context.Background()

	_, err := svc.ConfirmStars(ctx, 5, bot.ID, " ")
	assert.ErrorIs(t, err, ErrMissingReference)

	_, err = svc.ConfirmStars(ctx, 5, bot.ID, "charge-1")
	require.NoError(t, err)
	owned, err := cat.Owns(ctx, 5, bot.ID)
	require.NoError(t, err)
	assert.True(t, owned)
}

func TestConfirmTon(t *testing.T) {
	svc, cat, bot := setup(t, merchantAddress())
	ctx := context.Background()

	_, err := svc.ConfirmTon(ctx, 5, bot.ID, "%%%")
	assert.ErrorIs(t, err, ton.ErrInvalidBoc)

	boc := base64.StdEncoding.EncodeToString(cell.BeginCell().MustStoreUInt(7, 16).EndCell().ToBOC())
	_, err = svc.ConfirmTon(ctx, 5, bot.ID, boc)
	require.NoError(t, err)
	owned, err := cat.Owns(ctx, 5, bot.ID)
	require.NoError(t, err)
	assert.True(t, owned)
}

func TestConfirmRejectsFreeBots(t *testing.T) {
	svc, cat, _ := setup(t, "")
	free, err := cat.Save(context.Background(), models.Bot{Name: "Free"})
	require.NoError(t, err)
	_, err = svc.ConfirmStars(context.Background(), 5, free.ID, "charge")
	assert.ErrorIs(t, err, ErrFreeBot)
}

func TestConfirmNeedsTrustedReceipts(t *testing.T) {
	store := memstore.New()
	cat := catalog.New(store, nopActivity{}, logger.Discard())
	bot, err := cat.Save(context.Background(), models.Bot{Name: "Paid", Price: decimal.NewFromInt(250)})
	require.NoError(t, err)
	svc := New(Options{Catalog: cat, Logger: logger.Discard()})

	_, err = svc.ConfirmStars(context.Background(), 5, bot.ID, "charge-1")
	assert.ErrorIs(t, err, ErrConfirmationDisabled)
	_, err = svc.ConfirmTon(context.Background(), 5, bot.ID, "te6cc")
	assert.ErrorIs(t, err, ErrConfirmationDisabled)

	owned, err := cat.Owns(context.Background(), 5, bot.ID)
	require.NoError(t, err)
	assert.False(t, owned)
}
