package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/catalog"
	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
	"github.com/qtosh1/botlyhub/internal/ton"
)

var (
	ErrFreeBot          = errors.New("payments: bot is free")
	ErrMerchantMissing  = errors.New("payments: merchant wallet is not configured")
	ErrMissingReference = errors.New("payments: payment reference is required")
	// ErrConfirmationDisabled is returned by the confirm calls unless client
	// receipts are trusted.
	ErrConfirmationDisabled = errors.New("payments: client confirmations are disabled")
)

// Quote is the price of a bot in both supported currencies.
type Quote struct {
	BotID int64           `json:"bot_id"`
	Stars decimal.Decimal `json:"stars"`
	Ton   decimal.Decimal `json:"ton"`
}

// TonMessage is one outgoing message of a TonConnect sendTransaction request.
type TonMessage struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// TonTransaction is the payload the mini-app hands to TonConnect.
type TonTransaction struct {
	ValidUntil int64        `json:"validUntil"`
	Messages   []TonMessage `json:"messages"`
}

// Catalog is the part of the catalog service payments rely on.
type Catalog interface {
	Get(ctx context.Context, id int64) (*models.Bot, error)
	Grant(ctx context.Context, userID int64, bot models.Bot, source string) error
}

// Options configure the payment service.
type Options struct {
	Catalog        Catalog
	StarsPerTon    int64
	MerchantWallet string
	TxTTL          time.Duration
	Logger         logrus.FieldLogger
	Now            func() time.Time

	// TrustClientReceipts accepts a charge id or BOC posted by the mini app as
	// proof of payment. Nothing checks it against Telegram or the chain.
	TrustClientReceipts bool
}

// Service prices bots and records completed purchases. Settlement itself is
// verified by Telegram (Stars) and the wallet (TON).
type Service struct {
	catalog     Catalog
	starsPerTon decimal.Decimal
	merchant    string
	merchantErr error
	trust       bool
	ttl         time.Duration
	log         *logrus.Entry
	now         func() time.Time
}

func New(opts Options) *Service {
	rate := opts.StarsPerTon
	if rate <= 0 {
		rate = 100
	}
	ttl := opts.TxTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Service{
		catalog:     opts.Catalog,
		starsPerTon: decimal.NewFromInt(rate),
		ttl:         ttl,
		trust:       opts.TrustClientReceipts,
		log:         logger.Component(opts.Logger, "payments"),
		now:         now,
	}
	if strings.TrimSpace(opts.MerchantWallet) == "" {
		s.merchantErr = ErrMerchantMissing
	} else if addr, err := ton.NormalizeAddress(opts.MerchantWallet); err != nil {
		s.merchantErr = fmt.Errorf("%w: %v", ErrMerchantMissing, err)
	} else {
		s.merchant = addr
	}
	return s
}

// ToTon converts a Stars price to TON, rounded to two decimals.
func (s *Service) ToTon(stars decimal.Decimal) decimal.Decimal {
	return stars.DivRound(s.starsPerTon, 2)
}

// Quote prices a bot.
func (s *Service) Quote(ctx context.Context, botID int64) (*Quote, error) {
	bot, err := s.catalog.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	return &Quote{BotID: bot.ID, Stars: bot.Price, Ton: s.ToTon(bot.Price)}, nil
}

// TonTransaction builds a TonConnect request paying the bot's TON price to the merchant wallet.
func (s *Service) TonTransaction(ctx context.Context, botID int64) (*TonTransaction, error) {
	if s.merchantErr != nil {
		return nil, s.merchantErr
	}
	bot, err := s.catalog.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.IsFree() {
		return nil, ErrFreeBot
	}
	nano, err := ton.ToNano(s.ToTon(bot.Price))
	if err != nil {
		return nil, err
	}
	return &TonTransaction{
		ValidUntil: s.now().Add(s.ttl).Unix(),
		Messages:   []TonMessage{{Address: s.merchant, Amount: nano}},
	}, nil
}

// ConfirmStars records a Stars purchase identified by Telegram's charge id.
// The charge id comes from the client and is not checked with Telegram, so
// this only runs when TrustClientReceipts is set.
func (s *Service) ConfirmStars(ctx context.Context, userID, botID int64, chargeID string) (*models.Bot, error) {
	if !s.trust {
		return nil, ErrConfirmationDisabled
	}
	chargeID = strings.TrimSpace(chargeID)
	if chargeID == "" {
		return nil, ErrMissingReference
	}
	return s.confirm(ctx, userID, botID, catalog.SourceStars, logrus.Fields{"charge_id": chargeID})
}

// ConfirmTon records a TON purchase. The BOC returned by the wallet must
// decode; it is not looked up on chain, so this only runs when
// TrustClientReceipts is set.
func (s *Service) ConfirmTon(ctx context.Context, userID, botID int64, boc string) (*models.Bot, error) {
	if !s.trust {
		return nil, ErrConfirmationDisabled
	}
	if strings.TrimSpace(boc) == "" {
		return nil, ErrMissingReference
	}
	hash, err := ton.BocHash(boc)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, userID, botID, catalog.SourceTon, logrus.Fields{"boc_hash": hash})
}

func (s *Service) confirm(ctx context.Context, userID, botID int64, source string, ref logrus.Fields) (*models.Bot, error) {
	bot, err := s.catalog.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.IsFree() {
		return nil, ErrFreeBot
	}
	if err := s.catalog.Grant(ctx, userID, *bot, source); err != nil {
		return nil, err
	}
	s.log.WithFields(ref).WithFields(logrus.Fields{
		"user_id": userID,
		"bot_id":  botID,
		"source":  source,
	}).Info("purchase recorded")
	return bot, nil
}
