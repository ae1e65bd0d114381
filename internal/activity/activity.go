package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// Store persists and lists log entries.
type Store interface {
	InsertLog(ctx context.Context, entry models.BotLog) (*models.BotLog, error)
	ListLogs(ctx context.Context, filter models.LogFilter) ([]models.BotLog, error)
}

// Spooler keeps entries the store refused so they can be written later.
type Spooler interface {
	Enqueue(entry models.BotLog) error
}

// Options configure a Log.
type Options struct {
	Store   Store
	Spooler Spooler
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

// Log is the append-only activity trail. Appends never fail from the caller's
// point of view; entries the store rejects go to the spooler when one is set.
type Log struct {
	store   Store
	spooler Spooler
	log     *logrus.Entry
	now     func() time.Time

	mu   sync.Mutex
	last time.Time
}

// New creates a Log.
func New(opts Options) *Log {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Log{
		store:   opts.Store,
		spooler: opts.Spooler,
		log:     logger.Component(opts.Logger, "activity"),
		now:     now,
	}
}

// Append stamps and writes an entry. Failures are logged, never returned.
func (l *Log) Append(ctx context.Context, entry models.BotLog) {
	entry.ID = 0
	entry.Timestamp = l.stamp()
	if !entry.Status.Valid() {
		entry.Status = models.LogInfo
	}

	_, err := l.store.InsertLog(ctx, entry)
	if err == nil {
		return
	}
	fields := logrus.Fields{"bot_id": entry.BotID, "user_id": entry.UserID, "action": entry.Action}
	if l.spooler == nil {
		l.log.WithError(err).WithFields(fields).Error("activity log write dropped")
		return
	}
	if spoolErr := l.spooler.Enqueue(entry); spoolErr != nil {
		l.log.WithError(spoolErr).WithFields(fields).Error("activity log write dropped, outbox unavailable")
		return
	}
	l.log.WithError(err).WithFields(fields).Warn("activity log write deferred to outbox")
}

// List returns entries newest first, bounded by the filter limit.
func (l *Log) List(ctx context.Context, filter models.LogFilter) ([]models.BotLog, error) {
	filter.Limit = ClampLimit(filter.Limit)
	rows, err := l.store.ListLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	return rows, nil
}

// ClampLimit applies the default page size and the hard cap.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// stamp returns a timestamp that never goes backwards within this process.
func (l *Log) stamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.now().UTC()
	if ts.Before(l.last) {
		ts = l.last
	}
	l.last = ts
	return ts
}
