// Package watcher re-checks running connections in the background so a bot
// that lost its administrator rights stops being reported as Active.
package watcher

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
)

// Source lists connections by status.
type Source interface {
	ListConnectionsByStatus(ctx context.Context, status models.ConnectionStatus, limit int) ([]models.ConnectionView, error)
}

// Checker probes administrator rights without touching state.
type Checker interface {
	IsAdministrator(ctx context.Context, bot models.Bot, channel models.Channel) (bool, error)
}

// Verifier records a verification outcome through the registry.
type Verifier interface {
	Verify(ctx context.Context, id int64) (bool, error)
}

// Options configure a Watcher.
type Options struct {
	Source   Source
	Checker  Checker
	Verifier Verifier
	Logger   logrus.FieldLogger
	Interval time.Duration
	// Batch caps how many connections one sweep probes.
	Batch int
}

// Watcher probes Active connections. Only a failed probe goes through the
// registry, so healthy connections do not flood the activity log.
type Watcher struct {
	opts Options
	log  *logrus.Entry
}

func New(opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = 15 * time.Minute
	}
	if opts.Batch <= 0 {
		opts.Batch = 50
	}
	return &Watcher{opts: opts, log: logger.Component(opts.Logger, "watcher")}
}

// Run sweeps on every tick until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.WithField("interval", w.opts.Interval.String()).Info("permission watcher started")
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			checked, revoked, err := w.Sweep(ctx)
			if err != nil {
				w.log.WithError(err).Warn("sweep failed")
				continue
			}
			if revoked > 0 {
				w.log.WithFields(logrus.Fields{"checked": checked, "revoked": revoked}).Info("sweep finished")
			}
		}
	}
}

// Sweep probes one batch and returns how many connections were checked and
// how many were moved out of Active.
func (w *Watcher) Sweep(ctx context.Context) (checked, revoked int, err error) {
	views, err := w.opts.Source.ListConnectionsByStatus(ctx, models.ConnectionActive, w.opts.Batch)
	if err != nil {
		return 0, 0, err
	}
	for _, v := range views {
		if ctx.Err() != nil {
			return checked, revoked, ctx.Err()
		}
		if v.Bot == nil || v.Channel == nil {
			continue
		}
		ok, err := w.opts.Checker.IsAdministrator(ctx, *v.Bot, *v.Channel)
		if err != nil {
			w.log.WithError(err).WithField("connection_id", v.ID).Debug("probe failed")
			continue
		}
		checked++
		if ok {
			continue
		}
		passed, err := w.opts.Verifier.Verify(ctx, v.ID)
		if err != nil {
			w.log.WithError(err).WithField("connection_id", v.ID).Warn("re-verification failed")
			continue
		}
		if !passed {
			revoked++
		}
	}
	return checked, revoked, nil
}
