package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qtosh1/botlyhub/internal/logger"
	"github.com/qtosh1/botlyhub/internal/models"
)

// Sink receives drained entries.
type Sink interface {
	InsertLog(ctx context.Context, entry models.BotLog) (*models.BotLog, error)
}

// DrainerOptions configure a Drainer.
type DrainerOptions struct {
	Queue     *Queue
	Sink      Sink
	Logger    logrus.FieldLogger
	Interval  time.Duration
	BatchSize int
}

// Drainer periodically moves spooled entries back into the store.
type Drainer struct {
	opts    DrainerOptions
	log     *logrus.Entry
	closing chan struct{}
	closed  chan struct{}
	once    sync.Once
	started bool
}

// NewDrainer creates a drainer. Call Start to run it.
func NewDrainer(opts DrainerOptions) *Drainer {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	return &Drainer{
		opts:    opts,
		log:     logger.Component(opts.Logger, "outbox"),
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Start launches the drain loop.
func (d *Drainer) Start(ctx context.Context) {
	if d.started {
		return
	}
	d.started = true
	go d.loop(ctx)
}

// Stop requests shutdown and waits for the loop to exit.
func (d *Drainer) Stop() {
	d.once.Do(func() { close(d.closing) })
	if d.started {
		<-d.closed
	}
}

func (d *Drainer) loop(ctx context.Context) {
	d.log.Info("outbox drainer started")
	defer func() {
		close(d.closed)
		d.log.Info("outbox drainer stopped")
	}()
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.closing:
			return
		case <-ticker.C:
		}
		n, err := d.DrainOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.log.WithError(err).Warn("outbox drain failed")
			continue
		}
		if n > 0 {
			d.log.WithField("delivered", n).Info("outbox entries delivered")
		}
	}
}

// DrainOnce delivers one batch and returns how many entries were written.
// Delivery stops at the first failure so ordering is kept.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	items, err := d.opts.Queue.Peek(d.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	delivered := make([]string, 0, len(items))
	var sinkErr error
	for _, it := range items {
		if _, err := d.opts.Sink.InsertLog(ctx, it.Entry); err != nil {
			sinkErr = err
			break
		}
		delivered = append(delivered, it.Key)
	}
	if err := d.opts.Queue.Ack(delivered...); err != nil {
		return 0, err
	}
	return len(delivered), sinkErr
}
