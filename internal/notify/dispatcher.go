package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher はアウトボックスを定期的に（または Wake で即時に）掃き出して Sink に渡す。
// 配信失敗はアウトボックス行の attempts/last_error にだけ残り、台帳には影響しない。
type Dispatcher struct {
	outbox      Outbox
	sink        Sink
	log         *zap.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	workers     int
	wake        chan struct{}
	now         func() time.Time

	// Run と手動起動（/ops）が同じ行を同時に配らないよう1バッチずつ流す
	mu sync.Mutex
}

type Option func(*Dispatcher)

func WithInterval(d time.Duration) Option {
	return func(x *Dispatcher) {
		if d > 0 {
			x.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(x *Dispatcher) {
		if n > 0 {
			x.batchSize = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(x *Dispatcher) {
		if n > 0 {
			x.maxAttempts = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(x *Dispatcher) {
		if n > 0 {
			x.workers = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(x *Dispatcher) {
		if l != nil {
			x.log = l
		}
	}
}

func NewDispatcher(o Outbox, s Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		outbox:      o,
		sink:        s,
		log:         zap.NewNop(),
		interval:    5 * time.Second,
		batchSize:   100,
		maxAttempts: 5,
		workers:     4,
		wake:        make(chan struct{}, 1),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Wake はコミット直後に呼ばれる。ブロックしない
func (d *Dispatcher) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Run(ctx context.Context) error {
	t := time.NewTicker(d.interval)
	defer t.Stop()

	for {
		if n, err := d.DispatchOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.log.Warn("outbox dispatch failed", zap.Error(err))
		} else if n > 0 {
			d.log.Debug("outbox dispatched", zap.Int("delivered", n))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		case <-d.wake:
		}
	}
}

// DispatchOnce は1バッチ分を配信し、配信できた件数を返す
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	recs, err := d.outbox.Pending(ctx, d.batchSize, d.maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	var delivered atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, r := range recs {
		g.Go(func() error {
			if err := d.sink.Deliver(ctx, r.Event); err != nil {
				d.log.Warn("notification delivery failed",
					zap.String("event_id", r.Event.ID),
					zap.String("type", string(r.Event.Type)),
					zap.Int("attempt", r.Attempts+1),
					zap.Error(err))
				return d.outbox.MarkFailed(ctx, r.Event.ID, err.Error())
			}
			delivered.Add(1)
			return d.outbox.MarkDelivered(ctx, r.Event.ID, d.now())
		})
	}
	if err := g.Wait(); err != nil {
		return int(delivered.Load()), fmt.Errorf("update outbox: %w", err)
	}
	return int(delivered.Load()), nil
}
