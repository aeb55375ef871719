// Package scheduler runs the periodic reveal pass.  The poller holds no
// state between passes: each pass asks the diner service to reveal every
// week whose reveal instant has passed, so a restarted process picks up
// exactly where the last one stopped.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultInterval is the poll period used when none is configured.
const DefaultInterval = time.Minute

// LockKey is the Redis key guarding a reveal pass.
const LockKey = "diner:reveal:lock"

// Revealer performs one reveal pass.  *diner.Service implements it.
type Revealer interface {
	RevealDue(ctx context.Context, now time.Time) (int, error)
}

// Locker grants a short exclusive lease so that only one of several
// instances runs a given pass.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// PollRecorder counts passes by outcome.
type PollRecorder interface {
	Poll(outcome string)
}

// RedisLocker implements Locker with SET NX PX.  The lease is never
// released explicitly; it expires just before the next tick.
type RedisLocker struct {
	rdb *redis.Client
}

// NewRedisLocker returns a Locker on rdb, or nil when rdb is nil.
func NewRedisLocker(rdb *redis.Client) Locker {
	if rdb == nil {
		return nil
	}
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

// RevealPoller calls Revealer.RevealDue on a fixed interval.
type RevealPoller struct {
	revealer Revealer
	interval time.Duration
	locker   Locker
	metrics  PollRecorder
	now      func() time.Time
	log      *zap.Logger

	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option customises a RevealPoller.
type Option func(*RevealPoller)

// WithLocker enables the cross-instance lock; a nil locker is ignored.
func WithLocker(l Locker) Option { return func(p *RevealPoller) { p.locker = l } }

// WithMetrics records every pass.
func WithMetrics(m PollRecorder) Option { return func(p *RevealPoller) { p.metrics = m } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(p *RevealPoller) { p.now = now } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(p *RevealPoller) { p.log = l } }

// NewRevealPoller returns a poller; a non-positive interval means DefaultInterval.
func NewRevealPoller(r Revealer, interval time.Duration, opts ...Option) *RevealPoller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &RevealPoller{
		revealer: r,
		interval: interval,
		now:      time.Now,
		log:      zap.NewNop(),
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("reveal-poller")
	return p
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called.  It must be called at most once.
func (p *RevealPoller) Start(ctx context.Context) {
	p.done = make(chan struct{})
	p.log.Info("starting", zap.Duration("interval", p.interval))
	go p.loop(ctx)
}

// Stop ends the loop and waits for the running pass to finish.
func (p *RevealPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	if p.done != nil {
		<-p.done
	}
}

func (p *RevealPoller) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pass(ctx)
	for {
		select {
		case <-ticker.C:
			p.pass(ctx)
		case <-ctx.Done():
			p.log.Info("stopped", zap.Error(ctx.Err()))
			return
		case <-p.stopChan:
			p.log.Info("stopped")
			return
		}
	}
}

func (p *RevealPoller) pass(ctx context.Context) {
	// a single pass may not outlive its tick
	passCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	if _, err := p.RunOnce(passCtx); err != nil {
		p.log.Error("reveal pass failed", zap.Error(err))
	}
}

// RunOnce performs a single pass now, honouring the lock when one is
// configured.  It returns the number of registrants revealed.
func (p *RevealPoller) RunOnce(ctx context.Context) (int, error) {
	if p.locker != nil {
		ok, err := p.locker.TryLock(ctx, LockKey, p.leaseTTL())
		if err != nil {
			// a lock outage must not stop reveals; the update is idempotent
			p.log.Warn("lock unavailable, revealing anyway", zap.Error(err))
		} else if !ok {
			p.record("skipped")
			return 0, nil
		}
	}
	n, err := p.revealer.RevealDue(ctx, p.now())
	if err != nil {
		p.record("error")
		return n, err
	}
	p.record("ok")
	if n > 0 {
		p.log.Info("revealed", zap.Int("count", n))
	}
	return n, nil
}

func (p *RevealPoller) leaseTTL() time.Duration {
	return p.interval * 9 / 10
}

func (p *RevealPoller) record(outcome string) {
	if p.metrics != nil {
		p.metrics.Poll(outcome)
	}
}
