package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/recenthistory/db"
	"github.com/teranos/recenthistory/logger"
	"github.com/teranos/recenthistory/sym"
)

// PurgeFunc removes expired history.
type PurgeFunc func(ctx context.Context) error

// Purger runs a PurgeFunc on a fixed interval and on demand, keeping
// retention work off the Save path.
type Purger struct {
	purge    PurgeFunc
	interval time.Duration
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	trigger chan struct{}
	running atomic.Bool
	runs    atomic.Int64
}

// NewPurger creates a stopped purger. A non-positive interval falls back
// to DefaultPurgeInterval.
func NewPurger(purge PurgeFunc, interval time.Duration, log *zap.SugaredLogger) *Purger {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	if log == nil {
		log = logger.ComponentLogger("history.purger")
	}
	return &Purger{
		purge:    purge,
		interval: interval,
		logger:   log,
		trigger:  make(chan struct{}, 1),
	}
}

// Start begins the purge loop. It is a no-op when already running.
func (p *Purger) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running.Load() {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running.Store(true)
	p.wg.Add(1)
	go p.run()
	p.logger.Infow("History purger started", "interval", p.interval, "symbol", sym.AT)
}

// Stop ends the loop and waits for an in-flight purge to return.
func (p *Purger) Stop() {
	p.mu.Lock()
	if !p.running.Load() {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Infow("History purger stopped", "runs", p.runs.Load())
}

// Running reports whether the loop is active.
func (p *Purger) Running() bool {
	return p.running.Load()
}

// Runs is the number of purge passes executed so far.
func (p *Purger) Runs() int64 {
	return p.runs.Load()
}

// Trigger requests a purge without waiting for it. Requests made while one
// is already pending are coalesced. It returns false when the loop is not
// running and the caller must purge itself.
func (p *Purger) Trigger() bool {
	if !p.running.Load() {
		return false
	}
	select {
	case p.trigger <- struct{}{}:
	default:
	}
	return true
}

func (p *Purger) run() {
	defer p.wg.Done()
	defer p.running.Store(false)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		case <-p.trigger:
		}

		if err := p.purge(p.ctx); err != nil {
			if db.IsDatabaseClosed(err) {
				p.logger.Debugw("Database closed, stopping history purger")
				return
			}
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warnw("History purge failed", logger.FieldError, err)
		}
		p.runs.Add(1)
	}
}
