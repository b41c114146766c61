package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jonguttman/MasterStat/internal/metrics"
	"github.com/jonguttman/MasterStat/internal/model"
)

// DefaultInterval is the acquisition cadence. History gap detection assumes
// samples land roughly this far apart.
const DefaultInterval = 60 * time.Second

// Sampler produces a normalized device status. Implemented by the
// SmartThings client; tests substitute a fake.
type Sampler interface {
	Status(ctx context.Context) (*model.Status, error)
}

// Recorder receives each successful sample. Implemented by store.Store.
type Recorder interface {
	Append(model.Sample)
}

// Poller drives the fixed-interval acquisition loop. A failed cycle is
// logged and skipped; the loop never dies on a remote error.
type Poller struct {
	sampler  Sampler
	recorder Recorder
	cache    *Cache
	interval time.Duration
	logger   *zap.Logger
	onSample func(model.Sample)
	now      func() time.Time
}

// New builds a poller. interval <= 0 selects DefaultInterval.
func New(sampler Sampler, recorder Recorder, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		sampler:  sampler,
		recorder: recorder,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// OnSample registers a hook invoked after each recorded sample, outside the
// store lock. Used to feed live subscribers.
func (p *Poller) OnSample(fn func(model.Sample)) { p.onSample = fn }

// FeedCache registers a read cache to refresh on every successful cycle,
// so a poll that just fetched the device also serves the next reads.
func (p *Poller) FeedCache(c *Cache) { p.cache = c }

// Run samples once immediately, then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started", zap.Duration("interval", p.interval))
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	start := p.now()
	st, err := p.sampler.Status(ctx)
	metrics.PollDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollCyclesTotal.WithLabelValues("error").Inc()
		p.logger.Warn("poll cycle failed", zap.Error(err))
		return
	}
	metrics.PollCyclesTotal.WithLabelValues("ok").Inc()

	if p.cache != nil {
		p.cache.Set(st)
	}
	sample := model.SampleFromStatus(st, start)
	p.recorder.Append(sample)
	if p.onSample != nil {
		p.onSample(sample)
	}
}
