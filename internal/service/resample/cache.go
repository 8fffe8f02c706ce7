package resample

import (
	"context"
	"fmt"
	"sync"
	"time"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/service/buffer"
	"QuantPulse/pkg/logger"
	"QuantPulse/pkg/worker"
)

// TickSource is the read side of the tick buffer.
type TickSource interface {
	GetTicks(symbol string, q buffer.Query) []models.Tick
	ActiveSymbols() []string
}

type key struct {
	symbol string
	tf     drepo.Timeframe
}

// entry is never mutated after it is stored; refreshes swap in a new one.
type entry struct {
	candles []models.Candle
	builtAt time.Time
}

type Config struct {
	Timeframes []drepo.Timeframe
	Interval   time.Duration // warm loop period
	TTL        time.Duration // 0 keeps entries until refreshed or invalidated
}

// Cache serves OHLCV candles per (symbol, timeframe) and keeps them warm in
// the background.
type Cache struct {
	src     TickSource
	cfg     Config
	log     *logger.Logger
	metrics drepo.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	entries map[key]*entry
	gens    map[string]uint64 // bumped per symbol by Invalidate

	loop worker.Loop
}

func NewCache(src TickSource, cfg Config, metrics drepo.Metrics, log *logger.Logger) *Cache {
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []drepo.Timeframe{drepo.TF1s, drepo.TF1m, drepo.TF5m}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Cache{
		src:     src,
		cfg:     cfg,
		log:     log.Component("resample"),
		metrics: metrics,
		now:     time.Now,
		entries: make(map[key]*entry),
		gens:    make(map[string]uint64),
	}
}

// Query filters a GetOHLCV result.
type Query struct {
	Limit int
	From  time.Time
	To    time.Time
}

// GetOHLCV returns candles for symbol at tf. A fresh cached entry is reused
// unless force is set; otherwise the buffer is resampled and the entry
// replaced. The returned slice is the caller's to keep.
func (c *Cache) GetOHLCV(symbol string, tf drepo.Timeframe, q Query, force bool) ([]models.Candle, error) {
	if !drepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe %q", tf)
	}
	k := key{symbol: normalize(symbol), tf: tf}

	var e *entry
	if !force {
		e = c.lookup(k)
	}
	if e == nil {
		e = c.rebuild(k)
	}
	return Filter(e.candles, q.From, q.To, q.Limit), nil
}

func (c *Cache) lookup(k key) *entry {
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	if c.cfg.TTL > 0 && c.now().Sub(e.builtAt) > c.cfg.TTL {
		return nil
	}
	return e
}

// rebuild resamples outside the lock and swaps the finished entry in. An
// Invalidate that lands while the ticks are being read wins: the result is
// still returned to the caller but not cached.
func (c *Cache) rebuild(k key) *entry {
	start := time.Now()
	c.mu.RLock()
	gen := c.gens[k.symbol]
	c.mu.RUnlock()

	candles := OHLCV(c.src.GetTicks(k.symbol, buffer.Query{}), k.tf.Duration())
	e := &entry{candles: candles, builtAt: c.now()}

	c.mu.Lock()
	if c.gens[k.symbol] == gen {
		c.entries[k] = e
	}
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordLatency("resample", time.Since(start).Seconds())
	}
	return e
}

// CloseSeries returns the most recent limit close prices of symbol at tf,
// resampled from the current buffer contents.
func (c *Cache) CloseSeries(_ context.Context, symbol string, tf drepo.Timeframe, limit int) ([]models.PricePoint, error) {
	candles, err := c.GetOHLCV(symbol, tf, Query{Limit: limit}, true)
	if err != nil {
		return nil, err
	}
	out := make([]models.PricePoint, len(candles))
	for i, cd := range candles {
		out[i] = models.PricePoint{Timestamp: cd.Timestamp, Close: cd.Close}
	}
	return out, nil
}

// Invalidate drops every cached timeframe of the given symbols.
func (c *Cache) Invalidate(symbols []string) {
	drop := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		drop[normalize(s)] = true
	}
	c.mu.Lock()
	for s := range drop {
		c.gens[s]++
	}
	for k := range c.entries {
		if drop[k.symbol] {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	c.log.Debug("cache invalidated", logger.Strings("symbols", symbols))
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Refresh re-resamples every active symbol across the configured timeframes.
func (c *Cache) Refresh(ctx context.Context) {
	syms := c.src.ActiveSymbols()
	for _, s := range syms {
		for _, tf := range c.cfg.Timeframes {
			if ctx.Err() != nil {
				return
			}
			c.rebuild(key{symbol: s, tf: tf})
		}
	}
	if len(syms) > 0 {
		c.log.Debug("resample cache refreshed",
			logger.Int("symbols", len(syms)), logger.Int("timeframes", len(c.cfg.Timeframes)))
	}
}

// Start launches the periodic refresh loop.
func (c *Cache) Start(ctx context.Context) {
	if !c.loop.Start(ctx, c.cfg.Interval, false, c.Refresh) {
		c.log.Warn("resample loop already running")
		return
	}
	c.log.Info("resample loop started", logger.Duration("interval_ms", c.cfg.Interval))
}

// Stop halts the refresh loop and waits for an in-flight pass.
func (c *Cache) Stop() {
	c.loop.Stop()
}
