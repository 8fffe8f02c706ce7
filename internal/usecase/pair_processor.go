package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"QuantPulse/internal/domain/models"
	drepo "QuantPulse/internal/domain/repository"
	dsvc "QuantPulse/internal/domain/service"
	"QuantPulse/internal/service/cache"
	"QuantPulse/pkg/logger"
	"QuantPulse/pkg/worker"
)

const analyticsKeyPrefix = "analytics:"

// SymbolLister reports the symbols currently streaming.
type SymbolLister interface {
	ActiveSymbols() []string
}

type PairProcessorConfig struct {
	Interval  time.Duration
	TTL       time.Duration
	Timeframe drepo.Timeframe
	Window    int
	Method    string
}

// PairProcessor periodically recomputes analytics for every pair of active
// symbols and keeps the latest snapshot per pair in a cache.
type PairProcessor struct {
	symbols  SymbolLister
	analyzer dsvc.PairAnalyzer
	store    cache.BytesCache
	cfg      PairProcessorConfig
	metrics  drepo.Metrics
	log      *logger.Logger

	loop worker.Loop
}

func NewPairProcessor(symbols SymbolLister, analyzer dsvc.PairAnalyzer, store cache.BytesCache, cfg PairProcessorConfig, metrics drepo.Metrics, log *logger.Logger) *PairProcessor {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 3 * cfg.Interval
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = drepo.TF1m
	}
	if cfg.Window < 2 {
		cfg.Window = 60
	}
	if cfg.Method == "" {
		cfg.Method = "OLS"
	}
	return &PairProcessor{
		symbols:  symbols,
		analyzer: analyzer,
		store:    store,
		cfg:      cfg,
		metrics:  metrics,
		log:      log.Component("pair_processor"),
	}
}

// Pairs returns "A-B" for every unordered pair of symbols, A < B.
func Pairs(symbols []string) []string {
	uniq := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s = normalizeSymbol(s); s != "" {
			uniq[s] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(uniq))
	for s := range uniq {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	var out []string
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			out = append(out, sorted[i]+"-"+sorted[j])
		}
	}
	return out
}

// ProcessOnce computes and stores analytics for every current pair and
// returns how many snapshots were written.
func (p *PairProcessor) ProcessOnce(ctx context.Context) int {
	start := time.Now()
	stored := 0
	for _, pair := range Pairs(p.symbols.ActiveSymbols()) {
		if ctx.Err() != nil {
			break
		}
		res := p.analyzer.PairAnalytics(ctx, pair, p.cfg.Timeframe, p.cfg.Window, p.cfg.Method)
		if res.HasError() {
			p.log.Debug("pair analytics failed", logger.String("pair", pair), logger.String("error", res.Error))
			p.recordError("pair_analytics")
			continue
		}
		if res.Empty() {
			continue
		}
		b, err := json.Marshal(res)
		if err != nil {
			p.recordError("pair_marshal")
			continue
		}
		if err := p.store.SetBytes(ctx, analyticsKeyPrefix+pair, b, p.cfg.TTL); err != nil {
			p.log.Warn("store pair analytics", logger.String("pair", pair), logger.Error(err))
			p.recordError("pair_cache")
			continue
		}
		stored++
	}
	if p.metrics != nil {
		p.metrics.RecordLatency("pair_processor", time.Since(start).Seconds())
	}
	return stored
}

// Latest returns the cached snapshot for pair. ok is false when no fresh
// snapshot exists.
func (p *PairProcessor) Latest(ctx context.Context, pair string) (models.PairAnalytics, bool, error) {
	var out models.PairAnalytics
	b, ok, err := p.store.GetBytes(ctx, analyticsKeyPrefix+strings.ToUpper(strings.TrimSpace(pair)))
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, false, fmt.Errorf("decode cached analytics: %w", err)
	}
	return out, true, nil
}

func (p *PairProcessor) Start(ctx context.Context) {
	if !p.loop.Start(ctx, p.cfg.Interval, true, func(ctx context.Context) { p.ProcessOnce(ctx) }) {
		return
	}
	p.log.Info("pair processor started", logger.Duration("interval_ms", p.cfg.Interval))
}

func (p *PairProcessor) Stop() {
	if !p.loop.Running() {
		return
	}
	p.loop.Stop()
	p.log.Info("pair processor stopped")
}

func (p *PairProcessor) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}
