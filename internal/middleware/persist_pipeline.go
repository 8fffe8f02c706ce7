package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"QuantPulse/internal/domain/models"
	domrepo "QuantPulse/internal/domain/repository"
	"QuantPulse/pkg/logger"
)

// Proc is the minimal batch processor the pipeline needs.
type Proc interface {
	ProcessBatch(ctx context.Context, ticks []*models.Tick) error
}

// PersistPipeline sits between tick ingestion and the recording backend.
// It validates and optionally throttles ticks, queues them without ever
// blocking the producer, and flushes batches from a single worker with
// capped exponential backoff on failure.
type PersistPipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	log     *logger.Logger

	maxRPS       int
	queueSize    int
	batchSize    int
	batchTimeout time.Duration
	maxAttempts  int
	backoffMin   time.Duration
	backoffMax   time.Duration

	queue    chan *models.Tick
	leftover []*models.Tick

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
	cancel   context.CancelFunc
	done     chan struct{}
}

type PipelineOption func(*PersistPipeline)

// WithMaxRPS sets the max ticks per second per symbol; 0 disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *PersistPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithQueueSize sets the number of ticks held while downstream catches up.
func WithQueueSize(n int) PipelineOption {
	return func(p *PersistPipeline) {
		if n > 0 {
			p.queueSize = n
		}
	}
}

// WithBatch sets the flush size and the max time a partial batch waits.
func WithBatch(size int, timeout time.Duration) PipelineOption {
	return func(p *PersistPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if timeout > 0 {
			p.batchTimeout = timeout
		}
	}
}

// WithRetry sets flush attempts and the backoff bounds between them.
func WithRetry(attempts int, lo, hi time.Duration) PipelineOption {
	return func(p *PersistPipeline) {
		if attempts > 0 {
			p.maxAttempts = attempts
		}
		if lo > 0 {
			p.backoffMin = lo
		}
		if hi >= p.backoffMin {
			p.backoffMax = hi
		}
	}
}

func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *PersistPipeline) {
		if l != nil {
			p.log = l
		}
	}
}

func NewPersistPipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *PersistPipeline {
	p := &PersistPipeline{
		proc:         proc,
		metrics:      metrics,
		log:          logger.Nop(),
		queueSize:    10000,
		batchSize:    200,
		batchTimeout: time.Second,
		maxAttempts:  5,
		backoffMin:   50 * time.Millisecond,
		backoffMax:   2 * time.Second,
		lastSeen:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Component("persist_pipeline")
	p.queue = make(chan *models.Tick, p.queueSize)
	return p
}

// Submit validates and enqueues t. It never blocks and reports whether the
// tick was accepted.
func (p *PersistPipeline) Submit(t *models.Tick) bool {
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return false
	}
	if !p.allow(t.Symbol, time.Now()) {
		p.metrics.RecordError("pipeline_throttle")
		return false
	}
	select {
	case p.queue <- t:
		return true
	default:
		p.metrics.RecordError("pipeline_queue_full")
		return false
	}
}

// Pending returns the number of queued ticks.
func (p *PersistPipeline) Pending() int { return len(p.queue) }

// Start launches the batch flusher. Calling Start twice is a no-op.
func (p *PersistPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop halts the flusher, then drains what is already queued with a final
// bounded flush.
func (p *PersistPipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	rest := p.leftover
	p.leftover = nil
drain:
	for {
		select {
		case t := <-p.queue:
			rest = append(rest, t)
		default:
			break drain
		}
	}
	for len(rest) > 0 {
		n := min(len(rest), p.batchSize)
		if err := p.proc.ProcessBatch(ctx, rest[:n]); err != nil {
			p.metrics.RecordError("pipeline_drain")
			p.log.Warn("dropping ticks on shutdown", logger.Int("count", len(rest)), logger.Error(err))
			return
		}
		rest = rest[n:]
	}
}

func (p *PersistPipeline) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	batch := make([]*models.Tick, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		p.flush(ctx, batch)
		batch = make([]*models.Tick, 0, p.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			// Stop drains the partial batch after done is closed
			p.leftover = batch
			return
		case t := <-p.queue:
			batch = append(batch, t)
			if len(batch) >= p.batchSize {
				flush()
				resetTimer(timer, p.batchTimeout)
			}
		case <-timer.C:
			flush()
			timer.Reset(p.batchTimeout)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// flush retries a batch with exponential backoff and drops it once
// maxAttempts are exhausted.
func (p *PersistPipeline) flush(ctx context.Context, batch []*models.Tick) {
	start := time.Now()
	backoff := p.backoffMin
	for attempt := 1; ; attempt++ {
		err := p.proc.ProcessBatch(ctx, batch)
		if err == nil {
			p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
			return
		}
		p.metrics.RecordError("pipeline_flush")
		if attempt >= p.maxAttempts || ctx.Err() != nil {
			p.metrics.RecordError("pipeline_batch_drop")
			p.log.Error("dropping tick batch", logger.Int("size", len(batch)),
				logger.Int("attempts", attempt), logger.Error(err))
			return
		}
		p.log.Warn("tick batch flush failed, retrying", logger.Int("attempt", attempt),
			logger.Duration("backoff_ms", backoff), logger.Error(err))
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = time.Duration(math.Min(float64(backoff*2), float64(p.backoffMax)))
	}
}

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price < 0 || t.Quantity < 0 {
		return fmt.Errorf("negative price/quantity")
	}
	return nil
}

func (p *PersistPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
