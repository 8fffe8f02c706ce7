package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	drepo "QuantPulse/internal/domain/repository"
	"QuantPulse/internal/service/binance"
	"QuantPulse/pkg/logger"
)

var ErrEmptySymbol = errors.New("symbol is required")

// StreamManager supervises one binance.Client per subscribed symbol.
type StreamManager struct {
	cfg      binance.Config
	onTick   binance.TickHandler
	onTicker binance.TickerHandler
	metrics  drepo.Metrics
	log      *logger.Logger
	opts     []binance.Option

	root   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[string]*binance.Client
}

// NewStreamManager creates a manager whose clients deliver ticks to the
// ingestor.
func NewStreamManager(cfg binance.Config, ing *TickIngestor, metrics drepo.Metrics, log *logger.Logger, opts ...binance.Option) *StreamManager {
	var onTick binance.TickHandler
	var onTicker binance.TickerHandler
	if ing != nil {
		onTick, onTicker = ing.HandleTick, ing.HandleTicker
	}
	return NewStreamManagerWithHandlers(cfg, onTick, onTicker, metrics, log, opts...)
}

func NewStreamManagerWithHandlers(cfg binance.Config, onTick binance.TickHandler, onTicker binance.TickerHandler, metrics drepo.Metrics, log *logger.Logger, opts ...binance.Option) *StreamManager {
	if log == nil {
		log = logger.Nop()
	}
	root, cancel := context.WithCancel(context.Background())
	if metrics != nil {
		opts = append([]binance.Option{binance.WithMetrics(metrics)}, opts...)
	}
	return &StreamManager{
		cfg:      cfg,
		onTick:   onTick,
		onTicker: onTicker,
		metrics:  metrics,
		log:      log.Component("stream_manager"),
		opts:     opts,
		root:     root,
		cancel:   cancel,
		clients:  make(map[string]*binance.Client),
	}
}

func normalizeSymbol(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// Subscribe opens a feed connection for symbol unless one is already active.
// It reports whether a new connection was started.
func (m *StreamManager) Subscribe(symbol string) (bool, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return false, ErrEmptySymbol
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[symbol]; ok {
		return false, nil
	}
	c := binance.NewClient(symbol, m.cfg, m.onTick, m.onTicker, m.log, m.opts...)
	m.clients[symbol] = c
	c.Start(m.root)
	m.log.Info("subscribed", logger.String("symbol", symbol))
	return true, nil
}

// Unsubscribe tears down the connection for symbol and waits for its read
// loop to exit. It reports whether the symbol was subscribed.
func (m *StreamManager) Unsubscribe(symbol string) bool {
	symbol = normalizeSymbol(symbol)
	m.mu.Lock()
	c, ok := m.clients[symbol]
	delete(m.clients, symbol)
	m.mu.Unlock()
	if !ok {
		return false
	}
	c.Stop()
	m.log.Info("unsubscribed", logger.String("symbol", symbol))
	return true
}

// SubscribeMany subscribes symbols concurrently and returns those newly
// started.
func (m *StreamManager) SubscribeMany(ctx context.Context, symbols []string) ([]string, error) {
	started := make([]bool, len(symbols))
	g, _ := errgroup.WithContext(ctx)
	for i, s := range symbols {
		i, s := i, s
		g.Go(func() error {
			ok, err := m.Subscribe(s)
			started[i] = ok
			return err
		})
	}
	err := g.Wait()
	var out []string
	for i, ok := range started {
		if ok {
			out = append(out, normalizeSymbol(symbols[i]))
		}
	}
	return out, err
}

// UnsubscribeMany stops the given symbols concurrently and waits for all of
// them.
func (m *StreamManager) UnsubscribeMany(ctx context.Context, symbols []string) []string {
	stopped := make([]bool, len(symbols))
	var g errgroup.Group
	for i, s := range symbols {
		i, s := i, s
		g.Go(func() error {
			stopped[i] = m.Unsubscribe(s)
			return nil
		})
	}
	_ = g.Wait()
	var out []string
	for i, ok := range stopped {
		if ok {
			out = append(out, normalizeSymbol(symbols[i]))
		}
	}
	return out
}

// DisconnectAll unsubscribes every active symbol concurrently.
func (m *StreamManager) DisconnectAll(ctx context.Context) {
	syms := m.ActiveSymbols()
	if len(syms) == 0 {
		return
	}
	m.UnsubscribeMany(ctx, syms)
	m.log.Info("all streams disconnected", logger.Int("count", len(syms)))
}

// Close disconnects everything and cancels the manager's root context.
func (m *StreamManager) Close() {
	m.DisconnectAll(context.Background())
	m.cancel()
}

// ActiveSymbols returns the subscribed symbols in sorted order.
func (m *StreamManager) ActiveSymbols() []string {
	m.mu.Lock()
	out := make([]string, 0, len(m.clients))
	for s := range m.clients {
		out = append(out, s)
	}
	m.mu.Unlock()
	sort.Strings(out)
	return out
}

func (m *StreamManager) IsSubscribed(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.clients[normalizeSymbol(symbol)]
	return ok
}

// States reports the connection state of every subscribed symbol.
func (m *StreamManager) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.clients))
	for s, c := range m.clients {
		out[s] = c.State().String()
	}
	return out
}
