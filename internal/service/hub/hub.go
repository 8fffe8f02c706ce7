// Package hub is the broadcast registry for live trade, ticker and alert
// events.
package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	drepo "QuantPulse/internal/domain/repository"
	"QuantPulse/pkg/logger"
)

// Subscriber receives serialized events. A Send error unregisters the
// subscriber and closes it.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, msg []byte) error
	Close() error
}

const (
	defaultQueueSize   = 4096
	defaultSendTimeout = 2 * time.Second
)

// Hub fans published events out to every registered subscriber. Publish
// never blocks the caller; a single dispatcher delivers queued events in
// publish order.
type Hub struct {
	log         *logger.Logger
	metrics     drepo.Metrics
	sendTimeout time.Duration

	mu   sync.RWMutex
	subs map[string]Subscriber

	queue chan []byte

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(metrics drepo.Metrics, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		log:         log.Component("hub"),
		metrics:     metrics,
		sendTimeout: defaultSendTimeout,
		subs:        make(map[string]Subscriber),
		queue:       make(chan []byte, defaultQueueSize),
	}
}

// Subscribe registers s, replacing any subscriber with the same id.
func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	old := h.subs[s.ID()]
	h.subs[s.ID()] = s
	n := len(h.subs)
	h.mu.Unlock()
	if old != nil && old != s {
		_ = old.Close()
	}
	h.log.Info("subscriber added", logger.String("id", s.ID()), logger.Int("total", n))
}

// Unsubscribe removes and closes the subscriber with id.
func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	s, ok := h.subs[id]
	delete(h.subs, id)
	n := len(h.subs)
	h.mu.Unlock()
	if !ok {
		return false
	}
	_ = s.Close()
	h.log.Info("subscriber removed", logger.String("id", id), logger.Int("total", n))
	return true
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) IDs() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.subs))
	for id := range h.subs {
		out = append(out, id)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Publish serializes event and queues it for delivery. Events are dropped
// when the queue is full.
func (h *Hub) Publish(_ context.Context, event any) {
	msg, err := json.Marshal(event)
	if err != nil {
		h.recordError("hub_marshal")
		h.log.Error("hub: marshal event", logger.Error(err))
		return
	}
	select {
	case h.queue <- msg:
	default:
		h.recordError("hub_queue_full")
	}
}

// Broadcast delivers msg to every subscriber concurrently, waits for all
// sends, and removes the subscribers that failed. It returns the number of
// successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, msg []byte) int {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	if len(subs) == 0 {
		return 0
	}

	failed := make([]bool, len(subs))
	var g errgroup.Group
	for i, s := range subs {
		i, s := i, s
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
			defer cancel()
			if err := s.Send(sctx, msg); err != nil {
				failed[i] = true
				h.log.Debug("hub: send failed", logger.String("id", s.ID()), logger.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	delivered := 0
	for i, s := range subs {
		if !failed[i] {
			delivered++
			continue
		}
		h.recordError("hub_send")
		h.removeIfSame(s)
	}
	return delivered
}

// removeIfSame drops s unless it was already replaced under the same id.
func (h *Hub) removeIfSame(s Subscriber) {
	h.mu.Lock()
	cur, ok := h.subs[s.ID()]
	if ok && cur == s {
		delete(h.subs, s.ID())
	}
	h.mu.Unlock()
	if ok && cur == s {
		_ = s.Close()
		h.log.Info("subscriber dropped after failed send", logger.String("id", s.ID()))
	}
}

// Start launches the dispatcher. Calling Start twice is a no-op.
func (h *Hub) Start(ctx context.Context) {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-h.queue:
				h.Broadcast(ctx, msg)
			}
		}
	}(h.done)
}

// Stop halts the dispatcher and closes every subscriber.
func (h *Hub) Stop() {
	h.runMu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.runMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]Subscriber)
	h.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
}

func (h *Hub) recordError(kind string) {
	if h.metrics != nil {
		h.metrics.RecordError(kind)
	}
}
