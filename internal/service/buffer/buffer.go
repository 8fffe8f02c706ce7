// Package buffer keeps a bounded, per-symbol window of recent trade ticks.
package buffer

import (
	"sort"
	"strings"
	"sync"
	"time"

	"QuantPulse/internal/domain/models"
)

const DefaultCapacity = 10000

// ClearHook is notified with the symbols whose buffers were emptied.
type ClearHook func(symbols []string)

// ring is a fixed-capacity FIFO of ticks for one symbol.
type ring struct {
	mu       sync.RWMutex
	data     []models.Tick
	head     int // index of the oldest element
	size     int
	count    int64
	lastSeen time.Time
}

func newRing(capacity int) *ring {
	return &ring{data: make([]models.Tick, capacity)}
}

func (r *ring) push(t models.Tick) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	capacity := len(r.data)
	if r.size < capacity {
		r.data[(r.head+r.size)%capacity] = t
		r.size++
	} else {
		r.data[r.head] = t
		r.head = (r.head + 1) % capacity
	}
	r.count++
	r.lastSeen = time.Now().UTC()
	return r.size
}

// snapshot copies the ring contents oldest first.
func (r *ring) snapshot() []models.Tick {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Tick, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(r.head+i)%len(r.data)]
	}
	return out
}

func (r *ring) latest() (models.Tick, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.size == 0 {
		return models.Tick{}, false
	}
	return r.data[(r.head+r.size-1)%len(r.data)], true
}

func (r *ring) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.data)
	r.head, r.size = 0, 0
	r.count, r.lastSeen = 0, time.Time{}
}

func (r *ring) stats(symbol string) models.BufferStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := models.BufferStats{Symbol: symbol, TickCount: r.count, BufferSize: r.size}
	if !r.lastSeen.IsZero() {
		ts := r.lastSeen
		st.LastTick = &ts
	}
	if r.size > 0 {
		p := r.data[(r.head+r.size-1)%len(r.data)].Price
		st.LatestPrice = &p
	}
	return st
}

// TickBuffer holds one ring per symbol. Mutation is exclusive per symbol;
// reads return copies.
type TickBuffer struct {
	capacity int

	mu    sync.RWMutex
	rings map[string]*ring

	hookMu sync.RWMutex
	hooks  []ClearHook
}

func New(capacity int) *TickBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &TickBuffer{capacity: capacity, rings: make(map[string]*ring)}
}

func (b *TickBuffer) Capacity() int { return b.capacity }

// OnClear registers a hook invoked after Clear empties buffers.
func (b *TickBuffer) OnClear(h ClearHook) {
	b.hookMu.Lock()
	b.hooks = append(b.hooks, h)
	b.hookMu.Unlock()
}

func normalize(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func (b *TickBuffer) ring(symbol string, create bool) *ring {
	b.mu.RLock()
	r, ok := b.rings[symbol]
	b.mu.RUnlock()
	if ok || !create {
		return r
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if r, ok = b.rings[symbol]; !ok {
		r = newRing(b.capacity)
		b.rings[symbol] = r
	}
	return r
}

// AddTick appends t to its symbol's buffer, evicting the oldest tick when
// full. It returns the buffer size after insertion.
func (b *TickBuffer) AddTick(t models.Tick) int {
	t.Symbol = normalize(t.Symbol)
	if t.Symbol == "" {
		return 0
	}
	return b.ring(t.Symbol, true).push(t)
}

// Query filters a GetTicks call. Zero values disable a filter; Limit keeps
// the most recent entries.
type Query struct {
	Limit int
	From  time.Time
	To    time.Time
}

// GetTicks returns a filtered copy of the symbol's ticks, oldest first.
func (b *TickBuffer) GetTicks(symbol string, q Query) []models.Tick {
	r := b.ring(normalize(symbol), false)
	if r == nil {
		return nil
	}
	ticks := r.snapshot()
	if !q.From.IsZero() || !q.To.IsZero() {
		filtered := ticks[:0]
		for _, t := range ticks {
			if !q.From.IsZero() && t.Timestamp.Before(q.From) {
				continue
			}
			if !q.To.IsZero() && t.Timestamp.After(q.To) {
				continue
			}
			filtered = append(filtered, t)
		}
		ticks = filtered
	}
	if q.Limit > 0 && len(ticks) > q.Limit {
		ticks = ticks[len(ticks)-q.Limit:]
	}
	return ticks
}

// LatestPrice returns the price of the most recent tick for symbol.
func (b *TickBuffer) LatestPrice(symbol string) (float64, bool) {
	r := b.ring(normalize(symbol), false)
	if r == nil {
		return 0, false
	}
	t, ok := r.latest()
	return t.Price, ok
}

// Clear empties the named symbol, or every symbol when none is given, and
// notifies the clear hooks.
func (b *TickBuffer) Clear(symbols ...string) []string {
	var cleared []string
	if len(symbols) == 0 {
		b.mu.RLock()
		for s, r := range b.rings {
			r.reset()
			cleared = append(cleared, s)
		}
		b.mu.RUnlock()
	} else {
		for _, s := range symbols {
			s = normalize(s)
			if r := b.ring(s, false); r != nil {
				r.reset()
				cleared = append(cleared, s)
			}
		}
	}
	sort.Strings(cleared)

	if len(cleared) > 0 {
		b.hookMu.RLock()
		hooks := append([]ClearHook(nil), b.hooks...)
		b.hookMu.RUnlock()
		for _, h := range hooks {
			h(cleared)
		}
	}
	return cleared
}

// ActiveSymbols returns symbols with a non-empty buffer, sorted.
func (b *TickBuffer) ActiveSymbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.rings))
	for s, r := range b.rings {
		r.mu.RLock()
		n := r.size
		r.mu.RUnlock()
		if n > 0 {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Size returns the number of buffered ticks for symbol.
func (b *TickBuffer) Size(symbol string) int {
	r := b.ring(normalize(symbol), false)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Stats returns per-symbol statistics. When symbol is empty every known
// symbol is included.
func (b *TickBuffer) Stats(symbol string) []models.BufferStats {
	if symbol != "" {
		s := normalize(symbol)
		r := b.ring(s, false)
		if r == nil {
			return []models.BufferStats{{Symbol: s}}
		}
		return []models.BufferStats{r.stats(s)}
	}

	b.mu.RLock()
	out := make([]models.BufferStats, 0, len(b.rings))
	for s, r := range b.rings {
		out = append(out, r.stats(s))
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
