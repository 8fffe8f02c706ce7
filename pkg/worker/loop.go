// Package worker provides supervised background loops that can be stopped
// and joined.
package worker

import (
	"context"
	"sync"
	"time"
)

// Loop runs a function on a fixed interval until stopped. A Loop may be
// started again after Stop returns.
type Loop struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start launches fn every interval. It reports false without doing anything
// if the loop is already running. When immediate is true fn runs once before
// the first tick.
func (l *Loop) Start(ctx context.Context, interval time.Duration, immediate bool, fn func(ctx context.Context)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go func() {
		defer close(done)
		if immediate {
			fn(ctx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
	return true
}

// Stop cancels the loop and waits for an in-flight iteration to return.
// Concurrent callers all wait. It is safe to call on a loop that is not
// running.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	l.mu.Lock()
	if l.done == done {
		l.cancel, l.done = nil, nil
	}
	l.mu.Unlock()
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}
