// Package shutdown coordinates graceful teardown: callers register a named
// callback with its own timeout, and WaitForShutdown blocks until a signal
// (or a manual trigger) fires all of them.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/BullionBear/aggbook/internal/xlog"
)

type callback struct {
	name    string
	fn      func()
	timeout time.Duration
}

// Shutdown holds the registered callbacks for one process.
type Shutdown struct {
	log       xlog.Logger
	mu        sync.Mutex
	callbacks []callback
	triggered chan struct{}
	once      sync.Once
}

// New creates a Shutdown coordinator that logs through log.
func New(log xlog.Logger) *Shutdown {
	return &Shutdown{log: log, triggered: make(chan struct{})}
}

// HookShutdownCallback registers fn to run on shutdown. If timeout is
// positive, fn is given that long to return before it is abandoned and
// shutdown proceeds without it.
func (s *Shutdown) HookShutdownCallback(name string, fn func(), timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, callback{name: name, fn: fn, timeout: timeout})
}

// WaitForShutdown blocks until one of sigs arrives or ShutdownNow is called,
// then runs every registered callback and returns once they have all
// finished or timed out.
func (s *Shutdown) WaitForShutdown(sigs ...os.Signal) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, sigs...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.log.Info("shutdown signal received", xlog.Any("signal", sig))
	case <-s.triggered:
		s.log.Info("shutdown triggered programmatically")
	}
	s.runCallbacks()
}

// ShutdownNow triggers shutdown without waiting for a signal. Safe to call
// more than once.
func (s *Shutdown) ShutdownNow() {
	s.once.Do(func() { close(s.triggered) })
}

func (s *Shutdown) runCallbacks() {
	s.mu.Lock()
	cbs := append([]callback(nil), s.callbacks...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, cb := range cbs {
		wg.Add(1)
		go func(cb callback) {
			defer wg.Done()
			s.runOne(cb)
		}(cb)
	}
	wg.Wait()
}

func (s *Shutdown) runOne(cb callback) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		cb.fn()
	}()

	if cb.timeout <= 0 {
		<-done
		s.log.Info("shutdown callback finished", xlog.String("name", cb.name))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cb.timeout)
	defer cancel()
	select {
	case <-done:
		s.log.Info("shutdown callback finished", xlog.String("name", cb.name))
	case <-ctx.Done():
		s.log.Error("shutdown callback timed out", xlog.String("name", cb.name), xlog.Duration("timeout", cb.timeout))
	}
}
