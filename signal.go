package guard

import (
	"context"
	"os"
	ossignal "os/signal" // rename so we can have function args named 'signal'
	"sync"

	"golang.org/x/exp/slices"
)

// SignalManager runs callbacks when a signal is triggered. Signals are arbitrary comparable
// values; [os.Signal] values are additionally forwarded from the operating system once anything
// registers interest in them.
//
// Each signal triggers at most once. Callbacks run in the reverse order of registration, and the
// first error returned by a callback prevents the remaining ones from running.
type SignalManager struct {
	mu      sync.Mutex
	signals map[any]*signalState
	stopped bool
}

type signalState struct {
	ctx    context.Context
	cancel context.CancelFunc

	callbacks []func(context.Context) error
	cleanup   func()
	triggered bool
}

func NewSignalManager() *SignalManager {
	return &SignalManager{
		signals: make(map[any]*signalState),
	}
}

// must be called with m.mu held
func (m *SignalManager) state(signal any) *signalState {
	s, ok := m.signals[signal]
	if !ok {
		s = &signalState{}
		m.signals[signal] = s
	}

	if sig, isOS := signal.(os.Signal); isOS && !s.triggered && s.cleanup == nil {
		ch := make(chan os.Signal, 1)
		ossignal.Notify(ch, sig)
		s.cleanup = func() {
			ossignal.Stop(ch)
			close(ch)
		}
		go func() {
			for range ch {
				_ = m.Trigger(signal, context.Background())
			}
		}()
	}

	return s
}

// On registers callbacks to run when signal is triggered.
//
// If the signal has already been triggered, the callbacks are run immediately with ctx, and the
// first error is returned. On does nothing after [SignalManager.Stop].
func (m *SignalManager) On(signal any, ctx context.Context, callbacks ...func(context.Context) error) error {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return nil
	}

	s := m.state(signal)
	if s.triggered {
		m.mu.Unlock()
		return runReversed(ctx, callbacks)
	}

	s.callbacks = append(s.callbacks, callbacks...)
	m.mu.Unlock()
	return nil
}

var canceledContext = func() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}()

// Context returns a context that is canceled when signal is triggered, or when the manager is
// stopped.
func (m *SignalManager) Context(signal any) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return canceledContext
	}

	s := m.state(signal)
	if s.triggered {
		return canceledContext
	} else if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	return s.ctx
}

// Trigger fires the signal, running its callbacks with ctx. Triggering a signal a second time does
// nothing and returns nil.
func (m *SignalManager) Trigger(signal any, ctx context.Context) error {
	m.mu.Lock()

	if m.stopped {
		m.mu.Unlock()
		return nil
	}

	s := m.state(signal)
	if s.triggered {
		m.mu.Unlock()
		return nil
	}

	s.triggered = true
	if s.cancel != nil {
		s.cancel()
	}

	fs := s.callbacks
	s.callbacks = nil

	// callbacks may be reentrant, so they run without the lock
	m.mu.Unlock()
	return runReversed(ctx, fs)
}

// Triggered reports whether the signal has been triggered.
func (m *SignalManager) Triggered(signal any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signals[signal]
	return ok && s.triggered
}

// Stop releases any OS signal forwarding and cancels all contexts returned by
// [SignalManager.Context]. Callbacks that have not run are discarded.
func (m *SignalManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true

	for _, s := range m.signals {
		if s.cleanup != nil {
			s.cleanup()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.callbacks = nil
	}
}

func runReversed(ctx context.Context, callbacks []func(context.Context) error) error {
	callbacks = slices.Clone(callbacks)
	for i := len(callbacks) - 1; i >= 0; i -= 1 {
		if err := callbacks[i](ctx); err != nil {
			return err
		}
	}
	return nil
}
