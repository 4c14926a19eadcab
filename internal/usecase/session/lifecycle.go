package usecase_session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ivanmolchanov/roomsync/internal/realtime"
)

var ErrSessionUnusable = errors.New("channel unusable for this session")

// lifecycle drives one channel binding through its state machine and
// keeps concurrent attach attempts from racing. Failed and suspended
// are terminal for the session: no automatic retry.
type lifecycle struct {
	binding realtime.Binding
	logger  *slog.Logger

	mu        sync.Mutex
	attaching bool
	waiters   []chan error

	// One-shot continuation: torn down while still attaching, detach
	// as soon as the pending attach lands so we don't leak a
	// connecting session.
	detachWhenAttached bool
	tornDown           bool
}

func newLifecycle(binding realtime.Binding, logger *slog.Logger) *lifecycle {
	return &lifecycle{
		binding: binding,
		logger:  logger,
	}
}

// attach brings the binding to attached, or reports the session
// unusable. A second caller arriving while an attach is pending waits
// for that transition instead of re-issuing the attach.
func (l *lifecycle) attach(ctx context.Context) error {
	l.mu.Lock()

	if l.tornDown {
		l.mu.Unlock()
		return ErrSessionUnusable
	}

	state := l.binding.State()
	switch {
	case state == realtime.StateAttached:
		l.mu.Unlock()
		return nil
	case state.Terminal():
		l.mu.Unlock()
		return errors.Join(ErrSessionUnusable, realtime.ErrAttachFailed)
	}

	if l.attaching {
		done := make(chan error, 1)
		l.waiters = append(l.waiters, done)
		l.mu.Unlock()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.attaching = true
	l.mu.Unlock()

	err := l.binding.Attach(ctx)

	l.mu.Lock()
	l.attaching = false
	waiters := l.waiters
	l.waiters = nil

	if err != nil {
		err = errors.Join(ErrSessionUnusable, err)
	}
	runContinuation := err == nil && l.detachWhenAttached
	l.detachWhenAttached = false
	l.mu.Unlock()

	for _, w := range waiters {
		w <- err
	}

	if runContinuation {
		l.bestEffortDetach()
		return ErrSessionUnusable
	}
	return err
}

// teardown leaves presence and detaches, best-effort. Errors are
// logged and swallowed: the session is ending either way.
func (l *lifecycle) teardown() {
	l.mu.Lock()
	l.tornDown = true
	if l.attaching {
		l.detachWhenAttached = true
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if l.binding.State() != realtime.StateAttached {
		return
	}
	l.bestEffortDetach()
}

func (l *lifecycle) bestEffortDetach() {
	ctx := context.Background()
	if err := l.binding.Presence().Leave(ctx); err != nil {
		l.logger.Warn("presence leave on teardown", slog.String("error", err.Error()))
	}
	if err := l.binding.Detach(ctx); err != nil {
		l.logger.Warn("detach on teardown", slog.String("error", err.Error()))
	}
}
