package supervisor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	logx "relaybot/pkg/logx"
)

// Supervisor manages goroutines tied to a shared context:
// named goroutines (for logging), panic recovery, and a
// timeout-aware graceful stop.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log logx.Logger
	wg  sync.WaitGroup
}

func New(ctx context.Context, log logx.Logger) *Supervisor {
	if ctx == nil {
		ctx = context.Background()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	c, cancel := context.WithCancel(ctx)
	return &Supervisor{ctx: c, cancel: cancel, log: log}
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Go starts fn under the supervisor. Panics are recovered and logged;
// they never take down the process.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("goroutine panicked",
					logx.String("goroutine", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		fn(s.ctx)
	}()
}

// GoRestart runs fn in a restart loop until the supervisor context ends.
// A run that returns (or panics) while the context is still live is
// restarted after backoff.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context), backoff time.Duration) {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	s.Go(name, func(ctx context.Context) {
		for {
			func() {
				defer func() {
					if r := recover(); r != nil {
						s.log.Error("goroutine panicked; restarting",
							logx.String("goroutine", name),
							logx.Any("panic", r),
							logx.String("stack", string(debug.Stack())),
						)
					}
				}()
				fn(ctx)
			}()
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}
	})
}

func (s *Supervisor) Cancel() { s.cancel() }

// Wait blocks until all goroutines exit or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
