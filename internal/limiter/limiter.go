package limiter

import "context"

const defaultSlots = 8

// Limiter bounds the number of in-flight completion backend calls across
// all requests. It carries no per-session state; request ordering stays
// whatever the scheduler yields.
type Limiter struct {
	slots chan struct{}
}

func New(n int) *Limiter {
	if n <= 0 {
		n = defaultSlots
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire blocks until a slot frees up or the context is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) Release() {
	<-l.slots
}
