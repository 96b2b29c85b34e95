package httpapi

import (
	"context"
	"sync"
	"time"
)

// taskGroup tracks goroutines started for side-channel requests so shutdown
// can cancel them
type taskGroup struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	active int
	closed bool
}

func newTaskGroup() *taskGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &taskGroup{ctx: ctx, cancel: cancel}
}

// Go runs fn in a goroutine. It returns false once the group is cancelled.
func (g *taskGroup) Go(fn func(ctx context.Context)) bool {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return false
	}
	g.active++
	g.wg.Add(1)
	g.mu.Unlock()

	go func() {
		defer func() {
			g.mu.Lock()
			g.active--
			g.mu.Unlock()
			g.wg.Done()
		}()
		fn(g.ctx)
	}()
	return true
}

// Active returns the number of running tasks
func (g *taskGroup) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Cancel stops accepting tasks, cancels the running ones and waits up to
// grace. It returns the number still running afterwards.
func (g *taskGroup) Cancel(grace time.Duration) int {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return 0
	case <-time.After(grace):
		return g.Active()
	}
}
