package httpapi

import (
	"context"
	"testing"
	"time"
)

func TestTaskGroupCancel(t *testing.T) {
	g := newTaskGroup()
	started := make(chan struct{})
	g.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	if g.Active() != 1 {
		t.Fatalf("Expected 1 active task, got %d", g.Active())
	}
	if remaining := g.Cancel(time.Second); remaining != 0 {
		t.Errorf("Expected cooperative task to finish, %d remaining", remaining)
	}
	if g.Go(func(context.Context) {}) {
		t.Error("Expected Go to refuse after Cancel")
	}
}

func TestTaskGroupCancelGraceExpires(t *testing.T) {
	g := newTaskGroup()
	release := make(chan struct{})
	defer close(release)
	g.Go(func(context.Context) { <-release })

	if remaining := g.Cancel(20 * time.Millisecond); remaining != 1 {
		t.Errorf("Expected stubborn task to remain, got %d", remaining)
	}
}
