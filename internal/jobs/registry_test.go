package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterTwiceFails(t *testing.T) {
	r := NewRegistry(nil)

	if _, err := r.Register("job-1"); err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}
	_, err := r.Register("job-1")
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("Expected ErrAlreadyRegistered, got %v", err)
	}
	if _, err := r.Register(""); !errors.Is(err, ErrEmptyJobID) {
		t.Fatalf("Expected ErrEmptyJobID, got %v", err)
	}
}

func TestNormalRoundTrip(t *testing.T) {
	r := NewRegistry(nil)
	h, err := r.Register("job-ok")
	if err != nil {
		t.Fatalf("Failed to register job: %v", err)
	}

	go func() {
		time.Sleep(5 * time.Millisecond)
		r.MarkRunning("job-ok")
		r.Complete("job-ok", "ok")
	}()

	out, err := r.Await(context.Background(), h, time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if out.Status != StatusSuccess {
		t.Errorf("Expected status success, got %s", out.Status)
	}
	if out.Result != "ok" {
		t.Errorf("Expected result ok, got %v", out.Result)
	}
}

func TestTimeoutThenLateCompletion(t *testing.T) {
	r := NewRegistry(nil)
	h, _ := r.Register("job-late")

	late := make(chan bool, 1)
	go func() {
		time.Sleep(50 * time.Millisecond)
		late <- r.Complete("job-late", "too late")
	}()

	out, err := r.Await(context.Background(), h, 10*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("Expected ErrWaitTimeout, got %v", err)
	}
	if out.Status != StatusCancelled {
		t.Errorf("Expected cancelled after timeout, got %s", out.Status)
	}

	if applied := <-late; applied {
		t.Error("Late completion should be ignored")
	}
	if status, _ := r.Status("job-late"); status != StatusCancelled {
		t.Errorf("Expected status to remain cancelled, got %s", status)
	}
}

func TestAwaitContextCancel(t *testing.T) {
	r := NewRegistry(nil)
	h, _ := r.Register("job-ctx")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Await(ctx, h, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if out.Status != StatusCancelled {
		t.Errorf("Expected cancelled, got %s", out.Status)
	}
}

func TestAtMostOneTerminalWrite(t *testing.T) {
	for i := 0; i < 50; i++ {
		r := NewRegistry(nil)
		h, _ := r.Register("race")

		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		writers := []func() bool{
			func() bool { return r.Complete("race", "done") },
			func() bool { return r.Fail("race", "boom") },
			func() bool { return r.Cancel("race") },
			func() bool { return r.Complete("race", "again") },
		}
		for _, w := range writers {
			wg.Add(1)
			go func(write func() bool) {
				defer wg.Done()
				<-start
				if write() {
					wins.Add(1)
				}
			}(w)
		}
		close(start)
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Fatalf("Expected exactly one effective write, got %d", got)
		}
		select {
		case <-h.Done():
		default:
			t.Fatal("Expected handle to be signalled")
		}
	}
}

func TestMarkRunningOnlyFromPending(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("job")

	if !r.MarkRunning("job") {
		t.Fatal("Expected pending -> running to succeed")
	}
	if r.MarkRunning("job") {
		t.Error("Expected second MarkRunning to fail")
	}
	r.Complete("job", nil)
	if r.MarkRunning("job") {
		t.Error("Expected MarkRunning on a finished job to fail")
	}
	if r.MarkRunning("missing") {
		t.Error("Expected MarkRunning on an unknown job to fail")
	}
}

func TestCancelledJobCannotStart(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("job")
	r.Cancel("job")

	if r.MarkRunning("job") {
		t.Error("Cancelled job should not transition to running")
	}
}

func TestDiscardIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("job")

	r.Discard("job")
	r.Discard("job")

	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
	if r.Complete("job", "x") {
		t.Error("Completing a discarded job should be a no-op")
	}
	if _, err := r.Register("job"); err != nil {
		t.Errorf("Expected id to be reusable after discard: %v", err)
	}
}

func TestAwaitAfterDiscardStillTimesOut(t *testing.T) {
	r := NewRegistry(nil)
	h, _ := r.Register("job")
	r.Reset()

	_, err := r.Await(context.Background(), h, 10*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("Expected reset job to hit its own timeout, got %v", err)
	}
}

func TestCleanup(t *testing.T) {
	r := NewRegistry(nil)
	now := time.Now()
	r.now = func() time.Time { return now.Add(-time.Hour) }
	r.Register("old-done")
	r.Complete("old-done", "x")
	oldPending, _ := r.Register("old-pending")
	r.Register("old-running")
	r.MarkRunning("old-running")
	r.now = func() time.Time { return now }
	r.Register("fresh")
	r.Fail("fresh", "boom")

	removed := r.Cleanup(30 * time.Minute)
	if removed != 1 {
		t.Fatalf("Expected 1 stale job removed, got %d", removed)
	}
	if _, ok := r.Status("old-done"); ok {
		t.Error("Expected old finished job to be removed")
	}
	for _, id := range []string{"old-pending", "old-running", "fresh"} {
		if _, ok := r.Status(id); !ok {
			t.Errorf("Expected %s to remain", id)
		}
	}
	select {
	case <-oldPending.Done():
		t.Error("Cleanup must not finish an in-flight job")
	default:
	}
}

func TestSweeperLeavesUnboundedWaitAlone(t *testing.T) {
	r := NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.RunSweeper(ctx, time.Millisecond, time.Millisecond)

	h, _ := r.Register("slow")
	go func() {
		time.Sleep(50 * time.Millisecond)
		r.Complete("slow", "ok")
	}()

	out, err := r.Await(context.Background(), h, 0)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if out.Status != StatusSuccess || out.Result != "ok" {
		t.Errorf("Expected success with ok, got %+v", out)
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	r := NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.RunSweeper(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sweeper did not stop")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("Duplicate id %s", id)
		}
		seen[id] = true
	}
}
