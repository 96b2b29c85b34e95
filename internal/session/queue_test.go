package session

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func msg(i int) Message {
	return Message{Event: "message", Data: []byte(fmt.Sprintf("%d", i))}
}

func TestQueue_DropCoalescing(t *testing.T) {
	const capacity, pushes = 5, 12
	q := newQueue("s", capacity, time.Now)

	for i := 0; i < pushes; i++ {
		q.Push(msg(i))
	}

	notice, ok := q.TakeDropNotice()
	if !ok {
		t.Fatal("Expected a drop notice")
	}
	if notice.Count != pushes-capacity {
		t.Errorf("Expected drop count %d, got %d", pushes-capacity, notice.Count)
	}
	if _, again := q.TakeDropNotice(); again {
		t.Error("Drop notice should be surfaced exactly once")
	}

	got := q.Drain()
	if len(got) != capacity {
		t.Fatalf("Expected %d retained messages, got %d", capacity, len(got))
	}
	for i, m := range got {
		if want := fmt.Sprintf("%d", pushes-capacity+i); string(m.Data) != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, m.Data)
		}
	}
}

func TestQueue_NewDropsAfterNoticeStartFreshCount(t *testing.T) {
	q := newQueue("s", 1, time.Now)
	q.Push(msg(0))
	q.Push(msg(1))
	q.TakeDropNotice()

	q.Push(msg(2))
	q.Push(msg(3))
	notice, ok := q.TakeDropNotice()
	if !ok || notice.Count != 2 {
		t.Errorf("Expected a fresh notice of 2, got %+v ok=%v", notice, ok)
	}
	if q.TotalDropped() != 3 {
		t.Errorf("Expected 3 total drops, got %d", q.TotalDropped())
	}
}

func TestQueue_NoDropNoNotice(t *testing.T) {
	q := newQueue("s", 3, time.Now)
	q.Push(msg(0))
	if _, ok := q.TakeDropNotice(); ok {
		t.Error("Expected no drop notice without drops")
	}
}

func TestQueue_PopOrder(t *testing.T) {
	q := newQueue("s", 3, time.Now)
	q.Push(msg(1))
	q.Push(msg(2))

	first, _ := q.Pop()
	second, _ := q.Pop()
	if string(first.Data) != "1" || string(second.Data) != "2" {
		t.Errorf("Expected FIFO pop, got %s then %s", first.Data, second.Data)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Expected empty queue")
	}
}

func TestQueue_PushWakesConsumerEvenWhenFull(t *testing.T) {
	q := newQueue("s", 1, time.Now)
	q.Push(msg(0))
	// consume the wake from the first push
	q.Wait(context.Background(), time.Millisecond)

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Push(msg(1))
	}()
	if !q.Wait(context.Background(), time.Second) {
		t.Fatal("Expected push into a full queue to wake the consumer")
	}
}

func TestQueue_WaitTimesOut(t *testing.T) {
	q := newQueue("s", 1, time.Now)
	if q.Wait(context.Background(), 5*time.Millisecond) {
		t.Error("Expected wait to time out without activity")
	}
}

func TestQueue_CloseUnblocksWait(t *testing.T) {
	q := newQueue("s", 1, time.Now)
	go func() {
		time.Sleep(5 * time.Millisecond)
		q.close()
	}()
	start := time.Now()
	q.Wait(context.Background(), 5*time.Second)
	if time.Since(start) > time.Second {
		t.Error("Expected close to unblock Wait")
	}
	if q.Push(msg(0)) {
		t.Error("Push after close should not report drops")
	}
	if q.Len() != 0 {
		t.Error("Closed queue should not buffer messages")
	}
}
