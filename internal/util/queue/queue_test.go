package queue

import (
	"testing"
	"time"
)

func TestPushTryPopFIFO(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2)
	v, ok := q.TryPop()
	if !ok || v != 1 {
		t.Fatalf("TryPop = %v, %v; want 1, true", v, ok)
	}
}

func TestWaitAndPopBlocksThenReturns(t *testing.T) {
	q := New[string](0)
	done := make(chan string, 1)
	go func() {
		v, ok := q.WaitAndPop()
		if ok {
			done <- v
		} else {
			done <- ""
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push("hello")

	select {
	case v := <-done:
		if v != "hello" {
			t.Fatalf("got %q, want hello", v)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitAndPop did not wake on Push")
	}
}

func TestShutdownWakesWaiters(t *testing.T) {
	q := New[int](0)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.WaitAndPop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected WaitAndPop to return false after shutdown with empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not wake waiter")
	}
}

func TestBoundedQueueDropsOldest(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Push(2)
	q.Push(3)
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}
	v, _ := q.TryPop()
	if v != 2 {
		t.Fatalf("oldest retained = %d, want 2 (1 should have been dropped)", v)
	}
}
