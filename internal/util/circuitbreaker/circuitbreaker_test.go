package circuitbreaker

import (
	"testing"
	"time"
)

func TestOpensAfterThreshold(t *testing.T) {
	b := New(5, 30*time.Second)
	for i := 0; i < 5; i++ {
		if !b.Allow() {
			t.Fatalf("call %d should be allowed while closed", i)
		}
		b.RecordFailure()
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want Open", b.State())
	}
	if b.Allow() {
		t.Fatal("6th call should be short-circuited")
	}
}

func TestHalfOpenRecoversOnSuccess(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %v, want Open", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected half-open probe to be allowed after timeout")
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}

	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("state = %v, want Closed after success", b.State())
	}
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	b := New(1, 10*time.Millisecond)
	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	b.Allow()
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("state = %v, want Open after half-open failure", b.State())
	}
}
