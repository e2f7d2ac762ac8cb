package bloom

import (
	"fmt"
	"testing"
)

func TestAddContains(t *testing.T) {
	f := New(1000, 0.01)
	f.Add([]byte("/login"))
	if !f.Contains([]byte("/login")) {
		t.Fatal("expected /login to be contained after Add")
	}
}

func TestFalsePositiveRateWithinSlack(t *testing.T) {
	const n = 1000
	const p = 0.01
	f := New(n, p)
	for i := 0; i < n; i++ {
		f.Add([]byte(fmt.Sprintf("/path/%d", i)))
	}

	falsePositives := 0
	trials := 5000
	for i := 0; i < trials; i++ {
		key := []byte(fmt.Sprintf("/absent/%d", i))
		if f.Contains(key) {
			falsePositives++
		}
	}

	rate := float64(falsePositives) / float64(trials)
	if rate > 10*p {
		t.Fatalf("observed false-positive rate %.4f exceeds 10x target %.4f", rate, p)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	f := New(100, 0.05)
	f.Add([]byte("a"))
	f.Add([]byte("b"))

	data := f.Serialize()
	restored, n, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if n != len(data) {
		t.Fatalf("consumed %d bytes, want %d", n, len(data))
	}
	if !restored.Contains([]byte("a")) || !restored.Contains([]byte("b")) {
		t.Fatal("restored filter lost membership")
	}
}

func TestCountingFilterRemove(t *testing.T) {
	cf := NewCounting(100, 0.01)
	cf.Add([]byte("x"))
	if !cf.Contains([]byte("x")) {
		t.Fatal("expected x contained")
	}
	cf.Remove([]byte("x"))
	if cf.Contains([]byte("x")) {
		t.Fatal("expected x removed")
	}
}
