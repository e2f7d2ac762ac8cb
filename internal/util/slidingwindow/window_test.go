package slidingwindow

import "testing"

func TestPruneByAgeAndCount(t *testing.T) {
	w := New[struct{}](25, 100)
	base := int64(1_000)
	for _, off := range []int64{0, 10, 20, 30, 40} {
		w.Add(base+off, struct{}{})
	}

	w.Prune(base + 41)

	got := w.Timestamps()
	want := []int64{base + 20, base + 30, base + 40}
	if len(got) != len(want) {
		t.Fatalf("count = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("timestamps = %v, want %v", got, want)
		}
	}
}

func TestMaxElementsCap(t *testing.T) {
	w := New[int](0, 3)
	for i := 0; i < 10; i++ {
		w.Add(int64(i), i)
	}
	if w.Count() != 3 {
		t.Fatalf("count = %d, want 3", w.Count())
	}
	var vals []int
	w.ForEach(func(_ int64, v int) { vals = append(vals, v) })
	if vals[0] != 7 || vals[1] != 8 || vals[2] != 9 {
		t.Fatalf("vals = %v, want [7 8 9]", vals)
	}
}

func TestRebaseOnOverflow(t *testing.T) {
	w := New[struct{}](0, 1000)
	w.Add(0, struct{}{})
	far := int64(1) << 40
	w.Add(far, struct{}{})

	ts := w.Timestamps()
	if len(ts) == 0 || ts[len(ts)-1] != far {
		t.Fatalf("expected latest timestamp %d retained, got %v", far, ts)
	}
}
