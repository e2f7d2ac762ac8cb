package state

import "testing"

func newIntTable() *Table[int] {
	return NewTable(16, func(now int64) int { return 0 }, nil)
}

func TestGetOrCreateThenFind(t *testing.T) {
	tbl := newIntTable()
	v := tbl.GetOrCreate(42, 100)
	*v = 7

	found, ok := tbl.Find(42, 200)
	if !ok {
		t.Fatal("expected to find key 42")
	}
	if *found != 7 {
		t.Errorf("value = %d, want 7", *found)
	}
}

func TestFindMissReturnsFalse(t *testing.T) {
	tbl := newIntTable()
	tbl.GetOrCreate(1, 0)
	if _, ok := tbl.Find(999, 0); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestHibernateThenResurrect(t *testing.T) {
	tbl := NewTable(16, func(now int64) int { return -1 }, nil)
	v := tbl.GetOrCreate(5, 0)
	*v = 99

	n := tbl.HibernateInactive(1500, 1000)
	if n != 1 {
		t.Fatalf("hibernated count = %d, want 1", n)
	}

	resurrected, ok := tbl.Find(5, 2000)
	if !ok {
		t.Fatal("expected resurrection on find")
	}
	if *resurrected != -1 {
		t.Errorf("resurrected value = %d, want fresh -1", *resurrected)
	}
}

func TestEvictLRURemovesOldest(t *testing.T) {
	tbl := newIntTable()
	tbl.GetOrCreate(1, 10)
	tbl.GetOrCreate(2, 20)
	tbl.GetOrCreate(3, 30)

	evicted := tbl.EvictLRU(1)
	if evicted != 1 {
		t.Fatalf("evicted = %d, want 1", evicted)
	}
	if _, ok := tbl.Find(1, 100); ok {
		t.Fatal("expected key 1 (oldest) to be evicted")
	}
	if _, ok := tbl.Find(2, 100); !ok {
		t.Fatal("expected key 2 to survive eviction")
	}
}

func TestCompactDropsOldHibernatedEntries(t *testing.T) {
	tbl := newIntTable()
	tbl.GetOrCreate(1, 0)
	tbl.HibernateInactive(100, 0)

	n := tbl.Compact(100+24*3600*1000+1, 24*3600*1000)
	if n != 1 {
		t.Fatalf("compacted = %d, want 1", n)
	}
	if tbl.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after compact", tbl.Len())
	}
}

func TestGrowBeyondLoadFactor(t *testing.T) {
	tbl := NewTable[int](4, func(now int64) int { return 0 }, nil)
	for i := uint64(0); i < 50; i++ {
		v := tbl.GetOrCreate(i, int64(i))
		*v = int(i)
	}
	for i := uint64(0); i < 50; i++ {
		v, ok := tbl.Find(i, 1000)
		if !ok {
			t.Fatalf("key %d missing after growth", i)
		}
		if *v != int(i) {
			t.Errorf("key %d value = %d, want %d", i, *v, i)
		}
	}
}
