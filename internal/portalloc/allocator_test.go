package portalloc

import "testing"

func TestAllocateIdempotent(t *testing.T) {
	a := New(Range{Min: 10000, Max: 10002})

	p1, err := a.Allocate("svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p1 != 10000 {
		t.Fatalf("expected first port 10000, got %d", p1)
	}

	p2, err := a.Allocate("svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p2 != p1 {
		t.Fatalf("expected idempotent allocation, got %d then %d", p1, p2)
	}
}

func TestReleaseReusesLowestPort(t *testing.T) {
	a := New(Range{Min: 10000, Max: 10001})

	if _, err := a.Allocate("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate("b"); err != nil {
		t.Fatal(err)
	}
	a.Release("a")

	p, err := a.Allocate("c")
	if err != nil {
		t.Fatal(err)
	}
	if p != 10000 {
		t.Fatalf("expected reallocation to reuse port 10000, got %d", p)
	}
}

func TestReleaseUnknownKeyIsNoop(t *testing.T) {
	a := New(Range{Min: 10000, Max: 10001})
	a.Release("never-allocated")
	if len(a.GetAllocations()) != 0 {
		t.Fatalf("expected no allocations")
	}
}

func TestExhaustion(t *testing.T) {
	a := New(Range{Min: 10000, Max: 10000})

	if _, err := a.Allocate("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Allocate("b"); err != ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestRemoveAfterAddReversibility(t *testing.T) {
	a := New(Range{Min: 10000, Max: 10005})

	before := a.GetAllocations()
	if _, err := a.Allocate("r"); err != nil {
		t.Fatal(err)
	}
	a.Release("r")
	after := a.GetAllocations()

	if len(before) != len(after) {
		t.Fatalf("expected allocator state to return to baseline, before=%v after=%v", before, after)
	}
}
