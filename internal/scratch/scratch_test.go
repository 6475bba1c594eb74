package scratch

import "testing"

func TestAllocSequential(t *testing.T) {
	r := New(64)
	a := r.Alloc(10)
	b := r.Alloc(10)
	if &a[0] == &b[0] {
		t.Fatalf("sequential allocations must not overlap")
	}
}

func TestAllocOverflow(t *testing.T) {
	r := New(16)
	r.Alloc(10)
	s := r.Alloc(10) // does not fit in the remaining 6 bytes
	if r.Overflows != 1 {
		t.Fatalf("expected one overflow block, got %d", r.Overflows)
	}
	if len(s) != 10 {
		t.Fatalf("overflow allocation must still return the requested length")
	}
}

// TestRewindReusesAddress exercises property 5: rewinding the most
// recent allocation returns the offset to its pre-alloc value and the
// next allocation reuses the same address.
func TestRewindReusesAddress(t *testing.T) {
	r := New(64)
	a := r.Alloc(20)
	r.Rewind(a, len(a)) // give back all 20 bytes

	b := r.Alloc(20)
	if &a[0] != &b[0] {
		t.Fatalf("expected fully rewound allocation to reuse the same address")
	}
}

func TestRewindPartialKeepsPrefix(t *testing.T) {
	r := New(64)
	a := r.Alloc(20)
	r.Rewind(a, 15) // keep the first 5 bytes, give back the rest

	b := r.Alloc(15)
	if &b[0] != &a[5] {
		t.Fatalf("expected partial rewind to continue exactly where the kept prefix ends")
	}
}

func TestRewindNoopOnOverflow(t *testing.T) {
	r := New(8)
	r.Alloc(4)
	over := r.Alloc(100)
	before := r.offset
	r.Rewind(over, 50)
	if r.offset != before {
		t.Fatalf("rewind on an overflow allocation must be a no-op")
	}
}

func TestResetInvalidatesOffsetAndOverflows(t *testing.T) {
	r := New(8)
	r.Alloc(4)
	r.Alloc(100)
	r.Reset()
	if r.offset != 0 || r.Overflows != 0 {
		t.Fatalf("reset must zero offset and overflow count")
	}
}

func TestContains(t *testing.T) {
	r := New(32)
	inside := r.Alloc(8)
	outside := make([]byte, 8)

	if !r.Contains(inside) {
		t.Fatalf("expected main-region allocation to be contained")
	}
	if r.Contains(outside) {
		t.Fatalf("expected unrelated slice to not be contained")
	}
}
