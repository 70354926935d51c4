package rangespec

import "testing"

func TestPartitionMatchesFractional(t *testing.T) {
	const total = 3000
	for i := 0; i < 4; i++ {
		p, err := Partition(i, 4)
		if err != nil {
			t.Fatalf("Partition: %v", err)
		}
		pa, err := p.ToAbsolute(total)
		if err != nil {
			t.Fatalf("ToAbsolute partition: %v", err)
		}

		f, err := Fractional(float64(i)/4, float64(i+1)/4)
		if err != nil {
			t.Fatalf("Fractional: %v", err)
		}
		fa, err := f.ToAbsolute(total)
		if err != nil {
			t.Fatalf("ToAbsolute fractional: %v", err)
		}

		if pa != fa {
			t.Errorf("partition %d: partition=%+v fractional=%+v, want equal", i, pa, fa)
		}
	}
}

func TestPartitionsSumToTotal(t *testing.T) {
	const total = 3000
	for _, n := range []int{1, 2, 3, 7, 16} {
		parts, err := Partitions(total, n)
		if err != nil {
			t.Fatalf("Partitions(%d): %v", n, err)
		}
		var sum int64
		for _, p := range parts {
			sum += p.Length
		}
		if sum != total {
			t.Errorf("n=%d: sum of partition lengths = %d, want %d", n, sum, total)
		}
	}
}

func TestPartitionsZeroLength(t *testing.T) {
	parts, err := Partitions(0, 4)
	if err != nil {
		t.Fatalf("Partitions(0): %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("zero-length resource: got %d partitions, want 0", len(parts))
	}
}

func TestAbsoluteInclusiveLength(t *testing.T) {
	start, end := int64(10), int64(19)
	r, err := AbsoluteRange(&start, &end)
	if err != nil {
		t.Fatalf("Absolute: %v", err)
	}
	a, err := r.ToAbsolute(1000)
	if err != nil {
		t.Fatalf("ToAbsolute: %v", err)
	}
	if a.Length != 10 {
		t.Errorf("Length = %d, want 10 (inclusive)", a.Length)
	}
}

func TestAbsoluteClampsEndToTotal(t *testing.T) {
	start := int64(5)
	end := int64(10_000)
	r, err := AbsoluteRange(&start, &end)
	if err != nil {
		t.Fatalf("Absolute: %v", err)
	}
	a, err := r.ToAbsolute(100)
	if err != nil {
		t.Fatalf("ToAbsolute: %v", err)
	}
	if a.End != 99 {
		t.Errorf("End = %d, want clamped to 99", a.End)
	}
}

func TestAbsoluteRejectsEndBeforeStart(t *testing.T) {
	start, end := int64(10), int64(5)
	if _, err := AbsoluteRange(&start, &end); err == nil {
		t.Fatal("expected error for end < start")
	}
}

func TestPartitionRejectsIndexOutOfBounds(t *testing.T) {
	if _, err := Partition(4, 4); err == nil {
		t.Fatal("expected error for index == total")
	}
	if _, err := Partition(-1, 4); err == nil {
		t.Fatal("expected error for negative index")
	}
}

func TestFractionalRejectsOutOfRange(t *testing.T) {
	if _, err := Fractional(-0.1, 0.5); err == nil {
		t.Fatal("expected error for negative start")
	}
	if _, err := Fractional(0.5, 1.1); err == nil {
		t.Fatal("expected error for end > 1")
	}
	if _, err := Fractional(0.6, 0.5); err == nil {
		t.Fatal("expected error for start >= end")
	}
}

func TestIntersectDisjoint(t *testing.T) {
	a := Absolute{Start: 0, End: 9, Length: 10}
	b := Absolute{Start: 20, End: 29, Length: 10}
	if _, err := Intersect(a, b); err == nil {
		t.Fatal("expected disjoint-ranges error")
	}
}

func TestIntersectOverlap(t *testing.T) {
	a := Absolute{Start: 0, End: 19, Length: 20}
	b := Absolute{Start: 10, End: 29, Length: 20}
	got, err := Intersect(a, b)
	if err != nil {
		t.Fatalf("Intersect: %v", err)
	}
	want := Absolute{Start: 10, End: 19, Length: 10}
	if got != want {
		t.Errorf("Intersect = %+v, want %+v", got, want)
	}
}

func TestIsFull(t *testing.T) {
	if !Empty().IsFull() {
		t.Error("Empty() should be full")
	}
	r, _ := AbsoluteRange(nil, nil)
	if !r.IsFull() {
		t.Error("AbsoluteRange(nil, nil) should be full")
	}
	start := int64(0)
	r2, _ := AbsoluteRange(&start, nil)
	if r2.IsFull() {
		t.Error("Absolute(0, nil) should not be full")
	}
}
