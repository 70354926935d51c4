package aggregator

import "testing"

func TestProgressMean(t *testing.T) {
	var last float64
	p := NewProgress(2, func(mean float64) { last = mean })
	p.Update(0, 0.5)
	p.Update(1, 1.0)
	if got := p.Mean(); got != 0.75 {
		t.Errorf("Mean() = %v, want 0.75", got)
	}
	if last != 0.75 {
		t.Errorf("onUpdate saw %v, want 0.75", last)
	}
}

func TestProgressAttachGrowsVector(t *testing.T) {
	p := NewProgress(1, nil)
	idx := p.Attach()
	if idx != 1 {
		t.Fatalf("Attach() = %d, want 1", idx)
	}
	p.Update(idx, 1.0)
	if got := p.Mean(); got != 0.5 {
		t.Errorf("Mean() = %v, want 0.5", got)
	}
}

func TestProgressDetachTreatsSlotAsComplete(t *testing.T) {
	p := NewProgress(2, nil)
	p.Update(0, 0)
	p.Update(1, 0)
	p.Detach(1)
	if got := p.Mean(); got != 0.5 {
		t.Errorf("Mean() after detach = %v, want 0.5", got)
	}
}

func TestSpeedSum(t *testing.T) {
	var last float64
	s := NewSpeed(3, func(sum float64) { last = sum })
	s.Update(0, 100)
	s.Update(1, 200)
	s.Update(2, 50)
	if got := s.Sum(); got != 350 {
		t.Errorf("Sum() = %v, want 350", got)
	}
	if last != 350 {
		t.Errorf("onUpdate saw %v, want 350", last)
	}
}

func TestSpeedDetachZeroesContribution(t *testing.T) {
	s := NewSpeed(2, nil)
	s.Update(0, 100)
	s.Update(1, 200)
	s.Detach(1)
	if got := s.Sum(); got != 100 {
		t.Errorf("Sum() after detach = %v, want 100", got)
	}
}

func TestOutOfRangeIndexIsNoop(t *testing.T) {
	p := NewProgress(1, nil)
	p.Update(5, 1.0) // out of range, must not panic
	if got := p.Mean(); got != 0 {
		t.Errorf("Mean() = %v, want 0 (update ignored)", got)
	}
}
