package throttle

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestUnlimitedReportsSpeed(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 1000)
	var gotSpeed float64
	r := New(bytes.NewReader(data), 0, func(bps float64) { gotSpeed = bps })

	buf := make([]byte, len(data))
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read: %v", err)
	}
	if n != len(data) {
		t.Fatalf("n = %d, want %d", n, len(data))
	}
	if gotSpeed <= 0 {
		t.Error("expected a non-zero speed sample even when unlimited")
	}
}

func TestThrottleLimitsThroughput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timing-sensitive throttle test in -short mode")
	}
	const rateBPS = 50
	data := bytes.Repeat([]byte{'x'}, 200) // 150 bytes beyond the initial burst, ~3s at 50 B/s
	r := New(bytes.NewReader(data), rateBPS, nil)

	start := time.Now()
	buf := make([]byte, 20)
	var total int
	for {
		n, err := r.ReadContext(context.Background(), buf)
		total += n
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			break
		}
	}
	elapsed := time.Since(start)
	if total != len(data) {
		t.Fatalf("total = %d, want %d", total, len(data))
	}
	if elapsed < 2*time.Second {
		t.Errorf("elapsed = %v, expected meaningful throttling at %d B/s", elapsed, rateBPS)
	}
}

func TestSetMaxBPSResetsWindow(t *testing.T) {
	r := New(bytes.NewReader(nil), 100, nil)
	r.windowN = 7
	r.SetMaxBPS(0)
	if r.windowN != 0 {
		t.Errorf("windowN = %d, want 0 after a rate change", r.windowN)
	}
	if r.limiter != nil {
		t.Error("expected limiter cleared when max BPS set to 0")
	}
	r.SetMaxBPS(50)
	if r.limiter == nil {
		t.Error("expected limiter recreated when max BPS set > 0")
	}
}

func TestReadContextCancellation(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 10)
	r := New(bytes.NewReader(data), 1, nil) // 1 B/s, will need to wait
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := make([]byte, len(data))
	_, err := r.ReadContext(ctx, buf)
	if err == nil {
		t.Error("expected context cancellation error")
	}
}
