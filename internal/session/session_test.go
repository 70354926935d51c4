package session

import "testing"

func TestNewRejectsEmptyURL(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing URL")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	s, err := New(Options{URL: "https://example.com/file.zip", DstDir: "/tmp"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Opts.Chunks != 1 {
		t.Errorf("Chunks = %d, want 1", s.Opts.Chunks)
	}
	if s.Opts.BufferSize != 1024 {
		t.Errorf("BufferSize = %d, want 1024", s.Opts.BufferSize)
	}
	if s.Opts.TempDir != "/tmp" {
		t.Errorf("TempDir = %q, want dst_dir fallback", s.Opts.TempDir)
	}
	if s.ID == "" {
		t.Error("expected a generated session ID")
	}
}

func TestStateCallbacks(t *testing.T) {
	var started, completed, failed bool
	s, err := New(Options{
		URL: "https://example.com/file.zip",
		Callbacks: Callbacks{
			OnStarted:   func() { started = true },
			OnCompleted: func(string) { completed = true },
			OnFailed:    func(error) { failed = true },
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	s.SetState(Running)
	if !started {
		t.Error("expected OnStarted to fire")
	}

	s.SetState(Completed)
	if !completed {
		t.Error("expected OnCompleted to fire")
	}

	s2, _ := New(Options{URL: "https://example.com/f", Callbacks: Callbacks{OnFailed: func(error) { failed = true }}})
	s2.SetLastError(errTest{})
	s2.SetState(Failed)
	if !failed {
		t.Error("expected OnFailed to fire")
	}
}

type errTest struct{}

func (errTest) Error() string { return "boom" }
