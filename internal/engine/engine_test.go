package engine

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kagedl/fetchengine/internal/chunk"
	"github.com/kagedl/fetchengine/internal/coordinator"
	"github.com/kagedl/fetchengine/internal/session"
)

func TestEngineSingleChunkDownload(t *testing.T) {
	body := []byte("the quick brown fox jumps over the lazy dog")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "43")
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}
		rangeHdr := r.Header.Get("Range")
		if rangeHdr == "" || rangeHdr == "bytes=0-42" {
			w.Header().Set("Content-Range", "bytes 0-42/43")
			w.WriteHeader(http.StatusPartialContent)
			w.Write(body)
			return
		}
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	var completedPath string
	sess, err := session.New(session.Options{
		URL:      srv.URL,
		DstDir:   dir,
		DstName:  "out.txt",
		Chunks:   1,
		Attempts: 1,
		Callbacks: session.Callbacks{
			OnCompleted: func(path string) { completedPath = path },
		},
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	eng := New(sess, srv.Client(), nil)
	if err := eng.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eng.Wait()

	if sess.State() != session.Completed {
		t.Fatalf("session state = %v, want Completed", sess.State())
	}
	if completedPath == "" {
		t.Fatal("expected OnCompleted callback to fire")
	}

	got, err := os.ReadFile(completedPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("destination contents = %q, want %q", got, body)
	}
}

func TestEngineMultiChunkDownload(t *testing.T) {
	body := []byte("0123456789ABCDEFGHIJ") // 20 bytes, split into 4 chunks of 5
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "20")
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}
		if r.Header.Get("Range") == "" {
			// The initial headers-only probe GET; SupportsHeadRequest is
			// false in this test, so this is what resolves content length.
			w.Header().Set("Content-Length", "20")
			w.Header().Set("Accept-Ranges", "bytes")
			w.WriteHeader(http.StatusOK)
			return
		}
		var start, end int
		if _, err := parseRange(r.Header.Get("Range"), &start, &end); err != nil {
			t.Errorf("bad range header %q: %v", r.Header.Get("Range"), err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range", r.Header.Get("Range")[6:]+"/20")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[start : end+1])
	}))
	defer srv.Close()

	dir := t.TempDir()
	sess, err := session.New(session.Options{
		URL:                srv.URL,
		DstDir:             dir,
		DstName:            "multi.bin",
		Chunks:             4,
		Attempts:           1,
		MergeWhileProgress: true,
		WriteMode:          coordinator.AppendOrTruncate,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	eng := New(sess, srv.Client(), nil)
	if err := eng.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	eng.Wait()

	if sess.State() != session.Completed {
		t.Fatalf("session state = %v, want Completed", sess.State())
	}

	got, err := os.ReadFile(filepath.Join(dir, "multi.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(body) {
		t.Errorf("destination contents = %q, want %q", got, body)
	}
}

func TestEngineRejectsExcludedExtension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "4")
		w.Header().Set("Accept-Ranges", "bytes")
	}))
	defer srv.Close()

	dir := t.TempDir()
	var failed error
	sess, err := session.New(session.Options{
		URL:                srv.URL + "/file.exe",
		DstDir:             dir,
		Chunks:             1,
		ExcludedExtensions: []string{"exe"},
		Callbacks: session.Callbacks{
			OnFailed: func(err error) { failed = err },
		},
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	eng := New(sess, srv.Client(), nil)
	if err := eng.Start(t.Context()); err == nil {
		t.Fatal("expected disallowed-extension error")
	}
	if failed == nil {
		t.Error("expected OnFailed callback to fire")
	}
	if sess.State() != session.Failed {
		t.Errorf("session state = %v, want Failed", sess.State())
	}
}

func TestEnginePauseStopsRunningChunksAndLeavesPartsResumable(t *testing.T) {
	body := []byte("0123456789ABCDEFGHIJ") // 20 bytes, split into 4 chunks of 5
	probed := make(chan struct{})
	var probeOnce sync.Once
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "20")
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}
		if r.Header.Get("Range") == "" {
			// Headers-only probe GET; SupportsHeadRequest is false here.
			w.Header().Set("Content-Length", "20")
			w.Header().Set("Accept-Ranges", "bytes")
			w.WriteHeader(http.StatusOK)
			probeOnce.Do(func() { close(probed) })
			return
		}
		var start, end int
		if _, err := parseRange(r.Header.Get("Range"), &start, &end); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		// Block every chunk fetch until the test signals Pause, so the
		// engine observes the pause flag mid-flight instead of racing it.
		<-release
		w.Header().Set("Content-Range", r.Header.Get("Range")[6:]+"/20")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body[start : end+1])
	}))
	defer srv.Close()

	dir := t.TempDir()
	sess, err := session.New(session.Options{
		URL:                srv.URL,
		DstDir:             dir,
		DstName:            "multi.bin",
		Chunks:             4,
		Attempts:           1,
		BufferSize:         2, // force multiple reads per chunk so a pause lands mid-chunk
		MergeWhileProgress: true,
		WriteMode:          coordinator.AppendOrTruncate,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	eng := New(sess, srv.Client(), nil)
	done := make(chan error, 1)
	go func() { done <- eng.Start(t.Context()) }()

	<-probed // cancelFn is set, and the probe has resolved, before we pause
	eng.Pause()
	close(release)
	<-done
	eng.Wait()

	if sess.State() != session.Paused {
		t.Fatalf("session state = %v, want Paused", sess.State())
	}
	for _, c := range sess.Chunks() {
		if c.State() != chunk.Paused && c.State() != chunk.Merged {
			t.Errorf("chunk %d state = %v, want Paused (or already Merged)", c.Index, c.State())
		}
		if c.State() == chunk.Paused {
			if _, err := os.Stat(c.PartPath()); err != nil {
				t.Errorf("chunk %d part file missing after pause: %v", c.Index, err)
			}
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "multi.bin")); err == nil {
		t.Error("destination must not be published while paused")
	}
}

// parseRange parses "bytes=a-b" into start/end, mirroring the subset the
// chunk.Fetcher itself produces.
func parseRange(header string, start, end *int) (int, error) {
	return fmt.Sscanf(header, "bytes=%d-%d", start, end)
}
