// Package chunk implements the chunk data model and fetcher: one
// partial-range HTTP GET into a dedicated part file, with retry,
// reload-on-200, and crash-recovery repositioning support.
package chunk

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kagedl/fetchengine/internal/rangespec"
)

// State is one of a chunk's lifecycle states.
type State int32

const (
	Idle State = iota
	Running
	Paused
	Completed
	Failed
	Merged
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Merged:
		return "Merged"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of the terminal states {Failed, Merged}.
func (s State) IsTerminal() bool { return s == Failed || s == Merged }

// Chunk is exclusively owned by its Fetcher; the Coordinator holds a
// read-only view, and its merge pass mutates only the chunk's state: the
// Completed -> Merged transition via MarkMerged, or Failed via MarkFailed
// when the part file cannot be merged.
type Chunk struct {
	Index int

	mu           sync.Mutex
	resolved     rangespec.Absolute
	partPath     string
	bytesWritten int64
	partialLen   *int64
	state        atomic.Int32
	attempts     atomic.Int32
	lastErr      error
}

// New creates a Chunk for the given index, resolved range and part file path.
func New(index int, resolved rangespec.Absolute, partPath string) *Chunk {
	c := &Chunk{Index: index, resolved: resolved, partPath: partPath}
	c.state.Store(int32(Idle))
	return c
}

// ResolvedRange returns the chunk's absolute byte range.
func (c *Chunk) ResolvedRange() rangespec.Absolute {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolved
}

// Reposition narrows the chunk's start forward by skip bytes, used by
// crash-recovery (TrySetBytes) when a prefix of the chunk is already
// present in the final-temp file. Length is recomputed from the new start
// so the fetcher's expected byte count matches what it will actually
// receive, not the chunk's original pre-recovery span.
func (c *Chunk) Reposition(skip int64, alreadyWritten int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved.Start += skip
	c.resolved.Length = c.resolved.End - c.resolved.Start + 1
	c.bytesWritten = alreadyWritten
}

// PartPath returns the chunk's scratch file path.
func (c *Chunk) PartPath() string { return c.partPath }

// BytesWritten returns the number of bytes written to the part file so far.
func (c *Chunk) BytesWritten() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytesWritten
}

func (c *Chunk) addBytesWritten(n int64) {
	c.mu.Lock()
	c.bytesWritten += n
	c.mu.Unlock()
}

func (c *Chunk) setBytesWritten(n int64) {
	c.mu.Lock()
	c.bytesWritten = n
	c.mu.Unlock()
}

// PartialLength returns the server-confirmed partial length, if known.
func (c *Chunk) PartialLength() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.partialLen == nil {
		return 0, false
	}
	return *c.partialLen, true
}

func (c *Chunk) setPartialLength(n int64) {
	c.mu.Lock()
	c.partialLen = &n
	c.mu.Unlock()
}

// Reload resets the chunk to span [0, totalLength-1], used by the
// fetcher's reload trigger when a Range GET comes back 200 instead of 206
// and the server's own Content-Length reveals a different total than the
// one partitioning assumed. bytesWritten and the partial-length marker are
// cleared since a 200 response always restarts the body from byte zero.
func (c *Chunk) Reload(totalLength int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolved = rangespec.Absolute{Start: 0, End: totalLength - 1, Length: totalLength}
	c.bytesWritten = 0
	c.partialLen = nil
}

// State returns the chunk's current lifecycle state.
func (c *Chunk) State() State { return State(c.state.Load()) }

func (c *Chunk) setState(s State) { c.state.Store(int32(s)) }

// MarkMerged is the Coordinator's Completed -> Merged transition; it
// requires the chunk to be Completed.
func (c *Chunk) MarkMerged() error {
	if !c.state.CompareAndSwap(int32(Completed), int32(Merged)) {
		return fmt.Errorf("chunk %d: cannot mark merged from state %s", c.Index, c.State())
	}
	return nil
}

// MarkFailed transitions the chunk to Failed and records the cause, for
// use by components other than the chunk's own Fetcher (e.g. the
// coordinator, when a merge-time I/O error occurs on an already-Completed
// chunk's part file).
func (c *Chunk) MarkFailed(err error) {
	c.setLastError(err)
	c.setState(Failed)
}

// ForceState sets the chunk's state directly, bypassing the normal
// Fetcher-driven transitions. It exists solely for crash-recovery
// reconciliation (TrySetBytes), which must seed a chunk as Completed
// before MarkMerged will accept it.
func (c *Chunk) ForceState(s State) { c.setState(s) }

// Attempts returns the number of fetch attempts made so far.
func (c *Chunk) Attempts() int { return int(c.attempts.Load()) }

func (c *Chunk) incAttempts() int { return int(c.attempts.Add(1)) }

// LastError returns the most recently recorded attempt failure, if any.
func (c *Chunk) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Chunk) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// Progress reports bytes_written / length, capped at 0.999 while the
// chunk is still in flight so a reader can distinguish "nearly done" from
// "done"; it reaches 1.0 only once the chunk is Completed or Merged.
func (c *Chunk) Progress() float64 {
	c.mu.Lock()
	length := c.resolved.Length
	written := c.bytesWritten
	c.mu.Unlock()

	if c.State() == Merged || c.State() == Completed {
		return 1.0
	}
	if length <= 0 {
		return 0
	}
	p := float64(written) / float64(length)
	if p > 0.999 {
		p = 0.999
	}
	return p
}
