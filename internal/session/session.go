// Package session implements the per-request download record that
// exclusively owns a download's chunks, I/O handles, and terminal-state
// bookkeeping from creation to either publish or failure.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kagedl/fetchengine/internal/chunk"
	"github.com/kagedl/fetchengine/internal/coordinator"
	"github.com/kagedl/fetchengine/internal/fetcherr"
	"github.com/kagedl/fetchengine/internal/probe"
	"github.com/kagedl/fetchengine/internal/rangespec"
)

// State is the session's own top-level lifecycle, distinct from any
// individual chunk's State.
type State int32

const (
	Idle State = iota
	Running
	Paused
	Completed
	Cancelled
	Failed
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
	case Cancelled:
		return "Cancelled"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Callbacks holds the observer hooks a caller may set: info fetched,
// completed, failed, started, state changed, progress, speed.
type Callbacks struct {
	OnInfoFetched  func(probe.ContentInfo)
	OnStarted      func()
	OnStateChanged func(chunkIndex int, s chunk.State)
	OnCompleted    func(destinationPath string)
	OnFailed       func(err error)
	OnProgress     func(fraction float64)
	OnSpeed        func(bytesPerSecond float64)
}

// Options holds the caller-supplied configuration for a single download.
type Options struct {
	URL string

	DstDir   string
	DstName  string // pre-resolved destination name, if already known
	TempDir  string
	Filename string // template with '*' wildcards; empty means derive fully

	WriteMode            coordinator.WriteMode
	BufferSize           int
	MaxBPS               int64
	MinByte, MaxByte     *int64
	Range                rangespec.Range
	Chunks               int
	MergeWhileProgress   bool
	SupportsHeadRequest  bool
	MinReloadSize        int64
	ExcludedExtensions   []string
	Timeout              time.Duration
	DeleteOnFailure      bool
	Attempts             int
	Headers              map[string]string
	UserAgent            string
	ReportMinInterval    time.Duration

	Callbacks Callbacks
}

// Session is the runtime record for one download request. It exclusively
// owns its Chunks and every I/O handle opened on their behalf; only the
// coordinator's merge path is granted a mutable borrow.
type Session struct {
	ID   string
	Opts Options

	mu               sync.Mutex
	info             probe.ContentInfo
	chunks           []*chunk.Chunk
	destinationPath  string
	tempDestination  string
	state            atomic.Int32
	bytesWritten     atomic.Int64
	lastErr          error
}

// New validates opts and allocates a fresh Session with a new identifier.
func New(opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, fetcherr.New(fetcherr.InputError, "url is required")
	}
	if opts.Chunks <= 0 {
		opts.Chunks = 1
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1024
	}
	if opts.TempDir == "" {
		opts.TempDir = opts.DstDir
	}

	s := &Session{ID: uuid.NewString(), Opts: opts}
	s.state.Store(int32(Idle))
	return s, nil
}

// Info returns the probe-derived metadata, once known.
func (s *Session) Info() probe.ContentInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// SetInfo records the probe result; called once by the engine after the
// first successful probe, and treated immutable thereafter.
func (s *Session) SetInfo(info probe.ContentInfo) {
	s.mu.Lock()
	s.info = info
	s.mu.Unlock()
	if s.Opts.Callbacks.OnInfoFetched != nil {
		s.Opts.Callbacks.OnInfoFetched(info)
	}
}

// Chunks returns the session's chunk list.
func (s *Session) Chunks() []*chunk.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// SetChunks installs the chunk list, computed once by the engine after
// partitioning.
func (s *Session) SetChunks(chunks []*chunk.Chunk) {
	s.mu.Lock()
	s.chunks = chunks
	s.mu.Unlock()
}

// DestinationPath returns the resolved final path, once known.
func (s *Session) DestinationPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destinationPath
}

// TempDestination returns the resolved final-temp path, once known.
func (s *Session) TempDestination() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tempDestination
}

// SetPaths records the resolved destination and temp-destination paths.
func (s *Session) SetPaths(destination, temp string) {
	s.mu.Lock()
	s.destinationPath = destination
	s.tempDestination = temp
	s.mu.Unlock()
}

// BytesWritten returns the cumulative bytes merged into the destination
// stream so far.
func (s *Session) BytesWritten() int64 { return s.bytesWritten.Load() }

// SetBytesWritten updates the cumulative merged-byte counter; used as the
// Coordinator's onBytesAppended callback.
func (s *Session) SetBytesWritten(n int64) { s.bytesWritten.Store(n) }

// State returns the session's current top-level lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// SetState transitions the session and fires started/completed/failed
// callbacks at the appropriate edges.
func (s *Session) SetState(next State) {
	s.state.Store(int32(next))
	switch next {
	case Running:
		if s.Opts.Callbacks.OnStarted != nil {
			s.Opts.Callbacks.OnStarted()
		}
	case Completed:
		if s.Opts.Callbacks.OnCompleted != nil {
			s.Opts.Callbacks.OnCompleted(s.DestinationPath())
		}
	case Failed, Cancelled:
		if s.Opts.Callbacks.OnFailed != nil {
			s.Opts.Callbacks.OnFailed(s.LastError())
		}
	}
}

// LastError returns the error that drove the session to Failed, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SetLastError records the terminal failure cause.
func (s *Session) SetLastError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// OnChunkStateChanged adapts a chunk's state transition into the session's
// state_changed observer callback.
func (s *Session) OnChunkStateChanged(index int, st chunk.State) {
	if s.Opts.Callbacks.OnStateChanged != nil {
		s.Opts.Callbacks.OnStateChanged(index, st)
	}
}
