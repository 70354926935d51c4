// Package fetch is the public entry point for the download engine: a
// plain Options record, a Download handle, and a Run function that wires
// a session to an engine and returns the handle immediately.
package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/kagedl/fetchengine/internal/chunk"
	"github.com/kagedl/fetchengine/internal/coordinator"
	"github.com/kagedl/fetchengine/internal/engine"
	"github.com/kagedl/fetchengine/internal/probe"
	"github.com/kagedl/fetchengine/internal/session"
)

// WriteMode re-exports coordinator.WriteMode so callers never import an
// internal package directly.
type WriteMode = coordinator.WriteMode

const (
	Overwrite        = coordinator.Overwrite
	CreateNew        = coordinator.CreateNew
	AppendOrTruncate = coordinator.AppendOrTruncate
	AppendStrict     = coordinator.AppendStrict
)

// State re-exports session.State.
type State = session.State

const (
	Idle      = session.Idle
	Running   = session.Running
	Paused    = session.Paused
	Completed = session.Completed
	Cancelled = session.Cancelled
	Failed    = session.Failed
)

// ChunkState re-exports chunk.State, surfaced through OnStateChanged.
type ChunkState = chunk.State

// ContentInfo re-exports probe.ContentInfo, surfaced through OnInfoFetched.
type ContentInfo = probe.ContentInfo

// Callbacks is the plain-record observer set a caller supplies to watch a
// download's lifecycle without holding a reference to any internal type.
type Callbacks struct {
	OnInfoFetched  func(ContentInfo)
	OnStarted      func()
	OnStateChanged func(chunkIndex int, s ChunkState)
	OnCompleted    func(destinationPath string)
	OnFailed       func(err error)
	OnProgress     func(fraction float64)
	OnSpeed        func(bytesPerSecond float64)
}

// Options is the plain record a caller fills in to describe one download
// request.
type Options struct {
	URL string

	DstDir   string
	DstName  string
	TempDir  string
	Filename string

	WriteMode          WriteMode
	BufferSize         int
	MaxBPS             int64
	MinByte, MaxByte   *int64
	Chunks             int
	MergeWhileProgress bool
	SupportsHeadProbe  bool
	MinReloadSize      int64
	ExcludedExtensions []string
	Timeout            time.Duration
	DeleteOnFailure    bool
	Attempts           int
	Headers            map[string]string
	UserAgent          string
	ReportMinInterval  time.Duration

	Callbacks Callbacks
}

// toSessionOptions converts the plain public-facing Options into the
// internal session's Options.
func (o Options) toSessionOptions() session.Options {
	return session.Options{
		URL:                 o.URL,
		DstDir:              o.DstDir,
		DstName:             o.DstName,
		TempDir:             o.TempDir,
		Filename:            o.Filename,
		WriteMode:           o.WriteMode,
		BufferSize:          o.BufferSize,
		MaxBPS:              o.MaxBPS,
		MinByte:             o.MinByte,
		MaxByte:             o.MaxByte,
		Chunks:              o.Chunks,
		MergeWhileProgress:  o.MergeWhileProgress,
		SupportsHeadRequest: o.SupportsHeadProbe,
		MinReloadSize:       o.MinReloadSize,
		ExcludedExtensions:  o.ExcludedExtensions,
		Timeout:             o.Timeout,
		DeleteOnFailure:     o.DeleteOnFailure,
		Attempts:            o.Attempts,
		Headers:             o.Headers,
		UserAgent:           o.UserAgent,
		ReportMinInterval:   o.ReportMinInterval,
		Callbacks: session.Callbacks{
			OnInfoFetched:  o.Callbacks.OnInfoFetched,
			OnStarted:      o.Callbacks.OnStarted,
			OnStateChanged: o.Callbacks.OnStateChanged,
			OnCompleted:    o.Callbacks.OnCompleted,
			OnFailed:       o.Callbacks.OnFailed,
			OnProgress:     o.Callbacks.OnProgress,
			OnSpeed:        o.Callbacks.OnSpeed,
		},
	}
}

// Download is the public handle to a running or finished request. It wraps
// a Session and the Engine driving it, exposing only the operations a
// caller needs: pause, cancel, wait, and state inspection.
type Download struct {
	sess *session.Session
	eng  *engine.Engine
}

// ID returns the download's stable session identifier.
func (d *Download) ID() string { return d.sess.ID }

// State returns the download's current lifecycle state.
func (d *Download) State() State { return d.sess.State() }

// BytesWritten returns the cumulative bytes merged into the destination
// file so far.
func (d *Download) BytesWritten() int64 { return d.sess.BytesWritten() }

// DestinationPath returns the resolved final path, once known.
func (d *Download) DestinationPath() string { return d.sess.DestinationPath() }

// LastError returns the error that drove the download to Failed, if any.
func (d *Download) LastError() error { return d.sess.LastError() }

// Pause requests cooperative suspension.
func (d *Download) Pause() { d.eng.Pause() }

// Cancel performs non-resumable termination.
func (d *Download) Cancel() { d.eng.Cancel() }

// Wait blocks until the download reaches a terminal state.
func (d *Download) Wait() { d.eng.Wait() }

// MimeLookup maps a Content-Type to a bare extension, used when deriving a
// filename (no DstName given); its result takes precedence over the URL's
// own extension.
type MimeLookup = engine.MimeLookup

// Run validates opts, allocates a Session, starts an Engine against it, and
// returns immediately with a handle; the download proceeds on its own
// goroutine until Wait is called or it reaches a terminal state on its own.
func Run(ctx context.Context, opts Options, client *http.Client, mimeLookup MimeLookup) (*Download, error) {
	sess, err := session.New(opts.toSessionOptions())
	if err != nil {
		return nil, err
	}

	eng := engine.New(sess, client, mimeLookup)
	d := &Download{sess: sess, eng: eng}

	// Start runs to completion on its own goroutine; callers observe
	// progress through Callbacks or by polling State()/Wait(). Any error
	// ends up in d.LastError() via the session's Failed/Cancelled path.
	go func() {
		_ = eng.Start(ctx)
	}()

	return d, nil
}

// RunSync behaves like Run but blocks until the download reaches a
// terminal state, returning the same error Wait-adjacent callers would see
// from the engine.
func RunSync(ctx context.Context, opts Options, client *http.Client, mimeLookup MimeLookup) (*Download, error) {
	sess, err := session.New(opts.toSessionOptions())
	if err != nil {
		return nil, err
	}

	eng := engine.New(sess, client, mimeLookup)
	d := &Download{sess: sess, eng: eng}

	runErr := eng.Start(ctx)
	return d, runErr
}
