// Package engine implements the top-level download orchestrator: it probes
// a URL, resolves a destination, partitions the resource into chunks,
// drives their fetchers to completion, and publishes the final file.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/kagedl/fetchengine/internal/aggregator"
	"github.com/kagedl/fetchengine/internal/chunk"
	"github.com/kagedl/fetchengine/internal/coordinator"
	"github.com/kagedl/fetchengine/internal/executor"
	"github.com/kagedl/fetchengine/internal/fetcherr"
	"github.com/kagedl/fetchengine/internal/probe"
	"github.com/kagedl/fetchengine/internal/rangespec"
	"github.com/kagedl/fetchengine/internal/reporter"
	"github.com/kagedl/fetchengine/internal/session"
)

// Engine drives one Session from Idle through to Completed or Failed. It
// is not reusable across sessions.
type Engine struct {
	Client     *http.Client
	MimeLookup MimeLookup

	sess *session.Session

	mu       sync.Mutex
	coord    *coordinator.Coordinator
	prog     *aggregator.Progress
	speed    *aggregator.Speed
	progRep  *reporter.Reporter
	speedRep *reporter.Reporter

	cancelFn context.CancelFunc
	doneCh   chan struct{}
	paused   atomic.Bool
}

// New creates an Engine for sess. sess must not have been started.
func New(sess *session.Session, client *http.Client, mimeLookup MimeLookup) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	return &Engine{
		Client:     client,
		MimeLookup: mimeLookup,
		sess:       sess,
		doneCh:     make(chan struct{}),
	}
}

// Start is idempotent: transitions Idle -> Running by probing, resolving
// paths, partitioning the resource, and spawning chunk fetchers. It
// returns once every chunk has reached a terminal state and the
// destination has been published (or the session has failed).
func (e *Engine) Start(ctx context.Context) error {
	if e.sess.State() != session.Idle {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancelFn = cancel
	e.mu.Unlock()

	e.sess.SetState(session.Running)

	if err := e.run(ctx); err != nil {
		e.sess.SetLastError(err)
		paused := e.paused.Load()
		switch {
		case paused:
			e.sess.SetState(session.Paused)
		case errors.Is(err, context.Canceled):
			e.sess.SetState(session.Cancelled)
		default:
			e.sess.SetState(session.Failed)
		}
		if !paused {
			e.cleanupOnFailure()
		}
		close(e.doneCh)
		return err
	}

	close(e.doneCh)
	return nil
}

func (e *Engine) run(ctx context.Context) error {
	opts := e.sess.Opts

	info, err := probe.Do(ctx, probe.Request{
		Client:            e.Client,
		URL:               opts.URL,
		Headers:           opts.Headers,
		UserAgent:         opts.UserAgent,
		SupportsHeadProbe: opts.SupportsHeadRequest,
	})
	if err != nil {
		return err
	}
	e.sess.SetInfo(info)

	name := opts.DstName
	if name == "" {
		stem := DeriveName(info.FilenameHint, "", opts.URL)
		ext := DeriveExtension(info.ContentType, opts.URL, e.MimeLookup)
		name = ApplyTemplate(opts.Filename, stemOf(stem), ext)
	}

	ext := filepath.Ext(name)
	if IsExcluded(ext, opts.ExcludedExtensions) {
		return fetcherr.New(fetcherr.InputError, "extension disallowed: "+ext)
	}

	var expectedTotal int64
	if info.FullLength != nil {
		expectedTotal = *info.FullLength
	}

	paths, err := ResolvePath(opts.DstDir, opts.TempDir, name, opts.WriteMode, expectedTotal)
	if err != nil {
		return err
	}
	e.sess.SetPaths(paths.Destination, paths.TempDest)

	chunks, err := e.buildChunks(info, paths, expectedTotal)
	if err != nil {
		return err
	}
	e.sess.SetChunks(chunks)

	if paths.Resume {
		if _, err := coordinator.TrySetBytes(chunks, paths.TempDest, opts.WriteMode, expectedTotal); err != nil {
			return err
		}
	}

	e.wireObservers(chunks)

	pool, pctx := executor.New(ctx, opts.Chunks)

	fetcher := func(c *chunk.Chunk) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			if c.State() == chunk.Merged {
				return nil
			}
			f := &chunk.Fetcher{
				Client:      e.Client,
				URL:         opts.URL,
				Headers:     opts.Headers,
				UserAgent:   opts.UserAgent,
				BufferSize:  opts.BufferSize,
				MaxBPS:      opts.MaxBPS,
				Attempts:    opts.Attempts,
				Timeout:     opts.Timeout,
				OnProgress:  func(written int64, p float64) { e.prog.Update(c.Index, p) },
				OnSpeed:     func(bps float64) { e.speed.Update(c.Index, bps) },
				OnState:     func(st chunk.State) { e.sess.OnChunkStateChanged(c.Index, st) },
				ShouldPause: e.shouldPause,
				ReprobeFunc: func(ctx context.Context) (probe.ContentInfo, error) {
					return probe.Do(ctx, probe.Request{
						Client:            e.Client,
						URL:               opts.URL,
						Headers:           opts.Headers,
						UserAgent:         opts.UserAgent,
						SupportsHeadProbe: opts.SupportsHeadRequest,
					})
				},
			}
			err := f.Fetch(ctx, c)
			if err == nil {
				e.coord.NotifyChunkCompleted()
			}
			return err
		}
	}

	for _, c := range chunks {
		if err := pool.Submit(pctx, fetcher(c)); err != nil {
			break
		}
	}

	if err := pool.Wait(); err != nil {
		return err
	}

	e.coord.NotifyAllChunksDone()
	if !e.coord.AllMerged() {
		return fetcherr.New(fetcherr.IntegrityError, "merge did not reach the final chunk")
	}

	if err := os.Rename(paths.TempDest, paths.Destination); err != nil {
		return fetcherr.Wrap(fetcherr.LocalIOError, "publish destination", err)
	}
	e.progRep.Report(1.0)
	e.progRep.Flush()
	e.speedRep.Flush()
	e.sess.SetState(session.Completed)
	return nil
}

func stemOf(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return name
	}
	return name[:len(name)-len(ext)]
}

func (e *Engine) buildChunks(info probe.ContentInfo, paths ResolvedPaths, expectedTotal int64) ([]*chunk.Chunk, error) {
	opts := e.sess.Opts
	n := opts.Chunks
	if n > 1 && (!info.AcceptsBytes || expectedTotal <= 0) {
		n = 1 // server doesn't support ranges, or length is unknown
	}

	var ranges []rangespec.Absolute
	if n <= 1 {
		length := expectedTotal
		ranges = []rangespec.Absolute{{Start: 0, End: length - 1, Length: length}}
		if length <= 0 {
			ranges[0] = rangespec.Absolute{Start: 0, End: -1, Length: 0}
		}
	} else {
		var err error
		ranges, err = rangespec.Partitions(expectedTotal, n)
		if err != nil {
			return nil, err
		}
	}

	if opts.MinByte != nil || opts.MaxByte != nil {
		lo := int64(0)
		hi := expectedTotal - 1
		if opts.MinByte != nil {
			lo = *opts.MinByte
		}
		if opts.MaxByte != nil {
			hi = *opts.MaxByte
		}
		bound := rangespec.Absolute{Start: lo, End: hi, Length: hi - lo + 1}
		for i, r := range ranges {
			intersected, err := rangespec.Intersect(r, bound)
			if err != nil {
				return nil, err
			}
			ranges[i] = intersected
		}
	}

	base := filepath.Base(paths.TempDest)
	chunks := make([]*chunk.Chunk, len(ranges))
	for i, r := range ranges {
		var partPath string
		if len(ranges) == 1 {
			partPath = paths.Destination + ".part"
		} else {
			partPath = filepath.Join(filepath.Dir(paths.TempDest), fmt.Sprintf("%s.%d_chunk", base, i+1))
		}
		chunks[i] = chunk.New(i, r, partPath)
	}
	return chunks, nil
}

func (e *Engine) wireObservers(chunks []*chunk.Chunk) {
	opts := e.sess.Opts
	minInterval := opts.ReportMinInterval

	e.progRep = reporter.New(minInterval, func(v any) {
		if opts.Callbacks.OnProgress != nil {
			opts.Callbacks.OnProgress(v.(float64))
		}
	})
	e.speedRep = reporter.New(minInterval, func(v any) {
		if opts.Callbacks.OnSpeed != nil {
			opts.Callbacks.OnSpeed(v.(float64))
		}
	})

	e.prog = aggregator.NewProgress(len(chunks), func(mean float64) { e.progRep.Report(mean) })
	e.speed = aggregator.NewSpeed(len(chunks), func(sum float64) { e.speedRep.Report(sum) })

	e.coord = coordinator.New(chunks, e.sess.TempDestination(), opts.MergeWhileProgress, e.sess.SetBytesWritten, nil)
}

// Pause signals cooperative suspension; running chunks finish their
// current buffer write and stop, leaving the session resumable. Unlike
// Cancel it does not touch the context, so part files and coordinator
// state are left exactly as a future resume expects to find them.
func (e *Engine) Pause() {
	e.mu.Lock()
	started := e.cancelFn != nil
	e.mu.Unlock()
	if !started {
		return
	}
	e.paused.Store(true)
	e.sess.SetState(session.Paused)
}

func (e *Engine) shouldPause() bool {
	return e.paused.Load()
}

// Cancel performs non-resumable termination: every chunk is aborted and,
// per delete_on_failure, scratch files are removed.
func (e *Engine) Cancel() {
	e.mu.Lock()
	cancel := e.cancelFn
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the session reaches a terminal state.
func (e *Engine) Wait() {
	<-e.doneCh
}

func (e *Engine) cleanupOnFailure() {
	if e.progRep != nil {
		e.progRep.Close()
	}
	if e.speedRep != nil {
		e.speedRep.Close()
	}
	if !e.sess.Opts.DeleteOnFailure {
		return
	}
	for _, c := range e.sess.Chunks() {
		_ = os.Remove(c.PartPath())
	}
	if temp := e.sess.TempDestination(); temp != "" {
		if info, err := os.Stat(temp); err == nil && info.Size() == 0 {
			_ = os.Remove(temp)
		}
	}
}
