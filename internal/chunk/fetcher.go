package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/kagedl/fetchengine/internal/fetcherr"
	"github.com/kagedl/fetchengine/internal/probe"
	"github.com/kagedl/fetchengine/internal/throttle"
)

// ErrPaused is returned by stream when ShouldPause reports true between
// reads. Fetch treats it the same way it treats ctx cancellation: the
// chunk stops at Paused rather than Failed, and it does not consume a
// retry attempt.
var ErrPaused = errors.New("chunk fetch paused")

// Fetcher owns one Chunk exclusively: its part file and HTTP response
// stream. No other component writes the part file while a Fetcher runs.
type Fetcher struct {
	Client     *http.Client
	URL        string
	Headers    map[string]string
	UserAgent  string
	BufferSize int
	MaxBPS     int64
	Attempts   int // retry budget; <= 0 means 1 attempt, no retries
	Timeout    time.Duration

	OnProgress func(bytesWritten int64, progress float64)
	OnSpeed    func(bytesPerSecond float64)
	OnState    func(State)

	// ShouldPause is polled between reads during streaming; once it
	// reports true the current buffer write is allowed to finish and the
	// chunk then stops at Paused, resumable on the next session. Optional;
	// nil means the chunk never pauses cooperatively (only ctx cancellation
	// stops it).
	ShouldPause func() bool

	// ReprobeFunc is invoked when the fetcher discovers the real resource
	// length was different than assumed (the reload trigger). It is
	// optional; nil falls back to the response's own Content-Length.
	ReprobeFunc func(ctx context.Context) (probe.ContentInfo, error)
}

// Fetch runs the chunk's fetch-and-retry lifecycle. It returns nil once
// the chunk reaches Completed, or an error once the retry budget (or a
// non-retriable failure) sends it to Failed.
func (f *Fetcher) Fetch(ctx context.Context, c *Chunk) error {
	budget := f.Attempts
	if budget <= 0 {
		budget = 1
	}

	c.setState(Running)
	f.notifyState(Running)

	for {
		err := f.attempt(ctx, c)
		if err == nil {
			c.setState(Completed)
			f.notifyState(Completed)
			if f.OnProgress != nil {
				f.OnProgress(c.BytesWritten(), 1.0)
			}
			return nil
		}

		if errors.Is(err, context.Canceled) {
			c.setLastError(fetcherr.New(fetcherr.CancellationError, "fetch cancelled"))
			c.setState(Paused)
			f.notifyState(Paused)
			return err
		}

		if errors.Is(err, ErrPaused) {
			c.setLastError(fetcherr.New(fetcherr.CancellationError, "fetch paused"))
			c.setState(Paused)
			f.notifyState(Paused)
			return err
		}

		c.setLastError(err)
		if !isRetriable(err) {
			c.setState(Failed)
			f.notifyState(Failed)
			return err
		}

		if c.Attempts() >= budget {
			c.setState(Failed)
			f.notifyState(Failed)
			return fmt.Errorf("chunk %d: exhausted %d attempts: %w", c.Index, budget, err)
		}

		c.setState(Idle)
		f.notifyState(Idle)
		c.setState(Running)
		f.notifyState(Running)
	}
}

func (f *Fetcher) notifyState(s State) {
	if f.OnState != nil {
		f.OnState(s)
	}
}

// attempt performs one full pass of the protocol: determine effective
// start, issue the Range GET, and stream the response into the part file.
func (f *Fetcher) attempt(ctx context.Context, c *Chunk) error {
	c.incAttempts()

	onDisk, err := partFileSize(c.PartPath())
	if err != nil {
		return fetcherr.WrapChunk(fetcherr.LocalIOError, c.Index, "stat part file", err)
	}

	r := c.ResolvedRange()
	effectiveStart := r.Start + onDisk

	req, cancel, err := f.newRequest(ctx, effectiveStart, r.End)
	if err != nil {
		return fetcherr.WrapChunk(fetcherr.FatalNetworkError, c.Index, "build request", err)
	}
	defer cancel()

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return classifyTransportError(c.Index, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		c.setBytesWritten(onDisk)
		return f.stream(ctx, c, resp)

	case http.StatusOK:
		if onDisk > 0 {
			// CheckClearFile policy: server ignored our Range. Truncate and
			// retry once from zero. Returning a TransientNetworkError here
			// spends one entry of the normal retry budget rather than a
			// dedicated zero-cost retry; acceptable since CheckClearFile is
			// rare and Attempts is not typically set to 1.
			if err := os.Truncate(c.PartPath(), 0); err != nil {
				return fetcherr.WrapChunk(fetcherr.LocalIOError, c.Index, "truncate for CheckClearFile retry", err)
			}
			c.setBytesWritten(0)
			return fetcherr.WrapChunk(fetcherr.TransientNetworkError, c.Index, "server returned 200 with bytes on disk, retrying from zero", nil)
		}
		// The server ignored our Range GET and returned the full body
		// instead of 206. Reload trigger: the chunk's assumed length (from
		// partitioning against an earlier probe) no longer matches what
		// this response will actually deliver, so re-probe for the real
		// length and re-enter the chunk at that length before streaming.
		if total, ok := f.reloadLength(ctx, resp); ok {
			c.Reload(total)
		}
		c.setBytesWritten(0)
		return f.stream(ctx, c, resp)

	case http.StatusRequestedRangeNotSatisfiable:
		return fetcherr.WrapChunk(fetcherr.IntegrityError, c.Index, "server rejected range", fmt.Errorf("416"))

	default:
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests {
			return fetcherr.WrapChunk(fetcherr.TransientNetworkError, c.Index, "retriable status", fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fetcherr.WrapChunk(fetcherr.FatalNetworkError, c.Index, "non-retriable status", fmt.Errorf("status %d", resp.StatusCode))
		}
		return fetcherr.WrapChunk(fetcherr.TransientNetworkError, c.Index, "server error", fmt.Errorf("status %d", resp.StatusCode))
	}
}

// reloadLength resolves the resource's real length when the server has
// ignored our Range header and returned 200 instead of 206. It prefers a
// fresh probe (which can distinguish a reliable Content-Length from a
// chunked/compressed one); failing that it falls back to the 200 response's
// own Content-Length.
func (f *Fetcher) reloadLength(ctx context.Context, resp *http.Response) (int64, bool) {
	if f.ReprobeFunc != nil {
		if info, err := f.ReprobeFunc(ctx); err == nil && info.FullLength != nil {
			return *info.FullLength, true
		}
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength, true
	}
	return 0, false
}

func (f *Fetcher) newRequest(ctx context.Context, start, end int64) (*http.Request, context.CancelFunc, error) {
	cancel := context.CancelFunc(func() {})
	if f.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	for k, v := range f.Headers {
		req.Header.Set(k, v)
	}
	ua := f.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	return req, cancel, nil
}

// stream copies resp.Body into the part file through a throttled reader,
// reporting progress as it goes.
func (f *Fetcher) stream(ctx context.Context, c *Chunk, resp *http.Response) error {
	file, err := os.OpenFile(c.PartPath(), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fetcherr.WrapChunk(fetcherr.LocalIOError, c.Index, "open part file", err)
	}
	defer file.Close()

	onDisk := c.BytesWritten()
	if _, err := file.Seek(onDisk, io.SeekStart); err != nil {
		return fetcherr.WrapChunk(fetcherr.LocalIOError, c.Index, "seek part file", err)
	}

	bufSize := f.BufferSize
	if bufSize <= 0 {
		bufSize = 1024
	}

	tr := throttle.New(resp.Body, f.MaxBPS, f.OnSpeed)
	buf := make([]byte, bufSize)

	length := c.ResolvedRange().Length
	for {
		n, readErr := tr.ReadContext(ctx, buf)
		if n > 0 {
			if _, werr := file.Write(buf[:n]); werr != nil {
				return fetcherr.WrapChunk(fetcherr.LocalIOError, c.Index, "write part file", werr)
			}
			c.addBytesWritten(int64(n))
			written := c.BytesWritten()
			if f.OnProgress != nil {
				f.OnProgress(written, c.Progress())
			}
			if written >= length {
				c.setPartialLength(written)
				return nil
			}
		}
		if readErr == io.EOF {
			written := c.BytesWritten()
			c.setPartialLength(written)
			if written < length {
				return fetcherr.WrapChunk(fetcherr.IntegrityError, c.Index, fmt.Sprintf("incomplete response: got %d/%d bytes", written, length), nil)
			}
			return nil
		}
		if readErr != nil {
			return classifyTransportError(c.Index, readErr)
		}
		if f.ShouldPause != nil && f.ShouldPause() {
			return ErrPaused
		}
	}
}

func partFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

func classifyTransportError(chunkIndex int, err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fetcherr.WrapChunk(fetcherr.TimeoutError, chunkIndex, "request timed out", err)
	}
	return fetcherr.WrapChunk(fetcherr.TransientNetworkError, chunkIndex, "transport error", err)
}

func isRetriable(err error) bool {
	kind := fetcherr.KindOf(err)
	return kind == fetcherr.TransientNetworkError || kind == fetcherr.TimeoutError || kind == fetcherr.IntegrityError
}

// DefaultUserAgent is used when no per-request User-Agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
