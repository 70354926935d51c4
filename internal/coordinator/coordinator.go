// Package coordinator implements the chunk coordinator that owns the
// ordered set of chunks, merges completed prefixes into the destination
// stream, and reconciles a pre-existing final-temp file on crash recovery.
package coordinator

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/kagedl/fetchengine/internal/chunk"
	"github.com/kagedl/fetchengine/internal/fetcherr"
)

// WriteMode is the session's on-disk write policy; only AppendOrTruncate is
// eligible for the TrySetBytes crash-recovery fast path.
type WriteMode int

const (
	Overwrite WriteMode = iota
	CreateNew
	AppendOrTruncate
	AppendStrict
)

// Coordinator owns the ordered chunk list and a merge mutex ensuring at
// most one merge pass runs at a time; merge attempts triggered while one
// is in flight are simply skipped, and the next completion notification
// will retry.
type Coordinator struct {
	chunks   []*chunk.Chunk
	destPath string

	mergeWhileProgress bool
	onBytesAppended    func(total int64)
	onAllMerged        func()

	mergeMu sync.Mutex
	cursor  atomic.Int64
	total   atomic.Int64
}

// New creates a Coordinator over chunks (assumed already ordered by index)
// writing sequentially into destPath (the destination file in unchunked
// mode, or the final-temp file in chunked mode). Any leading run of
// already-Merged chunks (left by crash-recovery reconciliation before the
// Coordinator existed) seeds the merge cursor so tryMerge resumes past
// them instead of stalling on the first one.
func New(chunks []*chunk.Chunk, destPath string, mergeWhileProgress bool, onBytesAppended func(total int64), onAllMerged func()) *Coordinator {
	co := &Coordinator{
		chunks:             chunks,
		destPath:           destPath,
		mergeWhileProgress: mergeWhileProgress,
		onBytesAppended:    onBytesAppended,
		onAllMerged:        onAllMerged,
	}

	seeded := 0
	var recovered int64
	for _, c := range chunks {
		if c.State() != chunk.Merged {
			break
		}
		seeded++
		recovered += c.ResolvedRange().Length
	}
	co.cursor.Store(int64(seeded))
	co.total.Store(recovered)
	if seeded > 0 && onBytesAppended != nil {
		onBytesAppended(recovered)
	}
	return co
}

// NotifyChunkCompleted is called by the engine whenever any chunk finishes
// fetching. When merge_while_progress is true this triggers an immediate
// merge attempt for the contiguous completed prefix; otherwise it is a
// no-op until NotifyAllChunksDone fires.
func (co *Coordinator) NotifyChunkCompleted() {
	if co.mergeWhileProgress {
		co.tryMerge()
	}
}

// NotifyAllChunksDone is called once every chunk has reached a terminal
// state; it always attempts a final merge pass regardless of
// merge_while_progress, since the "merge only at the end" policy merges
// exactly once, here.
func (co *Coordinator) NotifyAllChunksDone() {
	co.tryMerge()
}

// Cursor returns the index of the next unmerged chunk.
func (co *Coordinator) Cursor() int { return int(co.cursor.Load()) }

// AllMerged reports whether every chunk has been merged into the destination.
func (co *Coordinator) AllMerged() bool { return co.Cursor() == len(co.chunks) }

// tryMerge advances the merge cursor over any contiguous run of completed
// chunks starting at it, writing each into the destination stream in
// order. A held mergeMu means another goroutine is already merging; this
// call skips rather than blocks.
func (co *Coordinator) tryMerge() {
	if !co.mergeMu.TryLock() {
		return
	}
	defer co.mergeMu.Unlock()

	f, err := os.OpenFile(co.destPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	cursor := int(co.cursor.Load())
	for cursor < len(co.chunks) {
		c := co.chunks[cursor]
		if c.State() == chunk.Merged {
			// Already accounted for by crash-recovery seeding; just
			// advance past it.
			cursor++
			co.cursor.Store(int64(cursor))
			continue
		}
		if c.State() != chunk.Completed {
			break
		}

		if err := appendPart(f, c.PartPath()); err != nil {
			c.MarkFailed(fetcherr.WrapChunk(fetcherr.LocalIOError, c.Index, "merge part into destination", err))
			break
		}
		if err := f.Sync(); err != nil {
			break
		}

		co.total.Add(c.ResolvedRange().Length)
		if co.onBytesAppended != nil {
			co.onBytesAppended(co.total.Load())
		}

		_ = os.Remove(c.PartPath())
		if err := c.MarkMerged(); err != nil {
			break
		}

		cursor++
		co.cursor.Store(int64(cursor))
	}

	if cursor == len(co.chunks) && co.onAllMerged != nil {
		co.onAllMerged()
	}
}

func appendPart(dst *os.File, partPath string) error {
	src, err := os.Open(partPath)
	if err != nil {
		return err
	}
	defer src.Close()
	_, err = io.Copy(dst, src)
	return err
}

// TrySetBytes performs crash-recovery reconciliation. It inspects a
// pre-existing final-temp file and, when eligible, marks the
// already-merged prefix of chunks Merged and repositions the boundary
// chunk to resume from its on-disk tail. It is a no-op (eligible=false)
// whenever mode is not AppendOrTruncate or the temp file is absent,
// empty, or longer than the expected total.
func TrySetBytes(chunks []*chunk.Chunk, tempPath string, mode WriteMode, expectedTotal int64) (eligible bool, err error) {
	if mode != AppendOrTruncate {
		return false, nil
	}

	info, statErr := os.Stat(tempPath)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return false, nil
		}
		return false, statErr
	}
	l := info.Size()
	if l <= 0 {
		return false, nil
	}
	if l > expectedTotal {
		return false, nil
	}

	var sum int64
	boundary := -1
	var rest int64
	for i, c := range chunks {
		length := c.ResolvedRange().Length
		if sum+length > l {
			boundary = i
			rest = l - sum
			break
		}
		sum += length
	}

	if boundary == -1 {
		// The temp file covers exactly (or more than, already excluded
		// above) every chunk; nothing remains to fetch.
		for _, c := range chunks {
			if err := markMergedAssumed(c); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	for i := 0; i < boundary; i++ {
		if err := markMergedAssumed(chunks[i]); err != nil {
			return false, err
		}
		_ = os.Remove(chunks[i].PartPath())
	}

	if rest > 0 {
		chunks[boundary].Reposition(rest, rest)
	}

	return true, nil
}

func markMergedAssumed(c *chunk.Chunk) error {
	c.ForceState(chunk.Completed)
	if err := c.MarkMerged(); err != nil {
		return fmt.Errorf("chunk %d: crash recovery merge: %w", c.Index, err)
	}
	return nil
}
