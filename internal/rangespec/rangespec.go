// Package rangespec implements byte-range algebra: absolute byte ranges,
// index-of-N partitions, and per-mille fractional ranges, all resolvable to
// an Absolute range given a total length.
package rangespec

import (
	"math"

	"github.com/kagedl/fetchengine/internal/fetcherr"
)

// Kind tags which variant a Range holds.
type Kind int

const (
	// KindEmpty is the sentinel "full content" range: both endpoints unset.
	KindEmpty Kind = iota
	KindAbsolute
	KindPartition
	KindFractional
)

// Range is a closed byte interval, tagged by Kind. Only the fields relevant
// to Kind are meaningful; the zero value is the empty (full-content) range.
type Range struct {
	kind Kind

	// Absolute
	start *int64
	end   *int64

	// Partition
	index int
	total int

	// Fractional, both in [0,1]
	fracStart float64
	fracEnd   float64
}

// Empty returns the sentinel "full content" range.
func Empty() Range { return Range{kind: KindEmpty} }

// IsFull reports whether r represents the full content.
func (r Range) IsFull() bool {
	return r.kind == KindEmpty || (r.kind == KindAbsolute && r.start == nil && r.end == nil)
}

// AbsoluteRange builds a Range over raw byte offsets. Either bound may be
// nil. Construction rejects end < start.
func AbsoluteRange(start, end *int64) (Range, error) {
	if start != nil && end != nil && *end < *start {
		return Range{}, fetcherr.New(fetcherr.InputError, "absolute range end before start")
	}
	if start != nil && *start < 0 {
		return Range{}, fetcherr.New(fetcherr.InputError, "absolute range start must be >= 0")
	}
	return Range{kind: KindAbsolute, start: start, end: end}, nil
}

// Partition builds the i-th of N equal-slice ranges. 0 <= index < total.
func Partition(index, total int) (Range, error) {
	if total <= 0 {
		return Range{}, fetcherr.New(fetcherr.InputError, "partition total must be positive")
	}
	if index < 0 || index >= total {
		return Range{}, fetcherr.New(fetcherr.InputError, "partition index out of bounds")
	}
	return Range{kind: KindPartition, index: index, total: total}, nil
}

// Fractional builds a per-mille range over [a, b], both in [0,1], a < b.
func Fractional(a, b float64) (Range, error) {
	if a < 0 || a > 1 || b < 0 || b > 1 {
		return Range{}, fetcherr.New(fetcherr.InputError, "fractional bounds must be in [0,1]")
	}
	if !(a < b) {
		return Range{}, fetcherr.New(fetcherr.InputError, "fractional start must be < end")
	}
	return Range{kind: KindFractional, fracStart: a, fracEnd: b}, nil
}

// Absolute is a closed, fully-resolved byte interval [Start, End] plus the
// derived inclusive Length.
type Absolute struct {
	Start  int64
	End    int64
	Length int64
}

// ToAbsolute resolves r against totalLength, returning the clamped absolute
// range and its partial length. totalLength must be the server-reported full
// content length; callers with no known length must defer resolution rather
// than call this with a guessed value.
func (r Range) ToAbsolute(totalLength int64) (Absolute, error) {
	switch r.kind {
	case KindEmpty:
		return Absolute{Start: 0, End: totalLength - 1, Length: totalLength}, nil

	case KindAbsolute:
		start := int64(0)
		if r.start != nil {
			start = *r.start
		}
		end := totalLength - 1
		if r.end != nil {
			end = *r.end
			if end > totalLength-1 {
				end = totalLength - 1
			}
		}
		if end < start {
			return Absolute{}, fetcherr.New(fetcherr.InputError, "resolved absolute range is empty")
		}
		// Length = 1 + End - Start is a genuine inclusive semantic, not
		// an off-by-one.
		length := end - start + 1
		return Absolute{Start: start, End: end, Length: length}, nil

	case KindPartition:
		slice := totalLength / int64(r.total)
		start := int64(r.index) * slice
		var end int64
		if r.index == r.total-1 {
			end = totalLength - 1
		} else {
			end = int64(r.index+1)*slice - 1
		}
		if end < start {
			return Absolute{}, fetcherr.New(fetcherr.InputError, "resolved partition range is empty")
		}
		return Absolute{Start: start, End: end, Length: end - start + 1}, nil

	case KindFractional:
		unit := totalLength / 1000
		start := int64(math.Round(r.fracStart*1000)) * unit
		end := int64(math.Round(r.fracEnd*1000))*unit - 1
		if end < start {
			return Absolute{}, fetcherr.New(fetcherr.InputError, "resolved fractional range is empty")
		}
		return Absolute{Start: start, End: end, Length: end - start + 1}, nil

	default:
		return Absolute{}, fetcherr.New(fetcherr.InputError, "unknown range kind")
	}
}

// Intersect returns the overlap of two resolved ranges, failing with
// DisjointRanges (InputError) when they do not overlap.
func Intersect(a, b Absolute) (Absolute, error) {
	start := a.Start
	if b.Start > start {
		start = b.Start
	}
	end := a.End
	if b.End < end {
		end = b.End
	}
	if start > end {
		return Absolute{}, fetcherr.New(fetcherr.InputError, "disjoint ranges")
	}
	return Absolute{Start: start, End: end, Length: end - start + 1}, nil
}

// Partitions splits [0, totalLength-1] into n equal-ish partitions, in the
// same index/total terms as Partition. n must be >= 1. A zero-length
// resource yields no partitions.
func Partitions(totalLength int64, n int) ([]Absolute, error) {
	if totalLength <= 0 {
		return nil, nil
	}
	if n < 1 {
		return nil, fetcherr.New(fetcherr.InputError, "chunk count must be >= 1")
	}
	out := make([]Absolute, 0, n)
	for i := 0; i < n; i++ {
		r, err := Partition(i, n)
		if err != nil {
			return nil, err
		}
		abs, err := r.ToAbsolute(totalLength)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}
