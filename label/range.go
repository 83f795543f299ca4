package label

import (
	"fmt"
	"sort"
)

// Range is a closed interval [Start, End] over an integer coordinate:
// frame indices for frame-indexed spaces, milliseconds for audio,
// character offsets for text, event indices for scenes. Both bounds are
// inclusive.
type Range struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// NewRange validates and builds a range.
func NewRange(start, end int64) (Range, error) {
	r := Range{Start: start, End: end}
	return r, r.Validate()
}

// Validate checks the range invariants: Start >= 0 and End >= Start.
func (r Range) Validate() error {
	if r.Start < 0 {
		return fmt.Errorf("%w: range start %d is negative, must be >= 0", ErrValidation, r.Start)
	}
	if r.End < r.Start {
		return fmt.Errorf("%w: range end %d is before start %d", ErrValidation, r.End, r.Start)
	}
	return nil
}

// Len returns the number of integer points the range covers.
func (r Range) Len() int64 { return r.End - r.Start + 1 }

// Contains reports whether v lies inside the closed interval.
func (r Range) Contains(v int64) bool { return v >= r.Start && v <= r.End }

// Overlaps reports whether the two ranges share at least one point.
// Adjacent ranges ([0,4] and [5,9]) do not overlap.
func (r Range) Overlaps(other Range) bool {
	return r.Start <= other.End && other.Start <= r.End
}

// Intersect returns the shared sub-range, if any.
func (r Range) Intersect(other Range) (Range, bool) {
	if !r.Overlaps(other) {
		return Range{}, false
	}
	return Range{Start: max64(r.Start, other.Start), End: min64(r.End, other.End)}, true
}

// Frames expands the range into its integer points, ascending.
func (r Range) Frames() []int64 {
	frames := make([]int64, 0, r.Len())
	for v := r.Start; v <= r.End; v++ {
		frames = append(frames, v)
	}
	return frames
}

func (r Range) String() string { return fmt.Sprintf("[%d, %d]", r.Start, r.End) }

// MergeRanges returns the sorted union of the given ranges. Overlapping
// and adjacent ranges coalesce into one. The input is not modified and
// the result is idempotent under re-merging.
func MergeRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		if r.Start <= last.End+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortRanges returns the ranges sorted by start without coalescing.
// Used by placement policies that must keep adjacent ranges separate.
func SortRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})
	return sorted
}

// SubtractRange removes the overlap with remove from r, returning the
// zero, one, or two surviving sub-ranges.
func SubtractRange(r, remove Range) []Range {
	overlap, ok := r.Intersect(remove)
	if !ok {
		return []Range{r}
	}
	var out []Range
	if r.Start < overlap.Start {
		out = append(out, Range{Start: r.Start, End: overlap.Start - 1})
	}
	if overlap.End < r.End {
		out = append(out, Range{Start: overlap.End + 1, End: r.End})
	}
	return out
}

// SubtractRanges removes every range in remove from every range in from.
func SubtractRanges(from, remove []Range) []Range {
	out := append([]Range(nil), from...)
	for _, rm := range remove {
		var next []Range
		for _, r := range out {
			next = append(next, SubtractRange(r, rm)...)
		}
		out = next
	}
	return out
}

// IntersectRanges returns the overlap between the two range sets, merged
// and sorted.
func IntersectRanges(a, b []Range) []Range {
	var out []Range
	for _, ra := range a {
		for _, rb := range b {
			if shared, ok := ra.Intersect(rb); ok {
				out = append(out, shared)
			}
		}
	}
	return MergeRanges(out)
}

// FramesToRanges run-length compresses frame indices into ranges.
// Duplicates collapse; the input need not be sorted.
func FramesToRanges(frames []int64) []Range {
	if len(frames) == 0 {
		return nil
	}
	sorted := append([]int64(nil), frames...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := []Range{{Start: sorted[0], End: sorted[0]}}
	for _, f := range sorted[1:] {
		last := &out[len(out)-1]
		switch {
		case f == last.End:
		case f == last.End+1:
			last.End = f
		default:
			out = append(out, Range{Start: f, End: f})
		}
	}
	return out
}

// RangesToFrames expands ranges into the sorted set of covered points.
// The inverse of FramesToRanges for merged inputs.
func RangesToFrames(ranges []Range) []int64 {
	var out []int64
	for _, r := range MergeRanges(ranges) {
		out = append(out, r.Frames()...)
	}
	return out
}

// OnOverlap selects how a placement interacts with an existing one.
type OnOverlap string

const (
	// OnOverlapError fails the operation, naming the overlapping
	// sub-ranges.
	OnOverlapError OnOverlap = "error"

	// OnOverlapMerge unions the new placement with the existing one;
	// adjacent ranges coalesce.
	OnOverlapMerge OnOverlap = "merge"

	// OnOverlapReplace clears the overlapping portion of the existing
	// placement, then inserts the new one. Adjacent ranges stay separate.
	OnOverlapReplace OnOverlap = "replace"
)

func (p OnOverlap) valid() bool {
	switch p {
	case OnOverlapError, OnOverlapMerge, OnOverlapReplace:
		return true
	}
	return false
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
