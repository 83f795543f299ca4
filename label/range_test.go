package label

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestRangeValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       Range
		wantErr bool
	}{
		{"single point", Range{Start: 0, End: 0}, false},
		{"normal", Range{Start: 3, End: 9}, false},
		{"negative start", Range{Start: -1, End: 4}, true},
		{"end before start", Range{Start: 5, End: 4}, true},
	}
	for _, tt := range tests {
		err := tt.r.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestRangeOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Range
		want bool
	}{
		{"identical", Range{0, 5}, Range{0, 5}, true},
		{"shared endpoint", Range{0, 5}, Range{5, 10}, true},
		{"contained", Range{0, 10}, Range{3, 4}, true},
		{"adjacent", Range{0, 4}, Range{5, 10}, false},
		{"disjoint", Range{0, 2}, Range{7, 9}, false},
	}
	for _, tt := range tests {
		if got := tt.a.Overlaps(tt.b); got != tt.want {
			t.Errorf("%s: %v.Overlaps(%v) = %v, want %v", tt.name, tt.a, tt.b, got, tt.want)
		}
		if got := tt.b.Overlaps(tt.a); got != tt.want {
			t.Errorf("%s: %v.Overlaps(%v) = %v, want %v", tt.name, tt.b, tt.a, got, tt.want)
		}
	}
}

func TestRangeIntersect(t *testing.T) {
	got, ok := Range{0, 10}.Intersect(Range{5, 20})
	if !ok || got != (Range{5, 10}) {
		t.Errorf("Intersect = %v, %v, want [5, 10], true", got, ok)
	}
	if _, ok := (Range{0, 4}).Intersect(Range{5, 10}); ok {
		t.Error("adjacent ranges should not intersect")
	}
}

func TestMergeRanges(t *testing.T) {
	tests := []struct {
		name string
		in   []Range
		want []Range
	}{
		{"empty", nil, nil},
		{"overlapping", []Range{{0, 5}, {3, 9}}, []Range{{0, 9}}},
		{"adjacent coalesce", []Range{{0, 4}, {5, 10}}, []Range{{0, 10}}},
		{"disjoint stay apart", []Range{{8, 9}, {0, 2}}, []Range{{0, 2}, {8, 9}}},
		{"duplicate", []Range{{1, 3}, {1, 3}}, []Range{{1, 3}}},
		{"contained", []Range{{0, 10}, {2, 4}}, []Range{{0, 10}}},
	}
	for _, tt := range tests {
		got := MergeRanges(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: MergeRanges(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
		if again := MergeRanges(got); !reflect.DeepEqual(again, got) {
			t.Errorf("%s: MergeRanges not idempotent: %v then %v", tt.name, got, again)
		}
	}
}

func TestSortRangesKeepsAdjacentSeparate(t *testing.T) {
	in := []Range{{5, 10}, {0, 4}}
	want := []Range{{0, 4}, {5, 10}}
	got := SortRanges(in)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortRanges(%v) = %v, want %v", in, got, want)
	}
	if !reflect.DeepEqual(in, []Range{{5, 10}, {0, 4}}) {
		t.Errorf("SortRanges modified its input: %v", in)
	}
}

func TestSubtractRange(t *testing.T) {
	tests := []struct {
		name      string
		r, remove Range
		want      []Range
	}{
		{"no overlap", Range{0, 4}, Range{5, 9}, []Range{{0, 4}}},
		{"full cover", Range{3, 6}, Range{0, 10}, nil},
		{"trim left", Range{0, 10}, Range{0, 3}, []Range{{4, 10}}},
		{"trim right", Range{0, 10}, Range{8, 12}, []Range{{0, 7}}},
		{"split", Range{0, 10}, Range{4, 6}, []Range{{0, 3}, {7, 10}}},
	}
	for _, tt := range tests {
		got := SubtractRange(tt.r, tt.remove)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: SubtractRange(%v, %v) = %v, want %v", tt.name, tt.r, tt.remove, got, tt.want)
		}
	}
}

// Subtracting and intersecting the same remove-set must partition the
// original coverage: every covered point lands in exactly one side.
func TestSubtractIntersectPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	randomRanges := func() []Range {
		n := 1 + rng.Intn(4)
		out := make([]Range, 0, n)
		for i := 0; i < n; i++ {
			start := int64(rng.Intn(40))
			out = append(out, Range{Start: start, End: start + int64(rng.Intn(10))})
		}
		return out
	}
	coverage := func(ranges []Range) map[int64]bool {
		set := make(map[int64]bool)
		for _, f := range RangesToFrames(ranges) {
			set[f] = true
		}
		return set
	}

	for trial := 0; trial < 200; trial++ {
		a, b := randomRanges(), randomRanges()
		kept := coverage(SubtractRanges(a, b))
		cut := coverage(IntersectRanges(a, b))
		orig := coverage(a)

		for f := range kept {
			if cut[f] {
				t.Fatalf("trial %d: point %d in both subtract and intersect of %v by %v", trial, f, a, b)
			}
		}
		for f := range orig {
			if !kept[f] && !cut[f] {
				t.Fatalf("trial %d: point %d of %v lost by subtract/intersect with %v", trial, f, a, b)
			}
		}
		if len(kept)+len(cut) != len(orig) {
			t.Fatalf("trial %d: partition sizes %d+%d != %d for %v by %v",
				trial, len(kept), len(cut), len(orig), a, b)
		}
	}
}

func TestFramesToRanges(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want []Range
	}{
		{"empty", nil, nil},
		{"single", []int64{4}, []Range{{4, 4}}},
		{"run", []int64{0, 1, 2, 3}, []Range{{0, 3}}},
		{"unsorted with dupes", []int64{5, 1, 2, 5, 0, 9}, []Range{{0, 2}, {5, 5}, {9, 9}}},
		{"two runs", []int64{10, 11, 3, 4, 5}, []Range{{3, 5}, {10, 11}}},
	}
	for _, tt := range tests {
		got := FramesToRanges(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: FramesToRanges(%v) = %v, want %v", tt.name, tt.in, got, tt.want)
		}
	}
}

func TestRangesToFramesRoundTrip(t *testing.T) {
	frames := []int64{0, 1, 2, 7, 8, 20}
	back := RangesToFrames(FramesToRanges(frames))
	if !reflect.DeepEqual(back, frames) {
		t.Errorf("round trip = %v, want %v", back, frames)
	}
}
