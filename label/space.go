package label

import "fmt"

// SpaceType identifies what kind of media a space indexes into.
type SpaceType string

const (
	SpaceTypeVideo      SpaceType = "video"
	SpaceTypeImage      SpaceType = "image"
	SpaceTypeAudio      SpaceType = "audio"
	SpaceTypeText       SpaceType = "text"
	SpaceTypePointCloud SpaceType = "point_cloud"
)

// frameIndexed reports whether placements on this space type are frame
// sets; the rest take ranges.
func (t SpaceType) frameIndexed() bool {
	switch t {
	case SpaceTypeVideo, SpaceTypeImage, SpaceTypePointCloud:
		return true
	}
	return false
}

// Placement says where an annotation goes: a set of frames on a
// frame-indexed space, or a list of ranges on a range-indexed one.
type Placement struct {
	frames []int64
	ranges []Range
}

// OnFrames places on the given frame indices.
func OnFrames(frames ...int64) Placement {
	return Placement{frames: frames}
}

// OnRanges places on the given ranges.
func OnRanges(ranges ...Range) Placement {
	return Placement{ranges: ranges}
}

// OnRange places on a single [start, end] range.
func OnRange(start, end int64) Placement {
	return Placement{ranges: []Range{{Start: start, End: end}}}
}

// isZero reports an unconstrained placement, accepted by queries to
// mean "everywhere".
func (p Placement) isZero() bool { return p.frames == nil && p.ranges == nil }

// PutOptions tunes a put operation. The zero value means: fail on
// overlap, stamp fresh provenance.
type PutOptions struct {
	// OnOverlap selects the overlap policy; defaults to OnOverlapError.
	OnOverlap OnOverlap

	// Meta is the provenance for the inserted entries; nil stamps a
	// fresh default.
	Meta *AnnotationMeta
}

func (o PutOptions) normalize() (OnOverlap, AnnotationMeta, error) {
	policy := o.OnOverlap
	if policy == "" {
		policy = OnOverlapError
	}
	if !policy.valid() {
		return "", AnnotationMeta{}, fmt.Errorf("%w: unknown overlap policy %q", ErrValidation, policy)
	}
	meta := NewAnnotationMeta()
	if o.Meta != nil {
		meta = o.Meta.withDefaults()
	}
	return policy, meta, nil
}

// AnswerValue is the payload of a dynamic attribute answer: free text
// for text attributes, option hashes for radio and checklist ones.
type AnswerValue struct {
	text         string
	optionHashes []string
}

// TextValue answers a text attribute.
func TextValue(text string) AnswerValue { return AnswerValue{text: text} }

// OptionValue answers a radio attribute with one option hash.
func OptionValue(optionHash string) AnswerValue {
	return AnswerValue{optionHashes: []string{optionHash}}
}

// OptionsValue answers a checklist attribute with option hashes.
func OptionsValue(optionHashes ...string) AnswerValue {
	return AnswerValue{optionHashes: optionHashes}
}

// InstanceFilter restricts queries to instances whose placement
// intersects the given frames or ranges. A nil filter matches every
// instance. On range-indexed spaces, frame 0 is the canonical slot
// meaning "any placement".
type InstanceFilter struct {
	Frames []int64
	Ranges []Range
}

// coversFrame reports whether the filter reaches the given frame, via
// an exact frame value or a covering range.
func (f *InstanceFilter) coversFrame(frame int64) bool {
	for _, fr := range f.Frames {
		if fr == frame {
			return true
		}
	}
	for _, r := range f.Ranges {
		if r.Contains(frame) {
			return true
		}
	}
	return false
}

// Space is one annotated view of the row's data: a video, an image, an
// audio track, a text document, or a point-cloud event sequence. All
// mutations are synchronous and atomic; concurrent use needs external
// locking.
type Space interface {
	ID() string
	Type() SpaceType
	Row() *LabelRow

	// PutObjectInstance places an object instance. Frame-indexed spaces
	// need coordinates matching the object's shape; range-indexed ones
	// take none.
	PutObjectInstance(inst *ObjectInstance, placement Placement, coords Coordinates, opts PutOptions) error

	// RemoveObjectInstanceFromRanges removes the intersection of the
	// instance's placement with the given ranges and reports what was
	// actually removed. Removing the last covered frame or range drops
	// the instance from the space.
	RemoveObjectInstanceFromRanges(inst *ObjectInstance, ranges []Range) ([]Range, error)

	// RemoveObjectInstance drops the instance from this space entirely.
	RemoveObjectInstance(objectHash string) error

	// MoveObjectInstanceFromSpace moves the instance's placement on from
	// onto this space, preserving identity, coordinates, provenance, and
	// dynamic answers.
	MoveObjectInstanceFromSpace(inst *ObjectInstance, from Space) error

	// PutClassificationInstance places a classification instance. At
	// most one instance per feature hash may be active on a space;
	// OnOverlapReplace evicts the previous holder.
	PutClassificationInstance(inst *ClassificationInstance, placement Placement, opts PutOptions) error

	// RemoveClassificationInstance drops the instance from this space.
	RemoveClassificationInstance(classificationHash string) error

	ObjectInstances(filter *InstanceFilter) []*ObjectInstance
	ClassificationInstances(filter *InstanceFilter) []*ClassificationInstance

	// SetAnswerOn answers a dynamic attribute over part of the space.
	// The placement is clipped to where the instance is actually placed;
	// clipping everything away is a legal no-op. An instance that is not
	// on the space at all is an error.
	SetAnswerOn(inst *ObjectInstance, attrHash string, value AnswerValue, placement Placement) error

	// AnswersOn returns the dynamic answers intersecting the placement;
	// the zero placement returns them all.
	AnswersOn(inst *ObjectInstance, attrHash string, placement Placement) ([]DynamicAnswer, error)

	// RemoveAnswerFrom clears dynamic answers over the placement and
	// reports the ranges actually cleared.
	RemoveAnswerFrom(inst *ObjectInstance, attrHash string, placement Placement) ([]Range, error)

	// Exactly one of these returns non-nil. Keeping them unexported
	// closes the interface to this package.
	frameEngine() *frameSpace
	rangeEngine() *rangeSpace
}

// spaceCore carries the identity and ordering state shared by both
// space engines.
type spaceCore struct {
	id  string
	typ SpaceType
	row *LabelRow

	objectOrder         []string
	classificationOrder []string
}

func (c *spaceCore) ID() string      { return c.id }
func (c *spaceCore) Type() SpaceType { return c.typ }
func (c *spaceCore) Row() *LabelRow  { return c.row }

func (c *spaceCore) noteObject(hash string) {
	for _, h := range c.objectOrder {
		if h == hash {
			return
		}
	}
	c.objectOrder = append(c.objectOrder, hash)
}

func (c *spaceCore) forgetObject(hash string) {
	for i, h := range c.objectOrder {
		if h == hash {
			c.objectOrder = append(c.objectOrder[:i], c.objectOrder[i+1:]...)
			return
		}
	}
}

func (c *spaceCore) noteClassification(hash string) {
	for _, h := range c.classificationOrder {
		if h == hash {
			return
		}
	}
	c.classificationOrder = append(c.classificationOrder, hash)
}

func (c *spaceCore) forgetClassification(hash string) {
	for i, h := range c.classificationOrder {
		if h == hash {
			c.classificationOrder = append(c.classificationOrder[:i], c.classificationOrder[i+1:]...)
			return
		}
	}
}
