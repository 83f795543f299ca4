package label

import (
	"fmt"

	"github.com/gridline-ai/gridline-go/ontology"
)

// rangeObjectPlacement is one object instance's footprint on a
// range-indexed space. A placement carries a single provenance record;
// successive puts overwrite it.
type rangeObjectPlacement struct {
	inst   *ObjectInstance
	ranges []Range
	meta   AnnotationMeta
}

type rangeClassificationPlacement struct {
	inst   *ClassificationInstance
	ranges []Range
	meta   AnnotationMeta
}

// rangeSpace is the placement engine for range-indexed spaces: audio
// tracks addressed in milliseconds and text documents addressed in
// character offsets. Annotations are range lists, not per-unit entries;
// a million-millisecond placement stays two integers.
type rangeSpace struct {
	spaceCore

	// size is the addressable extent; valid coordinates are [0, size-1].
	size int64

	objects         map[string]*rangeObjectPlacement
	classifications map[string]*rangeClassificationPlacement
}

func newRangeSpace(row *LabelRow, id string, typ SpaceType, size int64) *rangeSpace {
	return &rangeSpace{
		spaceCore:       spaceCore{id: id, typ: typ, row: row},
		size:            size,
		objects:         make(map[string]*rangeObjectPlacement),
		classifications: make(map[string]*rangeClassificationPlacement),
	}
}

func (s *rangeSpace) frameEngine() *frameSpace { return nil }
func (s *rangeSpace) rangeEngine() *rangeSpace { return s }

// Size returns the addressable extent of the space.
func (s *rangeSpace) Size() int64 { return s.size }

func (s *rangeSpace) validRange(r Range) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.End >= s.size {
		return fmt.Errorf("%w: range end %d outside space %q bounds [0, %d]",
			ErrValidation, r.End, s.id, s.size-1)
	}
	return nil
}

// placementRanges resolves a placement into bounds-checked, merged
// ranges. Single frames are accepted as unit ranges.
func (s *rangeSpace) placementRanges(p Placement) ([]Range, error) {
	if p.isZero() {
		return nil, fmt.Errorf("%w: empty placement", ErrValidation)
	}
	ranges := make([]Range, 0, len(p.ranges)+len(p.frames))
	ranges = append(ranges, p.ranges...)
	for _, f := range p.frames {
		ranges = append(ranges, Range{Start: f, End: f})
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("%w: empty placement", ErrValidation)
	}
	for _, r := range ranges {
		if err := s.validRange(r); err != nil {
			return nil, err
		}
	}
	return MergeRanges(ranges), nil
}

// PutObjectInstance places an object on the given ranges. Range-indexed
// spaces carry no coordinates; the placement itself is the annotation.
func (s *rangeSpace) PutObjectInstance(inst *ObjectInstance, placement Placement, coords Coordinates, opts PutOptions) error {
	policy, meta, err := opts.normalize()
	if err != nil {
		return err
	}
	ranges, err := s.placementRanges(placement)
	if err != nil {
		return err
	}
	if coords != nil {
		return fmt.Errorf("%w: %s space %q takes no coordinates", ErrValidation, s.typ, s.id)
	}
	if err := s.checkObjectShape(inst); err != nil {
		return err
	}
	if err := s.row.canAttachObject(inst); err != nil {
		return err
	}

	existing := s.objects[inst.objectHash]
	if policy == OnOverlapError && existing != nil {
		if overlap := IntersectRanges(ranges, existing.ranges); len(overlap) > 0 {
			return fmt.Errorf("%w: object %q already placed on %v of space %q",
				ErrConflict, inst.objectHash, overlap, s.id)
		}
	}

	// Commit.
	if err := inst.bindRow(s.row); err != nil {
		return err
	}
	s.row.attachObject(inst)
	if existing == nil {
		existing = &rangeObjectPlacement{inst: inst}
		s.objects[inst.objectHash] = existing
	}
	existing.ranges = combineRanges(existing.ranges, ranges, policy)
	existing.meta = meta
	s.noteObject(inst.objectHash)
	inst.membership.attach(s.row.spaces[s.id])
	s.row.touch()
	return nil
}

// combineRanges folds incoming ranges into a placement under the given
// policy. Merge coalesces adjacency; replace carves the incoming ranges
// out of the old ones and keeps adjacent entries separate.
func combineRanges(old, incoming []Range, policy OnOverlap) []Range {
	switch policy {
	case OnOverlapReplace:
		kept := SubtractRanges(old, incoming)
		return SortRanges(append(kept, incoming...))
	default:
		return MergeRanges(append(append([]Range(nil), old...), incoming...))
	}
}

// RemoveObjectInstanceFromRanges carves ranges out of the placement and
// reports what was actually removed.
func (s *rangeSpace) RemoveObjectInstanceFromRanges(inst *ObjectInstance, ranges []Range) ([]Range, error) {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	p, ok := s.objects[inst.objectHash]
	if !ok {
		return nil, fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, inst.objectHash, s.id)
	}
	removed := IntersectRanges(ranges, p.ranges)
	p.ranges = SubtractRanges(p.ranges, ranges)
	// Dynamic answers only exist where the instance is placed; carve the
	// removed coverage out of them too.
	for _, d := range inst.dynamicOn(s.id) {
		d.removeFromRanges(removed)
	}
	if len(p.ranges) == 0 {
		s.ejectObject(p.inst)
	}
	if len(removed) > 0 {
		s.row.touch()
	}
	return removed, nil
}

// RemoveObjectInstance drops the object from this space entirely.
func (s *rangeSpace) RemoveObjectInstance(objectHash string) error {
	p, ok := s.objects[objectHash]
	if !ok {
		return fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, objectHash, s.id)
	}
	s.ejectObject(p.inst)
	s.row.touch()
	return nil
}

func (s *rangeSpace) ejectObject(inst *ObjectInstance) {
	delete(s.objects, inst.objectHash)
	s.forgetObject(inst.objectHash)
	inst.clearDynamic(s.id)
	if inst.membership.detach(s.id) == 0 {
		s.row.releaseObject(inst)
	}
}

// MoveObjectInstanceFromSpace moves the instance's whole placement from
// another range-indexed space onto this one.
func (s *rangeSpace) MoveObjectInstanceFromSpace(inst *ObjectInstance, from Space) error {
	src := from.rangeEngine()
	if src == nil {
		return fmt.Errorf("%w: cannot move object %q between frame-indexed and range-indexed spaces",
			ErrValidation, inst.objectHash)
	}
	if src == s {
		return fmt.Errorf("%w: source and target space are both %q", ErrValidation, s.id)
	}
	if src.row != s.row {
		return fmt.Errorf("%w: spaces %q and %q belong to different label rows", ErrValidation, src.id, s.id)
	}
	p, ok := src.objects[inst.objectHash]
	if !ok {
		return fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, inst.objectHash, src.id)
	}
	if _, ok := s.objects[inst.objectHash]; ok {
		return fmt.Errorf("%w: object %q is already placed on space %q", ErrConflict, inst.objectHash, s.id)
	}
	for _, r := range p.ranges {
		if err := s.validRange(r); err != nil {
			return err
		}
	}

	// Commit.
	delete(src.objects, inst.objectHash)
	src.forgetObject(inst.objectHash)
	inst.membership.detach(src.id)

	s.objects[inst.objectHash] = p
	s.noteObject(inst.objectHash)
	inst.membership.attach(s.row.spaces[s.id])
	inst.moveDynamic(src.id, s.id)
	s.row.touch()
	return nil
}

// PutClassificationInstance places a classification on ranges. One
// instance per feature hash per space; OnOverlapReplace evicts the
// previous holder.
func (s *rangeSpace) PutClassificationInstance(inst *ClassificationInstance, placement Placement, opts PutOptions) error {
	policy, meta, err := opts.normalize()
	if err != nil {
		return err
	}
	if inst.global {
		return fmt.Errorf("%w: global classification %q is row-scoped and cannot be placed on a space",
			ErrValidation, inst.classificationHash)
	}
	ranges, err := s.placementRanges(placement)
	if err != nil {
		return err
	}
	if err := s.row.canAttachClassification(inst); err != nil {
		return err
	}

	var evict *rangeClassificationPlacement
	for _, hash := range s.classificationOrder {
		other := s.classifications[hash]
		if other.inst == inst || other.inst.FeatureHash() != inst.FeatureHash() {
			continue
		}
		if policy != OnOverlapReplace {
			return fmt.Errorf("%w: classification feature %q already present on space %q as instance %q",
				ErrConflict, inst.FeatureHash(), s.id, other.inst.classificationHash)
		}
		evict = other
		break
	}

	existing := s.classifications[inst.classificationHash]
	if policy == OnOverlapError && existing != nil {
		if overlap := IntersectRanges(ranges, existing.ranges); len(overlap) > 0 {
			return fmt.Errorf("%w: classification %q already placed on %v of space %q",
				ErrConflict, inst.classificationHash, overlap, s.id)
		}
	}

	// Commit.
	if err := inst.bindRow(s.row); err != nil {
		return err
	}
	if evict != nil {
		s.dropClassification(evict.inst)
	}
	s.row.attachClassification(inst)
	if existing == nil {
		existing = &rangeClassificationPlacement{inst: inst}
		s.classifications[inst.classificationHash] = existing
	}
	existing.ranges = combineRanges(existing.ranges, ranges, policy)
	existing.meta = meta
	s.noteClassification(inst.classificationHash)
	inst.membership.attach(s.row.spaces[s.id])
	s.row.touch()
	return nil
}

// RemoveClassificationInstance drops the classification from this space.
func (s *rangeSpace) RemoveClassificationInstance(classificationHash string) error {
	p, ok := s.classifications[classificationHash]
	if !ok {
		return fmt.Errorf("%w: classification %q is not placed on space %q",
			ErrNotFound, classificationHash, s.id)
	}
	s.dropClassification(p.inst)
	s.row.touch()
	return nil
}

func (s *rangeSpace) dropClassification(inst *ClassificationInstance) {
	delete(s.classifications, inst.classificationHash)
	s.forgetClassification(inst.classificationHash)
	if inst.membership.detach(s.id) == 0 {
		s.row.releaseClassification(inst)
	}
}

// checkObjectShape enforces that audio spaces take audio-shaped objects
// and text spaces text-shaped ones.
func (s *rangeSpace) checkObjectShape(inst *ObjectInstance) error {
	want := ontology.ShapeAudio
	if s.typ == SpaceTypeText {
		want = ontology.ShapeText
	}
	if inst.object.Shape != want {
		return fmt.Errorf("%w: object %q has shape %s; %s space %q takes %s objects",
			ErrValidation, inst.object.Name, inst.object.Shape, s.typ, s.id, want)
	}
	return nil
}

// ObjectRanges returns the ranges an object occupies on this space and
// the placement's provenance.
func (s *rangeSpace) ObjectRanges(objectHash string) ([]Range, AnnotationMeta, error) {
	p, ok := s.objects[objectHash]
	if !ok {
		return nil, AnnotationMeta{}, fmt.Errorf("%w: object %q is not placed on space %q",
			ErrNotFound, objectHash, s.id)
	}
	return append([]Range(nil), p.ranges...), p.meta, nil
}

// ClassificationRanges returns the ranges a classification occupies on
// this space and the placement's provenance.
func (s *rangeSpace) ClassificationRanges(classificationHash string) ([]Range, AnnotationMeta, error) {
	p, ok := s.classifications[classificationHash]
	if !ok {
		return nil, AnnotationMeta{}, fmt.Errorf("%w: classification %q is not placed on space %q",
			ErrNotFound, classificationHash, s.id)
	}
	return append([]Range(nil), p.ranges...), p.meta, nil
}

// canonicalRanges rejects range lists that are empty, out of bounds,
// out of order, or overlapping. Decoded placements must already be in
// canonical form.
func (s *rangeSpace) canonicalRanges(ranges []Range) error {
	if len(ranges) == 0 {
		return fmt.Errorf("%w: empty range list", ErrFormat)
	}
	for i, r := range ranges {
		if err := s.validRange(r); err != nil {
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}
		if i > 0 && r.Start <= ranges[i-1].End {
			return fmt.Errorf("%w: ranges %v and %v overlap or are out of order",
				ErrFormat, ranges[i-1], r)
		}
	}
	return nil
}

// restoreObject reinstates a decoded placement verbatim so the range
// structure survives a round trip.
func (s *rangeSpace) restoreObject(inst *ObjectInstance, ranges []Range, meta AnnotationMeta) error {
	if err := s.canonicalRanges(ranges); err != nil {
		return fmt.Errorf("object %q on space %q: %w", inst.objectHash, s.id, err)
	}
	if _, ok := s.objects[inst.objectHash]; ok {
		return fmt.Errorf("%w: object %q appears twice on space %q", ErrFormat, inst.objectHash, s.id)
	}
	if err := s.checkObjectShape(inst); err != nil {
		return err
	}
	if err := s.row.canAttachObject(inst); err != nil {
		return err
	}
	if err := inst.bindRow(s.row); err != nil {
		return err
	}
	s.row.attachObject(inst)
	s.objects[inst.objectHash] = &rangeObjectPlacement{inst: inst, ranges: ranges, meta: meta.withDefaults()}
	s.noteObject(inst.objectHash)
	inst.membership.attach(s.row.spaces[s.id])
	return nil
}

// restoreClassification reinstates a decoded classification placement
// verbatim.
func (s *rangeSpace) restoreClassification(inst *ClassificationInstance, ranges []Range, meta AnnotationMeta) error {
	if err := s.canonicalRanges(ranges); err != nil {
		return fmt.Errorf("classification %q on space %q: %w", inst.classificationHash, s.id, err)
	}
	if _, ok := s.classifications[inst.classificationHash]; ok {
		return fmt.Errorf("%w: classification %q appears twice on space %q",
			ErrFormat, inst.classificationHash, s.id)
	}
	for _, hash := range s.classificationOrder {
		other := s.classifications[hash]
		if other.inst.FeatureHash() == inst.FeatureHash() {
			return fmt.Errorf("%w: classification feature %q already present on space %q as instance %q",
				ErrConflict, inst.FeatureHash(), s.id, other.inst.classificationHash)
		}
	}
	if err := s.row.canAttachClassification(inst); err != nil {
		return err
	}
	if err := inst.bindRow(s.row); err != nil {
		return err
	}
	s.row.attachClassification(inst)
	s.classifications[inst.classificationHash] = &rangeClassificationPlacement{inst: inst, ranges: ranges, meta: meta.withDefaults()}
	s.noteClassification(inst.classificationHash)
	inst.membership.attach(s.row.spaces[s.id])
	return nil
}

// matchRanges reports whether a placement intersects the filter. Frame
// values are treated as coordinate points, except frame 0, the
// canonical slot meaning "any placement here".
func matchRanges(placed []Range, filter *InstanceFilter) bool {
	if filter == nil {
		return true
	}
	for _, f := range filter.Frames {
		if f == 0 {
			return len(placed) > 0
		}
		for _, r := range placed {
			if r.Contains(f) {
				return true
			}
		}
	}
	for _, fr := range filter.Ranges {
		for _, r := range placed {
			if r.Overlaps(fr) {
				return true
			}
		}
	}
	return false
}

// ObjectInstances returns instances whose placement intersects the
// filter, in first-placement order. A nil filter returns all.
func (s *rangeSpace) ObjectInstances(filter *InstanceFilter) []*ObjectInstance {
	var out []*ObjectInstance
	for _, hash := range s.objectOrder {
		if p := s.objects[hash]; matchRanges(p.ranges, filter) {
			out = append(out, p.inst)
		}
	}
	return out
}

// ClassificationInstances returns instances whose placement intersects
// the filter, in first-placement order. A nil filter returns all.
func (s *rangeSpace) ClassificationInstances(filter *InstanceFilter) []*ClassificationInstance {
	var out []*ClassificationInstance
	for _, hash := range s.classificationOrder {
		if p := s.classifications[hash]; matchRanges(p.ranges, filter) {
			out = append(out, p.inst)
		}
	}
	return out
}

// SetAnswerOn answers a dynamic attribute over ranges, clipped to the
// instance's placement.
func (s *rangeSpace) SetAnswerOn(inst *ObjectInstance, attrHash string, value AnswerValue, placement Placement) error {
	ranges, err := s.placementRanges(placement)
	if err != nil {
		return err
	}
	p, ok := s.objects[inst.objectHash]
	if !ok {
		return fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, inst.objectHash, s.id)
	}
	attr, err := inst.dynamicAttribute(attrHash)
	if err != nil {
		return err
	}
	answer, err := buildAnswer(attr, value.text, value.optionHashes)
	if err != nil {
		return err
	}

	clipped := IntersectRanges(ranges, p.ranges)
	if len(clipped) == 0 {
		return nil
	}
	inst.dynamicFor(s.id, attr).setOnRanges(answer, clipped)
	s.row.touch()
	return nil
}

// AnswersOn returns dynamic answers intersecting the placement; the
// zero placement returns them all.
func (s *rangeSpace) AnswersOn(inst *ObjectInstance, attrHash string, placement Placement) ([]DynamicAnswer, error) {
	var within []Range
	if !placement.isZero() {
		var err error
		within, err = s.placementRanges(placement)
		if err != nil {
			return nil, err
		}
	}
	if _, ok := s.objects[inst.objectHash]; !ok {
		return nil, fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, inst.objectHash, s.id)
	}
	attr, err := inst.dynamicAttribute(attrHash)
	if err != nil {
		return nil, err
	}
	d := inst.dynamicLookup(s.id, attr.FeatureNodeHash)
	if d == nil {
		return nil, nil
	}
	return d.answersOn(within), nil
}

// RemoveAnswerFrom clears dynamic answers over the placement.
func (s *rangeSpace) RemoveAnswerFrom(inst *ObjectInstance, attrHash string, placement Placement) ([]Range, error) {
	ranges, err := s.placementRanges(placement)
	if err != nil {
		return nil, err
	}
	if _, ok := s.objects[inst.objectHash]; !ok {
		return nil, fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, inst.objectHash, s.id)
	}
	attr, err := inst.dynamicAttribute(attrHash)
	if err != nil {
		return nil, err
	}
	d := inst.dynamicLookup(s.id, attr.FeatureNodeHash)
	if d == nil {
		return nil, nil
	}
	removed := d.removeFromRanges(ranges)
	if len(removed) > 0 {
		s.row.touch()
	}
	return removed, nil
}
