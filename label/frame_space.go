package label

import (
	"fmt"
	"sort"
)

// FrameMetadata is per-frame media metadata carried by DICOM series and
// similar frame sequences: the source instance identifier and the frame's
// own pixel dimensions.
type FrameMetadata struct {
	InstanceUID string
	Width       int64
	Height      int64
}

// frameEntry is one object annotation on one frame.
type frameEntry struct {
	coords Coordinates
	meta   AnnotationMeta
}

// frameObjectPlacement is everything one object instance occupies on a
// frame-indexed space.
type frameObjectPlacement struct {
	inst   *ObjectInstance
	frames map[int64]*frameEntry
}

// coverage returns the placed frames as merged ranges.
func (p *frameObjectPlacement) coverage() []Range {
	return FramesToRanges(p.frameList())
}

func (p *frameObjectPlacement) frameList() []int64 {
	frames := make([]int64, 0, len(p.frames))
	for f := range p.frames {
		frames = append(frames, f)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	return frames
}

// frameClassificationPlacement is everything one classification instance
// occupies on a frame-indexed space.
type frameClassificationPlacement struct {
	inst   *ClassificationInstance
	frames map[int64]AnnotationMeta
}

func (p *frameClassificationPlacement) frameList() []int64 {
	frames := make([]int64, 0, len(p.frames))
	for f := range p.frames {
		frames = append(frames, f)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	return frames
}

// frameSpace is the placement engine for frame-indexed spaces: video,
// image sequences, and point-cloud event sequences. It keeps the
// hash-to-placement maps and the frame-to-objects reverse index in
// lockstep; every mutation validates fully before touching either.
type frameSpace struct {
	spaceCore

	numberOfFrames int64
	width, height  int64

	objects         map[string]*frameObjectPlacement
	classifications map[string]*frameClassificationPlacement

	// frameIndex answers "which objects are on frame N" without a scan.
	frameIndex map[int64]map[string]struct{}

	frameMeta map[int64]FrameMetadata
}

func newFrameSpace(row *LabelRow, id string, typ SpaceType, numberOfFrames, width, height int64) *frameSpace {
	return &frameSpace{
		spaceCore:       spaceCore{id: id, typ: typ, row: row},
		numberOfFrames:  numberOfFrames,
		width:           width,
		height:          height,
		objects:         make(map[string]*frameObjectPlacement),
		classifications: make(map[string]*frameClassificationPlacement),
		frameIndex:      make(map[int64]map[string]struct{}),
		frameMeta:       make(map[int64]FrameMetadata),
	}
}

func (s *frameSpace) frameEngine() *frameSpace { return s }
func (s *frameSpace) rangeEngine() *rangeSpace { return nil }

// NumberOfFrames returns the space's frame count.
func (s *frameSpace) NumberOfFrames() int64 { return s.numberOfFrames }

func (s *frameSpace) validFrame(f int64) error {
	if f < 0 || f >= s.numberOfFrames {
		return fmt.Errorf("%w: frame %d outside space %q bounds [0, %d]",
			ErrValidation, f, s.id, s.numberOfFrames-1)
	}
	return nil
}

// placementFrames resolves a placement into bounds-checked frame
// indices. Ranges are accepted and expanded.
func (s *frameSpace) placementFrames(p Placement) ([]int64, error) {
	if p.isZero() {
		return nil, fmt.Errorf("%w: empty placement", ErrValidation)
	}
	frames := append([]int64(nil), p.frames...)
	for _, r := range p.ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if err := s.validFrame(r.End); err != nil {
			return nil, err
		}
		frames = append(frames, r.Frames()...)
	}
	for _, f := range p.frames {
		if err := s.validFrame(f); err != nil {
			return nil, err
		}
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: empty placement", ErrValidation)
	}
	return RangesToFrames(FramesToRanges(frames)), nil
}

// placementRanges resolves a placement into bounds-checked ranges over
// frame indices.
func (s *frameSpace) placementRanges(p Placement) ([]Range, error) {
	frames, err := s.placementFrames(p)
	if err != nil {
		return nil, err
	}
	return FramesToRanges(frames), nil
}

func (s *frameSpace) indexAdd(frame int64, hash string) {
	set, ok := s.frameIndex[frame]
	if !ok {
		set = make(map[string]struct{})
		s.frameIndex[frame] = set
	}
	set[hash] = struct{}{}
}

func (s *frameSpace) indexRemove(frame int64, hash string) {
	if set, ok := s.frameIndex[frame]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(s.frameIndex, frame)
		}
	}
}

// PutObjectInstance places an object on the given frames with one set of
// coordinates. Validation is complete before any state changes.
func (s *frameSpace) PutObjectInstance(inst *ObjectInstance, placement Placement, coords Coordinates, opts PutOptions) error {
	policy, meta, err := opts.normalize()
	if err != nil {
		return err
	}
	frames, err := s.placementFrames(placement)
	if err != nil {
		return err
	}
	if coords == nil {
		return fmt.Errorf("%w: placement on %s space %q needs coordinates", ErrValidation, s.typ, s.id)
	}
	if coords.Shape() != inst.object.Shape {
		return fmt.Errorf("%w: %s coordinates do not match object %q shape %s",
			ErrValidation, coords.Shape(), inst.object.Name, inst.object.Shape)
	}
	if err := s.row.canAttachObject(inst); err != nil {
		return err
	}

	existing := s.objects[inst.objectHash]
	if policy == OnOverlapError && existing != nil {
		var overlap []int64
		for _, f := range frames {
			if _, ok := existing.frames[f]; ok {
				overlap = append(overlap, f)
			}
		}
		if len(overlap) > 0 {
			return fmt.Errorf("%w: object %q already placed on frames %v of space %q",
				ErrConflict, inst.objectHash, FramesToRanges(overlap), s.id)
		}
	}

	// Commit.
	if err := inst.bindRow(s.row); err != nil {
		return err
	}
	s.row.attachObject(inst)
	if existing == nil {
		existing = &frameObjectPlacement{inst: inst, frames: make(map[int64]*frameEntry)}
		s.objects[inst.objectHash] = existing
	}
	for _, f := range frames {
		existing.frames[f] = &frameEntry{coords: coords, meta: meta}
		s.indexAdd(f, inst.objectHash)
	}
	s.noteObject(inst.objectHash)
	inst.membership.attach(s.row.spaces[s.id])
	s.row.touch()
	return nil
}

// RemoveObjectInstanceFromRanges removes the intersection of the
// placement with ranges, frame by frame.
func (s *frameSpace) RemoveObjectInstanceFromRanges(inst *ObjectInstance, ranges []Range) ([]Range, error) {
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	p, ok := s.objects[inst.objectHash]
	if !ok {
		return nil, fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, inst.objectHash, s.id)
	}

	requested := MergeRanges(ranges)
	var removed []int64
	for _, f := range p.frameList() {
		for _, r := range requested {
			if r.Contains(f) {
				removed = append(removed, f)
				break
			}
		}
	}
	for _, f := range removed {
		delete(p.frames, f)
		s.indexRemove(f, inst.objectHash)
	}
	removedRanges := FramesToRanges(removed)
	// Dynamic answers only exist where the instance is placed; carve the
	// removed coverage out of them too.
	for _, d := range inst.dynamicOn(s.id) {
		d.removeFromRanges(removedRanges)
	}
	if len(p.frames) == 0 {
		s.ejectObject(p.inst)
	}
	if len(removed) > 0 {
		s.row.touch()
	}
	return removedRanges, nil
}

// RemoveObjectInstance drops the object from this space entirely.
func (s *frameSpace) RemoveObjectInstance(objectHash string) error {
	p, ok := s.objects[objectHash]
	if !ok {
		return fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, objectHash, s.id)
	}
	for f := range p.frames {
		s.indexRemove(f, objectHash)
	}
	s.ejectObject(p.inst)
	s.row.touch()
	return nil
}

// ejectObject finishes an object's departure from the space: placement,
// order, per-space dynamic answers, membership, and (when this was the
// last space) the row registry.
func (s *frameSpace) ejectObject(inst *ObjectInstance) {
	delete(s.objects, inst.objectHash)
	s.forgetObject(inst.objectHash)
	inst.clearDynamic(s.id)
	if inst.membership.detach(s.id) == 0 {
		s.row.releaseObject(inst)
	}
}

// MoveObjectInstanceFromSpace moves the instance's whole placement from
// another frame-indexed space onto this one.
func (s *frameSpace) MoveObjectInstanceFromSpace(inst *ObjectInstance, from Space) error {
	src := from.frameEngine()
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
	for f := range p.frames {
		if err := s.validFrame(f); err != nil {
			return err
		}
	}

	// Commit.
	for f := range p.frames {
		src.indexRemove(f, inst.objectHash)
	}
	delete(src.objects, inst.objectHash)
	src.forgetObject(inst.objectHash)
	inst.membership.detach(src.id)

	s.objects[inst.objectHash] = p
	for f := range p.frames {
		s.indexAdd(f, inst.objectHash)
	}
	s.noteObject(inst.objectHash)
	inst.membership.attach(s.row.spaces[s.id])
	inst.moveDynamic(src.id, s.id)
	s.row.touch()
	return nil
}

// PutClassificationInstance places a classification on frames. One
// instance per feature hash per space; OnOverlapReplace evicts the
// previous holder.
func (s *frameSpace) PutClassificationInstance(inst *ClassificationInstance, placement Placement, opts PutOptions) error {
	policy, meta, err := opts.normalize()
	if err != nil {
		return err
	}
	if inst.global {
		return fmt.Errorf("%w: global classification %q is row-scoped and cannot be placed on a space",
			ErrValidation, inst.classificationHash)
	}
	frames, err := s.placementFrames(placement)
	if err != nil {
		return err
	}
	if err := s.row.canAttachClassification(inst); err != nil {
		return err
	}

	var evict *frameClassificationPlacement
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
		var overlap []int64
		for _, f := range frames {
			if _, ok := existing.frames[f]; ok {
				overlap = append(overlap, f)
			}
		}
		if len(overlap) > 0 {
			return fmt.Errorf("%w: classification %q already placed on frames %v of space %q",
				ErrConflict, inst.classificationHash, FramesToRanges(overlap), s.id)
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
		existing = &frameClassificationPlacement{inst: inst, frames: make(map[int64]AnnotationMeta)}
		s.classifications[inst.classificationHash] = existing
	}
	for _, f := range frames {
		existing.frames[f] = meta
	}
	s.noteClassification(inst.classificationHash)
	inst.membership.attach(s.row.spaces[s.id])
	s.row.touch()
	return nil
}

// RemoveClassificationInstance drops the classification from this space.
func (s *frameSpace) RemoveClassificationInstance(classificationHash string) error {
	p, ok := s.classifications[classificationHash]
	if !ok {
		return fmt.Errorf("%w: classification %q is not placed on space %q",
			ErrNotFound, classificationHash, s.id)
	}
	s.dropClassification(p.inst)
	s.row.touch()
	return nil
}

func (s *frameSpace) dropClassification(inst *ClassificationInstance) {
	delete(s.classifications, inst.classificationHash)
	s.forgetClassification(inst.classificationHash)
	if inst.membership.detach(s.id) == 0 {
		s.row.releaseClassification(inst)
	}
}

// filterFrameSet resolves a query filter into a frame lookup set; nil
// means unfiltered. Out-of-bounds filter frames simply match nothing.
func (s *frameSpace) filterFrameSet(filter *InstanceFilter) map[int64]bool {
	if filter == nil {
		return nil
	}
	set := make(map[int64]bool, len(filter.Frames))
	for _, f := range filter.Frames {
		set[f] = true
	}
	full := Range{Start: 0, End: s.numberOfFrames - 1}
	for _, r := range filter.Ranges {
		if clipped, ok := r.Intersect(full); ok {
			for _, f := range clipped.Frames() {
				set[f] = true
			}
		}
	}
	return set
}

// ObjectInstances returns instances whose placement intersects the
// filter, in first-placement order. A nil filter returns all.
func (s *frameSpace) ObjectInstances(filter *InstanceFilter) []*ObjectInstance {
	set := s.filterFrameSet(filter)
	var out []*ObjectInstance
	for _, hash := range s.objectOrder {
		p := s.objects[hash]
		if set == nil {
			out = append(out, p.inst)
			continue
		}
		for f := range set {
			if _, ok := p.frames[f]; ok {
				out = append(out, p.inst)
				break
			}
		}
	}
	return out
}

// ClassificationInstances returns instances whose placement intersects
// the filter, in first-placement order. A nil filter returns all.
func (s *frameSpace) ClassificationInstances(filter *InstanceFilter) []*ClassificationInstance {
	set := s.filterFrameSet(filter)
	var out []*ClassificationInstance
	for _, hash := range s.classificationOrder {
		p := s.classifications[hash]
		if set == nil {
			out = append(out, p.inst)
			continue
		}
		for f := range set {
			if _, ok := p.frames[f]; ok {
				out = append(out, p.inst)
				break
			}
		}
	}
	return out
}

// ObjectFrames returns the frames an object occupies on this space,
// ascending.
func (s *frameSpace) ObjectFrames(objectHash string) ([]int64, error) {
	p, ok := s.objects[objectHash]
	if !ok {
		return nil, fmt.Errorf("%w: object %q is not placed on space %q", ErrNotFound, objectHash, s.id)
	}
	return p.frameList(), nil
}

// ObjectAnnotation returns the coordinates and provenance of an object
// on one frame.
func (s *frameSpace) ObjectAnnotation(objectHash string, frame int64) (Coordinates, AnnotationMeta, error) {
	p, ok := s.objects[objectHash]
	if !ok {
		return nil, AnnotationMeta{}, fmt.Errorf("%w: object %q is not placed on space %q",
			ErrNotFound, objectHash, s.id)
	}
	entry, ok := p.frames[frame]
	if !ok {
		return nil, AnnotationMeta{}, fmt.Errorf("%w: object %q is not on frame %d of space %q",
			ErrNotFound, objectHash, frame, s.id)
	}
	return entry.coords, entry.meta, nil
}

// ClassificationFrames returns the frames a classification occupies on
// this space, ascending.
func (s *frameSpace) ClassificationFrames(classificationHash string) ([]int64, error) {
	p, ok := s.classifications[classificationHash]
	if !ok {
		return nil, fmt.Errorf("%w: classification %q is not placed on space %q",
			ErrNotFound, classificationHash, s.id)
	}
	return p.frameList(), nil
}

// ObjectsOnFrame answers the reverse index: the instances placed on one
// frame, in first-placement order.
func (s *frameSpace) ObjectsOnFrame(frame int64) []*ObjectInstance {
	set, ok := s.frameIndex[frame]
	if !ok {
		return nil
	}
	out := make([]*ObjectInstance, 0, len(set))
	for _, hash := range s.objectOrder {
		if _, ok := set[hash]; ok {
			out = append(out, s.objects[hash].inst)
		}
	}
	return out
}

// SetAnswerOn answers a dynamic attribute over frames. The placement is
// clipped to the instance's coverage; an instance absent from the space
// is an error.
func (s *frameSpace) SetAnswerOn(inst *ObjectInstance, attrHash string, value AnswerValue, placement Placement) error {
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

	clipped := IntersectRanges(ranges, p.coverage())
	if len(clipped) == 0 {
		// Nothing the instance occupies was addressed; storing zero
		// answers is the contract here, not an error.
		return nil
	}
	inst.dynamicFor(s.id, attr).setOnRanges(answer, clipped)
	s.row.touch()
	return nil
}

// AnswersOn returns dynamic answers intersecting the placement; the
// zero placement returns them all.
func (s *frameSpace) AnswersOn(inst *ObjectInstance, attrHash string, placement Placement) ([]DynamicAnswer, error) {
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
func (s *frameSpace) RemoveAnswerFrom(inst *ObjectInstance, attrHash string, placement Placement) ([]Range, error) {
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

// SetFrameMetadata records per-frame media metadata (DICOM instance UID
// and pixel dimensions).
func (s *frameSpace) SetFrameMetadata(frame int64, md FrameMetadata) error {
	if err := s.validFrame(frame); err != nil {
		return err
	}
	s.frameMeta[frame] = md
	return nil
}

// FrameMetadata returns the metadata recorded for a frame, if any.
func (s *frameSpace) FrameMetadata(frame int64) (FrameMetadata, bool) {
	md, ok := s.frameMeta[frame]
	return md, ok
}

// labeledFrames returns every frame carrying objects, classifications,
// or metadata, ascending. Wire emission iterates this.
func (s *frameSpace) labeledFrames() []int64 {
	seen := make(map[int64]bool)
	for _, p := range s.objects {
		for f := range p.frames {
			seen[f] = true
		}
	}
	for _, p := range s.classifications {
		for f := range p.frames {
			seen[f] = true
		}
	}
	for f := range s.frameMeta {
		seen[f] = true
	}
	frames := make([]int64, 0, len(seen))
	for f := range seen {
		frames = append(frames, f)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	return frames
}
