package label

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-ai/gridline-go/ontology"
)

// LabelStatus is the annotation workflow state of a row.
type LabelStatus string

const (
	StatusNotLabelled      LabelStatus = "NOT_LABELLED"
	StatusLabelInProgress  LabelStatus = "LABEL_IN_PROGRESS"
	StatusLabelled         LabelStatus = "LABELLED"
	StatusReviewInProgress LabelStatus = "REVIEW_IN_PROGRESS"
	StatusReviewed         LabelStatus = "REVIEWED"
)

// DataType identifies the media behind a row.
type DataType string

const (
	DataTypeVideo     DataType = "video"
	DataTypeImage     DataType = "image"
	DataTypeAudio     DataType = "audio"
	DataTypePlainText DataType = "plain_text"
	DataTypeScene     DataType = "scene"
	DataTypeGroup     DataType = "group"
)

// RowConfig configures a new label row. Zero values get defaults where
// noted.
type RowConfig struct {
	// LabelHash identifies the row; defaults to a fresh UUID.
	LabelHash string

	// BranchName defaults to "main".
	BranchName string

	DataHash     string
	DataTitle    string
	DataType     DataType
	DatasetHash  string
	DatasetTitle string

	// Ontology resolves feature hashes during decoding. Optional for
	// rows built in memory from ontology nodes directly.
	Ontology *ontology.Structure
}

// LabelRow is the aggregate holding every annotation on one data item:
// its spaces, the instances placed on them, and row-scoped global
// classifications. It is not safe for concurrent use.
type LabelRow struct {
	labelHash    string
	branchName   string
	createdAt    time.Time
	lastEditedAt time.Time
	dataHash     string
	dataTitle    string
	dataType     DataType
	datasetHash  string
	datasetTitle string
	status       LabelStatus
	structure    *ontology.Structure

	spaces     map[string]Space
	spaceOrder []string

	objects     map[string]*ObjectInstance
	objectOrder []string

	classifications     map[string]*ClassificationInstance
	classificationOrder []string

	// legacy rows came in through the data_units form and go back out
	// the same way. implicitSpace names the space synthesized for them
	// and legacyUnit keeps the unit's media metadata for re-encoding.
	legacy        bool
	implicitSpace string
	legacyUnit    *wireDataUnit
}

// NewLabelRow builds an empty row.
func NewLabelRow(config RowConfig) *LabelRow {
	if config.LabelHash == "" {
		config.LabelHash = uuid.NewString()
	}
	if config.BranchName == "" {
		config.BranchName = "main"
	}
	if config.DataType == "" {
		config.DataType = DataTypeGroup
	}
	now := timeNow()
	return &LabelRow{
		labelHash:       config.LabelHash,
		branchName:      config.BranchName,
		createdAt:       now,
		lastEditedAt:    now,
		dataHash:        config.DataHash,
		dataTitle:       config.DataTitle,
		dataType:        config.DataType,
		datasetHash:     config.DatasetHash,
		datasetTitle:    config.DatasetTitle,
		status:          StatusNotLabelled,
		structure:       config.Ontology,
		spaces:          make(map[string]Space),
		objects:         make(map[string]*ObjectInstance),
		classifications: make(map[string]*ClassificationInstance),
	}
}

func (r *LabelRow) LabelHash() string             { return r.labelHash }
func (r *LabelRow) BranchName() string            { return r.branchName }
func (r *LabelRow) CreatedAt() time.Time          { return r.createdAt }
func (r *LabelRow) LastEditedAt() time.Time       { return r.lastEditedAt }
func (r *LabelRow) DataHash() string              { return r.dataHash }
func (r *LabelRow) DataTitle() string             { return r.dataTitle }
func (r *LabelRow) DataType() DataType            { return r.dataType }
func (r *LabelRow) DatasetHash() string           { return r.datasetHash }
func (r *LabelRow) DatasetTitle() string          { return r.datasetTitle }
func (r *LabelRow) Status() LabelStatus           { return r.status }
func (r *LabelRow) Ontology() *ontology.Structure { return r.structure }

// SetStatus moves the row through the annotation workflow.
func (r *LabelRow) SetStatus(status LabelStatus) error {
	switch status {
	case StatusNotLabelled, StatusLabelInProgress, StatusLabelled,
		StatusReviewInProgress, StatusReviewed:
		r.status = status
		r.touch()
		return nil
	}
	return fmt.Errorf("%w: unknown label status %q", ErrValidation, status)
}

func (r *LabelRow) touch() { r.lastEditedAt = timeNow() }

func (r *LabelRow) addSpace(id string, s Space) error {
	if id == "" {
		return fmt.Errorf("%w: space id must not be empty", ErrValidation)
	}
	if _, ok := r.spaces[id]; ok {
		return fmt.Errorf("%w: space %q already exists on the row", ErrConflict, id)
	}
	r.spaces[id] = s
	r.spaceOrder = append(r.spaceOrder, id)
	r.touch()
	return nil
}

// AddVideoSpace creates a frame-indexed space over a video. Width,
// height, and fps may be zero when unknown; unknown dimensions skip
// bitmask size checks.
func (r *LabelRow) AddVideoSpace(id string, numberOfFrames, width, height int64, fps float64) (*VideoSpace, error) {
	if numberOfFrames <= 0 {
		return nil, fmt.Errorf("%w: video space %q needs a positive frame count, got %d",
			ErrValidation, id, numberOfFrames)
	}
	if width < 0 || height < 0 || fps < 0 {
		return nil, fmt.Errorf("%w: video space %q dimensions must not be negative", ErrValidation, id)
	}
	s := newVideoSpace(r, id, numberOfFrames, width, height, fps)
	if err := r.addSpace(id, s); err != nil {
		return nil, err
	}
	return s, nil
}

// AddImageSpace creates a single-frame space over a still image.
func (r *LabelRow) AddImageSpace(id string, width, height int64) (*ImageSpace, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("%w: image space %q dimensions must not be negative", ErrValidation, id)
	}
	s := newImageSpace(r, id, width, height)
	if err := r.addSpace(id, s); err != nil {
		return nil, err
	}
	return s, nil
}

// AddSceneSpace creates a space indexing a 3D scene's point-cloud
// events.
func (r *LabelRow) AddSceneSpace(id string, numberOfEvents int64) (*SceneSpace, error) {
	if numberOfEvents <= 0 {
		return nil, fmt.Errorf("%w: scene space %q needs a positive event count, got %d",
			ErrValidation, id, numberOfEvents)
	}
	s := newSceneSpace(r, id, numberOfEvents)
	if err := r.addSpace(id, s); err != nil {
		return nil, err
	}
	return s, nil
}

// AddAudioSpace creates a range-indexed space over an audio track.
func (r *LabelRow) AddAudioSpace(id string, durationMs int64) (*AudioSpace, error) {
	if durationMs <= 0 {
		return nil, fmt.Errorf("%w: audio space %q needs a positive duration, got %dms",
			ErrValidation, id, durationMs)
	}
	s := newAudioSpace(r, id, durationMs)
	if err := r.addSpace(id, s); err != nil {
		return nil, err
	}
	return s, nil
}

// AddTextSpace creates a range-indexed space over a text document.
func (r *LabelRow) AddTextSpace(id string, numberOfChars int64) (*TextSpace, error) {
	if numberOfChars <= 0 {
		return nil, fmt.Errorf("%w: text space %q needs a positive character count, got %d",
			ErrValidation, id, numberOfChars)
	}
	s := newTextSpace(r, id, numberOfChars)
	if err := r.addSpace(id, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Space returns the space with the given id.
func (r *LabelRow) Space(id string) (Space, error) {
	s, ok := r.spaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: space %q is not on the row", ErrNotFound, id)
	}
	return s, nil
}

// Spaces returns the row's spaces in creation order.
func (r *LabelRow) Spaces() []Space {
	out := make([]Space, 0, len(r.spaceOrder))
	for _, id := range r.spaceOrder {
		out = append(out, r.spaces[id])
	}
	return out
}

// AddObjectInstance registers an instance on the row without placing it
// anywhere yet.
func (r *LabelRow) AddObjectInstance(inst *ObjectInstance) error {
	if _, ok := r.objects[inst.objectHash]; ok {
		return fmt.Errorf("%w: object %q is already on the row", ErrConflict, inst.objectHash)
	}
	if err := r.canAttachObject(inst); err != nil {
		return err
	}
	if err := inst.bindRow(r); err != nil {
		return err
	}
	r.attachObject(inst)
	r.touch()
	return nil
}

// AddClassificationInstance registers an instance on the row. Global
// instances are unique per feature hash across the row; force evicts a
// previous holder instead of failing.
func (r *LabelRow) AddClassificationInstance(inst *ClassificationInstance, force bool) error {
	if _, ok := r.classifications[inst.classificationHash]; ok {
		return fmt.Errorf("%w: classification %q is already on the row", ErrConflict, inst.classificationHash)
	}
	if err := r.canAttachClassification(inst); err != nil {
		return err
	}
	if inst.global {
		for _, hash := range r.classificationOrder {
			other := r.classifications[hash]
			if !other.global || other.FeatureHash() != inst.FeatureHash() {
				continue
			}
			if !force {
				return fmt.Errorf("%w: global classification feature %q already on the row as instance %q",
					ErrConflict, inst.FeatureHash(), other.classificationHash)
			}
			r.releaseClassification(other)
			break
		}
	}
	if err := inst.bindRow(r); err != nil {
		return err
	}
	r.attachClassification(inst)
	r.touch()
	return nil
}

// ObjectInstances returns the row's object instances in registration
// order. A nil filter returns them all; otherwise only instances whose
// placement on at least one space intersects the filter, each space
// reading the filter in its own terms.
func (r *LabelRow) ObjectInstances(filter *InstanceFilter) []*ObjectInstance {
	out := make([]*ObjectInstance, 0, len(r.objectOrder))
	if filter == nil {
		for _, hash := range r.objectOrder {
			out = append(out, r.objects[hash])
		}
		return out
	}
	matched := make(map[string]bool)
	for _, id := range r.spaceOrder {
		for _, inst := range r.spaces[id].ObjectInstances(filter) {
			matched[inst.objectHash] = true
		}
	}
	for _, hash := range r.objectOrder {
		if matched[hash] {
			out = append(out, r.objects[hash])
		}
	}
	return out
}

// ClassificationInstances returns the row's classification instances in
// registration order. A nil filter returns them all. Global instances
// carry no placement of their own; they occupy the canonical frame 0
// slot, so any filter reaching frame 0 returns them.
func (r *LabelRow) ClassificationInstances(filter *InstanceFilter) []*ClassificationInstance {
	out := make([]*ClassificationInstance, 0, len(r.classificationOrder))
	if filter == nil {
		for _, hash := range r.classificationOrder {
			out = append(out, r.classifications[hash])
		}
		return out
	}
	matched := make(map[string]bool)
	for _, id := range r.spaceOrder {
		for _, inst := range r.spaces[id].ClassificationInstances(filter) {
			matched[inst.classificationHash] = true
		}
	}
	for _, hash := range r.classificationOrder {
		inst := r.classifications[hash]
		if matched[hash] || (inst.global && filter.coversFrame(0)) {
			out = append(out, inst)
		}
	}
	return out
}

// ObjectInstanceByHash looks an instance up by its object hash.
func (r *LabelRow) ObjectInstanceByHash(objectHash string) (*ObjectInstance, error) {
	inst, ok := r.objects[objectHash]
	if !ok {
		return nil, fmt.Errorf("%w: object %q is not on the row", ErrNotFound, objectHash)
	}
	return inst, nil
}

// ClassificationInstanceByHash looks an instance up by its hash.
func (r *LabelRow) ClassificationInstanceByHash(classificationHash string) (*ClassificationInstance, error) {
	inst, ok := r.classifications[classificationHash]
	if !ok {
		return nil, fmt.Errorf("%w: classification %q is not on the row", ErrNotFound, classificationHash)
	}
	return inst, nil
}

// RemoveObjectInstance removes the instance from every space it is
// placed on and from the row.
func (r *LabelRow) RemoveObjectInstance(objectHash string) error {
	inst, ok := r.objects[objectHash]
	if !ok {
		return fmt.Errorf("%w: object %q is not on the row", ErrNotFound, objectHash)
	}
	for _, s := range inst.membership.list() {
		if err := s.RemoveObjectInstance(objectHash); err != nil {
			return err
		}
	}
	// An unplaced instance is still registered; release it directly.
	if _, ok := r.objects[objectHash]; ok {
		r.releaseObject(inst)
	}
	r.touch()
	return nil
}

// RemoveClassificationInstance removes the instance from every space it
// is placed on and from the row.
func (r *LabelRow) RemoveClassificationInstance(classificationHash string) error {
	inst, ok := r.classifications[classificationHash]
	if !ok {
		return fmt.Errorf("%w: classification %q is not on the row", ErrNotFound, classificationHash)
	}
	for _, s := range inst.membership.list() {
		if err := s.RemoveClassificationInstance(classificationHash); err != nil {
			return err
		}
	}
	if _, ok := r.classifications[classificationHash]; ok {
		r.releaseClassification(inst)
	}
	r.touch()
	return nil
}

// canAttachObject pre-validates adding an instance to the row registry.
func (r *LabelRow) canAttachObject(inst *ObjectInstance) error {
	if inst.row != nil && inst.row != r {
		return fmt.Errorf("%w: object instance %q already belongs to another label row",
			ErrValidation, inst.objectHash)
	}
	if other, ok := r.objects[inst.objectHash]; ok && other != inst {
		return fmt.Errorf("%w: a different object instance with hash %q is already on the row",
			ErrConflict, inst.objectHash)
	}
	return nil
}

func (r *LabelRow) attachObject(inst *ObjectInstance) {
	if _, ok := r.objects[inst.objectHash]; ok {
		return
	}
	r.objects[inst.objectHash] = inst
	r.objectOrder = append(r.objectOrder, inst.objectHash)
}

func (r *LabelRow) releaseObject(inst *ObjectInstance) {
	delete(r.objects, inst.objectHash)
	for i, h := range r.objectOrder {
		if h == inst.objectHash {
			r.objectOrder = append(r.objectOrder[:i], r.objectOrder[i+1:]...)
			break
		}
	}
	inst.unbindRow()
}

func (r *LabelRow) canAttachClassification(inst *ClassificationInstance) error {
	if inst.row != nil && inst.row != r {
		return fmt.Errorf("%w: classification instance %q already belongs to another label row",
			ErrValidation, inst.classificationHash)
	}
	if other, ok := r.classifications[inst.classificationHash]; ok && other != inst {
		return fmt.Errorf("%w: a different classification instance with hash %q is already on the row",
			ErrConflict, inst.classificationHash)
	}
	return nil
}

func (r *LabelRow) attachClassification(inst *ClassificationInstance) {
	if _, ok := r.classifications[inst.classificationHash]; ok {
		return
	}
	r.classifications[inst.classificationHash] = inst
	r.classificationOrder = append(r.classificationOrder, inst.classificationHash)
}

func (r *LabelRow) releaseClassification(inst *ClassificationInstance) {
	delete(r.classifications, inst.classificationHash)
	for i, h := range r.classificationOrder {
		if h == inst.classificationHash {
			r.classificationOrder = append(r.classificationOrder[:i], r.classificationOrder[i+1:]...)
			break
		}
	}
	inst.unbindRow()
}
