package label

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/gridline-ai/gridline-go/ontology"
)

// DecodeRow parses a serialized label row against the ontology
// structure its feature hashes resolve in.
func DecodeRow(data []byte, structure *ontology.Structure) (*LabelRow, error) {
	var w WireLabelRow
	if err := json.Unmarshal(data, &w); err != nil {
		if errors.Is(err, ErrFormat) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return FromWire(&w, structure)
}

// FromWire rebuilds a row from its wire form. Instances come first so
// placements and dynamic answers can refer to them; row timestamps are
// restored last, after the rebuild's own edits.
func FromWire(w *WireLabelRow, structure *ontology.Structure) (*LabelRow, error) {
	if structure == nil {
		return nil, fmt.Errorf("%w: decoding a label row needs an ontology structure", ErrValidation)
	}
	createdAt, err := parseTime(w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at: %v", ErrFormat, err)
	}
	lastEditedAt, err := parseTime(w.LastEditedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: last_edited_at: %v", ErrFormat, err)
	}
	status, err := statusFromWire(w.LabelStatus)
	if err != nil {
		return nil, err
	}
	if w.Spaces.Len() > 0 && w.DataUnits.Len() > 0 {
		return nil, fmt.Errorf("%w: row carries both spaces and data_units", ErrFormat)
	}

	r := NewLabelRow(RowConfig{
		LabelHash:    w.LabelHash,
		BranchName:   w.BranchName,
		DataHash:     w.DataHash,
		DataTitle:    w.DataTitle,
		DataType:     DataType(w.DataType),
		DatasetHash:  w.DatasetHash,
		DatasetTitle: w.DatasetTitle,
		Ontology:     structure,
	})
	r.status = status

	type parsedSpace struct {
		id string
		ws wireSpace
	}
	var spaces []parsedSpace
	for _, id := range w.Spaces.Keys() {
		raw, _ := w.Spaces.Get(id)
		var ws wireSpace
		if err := json.Unmarshal(raw, &ws); err != nil {
			return nil, fmt.Errorf("%w: space %q: %v", ErrFormat, id, err)
		}
		if _, err := spaceFromWire(r, id, &ws); err != nil {
			return nil, err
		}
		spaces = append(spaces, parsedSpace{id: id, ws: ws})
	}

	var legacyEngine *frameSpace
	var legacyUnit *wireDataUnit
	if w.DataUnits.Len() > 0 {
		if w.DataUnits.Len() > 1 {
			return nil, fmt.Errorf("%w: rows with multiple data units are not supported", ErrFormat)
		}
		key := w.DataUnits.Keys()[0]
		raw, _ := w.DataUnits.Get(key)
		var unit wireDataUnit
		if err := json.Unmarshal(raw, &unit); err != nil {
			return nil, fmt.Errorf("%w: data unit %q: %v", ErrFormat, key, err)
		}
		if unit.DataHash == "" {
			unit.DataHash = key
		}
		legacyEngine, err = legacySpace(r, &unit)
		if err != nil {
			return nil, err
		}
		legacyUnit = &unit
	}

	for _, hash := range w.ObjectAnswers.Keys() {
		if err := decodeObjectAnswer(r, hash, w.ObjectAnswers); err != nil {
			return nil, err
		}
	}
	for _, hash := range w.ClassificationAnswers.Keys() {
		if err := decodeClassificationAnswer(r, hash, w.ClassificationAnswers); err != nil {
			return nil, err
		}
	}

	for _, ps := range spaces {
		sp := r.spaces[ps.id]
		if engine := sp.frameEngine(); engine != nil {
			if err := applyFrameLabels(r, engine, ps.ws.Labels); err != nil {
				return nil, err
			}
			continue
		}
		if err := applyRangeLabels(r, sp.rangeEngine(), ps.ws.RangeLabels); err != nil {
			return nil, err
		}
	}
	if legacyEngine != nil {
		if err := applyFrameLabels(r, legacyEngine, &legacyUnit.Labels); err != nil {
			return nil, err
		}
		r.legacy = true
		r.implicitSpace = legacyEngine.id
		stripped := *legacyUnit
		stripped.Labels = orderedMap{}
		r.legacyUnit = &stripped
	}

	for _, hash := range w.ObjectActions.Keys() {
		if err := decodeObjectActions(r, hash, w.ObjectActions); err != nil {
			return nil, err
		}
	}

	r.createdAt = createdAt
	r.lastEditedAt = lastEditedAt
	return r, nil
}

func statusFromWire(s string) (LabelStatus, error) {
	switch status := LabelStatus(s); status {
	case StatusNotLabelled, StatusLabelInProgress, StatusLabelled,
		StatusReviewInProgress, StatusReviewed:
		return status, nil
	case "":
		return StatusNotLabelled, nil
	}
	return "", fmt.Errorf("%w: unknown label status %q", ErrFormat, s)
}

func spaceFromWire(r *LabelRow, id string, ws *wireSpace) (Space, error) {
	var (
		sp  Space
		err error
	)
	switch SpaceType(ws.SpaceType) {
	case SpaceTypeVideo:
		sp, err = r.AddVideoSpace(id, ws.NumberOfFrames, ws.Width, ws.Height, ws.FPS)
	case SpaceTypeImage:
		sp, err = r.AddImageSpace(id, ws.Width, ws.Height)
	case SpaceTypePointCloud:
		sp, err = r.AddSceneSpace(id, ws.NumberOfEvents)
	case SpaceTypeAudio:
		sp, err = r.AddAudioSpace(id, ws.DurationMs)
	case SpaceTypeText:
		sp, err = r.AddTextSpace(id, ws.NumberOfChars)
	default:
		return nil, fmt.Errorf("%w: space %q has unknown space_type %q", ErrFormat, id, ws.SpaceType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: space %q: %v", ErrFormat, id, err)
	}
	return sp, nil
}

func legacySpace(r *LabelRow, unit *wireDataUnit) (*frameSpace, error) {
	switch DataType(unit.DataType) {
	case DataTypeVideo:
		s, err := r.AddVideoSpace(unit.DataHash, legacyFrameCount(unit), unit.Width, unit.Height, unit.DataFPS)
		if err != nil {
			return nil, fmt.Errorf("%w: data unit %q: %v", ErrFormat, unit.DataHash, err)
		}
		return &s.frameSpace, nil
	case DataTypeImage:
		s, err := r.AddImageSpace(unit.DataHash, unit.Width, unit.Height)
		if err != nil {
			return nil, fmt.Errorf("%w: data unit %q: %v", ErrFormat, unit.DataHash, err)
		}
		return &s.frameSpace, nil
	}
	return nil, fmt.Errorf("%w: data unit %q has unsupported type %q for the legacy form",
		ErrFormat, unit.DataHash, unit.DataType)
}

// legacyFrameCount sizes the implicit space of a legacy video unit:
// from duration and fps when present, otherwise from the highest
// labelled frame.
func legacyFrameCount(unit *wireDataUnit) int64 {
	if unit.DataFPS > 0 && unit.DataDuration > 0 {
		return int64(unit.DataFPS*unit.DataDuration + 0.5)
	}
	var max int64
	for _, key := range unit.Labels.Keys() {
		if f, err := strconv.ParseInt(key, 10, 64); err == nil && f+1 > max {
			max = f + 1
		}
	}
	if max == 0 {
		return 1
	}
	return max
}

func decodeObjectAnswer(r *LabelRow, hash string, answers orderedMap) error {
	raw, _ := answers.Get(hash)
	var entry wireObjectAnswer
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("%w: object answer %q: %v", ErrFormat, hash, err)
	}
	if entry.ObjectHash != "" && entry.ObjectHash != hash {
		return fmt.Errorf("%w: object answer key %q disagrees with objectHash %q",
			ErrFormat, hash, entry.ObjectHash)
	}
	obj, err := r.structure.ObjectByHash(entry.FeatureHash)
	if err != nil {
		return fmt.Errorf("%w: object %q references feature %q: %v",
			ErrConsistency, hash, entry.FeatureHash, err)
	}
	inst := newObjectInstance(obj, hash)
	meta, err := metaFromWire(entry.CreatedAt, entry.CreatedBy, entry.LastEditedAt,
		entry.LastEditedBy, entry.Confidence, entry.ManualAnnotation)
	if err != nil {
		return fmt.Errorf("object answer %q: %w", hash, err)
	}
	inst.meta = meta.withDefaults()
	for _, wa := range entry.Classifications {
		a, err := decodeAnswer(obj.Attributes, wa)
		if err != nil {
			return fmt.Errorf("object answer %q: %w", hash, err)
		}
		inst.answers.set(a)
	}
	return r.AddObjectInstance(inst)
}

func decodeClassificationAnswer(r *LabelRow, hash string, answers orderedMap) error {
	raw, _ := answers.Get(hash)
	var entry wireClassificationAnswer
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("%w: classification answer %q: %v", ErrFormat, hash, err)
	}
	if entry.ClassificationHash != "" && entry.ClassificationHash != hash {
		return fmt.Errorf("%w: classification answer key %q disagrees with classificationHash %q",
			ErrFormat, hash, entry.ClassificationHash)
	}
	cls, err := r.structure.ClassificationByHash(entry.FeatureHash)
	if err != nil {
		return fmt.Errorf("%w: classification %q references feature %q: %v",
			ErrConsistency, hash, entry.FeatureHash, err)
	}
	inst := newClassificationInstance(cls, hash, entry.Global)
	meta, err := metaFromWire(entry.CreatedAt, entry.CreatedBy, entry.LastEditedAt,
		entry.LastEditedBy, entry.Confidence, entry.ManualAnnotation)
	if err != nil {
		return fmt.Errorf("classification answer %q: %w", hash, err)
	}
	inst.meta = meta.withDefaults()
	for _, wa := range entry.Classifications {
		a, err := decodeAnswer(cls.Attributes, wa)
		if err != nil {
			return fmt.Errorf("classification answer %q: %w", hash, err)
		}
		inst.answers.set(a)
	}
	return r.AddClassificationInstance(inst, false)
}

func applyFrameLabels(r *LabelRow, s *frameSpace, labels *orderedMap) error {
	if labels == nil {
		return nil
	}
	sp := r.spaces[s.id]
	for _, key := range labels.Keys() {
		frame, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: space %q frame key %q is not an integer", ErrFormat, s.id, key)
		}
		raw, _ := labels.Get(key)
		var fl wireFrameLabels
		if err := json.Unmarshal(raw, &fl); err != nil {
			return fmt.Errorf("%w: space %q frame %d: %v", ErrFormat, s.id, frame, err)
		}
		for _, ol := range fl.Objects {
			inst, err := frameLabelInstance(r, ol)
			if err != nil {
				return err
			}
			coords, err := frameLabelCoords(ol)
			if err != nil {
				return err
			}
			meta, err := metaFromWire(ol.CreatedAt, ol.CreatedBy, ol.LastEditedAt,
				ol.LastEditedBy, ol.Confidence, ol.ManualAnnotation)
			if err != nil {
				return fmt.Errorf("object %q on frame %d: %w", ol.ObjectHash, frame, err)
			}
			opts := PutOptions{OnOverlap: OnOverlapMerge, Meta: &meta}
			if err := sp.PutObjectInstance(inst, OnFrames(frame), coords, opts); err != nil {
				return err
			}
		}
		for _, cl := range fl.Classifications {
			inst, err := frameClassificationInstance(r, cl)
			if err != nil {
				return err
			}
			meta, err := metaFromWire(cl.CreatedAt, cl.CreatedBy, cl.LastEditedAt,
				cl.LastEditedBy, cl.Confidence, cl.ManualAnnotation)
			if err != nil {
				return fmt.Errorf("classification %q on frame %d: %w", cl.ClassificationHash, frame, err)
			}
			opts := PutOptions{OnOverlap: OnOverlapMerge, Meta: &meta}
			if err := sp.PutClassificationInstance(inst, OnFrames(frame), opts); err != nil {
				return err
			}
		}
		if fl.Metadata != nil {
			md := FrameMetadata{
				InstanceUID: fl.Metadata.DicomInstanceUID,
				Width:       fl.Metadata.Width,
				Height:      fl.Metadata.Height,
			}
			if err := s.SetFrameMetadata(frame, md); err != nil {
				return err
			}
		}
	}
	return nil
}

// frameLabelInstance finds the instance a label entry refers to,
// creating and registering it when the entry is its first appearance.
func frameLabelInstance(r *LabelRow, ol wireFrameObjectLabel) (*ObjectInstance, error) {
	if inst, ok := r.objects[ol.ObjectHash]; ok {
		if inst.FeatureHash() != ol.FeatureHash {
			return nil, fmt.Errorf("%w: object %q appears with feature %q but was created with %q",
				ErrConsistency, ol.ObjectHash, ol.FeatureHash, inst.FeatureHash())
		}
		return inst, nil
	}
	obj, err := r.structure.ObjectByHash(ol.FeatureHash)
	if err != nil {
		return nil, fmt.Errorf("%w: object %q references feature %q: %v",
			ErrConsistency, ol.ObjectHash, ol.FeatureHash, err)
	}
	inst := newObjectInstance(obj, ol.ObjectHash)
	if err := r.AddObjectInstance(inst); err != nil {
		return nil, err
	}
	return inst, nil
}

func frameClassificationInstance(r *LabelRow, cl wireFrameClassificationLabel) (*ClassificationInstance, error) {
	if inst, ok := r.classifications[cl.ClassificationHash]; ok {
		if inst.FeatureHash() != cl.FeatureHash {
			return nil, fmt.Errorf("%w: classification %q appears with feature %q but was created with %q",
				ErrConsistency, cl.ClassificationHash, cl.FeatureHash, inst.FeatureHash())
		}
		return inst, nil
	}
	cls, err := r.structure.ClassificationByHash(cl.FeatureHash)
	if err != nil {
		return nil, fmt.Errorf("%w: classification %q references feature %q: %v",
			ErrConsistency, cl.ClassificationHash, cl.FeatureHash, err)
	}
	inst := newClassificationInstance(cls, cl.ClassificationHash, false)
	if err := r.AddClassificationInstance(inst, false); err != nil {
		return nil, err
	}
	return inst, nil
}

func frameLabelCoords(ol wireFrameObjectLabel) (Coordinates, error) {
	shape := ontology.Shape(ol.Shape)
	key, ok := coordinatesWireKey(shape)
	if !ok {
		return nil, fmt.Errorf("%w: object %q has shape %q, which carries no inline coordinates",
			ErrFormat, ol.ObjectHash, ol.Shape)
	}
	raw := *ol.coordsField(key)
	if raw == nil {
		return nil, fmt.Errorf("%w: object %q is missing its %s coordinates", ErrFormat, ol.ObjectHash, key)
	}
	return decodeCoordinates(shape, raw)
}

func applyRangeLabels(r *LabelRow, s *rangeSpace, labels *wireRangeLabels) error {
	if labels == nil {
		return nil
	}
	for _, ol := range labels.Objects {
		inst, err := rangeLabelInstance(r, ol)
		if err != nil {
			return err
		}
		meta, err := metaFromWire(ol.CreatedAt, ol.CreatedBy, ol.LastEditedAt,
			ol.LastEditedBy, ol.Confidence, ol.ManualAnnotation)
		if err != nil {
			return fmt.Errorf("object %q on space %q: %w", ol.ObjectHash, s.id, err)
		}
		if err := s.restoreObject(inst, pairRanges(ol.Range), meta); err != nil {
			return err
		}
	}
	for _, cl := range labels.Classifications {
		inst, err := frameClassificationInstance(r, wireFrameClassificationLabel{
			ClassificationHash: cl.ClassificationHash,
			FeatureHash:        cl.FeatureHash,
		})
		if err != nil {
			return err
		}
		meta, err := metaFromWire(cl.CreatedAt, cl.CreatedBy, cl.LastEditedAt,
			cl.LastEditedBy, cl.Confidence, cl.ManualAnnotation)
		if err != nil {
			return fmt.Errorf("classification %q on space %q: %w", cl.ClassificationHash, s.id, err)
		}
		if err := s.restoreClassification(inst, pairRanges(cl.Range), meta); err != nil {
			return err
		}
	}
	return nil
}

func rangeLabelInstance(r *LabelRow, ol wireRangeObjectLabel) (*ObjectInstance, error) {
	return frameLabelInstance(r, wireFrameObjectLabel{
		ObjectHash:  ol.ObjectHash,
		FeatureHash: ol.FeatureHash,
	})
}

func decodeObjectActions(r *LabelRow, hash string, actions orderedMap) error {
	raw, _ := actions.Get(hash)
	var entry wireObjectAction
	if err := json.Unmarshal(raw, &entry); err != nil {
		return fmt.Errorf("%w: object actions %q: %v", ErrFormat, hash, err)
	}
	inst, err := r.ObjectInstanceByHash(hash)
	if err != nil {
		return fmt.Errorf("%w: actions reference object %q which holds no labels", ErrConsistency, hash)
	}
	for _, act := range entry.Actions {
		sp, ok := r.spaces[act.SpaceID]
		if !ok {
			return fmt.Errorf("%w: action for object %q references unknown space %q",
				ErrConsistency, hash, act.SpaceID)
		}
		a, err := decodeAnswer(inst.object.Attributes, wireAnswer{
			Name:        act.Name,
			Value:       act.Value,
			Answers:     act.Answers,
			FeatureHash: act.FeatureHash,
		})
		if err != nil {
			return fmt.Errorf("object actions %q: %w", hash, err)
		}
		value, err := answerValue(a)
		if err != nil {
			return err
		}
		placement := OnRanges(pairRanges(act.Range)...)
		if err := sp.SetAnswerOn(inst, act.FeatureHash, value, placement); err != nil {
			return err
		}
	}
	return nil
}

func answerValue(a *Answer) (AnswerValue, error) {
	switch a.Attribute.Type {
	case ontology.AttributeText:
		return TextValue(a.Text), nil
	case ontology.AttributeRadio:
		return OptionValue(a.Option.FeatureNodeHash), nil
	case ontology.AttributeChecklist:
		hashes := make([]string, 0, len(a.Options))
		for _, o := range a.Options {
			hashes = append(hashes, o.FeatureNodeHash)
		}
		return OptionsValue(hashes...), nil
	}
	return AnswerValue{}, fmt.Errorf("%w: attribute %q has unknown type %q",
		ErrValidation, a.Attribute.Name, a.Attribute.Type)
}

func metaFromWire(createdAt, createdBy, lastEditedAt, lastEditedBy string, confidence float64, manual bool) (AnnotationMeta, error) {
	created, err := parseTime(createdAt)
	if err != nil {
		return AnnotationMeta{}, fmt.Errorf("%w: createdAt: %v", ErrFormat, err)
	}
	edited, err := parseTime(lastEditedAt)
	if err != nil {
		return AnnotationMeta{}, fmt.Errorf("%w: lastEditedAt: %v", ErrFormat, err)
	}
	return AnnotationMeta{
		CreatedAt:        created,
		CreatedBy:        createdBy,
		LastEditedAt:     edited,
		LastEditedBy:     lastEditedBy,
		Confidence:       confidence,
		ManualAnnotation: manual,
	}, nil
}
