package label

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/gridline-ai/gridline-go/ontology"
)

// Encode serializes the row into its wire dictionary. Output is
// deterministic: encoding an unchanged row twice yields identical
// bytes, and a decoded row re-encodes to the bytes it came from.
func (r *LabelRow) Encode() ([]byte, error) {
	w, err := r.ToWire()
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// ToWire builds the row's wire form.
func (r *LabelRow) ToWire() (*WireLabelRow, error) {
	w := &WireLabelRow{
		LabelHash:    r.labelHash,
		BranchName:   r.branchName,
		CreatedAt:    formatTime(r.createdAt),
		LastEditedAt: formatTime(r.lastEditedAt),
		DataHash:     r.dataHash,
		DataTitle:    r.dataTitle,
		DataType:     string(r.dataType),
		DatasetHash:  r.datasetHash,
		DatasetTitle: r.datasetTitle,
		LabelStatus:  string(r.status),
	}

	for _, hash := range r.objectOrder {
		inst := r.objects[hash]
		entry, err := objectAnswerEntry(inst)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		w.ObjectAnswers.Set(hash, raw)
	}

	for _, hash := range r.classificationOrder {
		inst := r.classifications[hash]
		entry, err := classificationAnswerEntry(inst)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		w.ClassificationAnswers.Set(hash, raw)
	}

	for _, hash := range r.objectOrder {
		inst := r.objects[hash]
		actions, err := r.objectActions(inst)
		if err != nil {
			return nil, err
		}
		if len(actions) == 0 {
			continue
		}
		raw, err := json.Marshal(wireObjectAction{ObjectHash: hash, Actions: actions})
		if err != nil {
			return nil, err
		}
		w.ObjectActions.Set(hash, raw)
	}

	if r.legacy {
		unit := *r.legacyUnit
		labels, err := frameLabelsMap(r.spaces[r.implicitSpace].frameEngine())
		if err != nil {
			return nil, err
		}
		unit.Labels = *labels
		raw, err := json.Marshal(unit)
		if err != nil {
			return nil, err
		}
		w.DataUnits.Set(unit.DataHash, raw)
		return w, nil
	}

	for _, id := range r.spaceOrder {
		ws, err := encodeSpace(r.spaces[id])
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(ws)
		if err != nil {
			return nil, err
		}
		w.Spaces.Set(id, raw)
	}
	return w, nil
}

func objectAnswerEntry(inst *ObjectInstance) (wireObjectAnswer, error) {
	answers := make([]wireAnswer, 0, len(inst.answers.list()))
	for _, a := range inst.answers.list() {
		wa, err := encodeAnswer(a)
		if err != nil {
			return wireObjectAnswer{}, err
		}
		answers = append(answers, wa)
	}
	return wireObjectAnswer{
		ObjectHash:       inst.objectHash,
		Classifications:  answers,
		CreatedAt:        formatTime(inst.meta.CreatedAt),
		CreatedBy:        inst.meta.CreatedBy,
		LastEditedAt:     formatTime(inst.meta.LastEditedAt),
		LastEditedBy:     inst.meta.LastEditedBy,
		Confidence:       inst.meta.Confidence,
		ManualAnnotation: inst.meta.ManualAnnotation,
		FeatureHash:      inst.FeatureHash(),
	}, nil
}

func classificationAnswerEntry(inst *ClassificationInstance) (wireClassificationAnswer, error) {
	answers := make([]wireAnswer, 0, len(inst.answers.list()))
	for _, a := range inst.answers.list() {
		wa, err := encodeAnswer(a)
		if err != nil {
			return wireClassificationAnswer{}, err
		}
		answers = append(answers, wa)
	}
	return wireClassificationAnswer{
		ClassificationHash: inst.classificationHash,
		Classifications:    answers,
		CreatedAt:          formatTime(inst.meta.CreatedAt),
		CreatedBy:          inst.meta.CreatedBy,
		LastEditedAt:       formatTime(inst.meta.LastEditedAt),
		LastEditedBy:       inst.meta.LastEditedBy,
		Confidence:         inst.meta.Confidence,
		ManualAnnotation:   inst.meta.ManualAnnotation,
		FeatureHash:        inst.FeatureHash(),
		Global:             inst.global,
	}, nil
}

// objectActions flattens an instance's dynamic answers across spaces,
// in space creation order.
func (r *LabelRow) objectActions(inst *ObjectInstance) ([]wireAction, error) {
	var actions []wireAction
	for _, spaceID := range r.spaceOrder {
		for _, d := range inst.dynamicOn(spaceID) {
			for _, v := range d.values {
				wa, err := encodeAnswer(v.answer)
				if err != nil {
					return nil, err
				}
				actions = append(actions, wireAction{
					Name:        wa.Name,
					Value:       wa.Value,
					Answers:     wa.Answers,
					FeatureHash: wa.FeatureHash,
					SpaceID:     spaceID,
					Range:       rangePairs(v.ranges),
					Dynamic:     true,
				})
			}
		}
	}
	return actions, nil
}

func encodeSpace(sp Space) (*wireSpace, error) {
	switch s := sp.(type) {
	case *VideoSpace:
		labels, err := frameLabelsMap(&s.frameSpace)
		if err != nil {
			return nil, err
		}
		return &wireSpace{
			SpaceType:      string(SpaceTypeVideo),
			NumberOfFrames: s.numberOfFrames,
			Width:          s.width,
			Height:         s.height,
			FPS:            s.fps,
			Labels:         labels,
		}, nil
	case *ImageSpace:
		labels, err := frameLabelsMap(&s.frameSpace)
		if err != nil {
			return nil, err
		}
		return &wireSpace{
			SpaceType: string(SpaceTypeImage),
			Width:     s.width,
			Height:    s.height,
			Labels:    labels,
		}, nil
	case *SceneSpace:
		labels, err := frameLabelsMap(&s.frameSpace)
		if err != nil {
			return nil, err
		}
		return &wireSpace{
			SpaceType:      string(SpaceTypePointCloud),
			NumberOfEvents: s.numberOfFrames,
			Labels:         labels,
		}, nil
	case *AudioSpace:
		return &wireSpace{
			SpaceType:   string(SpaceTypeAudio),
			DurationMs:  s.size,
			RangeLabels: rangeLabelsFor(&s.rangeSpace),
		}, nil
	case *TextSpace:
		return &wireSpace{
			SpaceType:     string(SpaceTypeText),
			NumberOfChars: s.size,
			RangeLabels:   rangeLabelsFor(&s.rangeSpace),
		}, nil
	}
	return nil, fmt.Errorf("%w: space %q has unsupported concrete type", ErrValidation, sp.ID())
}

func frameLabelsMap(s *frameSpace) (*orderedMap, error) {
	// Emit labels in first-labeled-frame order so a decoded row, whose
	// order comes from scanning the frames, re-encodes identically.
	objectOrder := wireOrder(s.objectOrder, func(hash string) int64 {
		return s.objects[hash].frameList()[0]
	})
	classificationOrder := wireOrder(s.classificationOrder, func(hash string) int64 {
		return s.classifications[hash].frameList()[0]
	})

	m := &orderedMap{}
	for _, f := range s.labeledFrames() {
		fl := wireFrameLabels{
			Objects:         make([]wireFrameObjectLabel, 0),
			Classifications: make([]wireFrameClassificationLabel, 0),
		}
		for _, hash := range objectOrder {
			p := s.objects[hash]
			entry, ok := p.frames[f]
			if !ok {
				continue
			}
			l, err := frameObjectLabel(p.inst, entry, s, f)
			if err != nil {
				return nil, err
			}
			fl.Objects = append(fl.Objects, l)
		}
		for _, hash := range classificationOrder {
			p := s.classifications[hash]
			meta, ok := p.frames[f]
			if !ok {
				continue
			}
			fl.Classifications = append(fl.Classifications, frameClassificationLabel(p.inst, meta))
		}
		if md, ok := s.frameMeta[f]; ok {
			fl.Metadata = &wireFrameMetadata{
				DicomInstanceUID: md.InstanceUID,
				Width:            md.Width,
				Height:           md.Height,
			}
		}
		raw, err := json.Marshal(fl)
		if err != nil {
			return nil, err
		}
		m.Set(strconv.FormatInt(f, 10), raw)
	}
	return m, nil
}

func wireOrder(order []string, firstFrame func(string) int64) []string {
	out := append([]string(nil), order...)
	sort.SliceStable(out, func(i, j int) bool { return firstFrame(out[i]) < firstFrame(out[j]) })
	return out
}

func frameObjectLabel(inst *ObjectInstance, entry *frameEntry, s *frameSpace, frame int64) (wireFrameObjectLabel, error) {
	if bm, ok := bitmaskOf(entry.coords); ok {
		if err := s.checkBitmaskDims(bm, frame); err != nil {
			return wireFrameObjectLabel{}, err
		}
	}
	l := wireFrameObjectLabel{
		Name:             inst.object.Name,
		Color:            inst.object.Color,
		Shape:            string(inst.object.Shape),
		Value:            snakeValue(inst.object.Name),
		CreatedAt:        formatTime(entry.meta.CreatedAt),
		CreatedBy:        entry.meta.CreatedBy,
		Confidence:       entry.meta.Confidence,
		ObjectHash:       inst.objectHash,
		FeatureHash:      inst.FeatureHash(),
		LastEditedAt:     formatTime(entry.meta.LastEditedAt),
		LastEditedBy:     entry.meta.LastEditedBy,
		ManualAnnotation: entry.meta.ManualAnnotation,
	}
	key, ok := coordinatesWireKey(entry.coords.Shape())
	if !ok {
		return wireFrameObjectLabel{}, fmt.Errorf("%w: shape %s carries no coordinates",
			ErrValidation, entry.coords.Shape())
	}
	raw, err := encodeCoordinates(entry.coords)
	if err != nil {
		return wireFrameObjectLabel{}, err
	}
	*l.coordsField(key) = raw
	return l, nil
}

func bitmaskOf(c Coordinates) (Bitmask, bool) {
	switch v := c.(type) {
	case Bitmask:
		return v, true
	case *Bitmask:
		return *v, true
	}
	return Bitmask{}, false
}

// checkBitmaskDims compares a bitmask's dimensions against the frame's
// effective media dimensions. Frame metadata overrides the space-wide
// size; unknown dimensions on either side skip the check.
func (s *frameSpace) checkBitmaskDims(bm Bitmask, frame int64) error {
	width, height := s.width, s.height
	if md, ok := s.frameMeta[frame]; ok && md.Width > 0 && md.Height > 0 {
		width, height = md.Width, md.Height
	}
	if width <= 0 || height <= 0 || bm.Width <= 0 || bm.Height <= 0 {
		return nil
	}
	if bm.Width != width || bm.Height != height {
		return fmt.Errorf("%w: bitmask is %dx%d but frame %d of space %q is %dx%d",
			ErrConsistency, bm.Width, bm.Height, frame, s.id, width, height)
	}
	return nil
}

func frameClassificationLabel(inst *ClassificationInstance, meta AnnotationMeta) wireFrameClassificationLabel {
	name, value := classificationLabelName(inst.classification)
	return wireFrameClassificationLabel{
		Name:               name,
		Value:              value,
		CreatedAt:          formatTime(meta.CreatedAt),
		CreatedBy:          meta.CreatedBy,
		Confidence:         meta.Confidence,
		ClassificationHash: inst.classificationHash,
		FeatureHash:        inst.FeatureHash(),
		LastEditedAt:       formatTime(meta.LastEditedAt),
		LastEditedBy:       meta.LastEditedBy,
		ManualAnnotation:   meta.ManualAnnotation,
	}
}

// classificationLabelName derives the display name and value of a
// classification label from its first attribute, matching how the
// editor titles them.
func classificationLabelName(c *ontology.Classification) (string, string) {
	if len(c.Attributes) > 0 {
		name := c.Attributes[0].Name
		return name, snakeValue(name)
	}
	return "", ""
}

func rangeLabelsFor(s *rangeSpace) *wireRangeLabels {
	out := &wireRangeLabels{
		Objects:         make([]wireRangeObjectLabel, 0),
		Classifications: make([]wireRangeClassificationLabel, 0),
	}
	for _, hash := range s.objectOrder {
		p := s.objects[hash]
		out.Objects = append(out.Objects, wireRangeObjectLabel{
			Name:             p.inst.object.Name,
			Color:            p.inst.object.Color,
			Shape:            string(p.inst.object.Shape),
			Value:            snakeValue(p.inst.object.Name),
			CreatedAt:        formatTime(p.meta.CreatedAt),
			CreatedBy:        p.meta.CreatedBy,
			Confidence:       p.meta.Confidence,
			ObjectHash:       p.inst.objectHash,
			FeatureHash:      p.inst.FeatureHash(),
			LastEditedAt:     formatTime(p.meta.LastEditedAt),
			LastEditedBy:     p.meta.LastEditedBy,
			ManualAnnotation: p.meta.ManualAnnotation,
			Range:            rangePairs(p.ranges),
		})
	}
	for _, hash := range s.classificationOrder {
		p := s.classifications[hash]
		name, value := classificationLabelName(p.inst.classification)
		out.Classifications = append(out.Classifications, wireRangeClassificationLabel{
			Name:               name,
			Value:              value,
			CreatedAt:          formatTime(p.meta.CreatedAt),
			CreatedBy:          p.meta.CreatedBy,
			Confidence:         p.meta.Confidence,
			ClassificationHash: p.inst.classificationHash,
			FeatureHash:        p.inst.FeatureHash(),
			LastEditedAt:       formatTime(p.meta.LastEditedAt),
			LastEditedBy:       p.meta.LastEditedBy,
			ManualAnnotation:   p.meta.ManualAnnotation,
			Range:              rangePairs(p.ranges),
		})
	}
	return out
}
