package label

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// orderedMap is a JSON object that keeps its key order through a
// decode/encode round trip. Values stay raw until someone needs them.
type orderedMap struct {
	keys   []string
	values map[string]json.RawMessage
}

func (m *orderedMap) Set(key string, value json.RawMessage) {
	if m.values == nil {
		m.values = make(map[string]json.RawMessage)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *orderedMap) Get(key string) (json.RawMessage, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *orderedMap) Len() int { return len(m.keys) }

// Keys returns the keys in insertion order.
func (m *orderedMap) Keys() []string { return m.keys }

func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(m.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *orderedMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected a JSON object, got %v", ErrFormat, tok)
	}
	m.keys = nil
	m.values = make(map[string]json.RawMessage)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: object key %v is not a string", ErrFormat, keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: value for key %q: %v", ErrFormat, key, err)
		}
		m.Set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return nil
}

// WireLabelRow is the row's serialized form. Top-level keys are emitted
// in exactly this order.
type WireLabelRow struct {
	LabelHash    string `json:"label_hash"`
	BranchName   string `json:"branch_name"`
	CreatedAt    string `json:"created_at"`
	LastEditedAt string `json:"last_edited_at"`
	DataHash     string `json:"data_hash"`
	DataTitle    string `json:"data_title"`
	DataType     string `json:"data_type"`
	DatasetHash  string `json:"dataset_hash"`
	DatasetTitle string `json:"dataset_title"`
	LabelStatus  string `json:"label_status"`

	// ObjectAnswers and ClassificationAnswers carry instance-level
	// static answers and provenance, keyed by instance hash.
	ObjectAnswers         orderedMap `json:"object_answers"`
	ClassificationAnswers orderedMap `json:"classification_answers"`

	// ObjectActions carries dynamic attribute answers, keyed by object
	// hash.
	ObjectActions orderedMap `json:"object_actions"`

	// Spaces holds per-space placements keyed by space id. Legacy rows
	// keep this empty and use DataUnits instead.
	Spaces    orderedMap `json:"spaces"`
	DataUnits orderedMap `json:"data_units"`
}

// wireObjectAnswer is one object_answers entry.
type wireObjectAnswer struct {
	ObjectHash       string       `json:"objectHash"`
	Classifications  []wireAnswer `json:"classifications"`
	CreatedAt        string       `json:"createdAt"`
	CreatedBy        string       `json:"createdBy"`
	LastEditedAt     string       `json:"lastEditedAt,omitempty"`
	LastEditedBy     string       `json:"lastEditedBy,omitempty"`
	Confidence       float64      `json:"confidence"`
	ManualAnnotation bool         `json:"manualAnnotation"`
	FeatureHash      string       `json:"featureHash"`
}

// wireClassificationAnswer is one classification_answers entry.
type wireClassificationAnswer struct {
	ClassificationHash string       `json:"classificationHash"`
	Classifications    []wireAnswer `json:"classifications"`
	CreatedAt          string       `json:"createdAt"`
	CreatedBy          string       `json:"createdBy"`
	LastEditedAt       string       `json:"lastEditedAt,omitempty"`
	LastEditedBy       string       `json:"lastEditedBy,omitempty"`
	Confidence         float64      `json:"confidence"`
	ManualAnnotation   bool         `json:"manualAnnotation"`
	FeatureHash        string       `json:"featureHash"`
	Global             bool         `json:"global,omitempty"`
}

// wireObjectAction is one object_actions entry: an object's dynamic
// answers across every space.
type wireObjectAction struct {
	ObjectHash string       `json:"objectHash"`
	Actions    []wireAction `json:"actions"`
}

type wireAction struct {
	Name        string          `json:"name"`
	Value       string          `json:"value"`
	Answers     json.RawMessage `json:"answers"`
	FeatureHash string          `json:"featureHash"`
	SpaceID     string          `json:"spaceId"`
	Range       [][2]int64      `json:"range"`
	Dynamic     bool            `json:"dynamic"`
}

// wireSpace is one spaces entry. Which size fields appear depends on
// space_type.
type wireSpace struct {
	SpaceType      string           `json:"space_type"`
	NumberOfFrames int64            `json:"number_of_frames,omitempty"`
	NumberOfEvents int64            `json:"number_of_events,omitempty"`
	Width          int64            `json:"width,omitempty"`
	Height         int64            `json:"height,omitempty"`
	FPS            float64          `json:"fps,omitempty"`
	DurationMs     int64            `json:"duration_ms,omitempty"`
	NumberOfChars  int64            `json:"number_of_chars,omitempty"`
	Labels         *orderedMap      `json:"labels,omitempty"`
	RangeLabels    *wireRangeLabels `json:"range_labels,omitempty"`
}

// wireFrameLabels is the annotation payload of one frame, keyed by the
// stringified frame index in a space's labels dict.
type wireFrameLabels struct {
	Objects         []wireFrameObjectLabel         `json:"objects"`
	Classifications []wireFrameClassificationLabel `json:"classifications"`
	Metadata        *wireFrameMetadata             `json:"metadata,omitempty"`
}

type wireFrameMetadata struct {
	DicomInstanceUID string `json:"dicom_instance_uid,omitempty"`
	Width            int64  `json:"width,omitempty"`
	Height           int64  `json:"height,omitempty"`
}

// wireFrameObjectLabel is one object annotation on one frame. Exactly
// one coordinate field is set, selected by shape.
type wireFrameObjectLabel struct {
	Name             string  `json:"name"`
	Color            string  `json:"color"`
	Shape            string  `json:"shape"`
	Value            string  `json:"value"`
	CreatedAt        string  `json:"createdAt"`
	CreatedBy        string  `json:"createdBy"`
	Confidence       float64 `json:"confidence"`
	ObjectHash       string  `json:"objectHash"`
	FeatureHash      string  `json:"featureHash"`
	LastEditedAt     string  `json:"lastEditedAt,omitempty"`
	LastEditedBy     string  `json:"lastEditedBy,omitempty"`
	ManualAnnotation bool    `json:"manualAnnotation"`

	BoundingBox          json.RawMessage `json:"boundingBox,omitempty"`
	RotatableBoundingBox json.RawMessage `json:"rotatableBoundingBox,omitempty"`
	Polygon              json.RawMessage `json:"polygon,omitempty"`
	Polyline             json.RawMessage `json:"polyline,omitempty"`
	Point                json.RawMessage `json:"point,omitempty"`
	Bitmask              json.RawMessage `json:"bitmask,omitempty"`
	Cuboid               json.RawMessage `json:"cuboid,omitempty"`
}

// coordsField maps a coordinate wire key to its raw slot.
func (l *wireFrameObjectLabel) coordsField(key string) *json.RawMessage {
	switch key {
	case "boundingBox":
		return &l.BoundingBox
	case "rotatableBoundingBox":
		return &l.RotatableBoundingBox
	case "polygon":
		return &l.Polygon
	case "polyline":
		return &l.Polyline
	case "point":
		return &l.Point
	case "bitmask":
		return &l.Bitmask
	case "cuboid":
		return &l.Cuboid
	}
	return nil
}

type wireFrameClassificationLabel struct {
	Name               string  `json:"name"`
	Value              string  `json:"value"`
	CreatedAt          string  `json:"createdAt"`
	CreatedBy          string  `json:"createdBy"`
	Confidence         float64 `json:"confidence"`
	ClassificationHash string  `json:"classificationHash"`
	FeatureHash        string  `json:"featureHash"`
	LastEditedAt       string  `json:"lastEditedAt,omitempty"`
	LastEditedBy       string  `json:"lastEditedBy,omitempty"`
	ManualAnnotation   bool    `json:"manualAnnotation"`
}

// wireRangeLabels is the annotation payload of a range-indexed space.
type wireRangeLabels struct {
	Objects         []wireRangeObjectLabel         `json:"objects"`
	Classifications []wireRangeClassificationLabel `json:"classifications"`
}

type wireRangeObjectLabel struct {
	Name             string     `json:"name"`
	Color            string     `json:"color"`
	Shape            string     `json:"shape"`
	Value            string     `json:"value"`
	CreatedAt        string     `json:"createdAt"`
	CreatedBy        string     `json:"createdBy"`
	Confidence       float64    `json:"confidence"`
	ObjectHash       string     `json:"objectHash"`
	FeatureHash      string     `json:"featureHash"`
	LastEditedAt     string     `json:"lastEditedAt,omitempty"`
	LastEditedBy     string     `json:"lastEditedBy,omitempty"`
	ManualAnnotation bool       `json:"manualAnnotation"`
	Range            [][2]int64 `json:"range"`
}

type wireRangeClassificationLabel struct {
	Name               string     `json:"name"`
	Value              string     `json:"value"`
	CreatedAt          string     `json:"createdAt"`
	CreatedBy          string     `json:"createdBy"`
	Confidence         float64    `json:"confidence"`
	ClassificationHash string     `json:"classificationHash"`
	FeatureHash        string     `json:"featureHash"`
	LastEditedAt       string     `json:"lastEditedAt,omitempty"`
	LastEditedBy       string     `json:"lastEditedBy,omitempty"`
	ManualAnnotation   bool       `json:"manualAnnotation"`
	Range              [][2]int64 `json:"range"`
}

// wireDataUnit is the legacy single-media form. Rows decoded from it
// re-encode through it.
type wireDataUnit struct {
	DataHash     string     `json:"data_hash"`
	DataTitle    string     `json:"data_title,omitempty"`
	DataType     string     `json:"data_type"`
	DataFPS      float64    `json:"data_fps,omitempty"`
	DataDuration float64    `json:"data_duration,omitempty"`
	Width        int64      `json:"width,omitempty"`
	Height       int64      `json:"height,omitempty"`
	Labels       orderedMap `json:"labels"`
}

func rangePairs(ranges []Range) [][2]int64 {
	out := make([][2]int64, 0, len(ranges))
	for _, r := range ranges {
		out = append(out, [2]int64{r.Start, r.End})
	}
	return out
}

func pairRanges(pairs [][2]int64) []Range {
	out := make([]Range, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, Range{Start: p[0], End: p[1]})
	}
	return out
}
