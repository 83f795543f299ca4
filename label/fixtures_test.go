package label

import (
	"testing"
	"time"

	"github.com/gridline-ai/gridline-go/ontology"
)

// freezeTime pins the package clock so provenance timestamps are
// deterministic within a test.
func freezeTime(t *testing.T) time.Time {
	t.Helper()
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	prev := timeNow
	timeNow = func() time.Time { return fixed }
	t.Cleanup(func() { timeNow = prev })
	return fixed
}

func testStructure(t *testing.T) *ontology.Structure {
	t.Helper()
	s, err := ontology.NewStructure(
		[]*ontology.Object{
			{
				UID:             "1",
				Name:            "Car",
				Color:           "#D33115",
				Shape:           ontology.ShapeBoundingBox,
				FeatureNodeHash: "obj-car",
				Attributes: []*ontology.Attribute{
					{
						UID:             "1.1",
						Name:            "Registration",
						Type:            ontology.AttributeText,
						FeatureNodeHash: "attr-reg",
					},
					{
						UID:             "1.2",
						Name:            "Speed",
						Type:            ontology.AttributeRadio,
						FeatureNodeHash: "attr-speed",
						Dynamic:         true,
						Options: []*ontology.Option{
							{UID: "1.2.1", Label: "Fast", Value: "fast", FeatureNodeHash: "opt-fast"},
							{UID: "1.2.2", Label: "Slow", Value: "slow", FeatureNodeHash: "opt-slow"},
						},
					},
					{
						UID:             "1.3",
						Name:            "Flags",
						Type:            ontology.AttributeChecklist,
						FeatureNodeHash: "attr-flags",
						Dynamic:         true,
						Options: []*ontology.Option{
							{UID: "1.3.1", Label: "Wet road", Value: "wet_road", FeatureNodeHash: "opt-wet"},
							{UID: "1.3.2", Label: "Night", Value: "night", FeatureNodeHash: "opt-night"},
						},
					},
				},
			},
			{UID: "2", Name: "Person", Color: "#16406C", Shape: ontology.ShapePoint, FeatureNodeHash: "obj-person"},
			{
				UID:             "3",
				Name:            "Narration",
				Color:           "#FE9200",
				Shape:           ontology.ShapeAudio,
				FeatureNodeHash: "obj-narration",
				Attributes: []*ontology.Attribute{
					{
						UID:             "3.1",
						Name:            "Tone",
						Type:            ontology.AttributeRadio,
						FeatureNodeHash: "attr-tone",
						Dynamic:         true,
						Options: []*ontology.Option{
							{UID: "3.1.1", Label: "Calm", Value: "calm", FeatureNodeHash: "opt-calm"},
							{UID: "3.1.2", Label: "Urgent", Value: "urgent", FeatureNodeHash: "opt-urgent"},
						},
					},
				},
			},
			{UID: "4", Name: "Excerpt", Color: "#68BC00", Shape: ontology.ShapeText, FeatureNodeHash: "obj-excerpt"},
			{UID: "5", Name: "Truck", Color: "#7B64FF", Shape: ontology.ShapeCuboid, FeatureNodeHash: "obj-truck"},
			{UID: "6", Name: "Mask", Color: "#FCDC00", Shape: ontology.ShapeBitmask, FeatureNodeHash: "obj-mask"},
		},
		[]*ontology.Classification{
			{
				UID:             "10",
				FeatureNodeHash: "cls-weather",
				Attributes: []*ontology.Attribute{
					{
						UID:             "10.1",
						Name:            "Weather",
						Type:            ontology.AttributeRadio,
						FeatureNodeHash: "attr-weather",
						Options: []*ontology.Option{
							{UID: "10.1.1", Label: "Sunny", Value: "sunny", FeatureNodeHash: "opt-sunny"},
							{UID: "10.1.2", Label: "Rainy", Value: "rainy", FeatureNodeHash: "opt-rainy"},
						},
					},
				},
			},
			{
				UID:             "11",
				FeatureNodeHash: "cls-transcript",
				Attributes: []*ontology.Attribute{
					{
						UID:             "11.1",
						Name:            "Transcript",
						Type:            ontology.AttributeText,
						FeatureNodeHash: "attr-transcript",
					},
				},
			},
		},
	)
	if err != nil {
		t.Fatalf("NewStructure: %v", err)
	}
	return s
}

func testRow(t *testing.T) *LabelRow {
	t.Helper()
	return NewLabelRow(RowConfig{
		LabelHash:    "lh-0001",
		DataHash:     "dh-0001",
		DataTitle:    "sequence-17",
		DataType:     DataTypeGroup,
		DatasetHash:  "ds-0001",
		DatasetTitle: "road-scenes",
		Ontology:     testStructure(t),
	})
}

func mustObject(t *testing.T, r *LabelRow, featureHash string) *ObjectInstance {
	t.Helper()
	obj, err := r.Ontology().ObjectByHash(featureHash)
	if err != nil {
		t.Fatalf("ObjectByHash(%q): %v", featureHash, err)
	}
	return NewObjectInstance(obj)
}

func mustClassification(t *testing.T, r *LabelRow, featureHash string) *ClassificationInstance {
	t.Helper()
	cls, err := r.Ontology().ClassificationByHash(featureHash)
	if err != nil {
		t.Fatalf("ClassificationByHash(%q): %v", featureHash, err)
	}
	return NewClassificationInstance(cls)
}

func carBox() BoundingBox {
	return BoundingBox{X: 0.1, Y: 0.2, W: 0.3, H: 0.4}
}
