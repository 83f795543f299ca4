package label

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

// fullRow builds a row touching every wire feature: all five space
// kinds, static and dynamic answers, a global classification, range
// structure created by replace, and per-frame metadata.
func fullRow(t *testing.T) *LabelRow {
	t.Helper()
	freezeTime(t)
	row := testRow(t)
	if err := row.SetStatus(StatusLabelInProgress); err != nil {
		t.Fatal(err)
	}

	video, err := row.AddVideoSpace("vid-1", 100, 1920, 1080, 25)
	if err != nil {
		t.Fatal(err)
	}
	image, err := row.AddImageSpace("img-1", 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	scene, err := row.AddSceneSpace("scene-1", 30)
	if err != nil {
		t.Fatal(err)
	}
	audio, err := row.AddAudioSpace("aud-1", 60_000)
	if err != nil {
		t.Fatal(err)
	}
	text, err := row.AddTextSpace("txt-1", 5_000)
	if err != nil {
		t.Fatal(err)
	}

	car := mustObject(t, row, "obj-car")
	if err := car.SetTextAnswer("attr-reg", "AB-123-CD"); err != nil {
		t.Fatal(err)
	}
	if err := video.PutObjectInstance(car, OnRange(0, 2), carBox(), PutOptions{}); err != nil {
		t.Fatal(err)
	}
	modelMeta := AnnotationMeta{Confidence: 0.87, CreatedBy: "model-v2"}
	if err := video.PutObjectInstance(car, OnFrames(5), BoundingBox{X: 0.4, Y: 0.4, W: 0.2, H: 0.2},
		PutOptions{Meta: &modelMeta}); err != nil {
		t.Fatal(err)
	}
	if err := video.SetAnswerOn(car, "attr-speed", OptionValue("opt-fast"), OnRange(0, 2)); err != nil {
		t.Fatal(err)
	}
	if err := video.SetAnswerOn(car, "attr-flags", OptionsValue("opt-wet", "opt-night"), OnFrames(5)); err != nil {
		t.Fatal(err)
	}

	person := mustObject(t, row, "obj-person")
	if err := video.PutObjectInstance(person, OnFrames(1), Point{X: 0.25, Y: 0.75}, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	weather := mustClassification(t, row, "cls-weather")
	if err := weather.SetRadioAnswer("attr-weather", "opt-rainy"); err != nil {
		t.Fatal(err)
	}
	if err := video.PutClassificationInstance(weather, OnRange(0, 1), PutOptions{}); err != nil {
		t.Fatal(err)
	}

	if err := video.SetFrameMetadata(2, FrameMetadata{InstanceUID: "1.2.840.10008.1", Width: 512, Height: 512}); err != nil {
		t.Fatal(err)
	}

	mask := mustObject(t, row, "obj-mask")
	bm := Bitmask{RLEString: "eJzzSM3JyVcozy/KSQEAGgsEXQ==", Top: 10, Left: 20, Width: 640, Height: 480}
	if err := image.PutObjectInstance(mask, OnFrames(0), bm, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	truck := mustObject(t, row, "obj-truck")
	cuboid := Cuboid{
		Position: [3]float64{1.5, -2.25, 0.5},
		Size:     [3]float64{4, 2, 1.5},
		Rotation: [3]float64{0, 0, 0.5},
	}
	if err := scene.PutObjectInstance(truck, OnFrames(3), cuboid, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	narration := mustObject(t, row, "obj-narration")
	if err := audio.PutObjectInstance(narration, OnRange(0, 2_000), nil, PutOptions{}); err != nil {
		t.Fatal(err)
	}
	// Replace keeps the resulting splits adjacent, and that structure
	// must survive serialization.
	if err := audio.PutObjectInstance(narration, OnRange(500, 700), nil,
		PutOptions{OnOverlap: OnOverlapReplace}); err != nil {
		t.Fatal(err)
	}
	if err := audio.SetAnswerOn(narration, "attr-tone", OptionValue("opt-calm"), OnRange(0, 499)); err != nil {
		t.Fatal(err)
	}

	transcript := mustClassification(t, row, "cls-transcript")
	if err := transcript.SetTextAnswer("attr-transcript", "a quiet road at dusk"); err != nil {
		t.Fatal(err)
	}
	if err := audio.PutClassificationInstance(transcript, OnRange(0, 9_999), PutOptions{}); err != nil {
		t.Fatal(err)
	}

	excerpt := mustObject(t, row, "obj-excerpt")
	if err := text.PutObjectInstance(excerpt, OnRange(120, 180), nil, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	cls, err := row.Ontology().ClassificationByHash("cls-weather")
	if err != nil {
		t.Fatal(err)
	}
	global := NewGlobalClassificationInstance(cls)
	if err := global.SetRadioAnswer("attr-weather", "opt-sunny"); err != nil {
		t.Fatal(err)
	}
	if err := row.AddClassificationInstance(global, false); err != nil {
		t.Fatal(err)
	}

	return row
}

func TestEncodeDeterministic(t *testing.T) {
	row := fullRow(t)
	first, err := row.Encode()
	if err != nil {
		t.Fatal(err)
	}
	second, err := row.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("two encodes of an unchanged row differ")
	}
}

func TestTopLevelKeyOrder(t *testing.T) {
	row := fullRow(t)
	data, err := row.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var top orderedMap
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"label_hash", "branch_name", "created_at", "last_edited_at",
		"data_hash", "data_title", "data_type", "dataset_hash",
		"dataset_title", "label_status", "object_answers",
		"classification_answers", "object_actions", "spaces", "data_units",
	}
	if diff := cmp.Diff(want, top.Keys()); diff != "" {
		t.Errorf("top-level key order mismatch (-want +got):\n%s", diff)
	}
}

func TestRoundTrip(t *testing.T) {
	row := fullRow(t)
	encoded, err := row.Encode()
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeRow(encoded, row.Ontology())
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}

	reencoded, err := decoded.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(encoded, reencoded) {
		t.Fatalf("re-encode differs from original\n original: %s\nreencoded: %s", encoded, reencoded)
	}

	if decoded.LabelHash() != row.LabelHash() || decoded.Status() != row.Status() {
		t.Errorf("row identity: got (%s, %s), want (%s, %s)",
			decoded.LabelHash(), decoded.Status(), row.LabelHash(), row.Status())
	}
	if !decoded.CreatedAt().Equal(row.CreatedAt()) || !decoded.LastEditedAt().Equal(row.LastEditedAt()) {
		t.Errorf("row timestamps: got (%v, %v), want (%v, %v)",
			decoded.CreatedAt(), decoded.LastEditedAt(), row.CreatedAt(), row.LastEditedAt())
	}

	spaceIDs := func(r *LabelRow) []string {
		var ids []string
		for _, s := range r.Spaces() {
			ids = append(ids, s.ID())
		}
		return ids
	}
	if diff := cmp.Diff(spaceIDs(row), spaceIDs(decoded)); diff != "" {
		t.Errorf("space ids (-want +got):\n%s", diff)
	}

	instanceHashes := func(r *LabelRow) []string {
		var hashes []string
		for _, inst := range r.ObjectInstances(nil) {
			hashes = append(hashes, inst.ObjectHash())
		}
		return hashes
	}
	if diff := cmp.Diff(instanceHashes(row), instanceHashes(decoded)); diff != "" {
		t.Errorf("object instances (-want +got):\n%s", diff)
	}

	// Spot checks across the engines.
	origVideo, _ := row.Space("vid-1")
	gotVideo, err := decoded.Space("vid-1")
	if err != nil {
		t.Fatal(err)
	}
	car := row.ObjectInstances(nil)[0]
	gotCar, err := decoded.ObjectInstanceByHash(car.ObjectHash())
	if err != nil {
		t.Fatal(err)
	}
	wantFrames, _ := origVideo.frameEngine().ObjectFrames(car.ObjectHash())
	gotFrames, err := gotVideo.frameEngine().ObjectFrames(car.ObjectHash())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wantFrames, gotFrames); diff != "" {
		t.Errorf("car frames (-want +got):\n%s", diff)
	}
	coords, meta, err := gotVideo.frameEngine().ObjectAnnotation(car.ObjectHash(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if bb, ok := coords.(BoundingBox); !ok || bb.X != 0.4 {
		t.Errorf("frame 5 coords = %#v, want the model box", coords)
	}
	if meta.Confidence != 0.87 || meta.CreatedBy != "model-v2" || meta.ManualAnnotation {
		t.Errorf("frame 5 meta = %+v, want model provenance", meta)
	}
	if a, ok := gotCar.Answer("attr-reg"); !ok || a.Text != "AB-123-CD" {
		t.Errorf("registration answer = %+v, %v", a, ok)
	}
	speed, err := gotVideo.AnswersOn(gotCar, "attr-speed", Placement{})
	if err != nil {
		t.Fatal(err)
	}
	if len(speed) != 1 || speed[0].Answer.Option.FeatureNodeHash != "opt-fast" {
		t.Fatalf("speed answers = %+v", speed)
	}
	if diff := cmp.Diff([]Range{{Start: 0, End: 2}}, speed[0].Ranges); diff != "" {
		t.Errorf("speed ranges (-want +got):\n%s", diff)
	}

	gotAudio, err := decoded.Space("aud-1")
	if err != nil {
		t.Fatal(err)
	}
	var narration *ObjectInstance
	for _, inst := range row.ObjectInstances(nil) {
		if inst.FeatureHash() == "obj-narration" {
			narration = inst
		}
	}
	if narration == nil {
		t.Fatal("narration instance missing from the fixture row")
	}
	ranges, _, err := gotAudio.rangeEngine().ObjectRanges(narration.ObjectHash())
	if err != nil {
		t.Fatal(err)
	}
	want := []Range{{Start: 0, End: 499}, {Start: 500, End: 700}, {Start: 701, End: 2_000}}
	if diff := cmp.Diff(want, ranges); diff != "" {
		t.Errorf("replace splits did not survive (-want +got):\n%s", diff)
	}

	md, ok := gotVideo.frameEngine().FrameMetadata(2)
	if !ok || md.InstanceUID != "1.2.840.10008.1" || md.Width != 512 {
		t.Errorf("frame metadata = %+v, %v", md, ok)
	}

	var global *ClassificationInstance
	for _, inst := range decoded.ClassificationInstances(nil) {
		if inst.Global() {
			global = inst
		}
	}
	if global == nil {
		t.Fatal("global classification lost in round trip")
	}
	if a, ok := global.Answer("attr-weather"); !ok || a.Option.FeatureNodeHash != "opt-sunny" {
		t.Errorf("global weather answer = %+v, %v", a, ok)
	}
}

func TestDecodeAgainstForeignFieldOrder(t *testing.T) {
	// Key order inside entries must not matter on the way in, only on
	// the way out.
	row := fullRow(t)
	encoded, err := row.Encode()
	if err != nil {
		t.Fatal(err)
	}
	var generic map[string]any
	if err := json.Unmarshal(encoded, &generic); err != nil {
		t.Fatal(err)
	}
	shuffled, err := json.Marshal(generic)
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := DecodeRow(shuffled, row.Ontology())
	if err != nil {
		t.Fatalf("DecodeRow(shuffled): %v", err)
	}
	if len(decoded.ObjectInstances(nil)) != len(row.ObjectInstances(nil)) {
		t.Errorf("decoded %d object instances, want %d",
			len(decoded.ObjectInstances(nil)), len(row.ObjectInstances(nil)))
	}
}

func TestDecodeErrors(t *testing.T) {
	structure := testStructure(t)
	tests := []struct {
		name     string
		data     string
		wantErr  error
		contains string
	}{
		{"malformed json", `{"label_hash": `, ErrFormat, ""},
		{"not an object", `[]`, ErrFormat, ""},
		{"unknown status", `{"label_status":"DONE"}`, ErrFormat, `"DONE"`},
		{"bad created_at", `{"created_at":"yesterday"}`, ErrFormat, "created_at"},
		{
			"both forms",
			`{"spaces":{"s1":{"space_type":"video","number_of_frames":1}},"data_units":{"d1":{"data_type":"image","labels":{}}}}`,
			ErrFormat, "both spaces and data_units",
		},
		{
			"unknown space type",
			`{"spaces":{"s1":{"space_type":"hologram"}}}`,
			ErrFormat, `"hologram"`,
		},
		{
			"invalid space size",
			`{"spaces":{"s1":{"space_type":"video","number_of_frames":0}}}`,
			ErrFormat, "positive frame count",
		},
		{
			"unknown object feature",
			`{"object_answers":{"aaaa1111":{"objectHash":"aaaa1111","featureHash":"obj-ghost","classifications":[]}}}`,
			ErrConsistency, `"obj-ghost"`,
		},
		{
			"object answer key mismatch",
			`{"object_answers":{"aaaa1111":{"objectHash":"bbbb2222","featureHash":"obj-car","classifications":[]}}}`,
			ErrFormat, "disagrees",
		},
		{
			"unknown classification feature",
			`{"classification_answers":{"cccc3333":{"classificationHash":"cccc3333","featureHash":"cls-ghost","classifications":[]}}}`,
			ErrConsistency, `"cls-ghost"`,
		},
		{
			"bad frame key",
			`{"spaces":{"s1":{"space_type":"video","number_of_frames":10,"labels":{"x":{"objects":[],"classifications":[]}}}}}`,
			ErrFormat, `"x"`,
		},
		{
			"frame label unknown feature",
			`{"spaces":{"s1":{"space_type":"video","number_of_frames":10,"labels":{"0":{"objects":[{"shape":"bounding_box","objectHash":"dddd4444","featureHash":"obj-ghost","boundingBox":{"x":0,"y":0,"w":1,"h":1}}],"classifications":[]}}}}}`,
			ErrConsistency, `"obj-ghost"`,
		},
		{
			"missing coordinates",
			`{"spaces":{"s1":{"space_type":"video","number_of_frames":10,"labels":{"0":{"objects":[{"shape":"bounding_box","objectHash":"dddd4444","featureHash":"obj-car"}],"classifications":[]}}}}}`,
			ErrFormat, "missing its boundingBox coordinates",
		},
		{
			"overlapping range labels",
			`{"spaces":{"s1":{"space_type":"audio","duration_ms":1000,"range_labels":{"objects":[{"shape":"audio","objectHash":"eeee5555","featureHash":"obj-narration","range":[[0,500],[400,600]]}],"classifications":[]}}}}`,
			ErrFormat, "overlap or are out of order",
		},
		{
			"action on unknown object",
			`{"object_actions":{"ffff6666":{"objectHash":"ffff6666","actions":[]}}}`,
			ErrConsistency, "holds no labels",
		},
		{
			"multiple data units",
			`{"data_units":{"d1":{"data_type":"image","labels":{}},"d2":{"data_type":"image","labels":{}}}}`,
			ErrFormat, "multiple data units",
		},
		{
			"legacy audio unit",
			`{"data_units":{"d1":{"data_type":"audio","labels":{}}}}`,
			ErrFormat, "unsupported type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRow([]byte(tt.data), structure)
			if err == nil {
				t.Fatal("DecodeRow succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error %v, want %v", err, tt.wantErr)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not mention %q", err, tt.contains)
			}
		})
	}
}

func TestDecodeActionOnUnknownSpace(t *testing.T) {
	structure := testStructure(t)
	data := `{
		"spaces":{"vid-1":{"space_type":"video","number_of_frames":10,"labels":{"0":{"objects":[{"name":"Car","shape":"bounding_box","objectHash":"aaaa1111","featureHash":"obj-car","boundingBox":{"x":0,"y":0,"w":1,"h":1}}],"classifications":[]}}}},
		"object_actions":{"aaaa1111":{"objectHash":"aaaa1111","actions":[{"name":"Speed","value":"speed","answers":[{"name":"Fast","value":"fast","featureHash":"opt-fast"}],"featureHash":"attr-speed","spaceId":"ghost","range":[[0,0]],"dynamic":true}]}}
	}`
	_, err := DecodeRow([]byte(data), structure)
	if !errors.Is(err, ErrConsistency) {
		t.Errorf("error %v, want consistency failure", err)
	}
	if err == nil || !strings.Contains(err.Error(), `"ghost"`) {
		t.Errorf("error %v does not name the unknown space", err)
	}
}

func TestDecodeNeedsOntology(t *testing.T) {
	_, err := DecodeRow([]byte(`{}`), nil)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("error %v, want validation failure", err)
	}
}

func TestEncodeBitmaskDimensionCheck(t *testing.T) {
	freezeTime(t)
	row := testRow(t)
	image, err := row.AddImageSpace("img-1", 640, 480)
	if err != nil {
		t.Fatal(err)
	}
	mask := mustObject(t, row, "obj-mask")
	bad := Bitmask{RLEString: "AAAA", Width: 320, Height: 240}
	if err := image.PutObjectInstance(mask, OnFrames(0), bad, PutOptions{}); err != nil {
		t.Fatal(err)
	}

	_, err = row.Encode()
	if !errors.Is(err, ErrConsistency) {
		t.Fatalf("Encode error %v, want consistency failure", err)
	}
	for _, part := range []string{"320x240", "640x480", "frame 0", `"img-1"`} {
		if !strings.Contains(err.Error(), part) {
			t.Errorf("error %q does not mention %s", err, part)
		}
	}

	// Per-frame metadata overrides the space dimensions.
	if err := image.frameEngine().SetFrameMetadata(0, FrameMetadata{Width: 320, Height: 240}); err != nil {
		t.Fatal(err)
	}
	if _, err := row.Encode(); err != nil {
		t.Errorf("Encode with matching frame metadata: %v", err)
	}
}

func TestLegacyDataUnits(t *testing.T) {
	freezeTime(t)
	structure := testStructure(t)
	data := `{
		"label_hash":"lh-legacy","branch_name":"main",
		"created_at":"2024-11-02T08:00:00Z","last_edited_at":"2024-11-02T09:30:00Z",
		"data_hash":"dh-legacy","data_title":"dashcam.mp4","data_type":"video",
		"dataset_hash":"ds-9","dataset_title":"legacy-set","label_status":"LABELLED",
		"object_answers":{"aaaa1111":{"objectHash":"aaaa1111","classifications":[],"createdAt":"2024-11-02T08:05:00Z","createdBy":"ann@example.com","lastEditedAt":"2024-11-02T08:05:00Z","confidence":1,"manualAnnotation":true,"featureHash":"obj-car"}},
		"classification_answers":{},
		"object_actions":{},
		"data_units":{"dh-legacy":{"data_hash":"dh-legacy","data_title":"dashcam.mp4","data_type":"video","data_fps":25,"data_duration":4,"width":1280,"height":720,"labels":{"0":{"objects":[{"name":"Car","color":"#D33115","shape":"bounding_box","value":"car","createdAt":"2024-11-02T08:05:00Z","createdBy":"ann@example.com","confidence":1,"objectHash":"aaaa1111","featureHash":"obj-car","lastEditedAt":"2024-11-02T08:05:00Z","manualAnnotation":true,"boundingBox":{"x":0.1,"y":0.1,"w":0.5,"h":0.5}}],"classifications":[]}}}}
	}`

	row, err := DecodeRow([]byte(data), structure)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}

	// The single data unit becomes an implicit video space under the
	// data hash, sized from fps times duration.
	sp, err := row.Space("dh-legacy")
	if err != nil {
		t.Fatal(err)
	}
	video, ok := sp.(*VideoSpace)
	if !ok {
		t.Fatalf("implicit space is %T, want *VideoSpace", sp)
	}
	if video.NumberOfFrames() != 100 {
		t.Errorf("NumberOfFrames = %d, want 100", video.NumberOfFrames())
	}
	if video.Width() != 1280 || video.FPS() != 25 {
		t.Errorf("dimensions = %dx%d @ %v", video.Width(), video.Height(), video.FPS())
	}
	frames, err := video.ObjectFrames("aaaa1111")
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 || frames[0] != 0 {
		t.Errorf("frames = %v, want [0]", frames)
	}

	// Legacy rows re-encode through data_units with spaces empty, and
	// the encoding is stable from then on.
	first, err := row.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(first), `"spaces":{}`) {
		t.Error("legacy re-encode should keep spaces empty")
	}
	if !strings.Contains(string(first), `"data_units":{"dh-legacy":`) {
		t.Error("legacy re-encode lost its data unit")
	}

	again, err := DecodeRow(first, structure)
	if err != nil {
		t.Fatalf("DecodeRow(re-encoded): %v", err)
	}
	second, err := again.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("legacy encoding not stable\n first: %s\nsecond: %s", first, second)
	}
}

func TestLegacyFrameCountFromLabels(t *testing.T) {
	structure := testStructure(t)
	data := `{"data_units":{"dh-1":{"data_type":"video","labels":{"7":{"objects":[],"classifications":[]}}}}}`
	row, err := DecodeRow([]byte(data), structure)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	sp, err := row.Space("dh-1")
	if err != nil {
		t.Fatal(err)
	}
	video, ok := sp.(*VideoSpace)
	if !ok {
		t.Fatalf("space dh-1 is %T, want *VideoSpace", sp)
	}
	if n := video.NumberOfFrames(); n != 8 {
		t.Errorf("NumberOfFrames = %d, want 8", n)
	}
}
