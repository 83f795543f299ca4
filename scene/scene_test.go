package scene

import (
	"errors"
	"math"
	"strings"
	"testing"
)

const sceneFixture = `{
	"type": "scene",
	"defaultGroundHeight": -1.5,
	"streams": {
		"ego_vehicle": {
			"entityType": "frame_of_reference",
			"events": [
				{"position": [10, 0, 0]},
				{"position": [20, 0, 0], "rotation": [0, -1, 0, 1, 0, 0, 0, 0, 1]}
			]
		},
		"lidar_front": {
			"entityType": "point_cloud",
			"frameOfReference": "lidar_front_for",
			"events": [
				{"url": "https://assets.example.com/pc0.pcd", "timestampMs": 1000},
				{"url": "https://assets.example.com/pc1.pcd", "timestampMs": 1100}
			]
		},
		"lidar_front_for": {
			"entityType": "frame_of_reference",
			"events": [{"position": [0, 1, 2]}]
		},
		"cam_front": {
			"entityType": "image",
			"events": [{"url": "https://assets.example.com/img0.jpg", "timestampMs": 1000}]
		}
	}
}`

func parseFixture(t *testing.T) *Scene {
	t.Helper()
	s, err := Parse([]byte(sceneFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return s
}

func TestParse_Streams(t *testing.T) {
	s := parseFixture(t)

	if got := s.DefaultGroundHeight(); got != -1.5 {
		t.Errorf("DefaultGroundHeight() = %v, want -1.5", got)
	}

	ids := s.StreamIDs()
	want := []string{"cam_front", "ego_vehicle", "lidar_front", "lidar_front_for"}
	if len(ids) != len(want) {
		t.Fatalf("StreamIDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("StreamIDs() = %v, want %v", ids, want)
		}
	}

	lidar, ok := s.Stream("lidar_front")
	if !ok {
		t.Fatal("Stream(lidar_front) not found")
	}
	if lidar.EntityType != EntityPointCloud {
		t.Errorf("lidar_front entity type = %q, want %q", lidar.EntityType, EntityPointCloud)
	}
	if lidar.FrameOfReference != "lidar_front_for" {
		t.Errorf("lidar_front frameOfReference = %q, want lidar_front_for", lidar.FrameOfReference)
	}
	if len(lidar.Events) != 2 {
		t.Fatalf("lidar_front has %d events, want 2", len(lidar.Events))
	}
	if lidar.Events[0].URL != "https://assets.example.com/pc0.pcd" {
		t.Errorf("event 0 url = %q", lidar.Events[0].URL)
	}
	if lidar.Events[0].TimestampMs != 1000 {
		t.Errorf("event 0 timestampMs = %v, want 1000", lidar.Events[0].TimestampMs)
	}
}

func TestParse_GraphUsesFirstEvents(t *testing.T) {
	s := parseFixture(t)

	ego, ok := s.Graph().Frame("ego_vehicle")
	if !ok {
		t.Fatal("graph is missing ego_vehicle")
	}
	if ego.Position != [3]float64{10, 0, 0} {
		t.Errorf("ego position = %v, want [10 0 0] (first event)", ego.Position)
	}

	if _, ok := s.Graph().Frame("lidar_front"); ok {
		t.Error("graph should not contain asset streams")
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"streams": `))
	if !errors.Is(err, ErrFormat) {
		t.Errorf("Parse error = %v, want ErrFormat", err)
	}
}

func TestParse_UnknownEntityType(t *testing.T) {
	doc := `{"type": "scene", "streams": {"radar": {"entityType": "radar_sweep", "events": []}}}`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrUnknownEntityType) {
		t.Fatalf("Parse error = %v, want ErrUnknownEntityType", err)
	}
	if !strings.Contains(err.Error(), "radar_sweep") {
		t.Errorf("error %q should name the offending entity type", err)
	}
}

func TestParse_BadRotationLength(t *testing.T) {
	doc := `{"type": "scene", "streams": {
		"ego_vehicle": {"entityType": "frame_of_reference", "events": [{"rotation": [1, 0, 0]}]}
	}}`
	_, err := Parse([]byte(doc))
	if !errors.Is(err, ErrFormat) {
		t.Fatalf("Parse error = %v, want ErrFormat", err)
	}
	if !strings.Contains(err.Error(), "3") || !strings.Contains(err.Error(), "9") {
		t.Errorf("error %q should name the actual and expected rotation lengths", err)
	}
}

func TestParse_CalibrationReferenceValidation(t *testing.T) {
	undeclared := `{"type": "scene", "streams": {
		"lidar": {"entityType": "point_cloud", "frameOfReference": "ghost", "events": []}
	}}`
	if _, err := Parse([]byte(undeclared)); !errors.Is(err, ErrFormat) {
		t.Errorf("undeclared reference error = %v, want ErrFormat", err)
	}

	wrongType := `{"type": "scene", "streams": {
		"lidar": {"entityType": "point_cloud", "frameOfReference": "cam", "events": []},
		"cam": {"entityType": "image", "events": []}
	}}`
	if _, err := Parse([]byte(wrongType)); !errors.Is(err, ErrFormat) {
		t.Errorf("wrong-type reference error = %v, want ErrFormat", err)
	}
}

func TestEvent_Lookup(t *testing.T) {
	s := parseFixture(t)

	ev, err := s.Event("lidar_front", 1)
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	if ev.URL != "https://assets.example.com/pc1.pcd" {
		t.Errorf("event 1 url = %q", ev.URL)
	}

	if _, err := s.Event("nope", 0); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("unknown stream error = %v, want ErrStreamNotFound", err)
	}
	if _, err := s.Event("lidar_front", 2); !errors.Is(err, ErrEventOutOfRange) {
		t.Errorf("out-of-range error = %v, want ErrEventOutOfRange", err)
	}
	if _, err := s.Event("lidar_front", -1); !errors.Is(err, ErrEventOutOfRange) {
		t.Errorf("negative index error = %v, want ErrEventOutOfRange", err)
	}
}

func TestSensorToWorldTransform_ComposesCalibrationAndPose(t *testing.T) {
	s := parseFixture(t)

	// Event 0: ego at (10,0,0), calibration offset (0,1,2).
	m, ok, err := s.SensorToWorldTransform("lidar_front", 0)
	if err != nil {
		t.Fatalf("SensorToWorldTransform: %v", err)
	}
	if !ok {
		t.Fatal("SensorToWorldTransform ok = false, want true")
	}
	origin := applyHomogeneous(m, [3]float64{0, 0, 0})
	want := [3]float64{10, 1, 2}
	for i := 0; i < 3; i++ {
		if math.Abs(origin[i]-want[i]) > 1e-9 {
			t.Fatalf("sensor origin in world = %v, want %v", origin, want)
		}
	}

	// Event 1: ego at (20,0,0) rotated 90 degrees about Z, so the (0,1,2)
	// calibration offset maps to (-1,0,2) before translation.
	m, ok, err = s.SensorToWorldTransform("lidar_front", 1)
	if err != nil {
		t.Fatalf("SensorToWorldTransform: %v", err)
	}
	if !ok {
		t.Fatal("SensorToWorldTransform ok = false, want true")
	}
	origin = applyHomogeneous(m, [3]float64{0, 0, 0})
	want = [3]float64{19, 0, 2}
	for i := 0; i < 3; i++ {
		if math.Abs(origin[i]-want[i]) > 1e-9 {
			t.Fatalf("sensor origin in world = %v, want %v", origin, want)
		}
	}
}

func TestSensorToWorldTransform_NoFrameOfReference(t *testing.T) {
	s := parseFixture(t)

	m, ok, err := s.SensorToWorldTransform("cam_front", 0)
	if err != nil {
		t.Fatalf("SensorToWorldTransform: %v", err)
	}
	if ok || m != nil {
		t.Errorf("uncalibrated stream: got (%v, %v), want (nil, false)", m, ok)
	}
}

func TestSensorToWorldTransform_Errors(t *testing.T) {
	s := parseFixture(t)

	if _, _, err := s.SensorToWorldTransform("nope", 0); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("unknown stream error = %v, want ErrStreamNotFound", err)
	}
	if _, _, err := s.SensorToWorldTransform("lidar_front", 5); !errors.Is(err, ErrEventOutOfRange) {
		t.Errorf("out-of-range ego event error = %v, want ErrEventOutOfRange", err)
	}

	// A calibrated sensor in a scene without an ego stream has no pose to
	// compose with.
	noEgo := `{"type": "scene", "streams": {
		"lidar": {"entityType": "point_cloud", "frameOfReference": "lidar_for", "events": [{"url": "u"}]},
		"lidar_for": {"entityType": "frame_of_reference", "events": [{"position": [0, 0, 1]}]}
	}}`
	s2, err := Parse([]byte(noEgo))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, _, err := s2.SensorToWorldTransform("lidar", 0); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("missing ego stream error = %v, want ErrStreamNotFound", err)
	}
}
