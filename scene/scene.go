package scene

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrFormat reports a malformed scene document.
	ErrFormat = errors.New("malformed scene document")

	// ErrUnknownEntityType reports a stream whose entityType is not part
	// of the scene schema.
	ErrUnknownEntityType = errors.New("unknown scene entity type")

	// ErrStreamNotFound reports a lookup of an undeclared stream.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrEventOutOfRange reports an event index beyond a stream's events.
	ErrEventOutOfRange = errors.New("event index out of range")
)

// EntityType classifies what a scene stream carries.
type EntityType string

const (
	EntityImage            EntityType = "image"
	EntityPointCloud       EntityType = "point_cloud"
	EntityFrameOfReference EntityType = "frame_of_reference"
	EntityCameraParameters EntityType = "camera_parameters"
)

// EgoStreamID is the reserved stream id whose frame-of-reference events
// give the per-event ego-to-world pose of the capture vehicle.
const EgoStreamID = "ego_vehicle"

// Document mirrors the scene JSON schema.
type Document struct {
	Type                string               `json:"type"`
	WorldConvention     string               `json:"worldConvention,omitempty"`
	CameraConvention    string               `json:"cameraConvention,omitempty"`
	DefaultGroundHeight float64              `json:"defaultGroundHeight,omitempty"`
	Streams             map[string]StreamDoc `json:"streams"`
}

// StreamDoc is one stream entry of the scene document.
type StreamDoc struct {
	EntityType EntityType `json:"entityType"`

	// FrameOfReference names the frame_of_reference stream holding this
	// sensor's static calibration. Empty when the sensor is uncalibrated.
	FrameOfReference string `json:"frameOfReference,omitempty"`

	Events []EventDoc `json:"events"`
}

// EventDoc is one capture event. Asset streams (image, point_cloud) carry
// a signed URL and timestamp; frame_of_reference streams carry a pose
// sample instead.
type EventDoc struct {
	URL         string  `json:"url,omitempty"`
	TimestampMs float64 `json:"timestampMs,omitempty"`

	ParentID string      `json:"parentId,omitempty"`
	Position *[3]float64 `json:"position,omitempty"`
	Rotation []float64   `json:"rotation,omitempty"` // 9 values, row-major
}

// Scene is the parsed, read-only view of a scene document: stream lookup,
// the static frame-of-reference graph, and sensor-to-world composition.
type Scene struct {
	doc     Document
	streams map[string]*Stream
	order   []string
	graph   *FORGraph
}

// Stream is a parsed scene stream.
type Stream struct {
	ID               string
	EntityType       EntityType
	FrameOfReference string
	Events           []Event
}

// Event is a parsed capture event.
type Event struct {
	URL         string
	TimestampMs float64

	// Frame is the pose sample for frame_of_reference streams, nil for
	// asset streams.
	Frame *FrameOfReference
}

// Parse decodes and validates a scene JSON document.
func Parse(data []byte) (*Scene, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return FromDocument(doc)
}

// FromDocument validates an already-decoded scene document.
func FromDocument(doc Document) (*Scene, error) {
	s := &Scene{doc: doc, streams: make(map[string]*Stream, len(doc.Streams))}

	ids := make([]string, 0, len(doc.Streams))
	for id := range doc.Streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	s.order = ids

	var forFrames []*FrameOfReference
	for _, id := range ids {
		sd := doc.Streams[id]
		switch sd.EntityType {
		case EntityImage, EntityPointCloud, EntityFrameOfReference, EntityCameraParameters:
		default:
			return nil, fmt.Errorf("%w: stream %q declares %q", ErrUnknownEntityType, id, sd.EntityType)
		}

		stream := &Stream{
			ID:               id,
			EntityType:       sd.EntityType,
			FrameOfReference: sd.FrameOfReference,
			Events:           make([]Event, len(sd.Events)),
		}
		for i, ev := range sd.Events {
			parsed := Event{URL: ev.URL, TimestampMs: ev.TimestampMs}
			if sd.EntityType == EntityFrameOfReference {
				frame, err := frameFromEvent(id, i, ev)
				if err != nil {
					return nil, err
				}
				parsed.Frame = frame
			}
			stream.Events[i] = parsed
		}
		s.streams[id] = stream

		// The static graph uses each frame-of-reference stream's first
		// event, keyed by the stream id.
		if sd.EntityType == EntityFrameOfReference && len(stream.Events) > 0 {
			first := *stream.Events[0].Frame
			first.ID = id
			forFrames = append(forFrames, &first)
		}
	}

	// Calibration references must point at frame_of_reference streams.
	for _, id := range ids {
		stream := s.streams[id]
		if stream.FrameOfReference == "" {
			continue
		}
		ref, ok := s.streams[stream.FrameOfReference]
		if !ok {
			return nil, fmt.Errorf("%w: stream %q references undeclared frame-of-reference stream %q",
				ErrFormat, id, stream.FrameOfReference)
		}
		if ref.EntityType != EntityFrameOfReference {
			return nil, fmt.Errorf("%w: stream %q references %q which is %q, not %q",
				ErrFormat, id, stream.FrameOfReference, ref.EntityType, EntityFrameOfReference)
		}
	}

	graph, err := NewFORGraph(forFrames)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	s.graph = graph
	return s, nil
}

func frameFromEvent(streamID string, index int, ev EventDoc) (*FrameOfReference, error) {
	frame := &FrameOfReference{ParentID: ev.ParentID}
	if ev.Position != nil {
		frame.Position = *ev.Position
	}
	switch len(ev.Rotation) {
	case 0:
		// Identity.
	case 9:
		frame.Rotation = mat.NewDense(3, 3, append([]float64(nil), ev.Rotation...))
	default:
		return nil, fmt.Errorf("%w: stream %q event %d rotation has %d values, want 9",
			ErrFormat, streamID, index, len(ev.Rotation))
	}
	return frame, nil
}

// DefaultGroundHeight returns the document's ground plane height.
func (s *Scene) DefaultGroundHeight() float64 { return s.doc.DefaultGroundHeight }

// StreamIDs returns the declared stream ids in sorted order.
func (s *Scene) StreamIDs() []string {
	return append([]string(nil), s.order...)
}

// Stream returns the stream with the given id.
func (s *Scene) Stream(id string) (*Stream, bool) {
	st, ok := s.streams[id]
	return st, ok
}

// Graph returns the static frame-of-reference graph built from the first
// event of every frame_of_reference stream, keyed by stream id.
func (s *Scene) Graph() *FORGraph { return s.graph }

// Event returns a stream's event by index.
func (s *Scene) Event(streamID string, index int) (*Event, error) {
	stream, ok := s.streams[streamID]
	if !ok {
		return nil, fmt.Errorf("stream %q: %w", streamID, ErrStreamNotFound)
	}
	if index < 0 || index >= len(stream.Events) {
		return nil, fmt.Errorf("stream %q event %d: %w (stream has %d events)",
			streamID, index, ErrEventOutOfRange, len(stream.Events))
	}
	return &stream.Events[index], nil
}

// SensorToWorldTransform composes the static sensor-to-ego calibration
// (the first event of the sensor's declared frame-of-reference stream)
// with the per-event ego-to-world pose (the event at eventIndex of the
// reserved ego_vehicle stream). The second return is false when the
// sensor declares no frame of reference; no transform exists then.
func (s *Scene) SensorToWorldTransform(streamID string, eventIndex int) (*mat.Dense, bool, error) {
	stream, ok := s.streams[streamID]
	if !ok {
		return nil, false, fmt.Errorf("stream %q: %w", streamID, ErrStreamNotFound)
	}
	if stream.FrameOfReference == "" {
		return nil, false, nil
	}

	calibStream := s.streams[stream.FrameOfReference]
	if len(calibStream.Events) == 0 {
		return nil, false, fmt.Errorf("%w: calibration stream %q has no events", ErrFormat, calibStream.ID)
	}
	calib := calibStream.Events[0].Frame.Matrix()

	ego, ok := s.streams[EgoStreamID]
	if !ok {
		return nil, false, fmt.Errorf("stream %q: %w", EgoStreamID, ErrStreamNotFound)
	}
	if ego.EntityType != EntityFrameOfReference {
		return nil, false, fmt.Errorf("%w: stream %q is %q, not %q",
			ErrFormat, EgoStreamID, ego.EntityType, EntityFrameOfReference)
	}
	if eventIndex < 0 || eventIndex >= len(ego.Events) {
		return nil, false, fmt.Errorf("stream %q event %d: %w (stream has %d events)",
			EgoStreamID, eventIndex, ErrEventOutOfRange, len(ego.Events))
	}
	pose := ego.Events[eventIndex].Frame.Matrix()

	var world mat.Dense
	world.Mul(pose, calib)
	return &world, true, nil
}
