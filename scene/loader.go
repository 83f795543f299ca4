package scene

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gridline-ai/gridline-go/internal/httputil"
	"github.com/gridline-ai/gridline-go/pcd"
)

// ErrNotPointCloudStream reports a point-cloud request against a stream
// that carries a different entity type.
var ErrNotPointCloudStream = errors.New("stream does not carry point clouds")

const (
	// DefaultConcurrency bounds parallel downloads in LoadAllPointClouds.
	DefaultConcurrency = 4

	// DefaultRequestTimeout bounds a single point-cloud download.
	DefaultRequestTimeout = 60 * time.Second
)

// LoaderConfig contains configuration options for the point-cloud loader.
type LoaderConfig struct {
	// Client performs the HTTP fetches. Defaults to http.DefaultClient.
	Client httputil.Doer

	// Concurrency bounds parallel downloads in LoadAllPointClouds.
	// Defaults to DefaultConcurrency.
	Concurrency int

	// RequestTimeout bounds each individual download. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// Logger receives per-fetch debug events. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

// Loader downloads and parses the point clouds referenced by a scene's
// streams. Batch loads are all-or-nothing: the first failure cancels the
// remaining downloads and fails the batch.
type Loader struct {
	scene       *Scene
	client      httputil.Doer
	concurrency int
	timeout     time.Duration
	logger      zerolog.Logger
}

// NewLoader creates a loader for the given scene with the provided
// configuration.
func NewLoader(s *Scene, config LoaderConfig) *Loader {
	client := config.Client
	if client == nil {
		client = http.DefaultClient
	}

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &Loader{
		scene:       s,
		client:      client,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
	}
}

// LoadPointCloud downloads and parses the point cloud for one event of a
// point_cloud stream.
func (l *Loader) LoadPointCloud(ctx context.Context, streamID string, eventIndex int) (*pcd.PointCloud, error) {
	ev, err := l.pointCloudEvent(streamID, eventIndex)
	if err != nil {
		return nil, err
	}
	return l.fetch(ctx, streamID, eventIndex, ev.URL)
}

// LoadAllPointClouds downloads and parses every event of a point_cloud
// stream, at most Concurrency downloads in flight at a time. Results are
// in event order. The first failure cancels the in-flight downloads and
// fails the whole batch; no partial results are returned.
func (l *Loader) LoadAllPointClouds(ctx context.Context, streamID string) ([]*pcd.PointCloud, error) {
	stream, ok := l.scene.Stream(streamID)
	if !ok {
		return nil, fmt.Errorf("stream %q: %w", streamID, ErrStreamNotFound)
	}
	if stream.EntityType != EntityPointCloud {
		return nil, fmt.Errorf("stream %q is %q: %w", streamID, stream.EntityType, ErrNotPointCloudStream)
	}

	clouds := make([]*pcd.PointCloud, len(stream.Events))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i := range stream.Events {
		i := i
		g.Go(func() error {
			cloud, err := l.fetch(ctx, streamID, i, stream.Events[i].URL)
			if err != nil {
				return err
			}
			clouds[i] = cloud
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clouds, nil
}

// TransformedPointCloud downloads one event's point cloud and maps it into
// world coordinates using the sensor's calibration and the matching ego
// pose. When the stream declares no frame of reference the cloud is
// returned in sensor coordinates unchanged.
func (l *Loader) TransformedPointCloud(ctx context.Context, streamID string, eventIndex int) (*pcd.PointCloud, error) {
	cloud, err := l.LoadPointCloud(ctx, streamID, eventIndex)
	if err != nil {
		return nil, err
	}
	m, ok, err := l.scene.SensorToWorldTransform(streamID, eventIndex)
	if err != nil {
		return nil, err
	}
	if !ok {
		return cloud, nil
	}
	return cloud.Transform(m), nil
}

func (l *Loader) pointCloudEvent(streamID string, eventIndex int) (*Event, error) {
	stream, ok := l.scene.Stream(streamID)
	if !ok {
		return nil, fmt.Errorf("stream %q: %w", streamID, ErrStreamNotFound)
	}
	if stream.EntityType != EntityPointCloud {
		return nil, fmt.Errorf("stream %q is %q: %w", streamID, stream.EntityType, ErrNotPointCloudStream)
	}
	if eventIndex < 0 || eventIndex >= len(stream.Events) {
		return nil, fmt.Errorf("stream %q event %d: %w (stream has %d events)",
			streamID, eventIndex, ErrEventOutOfRange, len(stream.Events))
	}
	return &stream.Events[eventIndex], nil
}

func (l *Loader) fetch(ctx context.Context, streamID string, eventIndex int, url string) (*pcd.PointCloud, error) {
	if url == "" {
		return nil, fmt.Errorf("%w: stream %q event %d has no url", ErrFormat, streamID, eventIndex)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	cloud, err := pcd.Fetch(ctx, l.client, url)
	if err != nil {
		return nil, fmt.Errorf("stream %q event %d: %w", streamID, eventIndex, err)
	}
	l.logger.Debug().
		Str("stream", streamID).
		Int("event", eventIndex).
		Int("points", cloud.NumPoints()).
		Dur("elapsed", time.Since(start)).
		Msg("point cloud loaded")
	return cloud, nil
}
