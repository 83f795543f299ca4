package scene

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"testing"

	"github.com/gridline-ai/gridline-go/internal/httputil"
)

const loaderFixture = `{
	"type": "scene",
	"streams": {
		"ego_vehicle": {
			"entityType": "frame_of_reference",
			"events": [{"position": [10, 0, 0]}]
		},
		"lidar": {
			"entityType": "point_cloud",
			"frameOfReference": "lidar_for",
			"events": [
				{"url": "https://assets.example.com/0.pcd"},
				{"url": "https://assets.example.com/1.pcd"},
				{"url": "https://assets.example.com/2.pcd"}
			]
		},
		"lidar_for": {
			"entityType": "frame_of_reference",
			"events": [{"position": [0, 1, 2]}]
		},
		"lidar_free": {
			"entityType": "point_cloud",
			"events": [{"url": "https://assets.example.com/free.pcd"}]
		},
		"lidar_nourl": {
			"entityType": "point_cloud",
			"events": [{}]
		},
		"cam": {
			"entityType": "image",
			"events": [{"url": "https://assets.example.com/img.jpg"}]
		}
	}
}`

func pcdBody(x, y, z float64) []byte {
	return []byte(fmt.Sprintf(`VERSION .7
FIELDS x y z
SIZE 4 4 4
TYPE F F F
COUNT 1 1 1
WIDTH 1
HEIGHT 1
VIEWPOINT 0 0 0 1 0 0 0
POINTS 1
DATA ascii
%g %g %g
`, x, y, z))
}

func pcdResponse(req *http.Request, body []byte) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
		Request:    req,
	}
}

// serveByURL answers /N.pcd with a single point at (N, 0, 0).
func serveByURL(req *http.Request) (*http.Response, error) {
	path := req.URL.Path
	switch {
	case strings.HasSuffix(path, "/0.pcd"):
		return pcdResponse(req, pcdBody(0, 0, 0)), nil
	case strings.HasSuffix(path, "/1.pcd"):
		return pcdResponse(req, pcdBody(1, 0, 0)), nil
	case strings.HasSuffix(path, "/2.pcd"):
		return pcdResponse(req, pcdBody(2, 0, 0)), nil
	case strings.HasSuffix(path, "/free.pcd"):
		return pcdResponse(req, pcdBody(7, 8, 9)), nil
	default:
		return nil, fmt.Errorf("unexpected url %q", req.URL)
	}
}

func loaderFromFixture(t *testing.T, client httputil.Doer) *Loader {
	t.Helper()
	s, err := Parse([]byte(loaderFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return NewLoader(s, LoaderConfig{Client: client, Concurrency: 2})
}

func TestLoadPointCloud_Success(t *testing.T) {
	client := httputil.NewReplayClient()
	client.DoFunc = serveByURL
	l := loaderFromFixture(t, client)

	cloud, err := l.LoadPointCloud(context.Background(), "lidar", 1)
	if err != nil {
		t.Fatalf("LoadPointCloud: %v", err)
	}
	if cloud.NumPoints() != 1 {
		t.Fatalf("NumPoints() = %d, want 1", cloud.NumPoints())
	}
	if cloud.Points[0] != [3]float64{1, 0, 0} {
		t.Errorf("point = %v, want [1 0 0]", cloud.Points[0])
	}
	if client.RequestCount() != 1 {
		t.Errorf("RequestCount() = %d, want 1", client.RequestCount())
	}
}

func TestLoadPointCloud_Validation(t *testing.T) {
	client := httputil.NewReplayClient()
	client.DoFunc = serveByURL
	l := loaderFromFixture(t, client)
	ctx := context.Background()

	if _, err := l.LoadPointCloud(ctx, "nope", 0); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("unknown stream error = %v, want ErrStreamNotFound", err)
	}
	if _, err := l.LoadPointCloud(ctx, "cam", 0); !errors.Is(err, ErrNotPointCloudStream) {
		t.Errorf("image stream error = %v, want ErrNotPointCloudStream", err)
	}
	if _, err := l.LoadPointCloud(ctx, "lidar", 3); !errors.Is(err, ErrEventOutOfRange) {
		t.Errorf("out-of-range error = %v, want ErrEventOutOfRange", err)
	}
	if _, err := l.LoadPointCloud(ctx, "lidar_nourl", 0); !errors.Is(err, ErrFormat) {
		t.Errorf("missing url error = %v, want ErrFormat", err)
	}

	// Validation failures never reach the network.
	if client.RequestCount() != 0 {
		t.Errorf("RequestCount() = %d, want 0", client.RequestCount())
	}
}

func TestLoadPointCloud_HTTPError(t *testing.T) {
	client := httputil.NewReplayClient()
	client.Enqueue(http.StatusForbidden, []byte("expired signature"))
	l := loaderFromFixture(t, client)

	_, err := l.LoadPointCloud(context.Background(), "lidar", 0)
	if err == nil {
		t.Fatal("LoadPointCloud succeeded, want error")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error %q should carry the HTTP status", err)
	}
}

func TestLoadAllPointClouds_OrderPreserved(t *testing.T) {
	client := httputil.NewReplayClient()
	client.DoFunc = serveByURL
	l := loaderFromFixture(t, client)

	clouds, err := l.LoadAllPointClouds(context.Background(), "lidar")
	if err != nil {
		t.Fatalf("LoadAllPointClouds: %v", err)
	}
	if len(clouds) != 3 {
		t.Fatalf("got %d clouds, want 3", len(clouds))
	}
	for i, cloud := range clouds {
		if cloud.Points[0][0] != float64(i) {
			t.Errorf("clouds[%d] x = %v, want %d", i, cloud.Points[0][0], i)
		}
	}
	if client.RequestCount() != 3 {
		t.Errorf("RequestCount() = %d, want 3", client.RequestCount())
	}
}

func TestLoadAllPointClouds_FirstFailureFailsBatch(t *testing.T) {
	client := httputil.NewReplayClient()
	client.DoFunc = func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/1.pcd") {
			return nil, errors.New("connection reset")
		}
		return serveByURL(req)
	}
	l := loaderFromFixture(t, client)

	clouds, err := l.LoadAllPointClouds(context.Background(), "lidar")
	if err == nil {
		t.Fatal("LoadAllPointClouds succeeded, want error")
	}
	if clouds != nil {
		t.Errorf("got partial results %v, want nil", clouds)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("error %q should carry the fetch failure", err)
	}
}

func TestLoadAllPointClouds_WrongStream(t *testing.T) {
	client := httputil.NewReplayClient()
	l := loaderFromFixture(t, client)
	ctx := context.Background()

	if _, err := l.LoadAllPointClouds(ctx, "nope"); !errors.Is(err, ErrStreamNotFound) {
		t.Errorf("unknown stream error = %v, want ErrStreamNotFound", err)
	}
	if _, err := l.LoadAllPointClouds(ctx, "cam"); !errors.Is(err, ErrNotPointCloudStream) {
		t.Errorf("image stream error = %v, want ErrNotPointCloudStream", err)
	}
}

func TestTransformedPointCloud_AppliesSensorToWorld(t *testing.T) {
	client := httputil.NewReplayClient()
	client.DoFunc = serveByURL
	l := loaderFromFixture(t, client)

	// Sensor-local origin with ego at (10,0,0) and calibration (0,1,2).
	cloud, err := l.TransformedPointCloud(context.Background(), "lidar", 0)
	if err != nil {
		t.Fatalf("TransformedPointCloud: %v", err)
	}
	want := [3]float64{10, 1, 2}
	for i := 0; i < 3; i++ {
		if math.Abs(cloud.Points[0][i]-want[i]) > 1e-6 {
			t.Fatalf("world point = %v, want %v", cloud.Points[0], want)
		}
	}
}

func TestTransformedPointCloud_UncalibratedStaysLocal(t *testing.T) {
	client := httputil.NewReplayClient()
	client.DoFunc = serveByURL
	l := loaderFromFixture(t, client)

	cloud, err := l.TransformedPointCloud(context.Background(), "lidar_free", 0)
	if err != nil {
		t.Fatalf("TransformedPointCloud: %v", err)
	}
	if cloud.Points[0] != [3]float64{7, 8, 9} {
		t.Errorf("point = %v, want [7 8 9] untransformed", cloud.Points[0])
	}
}
