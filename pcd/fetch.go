package pcd

import (
	"context"
	"fmt"
	"os"

	"github.com/gridline-ai/gridline-go/internal/httputil"
)

// Fetch downloads a PCD stream from a (typically pre-signed) URL and
// parses it. The URL is expected to be directly fetchable: no platform
// authentication is applied. Deadlines and cancellation come from ctx.
func Fetch(ctx context.Context, client httputil.Doer, url string) (*PointCloud, error) {
	body, err := httputil.GetBytes(ctx, client, url)
	if err != nil {
		return nil, fmt.Errorf("fetch point cloud: %w", err)
	}
	pc, err := FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse point cloud from %q: %w", url, err)
	}
	return pc, nil
}

// FromFile reads and parses a PCD file from the local filesystem.
func FromFile(path string) (*PointCloud, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read point cloud file: %w", err)
	}
	pc, err := FromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse point cloud file %q: %w", path, err)
	}
	return pc, nil
}
