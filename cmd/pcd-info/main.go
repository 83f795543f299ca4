// pcd-info prints a summary of a PCD point cloud: point count, axis
// bounds and the per-point fields it carries.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/gridline-ai/gridline-go/pcd"
)

func main() {
	var file string
	var url string

	flag.StringVar(&file, "file", "", "path to a .pcd file")
	flag.StringVar(&url, "url", "", "url of a .pcd file")
	flag.Parse()

	if (file == "") == (url == "") {
		log.Fatalf("exactly one of -file or -url must be provided")
	}

	var cloud *pcd.PointCloud
	var err error
	if file != "" {
		cloud, err = pcd.FromFile(file)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		cloud, err = pcd.Fetch(ctx, http.DefaultClient, url)
	}
	if err != nil {
		log.Fatalf("load point cloud: %v", err)
	}

	fmt.Printf("points: %d\n", cloud.NumPoints())

	if cloud.NumPoints() > 0 {
		min, max := cloud.Bounds()
		for i, axis := range []string{"x", "y", "z"} {
			fmt.Printf("%s: [%.3f, %.3f]\n", axis, min[i], max[i])
		}
	}

	fields := []string{"x", "y", "z"}
	if cloud.Colors != nil {
		fields = append(fields, "rgba")
	}
	if cloud.Intensities != nil {
		fields = append(fields, "intensity")
	}
	extra := make([]string, 0, len(cloud.Fields))
	for name := range cloud.Fields {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	fmt.Printf("fields: %v\n", append(fields, extra...))
}
