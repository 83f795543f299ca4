// Package gridline is the Go client SDK for the Gridline data-annotation
// platform.
//
// The root package holds profile configuration and the REST client.
// Everything stateful lives in the subpackages:
//
//   - label: the annotation engine. LabelRow aggregates spaces (video,
//     image, audio, text, scene), object and classification instances,
//     attribute answers and provenance, and round-trips the platform's
//     label dict format.
//   - ontology: the read-only ontology vocabulary instances are checked
//     against.
//   - scene: 3D scene documents, the frame-of-reference graph and
//     point-cloud loading.
//   - pcd: the PCD point-cloud format.
//   - geometry: rotation construction and cuboid containment.
//
// A typical session loads a profile, fetches a row, mutates it through
// the label package and saves it back:
//
//	cfg, err := gridline.LoadConfig(path)
//	if err != nil { ... }
//	profile, err := cfg.Profile("")
//	if err != nil { ... }
//	client, err := gridline.NewClient(profile)
//	if err != nil { ... }
//
//	row, err := client.GetLabelRow(ctx, labelHash, structure)
//	if err != nil { ... }
//	// mutate row ...
//	if _, err := client.SaveLabelRow(ctx, row); err != nil { ... }
//
// The SDK is silent by default; pass WithLogger to see per-request debug
// events. LabelRow and its contents are single-goroutine state, the
// Client is safe for concurrent use.
package gridline
