// Package pkg holds the gangsheet libraries.
//
// # Overview
//
// A gang sheet is one printable transfer sheet carrying many customer
// designs. The libraries are organized as:
//
//  1. [sheet] - templates, the catalog, and pricing
//  2. [canvas] - the physical, layout, screen, and export coordinate spaces
//  3. [design] - placed objects and the editable board (uploads, dragging,
//     property edits, stacking order, auto-nest)
//  4. [nest] - the shelf packer behind auto-nest
//  5. [raster] - compositing a board into a PNG or JPEG
//  6. [pipeline] - cached exports with hooks and logging
//  7. [session], [artifact], [cache] - storage backends
//  8. [checkout] - the storefront hand-off
//
// # Data Flow
//
//	image files
//	     ↓
//	[design.Board.AddUploads] (decode, size, cascade)
//	     ↓
//	[design.Board] edits and [design.Board.Nest]
//	     ↓
//	[pipeline.Runner.Export] → [raster.Export]
//	     ↓
//	PNG/JPEG → [artifact.Store] and [checkout.Client.Submit]
//
// # Quick Start
//
//	b, _ := design.NewBoard(sheet.Builtin()[0])
//	b.AddUploads(ctx, []design.Upload{{Name: "logo.png", Data: data}})
//	b.Nest(nest.Options{})
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil, logger)
//	res, _ := runner.Export(ctx, b, pipeline.Options{Format: "png"})
//	os.WriteFile("sheet.png", res.Artifact.Data, 0o644)
//
// [sheet]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/sheet
// [canvas]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/canvas
// [design]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/design
// [nest]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/nest
// [raster]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/raster
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/pipeline
// [session]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/session
// [artifact]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/artifact
// [cache]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/cache
// [checkout]: https://pkg.go.dev/github.com/matzehuels/gangsheet/pkg/checkout
package pkg
