package renderer

import (
	"context"
	"image"
	"time"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// simpleBucketSize is the fixed tile edge of the preview renderer
const simpleBucketSize = 32

// SimpleRenderer is the fastest preview: one sample per pixel taken at the
// pixel corner, 32 pixel buckets in scanline order, no filtering or refinement
type SimpleRenderer struct {
	scene  Scene
	logger core.Logger

	prepared      bool
	width, height int
	tiles         []*Tile
}

// NewSimpleRenderer creates a one-sample preview renderer for scene
func NewSimpleRenderer(scene Scene, logger core.Logger) *SimpleRenderer {
	return &SimpleRenderer{
		scene:  scene,
		logger: core.OrNop(logger),
	}
}

// Prepare implements ImageSampler. The simple renderer ignores opts.
func (sr *SimpleRenderer) Prepare(opts core.Options, width, height int) bool {
	sr.prepared = false
	if width <= 0 || height <= 0 {
		sr.logger.Printf("Simple renderer: invalid resolution %dx%d\n", width, height)
		return false
	}
	sr.width, sr.height = width, height
	sr.tiles = NewTileGrid(width, height, simpleBucketSize, scanlineOrder{})
	sr.prepared = true
	return true
}

// Render implements ImageSampler
func (sr *SimpleRenderer) Render(ctx context.Context, display Display) RenderStats {
	if !sr.prepared {
		sr.logger.Printf("Simple renderer: not prepared, skipping render\n")
		return RenderStats{}
	}

	display.ImageBegin(sr.width, sr.height, simpleBucketSize)
	start := time.Now()
	pool := NewWorkerPool(threadCount(sr.scene), sr.scene.ThreadPriority(), sr.logger)
	workers := pool.Run(ctx, sr.tiles, TileRendererFunc(func(tile *Tile, workerID int, stats *WorkerStats) {
		sr.renderBucket(display, tile, stats)
	}))
	stats := collectStats(sr.scene, len(sr.tiles), workers, start)

	sr.logger.Printf("Render time: %v\n", stats.Elapsed)
	display.ImageEnd()
	return stats
}

func (sr *SimpleRenderer) renderBucket(display Display, tile *Tile, stats *WorkerStats) {
	x0, y0 := tile.Bounds.Min.X, tile.Bounds.Min.Y
	bw, bh := tile.Bounds.Dx(), tile.Bounds.Dy()
	colors := make([]core.Vec3, bw*bh)
	alpha := make([]float64, bw*bh)

	for y, i := 0, 0; y < bh; y++ {
		for x := 0; x < bw; x, i = x+1, i+1 {
			res, ok := sr.scene.Evaluate(float64(x0+x), float64(y0+y), 0, 0, 0, 0, 0, nil)
			stats.Samples++
			if ok {
				colors[i] = res.Color
				alpha[i] = res.Alpha()
			}
		}
	}
	display.ImageUpdate(x0, y0, bw, bh, colors, alpha)
}

// scanlineOrder visits every row left to right, top to bottom
type scanlineOrder struct{}

func (scanlineOrder) Sequence(nbw, nbh int) []image.Point {
	coords := make([]image.Point, nbw*nbh)
	for i := range coords {
		coords[i] = image.Pt(i%nbw, i/nbw)
	}
	return coords
}
