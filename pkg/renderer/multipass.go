package renderer

import (
	"context"
	"math"
	"time"

	"github.com/df07/go-bucket-raytracer/pkg/bucket"
	"github.com/df07/go-bucket-raytracer/pkg/core"
	"github.com/df07/go-bucket-raytracer/pkg/qmc"
)

// MultipassConfig contains the settings read by the fixed-sample renderer
type MultipassConfig struct {
	BucketSize   int    // Tile edge in pixels, clamped to [16,512]
	Order        string // Tile order policy name
	Samples      int    // Samples per pixel, clamped to [1,256]
	ShadingCache bool   // Give each worker a shading cache
}

// DefaultMultipassConfig returns sensible default values
func DefaultMultipassConfig() MultipassConfig {
	return MultipassConfig{
		BucketSize:   32,
		Order:        "hilbert",
		Samples:      16,
		ShadingCache: false,
	}
}

// MultipassRenderer takes the same number of samples in every pixel,
// spread with a cubic B-spline warp so the samples double as the
// reconstruction filter
type MultipassRenderer struct {
	scene  Scene
	logger core.Logger
	config MultipassConfig

	prepared      bool
	width, height int
	tiles         []*Tile
	invSamples    float64
	caches        []*ShadingCache
}

// NewMultipassRenderer creates a fixed-sample renderer for scene
func NewMultipassRenderer(scene Scene, logger core.Logger) *MultipassRenderer {
	return &MultipassRenderer{
		scene:  scene,
		logger: core.OrNop(logger),
		config: DefaultMultipassConfig(),
	}
}

// Prepare implements ImageSampler
func (mr *MultipassRenderer) Prepare(opts core.Options, width, height int) bool {
	mr.prepared = false
	c := mr.config
	c.BucketSize = opts.GetInt("bucket.size", c.BucketSize)
	c.Order = opts.GetString("bucket.order", c.Order)
	c.Samples = opts.GetInt("aa.samples", c.Samples)
	c.ShadingCache = opts.GetBool("aa.cache", c.ShadingCache)

	if width <= 0 || height <= 0 {
		mr.logger.Printf("Multipass renderer: invalid resolution %dx%d\n", width, height)
		return false
	}
	c.BucketSize = core.Clamp(c.BucketSize, 16, 512)
	c.Samples = core.Clamp(c.Samples, 1, 256)
	order, ok := bucket.NewOrder(c.Order)
	if !ok {
		mr.logger.Printf("Unrecognized bucket ordering: %q - defaulting to hilbert\n", c.Order)
		c.Order = "hilbert"
		order = bucket.Hilbert{}
	}

	mr.config = c
	mr.width, mr.height = width, height
	mr.tiles = NewTileGrid(width, height, c.BucketSize, order)
	mr.invSamples = 1 / float64(c.Samples)

	mr.logger.Printf("Multipass renderer settings:\n")
	mr.logger.Printf("  * Resolution:         %dx%d\n", width, height)
	mr.logger.Printf("  * Bucket size:        %d\n", c.BucketSize)
	mr.logger.Printf("  * Samples / pixel:    %d\n", c.Samples)
	mr.logger.Printf("  * Shading cache:      %t\n", c.ShadingCache)
	mr.prepared = true
	return true
}

// Render implements ImageSampler
func (mr *MultipassRenderer) Render(ctx context.Context, display Display) RenderStats {
	if !mr.prepared {
		mr.logger.Printf("Multipass renderer: not prepared, skipping render\n")
		return RenderStats{}
	}

	display.ImageBegin(mr.width, mr.height, mr.config.BucketSize)
	start := time.Now()
	pool := NewWorkerPool(threadCount(mr.scene), mr.scene.ThreadPriority(), mr.logger)
	mr.caches = make([]*ShadingCache, pool.GetNumWorkers())
	if mr.config.ShadingCache {
		for i := range mr.caches {
			mr.caches[i] = NewShadingCache()
		}
	}

	workers := pool.Run(ctx, mr.tiles, TileRendererFunc(func(tile *Tile, workerID int, stats *WorkerStats) {
		mr.renderBucket(display, tile, workerID, stats)
	}))
	for i := range workers {
		workers[i].AddCache(mr.caches[i])
	}
	stats := collectStats(mr.scene, len(mr.tiles), workers, start)

	mr.logger.Printf("Render time: %v\n", stats.Elapsed)
	display.ImageEnd()
	return stats
}

// renderBucket renders one tile into display
func (mr *MultipassRenderer) renderBucket(display Display, tile *Tile, workerID int, stats *WorkerStats) {
	x0, y0 := tile.Bounds.Min.X, tile.Bounds.Min.Y
	bw, bh := tile.Bounds.Dx(), tile.Bounds.Dy()
	display.ImagePrepare(x0, y0, bw, bh, workerID)

	cache := mr.caches[workerID]
	colors := make([]core.Vec3, bw*bh)
	alpha := make([]float64, bw*bh)
	const mask = 1<<qmc.MaxSigmaOrder - 1
	n := mr.config.Samples

	for y, i := 0, 0; y < bh; y++ {
		cy := y0 + y
		for x := 0; x < bw; x, i = x+1, i+1 {
			cx := x0 + x
			instance := ((cx & mask) << qmc.MaxSigmaOrder) + qmc.Sigma(cy&mask, qmc.MaxSigmaOrder)
			jitterX := qmc.Halton(0, instance)
			jitterY := qmc.Halton(1, instance)
			jitterT := qmc.Halton(2, instance)
			jitterU := qmc.Halton(3, instance)
			jitterV := qmc.Halton(4, instance)

			var c core.Vec3
			var a float64
			for s := 0; s < n; s++ {
				rx := float64(cx) + 0.5 + warpCubic(qmc.Mod1(jitterX+float64(s)*mr.invSamples))
				ry := float64(cy) + 0.5 + warpCubic(qmc.Mod1(jitterY+qmc.Halton(0, s)))
				t := qmc.Mod1(jitterT + qmc.Halton(1, s))
				lensU := qmc.Mod1(jitterU + qmc.Halton(2, s))
				lensV := qmc.Mod1(jitterV + qmc.Halton(3, s))
				res, ok := mr.scene.Evaluate(rx, ry, lensU, lensV, t, instance+s, 5, cache)
				stats.Samples++
				if ok {
					c = c.Add(res.Color)
					a += res.Alpha()
				}
			}
			colors[i] = c.Multiply(mr.invSamples)
			alpha[i] = a * mr.invSamples
			cache.Reset()
		}
	}
	display.ImageUpdate(x0, y0, bw, bh, colors, alpha)
}

// warpCubic maps a uniform sample in [0,1) to [-2,2) distributed like the
// cubic B-spline
func warpCubic(x float64) float64 {
	switch {
	case x < 1.0/24:
		return qpow(24*x) - 2
	case x < 0.5:
		return distb1((24.0/11.0)*(x-1.0/24)) - 1
	case x < 23.0/24:
		return 1 - distb1((24.0/11.0)*(23.0/24-x))
	default:
		return 2 - qpow(24*(1-x))
	}
}

func qpow(x float64) float64 {
	return math.Sqrt(math.Sqrt(x))
}

// distb1 inverts the middle segment of the spline's integral by Newton steps
func distb1(x float64) float64 {
	u := x
	for i := 0; i < 5; i++ {
		u = (11*x + u*u*(6+u*(8-9*u))) / (4 + 12*u*(1+u*(1-u)))
	}
	return u
}
