package renderer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/df07/go-bucket-raytracer/pkg/bucket"
	"github.com/df07/go-bucket-raytracer/pkg/core"
	"github.com/df07/go-bucket-raytracer/pkg/filter"
	"github.com/df07/go-bucket-raytracer/pkg/qmc"
)

// BucketConfig contains the settings read by the adaptive bucket renderer
type BucketConfig struct {
	BucketSize int     // Tile edge in pixels, clamped to [16,512]
	Order      string  // Tile order policy name
	MinAA      int     // Coarsest sampling depth, clamped to [-4,5]
	MaxAA      int     // Finest sampling depth, clamped to [-4,5]
	Samples    int     // Evaluations averaged per sample, clamped to [1,256]
	Contrast   float64 // Refinement threshold at depth 0, clamped to [0,1]
	Jitter     bool    // Jitter subpixel positions (only when MaxAA > 0)
	DisplayAA  bool    // Output a sample density heat map instead of the image
	Filter     string  // Reconstruction filter name
}

// DefaultBucketConfig returns sensible default values
func DefaultBucketConfig() BucketConfig {
	return BucketConfig{
		BucketSize: 32,
		Order:      "hilbert",
		MinAA:      0,
		MaxAA:      0,
		Samples:    1,
		Contrast:   0.1,
		Jitter:     false,
		DisplayAA:  false,
		Filter:     "box",
	}
}

// readBucketConfig overrides c with whatever opts carries
func readBucketConfig(c BucketConfig, opts core.Options) BucketConfig {
	c.BucketSize = opts.GetInt("bucket.size", c.BucketSize)
	c.Order = opts.GetString("bucket.order", c.Order)
	c.MinAA = opts.GetInt("aa.min", c.MinAA)
	c.MaxAA = opts.GetInt("aa.max", c.MaxAA)
	c.Samples = opts.GetInt("aa.samples", c.Samples)
	c.DisplayAA = opts.GetBool("aa.display", c.DisplayAA)
	c.Jitter = opts.GetBool("aa.jitter", c.Jitter)
	c.Contrast = opts.GetFloat("aa.contrast", c.Contrast)
	c.Filter = opts.GetString("filter", c.Filter)
	return c
}

// BucketRenderer is the adaptive sampler. Each tile gets its own grid of
// subpixel samples which is refined recursively wherever neighbouring
// samples disagree, then filtered down to pixels.
type BucketRenderer struct {
	scene  Scene
	logger core.Logger
	config BucketConfig

	prepared      bool
	width, height int
	tiles         []*Tile
	filter        filter.Filter

	subPixelSize int // subpixels per pixel edge
	minStepSize  int // finest quad edge, in subpixels
	maxStepSize  int // coarsest quad edge, in subpixels
	sigmaOrder   int
	sigmaLength  int
	thresh       float64
	useJitter    bool
	superSample  int
	invSuper     float64
	fhs          float64 // filter half size in pixels
	fs           int     // filter margin in subpixels
}

// NewBucketRenderer creates an adaptive sampler for scene
func NewBucketRenderer(scene Scene, logger core.Logger) *BucketRenderer {
	return &BucketRenderer{
		scene:  scene,
		logger: core.OrNop(logger),
		config: DefaultBucketConfig(),
	}
}

// Config returns the settings as last read by Prepare
func (br *BucketRenderer) Config() BucketConfig {
	return br.config
}

// Prepare implements ImageSampler
func (br *BucketRenderer) Prepare(opts core.Options, width, height int) bool {
	br.prepared = false
	c := readBucketConfig(br.config, opts)

	if width <= 0 || height <= 0 {
		br.logger.Printf("Bucket renderer: invalid resolution %dx%d\n", width, height)
		return false
	}

	c.BucketSize = core.Clamp(c.BucketSize, 16, 512)
	c.MinAA = core.Clamp(c.MinAA, -4, 5)
	c.MaxAA = core.Clamp(c.MaxAA, -4, 5)
	if c.MaxAA < c.MinAA {
		br.logger.Printf("Bucket renderer: invalid anti-aliasing range %d -> %d\n", c.MinAA, c.MaxAA)
		return false
	}
	c.Samples = core.Clamp(c.Samples, 1, 256)
	c.Contrast = core.Clamp(c.Contrast, 0, 1)

	order, ok := bucket.NewOrder(c.Order)
	if !ok {
		br.logger.Printf("Unrecognized bucket ordering: %q - defaulting to hilbert\n", c.Order)
		c.Order = "hilbert"
		order = bucket.Hilbert{}
	}
	f, ok := filter.Lookup(c.Filter)
	if !ok {
		br.logger.Printf("Unrecognized filter type: %q - defaulting to box\n", c.Filter)
		c.Filter = "box"
		f = filter.Box{}
	}

	br.config = c
	br.width, br.height = width, height
	br.tiles = NewTileGrid(width, height, c.BucketSize, order)
	br.filter = f

	br.superSample = c.Samples
	br.invSuper = 1 / float64(c.Samples)
	br.subPixelSize = 1
	if c.MaxAA > 0 {
		br.subPixelSize = 1 << c.MaxAA
	}
	br.minStepSize = 1
	if c.MaxAA < 0 {
		br.minStepSize = 1 << -c.MaxAA
	}
	switch {
	case c.MinAA == c.MaxAA:
		br.maxStepSize = br.minStepSize
	case c.MinAA > 0:
		br.maxStepSize = br.subPixelSize >> c.MinAA
	default:
		br.maxStepSize = br.subPixelSize << -c.MinAA
	}
	br.useJitter = c.Jitter && c.MaxAA > 0
	br.thresh = c.Contrast * math.Pow(2, float64(c.MinAA))
	br.fhs = f.Size() * 0.5
	br.fs = int(math.Ceil(float64(br.subPixelSize) * (br.fhs - 0.5)))
	br.sigmaOrder = min(qmc.MaxSigmaOrder, max(0, c.MaxAA)+13)
	br.sigmaLength = 1 << br.sigmaOrder

	tilesX := (width + c.BucketSize - 1) / c.BucketSize
	tilesY := (height + c.BucketSize - 1) / c.BucketSize
	br.logger.Printf("Bucket renderer settings:\n")
	br.logger.Printf("  * Resolution:         %dx%d\n", width, height)
	br.logger.Printf("  * Bucket size:        %d\n", c.BucketSize)
	br.logger.Printf("  * Number of buckets:  %dx%d\n", tilesX, tilesY)
	if c.MinAA != c.MaxAA {
		br.logger.Printf("  * Anti-aliasing:      %s -> %s (adaptive)\n", aaDepthString(c.MinAA), aaDepthString(c.MaxAA))
	} else {
		br.logger.Printf("  * Anti-aliasing:      %s (fixed)\n", aaDepthString(c.MinAA))
	}
	br.logger.Printf("  * Rays per sample:    %d\n", c.Samples)
	jitter := "off"
	if br.useJitter {
		jitter = "on"
	} else if c.Jitter {
		jitter = "auto-off"
	}
	br.logger.Printf("  * Subpixel jitter:    %s\n", jitter)
	br.logger.Printf("  * Contrast threshold: %.2f\n", c.Contrast)
	br.logger.Printf("  * Filter type:        %s\n", c.Filter)
	br.logger.Printf("  * Filter size:        %.2f pixels\n", f.Size())

	br.prepared = true
	return true
}

// aaDepthString describes a sampling depth as samples per pixel
func aaDepthString(depth int) string {
	if depth < 0 {
		n := 1 << -depth
		return fmt.Sprintf("1/%d samples", n*n)
	}
	n := 1 << depth
	if depth == 0 {
		return "1 sample"
	}
	return fmt.Sprintf("%d samples", n*n)
}

// Render implements ImageSampler
func (br *BucketRenderer) Render(ctx context.Context, display Display) RenderStats {
	if !br.prepared {
		br.logger.Printf("Bucket renderer: not prepared, skipping render\n")
		return RenderStats{}
	}

	display.ImageBegin(br.width, br.height, br.config.BucketSize)
	start := time.Now()
	pool := NewWorkerPool(threadCount(br.scene), br.scene.ThreadPriority(), br.logger)
	br.logger.Printf("Rendering %d buckets using %d workers...\n", len(br.tiles), pool.GetNumWorkers())

	workers := pool.Run(ctx, br.tiles, TileRendererFunc(func(tile *Tile, workerID int, stats *WorkerStats) {
		br.renderBucket(display, tile, workerID, stats)
	}))
	stats := collectStats(br.scene, len(br.tiles), workers, start)

	if stats.Canceled {
		br.logger.Printf("Render canceled after %d of %d buckets\n", stats.TilesCompleted, stats.Tiles)
	}
	br.logger.Printf("Render time: %v (%d samples, %d subdivisions)\n", stats.Elapsed, stats.Samples, stats.Subdivisions)
	display.ImageEnd()
	return stats
}

// subPixel is one node of a tile's sample grid
type subPixel struct {
	x, y      float64 // raster position
	i         int     // sequence index
	n         int     // evaluations taken, 0 until sampled
	processed bool    // color is valid, either evaluated or interpolated
	color     core.Vec3
	alpha     float64
	instance  core.Handle
	shader    core.Handle
	normal    core.Vec3
}

// renderBucket renders one tile into display
func (br *BucketRenderer) renderBucket(display Display, tile *Tile, workerID int, stats *WorkerStats) {
	x0, y0 := tile.Bounds.Min.X, tile.Bounds.Min.Y
	bw, bh := tile.Bounds.Dx(), tile.Bounds.Dy()
	display.ImagePrepare(x0, y0, bw, bh, workerID)

	sps := br.subPixelSize
	// grid covers the tile plus the filter margin, rounded up so that whole
	// quads of the coarsest step fit
	sx0 := x0*sps - br.fs
	sy0 := y0*sps - br.fs
	sbw := bw*sps + 2*br.fs
	sbh := bh*sps + 2*br.fs
	step := br.maxStepSize
	sbw = (sbw + step - 1) &^ (step - 1)
	sbh = (sbh + step - 1) &^ (step - 1)
	if step > 1 {
		sbw++
		sbh++
	}
	// a single column or row has no quads to refine
	sbw = max(sbw, 2)
	sbh = max(sbh, 2)

	samples := make([]subPixel, sbw*sbh)
	mask := br.sigmaLength - 1
	for y, idx := 0, 0; y < sbh; y++ {
		sy := sy0 + y
		for x := 0; x < sbw; x, idx = x+1, idx+1 {
			sx := sx0 + x
			j := sx & mask
			k := sy & mask
			dx, dy := 0.5, 0.5
			if br.useJitter {
				dx = qmc.Halton(0, k)
				dy = qmc.Halton(0, j)
			}
			samples[idx] = subPixel{
				x:      (float64(sx) + dx) / float64(sps),
				y:      (float64(sy) + dy) / float64(sps),
				i:      (j << br.sigmaOrder) + qmc.Sigma(k, br.sigmaOrder),
				normal: core.NewVec3(1, 1, 1),
			}
		}
	}

	for x := 0; x < sbw-1; x += step {
		for y := 0; y < sbh-1; y += step {
			br.refine(samples, sbw, x, y, step, br.thresh, stats)
		}
	}

	colors := make([]core.Vec3, bw*bh)
	alpha := make([]float64, bw*bh)
	if br.config.DisplayAA {
		br.densityMap(samples, sbw, bw, bh, colors, alpha)
	} else {
		br.reconstruct(samples, sbw, sbh, x0, y0, bw, bh, colors, alpha)
	}
	display.ImageUpdate(x0, y0, bw, bh, colors, alpha)
}

// refine makes sure the corners of the step x step quad at (x, y) are
// evaluated, then either splits the quad or interpolates its interior
func (br *BucketRenderer) refine(samples []subPixel, sbw, x, y, step int, thresh float64, stats *WorkerStats) {
	dx := step
	dy := step * sbw
	i00 := x + y*sbw
	s00 := &samples[i00]
	s01 := &samples[i00+dy]
	s10 := &samples[i00+dx]
	s11 := &samples[i00+dx+dy]
	for _, s := range [...]*subPixel{s00, s01, s10, s11} {
		if s.n == 0 {
			br.computeSubPixel(s, stats)
		}
	}

	if step > br.minStepSize {
		if s00.isDifferent(s01, thresh) ||
			s00.isDifferent(s10, thresh) ||
			s00.isDifferent(s11, thresh) ||
			s01.isDifferent(s11, thresh) ||
			s10.isDifferent(s11, thresh) ||
			s01.isDifferent(s10, thresh) {
			stats.Subdivisions++
			half := step >> 1
			thresh *= 2
			br.refine(samples, sbw, x, y, half, thresh, stats)
			br.refine(samples, sbw, x+half, y, half, thresh, stats)
			br.refine(samples, sbw, x, y+half, half, thresh, stats)
			br.refine(samples, sbw, x+half, y+half, half, thresh, stats)
			return
		}
	}

	ds := 1 / float64(step)
	for j := 0; j <= step; j++ {
		for i := 0; i <= step; i++ {
			s := &samples[x+i+(y+j)*sbw]
			if !s.processed {
				s.bilerp(s00, s01, s10, s11, float64(i)*ds, float64(j)*ds)
			}
		}
	}
}

// computeSubPixel evaluates the scene for s, averaging superSample jittered
// evaluations when more than one is requested
func (br *BucketRenderer) computeSubPixel(s *subPixel, stats *WorkerStats) {
	q0 := qmc.Halton(1, s.i)
	q1 := qmc.Halton(2, s.i)
	q2 := qmc.Halton(3, s.i)
	if br.superSample == 1 {
		res, ok := br.scene.Evaluate(s.x, s.y, q1, q2, q0, s.i, 4, nil)
		stats.Samples++
		s.set(res, ok)
		return
	}
	res, ok := br.scene.Evaluate(s.x, s.y, q1, q2, q0, s.i, 4, nil)
	stats.Samples++
	s.add(res, ok)
	for k := 1; k < br.superSample; k++ {
		t := qmc.Mod1(q0 + float64(k)*br.invSuper)
		lensU := qmc.Mod1(q1 + qmc.Halton(0, k))
		lensV := qmc.Mod1(q2 + qmc.Halton(1, k))
		res, ok := br.scene.Evaluate(s.x, s.y, lensU, lensV, t, s.i+k, 4, nil)
		stats.Samples++
		s.add(res, ok)
	}
	s.scale(br.invSuper)
}

// densityMap writes the fraction of each pixel's subpixels that were
// evaluated
func (br *BucketRenderer) densityMap(samples []subPixel, sbw, bw, bh int, colors []core.Vec3, alpha []float64) {
	sps := br.subPixelSize
	for y, i := 0, 0; y < bh; y++ {
		for x := 0; x < bw; x, i = x+1, i+1 {
			sampled := 0
			for j := 0; j < sps; j++ {
				for k := 0; k < sps; k++ {
					if samples[x*sps+br.fs+k+(y*sps+br.fs+j)*sbw].n > 0 {
						sampled++
					}
				}
			}
			colors[i] = core.Gray(float64(sampled) / float64(sps*sps))
			alpha[i] = 1
		}
	}
}

// reconstruct filters the sample grid down to pixels. Every sample within
// the filter's half size of a pixel center contributes to that pixel.
func (br *BucketRenderer) reconstruct(samples []subPixel, sbw, sbh, x0, y0, bw, bh int, colors []core.Vec3, alpha []float64) {
	sps := br.subPixelSize
	// samples for pixel x sit in grid columns [x*sps, x*sps+sps+2fs), one
	// extra on either side covers jitter
	span := sps + 2*br.fs
	for y, i := 0, 0; y < bh; y++ {
		cy := float64(y0+y) + 0.5
		jlo := max(y*sps-1, 0)
		jhi := min(y*sps+span, sbh-1)
		for x := 0; x < bw; x, i = x+1, i+1 {
			cx := float64(x0+x) + 0.5
			klo := max(x*sps-1, 0)
			khi := min(x*sps+span, sbw-1)

			var c core.Vec3
			var a, weight float64
			for j := jlo; j <= jhi; j++ {
				for k := klo; k <= khi; k++ {
					s := &samples[k+j*sbw]
					dx := s.x - cx
					if math.Abs(dx) > br.fhs {
						continue
					}
					dy := s.y - cy
					if math.Abs(dy) > br.fhs {
						continue
					}
					f := br.filter.Get(dx, dy)
					c = c.Add(s.color.Multiply(f))
					a += f * s.alpha
					weight += f
				}
			}
			if weight == 0 {
				continue
			}
			inv := 1 / weight
			colors[i] = c.Multiply(inv)
			alpha[i] = a * inv
		}
	}
}

func (s *subPixel) set(res ShadingResult, ok bool) {
	s.n = 1
	s.processed = true
	if !ok {
		s.color = core.Vec3{}
		s.alpha = 0
		return
	}
	s.color = res.Color
	s.alpha = res.Alpha()
	s.instance = res.Instance
	s.shader = res.Shader
	if res.HasNormal {
		s.normal = res.Normal
	}
}

func (s *subPixel) add(res ShadingResult, ok bool) {
	if s.n == 0 {
		s.color = core.Vec3{}
		s.alpha = 0
	}
	if ok {
		s.color = s.color.Add(res.Color)
		s.alpha += res.Alpha()
	}
	s.n++
	s.processed = true
}

func (s *subPixel) scale(k float64) {
	s.color = s.color.Multiply(k)
	s.alpha *= k
}

func (s *subPixel) isDifferent(o *subPixel, thresh float64) bool {
	if s.instance != o.instance || s.shader != o.shader {
		return true
	}
	if core.HasContrast(s.color, o.color, thresh) {
		return true
	}
	// 0/0 is NaN and compares false
	if math.Abs(s.alpha-o.alpha)/(s.alpha+o.alpha) > thresh {
		return true
	}
	return s.normal.Dot(o.normal) < 0.9
}

func (s *subPixel) bilerp(s00, s01, s10, s11 *subPixel, dx, dy float64) {
	k00 := (1 - dx) * (1 - dy)
	k01 := (1 - dx) * dy
	k10 := dx * (1 - dy)
	k11 := dx * dy
	s.color = s00.color.Multiply(k00).
		Add(s01.color.Multiply(k01)).
		Add(s10.color.Multiply(k10)).
		Add(s11.color.Multiply(k11))
	s.alpha = k00*s00.alpha + k01*s01.alpha + k10*s10.alpha + k11*s11.alpha
	s.processed = true
}
