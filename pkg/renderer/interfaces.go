package renderer

import (
	"context"
	"errors"
	"fmt"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// ErrUnknownSampler is returned by NewImageSampler for an unrecognised name
var ErrUnknownSampler = errors.New("unknown image sampler")

// ShadingResult is what the scene reports for one camera sample
type ShadingResult struct {
	Color     core.Vec3
	Instance  core.Handle // object that was hit, 0 for none
	Shader    core.Handle // shader that produced Color
	Normal    core.Vec3   // shading normal, valid when HasNormal is set
	HasNormal bool
}

// Alpha is 1 when the sample hit an object and 0 otherwise
func (r ShadingResult) Alpha() float64 {
	if r.Instance != 0 {
		return 1
	}
	return 0
}

// Scene is the shading collaborator the samplers drive
type Scene interface {
	// Evaluate shades the camera sample at raster position (x, y). The
	// second result is false when the sample produced nothing at all.
	Evaluate(x, y, lensU, lensV, time float64, seed, depth int, cache *ShadingCache) (ShadingResult, bool)
	// Threads is the number of workers to start, <= 0 means one per CPU
	Threads() int
	// ThreadPriority below zero asks workers to yield between tiles
	ThreadPriority() int
	// AccumulateStats is called once per worker after it has been joined
	AccumulateStats(stats WorkerStats)
}

// Display receives image data as tiles finish. Calls for different tiles may
// arrive concurrently.
type Display interface {
	ImageBegin(width, height, bucketSize int)
	ImagePrepare(x, y, width, height, id int)
	ImageUpdate(x, y, width, height int, colors []core.Vec3, alpha []float64)
	ImageFill(x, y, width, height int, color core.Vec3, alpha float64)
	ImageEnd()
}

// ImageSampler turns a scene into pixels
type ImageSampler interface {
	// Prepare validates opts for an image of the given size. A false result
	// means the configuration was rejected and Render will do nothing.
	Prepare(opts core.Options, width, height int) bool
	// Render blocks until every tile is done or ctx is canceled
	Render(ctx context.Context, display Display) RenderStats
}

var samplerFactories = map[string]func(Scene, core.Logger) ImageSampler{
	"bucket":    func(s Scene, l core.Logger) ImageSampler { return NewBucketRenderer(s, l) },
	"multipass": func(s Scene, l core.Logger) ImageSampler { return NewMultipassRenderer(s, l) },
	"ipr":       func(s Scene, l core.Logger) ImageSampler { return NewProgressiveRenderer(s, l) },
	"fast":      func(s Scene, l core.Logger) ImageSampler { return NewSimpleRenderer(s, l) },
}

// NewImageSampler creates the sampler registered under name
func NewImageSampler(name string, scene Scene, logger core.Logger) (ImageSampler, error) {
	factory, ok := samplerFactories[name]
	if !ok {
		return nil, fmt.Errorf("image sampler %q: %w", name, ErrUnknownSampler)
	}
	return factory(scene, logger), nil
}

// threadCount resolves the scene's thread setting
func threadCount(scene Scene) int {
	n := scene.Threads()
	if n <= 0 {
		n = numCPU()
	}
	return n
}
