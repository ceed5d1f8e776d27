package renderer

import (
	"container/heap"
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/df07/go-bucket-raytracer/pkg/core"
	"github.com/df07/go-bucket-raytracer/pkg/qmc"
)

// DefaultLogger implements core.Logger by writing to stdout
type DefaultLogger struct{}

func (dl *DefaultLogger) Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// NewDefaultLogger creates a new default logger
func NewDefaultLogger() core.Logger {
	return &DefaultLogger{}
}

// progressiveTaskSize is the edge of the sample lattice taken per bucket
const progressiveTaskSize = 16

// smallBucket is a square quadtree node of the progressive render
type smallBucket struct {
	x, y, size int
	priority   float64 // 1/size, lower renders first
}

// bucketQueue is a min-heap of buckets on priority
type bucketQueue []*smallBucket

func (q bucketQueue) Len() int            { return len(q) }
func (q bucketQueue) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q bucketQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *bucketQueue) Push(x interface{}) { *q = append(*q, x.(*smallBucket)) }
func (q *bucketQueue) Pop() interface{} {
	old := *q
	n := len(old)
	b := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return b
}

// ProgressiveRenderer refines the whole image coarse to fine for interactive
// preview. Each bucket takes a 16x16 lattice of samples and fills the block
// around every sample, then splits into four half-size children until the
// lattice reaches one sample per pixel.
type ProgressiveRenderer struct {
	scene  Scene
	logger core.Logger

	prepared      bool
	width, height int
}

// NewProgressiveRenderer creates a progressive renderer for scene
func NewProgressiveRenderer(scene Scene, logger core.Logger) *ProgressiveRenderer {
	return &ProgressiveRenderer{
		scene:  scene,
		logger: core.OrNop(logger),
	}
}

// Prepare implements ImageSampler. The progressive renderer has no options.
func (pr *ProgressiveRenderer) Prepare(opts core.Options, width, height int) bool {
	pr.prepared = false
	if width <= 0 || height <= 0 {
		pr.logger.Printf("Progressive renderer: invalid resolution %dx%d\n", width, height)
		return false
	}
	pr.width, pr.height = width, height
	pr.prepared = true
	return true
}

// Render implements ImageSampler
func (pr *ProgressiveRenderer) Render(ctx context.Context, display Display) RenderStats {
	if !pr.prepared {
		pr.logger.Printf("Progressive renderer: not prepared, skipping render\n")
		return RenderStats{}
	}

	display.ImageBegin(pr.width, pr.height, 0)
	start := time.Now()

	rootSize := core.NextPowerOfTwo(max(pr.width, pr.height, progressiveTaskSize))
	queue := &bucketQueue{{x: 0, y: 0, size: rootSize}}
	work := newWorkQueue(func() (*smallBucket, bool) {
		if queue.Len() == 0 {
			return nil, false
		}
		return heap.Pop(queue).(*smallBucket), true
	})
	stop := work.watch(ctx)
	defer stop()

	numWorkers := threadCount(pr.scene)
	workers := make([]WorkerStats, numWorkers)
	var g errgroup.Group
	for id := range workers {
		g.Go(func() error {
			stats := &workers[id]
			for {
				b, ok := work.Take()
				if !ok {
					return nil
				}
				if ctx.Err() != nil {
					work.Done(nil)
					return nil
				}
				children := pr.renderSafely(display, b, rootSize, id, stats)
				work.Done(func() {
					for _, child := range children {
						heap.Push(queue, child)
					}
				})
			}
		})
	}
	g.Wait()

	stats := RenderStats{}
	for _, ws := range workers {
		pr.scene.AccumulateStats(ws)
		stats.Add(ws)
	}
	stats.Tiles = stats.TilesCompleted + stats.Faults
	stats.Canceled = ctx.Err() != nil
	stats.Elapsed = time.Since(start)
	pr.logger.Printf("Rendering time: %v\n", stats.Elapsed)
	display.ImageEnd()
	return stats
}

// renderSafely renders b, turning a panic into a logged fault. A faulted
// bucket spawns no children.
func (pr *ProgressiveRenderer) renderSafely(display Display, b *smallBucket, rootSize, workerID int, stats *WorkerStats) (children []*smallBucket) {
	defer func() {
		if r := recover(); r != nil {
			stats.Faults++
			pr.logger.Printf("Worker %d: error rendering bucket (%d,%d) size %d: %v\n", workerID, b.x, b.y, b.size, r)
			children = nil
		}
	}()
	children = pr.renderBucket(display, b, b.size < rootSize, stats)
	stats.TilesCompleted++
	return children
}

// renderBucket samples b's lattice and returns its children. Lattice points
// shared with the parent were already drawn and are skipped when useMask
// is set.
func (pr *ProgressiveRenderer) renderBucket(display Display, b *smallBucket, useMask bool, stats *WorkerStats) []*smallBucket {
	ds := b.size / progressiveTaskSize
	mask := 2*b.size/progressiveTaskSize - 1
	const sigmaMask = 1<<qmc.MaxSigmaOrder - 1

	for i, y := 0, b.y; i < progressiveTaskSize && y < pr.height; i, y = i+1, y+ds {
		for j, x := 0, b.x; j < progressiveTaskSize && x < pr.width; j, x = j+1, x+ds {
			if useMask && x&mask == 0 && y&mask == 0 {
				continue
			}
			instance := ((x & sigmaMask) << qmc.MaxSigmaOrder) + qmc.Sigma(y&sigmaMask, qmc.MaxSigmaOrder)
			t := qmc.Halton(1, instance)
			lensU := qmc.Halton(2, instance)
			lensV := qmc.Halton(3, instance)
			res, ok := pr.scene.Evaluate(float64(x)+0.5, float64(y)+0.5, lensU, lensV, t, instance, 4, nil)
			stats.Samples++
			var c core.Vec3
			var a float64
			if ok {
				c = res.Color
				a = res.Alpha()
			}
			display.ImageFill(x, y, min(ds, pr.width-x), min(ds, pr.height-y), c, a)
		}
	}

	if b.size < 2*progressiveTaskSize {
		return nil
	}
	size := b.size >> 1
	var children []*smallBucket
	for i := 0; i < 2; i++ {
		if b.y+i*size >= pr.height {
			continue
		}
		for j := 0; j < 2; j++ {
			if b.x+j*size >= pr.width {
				continue
			}
			children = append(children, &smallBucket{
				x:        b.x + j*size,
				y:        b.y + i*size,
				size:     size,
				priority: 1 / float64(size),
			})
		}
	}
	return children
}
