package renderer

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

var numCPU = runtime.NumCPU

// WorkerPool renders a fixed list of tiles on a fixed number of goroutines
type WorkerPool struct {
	numWorkers int
	yield      bool // low priority: give up the processor between tiles
	logger     core.Logger
}

// Worker pulls tiles from the shared queue until it is drained or the
// render is canceled
type Worker struct {
	ID        int
	taskQueue <-chan *Tile
	renderer  TileRenderer
	stats     WorkerStats
	pool      *WorkerPool
}

// NewWorkerPool creates a worker pool with the specified number of workers
func NewWorkerPool(numWorkers, priority int, logger core.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = numCPU()
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		yield:      priority < 0,
		logger:     core.OrNop(logger),
	}
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// Run renders tiles and blocks until every worker has returned. Cancellation
// is checked before each tile is taken, so a tile that was started is always
// finished. The result holds one entry per worker.
func (wp *WorkerPool) Run(ctx context.Context, tiles []*Tile, renderer TileRenderer) []WorkerStats {
	taskQueue := make(chan *Tile, len(tiles))
	for _, tile := range tiles {
		taskQueue <- tile
	}
	close(taskQueue)

	workers := make([]*Worker, wp.numWorkers)
	var g errgroup.Group
	for i := range workers {
		worker := &Worker{
			ID:        i,
			taskQueue: taskQueue,
			renderer:  renderer,
			pool:      wp,
		}
		workers[i] = worker
		g.Go(func() error {
			worker.run(ctx)
			return nil
		})
	}
	g.Wait()

	stats := make([]WorkerStats, len(workers))
	for i, w := range workers {
		stats[i] = w.stats
	}
	return stats
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	for tile := range w.taskQueue {
		if ctx.Err() != nil {
			return
		}
		if w.renderSafely(tile) {
			w.stats.TilesCompleted++
		}
		if w.pool.yield {
			runtime.Gosched()
		}
	}
}

// renderSafely renders tile, turning a panic into a logged fault
func (w *Worker) renderSafely(tile *Tile) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.stats.Faults++
			w.pool.logger.Printf("Worker %d: error rendering tile (%d,%d): %v\n",
				w.ID, tile.Bounds.Min.X, tile.Bounds.Min.Y, r)
			ok = false
		}
	}()
	w.renderer.RenderTile(tile, w.ID, &w.stats)
	return true
}

// workQueue is a blocking work list for samplers whose tasks spawn more
// tasks. Take blocks while the list is empty but other tasks are still in
// flight, since those may add work.
type workQueue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	pop      func() (T, bool)
	inFlight int
	stopped  bool
	ctx      context.Context
}

func newWorkQueue[T any](pop func() (T, bool)) *workQueue[T] {
	q := &workQueue[T]{pop: pop}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// watch ends the queue once ctx is done. Take checks ctx itself, the
// callback only wakes blocked waiters.
func (q *workQueue[T]) watch(ctx context.Context) (stop func() bool) {
	q.mu.Lock()
	q.ctx = ctx
	q.mu.Unlock()
	return context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		q.cond.Broadcast()
	})
}

// Take returns the next task, or false once there is nothing left to do
func (q *workQueue[T]) Take() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.stopped || (q.ctx != nil && q.ctx.Err() != nil) {
			q.stopped = true
			var zero T
			return zero, false
		}
		if task, ok := q.pop(); ok {
			q.inFlight++
			return task, true
		}
		if q.inFlight == 0 {
			var zero T
			return zero, false
		}
		q.cond.Wait()
	}
}

// Done marks a task taken with Take as finished. push runs under the queue
// lock and may add follow-up work.
func (q *workQueue[T]) Done(push func()) {
	q.mu.Lock()
	if push != nil {
		push()
	}
	q.inFlight--
	q.mu.Unlock()
	q.cond.Broadcast()
}
