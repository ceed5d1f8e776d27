package photonmap

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/df07/go-bucket-raytracer/pkg/core"
	"github.com/df07/go-bucket-raytracer/pkg/qmc"
)

var (
	// ErrNoLights is returned by Emit when there is nothing to emit from
	ErrNoLights = errors.New("no lights in scene")
	// ErrNothingToEmit is returned by Emit when the map asks for no photons
	// or the lights carry no power
	ErrNothingToEmit = errors.New("no photons to emit")
)

// LightSource is a light that can emit photons
type LightSource interface {
	// Power is the total emitted power, used to pick lights proportionally
	Power() float64
	// Photon maps four uniform samples to an emitted photon
	Photon(randX1, randY1, randX2, randY2 float64) (origin, dir, power core.Vec3)
}

// PhotonTracer follows an emitted photon through the scene, calling
// store.Store at every surface interaction the store allows
type PhotonTracer interface {
	TracePhoton(ray core.Ray, power core.Vec3, seed int, store Store)
}

// Emit runs a full light pass for store: it prepares the store, emits
// NumEmit photons split across threads, waits for every thread, then calls
// Init. Lights are chosen in proportion to their power.
func Emit(ctx context.Context, store Store, lights []LightSource, tracer PhotonTracer,
	opts core.Options, bounds core.AABB, seed, threads int, logger core.Logger) error {
	logger = core.OrNop(logger)
	if len(lights) == 0 {
		return ErrNoLights
	}

	histogram := make([]float64, len(lights))
	histogram[0] = lights[0].Power()
	for i := 1; i < len(lights); i++ {
		histogram[i] = histogram[i-1] + lights[i].Power()
	}
	total := histogram[len(histogram)-1]

	store.Prepare(opts, bounds)
	numEmit := store.NumEmit()
	if numEmit <= 0 || total <= 0 {
		return ErrNothingToEmit
	}

	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	logger.Printf("Tracing %d photons on %d threads ...\n", numEmit, threads)
	start := time.Now()
	scale := 1 / float64(numEmit)
	delta := numEmit / threads

	g, ctx := errgroup.WithContext(ctx)
	for t := 0; t < threads; t++ {
		first := t * delta
		last := (t + 1) * delta
		if t == threads-1 {
			last = numEmit
		}
		g.Go(func() error {
			for i := first; i < last; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				qmcI := i + seed
				rnd := qmc.Halton(0, qmcI) * total
				j := sort.Search(len(histogram), func(k int) bool { return histogram[k] > rnd })
				if j == len(histogram) {
					continue
				}
				lo := 0.0
				if j > 0 {
					lo = histogram[j-1]
				}
				randX1 := (rnd - lo) / (histogram[j] - lo)
				origin, dir, power := lights[j].Photon(randX1, qmc.Halton(1, qmcI), qmc.Halton(2, qmcI), qmc.Halton(3, qmcI))
				tracer.TracePhoton(core.NewRay(origin, dir), power.Multiply(scale), qmcI, store)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("tracing photons: %w", err)
	}
	logger.Printf("Tracing time for photons: %v\n", time.Since(start))

	store.Init()
	return nil
}
