// Package photonmap stores photons deposited by a light tracing pass and
// answers radiance queries from them during shading.
//
// Three maps share one contract. CausticMap keeps every caustic photon in a
// balanced kd-tree and estimates radiance directly from the nearest photons.
// GlobalMap bakes an irradiance estimate into the upper levels of its tree so
// a lookup is a single nearest neighbour search. GridMap accumulates flux in
// a spatial hash of cells and caches the estimate per cell.
//
// All maps follow the same lifecycle: Prepare, concurrent Store calls, one
// single-threaded Init, then concurrent read-only queries.
package photonmap

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// ErrUnknownMap is returned by New for an unrecognised map kind
var ErrUnknownMap = errors.New("unknown photon map")

// minPhotons is the fewest neighbours an estimate is built from. Queries that
// find fewer return black.
const minPhotons = 8

// Hit describes the surface point where a photon landed and the bounces it
// took to get there
type Hit struct {
	Point           core.Vec3
	Normal          core.Vec3
	DiffuseDepth    int
	ReflectionDepth int
	RefractionDepth int
}

// Store is the write side of a photon map
type Store interface {
	// Prepare reads settings from opts and resets the map for a scene
	// with the given bounds
	Prepare(opts core.Options, sceneBounds core.AABB)
	// Store deposits one photon arriving along dir. It is safe for
	// concurrent use and may reject the photon.
	Store(hit Hit, dir, power, diffuse core.Vec3)
	// Init finalizes the map once every Store call has returned
	Init()
	// NumEmit is how many photons the light pass should emit for this map
	NumEmit() int
	// Size is the number of photons accepted so far
	Size() int

	AllowDiffuseBounced() bool
	AllowReflectionBounced() bool
	AllowRefractionBounced() bool
}

// RadianceEstimator answers "how much light leaves this point" queries
type RadianceEstimator interface {
	Radiance(p, n core.Vec3) core.Vec3
}

// Map is a photon store that can be queried after Init
type Map interface {
	Store
	RadianceEstimator
}

// LightSample is the contribution of a single photon to a shading point. Dir
// points from the shading point back toward where the photon came from.
type LightSample struct {
	Dir      core.Vec3
	Radiance core.Vec3
}

// New creates a photon map by kind: "caustic", "global" (or "kd") and "grid"
func New(kind string, logger core.Logger) (Map, error) {
	switch kind {
	case "caustic", "caustics":
		return NewCausticMap(logger), nil
	case "global", "kd":
		return NewGlobalMap(logger), nil
	case "grid":
		return NewGridMap(logger), nil
	}
	return nil, fmt.Errorf("photon map %q: %w", kind, ErrUnknownMap)
}

// maxSearchRadius bounds the gather radius so sparse regions are not
// estimated from photons spread over a huge area
func maxSearchRadius(maxPower float32, gather int) float32 {
	return 1.4 * math32.Sqrt(maxPower*float32(gather))
}
