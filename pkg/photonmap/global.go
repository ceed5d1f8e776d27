package photonmap

import (
	"math"
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// GlobalSettings configures the global and grid maps
type GlobalSettings struct {
	NumEmit int
	Gather  int
	Radius  float32
}

// DefaultGlobalSettings returns the settings used when no options are given
func DefaultGlobalSettings() GlobalSettings {
	return GlobalSettings{
		NumEmit: 100000,
		Gather:  50,
		Radius:  0.5,
	}
}

func globalSettingsFrom(opts core.Options) GlobalSettings {
	def := DefaultGlobalSettings()
	return GlobalSettings{
		NumEmit: opts.GetInt("gi.irr-cache.gmap.emit", def.NumEmit),
		Gather:  max(opts.GetInt("gi.irr-cache.gmap.gather", def.Gather), 1),
		Radius:  float32(opts.GetFloat("gi.irr-cache.gmap.radius", float64(def.Radius))),
	}
}

// GlobalMap stores every photon hit, then bakes a radiance estimate into the
// top quarter of its kd-tree. Lookups return the baked value of the nearest
// node facing the same way as the query.
type GlobalMap struct {
	logger   core.Logger
	settings GlobalSettings

	mu       sync.Mutex
	list     []photon
	bounds   core.AABB
	maxPower float32

	tree        kdTree
	gather      int
	radius      float32
	maxRadius   float32
	hasRadiance bool
}

// NewGlobalMap creates an empty global map
func NewGlobalMap(logger core.Logger) *GlobalMap {
	m := &GlobalMap{logger: core.OrNop(logger), settings: DefaultGlobalSettings()}
	m.reset()
	return m
}

func (m *GlobalMap) reset() {
	m.list = nil
	m.bounds = core.EmptyAABB()
	m.maxPower = 0
	m.tree = kdTree{}
	m.gather = m.settings.Gather
	m.radius = m.settings.Radius
	m.maxRadius = 0
	m.hasRadiance = false
}

// Prepare reads the gi.irr-cache.gmap.* options
func (m *GlobalMap) Prepare(opts core.Options, sceneBounds core.AABB) {
	m.settings = globalSettingsFrom(opts)
	m.reset()
}

// Store keeps every photon along with the surface normal and reflectance
func (m *GlobalMap) Store(hit Hit, dir, power, diffuse core.Vec3) {
	p := newPhoton(hit.Point, dir, power)
	p.normal = core.EncodeDirection(hit.Normal)
	p.data = core.EncodeRGB(diffuse)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, p)
	m.bounds = m.bounds.Include(hit.Point)
	m.maxPower = max(m.maxPower, float32(power.MaxComponent()))
}

// Init balances the tree and precomputes radiance
func (m *GlobalMap) Init() {
	m.logger.Printf("Balancing global photon map ...\n")
	start := time.Now()
	stored := len(m.list)
	m.tree = buildTree(m.list, m.bounds)
	m.list = nil
	elapsed := time.Since(start)

	m.maxRadius = maxSearchRadius(m.maxPower, m.gather)
	m.logger.Printf("Global photon map:\n")
	m.logger.Printf("  * Photons stored:   %d\n", stored)
	m.logger.Printf("  * Photons/estimate: %d\n", m.gather)
	m.logger.Printf("  * Estimate radius:  %.3f\n", m.radius)
	m.logger.Printf("  * Maximum radius:   %.3f\n", m.maxRadius)
	m.logger.Printf("  * Balancing time:   %v\n", elapsed)
	if m.radius > m.maxRadius {
		m.radius = m.maxRadius
	}

	start = time.Now()
	m.precomputeRadiance()
	m.logger.Printf("  * Precompute time:  %v\n", time.Since(start))
	m.logger.Printf("  * Radiance photons: %d\n", m.tree.size())
	m.logger.Printf("  * Search radius:    %.3f\n", m.radius)
}

// precomputeRadiance estimates radiance at every node that is neither a leaf
// nor the parent of a leaf, then keeps only those nodes. They form the top of
// the same implicit tree, so no rebalancing is needed.
func (m *GlobalMap) precomputeRadiance() {
	n := m.tree.size()
	if n == 0 {
		return
	}
	quad := n / 4
	maxDist2 := m.radius * m.radius
	np := newNearestPhotons(m.gather)
	baked := make([]photon, quad+1)
	for i := 1; i <= quad; i++ {
		curr := m.tree.nodes[i]
		normal := core.DecodeDirection(curr.normal)
		np.reset(curr.pos, maxDist2)
		m.tree.locate(curr.pos, np)
		if np.found < minPhotons {
			curr.data = 0
			baked[i] = curr
			continue
		}

		var irr core.Vec3
		r2 := np.dist2[0]
		invArea := 1 / (math32.Pi * r2)
		maxNDist := r2 * 0.05
		for j := 1; j <= np.found; j++ {
			ph := np.index[j]
			cos := -float32(core.DecodeDirection(ph.dir).Dot(normal))
			if cos <= 0.01 {
				continue
			}
			pcos := ph.pos.sub(curr.pos).dot(normal)
			if pcos < maxNDist && pcos > -maxNDist {
				irr = irr.Add(core.DecodeRGBE(ph.power))
			}
		}
		irr = irr.Multiply(float64(invArea))
		radiance := irr.MultiplyVec(core.DecodeRGB(curr.data)).Multiply(1 / math.Pi)
		curr.data = core.EncodeRGBE(radiance)
		baked[i] = curr
	}

	m.gather /= 4
	m.maxRadius = maxSearchRadius(m.maxPower, m.gather)
	if m.radius > m.maxRadius {
		m.radius = m.maxRadius
	}
	m.tree = kdTree{nodes: baked}
	m.hasRadiance = true
}

// nearestFacing finds the closest photon whose normal is within about 25
// degrees of a query normal
type nearestFacing struct {
	normal   core.Vec3
	maxDist2 float32
	nearest  *photon
}

func (nf *nearestFacing) radius2() float32 { return nf.maxDist2 }

func (nf *nearestFacing) visit(ph *photon, d2 float32) {
	if d2 >= nf.maxDist2 {
		return
	}
	if core.DecodeDirection(ph.normal).Dot(nf.normal) > 0.9 {
		nf.nearest = ph
		nf.maxDist2 = d2
	}
}

// Radiance returns the baked radiance of the nearest matching node
func (m *GlobalMap) Radiance(p, n core.Vec3) core.Vec3 {
	if !m.hasRadiance || m.tree.size() == 0 {
		return core.Vec3{}
	}
	nf := &nearestFacing{normal: n, maxDist2: m.radius * m.radius}
	m.tree.locate(toPoint(p), nf)
	if nf.nearest == nil {
		return core.Vec3{}
	}
	return core.DecodeRGBE(nf.nearest.data)
}

func (m *GlobalMap) NumEmit() int { return m.settings.NumEmit }

func (m *GlobalMap) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tree.size() > 0 {
		return m.tree.size()
	}
	return len(m.list)
}

func (m *GlobalMap) AllowDiffuseBounced() bool    { return true }
func (m *GlobalMap) AllowReflectionBounced() bool { return true }
func (m *GlobalMap) AllowRefractionBounced() bool { return true }
