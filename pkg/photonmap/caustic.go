package photonmap

import (
	"sync"
	"time"

	"github.com/chewxy/math32"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// CausticSettings configures a CausticMap
type CausticSettings struct {
	NumEmit int     // photons to emit
	Gather  int     // photons per estimate
	Radius  float32 // initial search radius
	Filter  float32 // cone filter strength, > 2/3
}

// DefaultCausticSettings returns the settings used when no options are given
func DefaultCausticSettings() CausticSettings {
	return CausticSettings{
		NumEmit: 10000,
		Gather:  50,
		Radius:  0.5,
		Filter:  1.1,
	}
}

// CausticMap holds photons that reached a surface only through specular
// bounces and estimates their radiance directly from the nearest photons
type CausticMap struct {
	logger   core.Logger
	settings CausticSettings

	mu       sync.Mutex
	list     []photon
	bounds   core.AABB
	maxPower float32

	tree      kdTree
	radius    float32
	maxRadius float32
}

// NewCausticMap creates an empty caustic map
func NewCausticMap(logger core.Logger) *CausticMap {
	m := &CausticMap{logger: core.OrNop(logger), settings: DefaultCausticSettings()}
	m.reset()
	return m
}

func (m *CausticMap) reset() {
	m.list = nil
	m.bounds = core.EmptyAABB()
	m.maxPower = 0
	m.tree = kdTree{}
	m.radius = m.settings.Radius
	m.maxRadius = 0
}

// Prepare reads the caustics.* options
func (m *CausticMap) Prepare(opts core.Options, sceneBounds core.AABB) {
	def := DefaultCausticSettings()
	m.settings = CausticSettings{
		NumEmit: opts.GetInt("caustics.emit", def.NumEmit),
		Gather:  max(opts.GetInt("caustics.gather", def.Gather), 1),
		Radius:  float32(opts.GetFloat("caustics.radius", float64(def.Radius))),
		Filter:  float32(opts.GetFloat("caustics.filter", float64(def.Filter))),
	}
	m.reset()
}

// Store keeps photons with no diffuse bounces and at least one specular one
func (m *CausticMap) Store(hit Hit, dir, power, diffuse core.Vec3) {
	if hit.DiffuseDepth != 0 || (hit.ReflectionDepth == 0 && hit.RefractionDepth == 0) {
		return
	}
	p := newPhoton(hit.Point, dir, power)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, p)
	m.bounds = m.bounds.Include(hit.Point)
	m.maxPower = max(m.maxPower, float32(power.MaxComponent()))
}

// Init balances the stored photons into the search tree
func (m *CausticMap) Init() {
	m.logger.Printf("Balancing caustics photon map ...\n")
	start := time.Now()
	stored := len(m.list)
	m.tree = buildTree(m.list, m.bounds)
	m.list = nil
	elapsed := time.Since(start)

	m.maxRadius = maxSearchRadius(m.maxPower, m.settings.Gather)
	m.logger.Printf("Caustic photon map:\n")
	m.logger.Printf("  * Photons stored:   %d\n", stored)
	m.logger.Printf("  * Photons/estimate: %d\n", m.settings.Gather)
	m.logger.Printf("  * Estimate radius:  %.3f\n", m.radius)
	m.logger.Printf("  * Maximum radius:   %.3f\n", m.maxRadius)
	m.logger.Printf("  * Balancing time:   %v\n", elapsed)
	if m.radius > m.maxRadius {
		m.radius = m.maxRadius
	}
}

// Samples returns one light sample per nearby caustic photon arriving from
// above the surface at p. Each sample is weighted by a cone filter that
// falls off with distance from p.
func (m *CausticMap) Samples(p, n core.Vec3) []LightSample {
	if m.tree.size() == 0 {
		return nil
	}
	np := newNearestPhotons(m.settings.Gather)
	np.reset(toPoint(p), m.radius*m.radius)
	m.tree.locate(np.pos, np)
	if np.found < minPhotons {
		return nil
	}

	r2 := np.dist2[0]
	invArea := 1 / (math32.Pi * r2)
	maxNDist := r2 * 0.05
	filter := m.settings.Filter
	f2r2 := 1 / (filter * filter * r2)
	fInv := 1 / (1 - 2/(3*filter))

	samples := make([]LightSample, 0, np.found)
	for i := 1; i <= np.found; i++ {
		ph := np.index[i]
		pdir := core.DecodeDirection(ph.dir)
		cos := -float32(pdir.Dot(n))
		if cos <= 0.001 {
			continue
		}
		pcos := ph.pos.sub(np.pos).dot(n)
		if pcos >= maxNDist || pcos <= -maxNDist {
			continue
		}
		weight := (1 - math32.Sqrt(np.dist2[i]*f2r2)) * fInv
		samples = append(samples, LightSample{
			Dir:      pdir.Negate(),
			Radiance: core.DecodeRGBE(ph.power).Multiply(float64(invArea / cos * weight)),
		})
	}
	return samples
}

// Radiance sums the cosine-weighted caustic samples at p
func (m *CausticMap) Radiance(p, n core.Vec3) core.Vec3 {
	var sum core.Vec3
	for _, s := range m.Samples(p, n) {
		sum = sum.Add(s.Radiance.Multiply(s.Dir.Dot(n)))
	}
	return sum
}

func (m *CausticMap) NumEmit() int { return m.settings.NumEmit }

func (m *CausticMap) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tree.size() > 0 {
		return m.tree.size()
	}
	return len(m.list)
}

func (m *CausticMap) AllowDiffuseBounced() bool    { return false }
func (m *CausticMap) AllowReflectionBounced() bool { return true }
func (m *CausticMap) AllowRefractionBounced() bool { return true }
