package scene

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/df07/go-bucket-raytracer/pkg/core"
	"github.com/df07/go-bucket-raytracer/pkg/photonmap"
	"github.com/df07/go-bucket-raytracer/pkg/qmc"
	"github.com/df07/go-bucket-raytracer/pkg/renderer"
)

const (
	rayEpsilon       = 1e-4
	maxMirrorBounces = 4
	maxPhotonBounces = 8
)

// Config holds the camera, light and shading settings of a PlaneScene
type Config struct {
	ViewWidth    float64   // world units covered by the image width
	CameraHeight float64   // z of the orthographic camera
	Background   core.Vec3 // radiance of rays that escape
	Albedo       core.Vec3 // floor reflectance
	LightPos     core.Vec3
	LightFlux    core.Vec3 // total emitted power, zero for no light
	GatherRays   int       // final gather rays into the indirect estimate
	Threads      int       // <= 0 means one per CPU
	Priority     int       // < 0 makes render workers yield between tiles
}

// DefaultConfig returns a plane lit from straight above
func DefaultConfig() Config {
	return Config{
		ViewWidth:    10,
		CameraHeight: 10,
		Albedo:       core.NewVec3(0.8, 0.8, 0.8),
		LightPos:     core.NewVec3(0, 0, 4),
		LightFlux:    core.NewVec3(400, 400, 400),
		GatherRays:   16,
	}
}

// PointLight emits uniformly in every direction
type PointLight struct {
	Position core.Vec3
	Flux     core.Vec3
}

// Power is the luminance of the light's flux
func (l *PointLight) Power() float64 {
	return l.Flux.Luminance()
}

// Photon leaves the light in a uniformly sampled direction carrying the full
// flux. The emitter scales it by the photon count.
func (l *PointLight) Photon(randX1, randY1, randX2, randY2 float64) (core.Vec3, core.Vec3, core.Vec3) {
	dir := core.SampleOnUnitSphere(core.NewVec2(randX1, randY1))
	return l.Position, dir, l.Flux
}

// irradiance is the light arriving at p with normal n, ignoring occlusion
func (l *PointLight) irradiance(p, n core.Vec3) (core.Vec3, core.Vec3, float64) {
	toLight := l.Position.Subtract(p)
	dist := toLight.Length()
	if dist == 0 {
		return core.Vec3{}, core.Vec3{}, 0
	}
	dir := toLight.Multiply(1 / dist)
	cos := dir.Dot(n)
	if cos <= 0 {
		return core.Vec3{}, dir, dist
	}
	return l.Flux.Multiply(cos / (4 * math.Pi * dist * dist)), dir, dist
}

// PlaneScene is a diffuse floor at z=0 seen from straight above by an
// orthographic camera, lit by a point light, with optional discs floating
// over it. It drives the image samplers and doubles as the light source and
// photon tracer for the photon maps.
type PlaneScene struct {
	width, height int
	pixelSize     float64
	config        Config
	light         *PointLight

	shapes     []Shape
	nextHandle core.Handle

	caustics      photonmap.RadianceEstimator
	indirect      photonmap.RadianceEstimator
	indirectScale float64

	evaluations atomic.Int64
	mu          sync.Mutex
	stats       renderer.RenderStats
	workers     int
}

// NewPlaneScene creates a scene for an image of the given size
func NewPlaneScene(width, height int, config Config) *PlaneScene {
	s := &PlaneScene{
		width:      width,
		height:     height,
		pixelSize:  config.ViewWidth / float64(max(width, 1)),
		config:     config,
		nextHandle: 1,
	}
	if !config.LightFlux.IsBlack() {
		s.light = &PointLight{Position: config.LightPos, Flux: config.LightFlux}
	}
	s.add(func(instance, shader core.Handle) Shape {
		return NewPlane(core.Vec3{}, core.NewVec3(0, 0, 1), Surface{Albedo: config.Albedo}, instance, shader)
	})
	return s
}

func (s *PlaneScene) add(build func(instance, shader core.Handle) Shape) (core.Handle, core.Handle) {
	h := s.nextHandle
	s.nextHandle++
	s.shapes = append(s.shapes, build(h, h))
	return h, h
}

// AddDisc places a disc in the scene and returns its instance and shader
// handles. Discs must be added before rendering starts.
func (s *PlaneScene) AddDisc(center, normal core.Vec3, radius float64, surface Surface) (core.Handle, core.Handle) {
	return s.add(func(instance, shader core.Handle) Shape {
		return NewDisc(center, normal, radius, surface, instance, shader)
	})
}

// SetCaustics adds the caustic estimate, an irradiance, to diffuse shading
func (s *PlaneScene) SetCaustics(est photonmap.RadianceEstimator) {
	s.caustics = est
}

// SetIndirect enables final gathering into est. Gathered values are
// multiplied by scale before use, so estimators that return irradiance times
// reflectance can be brought to radiance with a scale of 1/pi.
func (s *PlaneScene) SetIndirect(est photonmap.RadianceEstimator, scale float64) {
	s.indirect = est
	s.indirectScale = scale
}

// Lights returns the photon emitters of the scene
func (s *PlaneScene) Lights() []photonmap.LightSource {
	if s.light == nil {
		return nil
	}
	return []photonmap.LightSource{s.light}
}

// Bounds covers the visible floor, the light and every disc
func (s *PlaneScene) Bounds() core.AABB {
	hw := float64(s.width) * s.pixelSize / 2
	hh := float64(s.height) * s.pixelSize / 2
	bounds := core.NewAABB(core.NewVec3(-hw, -hh, 0), core.NewVec3(hw, hh, 0))
	if s.light != nil {
		bounds = bounds.Include(s.light.Position)
	}
	for _, shape := range s.shapes {
		if _, ok := shape.(*Plane); ok {
			continue
		}
		bounds = bounds.Union(shape.BoundingBox())
	}
	return bounds
}

// cameraRay looks straight down through raster position (x, y), y down
func (s *PlaneScene) cameraRay(x, y float64) core.Ray {
	wx := (x - float64(s.width)/2) * s.pixelSize
	wy := (float64(s.height)/2 - y) * s.pixelSize
	return core.NewRay(core.NewVec3(wx, wy, s.config.CameraHeight), core.NewVec3(0, 0, -1))
}

func (s *PlaneScene) closestHit(ray core.Ray, tMin, tMax float64) (HitRecord, bool) {
	var closest HitRecord
	found := false
	for _, shape := range s.shapes {
		if hit, ok := shape.Hit(ray, tMin, tMax); ok {
			closest = hit
			tMax = hit.T
			found = true
		}
	}
	return closest, found
}

func (s *PlaneScene) occluded(ray core.Ray, dist float64) bool {
	for _, shape := range s.shapes {
		if _, ok := shape.Hit(ray, rayEpsilon, dist-rayEpsilon); ok {
			return true
		}
	}
	return false
}

// Evaluate shades one camera sample. Rays that escape report the background
// with no instance, or nothing at all when the background is black.
func (s *PlaneScene) Evaluate(x, y, lensU, lensV, time float64, seed, depth int, cache *renderer.ShadingCache) (renderer.ShadingResult, bool) {
	s.evaluations.Add(1)
	ray := s.cameraRay(x, y)
	hit, ok := s.closestHit(ray, rayEpsilon, math.Inf(1))
	if !ok {
		if s.config.Background.IsBlack() {
			return renderer.ShadingResult{}, false
		}
		return renderer.ShadingResult{Color: s.config.Background}, true
	}

	instance, shader := hit.Shape.Handles()
	res := renderer.ShadingResult{Instance: instance, Shader: shader, Normal: hit.Normal, HasNormal: true}
	if c, ok := cache.Lookup(instance, shader, ray.Direction, hit.Normal); ok {
		res.Color = c
		return res, true
	}
	res.Color = s.shade(ray, hit, seed, depth, 0)
	cache.Add(instance, shader, ray.Direction, hit.Normal, res.Color)
	return res, true
}

func (s *PlaneScene) shade(ray core.Ray, hit HitRecord, seed, depth, bounce int) core.Vec3 {
	surf := hit.Shape.Surface()
	if surf.Mirror {
		if bounce >= maxMirrorBounces {
			return core.Vec3{}
		}
		reflected := core.NewRay(hit.Point, reflect(ray.Direction, hit.Normal))
		next, ok := s.closestHit(reflected, rayEpsilon, math.Inf(1))
		if !ok {
			return surf.Albedo.MultiplyVec(s.config.Background)
		}
		return surf.Albedo.MultiplyVec(s.shade(reflected, next, seed, depth, bounce+1))
	}

	var irr core.Vec3
	if s.light != nil {
		e, dir, dist := s.light.irradiance(hit.Point, hit.Normal)
		if !e.IsBlack() && !s.occluded(core.NewRay(hit.Point, dir), dist) {
			irr = e
		}
	}
	if s.caustics != nil {
		irr = irr.Add(s.caustics.Radiance(hit.Point, hit.Normal))
	}
	color := surf.Albedo.MultiplyVec(irr).Multiply(1 / math.Pi)
	if s.indirect != nil && s.config.GatherRays > 0 {
		color = color.Add(surf.Albedo.MultiplyVec(s.gather(hit, seed, depth)))
	}
	return color
}

// gather averages the indirect radiance seen over the cosine-weighted
// hemisphere at hit. With cosine sampling the pi of the irradiance integral
// cancels the 1/pi of the Lambertian reflectance.
func (s *PlaneScene) gather(hit HitRecord, seed, depth int) core.Vec3 {
	n := s.config.GatherRays
	du := qmc.Halton(depth, seed)
	dv := qmc.Halton(depth+1, seed)
	var sum core.Vec3
	for i := 0; i < n; i++ {
		u := qmc.Mod1(du + qmc.Halton(0, i))
		v := qmc.Mod1(dv + qmc.Halton(1, i))
		dir := core.SampleCosineHemisphere(hit.Normal, core.NewVec2(u, v))
		ray := core.NewRay(hit.Point, dir)
		next, ok := s.closestHit(ray, rayEpsilon, math.Inf(1))
		if !ok {
			sum = sum.Add(s.config.Background)
			continue
		}
		if next.Shape.Surface().Mirror {
			// specular paths belong to the caustic estimate
			continue
		}
		sum = sum.Add(s.indirect.Radiance(next.Point, next.Normal).Multiply(s.indirectScale))
	}
	return sum.Multiply(1 / float64(n))
}

// TracePhoton follows a photon until it escapes, is absorbed or runs out of
// bounces. Mirrors reflect it, diffuse surfaces store it and, when the map
// wants diffuse bounces, scatter it with russian roulette on the albedo.
func (s *PlaneScene) TracePhoton(ray core.Ray, power core.Vec3, seed int, store photonmap.Store) {
	var hit photonmap.Hit
	for bounce := 0; bounce < maxPhotonBounces; bounce++ {
		rec, ok := s.closestHit(ray, rayEpsilon, math.Inf(1))
		if !ok {
			return
		}
		hit.Point, hit.Normal = rec.Point, rec.Normal
		surf := rec.Shape.Surface()

		if surf.Mirror {
			if !store.AllowReflectionBounced() {
				return
			}
			power = power.MultiplyVec(surf.Albedo)
			if power.IsBlack() {
				return
			}
			hit.ReflectionDepth++
			ray = core.NewRay(rec.Point, reflect(ray.Direction, rec.Normal))
			continue
		}

		store.Store(hit, ray.Direction, power, surf.Albedo)
		if !store.AllowDiffuseBounced() {
			return
		}
		avg := (surf.Albedo.X + surf.Albedo.Y + surf.Albedo.Z) / 3
		// dimensions 0-3 were spent choosing the photon at the light
		rnd := qmc.Halton(4+2*bounce, seed)
		if rnd >= avg {
			return
		}
		power = power.MultiplyVec(surf.Albedo).Multiply(1 / avg)
		dir := core.SampleCosineHemisphere(rec.Normal, core.NewVec2(rnd/avg, qmc.Halton(5+2*bounce, seed)))
		hit.DiffuseDepth++
		ray = core.NewRay(rec.Point, dir)
	}
}

func reflect(d, n core.Vec3) core.Vec3 {
	return d.Subtract(n.Multiply(2 * d.Dot(n)))
}

func (s *PlaneScene) Threads() int        { return s.config.Threads }
func (s *PlaneScene) ThreadPriority() int { return s.config.Priority }

// AccumulateStats folds in the totals of one render worker
func (s *PlaneScene) AccumulateStats(stats renderer.WorkerStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Add(stats)
	s.workers++
}

// Stats returns the worker totals accumulated so far and how many workers
// reported them
func (s *PlaneScene) Stats() (renderer.RenderStats, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, s.workers
}

// Evaluations is the number of camera samples shaded so far
func (s *PlaneScene) Evaluations() int64 {
	return s.evaluations.Load()
}
