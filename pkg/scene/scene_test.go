package scene

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/df07/go-bucket-raytracer/pkg/core"
	"github.com/df07/go-bucket-raytracer/pkg/photonmap"
	"github.com/df07/go-bucket-raytracer/pkg/renderer"
)

// recordingStore keeps every photon it is handed
type recordingStore struct {
	mu           sync.Mutex
	hits         []photonmap.Hit
	powers       []core.Vec3
	allowDiffuse bool
}

func (r *recordingStore) Prepare(opts core.Options, sceneBounds core.AABB) {}
func (r *recordingStore) Init()                                           {}
func (r *recordingStore) NumEmit() int                                    { return 0 }
func (r *recordingStore) Size() int                                       { return len(r.hits) }
func (r *recordingStore) AllowDiffuseBounced() bool                       { return r.allowDiffuse }
func (r *recordingStore) AllowReflectionBounced() bool                    { return true }
func (r *recordingStore) AllowRefractionBounced() bool                    { return true }

func (r *recordingStore) Store(hit photonmap.Hit, dir, power, diffuse core.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, hit)
	r.powers = append(r.powers, power)
}

// constantEstimator returns the same value everywhere
type constantEstimator core.Vec3

func (c constantEstimator) Radiance(p, n core.Vec3) core.Vec3 { return core.Vec3(c) }

func closeTo(a, b core.Vec3, eps float64) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

var down = core.NewVec3(0, 0, -1)

func TestPlane_Hit(t *testing.T) {
	p := NewPlane(core.Vec3{}, core.NewVec3(0, 0, 2), Surface{}, 1, 1)
	hit, ok := p.Hit(core.NewRay(core.NewVec3(1, 2, 3), down), 0.001, math.Inf(1))
	if !ok {
		t.Fatal("Expected a hit")
	}
	if math.Abs(hit.T-3) > 1e-9 || !closeTo(hit.Point, core.NewVec3(1, 2, 0), 1e-9) {
		t.Errorf("Expected hit at (1,2,0) t=3, got %v t=%f", hit.Point, hit.T)
	}
	if !hit.FrontFace || hit.Normal != core.NewVec3(0, 0, 1) {
		t.Errorf("Expected front face with up normal, got %v front=%v", hit.Normal, hit.FrontFace)
	}

	// from below the normal flips toward the ray
	hit, ok = p.Hit(core.NewRay(core.NewVec3(0, 0, -1), core.NewVec3(0, 0, 1)), 0.001, math.Inf(1))
	if !ok || hit.FrontFace || hit.Normal != core.NewVec3(0, 0, -1) {
		t.Errorf("Expected back face hit with down normal, got %v front=%v", hit.Normal, hit.FrontFace)
	}

	if _, ok := p.Hit(core.NewRay(core.NewVec3(0, 0, 1), core.NewVec3(1, 0, 0)), 0.001, math.Inf(1)); ok {
		t.Error("Expected a parallel ray to miss")
	}
	if _, ok := p.Hit(core.NewRay(core.NewVec3(0, 0, 5), down), 0.001, 4); ok {
		t.Error("Expected a hit beyond tMax to be rejected")
	}
}

func TestDisc_Hit(t *testing.T) {
	d := NewDisc(core.NewVec3(0, 0, 1), core.NewVec3(0, 0, 1), 0.5, Surface{}, 2, 3)
	if _, ok := d.Hit(core.NewRay(core.NewVec3(0.3, 0.3, 2), down), 0.001, math.Inf(1)); !ok {
		t.Error("Expected a hit inside the radius")
	}
	if _, ok := d.Hit(core.NewRay(core.NewVec3(0.4, 0.4, 2), down), 0.001, math.Inf(1)); ok {
		t.Error("Expected a miss outside the radius")
	}
	box := d.BoundingBox()
	if !box.Contains(core.NewVec3(0.5, 0, 1)) || !box.Contains(core.NewVec3(0, -0.5, 1)) {
		t.Errorf("Expected the bounding box to enclose the rim, got %v", box)
	}
	if i, s := d.Handles(); i != 2 || s != 3 {
		t.Errorf("Expected handles 2/3, got %d/%d", i, s)
	}
}

func TestPlaneScene_DirectLighting(t *testing.T) {
	s := NewPlaneScene(40, 30, DefaultConfig())
	res, ok := s.Evaluate(20, 15, 0, 0, 0, 0, 4, nil)
	if !ok {
		t.Fatal("Expected the floor to be hit")
	}
	if res.Instance != 1 || res.Shader != 1 || !res.HasNormal {
		t.Errorf("Expected the floor handles, got %+v", res)
	}
	// point light 4 units straight above: E = 400/(4 pi 16), L = 0.8 E / pi
	want := 0.8 * 400 / (64 * math.Pi * math.Pi)
	if !closeTo(res.Color, core.Gray(want), 1e-9) {
		t.Errorf("Expected radiance %f, got %v", want, res.Color)
	}

	// farther from the light is darker
	edge, _ := s.Evaluate(0.5, 0.5, 0, 0, 0, 0, 4, nil)
	if edge.Color.X >= res.Color.X {
		t.Errorf("Expected the corner (%f) to be darker than the center (%f)", edge.Color.X, res.Color.X)
	}
	if s.Evaluations() != 2 {
		t.Errorf("Expected 2 evaluations, got %d", s.Evaluations())
	}
}

func TestPlaneScene_DiscHandlesAreDistinct(t *testing.T) {
	s := NewPlaneScene(40, 30, DefaultConfig())
	i1, s1 := s.AddDisc(core.NewVec3(-2, 0, 1), core.NewVec3(0, 0, 1), 1, Surface{Albedo: core.Gray(0.5)})
	i2, s2 := s.AddDisc(core.NewVec3(2, 0, 1), core.NewVec3(0, 0, 1), 1, Surface{Albedo: core.Gray(0.5)})
	if i1 == 1 || i1 == i2 || s1 == s2 {
		t.Errorf("Expected distinct handles, got %d/%d and %d/%d", i1, s1, i2, s2)
	}

	// world x=-2 is raster 20 - 2/0.25
	res, _ := s.Evaluate(12, 15, 0, 0, 0, 0, 4, nil)
	if res.Instance != i1 || res.Shader != s1 {
		t.Errorf("Expected the first disc, got instance %d", res.Instance)
	}
	res, _ = s.Evaluate(28, 15, 0, 0, 0, 0, 4, nil)
	if res.Instance != i2 {
		t.Errorf("Expected the second disc, got instance %d", res.Instance)
	}
}

func TestPlaneScene_Shadow(t *testing.T) {
	config := DefaultConfig()
	config.LightPos = core.NewVec3(3, 0, 2)
	lit := NewPlaneScene(40, 30, config)
	shadowed := NewPlaneScene(40, 30, config)
	// the disc sits halfway between the light and the origin
	shadowed.AddDisc(core.NewVec3(1.5, 0, 1), core.NewVec3(0, 0, 1), 0.5, Surface{Albedo: core.Gray(0.5)})

	a, _ := lit.Evaluate(20, 15, 0, 0, 0, 0, 4, nil)
	b, _ := shadowed.Evaluate(20, 15, 0, 0, 0, 0, 4, nil)
	if a.Color.IsBlack() {
		t.Error("Expected the unoccluded floor to be lit")
	}
	if !b.Color.IsBlack() || b.Instance != 1 {
		t.Errorf("Expected black floor in shadow, got %v instance %d", b.Color, b.Instance)
	}
}

func TestPlaneScene_MirrorReflectsBackground(t *testing.T) {
	config := DefaultConfig()
	config.Background = core.NewVec3(0.2, 0.3, 0.4)
	s := NewPlaneScene(40, 30, config)
	inst, _ := s.AddDisc(core.NewVec3(0, 0, 1), core.NewVec3(0, 0, 1), 2, Surface{Albedo: core.Gray(0.5), Mirror: true})

	res, ok := s.Evaluate(20, 15, 0, 0, 0, 0, 4, nil)
	if !ok || res.Instance != inst {
		t.Fatalf("Expected the mirror to be hit, got instance %d", res.Instance)
	}
	if !closeTo(res.Color, core.NewVec3(0.1, 0.15, 0.2), 1e-9) {
		t.Errorf("Expected tinted background, got %v", res.Color)
	}
}

func TestPlaneScene_ShadingCache(t *testing.T) {
	s := NewPlaneScene(40, 30, DefaultConfig())
	cache := renderer.NewShadingCache()
	first, _ := s.Evaluate(5, 5, 0, 0, 0, 0, 4, cache)
	second, _ := s.Evaluate(30, 20, 0, 0, 0, 1, 4, cache)
	if second.Color != first.Color {
		t.Errorf("Expected the cached color %v, got %v", first.Color, second.Color)
	}
	if cache.Hits != 1 || cache.Misses != 1 {
		t.Errorf("Expected 1 hit and 1 miss, got %d/%d", cache.Hits, cache.Misses)
	}

	uncached, _ := s.Evaluate(30, 20, 0, 0, 0, 1, 4, nil)
	if uncached.Color == first.Color {
		t.Error("Expected a different color without the cache")
	}
}

func TestPlaneScene_FinalGather(t *testing.T) {
	config := DefaultConfig()
	config.LightFlux = core.Vec3{}
	s := NewPlaneScene(40, 30, config)
	// a wide ceiling above the camera catches every gather ray
	s.AddDisc(core.NewVec3(0, 0, config.CameraHeight+1), core.NewVec3(0, 0, 1), 1e4, Surface{Albedo: core.Gray(0.5)})
	if len(s.Lights()) != 0 {
		t.Errorf("Expected no lights, got %d", len(s.Lights()))
	}

	res, _ := s.Evaluate(20, 15, 0, 0, 0, 0, 4, nil)
	if !res.Color.IsBlack() {
		t.Errorf("Expected black without light or indirect estimate, got %v", res.Color)
	}

	s.SetIndirect(constantEstimator(core.Gray(1)), 0.5)
	res, _ = s.Evaluate(20, 15, 0, 0, 0, 0, 4, nil)
	if !closeTo(res.Color, core.Gray(0.4), 1e-9) {
		t.Errorf("Expected albedo times scaled indirect radiance 0.4, got %v", res.Color)
	}
}

func TestPointLight_Photon(t *testing.T) {
	l := &PointLight{Position: core.NewVec3(1, 2, 3), Flux: core.Gray(10)}
	if math.Abs(l.Power()-10) > 1e-9 {
		t.Errorf("Expected power 10, got %f", l.Power())
	}
	origin, dir, power := l.Photon(0.3, 0.7, 0.1, 0.9)
	if origin != l.Position || power != l.Flux {
		t.Errorf("Expected the light position and flux, got %v %v", origin, power)
	}
	if math.Abs(dir.Length()-1) > 1e-9 {
		t.Errorf("Expected a unit direction, got length %f", dir.Length())
	}
}

func TestTracePhoton_StoresDiffuseHit(t *testing.T) {
	s := NewPlaneScene(40, 30, DefaultConfig())
	store := &recordingStore{}
	s.TracePhoton(core.NewRay(core.NewVec3(1, 1, 4), down), core.Gray(2), 0, store)
	if len(store.hits) != 1 {
		t.Fatalf("Expected 1 stored photon, got %d", len(store.hits))
	}
	hit := store.hits[0]
	if !closeTo(hit.Point, core.NewVec3(1, 1, 0), 1e-9) {
		t.Errorf("Expected the photon at (1,1,0), got %v", hit.Point)
	}
	if hit.DiffuseDepth != 0 || hit.ReflectionDepth != 0 {
		t.Errorf("Expected a direct hit, got %+v", hit)
	}
}

func TestTracePhoton_MirrorMakesCaustic(t *testing.T) {
	s := NewPlaneScene(40, 30, DefaultConfig())
	s.AddDisc(core.NewVec3(0, 0, 2), core.NewVec3(2, 0, 1), 0.5, Surface{Albedo: core.Gray(0.5), Mirror: true})
	store := &recordingStore{}
	s.TracePhoton(core.NewRay(core.NewVec3(0, 0, 4), down), core.Gray(2), 0, store)
	if len(store.hits) != 1 {
		t.Fatalf("Expected 1 stored photon, got %d", len(store.hits))
	}
	// the mirror turns (0,0,-1) into (0.8,0,-0.6)
	if hit := store.hits[0]; hit.ReflectionDepth != 1 || !closeTo(hit.Point, core.NewVec3(8.0/3, 0, 0), 1e-6) {
		t.Errorf("Expected a reflected hit at (2.667,0,0), got %+v", hit)
	}
	if store.powers[0] != core.Gray(1) {
		t.Errorf("Expected the mirror to halve the power, got %v", store.powers[0])
	}
}

func TestTracePhoton_DiffuseBounces(t *testing.T) {
	config := DefaultConfig()
	config.Albedo = core.Gray(1)
	s := NewPlaneScene(40, 30, config)
	s.AddDisc(core.NewVec3(0, 0, 1), core.NewVec3(0, 0, 1), 1e4, Surface{Albedo: core.Gray(1)})

	store := &recordingStore{allowDiffuse: true}
	s.TracePhoton(core.NewRay(core.NewVec3(0, 0, 0.5), down), core.Gray(1), 7, store)
	if len(store.hits) != maxPhotonBounces {
		t.Fatalf("Expected %d stored photons between floor and ceiling, got %d", maxPhotonBounces, len(store.hits))
	}
	for i, hit := range store.hits {
		if hit.DiffuseDepth != i {
			t.Errorf("Photon %d: expected diffuse depth %d, got %d", i, i, hit.DiffuseDepth)
		}
		if store.powers[i] != core.Gray(1) {
			t.Errorf("Photon %d: expected white albedo to keep power, got %v", i, store.powers[i])
		}
	}

	// without diffuse bounces only the first hit is stored
	store = &recordingStore{}
	s.TracePhoton(core.NewRay(core.NewVec3(0, 0, 0.5), down), core.Gray(1), 7, store)
	if len(store.hits) != 1 {
		t.Errorf("Expected 1 stored photon, got %d", len(store.hits))
	}
}

func TestPlaneScene_Bounds(t *testing.T) {
	s := NewPlaneScene(40, 30, DefaultConfig())
	s.AddDisc(core.NewVec3(3, 0, 2), core.NewVec3(0, 0, 1), 1, Surface{})
	b := s.Bounds()
	for _, p := range []core.Vec3{
		core.NewVec3(-5, -3.75, 0),
		core.NewVec3(5, 3.75, 0),
		core.NewVec3(0, 0, 4),
		core.NewVec3(4, 0, 2),
	} {
		if !b.Contains(p) {
			t.Errorf("Expected bounds %v to contain %v", b, p)
		}
	}
}

func TestPlaneScene_CausticsFromEmission(t *testing.T) {
	s := NewPlaneScene(40, 30, DefaultConfig())
	s.AddDisc(core.NewVec3(0, 0, 2), core.NewVec3(2, 0, 1), 1, Surface{Albedo: core.Gray(1), Mirror: true})

	caustics := photonmap.NewCausticMap(nil)
	opts := core.NewOptions().
		Set("caustics.emit", 20000).
		Set("caustics.gather", 20).
		Set("caustics.radius", 1.0)
	err := photonmap.Emit(context.Background(), caustics, s.Lights(), s, opts, s.Bounds(), 0, 2, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if caustics.Size() == 0 {
		t.Fatal("Expected the mirror to focus photons onto the floor")
	}

	up := core.NewVec3(0, 0, 1)
	if caustics.Radiance(core.NewVec3(8.0/3, 0, 0), up).IsBlack() {
		t.Error("Expected caustic light where the mirror points")
	}
	if !caustics.Radiance(core.NewVec3(-3, 0, 0), up).IsBlack() {
		t.Error("Expected no caustic light behind the mirror")
	}

	// raster x for world x=8/3 with 0.25 world units per pixel
	rx := 20 + (8.0/3)/0.25
	before, _ := s.Evaluate(rx, 15, 0, 0, 0, 0, 4, nil)
	s.SetCaustics(caustics)
	after, _ := s.Evaluate(rx, 15, 0, 0, 0, 0, 4, nil)
	if after.Color.X <= before.Color.X {
		t.Errorf("Expected caustics to brighten the floor, got %f then %f", before.Color.X, after.Color.X)
	}
}

func TestPlaneScene_BucketRender(t *testing.T) {
	config := DefaultConfig()
	config.Threads = 2
	s := NewPlaneScene(48, 32, config)
	s.AddDisc(core.NewVec3(-1, 0.5, 1), core.NewVec3(0, 0, 1), 1.5, Surface{Albedo: core.NewVec3(0.9, 0.1, 0.1)})

	sampler, err := renderer.NewImageSampler("bucket", s, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	opts := core.NewOptions().Set("aa.min", 0).Set("aa.max", 2).Set("bucket.size", 16)
	if !sampler.Prepare(opts, 48, 32) {
		t.Fatal("Expected Prepare to succeed")
	}
	display := renderer.NewImageDisplay()
	stats := sampler.Render(context.Background(), display)

	if stats.Subdivisions == 0 {
		t.Error("Expected the disc edge to trigger refinement")
	}
	if stats.Faults != 0 || stats.Canceled {
		t.Errorf("Expected a clean render, got %+v", stats)
	}
	acc, workers := s.Stats()
	if workers == 0 || acc.Samples != stats.Samples {
		t.Errorf("Expected worker stats to reach the scene, got %d samples from %d workers", acc.Samples, workers)
	}
	for y := 0; y < 32; y++ {
		for x := 0; x < 48; x++ {
			c, a := display.Pixel(x, y)
			if a < 0.999 || math.IsNaN(c.X) {
				t.Fatalf("Expected an opaque finite pixel at (%d,%d), got %v alpha %f", x, y, c, a)
			}
		}
	}
}
