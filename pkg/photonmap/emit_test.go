package photonmap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// spotLight emits every photon straight down from a fixed height
type spotLight struct {
	power   float64
	emitted atomic.Int64
}

func (l *spotLight) Power() float64 { return l.power }

func (l *spotLight) Photon(randX1, randY1, randX2, randY2 float64) (core.Vec3, core.Vec3, core.Vec3) {
	l.emitted.Add(1)
	origin := core.NewVec3(randX1*2-1, randY1*2-1, 1)
	return origin, down, core.Gray(l.power)
}

// floorTracer lands every photon on z=0 as a caustic hit
type floorTracer struct{}

func (f *floorTracer) TracePhoton(ray core.Ray, power core.Vec3, seed int, store Store) {
	hit := ray.At(ray.Origin.Z)
	store.Store(causticHit(hit), ray.Direction, power, core.Gray(1))
}

func TestEmit_StoresEveryPhoton(t *testing.T) {
	light := &spotLight{power: 100}
	m := NewCausticMap(nil)
	opts := core.NewOptions().Set("caustics.emit", 1000)
	bounds := core.NewAABB(core.NewVec3(-1, -1, 0), core.NewVec3(1, 1, 1))

	err := Emit(context.Background(), m, []LightSource{light}, &floorTracer{}, opts, bounds, 0, 4, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if m.Size() != 1000 {
		t.Errorf("Expected 1000 stored photons, got %d", m.Size())
	}
	if light.emitted.Load() != 1000 {
		t.Errorf("Expected 1000 emitted photons, got %d", light.emitted.Load())
	}
	if m.tree.size() != 1000 {
		t.Errorf("Expected Init to build the tree, got %d nodes", m.tree.size())
	}
	// each photon carries 1/numEmit of the light power
	if got := core.DecodeRGBE(m.tree.nodes[1].power).X; got < 0.09 || got > 0.11 {
		t.Errorf("Expected photon power near 0.1, got %f", got)
	}
}

func TestEmit_PicksLightsByPower(t *testing.T) {
	bright := &spotLight{power: 3}
	dark := &spotLight{power: 0}
	dim := &spotLight{power: 1}
	m := NewGlobalMap(nil)
	opts := core.NewOptions().Set("gi.irr-cache.gmap.emit", 4000)
	bounds := core.NewAABB(core.NewVec3(-1, -1, 0), core.NewVec3(1, 1, 1))

	err := Emit(context.Background(), m, []LightSource{bright, dark, dim}, &floorTracer{}, opts, bounds, 0, 3, nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if dark.emitted.Load() != 0 {
		t.Errorf("Expected zero-power light to emit nothing, got %d", dark.emitted.Load())
	}
	if got := bright.emitted.Load(); got != 3000 {
		t.Errorf("Expected bright light to emit 3000 photons, got %d", got)
	}
	if got := dim.emitted.Load(); got != 1000 {
		t.Errorf("Expected dim light to emit 1000 photons, got %d", got)
	}
}

func TestEmit_Errors(t *testing.T) {
	bounds := core.NewAABB(core.NewVec3(-1, -1, 0), core.NewVec3(1, 1, 1))

	err := Emit(context.Background(), NewCausticMap(nil), nil, &floorTracer{}, core.NewOptions(), bounds, 0, 1, nil)
	if !errors.Is(err, ErrNoLights) {
		t.Errorf("Expected ErrNoLights, got %v", err)
	}

	err = Emit(context.Background(), NewCausticMap(nil), []LightSource{&spotLight{power: 1}}, &floorTracer{},
		core.NewOptions().Set("caustics.emit", 0), bounds, 0, 1, nil)
	if !errors.Is(err, ErrNothingToEmit) {
		t.Errorf("Expected ErrNothingToEmit for zero photons, got %v", err)
	}

	err = Emit(context.Background(), NewCausticMap(nil), []LightSource{&spotLight{power: 0}}, &floorTracer{},
		core.NewOptions(), bounds, 0, 1, nil)
	if !errors.Is(err, ErrNothingToEmit) {
		t.Errorf("Expected ErrNothingToEmit for dark lights, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewCausticMap(nil)
	err = Emit(ctx, m, []LightSource{&spotLight{power: 1}}, &floorTracer{}, core.NewOptions(), bounds, 0, 2, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if m.tree.size() != 0 {
		t.Error("Expected Init to be skipped after cancellation")
	}
}
