package renderer

import (
	"context"
	"testing"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

func TestWarpCubic_RangeAndOrder(t *testing.T) {
	prev := warpCubic(0)
	if prev < -2.0001 || prev > -1.9999 {
		t.Errorf("Expected warpCubic(0) = -2, got %f", prev)
	}
	for i := 1; i < 1000; i++ {
		v := warpCubic(float64(i) / 1000)
		if v < -2 || v >= 2 {
			t.Fatalf("warpCubic(%f) = %f outside [-2,2)", float64(i)/1000, v)
		}
		if v < prev-1e-9 {
			t.Fatalf("warpCubic not monotonic at %f: %f after %f", float64(i)/1000, v, prev)
		}
		prev = v
	}
	if mid := warpCubic(0.5); mid < -1e-6 || mid > 1e-6 {
		t.Errorf("Expected warpCubic(0.5) = 0, got %f", mid)
	}
}

func TestMultipassRenderer_Defaults(t *testing.T) {
	mr := NewMultipassRenderer(newPlaneScene(32, 32), nil)
	if !mr.Prepare(core.NewOptions(), 32, 32) {
		t.Fatal("Expected Prepare to succeed")
	}
	if mr.config.Samples != 16 {
		t.Errorf("Expected 16 samples by default, got %d", mr.config.Samples)
	}
	if mr.config.ShadingCache {
		t.Error("Expected the shading cache to be off by default")
	}
}

func TestMultipassRenderer_TakesFixedSamples(t *testing.T) {
	scene := newPlaneScene(40, 24)
	mr := NewMultipassRenderer(scene, nil)
	opts := core.NewOptions().Set("aa.samples", 4).Set("bucket.size", 16)
	if !mr.Prepare(opts, 40, 24) {
		t.Fatal("Expected Prepare to succeed")
	}
	display := NewImageDisplay()
	stats := mr.Render(context.Background(), display)

	if stats.Samples != 4*40*24 {
		t.Errorf("Expected %d samples, got %d", 4*40*24, stats.Samples)
	}
	if stats.Subdivisions != 0 {
		t.Errorf("Expected no subdivisions, got %d", stats.Subdivisions)
	}
	if stats.CacheHits != 0 || stats.CacheMisses != 0 {
		t.Errorf("Expected no cache traffic without aa.cache, got %d/%d", stats.CacheHits, stats.CacheMisses)
	}
	for y := 0; y < 24; y++ {
		for x := 0; x < 40; x++ {
			c, a := display.Pixel(x, y)
			if c.IsBlack() || a != 1 {
				t.Fatalf("Expected lit opaque pixel at (%d,%d), got %v alpha %f", x, y, c, a)
			}
		}
	}
}

func TestMultipassRenderer_ShadingCacheResetPerPixel(t *testing.T) {
	scene := newPlaneScene(32, 16)
	scene.useCache = true
	mr := NewMultipassRenderer(scene, nil)
	opts := core.NewOptions().Set("aa.samples", 8).Set("aa.cache", true).Set("bucket.size", 16)
	if !mr.Prepare(opts, 32, 16) {
		t.Fatal("Expected Prepare to succeed")
	}
	display := NewImageDisplay()
	stats := mr.Render(context.Background(), display)

	pixels := int64(32 * 16)
	if stats.CacheMisses != pixels {
		t.Errorf("Expected one miss per pixel (%d), got %d", pixels, stats.CacheMisses)
	}
	if stats.CacheHits != 7*pixels {
		t.Errorf("Expected %d hits, got %d", 7*pixels, stats.CacheHits)
	}

	// every sample in a pixel reuses that pixel's first shading result
	c, _ := display.Pixel(0, 0)
	c2, _ := display.Pixel(20, 3)
	if c == c2 {
		t.Error("Expected the cache not to leak results between pixels")
	}
}

func TestMultipassRenderer_DeterministicAcrossThreadCounts(t *testing.T) {
	opts := core.NewOptions().Set("aa.samples", 3).Set("bucket.size", 16)
	var reference *ImageDisplay
	for _, threads := range []int{1, 4} {
		scene := newDiscScene(50, 34)
		scene.threads = threads
		mr := NewMultipassRenderer(scene, nil)
		if !mr.Prepare(opts, 50, 34) {
			t.Fatal("Expected Prepare to succeed")
		}
		display := NewImageDisplay()
		mr.Render(context.Background(), display)
		if reference == nil {
			reference = display
			continue
		}
		if x, y, ok := sameImage(reference, display); !ok {
			t.Errorf("%d threads: image differs at (%d,%d)", threads, x, y)
		}
	}
}
