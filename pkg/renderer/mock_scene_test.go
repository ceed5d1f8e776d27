package renderer

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// MockScene is a lit plane seen from above, optionally with a red disc on it
type MockScene struct {
	threads  int
	priority int

	// point light above (lightX, lightY) at height lightH, in pixels
	lightX, lightY, lightH float64
	// disc of radius discR centered on (discX, discY); none when discR is 0
	discX, discY, discR float64
	useCache            bool

	// onEvaluate runs before every evaluation, for fault and cancel tests
	onEvaluate func(x, y float64)

	evaluations atomic.Int64
	mu          sync.Mutex
	accumulated []WorkerStats
}

func newPlaneScene(width, height int) *MockScene {
	return &MockScene{
		threads: 2,
		lightX:  float64(width) / 2,
		lightY:  float64(height) / 2,
		lightH:  40,
	}
}

func newDiscScene(width, height int) *MockScene {
	s := newPlaneScene(width, height)
	s.discX = float64(width) * 0.4
	s.discY = float64(height) * 0.55
	s.discR = float64(min(width, height)) * 0.3
	return s
}

func (m *MockScene) shade(x, y float64) ShadingResult {
	dx, dy := x-m.lightX, y-m.lightY
	falloff := 1 / (1 + (dx*dx+dy*dy)/(m.lightH*m.lightH))
	res := ShadingResult{
		Color:     core.NewVec3(0.8, 0.8, 0.8).Multiply(falloff),
		Instance:  1,
		Shader:    1,
		Normal:    core.NewVec3(0, 0, 1),
		HasNormal: true,
	}
	if m.discR > 0 {
		ddx, ddy := x-m.discX, y-m.discY
		if ddx*ddx+ddy*ddy < m.discR*m.discR {
			res.Color = core.NewVec3(0.9, 0.1, 0.1).Multiply(falloff)
			res.Instance = 2
			res.Shader = 2
		}
	}
	return res
}

func (m *MockScene) Evaluate(x, y, lensU, lensV, time float64, seed, depth int, cache *ShadingCache) (ShadingResult, bool) {
	if m.onEvaluate != nil {
		m.onEvaluate(x, y)
	}
	m.evaluations.Add(1)
	if m.useCache && cache != nil {
		dir := core.NewVec3(0, 0, -1)
		n := core.NewVec3(0, 0, 1)
		if c, ok := cache.Lookup(1, 1, dir, n); ok {
			return ShadingResult{Color: c, Instance: 1, Shader: 1, Normal: n, HasNormal: true}, true
		}
		res := m.shade(x, y)
		cache.Add(1, 1, dir, n, res.Color)
		return res, true
	}
	return m.shade(x, y), true
}

func (m *MockScene) Threads() int        { return m.threads }
func (m *MockScene) ThreadPriority() int { return m.priority }

func (m *MockScene) AccumulateStats(stats WorkerStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accumulated = append(m.accumulated, stats)
}

// MockLogger records every line logged
type MockLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *MockLogger) Printf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *MockLogger) Contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

// sameImage reports the first pixel at which two displays differ
func sameImage(a, b *ImageDisplay) (int, int, bool) {
	w, h := a.Size()
	bw, bh := b.Size()
	if w != bw || h != bh {
		return -1, -1, false
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			ca, aa := a.Pixel(x, y)
			cb, ab := b.Pixel(x, y)
			if ca != cb || aa != ab {
				return x, y, false
			}
		}
	}
	return 0, 0, true
}

func hasNaN(v core.Vec3) bool {
	return math.IsNaN(v.X) || math.IsNaN(v.Y) || math.IsNaN(v.Z)
}
