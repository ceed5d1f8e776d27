// Package filter provides the reconstruction kernels that blend subpixel
// samples into pixels.
package filter

import (
	"math"
	"sort"
)

// Filter maps a sample offset from the pixel center to a weight
type Filter interface {
	// Size is the full width of the filter support in pixels
	Size() float64
	// Get returns the weight at offset (x, y). Callers only pass offsets
	// within half the size on both axes.
	Get(x, y float64) float64
}

var registry = map[string]func() Filter{
	"box":             func() Filter { return Box{} },
	"triangle":        func() Filter { return Triangle{} },
	"gaussian":        func() Filter { return NewGaussian() },
	"mitchell":        func() Filter { return Mitchell{} },
	"catmull-rom":     func() Filter { return CatmullRom{} },
	"blackman-harris": func() Filter { return BlackmanHarris{} },
	"sinc":            func() Filter { return Sinc{} },
	"lanczos":         func() Filter { return Lanczos{} },
	"bspline":         func() Filter { return CubicBSpline{} },
}

// Lookup returns a new filter registered under name
func Lookup(name string) (Filter, bool) {
	factory, ok := registry[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// Names lists every registered filter in alphabetical order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Box weights every sample inside a one pixel square equally
type Box struct{}

func (Box) Size() float64            { return 1 }
func (Box) Get(x, y float64) float64 { return 1 }

// Triangle is a separable tent two pixels wide
type Triangle struct{}

func (Triangle) Size() float64 { return 2 }
func (Triangle) Get(x, y float64) float64 {
	return (1 - math.Abs(x)) * (1 - math.Abs(y))
}

// Gaussian is a truncated gaussian, offset so it reaches zero at the edge of
// its support
type Gaussian struct {
	es2 float64
}

// NewGaussian creates a gaussian filter three pixels wide
func NewGaussian() Gaussian {
	g := Gaussian{}
	g.es2 = -math.Exp(-g.Size() * g.Size())
	return g
}

func (Gaussian) Size() float64 { return 3 }
func (g Gaussian) Get(x, y float64) float64 {
	gx := math.Exp(-x*x) + g.es2
	gy := math.Exp(-y*y) + g.es2
	return gx * gy
}

// Mitchell is the Mitchell-Netravali cubic with B = C = 1/3
type Mitchell struct{}

func (Mitchell) Size() float64            { return 4 }
func (Mitchell) Get(x, y float64) float64 { return mitchell1d(x) * mitchell1d(y) }

func mitchell1d(x float64) float64 {
	const (
		b     = 1.0 / 3
		c     = 1.0 / 3
		sixth = 1.0 / 6
	)
	x = math.Abs(x)
	if x >= 2 {
		return 0
	}
	x2 := x * x
	if x > 1 {
		return ((-b-6*c)*x*x2 + (6*b+30*c)*x2 + (-12*b-48*c)*x + (8*b + 24*c)) * sixth
	}
	return ((12-9*b-6*c)*x*x2 + (-18+12*b+6*c)*x2 + (6 - 2*b)) * sixth
}

// CatmullRom is the interpolating Catmull-Rom spline
type CatmullRom struct{}

func (CatmullRom) Size() float64            { return 4 }
func (CatmullRom) Get(x, y float64) float64 { return catmullRom1d(x) * catmullRom1d(y) }

func catmullRom1d(x float64) float64 {
	x = math.Abs(x)
	x2 := x * x
	x3 := x * x2
	if x >= 2 {
		return 0
	}
	if x < 1 {
		return 3*x3 - 5*x2 + 2
	}
	return -x3 + 5*x2 - 8*x + 4
}

// BlackmanHarris is the four-term Blackman-Harris window
type BlackmanHarris struct{}

func (BlackmanHarris) Size() float64 { return 4 }
func (BlackmanHarris) Get(x, y float64) float64 {
	return blackmanHarris1d(x*0.5) * blackmanHarris1d(y*0.5)
}

func blackmanHarris1d(x float64) float64 {
	if x < -1 || x > 1 {
		return 0
	}
	x = (x + 1) * 0.5
	const (
		a0 = 0.35875
		a1 = -0.48829
		a2 = 0.14128
		a3 = -0.01168
	)
	return a0 + a1*math.Cos(2*math.Pi*x) + a2*math.Cos(4*math.Pi*x) + a3*math.Cos(6*math.Pi*x)
}

// Sinc is the unwindowed sinc, truncated at its support
type Sinc struct{}

func (Sinc) Size() float64            { return 4 }
func (Sinc) Get(x, y float64) float64 { return sinc1d(x) * sinc1d(y) }

func sinc1d(x float64) float64 {
	x = math.Abs(x)
	if x < 0.0001 {
		return 1
	}
	x *= math.Pi
	return math.Sin(x) / x
}

// Lanczos is a sinc windowed by a wider sinc
type Lanczos struct{}

func (Lanczos) Size() float64            { return 4 }
func (Lanczos) Get(x, y float64) float64 { return lanczos1d(x*0.5) * lanczos1d(y*0.5) }

func lanczos1d(x float64) float64 {
	x = math.Abs(x)
	if x < 1e-5 {
		return 1
	}
	if x > 1 {
		return 0
	}
	x *= math.Pi
	return (math.Sin(3*x) / (3 * x)) * (math.Sin(x) / x)
}

// CubicBSpline is the smoothing cubic B-spline
type CubicBSpline struct{}

func (CubicBSpline) Size() float64            { return 4 }
func (CubicBSpline) Get(x, y float64) float64 { return bspline1d(x) * bspline1d(y) }

func bspline1d(t float64) float64 {
	t = math.Abs(t)
	if t >= 2 {
		return 0
	}
	if t <= 1 {
		u := 1 - t
		return (-3*u*u*u + 3*u*u + 3*u + 1) / 6
	}
	u := 2 - t
	return u * u * u / 6
}
