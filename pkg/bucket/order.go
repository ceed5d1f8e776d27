// Package bucket decides the order in which image tiles are handed to
// render workers.
package bucket

import (
	"image"
	"strings"
)

// Order produces a visiting sequence for an nbw x nbh grid of tiles. Every
// tile coordinate appears exactly once.
type Order interface {
	Sequence(nbw, nbh int) []image.Point
}

var orders = map[string]func() Order{
	"row":      func() Order { return Row{} },
	"column":   func() Order { return Column{} },
	"diagonal": func() Order { return Diagonal{} },
	"spiral":   func() Order { return Spiral{} },
	"hilbert":  func() Order { return Hilbert{} },
	"random":   func() Order { return Random{} },
}

// NewOrder looks up an order by name. A leading "inverse", "invert" or
// "reverse" word reverses the named order, e.g. "reverse spiral".
func NewOrder(name string) (Order, bool) {
	flip := false
	if strings.HasPrefix(name, "inverse") || strings.HasPrefix(name, "invert") || strings.HasPrefix(name, "reverse") {
		if tokens := strings.Fields(name); len(tokens) == 2 {
			name = tokens[1]
			flip = true
		}
	}
	factory, ok := orders[name]
	if !ok {
		return nil, false
	}
	if flip {
		return Inverted{Order: factory()}, true
	}
	return factory(), true
}

// Row walks rows top to bottom, alternating direction on every row
type Row struct{}

func (Row) Sequence(nbw, nbh int) []image.Point {
	coords := make([]image.Point, nbw*nbh)
	for i := range coords {
		by := i / nbw
		bx := i % nbw
		if by&1 == 1 {
			bx = nbw - 1 - bx
		}
		coords[i] = image.Pt(bx, by)
	}
	return coords
}

// Column walks columns left to right, alternating direction on every column
type Column struct{}

func (Column) Sequence(nbw, nbh int) []image.Point {
	coords := make([]image.Point, nbw*nbh)
	for i := range coords {
		bx := i / nbh
		by := i % nbh
		if bx&1 == 1 {
			by = nbh - 1 - by
		}
		coords[i] = image.Pt(bx, by)
	}
	return coords
}

// Diagonal sweeps anti-diagonals starting from the top-left tile
type Diagonal struct{}

func (Diagonal) Sequence(nbw, nbh int) []image.Point {
	n := nbw * nbh
	coords := make([]image.Point, n)
	x, y, nx, ny := 0, 0, 1, 0
	for i := 0; i < n; i++ {
		coords[i] = image.Pt(x, y)
		for {
			if y == ny {
				y = 0
				x = nx
				ny++
				nx++
			} else {
				x--
				y++
			}
			if (y < nbh && x < nbw) || i == n-1 {
				break
			}
		}
	}
	return coords
}

// Spiral starts in the middle of the image and winds outward
type Spiral struct{}

func (Spiral) Sequence(nbw, nbh int) []image.Point {
	// wind over the enclosing square and drop tiles that fall outside a
	// non-square grid
	size := max(nbw, nbh)
	offX := (size - nbw) / 2
	offY := (size - nbh) / 2
	coords := make([]image.Point, 0, nbw*nbh)
	for i := 0; i < size*size; i++ {
		p := squareSpiral(i, size).Sub(image.Pt(offX, offY))
		if p.X >= 0 && p.X < nbw && p.Y >= 0 && p.Y < nbh {
			coords = append(coords, p)
		}
	}
	return coords
}

func squareSpiral(i, size int) image.Point {
	center := (size - 1) / 2
	nx, ny := size, size
	for i < nx*ny {
		nx--
		ny--
	}
	nxny := nx * ny
	m := min(nx, ny)
	var bx, by int
	if m&1 == 1 {
		if i <= nxny+ny {
			bx = nx - m/2
			by = -m/2 + i - nxny
		} else {
			bx = nx - m/2 - (i - (nxny + ny))
			by = ny - m/2
		}
	} else {
		if i <= nxny+ny {
			bx = -m / 2
			by = ny - m/2 - (i - nxny)
		} else {
			bx = -m/2 + (i - (nxny + ny))
			by = -m / 2
		}
	}
	return image.Pt(bx+center, by+center)
}

// Hilbert follows a Hilbert curve over the smallest power-of-two square that
// covers the grid, skipping positions outside it
type Hilbert struct{}

func (Hilbert) Sequence(nbw, nbh int) []image.Point {
	hn := 0
	for (1<<hn < nbw || 1<<hn < nbh) && hn < 16 {
		hn++
	}
	hN := 1 << (2 * hn)
	n := nbw * nbh
	coords := make([]image.Point, n)
	hi := 0
	for i := 0; i < n; i++ {
		var hx, hy int
		for {
			hx, hy = hilbertPoint(uint32(hi), uint(hn))
			hi++
			if (hx < nbw && hy < nbh) || hi >= hN {
				break
			}
		}
		coords[i] = image.Pt(hx, hy)
	}
	return coords
}

// hilbertPoint converts a curve index of the given order to x, y
// (Hacker's Delight, lshil_xy).
func hilbertPoint(s uint32, order uint) (int, int) {
	s |= 0x55555555 << (2 * order)
	sr := (s >> 1) & 0x55555555
	cs := ((s & 0x55555555) + sr) ^ 0x55555555
	cs ^= cs >> 2
	cs ^= cs >> 4
	cs ^= cs >> 8
	cs ^= cs >> 16
	swap := cs & 0x55555555
	comp := (cs >> 1) & 0x55555555
	t := (s & swap) ^ comp
	s = s ^ sr ^ t ^ (t << 1)
	s &= (1 << (2 * order)) - 1

	t = (s ^ (s >> 1)) & 0x22222222
	s = s ^ t ^ (t << 1)
	t = (s ^ (s >> 2)) & 0x0C0C0C0C
	s = s ^ t ^ (t << 2)
	t = (s ^ (s >> 4)) & 0x00F000F0
	s = s ^ t ^ (t << 4)
	t = (s ^ (s >> 8)) & 0x0000FF00
	s = s ^ t ^ (t << 8)
	return int(s >> 16), int(s & 0xFFFF)
}

// Random shuffles a row order with a fixed-seed xorshift generator, so the
// sequence is the same on every run
type Random struct{}

func (Random) Sequence(nbw, nbh int) []image.Point {
	coords := Row{}.Sequence(nbw, nbh)
	n := int32(len(coords))
	if n == 0 {
		return coords
	}
	seed := uint64(2463534242)
	for i := 0; i < 2*len(coords); i++ {
		seed = xorshift(seed)
		src := positiveMod(int32(seed), n)
		seed = xorshift(seed)
		dst := positiveMod(int32(seed), n)
		coords[src], coords[dst] = coords[dst], coords[src]
	}
	return coords
}

func positiveMod(a, b int32) int32 {
	m := a % b
	if m < 0 {
		return m + b
	}
	return m
}

func xorshift(y uint64) uint64 {
	y ^= y << 13
	y ^= y >> 17
	y ^= y << 5
	return y
}

// Inverted visits another order's sequence backwards
type Inverted struct {
	Order Order
}

func (o Inverted) Sequence(nbw, nbh int) []image.Point {
	coords := o.Order.Sequence(nbw, nbh)
	for i, j := 0, len(coords)-1; i < j; i, j = i+1, j-1 {
		coords[i], coords[j] = coords[j], coords[i]
	}
	return coords
}
