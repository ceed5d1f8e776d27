package photonmap

import (
	"math"
	"sync"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// normalThreshold is cos(10 degrees). Photons and queries whose normals are
// closer than this share a cell group.
var normalThreshold = math.Cos(10 * math.Pi / 180)

// hashPrimes are the bucket counts the cell hash grows through
var hashPrimes = []int{11, 19, 37, 109, 163, 251, 367, 557,
	823, 1237, 1861, 2777, 4177, 6247, 9371, 21089, 31627, 47431,
	71143, 106721, 160073, 240101, 360163, 540217, 810343, 1215497,
	1823231, 2734867, 4102283, 6153409, 9230113, 13845163}

const noGroup int32 = -1

// cellGroup accumulates the photons of one grid cell arriving at surfaces
// with similar normals. Groups live in an arena and chain through next.
type cellGroup struct {
	id          int
	count       int
	normal      core.Vec3
	flux        core.Vec3
	diffuse     core.Vec3
	radiance    core.Vec3
	hasRadiance bool
	next        int32
}

// GridMap bins photon flux into a uniform grid addressed through a hash of
// cell ids. Queries gather a growing cube of cells around the query point and
// cache the result on the center cell.
type GridMap struct {
	logger   core.Logger
	settings GlobalSettings

	bounds     core.AABB
	extents    core.Vec3
	nx, ny, nz int

	// mu guards everything below. Store takes the write lock; after Init
	// queries read under the read lock and upgrade to cache results.
	mu        sync.RWMutex
	groups    []cellGroup
	table     []int32
	hashPrime int
	hashSize  int
	stored    int
}

// NewGridMap creates an empty grid map
func NewGridMap(logger core.Logger) *GridMap {
	return &GridMap{logger: core.OrNop(logger), settings: DefaultGlobalSettings()}
}

// Prepare sizes the grid so cells are roughly one gather radius wide
func (m *GridMap) Prepare(opts core.Options, sceneBounds core.AABB) {
	m.settings = globalSettingsFrom(opts)
	if !(m.settings.Radius > 0) {
		def := DefaultGlobalSettings().Radius
		m.logger.Printf("Grid photon map: invalid radius %g, using %g\n", m.settings.Radius, def)
		m.settings.Radius = def
	}

	m.bounds = sceneBounds.EnlargeUlps()
	m.extents = m.bounds.Size()
	r := float64(m.settings.Radius)
	m.nx = int(math.Max(m.extents.X/r+0.5, 1))
	m.ny = int(math.Max(m.extents.Y/r+0.5, 1))
	m.nz = int(math.Max(m.extents.Z/r+0.5, 1))
	numCells := m.nx * m.ny * m.nz
	m.logger.Printf("Initializing grid photon map:\n")
	m.logger.Printf("  * Resolution:  %dx%dx%d\n", m.nx, m.ny, m.nz)
	m.logger.Printf("  * Total cells: %d\n", numCells)

	m.mu.Lock()
	defer m.mu.Unlock()
	for m.hashPrime = 0; m.hashPrime < len(hashPrimes)-1; m.hashPrime++ {
		if hashPrimes[m.hashPrime] > numCells/5 {
			break
		}
	}
	m.table = newTable(hashPrimes[m.hashPrime])
	m.groups = m.groups[:0]
	m.hashSize = 0
	m.stored = 0
	m.logger.Printf("  * Initial hash size: %d\n", len(m.table))
}

func newTable(size int) []int32 {
	table := make([]int32, size)
	for i := range table {
		table[i] = noGroup
	}
	return table
}

// cell returns the grid coordinates of p, clamped to the grid
func (m *GridMap) cell(p core.Vec3) (int, int, int) {
	axis := func(v, lo, ext float64, n int) int {
		if ext <= 0 {
			return 0
		}
		return core.Clamp(int((v-lo)*float64(n)/ext), 0, n-1)
	}
	return axis(p.X, m.bounds.Min.X, m.extents.X, m.nx),
		axis(p.Y, m.bounds.Min.Y, m.extents.Y, m.ny),
		axis(p.Z, m.bounds.Min.Z, m.extents.Z, m.nz)
}

func (m *GridMap) cellID(x, y, z int) int {
	return x + y*m.nx + z*m.nx*m.ny
}

// head returns the first group of the chain that cell (x, y, z) hashes to,
// or noGroup outside the grid
func (m *GridMap) head(x, y, z int) int32 {
	if x < 0 || x >= m.nx || y < 0 || y >= m.ny || z < 0 || z >= m.nz {
		return noGroup
	}
	return m.table[m.cellID(x, y, z)%len(m.table)]
}

func (m *GridMap) newGroup(id int, normal core.Vec3) int32 {
	m.groups = append(m.groups, cellGroup{id: id, normal: normal, next: noGroup})
	return int32(len(m.groups) - 1)
}

// Store adds the photon's flux to its cell. Photons arriving from behind the
// surface or outside the scene bounds are dropped.
func (m *GridMap) Store(hit Hit, dir, power, diffuse core.Vec3) {
	if hit.Normal.Dot(dir) > 0 {
		return
	}
	if !m.bounds.Contains(hit.Point) {
		return
	}
	id := m.cellID(m.cell(hit.Point))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.table == nil {
		return
	}
	hid := id % len(m.table)
	g := m.table[hid]
	last := noGroup
	hasID := false
	for g != noGroup {
		grp := &m.groups[g]
		if grp.id == id {
			hasID = true
			if hit.Normal.Dot(grp.normal) > normalThreshold {
				break
			}
		}
		last = g
		g = grp.next
	}
	if g == noGroup {
		g = m.newGroup(id, hit.Normal)
		if last == noGroup {
			m.table[hid] = g
		} else {
			m.groups[last].next = g
		}
		if !hasID {
			m.hashSize++
			if m.hashSize > len(m.table) {
				m.grow()
			}
		}
	}
	grp := &m.groups[g]
	grp.count++
	grp.flux = grp.flux.Add(power)
	grp.diffuse = grp.diffuse.Add(diffuse)
	m.stored++
}

// grow rehashes every chain into the next prime-sized table, keeping the
// relative order of groups within a chain
func (m *GridMap) grow() {
	if m.hashPrime >= len(hashPrimes)-1 {
		return
	}
	m.hashPrime++
	table := newTable(hashPrimes[m.hashPrime])
	tails := make([]int32, len(table))
	for i := range tails {
		tails[i] = noGroup
	}
	for _, head := range m.table {
		g := head
		for g != noGroup {
			next := m.groups[g].next
			m.groups[g].next = noGroup
			hid := m.groups[g].id % len(table)
			if tails[hid] == noGroup {
				table[hid] = g
			} else {
				m.groups[tails[hid]].next = g
			}
			tails[hid] = g
			g = next
		}
	}
	m.table = table
}

// Init turns the accumulated reflectance of every group into an average
func (m *GridMap) Init() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Printf("Initializing photon grid ...\n")
	m.logger.Printf("  * Photon hits:      %d\n", m.stored)
	m.logger.Printf("  * Final hash size:  %d\n", len(m.table))
	for i := range m.groups {
		if m.groups[i].count > 0 {
			m.groups[i].diffuse = m.groups[i].diffuse.Multiply(1 / float64(m.groups[i].count))
		}
	}
	m.logger.Printf("  * Num photon cells: %d\n", len(m.groups))
}

// findGroup returns the first group of cell id facing n, or noGroup
func (m *GridMap) findGroup(x, y, z int, n core.Vec3) int32 {
	id := m.cellID(x, y, z)
	for g := m.head(x, y, z); g != noGroup; g = m.groups[g].next {
		grp := &m.groups[g]
		if grp.id == id && n.Dot(grp.normal) > normalThreshold {
			return g
		}
	}
	return noGroup
}

// Radiance estimates the radiance leaving p. The result is cached on the
// group of p's cell facing n.
func (m *GridMap) Radiance(p, n core.Vec3) core.Vec3 {
	if !m.bounds.Contains(p) {
		return core.Vec3{}
	}
	ix, iy, iz := m.cell(p)

	m.mu.RLock()
	if m.table == nil || m.stored == 0 {
		m.mu.RUnlock()
		return core.Vec3{}
	}
	center := m.findGroup(ix, iy, iz, n)
	if center != noGroup && m.groups[center].hasRadiance {
		r := m.groups[center].radiance
		m.mu.RUnlock()
		return r
	}
	irr, diff := m.gatherCells(ix, iy, iz, n)
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	// another reader may have filled the cache while no lock was held
	center = m.findGroup(ix, iy, iz, n)
	if center != noGroup && m.groups[center].hasRadiance {
		return m.groups[center].radiance
	}
	if center == noGroup {
		id := m.cellID(ix, iy, iz)
		hid := id % len(m.table)
		center = m.newGroup(id, n)
		m.groups[center].diffuse = diff
		m.groups[center].next = m.table[hid]
		m.table[hid] = center
	}
	grp := &m.groups[center]
	grp.radiance = irr.MultiplyVec(grp.diffuse)
	grp.hasRadiance = true
	return grp.radiance
}

// gatherCells sums flux over a cube of cells around (ix, iy, iz), growing it
// from one cell to at most five per side until enough photons are found. It
// returns the irradiance and the average reflectance of the groups used.
// Cache-only groups carry no photons and are skipped.
func (m *GridMap) gatherCells(ix, iy, iz int, n core.Vec3) (core.Vec3, core.Vec3) {
	for vol := 1; ; vol++ {
		numPhotons := 0
		ndiff := 0
		var irr, diff core.Vec3
		for z := iz - (vol - 1); z <= iz+(vol-1); z++ {
			for y := iy - (vol - 1); y <= iy+(vol-1); y++ {
				for x := ix - (vol - 1); x <= ix+(vol-1); x++ {
					vid := m.cellID(x, y, z)
					for g := m.head(x, y, z); g != noGroup; g = m.groups[g].next {
						grp := &m.groups[g]
						if grp.id != vid || grp.count == 0 || n.Dot(grp.normal) <= normalThreshold {
							continue
						}
						numPhotons += grp.count
						irr = irr.Add(grp.flux)
						diff = diff.Add(grp.diffuse)
						ndiff++
						break
					}
				}
			}
		}
		if numPhotons >= m.settings.Gather || vol >= 3 {
			r := float64(2*vol-1) / 3 * (m.extents.X/float64(m.nx) + m.extents.Y/float64(m.ny) + m.extents.Z/float64(m.nz))
			irr = irr.Multiply(1 / (math.Pi * r * r))
			if ndiff > 0 {
				diff = diff.Multiply(1 / float64(ndiff))
			}
			return irr, diff
		}
	}
}

func (m *GridMap) NumEmit() int { return m.settings.NumEmit }

func (m *GridMap) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stored
}

func (m *GridMap) AllowDiffuseBounced() bool    { return true }
func (m *GridMap) AllowReflectionBounced() bool { return true }
func (m *GridMap) AllowRefractionBounced() bool { return true }
