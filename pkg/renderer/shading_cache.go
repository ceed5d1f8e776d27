package renderer

import "github.com/df07/go-bucket-raytracer/pkg/core"

const (
	cacheDirThreshold    = 0.999
	cacheNormalThreshold = 0.99
)

// ShadingCache remembers shader results within one pixel so that samples
// which land on the same surface from nearly the same direction can reuse
// them. A cache belongs to a single worker. All methods accept a nil cache.
type ShadingCache struct {
	entries []cacheEntry

	Hits      int64
	Misses    int64
	SumDepth  int64 // entries held at each reset, summed
	NumCaches int64 // resets that discarded at least one entry
}

type cacheEntry struct {
	instance core.Handle
	shader   core.Handle
	dir      core.Vec3
	normal   core.Vec3
	color    core.Vec3
}

// NewShadingCache creates an empty cache
func NewShadingCache() *ShadingCache {
	return &ShadingCache{}
}

// Reset drops every entry. Samplers call it between pixels.
func (c *ShadingCache) Reset() {
	if c == nil {
		return
	}
	if n := len(c.entries); n > 0 {
		c.SumDepth += int64(n)
		c.NumCaches++
	}
	c.entries = c.entries[:0]
}

// Lookup finds a stored result for the same instance and shader seen along a
// ray direction and normal within the match thresholds. The most recent entry
// wins.
func (c *ShadingCache) Lookup(instance, shader core.Handle, dir, normal core.Vec3) (core.Vec3, bool) {
	if c == nil {
		return core.Vec3{}, false
	}
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := &c.entries[i]
		if e.instance != instance || e.shader != shader {
			continue
		}
		if dir.Dot(e.dir) < cacheDirThreshold {
			continue
		}
		if normal.Dot(e.normal) < cacheNormalThreshold {
			continue
		}
		c.Hits++
		return e.color, true
	}
	c.Misses++
	return core.Vec3{}, false
}

// Add stores a shader result
func (c *ShadingCache) Add(instance, shader core.Handle, dir, normal, color core.Vec3) {
	if c == nil {
		return
	}
	c.entries = append(c.entries, cacheEntry{
		instance: instance,
		shader:   shader,
		dir:      dir,
		normal:   normal,
		color:    color,
	})
}

// Depth is the number of entries currently held
func (c *ShadingCache) Depth() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}
