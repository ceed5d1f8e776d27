package photonmap

import "github.com/df07/go-bucket-raytracer/pkg/core"

// point is a position in photon (single) precision
type point [3]float32

func toPoint(v core.Vec3) point {
	return point{float32(v.X), float32(v.Y), float32(v.Z)}
}

func (p point) sub(o point) point {
	return point{p[0] - o[0], p[1] - o[1], p[2] - o[2]}
}

func (p point) dot(v core.Vec3) float32 {
	return p[0]*float32(v.X) + p[1]*float32(v.Y) + p[2]*float32(v.Z)
}

// photon is the compressed record kept by the tree maps. data is only used
// by the global map: the diffuse reflectance as 24-bit RGB until radiance is
// baked, then the baked radiance as RGBE.
type photon struct {
	pos    point
	dir    uint16
	normal uint16
	power  uint32
	data   uint32
	axis   uint8
}

func newPhoton(p, dir, power core.Vec3) photon {
	return photon{
		pos:   toPoint(p),
		dir:   core.EncodeDirection(dir),
		power: core.EncodeRGBE(power),
	}
}

func (ph *photon) dist2(p point) float32 {
	dx := ph.pos[0] - p[0]
	dy := ph.pos[1] - p[1]
	dz := ph.pos[2] - p[2]
	return dx*dx + dy*dy + dz*dz
}
