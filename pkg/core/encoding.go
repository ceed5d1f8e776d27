package core

import "github.com/chewxy/math32"

// Compressed encodings used by photon records. Power is stored as 32-bit
// shared-exponent RGBE, directions as a pair of 8-bit spherical angles.

var (
	rgbeExponent [256]float32
	cosTheta     [256]float32
	sinTheta     [256]float32
	cosPhi       [256]float32
	sinPhi       [256]float32
)

func init() {
	for i := 1; i < 256; i++ {
		f := float32(1)
		e := i - (128 + 8)
		for j := 0; j < e; j++ {
			f *= 2
		}
		for j := 0; j < -e; j++ {
			f *= 0.5
		}
		rgbeExponent[i] = f
	}
	for i := 0; i < 256; i++ {
		angle := float32(i) * math32.Pi / 256
		cosTheta[i] = math32.Cos(angle)
		sinTheta[i] = math32.Sin(angle)
		cosPhi[i] = math32.Cos(2 * angle)
		sinPhi[i] = math32.Sin(2 * angle)
	}
}

// EncodeRGBE packs a color into 32 bits: an 8-bit mantissa per channel and a
// shared exponent in the low byte. Colors below 1e-32 encode to 0.
func EncodeRGBE(c Vec3) uint32 {
	r, g, b := float32(c.X), float32(c.Y), float32(c.Z)
	v := max(r, g, b)
	if v < 1e-32 {
		return 0
	}

	m := v
	e := 0
	if v > 1 {
		for m > 1 {
			m *= 0.5
			e++
		}
	} else if v <= 0.5 {
		for m <= 0.5 {
			m *= 2
			e--
		}
	}
	v = (m * 255) / v
	rgbe := uint32(e + 128)
	rgbe |= uint32(int32(r*v)&0xFF) << 24
	rgbe |= uint32(int32(g*v)&0xFF) << 16
	rgbe |= uint32(int32(b*v)&0xFF) << 8
	return rgbe
}

// DecodeRGBE is the inverse of EncodeRGBE
func DecodeRGBE(rgbe uint32) Vec3 {
	f := rgbeExponent[rgbe&0xFF]
	return Vec3{
		X: float64(f * (float32(rgbe>>24) + 0.5)),
		Y: float64(f * (float32((rgbe>>16)&0xFF) + 0.5)),
		Z: float64(f * (float32((rgbe>>8)&0xFF) + 0.5)),
	}
}

// EncodeDirection compresses a unit vector into theta (high byte) and phi
// (low byte).
func EncodeDirection(d Vec3) uint16 {
	theta := int(math32.Acos(float32(Clamp(d.Z, -1, 1))) * (256 / math32.Pi))
	if theta > 255 {
		theta = 255
	}
	phi := int(math32.Atan2(float32(d.Y), float32(d.X)) * (128 / math32.Pi))
	if phi < 0 {
		phi += 256
	} else if phi > 255 {
		phi = 255
	}
	return uint16((theta&0xFF)<<8 | (phi & 0xFF))
}

// DecodeDirection expands a direction produced by EncodeDirection
func DecodeDirection(n uint16) Vec3 {
	t := n >> 8
	p := n & 0xFF
	return Vec3{
		X: float64(sinTheta[t] * cosPhi[p]),
		Y: float64(sinTheta[t] * sinPhi[p]),
		Z: float64(cosTheta[t]),
	}
}

// EncodeRGB packs a color clamped to [0,1] into 24 bits
func EncodeRGB(c Vec3) uint32 {
	ir := Clamp(int(c.X*255+0.5), 0, 255)
	ig := Clamp(int(c.Y*255+0.5), 0, 255)
	ib := Clamp(int(c.Z*255+0.5), 0, 255)
	return uint32(ir<<16 | ig<<8 | ib)
}

// DecodeRGB is the inverse of EncodeRGB
func DecodeRGB(rgb uint32) Vec3 {
	return Vec3{
		X: float64((rgb>>16)&0xFF) / 255,
		Y: float64((rgb>>8)&0xFF) / 255,
		Z: float64(rgb&0xFF) / 255,
	}
}
