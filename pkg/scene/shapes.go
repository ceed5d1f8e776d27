package scene

import (
	"math"

	"github.com/df07/go-bucket-raytracer/pkg/core"
)

// Surface describes how a shape reflects light
type Surface struct {
	Albedo core.Vec3 // Lambertian reflectance
	Mirror bool      // perfect specular reflector, Albedo tints the reflection
}

// HitRecord is a ray-surface intersection
type HitRecord struct {
	T         float64
	Point     core.Vec3
	Normal    core.Vec3 // faces against the incoming ray
	FrontFace bool
	Shape     Shape
}

// SetFaceNormal sets the normal vector and determines front/back face
func (h *HitRecord) SetFaceNormal(ray core.Ray, outwardNormal core.Vec3) {
	h.FrontFace = ray.Direction.Dot(outwardNormal) < 0
	if h.FrontFace {
		h.Normal = outwardNormal
	} else {
		h.Normal = outwardNormal.Multiply(-1)
	}
}

// Shape is an intersectable object carrying its shading identity
type Shape interface {
	Hit(ray core.Ray, tMin, tMax float64) (HitRecord, bool)
	BoundingBox() core.AABB
	Surface() Surface
	// Handles identify the shape and its shader to the samplers
	Handles() (instance, shader core.Handle)
}

// Plane represents an infinite plane defined by a point and normal
type Plane struct {
	Point    core.Vec3 // A point on the plane
	Normal   core.Vec3 // Normal vector (normalized)
	Material Surface
	Instance core.Handle
	Shader   core.Handle
}

// NewPlane creates a new plane
func NewPlane(point, normal core.Vec3, surface Surface, instance, shader core.Handle) *Plane {
	return &Plane{
		Point:    point,
		Normal:   normal.Normalize(), // Ensure normal is normalized
		Material: surface,
		Instance: instance,
		Shader:   shader,
	}
}

// Hit tests if a ray intersects with the plane
func (p *Plane) Hit(ray core.Ray, tMin, tMax float64) (HitRecord, bool) {
	// Calculate denominator: dot product of ray direction and plane normal
	denominator := ray.Direction.Dot(p.Normal)

	// If denominator is close to zero, ray is parallel to plane (no intersection)
	if math.Abs(denominator) < 1e-8 {
		return HitRecord{}, false
	}

	// t = (point_on_plane - ray_origin) · normal / (ray_direction · normal)
	t := p.Point.Subtract(ray.Origin).Dot(p.Normal) / denominator
	if t < tMin || t > tMax {
		return HitRecord{}, false
	}

	hit := HitRecord{T: t, Point: ray.At(t), Shape: p}
	hit.SetFaceNormal(ray, p.Normal)
	return hit, true
}

// BoundingBox returns a thin slab around the plane when it is axis aligned
// and a large cube otherwise
func (p *Plane) BoundingBox() core.AABB {
	const largeValue = 1e6
	const epsilon = 0.001 // Small thickness to avoid zero-width bounding box

	min := core.NewVec3(-largeValue, -largeValue, -largeValue)
	max := core.NewVec3(largeValue, largeValue, largeValue)
	switch {
	case math.Abs(p.Normal.X) > 0.999:
		min.X, max.X = p.Point.X-epsilon, p.Point.X+epsilon
	case math.Abs(p.Normal.Y) > 0.999:
		min.Y, max.Y = p.Point.Y-epsilon, p.Point.Y+epsilon
	case math.Abs(p.Normal.Z) > 0.999:
		min.Z, max.Z = p.Point.Z-epsilon, p.Point.Z+epsilon
	}
	return core.NewAABB(min, max)
}

func (p *Plane) Surface() Surface                    { return p.Material }
func (p *Plane) Handles() (core.Handle, core.Handle) { return p.Instance, p.Shader }

// Disc represents a circular disc in 3D space
type Disc struct {
	Center   core.Vec3 // Center of the disc
	Normal   core.Vec3 // Normal vector (pointing "up" from the disc)
	Radius   float64   // Radius of the disc
	Material Surface
	Instance core.Handle
	Shader   core.Handle
	Right    core.Vec3 // Right vector (perpendicular to normal)
	Up       core.Vec3 // Up vector (perpendicular to normal and right)
}

// NewDisc creates a new disc
func NewDisc(center, normal core.Vec3, radius float64, surface Surface, instance, shader core.Handle) *Disc {
	n := normal.Normalize()
	right, up := core.OrthonormalBasis(n)
	return &Disc{
		Center:   center,
		Normal:   n,
		Radius:   radius,
		Material: surface,
		Instance: instance,
		Shader:   shader,
		Right:    right,
		Up:       up,
	}
}

// Hit tests if a ray intersects with the disc
func (d *Disc) Hit(ray core.Ray, tMin, tMax float64) (HitRecord, bool) {
	// Check if ray intersects the plane containing the disc
	denom := d.Normal.Dot(ray.Direction)
	if math.Abs(denom) < 1e-6 {
		return HitRecord{}, false // Ray is parallel to disc
	}

	t := d.Normal.Dot(d.Center.Subtract(ray.Origin)) / denom
	if t < tMin || t > tMax {
		return HitRecord{}, false
	}

	// Check if intersection point is within disc radius
	hitPoint := ray.At(t)
	if hitPoint.Subtract(d.Center).LengthSquared() > d.Radius*d.Radius {
		return HitRecord{}, false // Outside disc
	}

	hit := HitRecord{T: t, Point: hitPoint, Shape: d}
	hit.SetFaceNormal(ray, d.Normal)
	return hit, true
}

// BoundingBox encloses the disc's rim
func (d *Disc) BoundingBox() core.AABB {
	r := d.Right.Multiply(d.Radius)
	u := d.Up.Multiply(d.Radius)
	return core.NewAABBFromPoints(
		d.Center.Add(r).Add(u),
		d.Center.Add(r).Subtract(u),
		d.Center.Subtract(r).Add(u),
		d.Center.Subtract(r).Subtract(u),
	)
}

func (d *Disc) Surface() Surface                    { return d.Material }
func (d *Disc) Handles() (core.Handle, core.Handle) { return d.Instance, d.Shader }
