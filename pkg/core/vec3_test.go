package core

import (
	"math"
	"testing"
)

func TestVec3_GetAxis(t *testing.T) {
	v := NewVec3(1, 2, 3)
	for axis, expected := range []float64{1, 2, 3} {
		if got := v.Get(axis); got != expected {
			t.Errorf("Axis %d: expected %f, got %f", axis, expected, got)
		}
	}
	if v.MaxComponent() != 3 {
		t.Errorf("Expected max component 3, got %f", v.MaxComponent())
	}
}

func TestHasContrast(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vec3
		thresh   float64
		expected bool
	}{
		{"identical colors", NewVec3(0.5, 0.5, 0.5), NewVec3(0.5, 0.5, 0.5), 0.1, false},
		{"both black", Vec3{}, Vec3{}, 0.0, false},
		{"small difference", NewVec3(0.50, 0.5, 0.5), NewVec3(0.55, 0.5, 0.5), 0.1, false},
		{"large difference in blue", NewVec3(0.5, 0.5, 0.1), NewVec3(0.5, 0.5, 0.9), 0.1, true},
		{"black against white", Vec3{}, Gray(1), 0.99, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasContrast(tt.a, tt.b, tt.thresh); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAABB_IncludeAndContains(t *testing.T) {
	box := EmptyAABB()
	if box.IsValid() {
		t.Error("Empty box should not be valid")
	}
	box = box.Include(NewVec3(-1, 0, 2)).Include(NewVec3(4, 1, -2))
	if box.Min != NewVec3(-1, 0, -2) || box.Max != NewVec3(4, 1, 2) {
		t.Errorf("Unexpected bounds %v - %v", box.Min, box.Max)
	}
	if !box.Contains(NewVec3(0, 0.5, 0)) {
		t.Error("Expected center point to be contained")
	}
	if box.Contains(NewVec3(0, 1.5, 0)) {
		t.Error("Expected point above the box to be outside")
	}
	if box.LongestAxis() != 0 {
		t.Errorf("Expected longest axis 0, got %d", box.LongestAxis())
	}

	enlarged := box.EnlargeUlps()
	if !(enlarged.Min.X < box.Min.X && enlarged.Max.Z > box.Max.Z) {
		t.Error("EnlargeUlps should push every face outward")
	}
}

func TestAABB_LongestAxisTies(t *testing.T) {
	tests := []struct {
		name     string
		max      Vec3
		expected int
	}{
		{"x longest", NewVec3(5, 1, 4), 0},
		{"y longest", NewVec3(1, 5, 4), 1},
		{"x ties z", NewVec3(4, 1, 4), 2},
		{"y ties z", NewVec3(1, 4, 4), 2},
		{"x ties y", NewVec3(4, 4, 1), 1},
		{"cube", NewVec3(2, 2, 2), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := NewAABB(Vec3{}, tt.max)
			if got := box.LongestAxis(); got != tt.expected {
				t.Errorf("Expected axis %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestSampleCosineHemisphere_StaysAboveSurface(t *testing.T) {
	normal := NewVec3(0, 0, 1)
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			dir := SampleCosineHemisphere(normal, NewVec2((float64(i)+0.5)/16, (float64(j)+0.5)/16))
			if dir.Dot(normal) < 0 {
				t.Fatalf("Direction %v below surface", dir)
			}
			if math.Abs(dir.Length()-1) > 1e-9 {
				t.Fatalf("Direction %v not normalized", dir)
			}
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(600, 16, 512) != 512 {
		t.Error("Expected clamp to upper bound")
	}
	if Clamp(-7, -4, 5) != -4 {
		t.Error("Expected clamp to lower bound")
	}
	if Clamp(0.25, 0.0, 1.0) != 0.25 {
		t.Error("Expected in-range value to pass through")
	}
	if NextPowerOfTwo(300) != 512 || NextPowerOfTwo(0) != 1 || NextPowerOfTwo(16) != 16 {
		t.Error("Unexpected NextPowerOfTwo result")
	}
}
