package photonmap

import "github.com/df07/go-bucket-raytracer/pkg/core"

// kdTree is a left-balanced kd-tree stored as an implicit binary tree: node i
// has children 2i and 2i+1 and index 0 is unused. A node is internal when
// 2i <= size.
type kdTree struct {
	nodes []photon
}

// buildTree balances photons into a kd-tree. The input slice is not modified.
func buildTree(photons []photon, bounds core.AABB) kdTree {
	n := len(photons)
	if n == 0 {
		return kdTree{}
	}
	src := make([]photon, n+1)
	copy(src[1:], photons)
	nodes := make([]photon, n+1)
	balanceSegment(src, nodes, 1, 1, n, bounds)
	return kdTree{nodes: nodes}
}

func (t kdTree) size() int {
	if len(t.nodes) == 0 {
		return 0
	}
	return len(t.nodes) - 1
}

// balanceSegment places the median of src[start..end] at dst[index] and
// recurses into both halves. The split axis is the longest side of bounds,
// which shrinks to the half-space of each child.
func balanceSegment(src, dst []photon, index, start, end int, bounds core.AABB) {
	// median position that keeps the tree left-balanced
	count := end - start + 1
	median := 1
	for 4*median <= count {
		median += median
	}
	if 3*median <= count {
		median += median
		median += start - 1
	} else {
		median = end - median + 1
	}

	axis := bounds.LongestAxis()
	selectMedian(src, start, end, median, axis)

	dst[index] = src[median]
	dst[index].axis = uint8(axis)
	split := float64(dst[index].pos[axis])

	if median > start {
		if start < median-1 {
			left := bounds
			left.Max = withAxis(left.Max, axis, split)
			balanceSegment(src, dst, 2*index, start, median-1, left)
		} else {
			dst[2*index] = src[start]
		}
	}
	if median < end {
		if median+1 < end {
			right := bounds
			right.Min = withAxis(right.Min, axis, split)
			balanceSegment(src, dst, 2*index+1, median+1, end, right)
		} else {
			dst[2*index+1] = src[end]
		}
	}
}

// selectMedian partially sorts src[left..right] along axis so that
// src[median] holds the median with smaller-or-equal coordinates before it and
// greater-or-equal after it
func selectMedian(src []photon, left, right, median, axis int) {
	for right > left {
		v := src[right].pos[axis]
		i := left - 1
		j := right
		for {
			for {
				i++
				if src[i].pos[axis] >= v {
					break
				}
			}
			for {
				j--
				if src[j].pos[axis] <= v || j <= left {
					break
				}
			}
			if i >= j {
				break
			}
			src[i], src[j] = src[j], src[i]
		}
		src[i], src[right] = src[right], src[i]
		if i >= median {
			right = i - 1
		}
		if i <= median {
			left = i + 1
		}
	}
}

func withAxis(v core.Vec3, axis int, value float64) core.Vec3 {
	switch axis {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	default:
		v.Z = value
	}
	return v
}

// visitor receives candidate photons during a tree search
type visitor interface {
	// radius2 is the current squared search radius. Subtrees farther than
	// this from the query point are skipped.
	radius2() float32
	// visit offers a photon at squared distance d2 from the query point
	visit(ph *photon, d2 float32)
}

// locate offers v every photon that may lie within its search radius of p
func (t kdTree) locate(p point, v visitor) {
	if t.size() == 0 {
		return
	}
	t.locateFrom(1, p, v)
}

func (t kdTree) locateFrom(i int, p point, v visitor) {
	n := len(t.nodes) - 1
	node := &t.nodes[i]
	if 2*i > n {
		v.visit(node, node.dist2(p))
		return
	}

	d := p[node.axis] - node.pos[node.axis]
	near, far := 2*i, 2*i+1
	if d > 0 {
		near, far = far, near
	}
	if near <= n {
		t.locateFrom(near, p, v)
	}
	if d*d < v.radius2() {
		v.visit(node, node.dist2(p))
		if far <= n {
			t.locateFrom(far, p, v)
		}
	}
}
