package photonmap

// nearestPhotons collects the k photons closest to a point. Entries are
// appended until k are found, then the arrays are turned into a max-heap on
// squared distance and each closer photon replaces the root. dist2[0] always
// holds the current search radius squared. Arrays are 1-based.
type nearestPhotons struct {
	pos     point
	max     int
	found   int
	gotHeap bool
	dist2   []float32
	index   []*photon
}

func newNearestPhotons(k int) *nearestPhotons {
	return &nearestPhotons{
		max:   k,
		dist2: make([]float32, k+1),
		index: make([]*photon, k+1),
	}
}

func (np *nearestPhotons) reset(p point, maxDist2 float32) {
	np.pos = p
	np.found = 0
	np.gotHeap = false
	np.dist2[0] = maxDist2
}

func (np *nearestPhotons) radius2() float32 {
	return np.dist2[0]
}

func (np *nearestPhotons) visit(ph *photon, d2 float32) {
	if d2 >= np.dist2[0] {
		return
	}
	if np.found < np.max {
		np.found++
		np.dist2[np.found] = d2
		np.index[np.found] = ph
		return
	}

	if !np.gotHeap {
		np.heapify()
		np.dist2[0] = np.dist2[1]
		if d2 >= np.dist2[1] {
			return
		}
	}

	// sift the new photon down from the root, dropping the farthest
	parent, j := 1, 2
	for j <= np.found {
		if j < np.found && np.dist2[j] < np.dist2[j+1] {
			j++
		}
		if d2 > np.dist2[j] {
			break
		}
		np.dist2[parent] = np.dist2[j]
		np.index[parent] = np.index[j]
		parent = j
		j += j
	}
	np.dist2[parent] = d2
	np.index[parent] = ph
	np.dist2[0] = np.dist2[1]
}

func (np *nearestPhotons) heapify() {
	half := np.found >> 1
	for k := half; k >= 1; k-- {
		parent := k
		ph := np.index[k]
		d2 := np.dist2[k]
		for parent <= half {
			j := parent + parent
			if j < np.found && np.dist2[j] < np.dist2[j+1] {
				j++
			}
			if d2 >= np.dist2[j] {
				break
			}
			np.dist2[parent] = np.dist2[j]
			np.index[parent] = np.index[j]
			parent = j
		}
		np.dist2[parent] = d2
		np.index[parent] = ph
	}
	np.gotHeap = true
}
