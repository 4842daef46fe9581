package health

// pSquare is the P² streaming quantile estimator (Jain & Chlamtac, 1985).
// It tracks a single quantile in O(1) space without storing observations,
// which keeps latency recording on the request hot path allocation-free.
//
// The estimate converges after a few dozen observations; before five
// observations it falls back to the exact order statistic.
type pSquare struct {
	p     float64 // target quantile, e.g. 0.95
	count int

	// Marker heights, positions and desired positions per the paper.
	heights   [5]float64
	positions [5]float64
	desired   [5]float64
	increment [5]float64
}

func newPSquare(p float64) *pSquare {
	e := &pSquare{p: p}
	e.increment = [5]float64{0, p / 2, p, (1 + p) / 2, 1}
	return e
}

// Observe folds one observation into the estimate.
func (e *pSquare) Observe(x float64) {
	if e.count < 5 {
		// Insertion sort into the initial marker heights.
		i := e.count
		for i > 0 && e.heights[i-1] > x {
			e.heights[i] = e.heights[i-1]
			i--
		}
		e.heights[i] = x
		e.count++

		if e.count == 5 {
			for j := 0; j < 5; j++ {
				e.positions[j] = float64(j + 1)
				e.desired[j] = 1 + 4*e.increment[j]
			}
		}
		return
	}

	// Find the cell k such that heights[k] <= x < heights[k+1].
	var k int
	switch {
	case x < e.heights[0]:
		e.heights[0] = x
		k = 0
	case x >= e.heights[4]:
		e.heights[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if x < e.heights[k+1] {
				break
			}
		}
	}

	for j := k + 1; j < 5; j++ {
		e.positions[j]++
	}
	for j := 0; j < 5; j++ {
		e.desired[j] += e.increment[j]
	}

	// Adjust the three interior markers toward their desired positions.
	for j := 1; j <= 3; j++ {
		d := e.desired[j] - e.positions[j]
		if (d >= 1 && e.positions[j+1]-e.positions[j] > 1) ||
			(d <= -1 && e.positions[j-1]-e.positions[j] < -1) {
			sign := 1.0
			if d < 0 {
				sign = -1.0
			}

			candidate := e.parabolic(j, sign)
			if e.heights[j-1] < candidate && candidate < e.heights[j+1] {
				e.heights[j] = candidate
			} else {
				e.heights[j] = e.linear(j, sign)
			}
			e.positions[j] += sign
		}
	}

	e.count++
}

// parabolic is the P² piecewise-parabolic height prediction.
func (e *pSquare) parabolic(j int, sign float64) float64 {
	return e.heights[j] + sign/(e.positions[j+1]-e.positions[j-1])*
		((e.positions[j]-e.positions[j-1]+sign)*(e.heights[j+1]-e.heights[j])/(e.positions[j+1]-e.positions[j])+
			(e.positions[j+1]-e.positions[j]-sign)*(e.heights[j]-e.heights[j-1])/(e.positions[j]-e.positions[j-1]))
}

// linear is the fallback height prediction when the parabolic one would
// break marker ordering.
func (e *pSquare) linear(j int, sign float64) float64 {
	next := j + int(sign)
	return e.heights[j] + sign*(e.heights[next]-e.heights[j])/(e.positions[next]-e.positions[j])
}

// Value returns the current quantile estimate, 0 before any observation.
func (e *pSquare) Value() float64 {
	if e.count == 0 {
		return 0
	}
	if e.count < 5 {
		// Exact order statistic over the sorted prefix.
		idx := int(e.p * float64(e.count))
		if idx >= e.count {
			idx = e.count - 1
		}
		return e.heights[idx]
	}
	return e.heights[2]
}
