package correction

import (
	"fmt"
	"math"
	"sort"
)

// QuantileMap corrects simulated so that its empirical distribution matches
// observed. Each simulated value keeps its position; only its value changes.
//
// Simulated values are ranked (ties share the average rank) and converted to
// plotting positions rank/(N+1). Those positions are interpolated linearly on
// a grid of len(observed) points spread evenly over [0, 1], paired with the
// sorted observations. Positions outside the grid take the end values, so the
// output never leaves [min(observed), max(observed)].
func QuantileMap(simulated, observed []float64) ([]float64, error) {
	if err := checkSeries("simulated", simulated); err != nil {
		return nil, err
	}
	if err := checkSeries("observed", observed); err != nil {
		return nil, err
	}

	ranks := Rank(simulated)
	n := float64(len(simulated) + 1)

	sortedObs := make([]float64, len(observed))
	copy(sortedObs, observed)
	sort.Float64s(sortedObs)
	grid := linspace(len(sortedObs))

	corrected := make([]float64, len(simulated))
	for i, r := range ranks {
		corrected[i] = Interp(r/n, grid, sortedObs)
	}
	return corrected, nil
}

// Rank returns the 1-based rank of each value, assigning tied values the
// average of the ranks they span.
func Rank(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	ranks := make([]float64, len(values))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && values[idx[end]] == values[idx[start]] {
			end++
		}
		// positions start..end-1 hold equal values; ranks are 1-based
		avg := float64(start+end+1) / 2
		for k := start; k < end; k++ {
			ranks[idx[k]] = avg
		}
		start = end
	}
	return ranks
}

// Interp linearly interpolates x against the increasing points xp with values
// fp. x left of xp[0] yields fp[0], right of the last point yields the last
// value. xp and fp must be non-empty and of equal length.
func Interp(x float64, xp, fp []float64) float64 {
	last := len(xp) - 1
	if x <= xp[0] {
		return fp[0]
	}
	if x >= xp[last] {
		return fp[last]
	}

	// first index with xp[i] >= x; guaranteed in 1..last
	i := sort.SearchFloat64s(xp, x)
	if xp[i] == x {
		return fp[i]
	}
	x0, x1 := xp[i-1], xp[i]
	y0, y1 := fp[i-1], fp[i]
	y := y0 + (x-x0)*(y1-y0)/(x1-x0)
	// rounding must not push the result past the segment's end values
	return math.Max(math.Min(y0, y1), math.Min(y, math.Max(y0, y1)))
}

// linspace returns n evenly spaced points covering [0, 1]. A single point
// collapses to [0].
func linspace(n int) []float64 {
	grid := make([]float64, n)
	if n == 1 {
		return grid
	}
	for k := range grid {
		grid[k] = float64(k) / float64(n-1)
	}
	grid[n-1] = 1
	return grid
}

func checkSeries(name string, values []float64) error {
	if len(values) == 0 {
		return fmt.Errorf("%w: %s series is empty", ErrInvalidInput, name)
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s[%d] is not finite", ErrInvalidInput, name, i)
		}
	}
	return nil
}
