package features

import "math"

// ColumnStats holds per-feature moments of a batch, ignoring NaN values.
type ColumnStats struct {
	Mean  []float64
	Std   []float64
	Count []int
}

// Describe computes mean and population standard deviation per column.
// Columns with no finite values report NaN.
func Describe(rows [][]float64, width int) ColumnStats {
	cs := ColumnStats{
		Mean:  make([]float64, width),
		Std:   make([]float64, width),
		Count: make([]int, width),
	}
	sum := make([]float64, width)
	sumSquared := make([]float64, width)

	for _, row := range rows {
		for j := 0; j < width && j < len(row); j++ {
			x := row[j]
			if math.IsNaN(x) || math.IsInf(x, 0) {
				continue
			}
			sum[j] += x
			sumSquared[j] += x * x
			cs.Count[j]++
		}
	}

	for j := 0; j < width; j++ {
		if cs.Count[j] == 0 {
			cs.Mean[j] = math.NaN()
			cs.Std[j] = math.NaN()
			continue
		}
		n := float64(cs.Count[j])
		mean := sum[j] / n
		variance := sumSquared[j]/n - mean*mean
		cs.Mean[j] = mean
		if variance > 0 {
			cs.Std[j] = math.Sqrt(variance)
		}
	}
	return cs
}

// CompleteRows returns the indices of rows whose values are all finite.
func CompleteRows(rows [][]float64) []int {
	idx := make([]int, 0, len(rows))
	for i, row := range rows {
		ok := true
		for _, x := range row {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				ok = false
				break
			}
		}
		if ok {
			idx = append(idx, i)
		}
	}
	return idx
}
