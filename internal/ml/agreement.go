package ml

import "math"

// Agreement summarizes predicted rain rates against a reference retrieval
// on the same pixels.
type Agreement struct {
	N    int     `json:"n"`
	MSE  float64 `json:"mse"`
	MAE  float64 `json:"mae"`
	Bias float64 `json:"bias"` // mean of pred - ref
}

// Compare scores pred against ref pixel by pixel. Pixels where either side
// is non-finite, or where both are dry (<= 0), are left out. With no pixels
// left the scores are NaN.
func Compare(pred, ref []float64) Agreement {
	var a Agreement
	n := min(len(pred), len(ref))
	for i := 0; i < n; i++ {
		p, r := pred[i], ref[i]
		if math.IsNaN(p) || math.IsNaN(r) || math.IsInf(p, 0) || math.IsInf(r, 0) {
			continue
		}
		if p <= 0 && r <= 0 {
			continue
		}
		d := p - r
		a.N++
		a.MSE += d * d
		a.MAE += math.Abs(d)
		a.Bias += d
	}
	if a.N == 0 {
		return Agreement{MSE: math.NaN(), MAE: math.NaN(), Bias: math.NaN()}
	}
	a.MSE /= float64(a.N)
	a.MAE /= float64(a.N)
	a.Bias /= float64(a.N)
	return a
}
