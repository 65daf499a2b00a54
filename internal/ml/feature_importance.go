package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// FeatureScore is the permutation importance of one input channel.
type FeatureScore struct {
	Name        string  `json:"name"`
	Index       int     `json:"index"`
	PermutedMSE float64 `json:"permuted_mse"`
	Importance  float64 `json:"importance"` // MSE increase over the baseline
}

// PermutationImportance shuffles one column at a time and measures how much
// the MSE on (x, y) grows. Results are sorted by importance, largest first.
func PermutationImportance(model Regressor, x [][]float64, y []float64, names []string, seed int64) ([]FeatureScore, float64, error) {
	if len(x) == 0 {
		return nil, 0, fmt.Errorf("no rows for permutation importance")
	}
	if len(x) != len(y) {
		return nil, 0, fmt.Errorf("%w: %d rows, %d labels", ErrCountMismatch, len(x), len(y))
	}

	baseline, err := mse(model, x, y)
	if err != nil {
		return nil, 0, err
	}

	width := len(x[0])
	rng := rand.New(rand.NewPCG(uint64(seed), 2))
	permuted := make([][]float64, len(x))
	for i := range x {
		permuted[i] = make([]float64, width)
	}

	scores := make([]FeatureScore, 0, width)
	for j := 0; j < width; j++ {
		for i, row := range x {
			copy(permuted[i], row)
		}
		perm := rng.Perm(len(x))
		for i, src := range perm {
			permuted[i][j] = x[src][j]
		}

		score, err := mse(model, permuted, y)
		if err != nil {
			return nil, 0, err
		}
		name := fmt.Sprintf("f%d", j)
		if j < len(names) {
			name = names[j]
		}
		scores = append(scores, FeatureScore{
			Name:        name,
			Index:       j,
			PermutedMSE: score,
			Importance:  score - baseline,
		})
	}

	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].Importance > scores[b].Importance
	})
	return scores, baseline, nil
}

// TopFeatures returns the names of the n most important channels.
func TopFeatures(scores []FeatureScore, n int) []string {
	n = min(n, len(scores))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = scores[i].Name
	}
	return out
}

func mse(model Regressor, x [][]float64, y []float64) (float64, error) {
	pred, err := model.Predict(x)
	if err != nil {
		return 0, err
	}
	var sum float64
	var n int
	for i, p := range pred {
		if math.IsNaN(p) {
			continue
		}
		r := p - y[i]
		sum += r * r
		n++
	}
	if n == 0 {
		return math.NaN(), nil
	}
	return sum / float64(n), nil
}
