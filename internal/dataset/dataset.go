// Package dataset partitions a feature table into train and test subsets.
package dataset

import (
	"errors"
	"fmt"

	"gmi-rain/internal/common"
)

var (
	ErrShapeMismatch = errors.New("feature and label counts differ")
	ErrChannelCount  = errors.New("feature row has wrong channel count")
)

// Dataset holds the Train and Test partitions. Rows are shared with the
// input table, not copied.
type Dataset struct {
	TrainX [][]float64
	TrainY []float64
	TestX  [][]float64
	TestY  []float64

	trainIdx []int
	testIdx  []int
}

// Build assigns example i to Train when i is even and to Test when it is odd.
// Relative order is kept inside each partition and nothing is dropped.
func Build(x [][]float64, y []float64) (*Dataset, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("%w: %d feature rows, %d labels", ErrShapeMismatch, len(x), len(y))
	}
	for i, row := range x {
		if len(row) != common.ChannelCount {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrChannelCount, i, len(row), common.ChannelCount)
		}
	}

	nTrain := (len(x) + 1) / 2
	nTest := len(x) / 2
	ds := &Dataset{
		TrainX:   make([][]float64, 0, nTrain),
		TrainY:   make([]float64, 0, nTrain),
		TestX:    make([][]float64, 0, nTest),
		TestY:    make([]float64, 0, nTest),
		trainIdx: make([]int, 0, nTrain),
		testIdx:  make([]int, 0, nTest),
	}
	for i := range x {
		if i%2 == 0 {
			ds.TrainX = append(ds.TrainX, x[i])
			ds.TrainY = append(ds.TrainY, y[i])
			ds.trainIdx = append(ds.trainIdx, i)
		} else {
			ds.TestX = append(ds.TestX, x[i])
			ds.TestY = append(ds.TestY, y[i])
			ds.testIdx = append(ds.testIdx, i)
		}
	}
	return ds, nil
}

// TrainIndices returns the source indices of the Train rows, in order.
func (d *Dataset) TrainIndices() []int {
	out := make([]int, len(d.trainIdx))
	copy(out, d.trainIdx)
	return out
}

// TestIndices returns the source indices of the Test rows, in order.
func (d *Dataset) TestIndices() []int {
	out := make([]int, len(d.testIdx))
	copy(out, d.testIdx)
	return out
}

func (d *Dataset) Len() int { return len(d.trainIdx) + len(d.testIdx) }
