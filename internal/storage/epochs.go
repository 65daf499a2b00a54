package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.etcd.io/bbolt"
)

// EpochRecord is one row of a run's training history.
type EpochRecord struct {
	RunID      string        `json:"run_id"`
	Epoch      int           `json:"epoch"`
	TrainLoss  float64       `json:"loss"`
	TrainMAE   float64       `json:"mae"`
	TestLoss   float64       `json:"val_loss"`
	TestMAE    float64       `json:"val_mae"`
	Duration   time.Duration `json:"duration"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// AppendEpoch stores an epoch record under runID_epoch. Keys are zero
// padded so a cursor walks epochs in order.
func (s *Store) AppendEpoch(record EpochRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("epoch record has no run id")
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = s.clock.Now().UTC()
	}
	// JSON has no NaN; an empty test subset is stored as -1.
	for _, v := range []*float64{&record.TrainLoss, &record.TrainMAE, &record.TestLoss, &record.TestMAE} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = -1
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal epoch record: %w", err)
		}
		return tx.Bucket([]byte(epochsBucket)).Put(epochKey(record.RunID, record.Epoch), data)
	})
}

// Epochs returns the history of a run, in epoch order.
func (s *Store) Epochs(runID string) ([]EpochRecord, error) {
	var epochs []EpochRecord

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(epochsBucket)).Cursor()
		prefix := []byte(runID + "_")

		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec EpochRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			epochs = append(epochs, rec)
		}
		return nil
	})

	return epochs, err
}

func epochKey(runID string, epoch int) []byte {
	return []byte(fmt.Sprintf("%s_%06d", runID, epoch))
}
