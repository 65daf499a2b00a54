// Package storage provides the run ledger for the GMI rainfall pipeline.
// It uses BoltDB to record training runs, their per-epoch history and the
// registered model versions, so past runs can be compared and a model can
// be rolled back without retraining.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"go.etcd.io/bbolt"
)

const (
	runsBucket   = "runs"   // Run records keyed by run id
	epochsBucket = "epochs" // Epoch records keyed by runID_epoch
	modelsBucket = "models" // Serialized model versions keyed by version

	ledgerFile = "gmi-runs.db"
)

var ErrRunNotFound = errors.New("run not found")

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunAborted   RunStatus = "aborted"
)

// RunRecord describes one training run.
type RunRecord struct {
	ID           string    `json:"id"`
	Status       RunStatus `json:"status"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	DatasetPath  string    `json:"dataset_path"`
	LearningRate float64   `json:"learning_rate"`
	Epochs       int       `json:"epochs"`
	BatchSize    int       `json:"batch_size"`
	Seed         int64     `json:"seed"`
	TrainSamples int       `json:"train_samples"`
	TestSamples  int       `json:"test_samples"`
	Filtered     int       `json:"filtered"`
	FinalLoss    float64   `json:"final_loss"`
	FinalValLoss float64   `json:"final_val_loss"`
	ModelPath    string    `json:"model_path,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Store provides persistent storage for run data using BoltDB.
type Store struct {
	db    *bbolt.DB
	clock clockwork.Clock
}

// New opens (or creates) the ledger in dataPath.
func New(dataPath string) (*Store, error) {
	return NewWithClock(dataPath, clockwork.NewRealClock())
}

// NewWithClock opens the ledger with an explicit time source.
func NewWithClock(dataPath string, clock clockwork.Clock) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, ledgerFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucket, epochsBucket, modelsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, clock: clock}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// StartRun stores rec as a running run and returns it with its id and start
// time filled in.
func (s *Store) StartRun(rec RunRecord) (RunRecord, error) {
	now := s.clock.Now().UTC()
	rec.ID = fmt.Sprintf("run_%d", now.UnixNano())
	rec.Status = RunRunning
	rec.StartedAt = now

	if err := s.putRun(rec); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// FinishRun marks a run as done. update may fill result fields.
func (s *Store) FinishRun(id string, status RunStatus, update func(*RunRecord)) (RunRecord, error) {
	rec, err := s.Run(id)
	if err != nil {
		return RunRecord{}, err
	}
	rec.Status = status
	rec.FinishedAt = s.clock.Now().UTC()
	if update != nil {
		update(&rec)
	}
	if err := s.putRun(rec); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// Run returns a single run record.
func (s *Store) Run(id string) (RunRecord, error) {
	var rec RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// Runs returns every run, oldest first.
func (s *Store) Runs() ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed records
			}
			runs = append(runs, rec)
			return nil
		})
	})
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, err
}

// PutModelVersion stores a serialized model version.
func (s *Store) PutModelVersion(version string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).Put([]byte(version), data)
	})
}

// PutModelVersions stores several model versions in one transaction.
func (s *Store) PutModelVersions(batch map[string][]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(modelsBucket))
		for version, data := range batch {
			if err := b.Put([]byte(version), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ModelVersions returns every stored model version in key order.
func (s *Store) ModelVersions() ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).ForEach(func(_, v []byte) error {
			out = append(out, bytes.Clone(v))
			return nil
		})
	})
	return out, err
}

func (s *Store) putRun(rec RunRecord) error {
	for _, v := range []*float64{&rec.FinalLoss, &rec.FinalValLoss} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = -1
		}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		return tx.Bucket([]byte(runsBucket)).Put([]byte(rec.ID), data)
	})
}
