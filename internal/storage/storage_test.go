package storage

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2020, 9, 16, 13, 8, 32, 0, time.UTC))
	store, err := NewWithClock(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, clock
}

func TestNew(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "ledger")

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	// Check if database file was created
	dbPath := filepath.Join(tempDir, "gmi-runs.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := New(filepath.Join(file, "ledger"))
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	// Test closing already closed store
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	store, clock := newTestStore(t)

	run, err := store.StartRun(RunRecord{
		DatasetPath:  "data/dataset2_GMI_DPR_RR.nc",
		LearningRate: 0.001,
		Epochs:       1600,
		BatchSize:    8000,
		Seed:         42,
	})
	if err != nil {
		t.Fatalf("StartRun failed: %v", err)
	}
	if run.ID == "" || run.Status != RunRunning {
		t.Fatalf("unexpected started run %+v", run)
	}
	if !run.StartedAt.Equal(clock.Now()) {
		t.Errorf("expected start time %v, got %v", clock.Now(), run.StartedAt)
	}

	clock.Advance(90 * time.Second)
	done, err := store.FinishRun(run.ID, RunCompleted, func(r *RunRecord) {
		r.FinalLoss = 4.2
		r.FinalValLoss = math.NaN()
		r.ModelPath = "models/model_sea_ann.json"
	})
	if err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	if done.FinishedAt.Sub(done.StartedAt) != 90*time.Second {
		t.Errorf("expected 90s run, got %v", done.FinishedAt.Sub(done.StartedAt))
	}

	got, err := store.Run(run.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got.Status != RunCompleted || got.FinalLoss != 4.2 || got.ModelPath == "" {
		t.Errorf("unexpected stored run %+v", got)
	}
	if got.FinalValLoss != -1 {
		t.Errorf("expected NaN loss to be stored as -1, got %f", got.FinalValLoss)
	}
	if got.BatchSize != 8000 {
		t.Errorf("expected BatchSize 8000, got %d", got.BatchSize)
	}
}

func TestRun_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Run("run_missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	_, err = store.FinishRun("run_missing", RunFailed, nil)
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound from FinishRun, got %v", err)
	}
}

func TestRuns_Ordered(t *testing.T) {
	store, clock := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := store.StartRun(RunRecord{Epochs: i + 1})
		if err != nil {
			t.Fatalf("StartRun failed: %v", err)
		}
		ids = append(ids, run.ID)
		clock.Advance(time.Minute)
	}

	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	for i, run := range runs {
		if run.ID != ids[i] {
			t.Errorf("run %d: expected %s, got %s", i, ids[i], run.ID)
		}
	}
}

func TestEpochs(t *testing.T) {
	store, _ := newTestStore(t)

	for _, runID := range []string{"run_1", "run_2"} {
		for epoch := 1; epoch <= 12; epoch++ {
			err := store.AppendEpoch(EpochRecord{
				RunID:     runID,
				Epoch:     epoch,
				TrainLoss: 10 / float64(epoch),
				TestLoss:  12 / float64(epoch),
				Duration:  time.Millisecond,
			})
			if err != nil {
				t.Fatalf("AppendEpoch failed: %v", err)
			}
		}
	}

	epochs, err := store.Epochs("run_1")
	if err != nil {
		t.Fatalf("Epochs failed: %v", err)
	}
	if len(epochs) != 12 {
		t.Fatalf("expected 12 epochs, got %d", len(epochs))
	}
	for i, rec := range epochs {
		if rec.Epoch != i+1 {
			t.Errorf("expected epoch %d at position %d, got %d", i+1, i, rec.Epoch)
		}
		if rec.RunID != "run_1" {
			t.Errorf("epoch from wrong run: %s", rec.RunID)
		}
		if rec.RecordedAt.IsZero() {
			t.Error("expected RecordedAt to be set")
		}
	}

	none, err := store.Epochs("run_9")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no epochs for unknown run, got %d (%v)", len(none), err)
	}
}

func TestAppendEpoch_Validation(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.AppendEpoch(EpochRecord{Epoch: 1}); err == nil {
		t.Error("expected error for missing run id")
	}

	err := store.AppendEpoch(EpochRecord{RunID: "run_1", Epoch: 1, TestLoss: math.NaN(), TestMAE: math.Inf(1)})
	if err != nil {
		t.Fatalf("expected NaN losses to be stored, got %v", err)
	}
	epochs, _ := store.Epochs("run_1")
	if len(epochs) != 1 || epochs[0].TestLoss != -1 || epochs[0].TestMAE != -1 {
		t.Errorf("unexpected stored epoch %+v", epochs)
	}
}

func TestModelVersions(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.PutModelVersion("20200916-130832", []byte(`{"version":"a"}`)); err != nil {
		t.Fatalf("PutModelVersion failed: %v", err)
	}
	if err := store.PutModelVersion("20200916-140000", []byte(`{"version":"b"}`)); err != nil {
		t.Fatalf("PutModelVersion failed: %v", err)
	}
	// Overwrite keeps one entry per version
	if err := store.PutModelVersion("20200916-130832", []byte(`{"version":"a2"}`)); err != nil {
		t.Fatalf("PutModelVersion failed: %v", err)
	}

	versions, err := store.ModelVersions()
	if err != nil {
		t.Fatalf("ModelVersions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if string(versions[0]) != `{"version":"a2"}` {
		t.Errorf("unexpected first version %s", versions[0])
	}
}

func TestPutModelVersionsBatch(t *testing.T) {
	store, _ := newTestStore(t)

	if err := store.PutModelVersion("20200916-130832", []byte(`{"is_active":true}`)); err != nil {
		t.Fatalf("PutModelVersion failed: %v", err)
	}
	batch := map[string][]byte{
		"20200916-130832": []byte(`{"is_active":false}`),
		"20200916-140000": []byte(`{"is_active":true}`),
	}
	if err := store.PutModelVersions(batch); err != nil {
		t.Fatalf("PutModelVersions failed: %v", err)
	}

	versions, err := store.ModelVersions()
	if err != nil {
		t.Fatalf("ModelVersions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if string(versions[0]) != `{"is_active":false}` || string(versions[1]) != `{"is_active":true}` {
		t.Errorf("unexpected versions %s, %s", versions[0], versions[1])
	}
}
