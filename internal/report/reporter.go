// Package report writes the human and machine readable outputs of a
// training run: a text summary, the epoch history as CSV, the permutation
// importance table and a JSON document with everything.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gmi-rain/internal/ml"

	"github.com/rs/zerolog/log"
)

const (
	FileSummary    = "training_summary.txt"
	FileHistory    = "history.csv"
	FileImportance = "feature_importance.csv"
	FileJSON       = "training_results.json"
)

// Results is everything known about a finished training run.
type Results struct {
	RunID        string
	StartTime    time.Time
	EndTime      time.Time
	DatasetPath  string
	ModelPath    string
	ScalerPath   string
	LearningRate float64
	Epochs       int
	BatchSize    int
	Seed         int64
	Loaded       int
	Filtered     int
	TrainSamples int
	TestSamples  int
	History      ml.History
	Baseline     float64 // test MSE before permutation
	Importance   []ml.FeatureScore
}

// Reporter generates training reports
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateSummary(); err != nil {
		return err
	}
	if err := r.generateHistory(); err != nil {
		return err
	}
	if err := r.generateImportance(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

// generateSummary generates a human-readable summary
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, FileSummary)
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	r.writeSummary(file)

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

func (r *Reporter) writeSummary(w io.Writer) {
	res := r.results
	last := res.History.Last()
	best := res.History.Best()

	fmt.Fprintf(w, "TRAINING RUN SUMMARY\n")
	fmt.Fprintf(w, "====================\n\n")
	fmt.Fprintf(w, "Run: %s\n", res.RunID)
	fmt.Fprintf(w, "Time Period: %s to %s\n",
		res.StartTime.Format("2006-01-02 15:04:05"),
		res.EndTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n\n", res.EndTime.Sub(res.StartTime))

	fmt.Fprintf(w, "DATA\n")
	fmt.Fprintf(w, "----\n")
	fmt.Fprintf(w, "Training set: %s\n", res.DatasetPath)
	fmt.Fprintf(w, "Examples loaded: %d\n", res.Loaded)
	fmt.Fprintf(w, "Examples filtered: %d\n", res.Filtered)
	fmt.Fprintf(w, "Train / Test: %d / %d\n\n", res.TrainSamples, res.TestSamples)

	fmt.Fprintf(w, "TRAINING\n")
	fmt.Fprintf(w, "--------\n")
	fmt.Fprintf(w, "Learning rate: %g\n", res.LearningRate)
	fmt.Fprintf(w, "Epochs: %d (completed %d)\n", res.Epochs, res.History.Len())
	fmt.Fprintf(w, "Batch size: %d\n", res.BatchSize)
	fmt.Fprintf(w, "Seed: %d\n\n", res.Seed)

	fmt.Fprintf(w, "RESULTS\n")
	fmt.Fprintf(w, "-------\n")
	fmt.Fprintf(w, "Final Train MSE: %s  MAE: %s\n", formatFloat(last.TrainLoss), formatFloat(last.TrainMAE))
	fmt.Fprintf(w, "Final Test MSE: %s  MAE: %s\n", formatFloat(last.TestLoss), formatFloat(last.TestMAE))
	if best.Epoch > 0 {
		fmt.Fprintf(w, "Best Test MSE: %s at epoch %d\n", formatFloat(best.TestLoss), best.Epoch)
	}
	fmt.Fprintf(w, "Model: %s\n", res.ModelPath)
	fmt.Fprintf(w, "Scaler: %s\n", res.ScalerPath)

	if len(res.Importance) > 0 {
		fmt.Fprintf(w, "\nCHANNEL IMPORTANCE (test MSE %s)\n", formatFloat(res.Baseline))
		fmt.Fprintf(w, "------------------\n")
		for _, s := range res.Importance[:min(5, len(res.Importance))] {
			fmt.Fprintf(w, "%s: +%s\n", s.Name, formatFloat(s.Importance))
		}
	}
}

// generateHistory writes one CSV row per epoch
func (r *Reporter) generateHistory() error {
	csvPath := filepath.Join(r.outputPath, FileHistory)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create history log: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"epoch", "loss", "mae", "val_loss", "val_mae", "duration_ms"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, e := range r.results.History.Epochs {
		record := []string{
			strconv.Itoa(e.Epoch),
			formatFloat(e.TrainLoss),
			formatFloat(e.TrainMAE),
			formatFloat(e.TestLoss),
			formatFloat(e.TestMAE),
			strconv.FormatInt(e.Duration.Milliseconds(), 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write history log: %w", err)
	}

	log.Info().Str("file", csvPath).Int("epochs", r.results.History.Len()).Msg("History log generated")
	return nil
}

// generateImportance writes the permutation importance table, most
// important channel first. Skipped when importance was not computed.
func (r *Reporter) generateImportance() error {
	if len(r.results.Importance) == 0 {
		return nil
	}
	csvPath := filepath.Join(r.outputPath, FileImportance)
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create importance report: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"channel", "index", "permuted_mse", "importance"}); err != nil {
		return err
	}
	for _, s := range r.results.Importance {
		record := []string{
			s.Name,
			strconv.Itoa(s.Index),
			formatFloat(s.PermutedMSE),
			formatFloat(s.Importance),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to write importance report: %w", err)
	}

	log.Info().Str("file", csvPath).Msg("Importance report generated")
	return nil
}

type jsonEpoch struct {
	Epoch      int      `json:"epoch"`
	Loss       *float64 `json:"loss"`
	MAE        *float64 `json:"mae"`
	ValLoss    *float64 `json:"val_loss"`
	ValMAE     *float64 `json:"val_mae"`
	DurationMS int64    `json:"duration_ms"`
}

// generateJSONReport generates a JSON report with all data. NaN values are
// written as null.
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, FileJSON)
	res := r.results

	epochs := make([]jsonEpoch, len(res.History.Epochs))
	for i, e := range res.History.Epochs {
		epochs[i] = jsonEpoch{
			Epoch:      e.Epoch,
			Loss:       finite(e.TrainLoss),
			MAE:        finite(e.TrainMAE),
			ValLoss:    finite(e.TestLoss),
			ValMAE:     finite(e.TestMAE),
			DurationMS: e.Duration.Milliseconds(),
		}
	}
	importance := make([]map[string]interface{}, len(res.Importance))
	for i, s := range res.Importance {
		importance[i] = map[string]interface{}{
			"name":         s.Name,
			"index":        s.Index,
			"permuted_mse": finite(s.PermutedMSE),
			"importance":   finite(s.Importance),
		}
	}

	last := res.History.Last()
	report := map[string]interface{}{
		"summary": map[string]interface{}{
			"run_id":         res.RunID,
			"start_time":     res.StartTime,
			"end_time":       res.EndTime,
			"dataset_path":   res.DatasetPath,
			"model_path":     res.ModelPath,
			"scaler_path":    res.ScalerPath,
			"learning_rate":  res.LearningRate,
			"epochs":         res.Epochs,
			"batch_size":     res.BatchSize,
			"seed":           res.Seed,
			"loaded":         res.Loaded,
			"filtered":       res.Filtered,
			"train_samples":  res.TrainSamples,
			"test_samples":   res.TestSamples,
			"final_loss":     finite(last.TrainLoss),
			"final_val_loss": finite(last.TestLoss),
		},
		"history":      epochs,
		"baseline_mse": finite(res.Baseline),
		"importance":   importance,
		"generated_at": res.EndTime,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints a summary to console
func (r *Reporter) PrintSummary() {
	r.PrintSummaryTo(os.Stdout)
}

func (r *Reporter) PrintSummaryTo(w io.Writer) {
	fmt.Fprintln(w)
	r.writeSummary(w)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
