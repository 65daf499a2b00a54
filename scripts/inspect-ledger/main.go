package main

import (
	"flag"
	"fmt"
	"time"

	"gmi-rain/internal/cli"
	"gmi-rain/internal/ml"
	"gmi-rain/internal/storage"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		logLevel = flag.String("log-level", "warn", "Log level: debug, info, warn, error")
		ledger   = flag.String("ledger", "", "Ledger directory (default: LEDGER_PATH)")
		runID    = flag.String("run", "", "Print the epoch history of this run")
		tail     = flag.Int("tail", 10, "Epochs to print with -run")
	)
	flag.Parse()
	cli.SetupLogging(*logLevel)

	if *ledger == "" {
		*ledger = cli.LoadSettings().LedgerPath
	}

	fmt.Printf("Inspecting ledger in: %s\n", *ledger)
	store, err := storage.New(*ledger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer store.Close()

	if *runID != "" {
		printEpochs(store, *runID, *tail)
		return
	}

	runs, err := store.Runs()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}
	fmt.Printf("\nRuns (%d):\n", len(runs))
	for _, r := range runs {
		took := "-"
		if !r.FinishedAt.IsZero() {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("  %s  %-9s  %s  epochs=%d train=%d test=%d loss=%.4f val_loss=%.4f  %s\n",
			r.ID, r.Status, r.StartedAt.Format(time.RFC3339), r.Epochs,
			r.TrainSamples, r.TestSamples, r.FinalLoss, r.FinalValLoss, took)
		if r.Error != "" {
			fmt.Printf("      error: %s\n", r.Error)
		}
	}

	manager, err := ml.NewModelManager(store, clockwork.NewRealClock())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model versions")
	}
	versions := manager.ListVersions()
	fmt.Printf("\nModel versions (%d):\n", len(versions))
	for _, v := range versions {
		active := " "
		if v.IsActive {
			active = "*"
		}
		fmt.Printf(" %s %s  run=%s  test_mse=%.4f test_mae=%.4f  %s\n",
			active, v.Version, v.RunID, v.Metrics.TestMSE, v.Metrics.TestMAE, v.Path)
	}
	if best, ok := manager.BestVersion(); ok {
		fmt.Printf("\nBest by test MSE: %s\n", best.Version)
	}
}

func printEpochs(store *storage.Store, runID string, tail int) {
	run, err := store.Run(runID)
	if err != nil {
		log.Fatal().Err(err).Str("run_id", runID).Msg("Unknown run")
	}
	epochs, err := store.Epochs(runID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read epochs")
	}
	fmt.Printf("\nRun %s (%s), %d epochs recorded\n", run.ID, run.Status, len(epochs))
	if tail > 0 && len(epochs) > tail {
		epochs = epochs[len(epochs)-tail:]
	}
	for _, e := range epochs {
		fmt.Printf("  %5d  loss=%.4f mae=%.4f val_loss=%.4f val_mae=%.4f  %s\n",
			e.Epoch, e.TrainLoss, e.TrainMAE, e.TestLoss, e.TestMAE, e.Duration.Round(time.Millisecond))
	}
}
