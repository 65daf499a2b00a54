package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gmi-rain/internal/cfg"
	"gmi-rain/internal/cli"
	"gmi-rain/internal/common"
	"gmi-rain/internal/dataset"
	"gmi-rain/internal/features"
	"gmi-rain/internal/ml"
	"gmi-rain/internal/render"
	"gmi-rain/internal/report"
	"gmi-rain/internal/storage"
	"gmi-rain/internal/trainset"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Each model version gets its own directory under <models>/versions.
const versionsDir = "versions"

type options struct {
	datasetPath string
	reportDir   string
	importance  bool
	activate    bool
}

func main() {
	var (
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		dataPath   = flag.String("dataset", "", "Training-set file (default: TRAINING_SET_FILE in the data directory)")
		epochs     = flag.Int("epochs", 0, "Number of epochs (overrides config)")
		batchSize  = flag.Int("batch", 0, "Batch size (overrides config)")
		lr         = flag.Float64("lr", 0, "Adam learning rate (overrides config)")
		seed       = flag.Int64("seed", 0, "Seed for weights and shuffling (overrides config)")
		noShuffle  = flag.Bool("no-shuffle", false, "Keep the training order fixed")
		reportDir  = flag.String("report", "", "Report directory (default: <models>/report)")
		importance = flag.Bool("importance", true, "Compute permutation importance on the test subset")
		activate   = flag.Bool("activate", true, "Make the new model the active version")
	)
	flag.Parse()
	cli.SetupLogging(*logLevel)

	c := cli.LoadSettings()
	m := cli.NewMetrics(c.MetricsTextfile)
	defer m.Flush()

	if *epochs > 0 {
		c.Epochs = *epochs
	}
	if *batchSize > 0 {
		c.BatchSize = *batchSize
	}
	if *lr > 0 {
		c.LearningRate = *lr
	}
	if *seed != 0 {
		c.Seed = *seed
	}
	if *noShuffle {
		c.Shuffle = false
	}

	opts := options{
		datasetPath: *dataPath,
		reportDir:   *reportDir,
		importance:  *importance,
		activate:    *activate,
	}
	if opts.datasetPath == "" {
		opts.datasetPath = c.DataFile(c.TrainingSetFile)
	}
	if opts.reportDir == "" {
		opts.reportDir = filepath.Join(c.ModelsPath, "report")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, c, m, opts); err != nil {
		m.Flush()
		log.Fatal().Err(err).Msg("Training failed")
	}
}

func run(ctx context.Context, c cfg.Settings, m *cli.Metrics, opts options) error {
	raw, err := trainset.Read(opts.datasetPath)
	if err != nil {
		return err
	}
	set, cleaned := trainset.Clean(raw)
	m.Wrapper.ExamplesObserve(cleaned.Loaded, cleaned.Filtered())

	ds, err := dataset.Build(set.X, set.Y)
	if err != nil {
		return err
	}

	scaler, err := features.Fit(ds.TrainX)
	if err != nil {
		return err
	}
	trainX, err := scaler.Transform(ds.TrainX)
	if err != nil {
		return err
	}
	testX, err := scaler.Transform(ds.TestX)
	if err != nil {
		return err
	}

	store, err := storage.New(c.LedgerPath)
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.StartRun(storage.RunRecord{
		DatasetPath:  opts.datasetPath,
		LearningRate: c.LearningRate,
		Epochs:       c.Epochs,
		BatchSize:    c.BatchSize,
		Seed:         c.Seed,
		TrainSamples: len(ds.TrainY),
		TestSamples:  len(ds.TestY),
		Filtered:     cleaned.Filtered(),
	})
	if err != nil {
		return err
	}
	log.Info().Str("run_id", rec.ID).Str("dataset", opts.datasetPath).Msg("Run started")

	model := ml.NewModel(c.Seed)
	history, err := model.Train(ctx, trainX, ds.TrainY, testX, ds.TestY, ml.TrainConfig{
		LearningRate: c.LearningRate,
		Epochs:       c.Epochs,
		BatchSize:    c.BatchSize,
		Shuffle:      c.Shuffle,
		Seed:         c.Seed,
		Metrics:      m.Wrapper,
		OnEpoch: func(s ml.EpochStats) error {
			return store.AppendEpoch(storage.EpochRecord{
				RunID:     rec.ID,
				Epoch:     s.Epoch,
				TrainLoss: s.TrainLoss,
				TrainMAE:  s.TrainMAE,
				TestLoss:  s.TestLoss,
				TestMAE:   s.TestMAE,
				Duration:  s.Duration,
			})
		},
	})
	if err != nil {
		status := storage.RunFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = storage.RunAborted
		}
		if _, ferr := store.FinishRun(rec.ID, status, func(r *storage.RunRecord) { r.Error = err.Error() }); ferr != nil {
			log.Warn().Err(ferr).Msg("Failed to close run record")
		}
		return err
	}

	last := history.Last()
	manager, err := ml.NewModelManager(store, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	version, err := manager.Publish(model, scaler, ml.Artifacts{
		Dir:        filepath.Join(c.ModelsPath, versionsDir),
		ModelFile:  c.ModelFile,
		ScalerFile: c.ScalerFile,
	}, rec.ID, ml.ModelMetrics{
		TestMSE:         last.TestLoss,
		TestMAE:         last.TestMAE,
		TrainMSE:        last.TrainLoss,
		TrainMAE:        last.TrainMAE,
		Epochs:          history.Len(),
		TrainingSamples: len(ds.TrainY),
		TestSamples:     len(ds.TestY),
	})
	if err != nil {
		return err
	}
	if opts.activate {
		if err := manager.ActivateVersion(version.Version); err != nil {
			return err
		}
	}
	modelPath, scalerPath := version.Path, version.ScalerPath

	results := &report.Results{
		RunID:        rec.ID,
		StartTime:    rec.StartedAt,
		DatasetPath:  opts.datasetPath,
		ModelPath:    modelPath,
		ScalerPath:   scalerPath,
		LearningRate: c.LearningRate,
		Epochs:       c.Epochs,
		BatchSize:    c.BatchSize,
		Seed:         c.Seed,
		Loaded:       cleaned.Loaded,
		Filtered:     cleaned.Filtered(),
		TrainSamples: len(ds.TrainY),
		TestSamples:  len(ds.TestY),
		History:      *history,
	}
	if opts.importance && len(testX) > 0 {
		scores, baseline, err := ml.PermutationImportance(model, testX, ds.TestY, common.ChannelNames[:], c.Seed)
		if err != nil {
			log.Warn().Err(err).Msg("Permutation importance skipped")
		} else {
			results.Importance, results.Baseline = scores, baseline
			log.Info().Strs("top_channels", ml.TopFeatures(scores, 3)).Msg("Permutation importance computed")
		}
	}

	finished, err := store.FinishRun(rec.ID, storage.RunCompleted, func(r *storage.RunRecord) {
		r.FinalLoss = last.TrainLoss
		r.FinalValLoss = last.TestLoss
		r.ModelPath = modelPath
	})
	if err != nil {
		return err
	}
	results.EndTime = finished.FinishedAt

	reporter := report.NewReporter(results, opts.reportDir)
	if err := reporter.GenerateReport(); err != nil {
		return err
	}
	curves := filepath.Join(c.FiguresPath, "learning-curves.png")
	if err := render.NewMapRenderer(m.Wrapper).LearningCurves(*history, curves, c.DPI); err != nil {
		log.Warn().Err(err).Msg("Learning curves not plotted")
	}
	reporter.PrintSummary()

	log.Info().
		Str("run_id", rec.ID).
		Str("version", version.Version).
		Float64("loss", last.TrainLoss).
		Float64("val_loss", last.TestLoss).
		Msg("Training complete")
	return nil
}
