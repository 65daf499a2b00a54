package main

import (
	"flag"

	"gmi-rain/internal/cfg"
	"gmi-rain/internal/cli"
	"gmi-rain/internal/ml"
	"gmi-rain/internal/render"
	"gmi-rain/internal/storage"
	"gmi-rain/internal/swath"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		tbPath     = flag.String("tb", "", "GMI 1C granule (default: TB_FILE in the data directory)")
		rrPath     = flag.String("precip", "", "GPROF 2A granule to compare against (empty: no comparison)")
		modelPath  = flag.String("model", "", "Model artifact (default: active version, then MODEL_FILE)")
		scalerPath = flag.String("scaler", "", "Scaler artifact (default: active version, then SCALER_FILE)")
		output     = flag.String("output", "", "Map file (default: figures directory)")
	)
	flag.Parse()
	cli.SetupLogging(*logLevel)

	c := cli.LoadSettings()
	m := cli.NewMetrics(c.MetricsTextfile)
	defer m.Flush()

	if *tbPath == "" {
		*tbPath = c.DataFile(c.TBFile)
	}
	if *modelPath == "" || *scalerPath == "" {
		mp, sp := artifacts(c)
		if *modelPath == "" {
			*modelPath = mp
		}
		if *scalerPath == "" {
			*scalerPath = sp
		}
	}

	tb, err := swath.ReadTB(*tbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read brightness temperatures")
	}
	pred, err := ml.LoadPredictor(*modelPath, *scalerPath, m.Wrapper)
	if err != nil {
		m.Flush()
		log.Fatal().Err(err).Msg("Failed to load model")
	}

	rows := tb.Vectors()
	if alerts := ml.NewDriftDetector(pred.Scaler(), c.DriftThreshold, m.Wrapper).Check(rows); len(alerts) > 0 {
		log.Warn().Int("channels", len(alerts)).Msg("Granule differs from the training distribution")
	}
	rain, err := pred.Predict(rows)
	if err != nil {
		m.Flush()
		log.Fatal().Err(err).Msg("Prediction failed")
	}

	f, err := render.NewField(tb.Scans, tb.Pixels, rain, tb.Lat, tb.Lon)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad prediction grid")
	}
	opts := render.Options{
		BBox:      c.BBox,
		Range:     c.RRColorRange,
		Title:     "MLP surface precipitation",
		Label:     "Rain rate (mm/h)",
		Output:    *output,
		Dir:       c.FiguresPath,
		DPI:       c.DPI,
		Coastline: c.CoastlineFile,
		ColorMap:  render.RainColorMap(),
	}
	if err := render.NewMapRenderer(m.Wrapper).Render(f, opts); err != nil {
		m.Flush()
		log.Fatal().Err(err).Msg("Failed to render prediction map")
	}

	if *rrPath != "" {
		precip, err := swath.ReadPrecip(*rrPath)
		if err != nil {
			m.Flush()
			log.Fatal().Err(err).Msg("Failed to read precipitation")
		}
		if precip.Len() != tb.Len() {
			log.Warn().Int("tb_pixels", tb.Len()).Int("precip_pixels", precip.Len()).Msg("Swaths do not line up, comparison skipped")
		} else {
			a := ml.Compare(rain, precip.Rain)
			log.Info().
				Int("pixels", a.N).
				Float64("mse", a.MSE).
				Float64("mae", a.MAE).
				Float64("bias", a.Bias).
				Msg("Agreement with GPROF")
		}
	}

	log.Info().Str("model", *modelPath).Int("pixels", len(rain)).Str("map", opts.OutputPath()).Msg("Prediction complete")
}

// artifacts resolves the model and scaler of the active version in the
// ledger, falling back to the configured files.
func artifacts(c cfg.Settings) (string, string) {
	store, err := storage.New(c.LedgerPath)
	if err != nil {
		log.Warn().Err(err).Msg("Ledger unavailable, using configured model files")
		return c.ModelPath(), c.ScalerPath()
	}
	defer store.Close()

	manager, err := ml.NewModelManager(store, clockwork.NewRealClock())
	if err != nil {
		log.Warn().Err(err).Msg("Model versions unavailable, using configured model files")
		return c.ModelPath(), c.ScalerPath()
	}
	if v := manager.GetCurrentVersion(); v != nil {
		log.Info().Str("version", v.Version).Msg("Using active model version")
		return v.Path, v.ScalerPath
	}
	return c.ModelPath(), c.ScalerPath()
}
