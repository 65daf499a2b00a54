package main

import (
	"flag"

	"gmi-rain/internal/cli"
	"gmi-rain/internal/common"
	"gmi-rain/internal/swath"
	"gmi-rain/internal/trainset"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		tbPath   = flag.String("tb", "", "GMI 1C granule (default: TB_FILE in the data directory)")
		rrPath   = flag.String("precip", "", "GPROF 2A granule (default: PRECIP_FILE in the data directory)")
		output   = flag.String("output", "", "Training-set file to write (default: TRAINING_SET_FILE in the data directory)")
		noBox    = flag.Bool("no-bbox", false, "Keep raining pixels from the whole swath")
	)
	flag.Parse()
	cli.SetupLogging(*logLevel)

	c := cli.LoadSettings()
	m := cli.NewMetrics(c.MetricsTextfile)
	defer m.Flush()

	if *tbPath == "" {
		*tbPath = c.DataFile(c.TBFile)
	}
	if *rrPath == "" {
		*rrPath = c.DataFile(c.PrecipFile)
	}
	if *output == "" {
		*output = c.DataFile(c.TrainingSetFile)
	}
	box := c.BBox
	if *noBox {
		box = common.BBox{}
	}

	tb, err := swath.ReadTB(*tbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read brightness temperatures")
	}
	precip, err := swath.ReadPrecip(*rrPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read precipitation")
	}

	paired, err := trainset.Pair(tb, precip, box)
	if err != nil {
		log.Fatal().Err(err).Msg("Swaths do not line up")
	}
	set, stats := trainset.Clean(paired)
	m.Wrapper.ExamplesObserve(stats.Loaded, stats.Filtered())

	if err := trainset.Write(*output, set); err != nil {
		m.Flush()
		log.Fatal().Err(err).Msg("Failed to write training set")
	}
	log.Info().Str("path", *output).Int("examples", set.Len()).Msg("Training set ready")
}
