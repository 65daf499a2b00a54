package main

import (
	"flag"

	"gmi-rain/internal/cfg"
	"gmi-rain/internal/cli"
	"gmi-rain/internal/common"
	"gmi-rain/internal/render"
	"gmi-rain/internal/swath"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		tbPath   = flag.String("tb", "", "GMI 1C granule (default: TB_FILE in the data directory)")
		rrPath   = flag.String("precip", "", "GPROF 2A granule (default: PRECIP_FILE in the data directory)")
		each     = flag.Bool("each", false, "Also write one map per channel")
		skipRain = flag.Bool("no-precip", false, "Skip the GPROF surface precipitation map")
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

	r := render.NewMapRenderer(m.Wrapper)
	tb, err := swath.ReadTB(*tbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read brightness temperatures")
	}

	fields := make([]*render.Field, common.ChannelCount)
	for ch := range fields {
		values, err := tb.Channel(ch)
		if err != nil {
			log.Fatal().Err(err).Int("channel", ch).Msg("Failed to extract channel")
		}
		f, err := render.NewField(tb.Scans, tb.Pixels, values, tb.Lat, tb.Lon)
		if err != nil {
			log.Fatal().Err(err).Int("channel", ch).Msg("Bad channel grid")
		}
		fields[ch] = &f
	}

	for _, group := range []struct {
		title  string
		panels []int
	}{
		{"GMI brightness temperatures V", common.VerticalPanels},
		{"GMI brightness temperatures H", common.HorizontalPanels},
	} {
		panels := make([]render.Panel, len(group.panels))
		for i, ch := range group.panels {
			if ch < 0 {
				continue
			}
			panels[i] = render.Panel{Title: common.ChannelNames[ch], Field: fields[ch]}
		}
		if err := r.Grid(panels, 3, tbOptions(c, group.title)); err != nil {
			log.Fatal().Err(err).Str("figure", group.title).Msg("Failed to render channel grid")
		}
	}

	if *each {
		for ch, f := range fields {
			if err := r.Render(*f, tbOptions(c, common.ChannelNames[ch])); err != nil {
				log.Fatal().Err(err).Int("channel", ch).Msg("Failed to render channel map")
			}
		}
	}

	if *skipRain {
		return
	}
	precip, err := swath.ReadPrecip(*rrPath)
	if err != nil {
		m.Flush()
		log.Fatal().Err(err).Msg("Failed to read precipitation")
	}
	f, err := render.NewField(precip.Scans, precip.Pixels, precip.Rain, precip.Lat, precip.Lon)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad precipitation grid")
	}
	opts := render.Options{
		BBox:      c.BBox,
		Range:     c.RRColorRange,
		Title:     "GPROF surface precipitation",
		Label:     "Rain rate (mm/h)",
		Dir:       c.FiguresPath,
		DPI:       c.DPI,
		Coastline: c.CoastlineFile,
		ColorMap:  render.RainColorMap(),
	}
	if err := r.Render(f, opts); err != nil {
		log.Fatal().Err(err).Msg("Failed to render precipitation map")
	}
	log.Info().Str("dir", c.FiguresPath).Str("granule", c.TBFile).Msg("Maps written")
}

func tbOptions(c cfg.Settings, title string) render.Options {
	return render.Options{
		BBox:      c.BBox,
		Range:     c.TBColorRange,
		Title:     title,
		Label:     "Brightness temperature (K)",
		Dir:       c.FiguresPath,
		DPI:       c.DPI,
		Coastline: c.CoastlineFile,
		ColorMap:  render.TBColorMap(),
	}
}
