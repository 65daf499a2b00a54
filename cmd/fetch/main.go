package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"gmi-rain/internal/cli"
	"gmi-rain/internal/fetch"

	"github.com/rs/zerolog/log"
)

func main() {
	var (
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		dir      = flag.String("dir", "", "Download directory (overrides DATA_PATH)")
	)
	flag.Parse()
	cli.SetupLogging(*logLevel)

	c := cli.LoadSettings()
	m := cli.NewMetrics(c.MetricsTextfile)
	defer m.Flush()

	if *dir != "" {
		c.DataPath = *dir
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	urls := c.URLs()
	if flag.NArg() > 0 {
		urls = flag.Args()
	}

	outcomes, err := fetch.New(c.HTTPTimeout, m.Wrapper).Fetch(ctx, urls, c.DataPath)
	for _, o := range outcomes {
		log.Debug().Str("url", o.URL).Str("result", o.Result).Msg("Fetch outcome")
	}
	if err != nil {
		m.Flush()
		log.Fatal().Err(err).Msg("Download failed")
	}
	log.Info().Int("files", len(outcomes)).Str("dir", c.DataPath).Msg("All inputs present")
}
