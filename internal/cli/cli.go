// Package cli holds the start-up plumbing shared by the commands: logging,
// settings and the metrics registry that batch jobs flush on exit.
package cli

import (
	"os"

	"gmi-rain/internal/cfg"
	"gmi-rain/internal/metrics"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogging points the global logger at stderr with the console writer.
// Unknown levels fall back to info.
func SetupLogging(logLevel string) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// LoadSettings reads an optional .env file and then the configuration.
func LoadSettings() cfg.Settings {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to read .env file")
	}
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	return c
}

// Metrics is a private registry plus the wrapper handed to components.
type Metrics struct {
	Registry *prometheus.Registry
	Wrapper  *metrics.MetricsWrapper
	textfile string
}

func NewMetrics(textfile string) *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		Registry: reg,
		Wrapper:  metrics.NewWrapper(metrics.NewWithRegistry(reg)),
		textfile: textfile,
	}
}

// Flush writes the registry to the configured node-exporter textfile.
func (m *Metrics) Flush() {
	if err := metrics.WriteTextfile(m.textfile, m.Registry); err != nil {
		log.Warn().Err(err).Msg("Metrics not exported")
	}
}
