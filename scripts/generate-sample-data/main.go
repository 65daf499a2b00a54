package main

import (
	"flag"
	"math"
	"math/rand"

	"gmi-rain/internal/cli"
	"gmi-rain/internal/common"
	"gmi-rain/internal/trainset"

	"github.com/rs/zerolog/log"
)

// Clear-sky sea background per channel (K) and the response to rain:
// low frequencies warm up from liquid emission, high frequencies cool down
// from ice scattering.
var (
	background = [common.ChannelCount]float64{
		170, 95, 195, 125, 225, 215, 150, 255, 210, 270, 265, 255, 262,
	}
	emission = [common.ChannelCount]float64{
		6, 14, 9, 18, 7, 8, 14, 2, 4, -4, -4, -3, -3,
	}
	scattering = [common.ChannelCount]float64{
		0, 0, 0, 0, 0, -1, -1, -12, -10, -22, -21, -14, -18,
	}
)

func main() {
	var (
		logLevel = flag.String("log-level", "info", "Log level: debug, info, warn, error")
		output   = flag.String("output", "data/sample_trainset.nc", "Training-set file to write")
		count    = flag.Int("n", 20000, "Number of examples")
		seed     = flag.Int64("seed", 7, "Random seed")
		noise    = flag.Float64("noise", 1.5, "Instrument noise (K)")
		bad      = flag.Float64("bad", 0.01, "Fraction of examples with an invalid label or TB")
	)
	flag.Parse()
	cli.SetupLogging(*logLevel)

	set := generate(*count, *seed, *noise, *bad)
	if err := trainset.Write(*output, set); err != nil {
		log.Fatal().Err(err).Msg("Failed to write sample training set")
	}
	log.Info().Str("path", *output).Int("examples", set.Len()).Msg("Sample training set written")
}

// generate draws rain rates from a lognormal and maps them to brightness
// temperatures with saturating emission and scattering terms.
func generate(n int, seed int64, noise, bad float64) *trainset.Set {
	rng := rand.New(rand.NewSource(seed))
	set := &trainset.Set{X: make([][]float64, n), Y: make([]float64, n)}

	for i := 0; i < n; i++ {
		rr := math.Exp(rng.NormFloat64()*1.1 - 0.3)
		em := 1 - math.Exp(-rr/4)
		sc := math.Log1p(rr / 2)

		row := make([]float64, common.ChannelCount)
		for ch := range row {
			row[ch] = background[ch] + emission[ch]*em*4 + scattering[ch]*sc + rng.NormFloat64()*noise
		}

		if rng.Float64() < bad {
			switch rng.Intn(3) {
			case 0:
				rr = 0
			case 1:
				rr = math.NaN()
			default:
				row[rng.Intn(common.ChannelCount)] = common.MissingValue
			}
		}
		set.X[i], set.Y[i] = row, rr
	}
	return set
}
