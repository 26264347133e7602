package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"signal-trainer/internal/common"
	"signal-trainer/internal/dataset"
	"signal-trainer/internal/features"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat/distuv"
)

// marketParams drives the simulated price path.
type marketParams struct {
	StartPrice    float64
	Volatility    float64
	TrendStrength float64
	MeanReversion float64
	Horizon       int
	Lookback      int
}

func main() {
	var (
		output     = flag.String("output", common.DefaultDatasetPath, "Dataset file to append to")
		samples    = flag.Int("samples", 500, "Number of samples to generate")
		seed       = flag.Uint64("seed", common.DefaultSeed, "Random seed")
		startPrice = flag.Float64("start-price", 50000, "Starting price")
		horizon    = flag.Int("horizon", 5, "Ticks ahead used to label a window")
		lookback   = flag.Int("lookback", 20, "Trades in the VWAP and tick imbalance windows")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	params := marketParams{
		StartPrice:    *startPrice,
		Volatility:    0.02,
		TrendStrength: 0.0001,
		MeanReversion: 0.05,
		Horizon:       *horizon,
		Lookback:      *lookback,
	}

	w := dataset.NewWriter(*output)
	if err := generate(w, params, *samples, *seed); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate data")
	}

	log.Info().Str("path", *output).Int("samples", w.Captured).Msg("Generated sample dataset")
}

// generate simulates a tick stream and appends one labeled window per sample.
// The label is 1 when the price Horizon ticks after the window is above the
// window's last price.
func generate(w *dataset.Writer, p marketParams, samples int, seed uint64) error {
	if samples <= 0 || p.Horizon <= 0 {
		return fmt.Errorf("%w: samples and horizon must be positive", common.ErrConfiguration)
	}

	ticks := simulate(p, samples+common.InputHeight-1+p.Horizon, seed)
	window := features.NewWindow(p.Lookback)

	written := 0
	for i, t := range ticks {
		window.Add(t)
		if !window.Ready() || i+p.Horizon >= len(ticks) {
			continue
		}

		label := 0.0
		if ticks[i+p.Horizon].Price > t.Price {
			label = 1
		}
		if err := w.Append(window.Features(), label); err != nil {
			return err
		}
		written++
		if written == samples {
			break
		}
	}
	return nil
}

// simulate produces a geometric random walk with mean reversion to a slow
// trend, plus per-tick volume and book depth. Depth leans toward the side of
// each tick's move.
func simulate(p marketParams, steps int, seed uint64) []features.Tick {
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, 0x9e37)}
	volume := distuv.Exponential{Rate: 1, Src: rand.NewPCG(seed, 0x7011)}
	depth := distuv.Uniform{Min: 0.5, Max: 1.5, Src: rand.NewPCG(seed, 0xde97)}

	ticks := make([]features.Tick, steps)
	price := p.StartPrice
	for t := range ticks {
		trend := p.StartPrice * (1 + p.TrendStrength*float64(t))
		drift := p.MeanReversion * (trend - price) / price
		shock := noise.Rand()
		price = math.Max(price*(1+drift*p.Volatility+p.Volatility*shock*0.1), 1)

		bid, ask := depth.Rand(), depth.Rand()
		if shock > 0 {
			bid += 0.5
		} else {
			ask += 0.5
		}
		ticks[t] = features.Tick{Price: price, Volume: volume.Rand(), BidDepth: bid, AskDepth: ask}
	}
	return ticks
}
