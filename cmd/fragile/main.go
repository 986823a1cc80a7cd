// Command fragile runs a single swarm against one of the bundled reference
// environments and prints the best-so-far record at the end of the run. If
// --http is set it also serves a websocket feed of per-epoch snapshots
// (see internal/telemetry) so a client can watch the run live.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/verboid/fragile/internal/callback"
	"github.com/verboid/fragile/internal/environment"
	"github.com/verboid/fragile/internal/policy"
	"github.com/verboid/fragile/internal/swarm"
	"github.com/verboid/fragile/internal/telemetry"
	"github.com/verboid/fragile/internal/walker"
)

var track = []string{
	"WWWWW",
	"Wo+oW",
	"Wo-oW",
	"WWWWW",
}

func main() {
	app := &cli.App{
		Name:  "fragile",
		Usage: "run a fractal Monte-Carlo swarm against a reference environment",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env", Value: "bandit", Usage: "bandit | gridwalk | rastrigin"},
			&cli.IntFlag{Name: "n", Value: 32, Usage: "number of walkers"},
			&cli.IntFlag{Name: "max-epochs", Value: 200},
			&cli.Float64Flag{Name: "reward-scale", Value: 1},
			&cli.Float64Flag{Name: "dist-scale", Value: 1},
			&cli.BoolFlag{Name: "novelty-critic", Usage: "attach a NoveltyCritic to run in entropy mode"},
			&cli.BoolFlag{Name: "minimize", Usage: "treat lower cumulative reward as better"},
			&cli.StringFlag{Name: "http", Usage: "address to serve live telemetry on, e.g. :8080 (disabled if empty)"},
			&cli.IntFlag{Name: "early-stop-patience", Usage: "stop once best reward hasn't improved for this many epochs (0 disables)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	env, pol, err := buildEnv(c.String("env"), c.Int("max-epochs"), rng)
	if err != nil {
		return err
	}

	cfg := walker.Config{
		RewardScale: c.Float64("reward-scale"),
		DistScale:   c.Float64("dist-scale"),
		Minimize:    c.Bool("minimize"),
	}
	if c.Bool("novelty-critic") {
		cfg.Critic = walker.NewNoveltyCritic()
	}
	eng := walker.NewEngine(cfg, rng)

	var cbs []callback.Callback
	if patience := c.Int("early-stop-patience"); patience > 0 {
		es := callback.NewEarlyStop(patience)
		es.Minimize = c.Bool("minimize")
		cbs = append(cbs, es)
	}

	var hub *telemetry.Hub
	if addr := c.String("http"); addr != "" {
		hub = telemetry.NewHub(log.Default())
		cbs = append(cbs, telemetry.NewPushCallback(hub))

		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		go func() {
			log.Printf("fragile: telemetry listening on %s/ws", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("fragile: telemetry server stopped: %v", err)
			}
		}()
	}
	reg := callback.NewRegistry(cbs...)

	sw := swarm.New(c.Int("n"), env, swarm.Direct{Env: env}, pol, eng, reg, swarm.Options{
		MaxEpochs:         c.Int("max-epochs"),
		AccumulateRewards: true,
		Minimize:          c.Bool("minimize"),
	}, nil)

	epochs, err := sw.Run(context.Background())
	if err != nil {
		return err
	}

	best := sw.Best()
	fmt.Printf("ran %d epochs, best reward %.4f, best state %v\n", epochs, best.Reward, best.State)
	if hub != nil {
		hub.Close()
	}
	return nil
}

func buildEnv(name string, maxEpochs int, rng *rand.Rand) (environment.Environment, policy.Policy, error) {
	switch name {
	case "bandit":
		return environment.NewTwoArmBandit(maxEpochs), policy.NewDiscrete(2, rng), nil
	case "gridwalk":
		env := environment.NewGridWalk(track)
		pol, err := policy.NewBinarySwap(1, rng)
		return env, pol, err
	case "rastrigin":
		env := environment.NewRastrigin(2, 5.12)
		pol, err := policy.NewContinuous([]float64{-5.12, -5.12}, []float64{5.12, 5.12}, 0.5, true, rng)
		return env, pol, err
	default:
		return nil, nil, fmt.Errorf("fragile: unknown env %q", name)
	}
}
