// Command seeder imports questions from an upstream trivia API and submits them
// through the regular submission queue. It exits non-zero when the broker is
// unreachable or the import stops early.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/trivia-pipeline/internal/app"
	"github.com/gokatarajesh/trivia-pipeline/internal/config"
	"github.com/gokatarajesh/trivia-pipeline/internal/importer"
	"github.com/gokatarajesh/trivia-pipeline/internal/logging"
)

type options struct {
	source   string
	amount   int
	category string
	wait     time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.source, "source", "opentdb", "Upstream API: opentdb or triviaapi")
	flag.IntVar(&opts.amount, "amount", 10, "Number of questions to fetch")
	flag.StringVar(&opts.category, "category", "", "Upstream category filter (OpenTDB numeric id or Trivia API slug)")
	flag.DurationVar(&opts.wait, "broker-wait", 30*time.Second, "How long to wait for the broker connection")
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load("configs/.env"); err != nil {
			log.Warn().Err(err).Msg("could not load .env file")
		}
	}

	// run returns before exiting so its deferred shutdown always completes.
	if err := run(context.Background(), opts); err != nil {
		log.Error().Err(err).Msg("seeding failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Role = config.RoleAPI
	cfg.Feed.Enabled = false
	cfg.Import.Interval = 0

	instance, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer instance.Shutdown()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	instance.Start(runCtx)

	waitCtx, waitCancel := context.WithTimeout(runCtx, opts.wait)
	defer waitCancel()
	if err := instance.WaitBrokerReady(waitCtx); err != nil {
		return fmt.Errorf("broker not reachable within %s: %w", opts.wait, err)
	}

	logger := logging.New(cfg.Name, cfg.Env, "seeder", cfg.LogLevel)
	im := app.NewImporter(cfg, instance.Service, nil, logger)
	res, err := im.Import(runCtx, importer.Request{Source: opts.source, Amount: opts.amount, Category: opts.category})

	log.Info().
		Int("fetched", res.Fetched).
		Int("submitted", res.Submitted).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("seeding finished")

	return importOutcome(res, err)
}

var errPartialImport = errors.New("some questions could not be submitted")

// importOutcome turns an import result into the command's exit status.
// Skipped items were rejected upstream data and do not fail the run.
func importOutcome(res importer.Result, err error) error {
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if res.Failed > 0 {
		return fmt.Errorf("%w: %d of %d", errPartialImport, res.Failed, res.Fetched)
	}
	return nil
}
