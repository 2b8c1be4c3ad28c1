// Command api serves the submission and retrieval endpoints. With APP_ROLE=all
// (the default) it also runs the ETL consumer in the same process.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/trivia-pipeline/internal/app"
	"github.com/gokatarajesh/trivia-pipeline/internal/config"
)

func main() {
	role := flag.String("role", "", "Override APP_ROLE: api or all")
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load("configs/.env"); err != nil {
			log.Warn().Err(err).Msg("could not load .env file")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	switch *role {
	case "":
	case config.RoleAPI, config.RoleAll:
		cfg.Role = *role
	default:
		log.Fatal().Str("role", *role).Msg("api binary runs the api or all role; use cmd/etl for the consumer alone")
	}

	appCtx := context.Background()
	instance, err := app.New(appCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build app")
	}

	if err := instance.Run(appCtx); err != nil {
		log.Fatal().Err(err).Msg("runtime error")
	}
}
