// Command seed mints a batch of license codes and prints them, one per line.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"telegram-license-server/internal/config"
	"telegram-license-server/internal/infra/db"
	"telegram-license-server/internal/infra/db/store"
	"telegram-license-server/internal/infra/logging"
	"telegram-license-server/internal/usecase"
)

var (
	count     = flag.Int("count", 10, "number of codes to mint")
	days      = flag.Int("days", 30, "license length in days")
	developer = flag.Bool("developer", false, "mint perpetual developer codes")
)

func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	// Codes go to stdout, logs to stderr.
	logger := logging.NewWithWriter(os.Stderr, cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer pool.Close()

	tm := db.NewTxManager(pool, cfg.Database.RetryAttempts, cfg.Database.RetryDelay, logger)
	schema := store.SchemaOptions{
		Settings:      usecase.DefaultSettings(cfg.License.SoftwareURL, cfg.License.ManualContact),
		PartnerAdmins: cfg.Bot.PartnerIDs,
	}
	if err := store.InitSchema(ctx, tm, pool.Dialect(), schema, logger); err != nil {
		logger.Fatal().Err(err).Msg("init schema")
	}

	s := store.New(pool, nil, cfg.Redis.TTL, logger)
	licenses := usecase.NewLicenseUseCase(s.Codes, s.Activations, s.Payments, s.Users, s.PendingUsers, s.PendingAssign, tm, logger)

	codes, err := licenses.CreateCodesBatch(ctx, *count, *days, *developer)
	if err != nil {
		logger.Fatal().Err(err).Int("count", *count).Int("days", *days).Msg("mint codes")
	}
	for _, c := range codes {
		fmt.Println(c.Code)
	}
	logger.Info().Int("minted", len(codes)).Bool("developer", *developer).Msg("seeding complete")
}
