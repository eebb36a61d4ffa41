package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/ports/repository"
	"vpn-subscription-bot/internal/infra/adapters/google"
	pg "vpn-subscription-bot/internal/infra/db/postgres"
	"vpn-subscription-bot/internal/infra/logging"
	"vpn-subscription-bot/internal/infra/storage"
	"vpn-subscription-bot/internal/usecase"
)

// seed fills the pool of free configurations from the Drive folder once,
// without starting the bot.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall deadline")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.Migrate(pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	configs := pg.NewVpnConfigRepo(pool)

	free, err := configs.CountFree(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("count free configs: %v", err)
	}
	fmt.Printf("%d free configurations before sync\n", free)

	httpClient, err := google.NewHTTPClient(ctx, cfg.Google.CredentialsJSON, cfg.Google.Timeout, google.ScopeDriveReadonly)
	if err != nil {
		log.Fatalf("google client: %v", err)
	}
	store, err := storage.NewFileStore(cfg.Storage.Dir, logger)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	drive := google.NewDriveFolder(httpClient, "", cfg.Google.DriveFolderID, logger)

	res, err := usecase.NewProvisioningUseCase(drive, store, configs, logger).Sync(ctx)
	if err != nil {
		log.Fatalf("sync: %v", err)
	}
	fmt.Printf("added=%d skipped=%d failed=%d free=%d\n", res.Added, res.Skipped, res.Failed, res.Free)
}
