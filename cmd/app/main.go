package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/application"
	"vpn-subscription-bot/internal/config"
	"vpn-subscription-bot/internal/domain/ports/adapter"
	"vpn-subscription-bot/internal/infra/adapters/google"
	"vpn-subscription-bot/internal/infra/adapters/payment"
	tele "vpn-subscription-bot/internal/infra/adapters/telegram"
	"vpn-subscription-bot/internal/infra/adapters/wgeasy"
	"vpn-subscription-bot/internal/infra/api"
	"vpn-subscription-bot/internal/infra/api/apiv1"
	pg "vpn-subscription-bot/internal/infra/db/postgres"
	"vpn-subscription-bot/internal/infra/i18n"
	"vpn-subscription-bot/internal/infra/logging"
	"vpn-subscription-bot/internal/infra/metrics"
	red "vpn-subscription-bot/internal/infra/redis"
	"vpn-subscription-bot/internal/infra/sched"
	"vpn-subscription-bot/internal/infra/scheduler"
	"vpn-subscription-bot/internal/infra/security"
	"vpn-subscription-bot/internal/infra/storage"
	"vpn-subscription-bot/internal/infra/worker"
	"vpn-subscription-bot/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

// outboundBot is what main needs from either bot implementation.
type outboundBot interface {
	adapter.TelegramBotAdapter
	payment.Sender
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, verbose output")
	dryRun := flag.Bool("dry-run", false, "do not connect to Telegram; log outgoing messages")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, *dryRun, logger); err != nil {
		logger.Fatal().Err(err).Msg("bot stopped")
	}
}

func run(cfg *config.Config, dryRun bool, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Bool("dry_run", dryRun).Msg("starting")

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if err := pg.Migrate(pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)
	sessions := red.NewSessionRepo(redisClient)
	reminders := red.NewReminderQueue(redisClient)
	instructionCache := red.NewInstructionCache(redisClient)

	// ---- Repositories ----
	var cipher pg.FieldCipher
	if cfg.Security.EncryptionKey != "" {
		cc, err := security.NewContactCipher(cfg.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("contact cipher: %w", err)
		}
		cipher = cc
	} else {
		logger.Warn().Msg("security.encryption_key is empty; contacts are stored in plaintext")
	}
	userRepo := pg.NewUserRepo(pool, cipher)
	configRepo := pg.NewVpnConfigRepo(pool)
	invoiceRepo := pg.NewInvoiceRepo(pool)
	txManager := pg.NewTxManager(pool)

	translator, err := i18n.NewTranslator(i18n.LocalesFS, "ru")
	if err != nil {
		return fmt.Errorf("i18n: %w", err)
	}

	// ---- Telegram ----
	var (
		bot     outboundBot
		realBot *tele.RealTelegramBotAdapter
	)
	if dryRun {
		bot = tele.NewNoopBotAdapter(logger)
	} else {
		realBot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, locker, rateLimiter, translator, cfg.Session.LockTTL, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot = realBot
	}

	notifyPool := worker.NewPool("notifications", 4, logger)
	notifyPool.Start(ctx)
	defer notifyPool.Stop()

	alerts := tele.NewOperatorChannel(bot, cfg.Operator.ChannelID, notifyPool, cfg.Operator.RatePerSecond, logger)
	gateway, err := payment.NewTelegramInvoiceGateway(bot, cfg.Payment, logger)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	// ---- Google ----
	driveHTTP, err := google.NewHTTPClient(ctx, cfg.Google.CredentialsJSON, cfg.Google.Timeout, google.ScopeDriveReadonly)
	if err != nil {
		return fmt.Errorf("google drive client: %w", err)
	}
	sheetsHTTP, err := google.NewHTTPClient(ctx, cfg.Google.CredentialsJSON, cfg.Google.Timeout, google.ScopeSheetsReadonly)
	if err != nil {
		return fmt.Errorf("google sheets client: %w", err)
	}
	drive := google.NewDriveFolder(driveHTTP, "", cfg.Google.DriveFolderID, logger)
	sheet := google.NewSheetInstructions(sheetsHTTP, "", cfg.Google.SheetID, cfg.Google.SheetRange, logger)

	fileStore, err := storage.NewFileStore(cfg.Storage.Dir, logger)
	if err != nil {
		return err
	}

	// nil keeps peers untouched on expiry
	var vpn adapter.VPNServer
	if cfg.VPNServer.URL != "" {
		wg, err := wgeasy.NewClient(cfg.VPNServer.URL, cfg.VPNServer.Password, cfg.VPNServer.Timeout, logger)
		if err != nil {
			return fmt.Errorf("wg-easy: %w", err)
		}
		vpn = wg
	}

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, configRepo, txManager, cfg.Bot.Username, logger)
	purchaseUC := usecase.NewPurchaseUseCase(userRepo, configRepo, invoiceRepo, sessions, txManager, gateway, alerts, translator,
		usecase.PurchaseOptions{IdleTimeout: cfg.Session.IdleTimeout, Currency: cfg.Payment.Currency}, logger)
	deliveryUC := usecase.NewDeliveryUseCase(fileStore, bot, logger)
	helpUC := usecase.NewHelpUseCase(sheet, instructionCache, cfg.Redis.TTL, logger)
	statsUC := usecase.NewStatsUseCase(userRepo, configRepo, invoiceRepo, logger)
	provisioningUC := usecase.NewProvisioningUseCase(drive, fileStore, configRepo, logger)
	notificationUC := usecase.NewNotificationUseCase(bot, notifyPool, 0, logger)
	maintenanceUC := usecase.NewMaintenanceUseCase(userRepo, configRepo, sessions, reminders,
		drive, vpn, notificationUC, alerts, bot, translator, logger)

	facade := application.NewBotFacade(userUC, purchaseUC, deliveryUC, helpUC, statsUC, provisioningUC, bot, translator,
		application.FacadeOptions{SupportURL: cfg.Bot.SupportURL, AdminIDs: cfg.Bot.AdminIDs}, logger)

	// ---- Scheduler ----
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("scheduler timezone: %w", err)
	}
	decrementAt, err := dailyClock(cfg.Scheduler.DecrementAt, loc)
	if err != nil {
		return fmt.Errorf("scheduler.decrement_at: %w", err)
	}
	scanAt, err := dailyClock(cfg.Scheduler.ExpiryCheckAt, loc)
	if err != nil {
		return fmt.Errorf("scheduler.expiry_check_at: %w", err)
	}
	jobs := scheduler.NewScheduler(logger)
	jobs.Add(sched.NewExpiryWorker(maintenanceUC, decrementAt, scanAt, logger).Jobs()...)
	jobs.Add(
		sched.NewNotificationWorker(cfg.Scheduler.ReminderInterval, maintenanceUC, logger).Job(),
		sched.NewSessionSweeper(cfg.Scheduler.SweepInterval, maintenanceUC, logger).Job(),
		sched.NewConfigFeed(cfg.Scheduler.FeedInterval, provisioningUC, logger).Job(),
		postgresPoolJob(pool),
	)
	jobs.Start(ctx)
	defer jobs.Stop()

	// ---- Admin HTTP ----
	var httpSrv *api.Server
	if cfg.Admin.Port > 0 {
		var v1 *apiv1.Server
		var auth *api.AuthManager
		if cfg.Admin.JWTSecret != "" {
			auth, err = api.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.PasswordHash, cfg.Admin.TokenTTL)
			if err != nil {
				return fmt.Errorf("admin auth: %w", err)
			}
			v1 = apiv1.NewServer(statsUC, userUC, provisioningUC, auth, logger)
		} else {
			logger.Warn().Msg("admin.jwt_secret is empty; admin api disabled, serving health and metrics only")
		}
		httpSrv = api.NewServer(cfg.Admin.Port, api.NewRouter(v1, auth, logger), logger)
		httpSrv.Start()
	}

	// ---- Polling ----
	if realBot != nil {
		realBot.SetFacade(facade)
		go func() {
			if err := realBot.StartPolling(ctx); err != nil {
				logger.Error().Err(err).Msg("telegram polling stopped")
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	if realBot != nil {
		realBot.StopPolling()
	}
	if httpSrv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shCtx); err != nil {
			logger.Error().Err(err).Msg("admin http shutdown")
		}
	}
	return nil
}

func dailyClock(s string, loc *time.Location) (sched.DailyClock, error) {
	h, m, err := config.ParseClock(s)
	if err != nil {
		return sched.DailyClock{}, err
	}
	return sched.DailyClock{Hour: h, Minute: m, Loc: loc}, nil
}

func postgresPoolJob(pool *pgxpool.Pool) scheduler.Job {
	return scheduler.Job{
		Name:       "postgres_pool_stats",
		Trigger:    scheduler.Every{Interval: 30 * time.Second},
		RunAtStart: true,
		Fn: func(context.Context) error {
			st := pool.Stat()
			metrics.SetPostgresConnections(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			return nil
		},
	}
}
