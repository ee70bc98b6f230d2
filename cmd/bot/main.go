package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // Timezone database for minimal container images

	"cycle_reminder_bot/internal/app"
	"cycle_reminder_bot/internal/infra/config"
	idb "cycle_reminder_bot/internal/infra/database"
	"cycle_reminder_bot/internal/infra/logger"
	"cycle_reminder_bot/internal/infra/metrics"
	"cycle_reminder_bot/internal/infra/scheduler"
	"cycle_reminder_bot/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("Could not load application configuration")
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"db_driver":   cfg.DatabaseDriver,
		"admin_id":    cfg.AdminTelegramID,
	}).Info("Cycle reminder bot starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	applied, err := idb.Migrate(ctx, db, cfg.DatabaseDriver)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database migrations")
	}
	mainLogger.WithField("applied", applied).Info("Database ready")

	// Initialize Repositories
	userRepo := idb.NewUserRepository(db)
	cycleRepo := idb.NewCycleRepository(db)
	notificationRepo := idb.NewNotificationRepository(db)
	jobRepo := idb.NewJobRepository(db)

	// Initialize Telegram Bot
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: cfg.TelegramPollTimeout},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := logger.Component("telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Unhandled bot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}
	telegramClient := telegram.NewTelebotAdapter(bot, logger.Component("telegram_client"),
		telegram.WithMaxFloodRetries(cfg.SendMaxRetries))

	collector := metrics.NewCollector()

	// Initialize Scheduler
	deliveryService := app.NewDeliveryService(userRepo, cycleRepo, notificationRepo, telegramClient, logger.Component("delivery"))
	notifScheduler := scheduler.NewNotificationScheduler(
		jobRepo,
		notificationRepo,
		deliveryService,
		logger.Component("scheduler"),
		scheduler.WithMisfireGrace(cfg.MisfireGrace),
		scheduler.WithRecorder(collector),
	)
	if err := notifScheduler.Init(ctx); err != nil {
		mainLogger.WithError(err).Fatal("Could not restore scheduled notifications")
	}

	// Initialize Services
	cycleService := app.NewCycleService(
		userRepo,
		cycleRepo,
		notificationRepo,
		notificationRepo,
		notifScheduler,
		logger.Component("cycle_service"),
		app.WithHistoryWindow(cfg.HistoryWindow),
		app.WithDefaultTimezone(cfg.DefaultTimezone),
		app.WithLogRetention(cfg.LogRetentionDays),
	)
	adminService := app.NewAdminService(userRepo, jobRepo, notificationRepo, cfg.AdminTelegramID)

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		mainLogger.WithError(err).Fatal("Invalid default timezone")
	}
	maintenance := scheduler.NewMaintenance(cycleService, notifScheduler, collector, logger.Component("maintenance"), cfg.CronSpecMaintenance, loc)
	if err := maintenance.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start maintenance scheduler")
	}

	var opsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		opsServer = metrics.NewServer(cfg.MetricsAddr, collector, db, logger.Component("ops_http"))
		opsServer.Start()
	}

	// Register Handlers
	handlerLogger := logger.Component("telegram_handlers")
	telegram.RegisterBotCommands(ctx, bot, cycleService, handlerLogger)
	telegram.RegisterResponseHandlers(ctx, bot, cycleService, handlerLogger)
	telegram.RegisterAdminHandlers(ctx, bot, adminService, cfg.AdminTelegramID, handlerLogger)

	mainLogger.Info("Application setup complete. Bot is starting...")

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()

	<-ctx.Done() // Block until a signal is received

	mainLogger.Info("Shutting down application...")
	bot.Stop()
	maintenance.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := notifScheduler.Teardown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("Scheduler did not stop cleanly")
	}
	if opsServer != nil {
		if err := opsServer.Shutdown(shutdownCtx); err != nil {
			mainLogger.WithError(err).Warn("Ops HTTP server did not stop cleanly")
		}
	}
	mainLogger.Info("Application shut down gracefully.")
}
