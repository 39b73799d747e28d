package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"medbook/internal/api"
	"medbook/internal/booking"
	"medbook/internal/calendar"
	"medbook/internal/clock"
	"medbook/internal/config"
	"medbook/internal/database"
	"medbook/internal/domain"
	"medbook/internal/events"
	"medbook/internal/export"
	"medbook/internal/google"
	"medbook/internal/logging"
	"medbook/internal/metrics"
	"medbook/internal/notify"
	"medbook/internal/payment"
	"medbook/internal/repository"
	"medbook/internal/schedule"
	"medbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	templates, err := loadSchedules(logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка инициализации базы данных")
		return err
	}
	defer db.Close()

	if counts, err := db.CountByStatus(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("Failed to read ledger status counts")
	} else {
		logger.Info().Interface("by_status", counts).Msg("Ledger loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	cache := initCache(ctx, cfg, logger)
	bus := events.NewEventBus()
	clk := clock.NewSystem()
	gateway := payment.NewReferenceGateway(logger)
	notifier := initNotifier(cfg, logger)

	syncWorker := initSheetsSync(ctx, cfg, db, logger)

	holds := booking.NewHoldManager(db, templates, cache, bus, clk, cfg.Booking, logger)
	resolver := booking.NewResolver(db, templates, cache, bus, gateway, notifier, syncWorker, clk, cfg.Booking, logger)
	builder := calendar.NewBuilder(db, templates, cache, clk, logger)
	exporter := export.NewScheduleExporter(db, templates, clk, cfg.Exports.Path, logger)

	reconciler := worker.NewReconciler(holds, cfg.Booking.ReconcileInterval(), logger)
	go reconciler.Start(ctx)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logger)
		go backupService.Start(ctx)
	}

	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort, logger)
	}

	apiServer := api.NewHTTPServer(cfg.API, api.Deps{
		Holds:    holds,
		Resolver: resolver,
		Calendar: builder,
		Ledger:   db,
		Exporter: exporter,
	}, logger)

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error().Err(err).Msg("API server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API shutdown error")
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()
	return cfg, &logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
			return err
		}
	}
	return nil
}

func loadSchedules(logger *zerolog.Logger) (*schedule.TemplateStore, error) {
	schedulesPath := os.Getenv("SCHEDULES_PATH")
	if schedulesPath == "" {
		schedulesPath = "configs/schedules.yaml"
	}

	schedules, err := config.LoadSchedules(schedulesPath)
	if err != nil {
		logger.Error().Err(err).Msgf("Ошибка чтения %s", schedulesPath)
		return nil, err
	}

	templates, err := schedule.NewTemplateStore(schedules)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка построения расписаний")
		return nil, err
	}

	logger.Info().Int("doctors", len(templates.DoctorIDs())).Msg("Schedules loaded")
	return templates, nil
}

// initCache собирает кэш дневных видов: redis как основной, память как
// запасной. Без адреса redis остаётся только память.
func initCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.CalendarCache {
	memory := repository.NewMemoryCalendarCache(cfg.Booking.DayViewCacheTTL())
	if cfg.Redis.Address == "" {
		logger.Info().Msg("Redis is not configured, using in-memory calendar cache")
		return memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable")
	}

	primary := repository.NewRedisCalendarCache(client, cfg.Booking.DayViewCacheTTL())
	return repository.NewFailoverCalendarCache(primary, memory, logger)
}

func initSheetsSync(ctx context.Context, cfg *config.Config, db *database.DB, logger *zerolog.Logger) domain.SyncWorker {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ReservationsSpreadsheetID == "" {
		logger.Info().Msg("Google Sheets mirror is not configured")
		return nil
	}

	sheetsSvc, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.ReservationsSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Google Sheets service")
		return nil
	}

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	syncWorker := worker.NewSyncWorker(db, sheetsSvc, retryPolicy, logger)
	go syncWorker.Start(ctx)

	logger.Info().Msg("Google Sheets sync worker started")
	return syncWorker
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Notifications.TelegramToken == "" || cfg.Notifications.ChatID == 0 {
		logger.Info().Msg("Telegram notifications are not configured")
		return nil
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Notifications, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize Telegram notifier")
		return nil
	}
	return notifier
}

func startMetricsServer(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("Metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics server error")
	}
}
