package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/api"
	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/availability"
	"github.com/dentalcare/slot-booking/internal/config"
	"github.com/dentalcare/slot-booking/internal/db"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/logging"
	"github.com/dentalcare/slot-booking/internal/metrics"
	redisclient "github.com/dentalcare/slot-booking/internal/redis"
	"github.com/dentalcare/slot-booking/internal/reservation"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "prod")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "api-server").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("clinic_tz", cfg.ClinicLocation.String()).
		Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	var rdb *redis.Client
	if cfg.RedisEnabled() {
		rdb, err = redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		switch {
		case err == nil:
			logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
			defer func() {
				if err := rdb.Close(); err != nil {
					logger.Warn().Err(err).Msg("error closing redis")
				}
			}()
		case cfg.DentistCacheBackend == config.CacheBackendRedis:
			logger.Fatal().Err(err).Msg("redis connection error")
		default:
			// Redis only carries the event stream here; booking keeps working without it.
			logger.Warn().Err(err).Msg("redis unavailable, booking events will not be published")
			rdb = nil
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(reg)

	dentistSvc := dentist.NewService(dentist.NewPgRepository(pgPool), newProfileCache(cfg, rdb, logger), logger)

	apptRepo := appointment.NewPgRepository(pgPool)

	reservationSvc := reservation.NewService(
		reservation.NewPgRepository(pgPool),
		availability.NewOccupancy(apptRepo, cfg.ClinicLocation),
		cfg.ReservationTTL,
		logger,
	).WithMetrics(bookingMetrics)

	engine := availability.NewEngine(dentistSvc, apptRepo, reservationSvc, cfg.ClinicLocation, logger)
	finder := availability.NewFinder(engine, cfg.AlternativeSearchDays)

	apptSvc := appointment.NewService(apptRepo, dentistSvc, finder, reservationSvc, appointment.Settings{
		Location:           cfg.ClinicLocation,
		CancellationCutoff: cfg.CancellationCutoff,
		AlternativeCount:   cfg.AlternativeSlotCount,
	}, logger).WithMetrics(bookingMetrics)
	if rdb != nil {
		apptSvc = apptSvc.WithPublisher(redisclient.NewEventPublisher(rdb, cfg.EventsChannel))
	}

	router := api.NewRouter(api.RouterConfig{
		Appointments:     apptSvc,
		Reservations:     reservationSvc,
		Availability:     engine,
		Alternatives:     finder,
		Dentists:         dentistSvc,
		PgPool:           pgPool,
		Redis:            rdb,
		Metrics:          bookingMetrics,
		Gatherer:         reg,
		Logger:           logger,
		AlternativeCount: cfg.AlternativeSlotCount,
		Env:              cfg.Env,
		Version:          version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
			shutdown(srv, cfg.ShutdownTimeout, logger)
			os.Exit(1)
		}
	}

	shutdown(srv, cfg.ShutdownTimeout, logger)
	logger.Info().Msg("api-server stopped")
}

// newProfileCache picks the dentist profile cache backend. Redis is used only
// when selected and connected.
func newProfileCache(cfg config.Config, rdb *redis.Client, logger zerolog.Logger) dentist.Cache {
	if cfg.DentistCacheBackend == config.CacheBackendRedis && rdb != nil {
		return redisclient.NewProfileCache(rdb, cfg.DentistCacheTTL, logger)
	}
	return dentist.NewMemoryCache(cfg.DentistCacheTTL, nil)
}

func shutdown(srv *http.Server, timeout time.Duration, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
