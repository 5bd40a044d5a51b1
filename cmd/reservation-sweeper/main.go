package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/availability"
	"github.com/dentalcare/slot-booking/internal/config"
	"github.com/dentalcare/slot-booking/internal/db"
	"github.com/dentalcare/slot-booking/internal/logging"
	"github.com/dentalcare/slot-booking/internal/metrics"
	"github.com/dentalcare/slot-booking/internal/reservation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("info", "prod")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "reservation-sweeper").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.SweepInterval).
		Msg("reservation sweeper starting up")

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

	reg := prometheus.NewRegistry()
	sweepMetrics := metrics.NewBookingMetrics(reg)

	svc := reservation.NewService(
		reservation.NewPgRepository(pgPool),
		availability.NewOccupancy(appointment.NewPgRepository(pgPool), cfg.ClinicLocation),
		cfg.ReservationTTL,
		logger,
	).WithMetrics(sweepMetrics)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           opsRouter(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	reservation.NewSweeper(svc, cfg.SweepInterval, logger).Run(rootCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics listener shutdown failed")
	}
	logger.Info().Msg("reservation sweeper stopped")
}

// opsRouter serves liveness and the sweep metrics.
func opsRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
