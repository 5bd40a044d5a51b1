package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dentalcare/slot-booking/internal/db"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/logging"
)

var specializations = []string{
	"General Dentistry",
	"Orthodontics",
	"Endodontics",
	"Periodontics",
	"Prosthodontics",
	"Pediatric Dentistry",
	"Oral Surgery",
}

// Weekly templates a seeded dentist picks from.
var scheduleTemplates = []dentist.ScheduleDoc{
	{
		Days: map[string]string{
			"monday": "09:00-17:00", "tuesday": "09:00-17:00", "wednesday": "09:00-17:00",
			"thursday": "09:00-17:00", "friday": "09:00-13:00",
		},
		SlotDurationMinutes: 30,
	},
	{
		Days: map[string]string{
			"monday": "08:00-12:00", "wednesday": "13:00-19:00", "saturday": "09:00-13:00",
		},
		SlotDurationMinutes: 45,
	},
	{
		Days: map[string]string{
			"tuesday": "10:00-18:00", "thursday": "10:00-18:00", "friday": "10:00-16:00",
		},
		SlotDurationMinutes: 60,
	},
}

type seedOptions struct {
	Dentists int
	Patients int
}

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV")).With().Str("service", "seed").Logger()

	if err := newRootCmd(func(ctx context.Context, opts seedOptions) error {
		return run(ctx, opts, logger)
	}).Execute(); err != nil {
		logger.Fatal().Err(err).Msg("seed failed")
	}
}

func newRootCmd(run func(ctx context.Context, opts seedOptions) error) *cobra.Command {
	var opts seedOptions
	cmd := &cobra.Command{
		Use:           "seed",
		Short:         "Insert fake dentists with weekly schedules and fake patients",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Dentists < 0 || opts.Patients < 0 {
				return fmt.Errorf("counts must not be negative")
			}
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.Dentists, "dentists", 20, "number of dentists to create")
	cmd.Flags().IntVar(&opts.Patients, "patients", 2000, "number of patients to create")
	return cmd
}

func run(ctx context.Context, opts seedOptions, logger zerolog.Logger) error {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return fmt.Errorf("POSTGRES_DSN is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(connectCtx, dsn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	faker := gofakeit.New(time.Now().UnixNano())

	if err := seedDentists(ctx, pool, faker, logger, opts.Dentists); err != nil {
		return fmt.Errorf("seed dentists: %w", err)
	}
	if err := seedPatients(ctx, pool, faker, logger, opts.Patients); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	logger.Info().Msg("seed complete")
	return nil
}

func seedDentists(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding dentists")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		doc := scheduleTemplates[faker.Number(0, len(scheduleTemplates)-1)]
		sched, err := dentist.ParseSchedule(doc)
		if err != nil {
			return err
		}
		times, err := json.Marshal(sched.Times())
		if err != nil {
			return err
		}

		first, last := faker.FirstName(), faker.LastName()
		email := strings.ToLower(first+"."+last) + "@clinic.example"

		_, err = tx.Exec(ctx, `
			INSERT INTO dentists (id, name, email, specialization, available_times, slot_duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT DO NOTHING
		`, uuid.New(), "Dr. "+first+" "+last, email,
			specializations[faker.Number(0, len(specializations)-1)], times, sched.SlotMinutes)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("dentists seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), faker.Name(), faker.Email(), faker.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}
