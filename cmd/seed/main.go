package main

import (
	"context"
	_ "embed"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/medibook/healthcare-booking/internal/booking"
	"github.com/medibook/healthcare-booking/internal/db"
	"github.com/medibook/healthcare-booking/internal/observability"
)

//go:embed schema.sql
var schemaSQL string

func main() {
	observability.InitLogger("seed", "dev")
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := pool.Exec(context.Background(), schemaSQL); err != nil {
		log.Fatal().Err(err).Msg("apply schema")
	}
	log.Info().Msg("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatal().Err(err).Msg("seed providers")
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedTimeSlots(context.Background(), pool, providerIDs); err != nil {
		log.Fatal().Err(err).Msg("seed time slots")
	}

	log.Info().Msg("seed complete")
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding providers")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	billingTypes := []booking.BillingType{booking.BillingGovernment, booking.BillingPrivate}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		hospital := gofakeit.Company() + " Hospital"
		billing := billingTypes[gofakeit.Number(0, 1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO healthcare_providers (id, name, specialty, hospital_name, billing_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, name, spec, hospital, billing)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("providers seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

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
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	log.Info().Msg("patients seeded")
	return nil
}

// seedTimeSlots creates a business day of 30-minute slots per provider,
// starting tomorrow at 09:00 local time.
func seedTimeSlots(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Info().Int("providers", len(providerIDs)).Msg("seeding time slots")

	dayStart := time.Now().AddDate(0, 0, 1).Truncate(24 * time.Hour).Add(9 * time.Hour)
	const slotsPerProvider = 16 // 09:00 to 17:00 in 30-minute steps

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, providerID := range providerIDs {
		for i := 0; i < slotsPerProvider; i++ {
			start := dayStart.Add(time.Duration(i) * 30 * time.Minute)
			end := start.Add(30 * time.Minute)

			_, err := tx.Exec(ctx, `
				INSERT INTO time_slots (id, provider_id, start_time, end_time, available, created_at, updated_at)
				VALUES ($1, $2, $3, $4, true, now(), now())
			`, uuid.New(), providerID, start, end)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Msg("time slots seeded")
	return nil
}
