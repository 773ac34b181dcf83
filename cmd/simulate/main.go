// simulate fires concurrent booking requests at the API and verifies the
// at-most-one-booking property: for every slot, at most one non-cancelled
// appointment exists afterwards.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/medibook/healthcare-booking/internal/db"
	"github.com/medibook/healthcare-booking/internal/observability"
)

type simConfig struct {
	APIBaseURL  string
	Workers     int
	Requests    int
	SlotWindow  int
	PostgresDSN string
}

type slotRef struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
}

type dataPool struct {
	Patients []uuid.UUID
	Slots    []slotRef
}

type counters struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64
}

func main() {
	observability.InitLogger("simulate", "dev")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	data, err := loadDataPool(context.Background(), pool)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	if len(data.Patients) == 0 || len(data.Slots) == 0 {
		log.Fatal().Msg("no patients or available slots, run cmd/seed first")
	}

	window := cfg.SlotWindow
	if window > len(data.Slots) {
		window = len(data.Slots)
	}

	log.Info().
		Int("patients", len(data.Patients)).
		Int("slots", len(data.Slots)).
		Int("slot_window", window).
		Int("workers", cfg.Workers).
		Int("requests", cfg.Requests).
		Msg("starting simulation")

	var stats counters
	client := &http.Client{Timeout: 10 * time.Second}

	jobs := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				// Pick from a narrow slot window so requests collide often.
				slot := data.Slots[rand.Intn(window)]
				patient := data.Patients[rand.Intn(len(data.Patients))]
				bookOnce(client, cfg.APIBaseURL, slot, patient, &stats)
			}
		}()
	}

	start := time.Now()
	for i := 0; i < cfg.Requests; i++ {
		jobs <- struct{}{}
	}
	close(jobs)
	wg.Wait()
	elapsed := time.Since(start)

	log.Info().
		Int64("total", stats.Total).
		Int64("success", stats.Success).
		Int64("conflict", stats.Conflict).
		Int64("error", stats.Error).
		Dur("elapsed", elapsed).
		Msg("simulation done")

	violations, err := checkDoubleBookings(context.Background(), pool)
	if err != nil {
		log.Fatal().Err(err).Msg("double booking check")
	}
	if violations > 0 {
		log.Error().Int("violations", violations).Msg("slots with more than one active appointment")
		os.Exit(1)
	}
	log.Info().Msg("no double bookings detected")
}

func bookOnce(client *http.Client, baseURL string, slot slotRef, patientID uuid.UUID, stats *counters) {
	body, err := json.Marshal(map[string]string{
		"patient_id":   patientID.String(),
		"provider_id":  slot.ProviderID.String(),
		"time_slot_id": slot.ID.String(),
	})
	if err != nil {
		atomic.AddInt64(&stats.Error, 1)
		return
	}

	resp, err := client.Post(baseURL+"/appointments", "application/json", bytes.NewReader(body))
	atomic.AddInt64(&stats.Total, 1)
	if err != nil {
		atomic.AddInt64(&stats.Error, 1)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusCreated:
		atomic.AddInt64(&stats.Success, 1)
	case http.StatusConflict:
		atomic.AddInt64(&stats.Conflict, 1)
	default:
		atomic.AddInt64(&stats.Error, 1)
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*dataPool, error) {
	data := &dataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT 500`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		data.Patients = append(data.Patients, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slotRows, err := pool.Query(ctx, `
		SELECT id, provider_id
		FROM time_slots
		WHERE available = true
		ORDER BY start_time
		LIMIT 500
	`)
	if err != nil {
		return nil, err
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var ref slotRef
		if err := slotRows.Scan(&ref.ID, &ref.ProviderID); err != nil {
			return nil, err
		}
		data.Slots = append(data.Slots, ref)
	}
	return data, slotRows.Err()
}

func checkDoubleBookings(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var violations int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM (
			SELECT time_slot_id
			FROM appointments
			WHERE status <> 'CANCELLED'
			GROUP BY time_slot_id
			HAVING count(*) > 1
		) dupes
	`).Scan(&violations)
	return violations, err
}

func loadSimConfig() simConfig {
	cfg := simConfig{
		APIBaseURL:  getEnv("API_BASE_URL", "http://localhost:8080"),
		Workers:     getEnvInt("SIM_WORKERS", 20),
		Requests:    getEnvInt("SIM_REQUESTS", 500),
		SlotWindow:  getEnvInt("SIM_SLOT_WINDOW", 10),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
	}
	if cfg.PostgresDSN == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}
	if cfg.SlotWindow < 1 {
		cfg.SlotWindow = 1
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		fmt.Fprintf(os.Stderr, "invalid int for %s=%q, using default %d\n", key, v, fallback)
	}
	return fallback
}
