package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medibook/healthcare-booking/internal/booking"
)

type RouterConfig struct {
	Service *booking.Service
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Appointment lifecycle
	r.Post("/appointments", bookAppointmentHandler(cfg.Service))
	r.Get("/appointments", listAppointmentsHandler(cfg.Service))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
	r.Post("/appointments/{id}/payment", processPaymentHandler(cfg.Service))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
	r.Patch("/appointments/{id}/status", updateStatusHandler(cfg.Service))

	// Providers and their slots
	r.Post("/providers", createProviderHandler(cfg.Service))
	r.Get("/providers", listProvidersHandler(cfg.Service))
	r.Get("/providers/{id}", getProviderHandler(cfg.Service))
	r.Patch("/providers/{id}", updateProviderHandler(cfg.Service))
	r.Delete("/providers/{id}", deleteProviderHandler(cfg.Service))
	r.Get("/providers/{id}/timeslots", listProviderTimeSlotsHandler(cfg.Service))
	r.Get("/providers/{id}/timeslots/available", listAvailableTimeSlotsHandler(cfg.Service))
	r.Post("/providers/{id}/timeslots", createTimeSlotHandler(cfg.Service))

	// Slot maintenance
	r.Patch("/timeslots/{id}", updateTimeSlotHandler(cfg.Service))
	r.Delete("/timeslots/{id}", deleteTimeSlotHandler(cfg.Service))

	return r
}
