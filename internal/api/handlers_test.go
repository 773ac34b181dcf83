package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/healthcare-booking/internal/audit"
	"github.com/medibook/healthcare-booking/internal/booking"
	"github.com/medibook/healthcare-booking/internal/events"
	"github.com/medibook/healthcare-booking/internal/notify"
)

type serialLocker struct {
	mu sync.Mutex
}

func (l *serialLocker) WithSlotLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(ctx)
}

type testServer struct {
	router http.Handler
	repo   *booking.MemoryRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	repo := booking.NewMemoryRepository()
	svc := booking.NewService(repo, &serialLocker{}, events.NoopPublisher{}, audit.NoopRecorder{}, notify.NoopNotifier{})
	router := NewRouter(RouterConfig{Service: svc, Env: "test", Version: "test"})
	return &testServer{router: router, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedBookable(t *testing.T, billing booking.BillingType) (patient booking.Patient, provider booking.HealthcareProvider, slot booking.TimeSlot) {
	t.Helper()

	patient = booking.Patient{ID: uuid.New(), Name: "Jane Perera", Phone: "+94771234567"}
	s.repo.PutPatient(patient)

	p, err := s.repo.CreateProvider(context.Background(), &booking.HealthcareProvider{
		Name:         "Dr. Silva",
		Specialty:    "Cardiology",
		HospitalName: "Central Hospital",
		BillingType:  billing,
	})
	require.NoError(t, err)
	provider = *p

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	sl, err := s.repo.CreateTimeSlot(context.Background(), &booking.TimeSlot{
		ProviderID: provider.ID,
		StartTime:  start,
		EndTime:    start.Add(30 * time.Minute),
		Available:  true,
	})
	require.NoError(t, err)
	slot = *sl

	return patient, provider, slot
}

func decodeAppointment(t *testing.T, rec *httptest.ResponseRecorder) AppointmentResponse {
	t.Helper()
	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestBookAppointmentEndpoint(t *testing.T) {
	srv := newTestServer(t)
	patient, provider, slot := srv.seedBookable(t, booking.BillingGovernment)

	rec := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeAppointment(t, rec)
	assert.Equal(t, "CONFIRMED", resp.Status)
	assert.False(t, resp.PaymentRequired)
	assert.Equal(t, patient.Name, resp.PatientName)
	assert.Equal(t, provider.Name, resp.ProviderName)
	assert.Equal(t, provider.HospitalName, resp.HospitalName)
	assert.True(t, slot.StartTime.Equal(resp.AppointmentTime))
	assert.NotEmpty(t, resp.ConfirmationNumber)
}

func TestBookAppointmentConflictMapsTo409(t *testing.T) {
	srv := newTestServer(t)
	patient, provider, slot := srv.seedBookable(t, booking.BillingGovernment)

	first := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})
	require.Equal(t, http.StatusCreated, first.Code)

	second := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})
	assert.Equal(t, http.StatusConflict, second.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&errResp))
	assert.Equal(t, "slot_unavailable", errResp.Error)
}

func TestBookAppointmentUnknownPatientMapsTo404(t *testing.T) {
	srv := newTestServer(t)
	_, provider, slot := srv.seedBookable(t, booking.BillingGovernment)

	rec := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  uuid.New().String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookAppointmentBadUUIDMapsTo400(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  "not-a-uuid",
		ProviderID: uuid.New().String(),
		TimeSlotID: uuid.New().String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentFlowEndpoint(t *testing.T) {
	srv := newTestServer(t)
	patient, provider, slot := srv.seedBookable(t, booking.BillingPrivate)

	booked := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})
	require.Equal(t, http.StatusCreated, booked.Code)
	appt := decodeAppointment(t, booked)
	require.Equal(t, "PENDING_PAYMENT", appt.Status)
	require.True(t, appt.PaymentRequired)

	paid := srv.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/payment", appt.ID), ProcessPaymentRequest{
		Amount: 100,
		Method: "CREDIT_CARD",
	})
	require.Equal(t, http.StatusOK, paid.Code, paid.Body.String())
	assert.Equal(t, "CONFIRMED", decodeAppointment(t, paid).Status)

	// A second payment attempt conflicts.
	again := srv.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/payment", appt.ID), ProcessPaymentRequest{
		Amount: 100,
		Method: "CREDIT_CARD",
	})
	assert.Equal(t, http.StatusConflict, again.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(again.Body).Decode(&errResp))
	assert.Equal(t, "payment_already_processed", errResp.Error)
}

func TestPaymentNotRequiredMapsTo400(t *testing.T) {
	srv := newTestServer(t)
	patient, provider, slot := srv.seedBookable(t, booking.BillingGovernment)

	booked := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})
	require.Equal(t, http.StatusCreated, booked.Code)
	appt := decodeAppointment(t, booked)

	rec := srv.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/payment", appt.ID), ProcessPaymentRequest{
		Amount: 50,
		Method: "WALLET",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "payment_not_required", errResp.Error)
}

func TestCancelEndpointFreesSlotForRebooking(t *testing.T) {
	srv := newTestServer(t)
	patient, provider, slot := srv.seedBookable(t, booking.BillingGovernment)

	booked := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})
	require.Equal(t, http.StatusCreated, booked.Code)
	appt := decodeAppointment(t, booked)

	cancelled := srv.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", appt.ID), nil)
	require.Equal(t, http.StatusNoContent, cancelled.Code)

	rebooked := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})
	assert.Equal(t, http.StatusCreated, rebooked.Code)
}

func TestUpdateStatusIllegalJumpMapsTo409(t *testing.T) {
	srv := newTestServer(t)
	patient, provider, slot := srv.seedBookable(t, booking.BillingPrivate)

	booked := srv.do(t, http.MethodPost, "/appointments", BookAppointmentRequest{
		PatientID:  patient.ID.String(),
		ProviderID: provider.ID.String(),
		TimeSlotID: slot.ID.String(),
	})
	require.Equal(t, http.StatusCreated, booked.Code)
	appt := decodeAppointment(t, booked)

	rec := srv.do(t, http.MethodPatch, fmt.Sprintf("/appointments/%s/status", appt.ID), UpdateStatusRequest{
		Status: "COMPLETED",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "invalid_status_transition", errResp.Error)
}

func TestStatusConflictMapsTo409(t *testing.T) {
	rec := httptest.NewRecorder()
	handleStatusError(rec, booking.ErrStatusConflict)

	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "status_conflict", errResp.Error)
}

func TestUpdateStatusUnknownStatusMapsTo400(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPatch, fmt.Sprintf("/appointments/%s/status", uuid.New()), UpdateStatusRequest{
		Status: "NAPPING",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAvailableTimeSlotsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	_, provider, slot := srv.seedBookable(t, booking.BillingGovernment)

	path := fmt.Sprintf("/providers/%s/timeslots/available?date=%s",
		provider.ID, slot.StartTime.Format("2006-01-02"))
	rec := srv.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp []TimeSlotResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, slot.ID, resp[0].ID)
	assert.Equal(t, provider.Name, resp[0].ProviderName)
	assert.True(t, resp[0].Available)
}

func TestListAvailableTimeSlotsMissingDate(t *testing.T) {
	srv := newTestServer(t)
	_, provider, _ := srv.seedBookable(t, booking.BillingGovernment)

	rec := srv.do(t, http.MethodGet, fmt.Sprintf("/providers/%s/timeslots/available", provider.ID), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProviderAdminEndpoints(t *testing.T) {
	srv := newTestServer(t)

	created := srv.do(t, http.MethodPost, "/providers", CreateProviderRequest{
		Name:         "Dr. Jayawardena",
		Specialty:    "Dermatology",
		HospitalName: "Lakeview Hospital",
		BillingType:  "PRIVATE",
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var provider ProviderResponse
	require.NoError(t, json.NewDecoder(created.Body).Decode(&provider))
	assert.Equal(t, "PRIVATE", provider.BillingType)

	newName := "Dr. J. Jayawardena"
	updated := srv.do(t, http.MethodPatch, "/providers/"+provider.ID.String(), UpdateProviderRequest{
		Name: &newName,
	})
	require.Equal(t, http.StatusOK, updated.Code)

	var patched ProviderResponse
	require.NoError(t, json.NewDecoder(updated.Body).Decode(&patched))
	assert.Equal(t, newName, patched.Name)
	assert.Equal(t, "Dermatology", patched.Specialty)

	listed := srv.do(t, http.MethodGet, "/providers?specialty=Dermatology", nil)
	require.Equal(t, http.StatusOK, listed.Code)
	var providers []ProviderResponse
	require.NoError(t, json.NewDecoder(listed.Body).Decode(&providers))
	assert.Len(t, providers, 1)

	deleted := srv.do(t, http.MethodDelete, "/providers/"+provider.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, deleted.Code)

	missing := srv.do(t, http.MethodGet, "/providers/"+provider.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestCreateTimeSlotRejectsBadInterval(t *testing.T) {
	srv := newTestServer(t)
	_, provider, _ := srv.seedBookable(t, booking.BillingGovernment)

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	rec := srv.do(t, http.MethodPost, fmt.Sprintf("/providers/%s/timeslots", provider.ID), CreateTimeSlotRequest{
		StartTime: start,
		EndTime:   start.Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
