package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medibook/healthcare-booking/internal/booking"
	redisclient "github.com/medibook/healthcare-booking/internal/redis"
)

func bookAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}
		timeSlotID, err := uuid.Parse(req.TimeSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time_slot_id", "time_slot_id must be a valid UUID")
			return
		}

		appt, err := svc.BookAppointment(r.Context(), patientID, providerID, timeSlotID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		detail, err := svc.GetAppointment(r.Context(), appt.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(detail))
	}
}

func processPaymentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req ProcessPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
			return
		}
		method, ok := booking.ParsePaymentMethod(req.Method)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_payment_method", "unknown payment method")
			return
		}

		appt, err := svc.ProcessPayment(r.Context(), id, req.Amount, method)
		if err != nil {
			handlePaymentError(w, err)
			return
		}

		detail, err := svc.GetAppointment(r.Context(), appt.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.CancelAppointment(r.Context(), id); err != nil {
			handleStatusError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func updateStatusHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		status, ok := booking.ParseAppointmentStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown appointment status")
			return
		}

		appt, err := svc.UpdateAppointmentStatus(r.Context(), id, status)
		if err != nil {
			handleStatusError(w, err)
			return
		}

		detail, err := svc.GetAppointment(r.Context(), appt.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if confirmation := r.URL.Query().Get("confirmation_number"); confirmation != "" {
			detail, err := svc.GetAppointmentByConfirmationNumber(r.Context(), confirmation)
			if err != nil {
				handleLookupError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, []AppointmentResponse{toAppointmentResponse(detail)})
			return
		}

		patientParam := r.URL.Query().Get("patient_id")
		if patientParam == "" {
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or confirmation_number is required")
			return
		}
		patientID, err := uuid.Parse(patientParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		details, err := svc.ListPatientAppointments(r.Context(), patientID)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(details))
		for i := range details {
			resp = append(resp, toAppointmentResponse(&details[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listAvailableTimeSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		dateParam := r.URL.Query().Get("date")
		if dateParam == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required (YYYY-MM-DD)")
			return
		}
		date, err := time.Parse("2006-01-02", dateParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		provider, err := svc.GetProvider(r.Context(), providerID)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		slots, err := svc.ListAvailableTimeSlots(r.Context(), providerID, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]TimeSlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, toTimeSlotResponse(s, provider.Name))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Error mapping. Each failure kind has a distinct outward status: 404 for
// missing entities, 409 for reservation and state conflicts, 400 for
// payment-not-required.

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrTimeSlotNotFound):
		writeError(w, http.StatusNotFound, "time_slot_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handlePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrPaymentNotRequired):
		writeError(w, http.StatusBadRequest, "payment_not_required", err.Error())
	case errors.Is(err, booking.ErrPaymentAlreadyProcessed):
		writeError(w, http.StatusConflict, "payment_already_processed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleStatusError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrStatusConflict):
		writeError(w, http.StatusConflict, "status_conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrTimeSlotNotFound):
		writeError(w, http.StatusNotFound, "time_slot_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
