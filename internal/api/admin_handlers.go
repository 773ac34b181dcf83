package api

import (
	"encoding/json"
	"net/http"

	"github.com/medibook/healthcare-booking/internal/booking"
)

// Provider and time-slot administration. Creation and maintenance of
// bookable capacity happens here; booking itself never mutates these except
// through the allocator.

func createProviderHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.Name == "" || req.Specialty == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "name and specialty are required")
			return
		}
		billingType, ok := parseBillingType(req.BillingType)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_billing_type", "billing_type must be GOVERNMENT or PRIVATE")
			return
		}

		provider, err := svc.CreateProvider(r.Context(), &booking.HealthcareProvider{
			Name:         req.Name,
			Specialty:    req.Specialty,
			HospitalName: req.HospitalName,
			BillingType:  billingType,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, toProviderResponse(provider))
	}
}

func listProvidersHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providers, err := svc.ListProviders(r.Context(), r.URL.Query().Get("specialty"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ProviderResponse, 0, len(providers))
		for i := range providers {
			resp = append(resp, toProviderResponse(&providers[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getProviderHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		provider, err := svc.GetProvider(r.Context(), id)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toProviderResponse(provider))
	}
}

func updateProviderHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateProviderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		params := booking.UpdateProviderParams{
			Name:         req.Name,
			Specialty:    req.Specialty,
			HospitalName: req.HospitalName,
		}
		if req.BillingType != nil {
			billingType, ok := parseBillingType(*req.BillingType)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid_billing_type", "billing_type must be GOVERNMENT or PRIVATE")
				return
			}
			params.BillingType = &billingType
		}

		provider, err := svc.UpdateProvider(r.Context(), id, params)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toProviderResponse(provider))
	}
}

func deleteProviderHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteProvider(r.Context(), id); err != nil {
			handleLookupError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func createTimeSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req CreateTimeSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if !req.EndTime.After(req.StartTime) {
			writeError(w, http.StatusBadRequest, "invalid_interval", "end_time must be after start_time")
			return
		}

		available := true
		if req.Available != nil {
			available = *req.Available
		}

		slot, err := svc.CreateTimeSlot(r.Context(), providerID, req.StartTime, req.EndTime, available)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		provider, err := svc.GetProvider(r.Context(), providerID)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toTimeSlotResponse(*slot, provider.Name))
	}
}

func listProviderTimeSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		provider, err := svc.GetProvider(r.Context(), providerID)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		slots, err := svc.ListProviderTimeSlots(r.Context(), providerID)
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

func updateTimeSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req UpdateTimeSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := svc.UpdateTimeSlot(r.Context(), id, booking.UpdateTimeSlotParams{
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			Available: req.Available,
		})
		if err != nil {
			handleLookupError(w, err)
			return
		}

		provider, err := svc.GetProvider(r.Context(), slot.ProviderID)
		if err != nil {
			handleLookupError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toTimeSlotResponse(*slot, provider.Name))
	}
}

func deleteTimeSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteTimeSlot(r.Context(), id); err != nil {
			handleLookupError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseBillingType(s string) (booking.BillingType, bool) {
	switch booking.BillingType(s) {
	case booking.BillingGovernment, booking.BillingPrivate:
		return booking.BillingType(s), true
	}
	return "", false
}
