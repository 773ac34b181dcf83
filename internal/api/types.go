package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/healthcare-booking/internal/booking"
)

type BookAppointmentRequest struct {
	PatientID  string `json:"patient_id"`
	ProviderID string `json:"provider_id"`
	TimeSlotID string `json:"time_slot_id"`
}

type ProcessPaymentRequest struct {
	Amount float64 `json:"amount"`
	Method string  `json:"payment_method"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CreateProviderRequest struct {
	Name         string `json:"name"`
	Specialty    string `json:"specialty"`
	HospitalName string `json:"hospital_name"`
	BillingType  string `json:"billing_type"`
}

type UpdateProviderRequest struct {
	Name         *string `json:"name"`
	Specialty    *string `json:"specialty"`
	HospitalName *string `json:"hospital_name"`
	BillingType  *string `json:"billing_type"`
}

type CreateTimeSlotRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Available *bool     `json:"available"`
}

type UpdateTimeSlotRequest struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Available *bool      `json:"available"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	PatientName        string    `json:"patient_name"`
	ProviderID         uuid.UUID `json:"provider_id"`
	ProviderName       string    `json:"provider_name"`
	Specialty          string    `json:"specialty"`
	HospitalName       string    `json:"hospital_name"`
	AppointmentTime    time.Time `json:"appointment_time"`
	ConfirmationNumber string    `json:"confirmation_number"`
	Status             string    `json:"status"`
	PaymentRequired    bool      `json:"payment_required"`
}

type TimeSlotResponse struct {
	ID           uuid.UUID `json:"id"`
	ProviderID   uuid.UUID `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Available    bool      `json:"available"`
}

type ProviderResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Specialty    string    `json:"specialty"`
	HospitalName string    `json:"hospital_name"`
	BillingType  string    `json:"billing_type"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(d *booking.AppointmentDetail) AppointmentResponse {
	return AppointmentResponse{
		ID:                 d.ID,
		PatientID:          d.PatientID,
		PatientName:        d.Patient.Name,
		ProviderID:         d.ProviderID,
		ProviderName:       d.Provider.Name,
		Specialty:          d.Provider.Specialty,
		HospitalName:       d.Provider.HospitalName,
		AppointmentTime:    d.Slot.StartTime,
		ConfirmationNumber: d.ConfirmationNumber,
		Status:             string(d.Status),
		PaymentRequired:    d.PaymentRequired,
	}
}

func toTimeSlotResponse(s booking.TimeSlot, providerName string) TimeSlotResponse {
	return TimeSlotResponse{
		ID:           s.ID,
		ProviderID:   s.ProviderID,
		ProviderName: providerName,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Available:    s.Available,
	}
}

func toProviderResponse(p *booking.HealthcareProvider) ProviderResponse {
	return ProviderResponse{
		ID:           p.ID,
		Name:         p.Name,
		Specialty:    p.Specialty,
		HospitalName: p.HospitalName,
		BillingType:  string(p.BillingType),
	}
}
