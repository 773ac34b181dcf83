package booking

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPendingPayment AppointmentStatus = "PENDING_PAYMENT"
	StatusConfirmed      AppointmentStatus = "CONFIRMED"
	StatusCancelled      AppointmentStatus = "CANCELLED"
	StatusCompleted      AppointmentStatus = "COMPLETED"
)

// ParseAppointmentStatus validates a caller-supplied status string.
func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	switch AppointmentStatus(s) {
	case StatusPendingPayment, StatusConfirmed, StatusCancelled, StatusCompleted:
		return AppointmentStatus(s), true
	}
	return "", false
}

type BillingType string

const (
	BillingGovernment BillingType = "GOVERNMENT"
	BillingPrivate    BillingType = "PRIVATE"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	MethodCreditCard    PaymentMethod = "CREDIT_CARD"
	MethodDebitCard     PaymentMethod = "DEBIT_CARD"
	MethodOnlineBanking PaymentMethod = "ONLINE_BANKING"
	MethodWallet        PaymentMethod = "WALLET"
)

// ParsePaymentMethod validates a caller-supplied payment method string.
func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch PaymentMethod(s) {
	case MethodCreditCard, MethodDebitCard, MethodOnlineBanking, MethodWallet:
		return PaymentMethod(s), true
	}
	return "", false
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type HealthcareProvider struct {
	ID           uuid.UUID
	Name         string
	Specialty    string
	HospitalName string
	BillingType  BillingType
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TimeSlot is one bookable unit of a provider's capacity.
// Available is false exactly while a non-cancelled appointment links to it.
type TimeSlot struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Available  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ProviderID         uuid.UUID
	TimeSlotID         uuid.UUID
	Status             AppointmentStatus
	BookingTime        time.Time
	ConfirmationNumber string // assigned once at booking, never changed
	PaymentRequired    bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	Amount        float64
	Method        PaymentMethod
	TransactionID string
	Status        PaymentStatus
	PaidAt        time.Time
}

// AppointmentDetail is an appointment hydrated with its related entities.
type AppointmentDetail struct {
	Appointment
	Patient  *Patient
	Provider *HealthcareProvider
	Slot     *TimeSlot
	Payment  *Payment
}
