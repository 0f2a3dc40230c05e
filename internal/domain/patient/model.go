package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/domain/queue"
)

type Patient struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UserID            *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Name              *string    `db:"name" json:"name,omitempty"`
	Email             *string    `db:"email" json:"email,omitempty"`
	Phone             *string    `db:"phone" json:"phone,omitempty"`
	BirthDate         *string    `db:"birth_date" json:"birth_date,omitempty"` // YYYY-MM-DD
	Gender            *string    `db:"gender" json:"gender,omitempty"`
	InsuranceProvider *string    `db:"insurance_provider" json:"insurance_provider,omitempty"`
	InsuranceNumber   *string    `db:"insurance_number" json:"insurance_number,omitempty"`
	CPF               string     `db:"cpf" json:"cpf"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

type CreateRequest struct {
	UserID            *uuid.UUID `json:"user_id,omitempty"`
	Name              string     `json:"name" validate:"max=255"`
	Email             string     `json:"email" validate:"omitempty,email,max=255"`
	Phone             string     `json:"phone" validate:"max=64"`
	BirthDate         string     `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Gender            string     `json:"gender" validate:"max=32"`
	InsuranceProvider string     `json:"insurance_provider" validate:"max=255"`
	InsuranceNumber   string     `json:"insurance_number" validate:"max=128"`
	CPF               string     `json:"cpf" validate:"notblank,max=32"`
}

// AdminCreateRequest registers a walk-in patient and queues them at once.
type AdminCreateRequest struct {
	CreateRequest
	IsPriority bool `json:"is_priority"`
}

func (r *CreateRequest) ToPatient() *Patient {
	return &Patient{
		UserID:            r.UserID,
		Name:              optional(r.Name),
		Email:             optional(r.Email),
		Phone:             optional(r.Phone),
		BirthDate:         optional(r.BirthDate),
		Gender:            optional(r.Gender),
		InsuranceProvider: optional(r.InsuranceProvider),
		InsuranceNumber:   optional(r.InsuranceNumber),
		CPF:               strings.TrimSpace(r.CPF),
	}
}

// optional maps blank input to NULL.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Lookup is the GET /patients/byuser response.
type Lookup struct {
	Exists  bool     `json:"exists"`
	Patient *Patient `json:"patient,omitempty"`
}

// Admission is the result of registering and enqueueing in one step.
type Admission struct {
	Message    string       `json:"message"`
	Patient    *Patient     `json:"patient"`
	QueueEntry *queue.Entry `json:"queue_entry"`
}
