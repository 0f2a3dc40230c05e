package anamnesis

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error)
	GetByPatient(ctx context.Context, patientID uuid.UUID) (*Record, error)
	// Update overwrites the clinical fields of the record with r.ID that
	// belongs to r.PatientID.
	Update(ctx context.Context, r *Record) error
	// UpdateByPatient overwrites the clinical fields of the patient's record.
	UpdateByPatient(ctx context.Context, r *Record) error
}
