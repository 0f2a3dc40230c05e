package anamnesis

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

// EntryResolver maps a queue entry to its patient.
type EntryResolver interface {
	PatientIDForEntry(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error)
}

// OwnerResolver returns the account linked to a patient, failing with
// NotFound for unknown patients.
type OwnerResolver interface {
	PatientOwner(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, error)
}

type Service struct {
	records Repository
	entries EntryResolver
	owners  OwnerResolver
}

func NewService(records Repository, entries EntryResolver, owners OwnerResolver) *Service {
	return &Service{records: records, entries: entries, owners: owners}
}

// -- Patient-scoped --

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error) {
	if err := s.authorize(ctx, patientID); err != nil {
		return nil, err
	}
	return s.records.ListByPatient(ctx, patientID)
}

func (s *Service) CreateForPatient(ctx context.Context, patientID uuid.UUID, req *Request) (*Record, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, patientID); err != nil {
		return nil, err
	}
	rec := req.ToRecord(patientID)
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) UpdateForPatient(ctx context.Context, patientID, recordID uuid.UUID, req *Request) (*Record, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, patientID); err != nil {
		return nil, err
	}
	rec := req.ToRecord(patientID)
	rec.ID = recordID
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// -- Queue-scoped --
// The patient is resolved from the entry first and the write follows
// without a transaction; the entry cannot change patients in between.

func (s *Service) GetForEntry(ctx context.Context, entryID uuid.UUID) (*Record, error) {
	patientID, err := s.entries.PatientIDForEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	return s.records.GetByPatient(ctx, patientID)
}

func (s *Service) CreateForEntry(ctx context.Context, entryID uuid.UUID, req *Request) (*Record, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	patientID, err := s.entries.PatientIDForEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	rec := req.ToRecord(patientID)
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) UpdateForEntry(ctx context.Context, entryID uuid.UUID, req *Request) (*Record, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	patientID, err := s.entries.PatientIDForEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	rec := req.ToRecord(patientID)
	if err := s.records.UpdateByPatient(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func validate(req *Request) error {
	if req == nil || strings.TrimSpace(req.ChiefComplaint) == "" {
		return apperrors.NewValidationError("chief_complaint is required")
	}
	return nil
}

// authorize lets staff through and limits patients to their own record. It
// also fails with NotFound for unknown patients.
func (s *Service) authorize(ctx context.Context, patientID uuid.UUID) error {
	owner, err := s.owners.PatientOwner(ctx, patientID)
	if err != nil {
		return err
	}
	if auth.IsStaff(ctx) {
		return nil
	}
	uid, ok := auth.UserUUIDFromContext(ctx)
	if !ok || owner == nil || *owner != uid {
		return apperrors.NewForbiddenError("patients may only access their own anamnesis")
	}
	return nil
}
