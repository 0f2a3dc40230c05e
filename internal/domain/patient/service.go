package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/domain/queue"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/events"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

type Service struct {
	patients  Repository
	entries   queue.Repository
	tx        db.TxBeginner
	publisher events.Publisher
	logger    zerolog.Logger
}

func NewService(patients Repository, entries queue.Repository, tx db.TxBeginner, publisher events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		patients:  patients,
		entries:   entries,
		tx:        tx,
		publisher: publisher,
		logger:    logger.With().Str("component", "patient").Logger(),
	}
}

// Create registers a patient. Callers without a staff role always register
// themselves: the record is linked to their own account.
func (s *Service) Create(ctx context.Context, p *Patient) error {
	if err := s.prepare(ctx, p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) prepare(ctx context.Context, p *Patient) error {
	p.CPF = strings.TrimSpace(p.CPF)
	if p.CPF == "" {
		return apperrors.NewValidationError("cpf is required")
	}
	if !auth.IsStaff(ctx) {
		uid, ok := auth.UserUUIDFromContext(ctx)
		if !ok {
			return apperrors.NewUnauthorizedError("authentication required")
		}
		p.UserID = &uid
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeRecord(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// GetByUser looks up the patient record linked to userID. Patients may only
// look up themselves.
func (s *Service) GetByUser(ctx context.Context, userID uuid.UUID) (*Lookup, error) {
	if !auth.IsStaff(ctx) {
		uid, ok := auth.UserUUIDFromContext(ctx)
		if !ok || uid != userID {
			return nil, apperrors.NewForbiddenError("patients may only look up their own record")
		}
	}
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return &Lookup{Exists: false}, nil
		}
		return nil, err
	}
	return &Lookup{Exists: true, Patient: p}, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// RegisterAndEnqueue creates the patient and a waiting queue entry in one
// transaction. If either insert fails neither row exists afterwards.
func (s *Service) RegisterAndEnqueue(ctx context.Context, p *Patient, isPriority bool) (*Admission, error) {
	if err := s.prepare(ctx, p); err != nil {
		return nil, err
	}

	entry := &queue.Entry{IsPriority: isPriority}
	err := db.WithTx(ctx, s.tx, func(ctx context.Context) error {
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		entry.PatientID = p.ID
		return s.entries.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("patient_id", p.ID.String()).Str("entry_id", entry.ID.String()).Msg("patient registered and enqueued")
	queue.PublishChanged(ctx, s.publisher, s.logger, "enqueued", entry)
	return &Admission{
		Message:    "patient registered and added to the queue",
		Patient:    p,
		QueueEntry: entry,
	}, nil
}

// PatientIDByCPF implements queue.PatientDirectory.
func (s *Service) PatientIDByCPF(ctx context.Context, cpf string) (uuid.UUID, error) {
	p, err := s.patients.GetByCPF(ctx, cpf)
	if err != nil {
		return uuid.Nil, err
	}
	return p.ID, nil
}

// PatientOwner implements queue.PatientDirectory.
func (s *Service) PatientOwner(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return p.UserID, nil
}

func authorizeRecord(ctx context.Context, p *Patient) error {
	if auth.IsStaff(ctx) {
		return nil
	}
	uid, ok := auth.UserUUIDFromContext(ctx)
	if !ok || p.UserID == nil || *p.UserID != uid {
		return apperrors.NewForbiddenError("patients may only access their own record")
	}
	return nil
}
