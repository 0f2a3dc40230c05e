package queue

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/events"
	"github.com/clinicq/clinicq/internal/platform/websocket"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

const (
	EventChanged  = "queue.changed"
	EventSnapshot = "queue.snapshot"
)

// PatientDirectory resolves the patient records queue operations refer to.
type PatientDirectory interface {
	PatientIDByCPF(ctx context.Context, cpf string) (uuid.UUID, error)
	// PatientOwner returns the user account linked to the patient, if any.
	PatientOwner(ctx context.Context, patientID uuid.UUID) (*uuid.UUID, error)
}

type Service struct {
	entries   Repository
	patients  PatientDirectory
	estimator *Estimator
	publisher events.Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(entries Repository, patients PatientDirectory, estimator *Estimator, publisher events.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		entries:   entries,
		patients:  patients,
		estimator: estimator,
		publisher: publisher,
		logger:    logger.With().Str("component", "queue").Logger(),
		now:       time.Now,
	}
}

// Enqueue adds the patient with the given CPF to the waiting list. Patients
// acting for themselves may only enqueue their own record.
func (s *Service) Enqueue(ctx context.Context, cpf string, isPriority bool) (*Entry, error) {
	cpf = strings.TrimSpace(cpf)
	if cpf == "" {
		return nil, apperrors.NewValidationError("cpf is required")
	}
	patientID, err := s.patients.PatientIDByCPF(ctx, cpf)
	if err != nil {
		return nil, err
	}
	if err := s.authorizePatient(ctx, patientID); err != nil {
		return nil, err
	}

	e := &Entry{PatientID: patientID, IsPriority: isPriority}
	if err := s.entries.Create(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info().Str("entry_id", e.ID.String()).Bool("priority", e.IsPriority).Msg("patient enqueued")
	PublishChanged(ctx, s.publisher, s.logger, "enqueued", e)
	return e, nil
}

// List returns the waiting list in serving order.
func (s *Service) List(ctx context.Context, priority *bool) ([]*WaitingEntry, error) {
	items, err := s.entries.ListWaiting(ctx, priority)
	if err != nil {
		return nil, err
	}
	Order(items)
	return items, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.entries.GetByID(ctx, id)
}

func (s *Service) Attend(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := s.entries.Attend(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("entry_id", e.ID.String()).Msg("patient attended")
	PublishChanged(ctx, s.publisher, s.logger, "attended", e)
	return e, nil
}

// Cancel withdraws a waiting entry. The row is kept with its cancellation
// time. Patients may only cancel their own entries.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Entry, error) {
	if !auth.IsStaff(ctx) {
		current, err := s.entries.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.authorizePatient(ctx, current.PatientID); err != nil {
			return nil, err
		}
	}

	e, err := s.entries.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("entry_id", e.ID.String()).Msg("queue entry cancelled")
	PublishChanged(ctx, s.publisher, s.logger, "cancelled", e)
	return e, nil
}

// PositionOf reports the patient's place in the waiting list and the time
// left. A patient outside the queue gets the wait they would face on joining.
func (s *Service) PositionOf(ctx context.Context, patientID uuid.UUID) (*Position, error) {
	if err := s.authorizePatient(ctx, patientID); err != nil {
		return nil, err
	}
	items, err := s.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	pos := IndexOf(items, func(w *WaitingEntry) bool { return w.PatientID == patientID })
	if pos == 0 {
		est := s.estimator.ProspectiveWait(len(items))
		return &Position{
			WaitingCount:         len(items),
			EstimatedWaitSeconds: est.EstimatedWaitSeconds,
			RemainingSeconds:     est.EstimatedWaitSeconds,
		}, nil
	}

	entry := items[pos-1].Entry
	return &Position{
		InQueue:              true,
		Position:             pos,
		WaitingCount:         len(items),
		EstimatedWaitSeconds: s.estimator.EstimateTotal(pos),
		RemainingSeconds:     s.estimator.Remaining(pos, entry.CreatedAt, s.now()),
		Entry:                &entry,
	}, nil
}

// Estimate is the expected wait for a patient joining now.
func (s *Service) Estimate(ctx context.Context) (*Estimate, error) {
	n, err := s.entries.CountWaiting(ctx)
	if err != nil {
		return nil, err
	}
	est := s.estimator.ProspectiveWait(n)
	return &est, nil
}

// Snapshot builds the ordered public view of the waiting list.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	items, err := s.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := s.now()
	snap := &Snapshot{
		GeneratedAt:           now.UTC(),
		WaitingCount:          len(items),
		AverageServiceSeconds: s.estimator.AverageSeconds(),
		Entries:               make([]SnapshotItem, 0, len(items)),
	}
	for i, w := range items {
		p := i + 1
		snap.Entries = append(snap.Entries, SnapshotItem{
			ID:               w.ID,
			PatientID:        w.PatientID,
			IsPriority:       w.IsPriority,
			CreatedAt:        w.CreatedAt,
			Position:         p,
			RemainingSeconds: s.estimator.Remaining(p, w.CreatedAt, now),
		})
	}
	return snap, nil
}

// PublishSnapshot sends the current snapshot to live subscribers.
func (s *Service) PublishSnapshot(ctx context.Context) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	events.Emit(ctx, s.publisher, s.logger, websocket.TopicQueue, EventSnapshot, snap)
	return nil
}

// PatientIDForEntry resolves the patient behind a queue entry of any status.
func (s *Service) PatientIDForEntry(ctx context.Context, entryID uuid.UUID) (uuid.UUID, error) {
	e, err := s.entries.GetByID(ctx, entryID)
	if err != nil {
		return uuid.Nil, err
	}
	return e.PatientID, nil
}

func (s *Service) authorizePatient(ctx context.Context, patientID uuid.UUID) error {
	if auth.IsStaff(ctx) {
		return nil
	}
	uid, ok := auth.UserUUIDFromContext(ctx)
	if !ok {
		return apperrors.NewUnauthorizedError("authentication required")
	}
	owner, err := s.patients.PatientOwner(ctx, patientID)
	if err != nil {
		return err
	}
	if owner == nil || *owner != uid {
		return apperrors.NewForbiddenError("patients may only act on their own queue entries")
	}
	return nil
}

type changePayload struct {
	Action     string    `json:"action"`
	EntryID    uuid.UUID `json:"entry_id"`
	PatientID  uuid.UUID `json:"patient_id"`
	IsPriority bool      `json:"is_priority"`
	Status     string    `json:"status"`
}

// PublishChanged announces a mutation of entry to live subscribers.
func PublishChanged(ctx context.Context, p events.Publisher, logger zerolog.Logger, action string, e *Entry) {
	events.Emit(ctx, p, logger, websocket.TopicQueue, EventChanged, changePayload{
		Action:     action,
		EntryID:    e.ID,
		PatientID:  e.PatientID,
		IsPriority: e.IsPriority,
		Status:     e.Status,
	})
}
