package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const entryCols = `id, patient_id, is_priority, status, created_at, served_at, cancelled_at`

const waitingCols = `q.id, q.patient_id, q.is_priority, q.status, q.created_at, q.served_at, q.cancelled_at,
	p.name, p.email, p.phone, p.cpf, p.gender`

// orderBy must stay in step with Compare.
const orderBy = `ORDER BY q.is_priority DESC, q.created_at ASC, q.id ASC`

const oneWaitingPerPatient = "queue_entries_one_waiting_per_patient"

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.PatientID, &e.IsPriority, &e.Status, &e.CreatedAt, &e.ServedAt, &e.CancelledAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperrors.NewNotFoundError("queue entry not found")
		}
		return nil, err
	}
	return &e, nil
}

func scanWaiting(row pgx.Row) (*WaitingEntry, error) {
	var w WaitingEntry
	err := row.Scan(&w.ID, &w.PatientID, &w.IsPriority, &w.Status, &w.CreatedAt, &w.ServedAt, &w.CancelledAt,
		&w.PatientName, &w.PatientEmail, &w.PatientPhone, &w.PatientCPF, &w.Gender)
	return &w, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	e.ID = uuid.New()
	e.Status = StatusWaiting
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO queue_entries (id, patient_id, is_priority, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		e.ID, e.PatientID, e.IsPriority, e.Status).Scan(&e.CreatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err) && db.ConstraintName(err) == oneWaitingPerPatient:
		return apperrors.NewConflictError("patient is already waiting in the queue", err)
	case db.IsForeignKeyViolation(err):
		return apperrors.NewNotFoundError("patient not found")
	default:
		return err
	}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx, `SELECT `+entryCols+` FROM queue_entries WHERE id = $1`, id))
}

func (r *repoPG) ListWaiting(ctx context.Context, priority *bool) ([]*WaitingEntry, error) {
	query := `SELECT ` + waitingCols + `
		FROM queue_entries q
		JOIN patients p ON p.id = q.patient_id
		WHERE q.status = 'waiting'`
	var args []interface{}
	if priority != nil {
		query += ` AND q.is_priority = $1`
		args = append(args, *priority)
	}
	query += ` ` + orderBy

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*WaitingEntry{}
	for rows.Next() {
		w, err := scanWaiting(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *repoPG) CountWaiting(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM queue_entries WHERE status = 'waiting'`).Scan(&n)
	return n, err
}

func (r *repoPG) Attend(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return r.transition(ctx, id, `status = 'attended', served_at = NOW()`)
}

func (r *repoPG) Cancel(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return r.transition(ctx, id, `status = 'cancelled', cancelled_at = NOW()`)
}

// transition applies set to id only while the entry is waiting. When no row
// matches it looks the entry up to tell a missing id from a closed one.
func (r *repoPG) transition(ctx context.Context, id uuid.UUID, set string) (*Entry, error) {
	e, err := scanEntry(r.conn(ctx).QueryRow(ctx,
		`UPDATE queue_entries SET `+set+` WHERE id = $1 AND status = 'waiting' RETURNING `+entryCols, id))
	if err == nil {
		return e, nil
	}
	if !apperrors.IsNotFound(err) {
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperrors.NewConflictError(fmt.Sprintf("queue entry is already %s", current.Status), nil)
}
