package anamnesis

import (
	"context"
	"fmt"
	"strings"

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

const recordCols = `id, patient_id, chief_complaint, present_illness_history, medical_history,
	current_medications, allergies, family_history, lifestyle_habits, systems_review,
	other_information, created_at, updated_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var a Record
	err := row.Scan(&a.ID, &a.PatientID, &a.ChiefComplaint, &a.PresentIllnessHistory, &a.MedicalHistory,
		&a.CurrentMedications, &a.Allergies, &a.FamilyHistory, &a.LifestyleHabits, &a.SystemsReview,
		&a.OtherInformation, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperrors.NewNotFoundError("anamnesis not found")
		}
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Record) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO anamnesis (id, patient_id, chief_complaint, present_illness_history, medical_history,
			current_medications, allergies, family_history, lifestyle_habits, systems_review, other_information)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.ChiefComplaint, a.PresentIllnessHistory, a.MedicalHistory,
		a.CurrentMedications, a.Allergies, a.FamilyHistory, a.LifestyleHabits, a.SystemsReview,
		a.OtherInformation).Scan(&a.CreatedAt, &a.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperrors.NewConflictError("patient already has an anamnesis", err)
	case db.IsForeignKeyViolation(err):
		return apperrors.NewNotFoundError("patient not found")
	default:
		return err
	}
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recordCols+` FROM anamnesis WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Record{}
	for rows.Next() {
		a, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) GetByPatient(ctx context.Context, patientID uuid.UUID) (*Record, error) {
	return scanRecord(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM anamnesis WHERE patient_id = $1 ORDER BY created_at DESC LIMIT 1`, patientID))
}

var clinicalCols = []string{
	"chief_complaint", "present_illness_history", "medical_history", "current_medications",
	"allergies", "family_history", "lifestyle_habits", "systems_review", "other_information",
}

// clinicalSet renders the SET list for the clinical columns with
// placeholders numbered from first.
func clinicalSet(first int) string {
	parts := make([]string, len(clinicalCols))
	for i, col := range clinicalCols {
		parts[i] = fmt.Sprintf("%s = $%d", col, first+i)
	}
	return strings.Join(parts, ", ") + ", updated_at = NOW()"
}

func clinicalArgs(a *Record) []interface{} {
	return []interface{}{
		a.ChiefComplaint, a.PresentIllnessHistory, a.MedicalHistory, a.CurrentMedications,
		a.Allergies, a.FamilyHistory, a.LifestyleHabits, a.SystemsReview, a.OtherInformation,
	}
}

func (r *repoPG) Update(ctx context.Context, a *Record) error {
	args := append([]interface{}{a.ID, a.PatientID}, clinicalArgs(a)...)
	return r.update(ctx, a, `UPDATE anamnesis SET `+clinicalSet(3)+`
		WHERE id = $1 AND patient_id = $2 RETURNING `+recordCols, args)
}

func (r *repoPG) UpdateByPatient(ctx context.Context, a *Record) error {
	args := append([]interface{}{a.PatientID}, clinicalArgs(a)...)
	return r.update(ctx, a, `UPDATE anamnesis SET `+clinicalSet(2)+`
		WHERE patient_id = $1 RETURNING `+recordCols, args)
}

func (r *repoPG) update(ctx context.Context, a *Record, sql string, args []interface{}) error {
	updated, err := scanRecord(r.conn(ctx).QueryRow(ctx, sql, args...))
	if err != nil {
		return err
	}
	*a = *updated
	return nil
}
