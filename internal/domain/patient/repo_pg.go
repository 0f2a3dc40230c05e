package patient

import (
	"context"

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

const patientCols = `id, user_id, name, email, phone, to_char(birth_date, 'YYYY-MM-DD'), gender,
	insurance_provider, insurance_number, cpf, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Email, &p.Phone, &p.BirthDate, &p.Gender,
		&p.InsuranceProvider, &p.InsuranceNumber, &p.CPF, &p.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperrors.NewNotFoundError("patient not found")
		}
		return nil, err
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, user_id, name, email, phone, birth_date, gender,
			insurance_provider, insurance_number, cpf)
		VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, $9, $10)
		RETURNING created_at`,
		p.ID, p.UserID, p.Name, p.Email, p.Phone, p.BirthDate, p.Gender,
		p.InsuranceProvider, p.InsuranceNumber, p.CPF).Scan(&p.CreatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err):
		return apperrors.NewConflictError("cpf already registered", err)
	case db.IsForeignKeyViolation(err):
		return apperrors.NewValidationError("user_id does not reference an existing user")
	default:
		return err
	}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByCPF(ctx context.Context, cpf string) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE cpf = $1`, cpf))
}

func (r *repoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE user_id = $1 ORDER BY created_at, id LIMIT 1`, userID))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}
