package patient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/domain/queue"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/db"
	"github.com/clinicq/clinicq/internal/platform/websocket"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

// -- Transaction fake --

// stagedTx buffers writes made through it and applies them on Commit, so the
// mocks below behave like rows in a rolled back transaction.
type stagedTx struct {
	pgx.Tx
	staged     []func()
	committed  bool
	rolledBack bool
}

func (t *stagedTx) Commit(context.Context) error {
	for _, apply := range t.staged {
		apply()
	}
	t.committed = true
	return nil
}

func (t *stagedTx) Rollback(context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.staged = nil
	t.rolledBack = true
	return nil
}

type txBeginner struct{ last *stagedTx }

func (b *txBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.last = &stagedTx{}
	return b.last, nil
}

// write applies fn now, or at commit when ctx carries a stagedTx.
func write(ctx context.Context, fn func()) {
	if tx, ok := db.TxFromContext(ctx).(*stagedTx); ok {
		tx.staged = append(tx.staged, fn)
		return
	}
	fn()
}

// -- Mock Repositories --

type mockPatientRepo struct {
	patients map[uuid.UUID]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatientRepo) Create(ctx context.Context, p *Patient) error {
	for _, existing := range m.patients {
		if existing.CPF == p.CPF {
			return apperrors.NewConflictError("cpf already registered", nil)
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	write(ctx, func() { m.patients[p.ID] = p })
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("patient not found")
	}
	return p, nil
}

func (m *mockPatientRepo) GetByCPF(_ context.Context, cpf string) (*Patient, error) {
	for _, p := range m.patients {
		if p.CPF == cpf {
			return p, nil
		}
	}
	return nil, apperrors.NewNotFoundError("patient not found")
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	for _, p := range m.patients {
		if p.UserID != nil && *p.UserID == userID {
			return p, nil
		}
	}
	return nil, apperrors.NewNotFoundError("patient not found")
}

func (m *mockPatientRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	var all []*Patient
	for _, p := range m.patients {
		all = append(all, p)
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

type mockEntryRepo struct {
	entries   map[uuid.UUID]*queue.Entry
	createErr error
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{entries: make(map[uuid.UUID]*queue.Entry)}
}

func (m *mockEntryRepo) Create(ctx context.Context, e *queue.Entry) error {
	if m.createErr != nil {
		return m.createErr
	}
	e.ID = uuid.New()
	e.Status = queue.StatusWaiting
	e.CreatedAt = time.Now()
	write(ctx, func() { m.entries[e.ID] = e })
	return nil
}

func (m *mockEntryRepo) GetByID(_ context.Context, id uuid.UUID) (*queue.Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found")
	}
	return e, nil
}

func (m *mockEntryRepo) ListWaiting(context.Context, *bool) ([]*queue.WaitingEntry, error) {
	return nil, nil
}

func (m *mockEntryRepo) CountWaiting(context.Context) (int, error) { return len(m.entries), nil }

func (m *mockEntryRepo) Attend(_ context.Context, id uuid.UUID) (*queue.Entry, error) {
	return nil, apperrors.NewNotFoundError("queue entry not found")
}

func (m *mockEntryRepo) Cancel(_ context.Context, id uuid.UUID) (*queue.Entry, error) {
	return nil, apperrors.NewNotFoundError("queue entry not found")
}

type countingPublisher struct{ events []websocket.Event }

func (p *countingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	svc      *Service
	patients *mockPatientRepo
	entries  *mockEntryRepo
	tx       *txBeginner
	pub      *countingPublisher
}

func newFixture() *fixture {
	f := &fixture{
		patients: newMockPatientRepo(),
		entries:  newMockEntryRepo(),
		tx:       &txBeginner{},
		pub:      &countingPublisher{},
	}
	f.svc = NewService(f.patients, f.entries, f.tx, f.pub, zerolog.Nop())
	return f
}

func adminCtx() context.Context {
	return auth.ContextWithUser(context.Background(), uuid.New().String(), auth.RoleAdmin)
}

func userCtx(id uuid.UUID) context.Context {
	return auth.ContextWithUser(context.Background(), id.String(), auth.RoleUser)
}

func strPtr(s string) *string { return &s }

// -- Tests --

func TestService_CreateLinksUserToSelf(t *testing.T) {
	f := newFixture()
	me := uuid.New()
	someoneElse := uuid.New()

	p := &Patient{CPF: " 111 ", UserID: &someoneElse, Name: strPtr("Ana")}
	if err := f.svc.Create(userCtx(me), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UserID == nil || *p.UserID != me {
		t.Errorf("expected record linked to caller, got %v", p.UserID)
	}
	if p.CPF != "111" {
		t.Errorf("expected trimmed cpf, got %q", p.CPF)
	}
}

func TestService_CreateByAdminKeepsLink(t *testing.T) {
	f := newFixture()
	link := uuid.New()
	p := &Patient{CPF: "111", UserID: &link}
	if err := f.svc.Create(adminCtx(), p); err != nil {
		t.Fatal(err)
	}
	if p.UserID == nil || *p.UserID != link {
		t.Errorf("admin-supplied link lost: %v", p.UserID)
	}
}

func TestService_CreateValidationAndConflict(t *testing.T) {
	f := newFixture()
	if err := f.svc.Create(adminCtx(), &Patient{CPF: "  "}); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
	if err := f.svc.Create(adminCtx(), &Patient{CPF: "111"}); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.Create(adminCtx(), &Patient{CPF: "111"}); !apperrors.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestService_GetByUser(t *testing.T) {
	f := newFixture()
	me := uuid.New()

	res, err := f.svc.GetByUser(userCtx(me), me)
	if err != nil {
		t.Fatal(err)
	}
	if res.Exists || res.Patient != nil {
		t.Errorf("expected exists=false, got %+v", res)
	}

	if err := f.svc.Create(userCtx(me), &Patient{CPF: "111"}); err != nil {
		t.Fatal(err)
	}
	res, err = f.svc.GetByUser(userCtx(me), me)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exists || res.Patient.CPF != "111" {
		t.Errorf("expected the linked patient, got %+v", res)
	}

	if _, err := f.svc.GetByUser(userCtx(uuid.New()), me); !apperrors.IsForbidden(err) {
		t.Errorf("expected forbidden for another user, got %v", err)
	}
	if res, err := f.svc.GetByUser(adminCtx(), me); err != nil || !res.Exists {
		t.Errorf("admin lookup failed: %+v, %v", res, err)
	}
}

func TestService_GetOwnership(t *testing.T) {
	f := newFixture()
	me := uuid.New()
	p := &Patient{CPF: "111"}
	if err := f.svc.Create(userCtx(me), p); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.Get(userCtx(me), p.ID); err != nil {
		t.Errorf("owner should read own record: %v", err)
	}
	if _, err := f.svc.Get(userCtx(uuid.New()), p.ID); !apperrors.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}
	if _, err := f.svc.Get(adminCtx(), uuid.New()); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_RegisterAndEnqueue(t *testing.T) {
	f := newFixture()
	res, err := f.svc.RegisterAndEnqueue(adminCtx(), &Patient{CPF: "111", Name: strPtr("Ana")}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.tx.last.committed {
		t.Error("expected the transaction to commit")
	}
	if res.QueueEntry.PatientID != res.Patient.ID || !res.QueueEntry.IsPriority || res.QueueEntry.Status != queue.StatusWaiting {
		t.Errorf("unexpected admission: %+v", res.QueueEntry)
	}
	if len(f.patients.patients) != 1 || len(f.entries.entries) != 1 {
		t.Errorf("expected one patient and one entry, got %d/%d", len(f.patients.patients), len(f.entries.entries))
	}
	if len(f.pub.events) != 1 || f.pub.events[0].Type != queue.EventChanged {
		t.Errorf("expected a queue.changed event, got %+v", f.pub.events)
	}
}

func TestService_RegisterAndEnqueue_DuplicateCPF(t *testing.T) {
	f := newFixture()
	if err := f.svc.Create(adminCtx(), &Patient{CPF: "111"}); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.RegisterAndEnqueue(adminCtx(), &Patient{CPF: "111"}, false)
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !f.tx.last.rolledBack {
		t.Error("expected rollback")
	}
	if len(f.entries.entries) != 0 {
		t.Error("no queue entry may exist after a cpf conflict")
	}
	if len(f.pub.events) != 0 {
		t.Error("no event for a failed admission")
	}
}

func TestService_RegisterAndEnqueue_QueueFailureRollsBackPatient(t *testing.T) {
	f := newFixture()
	f.entries.createErr = errors.New("connection reset")

	if _, err := f.svc.RegisterAndEnqueue(adminCtx(), &Patient{CPF: "222"}, false); err == nil {
		t.Fatal("expected error")
	}
	if !f.tx.last.rolledBack {
		t.Error("expected rollback")
	}
	if len(f.patients.patients) != 0 {
		t.Error("patient insert must be rolled back with the failed queue insert")
	}
}

func TestService_PatientDirectory(t *testing.T) {
	f := newFixture()
	me := uuid.New()
	p := &Patient{CPF: "111"}
	if err := f.svc.Create(userCtx(me), p); err != nil {
		t.Fatal(err)
	}

	var dir queue.PatientDirectory = f.svc
	id, err := dir.PatientIDByCPF(context.Background(), "111")
	if err != nil || id != p.ID {
		t.Errorf("PatientIDByCPF = %s, %v", id, err)
	}
	if _, err := dir.PatientIDByCPF(context.Background(), "999"); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	owner, err := dir.PatientOwner(context.Background(), p.ID)
	if err != nil || owner == nil || *owner != me {
		t.Errorf("PatientOwner = %v, %v", owner, err)
	}
}
