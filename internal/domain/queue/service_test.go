package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/internal/platform/websocket"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

// -- Mocks --

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type mockRepo struct {
	clock   *fakeClock
	entries map[uuid.UUID]*Entry
	cpfs    map[uuid.UUID]string
}

func newMockRepo(clock *fakeClock) *mockRepo {
	return &mockRepo{clock: clock, entries: make(map[uuid.UUID]*Entry), cpfs: make(map[uuid.UUID]string)}
}

func (m *mockRepo) Create(_ context.Context, e *Entry) error {
	for _, existing := range m.entries {
		if existing.PatientID == e.PatientID && existing.Status == StatusWaiting {
			return apperrors.NewConflictError("patient is already waiting in the queue", nil)
		}
	}
	e.ID = uuid.New()
	e.Status = StatusWaiting
	e.CreatedAt = m.clock.Now()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found")
	}
	cp := *e
	return &cp, nil
}

// ListWaiting deliberately returns map order; the service must sort.
func (m *mockRepo) ListWaiting(_ context.Context, priority *bool) ([]*WaitingEntry, error) {
	items := []*WaitingEntry{}
	for _, e := range m.entries {
		if e.Status != StatusWaiting {
			continue
		}
		if priority != nil && e.IsPriority != *priority {
			continue
		}
		items = append(items, &WaitingEntry{Entry: *e, PatientCPF: m.cpfs[e.PatientID]})
	}
	return items, nil
}

func (m *mockRepo) CountWaiting(ctx context.Context) (int, error) {
	items, _ := m.ListWaiting(ctx, nil)
	return len(items), nil
}

func (m *mockRepo) transition(id uuid.UUID, status string) (*Entry, error) {
	e, ok := m.entries[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("queue entry not found")
	}
	if e.Status != StatusWaiting {
		return nil, apperrors.NewConflictError("queue entry is already "+e.Status, nil)
	}
	now := m.clock.Now()
	e.Status = status
	if status == StatusAttended {
		e.ServedAt = &now
	} else {
		e.CancelledAt = &now
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepo) Attend(_ context.Context, id uuid.UUID) (*Entry, error) {
	return m.transition(id, StatusAttended)
}

func (m *mockRepo) Cancel(_ context.Context, id uuid.UUID) (*Entry, error) {
	return m.transition(id, StatusCancelled)
}

type mockDirectory struct {
	byCPF  map[string]uuid.UUID
	owners map[uuid.UUID]uuid.UUID
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{byCPF: make(map[string]uuid.UUID), owners: make(map[uuid.UUID]uuid.UUID)}
}

func (d *mockDirectory) add(cpf string, owner *uuid.UUID) uuid.UUID {
	id := uuid.New()
	d.byCPF[cpf] = id
	if owner != nil {
		d.owners[id] = *owner
	}
	return id
}

func (d *mockDirectory) PatientIDByCPF(_ context.Context, cpf string) (uuid.UUID, error) {
	id, ok := d.byCPF[cpf]
	if !ok {
		return uuid.Nil, apperrors.NewNotFoundError("patient not found")
	}
	return id, nil
}

func (d *mockDirectory) PatientOwner(_ context.Context, patientID uuid.UUID) (*uuid.UUID, error) {
	owner, ok := d.owners[patientID]
	if !ok {
		return nil, nil
	}
	return &owner, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev websocket.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type fixture struct {
	svc   *Service
	repo  *mockRepo
	dir   *mockDirectory
	pub   *recordingPublisher
	clock *fakeClock
}

func newFixture() *fixture {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	repo := newMockRepo(clock)
	dir := newMockDirectory()
	pub := &recordingPublisher{}
	svc := NewService(repo, dir, NewEstimator(DefaultAverageService), pub, zerolog.Nop())
	svc.now = clock.Now
	return &fixture{svc: svc, repo: repo, dir: dir, pub: pub, clock: clock}
}

func staffCtx() context.Context {
	return auth.ContextWithUser(context.Background(), uuid.New().String(), auth.RoleAdmin)
}

func doctorCtx() context.Context {
	return auth.ContextWithUser(context.Background(), uuid.New().String(), auth.RoleDoctor)
}

func userCtx(id uuid.UUID) context.Context {
	return auth.ContextWithUser(context.Background(), id.String(), auth.RoleUser)
}

// -- Tests --

func TestService_EnqueueSinglePatient(t *testing.T) {
	f := newFixture()
	patientID := f.dir.add("111", nil)

	e, err := f.svc.Enqueue(staffCtx(), " 111 ", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == uuid.Nil || e.PatientID != patientID || e.Status != StatusWaiting || e.CreatedAt.IsZero() {
		t.Errorf("unexpected entry: %+v", e)
	}

	pos, err := f.svc.PositionOf(staffCtx(), patientID)
	if err != nil {
		t.Fatal(err)
	}
	if !pos.InQueue || pos.Position != 1 || pos.WaitingCount != 1 {
		t.Errorf("unexpected position: %+v", pos)
	}
	if pos.EstimatedWaitSeconds != 600 || pos.RemainingSeconds != 600 {
		t.Errorf("expected 600s estimate, got %+v", pos)
	}

	if got := f.pub.types(); len(got) != 1 || got[0] != EventChanged {
		t.Errorf("expected one queue.changed event, got %v", got)
	}
}

func TestService_EnqueueValidation(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Enqueue(staffCtx(), "  ", false); !apperrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestService_EnqueueUnknownCPFWritesNothing(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Enqueue(staffCtx(), "999", false)
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(f.repo.entries) != 0 {
		t.Error("no entry may be written for an unknown cpf")
	}
	if len(f.pub.types()) != 0 {
		t.Error("no event may be published for a failed enqueue")
	}
}

func TestService_EnqueueDuplicateWaiting(t *testing.T) {
	f := newFixture()
	f.dir.add("111", nil)
	if _, err := f.svc.Enqueue(staffCtx(), "111", false); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Enqueue(staffCtx(), "111", true); !apperrors.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestService_EnqueueOwnRecordOnly(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	f.dir.add("111", &owner)
	f.dir.add("222", nil)

	if _, err := f.svc.Enqueue(userCtx(owner), "111", false); err != nil {
		t.Fatalf("owner should enqueue: %v", err)
	}
	if _, err := f.svc.Enqueue(userCtx(owner), "222", false); !apperrors.IsForbidden(err) {
		t.Errorf("expected forbidden for someone else's record, got %v", err)
	}
}

func TestService_PriorityScenario(t *testing.T) {
	f := newFixture()
	p1 := f.dir.add("111", nil)
	p2 := f.dir.add("222", nil)

	if _, err := f.svc.Enqueue(staffCtx(), "111", false); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.svc.Enqueue(staffCtx(), "222", true); err != nil {
		t.Fatal(err)
	}

	items, err := f.svc.List(staffCtx(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].PatientID != p2 || items[1].PatientID != p1 {
		t.Fatalf("expected [P2, P1], got %+v", items)
	}

	pos, err := f.svc.PositionOf(staffCtx(), p1)
	if err != nil {
		t.Fatal(err)
	}
	// P1 is second: 2*600 minus the 10 seconds it has already waited.
	if pos.Position != 2 || pos.RemainingSeconds != 1190 {
		t.Errorf("unexpected position for P1: %+v", pos)
	}

	onlyPriority := true
	items, _ = f.svc.List(staffCtx(), &onlyPriority)
	if len(items) != 1 || items[0].PatientID != p2 {
		t.Errorf("priority filter failed: %+v", items)
	}
}

func TestService_AttendScenario(t *testing.T) {
	f := newFixture()
	f.dir.add("111", nil)
	e, _ := f.svc.Enqueue(staffCtx(), "111", false)

	attended, err := f.svc.Attend(doctorCtx(), e.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attended.Status != StatusAttended || attended.ServedAt == nil {
		t.Errorf("expected attended with served_at, got %+v", attended)
	}

	items, _ := f.svc.List(staffCtx(), nil)
	if len(items) != 0 {
		t.Errorf("attended entry must leave the waiting list, got %d", len(items))
	}

	got, err := f.svc.Get(staffCtx(), e.ID)
	if err != nil || got.Status != StatusAttended || got.ServedAt == nil {
		t.Errorf("history lookup failed: %+v, %v", got, err)
	}
}

func TestService_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture()
	f.dir.add("111", nil)
	e, _ := f.svc.Enqueue(staffCtx(), "111", false)

	if _, err := f.svc.Attend(doctorCtx(), e.ID); err != nil {
		t.Fatal(err)
	}
	served := *f.repo.entries[e.ID].ServedAt
	f.clock.Advance(time.Minute)

	if _, err := f.svc.Attend(doctorCtx(), e.ID); !apperrors.IsConflict(err) {
		t.Errorf("re-attend: expected conflict, got %v", err)
	}
	if _, err := f.svc.Cancel(doctorCtx(), e.ID); !apperrors.IsConflict(err) {
		t.Errorf("cancel attended: expected conflict, got %v", err)
	}
	stored := f.repo.entries[e.ID]
	if stored.Status != StatusAttended || !stored.ServedAt.Equal(served) {
		t.Errorf("terminal entry changed: %+v", stored)
	}
}

func TestService_CancelUnknown(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Cancel(staffCtx(), uuid.New()); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := f.svc.Attend(staffCtx(), uuid.New()); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_CancelOwnership(t *testing.T) {
	f := newFixture()
	owner := uuid.New()
	f.dir.add("111", &owner)
	e, _ := f.svc.Enqueue(staffCtx(), "111", false)

	if _, err := f.svc.Cancel(userCtx(uuid.New()), e.ID); !apperrors.IsForbidden(err) {
		t.Errorf("stranger: expected forbidden, got %v", err)
	}
	cancelled, err := f.svc.Cancel(userCtx(owner), e.ID)
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.CancelledAt == nil {
		t.Errorf("unexpected cancelled entry: %+v", cancelled)
	}
	if _, ok := f.repo.entries[e.ID]; !ok {
		t.Error("cancelled entries are retained")
	}
}

func TestService_PositionNotInQueue(t *testing.T) {
	f := newFixture()
	f.dir.add("111", nil)
	outsider := f.dir.add("222", nil)
	f.svc.Enqueue(staffCtx(), "111", false)

	pos, err := f.svc.PositionOf(staffCtx(), outsider)
	if err != nil {
		t.Fatal(err)
	}
	if pos.InQueue || pos.WaitingCount != 1 || pos.EstimatedWaitSeconds != 1200 {
		t.Errorf("unexpected position: %+v", pos)
	}
}

func TestService_PositionForbiddenForOtherPatient(t *testing.T) {
	f := newFixture()
	other := f.dir.add("111", nil)
	if _, err := f.svc.PositionOf(userCtx(uuid.New()), other); !apperrors.IsForbidden(err) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestService_Estimate(t *testing.T) {
	f := newFixture()
	f.dir.add("111", nil)
	f.dir.add("222", nil)
	f.svc.Enqueue(staffCtx(), "111", false)
	f.svc.Enqueue(staffCtx(), "222", false)

	est, err := f.svc.Estimate(staffCtx())
	if err != nil {
		t.Fatal(err)
	}
	if est.WaitingCount != 2 || est.EstimatedWaitSeconds != 1800 || est.EstimatedWaitMinutes != 30 {
		t.Errorf("unexpected estimate: %+v", est)
	}
}

func TestService_PublishSnapshot(t *testing.T) {
	f := newFixture()
	f.dir.add("111", nil)
	f.dir.add("222", nil)
	f.svc.Enqueue(staffCtx(), "111", false)
	f.clock.Advance(30 * time.Second)
	f.svc.Enqueue(staffCtx(), "222", true)

	if err := f.svc.PublishSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	last := f.pub.events[len(f.pub.events)-1]
	if last.Type != EventSnapshot || last.Topic != websocket.TopicQueue {
		t.Fatalf("unexpected event: %+v", last)
	}

	var snap Snapshot
	if err := json.Unmarshal(last.Data, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.WaitingCount != 2 || len(snap.Entries) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.Entries[0].IsPriority || snap.Entries[0].Position != 1 || snap.Entries[0].RemainingSeconds != 600 {
		t.Errorf("unexpected head: %+v", snap.Entries[0])
	}
	if snap.Entries[1].Position != 2 || snap.Entries[1].RemainingSeconds != 1170 {
		t.Errorf("unexpected second: %+v", snap.Entries[1])
	}
	if containsCPF(last.Data) {
		t.Error("snapshot must not carry patient identifiers")
	}
}

func containsCPF(data []byte) bool {
	var raw map[string]interface{}
	_ = json.Unmarshal(data, &raw)
	entries, _ := raw["entries"].([]interface{})
	for _, e := range entries {
		if m, ok := e.(map[string]interface{}); ok {
			if _, has := m["cpf"]; has {
				return true
			}
		}
	}
	return false
}

func TestService_PatientIDForEntry(t *testing.T) {
	f := newFixture()
	patientID := f.dir.add("111", nil)
	e, _ := f.svc.Enqueue(staffCtx(), "111", false)

	got, err := f.svc.PatientIDForEntry(context.Background(), e.ID)
	if err != nil || got != patientID {
		t.Errorf("expected %s, got %s (%v)", patientID, got, err)
	}
	if _, err := f.svc.PatientIDForEntry(context.Background(), uuid.New()); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}
