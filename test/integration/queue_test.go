//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicq/clinicq/internal/domain/identity"
	"github.com/clinicq/clinicq/internal/platform/auth"
	"github.com/clinicq/clinicq/pkg/apperrors"
)

func TestQueue_PriorityOrdering(t *testing.T) {
	resetDB(t)
	svc := newServices()
	ctx := staffCtx()

	a := createPatient(t, svc, "111")
	b := createPatient(t, svc, "222")
	c := createPatient(t, svc, "333")

	_, err := svc.queue.Enqueue(ctx, "111", false)
	require.NoError(t, err)
	_, err = svc.queue.Enqueue(ctx, "222", false)
	require.NoError(t, err)
	_, err = svc.queue.Enqueue(ctx, "333", true)
	require.NoError(t, err)

	items, err := svc.queue.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, c.ID, items[0].PatientID)
	assert.Equal(t, a.ID, items[1].PatientID)
	assert.Equal(t, b.ID, items[2].PatientID)
	require.NotNil(t, items[1].PatientName)
	assert.Equal(t, "Patient 111", *items[1].PatientName)

	priority := true
	onlyPriority, err := svc.queue.List(ctx, &priority)
	require.NoError(t, err)
	require.Len(t, onlyPriority, 1)
	assert.Equal(t, c.ID, onlyPriority[0].PatientID)

	pos, err := svc.queue.PositionOf(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, pos.InQueue)
	assert.Equal(t, 3, pos.Position)
	assert.Equal(t, int64(1800), pos.EstimatedWaitSeconds)

	snap, err := svc.queue.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.WaitingCount)
	assert.Equal(t, 1, snap.Entries[0].Position)
	assert.Equal(t, c.ID, snap.Entries[0].PatientID)

	est, err := svc.queue.Estimate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, est.WaitingCount)
	assert.Equal(t, int64(2400), est.EstimatedWaitSeconds)
}

func TestQueue_OneWaitingEntryPerPatient(t *testing.T) {
	resetDB(t)
	svc := newServices()
	ctx := staffCtx()
	createPatient(t, svc, "444")

	first, err := svc.queue.Enqueue(ctx, "444", false)
	require.NoError(t, err)

	_, err = svc.queue.Enqueue(ctx, "444", true)
	assert.True(t, apperrors.IsConflict(err), "expected conflict, got %v", err)

	_, err = svc.queue.Attend(ctx, first.ID)
	require.NoError(t, err)

	second, err := svc.queue.Enqueue(ctx, "444", false)
	require.NoError(t, err, "a served patient may queue again")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestQueue_ConcurrentEnqueueSamePatient(t *testing.T) {
	resetDB(t)
	svc := newServices()
	createPatient(t, svc, "555")

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.queue.Enqueue(staffCtx(), "555", false)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperrors.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	n, err := svc.queue.Estimate(staffCtx())
	require.NoError(t, err)
	assert.Equal(t, 1, n.WaitingCount)
}

func TestQueue_TerminalTransitions(t *testing.T) {
	resetDB(t)
	svc := newServices()
	ctx := staffCtx()
	createPatient(t, svc, "666")
	createPatient(t, svc, "777")

	attended, err := svc.queue.Enqueue(ctx, "666", false)
	require.NoError(t, err)
	cancelled, err := svc.queue.Enqueue(ctx, "777", false)
	require.NoError(t, err)

	got, err := svc.queue.Attend(ctx, attended.ID)
	require.NoError(t, err)
	assert.Equal(t, "attended", got.Status)
	require.NotNil(t, got.ServedAt)

	_, err = svc.queue.Attend(ctx, attended.ID)
	assert.True(t, apperrors.IsConflict(err), "second attend: %v", err)
	_, err = svc.queue.Cancel(ctx, attended.ID)
	assert.True(t, apperrors.IsConflict(err), "cancel after attend: %v", err)

	got, err = svc.queue.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CancelledAt)
	assert.Nil(t, got.ServedAt)

	// Terminal entries stay readable.
	kept, err := svc.queue.Get(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", kept.Status)

	_, err = svc.queue.Attend(ctx, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))

	items, err := svc.queue.List(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQueue_UnknownCPF(t *testing.T) {
	resetDB(t)
	svc := newServices()

	_, err := svc.queue.Enqueue(staffCtx(), "does-not-exist", false)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = svc.queue.Enqueue(staffCtx(), "   ", false)
	assert.True(t, apperrors.IsValidation(err))
}

func TestQueue_PatientsActOnTheirOwnEntry(t *testing.T) {
	resetDB(t)
	svc := newServices()

	users := identity.NewUserRepoPG(globalPool)
	owner := &identity.User{Login: "maria", PasswordHash: "x", Role: auth.RoleUser}
	require.NoError(t, users.Create(context.Background(), owner))
	ownerCtx := auth.ContextWithUser(context.Background(), owner.ID.String(), auth.RoleUser)

	const mine = "888"
	p := createPatientAs(t, svc, ownerCtx, mine)
	require.NotNil(t, p.UserID)
	assert.Equal(t, owner.ID, *p.UserID)
	createPatient(t, svc, "999")

	strangerCtx := auth.ContextWithUser(context.Background(), uuid.NewString(), auth.RoleUser)
	_, err := svc.queue.Enqueue(strangerCtx, mine, false)
	assert.True(t, apperrors.IsForbidden(err), "stranger enqueue: %v", err)

	entry, err := svc.queue.Enqueue(ownerCtx, mine, false)
	require.NoError(t, err)

	_, err = svc.queue.Enqueue(ownerCtx, "999", false)
	assert.True(t, apperrors.IsForbidden(err), "enqueue someone else: %v", err)

	pos, err := svc.queue.PositionOf(ownerCtx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pos.Position)

	_, err = svc.queue.Cancel(strangerCtx, entry.ID)
	assert.True(t, apperrors.IsForbidden(err), "stranger cancel: %v", err)

	_, err = svc.queue.Cancel(ownerCtx, entry.ID)
	require.NoError(t, err)
}
