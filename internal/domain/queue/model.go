package queue

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusWaiting   = "waiting"
	StatusAttended  = "attended"
	StatusCancelled = "cancelled"
)

// Entry is one visit in the queue. Entries are never deleted; attended and
// cancelled are terminal.
type Entry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	IsPriority  bool       `db:"is_priority" json:"is_priority"`
	Status      string     `db:"status" json:"status"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ServedAt    *time.Time `db:"served_at" json:"served_at,omitempty"`
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// WaitingEntry is a waiting Entry joined with the patient fields the
// reception screens show.
type WaitingEntry struct {
	Entry
	PatientName  *string `db:"name" json:"name,omitempty"`
	PatientEmail *string `db:"email" json:"email,omitempty"`
	PatientPhone *string `db:"phone" json:"phone,omitempty"`
	PatientCPF   string  `db:"cpf" json:"cpf"`
	Gender       *string `db:"gender" json:"gender,omitempty"`
}

type EnqueueRequest struct {
	CPF        string `json:"cpf" validate:"notblank,max=32"`
	IsPriority bool   `json:"is_priority"`
}

// Position describes where a patient stands in the waiting list.
type Position struct {
	InQueue              bool   `json:"in_queue"`
	Position             int    `json:"position,omitempty"`
	WaitingCount         int    `json:"waiting_count"`
	EstimatedWaitSeconds int64  `json:"estimated_wait_seconds"`
	RemainingSeconds     int64  `json:"remaining_seconds"`
	Entry                *Entry `json:"entry,omitempty"`
}

// Estimate is the expected wait for someone joining the queue now.
type Estimate struct {
	WaitingCount         int   `json:"waiting_count"`
	EstimatedWaitSeconds int64 `json:"estimated_wait_seconds"`
	EstimatedWaitMinutes int64 `json:"estimated_wait_minutes"`
}

// SnapshotItem is the public view of a waiting entry pushed to the live
// feed. Patient contact fields are left out since every connected client
// receives it.
type SnapshotItem struct {
	ID               uuid.UUID `json:"id"`
	PatientID        uuid.UUID `json:"patient_id"`
	IsPriority       bool      `json:"is_priority"`
	CreatedAt        time.Time `json:"created_at"`
	Position         int       `json:"position"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

type Snapshot struct {
	GeneratedAt           time.Time      `json:"generated_at"`
	WaitingCount          int            `json:"waiting_count"`
	AverageServiceSeconds int64          `json:"average_service_seconds"`
	Entries               []SnapshotItem `json:"entries"`
}
