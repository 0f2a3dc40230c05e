package anamnesis

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is a patient's clinical intake note. A patient has at most one.
type Record struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	PatientID             uuid.UUID `db:"patient_id" json:"patient_id"`
	ChiefComplaint        string    `db:"chief_complaint" json:"chief_complaint"`
	PresentIllnessHistory *string   `db:"present_illness_history" json:"present_illness_history"`
	MedicalHistory        *string   `db:"medical_history" json:"medical_history"`
	CurrentMedications    *string   `db:"current_medications" json:"current_medications"`
	Allergies             *string   `db:"allergies" json:"allergies"`
	FamilyHistory         *string   `db:"family_history" json:"family_history"`
	LifestyleHabits       *string   `db:"lifestyle_habits" json:"lifestyle_habits"`
	SystemsReview         *string   `db:"systems_review" json:"systems_review"`
	OtherInformation      *string   `db:"other_information" json:"other_information"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Request is the body accepted by create and update.
type Request struct {
	ChiefComplaint        string `json:"chief_complaint" validate:"notblank"`
	PresentIllnessHistory string `json:"present_illness_history"`
	MedicalHistory        string `json:"medical_history"`
	CurrentMedications    string `json:"current_medications"`
	Allergies             string `json:"allergies"`
	FamilyHistory         string `json:"family_history"`
	LifestyleHabits       string `json:"lifestyle_habits"`
	SystemsReview         string `json:"systems_review"`
	OtherInformation      string `json:"other_information"`
}

// ToRecord copies the request into a record, storing blank optional fields
// as NULL.
func (r *Request) ToRecord(patientID uuid.UUID) *Record {
	return &Record{
		PatientID:             patientID,
		ChiefComplaint:        strings.TrimSpace(r.ChiefComplaint),
		PresentIllnessHistory: nullable(r.PresentIllnessHistory),
		MedicalHistory:        nullable(r.MedicalHistory),
		CurrentMedications:    nullable(r.CurrentMedications),
		Allergies:             nullable(r.Allergies),
		FamilyHistory:         nullable(r.FamilyHistory),
		LifestyleHabits:       nullable(r.LifestyleHabits),
		SystemsReview:         nullable(r.SystemsReview),
		OtherInformation:      nullable(r.OtherInformation),
	}
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
