package wear

import (
	"time"

	"github.com/google/uuid"
)

type SessionState string

const (
	StateWearing SessionState = "wearing"
	StatePaused  SessionState = "paused"
)

type ComplianceSource string

const (
	SourceSession       ComplianceSource = "session"
	SourceParentCheckin ComplianceSource = "parent_checkin"
)

// WearSession is a wear or pause interval for one (patient, aligner) pair.
// At most one session per aligner has EndedAt = nil. Closed sessions are
// immutable.
type WearSession struct {
	ID        uuid.UUID    `json:"id" db:"id"`
	AlignerID uuid.UUID    `json:"aligner_id" db:"aligner_id"`
	PatientID uuid.UUID    `json:"patient_id" db:"patient_id"`
	State     SessionState `json:"state" db:"state"`
	StartedAt time.Time    `json:"started_at" db:"started_at"`
	EndedAt   *time.Time   `json:"ended_at" db:"ended_at"`
	ActorID   string       `json:"actor_id" db:"actor_id"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// DailyCompliance is the derived wear record for one (aligner, calendar day).
// Once Source is parent_checkin the row is authoritative and session-derived
// recomputation must leave it untouched.
type DailyCompliance struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	AlignerID     uuid.UUID        `json:"aligner_id" db:"aligner_id"`
	PatientID     uuid.UUID        `json:"patient_id" db:"patient_id"`
	Date          time.Time        `json:"date" db:"date"`
	WearMinutes   int              `json:"wear_minutes" db:"wear_minutes"`
	TargetMinutes int              `json:"target_minutes" db:"target_minutes"`
	TargetPercent int              `json:"target_percent" db:"target_percent"`
	IsDayOk       bool             `json:"is_day_ok" db:"is_day_ok"`
	Source        ComplianceSource `json:"source" db:"source"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// AlignerContext is what the treatment directory resolves for an aligner.
type AlignerContext struct {
	AlignerID         uuid.UUID `json:"aligner_id"`
	PatientID         uuid.UUID `json:"patient_id"`
	TreatmentID       uuid.UUID `json:"treatment_id"`
	PhaseID           uuid.UUID `json:"phase_id"`
	TargetHoursPerDay int       `json:"target_hours_per_day"`
	AlignerNumber     int       `json:"aligner_number"`
	TotalAligners     int       `json:"total_aligners"`
}

type CheckinRequest struct {
	AlignerID   string `json:"aligner_id"`
	Date        string `json:"date"`
	WoreAligner bool   `json:"wore_aligner"`
}

type DayStatus struct {
	Date          string `json:"date"`
	WearMinutes   int    `json:"wear_minutes"`
	TargetMinutes int    `json:"target_minutes"`
	IsDayOk       bool   `json:"is_day_ok"`
	Source        string `json:"source"`
}

type WearStatusResponse struct {
	SessionState  string      `json:"session_state"`
	Today         *DayStatus  `json:"today"`
	LastSevenDays []DayStatus `json:"last_seven_days"`
	CurrentStreak int         `json:"current_streak"`
	Celebrate     bool        `json:"celebrate"`
}
