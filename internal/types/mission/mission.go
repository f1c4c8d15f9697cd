package mission

import (
	"time"

	"github.com/google/uuid"
)

type Frequency string

const (
	FrequencyDaily Frequency = "daily"
	FrequencyOnce  Frequency = "once"
)

type CompletionCriteria string

const (
	CriteriaTimeBased  CompletionCriteria = "time_based"
	CriteriaDaysStreak CompletionCriteria = "days_streak"
	CriteriaPercentage CompletionCriteria = "percentage"
)

type Status string

const (
	StatusAvailable  Status = "available"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

type MissionTemplate struct {
	ID                 uuid.UUID          `json:"id" db:"id"`
	Title              string             `json:"title" db:"title"`
	Description        string             `json:"description" db:"description"`
	Frequency          Frequency          `json:"frequency" db:"frequency"`
	CompletionCriteria CompletionCriteria `json:"completion_criteria" db:"completion_criteria"`
	TargetValue        int                `json:"target_value" db:"target_value"`
	BasePoints         int                `json:"base_points" db:"base_points"`
	BonusPoints        int                `json:"bonus_points" db:"bonus_points"`
	AlignerInterval    int                `json:"aligner_interval" db:"aligner_interval"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
}

// MissionInstance is a per-patient instantiation of a template. Status moves
// forward only; completed is terminal and CompletedAt is set exactly once.
type MissionInstance struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	PatientID    uuid.UUID  `json:"patient_id" db:"patient_id"`
	TemplateID   uuid.UUID  `json:"template_id" db:"template_id"`
	Status       Status     `json:"status" db:"status"`
	Progress     int        `json:"progress" db:"progress"`
	TargetValue  int        `json:"target_value" db:"target_value"`
	PointsEarned int        `json:"points_earned" db:"points_earned"`
	CompletedAt  *time.Time `json:"completed_at" db:"completed_at"`
	ExpiresAt    *time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

type InstanceWithTemplate struct {
	MissionInstance
	Template MissionTemplate `json:"template"`
}
