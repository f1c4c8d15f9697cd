package quest

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AlignerQuest is the composite per-aligner goal: adherence percentage plus
// photo submission plus lesson completion. Created lazily, finalized exactly
// once when the aligner's wear period ends.
type AlignerQuest struct {
	ID                    uuid.UUID  `json:"id" db:"id"`
	AlignerID             uuid.UUID  `json:"aligner_id" db:"aligner_id"`
	PatientID             uuid.UUID  `json:"patient_id" db:"patient_id"`
	TargetPercent         int        `json:"target_percent" db:"target_percent"`
	TargetMinutesPerDay   int        `json:"target_minutes_per_day" db:"target_minutes_per_day"`
	PhotoSetDone          bool       `json:"photo_set_done" db:"photo_set_done"`
	LessonsDone           int        `json:"lessons_done" db:"lessons_done"`
	LessonsTarget         int        `json:"lessons_target" db:"lessons_target"`
	RewardCoins           int        `json:"reward_coins" db:"reward_coins"`
	RewardXP              int        `json:"reward_xp" db:"reward_xp"`
	Status                Status     `json:"status" db:"status"`
	AdherencePercentFinal *int       `json:"adherence_percent_final" db:"adherence_percent_final"`
	CreatedAt             time.Time  `json:"created_at" db:"created_at"`
	FinalizedAt           *time.Time `json:"finalized_at" db:"finalized_at"`
}

type QuestStatusResponse struct {
	Quest             *AlignerQuest `json:"quest"`
	AdherenceToDate   int           `json:"adherence_to_date"`
	WearMinutesTotal  int           `json:"wear_minutes_total"`
	TargetMinutesSum  int           `json:"target_minutes_total"`
}
