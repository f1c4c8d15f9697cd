// Package repo defines the storage interfaces the engine services depend on.
// Postgres implementations live in repo/postgres; repo/memory provides
// mutex-guarded fakes for tests.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/types/mission"
	"alignerQuestAPI/internal/types/notification"
	"alignerQuestAPI/internal/types/points"
	"alignerQuestAPI/internal/types/quest"
	"alignerQuestAPI/internal/types/wear"
)

// WearRepo persists wear/pause sessions and per-day compliance rows.
type WearRepo interface {
	// OpenSession returns the single open session for the aligner, or nil.
	OpenSession(ctx context.Context, alignerID uuid.UUID) (*wear.WearSession, error)
	InsertSession(ctx context.Context, s *wear.WearSession) error
	CloseSession(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) error
	// SessionsOverlapping returns every session of the aligner whose interval
	// intersects [from, to). Open sessions are included.
	SessionsOverlapping(ctx context.Context, alignerID uuid.UUID, from, to time.Time) ([]*wear.WearSession, error)

	// GetDaily returns the compliance row for (aligner, date), or nil.
	GetDaily(ctx context.Context, alignerID uuid.UUID, date time.Time) (*wear.DailyCompliance, error)
	UpsertDaily(ctx context.Context, rec *wear.DailyCompliance) error
	// DailyByPatient returns compliance rows for the patient across all
	// aligners with date in [from, to], ordered by date.
	DailyByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*wear.DailyCompliance, error)
	DailyByAligner(ctx context.Context, alignerID uuid.UUID, from, to time.Time) ([]*wear.DailyCompliance, error)
	// DailyTotals sums wear and target minutes over every compliance row of
	// the aligner.
	DailyTotals(ctx context.Context, alignerID uuid.UUID) (wearMinutes, targetMinutes int, err error)
}

// MissionRepo persists mission templates and per-patient instances.
type MissionRepo interface {
	ListTemplates(ctx context.Context) ([]*mission.MissionTemplate, error)
	InsertInstance(ctx context.Context, inst *mission.MissionInstance) error
	// ActiveInstances returns instances in available/in_progress status with
	// their templates attached.
	ActiveInstances(ctx context.Context, patientID uuid.UUID) ([]*mission.InstanceWithTemplate, error)
	ListInstances(ctx context.Context, patientID uuid.UUID) ([]*mission.InstanceWithTemplate, error)
	UpdateProgress(ctx context.Context, instanceID uuid.UUID, progress int, status mission.Status) error
	// CompleteInstance transitions to completed and records the award, but
	// only if the instance is not already completed. Returns true when this
	// call won the transition.
	CompleteInstance(ctx context.Context, instanceID uuid.UUID, progress, pointsEarned int, completedAt time.Time) (bool, error)
	// ActivateInstance moves available → in_progress; no-op on any other
	// status. Returns true when the transition happened.
	ActivateInstance(ctx context.Context, instanceID uuid.UUID) (bool, error)
	// ExpireOverdue forces available/in_progress instances with a deadline
	// before now into expired status. Returns the number of rows changed.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// QuestRepo persists per-aligner quests.
type QuestRepo interface {
	// GetByAligner returns the quest for the aligner, or nil.
	GetByAligner(ctx context.Context, alignerID uuid.UUID) (*quest.AlignerQuest, error)
	Insert(ctx context.Context, q *quest.AlignerQuest) error
	MarkPhotoSetDone(ctx context.Context, alignerID uuid.UUID) error
	IncrementLessonsDone(ctx context.Context, alignerID uuid.UUID) (int, error)
	// Finalize transitions active → status and records the final adherence,
	// but only if the quest is still active. Returns true when this call won
	// the transition.
	Finalize(ctx context.Context, alignerID uuid.UUID, status quest.Status, adherencePercent int, finalizedAt time.Time) (bool, error)
}

// PointsRepo is the durable balance plus append-only transaction log. All
// balance mutations go through Adjust; transactions are never updated or
// deleted.
type PointsRepo interface {
	GetOrCreateBalance(ctx context.Context, patientID uuid.UUID) (*points.Balance, error)
	// Adjust applies the deltas atomically, appends one ledger transaction
	// and returns the new balance alongside it.
	Adjust(ctx context.Context, patientID uuid.UUID, deltaCoins, deltaXP int, kind points.TransactionKind, metadata map[string]string) (*points.Balance, *points.Transaction, error)
	Transactions(ctx context.Context, patientID uuid.UUID, limit int) ([]*points.Transaction, error)
}

// TreatmentDirectory resolves patient/aligner/treatment identity. The engine
// consumes it, it never owns these entities.
type TreatmentDirectory interface {
	ResolvePatient(ctx context.Context, clerkID string) (uuid.UUID, error)
	ResolveAligner(ctx context.Context, alignerID uuid.UUID) (*wear.AlignerContext, error)
	// PhaseTargetPercent returns the phase's adherence target, or 0 when the
	// phase defines none.
	PhaseTargetPercent(ctx context.Context, phaseID uuid.UUID) (int, error)
	TreatmentStartDate(ctx context.Context, treatmentID uuid.UUID) (time.Time, error)
}

// DeviceTokenRepo stores push tokens for the celebration notification path.
type DeviceTokenRepo interface {
	Register(ctx context.Context, patientID uuid.UUID, token, platform string) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]notification.DeviceToken, error)
}
