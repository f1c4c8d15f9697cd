package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/types/quest"
	"alignerQuestAPI/internal/types/wear"
	"alignerQuestAPI/repo"
)

const (
	defaultLessonsTarget = 1
	defaultRewardCoins   = 150
	defaultRewardXP      = 75
)

// QuestService owns the per-aligner composite goal. Quests are created
// lazily on first touch and finalized exactly once when the aligner's wear
// period ends.
type QuestService struct {
	questRepo     repo.QuestRepo
	wearRepo      repo.WearRepo
	directory     repo.TreatmentDirectory
	pointsService *PointsService
	compliance    *ComplianceService
	sessions      *SessionService
	missions      *MissionService
}

func NewQuestService(questRepo repo.QuestRepo, wearRepo repo.WearRepo, directory repo.TreatmentDirectory, pointsService *PointsService, compliance *ComplianceService, sessions *SessionService, missions *MissionService) *QuestService {
	return &QuestService{
		questRepo:     questRepo,
		wearRepo:      wearRepo,
		directory:     directory,
		pointsService: pointsService,
		compliance:    compliance,
		sessions:      sessions,
		missions:      missions,
	}
}

// EnsureQuestForAligner returns the aligner's quest, creating it on first
// touch. A conflicting concurrent insert is resolved by re-reading.
func (s *QuestService) EnsureQuestForAligner(ctx context.Context, actx *wear.AlignerContext) (*quest.AlignerQuest, error) {
	q, err := s.questRepo.GetByAligner(ctx, actx.AlignerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load quest: %w", err)
	}
	if q != nil {
		return q, nil
	}

	targetPercent, err := s.directory.PhaseTargetPercent(ctx, actx.PhaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve phase target: %w", err)
	}
	if targetPercent <= 0 {
		targetPercent = defaultTargetPercent
	}

	q = &quest.AlignerQuest{
		ID:                  uuid.New(),
		AlignerID:           actx.AlignerID,
		PatientID:           actx.PatientID,
		TargetPercent:       targetPercent,
		TargetMinutesPerDay: actx.TargetHoursPerDay * 60,
		LessonsTarget:       defaultLessonsTarget,
		RewardCoins:         defaultRewardCoins,
		RewardXP:            defaultRewardXP,
		Status:              quest.StatusActive,
		CreatedAt:           time.Now().UTC(),
	}
	if err := s.questRepo.Insert(ctx, q); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return s.questRepo.GetByAligner(ctx, actx.AlignerID)
		}
		return nil, fmt.Errorf("failed to create quest: %w", err)
	}
	return q, nil
}

// MarkPhotoSetDone records the progress-photo submission. Repeat calls keep
// the flag true; it never resets.
func (s *QuestService) MarkPhotoSetDone(ctx context.Context, alignerID uuid.UUID) error {
	actx, err := s.directory.ResolveAligner(ctx, alignerID)
	if err != nil {
		return err
	}
	if _, err := s.EnsureQuestForAligner(ctx, actx); err != nil {
		return err
	}
	return s.questRepo.MarkPhotoSetDone(ctx, alignerID)
}

// IncrementLessonsDone bumps the lesson counter and returns the new value.
func (s *QuestService) IncrementLessonsDone(ctx context.Context, alignerID uuid.UUID) (int, error) {
	actx, err := s.directory.ResolveAligner(ctx, alignerID)
	if err != nil {
		return 0, err
	}
	if _, err := s.EnsureQuestForAligner(ctx, actx); err != nil {
		return 0, err
	}
	return s.questRepo.IncrementLessonsDone(ctx, alignerID)
}

// QuestStatus returns the quest plus running adherence for the dashboard.
func (s *QuestService) QuestStatus(ctx context.Context, clerkID string, alignerID uuid.UUID) (*quest.QuestStatusResponse, error) {
	patientID, err := s.directory.ResolvePatient(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	actx, err := s.directory.ResolveAligner(ctx, alignerID)
	if err != nil {
		return nil, err
	}
	if actx.PatientID != patientID {
		return nil, fmt.Errorf("%w: aligner belongs to another patient", apperr.ErrPermissionDenied)
	}

	q, err := s.EnsureQuestForAligner(ctx, actx)
	if err != nil {
		return nil, err
	}

	wearSum, targetSum, err := s.wearRepo.DailyTotals(ctx, alignerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily totals: %w", err)
	}
	adherence := 0
	if targetSum > 0 {
		adherence = wearSum * 100 / targetSum
	}

	return &quest.QuestStatusResponse{
		Quest:            q,
		AdherenceToDate:  adherence,
		WearMinutesTotal: wearSum,
		TargetMinutesSum: targetSum,
	}, nil
}

// FinalizeQuestForAligner settles the quest when the aligner's wear period
// ends. The open session is closed, today's compliance refreshed, then the
// quest transitions exactly once; the reward is paid only by the winning
// call.
func (s *QuestService) FinalizeQuestForAligner(ctx context.Context, alignerID uuid.UUID) (*quest.AlignerQuest, error) {
	actx, err := s.directory.ResolveAligner(ctx, alignerID)
	if err != nil {
		return nil, err
	}
	q, err := s.EnsureQuestForAligner(ctx, actx)
	if err != nil {
		return nil, err
	}
	if q.Status != quest.StatusActive {
		return q, nil
	}

	if s.sessions != nil {
		if err := s.sessions.CloseOpenSession(ctx, alignerID); err != nil {
			log.Printf("quest: closing open session failed for aligner %s: %v", alignerID, err)
		}
	}
	if s.compliance != nil {
		if _, _, _, err := s.compliance.UpsertDaily(ctx, actx, time.Now().UTC()); err != nil {
			log.Printf("quest: compliance refresh failed for aligner %s: %v", alignerID, err)
		}
	}

	wearSum, targetSum, err := s.wearRepo.DailyTotals(ctx, alignerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily totals: %w", err)
	}
	adherence := 0
	if targetSum > 0 {
		adherence = wearSum * 100 / targetSum
	}

	// Re-read so the photo/lesson flags are current before the verdict.
	q, err = s.questRepo.GetByAligner(ctx, alignerID)
	if err != nil || q == nil {
		return nil, fmt.Errorf("failed to reload quest: %w", err)
	}

	status := quest.StatusFailed
	if adherence >= q.TargetPercent && q.PhotoSetDone && q.LessonsDone >= q.LessonsTarget {
		status = quest.StatusCompleted
	}

	won, err := s.questRepo.Finalize(ctx, alignerID, status, adherence, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to finalize quest: %w", err)
	}
	if won {
		questsFinalizedTotal.WithLabelValues(string(status)).Inc()
		if status == quest.StatusCompleted && q.RewardCoins > 0 {
			_, _, err := s.pointsService.AwardReward(ctx, q.PatientID, q.RewardCoins, q.RewardXP, map[string]string{
				"reason":     "quest_completed",
				"quest_id":   q.ID.String(),
				"aligner_id": alignerID.String(),
			})
			if err != nil {
				return nil, fmt.Errorf("quest finalized but reward failed: %w", err)
			}
		}
	}

	// Finalization marks the aligner change: advance treatment-progress
	// missions and unlock anything gated on the next aligner number.
	if s.missions != nil {
		if err := s.missions.UpdateTreatmentProgressMissions(ctx, q.PatientID, actx.AlignerNumber, actx.TotalAligners); err != nil {
			log.Printf("quest: treatment progress update failed for patient %s: %v", q.PatientID, err)
		}
		if err := s.missions.ActivateMissionsForAligner(ctx, q.PatientID, actx.AlignerNumber+1); err != nil {
			log.Printf("quest: mission activation failed for patient %s: %v", q.PatientID, err)
		}
	}

	return s.questRepo.GetByAligner(ctx, alignerID)
}
