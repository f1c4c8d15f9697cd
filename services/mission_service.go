package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/timeutil"
	"alignerQuestAPI/internal/types/mission"
	"alignerQuestAPI/repo"
)

// MissionService evaluates mission instances against compliance data and
// awards points exactly once per completion.
type MissionService struct {
	missions      repo.MissionRepo
	wearRepo      repo.WearRepo
	directory     repo.TreatmentDirectory
	pointsService *PointsService
}

func NewMissionService(missions repo.MissionRepo, wearRepo repo.WearRepo, directory repo.TreatmentDirectory, pointsService *PointsService) *MissionService {
	return &MissionService{
		missions:      missions,
		wearRepo:      wearRepo,
		directory:     directory,
		pointsService: pointsService,
	}
}

// UpdateUsageMissions re-evaluates every active mission of the patient
// against the day's compliance data. Failures are isolated per mission: one
// broken template must not block the others or the daily aggregation.
func (s *MissionService) UpdateUsageMissions(ctx context.Context, patientID, alignerID uuid.UUID, date time.Time) error {
	instances, err := s.missions.ActiveInstances(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to load active missions: %w", err)
	}

	for _, inst := range instances {
		if err := s.evaluateUsageMission(ctx, inst, patientID, alignerID, date); err != nil {
			log.Printf("UpdateUsageMissions: mission %s (%s) failed: %v", inst.ID, inst.Template.Title, err)
		}
	}
	return nil
}

func (s *MissionService) evaluateUsageMission(ctx context.Context, inst *mission.InstanceWithTemplate, patientID, alignerID uuid.UUID, date time.Time) error {
	switch inst.Template.CompletionCriteria {
	case mission.CriteriaTimeBased:
		if inst.Template.Frequency != mission.FrequencyDaily {
			return nil
		}
		rec, err := s.wearRepo.GetDaily(ctx, alignerID, date)
		if err != nil {
			return err
		}
		if rec == nil || !rec.IsDayOk {
			return nil
		}
		return s.complete(ctx, inst, inst.TargetValue)

	case mission.CriteriaDaysStreak:
		var start *time.Time
		if inst.Template.Frequency == mission.FrequencyOnce {
			// Milestone missions count from treatment start.
			actx, err := s.directory.ResolveAligner(ctx, alignerID)
			if err != nil {
				return err
			}
			t, err := s.directory.TreatmentStartDate(ctx, actx.TreatmentID)
			if err != nil {
				return err
			}
			start = &t
		}
		streak, err := trailingOkStreak(ctx, s.wearRepo, patientID, date, start)
		if err != nil {
			return err
		}
		progress := streak
		if progress > inst.TargetValue {
			progress = inst.TargetValue
		}
		if streak >= inst.TargetValue {
			return s.complete(ctx, inst, progress)
		}
		if streak > 0 {
			return s.missions.UpdateProgress(ctx, inst.ID, progress, mission.StatusInProgress)
		}
		return nil

	case mission.CriteriaPercentage:
		// Treatment-progress missions are driven by aligner changes, not
		// wear data; see UpdateTreatmentProgressMissions.
		return nil

	default:
		return fmt.Errorf("unknown completion criteria %q", inst.Template.CompletionCriteria)
	}
}

// UpdateTreatmentProgressMissions advances percentage-criteria missions from
// the patient's position in the aligner sequence.
func (s *MissionService) UpdateTreatmentProgressMissions(ctx context.Context, patientID uuid.UUID, alignerNumber, totalAligners int) error {
	if totalAligners <= 0 {
		return nil
	}
	percent := alignerNumber * 100 / totalAligners

	instances, err := s.missions.ActiveInstances(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to load active missions: %w", err)
	}

	for _, inst := range instances {
		if inst.Template.CompletionCriteria != mission.CriteriaPercentage {
			continue
		}
		progress := percent
		if progress > inst.TargetValue {
			progress = inst.TargetValue
		}
		var err error
		if percent >= inst.TargetValue {
			err = s.complete(ctx, inst, progress)
		} else if percent > 0 {
			err = s.missions.UpdateProgress(ctx, inst.ID, progress, mission.StatusInProgress)
		}
		if err != nil {
			log.Printf("UpdateTreatmentProgressMissions: mission %s failed: %v", inst.ID, err)
		}
	}
	return nil
}

// complete performs the conditional transition and awards points only when
// this call won it. Re-running against a completed mission is a no-op.
func (s *MissionService) complete(ctx context.Context, inst *mission.InstanceWithTemplate, progress int) error {
	total := inst.Template.BasePoints + inst.Template.BonusPoints

	won, err := s.missions.CompleteInstance(ctx, inst.ID, progress, total, time.Now().UTC())
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	missionsCompletedTotal.Inc()

	if total > 0 {
		_, _, err = s.pointsService.AwardCoins(ctx, inst.PatientID, total, map[string]string{
			"reason":     "mission_completed",
			"mission_id": inst.ID.String(),
			"title":      inst.Template.Title,
		})
		if err != nil {
			return fmt.Errorf("mission %s completed but award failed: %w", inst.ID, err)
		}
	}
	return nil
}

// EnsureInstances creates a mission instance for every template the patient
// does not have yet. Templates bound to an aligner number start locked.
func (s *MissionService) EnsureInstances(ctx context.Context, patientID uuid.UUID) error {
	templates, err := s.missions.ListTemplates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list mission templates: %w", err)
	}
	existing, err := s.missions.ListInstances(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to list mission instances: %w", err)
	}

	have := make(map[uuid.UUID]bool, len(existing))
	for _, inst := range existing {
		have[inst.TemplateID] = true
	}

	now := time.Now().UTC()
	for _, tpl := range templates {
		if have[tpl.ID] {
			continue
		}
		status := mission.StatusInProgress
		if tpl.AlignerInterval > 0 {
			status = mission.StatusAvailable
		}
		inst := &mission.MissionInstance{
			ID:          uuid.New(),
			PatientID:   patientID,
			TemplateID:  tpl.ID,
			Status:      status,
			TargetValue: tpl.TargetValue,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.missions.InsertInstance(ctx, inst); err != nil {
			return fmt.Errorf("failed to create mission instance: %w", err)
		}
	}
	return nil
}

// ActivateMissionsForAligner unlocks available missions whose template is
// tied to reaching the given aligner number. Activation never awards points.
func (s *MissionService) ActivateMissionsForAligner(ctx context.Context, patientID uuid.UUID, alignerNumber int) error {
	instances, err := s.missions.ActiveInstances(ctx, patientID)
	if err != nil {
		return fmt.Errorf("failed to load active missions: %w", err)
	}

	for _, inst := range instances {
		if inst.Status != mission.StatusAvailable || inst.Template.AlignerInterval <= 0 {
			continue
		}
		if alignerNumber < inst.Template.AlignerInterval {
			continue
		}
		if _, err := s.missions.ActivateInstance(ctx, inst.ID); err != nil {
			log.Printf("ActivateMissionsForAligner: mission %s failed: %v", inst.ID, err)
		}
	}
	return nil
}

// ExpireOverdueMissions forces past-deadline missions into expired status.
// Expiry never touches points.
func (s *MissionService) ExpireOverdueMissions(ctx context.Context) (int64, error) {
	return s.missions.ExpireOverdue(ctx, time.Now().UTC())
}

func (s *MissionService) ListMissions(ctx context.Context, clerkID string, alignerNumber int) ([]*mission.InstanceWithTemplate, error) {
	patientID, err := s.directory.ResolvePatient(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureInstances(ctx, patientID); err != nil {
		return nil, err
	}
	if alignerNumber > 0 {
		if err := s.ActivateMissionsForAligner(ctx, patientID, alignerNumber); err != nil {
			log.Printf("ListMissions: activation failed for patient %s: %v", patientID, err)
		}
	}
	return s.missions.ListInstances(ctx, patientID)
}

// trailingOkStreak counts consecutive compliant days ending at endDate,
// scanning backward for at most streakLookbackDays. A day with no record at
// all is not compliant and stops the streak. startDate, when set, bounds the
// scan at treatment start.
func trailingOkStreak(ctx context.Context, wearRepo repo.WearRepo, patientID uuid.UUID, endDate time.Time, startDate *time.Time) (int, error) {
	end := timeutil.DateUTC(endDate)
	from := end.AddDate(0, 0, -(streakLookbackDays - 1))
	if startDate != nil {
		s := timeutil.DateUTC(*startDate)
		if s.After(from) {
			from = s
		}
	}
	if from.After(end) {
		return 0, nil
	}

	recs, err := wearRepo.DailyByPatient(ctx, patientID, from, end)
	if err != nil {
		return 0, fmt.Errorf("failed to load compliance range: %w", err)
	}

	okByDate := make(map[string]bool, len(recs))
	for _, rec := range recs {
		key := timeutil.DateUTC(rec.Date).Format("2006-01-02")
		if rec.IsDayOk {
			okByDate[key] = true
		}
	}

	streak := 0
	for d := end; !d.Before(from); d = d.AddDate(0, 0, -1) {
		if !okByDate[d.Format("2006-01-02")] {
			break
		}
		streak++
	}
	return streak, nil
}
