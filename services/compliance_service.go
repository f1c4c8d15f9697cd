package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/notification"
	"alignerQuestAPI/internal/timeutil"
	"alignerQuestAPI/internal/types/wear"
	"alignerQuestAPI/repo"
)

const (
	// defaultTargetPercent applies when the treatment phase defines no
	// adherence target.
	defaultTargetPercent = 80

	// streakLookbackDays bounds the backward scan when counting the
	// trailing compliant-day streak.
	streakLookbackDays = 40

	wearStatusDays = 7
)

// ComplianceService derives per-day wear records from sessions and parent
// check-ins, and feeds mission evaluation off every recomputation.
type ComplianceService struct {
	wearRepo  repo.WearRepo
	directory repo.TreatmentDirectory
	missions  *MissionService
	tokens    repo.DeviceTokenRepo
	push      notification.PushSender
}

func NewComplianceService(wearRepo repo.WearRepo, directory repo.TreatmentDirectory, missions *MissionService, tokens repo.DeviceTokenRepo, push notification.PushSender) *ComplianceService {
	return &ComplianceService{
		wearRepo:  wearRepo,
		directory: directory,
		missions:  missions,
		tokens:    tokens,
		push:      push,
	}
}

// UpsertDaily recomputes the compliance row for (aligner, date) from the
// session log. A row already sourced from a parent check-in is authoritative
// and is returned unchanged. Returns the row plus the before/after OK flags
// so callers can detect the not-OK to OK transition.
func (s *ComplianceService) UpsertDaily(ctx context.Context, actx *wear.AlignerContext, date time.Time) (*wear.DailyCompliance, bool, bool, error) {
	day := timeutil.DateUTC(date)

	existing, err := s.wearRepo.GetDaily(ctx, actx.AlignerID, day)
	if err != nil {
		return nil, false, false, fmt.Errorf("failed to load compliance row: %w", err)
	}
	if existing != nil && existing.Source == wear.SourceParentCheckin {
		return existing, existing.IsDayOk, existing.IsDayOk, nil
	}
	wasOk := existing != nil && existing.IsDayOk

	dayStart, dayEnd := timeutil.DayBoundsUTC(day)
	sessions, err := s.wearRepo.SessionsOverlapping(ctx, actx.AlignerID, dayStart, dayEnd)
	if err != nil {
		return nil, false, false, fmt.Errorf("failed to load sessions: %w", err)
	}

	now := time.Now().UTC()
	minutes := 0
	for _, sess := range sessions {
		if sess.State != wear.StateWearing {
			continue
		}
		end := now
		if sess.EndedAt != nil {
			end = *sess.EndedAt
		}
		minutes += timeutil.OverlapMinutes(sess.StartedAt, end, dayStart, dayEnd)
	}
	minutes = timeutil.ClampDayMinutes(minutes)

	targetMinutes, targetPercent, err := s.targetsFor(ctx, actx)
	if err != nil {
		return nil, false, false, err
	}

	rec := &wear.DailyCompliance{
		ID:            uuid.New(),
		AlignerID:     actx.AlignerID,
		PatientID:     actx.PatientID,
		Date:          day,
		WearMinutes:   minutes,
		TargetMinutes: targetMinutes,
		TargetPercent: targetPercent,
		IsDayOk:       minutes >= minOkMinutes(targetMinutes, targetPercent),
		Source:        wear.SourceSession,
		UpdatedAt:     now,
	}
	if existing != nil {
		rec.ID = existing.ID
	}
	if err := s.wearRepo.UpsertDaily(ctx, rec); err != nil {
		return nil, false, false, fmt.Errorf("failed to upsert compliance row: %w", err)
	}

	s.afterUpsert(ctx, actx, rec, wasOk)
	return rec, wasOk, rec.IsDayOk, nil
}

// Checkin records a parent's answer for a calendar day. The resulting row is
// authoritative and wins over any session-derived value for that day.
func (s *ComplianceService) Checkin(ctx context.Context, clerkID string, req *wear.CheckinRequest) (*wear.DailyCompliance, error) {
	patientID, err := s.directory.ResolvePatient(ctx, clerkID)
	if err != nil {
		return nil, err
	}
	alignerID, err := uuid.Parse(req.AlignerID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid aligner id", apperr.ErrInvalidInput)
	}
	day, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", apperr.ErrInvalidInput)
	}

	actx, err := s.directory.ResolveAligner(ctx, alignerID)
	if err != nil {
		return nil, err
	}
	if actx.PatientID != patientID {
		return nil, fmt.Errorf("%w: aligner belongs to another patient", apperr.ErrPermissionDenied)
	}

	existing, err := s.wearRepo.GetDaily(ctx, alignerID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance row: %w", err)
	}
	wasOk := existing != nil && existing.IsDayOk

	targetMinutes, targetPercent, err := s.targetsFor(ctx, actx)
	if err != nil {
		return nil, err
	}

	minutes := 0
	if req.WoreAligner {
		minutes = minOkMinutes(targetMinutes, targetPercent)
	}

	rec := &wear.DailyCompliance{
		ID:            uuid.New(),
		AlignerID:     alignerID,
		PatientID:     patientID,
		Date:          day,
		WearMinutes:   minutes,
		TargetMinutes: targetMinutes,
		TargetPercent: targetPercent,
		IsDayOk:       req.WoreAligner,
		Source:        wear.SourceParentCheckin,
		UpdatedAt:     time.Now().UTC(),
	}
	if existing != nil {
		rec.ID = existing.ID
	}
	if err := s.wearRepo.UpsertDaily(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to upsert compliance row: %w", err)
	}

	s.afterUpsert(ctx, actx, rec, wasOk)
	return rec, nil
}

// afterUpsert runs the side effects of a compliance change: mission
// re-evaluation and, on the not-OK to OK transition, the celebration push.
// Both are best effort and never fail the aggregation.
func (s *ComplianceService) afterUpsert(ctx context.Context, actx *wear.AlignerContext, rec *wear.DailyCompliance, wasOk bool) {
	if s.missions != nil {
		if err := s.missions.UpdateUsageMissions(ctx, rec.PatientID, rec.AlignerID, rec.Date); err != nil {
			log.Printf("compliance: mission update failed for patient %s: %v", rec.PatientID, err)
		}
	}

	if !wasOk && rec.IsDayOk {
		compliantDaysTotal.Inc()
		go s.sendCelebration(rec.PatientID, rec.Date)
	}
}

func (s *ComplianceService) sendCelebration(patientID uuid.UUID, date time.Time) {
	if s.push == nil || s.tokens == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tokens, err := s.tokens.ListByPatient(ctx, patientID)
	if err != nil {
		log.Printf("compliance: failed to load device tokens for %s: %v", patientID, err)
		return
	}
	err = s.push.SendPush(ctx, tokens,
		"Great job today! 🎉",
		"You hit your aligner wear goal for the day. Keep the streak going!",
		map[string]string{
			"type": "day_compliant",
			"date": date.Format("2006-01-02"),
		})
	if err != nil {
		log.Printf("compliance: celebration push failed for %s: %v", patientID, err)
	}
}

// TrailingOkStreak returns the number of consecutive compliant days ending
// today, bounded by the treatment start date.
func (s *ComplianceService) TrailingOkStreak(ctx context.Context, actx *wear.AlignerContext) (int, error) {
	start, err := s.directory.TreatmentStartDate(ctx, actx.TreatmentID)
	if err != nil {
		return 0, err
	}
	return trailingOkStreak(ctx, s.wearRepo, actx.PatientID, time.Now().UTC(), &start)
}

// WearStatus assembles the dashboard payload: current session state, today's
// freshly recomputed compliance, the last seven days, the streak and the
// one-shot celebration flag.
func (s *ComplianceService) WearStatus(ctx context.Context, clerkID string, alignerID uuid.UUID) (*wear.WearStatusResponse, error) {
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

	sessionState := "none"
	open, err := s.wearRepo.OpenSession(ctx, alignerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open session: %w", err)
	}
	if open != nil {
		sessionState = string(open.State)
	}

	now := time.Now().UTC()
	today, wasOk, isOk, err := s.UpsertDaily(ctx, actx, now)
	if err != nil {
		return nil, err
	}

	from := timeutil.DateUTC(now).AddDate(0, 0, -(wearStatusDays - 1))
	recs, err := s.wearRepo.DailyByAligner(ctx, alignerID, from, timeutil.DateUTC(now))
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance range: %w", err)
	}
	byDate := make(map[string]*wear.DailyCompliance, len(recs))
	for _, rec := range recs {
		byDate[timeutil.DateUTC(rec.Date).Format("2006-01-02")] = rec
	}

	days := make([]wear.DayStatus, 0, wearStatusDays)
	for d := from; !d.After(timeutil.DateUTC(now)); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		if rec, ok := byDate[key]; ok {
			days = append(days, dayStatus(rec))
		} else {
			days = append(days, wear.DayStatus{Date: key})
		}
	}

	streak, err := s.TrailingOkStreak(ctx, actx)
	if err != nil {
		return nil, err
	}

	todayStatus := dayStatus(today)
	return &wear.WearStatusResponse{
		SessionState:  sessionState,
		Today:         &todayStatus,
		LastSevenDays: days,
		CurrentStreak: streak,
		Celebrate:     !wasOk && isOk,
	}, nil
}

func (s *ComplianceService) targetsFor(ctx context.Context, actx *wear.AlignerContext) (targetMinutes, targetPercent int, err error) {
	targetMinutes = actx.TargetHoursPerDay * 60
	targetPercent, err = s.directory.PhaseTargetPercent(ctx, actx.PhaseID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to resolve phase target: %w", err)
	}
	if targetPercent <= 0 {
		targetPercent = defaultTargetPercent
	}
	return targetMinutes, targetPercent, nil
}

func minOkMinutes(targetMinutes, targetPercent int) int {
	return targetMinutes * targetPercent / 100
}

func dayStatus(rec *wear.DailyCompliance) wear.DayStatus {
	return wear.DayStatus{
		Date:          timeutil.DateUTC(rec.Date).Format("2006-01-02"),
		WearMinutes:   rec.WearMinutes,
		TargetMinutes: rec.TargetMinutes,
		IsDayOk:       rec.IsDayOk,
		Source:        string(rec.Source),
	}
}
