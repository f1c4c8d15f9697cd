package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/notification"
	"alignerQuestAPI/internal/timeutil"
	"alignerQuestAPI/internal/types/wear"
	"alignerQuestAPI/repo/memory"
)

type complianceFixture struct {
	store      *memory.Store
	directory  *memory.Directory
	compliance *ComplianceService
	clerkID    string
	actx       *wear.AlignerContext
}

func newComplianceFixture(t *testing.T, targetHours, phasePercent int) *complianceFixture {
	t.Helper()

	store := memory.NewStore()
	directory := memory.NewDirectory()

	clerkID := "clerk_parent_1"
	patientID := uuid.New()
	treatmentID := uuid.New()
	phaseID := uuid.New()

	actx := &wear.AlignerContext{
		AlignerID:         uuid.New(),
		PatientID:         patientID,
		TreatmentID:       treatmentID,
		PhaseID:           phaseID,
		TargetHoursPerDay: targetHours,
		AlignerNumber:     3,
		TotalAligners:     20,
	}

	directory.AddPatient(clerkID, patientID)
	directory.AddAligner(actx)
	directory.SetTreatmentStart(treatmentID, time.Now().UTC().AddDate(0, 0, -60))
	if phasePercent > 0 {
		directory.SetPhasePercent(phaseID, phasePercent)
	}

	compliance := NewComplianceService(store, directory, nil, store, notification.NoopSender{})
	return &complianceFixture{
		store:      store,
		directory:  directory,
		compliance: compliance,
		clerkID:    clerkID,
		actx:       actx,
	}
}

func (f *complianceFixture) addSession(t *testing.T, day time.Time, state wear.SessionState, startHour, startMin, endHour, endMin int) {
	t.Helper()

	d := timeutil.DateUTC(day)
	start := d.Add(time.Duration(startHour)*time.Hour + time.Duration(startMin)*time.Minute)
	end := d.Add(time.Duration(endHour)*time.Hour + time.Duration(endMin)*time.Minute)

	err := f.store.InsertSession(context.Background(), &wear.WearSession{
		ID:        uuid.New(),
		AlignerID: f.actx.AlignerID,
		PatientID: f.actx.PatientID,
		State:     state,
		StartedAt: start,
		EndedAt:   &end,
		CreatedAt: start,
	})
	require.NoError(t, err)
}

func TestUpsertDailySumsWearingSessions(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	ctx := context.Background()
	day := timeutil.DateUTC(time.Now().UTC().AddDate(0, 0, -1))

	// 600 + 540 wearing minutes; the pause in between contributes nothing.
	f.addSession(t, day, wear.StateWearing, 0, 0, 10, 0)
	f.addSession(t, day, wear.StatePaused, 10, 0, 14, 0)
	f.addSession(t, day, wear.StateWearing, 14, 0, 23, 0)

	rec, wasOk, isOk, err := f.compliance.UpsertDaily(ctx, f.actx, day)
	require.NoError(t, err)

	assert.Equal(t, 1140, rec.WearMinutes)
	assert.Equal(t, 1320, rec.TargetMinutes)
	assert.Equal(t, 80, rec.TargetPercent)
	assert.True(t, rec.IsDayOk, "1140 >= floor(1320*80/100)=1056")
	assert.False(t, wasOk)
	assert.True(t, isOk)
	assert.Equal(t, wear.SourceSession, rec.Source)
}

func TestUpsertDailyIdempotent(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	ctx := context.Background()
	day := timeutil.DateUTC(time.Now().UTC().AddDate(0, 0, -1))

	f.addSession(t, day, wear.StateWearing, 0, 0, 20, 0)

	first, _, _, err := f.compliance.UpsertDaily(ctx, f.actx, day)
	require.NoError(t, err)
	second, wasOk, isOk, err := f.compliance.UpsertDaily(ctx, f.actx, day)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.WearMinutes, second.WearMinutes)
	assert.True(t, wasOk)
	assert.True(t, isOk)
}

func TestUpsertDailySplitsAcrossMidnight(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	ctx := context.Background()

	dayOne := timeutil.DateUTC(time.Now().UTC().AddDate(0, 0, -3))
	dayTwo := dayOne.AddDate(0, 0, 1)

	// 22:00 day one through 06:00 day two.
	start := dayOne.Add(22 * time.Hour)
	end := dayTwo.Add(6 * time.Hour)
	require.NoError(t, f.store.InsertSession(ctx, &wear.WearSession{
		ID:        uuid.New(),
		AlignerID: f.actx.AlignerID,
		PatientID: f.actx.PatientID,
		State:     wear.StateWearing,
		StartedAt: start,
		EndedAt:   &end,
		CreatedAt: start,
	}))

	recOne, _, _, err := f.compliance.UpsertDaily(ctx, f.actx, dayOne)
	require.NoError(t, err)
	recTwo, _, _, err := f.compliance.UpsertDaily(ctx, f.actx, dayTwo)
	require.NoError(t, err)

	assert.Equal(t, 120, recOne.WearMinutes)
	assert.Equal(t, 360, recTwo.WearMinutes)
}

func TestUpsertDailyClampsToFullDay(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	ctx := context.Background()
	day := timeutil.DateUTC(time.Now().UTC().AddDate(0, 0, -1))

	// Overlapping duplicate sessions sum past 24h; the clamp caps the day.
	f.addSession(t, day, wear.StateWearing, 0, 0, 24, 0)
	f.addSession(t, day, wear.StateWearing, 0, 0, 24, 0)

	rec, _, _, err := f.compliance.UpsertDaily(ctx, f.actx, day)
	require.NoError(t, err)
	assert.Equal(t, timeutil.MinutesPerDay, rec.WearMinutes)
}

func TestUpsertDailyDefaultTargetPercent(t *testing.T) {
	f := newComplianceFixture(t, 20, 0) // phase defines no target
	ctx := context.Background()
	day := timeutil.DateUTC(time.Now().UTC().AddDate(0, 0, -1))

	f.addSession(t, day, wear.StateWearing, 0, 0, 16, 0)

	rec, _, _, err := f.compliance.UpsertDaily(ctx, f.actx, day)
	require.NoError(t, err)

	assert.Equal(t, 80, rec.TargetPercent)
	// 960 >= floor(1200*80/100)=960
	assert.True(t, rec.IsDayOk)
}

func TestParentCheckinWinsOverSessions(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	ctx := context.Background()
	day := timeutil.DateUTC(time.Now().UTC().AddDate(0, 0, -1))

	rec, err := f.compliance.Checkin(ctx, f.clerkID, &wear.CheckinRequest{
		AlignerID:   f.actx.AlignerID.String(),
		Date:        day.Format("2006-01-02"),
		WoreAligner: true,
	})
	require.NoError(t, err)
	assert.True(t, rec.IsDayOk)
	assert.Equal(t, wear.SourceParentCheckin, rec.Source)
	assert.Equal(t, 1056, rec.WearMinutes)

	// Session-derived recomputation must leave the check-in untouched.
	f.addSession(t, day, wear.StateWearing, 0, 0, 1, 0)
	after, wasOk, isOk, err := f.compliance.UpsertDaily(ctx, f.actx, day)
	require.NoError(t, err)
	assert.Equal(t, wear.SourceParentCheckin, after.Source)
	assert.Equal(t, 1056, after.WearMinutes)
	assert.True(t, wasOk)
	assert.True(t, isOk)
}

func TestParentCheckinNotWorn(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	ctx := context.Background()
	day := timeutil.DateUTC(time.Now().UTC().AddDate(0, 0, -1))

	rec, err := f.compliance.Checkin(ctx, f.clerkID, &wear.CheckinRequest{
		AlignerID:   f.actx.AlignerID.String(),
		Date:        day.Format("2006-01-02"),
		WoreAligner: false,
	})
	require.NoError(t, err)
	assert.False(t, rec.IsDayOk)
	assert.Equal(t, 0, rec.WearMinutes)
}

func TestCheckinRejectsBadInput(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	ctx := context.Background()

	_, err := f.compliance.Checkin(ctx, f.clerkID, &wear.CheckinRequest{
		AlignerID: "not-a-uuid",
		Date:      "2026-08-01",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.compliance.Checkin(ctx, f.clerkID, &wear.CheckinRequest{
		AlignerID: f.actx.AlignerID.String(),
		Date:      "01/08/2026",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = f.compliance.Checkin(ctx, "clerk_unknown", &wear.CheckinRequest{
		AlignerID: f.actx.AlignerID.String(),
		Date:      "2026-08-01",
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCheckinRejectsForeignAligner(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	ctx := context.Background()

	otherClerk := "clerk_parent_2"
	f.directory.AddPatient(otherClerk, uuid.New())

	_, err := f.compliance.Checkin(ctx, otherClerk, &wear.CheckinRequest{
		AlignerID:   f.actx.AlignerID.String(),
		Date:        "2026-08-01",
		WoreAligner: true,
	})
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
}

func (f *complianceFixture) addDaily(t *testing.T, daysAgo int, ok bool) {
	t.Helper()

	day := timeutil.DateUTC(time.Now().UTC()).AddDate(0, 0, -daysAgo)
	minutes := 0
	if ok {
		minutes = 1100
	}
	err := f.store.UpsertDaily(context.Background(), &wear.DailyCompliance{
		ID:            uuid.New(),
		AlignerID:     f.actx.AlignerID,
		PatientID:     f.actx.PatientID,
		Date:          day,
		WearMinutes:   minutes,
		TargetMinutes: 1320,
		TargetPercent: 80,
		IsDayOk:       ok,
		Source:        wear.SourceSession,
		UpdatedAt:     time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestTrailingOkStreakStopsAtMiss(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)

	// Today backwards: OK OK OK, miss, OK OK.
	f.addDaily(t, 0, true)
	f.addDaily(t, 1, true)
	f.addDaily(t, 2, true)
	f.addDaily(t, 3, false)
	f.addDaily(t, 4, true)
	f.addDaily(t, 5, true)

	streak, err := f.compliance.TrailingOkStreak(context.Background(), f.actx)
	require.NoError(t, err)
	assert.Equal(t, 3, streak)
}

func TestTrailingOkStreakStopsAtAbsentDay(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)

	// No row at all two days ago; an absent day is not compliant.
	f.addDaily(t, 0, true)
	f.addDaily(t, 1, true)
	f.addDaily(t, 3, true)
	f.addDaily(t, 4, true)

	streak, err := f.compliance.TrailingOkStreak(context.Background(), f.actx)
	require.NoError(t, err)
	assert.Equal(t, 2, streak)
}

func TestTrailingOkStreakBoundedByTreatmentStart(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	f.directory.SetTreatmentStart(f.actx.TreatmentID, time.Now().UTC().AddDate(0, 0, -2))

	for i := 0; i < 10; i++ {
		f.addDaily(t, i, true)
	}

	streak, err := f.compliance.TrailingOkStreak(context.Background(), f.actx)
	require.NoError(t, err)
	assert.Equal(t, 3, streak, "treatment started two days ago, so only three days count")
}

func TestTrailingOkStreakBoundedByLookback(t *testing.T) {
	f := newComplianceFixture(t, 22, 80)
	f.directory.SetTreatmentStart(f.actx.TreatmentID, time.Now().UTC().AddDate(0, 0, -365))

	for i := 0; i < 60; i++ {
		f.addDaily(t, i, true)
	}

	streak, err := f.compliance.TrailingOkStreak(context.Background(), f.actx)
	require.NoError(t, err)
	assert.Equal(t, streakLookbackDays, streak)
}

func TestWearStatusCelebrationFiresOnce(t *testing.T) {
	// One target hour keeps the threshold reachable at any time of day.
	f := newComplianceFixture(t, 1, 80)
	ctx := context.Background()
	today := timeutil.DateUTC(time.Now().UTC())

	// 60 wearing minutes inside today against minOk = 60*80/100 = 48.
	end := today.Add(time.Hour)
	require.NoError(t, f.store.InsertSession(ctx, &wear.WearSession{
		ID:        uuid.New(),
		AlignerID: f.actx.AlignerID,
		PatientID: f.actx.PatientID,
		State:     wear.StateWearing,
		StartedAt: today.Add(-5 * time.Hour),
		EndedAt:   &end,
		CreatedAt: today,
	}))

	first, err := f.compliance.WearStatus(ctx, f.clerkID, f.actx.AlignerID)
	require.NoError(t, err)
	require.True(t, first.Today.IsDayOk)
	assert.True(t, first.Celebrate, "first crossing of the threshold celebrates")

	second, err := f.compliance.WearStatus(ctx, f.clerkID, f.actx.AlignerID)
	require.NoError(t, err)
	assert.False(t, second.Celebrate, "already compliant, no repeat celebration")
	assert.Len(t, second.LastSevenDays, 7)
	assert.Equal(t, "none", second.SessionState)
}
