package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/timeutil"
	"alignerQuestAPI/internal/types/quest"
	"alignerQuestAPI/internal/types/wear"
	"alignerQuestAPI/repo/memory"
)

type questFixture struct {
	store     *memory.Store
	directory *memory.Directory
	quests    *QuestService
	points    *PointsService
	clerkID   string
	actx      *wear.AlignerContext
}

func newQuestFixture(t *testing.T) *questFixture {
	t.Helper()

	store := memory.NewStore()
	directory := memory.NewDirectory()

	clerkID := "clerk_parent_1"
	patientID := uuid.New()
	treatmentID := uuid.New()

	actx := &wear.AlignerContext{
		AlignerID:         uuid.New(),
		PatientID:         patientID,
		TreatmentID:       treatmentID,
		PhaseID:           uuid.New(),
		TargetHoursPerDay: 22,
	}
	directory.AddPatient(clerkID, patientID)
	directory.AddAligner(actx)
	directory.SetTreatmentStart(treatmentID, time.Now().UTC().AddDate(0, 0, -30))

	points := NewPointsService(store)
	return &questFixture{
		store:     store,
		directory: directory,
		quests:    NewQuestService(store, store, directory, points, nil, nil, nil),
		points:    points,
		clerkID:   clerkID,
		actx:      actx,
	}
}

// setAdherence writes enough daily history for the given overall percentage.
func (f *questFixture) setAdherence(t *testing.T, percent int) {
	t.Helper()

	for i := 0; i < 10; i++ {
		day := timeutil.DateUTC(time.Now().UTC()).AddDate(0, 0, -(i + 1))
		require.NoError(t, f.store.UpsertDaily(context.Background(), &wear.DailyCompliance{
			ID:            uuid.New(),
			AlignerID:     f.actx.AlignerID,
			PatientID:     f.actx.PatientID,
			Date:          day,
			WearMinutes:   1000 * percent / 100,
			TargetMinutes: 1000,
			TargetPercent: 80,
			IsDayOk:       percent >= 80,
			Source:        wear.SourceSession,
			UpdatedAt:     time.Now().UTC(),
		}))
	}
}

func TestQuestLazyCreateDefaults(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	q, err := f.quests.EnsureQuestForAligner(ctx, f.actx)
	require.NoError(t, err)

	assert.Equal(t, quest.StatusActive, q.Status)
	assert.Equal(t, defaultTargetPercent, q.TargetPercent)
	assert.Equal(t, 22*60, q.TargetMinutesPerDay)
	assert.Equal(t, defaultLessonsTarget, q.LessonsTarget)
	assert.Equal(t, defaultRewardCoins, q.RewardCoins)
	assert.Equal(t, defaultRewardXP, q.RewardXP)
	assert.False(t, q.PhotoSetDone)
	assert.Nil(t, q.FinalizedAt)

	again, err := f.quests.EnsureQuestForAligner(ctx, f.actx)
	require.NoError(t, err)
	assert.Equal(t, q.ID, again.ID, "second touch returns the same quest")
}

func TestQuestPhaseTargetOverridesDefault(t *testing.T) {
	f := newQuestFixture(t)
	f.directory.SetPhasePercent(f.actx.PhaseID, 90)

	q, err := f.quests.EnsureQuestForAligner(context.Background(), f.actx)
	require.NoError(t, err)
	assert.Equal(t, 90, q.TargetPercent)
}

func TestQuestProgressUpdatesAreMonotonic(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.quests.MarkPhotoSetDone(ctx, f.actx.AlignerID))
	require.NoError(t, f.quests.MarkPhotoSetDone(ctx, f.actx.AlignerID))

	n, err := f.quests.IncrementLessonsDone(ctx, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = f.quests.IncrementLessonsDone(ctx, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	q, err := f.store.GetByAligner(ctx, f.actx.AlignerID)
	require.NoError(t, err)
	assert.True(t, q.PhotoSetDone)
	assert.Equal(t, 2, q.LessonsDone)
}

func TestFinalizeCompletedAwardsOnce(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	f.setAdherence(t, 85)
	require.NoError(t, f.quests.MarkPhotoSetDone(ctx, f.actx.AlignerID))
	_, err := f.quests.IncrementLessonsDone(ctx, f.actx.AlignerID)
	require.NoError(t, err)

	q, err := f.quests.FinalizeQuestForAligner(ctx, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusCompleted, q.Status)
	require.NotNil(t, q.AdherencePercentFinal)
	assert.Equal(t, 85, *q.AdherencePercentFinal)
	require.NotNil(t, q.FinalizedAt)

	// Finalizing again must not change the verdict or pay twice.
	again, err := f.quests.FinalizeQuestForAligner(ctx, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusCompleted, again.Status)

	balance, err := f.points.GetOrCreateBalance(ctx, f.actx.PatientID)
	require.NoError(t, err)
	assert.Equal(t, defaultRewardCoins, balance.Coins)
	assert.Equal(t, defaultRewardXP, balance.XP)

	txs, err := f.points.History(ctx, f.actx.PatientID, 0)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestFinalizeFailsWhenAnyConditionMisses(t *testing.T) {
	cases := []struct {
		name     string
		percent  int
		photo    bool
		lessons  int
	}{
		{"low adherence", 70, true, 1},
		{"missing photo set", 85, false, 1},
		{"missing lessons", 85, true, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newQuestFixture(t)
			ctx := context.Background()

			f.setAdherence(t, tc.percent)
			if tc.photo {
				require.NoError(t, f.quests.MarkPhotoSetDone(ctx, f.actx.AlignerID))
			}
			for i := 0; i < tc.lessons; i++ {
				_, err := f.quests.IncrementLessonsDone(ctx, f.actx.AlignerID)
				require.NoError(t, err)
			}

			q, err := f.quests.FinalizeQuestForAligner(ctx, f.actx.AlignerID)
			require.NoError(t, err)
			assert.Equal(t, quest.StatusFailed, q.Status)

			balance, err := f.points.GetOrCreateBalance(ctx, f.actx.PatientID)
			require.NoError(t, err)
			assert.Equal(t, 0, balance.Coins, "failed quests pay nothing")
		})
	}
}

func TestFinalizeAtExactTarget(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	// Adherence exactly at the threshold counts as met.
	f.setAdherence(t, 80)
	require.NoError(t, f.quests.MarkPhotoSetDone(ctx, f.actx.AlignerID))
	_, err := f.quests.IncrementLessonsDone(ctx, f.actx.AlignerID)
	require.NoError(t, err)

	q, err := f.quests.FinalizeQuestForAligner(ctx, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, quest.StatusCompleted, q.Status)
}

func TestQuestStatusAdherence(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	f.setAdherence(t, 70)

	status, err := f.quests.QuestStatus(ctx, f.clerkID, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, 70, status.AdherenceToDate)
	assert.Equal(t, 7000, status.WearMinutesTotal)
	assert.Equal(t, 10000, status.TargetMinutesSum)
	assert.Equal(t, quest.StatusActive, status.Quest.Status)
}

func TestQuestStatusRejectsForeignAligner(t *testing.T) {
	f := newQuestFixture(t)
	ctx := context.Background()

	otherClerk := "clerk_parent_2"
	f.directory.AddPatient(otherClerk, uuid.New())

	_, err := f.quests.QuestStatus(ctx, otherClerk, f.actx.AlignerID)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
}
