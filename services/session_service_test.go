package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/types/wear"
	"alignerQuestAPI/repo/memory"
)

type sessionFixture struct {
	store    *memory.Store
	sessions *SessionService
	clerkID  string
	actx     *wear.AlignerContext
}

func newSessionFixture(t *testing.T) *sessionFixture {
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

	compliance := NewComplianceService(store, directory, nil, nil, nil)
	return &sessionFixture{
		store:    store,
		sessions: NewSessionService(store, directory, compliance),
		clerkID:  clerkID,
		actx:     actx,
	}
}

func (f *sessionFixture) countOpen(t *testing.T) int {
	t.Helper()

	all, err := f.store.SessionsOverlapping(context.Background(),
		f.actx.AlignerID,
		time.Now().UTC().AddDate(0, 0, -1),
		time.Now().UTC().AddDate(0, 0, 1))
	require.NoError(t, err)

	open := 0
	for _, sess := range all {
		if sess.EndedAt == nil {
			open++
		}
	}
	return open
}

func TestResumeThenPause(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	wearing, err := f.sessions.Resume(ctx, f.clerkID, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, wear.StateWearing, wearing.State)
	assert.Nil(t, wearing.EndedAt)

	paused, err := f.sessions.Pause(ctx, f.clerkID, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, wear.StatePaused, paused.State)
	assert.NotEqual(t, wearing.ID, paused.ID)

	// The wearing session must be closed now.
	open, err := f.store.OpenSession(ctx, f.actx.AlignerID)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, paused.ID, open.ID)
}

func TestRepeatTransitionIsNoOp(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	first, err := f.sessions.Pause(ctx, f.clerkID, f.actx.AlignerID)
	require.NoError(t, err)

	second, err := f.sessions.Pause(ctx, f.clerkID, f.actx.AlignerID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "repeated pause keeps the same session")
}

func TestTransitionRejectsForeignAligner(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	otherClerk := "clerk_parent_2"
	directory := memory.NewDirectory()
	directory.AddPatient(otherClerk, uuid.New())
	directory.AddAligner(f.actx)

	svc := NewSessionService(f.store, directory, nil)
	_, err := svc.Resume(ctx, otherClerk, f.actx.AlignerID)
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = f.sessions.Resume(ctx, f.clerkID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConcurrentTransitionsKeepOneOpenSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.sessions.Pause(ctx, f.clerkID, f.actx.AlignerID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.sessions.Resume(ctx, f.clerkID, f.actx.AlignerID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.countOpen(t))
}

func TestCloseOpenSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.sessions.Resume(ctx, f.clerkID, f.actx.AlignerID)
	require.NoError(t, err)

	require.NoError(t, f.sessions.CloseOpenSession(ctx, f.actx.AlignerID))
	assert.Equal(t, 0, f.countOpen(t))

	// Closing with nothing open is fine.
	require.NoError(t, f.sessions.CloseOpenSession(ctx, f.actx.AlignerID))
}
