package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignerQuestAPI/internal/notification"
	"alignerQuestAPI/internal/types/wear"
	"alignerQuestAPI/middleware"
	"alignerQuestAPI/repo/memory"
	"alignerQuestAPI/services"
)

type handlerFixture struct {
	handler *WearHandler
	clerkID string
	actx    *wear.AlignerContext
}

func newHandlerFixture(t *testing.T) *handlerFixture {
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

	compliance := services.NewComplianceService(store, directory, nil, store, notification.NoopSender{})
	sessions := services.NewSessionService(store, directory, compliance)

	return &handlerFixture{
		handler: NewWearHandler(sessions, compliance),
		clerkID: clerkID,
		actx:    actx,
	}
}

func authedRequest(method, target, clerkID string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	ctx := context.WithValue(req.Context(), middleware.ClerkIDKey, clerkID)
	return req.WithContext(ctx)
}

func TestGetWearStatus(t *testing.T) {
	f := newHandlerFixture(t)

	req := authedRequest("GET", "/api/v1/wear/status?alignerId="+f.actx.AlignerID.String(), f.clerkID, nil)
	rr := httptest.NewRecorder()
	f.handler.GetWearStatus(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var status wear.WearStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "none", status.SessionState)
	assert.Len(t, status.LastSevenDays, 7)
	require.NotNil(t, status.Today)
	assert.False(t, status.Today.IsDayOk)
}

func TestGetWearStatusRequiresValidAlignerID(t *testing.T) {
	f := newHandlerFixture(t)

	req := authedRequest("GET", "/api/v1/wear/status?alignerId=nope", f.clerkID, nil)
	rr := httptest.NewRecorder()
	f.handler.GetWearStatus(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetWearStatusRequiresAuth(t *testing.T) {
	f := newHandlerFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/wear/status?alignerId="+f.actx.AlignerID.String(), nil)
	rr := httptest.NewRecorder()
	f.handler.GetWearStatus(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetWearStatusUnknownAligner(t *testing.T) {
	f := newHandlerFixture(t)

	req := authedRequest("GET", "/api/v1/wear/status?alignerId="+uuid.NewString(), f.clerkID, nil)
	rr := httptest.NewRecorder()
	f.handler.GetWearStatus(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPauseResumeEndpoints(t *testing.T) {
	f := newHandlerFixture(t)
	body := []byte(fmt.Sprintf(`{"aligner_id": "%s"}`, f.actx.AlignerID))

	rr := httptest.NewRecorder()
	f.handler.ResumeWear(rr, authedRequest("POST", "/api/v1/wear/resume", f.clerkID, body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var sess wear.WearSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	assert.Equal(t, wear.StateWearing, sess.State)

	rr = httptest.NewRecorder()
	f.handler.PauseWear(rr, authedRequest("POST", "/api/v1/wear/pause", f.clerkID, body))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	assert.Equal(t, wear.StatePaused, sess.State)
}

func TestParentCheckinEndpoint(t *testing.T) {
	f := newHandlerFixture(t)

	day := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	body := []byte(fmt.Sprintf(`{"aligner_id": "%s", "date": "%s", "wore_aligner": true}`, f.actx.AlignerID, day))

	rr := httptest.NewRecorder()
	f.handler.ParentCheckin(rr, authedRequest("POST", "/api/v1/wear/checkin", f.clerkID, body))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var rec wear.DailyCompliance
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.True(t, rec.IsDayOk)
	assert.Equal(t, wear.SourceParentCheckin, rec.Source)

	// A malformed date is a 400, mapped from the input-validation error.
	bad := []byte(fmt.Sprintf(`{"aligner_id": "%s", "date": "yesterday", "wore_aligner": true}`, f.actx.AlignerID))
	rr = httptest.NewRecorder()
	f.handler.ParentCheckin(rr, authedRequest("POST", "/api/v1/wear/checkin", f.clerkID, bad))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
