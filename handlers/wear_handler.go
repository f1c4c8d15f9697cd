package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/types/wear"
	"alignerQuestAPI/middleware"
	"alignerQuestAPI/services"
)

type WearHandler struct {
	sessionService    *services.SessionService
	complianceService *services.ComplianceService
}

func NewWearHandler(sessionService *services.SessionService, complianceService *services.ComplianceService) *WearHandler {
	return &WearHandler{
		sessionService:    sessionService,
		complianceService: complianceService,
	}
}

// GetWearStatus returns the dashboard payload for one aligner: session
// state, today's compliance, the last seven days, the streak and the
// celebration flag.
func (h *WearHandler) GetWearStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	alignerID, err := uuid.Parse(r.URL.Query().Get("alignerId"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'alignerId' must be a valid UUID")
		return
	}

	status, err := h.complianceService.WearStatus(ctx, clerkID, alignerID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

func (h *WearHandler) PauseWear(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessionService.Pause)
}

func (h *WearHandler) ResumeWear(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.sessionService.Resume)
}

func (h *WearHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string, uuid.UUID) (*wear.WearSession, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var body struct {
		AlignerID string `json:"aligner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	alignerID, err := uuid.Parse(body.AlignerID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "'aligner_id' must be a valid UUID")
		return
	}

	sess, err := op(ctx, clerkID, alignerID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, sess)
}

// ParentCheckin records a yes/no answer for a calendar day. The check-in is
// authoritative and wins over session-derived data.
func (h *WearHandler) ParentCheckin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req wear.CheckinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := h.complianceService.Checkin(ctx, clerkID, &req)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}
