package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"alignerQuestAPI/middleware"
	"alignerQuestAPI/services"
)

type MissionHandler struct {
	missionService *services.MissionService
}

func NewMissionHandler(missionService *services.MissionService) *MissionHandler {
	return &MissionHandler{
		missionService: missionService,
	}
}

// GetMissionBoard returns every mission instance of the authenticated
// patient, instantiating missing templates first. The optional
// 'alignerNumber' query parameter unlocks missions gated on treatment
// progress.
func (h *MissionHandler) GetMissionBoard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	alignerNumber := 0
	if raw := r.URL.Query().Get("alignerNumber"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'alignerNumber' must be a non-negative integer")
			return
		}
		alignerNumber = n
	}

	missions, err := h.missionService.ListMissions(ctx, clerkID, alignerNumber)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, missions)
}

// ExpireOverdueMissions is the internal sweep endpoint; a ticker in main.go
// calls the same service method on a schedule.
func (h *MissionHandler) ExpireOverdueMissions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	expired, err := h.missionService.ExpireOverdueMissions(ctx)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int64{"expired": expired})
}
