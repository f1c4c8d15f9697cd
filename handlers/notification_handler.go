package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	types "alignerQuestAPI/internal/types/notification"
	"alignerQuestAPI/middleware"
	"alignerQuestAPI/repo"
)

type NotificationHandler struct {
	tokens    repo.DeviceTokenRepo
	directory repo.TreatmentDirectory
}

func NewNotificationHandler(tokens repo.DeviceTokenRepo, directory repo.TreatmentDirectory) *NotificationHandler {
	return &NotificationHandler{
		tokens:    tokens,
		directory: directory,
	}
}

// RegisterDeviceToken stores the FCM token of the parent's device so the
// engine can deliver celebration pushes.
func (h *NotificationHandler) RegisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req types.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "'token' is required")
		return
	}

	patientID, err := h.directory.ResolvePatient(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if err := h.tokens.Register(ctx, patientID, req.Token, req.Platform); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Device token registered"})
}
