package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"alignerQuestAPI/middleware"
	"alignerQuestAPI/repo"
	"alignerQuestAPI/services"
)

type PointsHandler struct {
	pointsService *services.PointsService
	directory     repo.TreatmentDirectory
}

func NewPointsHandler(pointsService *services.PointsService, directory repo.TreatmentDirectory) *PointsHandler {
	return &PointsHandler{
		pointsService: pointsService,
		directory:     directory,
	}
}

func (h *PointsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	patientID, err := h.directory.ResolvePatient(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	balance, err := h.pointsService.GetOrCreateBalance(ctx, patientID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, balance)
}

func (h *PointsHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	patientID, err := h.directory.ResolvePatient(ctx, clerkID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	txs, err := h.pointsService.History(ctx, patientID, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, txs)
}
