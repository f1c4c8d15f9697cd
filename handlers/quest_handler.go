package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/middleware"
	"alignerQuestAPI/services"
)

type QuestHandler struct {
	questService *services.QuestService
}

func NewQuestHandler(questService *services.QuestService) *QuestHandler {
	return &QuestHandler{
		questService: questService,
	}
}

// GetQuestStatus returns the aligner quest with running adherence. The quest
// is created lazily on the first request.
func (h *QuestHandler) GetQuestStatus(w http.ResponseWriter, r *http.Request) {
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

	status, err := h.questService.QuestStatus(ctx, clerkID, alignerID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, status)
}

// MarkPhotoSetDone is the internal hook called after the progress photo set
// is uploaded and accepted.
func (h *QuestHandler) MarkPhotoSetDone(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	alignerID, ok := decodeAlignerID(w, r)
	if !ok {
		return
	}

	if err := h.questService.MarkPhotoSetDone(ctx, alignerID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Photo set recorded"})
}

// CompleteLesson is the internal hook called when the patient finishes an
// educational lesson tied to the aligner.
func (h *QuestHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	alignerID, ok := decodeAlignerID(w, r)
	if !ok {
		return
	}

	lessonsDone, err := h.questService.IncrementLessonsDone(ctx, alignerID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]int{"lessons_done": lessonsDone})
}

// FinalizeQuest is the internal hook called when the clinic system advances
// the patient to the next aligner.
func (h *QuestHandler) FinalizeQuest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	alignerID, ok := decodeAlignerID(w, r)
	if !ok {
		return
	}

	q, err := h.questService.FinalizeQuestForAligner(ctx, alignerID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, q)
}

func decodeAlignerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	var body struct {
		AlignerID string `json:"aligner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return uuid.Nil, false
	}
	alignerID, err := uuid.Parse(body.AlignerID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "'aligner_id' must be a valid UUID")
		return uuid.Nil, false
	}
	return alignerID, true
}
