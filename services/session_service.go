package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/types/wear"
	"alignerQuestAPI/repo"
)

// SessionService owns the pause/resume state machine. Transitions for the
// same aligner are serialized so concurrent requests cannot open two
// sessions; the partial unique index on wear_sessions backs this up at the
// storage level.
type SessionService struct {
	wearRepo   repo.WearRepo
	directory  repo.TreatmentDirectory
	compliance *ComplianceService

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewSessionService(wearRepo repo.WearRepo, directory repo.TreatmentDirectory, compliance *ComplianceService) *SessionService {
	return &SessionService{
		wearRepo:   wearRepo,
		directory:  directory,
		compliance: compliance,
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *SessionService) alignerLock(alignerID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[alignerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[alignerID] = l
	}
	return l
}

// Pause marks the aligner as out of the mouth from now on.
func (s *SessionService) Pause(ctx context.Context, clerkID string, alignerID uuid.UUID) (*wear.WearSession, error) {
	return s.transition(ctx, clerkID, alignerID, wear.StatePaused)
}

// Resume marks the aligner as being worn from now on.
func (s *SessionService) Resume(ctx context.Context, clerkID string, alignerID uuid.UUID) (*wear.WearSession, error) {
	return s.transition(ctx, clerkID, alignerID, wear.StateWearing)
}

func (s *SessionService) transition(ctx context.Context, clerkID string, alignerID uuid.UUID, target wear.SessionState) (*wear.WearSession, error) {
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

	lock := s.alignerLock(alignerID)
	lock.Lock()
	defer lock.Unlock()

	open, err := s.wearRepo.OpenSession(ctx, alignerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load open session: %w", err)
	}
	// Repeating the current state is a no-op, not an error.
	if open != nil && open.State == target {
		return open, nil
	}

	now := time.Now().UTC()
	if open != nil {
		if err := s.wearRepo.CloseSession(ctx, open.ID, now); err != nil {
			return nil, fmt.Errorf("failed to close session: %w", err)
		}
	}

	sess := &wear.WearSession{
		ID:        uuid.New(),
		AlignerID: alignerID,
		PatientID: patientID,
		State:     target,
		StartedAt: now,
		ActorID:   clerkID,
		CreatedAt: now,
	}
	if err := s.wearRepo.InsertSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	if s.compliance != nil {
		if _, _, _, err := s.compliance.UpsertDaily(ctx, actx, now); err != nil {
			log.Printf("session: compliance refresh failed for aligner %s: %v", alignerID, err)
		}
	}
	return sess, nil
}

// CloseOpenSession ends whatever session is open on the aligner, if any.
// Quest finalization calls this so a still-running timer cannot leak wear
// time past the aligner change.
func (s *SessionService) CloseOpenSession(ctx context.Context, alignerID uuid.UUID) error {
	lock := s.alignerLock(alignerID)
	lock.Lock()
	defer lock.Unlock()

	open, err := s.wearRepo.OpenSession(ctx, alignerID)
	if err != nil {
		return fmt.Errorf("failed to load open session: %w", err)
	}
	if open == nil {
		return nil
	}
	if err := s.wearRepo.CloseSession(ctx, open.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}
