package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/types/wear"
)

// Directory is a fixture-backed TreatmentDirectory for tests.
type Directory struct {
	mu              sync.Mutex
	patients        map[string]uuid.UUID // clerk ID → patient ID
	aligners        map[uuid.UUID]*wear.AlignerContext
	phasePercents   map[uuid.UUID]int
	treatmentStarts map[uuid.UUID]time.Time
}

func NewDirectory() *Directory {
	return &Directory{
		patients:        make(map[string]uuid.UUID),
		aligners:        make(map[uuid.UUID]*wear.AlignerContext),
		phasePercents:   make(map[uuid.UUID]int),
		treatmentStarts: make(map[uuid.UUID]time.Time),
	}
}

func (d *Directory) AddPatient(clerkID string, patientID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patients[clerkID] = patientID
}

func (d *Directory) AddAligner(actx *wear.AlignerContext) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *actx
	d.aligners[cp.AlignerID] = &cp
}

func (d *Directory) SetPhasePercent(phaseID uuid.UUID, percent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phasePercents[phaseID] = percent
}

func (d *Directory) SetTreatmentStart(treatmentID uuid.UUID, start time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.treatmentStarts[treatmentID] = start
}

func (d *Directory) ResolvePatient(ctx context.Context, clerkID string) (uuid.UUID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.patients[clerkID]
	if !ok {
		return uuid.Nil, apperr.ErrNotFound
	}
	return id, nil
}

func (d *Directory) ResolveAligner(ctx context.Context, alignerID uuid.UUID) (*wear.AlignerContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	actx, ok := d.aligners[alignerID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *actx
	return &cp, nil
}

func (d *Directory) PhaseTargetPercent(ctx context.Context, phaseID uuid.UUID) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phasePercents[phaseID], nil
}

func (d *Directory) TreatmentStartDate(ctx context.Context, treatmentID uuid.UUID) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start, ok := d.treatmentStarts[treatmentID]
	if !ok {
		return time.Time{}, apperr.ErrNotFound
	}
	return start, nil
}
