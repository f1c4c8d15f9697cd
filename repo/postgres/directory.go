package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/types/wear"
)

// Directory resolves patient/aligner/treatment identity from the tables the
// broader clinic system owns. The engine only reads them.
type Directory struct {
	db *pgxpool.Pool
}

func NewDirectory(db *pgxpool.Pool) *Directory {
	return &Directory{db: db}
}

func (d *Directory) ResolvePatient(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var patientID uuid.UUID
	err := d.db.QueryRow(ctx, `SELECT id FROM patients WHERE clerk_id = $1`, clerkID).Scan(&patientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, apperr.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to resolve patient: %w", err)
	}
	return patientID, nil
}

func (d *Directory) ResolveAligner(ctx context.Context, alignerID uuid.UUID) (*wear.AlignerContext, error) {
	query := `
	SELECT a.id, t.patient_id, a.treatment_id, a.phase_id, a.target_hours_per_day,
		a.aligner_number, t.total_aligners
	FROM aligners a
	JOIN treatments t ON t.id = a.treatment_id
	WHERE a.id = $1
	`

	actx := &wear.AlignerContext{}
	err := d.db.QueryRow(ctx, query, alignerID).Scan(
		&actx.AlignerID,
		&actx.PatientID,
		&actx.TreatmentID,
		&actx.PhaseID,
		&actx.TargetHoursPerDay,
		&actx.AlignerNumber,
		&actx.TotalAligners,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve aligner: %w", err)
	}
	return actx, nil
}

func (d *Directory) PhaseTargetPercent(ctx context.Context, phaseID uuid.UUID) (int, error) {
	var percent *int
	err := d.db.QueryRow(ctx, `SELECT adherence_target_percent FROM treatment_phases WHERE id = $1`, phaseID).Scan(&percent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to resolve phase target: %w", err)
	}
	if percent == nil {
		return 0, nil
	}
	return *percent, nil
}

func (d *Directory) TreatmentStartDate(ctx context.Context, treatmentID uuid.UUID) (time.Time, error) {
	var start time.Time
	err := d.db.QueryRow(ctx, `SELECT started_at FROM treatments WHERE id = $1`, treatmentID).Scan(&start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, apperr.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("failed to resolve treatment start: %w", err)
	}
	return start, nil
}
