// Package postgres implements the repo interfaces over pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/timeutil"
	"alignerQuestAPI/internal/types/mission"
	"alignerQuestAPI/internal/types/notification"
	"alignerQuestAPI/internal/types/points"
	"alignerQuestAPI/internal/types/quest"
	"alignerQuestAPI/internal/types/wear"
)

// Store implements WearRepo, MissionRepo, QuestRepo, PointsRepo and
// DeviceTokenRepo over a pgx pool.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ---- WearRepo ----

func (s *Store) OpenSession(ctx context.Context, alignerID uuid.UUID) (*wear.WearSession, error) {
	query := `
	SELECT id, aligner_id, patient_id, state, started_at, ended_at, actor_id, created_at
	FROM wear_sessions
	WHERE aligner_id = $1 AND ended_at IS NULL
	`

	sess := &wear.WearSession{}
	err := s.db.QueryRow(ctx, query, alignerID).Scan(
		&sess.ID,
		&sess.AlignerID,
		&sess.PatientID,
		&sess.State,
		&sess.StartedAt,
		&sess.EndedAt,
		&sess.ActorID,
		&sess.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	return sess, nil
}

func (s *Store) InsertSession(ctx context.Context, sess *wear.WearSession) error {
	query := `
	INSERT INTO wear_sessions (id, aligner_id, patient_id, state, started_at, ended_at, actor_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		sess.ID,
		sess.AlignerID,
		sess.PatientID,
		sess.State,
		sess.StartedAt,
		sess.EndedAt,
		sess.ActorID,
		sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert wear session: %w", err)
	}
	return nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) error {
	query := `
	UPDATE wear_sessions
	SET ended_at = $2
	WHERE id = $1 AND ended_at IS NULL
	`

	result, err := s.db.Exec(ctx, query, sessionID, endedAt)
	if err != nil {
		return fmt.Errorf("failed to close wear session: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Already closed by a concurrent call; closed sessions are immutable.
		var exists bool
		err = s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM wear_sessions WHERE id = $1)`, sessionID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check wear session: %w", err)
		}
		if !exists {
			return apperr.ErrNotFound
		}
	}
	return nil
}

func (s *Store) SessionsOverlapping(ctx context.Context, alignerID uuid.UUID, from, to time.Time) ([]*wear.WearSession, error) {
	query := `
	SELECT id, aligner_id, patient_id, state, started_at, ended_at, actor_id, created_at
	FROM wear_sessions
	WHERE aligner_id = $1
		AND started_at < $3
		AND (ended_at IS NULL OR ended_at > $2)
	ORDER BY started_at
	`

	rows, err := s.db.Query(ctx, query, alignerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*wear.WearSession
	for rows.Next() {
		sess := &wear.WearSession{}
		err := rows.Scan(
			&sess.ID,
			&sess.AlignerID,
			&sess.PatientID,
			&sess.State,
			&sess.StartedAt,
			&sess.EndedAt,
			&sess.ActorID,
			&sess.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func (s *Store) GetDaily(ctx context.Context, alignerID uuid.UUID, date time.Time) (*wear.DailyCompliance, error) {
	query := `
	SELECT id, aligner_id, patient_id, date, wear_minutes, target_minutes, target_percent, is_day_ok, source, updated_at
	FROM daily_compliance
	WHERE aligner_id = $1 AND date = $2
	`

	rec := &wear.DailyCompliance{}
	err := s.db.QueryRow(ctx, query, alignerID, timeutil.DateUTC(date)).Scan(
		&rec.ID,
		&rec.AlignerID,
		&rec.PatientID,
		&rec.Date,
		&rec.WearMinutes,
		&rec.TargetMinutes,
		&rec.TargetPercent,
		&rec.IsDayOk,
		&rec.Source,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get daily compliance: %w", err)
	}
	return rec, nil
}

func (s *Store) UpsertDaily(ctx context.Context, rec *wear.DailyCompliance) error {
	query := `
	INSERT INTO daily_compliance (id, aligner_id, patient_id, date, wear_minutes, target_minutes, target_percent, is_day_ok, source, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	ON CONFLICT (aligner_id, date)
	DO UPDATE SET
		wear_minutes = $5,
		target_minutes = $6,
		target_percent = $7,
		is_day_ok = $8,
		source = $9,
		updated_at = NOW()
	`

	_, err := s.db.Exec(ctx, query,
		rec.ID,
		rec.AlignerID,
		rec.PatientID,
		timeutil.DateUTC(rec.Date),
		rec.WearMinutes,
		rec.TargetMinutes,
		rec.TargetPercent,
		rec.IsDayOk,
		rec.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily compliance: %w", err)
	}
	return nil
}

func (s *Store) DailyByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*wear.DailyCompliance, error) {
	return s.dailyRange(ctx, "patient_id", patientID, from, to)
}

func (s *Store) DailyByAligner(ctx context.Context, alignerID uuid.UUID, from, to time.Time) ([]*wear.DailyCompliance, error) {
	return s.dailyRange(ctx, "aligner_id", alignerID, from, to)
}

func (s *Store) dailyRange(ctx context.Context, column string, id uuid.UUID, from, to time.Time) ([]*wear.DailyCompliance, error) {
	query := fmt.Sprintf(`
	SELECT id, aligner_id, patient_id, date, wear_minutes, target_minutes, target_percent, is_day_ok, source, updated_at
	FROM daily_compliance
	WHERE %s = $1 AND date >= $2 AND date <= $3
	ORDER BY date
	`, column)

	rows, err := s.db.Query(ctx, query, id, timeutil.DateUTC(from), timeutil.DateUTC(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily compliance: %w", err)
	}
	defer rows.Close()

	var recs []*wear.DailyCompliance
	for rows.Next() {
		rec := &wear.DailyCompliance{}
		err := rows.Scan(
			&rec.ID,
			&rec.AlignerID,
			&rec.PatientID,
			&rec.Date,
			&rec.WearMinutes,
			&rec.TargetMinutes,
			&rec.TargetPercent,
			&rec.IsDayOk,
			&rec.Source,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily compliance: %w", err)
		}
		recs = append(recs, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily compliance: %w", err)
	}
	return recs, nil
}

func (s *Store) DailyTotals(ctx context.Context, alignerID uuid.UUID) (int, int, error) {
	query := `
	SELECT COALESCE(SUM(wear_minutes), 0), COALESCE(SUM(target_minutes), 0)
	FROM daily_compliance
	WHERE aligner_id = $1
	`

	var wearSum, targetSum int
	err := s.db.QueryRow(ctx, query, alignerID).Scan(&wearSum, &targetSum)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum daily compliance: %w", err)
	}
	return wearSum, targetSum, nil
}

// ---- MissionRepo ----

func (s *Store) ListTemplates(ctx context.Context) ([]*mission.MissionTemplate, error) {
	query := `
	SELECT id, title, description, frequency, completion_criteria, target_value, base_points, bonus_points, aligner_interval, created_at
	FROM mission_templates
	ORDER BY created_at
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mission templates: %w", err)
	}
	defer rows.Close()

	var templates []*mission.MissionTemplate
	for rows.Next() {
		tpl := &mission.MissionTemplate{}
		err := rows.Scan(
			&tpl.ID,
			&tpl.Title,
			&tpl.Description,
			&tpl.Frequency,
			&tpl.CompletionCriteria,
			&tpl.TargetValue,
			&tpl.BasePoints,
			&tpl.BonusPoints,
			&tpl.AlignerInterval,
			&tpl.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mission template: %w", err)
		}
		templates = append(templates, tpl)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mission templates: %w", err)
	}
	return templates, nil
}

func (s *Store) InsertInstance(ctx context.Context, inst *mission.MissionInstance) error {
	query := `
	INSERT INTO mission_instances (id, patient_id, template_id, status, progress, target_value, points_earned, completed_at, expires_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := s.db.Exec(ctx, query,
		inst.ID,
		inst.PatientID,
		inst.TemplateID,
		inst.Status,
		inst.Progress,
		inst.TargetValue,
		inst.PointsEarned,
		inst.CompletedAt,
		inst.ExpiresAt,
		inst.CreatedAt,
		inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mission instance: %w", err)
	}
	return nil
}

const instanceWithTemplateColumns = `
	mi.id, mi.patient_id, mi.template_id, mi.status, mi.progress, mi.target_value,
	mi.points_earned, mi.completed_at, mi.expires_at, mi.created_at, mi.updated_at,
	mt.id, mt.title, mt.description, mt.frequency, mt.completion_criteria,
	mt.target_value, mt.base_points, mt.bonus_points, mt.aligner_interval, mt.created_at
`

func scanInstanceWithTemplate(rows pgx.Rows) (*mission.InstanceWithTemplate, error) {
	it := &mission.InstanceWithTemplate{}
	err := rows.Scan(
		&it.ID,
		&it.PatientID,
		&it.TemplateID,
		&it.Status,
		&it.Progress,
		&it.TargetValue,
		&it.PointsEarned,
		&it.CompletedAt,
		&it.ExpiresAt,
		&it.CreatedAt,
		&it.UpdatedAt,
		&it.Template.ID,
		&it.Template.Title,
		&it.Template.Description,
		&it.Template.Frequency,
		&it.Template.CompletionCriteria,
		&it.Template.TargetValue,
		&it.Template.BasePoints,
		&it.Template.BonusPoints,
		&it.Template.AlignerInterval,
		&it.Template.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan mission instance: %w", err)
	}
	return it, nil
}

func (s *Store) ActiveInstances(ctx context.Context, patientID uuid.UUID) ([]*mission.InstanceWithTemplate, error) {
	query := `
	SELECT ` + instanceWithTemplateColumns + `
	FROM mission_instances mi
	JOIN mission_templates mt ON mt.id = mi.template_id
	WHERE mi.patient_id = $1 AND mi.status IN ('available', 'in_progress')
	ORDER BY mi.created_at
	`
	return s.queryInstances(ctx, query, patientID)
}

func (s *Store) ListInstances(ctx context.Context, patientID uuid.UUID) ([]*mission.InstanceWithTemplate, error) {
	query := `
	SELECT ` + instanceWithTemplateColumns + `
	FROM mission_instances mi
	JOIN mission_templates mt ON mt.id = mi.template_id
	WHERE mi.patient_id = $1
	ORDER BY mi.created_at
	`
	return s.queryInstances(ctx, query, patientID)
}

func (s *Store) queryInstances(ctx context.Context, query string, patientID uuid.UUID) ([]*mission.InstanceWithTemplate, error) {
	rows, err := s.db.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mission instances: %w", err)
	}
	defer rows.Close()

	var out []*mission.InstanceWithTemplate
	for rows.Next() {
		it, err := scanInstanceWithTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mission instances: %w", err)
	}
	return out, nil
}

func (s *Store) UpdateProgress(ctx context.Context, instanceID uuid.UUID, progress int, status mission.Status) error {
	query := `
	UPDATE mission_instances
	SET progress = $2, status = $3, updated_at = NOW()
	WHERE id = $1 AND status NOT IN ('completed', 'expired')
	`

	_, err := s.db.Exec(ctx, query, instanceID, progress, status)
	if err != nil {
		return fmt.Errorf("failed to update mission progress: %w", err)
	}
	return nil
}

func (s *Store) CompleteInstance(ctx context.Context, instanceID uuid.UUID, progress, pointsEarned int, completedAt time.Time) (bool, error) {
	// Conditional transition: the WHERE clause is what makes the award
	// exactly-once under concurrent re-evaluations.
	query := `
	UPDATE mission_instances
	SET status = 'completed', progress = $2, points_earned = $3, completed_at = $4, updated_at = NOW()
	WHERE id = $1 AND status <> 'completed'
	`

	result, err := s.db.Exec(ctx, query, instanceID, progress, pointsEarned, completedAt)
	if err != nil {
		return false, fmt.Errorf("failed to complete mission instance: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (s *Store) ActivateInstance(ctx context.Context, instanceID uuid.UUID) (bool, error) {
	query := `
	UPDATE mission_instances
	SET status = 'in_progress', updated_at = NOW()
	WHERE id = $1 AND status = 'available'
	`

	result, err := s.db.Exec(ctx, query, instanceID)
	if err != nil {
		return false, fmt.Errorf("failed to activate mission instance: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
	UPDATE mission_instances
	SET status = 'expired', updated_at = NOW()
	WHERE expires_at IS NOT NULL AND expires_at <= $1 AND status IN ('available', 'in_progress')
	`

	result, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire mission instances: %w", err)
	}
	return result.RowsAffected(), nil
}

// ---- QuestRepo ----

func (s *Store) GetByAligner(ctx context.Context, alignerID uuid.UUID) (*quest.AlignerQuest, error) {
	query := `
	SELECT id, aligner_id, patient_id, target_percent, target_minutes_per_day, photo_set_done,
		lessons_done, lessons_target, reward_coins, reward_xp, status, adherence_percent_final,
		created_at, finalized_at
	FROM aligner_quests
	WHERE aligner_id = $1
	`

	q := &quest.AlignerQuest{}
	err := s.db.QueryRow(ctx, query, alignerID).Scan(
		&q.ID,
		&q.AlignerID,
		&q.PatientID,
		&q.TargetPercent,
		&q.TargetMinutesPerDay,
		&q.PhotoSetDone,
		&q.LessonsDone,
		&q.LessonsTarget,
		&q.RewardCoins,
		&q.RewardXP,
		&q.Status,
		&q.AdherencePercentFinal,
		&q.CreatedAt,
		&q.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get aligner quest: %w", err)
	}
	return q, nil
}

func (s *Store) Insert(ctx context.Context, q *quest.AlignerQuest) error {
	query := `
	INSERT INTO aligner_quests (id, aligner_id, patient_id, target_percent, target_minutes_per_day,
		photo_set_done, lessons_done, lessons_target, reward_coins, reward_xp, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (aligner_id) DO NOTHING
	`

	result, err := s.db.Exec(ctx, query,
		q.ID,
		q.AlignerID,
		q.PatientID,
		q.TargetPercent,
		q.TargetMinutesPerDay,
		q.PhotoSetDone,
		q.LessonsDone,
		q.LessonsTarget,
		q.RewardCoins,
		q.RewardXP,
		q.Status,
		q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert aligner quest: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Lost the creation race; the caller re-reads the winner's row.
		return apperr.ErrConflict
	}
	return nil
}

func (s *Store) MarkPhotoSetDone(ctx context.Context, alignerID uuid.UUID) error {
	result, err := s.db.Exec(ctx, `UPDATE aligner_quests SET photo_set_done = TRUE WHERE aligner_id = $1`, alignerID)
	if err != nil {
		return fmt.Errorf("failed to mark photo set done: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementLessonsDone(ctx context.Context, alignerID uuid.UUID) (int, error) {
	var lessonsDone int
	query := `
	UPDATE aligner_quests
	SET lessons_done = lessons_done + 1
	WHERE aligner_id = $1
	RETURNING lessons_done
	`

	err := s.db.QueryRow(ctx, query, alignerID).Scan(&lessonsDone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.ErrNotFound
		}
		return 0, fmt.Errorf("failed to increment lessons done: %w", err)
	}
	return lessonsDone, nil
}

func (s *Store) Finalize(ctx context.Context, alignerID uuid.UUID, status quest.Status, adherencePercent int, finalizedAt time.Time) (bool, error) {
	query := `
	UPDATE aligner_quests
	SET status = $2, adherence_percent_final = $3, finalized_at = $4
	WHERE aligner_id = $1 AND status = 'active'
	`

	result, err := s.db.Exec(ctx, query, alignerID, status, adherencePercent, finalizedAt)
	if err != nil {
		return false, fmt.Errorf("failed to finalize aligner quest: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ---- PointsRepo ----

func (s *Store) GetOrCreateBalance(ctx context.Context, patientID uuid.UUID) (*points.Balance, error) {
	query := `
	INSERT INTO points_balances (patient_id, coins, xp, level, updated_at)
	VALUES ($1, 0, 0, 1, NOW())
	ON CONFLICT (patient_id) DO UPDATE SET patient_id = EXCLUDED.patient_id
	RETURNING patient_id, coins, xp, level, updated_at
	`

	b := &points.Balance{}
	err := s.db.QueryRow(ctx, query, patientID).Scan(&b.PatientID, &b.Coins, &b.XP, &b.Level, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create balance: %w", err)
	}
	return b, nil
}

func (s *Store) Adjust(ctx context.Context, patientID uuid.UUID, deltaCoins, deltaXP int, kind points.TransactionKind, metadata map[string]string) (*points.Balance, *points.Transaction, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	balanceQuery := `
	INSERT INTO points_balances (patient_id, coins, xp, level, updated_at)
	VALUES ($1, $2, $3, $3 / 100 + 1, NOW())
	ON CONFLICT (patient_id) DO UPDATE SET
		coins = points_balances.coins + $2,
		xp = points_balances.xp + $3,
		level = (points_balances.xp + $3) / 100 + 1,
		updated_at = NOW()
	RETURNING patient_id, coins, xp, level, updated_at
	`

	b := &points.Balance{}
	err = tx.QueryRow(ctx, balanceQuery, patientID, deltaCoins, deltaXP).Scan(
		&b.PatientID, &b.Coins, &b.XP, &b.Level, &b.UpdatedAt,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal transaction metadata: %w", err)
	}

	entry := &points.Transaction{
		ID:                uuid.New(),
		PatientID:         patientID,
		Kind:              kind,
		AmountCoins:       deltaCoins,
		AmountXP:          deltaXP,
		BalanceAfterCoins: b.Coins,
		Metadata:          metadata,
	}

	ledgerQuery := `
	INSERT INTO points_transactions (id, patient_id, kind, amount_coins, amount_xp, balance_after_coins, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	RETURNING created_at
	`

	err = tx.QueryRow(ctx, ledgerQuery,
		entry.ID, entry.PatientID, entry.Kind, entry.AmountCoins, entry.AmountXP, entry.BalanceAfterCoins, metaJSON,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to append points transaction: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit points adjustment: %w", err)
	}
	return b, entry, nil
}

func (s *Store) Transactions(ctx context.Context, patientID uuid.UUID, limit int) ([]*points.Transaction, error) {
	query := `
	SELECT id, patient_id, kind, amount_coins, amount_xp, balance_after_coins, metadata, created_at
	FROM points_transactions
	WHERE patient_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query points transactions: %w", err)
	}
	defer rows.Close()

	var out []*points.Transaction
	for rows.Next() {
		entry := &points.Transaction{}
		var metaJSON []byte
		err := rows.Scan(
			&entry.ID,
			&entry.PatientID,
			&entry.Kind,
			&entry.AmountCoins,
			&entry.AmountXP,
			&entry.BalanceAfterCoins,
			&metaJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan points transaction: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points transactions: %w", err)
	}
	return out, nil
}

// ---- DeviceTokenRepo ----

func (s *Store) Register(ctx context.Context, patientID uuid.UUID, token, platform string) error {
	query := `
	INSERT INTO device_tokens (id, patient_id, token, platform, registered_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (patient_id, token) DO UPDATE SET platform = $4, registered_at = NOW()
	`

	_, err := s.db.Exec(ctx, query, uuid.New(), patientID, token, platform)
	if err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

func (s *Store) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]notification.DeviceToken, error) {
	query := `
	SELECT id, patient_id, token, platform, registered_at
	FROM device_tokens
	WHERE patient_id = $1
	`

	rows, err := s.db.Query(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query device tokens: %w", err)
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.ID, &t.PatientID, &t.Token, &t.Platform, &t.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}
	return tokens, nil
}
