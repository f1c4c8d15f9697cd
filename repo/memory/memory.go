// Package memory is an in-memory implementation of the repo interfaces.
// It backs the unit tests and is safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/apperr"
	"alignerQuestAPI/internal/timeutil"
	"alignerQuestAPI/internal/types/mission"
	"alignerQuestAPI/internal/types/notification"
	"alignerQuestAPI/internal/types/points"
	"alignerQuestAPI/internal/types/quest"
	"alignerQuestAPI/internal/types/wear"
)

const dateKeyLayout = "2006-01-02"

type dailyKey struct {
	alignerID uuid.UUID
	date      string
}

// Store implements WearRepo, MissionRepo, QuestRepo, PointsRepo and
// DeviceTokenRepo over plain maps.
type Store struct {
	mu sync.Mutex

	sessions  map[uuid.UUID]*wear.WearSession
	daily     map[dailyKey]*wear.DailyCompliance
	templates map[uuid.UUID]*mission.MissionTemplate
	instances map[uuid.UUID]*mission.MissionInstance
	quests    map[uuid.UUID]*quest.AlignerQuest // keyed by aligner ID
	balances  map[uuid.UUID]*points.Balance
	ledger    []*points.Transaction
	tokens    map[uuid.UUID][]notification.DeviceToken
}

func NewStore() *Store {
	return &Store{
		sessions:  make(map[uuid.UUID]*wear.WearSession),
		daily:     make(map[dailyKey]*wear.DailyCompliance),
		templates: make(map[uuid.UUID]*mission.MissionTemplate),
		instances: make(map[uuid.UUID]*mission.MissionInstance),
		quests:    make(map[uuid.UUID]*quest.AlignerQuest),
		balances:  make(map[uuid.UUID]*points.Balance),
		tokens:    make(map[uuid.UUID][]notification.DeviceToken),
	}
}

// ---- WearRepo ----

func (s *Store) OpenSession(ctx context.Context, alignerID uuid.UUID) (*wear.WearSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		if sess.AlignerID == alignerID && sess.EndedAt == nil {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) InsertSession(ctx context.Context, sess *wear.WearSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sess
	s.sessions[cp.ID] = &cp
	return nil
}

func (s *Store) CloseSession(ctx context.Context, sessionID uuid.UUID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return apperr.ErrNotFound
	}
	if sess.EndedAt == nil {
		t := endedAt
		sess.EndedAt = &t
	}
	return nil
}

func (s *Store) SessionsOverlapping(ctx context.Context, alignerID uuid.UUID, from, to time.Time) ([]*wear.WearSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*wear.WearSession
	for _, sess := range s.sessions {
		if sess.AlignerID != alignerID {
			continue
		}
		if !sess.StartedAt.Before(to) {
			continue
		}
		if sess.EndedAt != nil && !sess.EndedAt.After(from) {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *Store) GetDaily(ctx context.Context, alignerID uuid.UUID, date time.Time) (*wear.DailyCompliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.daily[dailyKey{alignerID, timeutil.DateUTC(date).Format(dateKeyLayout)}]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) UpsertDaily(ctx context.Context, rec *wear.DailyCompliance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dailyKey{rec.AlignerID, timeutil.DateUTC(rec.Date).Format(dateKeyLayout)}
	cp := *rec
	if existing, ok := s.daily[key]; ok {
		cp.ID = existing.ID
	} else if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	s.daily[key] = &cp
	return nil
}

func (s *Store) DailyByPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*wear.DailyCompliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*wear.DailyCompliance
	for _, rec := range s.daily {
		if rec.PatientID != patientID {
			continue
		}
		d := timeutil.DateUTC(rec.Date)
		if d.Before(timeutil.DateUTC(from)) || d.After(timeutil.DateUTC(to)) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) DailyByAligner(ctx context.Context, alignerID uuid.UUID, from, to time.Time) ([]*wear.DailyCompliance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*wear.DailyCompliance
	for _, rec := range s.daily {
		if rec.AlignerID != alignerID {
			continue
		}
		d := timeutil.DateUTC(rec.Date)
		if d.Before(timeutil.DateUTC(from)) || d.After(timeutil.DateUTC(to)) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) DailyTotals(ctx context.Context, alignerID uuid.UUID) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var wearSum, targetSum int
	for _, rec := range s.daily {
		if rec.AlignerID == alignerID {
			wearSum += rec.WearMinutes
			targetSum += rec.TargetMinutes
		}
	}
	return wearSum, targetSum, nil
}

// ---- MissionRepo ----

func (s *Store) AddTemplate(tpl *mission.MissionTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *tpl
	s.templates[cp.ID] = &cp
}

func (s *Store) ListTemplates(ctx context.Context) ([]*mission.MissionTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*mission.MissionTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		cp := *tpl
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) InsertInstance(ctx context.Context, inst *mission.MissionInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *inst
	s.instances[cp.ID] = &cp
	return nil
}

func (s *Store) withTemplate(inst *mission.MissionInstance) (*mission.InstanceWithTemplate, bool) {
	tpl, ok := s.templates[inst.TemplateID]
	if !ok {
		return nil, false
	}
	return &mission.InstanceWithTemplate{MissionInstance: *inst, Template: *tpl}, true
}

func (s *Store) ActiveInstances(ctx context.Context, patientID uuid.UUID) ([]*mission.InstanceWithTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*mission.InstanceWithTemplate
	for _, inst := range s.instances {
		if inst.PatientID != patientID {
			continue
		}
		if inst.Status != mission.StatusAvailable && inst.Status != mission.StatusInProgress {
			continue
		}
		if it, ok := s.withTemplate(inst); ok {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListInstances(ctx context.Context, patientID uuid.UUID) ([]*mission.InstanceWithTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*mission.InstanceWithTemplate
	for _, inst := range s.instances {
		if inst.PatientID != patientID {
			continue
		}
		if it, ok := s.withTemplate(inst); ok {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateProgress(ctx context.Context, instanceID uuid.UUID, progress int, status mission.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return apperr.ErrNotFound
	}
	if inst.Status == mission.StatusCompleted || inst.Status == mission.StatusExpired {
		return nil
	}
	inst.Progress = progress
	inst.Status = status
	inst.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CompleteInstance(ctx context.Context, instanceID uuid.UUID, progress, pointsEarned int, completedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if inst.Status == mission.StatusCompleted {
		return false, nil
	}
	t := completedAt
	inst.Status = mission.StatusCompleted
	inst.Progress = progress
	inst.PointsEarned = pointsEarned
	inst.CompletedAt = &t
	inst.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) ActivateInstance(ctx context.Context, instanceID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[instanceID]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if inst.Status != mission.StatusAvailable {
		return false, nil
	}
	inst.Status = mission.StatusInProgress
	inst.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, inst := range s.instances {
		if inst.ExpiresAt == nil || inst.ExpiresAt.After(now) {
			continue
		}
		if inst.Status == mission.StatusAvailable || inst.Status == mission.StatusInProgress {
			inst.Status = mission.StatusExpired
			inst.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

// ---- QuestRepo ----

func (s *Store) GetByAligner(ctx context.Context, alignerID uuid.UUID) (*quest.AlignerQuest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[alignerID]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (s *Store) Insert(ctx context.Context, q *quest.AlignerQuest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.quests[q.AlignerID]; ok {
		return apperr.ErrConflict
	}
	cp := *q
	s.quests[cp.AlignerID] = &cp
	return nil
}

func (s *Store) MarkPhotoSetDone(ctx context.Context, alignerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[alignerID]
	if !ok {
		return apperr.ErrNotFound
	}
	q.PhotoSetDone = true
	return nil
}

func (s *Store) IncrementLessonsDone(ctx context.Context, alignerID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[alignerID]
	if !ok {
		return 0, apperr.ErrNotFound
	}
	q.LessonsDone++
	return q.LessonsDone, nil
}

func (s *Store) Finalize(ctx context.Context, alignerID uuid.UUID, status quest.Status, adherencePercent int, finalizedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[alignerID]
	if !ok {
		return false, apperr.ErrNotFound
	}
	if q.Status != quest.StatusActive {
		return false, nil
	}
	t := finalizedAt
	adh := adherencePercent
	q.Status = status
	q.AdherencePercentFinal = &adh
	q.FinalizedAt = &t
	return true, nil
}

// ---- PointsRepo ----

func (s *Store) GetOrCreateBalance(ctx context.Context, patientID uuid.UUID) (*points.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *s.balanceLocked(patientID)
	return &cp, nil
}

func (s *Store) balanceLocked(patientID uuid.UUID) *points.Balance {
	b, ok := s.balances[patientID]
	if !ok {
		b = &points.Balance{PatientID: patientID, Level: 1, UpdatedAt: time.Now().UTC()}
		s.balances[patientID] = b
	}
	return b
}

func (s *Store) Adjust(ctx context.Context, patientID uuid.UUID, deltaCoins, deltaXP int, kind points.TransactionKind, metadata map[string]string) (*points.Balance, *points.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balanceLocked(patientID)
	b.Coins += deltaCoins
	b.XP += deltaXP
	b.Level = b.XP/100 + 1
	b.UpdatedAt = time.Now().UTC()

	tx := &points.Transaction{
		ID:                uuid.New(),
		PatientID:         patientID,
		Kind:              kind,
		AmountCoins:       deltaCoins,
		AmountXP:          deltaXP,
		BalanceAfterCoins: b.Coins,
		Metadata:          metadata,
		CreatedAt:         time.Now().UTC(),
	}
	s.ledger = append(s.ledger, tx)

	bCp, txCp := *b, *tx
	return &bCp, &txCp, nil
}

func (s *Store) Transactions(ctx context.Context, patientID uuid.UUID, limit int) ([]*points.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*points.Transaction
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].PatientID != patientID {
			continue
		}
		cp := *s.ledger[i]
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---- DeviceTokenRepo ----

func (s *Store) Register(ctx context.Context, patientID uuid.UUID, token, platform string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens[patientID] {
		if t.Token == token {
			return nil
		}
	}
	s.tokens[patientID] = append(s.tokens[patientID], notification.DeviceToken{
		ID:           uuid.New(),
		PatientID:    patientID,
		Token:        token,
		Platform:     platform,
		RegisteredAt: time.Now().UTC(),
	})
	return nil
}

func (s *Store) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]notification.DeviceToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]notification.DeviceToken, len(s.tokens[patientID]))
	copy(out, s.tokens[patientID])
	return out, nil
}
