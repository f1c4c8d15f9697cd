package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"alignerQuestAPI/internal/types/points"
	"alignerQuestAPI/repo"
)

// PointsService is the ledger collaborator contract: every balance change
// goes through here and appends exactly one transaction.
type PointsService struct {
	points repo.PointsRepo
}

func NewPointsService(pointsRepo repo.PointsRepo) *PointsService {
	return &PointsService{points: pointsRepo}
}

func (s *PointsService) GetOrCreateBalance(ctx context.Context, patientID uuid.UUID) (*points.Balance, error) {
	return s.points.GetOrCreateBalance(ctx, patientID)
}

// AwardCoins credits coins earned from a mission completion. XP accrues at
// half the coin amount; level is derived from total XP by the store.
func (s *PointsService) AwardCoins(ctx context.Context, patientID uuid.UUID, coins int, metadata map[string]string) (*points.Balance, *points.Transaction, error) {
	if coins <= 0 {
		return nil, nil, fmt.Errorf("award amount must be positive, got %d", coins)
	}

	balance, tx, err := s.points.Adjust(ctx, patientID, coins, coins/2, points.KindEarn, metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to award coins: %w", err)
	}
	coinsAwardedTotal.Add(float64(coins))
	return balance, tx, nil
}

// AwardReward credits an explicit coin/XP pair, used by quest finalization.
func (s *PointsService) AwardReward(ctx context.Context, patientID uuid.UUID, coins, xp int, metadata map[string]string) (*points.Balance, *points.Transaction, error) {
	balance, tx, err := s.points.Adjust(ctx, patientID, coins, xp, points.KindEarn, metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to award reward: %w", err)
	}
	coinsAwardedTotal.Add(float64(coins))
	return balance, tx, nil
}

func (s *PointsService) History(ctx context.Context, patientID uuid.UUID, limit int) ([]*points.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.points.Transactions(ctx, patientID, limit)
}
