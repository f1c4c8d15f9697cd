package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alignerQuestAPI/internal/types/points"
	"alignerQuestAPI/repo/memory"
)

func TestAwardCoinsDerivesXPAndLevel(t *testing.T) {
	store := memory.NewStore()
	svc := NewPointsService(store)
	ctx := context.Background()
	patientID := uuid.New()

	balance, tx, err := svc.AwardCoins(ctx, patientID, 250, map[string]string{"reason": "test"})
	require.NoError(t, err)

	assert.Equal(t, 250, balance.Coins)
	assert.Equal(t, 125, balance.XP)
	assert.Equal(t, 2, balance.Level, "125 xp is level 2")
	assert.Equal(t, points.KindEarn, tx.Kind)
	assert.Equal(t, 250, tx.BalanceAfterCoins)
}

func TestAwardCoinsRejectsNonPositive(t *testing.T) {
	svc := NewPointsService(memory.NewStore())

	_, _, err := svc.AwardCoins(context.Background(), uuid.New(), 0, nil)
	assert.Error(t, err)
	_, _, err = svc.AwardCoins(context.Background(), uuid.New(), -5, nil)
	assert.Error(t, err)
}

func TestLedgerIsAppendOnly(t *testing.T) {
	store := memory.NewStore()
	svc := NewPointsService(store)
	ctx := context.Background()
	patientID := uuid.New()

	_, _, err := svc.AwardCoins(ctx, patientID, 100, nil)
	require.NoError(t, err)
	_, _, err = svc.AwardReward(ctx, patientID, 150, 75, nil)
	require.NoError(t, err)

	txs, err := svc.History(ctx, patientID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	// Newest first; running balances line up with the appended order.
	assert.Equal(t, 250, txs[0].BalanceAfterCoins)
	assert.Equal(t, 100, txs[1].BalanceAfterCoins)

	balance, err := svc.GetOrCreateBalance(ctx, patientID)
	require.NoError(t, err)
	assert.Equal(t, 250, balance.Coins)
	assert.Equal(t, 125, balance.XP)
}
