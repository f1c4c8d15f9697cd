package points

import (
	"time"

	"github.com/google/uuid"
)

type TransactionKind string

const (
	KindEarn   TransactionKind = "earn"
	KindSpend  TransactionKind = "spend"
	KindAdjust TransactionKind = "adjust"
)

type Balance struct {
	PatientID uuid.UUID `json:"patient_id" db:"patient_id"`
	Coins     int       `json:"coins" db:"coins"`
	XP        int       `json:"xp" db:"xp"`
	Level     int       `json:"level" db:"level"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Transaction is an append-only ledger entry. Rows are never mutated or
// deleted; they are the audit trail for every balance change.
type Transaction struct {
	ID                uuid.UUID         `json:"id" db:"id"`
	PatientID         uuid.UUID         `json:"patient_id" db:"patient_id"`
	Kind              TransactionKind   `json:"kind" db:"kind"`
	AmountCoins       int               `json:"amount_coins" db:"amount_coins"`
	AmountXP          int               `json:"amount_xp" db:"amount_xp"`
	BalanceAfterCoins int               `json:"balance_after_coins" db:"balance_after_coins"`
	Metadata          map[string]string `json:"metadata" db:"metadata"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}
