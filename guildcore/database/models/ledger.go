package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LedgerAccount is the durable copy of one member's point state. The row is
// only ever written from journal entries, so it trails the in-memory ledger
// by at most one entry.
type LedgerAccount struct {
	bun.BaseModel `bun:"table:ledger_accounts,alias:la"`

	AccountID   string  `bun:"account_id,pk"`
	Balance     float64 `bun:"balance,notnull,default:0"`
	OnHold      float64 `bun:"on_hold,notnull,default:0"`
	TotalEarned float64 `bun:"total_earned,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type HoldStatus string

const (
	HoldStatusLive      HoldStatus = "live"
	HoldStatusCommitted HoldStatus = "committed"
	HoldStatusReleased  HoldStatus = "released"
)

// LedgerHold mirrors a reservation's lifecycle for audit queries.
type LedgerHold struct {
	bun.BaseModel `bun:"table:ledger_holds,alias:lh"`

	HoldID    string     `bun:"hold_id,pk"`
	AccountID string     `bun:"account_id,notnull"`
	Amount    float64    `bun:"amount,notnull"`
	Status    HoldStatus `bun:"status,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	SettledAt time.Time `bun:"settled_at,nullzero"`
}

// LedgerEntry is the append-only journal of applied ledger mutations,
// including the account state after each one.
type LedgerEntry struct {
	bun.BaseModel `bun:"table:ledger_entries,alias:le"`

	ID          int64   `bun:"id,pk,autoincrement"`
	Op          string  `bun:"op,notnull"`
	AccountID   string  `bun:"account_id,notnull"`
	HoldID      string  `bun:"hold_id"`
	Amount      float64 `bun:"amount,notnull"`
	Earned      bool    `bun:"earned,notnull,default:false"`
	Balance     float64 `bun:"balance,notnull"`
	OnHold      float64 `bun:"on_hold,notnull"`
	TotalEarned float64 `bun:"total_earned,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
