package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RaffleStatus string

const (
	RaffleStatusOpen   RaffleStatus = "open"
	RaffleStatusLocked RaffleStatus = "locked"
	RaffleStatusDrawn  RaffleStatus = "drawn"
)

// Raffle is one seed-committed distribution draw. The commitment is
// published at creation, before any entrant joins; seed and roll are filled
// in when the draw runs and stay immutable afterwards.
type Raffle struct {
	bun.BaseModel `bun:"table:raffles,alias:r"`

	ID         int64        `bun:"id,pk,autoincrement"`
	RaffleID   string       `bun:"raffle_id,notnull,unique"`
	PrizeID    int64        `bun:"prize_id,notnull"`
	Status     RaffleStatus `bun:"status,notnull"`
	Commitment []byte       `bun:"commitment"`

	Seed     []byte  `bun:"seed"`
	WinnerID string  `bun:"winner_id"`
	Roll     float64 `bun:"roll"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	LockedAt  time.Time `bun:"locked_at,nullzero"`
	DrawnAt   time.Time `bun:"drawn_at,nullzero"`
}

// RaffleEntrant is one weighted participant. Position freezes the entrant
// order the draw walks, so a persisted raffle replays identically.
type RaffleEntrant struct {
	bun.BaseModel `bun:"table:raffle_entrants,alias:re"`

	ID       int64   `bun:"id,pk,autoincrement"`
	RaffleID int64   `bun:"raffle_id,notnull"`
	MemberID string  `bun:"member_id,notnull"`
	Weight   float64 `bun:"weight,notnull"`
	Position int     `bun:"position,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
