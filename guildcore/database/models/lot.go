package models

import (
	"time"

	"github.com/uptrace/bun"
)

type LotStatus string

const (
	LotStatusActive    LotStatus = "active"
	LotStatusCompleted LotStatus = "completed"
	LotStatusCancelled LotStatus = "cancelled"
)

// Lot is one competitive bidding window over a guild item. EndsAt is
// monotonically non-decreasing while the lot is active; only the anti-snipe
// extension decision moves it.
type Lot struct {
	bun.BaseModel `bun:"table:lots,alias:l"`

	ID           int64     `bun:"id,pk,autoincrement"`
	LotID        string    `bun:"lot_id,notnull,unique"`
	ItemID       int64     `bun:"item_id,notnull"`
	SellerID     string    `bun:"seller_id,notnull"`
	StartPrice   float64   `bun:"start_price,notnull"`
	CurrentPrice float64   `bun:"current_price,notnull"`
	MinIncrement float64   `bun:"min_increment,notnull"`
	TopBidderID  string    `bun:"top_bidder_id"`
	TopHoldID    string    `bun:"top_hold_id"`
	Status       LotStatus `bun:"status,notnull"`
	StartTime    time.Time `bun:"start_time,notnull"`
	EndsAt       time.Time `bun:"ends_at,notnull"`

	AntiSnipeEnabled bool `bun:"anti_snipe_enabled,notnull,default:false"`
	AntiSnipeSeconds int  `bun:"anti_snipe_seconds,notnull,default:0"`

	LastBidTime time.Time `bun:"last_bid_time,nullzero"`
	BidCount    int       `bun:"bid_count,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// LotBid records one accepted bid and the escrow hold backing it.
type LotBid struct {
	bun.BaseModel `bun:"table:lot_bids,alias:lb"`

	ID        int64     `bun:"id,pk,autoincrement"`
	LotID     int64     `bun:"lot_id,notnull"`
	BidderID  string    `bun:"bidder_id,notnull"`
	Amount    float64   `bun:"amount,notnull"`
	HoldID    string    `bun:"hold_id,notnull"`
	Extended  bool      `bun:"extended,notnull,default:false"`
	Timestamp time.Time `bun:"timestamp,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull"`
}
