package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Metric names a range table inside a policy.
type Metric string

const (
	MetricPower Metric = "power"
	MetricLevel Metric = "level"
)

// RewardPolicy groups the two range tables an administrator configured for
// one reward flow. Tables are read-only at evaluation time.
type RewardPolicy struct {
	bun.BaseModel `bun:"table:reward_policies,alias:rp"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// RewardRange is one band of a policy's table. Position fixes the evaluation
// order; first match wins.
type RewardRange struct {
	bun.BaseModel `bun:"table:reward_ranges,alias:rr"`

	ID          int64   `bun:"id,pk,autoincrement"`
	PolicyID    int64   `bun:"policy_id,notnull"`
	Metric      Metric  `bun:"metric,notnull"`
	Position    int     `bun:"position,notnull"`
	FromValue   int64   `bun:"from_value,notnull"`
	ToValue     int64   `bun:"to_value,notnull"`
	Coefficient float64 `bun:"coefficient,notnull"`
}
