package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/guildforge/guildcore/guildcore/database/models"
	"github.com/guildforge/guildcore/guildcore/incentive/reward"
	"github.com/uptrace/bun"
)

// PolicyTables is one reward policy loaded into evaluation form.
type PolicyTables struct {
	Name  string
	Power reward.Table
	Level reward.Table
}

// PolicyRepository loads and stores administrator-configured reward
// policies. Loaded tables are validated before they are handed out.
type PolicyRepository interface {
	GetTables(ctx context.Context, name string) (*PolicyTables, error)
	SavePolicy(ctx context.Context, name string, power, level reward.Table) error
}

type policyRepository struct {
	db *bun.DB
}

func NewPolicyRepository(db *bun.DB) PolicyRepository {
	return &policyRepository{db: db}
}

func (r *policyRepository) GetTables(ctx context.Context, name string) (*PolicyTables, error) {
	policy := new(models.RewardPolicy)
	err := r.db.NewSelect().
		Model(policy).
		Where("name = ?", name).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get reward policy %q: %w", name, err)
	}

	var ranges []*models.RewardRange
	err = r.db.NewSelect().
		Model(&ranges).
		Where("policy_id = ?", policy.ID).
		Order("metric ASC", "position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get reward ranges: %w", err)
	}

	tables := &PolicyTables{Name: name}
	for _, rr := range ranges {
		entry := reward.RangeEntry{From: rr.FromValue, To: rr.ToValue, Coefficient: rr.Coefficient}
		switch rr.Metric {
		case models.MetricPower:
			tables.Power = append(tables.Power, entry)
		case models.MetricLevel:
			tables.Level = append(tables.Level, entry)
		}
	}

	if err := tables.Power.Validate(); err != nil {
		return nil, fmt.Errorf("policy %q power table: %w", name, err)
	}
	if err := tables.Level.Validate(); err != nil {
		return nil, fmt.Errorf("policy %q level table: %w", name, err)
	}

	return tables, nil
}

// SavePolicy replaces the policy's ranges wholesale inside one serializable
// transaction; a reward evaluation never sees a half-written table.
func (r *policyRepository) SavePolicy(ctx context.Context, name string, power, level reward.Table) error {
	if err := power.Validate(); err != nil {
		return fmt.Errorf("power table: %w", err)
	}
	if err := level.Validate(); err != nil {
		return fmt.Errorf("level table: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	policy := &models.RewardPolicy{Name: name}
	_, err = tx.NewInsert().
		Model(policy).
		On("CONFLICT (name) DO UPDATE").
		Set("updated_at = current_timestamp").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert policy: %w", err)
	}

	_, err = tx.NewDelete().
		Model((*models.RewardRange)(nil)).
		Where("policy_id = ?", policy.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear old ranges: %w", err)
	}

	insert := func(metric models.Metric, table reward.Table) error {
		for i, entry := range table {
			row := &models.RewardRange{
				PolicyID:    policy.ID,
				Metric:      metric,
				Position:    i,
				FromValue:   entry.From,
				ToValue:     entry.To,
				Coefficient: entry.Coefficient,
			}
			if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
				return fmt.Errorf("failed to insert %s range %d: %w", metric, i, err)
			}
		}
		return nil
	}
	if err := insert(models.MetricPower, power); err != nil {
		return err
	}
	if err := insert(models.MetricLevel, level); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit policy: %w", err)
	}
	return nil
}
