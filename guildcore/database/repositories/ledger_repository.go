package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guildforge/guildcore/guildcore/database/models"
	"github.com/guildforge/guildcore/guildcore/incentive/ledger"
	"github.com/uptrace/bun"
)

// LedgerRepository persists journal entries and the account/hold projections
// derived from them. It is the ledger's durable-store collaborator: the
// engine serializes per account, this layer applies each entry atomically.
type LedgerRepository interface {
	ledger.Journal
	GetAccount(ctx context.Context, accountID string) (*models.LedgerAccount, error)
	GetEntries(ctx context.Context, accountID string, limit int) ([]*models.LedgerEntry, error)
	GetLiveHolds(ctx context.Context, accountID string) ([]*models.LedgerHold, error)
}

type ledgerRepository struct {
	db *bun.DB
}

func NewLedgerRepository(db *bun.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// Record applies one journal entry in a single transaction: append the entry,
// upsert the account projection, and advance the hold lifecycle row.
func (r *ledgerRepository) Record(ctx context.Context, entry ledger.Entry) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	row := &models.LedgerEntry{
		Op:          entry.Op,
		AccountID:   entry.AccountID,
		HoldID:      entry.HoldID,
		Amount:      entry.Amount,
		Earned:      entry.Earned,
		Balance:     entry.Balance,
		OnHold:      entry.OnHold,
		TotalEarned: entry.TotalEarned,
		CreatedAt:   entry.At,
	}
	if _, err := tx.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	account := &models.LedgerAccount{
		AccountID:   entry.AccountID,
		Balance:     entry.Balance,
		OnHold:      entry.OnHold,
		TotalEarned: entry.TotalEarned,
		CreatedAt:   entry.At,
		UpdatedAt:   entry.At,
	}
	_, err = tx.NewInsert().
		Model(account).
		On("CONFLICT (account_id) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("on_hold = EXCLUDED.on_hold").
		Set("total_earned = EXCLUDED.total_earned").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert ledger account: %w", err)
	}

	if entry.HoldID != "" {
		if err := r.applyHold(ctx, tx, entry); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger entry: %w", err)
	}
	return nil
}

func (r *ledgerRepository) applyHold(ctx context.Context, tx bun.Tx, entry ledger.Entry) error {
	switch entry.Op {
	case "place_hold":
		hold := &models.LedgerHold{
			HoldID:    entry.HoldID,
			AccountID: entry.AccountID,
			Amount:    entry.Amount,
			Status:    models.HoldStatusLive,
			CreatedAt: entry.At,
		}
		if _, err := tx.NewInsert().Model(hold).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert hold: %w", err)
		}
	case "commit_hold", "release_hold":
		status := models.HoldStatusCommitted
		if entry.Op == "release_hold" {
			status = models.HoldStatusReleased
		}
		result, err := tx.NewUpdate().
			Model((*models.LedgerHold)(nil)).
			Set("status = ?", status).
			Set("settled_at = ?", time.Now()).
			Where("hold_id = ? AND status = ?", entry.HoldID, models.HoldStatusLive).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to settle hold: %w", err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return fmt.Errorf("hold %s not live in store", entry.HoldID)
		}
	}
	return nil
}

func (r *ledgerRepository) GetAccount(ctx context.Context, accountID string) (*models.LedgerAccount, error) {
	account := new(models.LedgerAccount)
	err := r.db.NewSelect().
		Model(account).
		Where("account_id = ?", accountID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger account: %w", err)
	}
	return account, nil
}

func (r *ledgerRepository) GetEntries(ctx context.Context, accountID string, limit int) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("account_id = ?", accountID).
		Order("id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}
	return entries, nil
}

func (r *ledgerRepository) GetLiveHolds(ctx context.Context, accountID string) ([]*models.LedgerHold, error) {
	var holds []*models.LedgerHold
	err := r.db.NewSelect().
		Model(&holds).
		Where("account_id = ? AND status = ?", accountID, models.HoldStatusLive).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get live holds: %w", err)
	}
	return holds, nil
}
