package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/guildforge/guildcore/guildcore/database/models"
	"github.com/uptrace/bun"
)

type LotRepository interface {
	DB() *bun.DB
	CreateWithTx(ctx context.Context, tx bun.Tx, lot *models.Lot) error
	GetByID(ctx context.Context, id int64) (*models.Lot, error)
	GetByLotID(ctx context.Context, lotID string) (*models.Lot, error)
	GetActive(ctx context.Context) ([]*models.Lot, error)
	GetExpired(ctx context.Context) ([]*models.Lot, error)
	GetLotBids(ctx context.Context, lotID int64) ([]*models.LotBid, error)
	CancelLot(ctx context.Context, id int64) error
}

type lotRepository struct {
	db *bun.DB
}

func NewLotRepository(db *bun.DB) LotRepository {
	return &lotRepository{db: db}
}

func (r *lotRepository) DB() *bun.DB {
	return r.db
}

func (r *lotRepository) CreateWithTx(ctx context.Context, tx bun.Tx, lot *models.Lot) error {
	lot.CreatedAt = time.Now()
	lot.UpdatedAt = time.Now()
	lot.Status = models.LotStatusActive
	lot.BidCount = 0

	if _, err := tx.NewInsert().Model(lot).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create lot: %w", err)
	}
	return nil
}

func (r *lotRepository) GetByID(ctx context.Context, id int64) (*models.Lot, error) {
	lot := new(models.Lot)
	err := r.db.NewSelect().
		Model(lot).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return lot, nil
}

func (r *lotRepository) GetByLotID(ctx context.Context, lotID string) (*models.Lot, error) {
	lot := new(models.Lot)
	err := r.db.NewSelect().
		Model(lot).
		Where("lot_id = ?", lotID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}
	return lot, nil
}

func (r *lotRepository) GetActive(ctx context.Context) ([]*models.Lot, error) {
	var lots []*models.Lot
	err := r.db.NewSelect().
		Model(&lots).
		Where("status = ?", models.LotStatusActive).
		Where("ends_at > ?", time.Now()).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active lots: %w", err)
	}
	return lots, nil
}

func (r *lotRepository) GetExpired(ctx context.Context) ([]*models.Lot, error) {
	var lots []*models.Lot
	err := r.db.NewSelect().
		Model(&lots).
		Where("status = ?", models.LotStatusActive).
		Where("ends_at <= ?", time.Now()).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired lots: %w", err)
	}
	return lots, nil
}

func (r *lotRepository) GetLotBids(ctx context.Context, lotID int64) ([]*models.LotBid, error) {
	var bids []*models.LotBid
	err := r.db.NewSelect().
		Model(&bids).
		Where("lot_id = ?", lotID).
		Order("timestamp ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get lot bids: %w", err)
	}
	return bids, nil
}

func (r *lotRepository) CancelLot(ctx context.Context, id int64) error {
	result, err := r.db.NewUpdate().
		Model((*models.Lot)(nil)).
		Set("status = ?", models.LotStatusCancelled).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND status = ?", id, models.LotStatusActive).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel lot: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("lot %d is not active", id)
	}
	return nil
}
