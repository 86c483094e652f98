package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guildforge/guildcore/guildcore/database/models"
	"github.com/uptrace/bun"
)

type RaffleRepository interface {
	Create(ctx context.Context, raffle *models.Raffle) error
	GetByRaffleID(ctx context.Context, raffleID string) (*models.Raffle, error)
	AddEntrant(ctx context.Context, raffleID string, memberID string, weight float64) error
	GetEntrants(ctx context.Context, raffleID int64) ([]*models.RaffleEntrant, error)
	Lock(ctx context.Context, raffleID string) error
	SaveResult(ctx context.Context, raffleID string, seed []byte, winnerID string, roll float64) error
}

type raffleRepository struct {
	db *bun.DB
}

func NewRaffleRepository(db *bun.DB) RaffleRepository {
	return &raffleRepository{db: db}
}

func (r *raffleRepository) Create(ctx context.Context, raffle *models.Raffle) error {
	raffle.Status = models.RaffleStatusOpen
	raffle.CreatedAt = time.Now()

	if _, err := r.db.NewInsert().Model(raffle).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create raffle: %w", err)
	}
	return nil
}

func (r *raffleRepository) GetByRaffleID(ctx context.Context, raffleID string) (*models.Raffle, error) {
	raffle := new(models.Raffle)
	err := r.db.NewSelect().
		Model(raffle).
		Where("raffle_id = ?", raffleID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get raffle: %w", err)
	}
	return raffle, nil
}

// AddEntrant appends a weighted entrant while the raffle is still open. The
// row lock on the raffle serializes joins so positions stay dense and the
// open check is atomic with the insert.
func (r *raffleRepository) AddEntrant(ctx context.Context, raffleID string, memberID string, weight float64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	raffle := new(models.Raffle)
	err = tx.NewSelect().
		Model(raffle).
		Where("raffle_id = ?", raffleID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to get raffle: %w", err)
	}

	if raffle.Status != models.RaffleStatusOpen {
		return fmt.Errorf("raffle %s is not open for entrants", raffleID)
	}

	var position int
	count, err := tx.NewSelect().
		Model((*models.RaffleEntrant)(nil)).
		Where("raffle_id = ?", raffle.ID).
		Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count entrants: %w", err)
	}
	position = count

	entrant := &models.RaffleEntrant{
		RaffleID:  raffle.ID,
		MemberID:  memberID,
		Weight:    weight,
		Position:  position,
		CreatedAt: time.Now(),
	}
	if _, err := tx.NewInsert().Model(entrant).Exec(ctx); err != nil {
		return fmt.Errorf("failed to add entrant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entrant: %w", err)
	}
	return nil
}

func (r *raffleRepository) GetEntrants(ctx context.Context, raffleID int64) ([]*models.RaffleEntrant, error) {
	var entrants []*models.RaffleEntrant
	err := r.db.NewSelect().
		Model(&entrants).
		Where("raffle_id = ?", raffleID).
		Order("position ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get entrants: %w", err)
	}
	return entrants, nil
}

func (r *raffleRepository) Lock(ctx context.Context, raffleID string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Raffle)(nil)).
		Set("status = ?", models.RaffleStatusLocked).
		Set("locked_at = ?", time.Now()).
		Where("raffle_id = ? AND status = ?", raffleID, models.RaffleStatusOpen).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to lock raffle: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("raffle %s is not open", raffleID)
	}
	return nil
}

func (r *raffleRepository) SaveResult(ctx context.Context, raffleID string, seed []byte, winnerID string, roll float64) error {
	result, err := r.db.NewUpdate().
		Model((*models.Raffle)(nil)).
		Set("status = ?", models.RaffleStatusDrawn).
		Set("seed = ?", seed).
		Set("winner_id = ?", winnerID).
		Set("roll = ?", roll).
		Set("drawn_at = ?", time.Now()).
		Where("raffle_id = ? AND status = ?", raffleID, models.RaffleStatusLocked).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save draw result: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("raffle %s is not locked", raffleID)
	}
	return nil
}
