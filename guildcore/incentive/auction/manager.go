// Package auction runs competitive bidding over guild lots. Bids are backed
// by ledger holds rather than direct debits: placing a bid reserves the
// bidder's points, being outbid releases them, winning commits them and pays
// the seller. The anti-snipe window can push a lot's deadline back, never
// forward to an earlier time.
package auction

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/guildforge/guildcore/guildcore/audit"
	"github.com/guildforge/guildcore/guildcore/database/models"
	"github.com/guildforge/guildcore/guildcore/database/repositories"
	"github.com/guildforge/guildcore/guildcore/incentive"
	"github.com/guildforge/guildcore/guildcore/incentive/ledger"
	"github.com/guildforge/guildcore/guildcore/incentive/window"
	"github.com/guildforge/guildcore/guildcore/notifier"
)

const (
	MinLotDuration = 10 * time.Second
	MaxLotDuration = 24 * time.Hour

	lotIDBytes   = 4 // 7 base32 characters, no padding
	maxIDRetries = 5
)

var ErrLotClosed = errors.New("lot is not active")

// CreateParams describes a new lot.
type CreateParams struct {
	ItemID           int64
	SellerID         string
	StartPrice       float64
	MinIncrement     float64
	Duration         time.Duration
	AntiSnipeEnabled bool
	AntiSnipeSeconds int
}

type Manager struct {
	repo        repositories.LotRepository
	ledger      *ledger.Ledger
	sink        audit.Sink
	broadcaster notifier.Broadcaster

	activeLots    sync.Map // lot primary key -> *models.Lot snapshot
	cleanupTicker *time.Ticker
	done          chan struct{}
	wg            sync.WaitGroup
	idGenMu       sync.Mutex
}

func NewManager(repo repositories.LotRepository, lg *ledger.Ledger, sink audit.Sink, broadcaster notifier.Broadcaster) *Manager {
	if repo == nil {
		panic("lot repository cannot be nil")
	}
	if lg == nil {
		panic("ledger cannot be nil")
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	if broadcaster == nil {
		broadcaster = notifier.NopBroadcaster{}
	}

	m := &Manager{
		repo:          repo,
		ledger:        lg,
		sink:          sink,
		broadcaster:   broadcaster,
		cleanupTicker: time.NewTicker(15 * time.Second),
		done:          make(chan struct{}),
	}

	m.wg.Add(1)
	go m.runCleanupTicker()

	return m
}

// CreateLot opens a new lot and schedules its closing timer.
func (m *Manager) CreateLot(ctx context.Context, params CreateParams) (*models.Lot, error) {
	if params.SellerID == "" {
		return nil, incentive.Invalid("seller id", "must not be empty")
	}
	if params.StartPrice < 0 {
		return nil, incentive.Invalid("start price", "must not be negative")
	}
	if params.MinIncrement <= 0 {
		return nil, incentive.Invalid("min increment", "must be positive")
	}
	if params.Duration < MinLotDuration || params.Duration > MaxLotDuration {
		return nil, incentive.Invalid("duration", fmt.Sprintf("must be between %s and %s", MinLotDuration, MaxLotDuration))
	}
	if params.AntiSnipeEnabled && params.AntiSnipeSeconds <= 0 {
		return nil, incentive.Invalid("anti-snipe seconds", "must be positive when anti-snipe is enabled")
	}

	lotID, err := m.generateLotID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate lot id: %w", err)
	}

	tx, err := m.repo.DB().BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	lot := &models.Lot{
		LotID:            lotID,
		ItemID:           params.ItemID,
		SellerID:         params.SellerID,
		StartPrice:       params.StartPrice,
		CurrentPrice:     params.StartPrice,
		MinIncrement:     params.MinIncrement,
		StartTime:        now,
		EndsAt:           now.Add(params.Duration),
		AntiSnipeEnabled: params.AntiSnipeEnabled,
		AntiSnipeSeconds: params.AntiSnipeSeconds,
	}

	if err := m.repo.CreateWithTx(ctx, tx, lot); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	m.activeLots.Store(lot.ID, lot)
	m.scheduleLotEnd(lot.ID, params.Duration)

	slog.Info("Lot created",
		slog.String("type", "auction"),
		slog.String("lot_id", lot.LotID),
		slog.String("seller_id", params.SellerID),
		slog.Float64("start_price", params.StartPrice),
		slog.Time("ends_at", lot.EndsAt))

	return lot, nil
}

// PlaceBid validates and applies one bid. The bid amount is escrowed as a
// ledger hold before anything is written; the previous top bidder's hold is
// released only after the new state has committed. A bid landing inside the
// anti-snipe window pushes the deadline back.
func (m *Manager) PlaceBid(ctx context.Context, lotID int64, bidderID string, amount float64) error {
	if bidderID == "" {
		return incentive.Invalid("bidder id", "must not be empty")
	}

	tx, err := m.repo.DB().BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	lot := new(models.Lot)
	err = tx.NewSelect().
		Model(lot).
		Where("id = ?", lotID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to get lot: %w", err)
	}

	now := time.Now()
	if lot.Status != models.LotStatusActive || !now.Before(lot.EndsAt) {
		return ErrLotClosed
	}
	if lot.SellerID == bidderID {
		return fmt.Errorf("seller cannot bid on their own lot")
	}
	if lot.TopBidderID == bidderID {
		return fmt.Errorf("you are already the highest bidder")
	}

	minValidBid := lot.CurrentPrice + lot.MinIncrement
	if amount < minValidBid {
		return fmt.Errorf("bid must be at least %.2f (current price + minimum increment)", minValidBid)
	}

	// Escrow the bid before touching the lot. A failed hold rejects the bid
	// with the lot untouched; a failed commit below releases the hold again.
	holdID, err := m.ledger.PlaceHold(ctx, bidderID, amount)
	if err != nil {
		return fmt.Errorf("failed to escrow bid: %w", err)
	}

	w := window.Window{
		LotID:            lot.LotID,
		EndsAt:           lot.EndsAt,
		AntiSnipeEnabled: lot.AntiSnipeEnabled,
		AntiSnipeSeconds: lot.AntiSnipeSeconds,
	}
	extended := window.ShouldExtend(now, w)
	if extended {
		extended = w.ExtendTo(w.NextEnd(now))
	}

	prevHoldID := lot.TopHoldID

	bid := &models.LotBid{
		LotID:     lotID,
		BidderID:  bidderID,
		Amount:    amount,
		HoldID:    holdID,
		Extended:  extended,
		Timestamp: now,
		CreatedAt: now,
	}
	if _, err := tx.NewInsert().Model(bid).Exec(ctx); err != nil {
		m.releaseHold(ctx, holdID)
		return fmt.Errorf("failed to record bid: %w", err)
	}

	update := tx.NewUpdate().
		Model((*models.Lot)(nil)).
		Set("top_bidder_id = ?", bidderID).
		Set("top_hold_id = ?", holdID).
		Set("current_price = ?", amount).
		Set("last_bid_time = ?", now).
		Set("bid_count = bid_count + 1").
		Set("updated_at = ?", now).
		Where("id = ?", lotID)
	if extended {
		update = update.Set("ends_at = ?", w.EndsAt)
	}
	if _, err := update.Exec(ctx); err != nil {
		m.releaseHold(ctx, holdID)
		return fmt.Errorf("failed to update lot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		m.releaseHold(ctx, holdID)
		return fmt.Errorf("failed to commit bid transaction: %w", err)
	}

	// The outbid escrow returns only once the new bid is durable.
	if prevHoldID != "" {
		m.releaseHold(ctx, prevHoldID)
	}

	if extended {
		m.scheduleLotEnd(lotID, time.Until(w.EndsAt))
		m.broadcaster.PublishWindowExtended(lot.LotID, w.EndsAt)
		slog.Info("Bid window extended",
			slog.String("type", "auction"),
			slog.String("lot_id", lot.LotID),
			slog.Time("ends_at", w.EndsAt))
	}

	m.auditEvent(ctx, audit.Event{
		Kind:      "bid_placed",
		AccountID: bidderID,
		RefID:     lot.LotID,
		Amount:    amount,
		Detail: map[string]any{
			"hold_id":  holdID,
			"extended": extended,
		},
	})
	m.broadcaster.PublishBid(lot.LotID, bidderID, amount, extended)

	return nil
}

// CancelLot cancels an active lot. Only the seller may cancel; the current
// top bidder's escrow is released.
func (m *Manager) CancelLot(ctx context.Context, lotID int64, requesterID string) error {
	tx, err := m.repo.DB().BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	lot := new(models.Lot)
	err = tx.NewSelect().
		Model(lot).
		Where("id = ?", lotID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to get lot: %w", err)
	}

	if lot.SellerID != requesterID {
		return fmt.Errorf("only the seller can cancel the lot")
	}
	if lot.Status != models.LotStatusActive {
		return ErrLotClosed
	}

	_, err = tx.NewUpdate().
		Model((*models.Lot)(nil)).
		Set("status = ?", models.LotStatusCancelled).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", lotID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to cancel lot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cancellation: %w", err)
	}

	if lot.TopHoldID != "" {
		m.releaseHold(ctx, lot.TopHoldID)
	}

	m.activeLots.Delete(lotID)
	m.auditEvent(ctx, audit.Event{
		Kind:  "lot_cancelled",
		RefID: lot.LotID,
	})

	return nil
}

// completeLot closes an expired lot. With a winner the escrowed bid is
// committed and the seller is credited; without bids the lot just closes.
func (m *Manager) completeLot(ctx context.Context, lotID int64) error {
	tx, err := m.repo.DB().BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	// The winner and escrow must come from under the row lock; a late bid
	// committing just before the close would otherwise settle stale state.
	lot := new(models.Lot)
	err = tx.NewSelect().
		Model(lot).
		Where("id = ?", lotID).
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to get lot: %w", err)
	}

	if lot.Status != models.LotStatusActive {
		return nil
	}
	if time.Now().Before(lot.EndsAt) {
		// The deadline moved after this timer was armed. The timer for the
		// new deadline is already scheduled.
		return nil
	}

	_, err = tx.NewUpdate().
		Model((*models.Lot)(nil)).
		Set("status = ?", models.LotStatusCompleted).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", lotID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to close lot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lot completion: %w", err)
	}

	if lot.TopBidderID != "" {
		if err := m.settleWinningBid(ctx, lot); err != nil {
			slog.Error("Failed to settle winning bid",
				slog.String("type", "auction"),
				slog.String("lot_id", lot.LotID),
				slog.Any("error", err))
			return err
		}
	}

	m.activeLots.Delete(lotID)

	m.auditEvent(ctx, audit.Event{
		Kind:      "lot_closed",
		AccountID: lot.TopBidderID,
		RefID:     lot.LotID,
		Amount:    lot.CurrentPrice,
		Detail: map[string]any{
			"bid_count": lot.BidCount,
		},
	})
	m.broadcaster.PublishLotClosed(lot.LotID, lot.TopBidderID, lot.CurrentPrice)

	slog.Info("Lot completed",
		slog.String("type", "auction"),
		slog.String("lot_id", lot.LotID),
		slog.String("winner_id", lot.TopBidderID),
		slog.Float64("final_price", lot.CurrentPrice))

	return nil
}

// settleWinningBid consumes the winner's escrow and pays the seller. The
// seller credit is a transfer, not a reward, so it does not count as earned.
func (m *Manager) settleWinningBid(ctx context.Context, lot *models.Lot) error {
	if err := m.ledger.CommitHold(ctx, lot.TopHoldID); err != nil {
		return fmt.Errorf("failed to commit winner escrow: %w", err)
	}
	if err := m.ledger.Credit(ctx, lot.SellerID, lot.CurrentPrice, false); err != nil {
		return fmt.Errorf("failed to credit seller: %w", err)
	}
	return nil
}

func (m *Manager) releaseHold(ctx context.Context, holdID string) {
	if err := m.ledger.ReleaseHold(ctx, holdID); err != nil && !errors.Is(err, ledger.ErrUnknownHold) {
		slog.Error("Failed to release escrow hold",
			slog.String("type", "auction"),
			slog.String("hold_id", holdID),
			slog.Any("error", err))
	}
}

func (m *Manager) auditEvent(ctx context.Context, event audit.Event) {
	event.At = time.Now()
	if err := m.sink.Write(ctx, event); err != nil {
		slog.Error("Failed to audit auction event",
			slog.String("type", "auction"),
			slog.String("kind", event.Kind),
			slog.Any("error", err))
	}
}

// GetActiveLots returns the lots still open for bidding.
func (m *Manager) GetActiveLots(ctx context.Context) ([]*models.Lot, error) {
	return m.repo.GetActive(ctx)
}

// generateLotID creates a short unique lot id, retrying on collision.
func (m *Manager) generateLotID(ctx context.Context) (string, error) {
	m.idGenMu.Lock()
	defer m.idGenMu.Unlock()

	for attempt := 0; attempt < maxIDRetries; attempt++ {
		buf := make([]byte, lotIDBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		id := strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))

		if _, err := m.repo.GetByLotID(ctx, id); err != nil {
			return id, nil
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Millisecond
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("timeout during id generation: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("failed to generate unique lot id after %d attempts", maxIDRetries)
}
