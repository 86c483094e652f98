package auction

import (
	"context"
	"log/slog"
	"time"
)

const completeTimeout = 30 * time.Second

// scheduleLotEnd arms a timer for the lot's deadline. An anti-snipe
// extension arms a second timer for the later deadline; completeLot ignores
// the stale one because the lot is still inside its window when it fires.
func (m *Manager) scheduleLotEnd(lotID int64, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	timer := time.NewTimer(duration)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer timer.Stop()

		select {
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
			defer cancel()

			if err := m.completeLot(ctx, lotID); err != nil {
				slog.Error("Failed to complete lot",
					slog.String("type", "auction"),
					slog.Int64("lot_id", lotID),
					slog.Any("error", err))
			}
		case <-m.done:
		}
	}()
}

// runCleanupTicker sweeps for lots whose timers were lost (restarts, missed
// fires) and closes them.
func (m *Manager) runCleanupTicker() {
	defer m.wg.Done()
	defer m.cleanupTicker.Stop()

	for {
		select {
		case <-m.cleanupTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
			if err := m.cleanupExpiredLots(ctx); err != nil {
				slog.Error("Failed to cleanup expired lots",
					slog.String("type", "auction"),
					slog.Any("error", err))
			}
			cancel()
		case <-m.done:
			return
		}
	}
}

func (m *Manager) cleanupExpiredLots(ctx context.Context) error {
	expired, err := m.repo.GetExpired(ctx)
	if err != nil {
		return err
	}

	for _, lot := range expired {
		if err := m.completeLot(ctx, lot.ID); err != nil {
			slog.Error("Failed to complete expired lot",
				slog.String("type", "auction"),
				slog.String("lot_id", lot.LotID),
				slog.Any("error", err))
		}
	}
	return nil
}

// RecoverActiveLots re-arms timers for lots that were open when the process
// last stopped. Lots already past their deadline close immediately.
func (m *Manager) RecoverActiveLots(ctx context.Context) error {
	lots, err := m.repo.GetActive(ctx)
	if err != nil {
		return err
	}

	for _, lot := range lots {
		m.activeLots.Store(lot.ID, lot)
		m.scheduleLotEnd(lot.ID, time.Until(lot.EndsAt))
	}

	slog.Info("Recovered active lots",
		slog.String("type", "auction"),
		slog.Int("count", len(lots)))
	return nil
}

// Shutdown stops the timers and the cleanup sweep and waits for in-flight
// completions to finish.
func (m *Manager) Shutdown() {
	close(m.done)
	m.cleanupTicker.Stop()
	m.wg.Wait()
	slog.Info("Auction manager shutdown completed", slog.String("type", "auction"))
}
