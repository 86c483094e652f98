package logger

import (
	"log/slog"
	"time"
)

// LogLedgerOp logs the outcome of a ledger operation.
func LogLedgerOp(op string, accountID string, amount float64, err error) {
	attrs := []any{
		slog.String("type", "ledger"),
		slog.String("op", op),
		slog.String("account_id", accountID),
		slog.Float64("amount", amount),
	}

	if err != nil {
		slog.Error("Ledger operation failed", append(attrs, slog.Any("error", err))...)
	} else {
		slog.Info("Ledger operation applied", attrs...)
	}
}

// LogDraw logs a completed fair draw.
func LogDraw(raffleID string, winnerID string, roll float64, entrants int) {
	slog.Info("Draw completed",
		slog.String("type", "draw"),
		slog.String("raffle_id", raffleID),
		slog.String("winner_id", winnerID),
		slog.Float64("roll", roll),
		slog.Int("entrants", entrants))
}

// LogQuery logs database operations.
func LogQuery(query string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "db"),
		slog.Duration("took", duration),
	}

	if err != nil {
		slog.Error("Query failed", append(attrs,
			slog.String("query", query),
			slog.Any("error", err),
		)...)
	} else {
		slog.Info("Query executed", append(attrs,
			slog.String("query", query),
		)...)
	}
}

// LogSystem logs system events.
func LogSystem(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "sys")}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogError logs error events.
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
