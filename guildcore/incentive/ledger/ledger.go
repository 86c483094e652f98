// Package ledger maintains per-account point balances under the
// hold/commit/release reservation protocol. Debits never happen directly; a
// caller must place a hold against the available balance and later commit it
// (consume the points) or release it (return them). That keeps the
// availability check and its effect atomic and makes OnHold <= Balance hold
// after every operation, for every interleaving.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/guildforge/guildcore/guildcore/incentive"
)

var (
	// ErrInsufficientFunds is a business-rule refusal, not a system fault:
	// the hold asked for more than the account's available balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownHold means the hold is absent or already consumed. Usually a
	// caller bug or a duplicate request; log it, do not auto-retry.
	ErrUnknownHold = errors.New("unknown hold")
)

const (
	holdIDBytes   = 5 // 8 base32 characters
	maxIDRetries  = 5
	opPlaceHold   = "place_hold"
	opCommitHold  = "commit_hold"
	opReleaseHold = "release_hold"
	opCredit      = "credit"
)

// Account is a snapshot of one member's point state. Available points are
// always derived, never stored.
type Account struct {
	ID          string
	Balance     float64
	OnHold      float64
	TotalEarned float64
}

// Available returns the portion of the balance usable for new holds.
func (a Account) Available() float64 {
	return a.Balance - a.OnHold
}

// Hold is a live reservation against an account's available balance. It is
// consumed by exactly one of CommitHold or ReleaseHold.
type Hold struct {
	ID        string
	AccountID string
	Amount    float64
	CreatedAt time.Time
}

// Entry describes one applied ledger mutation, with the account state after
// the mutation. Entries are handed to the Journal for durable persistence
// and audit; the external store is expected to apply them transactionally.
type Entry struct {
	Op          string
	AccountID   string
	HoldID      string
	Amount      float64
	Earned      bool
	Balance     float64
	OnHold      float64
	TotalEarned float64
	At          time.Time
}

// Journal receives every successful mutation. Implementations persist and
// audit entries; a journal failure is logged but never rolls back the
// in-memory state, so implementations must be durable on their own terms.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
}

// Ledger holds the accounts and live holds. Operations on one account are
// serialized through a per-account mutex; operations on different accounts
// proceed fully in parallel. Accounts are created on first touch and never
// deleted here.
type Ledger struct {
	journal Journal

	mu       sync.Mutex // guards the two maps, never held across an operation
	accounts map[string]*Account
	holds    map[string]*Hold

	accountLocks sync.Map // accountID -> *sync.Mutex
}

// New creates an empty ledger. journal may be nil when no persistence
// collaborator is wired (tests, dry runs).
func New(journal Journal) *Ledger {
	return &Ledger{
		journal:  journal,
		accounts: make(map[string]*Account),
		holds:    make(map[string]*Hold),
	}
}

// PlaceHold reserves amount against the account's available balance and
// returns the new hold's id. Fails with ErrInsufficientFunds when the
// available balance is short; no partial holds are ever created.
func (l *Ledger) PlaceHold(ctx context.Context, accountID string, amount float64) (string, error) {
	if accountID == "" {
		return "", incentive.Invalid("account id", "must not be empty")
	}
	if amount <= 0 {
		return "", incentive.Invalid("hold amount", "must be positive")
	}

	unlock := l.lockAccount(accountID)
	defer unlock()

	account := l.account(accountID)
	if account.Available() < amount {
		return "", fmt.Errorf("%w: account %s has %.2f available, hold wants %.2f",
			ErrInsufficientFunds, accountID, account.Available(), amount)
	}

	holdID, err := l.newHoldID()
	if err != nil {
		return "", err
	}

	hold := &Hold{
		ID:        holdID,
		AccountID: accountID,
		Amount:    amount,
		CreatedAt: time.Now(),
	}

	l.mu.Lock()
	account.OnHold += amount
	l.holds[holdID] = hold
	l.mu.Unlock()

	l.record(ctx, Entry{
		Op:        opPlaceHold,
		AccountID: accountID,
		HoldID:    holdID,
		Amount:    amount,
	}, account)

	return holdID, nil
}

// CommitHold consumes a live hold as spend: the held amount leaves both the
// balance and the on-hold total. The hold is terminal afterwards.
func (l *Ledger) CommitHold(ctx context.Context, holdID string) error {
	return l.settleHold(ctx, holdID, true)
}

// ReleaseHold consumes a live hold without spending: the held amount returns
// to the available balance, the balance itself is unchanged.
func (l *Ledger) ReleaseHold(ctx context.Context, holdID string) error {
	return l.settleHold(ctx, holdID, false)
}

func (l *Ledger) settleHold(ctx context.Context, holdID string, commit bool) error {
	l.mu.Lock()
	hold, ok := l.holds[holdID]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHold, holdID)
	}

	unlock := l.lockAccount(hold.AccountID)
	defer unlock()

	// Re-check under the account lock: a concurrent settle may have consumed
	// the hold between the lookup above and acquiring the lock.
	l.mu.Lock()
	hold, ok = l.holds[holdID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownHold, holdID)
	}
	account := l.accounts[hold.AccountID]
	delete(l.holds, holdID)
	account.OnHold -= hold.Amount
	op := opReleaseHold
	if commit {
		account.Balance -= hold.Amount
		op = opCommitHold
	}
	l.mu.Unlock()

	l.record(ctx, Entry{
		Op:        op,
		AccountID: hold.AccountID,
		HoldID:    holdID,
		Amount:    hold.Amount,
	}, account)

	return nil
}

// Credit adds points to the account. earned marks reward-sourced credits,
// which also grow the lifetime earned total; refunds leave it untouched.
// There is no upper bound.
func (l *Ledger) Credit(ctx context.Context, accountID string, amount float64, earned bool) error {
	if accountID == "" {
		return incentive.Invalid("account id", "must not be empty")
	}
	if amount <= 0 {
		return incentive.Invalid("credit amount", "must be positive")
	}

	unlock := l.lockAccount(accountID)
	defer unlock()

	account := l.account(accountID)

	l.mu.Lock()
	account.Balance += amount
	if earned {
		account.TotalEarned += amount
	}
	l.mu.Unlock()

	l.record(ctx, Entry{
		Op:        opCredit,
		AccountID: accountID,
		Amount:    amount,
		Earned:    earned,
	}, account)

	return nil
}

// Account returns a snapshot of the account state, and whether the account
// has been touched before.
func (l *Ledger) Account(accountID string) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[accountID]
	if !ok {
		return Account{ID: accountID}, false
	}
	return *account, true
}

// LiveHold returns a snapshot of a hold that has not been consumed yet.
func (l *Ledger) LiveHold(holdID string) (Hold, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	hold, ok := l.holds[holdID]
	if !ok {
		return Hold{}, false
	}
	return *hold, true
}

// lockAccount serializes operations on a single account.
func (l *Ledger) lockAccount(accountID string) func() {
	lock, _ := l.accountLocks.LoadOrStore(accountID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// account fetches or creates the record. Callers must hold the account lock.
func (l *Ledger) account(accountID string) *Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	account, ok := l.accounts[accountID]
	if !ok {
		account = &Account{ID: accountID}
		l.accounts[accountID] = account
	}
	return account
}

func (l *Ledger) record(ctx context.Context, entry Entry, account *Account) {
	if l.journal == nil {
		return
	}
	l.mu.Lock()
	entry.Balance = account.Balance
	entry.OnHold = account.OnHold
	entry.TotalEarned = account.TotalEarned
	l.mu.Unlock()
	entry.At = time.Now()

	if err := l.journal.Record(ctx, entry); err != nil {
		slog.Error("Failed to journal ledger entry",
			slog.String("type", "ledger"),
			slog.String("op", entry.Op),
			slog.String("account_id", entry.AccountID),
			slog.Any("error", err))
	}
}

// newHoldID generates a short unique id, crypto/rand encoded as base32.
func (l *Ledger) newHoldID() (string, error) {
	for i := 0; i < maxIDRetries; i++ {
		buf := make([]byte, holdIDBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate hold id: %w", err)
		}
		id := strings.ToUpper(base32.StdEncoding.EncodeToString(buf))

		l.mu.Lock()
		_, taken := l.holds[id]
		l.mu.Unlock()
		if !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique hold id after %d attempts", maxIDRetries)
}
