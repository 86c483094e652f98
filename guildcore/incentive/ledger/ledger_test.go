package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildforge/guildcore/guildcore/incentive"
)

type memJournal struct {
	mu      sync.Mutex
	entries []Entry
}

func (j *memJournal) Record(_ context.Context, entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	return nil
}

func fundedLedger(t *testing.T, accountID string, amount float64) *Ledger {
	t.Helper()
	l := New(nil)
	require.NoError(t, l.Credit(context.Background(), accountID, amount, true))
	return l
}

func TestPlaceHoldThenCommit(t *testing.T) {
	ctx := context.Background()
	l := fundedLedger(t, "member-1", 1000)

	holdID, err := l.PlaceHold(ctx, "member-1", 300)
	require.NoError(t, err)
	require.NotEmpty(t, holdID)

	account, _ := l.Account("member-1")
	assert.Equal(t, 1000.0, account.Balance)
	assert.Equal(t, 300.0, account.OnHold)
	assert.Equal(t, 700.0, account.Available())

	require.NoError(t, l.CommitHold(ctx, holdID))

	account, _ = l.Account("member-1")
	assert.Equal(t, 700.0, account.Balance, "commit consumes the held points")
	assert.Equal(t, 0.0, account.OnHold, "on-hold returns to its pre-hold value")
	assert.Equal(t, 1000.0, account.TotalEarned, "spend never touches lifetime earnings")

	_, live := l.LiveHold(holdID)
	assert.False(t, live, "hold is terminal after commit")
}

func TestPlaceHoldThenRelease(t *testing.T) {
	ctx := context.Background()
	l := fundedLedger(t, "member-1", 1000)

	holdID, err := l.PlaceHold(ctx, "member-1", 300)
	require.NoError(t, err)
	require.NoError(t, l.ReleaseHold(ctx, holdID))

	account, _ := l.Account("member-1")
	assert.Equal(t, 1000.0, account.Balance, "release leaves the balance unchanged")
	assert.Equal(t, 0.0, account.OnHold)
	assert.Equal(t, 1000.0, account.Available())
}

func TestPlaceHoldInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	l := fundedLedger(t, "member-1", 100)

	_, err := l.PlaceHold(ctx, "member-1", 150)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	account, _ := l.Account("member-1")
	assert.Equal(t, 100.0, account.Balance, "failed hold leaves state unchanged")
	assert.Equal(t, 0.0, account.OnHold)
}

func TestPlaceHoldAgainstAvailableNotBalance(t *testing.T) {
	ctx := context.Background()
	l := fundedLedger(t, "member-1", 100)

	_, err := l.PlaceHold(ctx, "member-1", 60)
	require.NoError(t, err)

	// 40 available left; a second hold for 60 must fail even though the raw
	// balance would cover it.
	_, err = l.PlaceHold(ctx, "member-1", 60)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = l.PlaceHold(ctx, "member-1", 40)
	require.NoError(t, err)
}

func TestSettleUnknownHold(t *testing.T) {
	ctx := context.Background()
	l := fundedLedger(t, "member-1", 100)

	require.ErrorIs(t, l.CommitHold(ctx, "NOPE"), ErrUnknownHold)
	require.ErrorIs(t, l.ReleaseHold(ctx, "NOPE"), ErrUnknownHold)

	holdID, err := l.PlaceHold(ctx, "member-1", 50)
	require.NoError(t, err)
	require.NoError(t, l.CommitHold(ctx, holdID))
	require.ErrorIs(t, l.CommitHold(ctx, holdID), ErrUnknownHold, "a hold is consumed exactly once")
	require.ErrorIs(t, l.ReleaseHold(ctx, holdID), ErrUnknownHold)
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	l := New(nil)

	var vErr *incentive.ValidationError

	_, err := l.PlaceHold(ctx, "member-1", 0)
	require.ErrorAs(t, err, &vErr)

	_, err = l.PlaceHold(ctx, "member-1", -5)
	require.ErrorAs(t, err, &vErr)

	_, err = l.PlaceHold(ctx, "", 5)
	require.ErrorAs(t, err, &vErr)

	require.ErrorAs(t, l.Credit(ctx, "member-1", 0, true), &vErr)
	require.ErrorAs(t, l.Credit(ctx, "member-1", -1, false), &vErr)

	_, touched := l.Account("member-1")
	assert.False(t, touched, "rejected input never creates state")
}

func TestCreditEarnedFlag(t *testing.T) {
	ctx := context.Background()
	l := New(nil)

	require.NoError(t, l.Credit(ctx, "member-1", 200, true))
	require.NoError(t, l.Credit(ctx, "member-1", 50, false))

	account, ok := l.Account("member-1")
	require.True(t, ok)
	assert.Equal(t, 250.0, account.Balance)
	assert.Equal(t, 200.0, account.TotalEarned, "refunds do not count as earnings")
}

func TestJournalReceivesEveryMutation(t *testing.T) {
	ctx := context.Background()
	journal := &memJournal{}
	l := New(journal)

	require.NoError(t, l.Credit(ctx, "member-1", 500, true))
	holdID, err := l.PlaceHold(ctx, "member-1", 200)
	require.NoError(t, err)
	require.NoError(t, l.CommitHold(ctx, holdID))

	require.Len(t, journal.entries, 3)
	assert.Equal(t, "credit", journal.entries[0].Op)
	assert.Equal(t, "place_hold", journal.entries[1].Op)
	assert.Equal(t, holdID, journal.entries[1].HoldID)
	assert.Equal(t, "commit_hold", journal.entries[2].Op)
	assert.Equal(t, 300.0, journal.entries[2].Balance, "entries carry post-mutation state")
	assert.Equal(t, 0.0, journal.entries[2].OnHold)
}

func TestConcurrentHoldsPreserveInvariant(t *testing.T) {
	ctx := context.Background()
	l := fundedLedger(t, "member-1", 1000)

	// 50 goroutines race to hold 100 each against a 1000 balance; exactly 10
	// can win. Half of the winners commit, half release.
	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	var holdIDs []string
	var failed int

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			holdID, err := l.PlaceHold(ctx, "member-1", 100)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, ErrInsufficientFunds) {
					t.Errorf("unexpected hold error: %v", err)
				}
				failed++
				return
			}
			holdIDs = append(holdIDs, holdID)
		}()
	}
	wg.Wait()

	require.Len(t, holdIDs, 10, "only the available balance may be reserved")
	assert.Equal(t, workers-10, failed)

	account, _ := l.Account("member-1")
	assert.Equal(t, 1000.0, account.OnHold)
	assert.GreaterOrEqual(t, account.Balance, account.OnHold)

	for i, holdID := range holdIDs {
		if i%2 == 0 {
			require.NoError(t, l.CommitHold(ctx, holdID))
		} else {
			require.NoError(t, l.ReleaseHold(ctx, holdID))
		}
	}

	account, _ = l.Account("member-1")
	assert.Equal(t, 500.0, account.Balance)
	assert.Equal(t, 0.0, account.OnHold)
	assert.GreaterOrEqual(t, account.Balance, account.OnHold)
}

func TestOperationsOnDistinctAccountsRunInParallel(t *testing.T) {
	ctx := context.Background()
	l := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n%10))
			_ = l.Credit(ctx, id, 10, true)
		}(i)
	}
	wg.Wait()

	for n := 0; n < 10; n++ {
		account, ok := l.Account(string(rune('a' + n)))
		require.True(t, ok)
		assert.Equal(t, 20.0, account.Balance)
	}
}
