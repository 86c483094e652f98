package raffle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guildforge/guildcore/guildcore/database/models"
	"github.com/guildforge/guildcore/guildcore/incentive/draw"
)

type memRaffleRepo struct {
	mu       sync.Mutex
	nextID   int64
	raffles  map[string]*models.Raffle
	entrants map[int64][]*models.RaffleEntrant
}

func newMemRaffleRepo() *memRaffleRepo {
	return &memRaffleRepo{
		raffles:  make(map[string]*models.Raffle),
		entrants: make(map[int64][]*models.RaffleEntrant),
	}
}

func (m *memRaffleRepo) Create(_ context.Context, raffle *models.Raffle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	raffle.ID = m.nextID
	raffle.Status = models.RaffleStatusOpen
	m.raffles[raffle.RaffleID] = raffle
	return nil
}

func (m *memRaffleRepo) GetByRaffleID(_ context.Context, raffleID string) (*models.Raffle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raffle, ok := m.raffles[raffleID]
	if !ok {
		return nil, errors.New("raffle not found")
	}
	copied := *raffle
	return &copied, nil
}

func (m *memRaffleRepo) AddEntrant(_ context.Context, raffleID, memberID string, weight float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raffle, ok := m.raffles[raffleID]
	if !ok {
		return errors.New("raffle not found")
	}
	if raffle.Status != models.RaffleStatusOpen {
		return fmt.Errorf("raffle %s is not open for entrants", raffleID)
	}
	m.entrants[raffle.ID] = append(m.entrants[raffle.ID], &models.RaffleEntrant{
		RaffleID: raffle.ID,
		MemberID: memberID,
		Weight:   weight,
		Position: len(m.entrants[raffle.ID]),
	})
	return nil
}

func (m *memRaffleRepo) GetEntrants(_ context.Context, raffleID int64) ([]*models.RaffleEntrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entrants[raffleID], nil
}

func (m *memRaffleRepo) Lock(_ context.Context, raffleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raffle, ok := m.raffles[raffleID]
	if !ok || raffle.Status != models.RaffleStatusOpen {
		return errors.New("raffle is not open")
	}
	raffle.Status = models.RaffleStatusLocked
	return nil
}

func (m *memRaffleRepo) SaveResult(_ context.Context, raffleID string, seed []byte, winnerID string, roll float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raffle, ok := m.raffles[raffleID]
	if !ok || raffle.Status != models.RaffleStatusLocked {
		return errors.New("raffle is not locked")
	}
	raffle.Status = models.RaffleStatusDrawn
	raffle.Seed = seed
	raffle.WinnerID = winnerID
	raffle.Roll = roll
	return nil
}

func TestCommittedRaffleLifecycle(t *testing.T) {
	repo := newMemRaffleRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	reveal := []byte("operator secret chosen before entrants joined")
	commitment := draw.Commitment(reveal)

	raffle, err := svc.Open(ctx, 42, commitment)
	require.NoError(t, err)
	require.NotEmpty(t, raffle.RaffleID)

	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "alice", 1))
	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "bob", 2))
	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "carol", 1))

	require.NoError(t, svc.Lock(ctx, raffle.RaffleID))

	result, err := svc.DrawWinner(ctx, raffle.RaffleID, reveal)
	require.NoError(t, err)
	assert.Contains(t, []string{"alice", "bob", "carol"}, result.WinnerID)
	assert.GreaterOrEqual(t, result.Roll, 0.0)
	assert.LessOrEqual(t, result.Roll, 1.0)

	ok, err := svc.Verify(ctx, raffle.RaffleID)
	require.NoError(t, err)
	assert.True(t, ok, "persisted outcome must replay identically")
}

func TestDrawWinnerRejectsWrongReveal(t *testing.T) {
	repo := newMemRaffleRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	raffle, err := svc.Open(ctx, 1, draw.Commitment([]byte("the real secret")))
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "alice", 1))
	require.NoError(t, svc.Lock(ctx, raffle.RaffleID))

	_, err = svc.DrawWinner(ctx, raffle.RaffleID, []byte("a different secret"))
	require.ErrorIs(t, err, ErrCommitmentMismatch)

	stored, err := repo.GetByRaffleID(ctx, raffle.RaffleID)
	require.NoError(t, err)
	assert.Equal(t, models.RaffleStatusLocked, stored.Status, "failed reveal must not consume the raffle")
}

func TestDrawWinnerRequiresLock(t *testing.T) {
	repo := newMemRaffleRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	reveal := []byte("secret")
	raffle, err := svc.Open(ctx, 1, draw.Commitment(reveal))
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "alice", 1))

	_, err = svc.DrawWinner(ctx, raffle.RaffleID, reveal)
	require.ErrorIs(t, err, ErrNotLocked)
}

func TestJoinAfterLockFails(t *testing.T) {
	repo := newMemRaffleRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	raffle, err := svc.Open(ctx, 1, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "alice", 1))
	require.NoError(t, svc.Lock(ctx, raffle.RaffleID))

	err = svc.Join(ctx, raffle.RaffleID, "late-joiner", 1)
	require.Error(t, err)
}

func TestUncommittedRaffleDrawsRandomSeed(t *testing.T) {
	repo := newMemRaffleRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	raffle, err := svc.Open(ctx, 1, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "alice", 1))
	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "bob", 1))
	require.NoError(t, svc.Lock(ctx, raffle.RaffleID))

	result, err := svc.DrawWinner(ctx, raffle.RaffleID, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.WinnerID)

	stored, err := repo.GetByRaffleID(ctx, raffle.RaffleID)
	require.NoError(t, err)
	assert.Len(t, stored.Seed, draw.SeedSize)

	ok, err := svc.Verify(ctx, raffle.RaffleID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUncommittedRaffleRejectsReveal(t *testing.T) {
	repo := newMemRaffleRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	raffle, err := svc.Open(ctx, 1, nil)
	require.NoError(t, err)
	require.NoError(t, svc.Join(ctx, raffle.RaffleID, "alice", 1))
	require.NoError(t, svc.Lock(ctx, raffle.RaffleID))

	_, err = svc.DrawWinner(ctx, raffle.RaffleID, []byte("unexpected reveal"))
	require.Error(t, err)
}

func TestOpenRejectsMalformedCommitment(t *testing.T) {
	svc := NewService(newMemRaffleRepo(), nil, nil)

	_, err := svc.Open(context.Background(), 1, []byte("too short"))
	require.Error(t, err)
}

func TestWeightsShiftOddsTowardHeavyEntrant(t *testing.T) {
	ctx := context.Background()
	wins := map[string]int{}

	for trial := 0; trial < 500; trial++ {
		repo := newMemRaffleRepo()
		svc := NewService(repo, nil, nil)

		reveal := []byte(fmt.Sprintf("trial-%d", trial))
		raffle, err := svc.Open(ctx, 1, draw.Commitment(reveal))
		require.NoError(t, err)
		require.NoError(t, svc.Join(ctx, raffle.RaffleID, "light", 1))
		require.NoError(t, svc.Join(ctx, raffle.RaffleID, "heavy", 3))
		require.NoError(t, svc.Lock(ctx, raffle.RaffleID))

		result, err := svc.DrawWinner(ctx, raffle.RaffleID, reveal)
		require.NoError(t, err)
		wins[result.WinnerID]++
	}

	assert.Greater(t, wins["heavy"], wins["light"],
		"3x weight should win more often, got %v", wins)
}
