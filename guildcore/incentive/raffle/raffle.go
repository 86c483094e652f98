// Package raffle runs seed-committed prize draws over frozen entrant lists.
// The lifecycle is open -> locked -> drawn: entrants join while open, the
// lock freezes the list, and the draw consumes either a revealed commit
// preimage or a fresh random seed. Results are immutable once persisted.
package raffle

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guildforge/guildcore/guildcore/audit"
	"github.com/guildforge/guildcore/guildcore/database/models"
	"github.com/guildforge/guildcore/guildcore/database/repositories"
	"github.com/guildforge/guildcore/guildcore/incentive"
	"github.com/guildforge/guildcore/guildcore/incentive/draw"
	"github.com/guildforge/guildcore/guildcore/logger"
	"github.com/guildforge/guildcore/guildcore/notifier"
)

var (
	// ErrCommitmentMismatch means the revealed preimage does not hash to the
	// published commitment. The draw must not run.
	ErrCommitmentMismatch = errors.New("reveal does not match published commitment")

	// ErrNotLocked means the raffle has not frozen its entrants yet, or was
	// already drawn.
	ErrNotLocked = errors.New("raffle is not locked for drawing")
)

const raffleIDBytes = 4

// Service drives the raffle lifecycle over the durable store.
type Service struct {
	repo        repositories.RaffleRepository
	sink        audit.Sink
	broadcaster notifier.Broadcaster
}

func NewService(repo repositories.RaffleRepository, sink audit.Sink, broadcaster notifier.Broadcaster) *Service {
	if sink == nil {
		sink = audit.NopSink{}
	}
	if broadcaster == nil {
		broadcaster = notifier.NopBroadcaster{}
	}
	return &Service{repo: repo, sink: sink, broadcaster: broadcaster}
}

// Open creates a raffle. commitment is the published hash of the operator's
// secret reveal; pass nil to run the raffle on a random seed instead, which
// trades third-party verifiability for convenience.
func (s *Service) Open(ctx context.Context, prizeID int64, commitment []byte) (*models.Raffle, error) {
	if len(commitment) != 0 && len(commitment) != draw.SeedSize {
		return nil, incentive.Invalid("commitment",
			fmt.Sprintf("must be %d bytes when set, got %d", draw.SeedSize, len(commitment)))
	}

	raffleID, err := newRaffleID()
	if err != nil {
		return nil, err
	}

	raffle := &models.Raffle{
		RaffleID:   raffleID,
		PrizeID:    prizeID,
		Commitment: commitment,
	}
	if err := s.repo.Create(ctx, raffle); err != nil {
		return nil, err
	}

	s.auditEvent(ctx, audit.Event{
		Kind:  "raffle_opened",
		RefID: raffleID,
		Detail: map[string]any{
			"prize_id":  prizeID,
			"committed": len(commitment) > 0,
		},
	})

	return raffle, nil
}

// Join adds a weighted entrant. Fails once the raffle is locked or drawn.
func (s *Service) Join(ctx context.Context, raffleID, memberID string, weight float64) error {
	if memberID == "" {
		return incentive.Invalid("member id", "must not be empty")
	}
	if weight <= 0 {
		return incentive.Invalid("weight", "must be positive")
	}
	return s.repo.AddEntrant(ctx, raffleID, memberID, weight)
}

// Lock freezes the entrant list. The entrant order at lock time is the order
// the draw walks.
func (s *Service) Lock(ctx context.Context, raffleID string) error {
	if err := s.repo.Lock(ctx, raffleID); err != nil {
		return err
	}

	s.auditEvent(ctx, audit.Event{
		Kind:  "raffle_locked",
		RefID: raffleID,
	})
	return nil
}

// DrawWinner runs the draw on a locked raffle. For a committed raffle the
// reveal must hash to the published commitment; the seed is then derived
// from the reveal. An uncommitted raffle draws on a fresh random seed. The
// winning roll and seed are persisted so anyone can replay the draw.
func (s *Service) DrawWinner(ctx context.Context, raffleID string, reveal []byte) (*draw.Result, error) {
	raffle, err := s.repo.GetByRaffleID(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if raffle.Status != models.RaffleStatusLocked {
		return nil, fmt.Errorf("%w: raffle %s is %s", ErrNotLocked, raffleID, raffle.Status)
	}

	seed, err := s.resolveSeed(raffle, reveal)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.GetEntrants(ctx, raffle.ID)
	if err != nil {
		return nil, err
	}

	entrants := make([]draw.Entrant, len(rows))
	for i, row := range rows {
		entrants[i] = draw.Entrant{ID: row.MemberID, Weight: row.Weight}
	}

	result, err := draw.Draw(entrants, seed)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveResult(ctx, raffleID, seed.Bytes(), result.WinnerID, result.Roll); err != nil {
		return nil, err
	}

	logger.LogDraw(raffleID, result.WinnerID, result.Roll, len(entrants))

	s.auditEvent(ctx, audit.Event{
		Kind:      "raffle_drawn",
		AccountID: result.WinnerID,
		RefID:     raffleID,
		Detail: map[string]any{
			"roll":     result.Roll,
			"entrants": len(entrants),
			"seed":     fmt.Sprintf("%x", seed.Bytes()),
		},
	})
	s.broadcaster.PublishDrawResult(raffleID, result.WinnerID, result.Roll)

	return &result, nil
}

// Verify re-runs a drawn raffle from its persisted seed and entrant list and
// reports whether the stored outcome matches. This is the check a disputing
// member (or anyone else) can run.
func (s *Service) Verify(ctx context.Context, raffleID string) (bool, error) {
	raffle, err := s.repo.GetByRaffleID(ctx, raffleID)
	if err != nil {
		return false, err
	}
	if raffle.Status != models.RaffleStatusDrawn {
		return false, fmt.Errorf("raffle %s has not been drawn", raffleID)
	}

	seed, err := draw.ParseSeed(raffle.Seed)
	if err != nil {
		return false, err
	}

	rows, err := s.repo.GetEntrants(ctx, raffle.ID)
	if err != nil {
		return false, err
	}
	entrants := make([]draw.Entrant, len(rows))
	for i, row := range rows {
		entrants[i] = draw.Entrant{ID: row.MemberID, Weight: row.Weight}
	}

	result, err := draw.Draw(entrants, seed)
	if err != nil {
		return false, err
	}

	return result.WinnerID == raffle.WinnerID && result.Roll == raffle.Roll, nil
}

func (s *Service) resolveSeed(raffle *models.Raffle, reveal []byte) (draw.Seed, error) {
	if len(raffle.Commitment) > 0 {
		if !draw.VerifyCommitment(raffle.Commitment, reveal) {
			return draw.Seed{}, fmt.Errorf("%w: raffle %s", ErrCommitmentMismatch, raffle.RaffleID)
		}
		return draw.SeedFromReveal(reveal), nil
	}

	if len(reveal) > 0 {
		return draw.Seed{}, incentive.Invalid("reveal", "raffle has no commitment; drawing uses a random seed")
	}
	return draw.NewSeed()
}

func (s *Service) auditEvent(ctx context.Context, event audit.Event) {
	event.At = time.Now()
	if err := s.sink.Write(ctx, event); err != nil {
		logger.LogError("Failed to audit raffle event", err)
	}
}

func newRaffleID() (string, error) {
	buf := make([]byte, raffleIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate raffle id: %w", err)
	}
	return "RF" + strings.ToUpper(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)), nil
}
