// Package payout turns reward policy evaluations into ledger credits. It is
// the one place where the calculator and the ledger meet: every granted
// amount is computed from the named policy's tables and credited as earned
// points, with an audit event per grant.
package payout

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/guildforge/guildcore/guildcore/audit"
	"github.com/guildforge/guildcore/guildcore/database/repositories"
	"github.com/guildforge/guildcore/guildcore/incentive/ledger"
	"github.com/guildforge/guildcore/guildcore/incentive/reward"
	"github.com/guildforge/guildcore/guildcore/logger"
	"github.com/guildforge/guildcore/guildcore/notifier"
)

const (
	policyCacheSize = 64
	policyCacheTTL  = 5 * time.Minute
	batchWorkers    = 8
)

// Grant describes one payout request.
type Grant struct {
	AccountID string
	Policy    string
	Base      float64
	Power     float64
	Level     float64
}

// GrantResult is the applied outcome of one grant.
type GrantResult struct {
	AccountID string
	Amount    float64
}

type cachedPolicy struct {
	tables   *repositories.PolicyTables
	loadedAt time.Time
}

// Service evaluates reward policies and credits the results.
type Service struct {
	policies    repositories.PolicyRepository
	ledger      *ledger.Ledger
	sink        audit.Sink
	broadcaster notifier.Broadcaster

	cache *lru.Cache
}

func NewService(policies repositories.PolicyRepository, lg *ledger.Ledger, sink audit.Sink, broadcaster notifier.Broadcaster) *Service {
	cache, _ := lru.New(policyCacheSize)
	if sink == nil {
		sink = audit.NopSink{}
	}
	if broadcaster == nil {
		broadcaster = notifier.NopBroadcaster{}
	}
	return &Service{
		policies:    policies,
		ledger:      lg,
		sink:        sink,
		broadcaster: broadcaster,
		cache:       cache,
	}
}

// Grant evaluates the policy for the member's metrics and credits the result
// as earned points. A zero evaluation still succeeds but credits nothing.
func (s *Service) Grant(ctx context.Context, g Grant) (GrantResult, error) {
	tables, err := s.tables(ctx, g.Policy)
	if err != nil {
		return GrantResult{}, err
	}

	amount := reward.Calculate(g.Base, g.Power, g.Level, tables.Power, tables.Level)
	result := GrantResult{AccountID: g.AccountID, Amount: amount}

	if amount <= 0 {
		return result, nil
	}

	if err := s.ledger.Credit(ctx, g.AccountID, amount, true); err != nil {
		logger.LogLedgerOp("credit", g.AccountID, amount, err)
		return GrantResult{}, fmt.Errorf("failed to credit grant: %w", err)
	}
	logger.LogLedgerOp("credit", g.AccountID, amount, nil)

	if err := s.sink.Write(ctx, audit.Event{
		Kind:      "reward_grant",
		AccountID: g.AccountID,
		Amount:    amount,
		Detail: map[string]any{
			"policy": g.Policy,
			"base":   g.Base,
			"power":  g.Power,
			"level":  g.Level,
		},
		At: time.Now(),
	}); err != nil {
		logger.LogError("Failed to audit grant", err)
	}

	s.broadcaster.PublishGrant(g.AccountID, amount)
	return result, nil
}

// GrantBatch applies many grants concurrently, bounded by a worker
// semaphore. The first failure cancels the rest; already-applied credits
// stay applied, callers reconcile from the journal.
func (s *Service) GrantBatch(ctx context.Context, grants []Grant) ([]GrantResult, error) {
	results := make([]GrantResult, len(grants))
	sem := semaphore.NewWeighted(batchWorkers)

	group, ctx := errgroup.WithContext(ctx)
	for i, g := range grants {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		i, g := i, g
		group.Go(func() error {
			defer sem.Release(1)
			result, err := s.Grant(ctx, g)
			if err != nil {
				return fmt.Errorf("grant for %s: %w", g.AccountID, err)
			}
			results[i] = result
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// tables returns the policy's validated tables, caching them briefly so a
// batch of grants does not re-read the policy per member.
func (s *Service) tables(ctx context.Context, policy string) (*repositories.PolicyTables, error) {
	if v, ok := s.cache.Get(policy); ok {
		cached := v.(cachedPolicy)
		if time.Since(cached.loadedAt) < policyCacheTTL {
			return cached.tables, nil
		}
		s.cache.Remove(policy)
	}

	tables, err := s.policies.GetTables(ctx, policy)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy %q: %w", policy, err)
	}

	s.cache.Add(policy, cachedPolicy{tables: tables, loadedAt: time.Now()})
	return tables, nil
}

// InvalidatePolicy drops the cached tables after an admin edits the policy.
func (s *Service) InvalidatePolicy(policy string) {
	s.cache.Remove(policy)
}

// NormalizedWeight derives a raffle entrant weight from the member's policy
// bonus: evaluating the policy at base 1 yields 1 + coefA + coefB, so a
// member outside every band still gets weight 1 and stronger members get
// proportionally better odds without ever zeroing anyone out.
func (s *Service) NormalizedWeight(ctx context.Context, policy string, power, level float64) (float64, error) {
	tables, err := s.tables(ctx, policy)
	if err != nil {
		return 0, err
	}
	return reward.Calculate(1, power, level, tables.Power, tables.Level), nil
}
