package guildcore

import (
	"github.com/guildforge/guildcore/guildcore/audit"
	"github.com/guildforge/guildcore/guildcore/database"
	"github.com/guildforge/guildcore/guildcore/database/repositories"
	"github.com/guildforge/guildcore/guildcore/incentive/auction"
	"github.com/guildforge/guildcore/guildcore/incentive/ledger"
	"github.com/guildforge/guildcore/guildcore/incentive/payout"
	"github.com/guildforge/guildcore/guildcore/incentive/raffle"
	"github.com/guildforge/guildcore/guildcore/notifier"
)

func New(cfg Config, version string, commit string) *App {
	return &App{
		Cfg:     cfg,
		Version: version,
		Commit:  commit,
	}
}

// App holds the engine's wired components. main builds it bottom-up: DB,
// repositories, ledger, then the services that consume them.
type App struct {
	Cfg     Config
	Version string
	Commit  string

	DB               *database.DB
	LedgerRepository repositories.LedgerRepository
	PolicyRepository repositories.PolicyRepository
	LotRepository    repositories.LotRepository
	RaffleRepository repositories.RaffleRepository

	Ledger      *ledger.Ledger
	AuditSink   audit.Sink
	Broadcaster notifier.Broadcaster

	PayoutService  *payout.Service
	AuctionManager *auction.Manager
	RaffleService  *raffle.Service
}
