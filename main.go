package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guildforge/guildcore/guildcore"
	"github.com/guildforge/guildcore/guildcore/audit"
	"github.com/guildforge/guildcore/guildcore/database"
	"github.com/guildforge/guildcore/guildcore/database/repositories"
	"github.com/guildforge/guildcore/guildcore/incentive/auction"
	"github.com/guildforge/guildcore/guildcore/incentive/ledger"
	"github.com/guildforge/guildcore/guildcore/incentive/payout"
	"github.com/guildforge/guildcore/guildcore/incentive/raffle"
	"github.com/guildforge/guildcore/guildcore/logger"
	"github.com/guildforge/guildcore/guildcore/notifier"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting GuildCore Incentive Engine",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := guildcore.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	slog.Info("Initializing database schema...")
	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	app := guildcore.New(*cfg, version, commit)
	app.DB = db

	app.LedgerRepository = repositories.NewLedgerRepository(db.BunDB())
	app.PolicyRepository = repositories.NewPolicyRepository(db.BunDB())
	app.LotRepository = repositories.NewLotRepository(db.BunDB())
	app.RaffleRepository = repositories.NewRaffleRepository(db.BunDB())

	app.Ledger = ledger.New(app.LedgerRepository)

	if cfg.Mongo.URI != "" {
		sink, err := audit.NewMongoSink(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			slog.Error("Failed to connect audit sink", slog.Any("error", err))
			os.Exit(-1)
		}
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			_ = sink.Close(closeCtx)
		}()
		app.AuditSink = sink
		slog.Info("Audit sink connected", slog.String("database", cfg.Mongo.Database))
	} else {
		app.AuditSink = audit.NopSink{}
		slog.Warn("Auditing disabled: no mongo uri configured")
	}

	if cfg.Spaces.Key != "" {
		archiver, err := audit.NewArchiver(cfg.Spaces.Key, cfg.Spaces.Secret, cfg.Spaces.Region, cfg.Spaces.Bucket, cfg.Spaces.Prefix)
		if err != nil {
			slog.Error("Failed to set up audit archiver", slog.Any("error", err))
			os.Exit(-1)
		}
		buffered := audit.NewBufferedArchiveSink(app.AuditSink, archiver)
		defer buffered.Close()
		app.AuditSink = buffered
		slog.Info("Audit archiver enabled", slog.String("bucket", cfg.Spaces.Bucket))
	}

	if cfg.Nats.URL != "" {
		nats, err := notifier.NewNatsNotifier(cfg.Nats.URL, cfg.Nats.Subject)
		if err != nil {
			slog.Error("Failed to connect notifier", slog.Any("error", err))
			os.Exit(-1)
		}
		defer nats.Close()
		app.Broadcaster = nats
		slog.Info("Event notifier connected", slog.String("subject", cfg.Nats.Subject))
	} else {
		app.Broadcaster = notifier.NopBroadcaster{}
	}

	app.PayoutService = payout.NewService(app.PolicyRepository, app.Ledger, app.AuditSink, app.Broadcaster)
	app.RaffleService = raffle.NewService(app.RaffleRepository, app.AuditSink, app.Broadcaster)
	app.AuctionManager = auction.NewManager(app.LotRepository, app.Ledger, app.AuditSink, app.Broadcaster)
	defer app.AuctionManager.Shutdown()

	if err := app.AuctionManager.RecoverActiveLots(ctx); err != nil {
		slog.Error("Failed to recover active lots", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("Incentive engine is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down incentive engine...")
}
