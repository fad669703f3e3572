package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/token_staking/internal/config"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/infrastructure/broker"
	"github.com/vitos/token_staking/internal/infrastructure/ledger"
	"github.com/vitos/token_staking/internal/infrastructure/logger"
	"github.com/vitos/token_staking/internal/infrastructure/metrics"
	"github.com/vitos/token_staking/internal/infrastructure/storage"
	"github.com/vitos/token_staking/internal/units"
	"github.com/vitos/token_staking/internal/usecase"
	"github.com/vitos/token_staking/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	envPath := flag.String("env", ".env", "optional .env file with secrets")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Ledger
	tokenLedger, approver, custody, err := initLedger(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to init ledger", zap.Error(err))
	}
	if cfg.Ledger.Mode != config.LedgerERC20 {
		if err := checkEmptyStore(ctx, store, cfg.Storage.Path); err != nil {
			log.Fatal("Refusing to start on the in-memory ledger", zap.Error(err))
		}
	}

	// 5. Init Broker and Metrics
	events := broker.New(log)
	collector := metrics.NewCollector(cfg.Staking.Decimals)
	registry := prometheus.NewRegistry()
	if err := collector.Register(registry); err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}
	events.Subscribe(collector.Observe)

	// 6. Init Service
	seed, err := cfg.ToDomain()
	if err != nil {
		log.Fatal("Invalid staking parameters", zap.Error(err))
	}
	executor := usecase.NewTransferExecutor(tokenLedger, custody)
	svc := usecase.NewStakingService(store, executor, events, domain.SystemClock{}, log)
	if err := svc.Bootstrap(ctx, seed); err != nil {
		log.Fatal("Failed to bootstrap staking service", zap.Error(err))
	}
	if stats, err := svc.PoolStats(ctx); err != nil {
		log.Error("Failed to read pool stats", zap.Error(err))
	} else {
		collector.SetTotalValueLocked(stats.TotalStaked)
		log.Info("Pool loaded",
			zap.Int("participants", stats.Participants),
			zap.Int("active_positions", stats.ActivePositions),
			zap.String("total_staked", units.Format(stats.TotalStaked, cfg.Staking.Decimals)))
	}

	// 7. Start Solvency Worker
	if cfg.Monitor.SolvencyInterval > 0 {
		worker := usecase.NewSolvencyWorker(svc, cfg.Monitor.SolvencyInterval, log, func(r *usecase.SolvencyReport) {
			collector.SetCustody(r.CustodyBalance, r.Shortfall)
		})
		worker.Start(ctx)
	}

	// 8. Init Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}
	auth := web.NewAuthenticator(cfg.Auth.JWTSecret)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	server := web.NewServer(port, svc, events, auth, approver, metricsHandler, log)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 9. Start Server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 10. Wait for Shutdown
	<-stop

	log.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}

// initLedger returns the token ledger, an Approver when the daemon runs the
// ledger itself, and the custody account.
func initLedger(ctx context.Context, cfg *config.Config, log *zap.Logger) (domain.TokenLedger, web.Approver, common.Address, error) {
	switch cfg.Ledger.Mode {
	case config.LedgerERC20:
		l, err := ledger.DialERC20Ledger(ctx, cfg.Ledger.RPCURL,
			common.HexToAddress(cfg.Ledger.TokenAddress), cfg.Ledger.CustodyKey, log)
		if err != nil {
			return nil, nil, common.Address{}, err
		}
		if cfg.Ledger.CustodyAddress != "" && common.HexToAddress(cfg.Ledger.CustodyAddress) != l.Custody() {
			log.Warn("ledger.custody_address ignored, custody follows the key",
				zap.String("configured", cfg.Ledger.CustodyAddress),
				zap.String("custody", l.Custody().Hex()))
		}
		log.Info("ERC20 ledger ready",
			zap.String("custody", l.Custody().Hex()),
			zap.Duration("receipt_timeout", l.ReceiptTimeout()))
		return l, nil, l.Custody(), nil

	default:
		custody := common.HexToAddress(cfg.Ledger.CustodyAddress)
		l := ledger.NewMemoryLedger(custody, log)
		for _, g := range cfg.Ledger.Genesis {
			amount, err := units.Parse(g.Balance, cfg.Staking.Decimals)
			if err != nil {
				return nil, nil, common.Address{}, err
			}
			if err := l.Mint(common.HexToAddress(g.Address), amount); err != nil {
				return nil, nil, common.Address{}, fmt.Errorf("genesis %s: %w", g.Address, err)
			}
		}
		log.Warn("Running on the in-memory ledger; balances reset on restart",
			zap.Int("genesis_accounts", len(cfg.Ledger.Genesis)))
		return l, l, custody, nil
	}
}

// checkEmptyStore rejects a store that still owes tokens to anyone. The
// in-memory ledger starts with an empty custody account, so such a store could
// never pay out.
func checkEmptyStore(ctx context.Context, store domain.Store, path string) error {
	positions, err := store.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list positions: %w", err)
	}
	active := 0
	for _, p := range positions {
		if p.IsActive() {
			active++
		}
	}
	owed, err := store.ListOwedPenalties(ctx)
	if err != nil {
		return fmt.Errorf("failed to list owed penalties: %w", err)
	}
	if active > 0 || len(owed) > 0 {
		return fmt.Errorf("store %s holds %d active positions and %d owed penalties but the memory ledger starts empty; remove the store or set ledger.mode to %q",
			path, active, len(owed), config.LedgerERC20)
	}
	return nil
}
