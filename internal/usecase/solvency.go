package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

// SolvencyReport compares what custody owes, staked balances plus owed
// penalties, with what the custody account actually holds. Compounded rewards
// raise TotalStaked without moving tokens, so a shortfall grows until the owner
// tops custody up.
type SolvencyReport struct {
	At             uint64
	TotalStaked    *uint256.Int
	OwedPenalties  *uint256.Int
	CustodyBalance *uint256.Int
	Shortfall      *uint256.Int
	Covered        bool
}

func (s *StakingService) Solvency(ctx context.Context) (*SolvencyReport, error) {
	stats, err := s.PoolStats(ctx)
	if err != nil {
		return nil, err
	}
	owed, err := s.OwedPenalties(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owed penalties: %w", err)
	}
	owedTotal, err := sumOwed(owed)
	if err != nil {
		return nil, err
	}
	liabilities, overflow := new(uint256.Int).AddOverflow(stats.TotalStaked, owedTotal)
	if overflow {
		return nil, fmt.Errorf("%w: custody liabilities", domain.ErrArithmeticOverflow)
	}
	balance, err := s.LedgerBalance(ctx, s.Custody())
	if err != nil {
		return nil, fmt.Errorf("%w: custody balance: %w", domain.ErrLedgerTransferFailed, err)
	}

	r := &SolvencyReport{
		At:             s.now(),
		TotalStaked:    stats.TotalStaked,
		OwedPenalties:  owedTotal,
		CustodyBalance: balance,
		Shortfall:      new(uint256.Int),
		Covered:        !balance.Lt(liabilities),
	}
	if !r.Covered {
		r.Shortfall.Sub(liabilities, balance)
	}
	return r, nil
}

// SolvencyWorker re-checks solvency on an interval and keeps the latest report.
type SolvencyWorker struct {
	service  *StakingService
	interval time.Duration
	onReport []func(*SolvencyReport)
	logger   *zap.Logger

	mu   sync.RWMutex
	last *SolvencyReport
}

func NewSolvencyWorker(service *StakingService, interval time.Duration, logger *zap.Logger, onReport ...func(*SolvencyReport)) *SolvencyWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolvencyWorker{
		service:  service,
		interval: interval,
		onReport: onReport,
		logger:   logger.Named("solvency"),
	}
}

// Start checks once immediately, then every interval until ctx is cancelled.
func (w *SolvencyWorker) Start(ctx context.Context) {
	w.logger.Info("Starting solvency worker", zap.Duration("interval", w.interval))
	w.Check(ctx)

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Check(ctx)
			}
		}
	}()
}

// Check retries owed penalties, then runs one solvency check and notifies
// subscribers.
func (w *SolvencyWorker) Check(ctx context.Context) {
	if n, err := w.service.SettleOwedPenalties(ctx); err != nil {
		w.logger.Warn("Settling owed penalties failed", zap.Int("settled", n), zap.Error(err))
	} else if n > 0 {
		w.logger.Info("Settled owed penalties", zap.Int("settled", n))
	}

	report, err := w.service.Solvency(ctx)
	if err != nil {
		w.logger.Error("Solvency check failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.last = report
	w.mu.Unlock()

	if !report.Covered {
		w.logger.Warn("Custody does not cover staked balances",
			zap.String("total_staked", domain.FormatAmount(report.TotalStaked)),
			zap.String("owed_penalties", domain.FormatAmount(report.OwedPenalties)),
			zap.String("custody_balance", domain.FormatAmount(report.CustodyBalance)),
			zap.String("shortfall", domain.FormatAmount(report.Shortfall)))
	}
	for _, fn := range w.onReport {
		fn(report)
	}
}

// Last returns the most recent report, or nil before the first check.
func (w *SolvencyWorker) Last() *SolvencyReport {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}
