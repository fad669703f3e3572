package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrFrozenAccount         = errors.New("account frozen")
	ErrZeroAddress           = errors.New("zero address")
)

// MemoryLedger is an in-process fungible token with ERC20 transfer/approve
// semantics. Calls act on behalf of the custody account.
type MemoryLedger struct {
	custody common.Address
	logger  *zap.Logger

	mu    sync.Mutex
	state *ledgerState
}

func NewMemoryLedger(custody common.Address, logger *zap.Logger) *MemoryLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryLedger{
		custody: custody,
		logger:  logger.Named("ledger"),
		state: &ledgerState{
			balances:   make(map[common.Address]*uint256.Int),
			allowances: make(map[common.Address]map[common.Address]*uint256.Int),
			frozen:     make(map[common.Address]bool),
		},
	}
}

func (l *MemoryLedger) Custody() common.Address {
	return l.custody
}

func (l *MemoryLedger) BalanceOf(_ context.Context, owner common.Address) (*uint256.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.balanceOf(owner), nil
}

func (l *MemoryLedger) Transfer(_ context.Context, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.transfer(l.custody, to, amount)
}

func (l *MemoryLedger) TransferFrom(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.transferFrom(l.custody, from, to, amount)
}

// Mint credits amount to `to` out of thin air; dev and test funding only.
func (l *MemoryLedger) Mint(to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	bal := l.state.balanceOf(to)
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		return domain.ErrArithmeticOverflow
	}
	l.state.balances[to] = bal
	l.logger.Debug("Minted", zap.String("to", to.Hex()), zap.String("amount", domain.FormatAmount(amount)))
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (l *MemoryLedger) Approve(owner, spender common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}
	l.state.setAllowance(owner, spender, amount.Clone())
	return nil
}

func (l *MemoryLedger) Allowance(owner, spender common.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.allowance(owner, spender)
}

// Freeze blocks every transfer into or out of addr, the way blacklisting
// tokens do.
func (l *MemoryLedger) Freeze(addr common.Address, frozen bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if frozen {
		l.state.frozen[addr] = true
	} else {
		delete(l.state.frozen, addr)
	}
}

// Atomic runs fn against a staged copy of the ledger and publishes the copy only
// when fn succeeds. Other callers wait until the batch is settled.
func (l *MemoryLedger) Atomic(_ context.Context, fn func(ledger domain.TokenLedger) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := &stagedLedger{custody: l.custody, state: l.state.clone()}
	if err := fn(staged); err != nil {
		l.logger.Debug("Batch discarded", zap.Error(err))
		return err
	}
	l.state = staged.state
	return nil
}

// stagedLedger is the view handed to an Atomic batch. The ledger lock is
// already held.
type stagedLedger struct {
	custody common.Address
	state   *ledgerState
}

func (s *stagedLedger) BalanceOf(_ context.Context, owner common.Address) (*uint256.Int, error) {
	return s.state.balanceOf(owner), nil
}

func (s *stagedLedger) Transfer(_ context.Context, to common.Address, amount *uint256.Int) error {
	return s.state.transfer(s.custody, to, amount)
}

func (s *stagedLedger) TransferFrom(_ context.Context, from, to common.Address, amount *uint256.Int) error {
	return s.state.transferFrom(s.custody, from, to, amount)
}

type ledgerState struct {
	balances   map[common.Address]*uint256.Int
	allowances map[common.Address]map[common.Address]*uint256.Int
	frozen     map[common.Address]bool
}

func (s *ledgerState) clone() *ledgerState {
	c := &ledgerState{
		balances:   make(map[common.Address]*uint256.Int, len(s.balances)),
		allowances: make(map[common.Address]map[common.Address]*uint256.Int, len(s.allowances)),
		frozen:     make(map[common.Address]bool, len(s.frozen)),
	}
	for k, v := range s.balances {
		c.balances[k] = v.Clone()
	}
	for owner, spenders := range s.allowances {
		m := make(map[common.Address]*uint256.Int, len(spenders))
		for k, v := range spenders {
			m[k] = v.Clone()
		}
		c.allowances[owner] = m
	}
	for k, v := range s.frozen {
		c.frozen[k] = v
	}
	return c
}

func (s *ledgerState) balanceOf(owner common.Address) *uint256.Int {
	if b, ok := s.balances[owner]; ok {
		return b.Clone()
	}
	return new(uint256.Int)
}

func (s *ledgerState) allowance(owner, spender common.Address) *uint256.Int {
	if a, ok := s.allowances[owner][spender]; ok {
		return a.Clone()
	}
	return new(uint256.Int)
}

func (s *ledgerState) setAllowance(owner, spender common.Address, amount *uint256.Int) {
	if s.allowances[owner] == nil {
		s.allowances[owner] = make(map[common.Address]*uint256.Int)
	}
	s.allowances[owner][spender] = amount
}

func (s *ledgerState) transfer(from, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if s.frozen[from] || s.frozen[to] {
		return fmt.Errorf("%w: %s -> %s", ErrFrozenAccount, from.Hex(), to.Hex())
	}
	bal := s.balanceOf(from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientBalance, from.Hex(),
			domain.FormatAmount(bal), domain.FormatAmount(amount))
	}
	s.balances[from] = bal.Sub(bal, amount)
	dst := s.balanceOf(to)
	s.balances[to] = dst.Add(dst, amount)
	return nil
}

func (s *ledgerState) transferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	allowed := s.allowance(from, spender)
	if allowed.Lt(amount) {
		return fmt.Errorf("%w: %s allows %s, needs %s", ErrInsufficientAllowance, from.Hex(),
			domain.FormatAmount(allowed), domain.FormatAmount(amount))
	}
	if err := s.transfer(from, to, amount); err != nil {
		return err
	}
	s.setAllowance(from, spender, allowed.Sub(allowed, amount))
	return nil
}
