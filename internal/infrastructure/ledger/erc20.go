package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

// ERC20ABI is the subset of the ERC20 interface the pool calls.
const ERC20ABI = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// defaultReceiptTimeout bounds the wait for one receipt. Transfers run inside
// the service's write transition, so every other stake, withdrawal and admin
// call waits behind it.
const defaultReceiptTimeout = 30 * time.Second

var (
	ErrTransferRejected = errors.New("token rejected transfer")
	ErrTxReverted       = errors.New("transaction reverted")
)

// Backend is what the ERC20 ledger needs from an Ethereum node.
// *ethclient.Client satisfies it, and so do simulated backends in tests.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// ERC20Ledger settles transfers against a deployed ERC20 token. Every transfer
// is simulated with eth_call first so a false return or a revert is caught
// before a transaction is broadcast.
type ERC20Ledger struct {
	backend  Backend
	contract *bind.BoundContract
	token    common.Address
	custody  common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	timeout  time.Duration
	logger   *zap.Logger
}

// DialERC20Ledger connects to rpcURL and binds the token contract.
func DialERC20Ledger(ctx context.Context, rpcURL string, token common.Address, custodyKeyHex string, logger *zap.Logger) (*ERC20Ledger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(custodyKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("invalid custody key: %w", err)
	}
	return NewERC20Ledger(client, token, key, chainID, logger)
}

func NewERC20Ledger(backend Backend, token common.Address, key *ecdsa.PrivateKey, chainID *big.Int, logger *zap.Logger) (*ERC20Ledger, error) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC20 ABI: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ERC20Ledger{
		backend:  backend,
		contract: bind.NewBoundContract(token, parsed, backend, backend, backend),
		token:    token,
		custody:  crypto.PubkeyToAddress(key.PublicKey),
		key:      key,
		chainID:  chainID,
		timeout:  defaultReceiptTimeout,
		logger:   logger.Named("erc20").With(zap.String("token", token.Hex())),
	}, nil
}

func (l *ERC20Ledger) Custody() common.Address {
	return l.custody
}

// ReceiptTimeout is the longest a single transfer waits to be mined.
func (l *ERC20Ledger) ReceiptTimeout() time.Duration {
	return l.timeout
}

func (l *ERC20Ledger) BalanceOf(ctx context.Context, owner common.Address) (*uint256.Int, error) {
	return l.callUint(ctx, "balanceOf", owner)
}

func (l *ERC20Ledger) Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error) {
	return l.callUint(ctx, "allowance", owner, spender)
}

func (l *ERC20Ledger) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return l.send(ctx, "transfer", to, amount.ToBig())
}

func (l *ERC20Ledger) TransferFrom(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	return l.send(ctx, "transferFrom", from, to, amount.ToBig())
}

func (l *ERC20Ledger) callUint(ctx context.Context, method string, params ...interface{}) (*uint256.Int, error) {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%s returned %d values", method, len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s returned %T", method, out[0])
	}
	amount, overflow := uint256.FromBig(v)
	if overflow {
		return nil, domain.ErrArithmeticOverflow
	}
	return amount, nil
}

// send dry-runs method as the custody account, then broadcasts it and waits for
// a successful receipt.
func (l *ERC20Ledger) send(ctx context.Context, method string, params ...interface{}) error {
	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx, From: l.custody}, &out, method, params...); err != nil {
		return fmt.Errorf("%s simulation failed: %w", method, err)
	}
	if len(out) == 1 {
		if ok, isBool := out[0].(bool); isBool && !ok {
			return fmt.Errorf("%w: %s returned false", ErrTransferRejected, method)
		}
	}

	opts, err := bind.NewKeyedTransactorWithChainID(l.key, l.chainID)
	if err != nil {
		return fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := l.contract.Transact(opts, method, params...)
	if err != nil {
		return fmt.Errorf("%s transaction failed: %w", method, err)
	}
	l.logger.Info("Transaction sent", zap.String("method", method), zap.String("tx", tx.Hash().Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, l.backend, tx)
	if err != nil {
		return fmt.Errorf("waiting for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		l.logger.Error("Transaction reverted", zap.String("method", method), zap.String("tx", tx.Hash().Hex()))
		return fmt.Errorf("%w: %s", ErrTxReverted, tx.Hash().Hex())
	}
	return nil
}
