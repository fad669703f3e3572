package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/infrastructure/storage"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func openStores(t *testing.T) map[string]domain.Store {
	t.Helper()
	sqlite, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "staking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]domain.Store{
		"sqlite": sqlite,
		"memory": storage.NewMemoryStore(),
	}
}

func sampleConfig() *domain.Config {
	return &domain.Config{
		Owner:                  common.HexToAddress("0xf0"),
		MinimumStakeAmount:     uint256.NewInt(10),
		AnnualRewardRate:       1000,
		LockPeriod:             30 * 86_400,
		EarlyWithdrawalPenalty: 500,
		TierThresholds:         [3]*uint256.Int{uint256.NewInt(1000), uint256.NewInt(5000), uint256.NewInt(10000)},
		TierRewardRates:        [3]uint64{200, 500, 1000},
	}
}

func TestStore_Positions(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetPosition(ctx, alice)
			assert.True(t, errors.Is(err, domain.ErrPositionNotFound))

			// Balances use the full 256-bit range.
			huge := new(uint256.Int).SetAllOne()
			require.NoError(t, store.SavePosition(ctx, &domain.Position{
				Participant: alice, TotalStaked: huge, WeightedStartTime: 1_700_000_000, UpdatedAt: 1_700_000_001,
			}))
			require.NoError(t, store.SavePosition(ctx, &domain.Position{
				Participant: bob, TotalStaked: uint256.NewInt(5), WeightedStartTime: 7,
			}))

			got, err := store.GetPosition(ctx, alice)
			require.NoError(t, err)
			assert.True(t, got.TotalStaked.Eq(huge))
			assert.Equal(t, uint64(1_700_000_000), got.WeightedStartTime)
			assert.Equal(t, uint64(1_700_000_001), got.UpdatedAt)

			require.NoError(t, store.SavePosition(ctx, &domain.Position{
				Participant: alice, TotalStaked: new(uint256.Int), WeightedStartTime: 1_700_000_000,
			}))
			got, err = store.GetPosition(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, domain.PositionClosed, got.State())

			all, err := store.ListPositions(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, alice, all[0].Participant)
			assert.Equal(t, bob, all[1].Participant)
		})
	}
}

func TestStore_Config(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.LoadConfig(ctx)
			assert.True(t, errors.Is(err, domain.ErrConfigNotFound))

			cfg := sampleConfig()
			require.NoError(t, store.SaveConfig(ctx, cfg))
			got, err := store.LoadConfig(ctx)
			require.NoError(t, err)
			assert.Equal(t, cfg, got)

			cfg.EarlyWithdrawalPenalty = 0
			cfg.Owner = bob
			require.NoError(t, store.SaveConfig(ctx, cfg))
			got, err = store.LoadConfig(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(0), got.EarlyWithdrawalPenalty)
			assert.Equal(t, bob, got.Owner)
		})
	}
}

func TestStore_EventsNewestFirst(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := uint64(1); i <= 3; i++ {
				require.NoError(t, store.AppendEvent(ctx, &domain.StakedEvent{
					Participant: alice,
					Amount:      uint256.NewInt(i * 100),
					Compounded:  new(uint256.Int),
					TotalStaked: uint256.NewInt(i * 100),
					At:          1_700_000_000 + i,
				}))
			}
			require.NoError(t, store.AppendEvent(ctx, &domain.OwnershipTransferredEvent{
				PreviousOwner: alice, NewOwner: bob, At: 1_700_000_010,
			}))

			events, err := store.ListEvents(ctx, 2)
			require.NoError(t, err)
			require.Len(t, events, 2)
			assert.Equal(t, domain.EventOwnershipTransferred, events[0].Type)
			assert.Equal(t, domain.EventStaked, events[1].Type)
			assert.Equal(t, uint64(1_700_000_003), events[1].CreatedAt)
			assert.Equal(t, alice.Hex(), events[1].Subject)
			assert.Greater(t, events[0].ID, events[1].ID)
			assert.JSONEq(t,
				`{"type":"Staked","participant":"`+alice.Hex()+`","amount":"300","compounded":"0","total_staked":"300","at":1700000003}`,
				string(events[1].Payload))
		})
	}
}

func TestStore_OwedPenalties(t *testing.T) {
	owner := common.HexToAddress("0xf0")
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			owed, err := store.ListOwedPenalties(ctx)
			require.NoError(t, err)
			assert.Empty(t, owed)

			first := &domain.OwedPenalty{Owner: owner, Participant: alice, Amount: uint256.NewInt(5), CreatedAt: 100}
			second := &domain.OwedPenalty{Owner: owner, Participant: bob, Amount: uint256.NewInt(7), CreatedAt: 200}
			require.NoError(t, store.RunInTx(ctx, func(tx domain.StoreTx) error {
				if err := tx.AddOwedPenalty(ctx, first); err != nil {
					return err
				}
				return tx.AddOwedPenalty(ctx, second)
			}))
			assert.NotZero(t, first.ID)
			assert.Greater(t, second.ID, first.ID)

			// A rolled back removal keeps the penalty owed.
			err = store.RunInTx(ctx, func(tx domain.StoreTx) error {
				if err := tx.RemoveOwedPenalty(ctx, first.ID); err != nil {
					return err
				}
				return errors.New("ledger down")
			})
			require.Error(t, err)

			owed, err = store.ListOwedPenalties(ctx)
			require.NoError(t, err)
			require.Len(t, owed, 2)
			assert.Equal(t, first.ID, owed[0].ID)
			assert.Equal(t, alice, owed[0].Participant)
			assert.Equal(t, owner, owed[0].Owner)
			assert.True(t, owed[0].Amount.Eq(uint256.NewInt(5)))
			assert.Equal(t, uint64(100), owed[0].CreatedAt)

			require.NoError(t, store.RunInTx(ctx, func(tx domain.StoreTx) error {
				return tx.RemoveOwedPenalty(ctx, first.ID)
			}))
			err = store.RunInTx(ctx, func(tx domain.StoreTx) error {
				return tx.RemoveOwedPenalty(ctx, first.ID)
			})
			assert.True(t, errors.Is(err, domain.ErrOwedPenaltyNotFound))

			owed, err = store.ListOwedPenalties(ctx)
			require.NoError(t, err)
			require.Len(t, owed, 1)
			assert.Equal(t, bob, owed[0].Participant)
		})
	}
}

func TestStore_RunInTxRollsBack(t *testing.T) {
	boom := errors.New("boom")

	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			err := store.RunInTx(ctx, func(tx domain.StoreTx) error {
				if err := tx.SavePosition(ctx, &domain.Position{Participant: alice, TotalStaked: uint256.NewInt(1), WeightedStartTime: 1}); err != nil {
					return err
				}
				if err := tx.SaveConfig(ctx, sampleConfig()); err != nil {
					return err
				}
				if err := tx.AppendEvent(ctx, &domain.OwnershipTransferredEvent{PreviousOwner: alice, NewOwner: bob}); err != nil {
					return err
				}
				// Reads inside the transaction see its own writes.
				p, err := tx.GetPosition(ctx, alice)
				if err != nil {
					return err
				}
				assert.Equal(t, uint64(1), p.TotalStaked.Uint64())
				return boom
			})
			assert.True(t, errors.Is(err, boom))

			_, err = store.GetPosition(ctx, alice)
			assert.True(t, errors.Is(err, domain.ErrPositionNotFound))
			_, err = store.LoadConfig(ctx)
			assert.True(t, errors.Is(err, domain.ErrConfigNotFound))
			events, err := store.ListEvents(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, events)

			require.NoError(t, store.RunInTx(ctx, func(tx domain.StoreTx) error {
				return tx.SavePosition(ctx, &domain.Position{Participant: alice, TotalStaked: uint256.NewInt(2), WeightedStartTime: 1})
			}))
			p, err := store.GetPosition(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, uint64(2), p.TotalStaked.Uint64())
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staking.db")
	ctx := context.Background()

	first, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.SaveConfig(ctx, sampleConfig()))
	require.NoError(t, first.Close())

	second, err := storage.NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	cfg, err := second.LoadConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleConfig(), cfg)
}
