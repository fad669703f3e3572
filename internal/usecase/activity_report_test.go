package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/usecase"
)

func TestActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Alice's withdrawal on day 20 is still inside her lock.
	f.stake(t, alice, tokens(1000))
	f.clock.Advance(20 * day)
	f.stake(t, bob, tokens(300))
	_, err := f.svc.Withdraw(ctx, alice, tokens(200))
	require.NoError(t, err)
	f.clock.Advance(day / 2)
	require.NoError(t, f.svc.SetEarlyWithdrawalPenalty(ctx, owner, 0))
	_, err = f.svc.Withdraw(ctx, bob, tokens(100))
	require.NoError(t, err)

	report, err := f.svc.Activity(ctx, []time.Duration{24 * time.Hour, 30 * 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	require.Len(t, report.Windows, 2)

	recent := report.Windows[0]
	assert.Equal(t, 1, recent.Stakes)
	assert.Equal(t, 2, recent.Withdrawals)
	assert.Equal(t, 2, recent.EarlyWithdrawals)
	assert.Equal(t, 2, recent.Participants)
	assert.True(t, recent.Deposits.Eq(tokens(300)))
	assert.True(t, recent.Withdrawn.Eq(tokens(300)))
	// 5% of alice's 200; bob's withdrawal came after the penalty was dropped.
	assert.True(t, recent.Penalties.Eq(tokens(10)))
	assert.Equal(t, "flat", recent.Direction)
	assert.False(t, recent.IsConsistent)

	month := report.Windows[1]
	assert.Equal(t, 2, month.Stakes)
	assert.True(t, month.Deposits.Eq(tokens(1300)))
	assert.Equal(t, "in", month.Direction)
	assert.False(t, month.IsConsistent, "2 of 4 flow events")
}

func TestBuildActivityReport(t *testing.T) {
	staked := func(id int64, at uint64, amount string) *domain.EventRecord {
		return &domain.EventRecord{
			ID: id, Type: domain.EventStaked, CreatedAt: at,
			Payload: []byte(`{"type":"Staked","participant":"0xA1","amount":"` + amount + `","compounded":"1","total_staked":"0","at":0}`),
		}
	}
	records := []*domain.EventRecord{
		staked(3, 1_000, "30"),
		staked(2, 900, "20"),
		staked(1, 100, "10"),
		{ID: 4, Type: domain.EventOwnershipTransferred, CreatedAt: 1_000, Payload: []byte(`{}`)},
		staked(5, 2_000, "99"), // after the report time
	}

	report, err := usecase.BuildActivityReport(records, 1_000, []time.Duration{200 * time.Second, time.Hour})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Windows[0].Stakes)
	assert.Equal(t, uint64(50), report.Windows[0].Deposits.Uint64())
	assert.Equal(t, uint64(2), report.Windows[0].Compounded.Uint64())
	assert.Equal(t, "in", report.Windows[0].Direction)
	assert.True(t, report.Windows[0].IsConsistent)

	// A window longer than the whole history starts at zero.
	assert.Equal(t, 3, report.Windows[1].Stakes)
	assert.Equal(t, 1, report.Windows[1].Participants)

	_, err = usecase.BuildActivityReport([]*domain.EventRecord{staked(1, 1, "-5")}, 10, []time.Duration{time.Hour})
	assert.Error(t, err)
}
