package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vitos/token_staking/internal/domain"
	"github.com/vitos/token_staking/internal/usecase"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

type positionResponse struct {
	Participant       string `json:"participant"`
	TotalStaked       string `json:"total_staked"`
	WeightedStartTime uint64 `json:"weighted_start_time"`
	UpdatedAt         uint64 `json:"updated_at"`
	State             string `json:"state"`
}

func newPositionResponse(p *domain.Position) positionResponse {
	return positionResponse{
		Participant:       p.Participant.Hex(),
		TotalStaked:       domain.FormatAmount(p.TotalStaked),
		WeightedStartTime: p.WeightedStartTime,
		UpdatedAt:         p.UpdatedAt,
		State:             string(p.State()),
	}
}

type pendingResponse struct {
	Participant    string `json:"participant"`
	PendingRewards string `json:"pending_rewards"`
}

type quoteResponse struct {
	Amount          string `json:"amount"`
	Penalty         string `json:"penalty"`
	Payout          string `json:"payout"`
	IsEarly         bool   `json:"is_early"`
	UnlocksAt       uint64 `json:"unlocks_at"`
	PenaltyDeferred bool   `json:"penalty_deferred,omitempty"`
}

func newQuoteResponse(q *usecase.WithdrawalQuote) quoteResponse {
	return quoteResponse{
		Amount:          domain.FormatAmount(q.Amount),
		Penalty:         domain.FormatAmount(q.Penalty),
		Payout:          domain.FormatAmount(q.Payout),
		IsEarly:         q.IsEarly,
		UnlocksAt:       q.UnlocksAt,
		PenaltyDeferred: q.PenaltyDeferred,
	}
}

type rateResponse struct {
	Tier          int    `json:"tier"`
	BaseRate      uint64 `json:"base_rate_bps"`
	BonusRate     uint64 `json:"bonus_rate_bps"`
	EffectiveRate uint64 `json:"effective_rate_bps"`
	NextTier      int    `json:"next_tier"`
	NextShortfall string `json:"next_tier_shortfall,omitempty"`
}

func newRateResponse(info *usecase.RateInfo) rateResponse {
	resp := rateResponse{
		Tier:          info.Tier,
		BaseRate:      info.BaseRate,
		BonusRate:     info.BonusRate,
		EffectiveRate: info.EffectiveRate,
		NextTier:      info.NextTier,
	}
	if info.NextTier != usecase.NoTier {
		resp.NextShortfall = domain.FormatAmount(info.NextShortfall)
	}
	return resp
}

type tierResponse struct {
	Index         int    `json:"index"`
	Threshold     string `json:"threshold"`
	RewardRateBps uint64 `json:"reward_rate_bps"`
}

type configResponse struct {
	Owner                     string         `json:"owner"`
	MinimumStakeAmount        string         `json:"minimum_stake_amount"`
	AnnualRewardRateBps       uint64         `json:"annual_reward_rate_bps"`
	LockPeriod                uint64         `json:"lock_period"`
	EarlyWithdrawalPenaltyBps uint64         `json:"early_withdrawal_penalty_bps"`
	Tiers                     []tierResponse `json:"tiers"`
}

func newConfigResponse(cfg *domain.Config) configResponse {
	resp := configResponse{
		Owner:                     cfg.Owner.Hex(),
		MinimumStakeAmount:        domain.FormatAmount(cfg.MinimumStakeAmount),
		AnnualRewardRateBps:       cfg.AnnualRewardRate,
		LockPeriod:                cfg.LockPeriod,
		EarlyWithdrawalPenaltyBps: cfg.EarlyWithdrawalPenalty,
	}
	for i := range cfg.TierThresholds {
		resp.Tiers = append(resp.Tiers, tierResponse{
			Index:         i,
			Threshold:     domain.FormatAmount(cfg.TierThresholds[i]),
			RewardRateBps: cfg.TierRewardRates[i],
		})
	}
	return resp
}

type statsResponse struct {
	Participants    int    `json:"participants"`
	ActivePositions int    `json:"active_positions"`
	TotalStaked     string `json:"total_staked"`
}

type flowWindowResponse struct {
	Window           string `json:"window"`
	Stakes           int    `json:"stakes"`
	Deposits         string `json:"deposits"`
	Compounded       string `json:"compounded"`
	Withdrawals      int    `json:"withdrawals"`
	EarlyWithdrawals int    `json:"early_withdrawals"`
	Withdrawn        string `json:"withdrawn"`
	Penalties        string `json:"penalties"`
	Participants     int    `json:"participants"`
	Direction        string `json:"direction"`
	IsConsistent     bool   `json:"is_consistent"`
}

type activityResponse struct {
	Until   uint64               `json:"until"`
	Scanned int                  `json:"scanned"`
	Windows []flowWindowResponse `json:"windows"`
}

func newActivityResponse(r *usecase.ActivityReport) activityResponse {
	resp := activityResponse{Until: r.Until, Scanned: r.Scanned, Windows: []flowWindowResponse{}}
	for _, w := range r.Windows {
		resp.Windows = append(resp.Windows, flowWindowResponse{
			Window:           w.Window.String(),
			Stakes:           w.Stakes,
			Deposits:         domain.FormatAmount(w.Deposits),
			Compounded:       domain.FormatAmount(w.Compounded),
			Withdrawals:      w.Withdrawals,
			EarlyWithdrawals: w.EarlyWithdrawals,
			Withdrawn:        domain.FormatAmount(w.Withdrawn),
			Penalties:        domain.FormatAmount(w.Penalties),
			Participants:     w.Participants,
			Direction:        w.Direction,
			IsConsistent:     w.IsConsistent,
		})
	}
	return resp
}

type solvencyResponse struct {
	At             uint64 `json:"at"`
	TotalStaked    string `json:"total_staked"`
	OwedPenalties  string `json:"owed_penalties"`
	CustodyBalance string `json:"custody_balance"`
	Shortfall      string `json:"shortfall"`
	Covered        bool   `json:"covered"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type approvalResponse struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrBelowMinimumStake),
		errors.Is(err, domain.ErrInsufficientStake),
		errors.Is(err, domain.ErrInvalidPenalty):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrLedgerTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidOwner),
		errors.Is(err, domain.ErrTierIndexOutOfRange),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrArithmeticOverflow),
		errors.Is(err, errBadAddress),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
