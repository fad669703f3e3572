package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

var errBadAddress = errors.New("invalid address")

func pathAddress(r *http.Request) (common.Address, error) {
	return pathAddressValue(r.PathValue("address"))
}

func pathAddressValue(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %q", errBadAddress, raw)
	}
	return common.HexToAddress(raw), nil
}

func sameAddress(a, b string) bool {
	return common.HexToAddress(a) == common.HexToAddress(b)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func parseAmountField(name, raw string) (*uint256.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidAmount, name)
	}
	return domain.ParseAmount(raw)
}

// --- Positions ---

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pos, err := s.service.UserInfo(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(pos))
}

func (s *Server) handlePendingRewards(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pending, err := s.service.PendingRewards(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pendingResponse{
		Participant:    addr.Hex(),
		PendingRewards: domain.FormatAmount(pending),
	})
}

func (s *Server) handleQuoteWithdrawal(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmountField("amount", r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	quote, err := s.service.QuoteWithdrawal(r.Context(), addr, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteResponse(quote))
}

func (s *Server) handleEffectiveRate(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	info, err := s.service.EffectiveRate(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRateResponse(info))
}

// --- Pool ---

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.service.Config()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newConfigResponse(cfg))
}

func (s *Server) handleTier(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %q", domain.ErrTierIndexOutOfRange, r.PathValue("index")))
		return
	}
	threshold, err := s.service.TierThreshold(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rate, err := s.service.TierRewardRate(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tierResponse{
		Index:         index,
		Threshold:     domain.FormatAmount(threshold),
		RewardRateBps: rate,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.PoolStats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Participants:    stats.Participants,
		ActivePositions: stats.ActivePositions,
		TotalStaked:     domain.FormatAmount(stats.TotalStaked),
	})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, fmt.Errorf("%w: limit %q", errBadRequest, raw))
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := s.service.ListEvents(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []*domain.EventRecord{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var windows []time.Duration
	for _, raw := range r.URL.Query()["window"] {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeError(w, fmt.Errorf("%w: window %q", errBadRequest, raw))
			return
		}
		windows = append(windows, d)
	}
	report, err := s.service.Activity(r.Context(), windows)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newActivityResponse(report))
}

func (s *Server) handleSolvency(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Solvency(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, solvencyResponse{
		At:             report.At,
		TotalStaked:    domain.FormatAmount(report.TotalStaked),
		OwedPenalties:  domain.FormatAmount(report.OwedPenalties),
		CustodyBalance: domain.FormatAmount(report.CustodyBalance),
		Shortfall:      domain.FormatAmount(report.Shortfall),
		Covered:        report.Covered,
	})
}

// --- Transitions ---

type amountRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pos, err := s.service.Stake(r.Context(), caller, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPositionResponse(pos))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	quote, err := s.service.Withdraw(r.Context(), caller, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteResponse(quote))
}

func (s *Server) handleWithdrawAll(w http.ResponseWriter, r *http.Request, caller common.Address) {
	quote, err := s.service.WithdrawAll(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newQuoteResponse(quote))
}

// --- Admin ---

func (s *Server) handleSetMinimumStake(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.service.SetMinimumStakeAmount(r.Context(), caller, amount); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleConfig(w, r)
}

func (s *Server) handleSetPenalty(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req struct {
		Bps *uint64 `json:"bps"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Bps == nil {
		s.writeError(w, fmt.Errorf("%w: bps is required", errBadRequest))
		return
	}
	if err := s.service.SetEarlyWithdrawalPenalty(r.Context(), caller, *req.Bps); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleConfig(w, r)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req struct {
		Owner string `json:"owner"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	// Unparseable owners become the zero address so the service still checks
	// the caller first.
	var newOwner common.Address
	if common.IsHexAddress(req.Owner) {
		newOwner = common.HexToAddress(req.Owner)
	}
	if err := s.service.TransferOwnership(r.Context(), caller, newOwner); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleConfig(w, r)
}

// --- Token ---

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.service.LedgerBalance(r.Context(), addr)
	if err != nil {
		s.logger.Error("Failed to read balance", zap.String("address", addr.Hex()), zap.Error(err))
		s.writeError(w, fmt.Errorf("%w: %w", domain.ErrLedgerTransferFailed, err))
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr.Hex(), Balance: domain.FormatAmount(balance)})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, caller common.Address) {
	var req amountRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	custody := s.service.Custody()
	if err := s.approver.Approve(caller, custody, amount); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.logger.Info("Allowance granted",
		zap.String("owner", caller.Hex()),
		zap.String("amount", domain.FormatAmount(amount)))
	writeJSON(w, http.StatusOK, approvalResponse{Owner: caller.Hex(), Spender: custody.Hex(), Amount: domain.FormatAmount(amount)})
}
