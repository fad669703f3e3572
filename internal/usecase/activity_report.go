package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

// activityScanLimit bounds how much of the event log one report reads.
const activityScanLimit = 10_000

// DefaultActivityWindows are the look-back windows used when none are given.
var DefaultActivityWindows = []time.Duration{24 * time.Hour, 7 * 24 * time.Hour, 30 * 24 * time.Hour}

// FlowWindow sums deposits and withdrawals committed within Window of the
// report time.
type FlowWindow struct {
	Window           time.Duration
	Deposits         *uint256.Int
	Compounded       *uint256.Int
	Withdrawn        *uint256.Int
	Penalties        *uint256.Int
	Stakes           int
	Withdrawals      int
	EarlyWithdrawals int
	Participants     int
	// Direction is "in", "out" or "flat" depending on whether deposits beat
	// withdrawals.
	Direction string
	// IsConsistent is set when more than 60% of the flow events point the same
	// way as Direction.
	IsConsistent bool
}

type ActivityReport struct {
	Until   uint64
	Scanned int
	Windows []FlowWindow
}

// flowRecord is the part of a Staked or Withdrawn payload the report reads.
type flowRecord struct {
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
	Compounded  string `json:"compounded"`
	Penalty     string `json:"penalty"`
	Early       bool   `json:"early"`
}

func parseOptionalAmount(raw string) (*uint256.Int, error) {
	if raw == "" {
		return new(uint256.Int), nil
	}
	return domain.ParseAmount(raw)
}

// BuildActivityReport aggregates records, which may come in any order, into one
// FlowWindow per entry of windows. Records after until are ignored.
func BuildActivityReport(records []*domain.EventRecord, until uint64, windows []time.Duration) (*ActivityReport, error) {
	report := &ActivityReport{Until: until, Scanned: len(records)}

	type flow struct {
		at          uint64
		participant string
		in          bool
		amount      *uint256.Int
		compounded  *uint256.Int
		penalty     *uint256.Int
		early       bool
	}
	var flows []flow
	for _, rec := range records {
		if rec.Type != domain.EventStaked && rec.Type != domain.EventWithdrawn {
			continue
		}
		if rec.CreatedAt > until {
			continue
		}
		var p flowRecord
		if err := json.Unmarshal(rec.Payload, &p); err != nil {
			return nil, fmt.Errorf("event %d: %w", rec.ID, err)
		}
		f := flow{at: rec.CreatedAt, participant: p.Participant, in: rec.Type == domain.EventStaked, early: p.Early}
		var err error
		if f.amount, err = parseOptionalAmount(p.Amount); err != nil {
			return nil, fmt.Errorf("event %d amount: %w", rec.ID, err)
		}
		if f.compounded, err = parseOptionalAmount(p.Compounded); err != nil {
			return nil, fmt.Errorf("event %d compounded: %w", rec.ID, err)
		}
		if f.penalty, err = parseOptionalAmount(p.Penalty); err != nil {
			return nil, fmt.Errorf("event %d penalty: %w", rec.ID, err)
		}
		flows = append(flows, f)
	}

	for _, window := range windows {
		w := FlowWindow{
			Window:     window,
			Deposits:   new(uint256.Int),
			Compounded: new(uint256.Int),
			Withdrawn:  new(uint256.Int),
			Penalties:  new(uint256.Int),
			Direction:  "flat",
		}
		var from uint64
		if secs := uint64(window / time.Second); secs < until {
			from = until - secs
		}

		seen := make(map[string]struct{})
		for _, f := range flows {
			if f.at < from {
				continue
			}
			seen[f.participant] = struct{}{}
			if f.in {
				w.Stakes++
				w.Deposits.Add(w.Deposits, f.amount)
				w.Compounded.Add(w.Compounded, f.compounded)
				continue
			}
			w.Withdrawals++
			w.Withdrawn.Add(w.Withdrawn, f.amount)
			w.Penalties.Add(w.Penalties, f.penalty)
			if f.early {
				w.EarlyWithdrawals++
			}
		}
		w.Participants = len(seen)

		total := w.Stakes + w.Withdrawals
		switch {
		case w.Deposits.Gt(w.Withdrawn):
			w.Direction = "in"
			w.IsConsistent = total > 0 && float64(w.Stakes)/float64(total) > 0.6
		case w.Withdrawn.Gt(w.Deposits):
			w.Direction = "out"
			w.IsConsistent = total > 0 && float64(w.Withdrawals)/float64(total) > 0.6
		}
		report.Windows = append(report.Windows, w)
	}
	return report, nil
}

// Activity reports pool flows over the given windows, ending now.
func (s *StakingService) Activity(ctx context.Context, windows []time.Duration) (*ActivityReport, error) {
	if len(windows) == 0 {
		windows = DefaultActivityWindows
	}
	records, err := s.ListEvents(ctx, activityScanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	if len(records) == activityScanLimit {
		s.logger.Warn("Activity report truncated", zap.Int("scanned", len(records)))
	}
	return BuildActivityReport(records, s.now(), windows)
}
