package domain

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type EventType string

const (
	EventStaked                        EventType = "Staked"
	EventWithdrawn                     EventType = "Withdrawn"
	EventMinimumStakeUpdated           EventType = "MinimumStakeUpdated"
	EventEarlyWithdrawalPenaltyUpdated EventType = "EarlyWithdrawalPenaltyUpdated"
	EventOwnershipTransferred          EventType = "OwnershipTransferred"
	EventPenaltyDeferred               EventType = "PenaltyDeferred"
	EventPenaltySettled                EventType = "PenaltySettled"
)

// Event is an observation emitted by a committed transition.
type Event interface {
	Type() EventType
	// Subject is the participant or admin the event is about.
	Subject() common.Address
	Timestamp() uint64
}

type StakedEvent struct {
	Participant common.Address
	Amount      *uint256.Int
	Compounded  *uint256.Int
	TotalStaked *uint256.Int
	At          uint64
}

func (e *StakedEvent) Type() EventType         { return EventStaked }
func (e *StakedEvent) Subject() common.Address { return e.Participant }
func (e *StakedEvent) Timestamp() uint64       { return e.At }

func (e *StakedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        EventType `json:"type"`
		Participant string    `json:"participant"`
		Amount      string    `json:"amount"`
		Compounded  string    `json:"compounded"`
		TotalStaked string    `json:"total_staked"`
		At          uint64    `json:"at"`
	}{e.Type(), e.Participant.Hex(), FormatAmount(e.Amount), FormatAmount(e.Compounded), FormatAmount(e.TotalStaked), e.At})
}

type WithdrawnEvent struct {
	Participant common.Address
	Amount      *uint256.Int
	Penalty     *uint256.Int
	Payout      *uint256.Int
	TotalStaked *uint256.Int
	Early       bool
	At          uint64
}

func (e *WithdrawnEvent) Type() EventType         { return EventWithdrawn }
func (e *WithdrawnEvent) Subject() common.Address { return e.Participant }
func (e *WithdrawnEvent) Timestamp() uint64       { return e.At }

func (e *WithdrawnEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        EventType `json:"type"`
		Participant string    `json:"participant"`
		Amount      string    `json:"amount"`
		Penalty     string    `json:"penalty"`
		Payout      string    `json:"payout"`
		TotalStaked string    `json:"total_staked"`
		Early       bool      `json:"early"`
		At          uint64    `json:"at"`
	}{e.Type(), e.Participant.Hex(), FormatAmount(e.Amount), FormatAmount(e.Penalty), FormatAmount(e.Payout), FormatAmount(e.TotalStaked), e.Early, e.At})
}

type MinimumStakeUpdatedEvent struct {
	Owner    common.Address
	Previous *uint256.Int
	Current  *uint256.Int
	At       uint64
}

func (e *MinimumStakeUpdatedEvent) Type() EventType         { return EventMinimumStakeUpdated }
func (e *MinimumStakeUpdatedEvent) Subject() common.Address { return e.Owner }
func (e *MinimumStakeUpdatedEvent) Timestamp() uint64       { return e.At }

func (e *MinimumStakeUpdatedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     EventType `json:"type"`
		Owner    string    `json:"owner"`
		Previous string    `json:"previous"`
		Current  string    `json:"current"`
		At       uint64    `json:"at"`
	}{e.Type(), e.Owner.Hex(), FormatAmount(e.Previous), FormatAmount(e.Current), e.At})
}

type EarlyWithdrawalPenaltyUpdatedEvent struct {
	Owner    common.Address
	Previous uint64
	Current  uint64
	At       uint64
}

func (e *EarlyWithdrawalPenaltyUpdatedEvent) Type() EventType {
	return EventEarlyWithdrawalPenaltyUpdated
}
func (e *EarlyWithdrawalPenaltyUpdatedEvent) Subject() common.Address { return e.Owner }
func (e *EarlyWithdrawalPenaltyUpdatedEvent) Timestamp() uint64       { return e.At }

func (e *EarlyWithdrawalPenaltyUpdatedEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     EventType `json:"type"`
		Owner    string    `json:"owner"`
		Previous uint64    `json:"previous_bps"`
		Current  uint64    `json:"current_bps"`
		At       uint64    `json:"at"`
	}{e.Type(), e.Owner.Hex(), e.Previous, e.Current, e.At})
}

type OwnershipTransferredEvent struct {
	PreviousOwner common.Address
	NewOwner      common.Address
	At            uint64
}

func (e *OwnershipTransferredEvent) Type() EventType         { return EventOwnershipTransferred }
func (e *OwnershipTransferredEvent) Subject() common.Address { return e.PreviousOwner }
func (e *OwnershipTransferredEvent) Timestamp() uint64       { return e.At }

func (e *OwnershipTransferredEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type          EventType `json:"type"`
		PreviousOwner string    `json:"previous_owner"`
		NewOwner      string    `json:"new_owner"`
		At            uint64    `json:"at"`
	}{e.Type(), e.PreviousOwner.Hex(), e.NewOwner.Hex(), e.At})
}

// PenaltyDeferredEvent is emitted when a withdrawal paid the participant but
// the owner's penalty transfer failed. The penalty is kept as an OwedPenalty.
type PenaltyDeferredEvent struct {
	Owner       common.Address
	Participant common.Address
	Amount      *uint256.Int
	At          uint64
}

func (e *PenaltyDeferredEvent) Type() EventType         { return EventPenaltyDeferred }
func (e *PenaltyDeferredEvent) Subject() common.Address { return e.Owner }
func (e *PenaltyDeferredEvent) Timestamp() uint64       { return e.At }

func (e *PenaltyDeferredEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        EventType `json:"type"`
		Owner       string    `json:"owner"`
		Participant string    `json:"participant"`
		Amount      string    `json:"amount"`
		At          uint64    `json:"at"`
	}{e.Type(), e.Owner.Hex(), e.Participant.Hex(), FormatAmount(e.Amount), e.At})
}

type PenaltySettledEvent struct {
	Owner       common.Address
	Participant common.Address
	Amount      *uint256.Int
	At          uint64
}

func (e *PenaltySettledEvent) Type() EventType         { return EventPenaltySettled }
func (e *PenaltySettledEvent) Subject() common.Address { return e.Owner }
func (e *PenaltySettledEvent) Timestamp() uint64       { return e.At }

func (e *PenaltySettledEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type        EventType `json:"type"`
		Owner       string    `json:"owner"`
		Participant string    `json:"participant"`
		Amount      string    `json:"amount"`
		At          uint64    `json:"at"`
	}{e.Type(), e.Owner.Hex(), e.Participant.Hex(), FormatAmount(e.Amount), e.At})
}

// EventRecord is a persisted observation as read back from the event log.
type EventRecord struct {
	ID        int64           `json:"id"`
	Type      EventType       `json:"type"`
	Subject   string          `json:"subject"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt uint64          `json:"created_at"`
}
