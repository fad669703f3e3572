package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitos/token_staking/internal/domain"
)

// MemoryStore keeps everything in process. Transactions work on a copy that
// replaces the live state on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

type memoryState struct {
	positions map[common.Address]*domain.Position
	config    *domain.Config
	owed      []*domain.OwedPenalty
	lastOwed  int64
	events    []*domain.EventRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memoryState{positions: make(map[common.Address]*domain.Position)}}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		positions: make(map[common.Address]*domain.Position, len(s.positions)),
		events:    append([]*domain.EventRecord(nil), s.events...),
		lastOwed:  s.lastOwed,
	}
	for _, p := range s.owed {
		c.owed = append(c.owed, p.Clone())
	}
	for k, p := range s.positions {
		c.positions[k] = p.Clone()
	}
	if s.config != nil {
		c.config = s.config.Clone()
	}
	return c
}

func (s *memoryState) GetPosition(_ context.Context, participant common.Address) (*domain.Position, error) {
	p, ok := s.positions[participant]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	return p.Clone(), nil
}

func (s *memoryState) SavePosition(_ context.Context, p *domain.Position) error {
	s.positions[p.Participant] = p.Clone()
	return nil
}

func (s *memoryState) LoadConfig(_ context.Context) (*domain.Config, error) {
	if s.config == nil {
		return nil, domain.ErrConfigNotFound
	}
	return s.config.Clone(), nil
}

func (s *memoryState) SaveConfig(_ context.Context, cfg *domain.Config) error {
	s.config = cfg.Clone()
	return nil
}

func (s *memoryState) AddOwedPenalty(_ context.Context, p *domain.OwedPenalty) error {
	s.lastOwed++
	p.ID = s.lastOwed
	s.owed = append(s.owed, p.Clone())
	return nil
}

func (s *memoryState) RemoveOwedPenalty(_ context.Context, id int64) error {
	for i, p := range s.owed {
		if p.ID == id {
			s.owed = append(s.owed[:i:i], s.owed[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %d", domain.ErrOwedPenaltyNotFound, id)
}

// ListOwedPenalties returns the oldest penalty first.
func (s *memoryState) ListOwedPenalties(_ context.Context) ([]*domain.OwedPenalty, error) {
	out := make([]*domain.OwedPenalty, 0, len(s.owed))
	for _, p := range s.owed {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *memoryState) AppendEvent(_ context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event.Type(), err)
	}
	s.events = append(s.events, &domain.EventRecord{
		ID:        int64(len(s.events) + 1),
		Type:      event.Type(),
		Subject:   event.Subject().Hex(),
		Payload:   payload,
		CreatedAt: event.Timestamp(),
	})
	return nil
}

func (s *MemoryStore) GetPosition(ctx context.Context, participant common.Address) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.GetPosition(ctx, participant)
}

func (s *MemoryStore) SavePosition(ctx context.Context, p *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SavePosition(ctx, p)
}

func (s *MemoryStore) ListPositions(_ context.Context) ([]*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	positions := make([]*domain.Position, 0, len(s.state.positions))
	for _, p := range s.state.positions {
		positions = append(positions, p.Clone())
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Participant.Hex() < positions[j].Participant.Hex()
	})
	return positions, nil
}

func (s *MemoryStore) LoadConfig(ctx context.Context) (*domain.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LoadConfig(ctx)
}

func (s *MemoryStore) SaveConfig(ctx context.Context, cfg *domain.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SaveConfig(ctx, cfg)
}

func (s *MemoryStore) AddOwedPenalty(ctx context.Context, p *domain.OwedPenalty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AddOwedPenalty(ctx, p)
}

func (s *MemoryStore) RemoveOwedPenalty(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RemoveOwedPenalty(ctx, id)
}

func (s *MemoryStore) ListOwedPenalties(ctx context.Context) ([]*domain.OwedPenalty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ListOwedPenalties(ctx)
}

func (s *MemoryStore) AppendEvent(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.AppendEvent(ctx, event)
}

// ListEvents returns the most recent events first.
func (s *MemoryStore) ListEvents(_ context.Context, limit int) ([]*domain.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.EventRecord
	for i := len(s.state.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.state.events[i])
	}
	return out, nil
}

func (s *MemoryStore) RunInTx(_ context.Context, fn func(tx domain.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := s.state.clone()
	if err := fn(staged); err != nil {
		return err
	}
	s.state = staged
	return nil
}
