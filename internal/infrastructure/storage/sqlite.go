package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/token_staking/internal/domain"
)

// querier is the part of *sql.DB and *sql.Tx the repositories need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteStore struct {
	db *sql.DB
	repo
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, repo: repo{q: db}}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS positions (
			participant TEXT PRIMARY KEY,
			total_staked TEXT NOT NULL,
			weighted_start_time INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			owner TEXT NOT NULL,
			minimum_stake TEXT NOT NULL,
			annual_reward_rate INTEGER NOT NULL,
			lock_period INTEGER NOT NULL,
			early_withdrawal_penalty INTEGER NOT NULL,
			tier_thresholds TEXT NOT NULL,
			tier_reward_rates TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS owed_penalties (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			owner TEXT NOT NULL,
			participant TEXT NOT NULL,
			amount TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			subject TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_subject ON events(subject);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// RunInTx commits the writes made through tx only when fn returns nil.
func (s *SQLiteStore) RunInTx(ctx context.Context, fn func(tx domain.StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if err := fn(&repo{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

// repo implements the repositories over either the database or a transaction.
type repo struct {
	q querier
}

// PositionRepository Implementation

func (r *repo) GetPosition(ctx context.Context, participant common.Address) (*domain.Position, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT participant, total_staked, weighted_start_time, updated_at FROM positions WHERE participant = ?`,
		participant.Hex())
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPositionNotFound
	}
	return p, err
}

func (r *repo) SavePosition(ctx context.Context, p *domain.Position) error {
	query := `INSERT INTO positions (participant, total_staked, weighted_start_time, updated_at)
			  VALUES (?, ?, ?, ?)
			  ON CONFLICT(participant) DO UPDATE SET
			  total_staked=excluded.total_staked,
			  weighted_start_time=excluded.weighted_start_time,
			  updated_at=excluded.updated_at`
	_, err := r.q.ExecContext(ctx, query,
		p.Participant.Hex(), domain.FormatAmount(p.TotalStaked), int64(p.WeightedStartTime), int64(p.UpdatedAt))
	return err
}

func (r *repo) ListPositions(ctx context.Context) ([]*domain.Position, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT participant, total_staked, weighted_start_time, updated_at FROM positions ORDER BY participant`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (*domain.Position, error) {
	var (
		participant, staked string
		start, updated      int64
	)
	if err := row.Scan(&participant, &staked, &start, &updated); err != nil {
		return nil, err
	}
	amount, err := domain.ParseAmount(staked)
	if err != nil {
		return nil, fmt.Errorf("corrupt total_staked for %s: %w", participant, err)
	}
	return &domain.Position{
		Participant:       common.HexToAddress(participant),
		TotalStaked:       amount,
		WeightedStartTime: uint64(start),
		UpdatedAt:         uint64(updated),
	}, nil
}

// ConfigRepository Implementation

func (r *repo) LoadConfig(ctx context.Context) (*domain.Config, error) {
	row := r.q.QueryRowContext(ctx, `SELECT owner, minimum_stake, annual_reward_rate, lock_period, early_withdrawal_penalty, tier_thresholds, tier_reward_rates FROM config WHERE id = 1`)

	var (
		owner, minimum, thresholdsJSON, ratesJSON string
		annual, lock, penalty                    int64
	)
	err := row.Scan(&owner, &minimum, &annual, &lock, &penalty, &thresholdsJSON, &ratesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConfigNotFound
	}
	if err != nil {
		return nil, err
	}

	cfg := &domain.Config{
		Owner:                  common.HexToAddress(owner),
		AnnualRewardRate:       uint64(annual),
		LockPeriod:             uint64(lock),
		EarlyWithdrawalPenalty: uint64(penalty),
	}
	if cfg.MinimumStakeAmount, err = domain.ParseAmount(minimum); err != nil {
		return nil, fmt.Errorf("corrupt minimum_stake: %w", err)
	}

	var thresholds []string
	if err := json.Unmarshal([]byte(thresholdsJSON), &thresholds); err != nil {
		return nil, fmt.Errorf("corrupt tier_thresholds: %w", err)
	}
	var rates []uint64
	if err := json.Unmarshal([]byte(ratesJSON), &rates); err != nil {
		return nil, fmt.Errorf("corrupt tier_reward_rates: %w", err)
	}
	if len(thresholds) != domain.TierCount || len(rates) != domain.TierCount {
		return nil, fmt.Errorf("corrupt tier schedule: %d thresholds, %d rates", len(thresholds), len(rates))
	}
	for i := range thresholds {
		if cfg.TierThresholds[i], err = domain.ParseAmount(thresholds[i]); err != nil {
			return nil, fmt.Errorf("corrupt tier threshold %d: %w", i, err)
		}
		cfg.TierRewardRates[i] = rates[i]
	}
	return cfg, nil
}

func (r *repo) SaveConfig(ctx context.Context, cfg *domain.Config) error {
	thresholds := make([]string, domain.TierCount)
	for i, t := range cfg.TierThresholds {
		thresholds[i] = domain.FormatAmount(t)
	}
	thresholdsJSON, err := json.Marshal(thresholds)
	if err != nil {
		return err
	}
	ratesJSON, err := json.Marshal(cfg.TierRewardRates[:])
	if err != nil {
		return err
	}

	query := `INSERT INTO config (id, owner, minimum_stake, annual_reward_rate, lock_period, early_withdrawal_penalty, tier_thresholds, tier_reward_rates, updated_at)
			  VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
			  ON CONFLICT(id) DO UPDATE SET
			  owner=excluded.owner,
			  minimum_stake=excluded.minimum_stake,
			  annual_reward_rate=excluded.annual_reward_rate,
			  lock_period=excluded.lock_period,
			  early_withdrawal_penalty=excluded.early_withdrawal_penalty,
			  tier_thresholds=excluded.tier_thresholds,
			  tier_reward_rates=excluded.tier_reward_rates,
			  updated_at=excluded.updated_at`
	_, err = r.q.ExecContext(ctx, query,
		cfg.Owner.Hex(), domain.FormatAmount(cfg.MinimumStakeAmount), int64(cfg.AnnualRewardRate),
		int64(cfg.LockPeriod), int64(cfg.EarlyWithdrawalPenalty), string(thresholdsJSON), string(ratesJSON), time.Now().UTC())
	return err
}

// OwedPenaltyRepository Implementation

func (r *repo) AddOwedPenalty(ctx context.Context, p *domain.OwedPenalty) error {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO owed_penalties (owner, participant, amount, created_at) VALUES (?, ?, ?, ?)`,
		p.Owner.Hex(), p.Participant.Hex(), domain.FormatAmount(p.Amount), int64(p.CreatedAt))
	if err != nil {
		return err
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (r *repo) RemoveOwedPenalty(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM owed_penalties WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", domain.ErrOwedPenaltyNotFound, id)
	}
	return nil
}

// ListOwedPenalties returns the oldest penalty first.
func (r *repo) ListOwedPenalties(ctx context.Context) ([]*domain.OwedPenalty, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, owner, participant, amount, created_at FROM owed_penalties ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owed := []*domain.OwedPenalty{}
	for rows.Next() {
		var (
			p                          domain.OwedPenalty
			owner, participant, amount string
			created                    int64
		)
		if err := rows.Scan(&p.ID, &owner, &participant, &amount, &created); err != nil {
			return nil, err
		}
		if p.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("corrupt owed penalty %d: %w", p.ID, err)
		}
		p.Owner = common.HexToAddress(owner)
		p.Participant = common.HexToAddress(participant)
		p.CreatedAt = uint64(created)
		owed = append(owed, &p)
	}
	return owed, rows.Err()
}

// EventRepository Implementation

func (r *repo) AppendEvent(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event.Type(), err)
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO events (type, subject, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(event.Type()), event.Subject().Hex(), string(payload), int64(event.Timestamp()))
	return err
}

// ListEvents returns the most recent events first.
func (r *repo) ListEvents(ctx context.Context, limit int) ([]*domain.EventRecord, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, type, subject, payload, created_at FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.EventRecord
	for rows.Next() {
		var (
			e         domain.EventRecord
			eventType string
			payload   string
			created   int64
		)
		if err := rows.Scan(&e.ID, &eventType, &e.Subject, &payload, &created); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(eventType)
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = uint64(created)
		events = append(events, &e)
	}
	return events, rows.Err()
}
