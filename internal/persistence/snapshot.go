package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/ledger"
	"FightPool/internal/state"

	"github.com/google/uuid"
)

// snapshotFormatVersion tags the JSON layout of SnapshotData.
const snapshotFormatVersion = 1

// SnapshotManager creates and loads state snapshots and reads the event log
// back for recovery.
type SnapshotManager struct {
	db *sql.DB
}

// SnapshotData is the stored form of core.SnapshotState.
type SnapshotData struct {
	Sequence        int64                 `json:"sequence"`
	StateHash       []byte                `json:"state_hash"`
	ClockLast       int64                 `json:"clock_last"`
	Config          *state.PlatformConfig `json:"config,omitempty"`
	Matches         []*state.MatchPool    `json:"matches"`
	Bets            []*state.Bet          `json:"bets"`
	Balances        map[string]int64      `json:"balances"` // AccountPath -> balance
	IdempotencyKeys []string              `json:"idempotency_keys"`
	CreatedAt       time.Time             `json:"created_at"`
}

// SnapshotFromCore converts a captured core state into its stored form.
func SnapshotFromCore(snap *core.SnapshotState, createdAt time.Time) *SnapshotData {
	data := &SnapshotData{
		Sequence:        snap.Sequence,
		StateHash:       append([]byte(nil), snap.StateHash[:]...),
		ClockLast:       snap.ClockLast,
		Config:          snap.Config,
		Matches:         snap.Matches,
		Bets:            snap.Bets,
		Balances:        make(map[string]int64, len(snap.Balances)),
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       createdAt,
	}
	for key, balance := range snap.Balances {
		data.Balances[key.AccountPath()] = balance
	}
	return data
}

// ToCore is the inverse of SnapshotFromCore.
func (d *SnapshotData) ToCore() (*core.SnapshotState, error) {
	if len(d.StateHash) != 32 {
		return nil, fmt.Errorf("snapshot %d: state hash is %d bytes", d.Sequence, len(d.StateHash))
	}
	snap := &core.SnapshotState{
		Sequence:        d.Sequence,
		ClockLast:       d.ClockLast,
		Config:          d.Config,
		Matches:         d.Matches,
		Bets:            d.Bets,
		Balances:        make(map[ledger.AccountKey]int64, len(d.Balances)),
		IdempotencyKeys: d.IdempotencyKeys,
	}
	copy(snap.StateHash[:], d.StateHash)
	for path, balance := range d.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d: %w", d.Sequence, err)
		}
		snap.Balances[key] = balance
	}
	return snap, nil
}

// Encode renders the snapshot as stored in Postgres and in the archive.
func (d *SnapshotData) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// DecodeSnapshot parses an encoded snapshot.
func DecodeSnapshot(data []byte) (*SnapshotData, error) {
	var snap SnapshotData
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot and returns its encoded bytes.
// Snapshots are stored unverified; MarkVerified flips the flag.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *SnapshotData) ([]byte, error) {
	data, err := snap.Encode()
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $6
	`, uuid.New(), snap.Sequence, data, snap.StateHash, snapshotFormatVersion, len(data), snap.CreatedAt)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*SnapshotData, error) {
	var data []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return DecodeSnapshot(data)
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx,
		`UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1`, sequence)
	return err
}

// SetArchivedKey records where a snapshot was archived.
func (sm *SnapshotManager) SetArchivedKey(ctx context.Context, sequence int64, key string) error {
	_, err := sm.db.ExecContext(ctx,
		`UPDATE event_log.snapshots SET archived_key = $2 WHERE sequence = $1`, sequence, key)
	return err
}

// LoadEventsFrom loads up to limit events starting at fromSequence.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, match_id, payload,
		       state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.MatchID,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecentIdempotencyKeys returns composite dedup keys of the newest events,
// oldest first, for warming the core's LRU after a cold start.
func (sm *SnapshotManager) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT event_type, idempotency_key FROM (
			SELECT sequence, event_type, idempotency_key
			FROM event_log.events
			ORDER BY sequence DESC
			LIMIT $1
		) recent
		ORDER BY sequence ASC
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var eventType, key string
		if err := rows.Scan(&eventType, &key); err != nil {
			return nil, err
		}
		keys = append(keys, core.CompositeKey(eventType, key))
	}
	return keys, rows.Err()
}

// LogInfo summarizes the event log for the admin surface.
type LogInfo struct {
	EventCount       int64
	LatestSequence   int64
	LatestStateHash  []byte
	SnapshotSequence int64
	SnapshotArchive  string
}

// GetLogInfo reads the log head and the newest verified snapshot.
func (sm *SnapshotManager) GetLogInfo(ctx context.Context) (*LogInfo, error) {
	info := &LogInfo{}
	err := sm.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MAX(sequence), 0) FROM event_log.events
	`).Scan(&info.EventCount, &info.LatestSequence)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	if info.LatestSequence > 0 {
		err = sm.db.QueryRowContext(ctx,
			`SELECT state_hash FROM event_log.events WHERE sequence = $1`, info.LatestSequence,
		).Scan(&info.LatestStateHash)
		if err != nil {
			return nil, fmt.Errorf("head hash: %w", err)
		}
	}

	var archived sql.NullString
	err = sm.db.QueryRowContext(ctx, `
		SELECT sequence, archived_key FROM event_log.snapshots
		WHERE verified = TRUE ORDER BY sequence DESC LIMIT 1
	`).Scan(&info.SnapshotSequence, &archived)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	info.SnapshotArchive = archived.String
	return info, nil
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := sm.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}
