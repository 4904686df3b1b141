package projection

import (
	"context"
	"database/sql"
	"fmt"

	"FightPool/internal/core"
)

// RebuildProjections replaces every projection with the state captured in
// snap. Settlement history is re-derived from the journal log up to the
// snapshot sequence. Live outputs at or below that sequence are skipped by
// the worker afterwards.
func RebuildProjections(ctx context.Context, db *sql.DB, snap *core.SnapshotState) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE projections.config, projections.matches,
		projections.bets, projections.balances, projections.settlements`); err != nil {
		return fmt.Errorf("truncate projections: %w", err)
	}

	if snap.Config != nil {
		if err := upsertConfig(ctx, tx, snap.Config, snap.Sequence); err != nil {
			return fmt.Errorf("rebuild config: %w", err)
		}
	}
	for _, m := range snap.Matches {
		if err := upsertMatch(ctx, tx, m, snap.Sequence); err != nil {
			return fmt.Errorf("rebuild match %s: %w", m.MatchID, err)
		}
	}
	for _, b := range snap.Bets {
		if err := upsertBet(ctx, tx, b, snap.Sequence); err != nil {
			return fmt.Errorf("rebuild bet %s/%s: %w", b.MatchID, b.Bettor, err)
		}
	}
	for key, balance := range snap.Balances {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projections.balances (account_path, balance, last_sequence)
			VALUES ($1, $2, $3)
		`, key.AccountPath(), balance, snap.Sequence); err != nil {
			return fmt.Errorf("rebuild balance %s: %w", key, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.settlements (sequence, leg, match_id, kind, recipient, amount, timestamp)
		SELECT j.sequence,
		       (ROW_NUMBER() OVER (PARTITION BY j.sequence ORDER BY j.journal_id) - 1)::INT,
		       e.match_id, j.journal_type, j.debit_account, j.amount, j.timestamp
		FROM event_log.journal j
		JOIN event_log.events e ON e.sequence = j.sequence
		WHERE j.credit_account LIKE 'vault:%' AND j.sequence <= $1 AND e.match_id IS NOT NULL
	`, snap.Sequence); err != nil {
		return fmt.Errorf("rebuild settlements: %w", err)
	}

	if err := setWatermark(ctx, tx, snap.Sequence); err != nil {
		return err
	}
	return tx.Commit()
}
