package projection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/event"
	"FightPool/internal/observability"
	"FightPool/internal/state"

	"github.com/rs/zerolog"
)

// ProjectionOutput is the slice of a core output the read models need.
type ProjectionOutput struct {
	Sequence     int64
	EventType    string
	MatchID      *event.MatchID
	Timestamp    int64
	Config       *state.PlatformConfig
	Match        *state.MatchPool
	MatchDeleted bool
	Bet          *state.Bet
	BetDeleted   *state.BetKey
	Journals     []JournalEntry
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	Amount        int64
	JournalType   string
}

// FromCoreOutput converts a committed core output.
func FromCoreOutput(out core.CoreOutput) ProjectionOutput {
	p := ProjectionOutput{
		Sequence:     out.Envelope.Sequence,
		EventType:    out.Envelope.EventType.String(),
		MatchID:      out.Envelope.MatchID,
		Timestamp:    out.Envelope.Timestamp.Unix(),
		Config:       out.Config,
		Match:        out.Match,
		MatchDeleted: out.MatchDeleted,
		Bet:          out.Bet,
		BetDeleted:   out.BetDeleted,
	}
	if out.Batch != nil {
		for _, j := range out.Batch.Journals {
			p.Journals = append(p.Journals, JournalEntry{
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount,
				JournalType:   j.JournalType.String(),
			})
		}
	}
	return p
}

// ProjectionWorker keeps the projections schema in step with the core.
// The projection channel drops on overflow, so a gap in sequences means
// the tables are stale until RebuildProjections runs.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

func NewProjectionWorker(db *sql.DB, inputChan <-chan ProjectionOutput, metrics *observability.Metrics) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    observability.NewLogger("projection"),
	}
}

// Run applies outputs until ctx is done or the channel closes. Update
// failures are logged and skipped.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if pw.lastSeq != 0 && output.Sequence != pw.lastSeq+1 {
				pw.logger.Warn().
					Int64("expected", pw.lastSeq+1).
					Int64("got", output.Sequence).
					Msg("projection gap, rebuild required")
			}

			start := time.Now()
			if err := pw.Apply(ctx, output); err != nil {
				pw.logger.Warn().Err(err).Int64("seq", output.Sequence).Msg("projection update failed")
			} else if pw.metrics != nil {
				pw.metrics.ProjectionUpdateDur.WithLabelValues("escrow").Observe(time.Since(start).Seconds())
			}
			pw.lastSeq = output.Sequence
		}
	}
}

// Apply writes one output to every projection in a single transaction.
func (pw *ProjectionWorker) Apply(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Outputs at or below the watermark are already reflected, either
	// applied before or covered by a rebuild.
	applied, err := watermark(ctx, tx)
	if err != nil {
		return fmt.Errorf("watermark read: %w", err)
	}
	if output.Sequence <= applied {
		return nil
	}

	if output.Config != nil {
		if err := upsertConfig(ctx, tx, output.Config, output.Sequence); err != nil {
			return fmt.Errorf("config projection: %w", err)
		}
	}
	if output.BetDeleted != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM projections.bets WHERE match_id = $1 AND bettor = $2`,
			output.BetDeleted.MatchID.String(), output.BetDeleted.Bettor.String(),
		); err != nil {
			return fmt.Errorf("bet projection: %w", err)
		}
	}
	if output.Bet != nil {
		if err := upsertBet(ctx, tx, output.Bet, output.Sequence); err != nil {
			return fmt.Errorf("bet projection: %w", err)
		}
	}
	if output.Match != nil {
		if output.MatchDeleted {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM projections.matches WHERE match_id = $1`, output.Match.MatchID.String())
		} else {
			err = upsertMatch(ctx, tx, output.Match, output.Sequence)
		}
		if err != nil {
			return fmt.Errorf("match projection: %w", err)
		}
	}

	for _, j := range output.Journals {
		if err := applyJournal(ctx, tx, j, output.Sequence); err != nil {
			return fmt.Errorf("balance projection: %w", err)
		}
	}
	if output.MatchID != nil {
		for _, s := range SettlementsFrom(output) {
			if err := insertSettlement(ctx, tx, s); err != nil {
				return fmt.Errorf("settlement projection: %w", err)
			}
		}
	}

	if err := setWatermark(ctx, tx, output.Sequence); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}
	return tx.Commit()
}

func upsertConfig(ctx context.Context, tx *sql.Tx, cfg *state.PlatformConfig, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.config (id, authority, oracle, treasury, fee_bps, match_timeout, paused, last_sequence)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			authority = $1, oracle = $2, treasury = $3, fee_bps = $4,
			match_timeout = $5, paused = $6, last_sequence = $7
	`, cfg.Authority.String(), cfg.Oracle.String(), cfg.Treasury.String(),
		int32(cfg.FeeBps), cfg.MatchTimeout, cfg.Paused, seq)
	return err
}

func upsertMatch(ctx context.Context, tx *sql.Tx, m *state.MatchPool, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.matches (
			match_id, fighter_a, fighter_b, oracle, creator, status, winner,
			side_a_total, side_b_total, side_a_bet_count, side_b_bet_count,
			bet_count, winning_bet_count, fee_bps, fees_withdrawn, min_bet,
			betting_window, created_at, lock_timestamp, resolve_timestamp,
			cancel_timestamp, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
		ON CONFLICT (match_id) DO UPDATE SET
			oracle = $4, status = $6, winner = $7,
			side_a_total = $8, side_b_total = $9, side_a_bet_count = $10, side_b_bet_count = $11,
			bet_count = $12, winning_bet_count = $13, fees_withdrawn = $15,
			lock_timestamp = $19, resolve_timestamp = $20, cancel_timestamp = $21,
			last_sequence = $22
	`,
		m.MatchID.String(), m.FighterA.String(), m.FighterB.String(), m.Oracle.String(), m.Creator.String(),
		m.Status.String(), m.Winner.String(),
		numeric(m.SideATotal), numeric(m.SideBTotal), int64(m.SideABetCount), int64(m.SideBBetCount),
		int64(m.BetCount), int64(m.WinningBetCount), int32(m.FeeBps), m.FeesWithdrawn, numeric(m.MinBet),
		m.BettingWindow, m.CreatedAt, m.LockTimestamp, m.ResolveTimestamp,
		m.CancelTimestamp, seq,
	)
	return err
}

func upsertBet(ctx context.Context, tx *sql.Tx, b *state.Bet, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.bets (match_id, bettor, side, amount, claimed, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (match_id, bettor) DO UPDATE SET claimed = $5, last_sequence = $6
	`, b.MatchID.String(), b.Bettor.String(), b.Side.String(), numeric(b.Amount), b.Claimed, seq)
	return err
}

// applyJournal moves a journal amount between two balance rows. Debits
// increase a balance and credits decrease it.
func applyJournal(ctx context.Context, tx *sql.Tx, j JournalEntry, seq int64) error {
	const q = `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $2, last_sequence = $3
	`
	if _, err := tx.ExecContext(ctx, q, j.DebitAccount, j.Amount, seq); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, q, j.CreditAccount, -j.Amount, seq)
	return err
}

// watermark locks and returns the last applied sequence, 0 if none.
func watermark(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT last_sequence FROM projections.watermark WHERE projection_name = 'escrow' FOR UPDATE`,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func setWatermark(ctx context.Context, tx *sql.Tx, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (projection_name, last_sequence, updated_at)
		VALUES ('escrow', $1, NOW())
		ON CONFLICT (projection_name) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq)
	return err
}

// numeric renders a u64 for a NUMERIC column; database/sql rejects uint64
// values with the high bit set.
func numeric(v uint64) string {
	return strconv.FormatUint(v, 10)
}
