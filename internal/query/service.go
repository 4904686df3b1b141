package query

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"

	"FightPool/internal/core"
	"FightPool/internal/event"
	"FightPool/internal/state"
)

// maxPageSize caps every list query.
const maxPageSize = 500

// IntegrityChecker re-runs the in-memory invariants. *core.EscrowCore
// satisfies it.
type IntegrityChecker interface {
	CheckIntegrity() error
}

// QueryService provides read-only access to projection tables. Every
// response carries as_of_sequence, the projection watermark it was read at.
type QueryService struct {
	db   *sql.DB
	live IntegrityChecker // optional
}

func NewQueryService(db *sql.DB, live IntegrityChecker) *QueryService {
	return &QueryService{db: db, live: live}
}

// GetConfig returns the platform config.
func (qs *QueryService) GetConfig(ctx context.Context) (*ConfigResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	var (
		resp   ConfigResponse
		feeBps int32
	)
	err = qs.db.QueryRowContext(ctx, `
		SELECT authority, oracle, treasury, fee_bps, match_timeout, paused
		FROM projections.config WHERE id = 1
	`).Scan(&resp.Authority, &resp.Oracle, &resp.Treasury, &feeBps, &resp.MatchTimeout, &resp.Paused)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	resp.FeeBps = uint16(feeBps)
	resp.AsOfSequence = asOfSeq
	return &resp, nil
}

// GetMatch returns one match pool with its derived economics.
func (qs *QueryService) GetMatch(ctx context.Context, matchID event.MatchID) (*MatchResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}
	pool, err := qs.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	return matchResponse(pool, asOfSeq)
}

// ListMatches returns matches ordered by creation, newest first. An empty
// status lists every status.
func (qs *QueryService) ListMatches(ctx context.Context, status string, limit int, beforeCreatedAt *int64) ([]MatchResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + matchColumns + ` FROM projections.matches WHERE TRUE`
	var args []any
	argIdx := 1

	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}
	if beforeCreatedAt != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, *beforeCreatedAt)
		argIdx++
	}
	query += " ORDER BY created_at DESC, match_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []MatchResponse
	for rows.Next() {
		pool, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		m, err := matchResponse(pool, asOfSeq)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// GetBet returns one bet with what it would settle for now.
func (qs *QueryService) GetBet(ctx context.Context, matchID event.MatchID, bettor event.Pubkey) (*BetResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := qs.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	liveFee, err := qs.liveFee(ctx)
	if err != nil {
		return nil, err
	}

	bet, err := scanBet(qs.db.QueryRowContext(ctx,
		`SELECT `+betColumns+` FROM projections.bets WHERE match_id = $1 AND bettor = $2`,
		matchID.String(), bettor.String(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrBetNotFound.Withf("bettor %s in match %s", bettor, matchID)
	}
	if err != nil {
		return nil, err
	}
	return betResponse(pool, bet, liveFee, asOfSeq)
}

// ListBets returns every open bet record of a match.
func (qs *QueryService) ListBets(ctx context.Context, matchID event.MatchID) ([]BetResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := qs.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	liveFee, err := qs.liveFee(ctx)
	if err != nil {
		return nil, err
	}
	bets, err := qs.loadBets(ctx, matchID)
	if err != nil {
		return nil, err
	}

	out := make([]BetResponse, 0, len(bets))
	for _, b := range bets {
		r, err := betResponse(pool, b, liveFee, asOfSeq)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// ListBettorBets returns the bet records an identity still holds across
// matches.
func (qs *QueryService) ListBettorBets(ctx context.Context, bettor event.Pubkey, limit int) ([]BetResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	liveFee, err := qs.liveFee(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT b.match_id, b.bettor, b.side, b.amount, b.claimed
		FROM projections.bets b
		JOIN projections.matches m ON m.match_id = b.match_id
		WHERE b.bettor = $1
		ORDER BY m.created_at DESC, b.match_id
		LIMIT $2
	`, bettor.String(), pageSize(limit))
	if err != nil {
		return nil, err
	}
	var bets []*state.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		bets = append(bets, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pools := make(map[event.MatchID]*state.MatchPool)
	out := make([]BetResponse, 0, len(bets))
	for _, b := range bets {
		pool, ok := pools[b.MatchID]
		if !ok {
			if pool, err = qs.loadMatch(ctx, b.MatchID); err != nil {
				return nil, err
			}
			pools[b.MatchID] = pool
		}
		r, err := betResponse(pool, b, liveFee, asOfSeq)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// GetDistribution previews the pro-rata split of a resolved match across
// its outstanding winning bets, at the match's snapshotted fee.
func (qs *QueryService) GetDistribution(ctx context.Context, matchID event.MatchID) (*DistributionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := qs.loadMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	bets, err := qs.loadBets(ctx, matchID)
	if err != nil {
		return nil, err
	}

	dist, err := Distribution(pool, bets)
	if err != nil {
		return nil, err
	}

	resp := &DistributionResponse{
		MatchID:      matchID.String(),
		Winner:       pool.Winner.String(),
		Fee:          newAmount(dist.Pool.Fee),
		NetPool:      newAmount(dist.Pool.Net),
		Paid:         newAmount(dist.Paid),
		Dust:         newAmount(dist.Dust),
		Shares:       make([]ShareAmount, 0, len(dist.Shares)),
		AsOfSequence: asOfSeq,
	}
	for _, s := range dist.Shares {
		resp.Shares = append(resp.Shares, ShareAmount{
			Bettor: event.Pubkey(s.Bettor).String(),
			Stake:  newAmount(s.Amount),
			Payout: newAmount(s.Payout),
		})
	}
	return resp, nil
}

// GetSettlements returns vault outflows, newest first, filtered by match
// and/or recipient account path.
func (qs *QueryService) GetSettlements(
	ctx context.Context,
	matchID *event.MatchID,
	recipient *string,
	limit int,
	beforeSequence *int64,
) ([]SettlementResponse, error) {
	query := `
		SELECT sequence, match_id, kind, recipient, amount, timestamp
		FROM projections.settlements
		WHERE TRUE
	`
	var args []any
	argIdx := 1

	if matchID != nil {
		query += fmt.Sprintf(" AND match_id = $%d", argIdx)
		args = append(args, matchID.String())
		argIdx++
	}
	if recipient != nil {
		query += fmt.Sprintf(" AND recipient = $%d", argIdx)
		args = append(args, *recipient)
		argIdx++
	}
	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}
	query += " ORDER BY sequence DESC, leg"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SettlementResponse
	for rows.Next() {
		var (
			s      SettlementResponse
			amount int64
		)
		if err := rows.Scan(&s.Sequence, &s.MatchID, &s.Kind, &s.Recipient, &amount, &s.Timestamp); err != nil {
			return nil, err
		}
		s.Amount = newAmount(uint64(amount))
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetJournalHistory returns journal entries touching an account path with
// pagination.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	accountPath string,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id, batch_id, event_ref, sequence,
		       debit_account, credit_account, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account = $1 OR credit_account = $1)
	`
	args := []any{accountPath}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC, journal_id"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, pageSize(limit))

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the persisted hash chain, the projected ledger
// and, when a live core is attached, the in-memory invariants.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	if err := qs.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_log.events`,
	).Scan(&report.EventsChecked); err != nil {
		return nil, err
	}

	var firstPrev []byte
	err := qs.db.QueryRowContext(ctx,
		`SELECT prev_hash FROM event_log.events ORDER BY sequence LIMIT 1`,
	).Scan(&firstPrev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		genesis := core.GenesisHash()
		report.GenesisMismatch = !bytes.Equal(firstPrev, genesis[:])
	}

	// A missing predecessor breaks the chain as much as a wrong hash does.
	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM event_log.events e1
		LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.sequence > (SELECT MIN(sequence) FROM event_log.events)
		  AND (e2.sequence IS NULL OR e1.prev_hash <> e2.state_hash)
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Every journal leg debits one account and credits another by the same
	// amount, so the projected balances must sum to zero.
	if err := qs.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance), 0)::BIGINT FROM projections.balances`,
	).Scan(&report.Imbalance); err != nil {
		return nil, err
	}

	vaultRows, err := qs.db.QueryContext(ctx, `
		SELECT account_path FROM projections.balances
		WHERE account_path LIKE 'vault:%' AND balance < 0
		ORDER BY account_path
	`)
	if err != nil {
		return nil, err
	}
	defer vaultRows.Close()

	for vaultRows.Next() {
		var path string
		if err := vaultRows.Scan(&path); err != nil {
			return nil, err
		}
		report.NegativeVaults = append(report.NegativeVaults, path)
	}
	if err := vaultRows.Err(); err != nil {
		return nil, err
	}

	if qs.live != nil {
		if err := qs.live.CheckIntegrity(); err != nil {
			report.LiveCoreError = err.Error()
		}
	}

	report.IsHealthy = !report.GenesisMismatch &&
		len(report.HashChainBreaks) == 0 &&
		report.Imbalance == 0 &&
		len(report.NegativeVaults) == 0 &&
		report.LiveCoreError == ""
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE projection_name = 'escrow'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return seq, err
}

func (qs *QueryService) loadMatch(ctx context.Context, matchID event.MatchID) (*state.MatchPool, error) {
	pool, err := scanMatch(qs.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM projections.matches WHERE match_id = $1`, matchID.String(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrMatchNotFound.Withf("match %s", matchID)
	}
	return pool, err
}

func (qs *QueryService) loadBets(ctx context.Context, matchID event.MatchID) ([]*state.Bet, error) {
	rows, err := qs.db.QueryContext(ctx,
		`SELECT `+betColumns+` FROM projections.bets WHERE match_id = $1 ORDER BY bettor`, matchID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []*state.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// liveFee is the fee claims are priced at right now.
func (qs *QueryService) liveFee(ctx context.Context) (uint16, error) {
	var feeBps int32
	err := qs.db.QueryRowContext(ctx, `SELECT fee_bps FROM projections.config WHERE id = 1`).Scan(&feeBps)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, state.ErrNotInitialized
	}
	return uint16(feeBps), err
}

func matchResponse(pool *state.MatchPool, asOfSeq int64) (*MatchResponse, error) {
	econ, err := PoolEconomics(pool)
	if err != nil {
		return nil, err
	}
	return &MatchResponse{
		MatchID:          pool.MatchID.String(),
		FighterA:         pool.FighterA.String(),
		FighterB:         pool.FighterB.String(),
		Oracle:           pool.Oracle.String(),
		Creator:          pool.Creator.String(),
		Status:           pool.Status.String(),
		Winner:           pool.Winner.String(),
		SideATotal:       newAmount(pool.SideATotal),
		SideBTotal:       newAmount(pool.SideBTotal),
		SideABetCount:    int64(pool.SideABetCount),
		SideBBetCount:    int64(pool.SideBBetCount),
		BetCount:         int64(pool.BetCount),
		WinningBetCount:  int64(pool.WinningBetCount),
		FeeBps:           pool.FeeBps,
		FeesWithdrawn:    pool.FeesWithdrawn,
		MinBet:           newAmount(pool.MinBet),
		BettingWindow:    pool.BettingWindow,
		CreatedAt:        pool.CreatedAt,
		LockTimestamp:    pool.LockTimestamp,
		ResolveTimestamp: pool.ResolveTimestamp,
		CancelTimestamp:  pool.CancelTimestamp,
		TotalPool:        newAmount(econ.Total),
		Fee:              newAmount(econ.Fee),
		NetPool:          newAmount(econ.Net),
		AsOfSequence:     asOfSeq,
	}, nil
}

func betResponse(pool *state.MatchPool, bet *state.Bet, liveFee uint16, asOfSeq int64) (*BetResponse, error) {
	kind, value, err := BetSettlement(pool, bet, liveFee)
	if err != nil {
		return nil, err
	}
	resp := &BetResponse{
		MatchID:      bet.MatchID.String(),
		Bettor:       bet.Bettor.String(),
		Side:         bet.Side.String(),
		Amount:       newAmount(bet.Amount),
		Claimed:      bet.Claimed,
		Settlement:   kind,
		AsOfSequence: asOfSeq,
	}
	if kind != "" {
		v := newAmount(value)
		resp.SettlementValue = &v
	}
	return resp, nil
}

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
