package query

import (
	"fmt"
	"strconv"

	"FightPool/internal/event"
	"FightPool/internal/state"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const matchColumns = `match_id, fighter_a, fighter_b, oracle, creator, status, winner,
	side_a_total, side_b_total, side_a_bet_count, side_b_bet_count,
	bet_count, winning_bet_count, fee_bps, fees_withdrawn, min_bet,
	betting_window, created_at, lock_timestamp, resolve_timestamp, cancel_timestamp`

const betColumns = `match_id, bettor, side, amount, claimed`

func scanMatch(row rowScanner) (*state.MatchPool, error) {
	var (
		matchID, fighterA, fighterB, oracle, creator string
		status, winner                               string
		sideA, sideB, minBet                         string
		sideACount, sideBCount, betCount, winCount   int64
		feeBps                                       int32
		m                                            state.MatchPool
	)
	err := row.Scan(
		&matchID, &fighterA, &fighterB, &oracle, &creator, &status, &winner,
		&sideA, &sideB, &sideACount, &sideBCount,
		&betCount, &winCount, &feeBps, &m.FeesWithdrawn, &minBet,
		&m.BettingWindow, &m.CreatedAt, &m.LockTimestamp, &m.ResolveTimestamp, &m.CancelTimestamp,
	)
	if err != nil {
		return nil, err
	}

	var p parser
	m.MatchID = p.matchID(matchID)
	m.FighterA = p.pubkey(fighterA)
	m.FighterB = p.pubkey(fighterB)
	m.Oracle = p.pubkey(oracle)
	m.Creator = p.pubkey(creator)
	m.Status = p.status(status)
	m.Winner = p.winner(winner)
	m.SideATotal = p.u64(sideA)
	m.SideBTotal = p.u64(sideB)
	m.MinBet = p.u64(minBet)
	m.SideABetCount = uint32(sideACount)
	m.SideBBetCount = uint32(sideBCount)
	m.BetCount = uint32(betCount)
	m.WinningBetCount = uint32(winCount)
	m.FeeBps = uint16(feeBps)
	if p.err != nil {
		return nil, fmt.Errorf("match row %s: %w", matchID, p.err)
	}
	return &m, nil
}

func scanBet(row rowScanner) (*state.Bet, error) {
	var (
		matchID, bettor, side, amount string
		b                             state.Bet
	)
	if err := row.Scan(&matchID, &bettor, &side, &amount, &b.Claimed); err != nil {
		return nil, err
	}

	var p parser
	b.MatchID = p.matchID(matchID)
	b.Bettor = p.pubkey(bettor)
	b.Side = p.side(side)
	b.Amount = p.u64(amount)
	if p.err != nil {
		return nil, fmt.Errorf("bet row %s/%s: %w", matchID, bettor, p.err)
	}
	return &b, nil
}

// parser keeps the first error so a row can be decoded field by field.
type parser struct {
	err error
}

func (p *parser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *parser) pubkey(s string) event.Pubkey {
	k, err := event.ParsePubkey(s)
	p.fail(err)
	return k
}

func (p *parser) matchID(s string) event.MatchID {
	id, err := event.ParseMatchID(s)
	p.fail(err)
	return id
}

func (p *parser) u64(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	p.fail(err)
	return v
}

func (p *parser) status(s string) state.MatchStatus {
	for _, st := range []state.MatchStatus{
		state.MatchStatusOpen, state.MatchStatusLocked,
		state.MatchStatusResolved, state.MatchStatusCancelled,
	} {
		if st.String() == s {
			return st
		}
	}
	p.fail(fmt.Errorf("unknown status %q", s))
	return state.MatchStatusOpen
}

func (p *parser) winner(s string) state.Winner {
	for _, w := range []state.Winner{state.WinnerNone, state.WinnerSideA, state.WinnerSideB} {
		if w.String() == s {
			return w
		}
	}
	p.fail(fmt.Errorf("unknown winner %q", s))
	return state.WinnerNone
}

func (p *parser) side(s string) event.Side {
	switch s {
	case event.SideA.String():
		return event.SideA
	case event.SideB.String():
		return event.SideB
	}
	p.fail(fmt.Errorf("unknown side %q", s))
	return 0
}
