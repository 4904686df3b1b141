package state

import (
	"FightPool/internal/event"
	fpmath "FightPool/internal/math"
)

// MatchStatus is the lifecycle state of a match pool.
// Open → Locked → Resolved, Open/Locked → Cancelled
type MatchStatus int32

const (
	MatchStatusOpen MatchStatus = iota
	MatchStatusLocked
	MatchStatusResolved
	MatchStatusCancelled
)

func (s MatchStatus) String() string {
	switch s {
	case MatchStatusOpen:
		return "Open"
	case MatchStatusLocked:
		return "Locked"
	case MatchStatusResolved:
		return "Resolved"
	case MatchStatusCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// CanTransitionTo validates lifecycle transitions.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	switch s {
	case MatchStatusOpen:
		return next == MatchStatusLocked || next == MatchStatusCancelled
	case MatchStatusLocked:
		// authority cancel or oracle timeout
		return next == MatchStatusResolved || next == MatchStatusCancelled
	case MatchStatusResolved, MatchStatusCancelled:
		// Terminal; drained by settlement or refunds
		return false
	default:
		return false
	}
}

// Winner is the resolved outcome. WinnerNone until resolution.
type Winner int32

const (
	WinnerNone Winner = iota
	WinnerSideA
	WinnerSideB
)

func (w Winner) String() string {
	switch w {
	case WinnerSideA:
		return "SideA"
	case WinnerSideB:
		return "SideB"
	default:
		return "None"
	}
}

// WinnerFromSide maps a wire side code to a winner.
func WinnerFromSide(side event.Side) (Winner, error) {
	switch side {
	case event.SideA:
		return WinnerSideA, nil
	case event.SideB:
		return WinnerSideB, nil
	default:
		return WinnerNone, ErrInvalidSide.Withf("winner code %d", uint8(side))
	}
}

// Side returns the wire code of the winning side.
func (w Winner) Side() (event.Side, bool) {
	switch w {
	case WinnerSideA:
		return event.SideA, true
	case WinnerSideB:
		return event.SideB, true
	default:
		return 0, false
	}
}

// MatchPool is the per-match aggregate. Handlers never mutate a stored
// pool in place: every transition returns a modified copy that the core
// commits together with the journal batch.
type MatchPool struct {
	MatchID          event.MatchID `json:"match_id"`
	FighterA         event.Pubkey  `json:"fighter_a"`
	FighterB         event.Pubkey  `json:"fighter_b"`
	SideATotal       uint64        `json:"side_a_total"`
	SideBTotal       uint64        `json:"side_b_total"`
	SideABetCount    uint32        `json:"side_a_bet_count"`
	SideBBetCount    uint32        `json:"side_b_bet_count"`
	BetCount         uint32        `json:"bet_count"`
	WinningBetCount  uint32        `json:"winning_bet_count"`
	Status           MatchStatus   `json:"status"`
	Winner           Winner        `json:"winner"`
	Oracle           event.Pubkey  `json:"oracle"`
	Creator          event.Pubkey  `json:"creator"`
	CreatedAt        int64         `json:"created_at"`
	LockTimestamp    int64         `json:"lock_timestamp"`
	ResolveTimestamp int64         `json:"resolve_timestamp"`
	CancelTimestamp  int64         `json:"cancel_timestamp"`
	MinBet           uint64        `json:"min_bet"`
	BettingWindow    int64         `json:"betting_window"`
	FeeBps           uint16        `json:"fee_bps"` // snapshot at creation
	FeesWithdrawn    bool          `json:"fees_withdrawn"`
}

// NewMatchPool opens a match with zeroed counters.
func NewMatchPool(
	matchID event.MatchID,
	fighterA, fighterB event.Pubkey,
	oracle, creator event.Pubkey,
	feeBps uint16,
	minBet uint64,
	bettingWindow int64,
	now int64,
) (*MatchPool, error) {
	if bettingWindow < 0 {
		return nil, ErrInvalidBettingWindow.Withf("betting_window %d", bettingWindow)
	}
	if err := ValidateFeeBps(feeBps); err != nil {
		return nil, err
	}
	return &MatchPool{
		MatchID:       matchID,
		FighterA:      fighterA,
		FighterB:      fighterB,
		Status:        MatchStatusOpen,
		Winner:        WinnerNone,
		Oracle:        oracle,
		Creator:       creator,
		CreatedAt:     now,
		MinBet:        minBet,
		BettingWindow: bettingWindow,
		FeeBps:        feeBps,
	}, nil
}

// IsTerminal reports whether the match is waiting only for settlement.
func (p *MatchPool) IsTerminal() bool {
	return p.Status == MatchStatusResolved || p.Status == MatchStatusCancelled
}

// WinningSideTotal returns the stake on the winning side.
func (p *MatchPool) WinningSideTotal() (uint64, error) {
	switch p.Winner {
	case WinnerSideA:
		return p.SideATotal, nil
	case WinnerSideB:
		return p.SideBTotal, nil
	default:
		return 0, ErrInvalidMatchStatus.Withf("match %s has no winner", p.MatchID)
	}
}

// TotalPool returns the sum of both sides.
func (p *MatchPool) TotalPool() (uint64, error) {
	total, err := fpmath.TotalPool(p.SideATotal, p.SideBTotal)
	if err != nil {
		return 0, ErrOverflow
	}
	return total, nil
}

// AcceptBet checks every bet gate in order and returns the pool with the
// stake recorded. The duplicate-bet check belongs to the caller, which owns
// the bet store.
func (p *MatchPool) AcceptBet(side event.Side, amount uint64, now int64) (*MatchPool, error) {
	if amount == 0 {
		return nil, ErrZeroBetAmount
	}
	if p.Status != MatchStatusOpen {
		return nil, ErrMatchNotOpen.Withf("status %s", p.Status)
	}
	if p.MinBet > 0 && amount < p.MinBet {
		return nil, ErrBetBelowMinimum.Withf("amount %d < min_bet %d", amount, p.MinBet)
	}
	if p.BettingWindow > 0 {
		deadline := p.CreatedAt + p.BettingWindow
		if deadline < p.CreatedAt {
			return nil, ErrOverflow
		}
		if now > deadline {
			return nil, ErrBettingWindowClosed.Withf("now %d > deadline %d", now, deadline)
		}
	}

	next := *p
	var err error
	switch side {
	case event.SideA:
		if next.SideATotal, err = fpmath.CheckedAdd(next.SideATotal, amount); err != nil {
			return nil, ErrOverflow
		}
		if next.SideABetCount, err = fpmath.CheckedAddU32(next.SideABetCount, 1); err != nil {
			return nil, ErrOverflow
		}
	case event.SideB:
		if next.SideBTotal, err = fpmath.CheckedAdd(next.SideBTotal, amount); err != nil {
			return nil, ErrOverflow
		}
		if next.SideBBetCount, err = fpmath.CheckedAddU32(next.SideBBetCount, 1); err != nil {
			return nil, ErrOverflow
		}
	default:
		return nil, ErrInvalidSide.Withf("side code %d", uint8(side))
	}
	if next.BetCount, err = fpmath.CheckedAddU32(next.BetCount, 1); err != nil {
		return nil, ErrOverflow
	}
	return &next, nil
}

// Lock closes betting.
func (p *MatchPool) Lock(now int64) (*MatchPool, error) {
	if !p.Status.CanTransitionTo(MatchStatusLocked) {
		return nil, ErrMatchNotOpen.Withf("status %s", p.Status)
	}
	next := *p
	next.Status = MatchStatusLocked
	next.LockTimestamp = now
	return &next, nil
}

// Resolve records the winner and freezes the winning bet count.
func (p *MatchPool) Resolve(side event.Side, now int64) (*MatchPool, error) {
	if !p.Status.CanTransitionTo(MatchStatusResolved) {
		return nil, ErrMatchNotLocked.Withf("status %s", p.Status)
	}
	winner, err := WinnerFromSide(side)
	if err != nil {
		return nil, err
	}
	next := *p
	next.Status = MatchStatusResolved
	next.Winner = winner
	next.ResolveTimestamp = now
	switch winner {
	case WinnerSideA:
		next.WinningBetCount = p.SideABetCount
	case WinnerSideB:
		next.WinningBetCount = p.SideBBetCount
	}
	return &next, nil
}

// Cancel moves an Open or Locked match to Cancelled.
func (p *MatchPool) Cancel(now int64) (*MatchPool, error) {
	if !p.Status.CanTransitionTo(MatchStatusCancelled) {
		return nil, ErrInvalidMatchStatus.Withf("cannot cancel in status %s", p.Status)
	}
	next := *p
	next.Status = MatchStatusCancelled
	next.CancelTimestamp = now
	return &next, nil
}

// Timeout cancels a Locked match once strictly more than timeout seconds
// have passed since it was locked.
func (p *MatchPool) Timeout(timeout, now int64) (*MatchPool, error) {
	if p.Status != MatchStatusLocked {
		return nil, ErrMatchNotLocked.Withf("status %s", p.Status)
	}
	if fpmath.SaturatingSub(now, p.LockTimestamp) <= timeout {
		return nil, ErrTimeoutNotElapsed.Withf("locked at %d, timeout %d, now %d", p.LockTimestamp, timeout, now)
	}
	return p.Cancel(now)
}

// ClaimWindowElapsed reports whether the abandonment window has passed
// since the given reference timestamp.
func ClaimWindowElapsed(since, now int64) bool {
	return fpmath.SaturatingSub(now, since) >= ClaimWindowSeconds
}

// RequireResolved returns ErrMatchNotResolved unless the match is Resolved.
func (p *MatchPool) RequireResolved() error {
	if p.Status != MatchStatusResolved {
		return ErrMatchNotResolved.Withf("status %s", p.Status)
	}
	return nil
}

// RequireCancelled returns ErrMatchNotCancelled unless the match is Cancelled.
func (p *MatchPool) RequireCancelled() error {
	if p.Status != MatchStatusCancelled {
		return ErrMatchNotCancelled.Withf("status %s", p.Status)
	}
	return nil
}

// ReleaseBet returns the pool with one outstanding bet fewer.
func (p *MatchPool) ReleaseBet(winner bool) (*MatchPool, error) {
	next := *p
	var err error
	if next.BetCount, err = fpmath.CheckedSubU32(next.BetCount, 1); err != nil {
		return nil, ErrOverflow
	}
	if winner {
		if next.WinningBetCount, err = fpmath.CheckedSubU32(next.WinningBetCount, 1); err != nil {
			return nil, ErrOverflow
		}
	}
	return &next, nil
}

// MarkClaimed returns the pool with one winning bet fewer outstanding.
// bet_count is untouched: the claimed record still exists until close_bet.
func (p *MatchPool) MarkClaimed() (*MatchPool, error) {
	next := *p
	var err error
	if next.WinningBetCount, err = fpmath.CheckedSubU32(next.WinningBetCount, 1); err != nil {
		return nil, ErrOverflow
	}
	return &next, nil
}
