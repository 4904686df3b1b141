package query

import (
	fpmath "FightPool/internal/math"
	"FightPool/internal/state"
)

// Settlement kinds reported on a bet.
const (
	SettlementPayout         = "payout"
	SettlementRefund         = "refund"
	SettlementNoWinnerRefund = "no_winner_refund"
	SettlementLost           = "lost"
)

// PoolEconomics is the total, fee and net pool at the match's snapshotted
// fee rate.
func PoolEconomics(pool *state.MatchPool) (fpmath.PoolBreakdown, error) {
	return fpmath.ComputePool(pool.SideATotal, pool.SideBTotal, pool.FeeBps)
}

// BetSettlement reports what a bet settles for given the pool's current
// state. Winners price at liveFeeBps since claims read the live config.
// An undecided match returns an empty kind.
func BetSettlement(pool *state.MatchPool, bet *state.Bet, liveFeeBps uint16) (string, uint64, error) {
	switch pool.Status {
	case state.MatchStatusCancelled:
		return SettlementRefund, bet.Amount, nil

	case state.MatchStatusResolved:
		winningTotal, err := pool.WinningSideTotal()
		if err != nil {
			return "", 0, err
		}
		if winningTotal == 0 {
			refund, err := fpmath.NoWinnersRefund(bet.Amount, pool.FeeBps)
			return SettlementNoWinnerRefund, refund, err
		}
		if !bet.IsWinner(pool.Winner) {
			return SettlementLost, 0, nil
		}
		total, err := pool.TotalPool()
		if err != nil {
			return "", 0, err
		}
		payout, err := fpmath.WinnerPayout(bet.Amount, winningTotal, total, liveFeeBps)
		return SettlementPayout, payout, err

	default:
		return "", 0, nil
	}
}

// Distribution splits a resolved pool across its winning bets at the
// snapshotted fee. bets may include losers; they are filtered out.
func Distribution(pool *state.MatchPool, bets []*state.Bet) (*fpmath.Distribution, error) {
	if err := pool.RequireResolved(); err != nil {
		return nil, err
	}
	winningTotal, err := pool.WinningSideTotal()
	if err != nil {
		return nil, err
	}
	if winningTotal == 0 {
		return nil, state.ErrNoWinningStake.Withf("nothing staked on %s", pool.Winner)
	}

	stakes := make([]fpmath.Stake, 0, len(bets))
	for _, b := range bets {
		if b.IsWinner(pool.Winner) {
			stakes = append(stakes, fpmath.Stake{Bettor: b.Bettor, Amount: b.Amount})
		}
	}
	return fpmath.ComputeDistribution(pool.SideATotal, pool.SideBTotal, winningTotal, pool.FeeBps, stakes)
}
