package core

import (
	"fmt"

	"FightPool/internal/event"
	"FightPool/internal/ledger"
	fpmath "FightPool/internal/math"
	"FightPool/internal/state"
)

// globalCheckInterval is how often (in sequences) the full ledger is
// re-verified to be zero-sum.
const globalCheckInterval = 1000

// postCheckInvariants validates invariants after a command is committed.
func (c *EscrowCore) postCheckInvariants(evt event.Event, p *plan) error {
	if p.config != nil {
		if err := state.ValidateFeeBps(p.config.FeeBps); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	if ref := evt.MatchRef(); ref != nil {
		if p.deleteMatch {
			if err := c.validator.ValidateVaultEmpty(*ref); err != nil {
				return err
			}
			if n := c.store.BetCount(*ref); n != 0 {
				return fmt.Errorf("match %s closed with %d bet records", *ref, n)
			}
		} else if pool, err := c.store.Match(*ref); err == nil {
			if err := c.checkMatch(pool); err != nil {
				return err
			}
		}
	}

	if c.sequence%globalCheckInterval == 0 {
		if err := c.validator.ValidateGlobalBalance(); err != nil {
			return fmt.Errorf("at seq %d: %w", c.sequence-1, err)
		}
		if err := c.validator.ValidateVaultsNonNegative(); err != nil {
			return fmt.Errorf("at seq %d: %w", c.sequence-1, err)
		}
	}
	return nil
}

// checkMatch verifies the bookkeeping of one pool against its bet records
// and its vault.
func (c *EscrowCore) checkMatch(pool *state.MatchPool) error {
	bets := c.store.BetsForMatch(pool.MatchID)

	if uint64(len(bets)) != uint64(pool.BetCount) {
		return fmt.Errorf("match %s: bet_count %d, %d bet records", pool.MatchID, pool.BetCount, len(bets))
	}
	if uint64(pool.SideABetCount)+uint64(pool.SideBBetCount) < uint64(pool.BetCount) {
		return fmt.Errorf("match %s: bet_count %d exceeds bets placed %d+%d",
			pool.MatchID, pool.BetCount, pool.SideABetCount, pool.SideBBetCount)
	}

	var unclaimedWinners uint32
	for _, b := range bets {
		if b.Amount == 0 {
			return fmt.Errorf("match %s: zero-amount bet by %s", pool.MatchID, b.Bettor)
		}
		if pool.Status == state.MatchStatusResolved && b.IsWinner(pool.Winner) && !b.Claimed {
			unclaimedWinners++
		}
		if b.Claimed && !b.IsWinner(pool.Winner) {
			return fmt.Errorf("match %s: non-winning bet by %s marked claimed", pool.MatchID, b.Bettor)
		}
	}
	if unclaimedWinners != pool.WinningBetCount {
		return fmt.Errorf("match %s: winning_bet_count %d, %d unclaimed winners",
			pool.MatchID, pool.WinningBetCount, unclaimedWinners)
	}

	if err := c.balanceTracker.ValidateNonNegative(ledger.VaultAccount(pool.MatchID)); err != nil {
		return err
	}

	liveFee := pool.FeeBps
	if cfg, err := c.store.Config(); err == nil {
		liveFee = cfg.FeeBps
	}
	owed, err := Obligations(pool, bets, liveFee)
	if err != nil {
		return fmt.Errorf("match %s obligations: %w", pool.MatchID, err)
	}
	return c.validator.ValidateVaultCovers(pool.MatchID, owed)
}

// Obligations returns the most the vault can still be asked to pay for the
// pool's outstanding bets. Claims price at the live fee and sweeps at the
// snapshot, so payouts are bounded at the lower of the two.
func Obligations(pool *state.MatchPool, bets []*state.Bet, liveFeeBps uint16) (uint64, error) {
	var owed uint64
	var err error

	switch pool.Status {
	case state.MatchStatusOpen, state.MatchStatusLocked, state.MatchStatusCancelled:
		for _, b := range bets {
			if owed, err = fpmath.CheckedAdd(owed, b.Amount); err != nil {
				return 0, err
			}
		}
		return owed, nil

	case state.MatchStatusResolved:
		winningTotal, err := pool.WinningSideTotal()
		if err != nil {
			return 0, err
		}
		total, err := pool.TotalPool()
		if err != nil {
			return 0, err
		}

		if winningTotal == 0 {
			for _, b := range bets {
				refund, err := fpmath.NoWinnersRefund(b.Amount, pool.FeeBps)
				if err != nil {
					return 0, err
				}
				if owed, err = fpmath.CheckedAdd(owed, refund); err != nil {
					return 0, err
				}
			}
			return owed, nil
		}

		fee := liveFeeBps
		if pool.FeeBps < fee {
			fee = pool.FeeBps
		}
		for _, b := range bets {
			if b.Claimed || !b.IsWinner(pool.Winner) {
				continue
			}
			payout, err := fpmath.WinnerPayout(b.Amount, winningTotal, total, fee)
			if err != nil {
				return 0, err
			}
			if owed, err = fpmath.CheckedAdd(owed, payout); err != nil {
				return 0, err
			}
		}
		return owed, nil

	default:
		return 0, state.ErrInvalidMatchStatus.Withf("status %s", pool.Status)
	}
}
