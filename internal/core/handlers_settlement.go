package core

import (
	"errors"

	"FightPool/internal/event"
	"FightPool/internal/ledger"
	fpmath "FightPool/internal/math"
	"FightPool/internal/state"
)

// callerBet loads the pool and the caller's own bet in it. A caller with no
// bet is not a bettor of this match.
func (c *EscrowCore) callerBet(h *event.Header, matchID event.MatchID) (*state.MatchPool, *state.Bet, error) {
	pool, err := c.store.Match(matchID)
	if err != nil {
		return nil, nil, err
	}
	bet, err := c.store.Bet(matchID, h.Caller)
	if errors.Is(err, state.ErrBetNotFound) {
		return nil, nil, state.ErrNotBettor.Withf("caller %s has no bet in %s", h.Caller, matchID)
	}
	if err != nil {
		return nil, nil, err
	}
	return pool, bet, nil
}

// namedBet loads the pool and a bet named by the command.
func (c *EscrowCore) namedBet(matchID event.MatchID, bettor event.Pubkey) (*state.MatchPool, *state.Bet, error) {
	pool, err := c.store.Match(matchID)
	if err != nil {
		return nil, nil, err
	}
	bet, err := c.store.Bet(matchID, bettor)
	if err != nil {
		return nil, nil, err
	}
	return pool, bet, nil
}

// winnerPayout checks the bet is an unclaimed winner of a resolved pool and
// prices it at feeBps.
func winnerPayout(pool *state.MatchPool, bet *state.Bet, feeBps uint16) (uint64, error) {
	if err := pool.RequireResolved(); err != nil {
		return 0, err
	}
	if bet.Claimed {
		return 0, state.ErrAlreadyClaimed.Withf("bettor %s", bet.Bettor)
	}
	winningTotal, err := pool.WinningSideTotal()
	if err != nil {
		return 0, err
	}
	if !bet.IsWinner(pool.Winner) {
		return 0, state.ErrBetOnLosingSide.Withf("bet on %s, winner %s", bet.Side, pool.Winner)
	}
	total, err := pool.TotalPool()
	if err != nil {
		return 0, err
	}
	payout, err := fpmath.WinnerPayout(bet.Amount, winningTotal, total, feeBps)
	if err != nil {
		return 0, arith(err)
	}
	return payout, nil
}

// handleClaimPayout pays a winner at the live fee rate. The bet record stays
// (claimed) until close_bet.
func (c *EscrowCore) handleClaimPayout(ctx cmdCtx, e *event.ClaimPayout) (*plan, error) {
	cfg, err := c.store.Config()
	if err != nil {
		return nil, err
	}
	pool, bet, err := c.callerBet(&e.Header, e.MatchID)
	if err != nil {
		return nil, err
	}

	payout, err := winnerPayout(pool, bet, cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	if err := c.requireVault(e.MatchID, payout); err != nil {
		return nil, err
	}

	next, err := pool.MarkClaimed()
	if err != nil {
		return nil, err
	}
	batch, err := c.release(ctx, e.MatchID, bet.Bettor, payout, ledger.JournalTypePayout)
	if err != nil {
		return nil, err
	}

	claimed := *bet
	claimed.Claimed = true

	note := matchNote(ctx.seq, event.NotifyPayoutClaimed, e.MatchID)
	note.Bettor = pubkeyRef(bet.Bettor)
	note.Amount = payout
	return &plan{
		match:         next,
		bet:           &claimed,
		batch:         batch,
		notifications: []event.Notification{note},
	}, nil
}

// handleRefundNoWinners returns a stake less the snapshotted fee when
// nobody backed the winner.
func (c *EscrowCore) handleRefundNoWinners(ctx cmdCtx, e *event.RefundNoWinners) (*plan, error) {
	pool, bet, err := c.callerBet(&e.Header, e.MatchID)
	if err != nil {
		return nil, err
	}
	if err := pool.RequireResolved(); err != nil {
		return nil, err
	}
	if pool.WinningBetCount != 0 {
		return nil, state.ErrWinnersExist.Withf("%d winning bets outstanding", pool.WinningBetCount)
	}
	// Claimed winners also leave winning_bet_count at zero; their side total
	// still tells them apart.
	winningTotal, err := pool.WinningSideTotal()
	if err != nil {
		return nil, err
	}
	if winningTotal != 0 {
		return nil, state.ErrWinnersExist.Withf("winning side staked %d", winningTotal)
	}

	refund, err := fpmath.NoWinnersRefund(bet.Amount, pool.FeeBps)
	if err != nil {
		return nil, arith(err)
	}
	if err := c.requireVault(e.MatchID, refund); err != nil {
		return nil, err
	}

	next, err := pool.ReleaseBet(false)
	if err != nil {
		return nil, err
	}
	batch, err := c.release(ctx, e.MatchID, bet.Bettor, refund, ledger.JournalTypeNoWinnerRefund)
	if err != nil {
		return nil, err
	}

	key := bet.Key()
	note := matchNote(ctx.seq, event.NotifyBetRefunded, e.MatchID)
	note.Bettor = pubkeyRef(bet.Bettor)
	note.Amount = refund
	return &plan{
		match:         next,
		betDeleted:    &key,
		batch:         batch,
		notifications: []event.Notification{note},
	}, nil
}

// handleRefundBet returns the full stake of a cancelled match.
func (c *EscrowCore) handleRefundBet(ctx cmdCtx, e *event.RefundBet) (*plan, error) {
	pool, bet, err := c.callerBet(&e.Header, e.MatchID)
	if err != nil {
		return nil, err
	}
	if err := pool.RequireCancelled(); err != nil {
		return nil, err
	}
	if err := c.requireVault(e.MatchID, bet.Amount); err != nil {
		return nil, err
	}

	next, err := pool.ReleaseBet(false)
	if err != nil {
		return nil, err
	}
	batch, err := c.release(ctx, e.MatchID, bet.Bettor, bet.Amount, ledger.JournalTypeRefund)
	if err != nil {
		return nil, err
	}

	key := bet.Key()
	note := matchNote(ctx.seq, event.NotifyBetRefunded, e.MatchID)
	note.Bettor = pubkeyRef(bet.Bettor)
	note.Amount = bet.Amount
	return &plan{
		match:         next,
		betDeleted:    &key,
		batch:         batch,
		notifications: []event.Notification{note},
	}, nil
}

// handleCloseBet drops a settled bet record of a resolved match. Losing bets
// close freely; winning bets only once claimed.
func (c *EscrowCore) handleCloseBet(ctx cmdCtx, e *event.CloseBet) (*plan, error) {
	pool, bet, err := c.callerBet(&e.Header, e.MatchID)
	if err != nil {
		return nil, err
	}
	if err := pool.RequireResolved(); err != nil {
		return nil, err
	}
	if bet.IsWinner(pool.Winner) && !bet.Claimed {
		return nil, state.ErrNotYetClaimed.Withf("bettor %s", bet.Bettor)
	}

	next, err := pool.ReleaseBet(false)
	if err != nil {
		return nil, err
	}

	key := bet.Key()
	note := matchNote(ctx.seq, event.NotifyBetClosed, e.MatchID)
	note.Bettor = pubkeyRef(bet.Bettor)
	return &plan{
		match:         next,
		betDeleted:    &key,
		notifications: []event.Notification{note},
	}, nil
}

// handleSweepUnclaimed moves an abandoned winning payout to the treasury
// once the claim window has passed since resolution.
func (c *EscrowCore) handleSweepUnclaimed(ctx cmdCtx, e *event.SweepUnclaimed) (*plan, error) {
	cfg, err := c.requireAuthority(&e.Header)
	if err != nil {
		return nil, err
	}
	pool, bet, err := c.namedBet(e.MatchID, e.Bettor)
	if err != nil {
		return nil, err
	}

	payout, err := winnerPayout(pool, bet, pool.FeeBps)
	if err != nil {
		return nil, err
	}
	if !state.ClaimWindowElapsed(pool.ResolveTimestamp, ctx.now) {
		return nil, state.ErrClaimWindowNotElapsed.Withf("resolved at %d, now %d", pool.ResolveTimestamp, ctx.now)
	}
	if err := c.requireVault(e.MatchID, payout); err != nil {
		return nil, err
	}

	next, err := pool.ReleaseBet(true)
	if err != nil {
		return nil, err
	}
	batch, err := c.release(ctx, e.MatchID, cfg.Treasury, payout, ledger.JournalTypeUnclaimedSweep)
	if err != nil {
		return nil, err
	}

	key := bet.Key()
	note := matchNote(ctx.seq, event.NotifyUnclaimedSwept, e.MatchID)
	note.Bettor = pubkeyRef(bet.Bettor)
	note.Amount = payout
	return &plan{
		match:         next,
		betDeleted:    &key,
		batch:         batch,
		notifications: []event.Notification{note},
	}, nil
}

// handleSweepCancelled refunds an abandoned bet of a cancelled match to its
// bettor. Anyone may send it once the claim window has passed.
func (c *EscrowCore) handleSweepCancelled(ctx cmdCtx, e *event.SweepCancelled) (*plan, error) {
	pool, bet, err := c.namedBet(e.MatchID, e.Bettor)
	if err != nil {
		return nil, err
	}
	if err := pool.RequireCancelled(); err != nil {
		return nil, err
	}
	if !state.ClaimWindowElapsed(pool.CancelTimestamp, ctx.now) {
		return nil, state.ErrClaimWindowNotElapsed.Withf("cancelled at %d, now %d", pool.CancelTimestamp, ctx.now)
	}

	amount := fpmath.MinUint64(bet.Amount, c.vaultBalance(e.MatchID))

	next, err := pool.ReleaseBet(false)
	if err != nil {
		return nil, err
	}
	batch, err := c.release(ctx, e.MatchID, bet.Bettor, amount, ledger.JournalTypeCancelledSweep)
	if err != nil {
		return nil, err
	}

	key := bet.Key()
	note := matchNote(ctx.seq, event.NotifyBetRefunded, e.MatchID)
	note.Bettor = pubkeyRef(bet.Bettor)
	note.Amount = amount
	return &plan{
		match:         next,
		betDeleted:    &key,
		batch:         batch,
		notifications: []event.Notification{note},
	}, nil
}

// handleWithdrawFees pays the snapshotted fee to the treasury once every
// winner is settled and the claim window has passed.
func (c *EscrowCore) handleWithdrawFees(ctx cmdCtx, e *event.WithdrawFees) (*plan, error) {
	cfg, err := c.requireAuthority(&e.Header)
	if err != nil {
		return nil, err
	}
	pool, err := c.store.Match(e.MatchID)
	if err != nil {
		return nil, err
	}
	if err := pool.RequireResolved(); err != nil {
		return nil, err
	}
	if pool.FeesWithdrawn {
		return nil, state.ErrFeesAlreadyWithdrawn.Withf("match %s", e.MatchID)
	}
	if pool.WinningBetCount != 0 {
		return nil, state.ErrWinningBetCountNotZero.Withf("%d winners unsettled", pool.WinningBetCount)
	}
	if !state.ClaimWindowElapsed(pool.ResolveTimestamp, ctx.now) {
		return nil, state.ErrClaimWindowNotElapsed.Withf("resolved at %d, now %d", pool.ResolveTimestamp, ctx.now)
	}

	total, err := pool.TotalPool()
	if err != nil {
		return nil, err
	}
	fee, err := fpmath.Fee(total, pool.FeeBps)
	if err != nil {
		return nil, arith(err)
	}
	amount := fpmath.MinUint64(fee, c.vaultBalance(e.MatchID))

	next := *pool
	next.FeesWithdrawn = true
	batch, err := c.release(ctx, e.MatchID, cfg.Treasury, amount, ledger.JournalTypeFeeWithdrawal)
	if err != nil {
		return nil, err
	}

	note := matchNote(ctx.seq, event.NotifyFeesWithdrawn, e.MatchID)
	note.Amount = amount
	return &plan{
		match:         &next,
		batch:         batch,
		notifications: []event.Notification{note},
	}, nil
}
