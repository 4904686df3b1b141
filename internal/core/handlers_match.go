package core

import (
	"FightPool/internal/event"
	"FightPool/internal/ledger"
	"FightPool/internal/state"
)

func (c *EscrowCore) handleCreateMatch(ctx cmdCtx, e *event.CreateMatch) (*plan, error) {
	cfg, err := c.requireAuthority(&e.Header)
	if err != nil {
		return nil, err
	}
	if cfg.Paused {
		return nil, state.ErrPlatformPaused
	}
	if c.store.HasMatch(e.MatchID) {
		return nil, state.ErrMatchExists.Withf("match %s", e.MatchID)
	}

	oracle := cfg.Oracle
	if e.Oracle != nil {
		oracle = *e.Oracle
	}

	pool, err := state.NewMatchPool(
		e.MatchID,
		e.FighterA, e.FighterB,
		oracle, e.Caller,
		cfg.FeeBps,
		e.MinBet,
		e.BettingWindow,
		ctx.now,
	)
	if err != nil {
		return nil, err
	}

	note := matchNote(ctx.seq, event.NotifyMatchCreated, e.MatchID)
	note.FighterA = pubkeyRef(e.FighterA)
	note.FighterB = pubkeyRef(e.FighterB)
	return &plan{match: pool, notifications: []event.Notification{note}}, nil
}

// handlePlaceBet stakes the caller's lamports. Pool gates run before the
// duplicate check so a rejected bet reports why the pool refused it.
func (c *EscrowCore) handlePlaceBet(ctx cmdCtx, e *event.PlaceBet) (*plan, error) {
	pool, err := c.store.Match(e.MatchID)
	if err != nil {
		return nil, err
	}

	next, err := pool.AcceptBet(e.Side, e.Amount, ctx.now)
	if err != nil {
		return nil, err
	}
	if c.store.HasBet(e.MatchID, e.Caller) {
		return nil, state.ErrDuplicateBet.Withf("bettor %s already in match %s", e.Caller, e.MatchID)
	}

	batch, err := c.journalGen.GenerateStake(ctx.ref, ctx.seq, ctx.now, e.MatchID, e.Caller, e.Amount)
	if err != nil {
		return nil, arith(err)
	}

	note := matchNote(ctx.seq, event.NotifyBetPlaced, e.MatchID)
	note.Bettor = pubkeyRef(e.Caller)
	note.Side = sideRef(e.Side)
	note.Amount = e.Amount

	return &plan{
		match: next,
		bet: &state.Bet{
			Bettor:  e.Caller,
			MatchID: e.MatchID,
			Side:    e.Side,
			Amount:  e.Amount,
		},
		batch:         batch,
		notifications: []event.Notification{note},
	}, nil
}

// oracleMatch loads the pool and checks the caller is its oracle.
func (c *EscrowCore) oracleMatch(h *event.Header, matchID event.MatchID) (*state.MatchPool, error) {
	pool, err := c.store.Match(matchID)
	if err != nil {
		return nil, err
	}
	if h.Caller != pool.Oracle {
		return nil, state.ErrOracleUnauthorized.Withf("caller %s is not the oracle of %s", h.Caller, matchID)
	}
	return pool, nil
}

func (c *EscrowCore) handleLockMatch(ctx cmdCtx, e *event.LockMatch) (*plan, error) {
	pool, err := c.oracleMatch(&e.Header, e.MatchID)
	if err != nil {
		return nil, err
	}
	next, err := pool.Lock(ctx.now)
	if err != nil {
		return nil, err
	}
	return &plan{
		match:         next,
		notifications: []event.Notification{matchNote(ctx.seq, event.NotifyMatchLocked, e.MatchID)},
	}, nil
}

func (c *EscrowCore) handleResolveMatch(ctx cmdCtx, e *event.ResolveMatch) (*plan, error) {
	pool, err := c.oracleMatch(&e.Header, e.MatchID)
	if err != nil {
		return nil, err
	}
	next, err := pool.Resolve(e.Winner, ctx.now)
	if err != nil {
		return nil, err
	}

	note := matchNote(ctx.seq, event.NotifyMatchResolved, e.MatchID)
	note.Winner = sideRef(e.Winner)
	return &plan{match: next, notifications: []event.Notification{note}}, nil
}

func (c *EscrowCore) handleCancelMatch(ctx cmdCtx, e *event.CancelMatch) (*plan, error) {
	if _, err := c.requireAuthority(&e.Header); err != nil {
		return nil, err
	}
	pool, err := c.store.Match(e.MatchID)
	if err != nil {
		return nil, err
	}
	next, err := pool.Cancel(ctx.now)
	if err != nil {
		return nil, err
	}
	return &plan{
		match:         next,
		notifications: []event.Notification{matchNote(ctx.seq, event.NotifyMatchCancelled, e.MatchID)},
	}, nil
}

// handleTimeoutMatch lets anyone cancel a match whose oracle went silent.
// The timeout is read from the live config.
func (c *EscrowCore) handleTimeoutMatch(ctx cmdCtx, e *event.TimeoutMatch) (*plan, error) {
	cfg, err := c.store.Config()
	if err != nil {
		return nil, err
	}
	pool, err := c.store.Match(e.MatchID)
	if err != nil {
		return nil, err
	}
	next, err := pool.Timeout(cfg.MatchTimeout, ctx.now)
	if err != nil {
		return nil, err
	}
	return &plan{
		match:         next,
		notifications: []event.Notification{matchNote(ctx.seq, event.NotifyMatchCancelled, e.MatchID)},
	}, nil
}

// handleCloseMatch tears down a pool with no bet records left. Whatever
// floor division left in the vault goes to the authority.
func (c *EscrowCore) handleCloseMatch(ctx cmdCtx, e *event.CloseMatch) (*plan, error) {
	cfg, err := c.requireAuthority(&e.Header)
	if err != nil {
		return nil, err
	}
	pool, err := c.store.Match(e.MatchID)
	if err != nil {
		return nil, err
	}
	if pool.BetCount != 0 {
		return nil, state.ErrBetCountNotZero.Withf("%d bets outstanding", pool.BetCount)
	}

	remainder := c.vaultBalance(e.MatchID)
	batch, err := c.release(ctx, e.MatchID, cfg.Authority, remainder, ledger.JournalTypeVaultClose)
	if err != nil {
		return nil, err
	}

	note := matchNote(ctx.seq, event.NotifyMatchClosed, e.MatchID)
	note.Amount = remainder
	return &plan{
		match:         pool,
		deleteMatch:   true,
		batch:         batch,
		notifications: []event.Notification{note},
	}, nil
}
