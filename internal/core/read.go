package core

import (
	"FightPool/internal/event"
	"FightPool/internal/ledger"
	"FightPool/internal/state"
)

// Read accessors return copies taken under the read lock.

// LastSequence returns the sequence of the last applied command (0 before
// the first).
func (c *EscrowCore) LastSequence() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sequence - 1
}

// GetStateHash returns the current state hash (chain tip).
func (c *EscrowCore) GetStateHash() [32]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasher.GetPrevHash()
}

// Now returns the time of the last accepted command.
func (c *EscrowCore) Now() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clock.Last()
}

func (c *EscrowCore) Config() (state.PlatformConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cfg, err := c.store.Config()
	if err != nil {
		return state.PlatformConfig{}, err
	}
	return *cfg, nil
}

func (c *EscrowCore) Match(id event.MatchID) (state.MatchPool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pool, err := c.store.Match(id)
	if err != nil {
		return state.MatchPool{}, err
	}
	return *pool, nil
}

// Matches returns every live pool in id order.
func (c *EscrowCore) Matches() []state.MatchPool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pools := c.store.Matches()
	out := make([]state.MatchPool, len(pools))
	for i, p := range pools {
		out[i] = *p
	}
	return out
}

func (c *EscrowCore) Bet(matchID event.MatchID, bettor event.Pubkey) (state.Bet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bet, err := c.store.Bet(matchID, bettor)
	if err != nil {
		return state.Bet{}, err
	}
	return *bet, nil
}

// Bets returns a match's outstanding bets ordered by bettor.
func (c *EscrowCore) Bets(matchID event.MatchID) ([]state.Bet, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.store.HasMatch(matchID) {
		return nil, state.ErrMatchNotFound.Withf("match %s", matchID)
	}
	bets := c.store.BetsForMatch(matchID)
	out := make([]state.Bet, len(bets))
	for i, b := range bets {
		out[i] = *b
	}
	return out, nil
}

func (c *EscrowCore) VaultBalance(matchID event.MatchID) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balanceTracker.VaultBalance(matchID)
}

func (c *EscrowCore) WalletBalance(owner event.Pubkey) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balanceTracker.WalletBalance(owner)
}

// Balances returns a copy of every account balance.
func (c *EscrowCore) Balances() map[ledger.AccountKey]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balanceTracker.Snapshot()
}

// MatchObligations returns what a pool's vault still owes, at the current
// live fee.
func (c *EscrowCore) MatchObligations(matchID event.MatchID) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pool, err := c.store.Match(matchID)
	if err != nil {
		return 0, err
	}
	liveFee := pool.FeeBps
	if cfg, err := c.store.Config(); err == nil {
		liveFee = cfg.FeeBps
	}
	return Obligations(pool, c.store.BetsForMatch(matchID), liveFee)
}

// CheckIntegrity re-runs every ledger and per-match invariant.
func (c *EscrowCore) CheckIntegrity() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.validator.ValidateGlobalBalance(); err != nil {
		return err
	}
	if err := c.validator.ValidateVaultsNonNegative(); err != nil {
		return err
	}
	for _, pool := range c.store.Matches() {
		if err := c.checkMatch(pool); err != nil {
			return err
		}
	}
	return nil
}
