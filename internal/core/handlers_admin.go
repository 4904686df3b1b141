package core

import (
	"errors"

	"FightPool/internal/event"
	"FightPool/internal/ledger"
	"FightPool/internal/state"
)

func (c *EscrowCore) handleInitialize(ctx cmdCtx, e *event.Initialize) (*plan, error) {
	if c.store.Initialized() {
		return nil, state.ErrAlreadyInitialized
	}
	cfg, err := state.NewPlatformConfig(e.Caller, e.Oracle, e.Treasury, e.FeeBps, e.MatchTimeout)
	if err != nil {
		return nil, err
	}
	return &plan{config: cfg}, nil
}

func (c *EscrowCore) handleUpdateConfig(ctx cmdCtx, e *event.UpdateConfig) (*plan, error) {
	cfg, err := c.requireAuthority(&e.Header)
	if err != nil {
		return nil, err
	}

	next, changes, err := cfg.Apply(state.ConfigUpdate{
		FeeBps:       e.FeeBps,
		MatchTimeout: e.MatchTimeout,
		Paused:       e.Paused,
		Oracle:       e.Oracle,
		Treasury:     e.Treasury,
	})
	if err != nil {
		return nil, err
	}

	notes := make([]event.Notification, 0, len(changes))
	for _, ch := range changes {
		notes = append(notes, event.Notification{
			Sequence: ctx.seq,
			Kind:     event.NotifyConfigUpdated,
			Field:    ch.Field,
			Value:    ch.Value,
		})
	}
	return &plan{config: next, notifications: notes}, nil
}

// handleUpdateAuthority rotates the authority. The incoming key must have
// co-signed so control can never pass to an unreachable identity.
func (c *EscrowCore) handleUpdateAuthority(ctx cmdCtx, e *event.UpdateAuthority) (*plan, error) {
	cfg, err := c.requireAuthority(&e.Header)
	if err != nil {
		return nil, err
	}
	if !e.SignedBy(e.NewAuthority) {
		return nil, state.ErrUnauthorized.Withf("new authority %s did not sign", e.NewAuthority)
	}

	next := *cfg
	next.Authority = e.NewAuthority
	return &plan{
		config: &next,
		notifications: []event.Notification{{
			Sequence: ctx.seq,
			Kind:     event.NotifyAuthorityUpdated,
			Previous: pubkeyRef(cfg.Authority),
			Next:     pubkeyRef(e.NewAuthority),
		}},
	}, nil
}

// --- shared helpers ---

// requireAuthority loads the config and checks the caller is its authority.
func (c *EscrowCore) requireAuthority(h *event.Header) (*state.PlatformConfig, error) {
	cfg, err := c.store.Config()
	if err != nil {
		return nil, err
	}
	if h.Caller != cfg.Authority {
		return nil, state.ErrUnauthorized.Withf("caller %s is not the authority", h.Caller)
	}
	return cfg, nil
}

// requireVault checks the match vault can fund amount before any
// transfer is planned.
func (c *EscrowCore) requireVault(matchID event.MatchID, amount uint64) error {
	have := c.balanceTracker.VaultBalance(matchID)
	if have < 0 || uint64(have) < amount {
		return state.ErrInsufficientVault.Withf("vault %s holds %d, need %d", matchID, have, amount)
	}
	return nil
}

// vaultBalance returns the match vault as an unsigned amount. A negative
// vault cannot exist after commit, so it reads as empty.
func (c *EscrowCore) vaultBalance(matchID event.MatchID) uint64 {
	if have := c.balanceTracker.VaultBalance(matchID); have > 0 {
		return uint64(have)
	}
	return 0
}

func (c *EscrowCore) release(ctx cmdCtx, matchID event.MatchID, dest event.Pubkey, amount uint64, jt ledger.JournalType) (*ledger.Batch, error) {
	batch, err := c.journalGen.GenerateRelease(ctx.ref, ctx.seq, ctx.now, matchID, dest, amount, jt)
	if err != nil {
		return nil, arith(err)
	}
	return batch, nil
}

// arith maps a payout engine failure onto the Arithmetic kind. Domain
// errors pass through.
func arith(err error) error {
	if err == nil {
		return nil
	}
	var de *state.Error
	if errors.As(err, &de) {
		return err
	}
	return state.ErrOverflow.Withf("%v", err)
}

func matchNote(seq int64, kind event.NotificationKind, matchID event.MatchID) event.Notification {
	return event.Notification{Sequence: seq, Kind: kind, MatchID: &matchID}
}

func pubkeyRef(p event.Pubkey) *event.Pubkey {
	return &p
}

func sideRef(s event.Side) *event.Side {
	return &s
}
