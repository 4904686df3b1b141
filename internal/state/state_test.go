package state_test

import (
	"errors"
	"testing"

	"FightPool/internal/event"
	"FightPool/internal/state"
)

func openPool(t *testing.T, minBet uint64, window int64) *state.MatchPool {
	t.Helper()
	p, err := state.NewMatchPool(
		event.MatchID{1}, event.Pubkey{0xa}, event.Pubkey{0xb},
		event.Pubkey{0x0c}, event.Pubkey{0x0d},
		300, minBet, window, 1_000,
	)
	if err != nil {
		t.Fatalf("NewMatchPool: %v", err)
	}
	return p
}

// ============================================================================
// Test: Errors
// ============================================================================

func TestError_IsMatchesOnCode(t *testing.T) {
	err := state.ErrMatchNotOpen.Withf("status %s", state.MatchStatusLocked)
	if !errors.Is(err, state.ErrMatchNotOpen) {
		t.Error("detailed error should match its sentinel")
	}
	if errors.Is(err, state.ErrMatchNotLocked) {
		t.Error("different codes must not match")
	}
	if state.KindOf(err) != state.KindState {
		t.Errorf("got %s, want %s", state.KindOf(err), state.KindState)
	}
}

func TestKindOf_ForeignError(t *testing.T) {
	if k := state.KindOf(errors.New("boom")); k != state.KindInternal {
		t.Errorf("got %s, want Internal", k)
	}
}

// ============================================================================
// Test: PlatformConfig
// ============================================================================

func TestNewPlatformConfig_Validation(t *testing.T) {
	if _, err := state.NewPlatformConfig(event.Pubkey{1}, event.Pubkey{2}, event.Pubkey{3}, 1001, 1800); !errors.Is(err, state.ErrInvalidFeeBps) {
		t.Errorf("fee 1001: got %v, want InvalidFeeBps", err)
	}
	if _, err := state.NewPlatformConfig(event.Pubkey{1}, event.Pubkey{2}, event.Pubkey{3}, 1000, 0); !errors.Is(err, state.ErrInvalidTimeout) {
		t.Errorf("timeout 0: got %v, want InvalidTimeout", err)
	}
	cfg, err := state.NewPlatformConfig(event.Pubkey{1}, event.Pubkey{2}, event.Pubkey{3}, 1000, 1)
	if err != nil {
		t.Fatalf("boundary values should pass: %v", err)
	}
	if cfg.Paused {
		t.Error("new config should be unpaused")
	}
}

func TestPlatformConfig_ApplyReportsEveryField(t *testing.T) {
	cfg, _ := state.NewPlatformConfig(event.Pubkey{1}, event.Pubkey{2}, event.Pubkey{3}, 300, 1800)

	fee := uint16(500)
	timeout := int64(60)
	paused := true
	oracle := event.Pubkey{9}
	treasury := event.Pubkey{8}

	next, changes, err := cfg.Apply(state.ConfigUpdate{
		FeeBps:       &fee,
		MatchTimeout: &timeout,
		Paused:       &paused,
		Oracle:       &oracle,
		Treasury:     &treasury,
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	want := []state.ConfigChange{
		{Field: "fee_bps", Value: 500},
		{Field: "match_timeout", Value: 60},
		{Field: "paused", Value: 1},
		{Field: "oracle", Value: 0},
		{Field: "treasury", Value: 0},
	}
	if len(changes) != len(want) {
		t.Fatalf("got %d changes, want %d", len(changes), len(want))
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d: got %+v, want %+v", i, changes[i], want[i])
		}
	}
	if next.FeeBps != 500 || next.Oracle != oracle || !next.Paused {
		t.Errorf("fields not applied: %+v", next)
	}
	if cfg.FeeBps != 300 {
		t.Error("Apply must not mutate the receiver")
	}
}

func TestPlatformConfig_ApplyRejectsBeforeMutating(t *testing.T) {
	cfg, _ := state.NewPlatformConfig(event.Pubkey{1}, event.Pubkey{2}, event.Pubkey{3}, 300, 1800)
	fee := uint16(1001)
	paused := true

	_, _, err := cfg.Apply(state.ConfigUpdate{FeeBps: &fee, Paused: &paused})
	if !errors.Is(err, state.ErrInvalidFeeBps) {
		t.Fatalf("got %v, want InvalidFeeBps", err)
	}
	if cfg.Paused {
		t.Error("rejected update leaked a field")
	}
}

// ============================================================================
// Test: MatchPool lifecycle
// ============================================================================

func TestMatchStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to state.MatchStatus
		want     bool
	}{
		{state.MatchStatusOpen, state.MatchStatusLocked, true},
		{state.MatchStatusOpen, state.MatchStatusCancelled, true},
		{state.MatchStatusOpen, state.MatchStatusResolved, false},
		{state.MatchStatusLocked, state.MatchStatusResolved, true},
		{state.MatchStatusLocked, state.MatchStatusCancelled, true},
		{state.MatchStatusResolved, state.MatchStatusCancelled, false},
		{state.MatchStatusCancelled, state.MatchStatusOpen, false},
		{state.MatchStatusOpen, state.MatchStatusOpen, false},
		{state.MatchStatusResolved, state.MatchStatusResolved, false},
		{state.MatchStatus(99), state.MatchStatusCancelled, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s → %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNewMatchPool_NegativeWindow(t *testing.T) {
	_, err := state.NewMatchPool(event.MatchID{1}, event.Pubkey{}, event.Pubkey{}, event.Pubkey{}, event.Pubkey{}, 300, 0, -1, 0)
	if !errors.Is(err, state.ErrInvalidBettingWindow) {
		t.Errorf("got %v, want InvalidBettingWindow", err)
	}
}

func TestAcceptBet_GateOrder(t *testing.T) {
	p := openPool(t, 10_000_000, 300)

	tests := []struct {
		name   string
		side   event.Side
		amount uint64
		now    int64
		want   error
	}{
		{"zero amount wins over closed window", event.SideA, 0, 99_999, state.ErrZeroBetAmount},
		{"below minimum", event.SideA, 9_999_999, 1_000, state.ErrBetBelowMinimum},
		{"at minimum", event.SideA, 10_000_000, 1_000, nil},
		{"at deadline", event.SideB, 10_000_000, 1_300, nil},
		{"past deadline", event.SideB, 10_000_000, 1_301, state.ErrBettingWindowClosed},
		{"bad side", event.Side(2), 10_000_000, 1_000, state.ErrInvalidSide},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.AcceptBet(tt.side, tt.amount, tt.now)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAcceptBet_DisabledGates(t *testing.T) {
	p := openPool(t, 0, 0)
	next, err := p.AcceptBet(event.SideA, 1, 1<<40)
	if err != nil {
		t.Fatalf("gates disabled, got %v", err)
	}
	if next.SideATotal != 1 || next.SideABetCount != 1 || next.BetCount != 1 {
		t.Errorf("counters not advanced: %+v", next)
	}
	if p.BetCount != 0 {
		t.Error("AcceptBet must not mutate the receiver")
	}
}

func TestAcceptBet_WindowOverflow(t *testing.T) {
	p := openPool(t, 0, 1<<62)
	p.CreatedAt = 1 << 62
	_, err := p.AcceptBet(event.SideA, 1, 0)
	if !errors.Is(err, state.ErrOverflow) {
		t.Errorf("got %v, want Overflow", err)
	}
}

func TestAcceptBet_NotOpen(t *testing.T) {
	p := openPool(t, 0, 0)
	locked, _ := p.Lock(1_100)
	_, err := locked.AcceptBet(event.SideA, 1, 1_100)
	if !errors.Is(err, state.ErrMatchNotOpen) {
		t.Errorf("got %v, want MatchNotOpen", err)
	}
}

func TestResolve_SetsWinningBetCount(t *testing.T) {
	p := openPool(t, 0, 0)
	p, _ = p.AcceptBet(event.SideA, 5, 1_000)
	p.SideABetCount = 3
	p.SideBBetCount = 7
	locked, _ := p.Lock(1_001)

	if _, err := locked.Resolve(event.Side(9), 1_002); !errors.Is(err, state.ErrInvalidSide) {
		t.Errorf("got %v, want InvalidSide", err)
	}

	resolved, err := locked.Resolve(event.SideB, 1_002)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resolved.WinningBetCount != 7 || resolved.Winner != state.WinnerSideB {
		t.Errorf("got count %d winner %s, want 7 SideB", resolved.WinningBetCount, resolved.Winner)
	}
	if _, err := p.Resolve(event.SideA, 1_003); !errors.Is(err, state.ErrMatchNotLocked) {
		t.Errorf("resolve from Open: got %v, want MatchNotLocked", err)
	}
}

func TestTimeout_StrictlyGreater(t *testing.T) {
	p := openPool(t, 0, 0)
	locked, _ := p.Lock(2_000)

	if _, err := locked.Timeout(1_800, 3_800); !errors.Is(err, state.ErrTimeoutNotElapsed) {
		t.Errorf("elapsed == timeout: got %v, want TimeoutNotElapsed", err)
	}
	cancelled, err := locked.Timeout(1_800, 3_801)
	if err != nil {
		t.Fatalf("elapsed > timeout: %v", err)
	}
	if cancelled.Status != state.MatchStatusCancelled || cancelled.CancelTimestamp != 3_801 {
		t.Errorf("got %+v", cancelled)
	}
	if _, err := p.Timeout(1_800, 9_999); !errors.Is(err, state.ErrMatchNotLocked) {
		t.Errorf("timeout from Open: got %v, want MatchNotLocked", err)
	}
}

func TestCancel_TerminalStates(t *testing.T) {
	p := openPool(t, 0, 0)
	cancelled, err := p.Cancel(1_001)
	if err != nil {
		t.Fatalf("cancel Open: %v", err)
	}
	if _, err := cancelled.Cancel(1_002); !errors.Is(err, state.ErrInvalidMatchStatus) {
		t.Errorf("cancel Cancelled: got %v, want InvalidMatchStatus", err)
	}
}

func TestClaimWindowElapsed(t *testing.T) {
	if state.ClaimWindowElapsed(100, 100+state.ClaimWindowSeconds-1) {
		t.Error("one second short should not elapse")
	}
	if !state.ClaimWindowElapsed(100, 100+state.ClaimWindowSeconds) {
		t.Error("exact window should elapse")
	}
	if state.ClaimWindowElapsed(100, 50) {
		t.Error("clock behind reference saturates to zero")
	}
}

func TestBet_IsWinner(t *testing.T) {
	b := &state.Bet{Side: event.SideB}
	if b.IsWinner(state.WinnerSideA) || !b.IsWinner(state.WinnerSideB) || b.IsWinner(state.WinnerNone) {
		t.Error("IsWinner mismatch")
	}
}

// ============================================================================
// Test: Store
// ============================================================================

func TestStore_BetIndex(t *testing.T) {
	s := state.NewStore()
	m := event.MatchID{7}
	s.PutBet(&state.Bet{MatchID: m, Bettor: event.Pubkey{2}, Amount: 1})
	s.PutBet(&state.Bet{MatchID: m, Bettor: event.Pubkey{1}, Amount: 2})

	bets := s.BetsForMatch(m)
	if len(bets) != 2 || bets[0].Bettor != (event.Pubkey{1}) {
		t.Fatalf("bets not ordered by bettor: %+v", bets)
	}

	s.DeleteBet(m, event.Pubkey{1})
	if s.HasBet(m, event.Pubkey{1}) {
		t.Error("deleted bet still present")
	}
	if _, err := s.Bet(m, event.Pubkey{1}); !errors.Is(err, state.ErrBetNotFound) {
		t.Errorf("got %v, want BetNotFound", err)
	}
}

func TestStore_ConfigBeforeInitialize(t *testing.T) {
	s := state.NewStore()
	if _, err := s.Config(); !errors.Is(err, state.ErrNotInitialized) {
		t.Errorf("got %v, want NotInitialized", err)
	}
}
