package query_test

import (
	"errors"
	"testing"

	"FightPool/internal/event"
	"FightPool/internal/query"
	"FightPool/internal/state"
)

var (
	alice = event.Pubkey{0xa1}
	bob   = event.Pubkey{0xb0}
	carol = event.Pubkey{0xc0}
)

func resolvedPool(sideA, sideB uint64, winner state.Winner) *state.MatchPool {
	return &state.MatchPool{
		MatchID:    event.MatchID{0x01},
		SideATotal: sideA,
		SideBTotal: sideB,
		Status:     state.MatchStatusResolved,
		Winner:     winner,
		FeeBps:     300,
	}
}

func TestSOL(t *testing.T) {
	tests := []struct {
		lamports uint64
		want     string
	}{
		{0, "0"},
		{1, "0.000000001"},
		{150_000, "0.00015"},
		{1_000_000_000, "1"},
		{18_446_744_073_709_551_615, "18446744073.709551615"},
	}
	for _, tt := range tests {
		if got := query.SOL(tt.lamports); got != tt.want {
			t.Errorf("SOL(%d) = %s, want %s", tt.lamports, got, tt.want)
		}
	}
	if got := query.SignedSOL(-2_500_000_000); got != "-2.5" {
		t.Errorf("SignedSOL = %s", got)
	}
}

func TestParseSOL(t *testing.T) {
	got, err := query.ParseSOL("0.01")
	if err != nil || got != 10_000_000 {
		t.Errorf("ParseSOL(0.01) = %d, %v", got, err)
	}
	for _, bad := range []string{"0.0000000001", "-1", "18446744074", "abc"} {
		if _, err := query.ParseSOL(bad); err == nil {
			t.Errorf("ParseSOL(%q) accepted", bad)
		}
	}
}

func TestPoolEconomics(t *testing.T) {
	econ, err := query.PoolEconomics(resolvedPool(4_000_000, 1_000_000, state.WinnerSideA))
	if err != nil {
		t.Fatal(err)
	}
	if econ.Total != 5_000_000 || econ.Fee != 150_000 || econ.Net != 4_850_000 {
		t.Errorf("economics: %+v", econ)
	}
}

func TestBetSettlement(t *testing.T) {
	winnerBet := &state.Bet{Bettor: alice, Side: event.SideA, Amount: 4_000_000}
	loserBet := &state.Bet{Bettor: bob, Side: event.SideB, Amount: 1_000_000}

	tests := []struct {
		name      string
		pool      *state.MatchPool
		bet       *state.Bet
		liveFee   uint16
		wantKind  string
		wantValue uint64
	}{
		{"open", &state.MatchPool{Status: state.MatchStatusOpen}, winnerBet, 300, "", 0},
		{"winner at snapshot fee", resolvedPool(4_000_000, 1_000_000, state.WinnerSideA), winnerBet, 300, query.SettlementPayout, 4_850_000},
		{"winner at live fee", resolvedPool(4_000_000, 1_000_000, state.WinnerSideA), winnerBet, 0, query.SettlementPayout, 5_000_000},
		{"loser", resolvedPool(4_000_000, 1_000_000, state.WinnerSideA), loserBet, 300, query.SettlementLost, 0},
		{"no winners", resolvedPool(0, 1_000_000, state.WinnerSideA), loserBet, 0, query.SettlementNoWinnerRefund, 970_000},
		{"cancelled", &state.MatchPool{Status: state.MatchStatusCancelled}, loserBet, 300, query.SettlementRefund, 1_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, value, err := query.BetSettlement(tt.pool, tt.bet, tt.liveFee)
			if err != nil {
				t.Fatal(err)
			}
			if kind != tt.wantKind || value != tt.wantValue {
				t.Errorf("got %q %d, want %q %d", kind, value, tt.wantKind, tt.wantValue)
			}
		})
	}
}

func TestDistribution(t *testing.T) {
	pool := resolvedPool(3, 7, state.WinnerSideA)
	bets := []*state.Bet{
		{Bettor: carol, Side: event.SideA, Amount: 1},
		{Bettor: alice, Side: event.SideA, Amount: 2},
		{Bettor: bob, Side: event.SideB, Amount: 7},
	}

	dist, err := query.Distribution(pool, bets)
	if err != nil {
		t.Fatal(err)
	}
	// net = 10 - floor(10*300/10000) = 10; alice 10*2/3 = 6, carol 10*1/3 = 3
	if len(dist.Shares) != 2 {
		t.Fatalf("shares: %d", len(dist.Shares))
	}
	if event.Pubkey(dist.Shares[0].Bettor) != alice || dist.Shares[0].Payout != 6 {
		t.Errorf("first share: %+v", dist.Shares[0])
	}
	if dist.Paid != 9 || dist.Dust != 1 {
		t.Errorf("paid %d dust %d", dist.Paid, dist.Dust)
	}
}

func TestDistribution_Rejects(t *testing.T) {
	open := &state.MatchPool{Status: state.MatchStatusOpen}
	if _, err := query.Distribution(open, nil); !errors.Is(err, state.ErrMatchNotResolved) {
		t.Errorf("open pool: %v", err)
	}
	empty := resolvedPool(0, 5, state.WinnerSideA)
	if _, err := query.Distribution(empty, nil); !errors.Is(err, state.ErrNoWinningStake) {
		t.Errorf("no winners: %v", err)
	}
}
