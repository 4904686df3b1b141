package projection_test

import (
	"context"
	"testing"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/event"
	"FightPool/internal/persistence"
	"FightPool/internal/projection"
	"FightPool/internal/testutil"

	"github.com/google/uuid"
)

const t0 int64 = 1_700_000_000

var (
	authority = event.Pubkey{0xa0}
	oracle    = event.Pubkey{0x0a}
	treasury  = event.Pubkey{0x7e}
	alice     = event.Pubkey{0xa1}
	bob       = event.Pubkey{0xb0}
	match1    = event.MatchID{0x01}
)

func hdr(caller event.Pubkey, ts int64) event.Header {
	return event.Header{RequestID: uuid.New(), Caller: caller, Timestamp: ts}
}

func apply(t *testing.T, c *core.EscrowCore, evt event.Event) core.CoreOutput {
	t.Helper()
	out, err := c.ProcessEvent(evt)
	if err != nil || out == nil {
		t.Fatalf("%s: out=%v err=%v", evt.EventType(), out, err)
	}
	return *out
}

// settledMatch returns outputs for a match where alice wins against bob and
// claims.
func settledMatch(t *testing.T) (*core.EscrowCore, []core.CoreOutput) {
	t.Helper()
	c := core.NewEscrowCore(nil, nil, nil, 1024, nil)
	outs := []core.CoreOutput{
		apply(t, c, &event.Initialize{Header: hdr(authority, t0), FeeBps: 300, MatchTimeout: 1800, Oracle: oracle, Treasury: treasury}),
		apply(t, c, &event.CreateMatch{Header: hdr(authority, t0), MatchID: match1}),
		apply(t, c, &event.PlaceBet{Header: hdr(alice, t0+1), MatchID: match1, Side: event.SideA, Amount: 4_000_000}),
		apply(t, c, &event.PlaceBet{Header: hdr(bob, t0+2), MatchID: match1, Side: event.SideB, Amount: 1_000_000}),
		apply(t, c, &event.LockMatch{Header: hdr(oracle, t0+3), MatchID: match1}),
		apply(t, c, &event.ResolveMatch{Header: hdr(oracle, t0+4), MatchID: match1, Winner: event.SideA}),
		apply(t, c, &event.ClaimPayout{Header: hdr(alice, t0+5), MatchID: match1}),
		apply(t, c, &event.CloseBet{Header: hdr(bob, t0+6), MatchID: match1}),
	}
	return c, outs
}

func TestFromCoreOutput(t *testing.T) {
	_, outs := settledMatch(t)

	bet := projection.FromCoreOutput(outs[2])
	if bet.EventType != "PlaceBet" || bet.Timestamp != t0+1 || bet.Sequence != 3 {
		t.Errorf("header: %+v", bet)
	}
	if bet.Bet == nil || bet.Bet.Amount != 4_000_000 || bet.Match == nil || bet.Match.SideATotal != 4_000_000 {
		t.Error("bet and pool records should ride along")
	}
	if len(bet.Journals) != 1 || bet.Journals[0].JournalType != "stake" {
		t.Errorf("journals: %+v", bet.Journals)
	}

	closed := projection.FromCoreOutput(outs[7])
	if closed.BetDeleted == nil || closed.BetDeleted.Bettor != bob {
		t.Error("close_bet should carry the deleted key")
	}

	init := projection.FromCoreOutput(outs[0])
	if init.Config == nil || init.MatchID != nil {
		t.Error("initialize carries the config and no match")
	}
}

func TestSettlementsFrom(t *testing.T) {
	_, outs := settledMatch(t)

	if s := projection.SettlementsFrom(projection.FromCoreOutput(outs[2])); len(s) != 0 {
		t.Errorf("stakes are not settlements: %+v", s)
	}

	s := projection.SettlementsFrom(projection.FromCoreOutput(outs[6]))
	if len(s) != 1 {
		t.Fatalf("claim should settle once, got %d", len(s))
	}
	// 5_000_000 pool, 3% fee, alice holds the whole winning side.
	if s[0].Kind != "payout" || s[0].Amount != 4_850_000 || s[0].MatchID != match1 {
		t.Errorf("settlement: %+v", s[0])
	}
	if s[0].Recipient != "wallet:"+alice.String() {
		t.Errorf("recipient: %s", s[0].Recipient)
	}

	if s := projection.SettlementsFrom(projection.FromCoreOutput(outs[7])); len(s) != 0 {
		t.Error("close_bet moves no funds")
	}
}

func TestProjectionWorker_Postgres(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := persistence.NewMigrator(db, nil).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	c, outs := settledMatch(t)
	in := make(chan projection.ProjectionOutput, len(outs)+1)
	for _, out := range outs {
		in <- projection.FromCoreOutput(out)
	}
	in <- projection.FromCoreOutput(outs[3]) // redelivery is ignored
	close(in)

	if err := projection.NewProjectionWorker(db, in, nil).Run(ctx); err != nil {
		t.Fatalf("worker: %v", err)
	}

	var status string
	var betCount int64
	if err := db.QueryRowContext(ctx,
		`SELECT status, bet_count FROM projections.matches WHERE match_id = $1`, match1.String(),
	).Scan(&status, &betCount); err != nil {
		t.Fatalf("match row: %v", err)
	}
	if status != "Resolved" || betCount != 1 {
		t.Errorf("match projection: %s, %d bets", status, betCount)
	}

	var vault int64
	if err := db.QueryRowContext(ctx,
		`SELECT balance FROM projections.balances WHERE account_path = $1`, "vault:"+match1.String(),
	).Scan(&vault); err != nil {
		t.Fatalf("vault row: %v", err)
	}
	if vault != c.VaultBalance(match1) {
		t.Errorf("vault projection %d, core %d", vault, c.VaultBalance(match1))
	}

	if err := projection.RebuildProjections(ctx, db, c.CreateSnapshotState()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	var bets int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projections.bets`).Scan(&bets); err != nil || bets != 1 {
		t.Errorf("rebuilt bets: %d (%v)", bets, err)
	}
}
