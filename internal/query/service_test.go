package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/event"
	"FightPool/internal/persistence"
	"FightPool/internal/projection"
	"FightPool/internal/query"
	"FightPool/internal/state"
	"FightPool/internal/testutil"

	"github.com/google/uuid"
)

func TestQueryService_Postgres(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := persistence.NewMigrator(db, nil).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	const t0 int64 = 1_700_000_000
	authority, oracle, treasury := event.Pubkey{0xa0}, event.Pubkey{0x0a}, event.Pubkey{0x7e}
	match1 := event.MatchID{0x01}
	hdr := func(caller event.Pubkey, ts int64) event.Header {
		return event.Header{RequestID: uuid.New(), Caller: caller, Timestamp: ts}
	}

	c := core.NewEscrowCore(nil, nil, nil, 1024, nil)
	cmds := []event.Event{
		&event.Initialize{Header: hdr(authority, t0), FeeBps: 300, MatchTimeout: 1800, Oracle: oracle, Treasury: treasury},
		&event.CreateMatch{Header: hdr(authority, t0), MatchID: match1, BettingWindow: 300},
		&event.PlaceBet{Header: hdr(alice, t0+1), MatchID: match1, Side: event.SideA, Amount: 4_000_000},
		&event.PlaceBet{Header: hdr(bob, t0+2), MatchID: match1, Side: event.SideB, Amount: 1_000_000},
		&event.LockMatch{Header: hdr(oracle, t0+3), MatchID: match1},
		&event.ResolveMatch{Header: hdr(oracle, t0+4), MatchID: match1, Winner: event.SideA},
	}

	writer := persistence.NewEventLogWriter(db)
	pw := projection.NewProjectionWorker(db, nil, nil)
	for _, cmd := range cmds {
		out, err := c.ProcessEvent(cmd)
		if err != nil || out == nil {
			t.Fatalf("%s: %v", cmd.EventType(), err)
		}
		rows := persistence.RowsFromOutput(*out)
		if _, err := writer.WriteTx(ctx, []persistence.EventRow{rows.EventRow}, rows.JournalRows); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := pw.Apply(ctx, projection.FromCoreOutput(*out)); err != nil {
			t.Fatalf("project: %v", err)
		}
	}

	qs := query.NewQueryService(db, c)

	m, err := qs.GetMatch(ctx, match1)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if m.Status != "Resolved" || m.NetPool.Lamports != 4_850_000 || m.AsOfSequence != int64(len(cmds)) {
		t.Errorf("match: %+v", m)
	}

	bet, err := qs.GetBet(ctx, match1, alice)
	if err != nil {
		t.Fatalf("GetBet: %v", err)
	}
	if bet.Settlement != query.SettlementPayout || bet.SettlementValue.Lamports != 4_850_000 {
		t.Errorf("alice bet: %+v", bet)
	}

	if _, err := qs.GetBet(ctx, match1, event.Pubkey{0x99}); !errors.Is(err, state.ErrBetNotFound) {
		t.Errorf("missing bet: %v", err)
	}
	if _, err := qs.GetMatch(ctx, event.MatchID{0x99}); !errors.Is(err, state.ErrMatchNotFound) {
		t.Errorf("missing match: %v", err)
	}

	dist, err := qs.GetDistribution(ctx, match1)
	if err != nil {
		t.Fatalf("GetDistribution: %v", err)
	}
	if len(dist.Shares) != 1 || dist.Dust.Lamports != 0 {
		t.Errorf("distribution: %+v", dist)
	}

	vault, err := qs.GetVaultBalance(ctx, match1)
	if err != nil || vault.Lamports != 5_000_000 {
		t.Errorf("vault: %+v %v", vault, err)
	}

	report, err := qs.VerifyIntegrity(ctx)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !report.IsHealthy || report.EventsChecked != int64(len(cmds)) {
		t.Errorf("integrity: %+v", report)
	}
}
