package core_test

import (
	"errors"
	"testing"

	"FightPool/internal/core"
	"FightPool/internal/event"
	"FightPool/internal/state"

	"github.com/google/uuid"
)

// --- Test helpers ---

const t0 int64 = 1_700_000_000

var (
	authority = event.Pubkey{0xa0}
	oracle    = event.Pubkey{0x0a}
	treasury  = event.Pubkey{0x7e}
	alice     = event.Pubkey{0xa1}
	bob       = event.Pubkey{0xb0}
	carol     = event.Pubkey{0xc0}
	fighterA  = event.Pubkey{0xfa}
	fighterB  = event.Pubkey{0xfb}
	match1    = event.MatchID{0x01}
	match2    = event.MatchID{0x02}
)

// newTestCore creates an EscrowCore with buffered channels and no DB checker.
func newTestCore() (*core.EscrowCore, chan core.CoreOutput, chan core.CoreOutput) {
	persistChan := make(chan core.CoreOutput, 1024)
	projChan := make(chan core.CoreOutput, 1024)
	c := core.NewEscrowCore(persistChan, projChan, nil, 1024, nil)
	return c, persistChan, projChan
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

func hdr(caller event.Pubkey, ts int64, coSigners ...event.Pubkey) event.Header {
	return event.Header{
		RequestID: uuid.New(),
		Caller:    caller,
		CoSigners: coSigners,
		Timestamp: ts,
	}
}

func mustApply(t *testing.T, c *core.EscrowCore, evt event.Event) *core.CoreOutput {
	t.Helper()
	out, err := c.ProcessEvent(evt)
	if err != nil {
		t.Fatalf("%s rejected: %v", evt.EventType(), err)
	}
	if out == nil {
		t.Fatalf("%s treated as duplicate", evt.EventType())
	}
	return out
}

func mustReject(t *testing.T, c *core.EscrowCore, evt event.Event, want *state.Error) {
	t.Helper()
	before := c.LastSequence()
	if _, err := c.ProcessEvent(evt); err == nil {
		t.Fatalf("%s: expected %s, got success", evt.EventType(), want.Code)
	} else {
		checkErr(t, evt, err, want)
	}
	if c.LastSequence() != before {
		t.Errorf("rejected %s consumed a sequence", evt.EventType())
	}
}

func checkErr(t *testing.T, evt event.Event, err error, want *state.Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("%s: expected %s, got %v", evt.EventType(), want.Code, err)
	}
	if state.KindOf(err) != want.Kind {
		t.Errorf("%s: expected kind %s, got %s", evt.EventType(), want.Kind, state.KindOf(err))
	}
}

func mustInit(t *testing.T, c *core.EscrowCore, feeBps uint16) {
	t.Helper()
	mustApply(t, c, &event.Initialize{
		Header:       hdr(authority, t0),
		FeeBps:       feeBps,
		MatchTimeout: state.DefaultMatchTimeout,
		Oracle:       oracle,
		Treasury:     treasury,
	})
}

func createMatch(id event.MatchID, minBet uint64, window int64, ts int64) *event.CreateMatch {
	return &event.CreateMatch{
		Header:        hdr(authority, ts),
		MatchID:       id,
		FighterA:      fighterA,
		FighterB:      fighterB,
		MinBet:        minBet,
		BettingWindow: window,
	}
}

func placeBet(who event.Pubkey, id event.MatchID, side event.Side, amount uint64, ts int64) *event.PlaceBet {
	return &event.PlaceBet{Header: hdr(who, ts), MatchID: id, Side: side, Amount: amount}
}

func lockMatch(id event.MatchID, ts int64) *event.LockMatch {
	return &event.LockMatch{Header: hdr(oracle, ts), MatchID: id}
}

func resolveMatch(id event.MatchID, winner event.Side, ts int64) *event.ResolveMatch {
	return &event.ResolveMatch{Header: hdr(oracle, ts), MatchID: id, Winner: winner}
}

func claim(who event.Pubkey, id event.MatchID, ts int64) *event.ClaimPayout {
	return &event.ClaimPayout{Header: hdr(who, ts), MatchID: id}
}

func closeBet(who event.Pubkey, id event.MatchID, ts int64) *event.CloseBet {
	return &event.CloseBet{Header: hdr(who, ts), MatchID: id}
}

func closeMatch(id event.MatchID, ts int64) *event.CloseMatch {
	return &event.CloseMatch{Header: hdr(authority, ts), MatchID: id}
}

func withdrawFees(id event.MatchID, ts int64) *event.WithdrawFees {
	return &event.WithdrawFees{Header: hdr(authority, ts), MatchID: id}
}

// openMatch initializes the platform and opens match1 with both gates off.
func openMatch(t *testing.T, feeBps uint16) (*core.EscrowCore, chan core.CoreOutput) {
	t.Helper()
	c, persistCh, _ := newTestCore()
	mustInit(t, c, feeBps)
	mustApply(t, c, createMatch(match1, 0, 0, t0))
	drainOutputs(persistCh)
	return c, persistCh
}

func singleNote(t *testing.T, out *core.CoreOutput, kind event.NotificationKind) event.Notification {
	t.Helper()
	if len(out.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(out.Notifications))
	}
	n := out.Notifications[0]
	if n.Kind != kind {
		t.Fatalf("expected %s, got %s", kind, n.Kind)
	}
	if n.Sequence != out.Envelope.Sequence {
		t.Errorf("notification seq %d, envelope seq %d", n.Sequence, out.Envelope.Sequence)
	}
	return n
}

func mustIntegrity(t *testing.T, c *core.EscrowCore) {
	t.Helper()
	if err := c.CheckIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}
