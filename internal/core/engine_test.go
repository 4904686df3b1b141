package core_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/event"
	"FightPool/internal/state"

	"github.com/google/uuid"
)

// ============================================================================
// Test: Platform config
// ============================================================================

func TestInitialize_Once(t *testing.T) {
	c, _, _ := newTestCore()

	mustReject(t, c, createMatch(match1, 0, 0, t0), state.ErrNotInitialized)
	mustReject(t, c, &event.Initialize{Header: hdr(authority, t0), FeeBps: 1001, MatchTimeout: 1800}, state.ErrInvalidFeeBps)
	mustReject(t, c, &event.Initialize{Header: hdr(authority, t0), FeeBps: 300, MatchTimeout: 0}, state.ErrInvalidTimeout)

	mustInit(t, c, state.DefaultFeeBps)
	cfg, err := c.Config()
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.Authority != authority || cfg.Oracle != oracle || cfg.Treasury != treasury || cfg.Paused {
		t.Errorf("unexpected config %+v", cfg)
	}

	mustReject(t, c, &event.Initialize{Header: hdr(bob, t0+1), FeeBps: 0, MatchTimeout: 1}, state.ErrAlreadyInitialized)
}

func TestUpdateConfig_NotifiesEachField(t *testing.T) {
	c, _, _ := newTestCore()
	mustInit(t, c, 300)

	fee := uint16(500)
	paused := true
	newTreasury := event.Pubkey{0x55}
	out := mustApply(t, c, &event.UpdateConfig{
		Header:   hdr(authority, t0+1),
		Treasury: &newTreasury,
		Paused:   &paused,
		FeeBps:   &fee,
	})

	want := []struct {
		field string
		value uint64
	}{
		{"fee_bps", 500},
		{"paused", 1},
		{"treasury", 0},
	}
	if len(out.Notifications) != len(want) {
		t.Fatalf("expected %d notifications, got %d", len(want), len(out.Notifications))
	}
	for i, w := range want {
		n := out.Notifications[i]
		if n.Kind != event.NotifyConfigUpdated || n.Field != w.field || n.Value != w.value {
			t.Errorf("notification %d: got %s %s=%d, want %s=%d", i, n.Kind, n.Field, n.Value, w.field, w.value)
		}
	}

	cfg, _ := c.Config()
	if cfg.FeeBps != 500 || !cfg.Paused || cfg.Treasury != newTreasury {
		t.Errorf("config not updated: %+v", cfg)
	}

	mustReject(t, c, createMatch(match1, 0, 0, t0+2), state.ErrPlatformPaused)
}

func TestUpdateConfig_ValidatesBeforeApplying(t *testing.T) {
	c, _, _ := newTestCore()
	mustInit(t, c, 300)

	tooHigh := uint16(1001)
	paused := true
	mustReject(t, c, &event.UpdateConfig{Header: hdr(authority, t0+1), FeeBps: &tooHigh, Paused: &paused}, state.ErrInvalidFeeBps)

	zero := int64(0)
	mustReject(t, c, &event.UpdateConfig{Header: hdr(authority, t0+1), MatchTimeout: &zero}, state.ErrInvalidTimeout)

	fee := uint16(100)
	mustReject(t, c, &event.UpdateConfig{Header: hdr(bob, t0+1), FeeBps: &fee}, state.ErrUnauthorized)

	cfg, _ := c.Config()
	if cfg.FeeBps != 300 || cfg.Paused || cfg.MatchTimeout != state.DefaultMatchTimeout {
		t.Errorf("rejected updates leaked: %+v", cfg)
	}
}

func TestUpdateAuthority_RequiresBothSignatures(t *testing.T) {
	c, _, _ := newTestCore()
	mustInit(t, c, 300)
	newAuth := event.Pubkey{0xaa}

	mustReject(t, c, &event.UpdateAuthority{Header: hdr(authority, t0+1), NewAuthority: newAuth}, state.ErrUnauthorized)
	mustReject(t, c, &event.UpdateAuthority{Header: hdr(newAuth, t0+1, authority), NewAuthority: newAuth}, state.ErrUnauthorized)

	out := mustApply(t, c, &event.UpdateAuthority{Header: hdr(authority, t0+1, newAuth), NewAuthority: newAuth})
	n := singleNote(t, out, event.NotifyAuthorityUpdated)
	if *n.Previous != authority || *n.Next != newAuth {
		t.Errorf("rotation note: %+v", n)
	}

	mustReject(t, c, createMatch(match1, 0, 0, t0+2), state.ErrUnauthorized)
	mustApply(t, c, &event.CreateMatch{Header: hdr(newAuth, t0+2), MatchID: match1, FighterA: fighterA, FighterB: fighterB})
}

// ============================================================================
// Test: Match creation and oracle
// ============================================================================

func TestCreateMatch(t *testing.T) {
	c, _, _ := newTestCore()
	mustInit(t, c, 250)

	paused := true
	mustApply(t, c, &event.UpdateConfig{Header: hdr(authority, t0), Paused: &paused})
	mustReject(t, c, &event.CreateMatch{Header: hdr(bob, t0), MatchID: match1}, state.ErrUnauthorized)
	mustReject(t, c, createMatch(match1, 0, 0, t0), state.ErrPlatformPaused)
	paused = false
	mustApply(t, c, &event.UpdateConfig{Header: hdr(authority, t0), Paused: &paused})

	mustReject(t, c, createMatch(match1, 0, -1, t0), state.ErrInvalidBettingWindow)

	out := mustApply(t, c, createMatch(match1, 5, 60, t0+3))
	n := singleNote(t, out, event.NotifyMatchCreated)
	if *n.FighterA != fighterA || *n.FighterB != fighterB || *n.MatchID != match1 {
		t.Errorf("created note: %+v", n)
	}
	pool, _ := c.Match(match1)
	if pool.Status != state.MatchStatusOpen || pool.CreatedAt != t0+3 || pool.FeeBps != 250 ||
		pool.Oracle != oracle || pool.Creator != authority || pool.MinBet != 5 || pool.BettingWindow != 60 {
		t.Errorf("unexpected pool %+v", pool)
	}

	mustReject(t, c, createMatch(match1, 0, 0, t0+4), state.ErrMatchExists)
}

func TestOracleOverride(t *testing.T) {
	c, _, _ := newTestCore()
	mustInit(t, c, 300)
	mustApply(t, c, &event.CreateMatch{Header: hdr(authority, t0), MatchID: match1, Oracle: &carol})

	mustReject(t, c, lockMatch(match1, t0+1), state.ErrOracleUnauthorized)
	mustApply(t, c, &event.LockMatch{Header: hdr(carol, t0+1), MatchID: match1})
	mustReject(t, c, resolveMatch(match1, event.SideA, t0+2), state.ErrOracleUnauthorized)
	mustReject(t, c, &event.ResolveMatch{Header: hdr(carol, t0+2), MatchID: match1, Winner: event.Side(7)}, state.ErrInvalidSide)

	out := mustApply(t, c, &event.ResolveMatch{Header: hdr(carol, t0+2), MatchID: match1, Winner: event.SideB})
	if n := singleNote(t, out, event.NotifyMatchResolved); *n.Winner != event.SideB {
		t.Errorf("winner: %s", n.Winner)
	}
}

func TestResolve_RequiresLocked(t *testing.T) {
	c, _ := openMatch(t, 300)
	mustReject(t, c, resolveMatch(match1, event.SideA, t0+1), state.ErrMatchNotLocked)
}

// ============================================================================
// Test: Idempotency, envelope and hash chain
// ============================================================================

func TestIdempotency_DuplicateIgnored(t *testing.T) {
	c, persistCh := openMatch(t, 300)

	bet := placeBet(alice, match1, event.SideA, 1_000, t0+1)
	mustApply(t, c, bet)
	if n := len(drainOutputs(persistCh)); n != 1 {
		t.Fatalf("expected 1 output on first process, got %d", n)
	}
	seq := c.LastSequence()

	out, err := c.ProcessEvent(bet)
	if err != nil || out != nil {
		t.Fatalf("duplicate: got out=%v err=%v", out, err)
	}
	if n := len(drainOutputs(persistCh)); n != 0 {
		t.Errorf("expected 0 outputs for duplicate, got %d", n)
	}
	if c.LastSequence() != seq {
		t.Error("duplicate consumed a sequence")
	}
	if got := c.VaultBalance(match1); got != 1_000 {
		t.Errorf("duplicate staked twice: vault %d", got)
	}
}

func TestProcessEvent_MissingRequestID(t *testing.T) {
	c, _, _ := newTestCore()
	evt := &event.Initialize{Header: event.Header{Caller: authority, Timestamp: t0}, FeeBps: 300, MatchTimeout: 1800}
	if _, err := c.ProcessEvent(evt); err == nil {
		t.Fatal("command without request id should be rejected")
	}
}

func TestEnvelope_HasCorrectFields(t *testing.T) {
	c, persistCh, _ := newTestCore()
	mustInit(t, c, 300)
	genesis := core.GenesisHash()

	create := createMatch(match1, 0, 0, t0+9)
	mustApply(t, c, create)

	outputs := drainOutputs(persistCh)
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	initEnv, env := outputs[0].Envelope, outputs[1].Envelope

	if initEnv.Sequence != 1 || env.Sequence != 2 {
		t.Errorf("sequences: %d, %d", initEnv.Sequence, env.Sequence)
	}
	if initEnv.PrevHash != genesis {
		t.Error("first envelope should chain from genesis")
	}
	if env.PrevHash != initEnv.StateHash {
		t.Error("envelope prev_hash should be the previous state hash")
	}
	if env.IdempotencyKey != create.IdempotencyKey() {
		t.Errorf("idempotency key mismatch: %s vs %s", env.IdempotencyKey, create.IdempotencyKey())
	}
	if env.EventType != event.EventTypeCreateMatch {
		t.Errorf("event type mismatch: %v", env.EventType)
	}
	if initEnv.MatchID != nil || env.MatchID == nil || *env.MatchID != match1 {
		t.Error("match id not carried correctly")
	}
	if env.Timestamp.Unix() != t0+9 {
		t.Errorf("timestamp: %v", env.Timestamp)
	}
	if c.GetStateHash() != env.StateHash {
		t.Error("chain tip should equal the last state hash")
	}

	decoded, err := event.Decode(env.EventType, env.Payload)
	if err != nil {
		t.Fatalf("payload should decode: %v", err)
	}
	if decoded.(*event.CreateMatch).MatchID != match1 {
		t.Error("payload does not round-trip the command")
	}
}

// scenario runs a fixed command list covering every settlement path and
// returns the persisted outputs.
func scenario(t *testing.T, c *core.EscrowCore, persistCh chan core.CoreOutput) []core.CoreOutput {
	t.Helper()
	w := state.ClaimWindowSeconds
	cmds := []event.Event{
		&event.Initialize{Header: hdr(authority, t0), FeeBps: 300, MatchTimeout: 1800, Oracle: oracle, Treasury: treasury},
		createMatch(match1, 0, 0, t0),
		createMatch(match2, 0, 0, t0),
		placeBet(alice, match1, event.SideA, 6_000_000, t0+1),
		placeBet(bob, match1, event.SideA, 2_000_000, t0+2),
		placeBet(carol, match1, event.SideB, 2_000_000, t0+3),
		placeBet(alice, match2, event.SideB, 9_000_000, t0+4),
		lockMatch(match1, t0+10),
		resolveMatch(match1, event.SideA, t0+20),
		&event.CancelMatch{Header: hdr(authority, t0+21), MatchID: match2},
		claim(alice, match1, t0+30),
		closeBet(carol, match1, t0+31),
		&event.SweepUnclaimed{Header: hdr(authority, t0+20+w), MatchID: match1, Bettor: bob},
		&event.SweepCancelled{Header: hdr(carol, t0+21+w), MatchID: match2, Bettor: alice},
		withdrawFees(match1, t0+22+w),
		closeBet(alice, match1, t0+23+w),
		closeMatch(match1, t0+24+w),
		closeMatch(match2, t0+25+w),
	}
	for _, cmd := range cmds {
		mustApply(t, c, cmd)
	}
	return drainOutputs(persistCh)
}

func TestReplay_ReproducesChain(t *testing.T) {
	c, persistCh, _ := newTestCore()
	logged := scenario(t, c, persistCh)
	mustIntegrity(t, c)

	replica := core.NewEscrowCore(nil, nil, nil, 1024, nil)
	for _, out := range logged {
		if err := replica.Replay(out.Envelope); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if replica.GetStateHash() != c.GetStateHash() {
		t.Error("replayed chain tip differs")
	}
	if replica.LastSequence() != c.LastSequence() {
		t.Errorf("sequence: %d vs %d", replica.LastSequence(), c.LastSequence())
	}
	for _, who := range []event.Pubkey{alice, bob, carol, treasury, authority} {
		if replica.WalletBalance(who) != c.WalletBalance(who) {
			t.Errorf("wallet %s differs after replay", who)
		}
	}
	if len(replica.Matches()) != 0 {
		t.Error("both matches should be closed")
	}
}

func TestReplay_DetectsTampering(t *testing.T) {
	c, persistCh, _ := newTestCore()
	mustInit(t, c, 300)
	mustApply(t, c, createMatch(match1, 0, 0, t0))
	logged := drainOutputs(persistCh)

	replica := core.NewEscrowCore(nil, nil, nil, 1024, nil)
	if err := replica.Replay(logged[0].Envelope); err != nil {
		t.Fatalf("replay: %v", err)
	}
	tampered := *logged[1].Envelope
	tampered.StateHash[0] ^= 0xff
	if err := replica.Replay(&tampered); err == nil {
		t.Error("tampered hash should fail replay")
	}

	gap := *logged[1].Envelope
	gap.Sequence = 5
	if err := core.NewEscrowCore(nil, nil, nil, 16, nil).Replay(&gap); err == nil {
		t.Error("out-of-order envelope should fail replay")
	}
}

func TestSnapshot_RestoreContinuesChain(t *testing.T) {
	c, _ := openMatch(t, 300)
	mustApply(t, c, placeBet(alice, match1, event.SideA, 4_000_000, t0+1))
	mustApply(t, c, placeBet(bob, match1, event.SideB, 1_000_000, t0+2))
	mustApply(t, c, lockMatch(match1, t0+3))

	snap := c.CreateSnapshotState()
	restored := core.NewEscrowCore(nil, nil, nil, 1024, nil)
	if err := restored.RestoreFromSnapshot(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.GetStateHash() != c.GetStateHash() || restored.Now() != c.Now() {
		t.Fatal("restored core does not match")
	}

	next := resolveMatch(match1, event.SideA, t0+4)
	a := mustApply(t, c, next)
	b, err := restored.ProcessEvent(next)
	if err != nil {
		t.Fatalf("restored core rejected: %v", err)
	}
	if b == nil {
		t.Fatal("snapshot should not carry the unseen request id")
	}
	if a.Envelope.StateHash != b.Envelope.StateHash || a.Envelope.Sequence != b.Envelope.Sequence {
		t.Error("cores diverged after restore")
	}

	// Keys applied before the snapshot stay deduplicated.
	dup := placeBet(alice, match1, event.SideA, 4_000_000, t0+1)
	dup.RequestID = snapRequestID(t, snap)
	if out, err := restored.ProcessEvent(dup); err != nil || out != nil {
		t.Errorf("pre-snapshot request id should dedup, got out=%v err=%v", out, err)
	}
}

func snapRequestID(t *testing.T, snap *core.SnapshotState) uuid.UUID {
	t.Helper()
	for _, key := range snap.IdempotencyKeys {
		const prefix = "PlaceBet:"
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			parsed, err := uuid.Parse(key[len(prefix):])
			if err != nil {
				t.Fatalf("bad key %q: %v", key, err)
			}
			return parsed
		}
	}
	t.Fatal("no PlaceBet key in snapshot")
	return uuid.Nil
}

func TestRestore_RejectsInconsistentSnapshot(t *testing.T) {
	c, _ := openMatch(t, 300)
	mustApply(t, c, placeBet(alice, match1, event.SideA, 4_000_000, t0+1))

	snap := c.CreateSnapshotState()
	snap.Matches[0].BetCount = 2
	if err := core.NewEscrowCore(nil, nil, nil, 16, nil).RestoreFromSnapshot(snap); err == nil {
		t.Error("bet_count mismatch should fail restore")
	}
}

// ============================================================================
// Test: Channels and runner
// ============================================================================

func TestProjectionChannel_DropsOnFull(t *testing.T) {
	persistCh := make(chan core.CoreOutput, 1024)
	projCh := make(chan core.CoreOutput, 1) // fills after one output
	c := core.NewEscrowCore(persistCh, projCh, nil, 1024, nil)

	mustInit(t, c, 300)
	for i := byte(0); i < 4; i++ {
		mustApply(t, c, createMatch(event.MatchID{0x10 + i}, 0, 0, t0))
	}

	if n := len(drainOutputs(persistCh)); n != 5 {
		t.Errorf("expected 5 persist outputs, got %d", n)
	}
	if n := len(drainOutputs(projCh)); n != 1 {
		t.Errorf("expected 1 projection output, got %d", n)
	}
}

func TestRun_SerializesSubmissions(t *testing.T) {
	c := core.NewEscrowCore(nil, nil, nil, 1024, nil)
	in := make(chan core.Submission)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, in) }()

	init := &event.Initialize{Header: hdr(authority, t0), FeeBps: 300, MatchTimeout: 1800, Oracle: oracle, Treasury: treasury}
	res, err := core.Submit(ctx, in, init, "test")
	if err != nil || res.Err != nil || res.Output == nil {
		t.Fatalf("submit: res=%+v err=%v", res, err)
	}

	res, err = core.Submit(ctx, in, init, "test")
	if err != nil || !res.Duplicate {
		t.Errorf("resubmission should be a duplicate: res=%+v err=%v", res, err)
	}

	res, err = core.Submit(ctx, in, &event.Initialize{Header: hdr(authority, t0), FeeBps: 300, MatchTimeout: 1800}, "test")
	if err != nil || state.CodeOf(res.Err) != state.ErrAlreadyInitialized.Code {
		t.Errorf("expected AlreadyInitialized, got res=%+v err=%v", res, err)
	}

	close(in)
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

// ============================================================================
// Test: Solvency under random interleavings
// ============================================================================

func TestSolvency_RandomSettlement(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 20; round++ {
		c, _, _ := newTestCore()
		mustInit(t, c, uint16(rng.Intn(int(state.MaxFeeBps)+1)))
		mustApply(t, c, createMatch(match1, 0, 0, t0))

		bettors := make([]event.Pubkey, 2+rng.Intn(10))
		var sides [2]uint64
		for i := range bettors {
			bettors[i] = event.Pubkey{0x40, byte(round), byte(i)}
			side := event.Side(rng.Intn(2))
			amount := uint64(1 + rng.Int63n(5_000_000_000))
			mustApply(t, c, placeBet(bettors[i], match1, side, amount, t0+1))
			sides[side] += amount
		}
		mustApply(t, c, lockMatch(match1, t0+2))
		winner := event.Side(rng.Intn(2))
		mustApply(t, c, resolveMatch(match1, winner, t0+3))

		ts := t0 + 4
		var paid uint64
		for _, b := range rng.Perm(len(bettors)) {
			// Change the live fee between claims.
			fee := uint16(rng.Intn(int(state.MaxFeeBps) + 1))
			mustApply(t, c, &event.UpdateConfig{Header: hdr(authority, ts), FeeBps: &fee})
			ts++

			out, err := c.ProcessEvent(claim(bettors[b], match1, ts))
			ts++
			if err == nil {
				paid += out.Notifications[0].Amount
			} else if state.CodeOf(err) != state.ErrBetOnLosingSide.Code {
				t.Fatalf("round %d: unexpected claim error %v", round, err)
			}
			mustIntegrity(t, c)
		}

		total := sides[0] + sides[1]
		if paid > total {
			t.Errorf("round %d: paid %d of pool %d", round, paid, total)
		}
		if v := c.VaultBalance(match1); uint64(v) != total-paid {
			t.Errorf("round %d: vault %d, want %d", round, v, total-paid)
		}
		if pool, _ := c.Match(match1); sides[winner] > 0 && pool.WinningBetCount != 0 {
			t.Errorf("round %d: %d winners left unpaid", round, pool.WinningBetCount)
		}
	}
}
