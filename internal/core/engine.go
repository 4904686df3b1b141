package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"FightPool/internal/event"
	"FightPool/internal/ledger"
	"FightPool/internal/observability"
	"FightPool/internal/state"

	"github.com/google/uuid"
)

// DefaultLRUCapacity bounds the in-memory idempotency tier.
const DefaultLRUCapacity = 1_000_000

// EscrowCore is the single-threaded command processor. ProcessEvent must be
// called from one goroutine (Run does this); the read accessors are safe
// from any goroutine.
type EscrowCore struct {
	mu sync.RWMutex

	sequence       int64 // next sequence to assign
	hasher         *StateHasher
	clock          *Clock
	store          *state.Store
	balanceTracker *ledger.BalanceTracker
	journalGen     *ledger.JournalGenerator
	validator      *ledger.InvariantValidator
	idempotency    *IdempotencyChecker
	metrics        *observability.Metrics

	custody      int64 // sum of all vault balances
	statusCounts map[state.MatchStatus]int

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is everything one accepted command produced.
type CoreOutput struct {
	Envelope      *event.EventEnvelope
	Batch         *ledger.Batch // nil when no funds moved
	Notifications []event.Notification

	// Records written by the command, for projections.
	Config       *state.PlatformConfig
	Match        *state.MatchPool
	MatchDeleted bool
	Bet          *state.Bet
	BetDeleted   *state.BetKey

	StateDelta []byte
}

// plan is what a handler decided. Nothing is written until commit.
type plan struct {
	config        *state.PlatformConfig
	match         *state.MatchPool
	deleteMatch   bool
	bet           *state.Bet
	betDeleted    *state.BetKey
	batch         *ledger.Batch
	notifications []event.Notification
}

// cmdCtx carries the per-command values handlers need to build journals.
type cmdCtx struct {
	ref string
	seq int64
	now int64
}

// NewEscrowCore builds an empty core. Either channel may be nil, in which
// case outputs are only returned to the caller.
func NewEscrowCore(
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	lruCapacity int,
	metrics *observability.Metrics,
) *EscrowCore {
	balanceTracker := ledger.NewBalanceTracker()

	return &EscrowCore{
		sequence:       1,
		hasher:         NewStateHasher(),
		clock:          NewClock(),
		store:          state.NewStore(),
		balanceTracker: balanceTracker,
		journalGen:     ledger.NewJournalGenerator(balanceTracker),
		validator:      ledger.NewInvariantValidator(balanceTracker),
		idempotency:    NewIdempotencyChecker(lruCapacity, dbChecker, metrics),
		metrics:        metrics,
		statusCounts:   make(map[state.MatchStatus]int),
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}
}

// ProcessEvent is the main processing pipeline. It returns (nil, nil) for a
// command whose request id was already applied.
func (c *EscrowCore) ProcessEvent(evt event.Event) (*CoreOutput, error) {
	start := time.Now()
	eventType := evt.EventType().String()

	c.mu.Lock()
	out, err := c.process(evt, false)
	c.mu.Unlock()

	if err != nil {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, state.KindOf(err).String(), state.CodeOf(err)).Inc()
		}
		return nil, err
	}
	if out == nil {
		return nil, nil
	}

	c.emit(out)

	if c.metrics != nil {
		c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(out.Envelope.Sequence))
	}
	return out, nil
}

// Replay re-applies a logged command during recovery. The envelope must be
// the next in sequence and must reproduce its recorded state hash. Nothing
// is emitted: the command is already persisted.
func (c *EscrowCore) Replay(env *event.EventEnvelope) error {
	evt, err := event.Decode(env.EventType, env.Payload)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if env.Sequence != c.sequence {
		return fmt.Errorf("replay gap: expected seq %d, got %d", c.sequence, env.Sequence)
	}
	out, err := c.process(evt, true)
	if err != nil {
		return fmt.Errorf("replay seq %d (%s) rejected: %w", env.Sequence, env.EventType, err)
	}
	if out.Envelope.StateHash != env.StateHash {
		return fmt.Errorf("replay seq %d: state hash mismatch: got %x, logged %x",
			env.Sequence, out.Envelope.StateHash, env.StateHash)
	}
	return nil
}

func (c *EscrowCore) process(evt event.Event, replay bool) (*CoreOutput, error) {
	eventType := evt.EventType().String()
	meta := evt.Meta()
	if meta.RequestID == uuid.Nil {
		return nil, fmt.Errorf("%s: missing request id", eventType)
	}
	key := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier). Replayed commands are in the
	// log by definition.
	if !replay && c.idempotency.IsDuplicate(eventType, key) {
		return nil, nil
	}

	// Step 2: Effective time
	now := c.clock.Peek(meta.Timestamp)
	if now != meta.Timestamp && c.metrics != nil {
		c.metrics.CoreClockRegressions.Inc()
	}
	ctx := cmdCtx{ref: key, seq: c.sequence, now: now}

	// Step 3: A command that cannot be logged is not applied
	payload, err := event.Encode(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}

	// Step 4: Dispatch. Handlers only read state.
	p, err := c.dispatchEvent(ctx, evt)
	if err != nil {
		return nil, err
	}

	// Step 5: Commit
	return c.commit(ctx, evt, payload, p)
}

func (c *EscrowCore) commit(ctx cmdCtx, evt event.Event, payload []byte, p *plan) (*CoreOutput, error) {
	// Funds first: the tracker rejects the whole batch before applying any
	// journal of it, so a failure here leaves nothing behind.
	if p.batch != nil {
		if err := c.validator.ValidateBatchBalance(p.batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
		if err := c.balanceTracker.ApplyBatch(p.batch); err != nil {
			if errors.Is(err, ledger.ErrNegativeVault) {
				return nil, state.ErrInsufficientVault.Withf("%v", err)
			}
			if errors.Is(err, ledger.ErrBalanceOverflow) {
				return nil, state.ErrOverflow.Withf("%v", err)
			}
			return nil, fmt.Errorf("apply batch failed: %w", err)
		}
		c.custody += custodyDelta(p.batch)
	}

	// Records
	if p.config != nil {
		c.store.PutConfig(p.config)
	}
	if p.betDeleted != nil {
		c.store.DeleteBet(p.betDeleted.MatchID, p.betDeleted.Bettor)
	}
	if p.bet != nil {
		c.store.PutBet(p.bet)
	}
	if p.match != nil {
		c.trackStatus(p.match, p.deleteMatch)
		if p.deleteMatch {
			c.store.DeleteMatch(p.match.MatchID)
		} else {
			c.store.PutMatch(p.match)
		}
	}
	c.clock.Advance(ctx.now)

	// Hash chain
	stateDigest := c.computeStateDigest(p)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(ctx.seq, stateDigest)

	envelope := &event.EventEnvelope{
		Sequence:       ctx.seq,
		IdempotencyKey: ctx.ref,
		EventType:      evt.EventType(),
		MatchID:        evt.MatchRef(),
		Timestamp:      time.Unix(ctx.now, 0).UTC(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	c.sequence++

	if err := c.postCheckInvariants(evt, p); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	c.idempotency.MarkProcessed(evt.EventType().String(), ctx.ref)

	out := &CoreOutput{
		Envelope:      envelope,
		Batch:         p.batch,
		Notifications: p.notifications,
		Config:        p.config,
		Bet:           p.bet,
		BetDeleted:    p.betDeleted,
		StateDelta:    stateDigest,
	}
	if p.match != nil {
		if p.deleteMatch {
			out.MatchDeleted = true
		} else {
			out.Match = p.match
		}
	}
	return out, nil
}

// emit hands the output to the workers. Persistence uses a blocking send
// (backpressure); projections use a non-blocking send and rebuild from the
// log if they fall behind.
func (c *EscrowCore) emit(out *CoreOutput) {
	if c.persistChan != nil {
		c.persistChan <- *out
	}
	if c.projectionChan != nil {
		select {
		case c.projectionChan <- *out:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}

	if c.metrics == nil {
		return
	}
	if out.Batch != nil {
		for _, j := range out.Batch.Journals {
			c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
			c.metrics.LamportsMoved.WithLabelValues(j.JournalType.String()).Add(float64(j.Amount))
		}
	}
	for _, n := range out.Notifications {
		c.metrics.NotificationsEmitted.WithLabelValues(string(n.Kind)).Inc()
	}

	c.mu.RLock()
	custody := c.custody
	counts := make(map[state.MatchStatus]int, len(c.statusCounts))
	for s, n := range c.statusCounts {
		counts[s] = n
	}
	c.mu.RUnlock()

	c.metrics.VaultCustody.Set(float64(custody))
	for _, s := range []state.MatchStatus{
		state.MatchStatusOpen, state.MatchStatusLocked,
		state.MatchStatusResolved, state.MatchStatusCancelled,
	} {
		c.metrics.MatchesLive.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

func (c *EscrowCore) trackStatus(next *state.MatchPool, deleted bool) {
	if prev, err := c.store.Match(next.MatchID); err == nil {
		c.statusCounts[prev.Status]--
	}
	if !deleted {
		c.statusCounts[next.Status]++
	}
}

func custodyDelta(batch *ledger.Batch) int64 {
	var delta int64
	for _, j := range batch.Journals {
		if j.DebitAccount.IsVault() {
			delta += j.Amount
		}
		if j.CreditAccount.IsVault() {
			delta -= j.Amount
		}
	}
	return delta
}

// computeStateDigest creates canonical bytes for the state hash: every
// account the batch touched with its new balance, then every record the
// command wrote or deleted.
func (c *EscrowCore) computeStateDigest(p *plan) []byte {
	affectedAccounts := make(map[ledger.AccountKey]bool)
	if p.batch != nil {
		for _, j := range p.batch.Journals {
			affectedAccounts[j.DebitAccount] = true
			affectedAccounts[j.CreditAccount] = true
		}
	}

	accounts := make([]ledger.AccountKey, 0, len(affectedAccounts))
	for key := range affectedAccounts {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})

	digest := make([]byte, 0, len(accounts)*80+256)

	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, c.balanceTracker.GetBalance(key))
	}

	if p.config != nil {
		digest = append(digest, 'C')
		digest = append(digest, p.config.CanonicalBytes()...)
	}
	if p.match != nil {
		if p.deleteMatch {
			digest = append(digest, 'X')
			digest = append(digest, p.match.MatchID[:]...)
		} else {
			digest = append(digest, 'M')
			digest = append(digest, p.match.CanonicalBytes()...)
		}
	}
	if p.betDeleted != nil {
		digest = append(digest, 'x')
		digest = append(digest, p.betDeleted.MatchID[:]...)
		digest = append(digest, p.betDeleted.Bettor[:]...)
	}
	if p.bet != nil {
		digest = append(digest, 'B')
		digest = append(digest, p.bet.CanonicalBytes()...)
	}

	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

func (c *EscrowCore) dispatchEvent(ctx cmdCtx, evt event.Event) (*plan, error) {
	switch e := evt.(type) {
	case *event.Initialize:
		return c.handleInitialize(ctx, e)
	case *event.UpdateConfig:
		return c.handleUpdateConfig(ctx, e)
	case *event.UpdateAuthority:
		return c.handleUpdateAuthority(ctx, e)
	case *event.CreateMatch:
		return c.handleCreateMatch(ctx, e)
	case *event.PlaceBet:
		return c.handlePlaceBet(ctx, e)
	case *event.LockMatch:
		return c.handleLockMatch(ctx, e)
	case *event.ResolveMatch:
		return c.handleResolveMatch(ctx, e)
	case *event.CancelMatch:
		return c.handleCancelMatch(ctx, e)
	case *event.TimeoutMatch:
		return c.handleTimeoutMatch(ctx, e)
	case *event.CloseMatch:
		return c.handleCloseMatch(ctx, e)
	case *event.ClaimPayout:
		return c.handleClaimPayout(ctx, e)
	case *event.RefundNoWinners:
		return c.handleRefundNoWinners(ctx, e)
	case *event.RefundBet:
		return c.handleRefundBet(ctx, e)
	case *event.CloseBet:
		return c.handleCloseBet(ctx, e)
	case *event.SweepUnclaimed:
		return c.handleSweepUnclaimed(ctx, e)
	case *event.SweepCancelled:
		return c.handleSweepCancelled(ctx, e)
	case *event.WithdrawFees:
		return c.handleWithdrawFees(ctx, e)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}

// --- Snapshot Restore & Startup Methods ---

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence        int64 // last applied sequence
	StateHash       [32]byte
	ClockLast       int64
	Config          *state.PlatformConfig
	Matches         []*state.MatchPool
	Bets            []*state.Bet
	Balances        map[ledger.AccountKey]int64
	IdempotencyKeys []string
}

// RestoreFromSnapshot replaces the core's in-memory state and re-checks
// every per-match invariant against it.
func (c *EscrowCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	store := state.NewStore()
	if snap.Config != nil {
		cfg := *snap.Config
		store.PutConfig(&cfg)
	}
	statusCounts := make(map[state.MatchStatus]int)
	for _, m := range snap.Matches {
		pool := *m
		store.PutMatch(&pool)
		statusCounts[pool.Status]++
	}
	for _, b := range snap.Bets {
		if !store.HasMatch(b.MatchID) {
			return fmt.Errorf("snapshot bet %s references unknown match %s", b.Bettor, b.MatchID)
		}
		bet := *b
		store.PutBet(&bet)
	}

	c.store = store
	c.statusCounts = statusCounts
	c.balanceTracker.Restore(snap.Balances)
	c.custody = 0
	for key, balance := range snap.Balances {
		if key.IsVault() {
			c.custody += balance
		}
	}
	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)
	c.clock.Restore(snap.ClockLast)
	c.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)

	if err := c.validator.ValidateGlobalBalance(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	for _, pool := range c.store.Matches() {
		if err := c.checkMatch(pool); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *EscrowCore) WarmLRU(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idempotency.lru.WarmFromKeys(keys)
}

// CreateSnapshotState captures the current in-memory state for persistence.
func (c *EscrowCore) CreateSnapshotState() *SnapshotState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		ClockLast:       c.clock.Last(),
		Balances:        c.balanceTracker.Snapshot(),
		IdempotencyKeys: c.idempotency.lru.Keys(),
	}
	if cfg, err := c.store.Config(); err == nil {
		copied := *cfg
		snap.Config = &copied
	}
	for _, m := range c.store.Matches() {
		pool := *m
		snap.Matches = append(snap.Matches, &pool)
		for _, b := range c.store.BetsForMatch(m.MatchID) {
			bet := *b
			snap.Bets = append(snap.Bets, &bet)
		}
	}
	return snap
}
