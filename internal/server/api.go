package server

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FightPool/internal/event"
	"FightPool/internal/ingestion"
	"FightPool/internal/persistence"
	"FightPool/internal/projection"
	"FightPool/internal/query"
)

// ErrNotLeader rejects writes on an instance that does not own the core.
var ErrNotLeader = errors.New("this instance is not the leader")

// badRequest marks a malformed request argument.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func invalidArg(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

// LeaderState reports whether this instance owns the core.
type LeaderState interface {
	IsLeader() bool
}

// Deps holds everything the RPC and HTTP surfaces call into.
type Deps struct {
	DB          *sql.DB
	Commands    *ingestion.CommandService
	Queries     *query.QueryService
	Snapshotter *persistence.Snapshotter
	EventLog    *persistence.SnapshotManager
	Leader      LeaderState // nil means always leader
	StartTime   time.Time
}

// API implements every operation once; gRPC and HTTP are thin adapters
// over it.
type API struct {
	deps Deps
}

func NewAPI(deps Deps) *API {
	if deps.StartTime.IsZero() {
		deps.StartTime = time.Now()
	}
	return &API{deps: deps}
}

func (a *API) requireLeader() error {
	if a.deps.Leader != nil && !a.deps.Leader.IsLeader() {
		return ErrNotLeader
	}
	return nil
}

// --- requests ---

type Empty struct{}

type CommandRequest struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

type MatchRequest struct {
	MatchID string `json:"match_id"`
}

type BetRequest struct {
	MatchID string `json:"match_id"`
	Bettor  string `json:"bettor"`
}

type ListMatchesRequest struct {
	Status          string `json:"status,omitempty"`
	Limit           int    `json:"limit,omitempty"`
	BeforeCreatedAt *int64 `json:"before_created_at,omitempty"`
}

type BettorBetsRequest struct {
	Bettor string `json:"bettor"`
	Limit  int    `json:"limit,omitempty"`
}

// BalanceRequest names exactly one of a wallet or a match vault.
type BalanceRequest struct {
	Wallet string `json:"wallet,omitempty"`
	Vault  string `json:"vault,omitempty"`
}

type SettlementsRequest struct {
	MatchID        string `json:"match_id,omitempty"`
	Recipient      string `json:"recipient,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	BeforeSequence *int64 `json:"before_sequence,omitempty"`
}

type JournalRequest struct {
	Account       string `json:"account"`
	Limit         int    `json:"limit,omitempty"`
	AfterSequence *int64 `json:"after_sequence,omitempty"`
}

// --- responses ---

type MatchList struct {
	Matches []query.MatchResponse `json:"matches"`
}

type BetList struct {
	Bets []query.BetResponse `json:"bets"`
}

type SettlementList struct {
	Settlements []query.SettlementResponse `json:"settlements"`
}

type JournalList struct {
	Entries []query.JournalHistoryEntry `json:"entries"`
}

type SnapshotResponse struct {
	Sequence  int64  `json:"sequence"`
	StateHash string `json:"state_hash"`
}

type RebuildResponse struct {
	Sequence int64 `json:"sequence"`
}

type LogInfoResponse struct {
	EventCount       int64  `json:"event_count"`
	LatestSequence   int64  `json:"latest_sequence"`
	LatestStateHash  string `json:"latest_state_hash,omitempty"`
	SnapshotSequence int64  `json:"snapshot_sequence"`
	SnapshotArchive  string `json:"snapshot_archive,omitempty"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// --- commands ---

func (a *API) Execute(ctx context.Context, req *CommandRequest, source string) (*ingestion.CommandResult, error) {
	if req.Command == "" {
		return nil, invalidArg("command is required")
	}
	if err := a.requireLeader(); err != nil {
		return nil, err
	}
	return a.deps.Commands.Execute(ctx, req.Command, req.Payload, source)
}

// --- queries ---

func (a *API) GetConfig(ctx context.Context, _ *Empty) (*query.ConfigResponse, error) {
	return a.deps.Queries.GetConfig(ctx)
}

func (a *API) GetMatch(ctx context.Context, req *MatchRequest) (*query.MatchResponse, error) {
	id, err := parseMatchID(req.MatchID)
	if err != nil {
		return nil, err
	}
	return a.deps.Queries.GetMatch(ctx, id)
}

func (a *API) ListMatches(ctx context.Context, req *ListMatchesRequest) (*MatchList, error) {
	matches, err := a.deps.Queries.ListMatches(ctx, req.Status, req.Limit, req.BeforeCreatedAt)
	if err != nil {
		return nil, err
	}
	return &MatchList{Matches: matches}, nil
}

func (a *API) GetBet(ctx context.Context, req *BetRequest) (*query.BetResponse, error) {
	id, err := parseMatchID(req.MatchID)
	if err != nil {
		return nil, err
	}
	bettor, err := parsePubkey("bettor", req.Bettor)
	if err != nil {
		return nil, err
	}
	return a.deps.Queries.GetBet(ctx, id, bettor)
}

func (a *API) ListBets(ctx context.Context, req *MatchRequest) (*BetList, error) {
	id, err := parseMatchID(req.MatchID)
	if err != nil {
		return nil, err
	}
	bets, err := a.deps.Queries.ListBets(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BetList{Bets: bets}, nil
}

func (a *API) ListBettorBets(ctx context.Context, req *BettorBetsRequest) (*BetList, error) {
	bettor, err := parsePubkey("bettor", req.Bettor)
	if err != nil {
		return nil, err
	}
	bets, err := a.deps.Queries.ListBettorBets(ctx, bettor, req.Limit)
	if err != nil {
		return nil, err
	}
	return &BetList{Bets: bets}, nil
}

func (a *API) GetDistribution(ctx context.Context, req *MatchRequest) (*query.DistributionResponse, error) {
	id, err := parseMatchID(req.MatchID)
	if err != nil {
		return nil, err
	}
	return a.deps.Queries.GetDistribution(ctx, id)
}

func (a *API) GetBalance(ctx context.Context, req *BalanceRequest) (*query.BalanceResponse, error) {
	switch {
	case req.Wallet != "" && req.Vault != "":
		return nil, invalidArg("set one of wallet or vault")
	case req.Wallet != "":
		owner, err := parsePubkey("wallet", req.Wallet)
		if err != nil {
			return nil, err
		}
		return a.deps.Queries.GetWalletBalance(ctx, owner)
	case req.Vault != "":
		id, err := parseMatchID(req.Vault)
		if err != nil {
			return nil, err
		}
		return a.deps.Queries.GetVaultBalance(ctx, id)
	default:
		return nil, invalidArg("wallet or vault is required")
	}
}

func (a *API) GetSettlements(ctx context.Context, req *SettlementsRequest) (*SettlementList, error) {
	var matchID *event.MatchID
	if req.MatchID != "" {
		id, err := parseMatchID(req.MatchID)
		if err != nil {
			return nil, err
		}
		matchID = &id
	}
	var recipient *string
	if req.Recipient != "" {
		recipient = &req.Recipient
	}
	rows, err := a.deps.Queries.GetSettlements(ctx, matchID, recipient, req.Limit, req.BeforeSequence)
	if err != nil {
		return nil, err
	}
	return &SettlementList{Settlements: rows}, nil
}

func (a *API) GetJournalHistory(ctx context.Context, req *JournalRequest) (*JournalList, error) {
	if req.Account == "" {
		return nil, invalidArg("account is required")
	}
	entries, err := a.deps.Queries.GetJournalHistory(ctx, req.Account, req.Limit, req.AfterSequence)
	if err != nil {
		return nil, err
	}
	return &JournalList{Entries: entries}, nil
}

func (a *API) VerifyIntegrity(ctx context.Context, _ *Empty) (*query.IntegrityReport, error) {
	return a.deps.Queries.VerifyIntegrity(ctx)
}

// --- admin ---

func (a *API) TakeSnapshot(ctx context.Context, _ *Empty) (*SnapshotResponse, error) {
	if err := a.requireLeader(); err != nil {
		return nil, err
	}
	data, err := a.deps.Snapshotter.Take(ctx)
	if err != nil {
		return nil, err
	}
	return &SnapshotResponse{
		Sequence:  data.Sequence,
		StateHash: hex.EncodeToString(data.StateHash),
	}, nil
}

// RebuildProjections snapshots the live core and rewrites every projection
// from it.
func (a *API) RebuildProjections(ctx context.Context, _ *Empty) (*RebuildResponse, error) {
	if err := a.requireLeader(); err != nil {
		return nil, err
	}
	data, err := a.deps.Snapshotter.Take(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := data.ToCore()
	if err != nil {
		return nil, err
	}
	if err := projection.RebuildProjections(ctx, a.deps.DB, snap); err != nil {
		return nil, fmt.Errorf("rebuild projections: %w", err)
	}
	return &RebuildResponse{Sequence: snap.Sequence}, nil
}

func (a *API) GetEventLogInfo(ctx context.Context, _ *Empty) (*LogInfoResponse, error) {
	info, err := a.deps.EventLog.GetLogInfo(ctx)
	if err != nil {
		return nil, err
	}
	return &LogInfoResponse{
		EventCount:       info.EventCount,
		LatestSequence:   info.LatestSequence,
		LatestStateHash:  hex.EncodeToString(info.LatestStateHash),
		SnapshotSequence: info.SnapshotSequence,
		SnapshotArchive:  info.SnapshotArchive,
		UptimeSeconds:    int64(time.Since(a.deps.StartTime).Seconds()),
	}, nil
}

func parseMatchID(s string) (event.MatchID, error) {
	if s == "" {
		return event.MatchID{}, invalidArg("match_id is required")
	}
	id, err := event.ParseMatchID(s)
	if err != nil {
		return event.MatchID{}, invalidArg("invalid match_id: %v", err)
	}
	return id, nil
}

func parsePubkey(field, s string) (event.Pubkey, error) {
	if s == "" {
		return event.Pubkey{}, invalidArg("%s is required", field)
	}
	pk, err := event.ParsePubkey(s)
	if err != nil {
		return event.Pubkey{}, invalidArg("invalid %s: %v", field, err)
	}
	return pk, nil
}
