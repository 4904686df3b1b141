package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for command payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeInitialize
	EventTypeUpdateConfig
	EventTypeUpdateAuthority
	EventTypeCreateMatch
	EventTypePlaceBet
	EventTypeLockMatch
	EventTypeResolveMatch
	EventTypeCancelMatch
	EventTypeTimeoutMatch
	EventTypeClaimPayout
	EventTypeRefundNoWinners
	EventTypeRefundBet
	EventTypeCloseBet
	EventTypeSweepUnclaimed
	EventTypeSweepCancelled
	EventTypeWithdrawFees
	EventTypeCloseMatch
)

// EventEnvelope wraps every accepted command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Request id from the submitting host
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Match context (nil for platform-wide commands)
	MatchID *MatchID

	// Clock-guarded command time (NOT wall-clock)
	Timestamp time.Time

	// JSON-encoded command, decodable with Decode
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all commands must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// MatchRef returns the match context (nil for platform-wide commands)
	MatchRef() *MatchID

	// Meta returns the signer set and trusted timestamp
	Meta() *Header
}

// Header carries what the host attests about a command: who signed it and
// when it was received. Signature checks happen before the core.
type Header struct {
	RequestID uuid.UUID `json:"request_id"`
	Caller    Pubkey    `json:"caller"`
	CoSigners []Pubkey  `json:"co_signers,omitempty"`
	Timestamp int64     `json:"timestamp"` // unix seconds, set by the host on receipt
}

func (h *Header) IdempotencyKey() string {
	return h.RequestID.String()
}

func (h *Header) Meta() *Header {
	return h
}

// SignedBy reports whether key signed the command, as caller or co-signer.
func (h *Header) SignedBy(key Pubkey) bool {
	if h.Caller == key {
		return true
	}
	for _, s := range h.CoSigners {
		if s == key {
			return true
		}
	}
	return false
}

func (et EventType) String() string {
	switch et {
	case EventTypeInitialize:
		return "Initialize"
	case EventTypeUpdateConfig:
		return "UpdateConfig"
	case EventTypeUpdateAuthority:
		return "UpdateAuthority"
	case EventTypeCreateMatch:
		return "CreateMatch"
	case EventTypePlaceBet:
		return "PlaceBet"
	case EventTypeLockMatch:
		return "LockMatch"
	case EventTypeResolveMatch:
		return "ResolveMatch"
	case EventTypeCancelMatch:
		return "CancelMatch"
	case EventTypeTimeoutMatch:
		return "TimeoutMatch"
	case EventTypeClaimPayout:
		return "ClaimPayout"
	case EventTypeRefundNoWinners:
		return "RefundNoWinners"
	case EventTypeRefundBet:
		return "RefundBet"
	case EventTypeCloseBet:
		return "CloseBet"
	case EventTypeSweepUnclaimed:
		return "SweepUnclaimed"
	case EventTypeSweepCancelled:
		return "SweepCancelled"
	case EventTypeWithdrawFees:
		return "WithdrawFees"
	case EventTypeCloseMatch:
		return "CloseMatch"
	default:
		return "Unknown"
	}
}
