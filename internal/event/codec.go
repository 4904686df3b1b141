package event

import (
	"encoding/json"
	"fmt"
)

// New returns a zero command for the discriminator.
func New(et EventType) (Event, error) {
	switch et {
	case EventTypeInitialize:
		return &Initialize{}, nil
	case EventTypeUpdateConfig:
		return &UpdateConfig{}, nil
	case EventTypeUpdateAuthority:
		return &UpdateAuthority{}, nil
	case EventTypeCreateMatch:
		return &CreateMatch{}, nil
	case EventTypePlaceBet:
		return &PlaceBet{}, nil
	case EventTypeLockMatch:
		return &LockMatch{}, nil
	case EventTypeResolveMatch:
		return &ResolveMatch{}, nil
	case EventTypeCancelMatch:
		return &CancelMatch{}, nil
	case EventTypeTimeoutMatch:
		return &TimeoutMatch{}, nil
	case EventTypeClaimPayout:
		return &ClaimPayout{}, nil
	case EventTypeRefundNoWinners:
		return &RefundNoWinners{}, nil
	case EventTypeRefundBet:
		return &RefundBet{}, nil
	case EventTypeCloseBet:
		return &CloseBet{}, nil
	case EventTypeSweepUnclaimed:
		return &SweepUnclaimed{}, nil
	case EventTypeSweepCancelled:
		return &SweepCancelled{}, nil
	case EventTypeWithdrawFees:
		return &WithdrawFees{}, nil
	case EventTypeCloseMatch:
		return &CloseMatch{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}
}

// Encode serializes a command for the event log payload.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Decode rebuilds a command from a logged payload.
func Decode(et EventType, payload []byte) (Event, error) {
	ev, err := New(et)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return ev, nil
}

// ParseEventType maps a snake_case command name to its discriminator.
func ParseEventType(name string) (EventType, bool) {
	et, ok := eventTypesByName[name]
	return et, ok
}

var eventTypesByName = map[string]EventType{
	"initialize":        EventTypeInitialize,
	"update_config":     EventTypeUpdateConfig,
	"update_authority":  EventTypeUpdateAuthority,
	"create_match":      EventTypeCreateMatch,
	"place_bet":         EventTypePlaceBet,
	"lock_match":        EventTypeLockMatch,
	"resolve_match":     EventTypeResolveMatch,
	"cancel_match":      EventTypeCancelMatch,
	"timeout_match":     EventTypeTimeoutMatch,
	"claim_payout":      EventTypeClaimPayout,
	"refund_no_winners": EventTypeRefundNoWinners,
	"refund_bet":        EventTypeRefundBet,
	"close_bet":         EventTypeCloseBet,
	"sweep_unclaimed":   EventTypeSweepUnclaimed,
	"sweep_cancelled":   EventTypeSweepCancelled,
	"withdraw_fees":     EventTypeWithdrawFees,
	"close_match":       EventTypeCloseMatch,
}

// CommandNames lists every accepted snake_case command name.
func CommandNames() []string {
	names := make([]string, 0, len(eventTypesByName))
	for n := range eventTypesByName {
		names = append(names, n)
	}
	return names
}
