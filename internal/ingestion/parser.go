package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"FightPool/internal/event"
	"FightPool/internal/state"
)

// CommandSubjectPrefix is the NATS subject namespace for inbound commands:
// fightpool.cmd.<command_name>.
const CommandSubjectPrefix = "fightpool.cmd."

// ErrMalformed wraps every parse failure. Malformed commands never reach
// the core.
var ErrMalformed = errors.New("malformed command")

// ParseCommand converts a JSON payload for the snake_case command name into
// a typed event stamped with receivedAt. Any client-supplied timestamp is
// discarded: every time-gated rule reads the host clock, never the caller's.
// create_match payloads that omit min_bet or betting_window get the
// platform defaults; an explicit 0 disables the check.
func ParseCommand(name string, data []byte, receivedAt time.Time) (event.Event, error) {
	et, ok := event.ParseEventType(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %q", ErrMalformed, name)
	}

	evt, err := event.Decode(et, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if cm, ok := evt.(*event.CreateMatch); ok {
		if err := applyCreateMatchDefaults(cm, data); err != nil {
			return nil, err
		}
	}

	meta := evt.Meta()
	if meta.Caller.IsZero() {
		return nil, fmt.Errorf("%w: %s: caller is required", ErrMalformed, name)
	}
	meta.Timestamp = receivedAt.Unix()
	return evt, nil
}

// applyCreateMatchDefaults fills fields that were absent from the payload,
// as opposed to present and zero.
func applyCreateMatchDefaults(cm *event.CreateMatch, data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: create_match: %v", ErrMalformed, err)
	}
	if _, ok := fields["min_bet"]; !ok {
		cm.MinBet = state.DefaultMinBet
	}
	if _, ok := fields["betting_window"]; !ok {
		cm.BettingWindow = state.DefaultBettingWindow
	}
	return nil
}

// CommandFromSubject extracts the command name from a NATS subject.
func CommandFromSubject(subject string) (string, bool) {
	name, ok := strings.CutPrefix(subject, CommandSubjectPrefix)
	if !ok || name == "" || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}
