package ingestion

import (
	"context"
	"encoding/hex"
	"time"

	"FightPool/internal/core"
	"FightPool/internal/event"
)

// CommandService is the single entry point every transport uses to hand a
// command to the core: it parses, submits and waits for the verdict.
type CommandService struct {
	submit chan<- core.Submission
	now    func() time.Time
}

func NewCommandService(submit chan<- core.Submission) *CommandService {
	return &CommandService{submit: submit, now: time.Now}
}

// WithClock replaces the receive clock that stamps parsed commands.
func (s *CommandService) WithClock(now func() time.Time) *CommandService {
	s.now = now
	return s
}

// CommandResult is what a transport reports back for an accepted command.
type CommandResult struct {
	Command       string               `json:"command"`
	Sequence      int64                `json:"sequence,omitempty"`
	Duplicate     bool                 `json:"duplicate"`
	StateHash     string               `json:"state_hash,omitempty"`
	Notifications []event.Notification `json:"notifications,omitempty"`
}

// Execute parses the payload for name and applies it. Parse failures and
// domain rejections come back as errors; a replayed request id is reported
// as a duplicate, not an error.
func (s *CommandService) Execute(ctx context.Context, name string, payload []byte, source string) (*CommandResult, error) {
	evt, err := ParseCommand(name, payload, s.now())
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, name, evt, source)
}

// Submit applies an already typed command.
func (s *CommandService) Submit(ctx context.Context, name string, evt event.Event, source string) (*CommandResult, error) {
	res, err := core.Submit(ctx, s.submit, evt, source)
	if err != nil {
		return nil, err
	}
	if res.Err != nil {
		return nil, res.Err
	}

	out := &CommandResult{Command: name, Duplicate: res.Duplicate}
	if res.Output != nil {
		out.Sequence = res.Output.Envelope.Sequence
		out.StateHash = hex.EncodeToString(res.Output.Envelope.StateHash[:])
		out.Notifications = res.Output.Notifications
	}
	return out, nil
}
