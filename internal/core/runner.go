package core

import (
	"context"
	"time"

	"FightPool/internal/event"
)

// Submission is one command travelling from a transport to the core.
type Submission struct {
	Event    event.Event
	Source   string // nats, grpc, http
	Enqueued time.Time

	// Reply receives exactly one Result. Must be buffered or nil.
	Reply chan<- Result
}

// Result is the core's answer to a Submission.
type Result struct {
	Output    *CoreOutput
	Duplicate bool
	Err       error
}

// Run applies submissions one at a time until ctx is done or in closes.
// Every transport funnels through here, which is what makes the core
// single-threaded.
func (c *EscrowCore) Run(ctx context.Context, in <-chan Submission) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub, ok := <-in:
			if !ok {
				return nil
			}
			out, err := c.ProcessEvent(sub.Event)

			if c.metrics != nil && !sub.Enqueued.IsZero() {
				c.metrics.SubmitToApply.WithLabelValues(sub.Source).Observe(time.Since(sub.Enqueued).Seconds())
			}
			if sub.Reply != nil {
				sub.Reply <- Result{Output: out, Duplicate: out == nil && err == nil, Err: err}
			}
		}
	}
}

// Submit enqueues a command and waits for the core's verdict.
func Submit(ctx context.Context, in chan<- Submission, evt event.Event, source string) (Result, error) {
	reply := make(chan Result, 1)
	sub := Submission{Event: evt, Source: source, Enqueued: time.Now(), Reply: reply}

	select {
	case in <- sub:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
