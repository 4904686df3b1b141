package core

// Clock is the core's monotonic time source. Commands carry a timestamp
// attested by the host; the core never reads the wall clock. A command
// stamped earlier than the last accepted one is evaluated at the last
// accepted time, so time-gated rules can never be re-opened by a stale
// timestamp.
// Not thread-safe: only the escrow core goroutine touches it.
type Clock struct {
	last    int64 // unix seconds of the last accepted command
	metrics *ClockMetrics
}

func NewClock() *Clock {
	return &Clock{metrics: &ClockMetrics{}}
}

// Peek returns the effective time for a command without advancing.
func (c *Clock) Peek(ts int64) int64 {
	if ts < c.last {
		c.metrics.regressions++
		return c.last
	}
	return ts
}

// Advance records the effective time of an accepted command. Rejected
// commands never move the clock.
func (c *Clock) Advance(now int64) {
	if now > c.last {
		c.last = now
	}
}

// Last returns the time of the last accepted command.
func (c *Clock) Last() int64 {
	return c.last
}

// Restore sets the clock from a snapshot.
func (c *Clock) Restore(last int64) {
	c.last = last
}

func (c *Clock) GetMetrics() *ClockMetrics {
	return c.metrics
}

// --- Metrics ---

// ClockMetrics counts commands that arrived with a stale timestamp.
type ClockMetrics struct {
	regressions int64
}

func (m *ClockMetrics) GetRegressions() int64 {
	return m.regressions
}
