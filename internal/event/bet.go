// internal/event/bet.go
package event

// PlaceBet stakes Amount lamports from the caller on Side.
type PlaceBet struct {
	Header
	MatchID MatchID `json:"match_id"`
	Side    Side    `json:"side"`
	Amount  uint64  `json:"amount"`
}

func (c *PlaceBet) EventType() EventType { return EventTypePlaceBet }

func (c *PlaceBet) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}
