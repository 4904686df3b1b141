// internal/event/match.go
package event

type CreateMatch struct {
	Header
	MatchID       MatchID `json:"match_id"`
	FighterA      Pubkey  `json:"fighter_a"`
	FighterB      Pubkey  `json:"fighter_b"`
	MinBet        uint64  `json:"min_bet"`        // lamports, 0 disables
	BettingWindow int64   `json:"betting_window"` // seconds after creation, 0 disables
	Oracle        *Pubkey `json:"oracle,omitempty"`
}

func (c *CreateMatch) EventType() EventType { return EventTypeCreateMatch }

func (c *CreateMatch) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type LockMatch struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *LockMatch) EventType() EventType { return EventTypeLockMatch }

func (c *LockMatch) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type ResolveMatch struct {
	Header
	MatchID MatchID `json:"match_id"`
	Winner  Side    `json:"winner"`
}

func (c *ResolveMatch) EventType() EventType { return EventTypeResolveMatch }

func (c *ResolveMatch) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type CancelMatch struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *CancelMatch) EventType() EventType { return EventTypeCancelMatch }

func (c *CancelMatch) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

// TimeoutMatch cancels a match the oracle never resolved. Anyone may send it.
type TimeoutMatch struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *TimeoutMatch) EventType() EventType { return EventTypeTimeoutMatch }

func (c *TimeoutMatch) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type CloseMatch struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *CloseMatch) EventType() EventType { return EventTypeCloseMatch }

func (c *CloseMatch) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}
