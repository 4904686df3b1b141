// internal/event/settlement.go
package event

// Self-service settlement commands act on the caller's own bet.

type ClaimPayout struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *ClaimPayout) EventType() EventType { return EventTypeClaimPayout }

func (c *ClaimPayout) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type RefundNoWinners struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *RefundNoWinners) EventType() EventType { return EventTypeRefundNoWinners }

func (c *RefundNoWinners) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type RefundBet struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *RefundBet) EventType() EventType { return EventTypeRefundBet }

func (c *RefundBet) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type CloseBet struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *CloseBet) EventType() EventType { return EventTypeCloseBet }

func (c *CloseBet) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

// Abandonment commands name the bettor explicitly.

type SweepUnclaimed struct {
	Header
	MatchID MatchID `json:"match_id"`
	Bettor  Pubkey  `json:"bettor"`
}

func (c *SweepUnclaimed) EventType() EventType { return EventTypeSweepUnclaimed }

func (c *SweepUnclaimed) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type SweepCancelled struct {
	Header
	MatchID MatchID `json:"match_id"`
	Bettor  Pubkey  `json:"bettor"`
}

func (c *SweepCancelled) EventType() EventType { return EventTypeSweepCancelled }

func (c *SweepCancelled) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}

type WithdrawFees struct {
	Header
	MatchID MatchID `json:"match_id"`
}

func (c *WithdrawFees) EventType() EventType { return EventTypeWithdrawFees }

func (c *WithdrawFees) MatchRef() *MatchID {
	m := c.MatchID
	return &m
}
