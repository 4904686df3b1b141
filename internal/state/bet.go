package state

import (
	"FightPool/internal/event"
)

// Bet is one bettor's stake in one match. A bettor holds at most one bet
// per match.
type Bet struct {
	Bettor  event.Pubkey  `json:"bettor"`
	MatchID event.MatchID `json:"match_id"`
	Side    event.Side    `json:"side"`
	Amount  uint64        `json:"amount"`
	Claimed bool          `json:"claimed"`
}

type BetKey struct {
	MatchID event.MatchID
	Bettor  event.Pubkey
}

func (b *Bet) Key() BetKey {
	return BetKey{MatchID: b.MatchID, Bettor: b.Bettor}
}

// IsWinner reports whether the bet backed the resolved winner.
func (b *Bet) IsWinner(w Winner) bool {
	switch w {
	case WinnerSideA:
		return b.Side == event.SideA
	case WinnerSideB:
		return b.Side == event.SideB
	default:
		return false
	}
}

// CanonicalBytes returns deterministic serialization for hashing
func (b *Bet) CanonicalBytes() []byte {
	buf := make([]byte, 0, 80)

	buf = append(buf, b.MatchID[:]...)
	buf = append(buf, b.Bettor[:]...)

	// side (1 byte)
	buf = append(buf, byte(b.Side))

	// amount (8 bytes LE)
	buf = appendUint64LE(buf, b.Amount)

	// claimed (1 byte)
	buf = appendBool(buf, b.Claimed)

	return buf
}

// CanonicalBytes returns deterministic serialization for hashing
func (p *MatchPool) CanonicalBytes() []byte {
	buf := make([]byte, 0, 256)

	buf = append(buf, p.MatchID[:]...)
	buf = append(buf, p.FighterA[:]...)
	buf = append(buf, p.FighterB[:]...)
	buf = appendUint64LE(buf, p.SideATotal)
	buf = appendUint64LE(buf, p.SideBTotal)
	buf = appendUint64LE(buf, uint64(p.SideABetCount))
	buf = appendUint64LE(buf, uint64(p.SideBBetCount))
	buf = appendUint64LE(buf, uint64(p.BetCount))
	buf = appendUint64LE(buf, uint64(p.WinningBetCount))
	buf = append(buf, byte(p.Status), byte(p.Winner))
	buf = append(buf, p.Oracle[:]...)
	buf = append(buf, p.Creator[:]...)
	buf = appendInt64LE(buf, p.CreatedAt)
	buf = appendInt64LE(buf, p.LockTimestamp)
	buf = appendInt64LE(buf, p.ResolveTimestamp)
	buf = appendInt64LE(buf, p.CancelTimestamp)
	buf = appendUint64LE(buf, p.MinBet)
	buf = appendInt64LE(buf, p.BettingWindow)
	buf = appendUint64LE(buf, uint64(p.FeeBps))
	buf = appendBool(buf, p.FeesWithdrawn)

	return buf
}

// CanonicalBytes returns deterministic serialization for hashing
func (c *PlatformConfig) CanonicalBytes() []byte {
	buf := make([]byte, 0, 112)

	buf = append(buf, c.Authority[:]...)
	buf = append(buf, c.Oracle[:]...)
	buf = append(buf, c.Treasury[:]...)
	buf = appendUint64LE(buf, uint64(c.FeeBps))
	buf = appendInt64LE(buf, c.MatchTimeout)
	buf = appendBool(buf, c.Paused)

	return buf
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendInt64LE(buf []byte, v int64) []byte {
	return appendUint64LE(buf, uint64(v))
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}
