package state

import (
	"bytes"
	"sort"

	"FightPool/internal/event"
)

// Store holds all escrow records in memory. It is owned by the core's
// single goroutine; readers go through the core's accessors.
type Store struct {
	config  *PlatformConfig
	matches map[event.MatchID]*MatchPool
	bets    map[event.MatchID]map[event.Pubkey]*Bet
}

func NewStore() *Store {
	return &Store{
		matches: make(map[event.MatchID]*MatchPool),
		bets:    make(map[event.MatchID]map[event.Pubkey]*Bet),
	}
}

// Config returns the platform config or ErrNotInitialized.
func (s *Store) Config() (*PlatformConfig, error) {
	if s.config == nil {
		return nil, ErrNotInitialized
	}
	return s.config, nil
}

func (s *Store) Initialized() bool {
	return s.config != nil
}

func (s *Store) PutConfig(c *PlatformConfig) {
	s.config = c
}

// Match returns the pool or ErrMatchNotFound.
func (s *Store) Match(id event.MatchID) (*MatchPool, error) {
	p, ok := s.matches[id]
	if !ok {
		return nil, ErrMatchNotFound.Withf("match %s", id)
	}
	return p, nil
}

func (s *Store) HasMatch(id event.MatchID) bool {
	_, ok := s.matches[id]
	return ok
}

func (s *Store) PutMatch(p *MatchPool) {
	s.matches[p.MatchID] = p
}

// DeleteMatch drops the pool and any bet index left for it.
func (s *Store) DeleteMatch(id event.MatchID) {
	delete(s.matches, id)
	delete(s.bets, id)
}

// Bet returns the bettor's bet in a match or ErrBetNotFound.
func (s *Store) Bet(matchID event.MatchID, bettor event.Pubkey) (*Bet, error) {
	if byBettor, ok := s.bets[matchID]; ok {
		if b, ok := byBettor[bettor]; ok {
			return b, nil
		}
	}
	return nil, ErrBetNotFound.Withf("match %s bettor %s", matchID, bettor)
}

func (s *Store) HasBet(matchID event.MatchID, bettor event.Pubkey) bool {
	_, err := s.Bet(matchID, bettor)
	return err == nil
}

func (s *Store) PutBet(b *Bet) {
	byBettor, ok := s.bets[b.MatchID]
	if !ok {
		byBettor = make(map[event.Pubkey]*Bet)
		s.bets[b.MatchID] = byBettor
	}
	byBettor[b.Bettor] = b
}

func (s *Store) DeleteBet(matchID event.MatchID, bettor event.Pubkey) {
	byBettor, ok := s.bets[matchID]
	if !ok {
		return
	}
	delete(byBettor, bettor)
	if len(byBettor) == 0 {
		delete(s.bets, matchID)
	}
}

// BetsForMatch returns the match's outstanding bets ordered by bettor.
func (s *Store) BetsForMatch(matchID event.MatchID) []*Bet {
	byBettor := s.bets[matchID]
	out := make([]*Bet, 0, len(byBettor))
	for _, b := range byBettor {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Bettor[:], out[j].Bettor[:]) < 0
	})
	return out
}

// MatchIDs returns every live match id in byte order.
func (s *Store) MatchIDs() []event.MatchID {
	ids := make([]event.MatchID, 0, len(s.matches))
	for id := range s.matches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

// Matches returns all live pools in id order.
func (s *Store) Matches() []*MatchPool {
	ids := s.MatchIDs()
	out := make([]*MatchPool, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.matches[id])
	}
	return out
}

// BetCount returns the number of bet records held for a match.
func (s *Store) BetCount(matchID event.MatchID) int {
	return len(s.bets[matchID])
}
