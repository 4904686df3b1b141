package state

import (
	"FightPool/internal/event"
)

const (
	MaxFeeBps            uint16 = 1000 // 10%
	DefaultFeeBps        uint16 = 300  // 3%
	DefaultMatchTimeout  int64  = 1800 // 30 minutes
	ClaimWindowSeconds   int64  = 30 * 24 * 60 * 60
	DefaultMinBet        uint64 = 10_000_000 // 0.01 SOL
	DefaultBettingWindow int64  = 300        // 5 minutes
)

// PlatformConfig is the single admin record. Created once by Initialize,
// never destroyed.
type PlatformConfig struct {
	Authority    event.Pubkey `json:"authority"`
	Oracle       event.Pubkey `json:"oracle"`
	Treasury     event.Pubkey `json:"treasury"`
	FeeBps       uint16       `json:"fee_bps"`
	MatchTimeout int64        `json:"match_timeout"`
	Paused       bool         `json:"paused"`
}

func ValidateFeeBps(feeBps uint16) error {
	if feeBps > MaxFeeBps {
		return ErrInvalidFeeBps.Withf("fee_bps %d exceeds %d", feeBps, MaxFeeBps)
	}
	return nil
}

func ValidateMatchTimeout(seconds int64) error {
	if seconds <= 0 {
		return ErrInvalidTimeout.Withf("match_timeout must be > 0, got %d", seconds)
	}
	return nil
}

// NewPlatformConfig builds a validated, unpaused config.
func NewPlatformConfig(authority, oracle, treasury event.Pubkey, feeBps uint16, matchTimeout int64) (*PlatformConfig, error) {
	if err := ValidateFeeBps(feeBps); err != nil {
		return nil, err
	}
	if err := ValidateMatchTimeout(matchTimeout); err != nil {
		return nil, err
	}
	return &PlatformConfig{
		Authority:    authority,
		Oracle:       oracle,
		Treasury:     treasury,
		FeeBps:       feeBps,
		MatchTimeout: matchTimeout,
	}, nil
}

// ConfigUpdate is a partial update; nil fields are left untouched.
type ConfigUpdate struct {
	FeeBps       *uint16
	MatchTimeout *int64
	Paused       *bool
	Oracle       *event.Pubkey
	Treasury     *event.Pubkey
}

// ConfigChange records one applied field for the ConfigUpdated notification.
// Identity fields report 0; booleans report 0/1.
type ConfigChange struct {
	Field string
	Value uint64
}

// Apply validates every supplied field before touching anything and returns
// the updated copy plus one change per supplied field, in a fixed order.
func (c PlatformConfig) Apply(u ConfigUpdate) (*PlatformConfig, []ConfigChange, error) {
	if u.FeeBps != nil {
		if err := ValidateFeeBps(*u.FeeBps); err != nil {
			return nil, nil, err
		}
	}
	if u.MatchTimeout != nil {
		if err := ValidateMatchTimeout(*u.MatchTimeout); err != nil {
			return nil, nil, err
		}
	}

	next := c
	var changes []ConfigChange

	if u.FeeBps != nil {
		next.FeeBps = *u.FeeBps
		changes = append(changes, ConfigChange{Field: "fee_bps", Value: uint64(*u.FeeBps)})
	}
	if u.MatchTimeout != nil {
		next.MatchTimeout = *u.MatchTimeout
		changes = append(changes, ConfigChange{Field: "match_timeout", Value: uint64(*u.MatchTimeout)})
	}
	if u.Paused != nil {
		next.Paused = *u.Paused
		var v uint64
		if *u.Paused {
			v = 1
		}
		changes = append(changes, ConfigChange{Field: "paused", Value: v})
	}
	if u.Oracle != nil {
		next.Oracle = *u.Oracle
		changes = append(changes, ConfigChange{Field: "oracle", Value: 0})
	}
	if u.Treasury != nil {
		next.Treasury = *u.Treasury
		changes = append(changes, ConfigChange{Field: "treasury", Value: 0})
	}

	return &next, changes, nil
}
