package event

import (
	"encoding/hex"
	"fmt"
)

// Pubkey is a 32-byte account identity. The host proves control of it
// before a command reaches the core.
type Pubkey [32]byte

// MatchID is the 32-byte match identifier chosen by the creator.
type MatchID [32]byte

func (p Pubkey) String() string  { return hex.EncodeToString(p[:]) }
func (m MatchID) String() string { return hex.EncodeToString(m[:]) }

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

func (p Pubkey) MarshalText() ([]byte, error)  { return []byte(p.String()), nil }
func (m MatchID) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (p *Pubkey) UnmarshalText(b []byte) error {
	return decodeHex32((*[32]byte)(p), string(b))
}

func (m *MatchID) UnmarshalText(b []byte) error {
	return decodeHex32((*[32]byte)(m), string(b))
}

// ParsePubkey decodes a 64-char lowercase or uppercase hex string.
func ParsePubkey(s string) (Pubkey, error) {
	var p Pubkey
	err := decodeHex32((*[32]byte)(&p), s)
	return p, err
}

// ParseMatchID decodes a 64-char hex string.
func ParseMatchID(s string) (MatchID, error) {
	var m MatchID
	err := decodeHex32((*[32]byte)(&m), s)
	return m, err
}

func decodeHex32(dst *[32]byte, s string) error {
	if len(s) != 64 {
		return fmt.Errorf("expected 64 hex chars, got %d", len(s))
	}
	if _, err := hex.Decode(dst[:], []byte(s)); err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	return nil
}

// Side is a bet side / match winner code on the wire: 0 = A, 1 = B.
type Side uint8

const (
	SideA Side = 0
	SideB Side = 1
)

func (s Side) Valid() bool {
	return s == SideA || s == SideB
}

func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideB:
		return "B"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}
