// internal/event/admin.go
package event

// Initialize creates the platform config. The caller becomes the authority.
type Initialize struct {
	Header
	FeeBps       uint16 `json:"fee_bps"`
	MatchTimeout int64  `json:"match_timeout"` // seconds
	Oracle       Pubkey `json:"oracle"`
	Treasury     Pubkey `json:"treasury"`
}

func (c *Initialize) EventType() EventType { return EventTypeInitialize }
func (c *Initialize) MatchRef() *MatchID   { return nil }

// UpdateConfig changes any subset of the mutable platform fields.
// A nil field is left untouched.
type UpdateConfig struct {
	Header
	FeeBps       *uint16 `json:"fee_bps,omitempty"`
	MatchTimeout *int64  `json:"match_timeout,omitempty"`
	Paused       *bool   `json:"paused,omitempty"`
	Oracle       *Pubkey `json:"oracle,omitempty"`
	Treasury     *Pubkey `json:"treasury,omitempty"`
}

func (c *UpdateConfig) EventType() EventType { return EventTypeUpdateConfig }
func (c *UpdateConfig) MatchRef() *MatchID   { return nil }

// UpdateAuthority hands platform control to NewAuthority, which must
// co-sign the command.
type UpdateAuthority struct {
	Header
	NewAuthority Pubkey `json:"new_authority"`
}

func (c *UpdateAuthority) EventType() EventType { return EventTypeUpdateAuthority }
func (c *UpdateAuthority) MatchRef() *MatchID   { return nil }
