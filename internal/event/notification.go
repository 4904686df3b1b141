package event

// NotificationKind names an observable outcome of an accepted command.
type NotificationKind string

const (
	NotifyMatchCreated     NotificationKind = "MatchCreated"
	NotifyBetPlaced        NotificationKind = "BetPlaced"
	NotifyMatchLocked      NotificationKind = "MatchLocked"
	NotifyMatchResolved    NotificationKind = "MatchResolved"
	NotifyPayoutClaimed    NotificationKind = "PayoutClaimed"
	NotifyMatchCancelled   NotificationKind = "MatchCancelled"
	NotifyBetRefunded      NotificationKind = "BetRefunded"
	NotifyFeesWithdrawn    NotificationKind = "FeesWithdrawn"
	NotifyConfigUpdated    NotificationKind = "ConfigUpdated"
	NotifyUnclaimedSwept   NotificationKind = "UnclaimedSwept"
	NotifyBetClosed        NotificationKind = "BetClosed"
	NotifyMatchClosed      NotificationKind = "MatchClosed"
	NotifyAuthorityUpdated NotificationKind = "AuthorityUpdated"
)

// Notification is the flat wire form of every emitted notification.
// Fields not meaningful for a kind stay at their zero value and are omitted.
type Notification struct {
	Sequence int64            `json:"sequence"`
	Kind     NotificationKind `json:"kind"`
	MatchID  *MatchID         `json:"match_id,omitempty"`
	Bettor   *Pubkey          `json:"bettor,omitempty"`
	FighterA *Pubkey          `json:"fighter_a,omitempty"`
	FighterB *Pubkey          `json:"fighter_b,omitempty"`
	Side     *Side            `json:"side,omitempty"`
	Winner   *Side            `json:"winner,omitempty"`
	Amount   uint64           `json:"amount,omitempty"`
	Field    string           `json:"field,omitempty"`
	Value    uint64           `json:"value,omitempty"`
	Previous *Pubkey          `json:"previous,omitempty"`
	Next     *Pubkey          `json:"next,omitempty"`
}
