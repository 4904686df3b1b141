package query

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// lamportsPerSOLExp is the decimal exponent between lamports and SOL.
const lamportsPerSOLExp = -9

// SOL renders a lamport amount in SOL for display. Ledger values stay in
// integer lamports everywhere else.
func SOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), lamportsPerSOLExp).String()
}

// SignedSOL is SOL for signed ledger balances.
func SignedSOL(lamports int64) string {
	return decimal.New(lamports, lamportsPerSOLExp).String()
}

// ParseSOL converts a SOL amount to lamports, rejecting fractions below one
// lamport and negative values.
func ParseSOL(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	lamports := d.Shift(-lamportsPerSOLExp)
	if !lamports.Equal(lamports.Truncate(0)) {
		return 0, errFractionalLamports
	}
	if lamports.IsNegative() || !lamports.BigInt().IsUint64() {
		return 0, errLamportRange
	}
	return lamports.BigInt().Uint64(), nil
}

// Amount is a lamport value with its SOL rendering.
type Amount struct {
	Lamports uint64 `json:"lamports,string"`
	SOL      string `json:"sol"`
}

func newAmount(lamports uint64) Amount {
	return Amount{Lamports: lamports, SOL: SOL(lamports)}
}

// ConfigResponse is the platform config.
type ConfigResponse struct {
	Authority    string `json:"authority"`
	Oracle       string `json:"oracle"`
	Treasury     string `json:"treasury"`
	FeeBps       uint16 `json:"fee_bps"`
	MatchTimeout int64  `json:"match_timeout"`
	Paused       bool   `json:"paused"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// MatchResponse is a match pool with its economics derived at query time.
type MatchResponse struct {
	MatchID          string `json:"match_id"`
	FighterA         string `json:"fighter_a"`
	FighterB         string `json:"fighter_b"`
	Oracle           string `json:"oracle"`
	Creator          string `json:"creator"`
	Status           string `json:"status"`
	Winner           string `json:"winner"`
	SideATotal       Amount `json:"side_a_total"`
	SideBTotal       Amount `json:"side_b_total"`
	SideABetCount    int64  `json:"side_a_bet_count"`
	SideBBetCount    int64  `json:"side_b_bet_count"`
	BetCount         int64  `json:"bet_count"`
	WinningBetCount  int64  `json:"winning_bet_count"`
	FeeBps           uint16 `json:"fee_bps"`
	FeesWithdrawn    bool   `json:"fees_withdrawn"`
	MinBet           Amount `json:"min_bet"`
	BettingWindow    int64  `json:"betting_window"`
	CreatedAt        int64  `json:"created_at"`
	LockTimestamp    int64  `json:"lock_timestamp"`
	ResolveTimestamp int64  `json:"resolve_timestamp"`
	CancelTimestamp  int64  `json:"cancel_timestamp"`

	// Derived values (computed at query time from the snapshotted fee)
	TotalPool Amount `json:"total_pool"`
	Fee       Amount `json:"fee"`
	NetPool   Amount `json:"net_pool"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// BetResponse is a bet with what it would settle for right now.
type BetResponse struct {
	MatchID string `json:"match_id"`
	Bettor  string `json:"bettor"`
	Side    string `json:"side"`
	Amount  Amount `json:"amount"`
	Claimed bool   `json:"claimed"`

	// Settlement is "payout", "refund", "no_winner_refund", "lost" or ""
	// while the match is undecided.
	Settlement      string  `json:"settlement,omitempty"`
	SettlementValue *Amount `json:"settlement_value,omitempty"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// DistributionResponse previews the pro-rata split of a resolved match.
type DistributionResponse struct {
	MatchID      string        `json:"match_id"`
	Winner       string        `json:"winner"`
	Fee          Amount        `json:"fee"`
	NetPool      Amount        `json:"net_pool"`
	Paid         Amount        `json:"paid"`
	Dust         Amount        `json:"dust"`
	Shares       []ShareAmount `json:"shares"`
	AsOfSequence int64         `json:"as_of_sequence"`
}

// ShareAmount is one winning stake in a distribution.
type ShareAmount struct {
	Bettor string `json:"bettor"`
	Stake  Amount `json:"stake"`
	Payout Amount `json:"payout"`
}

// SettlementResponse is one vault outflow.
type SettlementResponse struct {
	Sequence  int64  `json:"sequence"`
	MatchID   string `json:"match_id"`
	Kind      string `json:"kind"`
	Recipient string `json:"recipient"`
	Amount    Amount `json:"amount"`
	Timestamp int64  `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool     `json:"is_healthy"`
	EventsChecked   int64    `json:"events_checked"`
	GenesisMismatch bool     `json:"genesis_mismatch,omitempty"`
	HashChainBreaks []int64  `json:"hash_chain_breaks,omitempty"`
	Imbalance       int64    `json:"imbalance,omitempty"` // sum of all projected balances
	NegativeVaults  []string `json:"negative_vaults,omitempty"`
	LiveCoreError   string   `json:"live_core_error,omitempty"`
}
