package projection

import (
	"context"
	"database/sql"
	"strings"

	"FightPool/internal/event"
)

// SettlementEntry is one outflow from a match vault.
type SettlementEntry struct {
	Sequence  int64
	Leg       int
	MatchID   event.MatchID
	Kind      string // journal type: payout, refund, fee_withdrawal, ...
	Recipient string // account path credited with the funds
	Amount    int64
	Timestamp int64
}

// SettlementsFrom extracts the vault outflows of one output. Stakes flow
// into the vault and are not settlements.
func SettlementsFrom(output ProjectionOutput) []SettlementEntry {
	if output.MatchID == nil {
		return nil
	}
	var entries []SettlementEntry
	for i, j := range output.Journals {
		if !strings.HasPrefix(j.CreditAccount, "vault:") {
			continue
		}
		entries = append(entries, SettlementEntry{
			Sequence:  output.Sequence,
			Leg:       i,
			MatchID:   *output.MatchID,
			Kind:      j.JournalType,
			Recipient: j.DebitAccount,
			Amount:    j.Amount,
			Timestamp: output.Timestamp,
		})
	}
	return entries
}

func insertSettlement(ctx context.Context, tx *sql.Tx, s SettlementEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.settlements (sequence, leg, match_id, kind, recipient, amount, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sequence, leg) DO NOTHING
	`, s.Sequence, s.Leg, s.MatchID.String(), s.Kind, s.Recipient, s.Amount, s.Timestamp)
	return err
}
