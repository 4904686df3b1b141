package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeStake          JournalType = iota // wallet → vault
	JournalTypePayout                            // vault → winner
	JournalTypeRefund                            // vault → bettor, cancelled match
	JournalTypeNoWinnerRefund                    // vault → bettor, nobody won
	JournalTypeUnclaimedSweep                    // vault → treasury
	JournalTypeCancelledSweep                    // vault → bettor, abandoned refund
	JournalTypeFeeWithdrawal                     // vault → treasury
	JournalTypeVaultClose                        // vault remainder → authority
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeStake:
		return "stake"
	case JournalTypePayout:
		return "payout"
	case JournalTypeRefund:
		return "refund"
	case JournalTypeNoWinnerRefund:
		return "no_winner_refund"
	case JournalTypeUnclaimedSweep:
		return "unclaimed_sweep"
	case JournalTypeCancelledSweep:
		return "cancelled_sweep"
	case JournalTypeFeeWithdrawal:
		return "fee_withdrawal"
	case JournalTypeVaultClose:
		return "vault_close"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Deterministic from the batch and leg index
	BatchID       uuid.UUID   // Groups balanced entries
	EventRef      string      // Idempotency key of source command
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Amount        int64       // Lamports (ALWAYS positive)
	JournalType   JournalType // Entry type
	Timestamp     int64       // Command timestamp (unix seconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed.
// Each journal moves one positive amount from credit to debit, so every
// entry balances on its own and so does any batch of them.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
