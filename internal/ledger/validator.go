package ledger

import (
	"fmt"

	"FightPool/internal/event"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is well-formed
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies system is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}

// ValidateVaultsNonNegative verifies no vault is overdrawn
func (v *InvariantValidator) ValidateVaultsNonNegative() error {
	for key, balance := range v.tracker.balances {
		if key.IsVault() && balance < 0 {
			return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
		}
	}
	return nil
}

// ValidateVaultCovers verifies a vault holds at least the obligations
// still owed out of it.
func (v *InvariantValidator) ValidateVaultCovers(matchID event.MatchID, obligations uint64) error {
	balance := v.tracker.VaultBalance(matchID)
	if balance < 0 || uint64(balance) < obligations {
		return fmt.Errorf("vault %s holds %d, owes %d", matchID, balance, obligations)
	}
	return nil
}

// ValidateVaultEmpty verifies a vault is fully drained, required before
// the match record is dropped.
func (v *InvariantValidator) ValidateVaultEmpty(matchID event.MatchID) error {
	if balance := v.tracker.VaultBalance(matchID); balance != 0 {
		return fmt.Errorf("vault %s not drained: %d", matchID, balance)
	}
	return nil
}
