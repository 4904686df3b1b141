package ledger

import (
	"errors"
	"fmt"
	"math"

	"FightPool/internal/event"
)

// ErrNegativeVault is returned when a batch would overdraw a vault.
var ErrNegativeVault = errors.New("vault balance would go negative")

// ErrBalanceOverflow is returned when a balance leaves the int64 range.
var ErrBalanceOverflow = errors.New("balance overflow")

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// Project returns the balances every touched account would hold after the
// batch, without applying it. Vaults may not go negative.
func (bt *BalanceTracker) Project(batch *Batch) (map[AccountKey]int64, error) {
	if err := batch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch: %w", err)
	}

	projected := make(map[AccountKey]int64, 2*len(batch.Journals))
	get := func(k AccountKey) int64 {
		if v, ok := projected[k]; ok {
			return v
		}
		return bt.balances[k]
	}

	for _, j := range batch.Journals {
		debit, ok := addInt64(get(j.DebitAccount), j.Amount)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBalanceOverflow, j.DebitAccount)
		}
		credit, ok := addInt64(get(j.CreditAccount), -j.Amount)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrBalanceOverflow, j.CreditAccount)
		}
		projected[j.DebitAccount] = debit
		projected[j.CreditAccount] = credit
	}

	for k, v := range projected {
		if k.IsVault() && v < 0 {
			return nil, fmt.Errorf("%w: %s would hold %d", ErrNegativeVault, k.AccountPath(), v)
		}
	}
	return projected, nil
}

// ApplyBatch applies all journals in a batch, or none of them.
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	projected, err := bt.Project(batch)
	if err != nil {
		return err
	}
	for k, v := range projected {
		bt.balances[k] = v
	}
	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// VaultBalance returns the custody balance of a match.
func (bt *BalanceTracker) VaultBalance(matchID event.MatchID) int64 {
	return bt.balances[VaultAccount(matchID)]
}

// WalletBalance returns an identity's net flow with the escrow.
func (bt *BalanceTracker) WalletBalance(owner event.Pubkey) int64 {
	return bt.balances[WalletAccount(owner)]
}

// ValidateSufficientVault checks that the vault can fund a transfer.
func (bt *BalanceTracker) ValidateSufficientVault(matchID event.MatchID, required int64) error {
	have := bt.VaultBalance(matchID)
	if have < required {
		return fmt.Errorf("insufficient vault balance: have=%d, need=%d", have, required)
	}
	return nil
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (should be 0 for zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances, used when loading a snapshot.
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}

func addInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}
