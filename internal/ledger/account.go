package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"FightPool/internal/event"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	// AccountScopeVault is the per-match custody account. Never negative.
	AccountScopeVault AccountScope = iota + 1
	// AccountScopeWallet is an external identity's net flow with the escrow.
	// Stakes drive it negative; payouts and refunds bring it back.
	AccountScopeWallet
)

func (s AccountScope) String() string {
	switch s {
	case AccountScopeVault:
		return "vault"
	case AccountScopeWallet:
		return "wallet"
	default:
		return "unknown"
	}
}

// AccountKey is the in-memory key for balance tracking (33 bytes, comparable)
type AccountKey struct {
	Scope    AccountScope
	EntityID [32]byte // match id for vaults, pubkey for wallets
}

// VaultAccount returns the custody account of a match.
func VaultAccount(matchID event.MatchID) AccountKey {
	return AccountKey{Scope: AccountScopeVault, EntityID: matchID}
}

// WalletAccount returns the escrow-facing account of an identity.
func WalletAccount(owner event.Pubkey) AccountKey {
	return AccountKey{Scope: AccountScopeWallet, EntityID: owner}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	return fmt.Sprintf("%s:%s", k.Scope, hex.EncodeToString(k.EntityID[:]))
}

func (k AccountKey) String() string {
	return k.AccountPath()
}

// IsVault reports whether the account is match custody.
func (k AccountKey) IsVault() bool {
	return k.Scope == AccountScopeVault
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	scope, entity, ok := strings.Cut(path, ":")
	if !ok {
		return AccountKey{}, fmt.Errorf("account path %q: missing scope separator", path)
	}

	var key AccountKey
	switch scope {
	case "vault":
		key.Scope = AccountScopeVault
	case "wallet":
		key.Scope = AccountScopeWallet
	default:
		return AccountKey{}, fmt.Errorf("account path %q: unknown scope %q", path, scope)
	}

	if len(entity) != 64 {
		return AccountKey{}, fmt.Errorf("account path %q: entity must be 64 hex chars", path)
	}
	if _, err := hex.Decode(key.EntityID[:], []byte(entity)); err != nil {
		return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
	}
	return key, nil
}
