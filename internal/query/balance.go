package query

import (
	"context"
	"database/sql"
	"errors"

	"FightPool/internal/event"
	"FightPool/internal/ledger"
)

var (
	errFractionalLamports = errors.New("amount is not a whole number of lamports")
	errLamportRange       = errors.New("amount out of lamport range")
)

// BalanceResponse is one ledger account.
type BalanceResponse struct {
	Account      string `json:"account"` // account path, e.g. wallet:<hex>
	Lamports     int64  `json:"lamports,string"`
	SOL          string `json:"sol"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// GetWalletBalance returns the escrow-facing balance of an identity.
// Wallets go negative as they stake: the ledger tracks net flow into the
// escrow, not the identity's on-chain holdings.
func (qs *QueryService) GetWalletBalance(ctx context.Context, owner event.Pubkey) (*BalanceResponse, error) {
	return qs.getBalance(ctx, ledger.WalletAccount(owner))
}

// GetVaultBalance returns the custody balance of a match.
func (qs *QueryService) GetVaultBalance(ctx context.Context, matchID event.MatchID) (*BalanceResponse, error) {
	return qs.getBalance(ctx, ledger.VaultAccount(matchID))
}

func (qs *QueryService) getBalance(ctx context.Context, key ledger.AccountKey) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var balance int64
	err = qs.db.QueryRowContext(ctx,
		`SELECT balance FROM projections.balances WHERE account_path = $1`, key.AccountPath(),
	).Scan(&balance)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return &BalanceResponse{
		Account:      key.AccountPath(),
		Lamports:     balance,
		SOL:          SignedSOL(balance),
		AsOfSequence: asOfSeq,
	}, nil
}
