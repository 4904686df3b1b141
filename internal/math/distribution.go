// internal/math/distribution.go
package math

import (
	"bytes"
	"sort"
)

// Stake is one bettor's position on the winning side of a match.
type Stake struct {
	Bettor [32]byte
	Amount uint64
}

// Share is the computed payout owed to a single winning stake.
type Share struct {
	Bettor [32]byte
	Amount uint64
	Payout uint64
}

// Distribution is the full pro-rata split of a resolved pool.
type Distribution struct {
	Pool   PoolBreakdown
	Shares []Share
	Paid   uint64 // sum of all shares
	Dust   uint64 // net - paid, left in the vault by floor division
}

// ComputeDistribution splits the net pool across stakes. The stakes must be
// every bet on the winning side, so their sum equals winningTotal.
func ComputeDistribution(sideA, sideB, winningTotal uint64, feeBps uint16, stakes []Stake) (*Distribution, error) {
	pool, err := ComputePool(sideA, sideB, feeBps)
	if err != nil {
		return nil, err
	}

	// Sort by bettor for deterministic ordering
	sorted := make([]Stake, len(stakes))
	copy(sorted, stakes)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Bettor[:], sorted[j].Bettor[:]) < 0
	})

	shares := make([]Share, 0, len(sorted))
	var paid uint64
	for _, s := range sorted {
		payout, err := MulDivFloor(pool.Net, s.Amount, winningTotal)
		if err != nil {
			return nil, err
		}
		if paid, err = CheckedAdd(paid, payout); err != nil {
			return nil, err
		}
		shares = append(shares, Share{Bettor: s.Bettor, Amount: s.Amount, Payout: payout})
	}

	dust, err := CheckedSub(pool.Net, paid)
	if err != nil {
		return nil, err
	}

	return &Distribution{
		Pool:   pool,
		Shares: shares,
		Paid:   paid,
		Dust:   dust,
	}, nil
}
