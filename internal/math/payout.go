// internal/math/payout.go
package math

// Pool economics for a two-sided parimutuel match. All amounts are lamports.
// Every function is pure and floors; residual dust stays in the vault.

// TotalPool returns sideA + sideB.
func TotalPool(sideA, sideB uint64) (uint64, error) {
	return CheckedAdd(sideA, sideB)
}

// Fee computes floor(total * feeBps / 10_000).
func Fee(total uint64, feeBps uint16) (uint64, error) {
	return MulDivFloor(total, uint64(feeBps), BpsDenominator)
}

// NetPool computes total - Fee(total, feeBps).
func NetPool(total uint64, feeBps uint16) (uint64, error) {
	fee, err := Fee(total, feeBps)
	if err != nil {
		return 0, err
	}
	return CheckedSub(total, fee)
}

// WinnerPayout computes floor(net * amount / winningTotal), where net is the
// pool after fee. winningTotal must be non-zero.
func WinnerPayout(amount, winningTotal, total uint64, feeBps uint16) (uint64, error) {
	if winningTotal == 0 {
		return 0, ErrDivideByZero
	}
	net, err := NetPool(total, feeBps)
	if err != nil {
		return 0, err
	}
	return MulDivFloor(net, amount, winningTotal)
}

// NoWinnersRefund computes floor(amount * (10_000 - feeBps) / 10_000), the
// refund owed to every bettor when nobody backed the winning side.
func NoWinnersRefund(amount uint64, feeBps uint16) (uint64, error) {
	keep, err := CheckedSub(BpsDenominator, uint64(feeBps))
	if err != nil {
		return 0, err
	}
	return MulDivFloor(amount, keep, BpsDenominator)
}

// PoolBreakdown is the fee split of a match pool at a given rate.
type PoolBreakdown struct {
	SideA  uint64
	SideB  uint64
	Total  uint64
	FeeBps uint16
	Fee    uint64
	Net    uint64
}

// ComputePool derives total, fee and net pool for the two side totals.
func ComputePool(sideA, sideB uint64, feeBps uint16) (PoolBreakdown, error) {
	total, err := TotalPool(sideA, sideB)
	if err != nil {
		return PoolBreakdown{}, err
	}
	fee, err := Fee(total, feeBps)
	if err != nil {
		return PoolBreakdown{}, err
	}
	net, err := CheckedSub(total, fee)
	if err != nil {
		return PoolBreakdown{}, err
	}
	return PoolBreakdown{
		SideA:  sideA,
		SideB:  sideB,
		Total:  total,
		FeeBps: feeBps,
		Fee:    fee,
		Net:    net,
	}, nil
}
