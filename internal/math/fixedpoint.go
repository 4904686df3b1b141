// internal/math/fixedpoint.go
package math

import (
	"errors"
	"math"
	"math/big"
	"sync"
)

// BpsDenominator is the basis-point scale: 10_000 bps = 100%.
const BpsDenominator = 10_000

var (
	// ErrOverflow is returned when an intermediate or the narrowed result
	// does not fit the target width.
	ErrOverflow = errors.New("arithmetic overflow")

	// ErrDivideByZero is returned when a pro-rata split has an empty base.
	ErrDivideByZero = errors.New("division by zero")
)

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

// Int128 is a pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MulDivFloor computes floor(a * b / d) with a 128-bit intermediate.
// The result must fit in a uint64.
func MulDivFloor(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivideByZero
	}

	product := getInt128()
	divisor := getInt128()
	defer putInt128(product)
	defer putInt128(divisor)

	product.SetUint64(a)
	divisor.SetUint64(b)
	product.Mul(product, divisor)

	divisor.SetUint64(d)
	product.Quo(product, divisor) // operands are non-negative, Quo == floor

	return narrowUint64(product)
}

func narrowUint64(v *big.Int) (uint64, error) {
	if v.Sign() < 0 || v.Cmp(maxUint64) > 0 {
		return 0, ErrOverflow
	}
	return v.Uint64(), nil
}

// CheckedAdd returns a + b or ErrOverflow.
func CheckedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSub returns a - b or ErrOverflow when b > a.
func CheckedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// CheckedAddU32 is CheckedAdd for 32-bit counters.
func CheckedAddU32(a, b uint32) (uint32, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// CheckedSubU32 is CheckedSub for 32-bit counters.
func CheckedSubU32(a, b uint32) (uint32, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// ToInt64 narrows a lamport amount to the ledger's signed width.
func ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, ErrOverflow
	}
	return int64(v), nil
}

// SaturatingSub returns a - b, or 0 when b > a. Used for elapsed-time
// checks against timestamps that may sit in the future.
func SaturatingSub(a, b int64) int64 {
	if b > a {
		return 0
	}
	d := a - b
	if d < 0 {
		return math.MaxInt64
	}
	return d
}

// MinUint64 returns the smaller of a and b.
func MinUint64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
