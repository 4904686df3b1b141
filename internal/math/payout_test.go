package math_test

import (
	"errors"
	stdmath "math"
	"testing"

	fpmath "FightPool/internal/math"
)

// ============================================================================
// Test: Pool economics
// ============================================================================

func TestFee_DefaultRate(t *testing.T) {
	fee, err := fpmath.Fee(1_000_000_000, 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 30_000_000 {
		t.Errorf("got %d, want %d", fee, 30_000_000)
	}
}

func TestFee_FloorsFractionalLamports(t *testing.T) {
	// 999 * 300 / 10000 = 29.97
	fee, err := fpmath.Fee(999, 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fee != 29 {
		t.Errorf("got %d, want %d", fee, 29)
	}
}

func TestFee_NoOverflowAtMaxPool(t *testing.T) {
	fee, err := fpmath.Fee(stdmath.MaxUint64, 1000)
	if err != nil {
		t.Fatalf("128-bit intermediate should absorb the product: %v", err)
	}
	if fee != stdmath.MaxUint64/10 {
		t.Errorf("got %d, want %d", fee, uint64(stdmath.MaxUint64/10))
	}
}

func TestTotalPool_Overflow(t *testing.T) {
	_, err := fpmath.TotalPool(stdmath.MaxUint64, 1)
	if !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestWinnerPayout_SingleBettorTakesNet(t *testing.T) {
	payout, err := fpmath.WinnerPayout(1_000_000_000, 1_000_000_000, 1_000_000_000, 300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payout != 970_000_000 {
		t.Errorf("got %d, want %d", payout, 970_000_000)
	}
}

func TestWinnerPayout_ProRata(t *testing.T) {
	// A: 3 SOL + 1 SOL, B: 4 SOL. A wins. net = 8 SOL * 0.97 = 7.76 SOL.
	const total = 8_000_000_000
	const winning = 4_000_000_000

	tests := []struct {
		name   string
		amount uint64
		want   uint64
	}{
		{"large stake", 3_000_000_000, 5_820_000_000},
		{"small stake", 1_000_000_000, 1_940_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fpmath.WinnerPayout(tt.amount, winning, total, 300)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWinnerPayout_ZeroWinningSide(t *testing.T) {
	_, err := fpmath.WinnerPayout(1, 0, 10, 300)
	if !errors.Is(err, fpmath.ErrDivideByZero) {
		t.Errorf("got %v, want ErrDivideByZero", err)
	}
}

func TestWinnerPayout_LargeValuesStayExact(t *testing.T) {
	// net * amount exceeds 64 bits but the quotient does not.
	const big = uint64(1) << 62
	got, err := fpmath.WinnerPayout(big, big, big, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != big {
		t.Errorf("got %d, want %d", got, big)
	}
}

func TestNoWinnersRefund(t *testing.T) {
	tests := []struct {
		amount uint64
		feeBps uint16
		want   uint64
	}{
		{5_000_000, 300, 4_850_000},
		{3_000_000, 300, 2_910_000},
		{1, 300, 0},
		{10_000_000, 0, 10_000_000},
		{10_000_000, 1000, 9_000_000},
	}
	for _, tt := range tests {
		got, err := fpmath.NoWinnersRefund(tt.amount, tt.feeBps)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("NoWinnersRefund(%d, %d): got %d, want %d", tt.amount, tt.feeBps, got, tt.want)
		}
	}
}

func TestNoWinnersRefund_RateAboveDenominator(t *testing.T) {
	_, err := fpmath.NoWinnersRefund(1_000, 10_001)
	if !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

// ============================================================================
// Test: Checked helpers
// ============================================================================

func TestMulDivFloor_NarrowingOverflow(t *testing.T) {
	_, err := fpmath.MulDivFloor(stdmath.MaxUint64, 2, 1)
	if !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestCheckedCounters(t *testing.T) {
	if _, err := fpmath.CheckedAddU32(stdmath.MaxUint32, 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("add: got %v, want ErrOverflow", err)
	}
	if _, err := fpmath.CheckedSubU32(0, 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("sub: got %v, want ErrOverflow", err)
	}
	if _, err := fpmath.ToInt64(stdmath.MaxInt64 + 1); !errors.Is(err, fpmath.ErrOverflow) {
		t.Errorf("narrow: got %v, want ErrOverflow", err)
	}
}

func TestSaturatingSub(t *testing.T) {
	if got := fpmath.SaturatingSub(10, 20); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := fpmath.SaturatingSub(20, 10); got != 10 {
		t.Errorf("got %d, want 10", got)
	}
	if got := fpmath.SaturatingSub(stdmath.MaxInt64, -1); got != stdmath.MaxInt64 {
		t.Errorf("got %d, want MaxInt64", got)
	}
}

// ============================================================================
// Test: Distribution
// ============================================================================

func TestComputeDistribution_NeverExceedsNet(t *testing.T) {
	stakes := []fpmath.Stake{
		{Bettor: [32]byte{3}, Amount: 333_333_333},
		{Bettor: [32]byte{1}, Amount: 333_333_333},
		{Bettor: [32]byte{2}, Amount: 333_333_334},
	}
	d, err := fpmath.ComputeDistribution(1_000_000_000, 777_777_777, 1_000_000_000, 300, stakes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Paid+d.Pool.Fee > d.Pool.Total {
		t.Errorf("paid %d + fee %d exceeds total %d", d.Paid, d.Pool.Fee, d.Pool.Total)
	}
	if d.Paid+d.Dust != d.Pool.Net {
		t.Errorf("paid %d + dust %d != net %d", d.Paid, d.Dust, d.Pool.Net)
	}
	if d.Shares[0].Bettor != ([32]byte{1}) {
		t.Error("shares should be ordered by bettor")
	}
}
