// Package yield implements the time-proportional yield math used by the
// distribution waterfall. All functions are pure; amounts are int64 base
// units and rates are annual basis points.
package yield

import (
	"fmt"
	"math"
	"math/big"
	"time"
)

const (
	bpsDenominator = 10_000
	// secondsPerYear uses a 365-day year, matching the APY convention of
	// the issuance contract.
	secondsPerYear = 365 * 24 * 60 * 60
)

// Accrued returns the yield earned by principal at apyBps over elapsed,
// rounded down:
//
//	principal * apyBps * elapsedSeconds / (10000 * secondsPerYear)
//
// The intermediate product can exceed 64 bits for large books, so the math
// runs in big integers. Negative inputs and results that overflow int64 are
// rejected.
func Accrued(principal, apyBps int64, elapsed time.Duration) (int64, error) {
	if principal < 0 {
		return 0, fmt.Errorf("yield: negative principal %d", principal)
	}
	if apyBps < 0 {
		return 0, fmt.Errorf("yield: negative apy %d", apyBps)
	}
	if elapsed <= 0 {
		return 0, nil
	}

	secs := int64(elapsed / time.Second)
	num := new(big.Int).SetInt64(principal)
	num.Mul(num, big.NewInt(apyBps))
	num.Mul(num, big.NewInt(secs))

	den := new(big.Int).SetInt64(bpsDenominator)
	den.Mul(den, big.NewInt(secondsPerYear))

	num.Quo(num, den)
	if !num.IsInt64() {
		return 0, fmt.Errorf("yield: accrual overflows int64 (principal=%d apy=%d elapsed=%s)", principal, apyBps, elapsed)
	}
	return num.Int64(), nil
}

// ProRata returns floor(principal * pool / total): the investor's share of a
// tranche-level yield pool, weighted by principal. total must be positive
// and principal must not exceed total.
func ProRata(principal, pool, total int64) (int64, error) {
	if total <= 0 {
		return 0, fmt.Errorf("yield: pro-rata over non-positive total %d", total)
	}
	if principal < 0 || pool < 0 {
		return 0, fmt.Errorf("yield: negative pro-rata input (principal=%d pool=%d)", principal, pool)
	}
	if principal > total {
		return 0, fmt.Errorf("yield: principal %d exceeds tranche total %d", principal, total)
	}

	num := new(big.Int).SetInt64(principal)
	num.Mul(num, big.NewInt(pool))
	num.Quo(num, big.NewInt(total))
	if !num.IsInt64() {
		return 0, fmt.Errorf("yield: pro-rata share overflows int64")
	}
	return num.Int64(), nil
}

// SplitAllocation divides target across the three tiers at 50/33/17 and
// assigns the rounding remainder to the senior cap, so the caps always sum
// exactly to target. Results are ordered senior, mezzanine, junior.
func SplitAllocation(target int64) ([3]int64, error) {
	if target <= 0 {
		return [3]int64{}, fmt.Errorf("yield: non-positive principal target %d", target)
	}
	mezz := mulBps(target, 3300)
	junior := mulBps(target, 1700)
	senior := target - mezz - junior
	if senior < 0 || senior+mezz+junior != target {
		return [3]int64{}, fmt.Errorf("yield: allocation split of %d does not reconcile", target)
	}
	return [3]int64{senior, mezz, junior}, nil
}

func mulBps(amount, bps int64) int64 {
	if amount <= math.MaxInt64/bps {
		return amount * bps / bpsDenominator
	}
	n := new(big.Int).SetInt64(amount)
	n.Mul(n, big.NewInt(bps))
	n.Quo(n, big.NewInt(bpsDenominator))
	return n.Int64()
}
