package service

import (
	"math"
	"sort"
)

// feeRate is the fixed share of the pot retained by the resolving admin.
const feeRate = 0.05

// splitPot divides pot among stakes pro rata, returning one payout per
// stake. All arithmetic happens in integer cents with largest-remainder
// rounding: each stake gets the floor of its exact share, and leftover
// cents go to the largest fractional remainders first (ties broken by
// larger stake, then by position). The returned payouts always sum to pot
// rounded to cents.
func splitPot(pot float64, stakes []float64) []float64 {
	if len(stakes) == 0 {
		return nil
	}

	var totalStake float64
	for _, s := range stakes {
		totalStake += s
	}
	if totalStake <= 0 {
		return make([]float64, len(stakes))
	}

	potCents := int64(math.Round(pot * 100))

	type share struct {
		idx       int
		cents     int64
		remainder float64
	}

	shares := make([]share, len(stakes))
	var allocated int64
	for i, s := range stakes {
		exact := s / totalStake * float64(potCents)
		floor := math.Floor(exact)
		shares[i] = share{
			idx:       i,
			cents:     int64(floor),
			remainder: exact - floor,
		}
		allocated += int64(floor)
	}

	leftover := potCents - allocated
	if leftover > 0 {
		order := make([]int, len(shares))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			sa, sb := shares[order[a]], shares[order[b]]
			if sa.remainder != sb.remainder {
				return sa.remainder > sb.remainder
			}
			return stakes[sa.idx] > stakes[sb.idx]
		})
		for i := int64(0); i < leftover; i++ {
			shares[order[i%int64(len(order))]].cents++
		}
	}

	payouts := make([]float64, len(stakes))
	for _, sh := range shares {
		payouts[sh.idx] = float64(sh.cents) / 100
	}
	return payouts
}

// roundCents rounds an amount to whole cents, half away from zero.
func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
