package calculator

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

var (
	ErrNoParticipants   = errors.New("must have at least one participant")
	ErrNonPositiveTotal = errors.New("total amount must be greater than zero")
)

// tolerance is the largest rounding gap accepted between the sum of the
// shares and the expense total.
var tolerance = decimal.New(1, -2)

// Share is one participant's input to a split: an explicit amount for unequal
// splits, a percentage for percentage splits. Equal splits ignore both.
type Share struct {
	Amount     float64
	Percentage float64
}

// ComputeShares returns the amount owed by each participant, in input order,
// rounded to cents. The returned amounts always add up to the total.
//
//   - equal: total / n, leftover cents go to the first participants
//   - unequal: the given amounts, which must add up to the total
//   - percentage: total × pct / 100, percentages must add up to 100; the last
//     participant absorbs the rounding remainder
func ComputeShares(total float64, splitType models.SplitType, shares []Share) ([]float64, error) {
	if len(shares) == 0 {
		return nil, ErrNoParticipants
	}
	if total <= 0 {
		return nil, ErrNonPositiveTotal
	}

	totalDec := decimal.NewFromFloat(total).Round(2)

	switch splitType {
	case models.SplitEqual, "":
		return equalShares(totalDec, len(shares)), nil
	case models.SplitUnequal:
		return unequalShares(totalDec, shares)
	case models.SplitPercentage:
		return percentageShares(totalDec, shares)
	default:
		return nil, fmt.Errorf("unknown split type %q", splitType)
	}
}

func equalShares(total decimal.Decimal, n int) []float64 {
	cents := total.Shift(2).IntPart()
	base := cents / int64(n)
	remainder := cents % int64(n)

	amounts := make([]float64, n)
	for i := range amounts {
		c := base
		if int64(i) < remainder {
			c++
		}
		amounts[i] = decimal.New(c, -2).InexactFloat64()
	}
	return amounts
}

func unequalShares(total decimal.Decimal, shares []Share) ([]float64, error) {
	sum := decimal.Zero
	amounts := make([]float64, len(shares))
	for i, s := range shares {
		if s.Amount < 0 {
			return nil, fmt.Errorf("participant %d: amount cannot be negative", i+1)
		}
		amount := decimal.NewFromFloat(s.Amount).Round(2)
		sum = sum.Add(amount)
		amounts[i] = amount.InexactFloat64()
	}
	if sum.Sub(total).Abs().GreaterThan(tolerance) {
		return nil, fmt.Errorf("amounts add up to %s, want %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return amounts, nil
}

func percentageShares(total decimal.Decimal, shares []Share) ([]float64, error) {
	hundred := decimal.NewFromInt(100)
	sumPct := decimal.Zero
	for i, s := range shares {
		if s.Percentage < 0 {
			return nil, fmt.Errorf("participant %d: percentage cannot be negative", i+1)
		}
		sumPct = sumPct.Add(decimal.NewFromFloat(s.Percentage))
	}
	if sumPct.Sub(hundred).Abs().GreaterThan(tolerance) {
		return nil, fmt.Errorf("percentages add up to %s, want 100", sumPct.StringFixed(2))
	}

	amounts := make([]float64, len(shares))
	allocated := decimal.Zero
	for i, s := range shares {
		var amount decimal.Decimal
		if i == len(shares)-1 {
			amount = total.Sub(allocated)
		} else {
			amount = total.Mul(decimal.NewFromFloat(s.Percentage)).Div(hundred).Round(2)
		}
		allocated = allocated.Add(amount)
		amounts[i] = amount.InexactFloat64()
	}
	return amounts, nil
}

// AddedShare returns the amount owed by one participant joining an existing
// unequal or percentage expense. The other shares are left alone, so the sum
// is not checked against the total.
func AddedShare(total float64, splitType models.SplitType, share Share) (float64, error) {
	switch splitType {
	case models.SplitUnequal:
		if share.Amount < 0 {
			return 0, errors.New("amount cannot be negative")
		}
		return decimal.NewFromFloat(share.Amount).Round(2).InexactFloat64(), nil
	case models.SplitPercentage:
		if share.Percentage < 0 || share.Percentage > 100 {
			return 0, fmt.Errorf("percentage %.2f is out of range", share.Percentage)
		}
		amount := decimal.NewFromFloat(total).Mul(decimal.NewFromFloat(share.Percentage)).Div(decimal.NewFromInt(100))
		return amount.Round(2).InexactFloat64(), nil
	default:
		return 0, fmt.Errorf("split type %q has no per-participant share", splitType)
	}
}
