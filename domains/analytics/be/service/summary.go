package service

import (
	"github.com/shopspring/decimal"

	fees "github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
)

var hundred = decimal.NewFromInt(100)

// CollectionRate is paid / billed × 100 rounded to two decimals, or zero when nothing was billed.
func CollectionRate(paid, billed decimal.Decimal) decimal.Decimal {
	if billed.Sign() <= 0 {
		return decimal.Zero
	}
	return paid.Div(billed).Mul(hundred).Round(2)
}

// Summary is the collection position of a set of assignments. The payer-status counts overlap:
// an overdue assignment is also counted as partially paid or not paid.
type Summary struct {
	TotalStudents    int
	TotalBilled      decimal.Decimal
	TotalPaid        decimal.Decimal
	TotalOutstanding decimal.Decimal
	FullyPaid        int
	PartiallyPaid    int
	NotPaid          int
	Overdue          int
	CollectionRate   decimal.Decimal
}

// AverageFeePerStudent is billed / students rounded to two decimals, or zero without students.
func (s Summary) AverageFeePerStudent() decimal.Decimal {
	if s.TotalStudents <= 0 {
		return decimal.Zero
	}
	return s.TotalBilled.Div(decimal.NewFromInt(int64(s.TotalStudents))).Round(2)
}

// Summarize aggregates assignments. Billed is the sum of total fees; outstanding is the sum of
// per-assignment balances, so the two differ by discounts and penalties.
func Summarize(students int, assignments []fees.Assignment) Summary {
	s := Summary{
		TotalStudents:    students,
		TotalBilled:      decimal.Zero,
		TotalPaid:        decimal.Zero,
		TotalOutstanding: decimal.Zero,
	}
	for _, a := range assignments {
		s.TotalBilled = s.TotalBilled.Add(a.TotalFees)
		s.TotalPaid = s.TotalPaid.Add(a.AmountPaid)
		s.TotalOutstanding = s.TotalOutstanding.Add(a.OutstandingBalance())
		switch {
		case a.IsPaidInFull():
			s.FullyPaid++
		case a.IsPartiallyPaid():
			s.PartiallyPaid++
		}
		if a.IsNotPaid() {
			s.NotPaid++
		}
		if a.IsOverdue {
			s.Overdue++
		}
	}
	s.CollectionRate = CollectionRate(s.TotalPaid, s.TotalBilled)
	return s
}
