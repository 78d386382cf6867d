package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

// maxMoney is the first value that no longer fits NUMERIC(12,2).
var maxMoney = decimal.New(1, 10)

// Assignment binds a student to a fee structure for an academic year and optional term.
// The outstanding balance is never stored; it is derived from the four amounts on every read.
type Assignment struct {
	ID             uuid.UUID
	InstitutionID  uuid.UUID
	StudentID      uuid.UUID
	FeeStructureID uuid.UUID
	AcademicYearID uuid.UUID
	TermID         *uuid.UUID
	TotalFees      decimal.Decimal
	DiscountAmount decimal.Decimal
	PenaltyAmount  decimal.Decimal
	AmountPaid     decimal.Decimal
	DueDate        *time.Time
	IsOverdue      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AdjustedTotal is what the student owes before payments.
func (a Assignment) AdjustedTotal() decimal.Decimal {
	return a.TotalFees.Sub(a.DiscountAmount).Add(a.PenaltyAmount)
}

// OutstandingBalance is total - discount + penalty - paid. It is negative after an overpayment.
func (a Assignment) OutstandingBalance() decimal.Decimal {
	return a.AdjustedTotal().Sub(a.AmountPaid)
}

// IsPaidInFull reports a balance of zero or less, so an overpayment also counts as paid in full.
func (a Assignment) IsPaidInFull() bool {
	return a.OutstandingBalance().Sign() <= 0
}

// IsPartiallyPaid reports that something, but less than the adjusted total, has been paid.
func (a Assignment) IsPartiallyPaid() bool {
	return a.AmountPaid.Sign() > 0 && a.AmountPaid.LessThan(a.AdjustedTotal())
}

// IsNotPaid reports that nothing has been paid.
func (a Assignment) IsNotPaid() bool {
	return a.AmountPaid.IsZero()
}

// ShouldMarkOverdue reports whether the overdue policy sets the flag on a as of today: the due date
// exists and has passed, the assignment is not paid in full and is not flagged yet.
// The flag is never cleared.
func (a Assignment) ShouldMarkOverdue(today time.Time) bool {
	if a.IsOverdue || a.DueDate == nil {
		return false
	}
	return dateOnly(*a.DueDate).Before(dateOnly(today)) && !a.IsPaidInFull()
}

// checkMoney validates an amount against NUMERIC(12,2).
func checkMoney(fields domainerr.FieldErrors, field string, v decimal.Decimal, allowZero bool) {
	switch {
	case v.IsNegative():
		fields.Add(field, "must not be negative")
	case !allowZero && v.IsZero():
		fields.Add(field, "must be greater than zero")
	default:
		checkScale(fields, field, v)
	}
}

// checkAdjustment validates a discount or penalty. Negative adjustments are stored as given: a
// negative discount raises the balance and a negative penalty lowers it.
func checkAdjustment(fields domainerr.FieldErrors, field string, v decimal.Decimal) {
	checkScale(fields, field, v)
}

func checkScale(fields domainerr.FieldErrors, field string, v decimal.Decimal) {
	switch {
	case !v.Equal(v.Truncate(2)):
		fields.Add(field, "must have at most 2 decimal places")
	case v.Abs().GreaterThanOrEqual(maxMoney):
		fields.Add(field, fmt.Sprintf("must be less than %s in magnitude", maxMoney.String()))
	}
}

// checkPaidCeiling rejects a payment that would push the running total past NUMERIC(12,2).
func checkPaidCeiling(a Assignment, amount decimal.Decimal) error {
	if a.AmountPaid.Add(amount).GreaterThanOrEqual(maxMoney) {
		return domainerr.Invalid("amount", fmt.Sprintf("amount paid would reach %s; the ledger cannot hold it", maxMoney.String()))
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
