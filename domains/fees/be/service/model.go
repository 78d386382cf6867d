package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FeeType classifies a fee item.
type FeeType string

const (
	FeeTuition       FeeType = "tuition"
	FeeRegistration  FeeType = "registration"
	FeeExamination   FeeType = "examination"
	FeeLibrary       FeeType = "library"
	FeeLaboratory    FeeType = "laboratory"
	FeeAccommodation FeeType = "accommodation"
	FeeActivity      FeeType = "activity"
	FeeOther         FeeType = "other"
)

func parseFeeType(s string) (FeeType, bool) {
	if s == "" {
		return FeeOther, true
	}
	switch t := FeeType(s); t {
	case FeeTuition, FeeRegistration, FeeExamination, FeeLibrary, FeeLaboratory, FeeAccommodation, FeeActivity, FeeOther:
		return t, true
	}
	return "", false
}

// PaymentMethod is how a payment was received.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodCard         PaymentMethod = "card"
	MethodCheque       PaymentMethod = "cheque"
	MethodOther        PaymentMethod = "other"
)

func parseMethod(s string) (PaymentMethod, bool) {
	if s == "" {
		return MethodOther, true
	}
	switch m := PaymentMethod(s); m {
	case MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCard, MethodCheque, MethodOther:
		return m, true
	}
	return "", false
}

// Structure is one version of an institution's fee catalog.
type Structure struct {
	ID            uuid.UUID
	InstitutionID uuid.UUID
	Version       int
	Name          string
	IsActive      bool
	Items         []Item
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MandatoryTotal sums the mandatory items.
func (s Structure) MandatoryTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		if it.IsMandatory {
			total = total.Add(it.Amount)
		}
	}
	return total
}

type Item struct {
	ID          uuid.UUID
	StructureID uuid.UUID
	Name        string
	Type        FeeType
	Amount      decimal.Decimal
	IsMandatory bool
	Description string
	CreatedAt   time.Time
}

// Payment is an append-only ledger row. Recording it increments the assignment's amount paid.
type Payment struct {
	ID            uuid.UUID
	InstitutionID uuid.UUID
	AssignmentID  uuid.UUID
	Amount        decimal.Decimal
	Method        PaymentMethod
	Reference     string
	RecordedBy    *uuid.UUID
	PaidAt        time.Time
	CreatedAt     time.Time
}

type StructureInput struct {
	Name  string
	Items []ItemInput
}

type ItemInput struct {
	Name        string
	Type        string
	Amount      decimal.Decimal
	IsMandatory bool
	Description string
}

// AssignInput creates an assignment. A nil TotalFees defaults to the structure's mandatory items plus
// the optional items listed in OptionalItemIDs.
type AssignInput struct {
	StudentID       uuid.UUID
	FeeStructureID  uuid.UUID
	AcademicYearID  uuid.UUID
	TermID          *uuid.UUID
	TotalFees       *decimal.Decimal
	OptionalItemIDs []uuid.UUID
	DiscountAmount  decimal.Decimal
	PenaltyAmount   decimal.Decimal
	DueDate         *time.Time
}

type PaymentInput struct {
	Amount    decimal.Decimal
	Method    string
	Reference string
	PaidAt    *time.Time
}

// AdjustInput changes discount and penalty; nil leaves a value unchanged.
type AdjustInput struct {
	DiscountAmount *decimal.Decimal
	PenaltyAmount  *decimal.Decimal
}

// AssignmentFilter narrows an assignment listing.
type AssignmentFilter struct {
	StudentID      *uuid.UUID
	AcademicYearID *uuid.UUID
	TermID         *uuid.UUID
	Overdue        *bool
	Page           int
	PageSize       int
}

type AssignmentPage struct {
	Assignments []Assignment
	TotalItems  int
}

// StatementLine is one assignment with its payments.
type StatementLine struct {
	Assignment Assignment
	Payments   []Payment
}

// Statement is a student's fee position across every assignment.
type Statement struct {
	StudentID        uuid.UUID
	FullName         string
	AdmissionNumber  string
	Lines            []StatementLine
	TotalBilled      decimal.Decimal
	TotalPaid        decimal.Decimal
	TotalOutstanding decimal.Decimal
}
