package service_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	academicsrepo "github.com/zenGate-Global/edupay-saas/domains/academics/be/repo"
	academics "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	"github.com/zenGate-Global/edupay-saas/domains/fees/be/repo"
	"github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	studentsrepo "github.com/zenGate-Global/edupay-saas/domains/students/be/repo"
	students "github.com/zenGate-Global/edupay-saas/domains/students/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func moneyPtr(s string) *decimal.Decimal {
	d := money(s)
	return &d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type counter struct {
	payments map[string]int
	overdue  int
}

func (c *counter) PaymentRecorded(method string) { c.payments[method]++ }
func (c *counter) OverdueMarked(n int)           { c.overdue += n }

type fixture struct {
	svc     *service.Service
	repo    *repo.MemoryRepository
	metrics *counter
	school  uuid.UUID
	student students.Student
	year    academics.AcademicYear
	term1   academics.Term
	term2   academics.Term
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := t.Context()
	f := &fixture{school: uuid.New(), metrics: &counter{payments: map[string]int{}}, now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}

	calendar := academics.New(academicsrepo.NewMemoryRepository())
	var err error
	f.year, err = calendar.CreateYear(ctx, f.school, academics.YearInput{
		Code: "2025", StartDate: date(2025, 1, 6), EndDate: date(2025, 11, 28), Activate: true,
	})
	require.NoError(t, err)
	f.term1, err = calendar.CreateTerm(ctx, f.school, academics.TermInput{
		AcademicYearID: f.year.ID, Number: 1, StartDate: date(2025, 1, 6), EndDate: date(2025, 4, 4),
	})
	require.NoError(t, err)
	f.term2, err = calendar.CreateTerm(ctx, f.school, academics.TermInput{
		AcademicYearID: f.year.ID, Number: 2, StartDate: date(2025, 5, 5), EndDate: date(2025, 8, 1),
	})
	require.NoError(t, err)

	roster := students.New(studentsrepo.NewMemoryRepository(), calendar)
	f.student, err = roster.Create(ctx, f.school, students.CreateInput{FullName: "Amina Njeri", AdmissionNumber: "ADM-001"})
	require.NoError(t, err)

	f.repo = repo.NewMemoryRepository()
	f.svc = service.New(f.repo, service.NewDirectory(roster, calendar),
		service.WithMetrics(f.metrics),
		service.WithLogger(zaptest.NewLogger(t)),
		service.WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) structure(t *testing.T) service.Structure {
	t.Helper()
	st, err := f.svc.CreateStructure(t.Context(), f.school, service.StructureInput{
		Name: "2025 fees",
		Items: []service.ItemInput{
			{Name: "Tuition", Type: "tuition", Amount: money("800.00"), IsMandatory: true},
			{Name: "Examination", Type: "examination", Amount: money("200.00"), IsMandatory: true},
			{Name: "Library", Type: "library", Amount: money("150.00")},
		},
	})
	require.NoError(t, err)
	return st
}

func TestOutstandingBalance(t *testing.T) {
	cases := []struct {
		name                           string
		total, discount, penalty, paid string
		balance                        string
		paidInFull, partially, notPaid bool
	}{
		{name: "untouched", total: "1000", discount: "0", penalty: "0", paid: "0", balance: "1000", notPaid: true},
		{name: "partial", total: "1000", discount: "0", penalty: "0", paid: "400", balance: "600", partially: true},
		{name: "discount and penalty", total: "1000", discount: "100", penalty: "50", paid: "950", balance: "0", paidInFull: true},
		{name: "overpaid", total: "1000", discount: "0", penalty: "0", paid: "1200", balance: "-200", paidInFull: true},
		{name: "negative discount and penalty", total: "1000", discount: "-50", penalty: "-25", paid: "0", balance: "1025", notPaid: true},
		{name: "negative discount paid", total: "1000", discount: "-50", penalty: "0", paid: "1050", balance: "0", paidInFull: true},
		{name: "free", total: "0", discount: "0", penalty: "0", paid: "0", balance: "0", paidInFull: true, notPaid: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := service.Assignment{
				TotalFees: money(tc.total), DiscountAmount: money(tc.discount),
				PenaltyAmount: money(tc.penalty), AmountPaid: money(tc.paid),
			}
			require.True(t, money(tc.balance).Equal(a.OutstandingBalance()), "balance %s", a.OutstandingBalance())
			require.Equal(t, tc.paidInFull, a.IsPaidInFull())
			require.Equal(t, a.OutstandingBalance().Sign() <= 0, a.IsPaidInFull())
			require.Equal(t, tc.partially, a.IsPartiallyPaid())
			require.Equal(t, tc.notPaid, a.IsNotPaid())
		})
	}
}

func TestShouldMarkOverdue(t *testing.T) {
	today := date(2025, 3, 10)
	yesterday := today.AddDate(0, 0, -1)
	unpaid := service.Assignment{TotalFees: money("500"), DiscountAmount: decimal.Zero, PenaltyAmount: decimal.Zero, AmountPaid: money("100")}

	due := unpaid
	due.DueDate = &yesterday
	require.True(t, due.ShouldMarkOverdue(today))

	dueToday := unpaid
	dueToday.DueDate = &today
	require.False(t, dueToday.ShouldMarkOverdue(today))

	require.False(t, unpaid.ShouldMarkOverdue(today), "no due date")

	settled := due
	settled.AmountPaid = money("500")
	require.False(t, settled.ShouldMarkOverdue(today))

	flagged := due
	flagged.IsOverdue = true
	require.False(t, flagged.ShouldMarkOverdue(today))
}

func TestStructureVersionsAndItems(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	first := f.structure(t)
	require.Equal(t, 1, first.Version)
	require.True(t, money("1000").Equal(first.MandatoryTotal()))

	second := f.structure(t)
	require.Equal(t, 2, second.Version)

	item, err := f.svc.AddItem(ctx, f.school, first.ID, service.ItemInput{Name: "Trip", Amount: money("75.50")})
	require.NoError(t, err)
	require.Equal(t, service.FeeOther, item.Type)

	got, err := f.svc.GetStructure(ctx, f.school, first.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 4)

	_, err = f.svc.GetStructure(ctx, uuid.New(), first.ID)
	require.ErrorIs(t, err, service.ErrStructureNotFound)

	_, err = f.svc.CreateStructure(ctx, f.school, service.StructureInput{Items: []service.ItemInput{
		{Name: "", Type: "bogus", Amount: money("-1")},
	}})
	var de *domainerr.Error
	require.ErrorAs(t, err, &de)
	require.Contains(t, de.Fields, "items[0].name")
	require.Contains(t, de.Fields, "items[0].type")
	require.Contains(t, de.Fields, "items[0].amount")

	off, err := f.svc.SetStructureActive(ctx, f.school, second.ID, false)
	require.NoError(t, err)
	require.False(t, off.IsActive)
	active := true
	list, err := f.svc.ListStructures(ctx, f.school, &active)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, first.ID, list[0].ID)
}

func TestAssignFeesDefaultsAndConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	st := f.structure(t)

	var library uuid.UUID
	for _, it := range st.Items {
		if it.Name == "Library" {
			library = it.ID
		}
	}

	a, err := f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TermID: &f.term1.ID,
		OptionalItemIDs: []uuid.UUID{library},
	})
	require.NoError(t, err)
	require.True(t, money("1150").Equal(a.TotalFees))
	require.True(t, a.AmountPaid.IsZero())

	_, err = f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TermID: &f.term1.ID,
	})
	require.ErrorIs(t, err, service.ErrAlreadyAssigned)
	require.True(t, domainerr.Is(err, domainerr.KindConflict))

	other, err := f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TermID: &f.term2.ID,
	})
	require.NoError(t, err)
	require.True(t, money("1000").Equal(other.TotalFees))

	yearly, err := f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TotalFees: moneyPtr("900"),
	})
	require.NoError(t, err)
	require.Nil(t, yearly.TermID)

	_, err = f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID,
	})
	require.ErrorIs(t, err, service.ErrAlreadyAssigned, "a null term is a scope of its own")

	_, err = f.svc.AssignFees(ctx, uuid.New(), service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID,
	})
	require.True(t, domainerr.Is(err, domainerr.KindNotFound))

	_, err = f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, OptionalItemIDs: []uuid.UUID{uuid.New()},
	})
	require.True(t, domainerr.Is(err, domainerr.KindValidation))
}

func TestPaymentsAndStatement(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	st := f.structure(t)

	a, err := f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TermID: &f.term1.ID,
	})
	require.NoError(t, err)

	_, _, err = f.svc.RecordPayment(ctx, f.school, a.ID, service.PaymentInput{Amount: money("0")})
	require.True(t, domainerr.Is(err, domainerr.KindValidation))
	_, _, err = f.svc.RecordPayment(ctx, f.school, a.ID, service.PaymentInput{Amount: money("10.005")})
	require.True(t, domainerr.Is(err, domainerr.KindValidation))
	_, _, err = f.svc.RecordPayment(ctx, f.school, a.ID, service.PaymentInput{Amount: money("10"), Method: "barter"})
	require.True(t, domainerr.Is(err, domainerr.KindValidation))

	p, updated, err := f.svc.RecordPayment(ctx, f.school, a.ID, service.PaymentInput{Amount: money("400"), Method: "mobile_money", Reference: "QK12AB"})
	require.NoError(t, err)
	require.Equal(t, service.MethodMobileMoney, p.Method)
	require.True(t, money("400").Equal(updated.AmountPaid))
	require.True(t, money("600").Equal(updated.OutstandingBalance()))
	require.True(t, updated.IsPartiallyPaid())
	require.Equal(t, 1, f.metrics.payments["mobile_money"])

	_, _, err = f.svc.RecordPayment(ctx, uuid.New(), a.ID, service.PaymentInput{Amount: money("1")})
	require.ErrorIs(t, err, service.ErrAssignmentNotFound)

	adjusted, err := f.svc.AdjustAssignment(ctx, f.school, a.ID, service.AdjustInput{DiscountAmount: moneyPtr("100")})
	require.NoError(t, err)
	require.True(t, money("500").Equal(adjusted.OutstandingBalance()))

	_, _, err = f.svc.RecordPayment(ctx, f.school, a.ID, service.PaymentInput{Amount: money("700"), Method: "cash"})
	require.NoError(t, err)

	statement, err := f.svc.Statement(ctx, f.school, f.student.ID)
	require.NoError(t, err)
	require.Equal(t, "ADM-001", statement.AdmissionNumber)
	require.Len(t, statement.Lines, 1)
	require.Len(t, statement.Lines[0].Payments, 2)
	require.True(t, money("900").Equal(statement.TotalBilled))
	require.True(t, money("1100").Equal(statement.TotalPaid))
	require.True(t, money("-200").Equal(statement.TotalOutstanding))
	require.True(t, statement.Lines[0].Assignment.IsPaidInFull())
}

func TestNegativeAdjustmentsAndPaidCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	st := f.structure(t)

	a, err := f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TermID: &f.term1.ID,
		DiscountAmount: money("-50"), PenaltyAmount: money("-25"),
	})
	require.NoError(t, err)
	require.True(t, money("-50").Equal(a.DiscountAmount))
	require.True(t, money("1025").Equal(a.OutstandingBalance()))

	adjusted, err := f.svc.AdjustAssignment(ctx, f.school, a.ID, service.AdjustInput{PenaltyAmount: moneyPtr("-100")})
	require.NoError(t, err)
	require.True(t, money("950").Equal(adjusted.OutstandingBalance()))

	_, err = f.svc.AdjustAssignment(ctx, f.school, a.ID, service.AdjustInput{DiscountAmount: moneyPtr("-10000000000")})
	requireField(t, err, "discountAmount")
	_, err = f.svc.AdjustAssignment(ctx, f.school, a.ID, service.AdjustInput{DiscountAmount: moneyPtr("-0.001")})
	requireField(t, err, "discountAmount")

	big, err := f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TermID: &f.term2.ID,
		TotalFees: moneyPtr("9999999999.00"),
	})
	require.NoError(t, err)
	_, _, err = f.svc.RecordPayment(ctx, f.school, big.ID, service.PaymentInput{Amount: money("9999999999.00"), Method: "bank_transfer"})
	require.NoError(t, err)
	_, _, err = f.svc.RecordPayment(ctx, f.school, big.ID, service.PaymentInput{Amount: money("1.00"), Method: "cash"})
	requireField(t, err, "amount")

	stored, err := f.svc.GetAssignment(ctx, f.school, big.ID)
	require.NoError(t, err)
	require.True(t, money("9999999999.00").Equal(stored.AmountPaid))
	require.Equal(t, 0, f.metrics.payments["cash"])
}

func requireField(t *testing.T, err error, field string) {
	t.Helper()
	var de *domainerr.Error
	require.ErrorAs(t, err, &de)
	require.Equal(t, domainerr.KindValidation, de.Kind)
	require.Contains(t, de.Fields, field)
}

func TestOverdueMarking(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	st := f.structure(t)
	yesterday := f.now.AddDate(0, 0, -1)

	late, err := f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TermID: &f.term1.ID, DueDate: &yesterday,
	})
	require.NoError(t, err)
	settled, err := f.svc.AssignFees(ctx, f.school, service.AssignInput{
		StudentID: f.student.ID, FeeStructureID: st.ID, AcademicYearID: f.year.ID, TermID: &f.term2.ID, DueDate: &yesterday,
	})
	require.NoError(t, err)
	_, _, err = f.svc.RecordPayment(ctx, f.school, settled.ID, service.PaymentInput{Amount: money("1000"), Method: "bank_transfer"})
	require.NoError(t, err)

	out, changed, err := f.svc.MarkOverdueIfApplicable(ctx, f.school, settled.ID, f.svc.Today())
	require.NoError(t, err)
	require.False(t, changed)
	require.False(t, out.IsOverdue)

	n, err := f.svc.MarkOverdueSweep(ctx, f.school, f.svc.Today())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, f.repo.Sweeps)

	got, err := f.svc.GetAssignment(ctx, f.school, late.ID)
	require.NoError(t, err)
	require.True(t, got.IsOverdue)

	n, err = f.svc.MarkOverdueSweep(ctx, f.school, f.svc.Today())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 1, f.repo.Sweeps, "an empty sweep writes no summary")
	require.Equal(t, 1, f.metrics.overdue)

	// Paying afterwards leaves the flag set.
	_, after, err := f.svc.RecordPayment(ctx, f.school, late.ID, service.PaymentInput{Amount: money("1000")})
	require.NoError(t, err)
	require.True(t, after.IsOverdue)

	overdue := true
	page, err := f.svc.ListAssignments(ctx, f.school, service.AssignmentFilter{Overdue: &overdue})
	require.NoError(t, err)
	require.Equal(t, 1, page.TotalItems)
}
