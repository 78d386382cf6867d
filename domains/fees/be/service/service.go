package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	academics "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	students "github.com/zenGate-Global/edupay-saas/domains/students/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
	"github.com/zenGate-Global/edupay-saas/platform/go/requesttrace"
)

// Errors returned by the service layer.
var (
	ErrStructureNotFound  = domainerr.NotFound("fee structure not found")
	ErrAssignmentNotFound = domainerr.NotFound("fee assignment not found")
	ErrAlreadyAssigned    = domainerr.Conflict("the student already has this fee structure for the academic year and term")
	ErrVersionRace        = domainerr.Conflict("another fee structure version was created at the same time; retry")
	ErrStructureInactive  = domainerr.Conflict("the fee structure is inactive")
)

// Repository persists the fee catalog and ledger. Every mutation writes its audit entry in
// the same transaction.
type Repository interface {
	// CreateStructure stores s with its items and assigns the next version for the institution.
	CreateStructure(ctx context.Context, s Structure) (Structure, error)
	GetStructure(ctx context.Context, institutionID, structureID uuid.UUID) (Structure, error)
	ListStructures(ctx context.Context, institutionID uuid.UUID, active *bool) ([]Structure, error)
	AddItem(ctx context.Context, institutionID uuid.UUID, item Item) (Item, error)
	SetStructureActive(ctx context.Context, before Structure, active bool) (Structure, error)

	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	GetAssignment(ctx context.Context, institutionID, assignmentID uuid.UUID) (Assignment, error)
	ListAssignments(ctx context.Context, institutionID uuid.UUID, f AssignmentFilter) (AssignmentPage, error)
	StudentAssignments(ctx context.Context, institutionID, studentID uuid.UUID) ([]Assignment, error)
	AdjustAssignment(ctx context.Context, before Assignment, discount, penalty decimal.Decimal) (Assignment, error)

	// RecordPayment appends p and increments the assignment's amount paid.
	RecordPayment(ctx context.Context, p Payment) (Payment, Assignment, error)
	ListPayments(ctx context.Context, institutionID, assignmentID uuid.UUID) ([]Payment, error)
	StudentPayments(ctx context.Context, institutionID, studentID uuid.UUID) ([]Payment, error)

	// MarkOverdue sets the flag on a; it reports false when another writer already set it.
	MarkOverdue(ctx context.Context, a Assignment) (Assignment, bool, error)
	// MarkOverdueSweep applies the overdue policy to every assignment of the institution and
	// returns the number flagged.
	MarkOverdueSweep(ctx context.Context, institutionID uuid.UUID, today time.Time) (int, error)
}

// Directory resolves the students and periods an assignment refers to.
type Directory interface {
	GetStudent(ctx context.Context, institutionID, studentID uuid.UUID) (students.Student, error)
	GetYear(ctx context.Context, institutionID, yearID uuid.UUID) (academics.AcademicYear, error)
	GetTerm(ctx context.Context, institutionID, termID uuid.UUID) (academics.Term, error)
}

// StudentReader is the students service.
type StudentReader interface {
	Get(ctx context.Context, institutionID, studentID uuid.UUID) (students.Student, error)
}

// Calendar is the academics service.
type Calendar interface {
	GetYear(ctx context.Context, institutionID, yearID uuid.UUID) (academics.AcademicYear, error)
	GetTerm(ctx context.Context, institutionID, termID uuid.UUID) (academics.Term, error)
}

type directory struct {
	StudentReader
	Calendar
}

func (d directory) GetStudent(ctx context.Context, institutionID, studentID uuid.UUID) (students.Student, error) {
	return d.Get(ctx, institutionID, studentID)
}

// NewDirectory joins the students and academics services into a Directory.
func NewDirectory(roster StudentReader, calendar Calendar) Directory {
	return directory{StudentReader: roster, Calendar: calendar}
}

// LedgerRecorder counts ledger events.
type LedgerRecorder interface {
	PaymentRecorded(method string)
	OverdueMarked(n int)
}

type Service struct {
	repo      Repository
	directory Directory
	metrics   LedgerRecorder
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithMetrics(m LedgerRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo Repository, directory Directory, opts ...Option) *Service {
	if repo == nil {
		panic("fees repository is required")
	}
	if directory == nil {
		panic("student directory is required")
	}
	s := &Service{repo: repo, directory: directory, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateStructure adds the next version of the fee catalog.
func (s *Service) CreateStructure(ctx context.Context, institutionID uuid.UUID, in StructureInput) (Structure, error) {
	fields := domainerr.FieldErrors{}
	name := strings.TrimSpace(in.Name)
	if len(name) > 200 {
		fields.Add("name", "name must be at most 200 characters")
	}
	if len(in.Items) == 0 {
		fields.Add("items", "at least one fee item is required")
	}
	now := s.now().UTC()
	st := Structure{ID: uuid.New(), InstitutionID: institutionID, Name: name, IsActive: true, CreatedAt: now, UpdatedAt: now}
	for i, in := range in.Items {
		item, ok := buildItem(fields, fmt.Sprintf("items[%d].", i), st.ID, in, now)
		if ok {
			st.Items = append(st.Items, item)
		}
	}
	if err := fields.Err(); err != nil {
		return Structure{}, err
	}
	return s.repo.CreateStructure(ctx, st)
}

func buildItem(fields domainerr.FieldErrors, prefix string, structureID uuid.UUID, in ItemInput, now time.Time) (Item, bool) {
	before := len(fields)
	name := strings.TrimSpace(in.Name)
	if name == "" {
		fields.Add(prefix+"name", "name is required")
	}
	kind, ok := parseFeeType(strings.TrimSpace(in.Type))
	if !ok {
		fields.Add(prefix+"type", fmt.Sprintf("unknown fee type %q", in.Type))
	}
	checkMoney(fields, prefix+"amount", in.Amount, true)
	if len(fields) != before {
		return Item{}, false
	}
	return Item{
		ID:          uuid.New(),
		StructureID: structureID,
		Name:        name,
		Type:        kind,
		Amount:      in.Amount,
		IsMandatory: in.IsMandatory,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
	}, true
}

func (s *Service) GetStructure(ctx context.Context, institutionID, structureID uuid.UUID) (Structure, error) {
	return s.repo.GetStructure(ctx, institutionID, structureID)
}

func (s *Service) ListStructures(ctx context.Context, institutionID uuid.UUID, active *bool) ([]Structure, error) {
	return s.repo.ListStructures(ctx, institutionID, active)
}

// AddItem appends an item to an existing structure. Existing assignments keep their totals.
func (s *Service) AddItem(ctx context.Context, institutionID, structureID uuid.UUID, in ItemInput) (Item, error) {
	st, err := s.repo.GetStructure(ctx, institutionID, structureID)
	if err != nil {
		return Item{}, err
	}
	fields := domainerr.FieldErrors{}
	item, ok := buildItem(fields, "", st.ID, in, s.now().UTC())
	if !ok {
		return Item{}, fields.Err()
	}
	return s.repo.AddItem(ctx, institutionID, item)
}

// SetStructureActive activates or deactivates a structure; an unchanged flag is a no-op.
func (s *Service) SetStructureActive(ctx context.Context, institutionID, structureID uuid.UUID, active bool) (Structure, error) {
	st, err := s.repo.GetStructure(ctx, institutionID, structureID)
	if err != nil {
		return Structure{}, err
	}
	if st.IsActive == active {
		return st, nil
	}
	return s.repo.SetStructureActive(ctx, st, active)
}

// AssignFees bills a student. The student, structure, year and term must all belong to the
// institution, and the term to the year. A second assignment for the same
// (student, structure, year, term) is a Conflict.
func (s *Service) AssignFees(ctx context.Context, institutionID uuid.UUID, in AssignInput) (Assignment, error) {
	fields := domainerr.FieldErrors{}
	if in.StudentID == uuid.Nil {
		fields.Add("studentId", "studentId is required")
	}
	if in.FeeStructureID == uuid.Nil {
		fields.Add("feeStructureId", "feeStructureId is required")
	}
	if in.AcademicYearID == uuid.Nil {
		fields.Add("academicYearId", "academicYearId is required")
	}
	if in.TotalFees != nil {
		checkMoney(fields, "totalFees", *in.TotalFees, true)
	}
	checkAdjustment(fields, "discountAmount", in.DiscountAmount)
	checkAdjustment(fields, "penaltyAmount", in.PenaltyAmount)
	if err := fields.Err(); err != nil {
		return Assignment{}, err
	}

	if _, err := s.directory.GetStudent(ctx, institutionID, in.StudentID); err != nil {
		return Assignment{}, err
	}
	if _, err := s.directory.GetYear(ctx, institutionID, in.AcademicYearID); err != nil {
		return Assignment{}, err
	}
	if in.TermID != nil {
		term, err := s.directory.GetTerm(ctx, institutionID, *in.TermID)
		if err != nil {
			return Assignment{}, err
		}
		if term.AcademicYearID != in.AcademicYearID {
			return Assignment{}, domainerr.Invalid("termId", "term does not belong to the academic year")
		}
	}
	st, err := s.repo.GetStructure(ctx, institutionID, in.FeeStructureID)
	if err != nil {
		return Assignment{}, err
	}
	if !st.IsActive {
		return Assignment{}, ErrStructureInactive
	}

	total, err := billedTotal(st, in)
	if err != nil {
		return Assignment{}, err
	}

	now := s.now().UTC()
	a := Assignment{
		ID:             uuid.New(),
		InstitutionID:  institutionID,
		StudentID:      in.StudentID,
		FeeStructureID: st.ID,
		AcademicYearID: in.AcademicYearID,
		TermID:         in.TermID,
		TotalFees:      total,
		DiscountAmount: in.DiscountAmount,
		PenaltyAmount:  in.PenaltyAmount,
		AmountPaid:     decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.DueDate != nil {
		due := dateOnly(*in.DueDate)
		a.DueDate = &due
	}
	return s.repo.CreateAssignment(ctx, a)
}

func billedTotal(st Structure, in AssignInput) (decimal.Decimal, error) {
	if in.TotalFees != nil {
		return *in.TotalFees, nil
	}
	total := st.MandatoryTotal()
	byID := make(map[uuid.UUID]Item, len(st.Items))
	for _, it := range st.Items {
		byID[it.ID] = it
	}
	seen := make(map[uuid.UUID]bool, len(in.OptionalItemIDs))
	for _, id := range in.OptionalItemIDs {
		it, ok := byID[id]
		if !ok {
			return decimal.Zero, domainerr.Invalid("optionalItemIds", fmt.Sprintf("item %s is not part of the fee structure", id))
		}
		if it.IsMandatory || seen[id] {
			continue
		}
		seen[id] = true
		total = total.Add(it.Amount)
	}
	return total, nil
}

func (s *Service) GetAssignment(ctx context.Context, institutionID, assignmentID uuid.UUID) (Assignment, error) {
	return s.repo.GetAssignment(ctx, institutionID, assignmentID)
}

func (s *Service) ListAssignments(ctx context.Context, institutionID uuid.UUID, f AssignmentFilter) (AssignmentPage, error) {
	return s.repo.ListAssignments(ctx, institutionID, f)
}

// AdjustAssignment changes discount and penalty.
func (s *Service) AdjustAssignment(ctx context.Context, institutionID, assignmentID uuid.UUID, in AdjustInput) (Assignment, error) {
	fields := domainerr.FieldErrors{}
	if in.DiscountAmount == nil && in.PenaltyAmount == nil {
		fields.Add("body", "discountAmount or penaltyAmount is required")
	}
	if in.DiscountAmount != nil {
		checkAdjustment(fields, "discountAmount", *in.DiscountAmount)
	}
	if in.PenaltyAmount != nil {
		checkAdjustment(fields, "penaltyAmount", *in.PenaltyAmount)
	}
	if err := fields.Err(); err != nil {
		return Assignment{}, err
	}

	a, err := s.repo.GetAssignment(ctx, institutionID, assignmentID)
	if err != nil {
		return Assignment{}, err
	}
	discount, penalty := a.DiscountAmount, a.PenaltyAmount
	if in.DiscountAmount != nil {
		discount = *in.DiscountAmount
	}
	if in.PenaltyAmount != nil {
		penalty = *in.PenaltyAmount
	}
	if discount.Equal(a.DiscountAmount) && penalty.Equal(a.PenaltyAmount) {
		return a, nil
	}
	return s.repo.AdjustAssignment(ctx, a, discount, penalty)
}

// RecordPayment appends a payment to an assignment. Payments beyond the balance are accepted and
// leave a negative balance.
func (s *Service) RecordPayment(ctx context.Context, institutionID, assignmentID uuid.UUID, in PaymentInput) (Payment, Assignment, error) {
	fields := domainerr.FieldErrors{}
	checkMoney(fields, "amount", in.Amount, false)
	method, ok := parseMethod(strings.TrimSpace(in.Method))
	if !ok {
		fields.Add("method", fmt.Sprintf("unknown payment method %q", in.Method))
	}
	if len(in.Reference) > 100 {
		fields.Add("reference", "reference must be at most 100 characters")
	}
	now := s.now().UTC()
	paidAt := now
	if in.PaidAt != nil {
		paidAt = in.PaidAt.UTC()
		if paidAt.After(now.Add(time.Minute)) {
			fields.Add("paidAt", "paidAt must not be in the future")
		}
	}
	if err := fields.Err(); err != nil {
		return Payment{}, Assignment{}, err
	}

	current, err := s.repo.GetAssignment(ctx, institutionID, assignmentID)
	if err != nil {
		return Payment{}, Assignment{}, err
	}
	if err := checkPaidCeiling(current, in.Amount); err != nil {
		return Payment{}, Assignment{}, err
	}

	p, a, err := s.repo.RecordPayment(ctx, Payment{
		ID:            uuid.New(),
		InstitutionID: institutionID,
		AssignmentID:  assignmentID,
		Amount:        in.Amount,
		Method:        method,
		Reference:     strings.TrimSpace(in.Reference),
		RecordedBy:    requesttrace.ActorID(ctx),
		PaidAt:        paidAt,
		CreatedAt:     now,
	})
	if err != nil {
		return Payment{}, Assignment{}, err
	}
	if s.metrics != nil {
		s.metrics.PaymentRecorded(string(p.Method))
	}
	s.logger.Info("payment recorded",
		zap.String("institution_id", institutionID.String()),
		zap.String("assignment_id", assignmentID.String()),
		zap.String("amount", p.Amount.StringFixed(2)),
		zap.String("balance", a.OutstandingBalance().StringFixed(2)))
	return p, a, nil
}

func (s *Service) ListPayments(ctx context.Context, institutionID, assignmentID uuid.UUID) ([]Payment, error) {
	if _, err := s.repo.GetAssignment(ctx, institutionID, assignmentID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, institutionID, assignmentID)
}

// MarkOverdueIfApplicable applies the overdue policy to one assignment as of today. It reports
// whether the flag changed; an unchanged assignment writes nothing.
func (s *Service) MarkOverdueIfApplicable(ctx context.Context, institutionID, assignmentID uuid.UUID, today time.Time) (Assignment, bool, error) {
	a, err := s.repo.GetAssignment(ctx, institutionID, assignmentID)
	if err != nil {
		return Assignment{}, false, err
	}
	if !a.ShouldMarkOverdue(today) {
		return a, false, nil
	}
	out, changed, err := s.repo.MarkOverdue(ctx, a)
	if err != nil {
		return Assignment{}, false, err
	}
	if changed && s.metrics != nil {
		s.metrics.OverdueMarked(1)
	}
	return out, changed, nil
}

// MarkOverdueSweep applies the overdue policy to every assignment of the institution.
func (s *Service) MarkOverdueSweep(ctx context.Context, institutionID uuid.UUID, today time.Time) (int, error) {
	n, err := s.repo.MarkOverdueSweep(ctx, institutionID, dateOnly(today))
	if err != nil {
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.OverdueMarked(n)
	}
	s.logger.Info("overdue sweep finished",
		zap.String("institution_id", institutionID.String()),
		zap.Int("marked", n))
	return n, nil
}

// Today is the service's current date.
func (s *Service) Today() time.Time {
	return dateOnly(s.now().UTC())
}

// Statement collects every assignment of a student with its payments and totals.
func (s *Service) Statement(ctx context.Context, institutionID, studentID uuid.UUID) (Statement, error) {
	student, err := s.directory.GetStudent(ctx, institutionID, studentID)
	if err != nil {
		return Statement{}, err
	}
	assignments, err := s.repo.StudentAssignments(ctx, institutionID, studentID)
	if err != nil {
		return Statement{}, err
	}
	payments, err := s.repo.StudentPayments(ctx, institutionID, studentID)
	if err != nil {
		return Statement{}, err
	}
	byAssignment := make(map[uuid.UUID][]Payment)
	for _, p := range payments {
		byAssignment[p.AssignmentID] = append(byAssignment[p.AssignmentID], p)
	}

	out := Statement{
		StudentID:        student.ID,
		FullName:         student.FullName,
		AdmissionNumber:  student.AdmissionNumber,
		TotalBilled:      decimal.Zero,
		TotalPaid:        decimal.Zero,
		TotalOutstanding: decimal.Zero,
	}
	for _, a := range assignments {
		out.Lines = append(out.Lines, StatementLine{Assignment: a, Payments: byAssignment[a.ID]})
		out.TotalBilled = out.TotalBilled.Add(a.AdjustedTotal())
		out.TotalPaid = out.TotalPaid.Add(a.AmountPaid)
		out.TotalOutstanding = out.TotalOutstanding.Add(a.OutstandingBalance())
	}
	return out, nil
}
