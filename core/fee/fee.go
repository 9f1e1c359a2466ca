package fee

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
	"github.com/trezcool/shule/core/student"
)

var ErrNotFound = core.NewNotFoundError("fee")

var OrderingFields = []string{"title", "amount", "due_date", "created_at"}

// Fee statuses
const (
	StatusPaid    = "paid"
	StatusPartial = "partial"
	StatusOverdue = "overdue"
	StatusUnpaid  = "unpaid"
)

var nowFunc = time.Now

type Fee struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"student_id"`
	AcademicYearID string    `json:"academic_year_id"`
	Title          string    `json:"title"`
	Amount         float64   `json:"amount"`
	AmountPaid     float64   `json:"amount_paid"`
	DueDate        time.Time `json:"due_date"`
	PaidAt         time.Time `json:"paid_at"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (f Fee) Balance() float64 {
	return round(f.Amount - f.AmountPaid)
}

// StatusAt computes the status of the fee on day `at`.
// An overdue fee is one not fully paid after its due date; partly paid fees are overdue too.
func (f Fee) StatusAt(at time.Time) string {
	switch {
	case f.AmountPaid >= f.Amount:
		return StatusPaid
	case core.Date(at).After(f.DueDate):
		return StatusOverdue
	case f.AmountPaid > 0:
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

func (f *Fee) setStatus() {
	f.Status = f.StatusAt(nowFunc())
}

type NewFee struct {
	StudentID      string  `json:"student_id" validate:"required,uuid"`
	AcademicYearID string  `json:"academic_year_id" validate:"omitempty,uuid"`
	Title          string  `json:"title" validate:"required,max=150"`
	Amount         float64 `json:"amount" validate:"gt=0"`
	DueDate        string  `json:"due_date" validate:"required,date"`
}

func (nf *NewFee) Validate(validate *validator.Validate) error {
	nf.Title = core.CleanString(nf.Title)
	return validate.Struct(nf)
}

type UpdateFee struct {
	AcademicYearID *string  `json:"academic_year_id" validate:"omitnil,uuid|len=0"`
	Title          *string  `json:"title" validate:"omitnil,min=1,max=150"`
	Amount         *float64 `json:"amount" validate:"omitnil,gt=0"`
	DueDate        *string  `json:"due_date" validate:"omitnil,date"`
}

func (uf *UpdateFee) Validate(validate *validator.Validate) error {
	uf.Title = core.CleanStringPtr(uf.Title)
	return validate.Struct(uf)
}

type Payment struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

func (p *Payment) Validate(validate *validator.Validate) error {
	return validate.Struct(p)
}

type QueryFilter struct {
	StudentID      string   `query:"student_id"`
	StudentIDs     []string `query:"-"`
	AcademicYearID string   `query:"academic_year_id"`
	Status         string   `query:"status"`
	DueFrom        string   `query:"due_from"`
	DueTo          string   `query:"due_to"`
	Unpaid         bool     `query:"-"`
}

// Validate checks the filter values, status filtering happens after the query.
func (qf *QueryFilter) Validate() error {
	switch qf.Status {
	case "", StatusPaid, StatusPartial, StatusOverdue, StatusUnpaid:
	default:
		return core.NewFieldError("status", "must be one of paid, partial, overdue, unpaid")
	}
	for fld, v := range map[string]string{"due_from": qf.DueFrom, "due_to": qf.DueTo} {
		if _, err := core.ParseDate(v); err != nil {
			return core.NewFieldError(fld, "must be a date formatted as YYYY-MM-DD")
		}
	}
	return nil
}

// DueRange returns the parsed due date bounds, zero when unset.
func (qf *QueryFilter) DueRange() (from, to time.Time) {
	from, _ = core.ParseDate(qf.DueFrom)
	to, _ = core.ParseDate(qf.DueTo)
	return from, to
}

// Summary is the fee balance of a student.
type Summary struct {
	StudentID   string  `json:"student_id"`
	Count       int     `json:"count"`
	TotalBilled float64 `json:"total_billed"`
	TotalPaid   float64 `json:"total_paid"`
	Balance     float64 `json:"balance"`
	Overdue     float64 `json:"overdue"`
	OverdueFees int     `json:"overdue_fees"`
}

type (
	Repository interface {
		CreateFee(ctx context.Context, f Fee) (Fee, error)
		QueryFees(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Fee, error)
		GetFee(ctx context.Context, id string) (Fee, error)
		UpdateFee(ctx context.Context, f Fee) (Fee, error)
		DeleteFee(ctx context.Context, id string) error
		// AddPayment atomically adds amount to the paid amount of fee id, failing with a
		// validation error when it would exceed the fee amount.
		AddPayment(ctx context.Context, id string, amount float64, at time.Time) (Fee, error)
	}

	YearFinder interface {
		GetYear(ctx context.Context, id string) (academic.AcademicYear, error)
	}

	StudentFinder interface {
		Get(ctx context.Context, id string) (student.Student, error)
	}

	Service struct {
		repo     Repository
		years    YearFinder
		students StudentFinder
	}
)

func NewService(repo Repository, years YearFinder, students StudentFinder) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(years, "years"),
		vala.IsNotNil(students, "students"),
	).CheckAndPanic()
	return &Service{repo: repo, years: years, students: students}
}

// ErrOverpayment is returned when a payment exceeds the balance of a fee.
var ErrOverpayment = core.NewFieldError("amount", "payment exceeds the fee balance")

func (svc *Service) checkYear(ctx context.Context, yearID string) error {
	if yearID == "" {
		return nil
	}
	if _, err := svc.years.GetYear(ctx, yearID); err != nil {
		if core.IsNotFound(err) {
			return core.NewFieldError("academic_year_id", "academic year does not exist")
		}
		return errors.Wrap(err, "finding academic year")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nf NewFee) (Fee, error) {
	if _, err := svc.students.Get(ctx, nf.StudentID); err != nil {
		if core.IsNotFound(err) {
			return Fee{}, core.NewFieldError("student_id", "student does not exist")
		}
		return Fee{}, errors.Wrap(err, "finding student")
	}
	if err := svc.checkYear(ctx, nf.AcademicYearID); err != nil {
		return Fee{}, err
	}
	due, _ := core.ParseDate(nf.DueDate)
	now := time.Now().UTC()
	f, err := svc.repo.CreateFee(ctx, Fee{
		ID:             uuid.NewString(),
		StudentID:      nf.StudentID,
		AcademicYearID: nf.AcademicYearID,
		Title:          nf.Title,
		Amount:         round(nf.Amount),
		DueDate:        due,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return Fee{}, err
	}
	f.setStatus()
	return f, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Fee, error) {
	fees, err := svc.repo.QueryFees(ctx, filter, core.AllowedOrdering(ordering, OrderingFields...))
	if err != nil {
		return nil, err
	}
	matched := fees[:0]
	for _, f := range fees {
		f.setStatus()
		if filter == nil || filter.Status == "" || filter.Status == f.Status {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Fee, error) {
	f, err := svc.repo.GetFee(ctx, id)
	if err != nil {
		return Fee{}, err
	}
	f.setStatus()
	return f, nil
}

func (svc *Service) Update(ctx context.Context, f Fee, uf UpdateFee) (Fee, error) {
	if uf.AcademicYearID != nil {
		if err := svc.checkYear(ctx, *uf.AcademicYearID); err != nil {
			return Fee{}, err
		}
		f.AcademicYearID = *uf.AcademicYearID
	}
	if uf.Title != nil {
		f.Title = *uf.Title
	}
	if uf.Amount != nil {
		if *uf.Amount < f.AmountPaid {
			return Fee{}, core.NewFieldError("amount", "amount is less than the amount already paid")
		}
		f.Amount = round(*uf.Amount)
		if f.AmountPaid < f.Amount {
			f.PaidAt = time.Time{}
		}
	}
	if uf.DueDate != nil {
		f.DueDate, _ = core.ParseDate(*uf.DueDate)
	}
	f.UpdatedAt = time.Now().UTC()
	f, err := svc.repo.UpdateFee(ctx, f)
	if err != nil {
		return Fee{}, err
	}
	f.setStatus()
	return f, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteFee(ctx, id)
}

// RecordPayment adds a payment to fee id. Payments are positive and never exceed the balance.
func (svc *Service) RecordPayment(ctx context.Context, id string, p Payment) (Fee, error) {
	if p.Amount <= 0 {
		return Fee{}, core.NewFieldError("amount", "payment must be positive")
	}
	f, err := svc.repo.AddPayment(ctx, id, round(p.Amount), time.Now().UTC())
	if err != nil {
		return Fee{}, err
	}
	f.setStatus()
	return f, nil
}

// Summary returns the fee balance of studentID.
func (svc *Service) Summary(ctx context.Context, studentID string) (Summary, error) {
	if _, err := svc.students.Get(ctx, studentID); err != nil {
		return Summary{}, err
	}
	fees, err := svc.Query(ctx, &QueryFilter{StudentID: studentID}, nil)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{StudentID: studentID, Count: len(fees)}
	for _, f := range fees {
		sum.TotalBilled += f.Amount
		sum.TotalPaid += f.AmountPaid
		if f.Status == StatusOverdue {
			sum.Overdue += f.Balance()
			sum.OverdueFees++
		}
	}
	sum.TotalBilled = round(sum.TotalBilled)
	sum.TotalPaid = round(sum.TotalPaid)
	sum.Balance = round(sum.TotalBilled - sum.TotalPaid)
	sum.Overdue = round(sum.Overdue)
	return sum, nil
}

// DueSoon returns the unpaid fees due within leadDays from today, overdue fees included.
func (svc *Service) DueSoon(ctx context.Context, leadDays int) ([]Fee, error) {
	today := core.Date(nowFunc())
	filter := &QueryFilter{
		DueTo:  today.AddDate(0, 0, leadDays).Format(core.DateLayout),
		Unpaid: true,
	}
	return svc.Query(ctx, filter, []core.DBOrdering{{Field: "due_date", Ascending: true}})
}

// ReminderText is the notification text of a fee reminder.
func ReminderText(f Fee) (title, body string) {
	title = "Fee reminder: " + f.Title
	due := f.DueDate.Format(core.DateLayout)
	if f.Status == StatusOverdue {
		return title, fmt.Sprintf("%s is overdue since %s, balance %.2f.", f.Title, due, f.Balance())
	}
	return title, fmt.Sprintf("%s is due on %s, balance %.2f.", f.Title, due, f.Balance())
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
