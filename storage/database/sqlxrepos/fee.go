package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
)

var feeColumns = []string{"id", "student_id", "academic_year_id", "title", "amount", "amount_paid", "due_date", "paid_at", "created_at", "updated_at"}

type feeRow struct {
	ID             string      `db:"id"`
	StudentID      string      `db:"student_id"`
	AcademicYearID null.String `db:"academic_year_id"`
	Title          string      `db:"title"`
	Amount         float64     `db:"amount"`
	AmountPaid     float64     `db:"amount_paid"`
	DueDate        time.Time   `db:"due_date"`
	PaidAt         null.Time   `db:"paid_at"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

func (r feeRow) fee() fee.Fee {
	return fee.Fee{
		ID:             r.ID,
		StudentID:      r.StudentID,
		AcademicYearID: r.AcademicYearID.String,
		Title:          r.Title,
		Amount:         r.Amount,
		AmountPaid:     r.AmountPaid,
		DueDate:        r.DueDate.UTC(),
		PaidAt:         timeOf(r.PaidAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type feeRepository struct {
	db *sqlx.DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *sqlx.DB) *feeRepository {
	return &feeRepository{db: db}
}

func (repo *feeRepository) CreateFee(ctx context.Context, f fee.Fee) (fee.Fee, error) {
	b := psql.Insert("fee").
		Columns(feeColumns...).
		Values(f.ID, f.StudentID, nullString(f.AcademicYearID), f.Title, f.Amount, f.AmountPaid,
			core.Date(f.DueDate), nullTime(f.PaidAt), utc(f.CreatedAt), utc(f.UpdatedAt))
	if _, err := exec(ctx, repo.db, b); err != nil {
		return fee.Fee{}, dbError(err, fee.ErrNotFound)
	}
	return f, nil
}

func (repo *feeRepository) QueryFees(ctx context.Context, filter *fee.QueryFilter, ordering []core.DBOrdering) ([]fee.Fee, error) {
	b := psql.Select(feeColumns...).From("fee")
	if filter != nil {
		eq := sq.Eq{}
		if filter.StudentID != "" {
			eq["student_id"] = filter.StudentID
		}
		if filter.AcademicYearID != "" {
			eq["academic_year_id"] = filter.AcademicYearID
		}
		if len(eq) > 0 {
			b = b.Where(eq)
		}
		if filter.StudentIDs != nil {
			b = b.Where(sq.Eq{"student_id": filter.StudentIDs})
		}
		if filter.Unpaid {
			b = b.Where("amount_paid < amount")
		}
		from, to := filter.DueRange()
		if !from.IsZero() {
			b = b.Where(sq.GtOrEq{"due_date": from})
		}
		if !to.IsZero() {
			b = b.Where(sq.LtOrEq{"due_date": to})
		}
	}
	b = b.OrderBy(orderBy(ordering, core.DBOrdering{Field: "due_date", Ascending: true})...)

	var rows []feeRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying fees")
	}
	fees := make([]fee.Fee, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, r.fee())
	}
	return fees, nil
}

func (repo *feeRepository) getFee(ctx context.Context, q queryer, id string) (fee.Fee, error) {
	var r feeRow
	if err := get(ctx, q, &r, psql.Select(feeColumns...).From("fee").Where(sq.Eq{"id": id})); err != nil {
		return fee.Fee{}, dbError(err, fee.ErrNotFound)
	}
	return r.fee(), nil
}

func (repo *feeRepository) GetFee(ctx context.Context, id string) (fee.Fee, error) {
	return repo.getFee(ctx, repo.db, id)
}

// UpdateFee keeps the paid amount, payments go through AddPayment.
func (repo *feeRepository) UpdateFee(ctx context.Context, f fee.Fee) (fee.Fee, error) {
	b := psql.Update("fee").
		SetMap(map[string]interface{}{
			"student_id":       f.StudentID,
			"academic_year_id": nullString(f.AcademicYearID),
			"title":            f.Title,
			"amount":           f.Amount,
			"due_date":         core.Date(f.DueDate),
			"updated_at":       utc(f.UpdatedAt),
		}).
		Where(sq.Eq{"id": f.ID}).
		Where(sq.LtOrEq{"amount_paid": f.Amount}).
		Suffix("RETURNING " + joinColumns(feeColumns))

	var r feeRow
	err := get(ctx, repo.db, &r, b)
	if err == nil {
		return r.fee(), nil
	}
	if err = dbError(err, fee.ErrNotFound); err != fee.ErrNotFound {
		return fee.Fee{}, err
	}
	// the fee does not exist or was paid more than the new amount
	if _, err = repo.getFee(ctx, repo.db, f.ID); err != nil {
		return fee.Fee{}, err
	}
	return fee.Fee{}, core.NewFieldError("amount", "amount is less than the amount already paid")
}

func (repo *feeRepository) DeleteFee(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("fee").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting fee")
	}
	if n == 0 {
		return fee.ErrNotFound
	}
	return nil
}

// AddPayment locks the fee row so that concurrent payments never exceed the amount.
func (repo *feeRepository) AddPayment(ctx context.Context, id string, amount float64, at time.Time) (fee.Fee, error) {
	var f fee.Fee
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var r feeRow
		b := psql.Select(feeColumns...).From("fee").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE")
		if err := get(ctx, tx, &r, b); err != nil {
			return dbError(err, fee.ErrNotFound)
		}

		f = r.fee()
		paid := roundCents(f.AmountPaid + amount)
		if paid > f.Amount {
			return fee.ErrOverpayment
		}
		f.AmountPaid = paid
		if paid == f.Amount {
			f.PaidAt = at.UTC()
		}
		f.UpdatedAt = at.UTC()

		upd := psql.Update("fee").
			Set("amount_paid", f.AmountPaid).
			Set("paid_at", nullTime(f.PaidAt)).
			Set("updated_at", f.UpdatedAt).
			Where(sq.Eq{"id": id})
		_, err := exec(ctx, tx, upd)
		return errors.Wrap(err, "recording payment")
	})
	if err != nil {
		return fee.Fee{}, err
	}
	return f, nil
}
