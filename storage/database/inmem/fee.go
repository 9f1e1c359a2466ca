package inmemdb

import (
	"context"
	"math"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/fee"
)

type feeRepository struct {
	db *DB
}

func NewFeeRepository(db *DB) fee.Repository {
	return &feeRepository{db: db}
}

var feeComparators = comparators[fee.Fee]{
	"title":      func(a, b fee.Fee) int { return cmpString(a.Title, b.Title) },
	"amount":     func(a, b fee.Fee) int { return cmpFloat(a.Amount, b.Amount) },
	"due_date":   func(a, b fee.Fee) int { return cmpTime(a.DueDate, b.DueDate) },
	"created_at": func(a, b fee.Fee) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *feeRepository) check(f fee.Fee) error {
	if _, ok := repo.db.students[f.StudentID]; !ok {
		return core.NewMissingRefError("student_id")
	}
	if _, ok := repo.db.years[f.AcademicYearID]; f.AcademicYearID != "" && !ok {
		return core.NewMissingRefError("academic_year_id")
	}
	return nil
}

func (repo *feeRepository) CreateFee(_ context.Context, f fee.Fee) (fee.Fee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.check(f); err != nil {
		return fee.Fee{}, err
	}
	repo.db.fees[f.ID] = f
	return f, nil
}

func (repo *feeRepository) QueryFees(_ context.Context, filter *fee.QueryFilter, ordering []core.DBOrdering) ([]fee.Fee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(fee.Fee) bool
	if filter != nil {
		from, to := filter.DueRange()
		keep = func(f fee.Fee) bool {
			if filter.StudentID != "" && f.StudentID != filter.StudentID {
				return false
			}
			if filter.StudentIDs != nil && !inSlice(f.StudentID, filter.StudentIDs) {
				return false
			}
			if filter.AcademicYearID != "" && f.AcademicYearID != filter.AcademicYearID {
				return false
			}
			if filter.Unpaid && f.AmountPaid >= f.Amount {
				return false
			}
			return inRange(f.DueDate, from, to)
		}
	}
	fees := values(repo.db.fees, keep)
	sortRows(fees, ordering, feeComparators, core.DBOrdering{Field: "due_date", Ascending: true})
	return fees, nil
}

func (repo *feeRepository) GetFee(_ context.Context, id string) (fee.Fee, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if f, ok := repo.db.fees[id]; ok {
		return f, nil
	}
	return fee.Fee{}, fee.ErrNotFound
}

func (repo *feeRepository) UpdateFee(_ context.Context, f fee.Fee) (fee.Fee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.fees[f.ID]
	if !ok {
		return fee.Fee{}, fee.ErrNotFound
	}
	if err := repo.check(f); err != nil {
		return fee.Fee{}, err
	}
	f.AmountPaid = orig.AmountPaid // payments go through AddPayment
	if f.Amount < f.AmountPaid {
		return fee.Fee{}, core.NewFieldError("amount", "amount is less than the amount already paid")
	}
	repo.db.fees[f.ID] = f
	return f, nil
}

func (repo *feeRepository) DeleteFee(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.fees[id]; !ok {
		return fee.ErrNotFound
	}
	delete(repo.db.fees, id)
	return nil
}

func (repo *feeRepository) AddPayment(_ context.Context, id string, amount float64, at time.Time) (fee.Fee, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	f, ok := repo.db.fees[id]
	if !ok {
		return fee.Fee{}, fee.ErrNotFound
	}
	paid := roundCents(f.AmountPaid + amount)
	if paid > f.Amount {
		return fee.Fee{}, fee.ErrOverpayment
	}
	f.AmountPaid = paid
	if paid == f.Amount {
		f.PaidAt = at
	}
	f.UpdatedAt = at
	repo.db.fees[id] = f
	return f, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
