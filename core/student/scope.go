package student

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// Scope is the set of students a user may see.
type Scope struct {
	All        bool
	StudentIDs []string
}

// Allows reports whether the student studentID is visible in the scope.
func (sc Scope) Allows(studentID string) bool {
	if sc.All {
		return true
	}
	for _, id := range sc.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// Filter restricts qf to the scope. It returns false when nothing is visible.
func (sc Scope) Filter(qf *QueryFilter) bool {
	if sc.All {
		return true
	}
	if len(sc.StudentIDs) == 0 {
		return false
	}
	if len(qf.IDs) == 0 {
		qf.IDs = sc.StudentIDs
		return true
	}
	ids := make([]string, 0, len(qf.IDs))
	for _, id := range qf.IDs {
		if sc.Allows(id) {
			ids = append(ids, id)
		}
	}
	qf.IDs = ids
	return len(ids) > 0
}

// ScopeFor returns the students usr may see: staff see everyone,
// a student sees itself and a parent sees its children.
func (svc *Service) ScopeFor(ctx context.Context, usr user.User) (Scope, error) {
	if usr.IsStaff() {
		return Scope{All: true}, nil
	}

	var sc Scope
	if usr.IsStudent() {
		s, err := svc.GetByUserID(ctx, usr.ID)
		switch {
		case err == nil:
			sc.StudentIDs = append(sc.StudentIDs, s.ID)
		case !core.IsNotFound(err):
			return Scope{}, errors.Wrap(err, "finding student profile")
		}
	}
	if usr.IsParent() {
		p, err := svc.GetParentByUserID(ctx, usr.ID)
		switch {
		case err == nil:
			children, err := svc.repo.QueryStudents(ctx, &QueryFilter{ParentID: p.ID}, nil)
			if err != nil {
				return Scope{}, errors.Wrap(err, "querying children")
			}
			for _, c := range children {
				sc.StudentIDs = append(sc.StudentIDs, c.ID)
			}
		case !core.IsNotFound(err):
			return Scope{}, errors.Wrap(err, "finding parent profile")
		}
	}
	return sc, nil
}
