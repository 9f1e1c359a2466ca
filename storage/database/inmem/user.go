package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *DB
}

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

var userComparators = comparators[user.User]{
	"name":       func(a, b user.User) int { return cmpString(a.Name, b.Name) },
	"username":   func(a, b user.User) int { return cmpString(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return cmpString(a.Email, b.Email) },
	"is_active":  func(a, b user.User) int { return cmpBool(a.IsActive, b.IsActive) },
	"created_at": func(a, b user.User) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	"updated_at": func(a, b user.User) int { return cmpTime(a.UpdatedAt, b.UpdatedAt) },
	"last_login": func(a, b user.User) int { return cmpTime(a.LastLogin, b.LastLogin) },
}

func (repo *userRepository) checkUniqueness(username, email string, excludedIDs ...string) error {
	for _, usr := range repo.db.users {
		if inSlice(usr.ID, excludedIDs) {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.checkUniqueness(username, email, excludedIDs...)
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkUniqueness(usr.Username, usr.Email); err != nil {
		return user.User{}, err
	}
	repo.db.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	keep := func(usr user.User) bool { return true }
	if filter != nil && !filter.IsEmpty() {
		from, to := filter.CreatedRange()
		keep = func(usr user.User) bool {
			if filter.Search != "" &&
				!containsFold(usr.Name, filter.Search) &&
				!containsFold(usr.Username, filter.Search) &&
				!containsFold(usr.Email, filter.Search) {
				return false
			}
			if len(filter.Roles) > 0 && !usr.HasAnyRole(filter.Roles...) {
				return false
			}
			if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
				return false
			}
			return inRange(usr.CreatedAt, from, to)
		}
	}
	users := values(repo.db.users, keep)
	sortRows(users, ordering, userComparators, byCreatedAsc)
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if usr, ok := repo.db.users[filter.ID]; ok {
			return usr, nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range repo.db.users {
		switch {
		case filter.Username != "":
			if usr.Username == filter.Username {
				return usr, nil
			}
		case filter.Email != "":
			if usr.Email == filter.Email {
				return usr, nil
			}
		case filter.UsernameOrEmail != "":
			if usr.Username == filter.UsernameOrEmail || usr.Email == filter.UsernameOrEmail {
				return usr, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := repo.checkUniqueness(usr.Username, usr.Email, usr.ID); err != nil {
		return user.User{}, err
	}
	repo.db.users[usr.ID] = usr
	return usr, nil
}

// DeleteUsersByID unlinks the people profiles of the users and drops their mailboxes.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.users[id]; !ok {
			continue
		}
		delete(repo.db.users, id)
		n++

		for k, t := range repo.db.teachers {
			if t.UserID == id {
				t.UserID = ""
				repo.db.teachers[k] = t
			}
		}
		for k, s := range repo.db.students {
			if s.UserID == id {
				s.UserID = ""
				repo.db.students[k] = s
			}
		}
		for k, p := range repo.db.parents {
			if p.UserID == id {
				p.UserID = ""
				repo.db.parents[k] = p
			}
		}
		for k, m := range repo.db.messages {
			if m.SenderID == id || m.RecipientID == id {
				delete(repo.db.messages, k)
			}
		}
		for k, nt := range repo.db.notifications {
			if nt.UserID == id {
				delete(repo.db.notifications, k)
			}
		}
		for k, r := range repo.db.results {
			if r.RecordedBy == id {
				r.RecordedBy = ""
				repo.db.results[k] = r
			}
		}
		for k, a := range repo.db.attendances {
			if a.MarkedBy == id {
				a.MarkedBy = ""
				repo.db.attendances[k] = a
			}
		}
		for k, d := range repo.db.documents {
			if d.UploadedBy == id {
				d.UploadedBy = ""
				repo.db.documents[k] = d
			}
		}
	}
	return n, nil
}
