package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const userTable = `"user"`

var userColumns = []string{"id", "name", "username", "email", "is_active", "roles", "password_hash", "created_at", "updated_at", "last_login"}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     null.String    `db:"username"`
	Email        null.String    `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func newUserRow(usr user.User) userRow {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Name:         usr.Name,
		Username:     nullString(usr.Username),
		Email:        nullString(usr.Email),
		IsActive:     usr.IsActive,
		Roles:        roles,
		PasswordHash: null.NewBytes(usr.PasswordHash, len(usr.PasswordHash) > 0),
		CreatedAt:    utc(usr.CreatedAt),
		UpdatedAt:    utc(usr.UpdatedAt),
		LastLogin:    nullTime(usr.LastLogin),
	}
}

func (r userRow) user() user.User {
	roles := []string(r.Roles)
	if roles == nil {
		roles = []string{}
	}
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Username:     r.Username.String,
		Email:        r.Email.String,
		IsActive:     r.IsActive,
		Roles:        roles,
		PasswordHash: r.PasswordHash.Bytes,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		LastLogin:    timeOf(r.LastLogin),
	}
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) userError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		switch pqErr.Constraint {
		case "user_username_key":
			return user.ErrUsernameExists
		case "user_email_key":
			return user.ErrEmailExists
		}
	}
	return dbError(err, user.ErrNotFound)
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedIDs ...string) error {
	match := sq.Or{}
	if username != "" {
		match = append(match, sq.Eq{"username": username})
	}
	if email != "" {
		match = append(match, sq.Eq{"email": email})
	}
	if len(match) == 0 {
		return nil
	}
	where := sq.And{match}
	if len(excludedIDs) > 0 {
		where = append(where, sq.NotEq{"id": excludedIDs})
	}

	var rows []userRow
	b := psql.Select(userColumns...).From(userTable).Where(where).Limit(2)
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, r := range rows {
		if username != "" && r.Username.String == username {
			return user.ErrUsernameExists
		}
	}
	if len(rows) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	r := newUserRow(usr)
	b := psql.Insert(userTable).
		Columns(userColumns...).
		Values(r.ID, r.Name, r.Username, r.Email, r.IsActive, r.Roles, r.PasswordHash, r.CreatedAt, r.UpdatedAt, r.LastLogin)
	if _, err := exec(ctx, repo.db, b); err != nil {
		return user.User{}, repo.userError(err)
	}
	return r.user(), nil
}

// rolesMatch matches users having one of roles, group roles ending with ":" matching by prefix.
func rolesMatch(roles []string) sq.Sqlizer {
	patterns := make([]string, 0, len(roles))
	for _, role := range roles {
		if strings.HasSuffix(role, ":") {
			role += "%"
		}
		patterns = append(patterns, role)
	}
	return sq.Expr("EXISTS (SELECT 1 FROM unnest(roles) AS role WHERE role LIKE ANY (?))", pq.Array(patterns))
}

func (repo *userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	b := psql.Select(userColumns...).From(userTable)
	if filter != nil && !filter.IsEmpty() {
		if filter.Search != "" {
			b = b.Where(search(filter.Search, "name", "username", "email"))
		}
		if len(filter.Roles) > 0 {
			b = b.Where(rolesMatch(filter.Roles))
		}
		if filter.IsActive != nil {
			b = b.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		from, to := filter.CreatedRange()
		if !from.IsZero() {
			b = b.Where(sq.GtOrEq{"created_at": from.UTC()})
		}
		if !to.IsZero() {
			b = b.Where(sq.LtOrEq{"created_at": to.UTC()})
		}
	}
	b = b.OrderBy(orderBy(ordering, byCreatedAsc)...)

	var rows []userRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	b := psql.Select(userColumns...).From(userTable).Limit(1)
	switch {
	case filter.ID != "":
		b = b.Where(sq.Eq{"id": filter.ID})
	case filter.Username != "":
		b = b.Where(sq.Eq{"username": filter.Username})
	case filter.Email != "":
		b = b.Where(sq.Eq{"email": filter.Email})
	case filter.UsernameOrEmail != "":
		b = b.Where(sq.Or{sq.Eq{"username": filter.UsernameOrEmail}, sq.Eq{"email": filter.UsernameOrEmail}})
	default:
		return user.User{}, user.ErrNotFound
	}

	var r userRow
	if err := get(ctx, repo.db, &r, b); err != nil {
		return user.User{}, repo.userError(err)
	}
	return r.user(), nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	r := newUserRow(usr)
	b := psql.Update(userTable).
		SetMap(map[string]interface{}{
			"name":          r.Name,
			"username":      r.Username,
			"email":         r.Email,
			"is_active":     r.IsActive,
			"roles":         r.Roles,
			"password_hash": r.PasswordHash,
			"updated_at":    r.UpdatedAt,
			"last_login":    r.LastLogin,
		}).
		Where(sq.Eq{"id": r.ID})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return user.User{}, repo.userError(err)
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return r.user(), nil
}

// DeleteUsersByID deletes the users; foreign keys unlink their profiles and drop their mailboxes.
func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := exec(ctx, repo.db, psql.Delete(userTable).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return n, nil
}
