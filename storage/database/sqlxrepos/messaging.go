package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/messaging"
)

var (
	messageColumns      = []string{"id", "sender_id", "recipient_id", "subject", "body", "read_at", "created_at"}
	notificationColumns = []string{"id", "user_id", "kind", "title", "body", "read_at", "created_at"}
)

type messageRow struct {
	ID          string    `db:"id"`
	SenderID    string    `db:"sender_id"`
	RecipientID string    `db:"recipient_id"`
	Subject     string    `db:"subject"`
	Body        string    `db:"body"`
	ReadAt      null.Time `db:"read_at"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r messageRow) message() messaging.Message {
	return messaging.Message{
		ID:          r.ID,
		SenderID:    r.SenderID,
		RecipientID: r.RecipientID,
		Subject:     r.Subject,
		Body:        r.Body,
		ReadAt:      timeOf(r.ReadAt),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type notificationRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Kind      string    `db:"kind"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	ReadAt    null.Time `db:"read_at"`
	CreatedAt time.Time `db:"created_at"`
}

func (r notificationRow) notification() messaging.Notification {
	return messaging.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Kind:      r.Kind,
		Title:     r.Title,
		Body:      r.Body,
		ReadAt:    timeOf(r.ReadAt),
		CreatedAt: r.CreatedAt.UTC(),
	}
}

type messagingRepository struct {
	db *sqlx.DB
}

var _ messaging.Repository = (*messagingRepository)(nil) // interface compliance check

func NewMessagingRepository(db *sqlx.DB) *messagingRepository {
	return &messagingRepository{db: db}
}

// Messages

func (repo *messagingRepository) CreateMessage(ctx context.Context, m messaging.Message) (messaging.Message, error) {
	b := psql.Insert("message").
		Columns(messageColumns...).
		Values(m.ID, m.SenderID, m.RecipientID, m.Subject, m.Body, nullTime(m.ReadAt), utc(m.CreatedAt))
	if _, err := exec(ctx, repo.db, b); err != nil {
		return messaging.Message{}, dbError(err, messaging.ErrMessageNotFound)
	}
	return m, nil
}

func (repo *messagingRepository) QueryMessages(ctx context.Context, filter messaging.MessageFilter) ([]messaging.Message, error) {
	b := psql.Select(messageColumns...).From("message")
	eq := sq.Eq{}
	if filter.RecipientID != "" {
		eq["recipient_id"] = filter.RecipientID
	}
	if filter.SenderID != "" {
		eq["sender_id"] = filter.SenderID
	}
	if filter.UnreadOnly {
		eq["read_at"] = nil
	}
	if len(eq) > 0 {
		b = b.Where(eq)
	}
	b = b.OrderBy(orderBy(nil, byCreatedDesc)...)

	var rows []messageRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying messages")
	}
	msgs := make([]messaging.Message, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, r.message())
	}
	return msgs, nil
}

func (repo *messagingRepository) GetMessage(ctx context.Context, id string) (messaging.Message, error) {
	var r messageRow
	if err := get(ctx, repo.db, &r, psql.Select(messageColumns...).From("message").Where(sq.Eq{"id": id})); err != nil {
		return messaging.Message{}, dbError(err, messaging.ErrMessageNotFound)
	}
	return r.message(), nil
}

// MarkMessageRead keeps the first read time.
func (repo *messagingRepository) MarkMessageRead(ctx context.Context, id string, at time.Time) (messaging.Message, error) {
	b := psql.Update("message").
		Set("read_at", sq.Expr("COALESCE(read_at, ?)", at.UTC())).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(messageColumns))

	var r messageRow
	if err := get(ctx, repo.db, &r, b); err != nil {
		return messaging.Message{}, dbError(err, messaging.ErrMessageNotFound)
	}
	return r.message(), nil
}

func (repo *messagingRepository) DeleteMessage(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("message").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting message")
	}
	if n == 0 {
		return messaging.ErrMessageNotFound
	}
	return nil
}

func (repo *messagingRepository) CountUnreadMessages(ctx context.Context, recipientID string) (int, error) {
	var n int
	b := psql.Select("COUNT(*)").From("message").Where(sq.Eq{"recipient_id": recipientID, "read_at": nil})
	if err := get(ctx, repo.db, &n, b); err != nil {
		return 0, errors.Wrap(err, "counting unread messages")
	}
	return n, nil
}

// Notifications

func (repo *messagingRepository) CreateNotifications(ctx context.Context, ns []messaging.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	b := psql.Insert("notification").Columns(notificationColumns...)
	for _, n := range ns {
		b = b.Values(n.ID, n.UserID, n.Kind, n.Title, n.Body, nullTime(n.ReadAt), utc(n.CreatedAt))
	}
	if _, err := exec(ctx, repo.db, b); err != nil {
		return dbError(err, messaging.ErrNotificationNotFound)
	}
	return nil
}

func (repo *messagingRepository) QueryNotifications(ctx context.Context, filter messaging.NotificationFilter) ([]messaging.Notification, error) {
	b := psql.Select(notificationColumns...).From("notification")
	eq := sq.Eq{}
	if filter.UserID != "" {
		eq["user_id"] = filter.UserID
	}
	if filter.UnreadOnly {
		eq["read_at"] = nil
	}
	if len(eq) > 0 {
		b = b.Where(eq)
	}
	b = b.OrderBy(orderBy(nil, byCreatedDesc)...)

	var rows []notificationRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	ns := make([]messaging.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.notification())
	}
	return ns, nil
}

func (repo *messagingRepository) GetNotification(ctx context.Context, id string) (messaging.Notification, error) {
	var r notificationRow
	if err := get(ctx, repo.db, &r, psql.Select(notificationColumns...).From("notification").Where(sq.Eq{"id": id})); err != nil {
		return messaging.Notification{}, dbError(err, messaging.ErrNotificationNotFound)
	}
	return r.notification(), nil
}

func (repo *messagingRepository) MarkNotificationRead(ctx context.Context, id string, at time.Time) (messaging.Notification, error) {
	b := psql.Update("notification").
		Set("read_at", sq.Expr("COALESCE(read_at, ?)", at.UTC())).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns(notificationColumns))

	var r notificationRow
	if err := get(ctx, repo.db, &r, b); err != nil {
		return messaging.Notification{}, dbError(err, messaging.ErrNotificationNotFound)
	}
	return r.notification(), nil
}

func (repo *messagingRepository) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	b := psql.Update("notification").
		Set("read_at", at.UTC()).
		Where(sq.Eq{"user_id": userID, "read_at": nil})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	return n, nil
}

func (repo *messagingRepository) PurgeReadNotifications(ctx context.Context, before time.Time) (int, error) {
	b := psql.Delete("notification").Where(sq.Lt{"read_at": before.UTC()})
	n, err := exec(ctx, repo.db, b)
	if err != nil {
		return 0, errors.Wrap(err, "purging notifications")
	}
	return n, nil
}
