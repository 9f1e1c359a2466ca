package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type (
	Repository interface {
		CreateMessage(ctx context.Context, m Message) (Message, error)
		QueryMessages(ctx context.Context, filter MessageFilter) ([]Message, error)
		GetMessage(ctx context.Context, id string) (Message, error)
		MarkMessageRead(ctx context.Context, id string, at time.Time) (Message, error)
		DeleteMessage(ctx context.Context, id string) error
		CountUnreadMessages(ctx context.Context, recipientID string) (int, error)

		CreateNotifications(ctx context.Context, ns []Notification) error
		QueryNotifications(ctx context.Context, filter NotificationFilter) ([]Notification, error)
		GetNotification(ctx context.Context, id string) (Notification, error)
		MarkNotificationRead(ctx context.Context, id string, at time.Time) (Notification, error)
		// MarkAllNotificationsRead returns the number of notifications marked read.
		MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int, error)
		// PurgeReadNotifications deletes the notifications read before `before` and returns their number.
		PurgeReadNotifications(ctx context.Context, before time.Time) (int, error)
	}

	// Pusher delivers events to the connected clients of a user.
	Pusher interface {
		Push(userID string, evt Event)
	}

	UserQuerier interface {
		Query(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error)
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo   Repository
		users  UserQuerier
		pusher Pusher
		logger core.Logger
	}
)

func NewService(repo Repository, users UserQuerier, pusher Pusher, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(users, "users"),
		vala.IsNotNil(pusher, "pusher"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()
	return &Service{repo: repo, users: users, pusher: pusher, logger: logger}
}

// Messages

func (svc *Service) Send(ctx context.Context, senderID string, nm NewMessage) (Message, error) {
	recipient, err := svc.users.GetByID(ctx, nm.RecipientID)
	if err != nil {
		if core.IsNotFound(err) {
			return Message{}, core.NewFieldError("recipient_id", "recipient does not exist")
		}
		return Message{}, errors.Wrap(err, "finding recipient")
	}
	if !recipient.IsActive {
		return Message{}, core.NewFieldError("recipient_id", "recipient is not active")
	}

	m, err := svc.repo.CreateMessage(ctx, Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		RecipientID: nm.RecipientID,
		Subject:     nm.Subject,
		Body:        nm.Body,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return Message{}, err
	}
	svc.pusher.Push(m.RecipientID, Event{Type: EventMessage, Data: m})
	return m, nil
}

func (svc *Service) Inbox(ctx context.Context, userID string, unreadOnly bool) ([]Message, error) {
	return svc.repo.QueryMessages(ctx, MessageFilter{RecipientID: userID, UnreadOnly: unreadOnly})
}

func (svc *Service) Sent(ctx context.Context, userID string) ([]Message, error) {
	return svc.repo.QueryMessages(ctx, MessageFilter{SenderID: userID})
}

// Get returns message id when userID is its sender or recipient.
func (svc *Service) Get(ctx context.Context, userID, id string) (Message, error) {
	m, err := svc.repo.GetMessage(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if m.SenderID != userID && m.RecipientID != userID {
		return Message{}, ErrMessageNotFound
	}
	return m, nil
}

// MarkRead marks message id read, only its recipient may do so.
func (svc *Service) MarkRead(ctx context.Context, userID, id string) (Message, error) {
	m, err := svc.Get(ctx, userID, id)
	if err != nil {
		return Message{}, err
	}
	if m.RecipientID != userID {
		return Message{}, ErrMessageNotFound
	}
	if m.IsRead() {
		return m, nil
	}
	return svc.repo.MarkMessageRead(ctx, id, time.Now().UTC())
}

func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := svc.Get(ctx, userID, id); err != nil {
		return err
	}
	return svc.repo.DeleteMessage(ctx, id)
}

func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnreadMessages(ctx, userID)
}

// Notifications

// Notify stores a notification for each user and pushes it to their connected clients.
func (svc *Service) Notify(ctx context.Context, userIDs []string, kind, title, body string) ([]Notification, error) {
	if kind == "" {
		kind = KindGeneral
	}
	now := time.Now().UTC()
	seen := make(map[string]bool, len(userIDs))
	ns := make([]Notification, 0, len(userIDs))
	for _, uid := range userIDs {
		if uid == "" || seen[uid] {
			continue
		}
		seen[uid] = true
		ns = append(ns, Notification{
			ID:        uuid.NewString(),
			UserID:    uid,
			Kind:      kind,
			Title:     title,
			Body:      body,
			CreatedAt: now,
		})
	}
	if len(ns) == 0 {
		return ns, nil
	}
	if err := svc.repo.CreateNotifications(ctx, ns); err != nil {
		return nil, err
	}
	for _, n := range ns {
		svc.pusher.Push(n.UserID, Event{Type: EventNotification, Data: n})
	}
	return ns, nil
}

// Broadcast notifies the users listed in nn and every active user holding one of its roles.
func (svc *Service) Broadcast(ctx context.Context, nn NewNotification) ([]Notification, error) {
	userIDs := append([]string{}, nn.UserIDs...)
	if len(nn.Roles) > 0 {
		active := true
		users, err := svc.users.Query(ctx, &user.QueryFilter{Roles: nn.Roles, IsActive: &active}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "querying users")
		}
		for _, u := range users {
			userIDs = append(userIDs, u.ID)
		}
	}
	ns, err := svc.Notify(ctx, userIDs, nn.Kind, nn.Title, nn.Body)
	if err != nil {
		return nil, err
	}
	svc.logger.Info("broadcast notification", map[string]interface{}{"title": nn.Title, "recipients": len(ns)})
	return ns, nil
}

func (svc *Service) List(ctx context.Context, userID string, unreadOnly bool) ([]Notification, error) {
	return svc.repo.QueryNotifications(ctx, NotificationFilter{UserID: userID, UnreadOnly: unreadOnly})
}

func (svc *Service) MarkNotificationRead(ctx context.Context, userID, id string) (Notification, error) {
	n, err := svc.repo.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if n.UserID != userID {
		return Notification{}, ErrNotificationNotFound
	}
	if n.IsRead() {
		return n, nil
	}
	return svc.repo.MarkNotificationRead(ctx, id, time.Now().UTC())
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return svc.repo.MarkAllNotificationsRead(ctx, userID, time.Now().UTC())
}

// PurgeRead deletes the notifications read more than olderThan ago.
func (svc *Service) PurgeRead(ctx context.Context, olderThan time.Duration) (int, error) {
	return svc.repo.PurgeReadNotifications(ctx, time.Now().UTC().Add(-olderThan))
}
