package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/messaging"
)

type messagingRepository struct {
	db *DB
}

func NewMessagingRepository(db *DB) messaging.Repository {
	return &messagingRepository{db: db}
}

var (
	messageComparators = comparators[messaging.Message]{
		"created_at": func(a, b messaging.Message) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
	notificationComparators = comparators[messaging.Notification]{
		"created_at": func(a, b messaging.Notification) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
	}
)

// Messages

func (repo *messagingRepository) CreateMessage(_ context.Context, m messaging.Message) (messaging.Message, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.users[m.SenderID]; !ok {
		return messaging.Message{}, core.NewMissingRefError("sender_id")
	}
	if _, ok := repo.db.users[m.RecipientID]; !ok {
		return messaging.Message{}, core.NewMissingRefError("recipient_id")
	}
	repo.db.messages[m.ID] = m
	return m, nil
}

func (repo *messagingRepository) QueryMessages(_ context.Context, filter messaging.MessageFilter) ([]messaging.Message, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	msgs := values(repo.db.messages, func(m messaging.Message) bool {
		if filter.RecipientID != "" && m.RecipientID != filter.RecipientID {
			return false
		}
		if filter.SenderID != "" && m.SenderID != filter.SenderID {
			return false
		}
		return !filter.UnreadOnly || !m.IsRead()
	})
	sortRows(msgs, nil, messageComparators, byCreatedDesc)
	return msgs, nil
}

func (repo *messagingRepository) GetMessage(_ context.Context, id string) (messaging.Message, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if m, ok := repo.db.messages[id]; ok {
		return m, nil
	}
	return messaging.Message{}, messaging.ErrMessageNotFound
}

func (repo *messagingRepository) MarkMessageRead(_ context.Context, id string, at time.Time) (messaging.Message, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	m, ok := repo.db.messages[id]
	if !ok {
		return messaging.Message{}, messaging.ErrMessageNotFound
	}
	if !m.IsRead() {
		m.ReadAt = at
		repo.db.messages[id] = m
	}
	return m, nil
}

func (repo *messagingRepository) DeleteMessage(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.messages[id]; !ok {
		return messaging.ErrMessageNotFound
	}
	delete(repo.db.messages, id)
	return nil
}

func (repo *messagingRepository) CountUnreadMessages(_ context.Context, recipientID string) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, m := range repo.db.messages {
		if m.RecipientID == recipientID && !m.IsRead() {
			n++
		}
	}
	return n, nil
}

// Notifications

func (repo *messagingRepository) CreateNotifications(_ context.Context, ns []messaging.Notification) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, n := range ns {
		if _, ok := repo.db.users[n.UserID]; !ok {
			return core.NewMissingRefError("user_id")
		}
	}
	for _, n := range ns {
		repo.db.notifications[n.ID] = n
	}
	return nil
}

func (repo *messagingRepository) QueryNotifications(_ context.Context, filter messaging.NotificationFilter) ([]messaging.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ns := values(repo.db.notifications, func(n messaging.Notification) bool {
		if filter.UserID != "" && n.UserID != filter.UserID {
			return false
		}
		return !filter.UnreadOnly || !n.IsRead()
	})
	sortRows(ns, nil, notificationComparators, byCreatedDesc)
	return ns, nil
}

func (repo *messagingRepository) GetNotification(_ context.Context, id string) (messaging.Notification, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if n, ok := repo.db.notifications[id]; ok {
		return n, nil
	}
	return messaging.Notification{}, messaging.ErrNotificationNotFound
}

func (repo *messagingRepository) MarkNotificationRead(_ context.Context, id string, at time.Time) (messaging.Notification, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok {
		return messaging.Notification{}, messaging.ErrNotificationNotFound
	}
	if !n.IsRead() {
		n.ReadAt = at
		repo.db.notifications[id] = n
	}
	return n, nil
}

func (repo *messagingRepository) MarkAllNotificationsRead(_ context.Context, userID string, at time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var count int
	for k, n := range repo.db.notifications {
		if n.UserID == userID && !n.IsRead() {
			n.ReadAt = at
			repo.db.notifications[k] = n
			count++
		}
	}
	return count, nil
}

func (repo *messagingRepository) PurgeReadNotifications(_ context.Context, before time.Time) (int, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	var count int
	for k, n := range repo.db.notifications {
		if n.IsRead() && n.ReadAt.Before(before) {
			delete(repo.db.notifications, k)
			count++
		}
	}
	return count, nil
}
