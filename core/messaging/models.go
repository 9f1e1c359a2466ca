package messaging

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
)

var (
	ErrMessageNotFound      = core.NewNotFoundError("message")
	ErrNotificationNotFound = core.NewNotFoundError("notification")
)

// Notification kinds
const (
	KindGeneral      = "general"
	KindFeeReminder  = "fee_reminder"
	KindResult       = "result"
	KindAttendance   = "attendance"
	KindAnnouncement = "announcement"
	KindMessage      = "message"
)

// Realtime event types
const (
	EventNotification = "notification"
	EventMessage      = "message"
)

type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	ReadAt      time.Time `json:"read_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m Message) IsRead() bool { return !m.ReadAt.IsZero() }

type NewMessage struct {
	RecipientID string `json:"recipient_id" validate:"required,uuid"`
	Subject     string `json:"subject" validate:"required,max=255"`
	Body        string `json:"body" validate:"required"`
}

func (nm *NewMessage) Validate(validate *validator.Validate) error {
	nm.Subject = core.CleanString(nm.Subject)
	nm.Body = core.CleanString(nm.Body)
	return validate.Struct(nm)
}

// MessageFilter selects the messages of a mailbox.
type MessageFilter struct {
	RecipientID string
	SenderID    string
	UnreadOnly  bool
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ReadAt    time.Time `json:"read_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (n Notification) IsRead() bool { return !n.ReadAt.IsZero() }

// NewNotification is a notification sent to users directly or to every user of some roles.
type NewNotification struct {
	UserIDs []string `json:"user_ids" validate:"required_without=Roles,dive,uuid"`
	Roles   []string `json:"roles" validate:"required_without=UserIDs,omitempty,allroles"`
	Kind    string   `json:"kind" validate:"omitempty,oneof=general fee_reminder result attendance announcement message"`
	Title   string   `json:"title" validate:"required,max=255"`
	Body    string   `json:"body"`
}

func (nn *NewNotification) Validate(validate *validator.Validate) error {
	nn.Kind = core.CleanString(nn.Kind, true /* lower */)
	nn.Title = core.CleanString(nn.Title)
	nn.Body = core.CleanString(nn.Body)
	return validate.Struct(nn)
}

type NotificationFilter struct {
	UserID     string
	UnreadOnly bool `query:"unread"`
}

// Event is pushed to the realtime clients of a user.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}
