// Package notification turns committed order events into inbox entries and
// emails for customers and shop admins.
package notification

import (
	"context"
	"errors"
	"fmt"

	"meatshop/internal/events"
	"meatshop/internal/models"
	"meatshop/internal/repositories"

	"go.uber.org/zap"
)

// NotificationSink stores an in-app notification for a user.
type NotificationSink interface {
	Notify(ctx context.Context, userID, title, message string, evt events.Event) error
}

// EmailSink sends an email. Delivery is best effort.
type EmailSink interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier is an events.Handler fanning events out to the sinks.
type Notifier struct {
	inbox    NotificationSink
	email    EmailSink
	adminIDs []string
	logger   *zap.Logger
}

// NewNotifier creates a new Notifier. Either sink may be nil.
func NewNotifier(inbox NotificationSink, email EmailSink, adminIDs []string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{inbox: inbox, email: email, adminIDs: adminIDs, logger: logger}
}

type message struct {
	title  string
	body   string
	admins bool
	owner  bool
	email  bool
}

func compose(evt events.Event) (message, bool) {
	ref := evt.OrderNumber
	switch evt.Type {
	case events.OrderCreated:
		return message{
			title: "New order " + ref, body: fmt.Sprintf("Order %s was placed and its stock is reserved.", ref),
			admins: true, owner: true, email: true,
		}, true
	case events.PaymentSubmitted:
		return message{
			title: "Payment proof received", body: fmt.Sprintf("Order %s has a payment proof waiting for review.", ref),
			admins: true,
		}, true
	case events.PaymentApproved:
		return message{
			title: "Payment approved", body: fmt.Sprintf("The payment for order %s was approved.", ref),
			owner: true, email: true,
		}, true
	case events.PaymentRejected:
		return message{
			title: "Payment rejected", body: fmt.Sprintf("The payment for order %s was rejected: %s", ref, evt.Reason),
			owner: true, email: true,
		}, true
	case events.OrderCancelled:
		return message{
			title: "Order cancelled", body: fmt.Sprintf("Order %s was cancelled.", ref),
			admins: true, owner: true,
		}, true
	case events.OrderStatusChanged:
		return message{
			title: "Order update", body: fmt.Sprintf("Order %s is now %s.", ref, evt.CurrentStatus),
			owner: true,
		}, true
	case events.LowStockDetected:
		return message{
			title: "Low stock",
			body: fmt.Sprintf("%s is down to %s (threshold %s).",
				evt.Metadata["product_name"], evt.Metadata["total_stock"], evt.Metadata["threshold"]),
			admins: true,
		}, true
	}
	return message{}, false
}

// Handle delivers evt to every interested recipient. All sink failures are
// collected so one bad recipient does not stop the others.
func (n *Notifier) Handle(ctx context.Context, evt events.Event) error {
	msg, ok := compose(evt)
	if !ok {
		n.logger.Debug("no notification for event", zap.String("event_type", string(evt.Type)))
		return nil
	}

	var errs []error
	if n.inbox != nil {
		for _, userID := range n.recipients(evt, msg) {
			if err := n.inbox.Notify(ctx, userID, msg.title, msg.body, evt); err != nil {
				errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
			}
		}
	}
	if n.email != nil && msg.email && evt.CustomerEmail != "" {
		if err := n.email.Send(ctx, evt.CustomerEmail, msg.title, msg.body); err != nil {
			errs = append(errs, fmt.Errorf("email %s: %w", evt.CustomerEmail, err))
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) recipients(evt events.Event, msg message) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	if msg.owner {
		add(evt.UserID)
	}
	if msg.admins {
		for _, id := range n.adminIDs {
			add(id)
		}
	}
	return out
}

// StoreSink keeps notifications in the notification repository.
type StoreSink struct {
	repo repositories.NotificationRepository
}

func NewStoreSink(repo repositories.NotificationRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Notify(ctx context.Context, userID, title, message string, evt events.Event) error {
	return s.repo.Create(ctx, &models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		OrderID:   evt.OrderID,
		EventType: string(evt.Type),
		CreatedAt: evt.OccurredAt,
	})
}

// LogEmailSink writes outgoing emails to the log instead of an SMTP server.
type LogEmailSink struct {
	logger *zap.Logger
}

func NewLogEmailSink(logger *zap.Logger) *LogEmailSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmailSink{logger: logger}
}

func (s *LogEmailSink) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject), zap.String("body", body))
	return nil
}
