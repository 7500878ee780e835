package notification_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"meatshop/internal/events"
	"meatshop/internal/models"
	"meatshop/internal/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEmailSink struct {
	mock.Mock
}

func (m *MockEmailSink) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

type memoryInbox struct {
	mu    sync.Mutex
	items []models.Notification
	err   error
}

func (r *memoryInbox) Create(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.items = append(r.items, *n)
	return nil
}

func (r *memoryInbox) ListByUser(_ context.Context, userID string) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func orderEvent(t events.Type) events.Event {
	return events.Event{
		ID:            "evt-1",
		Type:          t,
		OrderID:       "order-1",
		OrderNumber:   "ORD-20250101-ABCDEF12",
		UserID:        "alice",
		CustomerEmail: "alice@example.com",
		CurrentStatus: models.OrderStatusPending,
		OccurredAt:    time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestNotifier_OrderCreatedReachesOwnerAndAdmins(t *testing.T) {
	inbox := &memoryInbox{}
	email := new(MockEmailSink)
	email.On("Send", mock.Anything, "alice@example.com", "New order ORD-20250101-ABCDEF12", mock.Anything).Return(nil)

	n := notification.NewNotifier(notification.NewStoreSink(inbox), email, []string{"admin-1", "alice"}, zap.NewNop())
	require.NoError(t, n.Handle(context.Background(), orderEvent(events.OrderCreated)))

	// the owner appears once even when also listed as admin
	mine, _ := inbox.ListByUser(context.Background(), "alice")
	require.Len(t, mine, 1)
	assert.Equal(t, "order-1", mine[0].OrderID)
	assert.Equal(t, string(events.OrderCreated), mine[0].EventType)

	admins, _ := inbox.ListByUser(context.Background(), "admin-1")
	assert.Len(t, admins, 1)
	email.AssertExpectations(t)
}

func TestNotifier_RejectionCarriesReason(t *testing.T) {
	inbox := &memoryInbox{}
	evt := orderEvent(events.PaymentRejected)
	evt.Reason = "amount does not match"

	email := new(MockEmailSink)
	email.On("Send", mock.Anything, "alice@example.com", "Payment rejected", mock.MatchedBy(func(body string) bool {
		return strings.Contains(body, "amount does not match")
	})).Return(nil)

	n := notification.NewNotifier(notification.NewStoreSink(inbox), email, []string{"admin-1"}, nil)
	require.NoError(t, n.Handle(context.Background(), evt))

	admins, _ := inbox.ListByUser(context.Background(), "admin-1")
	assert.Empty(t, admins)
	email.AssertExpectations(t)
}

func TestNotifier_LowStockGoesToAdminsOnly(t *testing.T) {
	inbox := &memoryInbox{}
	p := &models.Product{ID: "ribeye", Name: "Ribeye", TotalStock: 2, LowStockThreshold: 3}
	evt := events.ForLowStock(p, "order-1", time.Now())

	email := new(MockEmailSink)
	n := notification.NewNotifier(notification.NewStoreSink(inbox), email, []string{"admin-1", "admin-2"}, nil)
	require.NoError(t, n.Handle(context.Background(), evt))

	assert.Len(t, inbox.items, 2)
	assert.Contains(t, inbox.items[0].Message, "Ribeye is down to 2")
	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNotifier_CollectsSinkFailures(t *testing.T) {
	inbox := &memoryInbox{err: errors.New("disk full")}
	email := new(MockEmailSink)
	email.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	n := notification.NewNotifier(notification.NewStoreSink(inbox), email, []string{"admin-1"}, nil)
	err := n.Handle(context.Background(), orderEvent(events.OrderCreated))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Contains(t, err.Error(), "smtp down")
}

func TestNotifier_FailureIsSwallowedByDispatcher(t *testing.T) {
	inbox := &memoryInbox{err: errors.New("disk full")}
	d := events.NewDispatcher(zap.NewNop())
	d.Register("notifier", notification.NewNotifier(notification.NewStoreSink(inbox), nil, nil, nil))

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), orderEvent(events.OrderCancelled))
	})
}

func TestLogEmailSink_NeverFails(t *testing.T) {
	sink := notification.NewLogEmailSink(nil)
	assert.NoError(t, sink.Send(context.Background(), "alice@example.com", "hi", "body"))
}
