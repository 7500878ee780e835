package events

import (
	"context"
	"encoding/json"
	"fmt"

	"meatshop/pkg/rabbitmq"
)

// MessagePublisher is the part of the RabbitMQ client the publisher needs.
type MessagePublisher interface {
	Publish(ctx context.Context, msg rabbitmq.Message) error
}

// RabbitMQPublisher forwards events to a topic exchange, routed by event type.
type RabbitMQPublisher struct {
	client MessagePublisher
}

// NewRabbitMQPublisher creates a new RabbitMQPublisher.
func NewRabbitMQPublisher(client MessagePublisher) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

// Handle publishes evt.
func (p *RabbitMQPublisher) Handle(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", evt.ID, err)
	}
	return p.client.Publish(ctx, rabbitmq.Message{
		ID:         evt.ID,
		RoutingKey: string(evt.Type),
		Body:       body,
		Headers: map[string]string{
			"order_id":   evt.OrderID,
			"event_type": string(evt.Type),
		},
	})
}

// Decode turns a consumed message back into an Event.
func Decode(msg rabbitmq.Message) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return Event{}, fmt.Errorf("failed to decode event %s: %w", msg.ID, err)
	}
	if evt.Type == "" {
		evt.Type = Type(msg.RoutingKey)
	}
	return evt, nil
}

// RabbitMQConsumer feeds messages from a queue into a Handler.
func RabbitMQConsumer(h Handler) func(ctx context.Context, msg rabbitmq.Message) error {
	return func(ctx context.Context, msg rabbitmq.Message) error {
		evt, err := Decode(msg)
		if err != nil {
			return err
		}
		return h.Handle(ctx, evt)
	}
}
