package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/google/uuid"
	"github.com/rlms-portal/forms-services/models"
)

// Event types published on the response topic.
const (
	ResponseSubmitted = "response.submitted"
	ResponseDecided   = "response.decided"
)

// ResponseEvent describes a change to a form response.
type ResponseEvent struct {
	Type       string          `json:"type"`
	ResponseID uuid.UUID       `json:"responseId"`
	UserID     uuid.UUID       `json:"userId"`
	FormType   models.FormType `json:"formType"`
	Status     models.Status   `json:"status"`
	ActorID    uuid.UUID       `json:"actorId"`
	Timestamp  int64           `json:"timestamp"`
}

// NewResponseEvent builds an event for r caused by actor.
func NewResponseEvent(eventType string, r models.FormResponse, actor uuid.UUID) ResponseEvent {
	return ResponseEvent{
		Type:       eventType,
		ResponseID: r.ID,
		UserID:     r.UserID,
		FormType:   r.FormType,
		Status:     r.Status,
		ActorID:    actor,
		Timestamp:  r.UpdatedAt.UTC().Unix(),
	}
}

// Notifier publishes response events.
type Notifier interface {
	Notify(ctx context.Context, event ResponseEvent) error
	Close()
}

// NoopNotifier drops events. Used when no Pulsar URL is configured.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, ResponseEvent) error { return nil }
func (NoopNotifier) Close()                                      {}

type EventPublisher struct {
	client   pulsar.Client
	producer pulsar.Producer
}

// NewEventPublisher initializes the Pulsar client and producer.
func NewEventPublisher(pulsarURL, topic string) (*EventPublisher, error) {
	client, err := pulsar.NewClient(pulsar.ClientOptions{
		URL:               pulsarURL,
		OperationTimeout:  30 * time.Second,
		ConnectionTimeout: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create Pulsar client: %w", err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: topic,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("could not create Pulsar producer: %w", err)
	}

	return &EventPublisher{client: client, producer: producer}, nil
}

// Notify publishes event keyed by response id so decisions on one response
// stay ordered.
func (p *EventPublisher) Notify(ctx context.Context, event ResponseEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not serialize event payload: %w", err)
	}

	_, err = p.producer.Send(ctx, &pulsar.ProducerMessage{
		Key:     event.ResponseID.String(),
		Payload: payload,
		Properties: map[string]string{
			"type": event.Type,
		},
	})
	if err != nil {
		return fmt.Errorf("could not send event to Pulsar: %w", err)
	}
	return nil
}

// Close closes the Pulsar producer and client.
func (p *EventPublisher) Close() {
	p.producer.Close()
	p.client.Close()
}
