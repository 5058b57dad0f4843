// Package realtime publishes thread events to Redis pub/sub so connected
// clients of the other household member can refresh.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventMessageCreated  = "message.created"
	EventMessageChecked  = "message.checked"
	EventMessagesDeleted = "messages.deleted"
)

// Event is the JSON body published on a thread channel.
type Event struct {
	Type       string    `json:"type"`
	ThreadID   string    `json:"thread_id"`
	ActorID    string    `json:"actor_user_id"`
	MessageIDs []string  `json:"message_ids"`
	Checked    *bool     `json:"checked,omitempty"`
	At         time.Time `json:"at"`
}

// Channel names the pub/sub channel for a thread.
func Channel(threadID string) string {
	return "hearth:thread:" + threadID
}

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish sends event on its thread channel and reports how many
// subscribers received it.
func (p *Publisher) Publish(ctx context.Context, event Event) (int64, error) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	if event.MessageIDs == nil {
		event.MessageIDs = []string{}
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}
	receivers, err := p.client.Publish(ctx, Channel(event.ThreadID), payload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return receivers, nil
}

// Subscribe returns a subscription to one thread's channel.
func (p *Publisher) Subscribe(ctx context.Context, threadID string) *redis.PubSub {
	return p.client.Subscribe(ctx, Channel(threadID))
}
