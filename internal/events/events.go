// Package events encodes card lifecycle events onto the message queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deckofthoughts/apiserver/internal/logger"
	"github.com/deckofthoughts/apiserver/internal/mq"
	"github.com/deckofthoughts/apiserver/types"
)

const attrType = "type"

// Queue is the subset of *mq.MQ used here.
type Queue interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, handler mq.Handler) error
}

// Publisher sends card events as JSON messages.
type Publisher struct {
	queue Queue
}

func NewPublisher(queue Queue) *Publisher {
	return &Publisher{queue: queue}
}

// PublishCardEvent encodes event and publishes it with its type as an attribute.
func (p *Publisher) PublishCardEvent(ctx context.Context, event types.CardEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode card event: %w", err)
	}
	if _, err := p.queue.Publish(ctx, data, map[string]string{attrType: string(event.Type)}); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Tail decodes every card event delivered on queue and passes it to fn until
// ctx is done. Undecodable messages are logged, then acked and skipped.
func Tail(ctx context.Context, queue Queue, log *logger.Logger, fn func(types.CardEvent) error) error {
	if log == nil {
		log = logger.Nop()
	}
	return queue.Subscribe(ctx, func(_ context.Context, msg mq.Message) error {
		event, err := Decode(msg.Data)
		if err != nil {
			log.Warn("dropping undecodable card event",
				"message_id", msg.ID,
				"error", err.Error())
			return nil
		}
		return fn(event)
	})
}

// Decode parses a card event message body.
func Decode(data []byte) (types.CardEvent, error) {
	var event types.CardEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return types.CardEvent{}, fmt.Errorf("decode card event: %w", err)
	}
	if event.Type == "" || event.CardID == "" {
		return types.CardEvent{}, fmt.Errorf("decode card event: missing type or card id")
	}
	return event, nil
}
