package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/storefront/api/internal/services"
)

// PubSubPublisher publishes order and shipping rule domain events to their Pub/Sub topics.
type PubSubPublisher struct {
	orders  *pubsub.Topic
	rules   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var (
	_ services.OrderEventPublisher        = (*PubSubPublisher)(nil)
	_ services.ShippingRuleEventPublisher = (*PubSubPublisher)(nil)
)

// NewPubSubPublisher constructs a publisher. The rule topic may be nil when rule events are not consumed.
func NewPubSubPublisher(orders *pubsub.Topic, rules *pubsub.Topic) (*PubSubPublisher, error) {
	if orders == nil {
		return nil, errors.New("pubsub publisher: order topic is required")
	}
	return &PubSubPublisher{
		orders:  orders,
		rules:   rules,
		marshal: json.Marshal,
	}, nil
}

// PublishOrderEvent sends the event to the order topic.
func (p *PubSubPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.orders == nil {
		return errors.New("pubsub publisher: not initialised")
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "orderId", event.OrderID)
	setAttr(attrs, "status", event.Status)
	setAttr(attrs, "shippingRuleId", event.ShippingRuleID)
	setAttr(attrs, "totalShippingCost", strconv.FormatInt(event.TotalShippingCost, 10))
	setTimeAttr(attrs, event.OccurredAt)

	_, err := p.publish(ctx, p.orders, event, attrs)
	if err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

// PublishShippingRuleEvent sends the event to the rule topic. It is a no-op without a rule topic.
func (p *PubSubPublisher) PublishShippingRuleEvent(ctx context.Context, event services.ShippingRuleEvent) error {
	if p == nil || p.rules == nil {
		return nil
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "action", event.Action)
	setAttr(attrs, "ruleId", event.RuleID)
	setTimeAttr(attrs, event.OccurredAt)

	_, err := p.publish(ctx, p.rules, event, attrs)
	if err != nil {
		return fmt.Errorf("publish shipping rule event: %w", err)
	}
	return nil
}

func (p *PubSubPublisher) publish(ctx context.Context, topic *pubsub.Topic, payload any, attrs map[string]string) (string, error) {
	data, err := p.marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result := topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	return result.Get(ctx)
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

func setTimeAttr(attrs map[string]string, at time.Time) {
	if !at.IsZero() {
		attrs["occurredAt"] = at.UTC().Format(time.RFC3339Nano)
	}
}
