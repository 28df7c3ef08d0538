package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// Publisher enqueues inbound WhatsApp events for the worker pool.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// EnqueueInbound publishes one inbound text message.
func (p *Publisher) EnqueueInbound(ctx context.Context, evt InboundEvent) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if evt.MessageID == "" || evt.Sender == "" {
		return errors.New("conversation: inbound event requires message id and sender")
	}
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now().UTC()
	}

	payload, body, err := encodePayload(queuePayload{Kind: jobTypeInbound, Inbound: evt})
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("conversation: failed to enqueue inbound event: %w", err)
	}

	p.logger.Debug("inbound event enqueued", "job_id", payload.ID, "message_id", evt.MessageID)
	return nil
}
