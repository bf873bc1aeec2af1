package notify

import (
	"context"
	"fmt"

	"github.com/resolveit/apiserver/internal/mq"
)

// QueueNotifier hands emails to the mailer worker through a queue. Send
// returns once the broker has accepted the job.
type QueueNotifier struct {
	queue   *mq.MQ
	channel string
}

func NewQueueNotifier(queue *mq.MQ, channel string) *QueueNotifier {
	return &QueueNotifier{queue: queue, channel: channel}
}

func (n *QueueNotifier) Send(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	if _, err := n.queue.PublishJSON(ctx, n.channel, email); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}
