package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/resolveit/apiserver/internal/metrics"
	"github.com/resolveit/apiserver/internal/mq"
	"github.com/resolveit/apiserver/internal/storage"
)

// Worker drains the mail queue: each job is sent through the notifier and,
// when an archive is configured, stored as JSON after a successful send.
type Worker struct {
	queue    *mq.MQ
	channel  string
	notifier Notifier
	archive  *storage.Storage
	logger   *slog.Logger
}

func NewWorker(queue *mq.MQ, channel string, notifier Notifier, archive *storage.Storage, logger *slog.Logger) *Worker {
	return &Worker{
		queue:    queue,
		channel:  channel,
		notifier: notifier,
		archive:  archive,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "mailer started", slog.String("channel", w.channel))
	return w.queue.Subscribe(ctx, w.channel, w.Handle)
}

// Handle processes one queued email. Undecodable jobs are dropped; send
// failures are returned so the broker redelivers the job.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var email Email
	if err := json.Unmarshal(msg.Data, &email); err != nil {
		w.logger.ErrorContext(ctx, "dropping undecodable mail job",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := email.Validate(); err != nil {
		w.logger.ErrorContext(ctx, "dropping invalid mail job",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if err := w.notifier.Send(ctx, email); err != nil {
		metrics.MailDispatchFailures.WithLabelValues("deliver").Inc()
		w.logger.ErrorContext(ctx, "mail send failed",
			slog.String("message_id", msg.ID),
			slog.String("to", email.To),
			slog.String("error", err.Error()),
		)
		return err
	}

	if w.archive != nil {
		key := ArchiveKey(msg.ID)
		if err := w.archive.PutBytes(ctx, key, msg.Data, "application/json", email.Tags); err != nil {
			// The message is already sent; redelivery would send it twice.
			w.logger.ErrorContext(ctx, "mail archive failed",
				slog.String("message_id", msg.ID),
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			return nil
		}
	}

	w.logger.InfoContext(ctx, "mail sent",
		slog.String("message_id", msg.ID),
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
	)
	return nil
}

// ArchiveKey is the object key under which a sent message is archived.
func ArchiveKey(messageID string) string {
	return path.Join("mail", messageID+".json")
}

// LoadArchived reads back the email archived for messageID.
func LoadArchived(ctx context.Context, archive *storage.Storage, messageID string) (Email, error) {
	if archive == nil {
		return Email{}, errors.New("mail archive is not configured")
	}
	rc, err := archive.Get(ctx, ArchiveKey(messageID))
	if err != nil {
		return Email{}, err
	}
	defer rc.Close()

	var email Email
	if err := json.NewDecoder(rc).Decode(&email); err != nil {
		return Email{}, fmt.Errorf("decode archived mail %s: %w", messageID, err)
	}
	return email, nil
}
