// Package jobs holds the background task definitions and the asynq
// worker/client plumbing around them.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for transactional email delivery.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes one outbound email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an asynq task for the payload.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// EmailSender delivers a single message. Satisfied by the SMTP mailer.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewSendEmailHandler returns the worker-side handler for mail:send tasks.
// Malformed payloads are dropped; delivery errors bubble up for the asynq
// retry policy.
func NewSendEmailHandler(sender EmailSender, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("mail:send payload malformed", slog.Any("error", err))
			return asynq.SkipRetry
		}
		if err := sender.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
			logger.Error("mail:send delivery failed",
				slog.String("to", payload.To), slog.Any("error", err))
			return err
		}
		return nil
	}
}
