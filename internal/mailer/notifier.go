package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/praxisdesk/praxisdesk/internal/consultancy"
	"github.com/praxisdesk/praxisdesk/internal/file"
	"github.com/praxisdesk/praxisdesk/jobs"
)

type enqueueFunc func(ctx context.Context, payload jobs.SendEmailPayload) error

// Notifier turns domain events into queued emails. Every method is best
// effort: enqueue failures are logged and never returned, so a mutation is
// never rolled back because Redis is down.
type Notifier struct {
	enqueue   enqueueFunc
	teamEmail string
	logger    *slog.Logger
}

// NewNotifier constructs a Notifier over the jobs client. teamEmail
// receives the staff copy of lifecycle notifications.
func NewNotifier(client *jobs.Client, teamEmail string, logger *slog.Logger) *Notifier {
	return &Notifier{
		enqueue: func(ctx context.Context, payload jobs.SendEmailPayload) error {
			_, err := client.EnqueueSendEmail(ctx, payload)
			return err
		},
		teamEmail: teamEmail,
		logger:    logger,
	}
}

func (n *Notifier) send(ctx context.Context, to, subject, body string) {
	if to == "" {
		return
	}
	if err := n.enqueue(ctx, jobs.SendEmailPayload{To: to, Subject: subject, Body: body}); err != nil {
		n.logger.Error("enqueue mail failed",
			slog.String("to", to), slog.String("subject", subject), slog.Any("error", err))
	}
}

// Received confirms a new consultancy submission to the requester and
// alerts the team address.
func (n *Notifier) Received(ctx context.Context, c consultancy.Consultancy, attachments []file.Record) {
	n.send(ctx, c.Email,
		"We received your consultancy request",
		fmt.Sprintf("Hello %s,\n\nYour consultancy request has been received and is pending review.\nAttached files: %d.\n\nWe will get back to you shortly.",
			c.Name, len(attachments)))
	n.send(ctx, n.teamEmail,
		fmt.Sprintf("New consultancy request from %s", c.Name),
		fmt.Sprintf("A new consultancy request was submitted.\n\nName: %s\nEmail: %s\nCompany: %s\n\n%s",
			c.Name, c.Email, c.Company, c.Description))
}

// StatusChanged notifies the requester and the team of a status
// transition.
func (n *Notifier) StatusChanged(ctx context.Context, c consultancy.Consultancy, oldStatus consultancy.Status, actor string) {
	n.send(ctx, c.Email,
		"Your consultancy request was updated",
		fmt.Sprintf("Hello %s,\n\nYour consultancy request moved from %q to %q.",
			c.Name, oldStatus, c.Status))
	n.send(ctx, n.teamEmail,
		fmt.Sprintf("Consultancy %s: %s -> %s", c.ID, oldStatus, c.Status),
		fmt.Sprintf("Status changed by %s.\nRequester: %s <%s>.", actor, c.Name, c.Email))
}

// PasswordReset mails a reset code to the account address.
func (n *Notifier) PasswordReset(ctx context.Context, to, name, code string) {
	n.send(ctx, to,
		"Your password reset code",
		fmt.Sprintf("Hello %s,\n\nYour password reset code is %s. It expires in 15 minutes.\nIf you did not request this, ignore this message.",
			name, code))
}
