package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []SendEmailPayload
	err  error
}

func (s *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, SendEmailPayload{To: to, Subject: subject, Body: body})
	return nil
}

func TestSendEmailHandlerDelivers(t *testing.T) {
	sender := &fakeSender{}
	handler := NewSendEmailHandler(sender, slog.Default())

	task, err := NewSendEmailTask(SendEmailPayload{
		To: "ana@example.com", Subject: "hello", Body: "welcome",
	})
	require.NoError(t, err)
	require.Equal(t, TaskTypeSendEmail, task.Type())

	require.NoError(t, handler(context.Background(), task))
	require.Len(t, sender.sent, 1)
	require.Equal(t, "ana@example.com", sender.sent[0].To)
	require.Equal(t, "hello", sender.sent[0].Subject)
}

func TestSendEmailHandlerDropsMalformedPayload(t *testing.T) {
	sender := &fakeSender{}
	handler := NewSendEmailHandler(sender, slog.Default())

	err := handler(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, sender.sent)
}

func TestSendEmailHandlerBubblesDeliveryErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("smtp refused")}
	handler := NewSendEmailHandler(sender, slog.Default())

	task, err := NewSendEmailTask(SendEmailPayload{To: "ana@example.com"})
	require.NoError(t, err)

	err = handler(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
