package services

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

type Notification struct {
	Recipients []uuid.UUID
	Subject    string
	Body       string
}

// Notifier is the outbound channel to members. Delivery (email, push) belongs
// to another system; this service only hands messages over.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier records notifications in the log instead of delivering them.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (ln *LogNotifier) Notify(ctx context.Context, n Notification) error {
	ln.logger.InfoContext(ctx, "Notification queued",
		"subject", n.Subject,
		"recipients", len(n.Recipients),
	)
	return nil
}
