package notify

import (
	"context"
	"log/slog"

	"github.com/phrazzld/futureself-api/internal/platform/logger"
)

// LogNotifier writes a structured log line per delivery. Letter bodies are
// never logged.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{logger: l.With(slog.String("component", "log_notifier"))}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, d Delivery) error {
	logger.FromContextOrDefault(ctx, n.logger).InfoContext(ctx, "letter delivered",
		slog.String("letter_id", d.LetterID.String()),
		slog.String("user_id", d.UserID.String()),
		slog.String("title", d.Title),
		slog.Int("occurrence", d.Occurrence),
		slog.Bool("final", d.Final),
		slog.Time("delivered_at", d.DeliveredAt))
	return nil
}
