// Package notify hands delivered letters to the outside world.
//
// The scheduling engine decides when an occurrence is due; a Notifier is
// told about it only after the occurrence has been recorded, so a failed
// notification never causes the same occurrence to be delivered twice.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/futureself-api/internal/config"
)

// Notifier kinds accepted by New.
const (
	KindLog     = "log"
	KindWebhook = "webhook"
)

// ErrUnknownKind is returned by New for an unsupported notifier kind.
var ErrUnknownKind = errors.New("unknown notifier kind")

// Delivery describes one delivered occurrence of a letter.
type Delivery struct {
	LetterID uuid.UUID `json:"letter_id"`
	UserID   uuid.UUID `json:"user_id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`

	// Occurrence is the 1-based number of this delivery.
	Occurrence int `json:"occurrence"`

	// Final is true when no further occurrences are scheduled.
	Final bool `json:"final"`

	DeliveredAt time.Time `json:"delivered_at"`
}

// Notifier receives delivered letters.
type Notifier interface {
	Notify(ctx context.Context, d Delivery) error
}

// New builds the notifier selected by cfg.
func New(cfg config.NotifyConfig, logger *slog.Logger) (Notifier, error) {
	switch cfg.Kind {
	case KindLog:
		return NewLogNotifier(logger), nil
	case KindWebhook:
		return NewWebhookNotifier(cfg.WebhookURL, cfg.Timeout, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
