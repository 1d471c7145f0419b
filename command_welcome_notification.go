package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// WelcomeNotificationMessage requests a one-time welcome dispatch for a
// freshly created principal.
type WelcomeNotificationMessage struct {
	ProfileID   uuid.UUID `json:"profile_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
}

func (e WelcomeNotificationMessage) Type() string { return "identity.welcome" }

// WelcomeNotificationHandler delivers the welcome side-channel message.
// Callers treat it as best-effort: the orchestrator never awaits it on the
// critical path.
type WelcomeNotificationHandler struct {
	notifier Notifier
	logger   Logger
}

// NewWelcomeNotificationHandler builds a handler for external dispatchers.
func NewWelcomeNotificationHandler(notifier Notifier, logger Logger) *WelcomeNotificationHandler {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = defLogger{}
	}
	return &WelcomeNotificationHandler{notifier: notifier, logger: logger}
}

func (h *WelcomeNotificationHandler) Execute(ctx context.Context, event WelcomeNotificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during welcome dispatch",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *WelcomeNotificationHandler) execute(ctx context.Context, event WelcomeNotificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	profile := &Profile{
		ID:          event.ProfileID,
		Email:       event.Email,
		DisplayName: event.DisplayName,
	}

	if err := h.notifier.SendWelcome(ctx, profile); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "welcome notification dispatch failed")
	}

	return nil
}
