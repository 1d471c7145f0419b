package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TerminateSessionMessage requests deactivation of one device session owned
// by the requesting principal.
type TerminateSessionMessage struct {
	SessionID  uuid.UUID `json:"session_id"`
	ProfileID  uuid.UUID `json:"profile_id"`
	TokenHint  string    `json:"token_hint,omitempty"`
	OnResponse func(*TerminateSessionResponse)
}

func (e TerminateSessionMessage) Type() string { return "identity.session.terminate" }

// TerminateSessionResponse reports the outcome back to the caller.
type TerminateSessionResponse struct {
	Success   bool
	SessionID uuid.UUID
}

// TerminateSessionHandler performs the ownership-checked soft delete and
// appends the audit row.
type TerminateSessionHandler struct {
	repo RepositoryManager
}

// NewTerminateSessionHandler builds a handler bound to the repositories.
func NewTerminateSessionHandler(repo RepositoryManager) *TerminateSessionHandler {
	return &TerminateSessionHandler{repo: repo}
}

func (h *TerminateSessionHandler) Execute(ctx context.Context, event TerminateSessionMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during session termination",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *TerminateSessionHandler) execute(ctx context.Context, event TerminateSessionMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := h.repo.Sessions().Terminate(ctx, event.SessionID, event.ProfileID); err != nil {
		if event.OnResponse != nil {
			event.OnResponse(&TerminateSessionResponse{SessionID: event.SessionID})
		}
		return err
	}

	record := &ActivityLog{
		ProfileID:          event.ProfileID,
		Action:             ActionSessionTerminated,
		ResourceType:       "session",
		ResourceID:         event.SessionID.String(),
		SessionTokenPrefix: TruncateToken(event.TokenHint),
		Success:            true,
	}

	// audit append is best-effort relative to the termination itself
	if _, err := h.repo.ActivityLogs().Append(ctx, record); err != nil {
		defLogger{}.Warn("terminate session audit append failed: %v", err)
	}

	if event.OnResponse != nil {
		event.OnResponse(&TerminateSessionResponse{
			Success:   true,
			SessionID: event.SessionID,
		})
	}

	return nil
}
