// Package sendgrid adapts the SendGrid mail API to the go-identity Notifier
// interface for welcome notifications.
package sendgrid

import (
	"context"
	"fmt"

	identity "github.com/orbitbank/go-identity"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Config configures the SendGrid notifier.
type Config struct {
	// APIKey is the SendGrid API key.
	APIKey string

	// FromName is the display name on outgoing mail.
	FromName string

	// FromAddress is the sender address on outgoing mail.
	FromAddress string

	// Subject overrides the default welcome subject.
	Subject string
}

// Notifier delivers welcome mail through SendGrid.
type Notifier struct {
	cfg    Config
	client *sendgrid.Client
}

var _ identity.Notifier = (*Notifier)(nil)

// NewNotifier builds a SendGrid-backed notifier.
func NewNotifier(cfg Config) (*Notifier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid: api key is required")
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("sendgrid: from address is required")
	}

	if cfg.FromName == "" {
		cfg.FromName = "Account Services"
	}
	if cfg.Subject == "" {
		cfg.Subject = "Welcome to your new account"
	}

	return &Notifier{
		cfg:    cfg,
		client: sendgrid.NewSendClient(cfg.APIKey),
	}, nil
}

// SendWelcome implements identity.Notifier.
func (n *Notifier) SendWelcome(ctx context.Context, profile *identity.Profile) error {
	if profile == nil || profile.Email == "" {
		return identity.ErrNoEmptyString
	}

	name := profile.DisplayName
	if name == "" {
		name = profile.Email
	}

	from := mail.NewEmail(n.cfg.FromName, n.cfg.FromAddress)
	to := mail.NewEmail(name, profile.Email)

	plain := fmt.Sprintf("Hi %s,\n\nYour account is ready. Sign in to review your balance and manage your devices.", name)
	html := fmt.Sprintf("<p>Hi %s,</p><p>Your account is ready. Sign in to review your balance and manage your devices.</p>", name)

	message := mail.NewSingleEmail(from, n.cfg.Subject, to, plain, html)

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}

	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid: delivery rejected with status %d", response.StatusCode)
	}

	return nil
}
