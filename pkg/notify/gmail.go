package notify

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/Gobusters/ectologger"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/Ramsey-B/aster/pkg/tracing"
)

// GmailConfig holds OAuth client credentials for the sending account
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	From         string
	To           []string
}

// Configured reports whether every credential needed to send is present
func (c GmailConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != "" && c.From != ""
}

// GmailNotifier sends mail through the Gmail API as the authorised user
type GmailNotifier struct {
	service *gmail.Service
	from    string
	to      []string
	logger  ectologger.Logger
}

// NewGmailNotifier builds a Gmail client that refreshes its access token from
// the configured refresh token. Extra options are passed to the API client.
func NewGmailNotifier(ctx context.Context, cfg GmailConfig, logger ectologger.Logger, opts ...option.ClientOption) (*GmailNotifier, error) {
	if len(opts) == 0 {
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gmail.GmailSendScope},
		}
		tokenSource := oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		opts = []option.ClientOption{option.WithTokenSource(tokenSource)}
	}

	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return &GmailNotifier{
		service: service,
		from:    cfg.From,
		to:      cfg.To,
		logger:  logger,
	}, nil
}

// Send delivers msg. Recipients default to the configured list.
func (n *GmailNotifier) Send(ctx context.Context, msg Message) error {
	ctx, span := tracing.StartSpan(ctx, "GmailNotifier.Send")
	defer span.End()

	if len(msg.To) == 0 {
		msg.To = n.to
	}

	raw, err := BuildRFC822(n.from, msg)
	if err != nil {
		return err
	}

	sent, err := n.service.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		n.logger.WithContext(ctx).WithError(err).Errorf("Failed to send %q via Gmail", msg.Subject)
		return fmt.Errorf("failed to send message: %w", err)
	}

	n.logger.WithContext(ctx).WithFields(map[string]any{
		"message_id": sent.Id,
		"recipients": len(msg.To),
	}).Infof("Sent %q via Gmail", msg.Subject)
	return nil
}
