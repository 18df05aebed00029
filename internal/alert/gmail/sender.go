package gmail

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"annexparse/internal/config"
)

// Sender delivers alert mail through the Gmail API for hosts without an
// SMTP relay. Recipients come from the message headers.
type Sender struct {
	service *gmail.Service
}

func NewSender(ctx context.Context, cfg config.Config) (*Sender, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailSendScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Sender{service: svc}, nil
}

func (s *Sender) Send(_ string, _ []string, msg []byte) error {
	if _, err := s.service.Users.Messages.Send("me", rawMessage(msg)).Do(); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}

func rawMessage(msg []byte) *gmail.Message {
	return &gmail.Message{Raw: base64.URLEncoding.EncodeToString(msg)}
}
