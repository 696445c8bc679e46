package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// gmailTransport sends through the Gmail API as the organizer, using a
// service account with domain-wide delegation.
type gmailTransport struct {
	svc *gmail.Service
}

func newGmailTransport(ctx context.Context, credentialsJSON []byte, subject string) (*gmailTransport, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail service account: %w", err)
	}
	conf.Subject = subject

	svc, err := gmail.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &gmailTransport{svc: svc}, nil
}

func (g *gmailTransport) deliver(ctx context.Context, msg *gomail.Msg) (string, error) {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return "", fmt.Errorf("render gmail message: %w", err)
	}

	sent, err := g.svc.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(buf.Bytes()),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail send: %w", err)
	}
	return sent.Id, nil
}
