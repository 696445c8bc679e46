package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// smtpTransport delivers through a direct SMTP connection via go-mail.
type smtpTransport struct {
	host     string
	port     int
	username string
	password string
}

func newSMTPTransport(host string, port int, username, password string) *smtpTransport {
	return &smtpTransport{
		host:     host,
		port:     port,
		username: username,
		password: password,
	}
}

func (s *smtpTransport) options() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}
	return opts
}

func (s *smtpTransport) deliver(ctx context.Context, msg *gomail.Msg) (string, error) {
	client, err := gomail.NewClient(s.host, s.options()...)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	return msg.GetMessageID(), nil
}
