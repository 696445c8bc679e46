package email

import (
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

// Message is a single outbound email.
type Message struct {
	To      []string
	Cc      []string
	ReplyTo string
	Subject string
	Body    string
	HTML    bool
}

// Validate checks the fields every provider requires.
func (m Message) Validate() error {
	if len(m.To) == 0 {
		return fmt.Errorf("email needs at least one recipient")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("email subject is required")
	}
	return nil
}

// buildMsg renders m as a MIME message with a generated Message-ID.
func buildMsg(fromName, fromEmail string, m Message) (*gomail.Msg, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	msg := gomail.NewMsg()
	if err := msg.FromFormat(fromName, fromEmail); err != nil {
		return nil, fmt.Errorf("email from: %w", err)
	}
	if err := msg.To(m.To...); err != nil {
		return nil, fmt.Errorf("email to: %w", err)
	}
	if cc := nonEmpty(m.Cc); len(cc) > 0 {
		if err := msg.Cc(cc...); err != nil {
			return nil, fmt.Errorf("email cc: %w", err)
		}
	}
	if m.ReplyTo != "" {
		if err := msg.ReplyTo(m.ReplyTo); err != nil {
			return nil, fmt.Errorf("email reply-to: %w", err)
		}
	}
	msg.Subject(m.Subject)
	msg.SetMessageID()
	msg.SetDate()

	if m.HTML {
		msg.SetBodyString(gomail.TypeTextHTML, m.Body)
	} else {
		msg.SetBodyString(gomail.TypeTextPlain, m.Body)
	}
	return msg, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
