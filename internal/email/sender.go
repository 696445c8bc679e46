// Package email renders and delivers the emails sent during and after a sales call.
package email

import (
	"context"
	"fmt"
	"os"

	"sales_agent_backend/platform/config"
	"sales_agent_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// Links are the public URLs referenced in templated emails.
type Links struct {
	SignupURL  string
	DocsURL    string
	SupportURL string
	PolicyURL  string
}

// Sender sends the call's templated emails and arbitrary messages. Every
// method returns the provider's delivery id.
type Sender interface {
	SendOnboardingEmail(ctx context.Context, toEmail, firstName string) (string, error)
	SendAcceptableUsePolicyEmail(ctx context.Context, toEmail, firstName string) (string, error)
	SendFollowUpEmail(ctx context.Context, toEmail, firstName string) (string, error)
	SendCustomEmail(ctx context.Context, msg Message) (string, error)
}

// NoopSender accepts everything and delivers nothing.
type NoopSender struct{}

func (NoopSender) SendOnboardingEmail(ctx context.Context, toEmail, firstName string) (string, error) {
	return "noop", nil
}

func (NoopSender) SendAcceptableUsePolicyEmail(ctx context.Context, toEmail, firstName string) (string, error) {
	return "noop", nil
}

func (NoopSender) SendFollowUpEmail(ctx context.Context, toEmail, firstName string) (string, error) {
	return "noop", nil
}

func (NoopSender) SendCustomEmail(ctx context.Context, msg Message) (string, error) {
	return "noop", msg.Validate()
}

// transport delivers a built MIME message and returns its delivery id.
type transport interface {
	deliver(ctx context.Context, msg *gomail.Msg) (string, error)
}

// mailer renders templates and hands messages to a transport. SMTP and Gmail
// share it so both send identical content.
type mailer struct {
	transport transport
	fromName  string
	fromEmail string
	links     Links
	log       *logger.Logger
}

func (m *mailer) SendCustomEmail(ctx context.Context, message Message) (string, error) {
	msg, err := buildMsg(m.fromName, m.fromEmail, message)
	if err != nil {
		return "", err
	}
	id, err := m.transport.deliver(ctx, msg)
	if err != nil {
		return "", err
	}
	m.log.Info("email sent", "to", message.To, "subject", message.Subject, "delivery_id", id)
	return id, nil
}

func (m *mailer) SendOnboardingEmail(ctx context.Context, toEmail, firstName string) (string, error) {
	content, err := renderEmailTemplate("onboarding.html", onboardingEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectOnboarding,
			Heading:  "Welcome aboard",
			Greeting: greeting(firstName),
			CTALabel: "Create your account",
			CTAURL:   m.links.SignupURL,
		},
		DocsURL:    m.links.DocsURL,
		SupportURL: m.links.SupportURL,
	})
	if err != nil {
		return "", err
	}
	return m.SendCustomEmail(ctx, Message{To: []string{toEmail}, Subject: subjectOnboarding, Body: content, HTML: true})
}

func (m *mailer) SendAcceptableUsePolicyEmail(ctx context.Context, toEmail, firstName string) (string, error) {
	content, err := renderEmailTemplate("acceptable_use.html", policyEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectAcceptableUse,
			Heading:  "About your messaging use case",
			Greeting: greeting(firstName),
			CTALabel: "Read the acceptable use policy",
			CTAURL:   m.links.PolicyURL,
		},
		SupportURL: m.links.SupportURL,
	})
	if err != nil {
		return "", err
	}
	return m.SendCustomEmail(ctx, Message{To: []string{toEmail}, Subject: subjectAcceptableUse, Body: content, HTML: true})
}

func (m *mailer) SendFollowUpEmail(ctx context.Context, toEmail, firstName string) (string, error) {
	content, err := renderEmailTemplate("follow_up.html", followUpEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectFollowUp,
			Heading:  "Let's find a time",
			Greeting: greeting(firstName),
		},
		ReplyTo: m.fromEmail,
	})
	if err != nil {
		return "", err
	}
	return m.SendCustomEmail(ctx, Message{
		To:      []string{toEmail},
		ReplyTo: m.fromEmail,
		Subject: subjectFollowUp,
		Body:    content,
		HTML:    true,
	})
}

func greeting(firstName string) string {
	if firstName == "" {
		return "Hi there,"
	}
	return "Hi " + firstName + ","
}

// NewSender picks the provider named by EMAIL_PROVIDER.
func NewSender(ctx context.Context, cfg config.EmailConfig, google config.GoogleConfig, links Links, log *logger.Logger) (Sender, error) {
	if log == nil {
		log = logger.Nop()
	}

	switch cfg.GetEmailProvider() {
	case "none", "":
		return NoopSender{}, nil
	case "smtp":
		return &mailer{
			transport: newSMTPTransport(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword()),
			fromName:  cfg.GetEmailFromName(),
			fromEmail: cfg.GetEmailFromAddress(),
			links:     links,
			log:       log,
		}, nil
	case "gmail":
		credentials, err := os.ReadFile(google.GetGmailCredentialsFile())
		if err != nil {
			return nil, fmt.Errorf("read gmail credentials: %w", err)
		}
		gt, err := newGmailTransport(ctx, credentials, google.GetOrganizerEmail())
		if err != nil {
			return nil, err
		}
		return &mailer{
			transport: gt,
			fromName:  cfg.GetEmailFromName(),
			fromEmail: cfg.GetEmailFromAddress(),
			links:     links,
			log:       log,
		}, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.GetEmailProvider())
	}
}
