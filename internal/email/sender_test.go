package email

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"sales_agent_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

type captureTransport struct {
	sent []*gomail.Msg
	err  error
}

func (c *captureTransport) deliver(ctx context.Context, msg *gomail.Msg) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.sent = append(c.sent, msg)
	return "delivery-1", nil
}

func newTestMailer(tr transport) *mailer {
	return &mailer{
		transport: tr,
		fromName:  "Sales",
		fromEmail: "sales@example.com",
		links: Links{
			SignupURL:  "https://example.com/signup",
			DocsURL:    "https://example.com/docs",
			SupportURL: "https://example.com/support",
			PolicyURL:  "https://example.com/aup",
		},
		log: logger.Nop(),
	}
}

func render(t *testing.T, msg *gomail.Msg) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.String()
}

func TestSendOnboardingEmailRendersLinks(t *testing.T) {
	tr := &captureTransport{}
	m := newTestMailer(tr)

	id, err := m.SendOnboardingEmail(context.Background(), "ada@example.com", "Ada")
	if err != nil {
		t.Fatalf("SendOnboardingEmail: %v", err)
	}
	if id != "delivery-1" || len(tr.sent) != 1 {
		t.Fatalf("expected one delivery, got id=%q sent=%d", id, len(tr.sent))
	}

	raw := render(t, tr.sent[0])
	for _, want := range []string{"To: <ada@example.com>", "Subject: " + subjectOnboarding, "text/html"} {
		if !strings.Contains(raw, want) {
			t.Errorf("expected message to contain %q", want)
		}
	}
}

func TestRenderOnboardingTemplate(t *testing.T) {
	content, err := renderEmailTemplate("onboarding.html", onboardingEmailData{
		baseEmailData: baseEmailData{Greeting: greeting("Ada"), CTAURL: "https://example.com/signup", CTALabel: "Sign up"},
		DocsURL:       "https://example.com/docs",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"Hi Ada,", "https://example.com/signup", "https://example.com/docs"} {
		if !strings.Contains(content, want) {
			t.Errorf("expected rendered template to contain %q", want)
		}
	}
	if strings.Contains(content, "support team") {
		t.Error("support paragraph must be omitted without a support url")
	}
}

func TestSendAcceptableUsePolicyEmail(t *testing.T) {
	tr := &captureTransport{}
	m := newTestMailer(tr)

	if _, err := m.SendAcceptableUsePolicyEmail(context.Background(), "bob@example.com", ""); err != nil {
		t.Fatalf("SendAcceptableUsePolicyEmail: %v", err)
	}
	if len(tr.sent) != 1 {
		t.Fatalf("expected one delivery, got %d", len(tr.sent))
	}

	content, err := renderEmailTemplate("acceptable_use.html", policyEmailData{
		baseEmailData: baseEmailData{Greeting: greeting(""), CTAURL: "https://example.com/aup", CTALabel: "Policy"},
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(content, "https://example.com/aup") || !strings.Contains(content, "Hi there,") {
		t.Fatal("expected policy link and generic greeting")
	}
}

func TestSendFollowUpEmailSetsReplyTo(t *testing.T) {
	tr := &captureTransport{}
	m := newTestMailer(tr)

	if _, err := m.SendFollowUpEmail(context.Background(), "cy@example.com", "Cy"); err != nil {
		t.Fatalf("SendFollowUpEmail: %v", err)
	}
	raw := render(t, tr.sent[0])
	if !strings.Contains(raw, "Reply-To: <sales@example.com>") {
		t.Fatalf("expected reply-to header, got:\n%s", raw)
	}
}

func TestSendCustomEmailValidates(t *testing.T) {
	tr := &captureTransport{}
	m := newTestMailer(tr)

	if _, err := m.SendCustomEmail(context.Background(), Message{Subject: "x"}); err == nil {
		t.Fatal("expected error without recipients")
	}
	if _, err := m.SendCustomEmail(context.Background(), Message{To: []string{"a@example.com"}}); err == nil {
		t.Fatal("expected error without subject")
	}
	if len(tr.sent) != 0 {
		t.Fatal("invalid messages must not be delivered")
	}
}

func TestSendCustomEmailWithCC(t *testing.T) {
	tr := &captureTransport{}
	m := newTestMailer(tr)

	_, err := m.SendCustomEmail(context.Background(), Message{
		To:      []string{"a@example.com"},
		Cc:      []string{"", "b@example.com"},
		Subject: "Notes",
		Body:    "plain body",
	})
	if err != nil {
		t.Fatalf("SendCustomEmail: %v", err)
	}
	raw := render(t, tr.sent[0])
	if !strings.Contains(raw, "Cc: <b@example.com>") || !strings.Contains(raw, "text/plain") || !strings.Contains(raw, "plain body") {
		t.Fatalf("unexpected message:\n%s", raw)
	}
}

func TestSendPropagatesTransportError(t *testing.T) {
	boom := errors.New("smtp down")
	m := newTestMailer(&captureTransport{err: boom})

	if _, err := m.SendFollowUpEmail(context.Background(), "cy@example.com", ""); !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

type stubEmailConfig struct{ provider string }

func (s stubEmailConfig) GetEmailProvider() string    { return s.provider }
func (s stubEmailConfig) GetEmailFromName() string    { return "Sales" }
func (s stubEmailConfig) GetEmailFromAddress() string { return "sales@example.com" }
func (s stubEmailConfig) GetSMTPHost() string         { return "smtp.example.com" }
func (s stubEmailConfig) GetSMTPPort() int            { return 587 }
func (s stubEmailConfig) GetSMTPUsername() string     { return "" }
func (s stubEmailConfig) GetSMTPPassword() string     { return "" }

type stubGoogleConfig struct{}

func (stubGoogleConfig) GetGoogleCalendarCredentialsFile() string { return "" }
func (stubGoogleConfig) GetGmailCredentialsFile() string          { return "/nonexistent/gmail.json" }
func (stubGoogleConfig) GetOrganizerEmail() string                { return "sales@example.com" }
func (stubGoogleConfig) GetCalendarID() string                    { return "sales@example.com" }

func TestNewSenderSelectsProvider(t *testing.T) {
	ctx := context.Background()

	s, err := NewSender(ctx, stubEmailConfig{provider: "none"}, stubGoogleConfig{}, Links{}, nil)
	if err != nil {
		t.Fatalf("none: %v", err)
	}
	if _, ok := s.(NoopSender); !ok {
		t.Fatalf("expected NoopSender, got %T", s)
	}

	s, err = NewSender(ctx, stubEmailConfig{provider: "smtp"}, stubGoogleConfig{}, Links{}, nil)
	if err != nil {
		t.Fatalf("smtp: %v", err)
	}
	if _, ok := s.(*mailer).transport.(*smtpTransport); !ok {
		t.Fatalf("expected smtp transport, got %T", s.(*mailer).transport)
	}

	if _, err := NewSender(ctx, stubEmailConfig{provider: "gmail"}, stubGoogleConfig{}, Links{}, nil); err == nil {
		t.Fatal("expected error for missing gmail credentials")
	}
	if _, err := NewSender(ctx, stubEmailConfig{provider: "fax"}, stubGoogleConfig{}, Links{}, nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
