package service

import (
	"strings"

	"sales_agent_backend/internal/availability"
	"sales_agent_backend/internal/calls/domain"
)

const slotLayout = "Mon Jan 2 at 3:04 PM MST"

func formatSlot(slot availability.MeetingSlot) string {
	return slot.Start.Format(slotLayout) + " (" + slot.TimeZone + ")"
}

func emailRequestText(company string) string {
	from := "us"
	if company != "" {
		from = company
	}
	return "Thanks for calling " + from + "! Reply to this text with your email address so we can send you the details."
}

// closingText is the final SMS for qualified callers.
func closingText(sess *domain.Session) string {
	var b strings.Builder
	b.WriteString("Thanks for your call! ")
	switch {
	case sess.Slot != nil && sess.Slot.Confirmed():
		b.WriteString("Your call with our team is booked for ")
		b.WriteString(sess.Slot.Start.Format(slotLayout))
		b.WriteString(".")
		if sess.HasEmail() {
			b.WriteString(" A calendar invite is on its way to ")
			b.WriteString(sess.Email)
			b.WriteString(".")
		}
	case sess.HasEmail():
		b.WriteString("We'll email you at ")
		b.WriteString(sess.Email)
		b.WriteString(" to find a time to talk.")
	default:
		b.WriteString("Our team will reach out to find a time to talk.")
	}
	return b.String()
}

func meetingDescription(sess *domain.Session) string {
	var b strings.Builder
	b.WriteString("Caller: ")
	b.WriteString(sess.Phone)
	if sess.Qualification != nil {
		b.WriteString("\nQualification: ")
		b.WriteString(sess.Qualification.Reason)
	}
	if sess.Facts.UseCase != "" {
		b.WriteString("\nUse case: ")
		b.WriteString(string(sess.Facts.UseCase))
	}
	return b.String()
}
