package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// TaskSubject is the CRM task subject for a call.
func (s *Session) TaskSubject() string {
	switch {
	case s.Outcome.HungUp:
		return "Inbound sales call (caller hung up)"
	case s.Tier() != "":
		return "Inbound sales call: " + string(s.Tier())
	default:
		return "Inbound sales call"
	}
}

// TaskBody renders the outcome as plain text for the CRM task description.
func (s *Session) TaskBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Caller: %s\n", s.Phone)
	if s.Email != "" {
		fmt.Fprintf(&b, "Email: %s\n", s.Email)
	}
	if s.Facts.UseCase != "" {
		fmt.Fprintf(&b, "Use case: %s\n", s.Facts.UseCase)
	}
	if len(s.Facts.Volumes) > 0 {
		fmt.Fprintf(&b, "Monthly volume: %s\n", formatCounts(s.Facts.Volumes))
	}
	if len(s.Facts.Numbers) > 0 {
		fmt.Fprintf(&b, "Numbers: %s\n", formatCounts(s.Facts.Numbers))
	}
	if q := s.Qualification; q != nil {
		fmt.Fprintf(&b, "Tier: %s (%s)\n", q.Tier, q.Reason)
	}
	if m := s.Outcome.Meeting; m != nil {
		fmt.Fprintf(&b, "Meeting: %s to %s %s [%s]\n",
			m.Start.Format(time.RFC3339), m.End.Format(time.RFC3339), m.TimeZone, m.Status)
	}
	if s.Outcome.HungUp {
		fmt.Fprintf(&b, "Call ended early in state %s\n", s.State)
	}

	b.WriteString("\nActions:\n")
	for _, a := range s.Outcome.Actions {
		fmt.Fprintf(&b, "- %s %s: %s", a.At.UTC().Format(time.RFC3339), a.Name, a.Status)
		if a.Detail != "" {
			fmt.Fprintf(&b, " (%s)", a.Detail)
		}
		b.WriteString("\n")
	}
	if len(s.Outcome.FailedEffects) > 0 {
		names := make([]string, 0, len(s.Outcome.FailedEffects))
		for _, f := range s.Outcome.FailedEffects {
			names = append(names, string(f))
		}
		fmt.Fprintf(&b, "\nFailed: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

func formatCounts(m map[string]int64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}
