// Package qualification sorts a prospect into a sales tier from the
// conversation facts and the priced spend.
package qualification

import (
	"context"
	"strings"

	"sales_agent_backend/internal/pricing"
)

// UseCase is the prospect's stated messaging use.
type UseCase string

const (
	UseCaseUnknown        UseCase = ""
	UseCaseMarketing      UseCase = "marketing"
	UseCaseNotifications  UseCase = "notifications"
	UseCaseTwoFactor      UseCase = "two_factor"
	UseCaseCustomerCare   UseCase = "customer_care"
	UseCaseOther          UseCase = "other"
	UseCaseCannabis       UseCase = "cannabis"
	UseCaseDebtCollection UseCase = "debt_collection"
	UseCaseGambling       UseCase = "gambling"
)

var disqualifying = map[UseCase]bool{
	UseCaseCannabis:       true,
	UseCaseDebtCollection: true,
	UseCaseGambling:       true,
}

// ParseUseCase normalises free spelling ("Debt-Collection") to a UseCase.
// Unrecognised values map to UseCaseOther.
func ParseUseCase(s string) UseCase {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	switch UseCase(key) {
	case UseCaseUnknown:
		return UseCaseUnknown
	case UseCaseMarketing, UseCaseNotifications, UseCaseTwoFactor, UseCaseCustomerCare,
		UseCaseCannabis, UseCaseDebtCollection, UseCaseGambling, UseCaseOther:
		return UseCase(key)
	case "2fa", "otp":
		return UseCaseTwoFactor
	}
	return UseCaseOther
}

// Disqualifying reports whether the use case is excluded by policy.
func (u UseCase) Disqualifying() bool { return disqualifying[u] }

// Tier is the qualification outcome.
type Tier string

const (
	TierUnqualified Tier = "unqualified"
	TierSelfService Tier = "self_service"
	TierQualified   Tier = "qualified"
)

// QualifiedThreshold is exclusive: exactly this amount is still SelfService.
const QualifiedThreshold = 1000 * pricing.MicrosPerDollar

// Facts are what the conversation has established about the prospect.
type Facts struct {
	UseCase UseCase          `json:"use_case"`
	Volumes map[string]int64 `json:"volumes,omitempty"`
	Numbers map[string]int64 `json:"numbers,omitempty"`
	Email   string           `json:"email,omitempty"`
	Phone   string           `json:"phone"`
}

// Usage returns the priced part of the facts.
func (f Facts) Usage() pricing.Usage {
	return pricing.Usage{Volumes: f.Volumes, Numbers: f.Numbers}
}

// FactsExtractor turns a transcript into Facts. Implementations live outside
// this service; facts normally arrive through the calls API.
type FactsExtractor interface {
	ExtractFacts(ctx context.Context, transcript string) (Facts, error)
}

// Classify applies the tier rules in order: disqualifying use case, then
// spend above the threshold, then self service.
func Classify(facts Facts, spend pricing.SpendResult) Tier {
	if facts.UseCase.Disqualifying() {
		return TierUnqualified
	}
	if spend.Total > QualifiedThreshold {
		return TierQualified
	}
	return TierSelfService
}

// Result is a tier with the spend that produced it. Spend is nil when the
// use case disqualified the prospect before pricing.
type Result struct {
	Tier   Tier                 `json:"tier"`
	Spend  *pricing.SpendResult `json:"spend,omitempty"`
	Reason string               `json:"reason"`
}

// Qualify checks the use case before any pricing so a disqualified prospect
// never reaches the spend path.
func Qualify(table *pricing.Table, facts Facts) (Result, error) {
	if facts.UseCase.Disqualifying() {
		return Result{
			Tier:   TierUnqualified,
			Reason: "use case " + string(facts.UseCase) + " is not permitted",
		}, nil
	}

	spend, err := pricing.ComputeSpend(table, facts.Usage())
	if err != nil {
		return Result{}, err
	}

	tier := Classify(facts, spend)
	reason := "estimated spend " + spend.Total.String() + " per month"
	switch tier {
	case TierQualified:
		reason += " exceeds " + QualifiedThreshold.String()
	default:
		reason += " is at or below " + QualifiedThreshold.String()
	}
	return Result{Tier: tier, Spend: &spend, Reason: reason}, nil
}
