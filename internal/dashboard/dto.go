package dashboard

import "github.com/angelmondragon/commercepilot-backend/internal/usage"

type MetricsDTO struct {
	PlanName         *string          `json:"plan_name"`
	PlanDisplayName  *string          `json:"plan_display_name,omitempty"`
	CreditsRemaining int              `json:"credits_remaining"`
	CreditsTotal     *int             `json:"credits_total"`
	Unlimited        bool             `json:"unlimited"`
	Today            usage.UsageDTO   `json:"today"`
	History          []usage.UsageDTO `json:"history"`
}

func ToDTO(m *Metrics) MetricsDTO {
	dto := MetricsDTO{
		Today:   usage.ToDTO(m.Today),
		History: usage.ToDTOs(m.History),
	}
	if m.Plan != nil {
		dto.PlanName = &m.Plan.Name
		dto.PlanDisplayName = &m.Plan.DisplayName
	}
	if m.Subscription != nil {
		dto.CreditsRemaining = m.Subscription.CreditsRemaining
		dto.CreditsTotal = m.Subscription.CreditsTotal
		dto.Unlimited = m.Subscription.Unlimited()
	}
	return dto
}
