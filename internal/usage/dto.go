package usage

import (
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// UsageDTO is one day of metered usage.
type UsageDTO struct {
	Day                    string `json:"day"`
	DescriptionGenerations int    `json:"description_generations"`
	ImageGenerations       int    `json:"image_generations"`
	PricingGenerations     int    `json:"pricing_generations"`
	PublishingGenerations  int    `json:"publishing_generations"`
	CreditsUsed            int    `json:"credits_used"`
}

func ToDTO(row models.UsageMetric) UsageDTO {
	return UsageDTO{
		Day:                    row.Day,
		DescriptionGenerations: row.DescriptionGenerations,
		ImageGenerations:       row.ImageGenerations,
		PricingGenerations:     row.PricingGenerations,
		PublishingGenerations:  row.PublishingGenerations,
		CreditsUsed:            row.CreditsUsed,
	}
}

func ToDTOs(rows []models.UsageMetric) []UsageDTO {
	out := make([]UsageDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDTO(row))
	}
	return out
}

// RecordUsageRequest is the body of POST /api/usage. Cost defaults to 1.
type RecordUsageRequest struct {
	Capability enums.Capability `json:"capability" validate:"required,oneof=description image pricing publishing"`
	Cost       int              `json:"cost" validate:"omitempty,min=1,max=1000"`
}

// ResultDTO is the ledger state after a recorded event.
type ResultDTO struct {
	CreditsRemaining int      `json:"credits_remaining"`
	CreditsTotal     *int     `json:"credits_total"`
	Unlimited        bool     `json:"unlimited"`
	Today            UsageDTO `json:"today"`
}

func ToResultDTO(r *Result) ResultDTO {
	dto := ResultDTO{}
	if r.Subscription != nil {
		dto.CreditsRemaining = r.Subscription.CreditsRemaining
		dto.CreditsTotal = r.Subscription.CreditsTotal
		dto.Unlimited = r.Subscription.Unlimited()
	}
	if r.Today != nil {
		dto.Today = ToDTO(*r.Today)
	}
	return dto
}
