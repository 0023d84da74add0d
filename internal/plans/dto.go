package plans

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// PlanDTO is the public representation of a plan.
type PlanDTO struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	DisplayName    string         `json:"display_name"`
	Description    string         `json:"description"`
	Price          *string        `json:"price"`
	PriceCents     *int64         `json:"price_cents"`
	Currency       enums.Currency `json:"currency"`
	ProductCredits *int           `json:"product_credits"`
	Unlimited      bool           `json:"unlimited"`
	APIAccess      bool           `json:"api_access"`
	ContactSales   bool           `json:"contact_sales"`
	Features       []string       `json:"features"`
	SortOrder      int            `json:"sort_order"`
	Popular        bool           `json:"popular"`
}

// FormatPrice renders minor units as a fixed two-decimal amount, e.g. "19.00".
func FormatPrice(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// ToDTO maps a plan row to its public shape.
func ToDTO(p models.Plan) PlanDTO {
	dto := PlanDTO{
		ID:             p.ID,
		Name:           p.Name,
		DisplayName:    p.DisplayName,
		Description:    p.Description,
		PriceCents:     p.PriceCents,
		Currency:       p.Currency,
		ProductCredits: p.ProductCredits,
		Unlimited:      p.Unlimited(),
		APIAccess:      p.APIAccess,
		ContactSales:   p.ContactSales,
		Features:       p.Features,
		SortOrder:      p.SortOrder,
		Popular:        p.Popular,
	}
	if dto.Features == nil {
		dto.Features = []string{}
	}
	if p.PriceCents != nil {
		price := FormatPrice(*p.PriceCents)
		dto.Price = &price
	}
	return dto
}

// ToDTOs maps a list of plans.
func ToDTOs(plans []models.Plan) []PlanDTO {
	out := make([]PlanDTO, 0, len(plans))
	for _, p := range plans {
		out = append(out, ToDTO(p))
	}
	return out
}
