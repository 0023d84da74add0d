package plans

import (
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// DefaultPlanName is the entry-level plan attached to new accounts.
const DefaultPlanName = "basic"

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }

// Canonical returns the four-tier catalog seeded on first start.
func Canonical() []models.Plan {
	return []models.Plan{
		{
			Name:           DefaultPlanName,
			DisplayName:    "Basic",
			Description:    "For solo sellers getting their first listings live.",
			PriceCents:     int64Ptr(1900),
			Currency:       enums.CurrencyUSD,
			ProductCredits: intPtr(20),
			Features: []string{
				"20 product credits per month",
				"AI product descriptions",
				"AI image generation",
				"Email support",
			},
			SortOrder: 1,
		},
		{
			Name:           "pro",
			DisplayName:    "Pro",
			Description:    "For growing stores publishing every week.",
			PriceCents:     int64Ptr(4900),
			Currency:       enums.CurrencyUSD,
			ProductCredits: intPtr(100),
			Features: []string{
				"100 product credits per month",
				"Everything in Basic",
				"Dynamic pricing suggestions",
				"One-click publishing",
				"Priority support",
			},
			SortOrder: 2,
			Popular:   true,
		},
		{
			Name:           "business",
			DisplayName:    "Business",
			Description:    "For teams running several storefronts.",
			PriceCents:     int64Ptr(14900),
			Currency:       enums.CurrencyUSD,
			ProductCredits: intPtr(500),
			Features: []string{
				"500 product credits per month",
				"Everything in Pro",
				"Multi-store publishing",
				"Usage analytics",
			},
			SortOrder: 3,
		},
		{
			Name:         "enterprise",
			DisplayName:  "Enterprise",
			Description:  "Custom volume, integrations and onboarding.",
			Currency:     enums.CurrencyUSD,
			APIAccess:    true,
			ContactSales: true,
			Features: []string{
				"Unlimited product credits",
				"API access",
				"Dedicated account manager",
				"Custom integrations",
			},
			SortOrder: 4,
		},
	}
}
