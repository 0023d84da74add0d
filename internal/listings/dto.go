package listings

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commercepilot-backend/internal/plans"
	"github.com/angelmondragon/commercepilot-backend/pkg/db/models"
	"github.com/angelmondragon/commercepilot-backend/pkg/enums"
)

// CreateListingRequest is the body of POST /api/listings. Price is a
// decimal amount such as "24.50".
type CreateListingRequest struct {
	Title        string              `json:"title" validate:"required,max=200"`
	Description  string              `json:"description" validate:"max=5000"`
	ImageURL     *string             `json:"image_url,omitempty" validate:"omitempty,url,max=2048"`
	Price        *string             `json:"price,omitempty" validate:"omitempty,numeric"`
	Status       enums.ListingStatus `json:"status,omitempty" validate:"omitempty,oneof=draft published archived"`
	Capabilities []enums.Capability  `json:"capabilities" validate:"max=4,dive,oneof=description image pricing publishing"`
}

type ListingDTO struct {
	ID           uuid.UUID           `json:"id"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	ImageURL     *string             `json:"image_url,omitempty"`
	Price        *string             `json:"price,omitempty"`
	Status       enums.ListingStatus `json:"status"`
	Capabilities []enums.Capability  `json:"capabilities"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type PageDTO struct {
	Items      []ListingDTO `json:"items"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func ToDTO(l models.ProductListing) ListingDTO {
	dto := ListingDTO{
		ID:           l.ID,
		Title:        l.Title,
		Description:  l.Description,
		ImageURL:     l.ImageURL,
		Status:       l.Status,
		Capabilities: l.Capabilities,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}
	if dto.Capabilities == nil {
		dto.Capabilities = []enums.Capability{}
	}
	if l.PriceCents != nil {
		price := plans.FormatPrice(*l.PriceCents)
		dto.Price = &price
	}
	return dto
}

func ToPageDTO(p *Page) PageDTO {
	out := PageDTO{Items: make([]ListingDTO, 0, len(p.Items)), NextCursor: p.NextCursor}
	for _, l := range p.Items {
		out.Items = append(out.Items, ToDTO(l))
	}
	return out
}
