package enums

import "fmt"

// ListingStatus tracks where a product listing is in its lifecycle.
type ListingStatus string

const (
	ListingStatusDraft     ListingStatus = "draft"
	ListingStatusPublished ListingStatus = "published"
	ListingStatusArchived  ListingStatus = "archived"
)

var validListingStatuses = []ListingStatus{
	ListingStatusDraft,
	ListingStatusPublished,
	ListingStatusArchived,
}

// String implements fmt.Stringer.
func (s ListingStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is recognized.
func (s ListingStatus) IsValid() bool {
	for _, candidate := range validListingStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseListingStatus converts a raw string into a ListingStatus.
func ParseListingStatus(value string) (ListingStatus, error) {
	for _, candidate := range validListingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid listing status %q", value)
}
