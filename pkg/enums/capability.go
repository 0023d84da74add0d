package enums

import "fmt"

// Capability identifies one of the metered generation features.
type Capability string

const (
	CapabilityDescription Capability = "description"
	CapabilityImage       Capability = "image"
	CapabilityPricing     Capability = "pricing"
	CapabilityPublishing  Capability = "publishing"
)

var validCapabilities = []Capability{
	CapabilityDescription,
	CapabilityImage,
	CapabilityPricing,
	CapabilityPublishing,
}

// Capabilities returns every metered capability in display order.
func Capabilities() []Capability {
	out := make([]Capability, len(validCapabilities))
	copy(out, validCapabilities)
	return out
}

// String implements fmt.Stringer.
func (c Capability) String() string {
	return string(c)
}

// IsValid reports whether the capability is metered.
func (c Capability) IsValid() bool {
	for _, candidate := range validCapabilities {
		if candidate == c {
			return true
		}
	}
	return false
}

// Column returns the usage_metrics counter column for the capability.
func (c Capability) Column() string {
	return string(c) + "_generations"
}

// ParseCapability converts a raw string into a Capability.
func ParseCapability(value string) (Capability, error) {
	for _, candidate := range validCapabilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid capability %q", value)
}
