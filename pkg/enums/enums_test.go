package enums

import "testing"

func TestCapabilityParseAndColumn(t *testing.T) {
	for _, raw := range []string{"description", "image", "pricing", "publishing"} {
		c, err := ParseCapability(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if !c.IsValid() {
			t.Fatalf("%q should be valid", raw)
		}
		if c.Column() != raw+"_generations" {
			t.Fatalf("unexpected column %q", c.Column())
		}
	}
	if _, err := ParseCapability("video"); err == nil {
		t.Fatal("expected unknown capability to fail")
	}
	if Capability("").IsValid() {
		t.Fatal("empty capability must be invalid")
	}
}

func TestCapabilitiesReturnsCopy(t *testing.T) {
	caps := Capabilities()
	if len(caps) != 4 {
		t.Fatalf("expected 4 capabilities, got %d", len(caps))
	}
	caps[0] = "mutated"
	if Capabilities()[0] != CapabilityDescription {
		t.Fatal("internal slice leaked")
	}
}

func TestListingStatus(t *testing.T) {
	if _, err := ParseListingStatus("published"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ListingStatus("deleted").IsValid() {
		t.Fatal("unexpected valid status")
	}
}
