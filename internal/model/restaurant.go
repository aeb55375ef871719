package model

import (
	"strings"
	"time"
)

// PriceTier is the cost bracket shared by restaurants and registrant
// preferences.  Matching between the two is an exact string comparison.
type PriceTier string

const (
	PriceBudget   PriceTier = "€"
	PriceModerate PriceTier = "€€"
	PriceUpscale  PriceTier = "€€€"
	PriceFine     PriceTier = "€€€€"
)

// PriceTiers lists every accepted tier from cheapest to most expensive.
var PriceTiers = []PriceTier{PriceBudget, PriceModerate, PriceUpscale, PriceFine}

// ParsePriceTier trims s and reports whether it names one of PriceTiers.
func ParsePriceTier(s string) (PriceTier, bool) {
	s = strings.TrimSpace(s)
	for _, t := range PriceTiers {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// PriceTierList renders PriceTiers for validation messages, e.g. "€, €€, €€€, €€€€".
func PriceTierList() string {
	parts := make([]string, len(PriceTiers))
	for i, t := range PriceTiers {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

// Restaurant is reference data maintained by administrators.  It maps
// to a row in the `restaurants` table.
//
// Fields:
//  ID         – primary key identifier.
//  Name       – display name; restaurants are listed ordered by name.
//  Cuisine    – cuisine tag (Italian, Romanian, ...).
//  PriceRange – price tier used by the assignment engine.
//  Location   – short location label (neighbourhood).
//  Address    – street address shown once an assignment is revealed.
//  Emoji      – display glyph.
//  Capacity   – number of seats the venue reserves for the dinner.
type Restaurant struct {
	ID         uint64    `json:"id"`          // restaurants.id
	Name       string    `json:"name"`        // restaurants.name
	Cuisine    string    `json:"cuisine"`     // restaurants.cuisine
	PriceRange PriceTier `json:"price_range"` // restaurants.price_range
	Location   string    `json:"location"`    // restaurants.location
	Address    string    `json:"address"`     // restaurants.address
	Emoji      string    `json:"emoji"`       // restaurants.emoji
	Capacity   uint32    `json:"capacity"`    // restaurants.capacity
	CreatedAt  time.Time `json:"created_at"`  // restaurants.created_at
	UpdatedAt  time.Time `json:"updated_at"`  // restaurants.updated_at
}
