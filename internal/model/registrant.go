package model

import "time"

// Registrant status values.  Withdrawing from a week keeps the row and
// flips it to CANCELLED so the history of past weeks stays intact.
const (
	StatusActive    = "ACTIVE"
	StatusCancelled = "CANCELLED"
)

// Reveal override values written by administrators.  A registrant with a
// non-nil override is ignored by the periodic reveal pass.
const (
	OverrideRevealed = "REVEALED"
	OverrideHidden   = "HIDDEN"
)

// RegistrantState is the derived lifecycle position of a registrant.
type RegistrantState string

const (
	StatePendingAssignment RegistrantState = "PENDING_ASSIGNMENT"
	StateAssigned          RegistrantState = "ASSIGNED"
	StateRevealed          RegistrantState = "REVEALED"
	StateCancelled         RegistrantState = "CANCELLED"
)

// Registrant is a user's submission for one Thursday.  It corresponds to
// a row in the `thursday_diners` table; (UserID, Week) is unique.
//
// Fields:
//  ID                  – primary key identifier.
//  UserID              – user who registered.
//  Week                – the Thursday of the dinner, formatted YYYY-MM-DD.
//  PricePreference     – requested price tier.
//  DietaryRestrictions – dietary tags, never nil, may be empty.
//  CuisinePreference   – optional cuisine wish.
//  RestaurantID        – assigned restaurant (nil while pending).
//  Revealed            – whether the registrant may see the restaurant.
//  RevealOverride      – admin override (REVEALED/HIDDEN) or nil.
//  Status              – ACTIVE or CANCELLED.
//  CancelledAt         – when the registrant withdrew.
type Registrant struct {
	ID                  uint64     `json:"id"`                           // thursday_diners.id
	UserID              uint64     `json:"user_id"`                      // thursday_diners.user_id
	Week                string     `json:"week"`                         // thursday_diners.week_date
	PricePreference     PriceTier  `json:"price_preference"`             // thursday_diners.price_preference
	DietaryRestrictions []string   `json:"dietary_restrictions"`         // thursday_diners.dietary_restrictions (JSON)
	CuisinePreference   *string    `json:"cuisine_preference,omitempty"` // thursday_diners.cuisine_preference (nullable)
	RestaurantID        *uint64    `json:"restaurant_id,omitempty"`      // thursday_diners.restaurant_id (nullable)
	Revealed            bool       `json:"revealed"`                     // thursday_diners.revealed
	RevealOverride      *string    `json:"reveal_override,omitempty"`    // thursday_diners.reveal_override (nullable)
	Status              string     `json:"status"`                       // thursday_diners.status
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`       // thursday_diners.cancelled_at (nullable)
	CreatedAt           time.Time  `json:"created_at"`                   // thursday_diners.created_at
	UpdatedAt           time.Time  `json:"updated_at"`                   // thursday_diners.updated_at
}

// State derives the lifecycle position from the stored columns.
func (r Registrant) State() RegistrantState {
	switch {
	case r.Status == StatusCancelled:
		return StateCancelled
	case r.RestaurantID == nil:
		return StatePendingAssignment
	case r.Revealed:
		return StateRevealed
	default:
		return StateAssigned
	}
}

// WeekStats aggregates the registrants of a single week.  Registered,
// Assigned and Revealed only count ACTIVE rows.
type WeekStats struct {
	Week       string `json:"week"`
	Registered int    `json:"registered"`
	Assigned   int    `json:"assigned"`
	Revealed   int    `json:"revealed"`
	Cancelled  int    `json:"cancelled"`
}
