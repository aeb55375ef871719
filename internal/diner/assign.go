package diner

import (
	"math/rand"

	"github.com/iliyamo/thursday-diner/internal/model"
)

// Rand is the random source used for the fallback pick.  *rand.Rand
// satisfies it; tests inject a fixed sequence.
type Rand interface {
	Intn(n int) int
}

type globalRand struct{}

func (globalRand) Intn(n int) int { return rand.Intn(n) }

// Assign selects a restaurant for a price preference.  The first
// restaurant, in the order given, whose tier equals pref wins.  When none
// matches, a restaurant is drawn uniformly at random from the whole set.
// An empty set yields nil, which callers keep as a pending assignment.
// Assign holds no state and may be re-run for administrative reassignment.
func Assign(pref model.PriceTier, restaurants []model.Restaurant, rnd Rand) *model.Restaurant {
	if len(restaurants) == 0 {
		return nil
	}
	for i := range restaurants {
		if restaurants[i].PriceRange == pref {
			picked := restaurants[i]
			return &picked
		}
	}
	if rnd == nil {
		rnd = globalRand{}
	}
	picked := restaurants[rnd.Intn(len(restaurants))]
	return &picked
}
