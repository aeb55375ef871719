// Package dinertest provides in-memory collaborators for exercising the
// diner workflow without a database or broker.
package dinertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/thursday-diner/internal/model"
	"github.com/iliyamo/thursday-diner/internal/queue"
	"github.com/iliyamo/thursday-diner/internal/repository"
)

// Store holds registrants and restaurants in maps guarded by a mutex.
// Its Registrants and Restaurants views implement the diner store
// interfaces with the MySQL repositories' contract, including the
// (user, week) unique key and the restaurant reference check on delete.
type Store struct {
	mu          sync.Mutex
	registrants map[uint64]model.Registrant
	restaurants map[uint64]model.Restaurant
	nextReg     uint64
	nextRest    uint64

	// Err, when set, is returned by every call.
	Err error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		registrants: make(map[uint64]model.Registrant),
		restaurants: make(map[uint64]model.Restaurant),
	}
}

// AddRestaurant stores r and returns it with its ID populated.
func (s *Store) AddRestaurant(r model.Restaurant) model.Restaurant {
	if err := s.Restaurants().Create(context.Background(), &r); err != nil {
		panic(err)
	}
	return r
}

// Registrant returns the stored copy of registrant id.
func (s *Store) Registrant(id uint64) (model.Registrant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registrants[id]
	return r, ok
}

// ---- registrants ----

// Registrants is the diner.RegistrantStore view of a Store.
type Registrants struct{ *Store }

// Registrants returns the registrant view.
func (s *Store) Registrants() Registrants { return Registrants{s} }

func (s Registrants) Create(ctx context.Context, r *model.Registrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, existing := range s.registrants {
		if existing.UserID == r.UserID && existing.Week == r.Week {
			return repository.ErrDuplicate
		}
	}
	s.nextReg++
	r.ID = s.nextReg
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	if r.Status == "" {
		r.Status = model.StatusActive
	}
	s.registrants[r.ID] = cloneRegistrant(*r)
	return nil
}

func (s Registrants) GetByID(ctx context.Context, id uint64) (model.Registrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Registrant{}, s.Err
	}
	r, ok := s.registrants[id]
	if !ok {
		return model.Registrant{}, repository.ErrNotFound
	}
	return cloneRegistrant(r), nil
}

func (s Registrants) Reactivate(ctx context.Context, r *model.Registrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for id, existing := range s.registrants {
		if existing.UserID != r.UserID || existing.Week != r.Week {
			continue
		}
		if existing.Status != model.StatusCancelled {
			return repository.ErrNotFound
		}
		r.ID = id
		r.Status = model.StatusActive
		r.Revealed = false
		r.RevealOverride = nil
		r.CancelledAt = nil
		r.CreatedAt = existing.CreatedAt
		r.UpdatedAt = time.Now().UTC()
		s.registrants[id] = cloneRegistrant(*r)
		return nil
	}
	return repository.ErrNotFound
}

func (s Registrants) GetByUserAndWeek(ctx context.Context, userID uint64, week string) (model.Registrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Registrant{}, s.Err
	}
	for _, r := range s.registrants {
		if r.UserID == userID && r.Week == week {
			return cloneRegistrant(r), nil
		}
	}
	return model.Registrant{}, repository.ErrNotFound
}

func (s Registrants) ListByUser(ctx context.Context, userID uint64) ([]model.Registrant, error) {
	return s.filter(func(r model.Registrant) bool { return r.UserID == userID }, func(a, b model.Registrant) bool {
		return a.Week > b.Week
	})
}

func (s Registrants) ListByWeek(ctx context.Context, week string) ([]model.Registrant, error) {
	return s.filter(func(r model.Registrant) bool { return r.Week == week }, func(a, b model.Registrant) bool {
		return a.ID < b.ID
	})
}

func (s Registrants) Cancel(ctx context.Context, id uint64) error {
	return s.update(id, func(r *model.Registrant) error {
		if r.Status != model.StatusActive {
			return repository.ErrNotFound
		}
		now := time.Now().UTC()
		r.Status = model.StatusCancelled
		r.CancelledAt = &now
		return nil
	})
}

func (s Registrants) SetRestaurant(ctx context.Context, id uint64, restaurantID *uint64) error {
	return s.update(id, func(r *model.Registrant) error {
		r.RestaurantID = restaurantID
		return nil
	})
}

func (s Registrants) SetRevealed(ctx context.Context, id uint64, revealed bool, override *string) error {
	return s.update(id, func(r *model.Registrant) error {
		r.Revealed = revealed
		r.RevealOverride = override
		return nil
	})
}

func (s Registrants) PendingRevealWeeks(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	seen := map[string]struct{}{}
	var weeks []string
	for _, r := range s.registrants {
		if !revealable(r) {
			continue
		}
		if _, ok := seen[r.Week]; !ok {
			seen[r.Week] = struct{}{}
			weeks = append(weeks, r.Week)
		}
	}
	sort.Strings(weeks)
	return weeks, nil
}

func (s Registrants) RevealWeek(ctx context.Context, week string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for id, r := range s.registrants {
		if r.Week == week && revealable(r) {
			r.Revealed = true
			s.registrants[id] = r
			n++
		}
	}
	return n, nil
}

func (s Registrants) StatsByWeek(ctx context.Context, week string) (model.WeekStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.WeekStats{}, s.Err
	}
	st := model.WeekStats{Week: week}
	for _, r := range s.registrants {
		if r.Week != week {
			continue
		}
		if r.Status == model.StatusCancelled {
			st.Cancelled++
			continue
		}
		st.Registered++
		if r.RestaurantID != nil {
			st.Assigned++
		}
		if r.Revealed {
			st.Revealed++
		}
	}
	return st, nil
}

// ---- restaurants ----

// Restaurants is the diner.RestaurantStore view of a Store.
type Restaurants struct{ *Store }

// Restaurants returns the restaurant view.
func (s *Store) Restaurants() Restaurants { return Restaurants{s} }

func (s Restaurants) Create(ctx context.Context, r *model.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	for _, existing := range s.restaurants {
		if existing.Name == r.Name {
			return repository.ErrDuplicate
		}
	}
	s.nextRest++
	r.ID = s.nextRest
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	s.restaurants[r.ID] = *r
	return nil
}

func (s Restaurants) GetByID(ctx context.Context, id uint64) (model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return model.Restaurant{}, s.Err
	}
	r, ok := s.restaurants[id]
	if !ok {
		return model.Restaurant{}, repository.ErrNotFound
	}
	return r, nil
}

func (s Restaurants) List(ctx context.Context) ([]model.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]model.Restaurant, 0, len(s.restaurants))
	for _, r := range s.restaurants {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s Restaurants) Update(ctx context.Context, r *model.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	existing, ok := s.restaurants[r.ID]
	if !ok {
		return repository.ErrNotFound
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	s.restaurants[r.ID] = *r
	return nil
}

func (s Restaurants) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.restaurants[id]; !ok {
		return repository.ErrNotFound
	}
	for _, r := range s.registrants {
		if r.RestaurantID != nil && *r.RestaurantID == id {
			return repository.ErrConflict
		}
	}
	delete(s.restaurants, id)
	return nil
}

// ---- helpers ----

func (s *Store) filter(keep func(model.Registrant) bool, less func(a, b model.Registrant) bool) ([]model.Registrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []model.Registrant
	for _, r := range s.registrants {
		if keep(r) {
			out = append(out, cloneRegistrant(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

func (s *Store) update(id uint64, fn func(*model.Registrant) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	r, ok := s.registrants[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(&r); err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()
	s.registrants[id] = r
	return nil
}

func revealable(r model.Registrant) bool {
	return r.Status == model.StatusActive && !r.Revealed && r.RestaurantID != nil && r.RevealOverride == nil
}

func cloneRegistrant(r model.Registrant) model.Registrant {
	r.DietaryRestrictions = append([]string{}, r.DietaryRestrictions...)
	return r
}

// Publisher records published events.
type Publisher struct {
	mu     sync.Mutex
	events []queue.DinerEvent
	Err    error
}

func (p *Publisher) Publish(ctx context.Context, ev queue.DinerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.Err
}

// Events returns a copy of everything published so far.
func (p *Publisher) Events() []queue.DinerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.DinerEvent(nil), p.events...)
}
