// Package catalog is the ingestion boundary between external catalog
// collaborators and the recommendation core. Raw records arrive as loosely
// typed mappings and leave as immutable domain.CatalogItem snapshots.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/verdance/verdance/platform/internal/domain"
)

// ErrUserNotFound is returned by UserSource implementations for unknown emails.
var ErrUserNotFound = errors.New("user not found")

// Source supplies catalog snapshots.
type Source interface {
	LoadSnapshot(ctx context.Context) (*Snapshot, error)
}

// UserSource supplies user records.
type UserSource interface {
	GetUser(ctx context.Context, email string) (domain.User, error)
}

// Raw is a catalog as delivered by a collaborator, before normalization.
type Raw struct {
	Plants        []map[string]any `json:"plants" yaml:"plants"`
	Products      []map[string]any `json:"products" yaml:"products"`
	Kits          []map[string]any `json:"kits" yaml:"kits"`
	PlantProducts []map[string]any `json:"plant_product" yaml:"plant_product"`
}

// Snapshot is a normalized, read-only catalog. Callers must not modify it.
type Snapshot struct {
	Plants        []domain.CatalogItem
	Products      []domain.CatalogItem
	Kits          []domain.CatalogItem
	PlantProducts []domain.PlantProduct
	Warnings      []string
	LoadedAt      time.Time

	plantsByID   map[string]int
	productsByID map[string]int
}

// Build normalizes raw into a snapshot. Records without an id and duplicate
// ids (after the first) are dropped with a warning.
func Build(raw Raw) *Snapshot {
	s := &Snapshot{LoadedAt: time.Now().UTC()}
	s.Plants = s.normalizeAll(domain.KindPlant, raw.Plants)
	s.Products = s.normalizeAll(domain.KindProduct, raw.Products)
	s.Kits = s.normalizeAll(domain.KindKit, raw.Kits)
	for _, r := range raw.PlantProducts {
		pp, warnings, ok := NormalizePlantProduct(r)
		s.Warnings = append(s.Warnings, warnings...)
		if ok {
			s.PlantProducts = append(s.PlantProducts, pp)
		}
	}
	s.index()
	return s
}

// NewSnapshot assembles a snapshot from already-normalized items.
func NewSnapshot(plants, products, kits []domain.CatalogItem, relations []domain.PlantProduct) *Snapshot {
	s := &Snapshot{
		Plants:        plants,
		Products:      products,
		Kits:          kits,
		PlantProducts: relations,
		LoadedAt:      time.Now().UTC(),
	}
	s.index()
	return s
}

func (s *Snapshot) normalizeAll(kind domain.ItemKind, records []map[string]any) []domain.CatalogItem {
	items := make([]domain.CatalogItem, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		item, warnings, ok := Normalize(kind, r)
		s.Warnings = append(s.Warnings, warnings...)
		if !ok {
			continue
		}
		if _, dup := seen[item.ID]; dup {
			s.Warnings = append(s.Warnings, fmt.Sprintf("%s %s: duplicate id dropped", kind, item.ID))
			continue
		}
		seen[item.ID] = struct{}{}
		items = append(items, item)
	}
	return items
}

func (s *Snapshot) index() {
	s.plantsByID = make(map[string]int, len(s.Plants))
	for i, p := range s.Plants {
		s.plantsByID[p.ID] = i
	}
	s.productsByID = make(map[string]int, len(s.Products))
	for i, p := range s.Products {
		s.productsByID[p.ID] = i
	}
}

// Plant returns the plant with id.
func (s *Snapshot) Plant(id string) (*domain.CatalogItem, bool) {
	i, ok := s.plantsByID[id]
	if !ok {
		return nil, false
	}
	return &s.Plants[i], true
}

// Product returns the product with id.
func (s *Snapshot) Product(id string) (*domain.CatalogItem, bool) {
	i, ok := s.productsByID[id]
	if !ok {
		return nil, false
	}
	return &s.Products[i], true
}

// Counts summarizes the snapshot.
type Counts struct {
	Plants        int `json:"plants"`
	Products      int `json:"products"`
	Kits          int `json:"kits"`
	PlantProducts int `json:"plant_product"`
	Warnings      int `json:"warnings"`
}

// Counts returns item counts per kind.
func (s *Snapshot) Counts() Counts {
	return Counts{
		Plants:        len(s.Plants),
		Products:      len(s.Products),
		Kits:          len(s.Kits),
		PlantProducts: len(s.PlantProducts),
		Warnings:      len(s.Warnings),
	}
}

// StaticSource serves a fixed snapshot and user set. Used in tests and for
// catalogs loaded once at startup.
type StaticSource struct {
	Snapshot *Snapshot
	Users    map[string]domain.User // keyed by canonical email
	Err      error                  // returned by every call when set
}

// NewStaticSource creates a source over snapshot and users.
func NewStaticSource(snapshot *Snapshot, users ...domain.User) *StaticSource {
	s := &StaticSource{Snapshot: snapshot, Users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		s.Users[domain.Canonical(u.Email)] = u
	}
	return s
}

func (s *StaticSource) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if s.Snapshot == nil {
		return NewSnapshot(nil, nil, nil, nil), nil
	}
	return s.Snapshot, nil
}

func (s *StaticSource) GetUser(ctx context.Context, email string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	if s.Err != nil {
		return domain.User{}, s.Err
	}
	u, ok := s.Users[domain.Canonical(email)]
	if !ok {
		return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return ResolveTier(u), nil
}

// ResolveTier fills u.Tier from its subscription status when unset.
func ResolveTier(u domain.User) domain.User {
	if !domain.ValidTier(string(u.Tier)) {
		u.Tier = domain.TierFromStatus(u.SubscriptionStatus)
	}
	return u
}
