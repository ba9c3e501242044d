package model

import (
	"fmt"
	"sort"
	"time"

	"course-entitlement/internal/domain"
)

type EffectKind string

const (
	EffectCredit         EffectKind = "CREDIT"
	EffectSubscription   EffectKind = "SUBSCRIPTION"
	EffectResourceUnlock EffectKind = "RESOURCE_UNLOCK"
)

// Product is a static catalog entry. Exactly one effect kind applies.
type Product struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	Price      int64      `yaml:"price"`
	Kind       EffectKind `yaml:"kind"`
	Credits    int64      `yaml:"credits"`     // CREDIT
	Tier       Tier       `yaml:"tier"`        // SUBSCRIPTION
	PeriodDays int        `yaml:"period_days"` // SUBSCRIPTION
	Renewable  bool       `yaml:"renewable"`   // SUBSCRIPTION: used by the renewal job for its tier
	ResourceID string     `yaml:"resource_id"` // RESOURCE_UNLOCK: empty means any resource named by the intent
}

func (p *Product) IsSubscription() bool { return p.Kind == EffectSubscription }

func (p *Product) Period() time.Duration {
	return time.Duration(p.PeriodDays) * 24 * time.Hour
}

func (p *Product) validate() error {
	if p.ID == "" || p.Name == "" || p.Price < 0 {
		return fmt.Errorf("%w: product %q needs id, name and a non-negative price", domain.ErrInvalidArgument, p.ID)
	}
	switch p.Kind {
	case EffectCredit:
		if p.Credits <= 0 {
			return fmt.Errorf("%w: credit product %q needs credits > 0", domain.ErrInvalidArgument, p.ID)
		}
	case EffectSubscription:
		if p.Tier == TierFree || !p.Tier.Valid() || p.PeriodDays <= 0 {
			return fmt.Errorf("%w: subscription product %q needs a paid tier and period_days > 0", domain.ErrInvalidArgument, p.ID)
		}
	case EffectResourceUnlock:
	default:
		return fmt.Errorf("%w: product %q has unknown kind %q", domain.ErrInvalidArgument, p.ID, p.Kind)
	}
	return nil
}

// Catalog is the static, read-only product table.
type Catalog struct {
	byID map[string]*Product
}

func NewCatalog(products []Product) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Product, len(products))}
	for i := range products {
		p := products[i]
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate product id %q", domain.ErrInvalidArgument, p.ID)
		}
		c.byID[p.ID] = &p
	}
	return c, nil
}

func (c *Catalog) Lookup(id string) (*Product, error) {
	p, ok := c.byID[id]
	if !ok {
		return nil, domain.ErrUnknownProduct
	}
	cp := *p
	return &cp, nil
}

// RenewalProduct returns the subscription product the renewal job charges for a tier.
// Renewable products win; otherwise the cheapest product for the tier is used.
func (c *Catalog) RenewalProduct(tier Tier) (*Product, error) {
	var candidates []*Product
	for _, p := range c.byID {
		if p.Kind == EffectSubscription && p.Tier == tier {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, domain.ErrUnknownProduct
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Renewable != candidates[j].Renewable {
			return candidates[i].Renewable
		}
		if candidates[i].Price != candidates[j].Price {
			return candidates[i].Price < candidates[j].Price
		}
		return candidates[i].ID < candidates[j].ID
	})
	cp := *candidates[0]
	return &cp, nil
}

// DefaultProducts is the built-in catalog used when config declares none.
func DefaultProducts() []Product {
	return []Product{
		{ID: "credit_5", Name: "5 bonus credits", Price: 4900, Kind: EffectCredit, Credits: 5},
		{ID: "credit_20", Name: "20 bonus credits", Price: 16900, Kind: EffectCredit, Credits: 20},
		{ID: "basic_monthly", Name: "Basic monthly", Price: 9900, Kind: EffectSubscription, Tier: TierBasic, PeriodDays: 30, Renewable: true},
		{ID: "premium_monthly", Name: "Premium monthly", Price: 19900, Kind: EffectSubscription, Tier: TierPremium, PeriodDays: 30, Renewable: true},
		{ID: "premium_yearly", Name: "Premium yearly", Price: 199000, Kind: EffectSubscription, Tier: TierPremium, PeriodDays: 365},
		{ID: "resource_unlock", Name: "Single resource unlock", Price: 2900, Kind: EffectResourceUnlock},
	}
}
