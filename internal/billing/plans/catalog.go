package plans

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/inkwell-backend/internal/domain/billing"
	"github.com/yungbote/inkwell-backend/internal/domain/content"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
)

//go:embed plans.yaml
var defaultCatalog []byte

// Catalog is the immutable set of plans the service sells.
type Catalog struct {
	plans   []billing.Plan
	byKey   map[string]*billing.Plan
	byPrice map[string]*billing.Plan
	def     *billing.Plan
}

type catalogFile struct {
	Plans []billing.Plan `yaml:"plans"`
}

// Load reads PLANS_FILE when set, otherwise the embedded catalog.
func Load() (*Catalog, error) {
	if path := envutil.String("PLANS_FILE", ""); path != "" {
		return LoadFile(path)
	}
	return Parse(defaultCatalog)
}

func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return Parse(raw)
}

// Default returns the embedded catalog and panics if it is invalid.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	return New(f.Plans)
}

func New(list []billing.Plan) (*Catalog, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}
	c := &Catalog{
		plans:   make([]billing.Plan, len(list)),
		byKey:   map[string]*billing.Plan{},
		byPrice: map[string]*billing.Plan{},
	}
	copy(c.plans, list)
	sort.SliceStable(c.plans, func(i, j int) bool { return c.plans[i].SortOrder < c.plans[j].SortOrder })

	for i := range c.plans {
		p := &c.plans[i]
		p.Key = strings.TrimSpace(p.Key)
		if p.Key == "" {
			return nil, fmt.Errorf("plan %d: key required", i)
		}
		if _, dup := c.byKey[p.Key]; dup {
			return nil, fmt.Errorf("plan %q: duplicate key", p.Key)
		}
		for _, t := range p.Tools {
			if !content.IsKnownTool(t) {
				return nil, fmt.Errorf("plan %q: unknown tool %q", p.Key, t)
			}
		}
		if p.IsDefault {
			if c.def != nil {
				return nil, fmt.Errorf("plan %q: only one default plan allowed (already %q)", p.Key, c.def.Key)
			}
			if p.IsPaid() {
				return nil, fmt.Errorf("plan %q: default plan must be free", p.Key)
			}
			c.def = p
		}
		c.byKey[p.Key] = p
		if p.StripePriceID != "" {
			c.byPrice[p.StripePriceID] = p
		}
	}
	if c.def == nil {
		return nil, fmt.Errorf("plan catalog has no default plan")
	}
	return c, nil
}

// Get returns a copy of the plan with key.
func (c *Catalog) Get(key string) (billing.Plan, bool) {
	p, ok := c.byKey[key]
	if !ok {
		return billing.Plan{}, false
	}
	return *p, true
}

func (c *Catalog) Default() billing.Plan { return *c.def }

func (c *Catalog) ByPriceID(priceID string) (billing.Plan, bool) {
	p, ok := c.byPrice[priceID]
	if !ok {
		return billing.Plan{}, false
	}
	return *p, true
}

// List returns the plans ordered by SortOrder.
func (c *Catalog) List() []billing.Plan {
	out := make([]billing.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
