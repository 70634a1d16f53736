package plans

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	def := c.Default()
	if def.Key != "free" || def.IsPaid() {
		t.Fatalf("default plan: %#v", def)
	}
	if def.AllowsTool("image") {
		t.Fatalf("free plan must not include image")
	}
	studio, ok := c.Get("studio")
	if !ok || studio.DailyLimit != -1 {
		t.Fatalf("studio: ok=%v plan=%#v", ok, studio)
	}
	byPrice, ok := c.ByPriceID("price_creator_monthly")
	if !ok || byPrice.Key != "creator" {
		t.Fatalf("ByPriceID: ok=%v key=%q", ok, byPrice.Key)
	}
	list := c.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].SortOrder > list[i].SortOrder {
			t.Fatalf("List not sorted: %v", list)
		}
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	tests := map[string]string{
		"no default":     "plans:\n  - key: a\n    tools: [article]\n",
		"two defaults":   "plans:\n  - key: a\n    default: true\n  - key: b\n    default: true\n",
		"paid default":   "plans:\n  - key: a\n    default: true\n    monthly_price_cents: 100\n",
		"duplicate key":  "plans:\n  - key: a\n    default: true\n  - key: a\n",
		"unknown tool":   "plans:\n  - key: a\n    default: true\n    tools: [video]\n",
		"empty":          "plans: []\n",
		"malformed yaml": "plans: [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(raw)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadUsesPlansFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	raw := "plans:\n  - key: solo\n    name: Solo\n    default: true\n    daily_limit: 1\n    monthly_limit: 2\n    tools: [article]\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PLANS_FILE", path)
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Default().Key != "solo" || c.Default().MonthlyLimit != 2 {
		t.Fatalf("default: %#v", c.Default())
	}
}
