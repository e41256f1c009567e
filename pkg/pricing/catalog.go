package pricing

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Catalog indexes known models per provider.
type Catalog struct {
	mu        sync.RWMutex
	providers map[string]*ProviderConfig
	// names holds lowercase model names and aliases, longest first per provider.
	names map[string][]nameEntry
}

type nameEntry struct {
	name  string
	model string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		providers: make(map[string]*ProviderConfig),
		names:     make(map[string][]nameEntry),
	}
}

// Register adds a provider's pricing to the catalog.
func (c *Catalog) Register(cfg *ProviderConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.providers[cfg.Provider]; exists {
		return fmt.Errorf("provider %q already registered", cfg.Provider)
	}
	c.providers[cfg.Provider] = cfg

	var entries []nameEntry
	for _, m := range cfg.Models {
		entries = append(entries, nameEntry{name: strings.ToLower(m.Model), model: m.Model})
		for _, alias := range m.Aliases {
			entries = append(entries, nameEntry{name: strings.ToLower(alias), model: m.Model})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return len(entries[i].name) > len(entries[j].name)
	})
	c.names[cfg.Provider] = entries
	return nil
}

// Providers returns registered provider names in sorted order.
func (c *Catalog) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the pricing entries for provider.
func (c *Catalog) Models(provider string) []ModelPricing {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.providers[provider]
	if !ok {
		return nil
	}
	return cfg.Models
}

// ResolveModel maps a billing line item such as "gpt-4o-2024-08-06, input"
// to the longest matching catalog model.
func (c *Catalog) ResolveModel(provider, lineItem string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	label := strings.ToLower(strings.TrimSpace(lineItem))
	if i := strings.Index(label, ","); i >= 0 {
		label = strings.TrimSpace(label[:i])
	}
	if label == "" {
		return "", false
	}

	for _, e := range c.names[provider] {
		if label == e.name || strings.HasPrefix(label, e.name+"-") {
			return e.model, true
		}
	}
	return "", false
}
