package auction

import "github.com/gavelhq/gavel/internal/catalog"

// NextPlayer picks the next unresolved player of a category: the first
// catalog player (in fixed catalog order) belonging to the category
// whose id is not in resolved. Returns nil when the category is
// exhausted. Pure function of catalog plus resolution history.
func NextPlayer(c *catalog.Catalog, cat catalog.Category, resolved map[string]bool) *catalog.Player {
	for i := range c.Players {
		p := &c.Players[i]
		if p.EffectiveCategory() != cat {
			continue
		}
		if resolved[p.ID] {
			continue
		}
		return p
	}
	return nil
}
