package shopping

import (
	"sort"
	"strings"
)

// Line is one ingredient of a scheduled recipe that is cooked Count times.
type Line struct {
	RecipeID int64
	Quantity string
	Name     string
	Count    int
}

// Item is one entry of a shopping list. Quantities holds one amount per group
// of units that could not be added together.
type Item struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Quantities []string `json:"quantities"`
	RecipeIDs  []int64  `json:"recipeIds"`
}

type group struct {
	name       string
	quantities []Quantity
	recipes    map[int64]struct{}
}

// Combine merges lines naming the same ingredient and adds up their
// quantities. Items are ordered by category, then name.
func (c *Categorizer) Combine(lines []Line) []Item {
	groups := map[string]*group{}
	var order []string

	for _, line := range lines {
		key := normalizeName(line.Name)
		if key == "" || line.Count <= 0 {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{name: strings.TrimSpace(line.Name), recipes: map[int64]struct{}{}}
			groups[key] = g
			order = append(order, key)
		}
		g.recipes[line.RecipeID] = struct{}{}
		g.add(ParseQuantity(line.Quantity).Scale(line.Count))
	}

	items := make([]Item, 0, len(order))
	for _, key := range order {
		g := groups[key]
		item := Item{
			Name:       g.name,
			Category:   c.Category(g.name),
			Quantities: make([]string, 0, len(g.quantities)),
			RecipeIDs:  make([]int64, 0, len(g.recipes)),
		}
		for _, q := range g.quantities {
			item.Quantities = append(item.Quantities, q.String())
		}
		for id := range g.recipes {
			item.RecipeIDs = append(item.RecipeIDs, id)
		}
		sort.Slice(item.RecipeIDs, func(i, j int) bool { return item.RecipeIDs[i] < item.RecipeIDs[j] })
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items
}

// add folds q into the first quantity it is compatible with.
func (g *group) add(q Quantity) {
	for i, existing := range g.quantities {
		if sum, err := existing.Add(q); err == nil {
			g.quantities[i] = sum
			return
		}
	}
	g.quantities = append(g.quantities, q)
}
