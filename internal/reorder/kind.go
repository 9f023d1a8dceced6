package reorder

import (
	"fmt"
	"strings"
)

// Kind tags the entity an Item stands for. Ingredients and sections share one
// list on a recipe; steps have their own.
type Kind int

const (
	KindIngredient Kind = iota + 1
	KindSection
	KindStep
)

func (k Kind) String() string {
	switch k {
	case KindIngredient:
		return "ingredient"
	case KindSection:
		return "section"
	case KindStep:
		return "step"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind accepts the singular or plural name of a kind.
func ParseKind(value string) (Kind, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(value)), "s") {
	case "ingredient":
		return KindIngredient, nil
	case "section":
		return KindSection, nil
	case "step":
		return KindStep, nil
	default:
		return 0, fmt.Errorf("unknown kind %q", value)
	}
}

// Item is one orderable entity.
type Item struct {
	Kind     Kind   `json:"kind"`
	ID       int64  `json:"id"`
	Position string `json:"position"`
}

type itemKey struct {
	kind Kind
	id   int64
}

func (i Item) key() itemKey {
	return itemKey{kind: i.Kind, id: i.ID}
}
