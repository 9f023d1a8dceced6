package store

import (
	"encoding/json"
	"time"
)

type Recipe struct {
	ID          int64
	Name        string
	Author      string
	Source      string
	Servings    string
	Time        string
	Tags        []string
	Ingredients []Ingredient
	Sections    []Section
	Steps       []Step
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Ingredient struct {
	ID          int64
	RecipeID    int64
	Quantity    string
	Name        string
	Description string
	Optional    bool
	Position    string
}

// IngredientPatch leaves nil fields unchanged.
type IngredientPatch struct {
	Quantity    *string
	Name        *string
	Description *string
	Optional    *bool
	Position    *string
}

// Section is a heading interleaved with ingredients; both share one position space.
type Section struct {
	ID       int64
	RecipeID int64
	Title    string
	Position string
}

type SectionPatch struct {
	Title    *string
	Position *string
}

type Step struct {
	ID       int64
	RecipeID int64
	Text     string
	Position string
}

type StepPatch struct {
	Text     *string
	Position *string
}

type ScheduledRecipe struct {
	ID         int64
	RecipeID   int64
	RecipeName string
	RecipeTime string
	On         time.Time
	Count      int
	CreatedAt  time.Time
}

// ShoppingList is a stored snapshot of a generated list. Items holds the
// combined items as JSON.
type ShoppingList struct {
	ID        int64
	Start     time.Time
	End       time.Time
	Items     json.RawMessage
	CreatedAt time.Time
}

type ScheduledRecipePatch struct {
	On    *time.Time
	Count *int
}

// PositionUpdate rewrites the position of one row of Table.
type PositionUpdate struct {
	Table    Table
	ID       int64
	Position string
}

// Table names the ordered child tables of a recipe.
type Table string

const (
	TableIngredients Table = "ingredients"
	TableSections    Table = "sections"
	TableSteps       Table = "steps"
)

func (t Table) valid() bool {
	switch t {
	case TableIngredients, TableSections, TableSteps:
		return true
	default:
		return false
	}
}

type Upload struct {
	ID          string
	RecipeID    int64
	Bucket      string
	Key         string
	ContentType string
	CreatedAt   time.Time
}
