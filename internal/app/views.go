package app

import (
	"time"

	"github.com/chdsbd/recipeyak/internal/calendar"
	"github.com/chdsbd/recipeyak/internal/store"
)

type RecipeView struct {
	ID          int64            `json:"id"`
	Name        string           `json:"name"`
	Author      string           `json:"author"`
	Source      string           `json:"source"`
	Servings    string           `json:"servings"`
	Time        string           `json:"time"`
	Tags        []string         `json:"tags"`
	Ingredients []IngredientView `json:"ingredients"`
	Sections    []SectionView    `json:"sections"`
	Steps       []StepView       `json:"steps"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type RecipeSummary struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Author    string    `json:"author"`
	Tags      []string  `json:"tags"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type IngredientView struct {
	ID          int64  `json:"id"`
	RecipeID    int64  `json:"recipeId"`
	Quantity    string `json:"quantity"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Position    string `json:"position"`
}

type SectionView struct {
	ID       int64  `json:"id"`
	RecipeID int64  `json:"recipeId"`
	Title    string `json:"title"`
	Position string `json:"position"`
}

type StepView struct {
	ID       int64  `json:"id"`
	RecipeID int64  `json:"recipeId"`
	Text     string `json:"text"`
	Position string `json:"position"`
}

type ScheduledRecipeView struct {
	ID         int64  `json:"id"`
	RecipeID   int64  `json:"recipeId"`
	RecipeName string `json:"recipeName"`
	On         string `json:"on"`
	Count      int    `json:"count"`
}

func recipeView(r store.Recipe) RecipeView {
	view := RecipeView{
		ID:          r.ID,
		Name:        r.Name,
		Author:      r.Author,
		Source:      r.Source,
		Servings:    r.Servings,
		Time:        r.Time,
		Tags:        r.Tags,
		Ingredients: make([]IngredientView, 0, len(r.Ingredients)),
		Sections:    make([]SectionView, 0, len(r.Sections)),
		Steps:       make([]StepView, 0, len(r.Steps)),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if view.Tags == nil {
		view.Tags = []string{}
	}
	for _, item := range r.Ingredients {
		view.Ingredients = append(view.Ingredients, ingredientView(item))
	}
	for _, item := range r.Sections {
		view.Sections = append(view.Sections, sectionView(item))
	}
	for _, item := range r.Steps {
		view.Steps = append(view.Steps, stepView(item))
	}
	return view
}

func recipeSummary(r store.Recipe) RecipeSummary {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return RecipeSummary{ID: r.ID, Name: r.Name, Author: r.Author, Tags: tags, UpdatedAt: r.UpdatedAt}
}

func ingredientView(i store.Ingredient) IngredientView {
	return IngredientView{
		ID:          i.ID,
		RecipeID:    i.RecipeID,
		Quantity:    i.Quantity,
		Name:        i.Name,
		Description: i.Description,
		Optional:    i.Optional,
		Position:    i.Position,
	}
}

func sectionView(s store.Section) SectionView {
	return SectionView{ID: s.ID, RecipeID: s.RecipeID, Title: s.Title, Position: s.Position}
}

func stepView(s store.Step) StepView {
	return StepView{ID: s.ID, RecipeID: s.RecipeID, Text: s.Text, Position: s.Position}
}

func scheduledRecipeView(sr store.ScheduledRecipe) ScheduledRecipeView {
	return ScheduledRecipeView{
		ID:         sr.ID,
		RecipeID:   sr.RecipeID,
		RecipeName: sr.RecipeName,
		On:         sr.On.Format(calendar.DateLayout),
		Count:      sr.Count,
	}
}
