package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chdsbd/recipeyak/internal/ical"
	"github.com/chdsbd/recipeyak/internal/shopping"
	"github.com/chdsbd/recipeyak/internal/store"
)

// feedWindow is how far either side of today the calendar feed reaches when
// no range is given.
const feedWindow = 52 * 7 * 24 * time.Hour

// ShoppingList combines the ingredients of every recipe scheduled between
// start and end, each scaled by its scheduled count.
func (s *Service) ShoppingList(ctx context.Context, start, end string) ([]shopping.Item, error) {
	from, to, err := dayRange(start, end)
	if err != nil {
		return nil, err
	}
	scheduled, err := s.store.ListScheduledRecipes(ctx, from, to)
	if err != nil {
		return nil, err
	}

	recipes := map[int64]store.Recipe{}
	var lines []shopping.Line
	for _, entry := range scheduled {
		recipe, ok := recipes[entry.RecipeID]
		if !ok {
			recipe, err = s.GetRecipe(ctx, entry.RecipeID)
			if errors.Is(err, sql.ErrNoRows) {
				// deleted since the schedule was read
				continue
			}
			if err != nil {
				return nil, err
			}
			recipes[entry.RecipeID] = recipe
		}
		for _, ing := range recipe.Ingredients {
			lines = append(lines, shopping.Line{
				RecipeID: recipe.ID,
				Quantity: ing.Quantity,
				Name:     ing.Name,
				Count:    entry.Count,
			})
		}
	}

	items := s.categories.Combine(lines)
	s.snapshotShoppingList(ctx, from, to, items)
	return items, nil
}

func (s *Service) snapshotShoppingList(ctx context.Context, from, to time.Time, items []shopping.Item) {
	raw, err := json.Marshal(items)
	if err != nil {
		s.logger.Warn("encode shopping list failed", zap.Error(err))
		return
	}
	if _, err := s.store.InsertShoppingList(ctx, store.ShoppingList{Start: from, End: to, Items: raw}); err != nil {
		s.logger.Warn("store shopping list failed",
			zap.Time("start", from), zap.Time("end", to), zap.Error(err))
	}
}

// CalendarFeed renders the schedule between start and end as iCalendar text.
// Empty bounds default to a year either side of today.
func (s *Service) CalendarFeed(ctx context.Context, start, end string) (string, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	from, to := today.Add(-feedWindow), today.Add(feedWindow)
	if start != "" || end != "" {
		var err error
		if from, to, err = dayRange(start, end); err != nil {
			return "", err
		}
	}
	scheduled, err := s.store.ListScheduledRecipes(ctx, from, to)
	if err != nil {
		return "", err
	}

	events := make([]ical.Event, 0, len(scheduled))
	for _, entry := range scheduled {
		events = append(events, ical.Event{
			ID:         entry.ID,
			RecipeID:   entry.RecipeID,
			RecipeName: entry.RecipeName,
			RecipeTime: entry.RecipeTime,
			On:         entry.On,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return ical.Render(events, ical.Options{
		Name:        "Scheduled Recipes",
		Description: "Recipes scheduled on the Recipe Yak calendar",
		BaseURL:     s.publicURL,
	}), nil
}

func dayRange(start, end string) (time.Time, time.Time, error) {
	from, err := parseDay("start", start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDay("end", end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, validationError("end must not be before start")
	}
	return from, to, nil
}
