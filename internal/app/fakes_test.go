package app

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chdsbd/recipeyak/internal/shopping"
	"github.com/chdsbd/recipeyak/internal/store"
)

// fakeStore keeps recipes in memory. The *Fn hooks override single calls.
type fakeStore struct {
	mu        sync.Mutex
	nextID    int64
	recipes   map[int64]*store.Recipe
	scheduled map[int64]store.ScheduledRecipe
	uploads   []store.Upload
	lists     []store.ShoppingList

	pingFn         func(context.Context) error
	setPositionsFn func(context.Context, int64, []store.PositionUpdate) error
	getRecipeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recipes:   make(map[int64]*store.Recipe),
		scheduled: make(map[int64]store.ScheduledRecipe),
	}
}

func newTestService(fs *fakeStore) *Service {
	return &Service{store: fs, logger: zap.NewNop(), categories: shopping.DefaultCategorizer()}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) ListRecipes(context.Context) ([]store.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Recipe, 0, len(f.recipes))
	for _, r := range f.recipes {
		out = append(out, store.Recipe{ID: r.ID, Name: r.Name, Author: r.Author, Tags: r.Tags})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) GetRecipe(_ context.Context, recipeID int64) (store.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getRecipeCalls++
	r, ok := f.recipes[recipeID]
	if !ok {
		return store.Recipe{}, sql.ErrNoRows
	}
	out := *r
	out.Ingredients = append([]store.Ingredient(nil), r.Ingredients...)
	out.Sections = append([]store.Section(nil), r.Sections...)
	out.Steps = append([]store.Step(nil), r.Steps...)
	sort.SliceStable(out.Ingredients, func(i, j int) bool { return out.Ingredients[i].Position < out.Ingredients[j].Position })
	sort.SliceStable(out.Sections, func(i, j int) bool { return out.Sections[i].Position < out.Sections[j].Position })
	sort.SliceStable(out.Steps, func(i, j int) bool { return out.Steps[i].Position < out.Steps[j].Position })
	return out, nil
}

func (f *fakeStore) CreateRecipe(_ context.Context, recipe store.Recipe) (store.Recipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recipe.ID = f.id()
	for i := range recipe.Ingredients {
		recipe.Ingredients[i].ID = f.id()
		recipe.Ingredients[i].RecipeID = recipe.ID
	}
	for i := range recipe.Sections {
		recipe.Sections[i].ID = f.id()
		recipe.Sections[i].RecipeID = recipe.ID
	}
	for i := range recipe.Steps {
		recipe.Steps[i].ID = f.id()
		recipe.Steps[i].RecipeID = recipe.ID
	}
	stored := recipe
	f.recipes[recipe.ID] = &stored
	return recipe, nil
}

func (f *fakeStore) DeleteRecipe(_ context.Context, recipeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recipes[recipeID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.recipes, recipeID)
	return nil
}

func (f *fakeStore) LastPosition(_ context.Context, recipeID int64, tables ...store.Table) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recipes[recipeID]
	if !ok {
		return "", nil
	}
	last := ""
	for _, table := range tables {
		switch table {
		case store.TableIngredients:
			for _, item := range r.Ingredients {
				last = maxPosition(last, item.Position)
			}
		case store.TableSections:
			for _, item := range r.Sections {
				last = maxPosition(last, item.Position)
			}
		case store.TableSteps:
			for _, item := range r.Steps {
				last = maxPosition(last, item.Position)
			}
		}
	}
	return last, nil
}

func (f *fakeStore) parent(recipeID int64) (*store.Recipe, error) {
	r, ok := f.recipes[recipeID]
	if !ok {
		return nil, fmt.Errorf("recipe %d: %w", recipeID, sql.ErrNoRows)
	}
	return r, nil
}

func (f *fakeStore) CreateIngredient(_ context.Context, item store.Ingredient) (store.Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.parent(item.RecipeID)
	if err != nil {
		return store.Ingredient{}, err
	}
	item.ID = f.id()
	r.Ingredients = append(r.Ingredients, item)
	return item, nil
}

func (f *fakeStore) UpdateIngredient(_ context.Context, id int64, patch store.IngredientPatch) (store.Ingredient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipes {
		for i := range r.Ingredients {
			item := &r.Ingredients[i]
			if item.ID != id {
				continue
			}
			if patch.Quantity != nil {
				item.Quantity = *patch.Quantity
			}
			if patch.Name != nil {
				item.Name = *patch.Name
			}
			if patch.Description != nil {
				item.Description = *patch.Description
			}
			if patch.Optional != nil {
				item.Optional = *patch.Optional
			}
			if patch.Position != nil {
				item.Position = *patch.Position
			}
			return *item, nil
		}
	}
	return store.Ingredient{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteIngredient(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipes {
		for i, item := range r.Ingredients {
			if item.ID == id {
				r.Ingredients = append(r.Ingredients[:i], r.Ingredients[i+1:]...)
				return r.ID, nil
			}
		}
	}
	return 0, sql.ErrNoRows
}

func (f *fakeStore) CreateSection(_ context.Context, item store.Section) (store.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.parent(item.RecipeID)
	if err != nil {
		return store.Section{}, err
	}
	item.ID = f.id()
	r.Sections = append(r.Sections, item)
	return item, nil
}

func (f *fakeStore) UpdateSection(_ context.Context, id int64, patch store.SectionPatch) (store.Section, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipes {
		for i := range r.Sections {
			item := &r.Sections[i]
			if item.ID != id {
				continue
			}
			if patch.Title != nil {
				item.Title = *patch.Title
			}
			if patch.Position != nil {
				item.Position = *patch.Position
			}
			return *item, nil
		}
	}
	return store.Section{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteSection(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipes {
		for i, item := range r.Sections {
			if item.ID == id {
				r.Sections = append(r.Sections[:i], r.Sections[i+1:]...)
				return r.ID, nil
			}
		}
	}
	return 0, sql.ErrNoRows
}

func (f *fakeStore) CreateStep(_ context.Context, item store.Step) (store.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.parent(item.RecipeID)
	if err != nil {
		return store.Step{}, err
	}
	item.ID = f.id()
	r.Steps = append(r.Steps, item)
	return item, nil
}

func (f *fakeStore) UpdateStep(_ context.Context, id int64, patch store.StepPatch) (store.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipes {
		for i := range r.Steps {
			item := &r.Steps[i]
			if item.ID != id {
				continue
			}
			if patch.Text != nil {
				item.Text = *patch.Text
			}
			if patch.Position != nil {
				item.Position = *patch.Position
			}
			return *item, nil
		}
	}
	return store.Step{}, sql.ErrNoRows
}

func (f *fakeStore) DeleteStep(_ context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipes {
		for i, item := range r.Steps {
			if item.ID == id {
				r.Steps = append(r.Steps[:i], r.Steps[i+1:]...)
				return r.ID, nil
			}
		}
	}
	return 0, sql.ErrNoRows
}

func (f *fakeStore) SetPositions(ctx context.Context, recipeID int64, updates []store.PositionUpdate) error {
	if f.setPositionsFn != nil {
		return f.setPositionsFn(ctx, recipeID, updates)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.parent(recipeID)
	if err != nil {
		return err
	}
	for _, u := range updates {
		switch u.Table {
		case store.TableIngredients:
			for i := range r.Ingredients {
				if r.Ingredients[i].ID == u.ID {
					r.Ingredients[i].Position = u.Position
				}
			}
		case store.TableSections:
			for i := range r.Sections {
				if r.Sections[i].ID == u.ID {
					r.Sections[i].Position = u.Position
				}
			}
		case store.TableSteps:
			for i := range r.Steps {
				if r.Steps[i].ID == u.ID {
					r.Steps[i].Position = u.Position
				}
			}
		}
	}
	return nil
}

func (f *fakeStore) ListScheduledRecipes(_ context.Context, start, end time.Time) ([]store.ScheduledRecipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.ScheduledRecipe, 0)
	for _, sr := range f.scheduled {
		if !sr.On.Before(start) && !sr.On.After(end) {
			out = append(out, sr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ScheduleRecipe(_ context.Context, recipeID int64, on time.Time, count int) (store.ScheduledRecipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.parent(recipeID)
	if err != nil {
		return store.ScheduledRecipe{}, err
	}
	for id, sr := range f.scheduled {
		if sr.RecipeID == recipeID && sr.On.Equal(on) {
			sr.Count += count
			f.scheduled[id] = sr
			return sr, nil
		}
	}
	sr := store.ScheduledRecipe{
		ID:         f.id(),
		RecipeID:   recipeID,
		RecipeName: r.Name,
		RecipeTime: r.Time,
		On:         on,
		Count:      count,
		CreatedAt:  time.Now().UTC(),
	}
	f.scheduled[sr.ID] = sr
	return sr, nil
}

func (f *fakeStore) UpdateScheduledRecipe(_ context.Context, id int64, patch store.ScheduledRecipePatch) (store.ScheduledRecipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sr, ok := f.scheduled[id]
	if !ok {
		return store.ScheduledRecipe{}, sql.ErrNoRows
	}
	if patch.On != nil {
		sr.On = *patch.On
	}
	if patch.Count != nil {
		sr.Count = *patch.Count
	}
	f.scheduled[id] = sr
	return sr, nil
}

func (f *fakeStore) DeleteScheduledRecipe(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.scheduled[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.scheduled, id)
	return nil
}

func (f *fakeStore) InsertUpload(_ context.Context, u store.Upload) (store.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.parent(u.RecipeID); err != nil {
		return store.Upload{}, err
	}
	u.CreatedAt = time.Now()
	f.uploads = append(f.uploads, u)
	return u, nil
}

func (f *fakeStore) InsertShoppingList(_ context.Context, list store.ShoppingList) (store.ShoppingList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list.ID = f.id()
	list.CreatedAt = time.Now()
	f.lists = append(f.lists, list)
	return list, nil
}

func strPtr(s string) *string { return &s }

func intPtr(n int) *int { return &n }
