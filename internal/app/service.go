package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chdsbd/recipeyak/internal/cache"
	"github.com/chdsbd/recipeyak/internal/calendar"
	"github.com/chdsbd/recipeyak/internal/export"
	"github.com/chdsbd/recipeyak/internal/ordering"
	"github.com/chdsbd/recipeyak/internal/search"
	"github.com/chdsbd/recipeyak/internal/shopping"
	"github.com/chdsbd/recipeyak/internal/store"
	"github.com/chdsbd/recipeyak/internal/upload"
)

type IngredientInput struct {
	Quantity    *string `json:"quantity"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Optional    *bool   `json:"optional"`
	Position    *string `json:"position"`
}

type SectionInput struct {
	Title    *string `json:"title"`
	Position *string `json:"position"`
}

type StepInput struct {
	Text     *string `json:"text"`
	Position *string `json:"position"`
}

type CreateRecipeInput struct {
	Name        string            `json:"name"`
	Author      string            `json:"author"`
	Source      string            `json:"source"`
	Servings    string            `json:"servings"`
	Time        string            `json:"time"`
	Tags        []string          `json:"tags"`
	Ingredients []IngredientInput `json:"ingredients"`
	Sections    []SectionInput    `json:"sections"`
	Steps       []StepInput       `json:"steps"`
}

type ScheduleInput struct {
	RecipeID int64  `json:"recipeId"`
	On       string `json:"on"`
	Count    *int   `json:"count"`
}

type ScheduleUpdateInput struct {
	On    *string `json:"on"`
	Count *int    `json:"count"`
}

type UploadInput struct {
	RecipeID    int64  `json:"recipeId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type dataStore interface {
	Ping(ctx context.Context) error
	ListRecipes(context.Context) ([]store.Recipe, error)
	GetRecipe(context.Context, int64) (store.Recipe, error)
	CreateRecipe(context.Context, store.Recipe) (store.Recipe, error)
	DeleteRecipe(context.Context, int64) error
	LastPosition(context.Context, int64, ...store.Table) (string, error)
	CreateIngredient(context.Context, store.Ingredient) (store.Ingredient, error)
	UpdateIngredient(context.Context, int64, store.IngredientPatch) (store.Ingredient, error)
	DeleteIngredient(context.Context, int64) (int64, error)
	CreateSection(context.Context, store.Section) (store.Section, error)
	UpdateSection(context.Context, int64, store.SectionPatch) (store.Section, error)
	DeleteSection(context.Context, int64) (int64, error)
	CreateStep(context.Context, store.Step) (store.Step, error)
	UpdateStep(context.Context, int64, store.StepPatch) (store.Step, error)
	DeleteStep(context.Context, int64) (int64, error)
	SetPositions(context.Context, int64, []store.PositionUpdate) error
	ListScheduledRecipes(context.Context, time.Time, time.Time) ([]store.ScheduledRecipe, error)
	ScheduleRecipe(context.Context, int64, time.Time, int) (store.ScheduledRecipe, error)
	UpdateScheduledRecipe(context.Context, int64, store.ScheduledRecipePatch) (store.ScheduledRecipe, error)
	DeleteScheduledRecipe(context.Context, int64) error
	InsertUpload(context.Context, store.Upload) (store.Upload, error)
	InsertShoppingList(context.Context, store.ShoppingList) (store.ShoppingList, error)
}

type recipeCache interface {
	GetRecipe(context.Context, int64) (store.Recipe, error)
	PutRecipe(context.Context, store.Recipe) error
	Invalidate(context.Context, int64) error
}

type searchIndex interface {
	Search(search.Query) search.Response
	IndexRecipe(search.RecipeRecord)
	DeleteRecipe(int64)
	ReindexAllFromPG(context.Context)
}

type recipeExporter interface {
	Recipe(context.Context, store.Recipe, export.Format) (*export.Result, error)
	Recipes([]store.Recipe, export.Format) (*export.Result, error)
}

type uploadSigner interface {
	Bucket() string
	Start(ctx context.Context, recipeID int64, fileName, contentType string) (upload.Ticket, error)
}

// Options carries the optional collaborators of a Service. Nil fields turn
// the matching feature off.
type Options struct {
	Cache    *cache.RedisStore
	Search   *search.Service
	Exporter *export.Service
	Uploads  *upload.Service
	Logger   *zap.Logger
	// PublicURL prefixes recipe links in the calendar feed.
	PublicURL string
}

type Service struct {
	store    dataStore
	cache    recipeCache
	search   searchIndex
	exporter recipeExporter
	uploads  uploadSigner
	logger   *zap.Logger

	categories *shopping.Categorizer
	publicURL  string
}

func New(dataStore *store.PostgresStore, opts Options) *Service {
	s := &Service{
		store:      dataStore,
		logger:     opts.Logger,
		categories: shopping.DefaultCategorizer(),
		publicURL:  opts.PublicURL,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.Cache != nil {
		s.cache = opts.Cache
	}
	if opts.Search != nil {
		s.search = opts.Search
	}
	if opts.Exporter != nil {
		s.exporter = opts.Exporter
	}
	if opts.Uploads != nil {
		s.uploads = opts.Uploads
	}
	return s
}

// Bootstrap pushes every stored recipe into the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.search == nil {
		return nil
	}
	s.search.ReindexAllFromPG(ctx)
	return nil
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) ListRecipes(ctx context.Context) ([]RecipeSummary, error) {
	recipes, err := s.store.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]RecipeSummary, 0, len(recipes))
	for _, r := range recipes {
		summaries = append(summaries, recipeSummary(r))
	}
	return summaries, nil
}

func (s *Service) SearchRecipes(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return s.search.Search(q), nil
}

// GetRecipe serves from the cache when possible.
func (s *Service) GetRecipe(ctx context.Context, recipeID int64) (store.Recipe, error) {
	if s.cache != nil {
		recipe, err := s.cache.GetRecipe(ctx, recipeID)
		if err == nil {
			return recipe, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("recipe cache read failed", zap.Int64("recipe", recipeID), zap.Error(err))
		}
	}

	recipe, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return store.Recipe{}, err
	}
	if s.cache != nil {
		if err := s.cache.PutRecipe(ctx, recipe); err != nil {
			s.logger.Warn("recipe cache write failed", zap.Int64("recipe", recipeID), zap.Error(err))
		}
	}
	return recipe, nil
}

func (s *Service) CreateRecipe(ctx context.Context, input CreateRecipeInput) (store.Recipe, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Recipe{}, validationError("name is required")
	}
	recipe := store.Recipe{
		Name:     name,
		Author:   strings.TrimSpace(input.Author),
		Source:   strings.TrimSpace(input.Source),
		Servings: strings.TrimSpace(input.Servings),
		Time:     strings.TrimSpace(input.Time),
		Tags:     input.Tags,
	}

	// Ingredients and sections share one chain of positions.
	last := ""
	for i, in := range input.Ingredients {
		if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
			return store.Recipe{}, validationError("ingredients[%d].name is required", i)
		}
		position, err := chainPosition(in.Position, last)
		if err != nil {
			return store.Recipe{}, err
		}
		last = maxPosition(last, position)
		recipe.Ingredients = append(recipe.Ingredients, store.Ingredient{
			Quantity:    deref(in.Quantity),
			Name:        strings.TrimSpace(*in.Name),
			Description: deref(in.Description),
			Optional:    in.Optional != nil && *in.Optional,
			Position:    position,
		})
	}
	for i, in := range input.Sections {
		if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
			return store.Recipe{}, validationError("sections[%d].title is required", i)
		}
		position, err := chainPosition(in.Position, last)
		if err != nil {
			return store.Recipe{}, err
		}
		last = maxPosition(last, position)
		recipe.Sections = append(recipe.Sections, store.Section{Title: strings.TrimSpace(*in.Title), Position: position})
	}

	last = ""
	for i, in := range input.Steps {
		if in.Text == nil || strings.TrimSpace(*in.Text) == "" {
			return store.Recipe{}, validationError("steps[%d].text is required", i)
		}
		position, err := chainPosition(in.Position, last)
		if err != nil {
			return store.Recipe{}, err
		}
		last = maxPosition(last, position)
		recipe.Steps = append(recipe.Steps, store.Step{Text: strings.TrimSpace(*in.Text), Position: position})
	}

	created, err := s.store.CreateRecipe(ctx, recipe)
	if err != nil {
		return store.Recipe{}, err
	}
	s.logger.Info("recipe created", zap.Int64("recipe", created.ID), zap.String("name", created.Name))
	s.indexRecipe(created)
	return s.store.GetRecipe(ctx, created.ID)
}

func (s *Service) DeleteRecipe(ctx context.Context, recipeID int64) error {
	if err := s.store.DeleteRecipe(ctx, recipeID); err != nil {
		return err
	}
	s.invalidate(ctx, recipeID)
	if s.search != nil {
		s.search.DeleteRecipe(recipeID)
	}
	return nil
}

func (s *Service) CreateIngredient(ctx context.Context, recipeID int64, input IngredientInput) (store.Ingredient, error) {
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return store.Ingredient{}, validationError("name is required")
	}
	position, err := s.positionFor(ctx, recipeID, input.Position, store.TableIngredients, store.TableSections)
	if err != nil {
		return store.Ingredient{}, err
	}
	created, err := s.store.CreateIngredient(ctx, store.Ingredient{
		RecipeID:    recipeID,
		Quantity:    deref(input.Quantity),
		Name:        strings.TrimSpace(*input.Name),
		Description: deref(input.Description),
		Optional:    input.Optional != nil && *input.Optional,
		Position:    position,
	})
	if err != nil {
		return store.Ingredient{}, err
	}
	s.changed(ctx, recipeID, true)
	return created, nil
}

func (s *Service) UpdateIngredient(ctx context.Context, id int64, input IngredientInput) (store.Ingredient, error) {
	if err := validatePosition(input.Position); err != nil {
		return store.Ingredient{}, err
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return store.Ingredient{}, validationError("name cannot be blank")
	}
	updated, err := s.store.UpdateIngredient(ctx, id, store.IngredientPatch{
		Quantity:    input.Quantity,
		Name:        input.Name,
		Description: input.Description,
		Optional:    input.Optional,
		Position:    input.Position,
	})
	if err != nil {
		return store.Ingredient{}, err
	}
	s.changed(ctx, updated.RecipeID, input.Name != nil)
	return updated, nil
}

func (s *Service) DeleteIngredient(ctx context.Context, id int64) error {
	recipeID, err := s.store.DeleteIngredient(ctx, id)
	if err != nil {
		return err
	}
	s.changed(ctx, recipeID, true)
	return nil
}

func (s *Service) CreateSection(ctx context.Context, recipeID int64, input SectionInput) (store.Section, error) {
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		return store.Section{}, validationError("title is required")
	}
	position, err := s.positionFor(ctx, recipeID, input.Position, store.TableIngredients, store.TableSections)
	if err != nil {
		return store.Section{}, err
	}
	created, err := s.store.CreateSection(ctx, store.Section{
		RecipeID: recipeID,
		Title:    strings.TrimSpace(*input.Title),
		Position: position,
	})
	if err != nil {
		return store.Section{}, err
	}
	s.changed(ctx, recipeID, false)
	return created, nil
}

func (s *Service) UpdateSection(ctx context.Context, id int64, input SectionInput) (store.Section, error) {
	if err := validatePosition(input.Position); err != nil {
		return store.Section{}, err
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return store.Section{}, validationError("title cannot be blank")
	}
	updated, err := s.store.UpdateSection(ctx, id, store.SectionPatch{Title: input.Title, Position: input.Position})
	if err != nil {
		return store.Section{}, err
	}
	s.changed(ctx, updated.RecipeID, false)
	return updated, nil
}

func (s *Service) DeleteSection(ctx context.Context, id int64) error {
	recipeID, err := s.store.DeleteSection(ctx, id)
	if err != nil {
		return err
	}
	s.changed(ctx, recipeID, false)
	return nil
}

func (s *Service) CreateStep(ctx context.Context, recipeID int64, input StepInput) (store.Step, error) {
	if input.Text == nil || strings.TrimSpace(*input.Text) == "" {
		return store.Step{}, validationError("text is required")
	}
	position, err := s.positionFor(ctx, recipeID, input.Position, store.TableSteps)
	if err != nil {
		return store.Step{}, err
	}
	created, err := s.store.CreateStep(ctx, store.Step{
		RecipeID: recipeID,
		Text:     strings.TrimSpace(*input.Text),
		Position: position,
	})
	if err != nil {
		return store.Step{}, err
	}
	s.changed(ctx, recipeID, false)
	return created, nil
}

func (s *Service) UpdateStep(ctx context.Context, id int64, input StepInput) (store.Step, error) {
	if err := validatePosition(input.Position); err != nil {
		return store.Step{}, err
	}
	if input.Text != nil && strings.TrimSpace(*input.Text) == "" {
		return store.Step{}, validationError("text cannot be blank")
	}
	updated, err := s.store.UpdateStep(ctx, id, store.StepPatch{Text: input.Text, Position: input.Position})
	if err != nil {
		return store.Step{}, err
	}
	s.changed(ctx, updated.RecipeID, false)
	return updated, nil
}

func (s *Service) DeleteStep(ctx context.Context, id int64) error {
	recipeID, err := s.store.DeleteStep(ctx, id)
	if err != nil {
		return err
	}
	s.changed(ctx, recipeID, false)
	return nil
}

// RebalanceRecipe respaces the ingredient/section list and the step list to
// the shortest keys that keep their current order.
func (s *Service) RebalanceRecipe(ctx context.Context, recipeID int64) (store.Recipe, error) {
	recipe, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		return store.Recipe{}, err
	}

	type entry struct {
		table    store.Table
		id       int64
		position string
	}
	respace := func(entries []entry) []store.PositionUpdate {
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].position != entries[j].position {
				return entries[i].position < entries[j].position
			}
			if entries[i].table != entries[j].table {
				return entries[i].table < entries[j].table
			}
			return entries[i].id < entries[j].id
		})
		keys := ordering.Spread(len(entries))
		updates := make([]store.PositionUpdate, 0)
		for i, e := range entries {
			if e.position != keys[i] {
				updates = append(updates, store.PositionUpdate{Table: e.table, ID: e.id, Position: keys[i]})
			}
		}
		return updates
	}

	mixed := make([]entry, 0, len(recipe.Ingredients)+len(recipe.Sections))
	for _, item := range recipe.Ingredients {
		mixed = append(mixed, entry{table: store.TableIngredients, id: item.ID, position: item.Position})
	}
	for _, item := range recipe.Sections {
		mixed = append(mixed, entry{table: store.TableSections, id: item.ID, position: item.Position})
	}
	steps := make([]entry, 0, len(recipe.Steps))
	for _, item := range recipe.Steps {
		steps = append(steps, entry{table: store.TableSteps, id: item.ID, position: item.Position})
	}

	updates := append(respace(mixed), respace(steps)...)
	if len(updates) == 0 {
		return recipe, nil
	}
	if err := s.store.SetPositions(ctx, recipeID, updates); err != nil {
		return store.Recipe{}, err
	}
	s.logger.Info("recipe rebalanced", zap.Int64("recipe", recipeID), zap.Int("updated", len(updates)))
	s.invalidate(ctx, recipeID)
	return s.store.GetRecipe(ctx, recipeID)
}

func (s *Service) ExportRecipe(ctx context.Context, recipeID int64, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	recipe, err := s.GetRecipe(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	result, err := s.exporter.Recipe(ctx, recipe, format)
	if err != nil {
		return nil, exportError(err)
	}
	return result, nil
}

func (s *Service) ExportRecipes(ctx context.Context, format export.Format) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	summaries, err := s.store.ListRecipes(ctx)
	if err != nil {
		return nil, err
	}
	recipes := make([]store.Recipe, 0, len(summaries))
	for _, summary := range summaries {
		recipe, err := s.store.GetRecipe(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, recipe)
	}
	result, err := s.exporter.Recipes(recipes, format)
	if err != nil {
		return nil, exportError(err)
	}
	return result, nil
}

func exportError(err error) error {
	switch {
	case errors.Is(err, export.ErrUnsupportedFormat), errors.Is(err, export.ErrBulkPDF):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return domainError(http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil)
	default:
		return err
	}
}

func (s *Service) ListCalendar(ctx context.Context, start, end string) ([]store.ScheduledRecipe, error) {
	from, to, err := dayRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.store.ListScheduledRecipes(ctx, from, to)
}

func (s *Service) ScheduleRecipe(ctx context.Context, input ScheduleInput) (store.ScheduledRecipe, error) {
	on, err := parseDay("on", input.On)
	if err != nil {
		return store.ScheduledRecipe{}, err
	}
	count := 1
	if input.Count != nil {
		count = *input.Count
	}
	if count <= 0 {
		return store.ScheduledRecipe{}, validationError("count must be positive")
	}
	return s.store.ScheduleRecipe(ctx, input.RecipeID, on, count)
}

func (s *Service) UpdateScheduledRecipe(ctx context.Context, id int64, input ScheduleUpdateInput) (store.ScheduledRecipe, error) {
	var patch store.ScheduledRecipePatch
	if input.On != nil {
		on, err := parseDay("on", *input.On)
		if err != nil {
			return store.ScheduledRecipe{}, err
		}
		patch.On = &on
	}
	if input.Count != nil {
		if *input.Count <= 0 {
			return store.ScheduledRecipe{}, validationError("count must be positive")
		}
		patch.Count = input.Count
	}
	return s.store.UpdateScheduledRecipe(ctx, id, patch)
}

func (s *Service) DeleteScheduledRecipe(ctx context.Context, id int64) error {
	return s.store.DeleteScheduledRecipe(ctx, id)
}

func (s *Service) StartUpload(ctx context.Context, input UploadInput) (upload.Ticket, error) {
	if s.uploads == nil {
		return upload.Ticket{}, domainError(http.StatusServiceUnavailable, "UPLOAD_UNAVAILABLE", "Uploads are not configured", nil)
	}
	ticket, err := s.uploads.Start(ctx, input.RecipeID, input.FileName, input.ContentType)
	if err != nil {
		if errors.Is(err, upload.ErrInvalidUpload) {
			return upload.Ticket{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
		return upload.Ticket{}, err
	}
	if _, err := s.store.InsertUpload(ctx, store.Upload{
		ID:          ticket.ID,
		RecipeID:    input.RecipeID,
		Bucket:      s.uploads.Bucket(),
		Key:         ticket.Key,
		ContentType: input.ContentType,
	}); err != nil {
		return upload.Ticket{}, err
	}
	return ticket, nil
}

// positionFor validates a client supplied position, or appends after the
// last position found in tables.
func (s *Service) positionFor(ctx context.Context, recipeID int64, requested *string, tables ...store.Table) (string, error) {
	if requested != nil {
		if err := validatePosition(requested); err != nil {
			return "", err
		}
		return *requested, nil
	}
	last, err := s.store.LastPosition(ctx, recipeID, tables...)
	if err != nil {
		return "", err
	}
	return chainPosition(nil, last)
}

// changed drops the cached recipe and, when searchable fields moved, refreshes
// the search index.
func (s *Service) changed(ctx context.Context, recipeID int64, reindex bool) {
	s.invalidate(ctx, recipeID)
	if !reindex || s.search == nil {
		return
	}
	recipe, err := s.store.GetRecipe(ctx, recipeID)
	if err != nil {
		s.logger.Warn("reload recipe for index", zap.Int64("recipe", recipeID), zap.Error(err))
		return
	}
	s.indexRecipe(recipe)
}

func (s *Service) invalidate(ctx context.Context, recipeID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, recipeID); err != nil {
		s.logger.Warn("recipe cache invalidate failed", zap.Int64("recipe", recipeID), zap.Error(err))
	}
}

func (s *Service) indexRecipe(recipe store.Recipe) {
	if s.search == nil {
		return
	}
	ingredients := make([]string, 0, len(recipe.Ingredients))
	for _, item := range recipe.Ingredients {
		ingredients = append(ingredients, item.Name)
	}
	s.search.IndexRecipe(search.RecipeRecord{
		ID:          recipe.ID,
		Name:        recipe.Name,
		Author:      recipe.Author,
		Source:      recipe.Source,
		Tags:        recipe.Tags,
		Ingredients: ingredients,
	})
}

func validatePosition(position *string) error {
	if position == nil {
		return nil
	}
	if err := ordering.Validate(*position); err != nil {
		return domainError(http.StatusUnprocessableEntity, "INVALID_POSITION", "position is not a valid key", map[string]any{
			"position": *position,
		})
	}
	return nil
}

// chainPosition returns requested when given, otherwise the key after last.
func chainPosition(requested *string, last string) (string, error) {
	if requested != nil {
		if err := validatePosition(requested); err != nil {
			return "", err
		}
		return *requested, nil
	}
	if last == "" {
		return ordering.FirstPosition, nil
	}
	next, err := ordering.PositionAfter(last)
	if err != nil {
		return "", fmt.Errorf("position after %q: %w", last, err)
	}
	return next, nil
}

func maxPosition(a, b string) string {
	if b > a {
		return b
	}
	return a
}

func parseDay(field, value string) (time.Time, error) {
	day, err := time.Parse(calendar.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, validationError("%s must be a YYYY-MM-DD date", field)
	}
	return day, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
