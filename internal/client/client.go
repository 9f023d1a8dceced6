// Package client talks to the recipe API over HTTP. It is the server side of
// the reorder and calendar reconcilers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chdsbd/recipeyak/internal/calendar"
	"github.com/chdsbd/recipeyak/internal/reorder"
	"github.com/chdsbd/recipeyak/internal/shopping"
)

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.http = httpClient }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Recipe struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Author      string       `json:"author"`
	Ingredients []Ingredient `json:"ingredients"`
	Sections    []Section    `json:"sections"`
	Steps       []Step       `json:"steps"`
}

type Ingredient struct {
	ID       int64  `json:"id"`
	Quantity string `json:"quantity"`
	Name     string `json:"name"`
	Position string `json:"position"`
}

type Section struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Position string `json:"position"`
}

type Step struct {
	ID       int64  `json:"id"`
	Text     string `json:"text"`
	Position string `json:"position"`
}

// IngredientItems returns the shared ingredient and section list.
func (r Recipe) IngredientItems() []reorder.Item {
	items := make([]reorder.Item, 0, len(r.Ingredients)+len(r.Sections))
	for _, i := range r.Ingredients {
		items = append(items, reorder.Item{Kind: reorder.KindIngredient, ID: i.ID, Position: i.Position})
	}
	for _, s := range r.Sections {
		items = append(items, reorder.Item{Kind: reorder.KindSection, ID: s.ID, Position: s.Position})
	}
	return items
}

func (r Recipe) StepItems() []reorder.Item {
	items := make([]reorder.Item, 0, len(r.Steps))
	for _, s := range r.Steps {
		items = append(items, reorder.Item{Kind: reorder.KindStep, ID: s.ID, Position: s.Position})
	}
	return items
}

type scheduledRecipe struct {
	ID         int64  `json:"id"`
	RecipeID   int64  `json:"recipeId"`
	RecipeName string `json:"recipeName"`
	On         string `json:"on"`
	Count      int    `json:"count"`
}

func (s scheduledRecipe) entry() (calendar.Entry, error) {
	on, err := time.Parse(calendar.DateLayout, s.On)
	if err != nil {
		return calendar.Entry{}, fmt.Errorf("scheduled recipe %d: %w", s.ID, err)
	}
	return calendar.Entry{ID: s.ID, RecipeID: s.RecipeID, RecipeName: s.RecipeName, On: on, Count: s.Count}, nil
}

func (c *Client) GetRecipe(ctx context.Context, recipeID int64) (Recipe, error) {
	var recipe Recipe
	err := c.do(ctx, http.MethodGet, "/api/v1/recipes/"+strconv.FormatInt(recipeID, 10), nil, &recipe)
	return recipe, err
}

func (c *Client) Rebalance(ctx context.Context, recipeID int64) (Recipe, error) {
	var recipe Recipe
	err := c.do(ctx, http.MethodPost, "/api/v1/recipes/"+strconv.FormatInt(recipeID, 10)+"/rebalance", nil, &recipe)
	return recipe, err
}

// UpdatePosition implements reorder.Persister.
func (c *Client) UpdatePosition(ctx context.Context, item reorder.Item) (string, error) {
	var collection string
	switch item.Kind {
	case reorder.KindIngredient:
		collection = "ingredients"
	case reorder.KindSection:
		collection = "sections"
	case reorder.KindStep:
		collection = "steps"
	default:
		return "", fmt.Errorf("update position: unsupported %s", item.Kind)
	}

	var echoed struct {
		Position string `json:"position"`
	}
	path := "/api/v1/" + collection + "/" + strconv.FormatInt(item.ID, 10)
	if err := c.do(ctx, http.MethodPatch, path, map[string]string{"position": item.Position}, &echoed); err != nil {
		return "", err
	}
	return echoed.Position, nil
}

func (c *Client) ListCalendar(ctx context.Context, start, end time.Time) ([]calendar.Entry, error) {
	query := url.Values{}
	query.Set("start", start.Format(calendar.DateLayout))
	query.Set("end", end.Format(calendar.DateLayout))

	var payload struct {
		ScheduledRecipes []scheduledRecipe `json:"scheduledRecipes"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/calendar?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	entries := make([]calendar.Entry, 0, len(payload.ScheduledRecipes))
	for _, sr := range payload.ScheduledRecipes {
		entry, err := sr.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ShoppingList fetches the combined ingredients of recipes scheduled
// between start and end.
func (c *Client) ShoppingList(ctx context.Context, start, end time.Time) ([]shopping.Item, error) {
	query := url.Values{}
	query.Set("start", start.Format(calendar.DateLayout))
	query.Set("end", end.Format(calendar.DateLayout))

	var payload struct {
		Items []shopping.Item `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/shopping-list?"+query.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// UpdateScheduledRecipe implements calendar.Persister.
func (c *Client) UpdateScheduledRecipe(ctx context.Context, id int64, patch calendar.Patch) (calendar.Entry, error) {
	body := map[string]any{}
	if patch.On != nil {
		body["on"] = patch.On.Format(calendar.DateLayout)
	}
	if patch.Count != nil {
		body["count"] = *patch.Count
	}
	var sr scheduledRecipe
	if err := c.do(ctx, http.MethodPatch, "/api/v1/calendar/"+strconv.FormatInt(id, 10), body, &sr); err != nil {
		return calendar.Entry{}, err
	}
	return sr.entry()
}

// DeleteScheduledRecipe implements calendar.Persister.
func (c *Client) DeleteScheduledRecipe(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/calendar/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Error   string `json:"error"`
			Details any    `json:"details"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
			apiErr.Details = payload.Details
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
