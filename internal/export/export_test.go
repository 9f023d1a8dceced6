package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/chdsbd/recipeyak/internal/store"
)

func sampleRecipe() store.Recipe {
	return store.Recipe{
		ID:     12,
		Name:   "foo 🦠",
		Author: "Recipe author",
		Source: "www.exmple.com",
		Time:   "1 hour",
		Tags:   []string{"foo", "bar"},
		Ingredients: []store.Ingredient{
			{ID: 1, RecipeID: 12, Quantity: "1 lbs", Name: "egg", Description: "scrambled", Position: "a0"},
			{ID: 2, RecipeID: 12, Quantity: "2 tbs", Name: "soy sauce", Position: "a2"},
		},
		Sections: []store.Section{{ID: 5, RecipeID: 12, Title: "sauce", Position: "a1"}},
		Steps: []store.Step{
			{ID: 3, RecipeID: 12, Text: "Place egg in boiling water and cook for ten minutes", Position: "a0"},
		},
	}
}

// hasKey reports whether key appears at any depth of a decoded document.
func hasKey(value any, key string) bool {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			if k == key || hasKey(child, key) {
				return true
			}
		}
	case []any:
		for _, child := range v {
			if hasKey(child, key) {
				return true
			}
		}
	}
	return false
}

func TestHasKey(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  bool
	}{
		{"top level", map[string]any{"id": 1}, true},
		{"absent", map[string]any{"blah": 1}, false},
		{"in list", map[string]any{"blah": 1, "hmm": []any{map[string]any{"id": 1}}}, true},
		{"not in list", map[string]any{"blah": 1, "hmm": []any{map[string]any{"blah": 1}}}, false},
		{"nested map", map[string]any{"owner": map[string]any{"id": 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasKey(tt.input, "id"); got != tt.want {
				t.Errorf("hasKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecipeYAML(t *testing.T) {
	svc := NewService()
	result, err := svc.Recipe(context.Background(), sampleRecipe(), FormatYAML)
	if err != nil {
		t.Fatalf("Recipe() error = %v", err)
	}
	if result.Filename != "foo-.yaml" {
		t.Errorf("unexpected filename %q", result.Filename)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(result.Data, &doc); err != nil {
		t.Fatalf("decode yaml: %v", err)
	}
	if doc["name"] != "foo 🦠" {
		t.Errorf("name not preserved: %v", doc["name"])
	}
	if doc["servings"] != nil {
		t.Errorf("expected null servings, got %v", doc["servings"])
	}
	if hasKey(doc, "id") || hasKey(doc, "position") {
		t.Error("export must not contain ids or positions")
	}
	ingredients := doc["ingredients"].([]any)
	if len(ingredients) != 2 || ingredients[1].(map[string]any)["name"] != "soy sauce" {
		t.Errorf("unexpected ingredients: %v", ingredients)
	}
	if !strings.Contains(string(result.Data), "- Place egg in boiling water") {
		t.Errorf("steps should export as plain strings:\n%s", result.Data)
	}
}

func TestRecipesYAMLIsMultiDocument(t *testing.T) {
	second := sampleRecipe()
	second.Name = "Second"

	result, err := NewService().Recipes([]store.Recipe{sampleRecipe(), second}, FormatYAML)
	if err != nil {
		t.Fatalf("Recipes() error = %v", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(result.Data))
	var names []string
	for {
		var doc map[string]any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("decode document: %v", err)
		}
		names = append(names, doc["name"].(string))
	}
	if len(names) != 2 || names[1] != "Second" {
		t.Fatalf("expected two documents, got %v", names)
	}
}

func TestRecipeJSON(t *testing.T) {
	result, err := NewService().Recipe(context.Background(), sampleRecipe(), FormatJSON)
	if err != nil {
		t.Fatalf("Recipe() error = %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(result.Data, &doc); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if doc["name"] != "foo 🦠" || hasKey(doc, "id") || hasKey(doc, "position") {
		t.Fatalf("unexpected json export: %s", result.Data)
	}

	bulk, err := NewService().Recipes([]store.Recipe{sampleRecipe()}, FormatJSON)
	if err != nil {
		t.Fatalf("Recipes() error = %v", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(bulk.Data, &docs); err != nil || len(docs) != 1 {
		t.Fatalf("expected a one element array, got %s (%v)", bulk.Data, err)
	}
}

func TestRecipePDFUsesRenderedHTML(t *testing.T) {
	svc := NewService()
	var gotHTML string
	svc.pdf = func(_ context.Context, html, title string) (*Result, error) {
		gotHTML = html
		return &Result{Data: []byte("%PDF"), Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}

	result, err := svc.Recipe(context.Background(), sampleRecipe(), FormatPDF)
	if err != nil {
		t.Fatalf("Recipe() error = %v", err)
	}
	if result.MimeType != "application/pdf" {
		t.Errorf("unexpected mime type %q", result.MimeType)
	}
	egg := strings.Index(gotHTML, "egg")
	section := strings.Index(gotHTML, "<h3>sauce</h3>")
	soy := strings.Index(gotHTML, "soy sauce")
	if egg < 0 || section < 0 || soy < 0 || !(egg < section && section < soy) {
		t.Errorf("section should sit between ingredients by position:\n%s", gotHTML)
	}
}

func TestUnsupportedFormats(t *testing.T) {
	svc := NewService()
	if _, err := svc.Recipes(nil, FormatPDF); !errors.Is(err, ErrBulkPDF) {
		t.Errorf("expected ErrBulkPDF, got %v", err)
	}
	if _, err := svc.Recipe(context.Background(), sampleRecipe(), Format("docx")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if _, err := ParseFormat("docx"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
	if f, err := ParseFormat("yml"); err != nil || f != FormatYAML {
		t.Errorf("ParseFormat(yml) = %v, %v", f, err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Mom's Pie v1.2", "Moms-Pie-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "recipe"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"crème", "cr%C3%A8me"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestRenderRecipeHTMLEscapes(t *testing.T) {
	data := NewTemplateData(store.Recipe{
		Name:  "<script>alert(1)</script>",
		Steps: []store.Step{{Text: "stir & serve", Position: "a0"}},
	})

	html, err := RenderRecipeHTML(data)
	if err != nil {
		t.Fatalf("RenderRecipeHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>alert") {
		t.Error("recipe name must be escaped")
	}
	if !strings.Contains(html, "stir &amp; serve") {
		t.Error("step text missing or unescaped")
	}
}
