package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/chdsbd/recipeyak/internal/store"
)

// FromStore converts a stored recipe. Children must already be in position order.
func FromStore(r store.Recipe) Recipe {
	out := Recipe{
		Name:        r.Name,
		Author:      r.Author,
		Time:        r.Time,
		Source:      r.Source,
		Ingredients: make([]Ingredient, 0, len(r.Ingredients)),
		Steps:       make([]string, 0, len(r.Steps)),
		Tags:        r.Tags,
	}
	if r.Servings != "" {
		servings := r.Servings
		out.Servings = &servings
	}
	for _, i := range r.Ingredients {
		out.Ingredients = append(out.Ingredients, Ingredient{
			Quantity:    i.Quantity,
			Name:        i.Name,
			Description: i.Description,
			Optional:    i.Optional,
		})
	}
	for _, s := range r.Steps {
		out.Steps = append(out.Steps, s.Text)
	}
	return out
}

// encodeYAML writes one YAML document per recipe.
func encodeYAML(recipes []Recipe) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, r := range recipes {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeJSON writes a single object, or an array when bulk is set.
func encodeJSON(recipes []Recipe, bulk bool) ([]byte, error) {
	var payload any = recipes
	if !bulk {
		if len(recipes) != 1 {
			return nil, fmt.Errorf("encode json: expected one recipe, got %d", len(recipes))
		}
		payload = recipes[0]
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}
