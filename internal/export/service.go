package export

import (
	"context"
	"fmt"

	"github.com/chdsbd/recipeyak/internal/store"
)

// Service renders recipes in the requested format.
type Service struct {
	pdf func(ctx context.Context, html, title string) (*Result, error)
}

func NewService() *Service {
	return &Service{pdf: exportPDF}
}

// Recipe exports a single recipe.
func (s *Service) Recipe(ctx context.Context, recipe store.Recipe, format Format) (*Result, error) {
	filename := sanitizeFilename(recipe.Name)
	switch format {
	case FormatYAML:
		data, err := encodeYAML([]Recipe{FromStore(recipe)})
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: filename + ".yaml", MimeType: "application/x-yaml"}, nil
	case FormatJSON:
		data, err := encodeJSON([]Recipe{FromStore(recipe)}, false)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: filename + ".json", MimeType: "application/json"}, nil
	case FormatPDF:
		html, err := RenderRecipeHTML(NewTemplateData(recipe))
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return s.pdf(ctx, html, recipe.Name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// Recipes exports many recipes as one YAML stream or one JSON array.
func (s *Service) Recipes(recipes []store.Recipe, format Format) (*Result, error) {
	exported := make([]Recipe, 0, len(recipes))
	for _, r := range recipes {
		exported = append(exported, FromStore(r))
	}
	switch format {
	case FormatYAML:
		data, err := encodeYAML(exported)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: "recipes.yaml", MimeType: "application/x-yaml"}, nil
	case FormatJSON:
		data, err := encodeJSON(exported, true)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: "recipes.json", MimeType: "application/json"}, nil
	case FormatPDF:
		return nil, ErrBulkPDF
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
