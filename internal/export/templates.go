package export

import (
	"bytes"
	"embed"
	"html/template"
	"sort"
	"strings"

	"github.com/chdsbd/recipeyak/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

var recipeTemplate = template.Must(
	template.New("recipe.html").
		Funcs(template.FuncMap{"join": strings.Join}).
		ParseFS(templateFS, "templates/recipe.html"),
)

// TemplateData holds data for recipe template rendering
type TemplateData struct {
	Name     string
	Author   string
	Time     string
	Servings string
	Source   string
	Tags     []string
	Lines    []TemplateLine
	Steps    []string
}

// TemplateLine is either a section heading or an ingredient.
type TemplateLine struct {
	Section     string
	Quantity    string
	Name        string
	Description string
	Optional    bool
}

// NewTemplateData interleaves sections with ingredients by position.
func NewTemplateData(r store.Recipe) TemplateData {
	type positioned struct {
		position string
		line     TemplateLine
	}
	merged := make([]positioned, 0, len(r.Ingredients)+len(r.Sections))
	for _, s := range r.Sections {
		merged = append(merged, positioned{s.Position, TemplateLine{Section: s.Title}})
	}
	for _, i := range r.Ingredients {
		merged = append(merged, positioned{i.Position, TemplateLine{
			Quantity:    i.Quantity,
			Name:        i.Name,
			Description: i.Description,
			Optional:    i.Optional,
		}})
	}
	sort.SliceStable(merged, func(a, b int) bool { return merged[a].position < merged[b].position })

	data := TemplateData{
		Name:     r.Name,
		Author:   r.Author,
		Time:     r.Time,
		Servings: r.Servings,
		Source:   r.Source,
		Tags:     r.Tags,
		Lines:    make([]TemplateLine, 0, len(merged)),
		Steps:    make([]string, 0, len(r.Steps)),
	}
	for _, m := range merged {
		data.Lines = append(data.Lines, m.line)
	}
	for _, s := range r.Steps {
		data.Steps = append(data.Steps, s.Text)
	}
	return data
}

// RenderRecipeHTML renders the recipe template with provided data
func RenderRecipeHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := recipeTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
