// Package export renders recipes as YAML, JSON or PDF.
//
// Exports are meant for people and other tools, so ids and positions are
// dropped and children appear in display order instead.
package export

import "errors"

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a format name or file extension.
func ParseFormat(value string) (Format, error) {
	switch value {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Recipe is the exported shape of a recipe.
type Recipe struct {
	Name        string       `yaml:"name" json:"name"`
	Author      string       `yaml:"author" json:"author"`
	Time        string       `yaml:"time" json:"time"`
	Source      string       `yaml:"source" json:"source"`
	Servings    *string      `yaml:"servings" json:"servings"`
	Ingredients []Ingredient `yaml:"ingredients" json:"ingredients"`
	Steps       []string     `yaml:"steps" json:"steps"`
	Tags        []string     `yaml:"tags,omitempty" json:"tags,omitempty"`
}

type Ingredient struct {
	Quantity    string `yaml:"quantity" json:"quantity"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Optional    bool   `yaml:"optional" json:"optional"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("export: unsupported format")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export: pdf dependency missing")
	ErrBulkPDF              = errors.New("export: pdf export covers a single recipe")
)
