package shopping

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed departments.yaml
var departmentsYAML []byte

const unknownCategory = "unknown"

// Categorizer assigns a store department to an ingredient name by its
// longest known phrase.
type Categorizer struct {
	phrases map[string]string
	longest int
}

// LoadCategorizer reads a department mapping of the form
// "department: [phrase, ...]".
func LoadCategorizer(raw []byte) (*Categorizer, error) {
	var mapping map[string][]string
	if err := yaml.Unmarshal(raw, &mapping); err != nil {
		return nil, fmt.Errorf("parse departments: %w", err)
	}

	departments := make([]string, 0, len(mapping))
	for department := range mapping {
		departments = append(departments, department)
	}
	sort.Strings(departments)

	c := &Categorizer{phrases: make(map[string]string)}
	for _, department := range departments {
		for _, phrase := range mapping[department] {
			key := normalizeName(strings.ReplaceAll(phrase, "-", " "))
			if key == "" {
				continue
			}
			if _, taken := c.phrases[key]; !taken {
				c.phrases[key] = department
			}
			if n := len(strings.Fields(key)); n > c.longest {
				c.longest = n
			}
		}
	}
	return c, nil
}

// DefaultCategorizer uses the built-in department list.
func DefaultCategorizer() *Categorizer {
	c, err := LoadCategorizer(departmentsYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Category returns the department of name, or "unknown".
func (c *Categorizer) Category(name string) string {
	words := strings.Fields(normalizeName(strings.ReplaceAll(name, "-", " ")))
	best, bestLen := unknownCategory, 0
	for start := range words {
		for end := start + 1; end <= len(words) && end-start <= c.longest; end++ {
			phrase := strings.Join(words[start:end], " ")
			department, ok := c.phrases[phrase]
			if ok && len(phrase) > bestLen {
				best, bestLen = department, len(phrase)
			}
		}
	}
	return best
}
