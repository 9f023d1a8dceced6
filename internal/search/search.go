package search

// Result is a single recipe hit.
type Result struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Author  string `json:"author"`
	Snippet string `json:"snippet"`
}

type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// RecipeRecord is the data we index for a recipe.
type RecipeRecord struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Author      string   `json:"author"`
	Source      string   `json:"source"`
	Tags        []string `json:"tags"`
	Ingredients []string `json:"ingredients"`
}
