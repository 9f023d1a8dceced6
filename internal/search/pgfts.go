package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS searches recipes with PostgreSQL full-text search.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks recipes by name and author matches, plus ingredient names.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const matches = `
		FROM recipes r
		LEFT JOIN LATERAL (
			SELECT string_agg(i.name, ' ') AS names
			FROM ingredients i WHERE i.recipe_id = r.id
		) ing ON TRUE
		WHERE r.fts @@ plainto_tsquery('english', $1)
			OR to_tsvector('english', coalesce(ing.names, '')) @@ plainto_tsquery('english', $1)`

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) `+matches, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT r.id, r.name, r.author,
			ts_headline('english', coalesce(ing.names, ''), plainto_tsquery('english', $1),
				'MaxFragments=1,MaxWords=20,StartSel=<mark>,StopSel=</mark>') AS snippet
		%s
		ORDER BY ts_rank(r.fts, plainto_tsquery('english', $1)) DESC, r.name, r.id
		LIMIT %d OFFSET %d`, matches, limit, offset), q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Name, &r.Author, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if !strings.Contains(r.Snippet, "<mark>") {
			r.Snippet = ""
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every recipe for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]RecipeRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.author, r.source, array_to_string(r.tags, E'\x1f'),
			coalesce(string_agg(i.name, E'\x1f' ORDER BY i.position), '')
		FROM recipes r
		LEFT JOIN ingredients i ON i.recipe_id = r.id
		GROUP BY r.id
		ORDER BY r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("load recipes: %w", err)
	}
	defer rows.Close()

	records := make([]RecipeRecord, 0)
	for rows.Next() {
		var rec RecipeRecord
		var tags, ingredients string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Author, &rec.Source, &tags, &ingredients); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		rec.Tags = splitUnit(tags)
		rec.Ingredients = splitUnit(ingredients)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}
	return records, nil
}

func splitUnit(joined string) []string {
	if joined == "" {
		return []string{}
	}
	return strings.Split(joined, "\x1f")
}
