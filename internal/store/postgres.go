package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

const foreignKeyViolation = "23503"

type PostgresStore struct {
	db    *sql.DB
	types *pgtype.Map
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, types: pgtype.NewMap()}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// missingParent turns a foreign key violation into sql.ErrNoRows so callers
// report the parent as not found.
func missingParent(err error, what string, id int64) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return fmt.Errorf("%s %d: %w", what, id, sql.ErrNoRows)
	}
	return err
}

func (s *PostgresStore) ListRecipes(ctx context.Context) ([]Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, author, source, servings, time, tags, created_at, updated_at
		FROM recipes
		ORDER BY name, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	recipes := make([]Recipe, 0)
	for rows.Next() {
		var r Recipe
		if err := rows.Scan(&r.ID, &r.Name, &r.Author, &r.Source, &r.Servings, &r.Time,
			s.types.SQLScanner(&r.Tags), &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		recipes = append(recipes, r)
	}
	return recipes, rows.Err()
}

// GetRecipe loads a recipe with its children ordered by position.
func (s *PostgresStore) GetRecipe(ctx context.Context, recipeID int64) (Recipe, error) {
	var r Recipe
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, author, source, servings, time, tags, created_at, updated_at
		FROM recipes WHERE id=$1
	`, recipeID).Scan(&r.ID, &r.Name, &r.Author, &r.Source, &r.Servings, &r.Time,
		s.types.SQLScanner(&r.Tags), &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return Recipe{}, err
	}

	if r.Ingredients, err = s.listIngredients(ctx, recipeID); err != nil {
		return Recipe{}, err
	}
	if r.Sections, err = s.listSections(ctx, recipeID); err != nil {
		return Recipe{}, err
	}
	if r.Steps, err = s.listSteps(ctx, recipeID); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

func (s *PostgresStore) listIngredients(ctx context.Context, recipeID int64) ([]Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipe_id, quantity, name, description, optional, position
		FROM ingredients WHERE recipe_id=$1
		ORDER BY position, id
	`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	defer rows.Close()

	items := make([]Ingredient, 0)
	for rows.Next() {
		var i Ingredient
		if err := rows.Scan(&i.ID, &i.RecipeID, &i.Quantity, &i.Name, &i.Description, &i.Optional, &i.Position); err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (s *PostgresStore) listSections(ctx context.Context, recipeID int64) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipe_id, title, position
		FROM sections WHERE recipe_id=$1
		ORDER BY position, id
	`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	items := make([]Section, 0)
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.ID, &sec.RecipeID, &sec.Title, &sec.Position); err != nil {
			return nil, fmt.Errorf("scan section: %w", err)
		}
		items = append(items, sec)
	}
	return items, rows.Err()
}

func (s *PostgresStore) listSteps(ctx context.Context, recipeID int64) ([]Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipe_id, text, position
		FROM steps WHERE recipe_id=$1
		ORDER BY position, id
	`, recipeID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	items := make([]Step, 0)
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.ID, &st.RecipeID, &st.Text, &st.Position); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		items = append(items, st)
	}
	return items, rows.Err()
}

// CreateRecipe inserts a recipe and its children in one transaction. Children
// must already carry positions.
func (s *PostgresStore) CreateRecipe(ctx context.Context, recipe Recipe) (Recipe, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Recipe{}, fmt.Errorf("begin create recipe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tags := recipe.Tags
	if tags == nil {
		tags = []string{}
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO recipes (name, author, source, servings, time, tags)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, recipe.Name, recipe.Author, recipe.Source, recipe.Servings, recipe.Time, tags).
		Scan(&recipe.ID, &recipe.CreatedAt, &recipe.UpdatedAt)
	if err != nil {
		return Recipe{}, fmt.Errorf("insert recipe: %w", err)
	}
	recipe.Tags = tags

	for i := range recipe.Ingredients {
		item := &recipe.Ingredients[i]
		item.RecipeID = recipe.ID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO ingredients (recipe_id, quantity, name, description, optional, position)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, item.RecipeID, item.Quantity, item.Name, item.Description, item.Optional, item.Position).Scan(&item.ID); err != nil {
			return Recipe{}, fmt.Errorf("insert ingredient: %w", err)
		}
	}
	for i := range recipe.Sections {
		item := &recipe.Sections[i]
		item.RecipeID = recipe.ID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO sections (recipe_id, title, position) VALUES ($1, $2, $3) RETURNING id
		`, item.RecipeID, item.Title, item.Position).Scan(&item.ID); err != nil {
			return Recipe{}, fmt.Errorf("insert section: %w", err)
		}
	}
	for i := range recipe.Steps {
		item := &recipe.Steps[i]
		item.RecipeID = recipe.ID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO steps (recipe_id, text, position) VALUES ($1, $2, $3) RETURNING id
		`, item.RecipeID, item.Text, item.Position).Scan(&item.ID); err != nil {
			return Recipe{}, fmt.Errorf("insert step: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Recipe{}, fmt.Errorf("commit create recipe: %w", err)
	}
	return recipe, nil
}

func (s *PostgresStore) DeleteRecipe(ctx context.Context, recipeID int64) error {
	return s.deleteRow(ctx, "recipes", recipeID)
}

func (s *PostgresStore) deleteRow(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// touchRecipe bumps updated_at so cached copies and exports see the change.
func (s *PostgresStore) touchRecipe(ctx context.Context, recipeID int64) {
	_, _ = s.db.ExecContext(ctx, `UPDATE recipes SET updated_at=NOW() WHERE id=$1`, recipeID)
}

// LastPosition returns the largest position among the given tables for a
// recipe, or "" when they are empty.
func (s *PostgresStore) LastPosition(ctx context.Context, recipeID int64, tables ...Table) (string, error) {
	var last sql.NullString
	for _, table := range tables {
		if !table.valid() {
			return "", fmt.Errorf("unknown table %q", table)
		}
		var candidate sql.NullString
		if err := s.db.QueryRowContext(ctx,
			`SELECT max(position) FROM `+string(table)+` WHERE recipe_id=$1`, recipeID).Scan(&candidate); err != nil {
			return "", fmt.Errorf("last position in %s: %w", table, err)
		}
		if candidate.Valid && (!last.Valid || candidate.String > last.String) {
			last = candidate
		}
	}
	return last.String, nil
}

func (s *PostgresStore) CreateIngredient(ctx context.Context, item Ingredient) (Ingredient, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ingredients (recipe_id, quantity, name, description, optional, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, item.RecipeID, item.Quantity, item.Name, item.Description, item.Optional, item.Position).Scan(&item.ID)
	if err != nil {
		return Ingredient{}, missingParent(err, "recipe", item.RecipeID)
	}
	s.touchRecipe(ctx, item.RecipeID)
	return item, nil
}

func (s *PostgresStore) UpdateIngredient(ctx context.Context, id int64, patch IngredientPatch) (Ingredient, error) {
	var item Ingredient
	err := s.db.QueryRowContext(ctx, `
		UPDATE ingredients SET
			quantity = COALESCE($2, quantity),
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			optional = COALESCE($5, optional),
			position = COALESCE($6, position)
		WHERE id=$1
		RETURNING id, recipe_id, quantity, name, description, optional, position
	`, id, patch.Quantity, patch.Name, patch.Description, patch.Optional, patch.Position).
		Scan(&item.ID, &item.RecipeID, &item.Quantity, &item.Name, &item.Description, &item.Optional, &item.Position)
	if err != nil {
		return Ingredient{}, err
	}
	s.touchRecipe(ctx, item.RecipeID)
	return item, nil
}

func (s *PostgresStore) DeleteIngredient(ctx context.Context, id int64) (int64, error) {
	return s.deleteChild(ctx, TableIngredients, id)
}

func (s *PostgresStore) CreateSection(ctx context.Context, item Section) (Section, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sections (recipe_id, title, position) VALUES ($1, $2, $3) RETURNING id
	`, item.RecipeID, item.Title, item.Position).Scan(&item.ID)
	if err != nil {
		return Section{}, missingParent(err, "recipe", item.RecipeID)
	}
	s.touchRecipe(ctx, item.RecipeID)
	return item, nil
}

func (s *PostgresStore) UpdateSection(ctx context.Context, id int64, patch SectionPatch) (Section, error) {
	var item Section
	err := s.db.QueryRowContext(ctx, `
		UPDATE sections SET
			title = COALESCE($2, title),
			position = COALESCE($3, position)
		WHERE id=$1
		RETURNING id, recipe_id, title, position
	`, id, patch.Title, patch.Position).Scan(&item.ID, &item.RecipeID, &item.Title, &item.Position)
	if err != nil {
		return Section{}, err
	}
	s.touchRecipe(ctx, item.RecipeID)
	return item, nil
}

func (s *PostgresStore) DeleteSection(ctx context.Context, id int64) (int64, error) {
	return s.deleteChild(ctx, TableSections, id)
}

func (s *PostgresStore) CreateStep(ctx context.Context, item Step) (Step, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO steps (recipe_id, text, position) VALUES ($1, $2, $3) RETURNING id
	`, item.RecipeID, item.Text, item.Position).Scan(&item.ID)
	if err != nil {
		return Step{}, missingParent(err, "recipe", item.RecipeID)
	}
	s.touchRecipe(ctx, item.RecipeID)
	return item, nil
}

func (s *PostgresStore) UpdateStep(ctx context.Context, id int64, patch StepPatch) (Step, error) {
	var item Step
	err := s.db.QueryRowContext(ctx, `
		UPDATE steps SET
			text = COALESCE($2, text),
			position = COALESCE($3, position)
		WHERE id=$1
		RETURNING id, recipe_id, text, position
	`, id, patch.Text, patch.Position).Scan(&item.ID, &item.RecipeID, &item.Text, &item.Position)
	if err != nil {
		return Step{}, err
	}
	s.touchRecipe(ctx, item.RecipeID)
	return item, nil
}

func (s *PostgresStore) DeleteStep(ctx context.Context, id int64) (int64, error) {
	return s.deleteChild(ctx, TableSteps, id)
}

// deleteChild removes a row and returns the recipe it belonged to.
func (s *PostgresStore) deleteChild(ctx context.Context, table Table, id int64) (int64, error) {
	var recipeID int64
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM `+string(table)+` WHERE id=$1 RETURNING recipe_id`, id).Scan(&recipeID)
	if err != nil {
		return 0, err
	}
	s.touchRecipe(ctx, recipeID)
	return recipeID, nil
}

// SetPositions applies every update or none of them.
func (s *PostgresStore) SetPositions(ctx context.Context, recipeID int64, updates []PositionUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set positions: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range updates {
		if !u.Table.valid() {
			return fmt.Errorf("unknown table %q", u.Table)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE `+string(u.Table)+` SET position=$3 WHERE id=$1 AND recipe_id=$2`, u.ID, recipeID, u.Position)
		if err != nil {
			return fmt.Errorf("set %s %d position: %w", u.Table, u.ID, err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("set %s %d position: %w", u.Table, u.ID, err)
		} else if affected == 0 {
			return fmt.Errorf("%s %d: %w", u.Table, u.ID, sql.ErrNoRows)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE recipes SET updated_at=NOW() WHERE id=$1`, recipeID); err != nil {
		return fmt.Errorf("touch recipe: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set positions: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListScheduledRecipes(ctx context.Context, start, end time.Time) ([]ScheduledRecipe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sr.id, sr.recipe_id, r.name, r.time, sr.on_date, sr.count, sr.created_at
		FROM scheduled_recipes sr
		JOIN recipes r ON r.id = sr.recipe_id
		WHERE sr.on_date BETWEEN $1 AND $2
		ORDER BY sr.on_date, r.name, sr.id
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list scheduled recipes: %w", err)
	}
	defer rows.Close()

	items := make([]ScheduledRecipe, 0)
	for rows.Next() {
		var sr ScheduledRecipe
		if err := rows.Scan(&sr.ID, &sr.RecipeID, &sr.RecipeName, &sr.RecipeTime, &sr.On, &sr.Count, &sr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scheduled recipe: %w", err)
		}
		items = append(items, sr)
	}
	return items, rows.Err()
}

// ScheduleRecipe adds count to an existing entry for the recipe on that day,
// or creates one.
func (s *PostgresStore) ScheduleRecipe(ctx context.Context, recipeID int64, on time.Time, count int) (ScheduledRecipe, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ScheduledRecipe{}, fmt.Errorf("begin schedule recipe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		UPDATE scheduled_recipes SET count = count + $3
		WHERE id = (
			SELECT id FROM scheduled_recipes
			WHERE recipe_id=$1 AND on_date=$2
			ORDER BY id LIMIT 1
		)
		RETURNING id
	`, recipeID, on, count).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO scheduled_recipes (recipe_id, on_date, count) VALUES ($1, $2, $3) RETURNING id
		`, recipeID, on, count).Scan(&id)
	}
	if err != nil {
		return ScheduledRecipe{}, missingParent(err, "recipe", recipeID)
	}
	if err := tx.Commit(); err != nil {
		return ScheduledRecipe{}, fmt.Errorf("commit schedule recipe: %w", err)
	}
	return s.GetScheduledRecipe(ctx, id)
}

func (s *PostgresStore) GetScheduledRecipe(ctx context.Context, id int64) (ScheduledRecipe, error) {
	var sr ScheduledRecipe
	err := s.db.QueryRowContext(ctx, `
		SELECT sr.id, sr.recipe_id, r.name, r.time, sr.on_date, sr.count, sr.created_at
		FROM scheduled_recipes sr
		JOIN recipes r ON r.id = sr.recipe_id
		WHERE sr.id=$1
	`, id).Scan(&sr.ID, &sr.RecipeID, &sr.RecipeName, &sr.RecipeTime, &sr.On, &sr.Count, &sr.CreatedAt)
	if err != nil {
		return ScheduledRecipe{}, err
	}
	return sr, nil
}

func (s *PostgresStore) UpdateScheduledRecipe(ctx context.Context, id int64, patch ScheduledRecipePatch) (ScheduledRecipe, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_recipes SET
			on_date = COALESCE($2, on_date),
			count = COALESCE($3, count)
		WHERE id=$1
	`, id, patch.On, patch.Count)
	if err != nil {
		return ScheduledRecipe{}, fmt.Errorf("update scheduled recipe: %w", err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return ScheduledRecipe{}, fmt.Errorf("update scheduled recipe: %w", err)
	} else if affected == 0 {
		return ScheduledRecipe{}, sql.ErrNoRows
	}
	return s.GetScheduledRecipe(ctx, id)
}

func (s *PostgresStore) DeleteScheduledRecipe(ctx context.Context, id int64) error {
	return s.deleteRow(ctx, "scheduled_recipes", id)
}

func (s *PostgresStore) InsertShoppingList(ctx context.Context, list ShoppingList) (ShoppingList, error) {
	items := list.Items
	if len(items) == 0 {
		items = json.RawMessage("[]")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO shopping_lists (start_date, end_date, items)
		VALUES ($1, $2, $3::jsonb)
		RETURNING id, created_at
	`, list.Start, list.End, string(items)).Scan(&list.ID, &list.CreatedAt)
	if err != nil {
		return ShoppingList{}, fmt.Errorf("insert shopping list: %w", err)
	}
	list.Items = items
	return list, nil
}

func (s *PostgresStore) InsertUpload(ctx context.Context, upload Upload) (Upload, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO uploads (id, recipe_id, bucket, object_key, content_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, upload.ID, upload.RecipeID, upload.Bucket, upload.Key, upload.ContentType).Scan(&upload.CreatedAt)
	if err != nil {
		return Upload{}, missingParent(err, "recipe", upload.RecipeID)
	}
	return upload, nil
}
