package search

import (
	"context"

	"go.uber.org/zap"
)

// Service tries Meilisearch first and falls back to Postgres FTS.
type Service struct {
	meili  *Meili
	pgfts  Searcher
	logger *zap.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts Searcher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{meili: meili, pgfts: pgfts, logger: logger}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "meilisearch"}
		}
		s.logger.Warn("meilisearch failed, falling back to postgres", zap.Error(err))
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		s.logger.Error("postgres search failed", zap.String("query", q.Text), zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Engine: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: "postgres"}
}

// IndexRecipe pushes a recipe to Meilisearch in the background.
func (s *Service) IndexRecipe(r RecipeRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexRecipes([]RecipeRecord{r}); err != nil {
			s.logger.Warn("index recipe", zap.Int64("recipe", r.ID), zap.Error(err))
		}
	}()
}

// DeleteRecipe removes a recipe from the index in the background.
func (s *Service) DeleteRecipe(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteRecipe(id); err != nil {
			s.logger.Warn("delete recipe from index", zap.Int64("recipe", id), zap.Error(err))
		}
	}()
}

// ReindexAllFromPG pushes every recipe from Postgres into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	loader, ok := s.pgfts.(*PgFTS)
	if s.meili == nil || !s.meili.Healthy() || !ok {
		return
	}
	records, err := loader.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.meili.IndexRecipes(records); err != nil {
		s.logger.Warn("reindex recipes", zap.Int("recipes", len(records)), zap.Error(err))
		return
	}
	s.logger.Info("reindexed recipes", zap.Int("recipes", len(records)))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
