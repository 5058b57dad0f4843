package search

import (
	"context"
	"log/slog"
	"sync"
)

const (
	BackendMeili    = "meilisearch"
	BackendPostgres = "postgres"
)

// Service tries Meilisearch first and falls back to PostgreSQL.
type Service struct {
	meili  *Meili
	pg     *PgLike
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewService creates a search service. meili may be nil when Meilisearch
// is not configured.
func NewService(meili *Meili, pg *PgLike, logger *slog.Logger) *Service {
	return &Service{meili: meili, pg: pg, logger: logger}
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendMeili}, nil
		}
		s.logger.WarnContext(ctx, "meilisearch error, falling back to postgres", "error", err)
	}

	results, total, err := s.pg.Search(ctx, q)
	if err != nil {
		return Response{}, err
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: BackendPostgres}, nil
}

// IndexMessages pushes records to Meilisearch in the background.
func (s *Service) IndexMessages(records ...MessageRecord) {
	if !s.meiliReady() || len(records) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.meili.IndexMessages(records); err != nil {
			s.logger.Warn("index messages", "count", len(records), "error", err)
		}
	}()
}

// RemoveMessages drops ids from Meilisearch in the background.
func (s *Service) RemoveMessages(ids ...string) {
	if !s.meiliReady() || len(ids) == 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.meili.DeleteMessages(ids); err != nil {
			s.logger.Warn("remove messages from index", "count", len(ids), "error", err)
		}
	}()
}

// ReindexAllFromPG loads every live message and indexes it. Called at
// bootstrap when Meilisearch is reachable.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.meiliReady() || s.pg == nil {
		return
	}
	records, err := s.pg.LoadAllRecords(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "reindex load failed", "error", err)
		return
	}
	if err := s.meili.IndexMessages(records); err != nil {
		s.logger.WarnContext(ctx, "reindex messages", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "reindexed messages", "count", len(records))
}

// Close waits for pending index writes and stops the health monitor.
func (s *Service) Close() {
	s.wg.Wait()
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
