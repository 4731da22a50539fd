// Package report runs the failed reviews report against a collection
// snapshot and caches the results per window.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/failedreviews/internal/decktree"
	"github.com/conorfennell/failedreviews/internal/domain"
	"github.com/conorfennell/failedreviews/internal/failures"
	"github.com/conorfennell/failedreviews/internal/storage"
)

// Source provides consistent snapshots of a collection. Version must change
// whenever a new snapshot could differ from the previous one.
type Source interface {
	Snapshot(ctx context.Context) (*storage.Snapshot, error)
	Version(ctx context.Context) (string, error)
}

// Report is the result of one run.
type Report struct {
	Days        int                `json:"days"`
	Pass        string             `json:"pass_rule"`
	Anchor      int64              `json:"anchor"`
	Cutoff      int64              `json:"cutoff"`
	Reviewed    bool               `json:"has_reviews"`
	Rows        []domain.ReportRow `json:"rows"`
	Fingerprint string             `json:"fingerprint"`
}

// HasReviews reports whether the log held any review to anchor the window on.
func (r *Report) HasReviews() bool {
	return r.Reviewed
}

// LatestReview is the time of the review the window is anchored on.
func (r *Report) LatestReview() time.Time {
	return time.UnixMilli(r.Anchor).UTC()
}

// Service ties a collection to the aggregator.
type Service struct {
	source     Source
	aggregator *failures.Aggregator
	cache      *Cache
	logger     *slog.Logger
}

// NewService creates a report service. A nil cache disables caching.
func NewService(source Source, aggregator *failures.Aggregator, cache *Cache, logger *slog.Logger) *Service {
	if aggregator == nil {
		aggregator = &failures.Aggregator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:     source,
		aggregator: aggregator,
		cache:      cache,
		logger:     logger,
	}
}

// Run computes the report for the trailing window of days. Cached reports
// are reused only while the collection version is unchanged.
func (s *Service) Run(ctx context.Context, days int) (*Report, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: got %d", failures.ErrInvalidWindow, days)
	}

	var cacheKey string
	if s.cache != nil {
		version, err := s.source.Version(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read collection version: %w", err)
		}
		cacheKey = fmt.Sprintf("report:%s:%d:%s", version, days, s.aggregator.Pass)
		if cached, ok := s.cache.Get(cacheKey); ok {
			if rep, ok := cached.(*Report); ok {
				s.logger.Debug("Serving cached report", "days", days)
				return rep, nil
			}
		}
	}

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot collection: %w", err)
	}

	decks := decktree.Flatten(snap.Decks)
	res, err := s.aggregator.Compute(snap.Events, snap.Assignments, decks, days)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Days:     days,
		Pass:     s.aggregator.Pass.String(),
		Anchor:   res.Anchor,
		Cutoff:   res.Cutoff,
		Reviewed: res.HasReviews,
		Rows:     res.Rows,
	}
	rep.Fingerprint = Fingerprint(rep)

	s.logger.Info("Report computed",
		"days", days,
		"decks", len(decks),
		"events", len(snap.Events),
		"rows", len(res.Rows),
	)

	if s.cache != nil {
		s.cache.Set(cacheKey, rep)
	}
	return rep, nil
}
