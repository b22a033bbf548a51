// Package retention purges operational rows that have outlived their
// configured retention window. Leave requests and profiles are never purged.
package retention

import (
	"context"
	"fmt"
	"sort"
	"time"

	"leaveflow/internal/platform/db"
)

const (
	CategoryNotifications = "notifications"
	CategoryAudit         = "audit"
	CategoryJobRuns       = "job_runs"
	CategoryIdempotency   = "idempotency_keys"
)

// Policy maps a category to how long its rows are kept. Zero or missing
// means keep forever.
type Policy map[string]time.Duration

type Service struct {
	DB     db.Querier
	Policy Policy
	Now    func() time.Time
}

func New(q db.Querier, policy Policy) *Service {
	return &Service{DB: q, Policy: policy, Now: time.Now}
}

// Run applies every configured window and reports deleted rows per category.
func (s *Service) Run(ctx context.Context) (map[string]int64, error) {
	categories := make([]string, 0, len(s.Policy))
	for category, keep := range s.Policy {
		if keep > 0 {
			categories = append(categories, category)
		}
	}
	sort.Strings(categories)

	now := s.Now().UTC()
	result := map[string]int64{}
	for _, category := range categories {
		deleted, err := Apply(ctx, s.DB, category, now.Add(-s.Policy[category]))
		result[category] = deleted
		if err != nil {
			return result, fmt.Errorf("retention %s: %w", category, err)
		}
	}
	return result, nil
}

// Apply deletes rows of category older than cutoff. Unread notifications are
// kept regardless of age.
func Apply(ctx context.Context, q db.Querier, category string, cutoff time.Time) (int64, error) {
	var query string
	switch category {
	case CategoryNotifications:
		query = "DELETE FROM notifications WHERE read_at IS NOT NULL AND created_at < $1"
	case CategoryAudit:
		query = "DELETE FROM audit_events WHERE created_at < $1"
	case CategoryJobRuns:
		query = "DELETE FROM job_runs WHERE completed_at IS NOT NULL AND started_at < $1"
	case CategoryIdempotency:
		query = "DELETE FROM idempotency_keys WHERE created_at < $1"
	default:
		return 0, fmt.Errorf("unknown retention category %q", category)
	}
	tag, err := q.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
