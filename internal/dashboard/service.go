// Package dashboard computes the admin overview of reports and users.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/reports"
	"github.com/sitdb/sitdb/internal/shared"
)

// RecentLimit is the number of newest reports included in Stats.
const RecentLimit = 10

// Stats is the admin dashboard payload.
type Stats struct {
	TotalReports      int               `json:"totalReports"`
	PendingReports    int               `json:"pendingReports"`
	InProgressReports int               `json:"inProgressReports"`
	ResolvedReports   int               `json:"resolvedReports"`
	TotalUsers        int               `json:"totalUsers"`
	TotalRelawan      int               `json:"totalRelawan"`
	ReportsByStatus   map[string]int    `json:"reportsByStatus"`
	ReportsByType     map[string]int    `json:"reportsByType"`
	ReportsBySeverity map[string]int    `json:"reportsBySeverity"`
	Labels            map[string]string `json:"labels"`
	RecentReports     []reports.Report  `json:"recentReports"`
	GeneratedAt       time.Time         `json:"generatedAt"`
}

// Repository provides the aggregate queries.
type Repository interface {
	// CountBy groups disaster_reports by one of status, type or severity.
	CountBy(ctx context.Context, column string) (map[string]int, error)
	UserCounts(ctx context.Context) (total, relawan int, err error)
}

// RecentLister returns report pages; reports.Repository satisfies it.
type RecentLister interface {
	List(ctx context.Context, filter reports.ListFilter) ([]reports.Report, int, error)
}

// Service builds dashboard stats behind a versioned cache.
type Service struct {
	repo   Repository
	recent RecentLister
	cache  *Cache
	authz  rbac.Authorizer
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewService wires the repository with the cache helper.
func NewService(repo Repository, recent RecentLister, cache *Cache, authz rbac.Authorizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recent: recent, cache: cache, authz: authz, logger: logger, now: time.Now}
}

// Stats returns the dashboard for an admin. Concurrent cache misses share a
// single computation.
func (s *Service) Stats(ctx context.Context, actor shared.Principal) (*Stats, error) {
	if err := s.authz.Authorize(ctx, rbac.ActionStatsRead, actor, ""); err != nil {
		return nil, err
	}

	key, err := s.cache.BuildKey(ctx, "sitdb", "stats")
	if err != nil {
		s.logger.Warn("stats cache unavailable", slog.Any("error", err))
		return s.load(ctx)
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		var stats Stats
		err := s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (any, error) {
			return s.load(ctx)
		})
		return &stats, err
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return v.(*Stats), nil
}

func (s *Service) load(ctx context.Context) (*Stats, error) {
	stats := &Stats{GeneratedAt: s.now().UTC()}
	var byStatus, byType, bySeverity map[string]int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		byStatus, err = s.repo.CountBy(gctx, "status")
		return err
	})
	g.Go(func() (err error) {
		byType, err = s.repo.CountBy(gctx, "type")
		return err
	})
	g.Go(func() (err error) {
		bySeverity, err = s.repo.CountBy(gctx, "severity")
		return err
	})
	g.Go(func() (err error) {
		stats.TotalUsers, stats.TotalRelawan, err = s.repo.UserCounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		filter := reports.ListFilter{SortBy: reports.SortCreatedAt, SortOrder: "desc"}
		filter.Page, filter.Limit = 1, RecentLimit
		stats.RecentReports, _, err = s.recent.List(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.Labels = make(map[string]string)
	stats.ReportsByStatus = fill(byStatus, reports.Statuses, stats.Labels)
	stats.ReportsByType = fill(byType, reports.Types, stats.Labels)
	stats.ReportsBySeverity = fill(bySeverity, reports.Severities, stats.Labels)
	for _, n := range stats.ReportsByStatus {
		stats.TotalReports += n
	}
	stats.PendingReports = stats.ReportsByStatus[string(reports.StatusPending)]
	stats.InProgressReports = stats.ReportsByStatus[string(reports.StatusInProgress)]
	stats.ResolvedReports = stats.ReportsByStatus[string(reports.StatusResolved)]
	if stats.RecentReports == nil {
		stats.RecentReports = []reports.Report{}
	}
	return stats, nil
}

// fill zero-fills every enum key and records its display label.
func fill[T ~string](counts map[string]int, keys []T, labels map[string]string) map[string]int {
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[string(k)] = counts[string(k)]
		labels[string(k)] = Label(string(k))
	}
	return out
}
