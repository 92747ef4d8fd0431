package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/keisoku/internal/model"
)

// defaultWindow is the analytics window when the caller omits startMs.
const defaultWindow = 7 * 24 * time.Hour

// RowSource is the read port onto the telemetry row store. QueryRange
// returns every row in the inclusive millisecond range, unbounded —
// analytics recomputes from raw rows on every call.
type RowSource interface {
	QueryEntriesRange(ctx context.Context, orgID uuid.UUID, startMs, endMs int64) ([]model.TelemetryRecord, error)
}

// ProjectResolver maps task ids to project labels. Tasks absent from the
// returned map are treated as unassigned.
type ProjectResolver interface {
	ResolveProjects(ctx context.Context, orgID uuid.UUID, taskIDs []string) (map[string]string, error)
}

// Query holds the analytics query inputs. Nil StartMs/EndMs and empty
// Granularity/CategoryType take their documented defaults.
type Query struct {
	StartMs      *int64
	EndMs        *int64
	Granularity  model.Granularity
	CategoryType model.CategoryType
}

// Service orchestrates the row source, the project resolver, the
// aggregators, and the anomaly detector. It holds no state across calls.
type Service struct {
	rows     RowSource
	resolver ProjectResolver
	logger   *slog.Logger
	now      func() time.Time // injectable for tests
}

// New creates an analytics service.
func New(rows RowSource, resolver ProjectResolver, logger *slog.Logger) *Service {
	return &Service{rows: rows, resolver: resolver, logger: logger, now: time.Now}
}

// Report runs a full analytics query: totals, period series, project and
// category breakdowns.
func (s *Service) Report(ctx context.Context, ident *model.Identity, q Query) (*model.AnalyticsReport, error) {
	if ident == nil {
		return nil, model.ErrUnauthenticated
	}
	startMs, endMs, granularity, categoryType, err := s.resolveQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.rows.QueryEntriesRange(ctx, ident.OrgID, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("analytics: query range: %w", err)
	}

	// The project lookup is the only remaining I/O; overlap it with the
	// pure aggregations that don't need it.
	var (
		projects   map[string]string
		period     []model.PeriodBucket
		categories []model.CategoryBucket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var rerr error
		projects, rerr = s.resolveTaskProjects(gctx, ident.OrgID, rows)
		return rerr
	})
	g.Go(func() error {
		period = AggregatePeriod(rows, granularity, startMs, endMs)
		categories = AggregateByCategory(rows, categoryType)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	projectBuckets := AggregateByProject(rows, projects)

	report := &model.AnalyticsReport{
		StartMs:      startMs,
		EndMs:        endMs,
		Granularity:  granularity,
		CategoryType: categoryType,
		Period:       period,
		Projects:     projectBuckets,
		Categories:   categories,
	}
	for _, row := range rows {
		report.Totals.Entries++
		report.Totals.InputTokens += row.InputTokens
		report.Totals.OutputTokens += row.OutputTokens
		report.Totals.CostUSD += row.EstimatedCostUSD
	}
	report.Totals.UniqueProjects = len(projectBuckets)

	return report, nil
}

// Anomalies runs the three aggregators for the window and classifies their
// output. Anomalies are recomputed from raw rows on every call; nothing is
// persisted.
func (s *Service) Anomalies(ctx context.Context, ident *model.Identity, q Query) (*model.AnomalyReport, error) {
	if ident == nil {
		return nil, model.ErrUnauthenticated
	}
	startMs, endMs, granularity, categoryType, err := s.resolveQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.rows.QueryEntriesRange(ctx, ident.OrgID, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("analytics: query range: %w", err)
	}

	var (
		projects   map[string]string
		period     []model.PeriodBucket
		categories []model.CategoryBucket
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var rerr error
		projects, rerr = s.resolveTaskProjects(gctx, ident.OrgID, rows)
		return rerr
	})
	g.Go(func() error {
		period = AggregatePeriod(rows, granularity, startMs, endMs)
		categories = AggregateByCategory(rows, categoryType)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &model.AnomalyReport{
		StartMs:      startMs,
		EndMs:        endMs,
		Granularity:  granularity,
		CategoryType: categoryType,
		Anomalies:    DetectAnomalies(period, AggregateByProject(rows, projects), categories, categoryType),
	}, nil
}

// resolveQuery applies defaults and validates the window.
func (s *Service) resolveQuery(q Query) (startMs, endMs int64, g model.Granularity, ct model.CategoryType, err error) {
	endMs = s.now().UTC().UnixMilli()
	if q.EndMs != nil {
		endMs = *q.EndMs
	}
	startMs = endMs - defaultWindow.Milliseconds()
	if q.StartMs != nil {
		startMs = *q.StartMs
	}
	if startMs > endMs {
		return 0, 0, "", "", model.ValidationError("startMs must be <= endMs")
	}

	g = q.Granularity
	if g == "" {
		g = model.GranularityDay
	}
	if g.SizeMs() == 0 {
		return 0, 0, "", "", model.ValidationError("granularity must be one of: hour, day, week")
	}

	ct = q.CategoryType
	if ct == "" {
		ct = model.CategoryAgent
	}
	if ct != model.CategoryAgent && ct != model.CategoryModel {
		return 0, 0, "", "", model.ValidationError("categoryType must be one of: agent, model")
	}

	return startMs, endMs, g, ct, nil
}

// resolveTaskProjects looks up project labels for the distinct task ids in
// rows. Resolver failures propagate unchanged.
func (s *Service) resolveTaskProjects(ctx context.Context, orgID uuid.UUID, rows []model.TelemetryRecord) (map[string]string, error) {
	seen := make(map[string]bool, len(rows))
	var taskIDs []string
	for _, row := range rows {
		if row.TaskID == "" || seen[row.TaskID] {
			continue
		}
		seen[row.TaskID] = true
		taskIDs = append(taskIDs, row.TaskID)
	}
	if len(taskIDs) == 0 {
		return map[string]string{}, nil
	}

	projects, err := s.resolver.ResolveProjects(ctx, orgID, taskIDs)
	if err != nil {
		return nil, fmt.Errorf("analytics: resolve projects: %w", err)
	}
	return projects, nil
}

