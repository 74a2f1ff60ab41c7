package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sitdb/sitdb/internal/mirror"
	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/rbac"
	"github.com/sitdb/sitdb/internal/realtime"
	"github.com/sitdb/sitdb/internal/shared"
)

// MarkerLimit caps the number of map markers returned.
const MarkerLimit = 500

const entityReport = "DisasterReport"

var (
	errReportNotFound = httpx.NewError(httpx.ErrNotFound, "Laporan tidak ditemukan")
	errMediaNotFound  = httpx.NewError(httpx.ErrNotFound, "Media tidak ditemukan")
)

// MirrorEnqueuer schedules the mirror sync of one outbox row.
type MirrorEnqueuer interface {
	EnqueueMirrorSync(ctx context.Context, outboxID int64) error
}

// StatsInvalidator drops cached dashboard stats.
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ChangeNotifier wakes realtime subscribers after a change-log append.
type ChangeNotifier interface {
	Notify(ctx context.Context, seq int64) error
}

// Options configures optional behaviour and after-commit collaborators.
// Nil collaborators are skipped.
type Options struct {
	StrictTransitions bool
	Mirror            MirrorEnqueuer
	Stats             StatsInvalidator
	Changes           ChangeNotifier
}

// Service implements the report lifecycle.
type Service struct {
	store     Store
	authz     rbac.Authorizer
	validator *shared.Validator
	logger    *slog.Logger
	opts      Options
}

// NewService builds Service and registers the report validation tags on
// validator.
func NewService(store Store, authz rbac.Authorizer, validator *shared.Validator, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	RegisterValidators(validator)
	return &Service{store: store, authz: authz, validator: validator, logger: logger, opts: opts}
}

// StatusResult is returned by UpdateStatus.
type StatusResult struct {
	Report      *Report      `json:"report"`
	StatusEntry *StatusEntry `json:"statusEntry"`
}

// committed carries what a transaction appended so the after-commit hooks
// can fan it out.
type committed struct {
	seq      int64
	outboxID int64
}

// Create stores a new PENDING report owned by actor.
func (s *Service) Create(ctx context.Context, actor shared.Principal, in CreateInput, meta shared.RequestMeta) (*Report, error) {
	if err := s.authz.Authorize(ctx, rbac.ActionReportCreate, actor, ""); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}

	var (
		report *Report
		done   committed
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		report, err = tx.Insert(ctx, Report{
			UserID:      actor.ID,
			Type:        in.Type,
			Title:       in.Title,
			Description: in.Description,
			Latitude:    *in.Latitude,
			Longitude:   *in.Longitude,
			Address:     in.Address,
			Severity:    in.Severity,
			Status:      StatusPending,
		})
		if err != nil {
			return err
		}
		entry, err := tx.AppendHistory(ctx, StatusEntry{
			ReportID: report.ID,
			UserID:   actor.ID,
			Status:   StatusPending,
			Notes:    ptr("Laporan baru dibuat"),
		})
		if err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			Action:   shared.AuditReportCreated,
			Entity:   entityReport,
			EntityID: report.ID,
			ActorID:  actor.ID,
			Changes:  map[string]any{"type": report.Type, "title": report.Title, "severity": report.Severity},
			Meta:     meta,
		}); err != nil {
			return err
		}
		if _, err = tx.AppendEvent(ctx, realtime.EventNewReport, report.ID, report); err != nil {
			return err
		}
		// The initial history entry is a status entry like any other.
		initial := mirror.StatusChange{
			ReportID:      report.ID,
			OwnerID:       report.UserID,
			Title:         report.Title,
			Status:        string(StatusPending),
			Notes:         entry.Notes,
			UpdatedBy:     actor.ID,
			UpdatedByName: displayName(actor),
			UpdatedAt:     entry.CreatedAt,
		}
		if done.seq, err = tx.AppendEvent(ctx, realtime.EventStatusUpdate, report.ID, initial); err != nil {
			return err
		}
		done.outboxID, err = tx.EnqueueMirror(ctx, mirror.OpUpsertReport, report.ID, mirrorDoc(*report))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	s.logger.Info("report created", slog.String("report_id", report.ID), slog.String("user_id", actor.ID),
		slog.String("type", string(report.Type)))
	s.afterCommit(ctx, done)
	return report, nil
}

// Update patches report fields. Only the owner or an admin may do so.
func (s *Service) Update(ctx context.Context, actor shared.Principal, id string, in UpdateInput, meta shared.RequestMeta) (*Report, error) {
	if actor.ID == "" {
		return nil, shared.ErrUnauthenticated
	}

	var (
		report *Report
		done   committed
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(ctx, rbac.ActionReportUpdate, actor, existing.UserID); err != nil {
			return err
		}
		if err := s.validator.Struct(in); err != nil {
			return err
		}
		if in.Empty() {
			report = existing
			return nil
		}
		if report, err = tx.Update(ctx, id, in); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			Action:   shared.AuditReportUpdated,
			Entity:   entityReport,
			EntityID: id,
			ActorID:  actor.ID,
			Changes:  in,
			Meta:     meta,
		}); err != nil {
			return err
		}
		done.outboxID, err = tx.EnqueueMirror(ctx, mirror.OpUpsertReport, id, mirrorDoc(*report))
		return err
	})
	if err != nil {
		return nil, mapNotFound(err, errReportNotFound)
	}
	s.afterCommit(ctx, done)
	return report, nil
}

// Delete hard-deletes a report together with its history and media.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, id string, meta shared.RequestMeta) error {
	if err := s.authz.Authorize(ctx, rbac.ActionReportDelete, actor, ""); err != nil {
		return err
	}

	var done committed
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			Action:   shared.AuditReportDeleted,
			Entity:   entityReport,
			EntityID: id,
			ActorID:  actor.ID,
			Changes:  map[string]any{"deletedReport": existing.snapshot()},
			Meta:     meta,
		}); err != nil {
			return err
		}
		deleted := mirror.Deletion{ReportID: id}
		if done.seq, err = tx.AppendEvent(ctx, realtime.EventReportDeleted, id, deleted); err != nil {
			return err
		}
		done.outboxID, err = tx.EnqueueMirror(ctx, mirror.OpDeleteReport, id, deleted)
		return err
	})
	if err != nil {
		return mapNotFound(err, errReportNotFound)
	}
	s.logger.Info("report deleted", slog.String("report_id", id), slog.String("actor_id", actor.ID))
	s.afterCommit(ctx, done)
	return nil
}

// UpdateStatus moves a report along its lifecycle and appends the history
// entry, audit row, change event and mirror outbox row atomically.
func (s *Service) UpdateStatus(ctx context.Context, actor shared.Principal, id string, in StatusInput, meta shared.RequestMeta) (*StatusResult, error) {
	if err := s.authz.Authorize(ctx, rbac.ActionReportStatus, actor, ""); err != nil {
		return nil, err
	}

	var (
		result StatusResult
		done   committed
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.validator.Struct(in); err != nil {
			return err
		}
		if err := checkTransition(existing.Status, in.Status, s.opts.StrictTransitions); err != nil {
			return err
		}
		if result.Report, err = tx.SetStatus(ctx, id, in.Status); err != nil {
			return err
		}
		if result.StatusEntry, err = tx.AppendHistory(ctx, StatusEntry{
			ReportID: id,
			UserID:   actor.ID,
			Status:   in.Status,
			Notes:    in.Notes,
		}); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			Action:   shared.AuditReportStatusUpdated,
			Entity:   entityReport,
			EntityID: id,
			ActorID:  actor.ID,
			Changes:  map[string]any{"previousStatus": existing.Status, "newStatus": in.Status, "notes": in.Notes},
			Meta:     meta,
		}); err != nil {
			return err
		}
		change := mirror.StatusChange{
			ReportID:       id,
			OwnerID:        existing.UserID,
			Title:          existing.Title,
			PreviousStatus: string(existing.Status),
			Status:         string(in.Status),
			Notes:          in.Notes,
			UpdatedBy:      actor.ID,
			UpdatedByName:  displayName(actor),
			UpdatedAt:      result.Report.UpdatedAt,
		}
		if done.seq, err = tx.AppendEvent(ctx, realtime.EventStatusUpdate, id, change); err != nil {
			return err
		}
		done.outboxID, err = tx.EnqueueMirror(ctx, mirror.OpUpdateStatus, id, change)
		return err
	})
	if err != nil {
		return nil, mapNotFound(err, errReportNotFound)
	}

	s.logger.Info("report status updated", slog.String("report_id", id), slog.String("user_id", actor.ID),
		slog.String("new_status", string(in.Status)))
	s.afterCommit(ctx, done)
	return &result, nil
}

// List returns one page of reports with their owners.
func (s *Service) List(ctx context.Context, actor shared.Principal, filter ListFilter) ([]Report, shared.Pagination, error) {
	filter, err := s.prepareFilter(ctx, actor, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	items, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list reports: %w", err)
	}
	return items, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// Markers returns compact map markers for the filter, capped at MarkerLimit.
func (s *Service) Markers(ctx context.Context, actor shared.Principal, filter ListFilter) ([]Marker, error) {
	filter, err := s.prepareFilter(ctx, actor, filter)
	if err != nil {
		return nil, err
	}
	markers, err := s.store.Markers(ctx, filter, MarkerLimit)
	if err != nil {
		return nil, fmt.Errorf("report markers: %w", err)
	}
	return markers, nil
}

// Get returns the report detail.
func (s *Service) Get(ctx context.Context, actor shared.Principal, id string) (*Detail, error) {
	if err := s.authz.Authorize(ctx, rbac.ActionReportRead, actor, ""); err != nil {
		return nil, err
	}
	detail, err := s.store.Detail(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, errReportNotFound)
	}
	return detail, nil
}

// AddMedia registers an uploaded file against a report.
func (s *Service) AddMedia(ctx context.Context, actor shared.Principal, reportID string, in MediaInput, meta shared.RequestMeta) (*Media, error) {
	if actor.ID == "" {
		return nil, shared.ErrUnauthenticated
	}

	var media *Media
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		report, err := tx.GetForUpdate(ctx, reportID)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(ctx, rbac.ActionMediaCreate, actor, report.UserID); err != nil {
			return err
		}
		if err := s.validator.Struct(in); err != nil {
			return err
		}
		if err := checkMedia(in); err != nil {
			return err
		}
		contentType := in.ContentType
		if media, err = tx.InsertMedia(ctx, Media{
			ReportID:    reportID,
			URL:         in.URL,
			Type:        in.Type,
			Filename:    in.Filename,
			ContentType: &contentType,
			SizeBytes:   in.SizeBytes,
		}); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   shared.AuditMediaAdded,
			Entity:   "Media",
			EntityID: media.ID,
			ActorID:  actor.ID,
			Changes:  map[string]any{"reportId": reportID, "url": media.URL, "type": media.Type},
			Meta:     meta,
		})
	})
	if err != nil {
		return nil, mapNotFound(err, errReportNotFound)
	}
	return media, nil
}

// DeleteMedia removes an attachment. Only the report owner or an admin may
// do so.
func (s *Service) DeleteMedia(ctx context.Context, actor shared.Principal, id string, meta shared.RequestMeta) error {
	if actor.ID == "" {
		return shared.ErrUnauthenticated
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		media, ownerID, err := tx.GetMediaForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.authz.Authorize(ctx, rbac.ActionMediaDelete, actor, ownerID); err != nil {
			return err
		}
		if err := tx.DeleteMedia(ctx, id); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			Action:   shared.AuditMediaDeleted,
			Entity:   "Media",
			EntityID: id,
			ActorID:  actor.ID,
			Changes:  map[string]any{"deletedMedia": media},
			Meta:     meta,
		})
	})
	if err != nil {
		return mapNotFound(err, errMediaNotFound)
	}
	return nil
}

func (s *Service) prepareFilter(ctx context.Context, actor shared.Principal, filter ListFilter) (ListFilter, error) {
	if err := s.authz.Authorize(ctx, rbac.ActionReportRead, actor, ""); err != nil {
		return filter, err
	}
	if err := s.validator.Struct(filter); err != nil {
		return filter, err
	}
	filter.PageRequest = filter.PageRequest.Normalize()
	if filter.SortBy == "" {
		filter.SortBy = SortCreatedAt
	}
	if filter.SortOrder == "" {
		filter.SortOrder = "desc"
	}
	return filter, nil
}

// afterCommit runs the best-effort side effects of a committed mutation.
// Failures are logged and never returned; the outbox sweep and the realtime
// poll ticker recover from them.
func (s *Service) afterCommit(ctx context.Context, done committed) {
	if s.opts.Stats != nil {
		if err := s.opts.Stats.Invalidate(ctx); err != nil {
			s.logger.Warn("invalidate stats cache", slog.Any("error", err))
		}
	}
	if s.opts.Mirror != nil && done.outboxID > 0 {
		if err := s.opts.Mirror.EnqueueMirrorSync(ctx, done.outboxID); err != nil {
			s.logger.Warn("enqueue mirror sync", slog.Int64("outbox_id", done.outboxID), slog.Any("error", err))
		}
	}
	if s.opts.Changes != nil && done.seq > 0 {
		if err := s.opts.Changes.Notify(ctx, done.seq); err != nil {
			s.logger.Warn("notify realtime", slog.Int64("seq", done.seq), slog.Any("error", err))
		}
	}
}

func mapNotFound(err, notFound error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return notFound
	}
	return err
}

func mirrorDoc(r Report) mirror.ReportDoc {
	doc := mirror.ReportDoc{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        string(r.Type),
		Title:       r.Title,
		Description: r.Description,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Address:     r.Address,
		Severity:    string(r.Severity),
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.User != nil {
		doc.UserName = r.User.Name
	}
	return doc
}

func displayName(p shared.Principal) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func ptr[T any](v T) *T { return &v }
