package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sitdb/sitdb/internal/mirror"
	"github.com/sitdb/sitdb/internal/platform/db"
	"github.com/sitdb/sitdb/internal/platform/httpx"
	"github.com/sitdb/sitdb/internal/realtime"
	"github.com/sitdb/sitdb/internal/shared"
)

// Store is the persistence contract used by the service.
type Store interface {
	List(ctx context.Context, filter ListFilter) ([]Report, int, error)
	Markers(ctx context.Context, filter ListFilter, limit int) ([]Marker, error)
	Detail(ctx context.Context, id string) (*Detail, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Insert(ctx context.Context, report Report) (*Report, error)
	GetForUpdate(ctx context.Context, id string) (*Report, error)
	Update(ctx context.Context, id string, in UpdateInput) (*Report, error)
	SetStatus(ctx context.Context, id string, status Status) (*Report, error)
	Delete(ctx context.Context, id string) error
	AppendHistory(ctx context.Context, entry StatusEntry) (*StatusEntry, error)
	InsertMedia(ctx context.Context, media Media) (*Media, error)
	// GetMediaForUpdate returns the media row and the owner of its report.
	GetMediaForUpdate(ctx context.Context, id string) (*Media, string, error)
	DeleteMedia(ctx context.Context, id string) error
	RecordAudit(ctx context.Context, entry shared.AuditLog) error
	AppendEvent(ctx context.Context, typ realtime.EventType, reportID string, payload any) (int64, error)
	EnqueueMirror(ctx context.Context, op mirror.Op, reportID string, payload any) (int64, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool  *pgxpool.Pool
	audit *shared.AuditLogger
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool, audit *shared.AuditLogger) *Repository {
	return &Repository{pool: pool, audit: audit}
}

const selectReport = `SELECT r.id::text, r.user_id::text, r.type, r.title, r.description, r.latitude, r.longitude,
	r.address, r.severity, r.status, r.created_at, r.updated_at, u.id::text, u.name, u.email
	FROM disaster_reports r JOIN users u ON u.id = r.user_id`

const selectMedia = `SELECT m.id::text, m.report_id::text, m.url, m.type, m.filename, m.content_type, m.size_bytes, m.created_at
	FROM media m`

const statusOrder = `array_position(ARRAY['PENDING','VERIFIED','IN_PROGRESS','RESOLVED','REJECTED'], r.status)`

var sortColumns = map[string]string{
	SortCreatedAt: "r.created_at",
	SortSeverity:  "r.severity_rank",
	SortStatus:    statusOrder,
}

func scanReport(row pgx.Row) (*Report, error) {
	var (
		r     Report
		owner Owner
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Type, &r.Title, &r.Description, &r.Latitude, &r.Longitude,
		&r.Address, &r.Severity, &r.Status, &r.CreatedAt, &r.UpdatedAt, &owner.ID, &owner.Name, &owner.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.User = &owner
	return &r, nil
}

func scanEntry(row pgx.Row) (*StatusEntry, error) {
	var (
		e     StatusEntry
		actor Actor
	)
	if err := row.Scan(&e.ID, &e.ReportID, &e.UserID, &e.Status, &e.Notes, &e.CreatedAt,
		&actor.ID, &actor.Name, &actor.Role); err != nil {
		return nil, err
	}
	e.User = &actor
	return &e, nil
}

func scanMedia(row pgx.Row) (*Media, error) {
	var m Media
	err := row.Scan(&m.ID, &m.ReportID, &m.URL, &m.Type, &m.Filename, &m.ContentType, &m.SizeBytes, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// where renders the filter conditions with positional arguments.
func where(filter ListFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("r.status = $%d", filter.Status)
	}
	if filter.Type != "" {
		add("r.type = $%d", filter.Type)
	}
	if filter.Severity != "" {
		add("r.severity = $%d", filter.Severity)
	}
	if strings.TrimSpace(filter.Search) != "" {
		args = append(args, shared.LikePattern(filter.Search))
		n := len(args)
		conds = append(conds, fmt.Sprintf("(r.title ILIKE $%d OR r.description ILIKE $%d OR r.address ILIKE $%d)", n, n, n))
	}
	if filter.HasGeo() {
		args = append(args, *filter.Lat, *filter.Lng, *filter.Radius)
		n := len(args)
		conds = append(conds, fmt.Sprintf(`6371 * acos(LEAST(1, GREATEST(-1,
			cos(radians($%d)) * cos(radians(r.latitude)) * cos(radians(r.longitude) - radians($%d))
			+ sin(radians($%d)) * sin(radians(r.latitude))))) <= $%d`, n-2, n-1, n-2, n))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(filter ListFilter) string {
	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[SortCreatedAt]
	}
	dir := "DESC"
	if filter.SortOrder == "asc" {
		dir = "ASC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, r.id %s", column, dir, dir)
}

// List returns one page of reports plus the filtered total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Report, int, error) {
	cond, args := where(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM disaster_reports r"+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reports: count: %w", err)
	}

	page := filter.PageRequest.Normalize()
	args = append(args, page.Limit, page.Offset())
	query := fmt.Sprintf("%s%s%s LIMIT $%d OFFSET $%d", selectReport, cond, orderBy(filter), len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("reports: list: %w", err)
	}
	defer rows.Close()

	out := make([]Report, 0, page.Limit)
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *report)
	}
	return out, total, rows.Err()
}

// Markers returns up to limit compact markers.
func (r *Repository) Markers(ctx context.Context, filter ListFilter, limit int) ([]Marker, error) {
	cond, args := where(filter)
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT r.id::text, r.latitude, r.longitude, r.type, r.severity, r.status, r.title
		FROM disaster_reports r%s%s LIMIT $%d`, cond, orderBy(filter), len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reports: markers: %w", err)
	}
	defer rows.Close()

	var out []Marker
	for rows.Next() {
		var m Marker
		if err := rows.Scan(&m.ID, &m.Latitude, &m.Longitude, &m.Type, &m.Severity, &m.Status, &m.Title); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Detail loads a report with its history and media.
func (r *Repository) Detail(ctx context.Context, id string) (*Detail, error) {
	if !shared.ValidID(id) {
		return nil, shared.ErrNotFound
	}
	report, err := scanReport(r.pool.QueryRow(ctx, selectReport+` WHERE r.id = $1`, id))
	if err != nil {
		return nil, err
	}
	detail := &Detail{Report: *report, StatusHistory: []StatusEntry{}, Media: []Media{}}

	rows, err := r.pool.Query(ctx, `SELECT s.id::text, s.report_id::text, s.user_id::text, s.status, s.notes, s.created_at,
		u.id::text, u.name, u.role
		FROM report_status s JOIN users u ON u.id = s.user_id
		WHERE s.report_id = $1 ORDER BY s.created_at DESC, s.id DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("reports: history: %w", err)
	}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		detail.StatusHistory = append(detail.StatusHistory, *entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, selectMedia+` WHERE m.report_id = $1 ORDER BY m.created_at, m.id`, id)
	if err != nil {
		return nil, fmt.Errorf("reports: media: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		detail.Media = append(detail.Media, *m)
	}
	return detail, rows.Err()
}

// txOptions is read-committed: mutations lock the report row first, so a
// concurrent writer waits and then reads the committed row.
var txOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// ErrConcurrentUpdate is returned when Postgres aborts a transaction that
// raced another writer.
var ErrConcurrentUpdate = httpx.NewError(httpx.ErrConflict, "Laporan sedang diperbarui pengguna lain, coba lagi")

// WithTx wraps callback in a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return txError(db.WithTxOptions(ctx, r.pool, txOptions, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, audit: r.audit})
	}))
}

func txError(err error) error {
	if db.IsSerializationFailure(err) {
		return ErrConcurrentUpdate
	}
	return err
}

type txRepo struct {
	tx    pgx.Tx
	audit *shared.AuditLogger
}

func (t *txRepo) get(ctx context.Context, id string) (*Report, error) {
	return scanReport(t.tx.QueryRow(ctx, selectReport+` WHERE r.id = $1`, id))
}

func (t *txRepo) Insert(ctx context.Context, report Report) (*Report, error) {
	var id string
	err := t.tx.QueryRow(ctx, `INSERT INTO disaster_reports
		(user_id, type, title, description, latitude, longitude, address, severity, severity_rank, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id::text`,
		report.UserID, report.Type, report.Title, report.Description, report.Latitude, report.Longitude,
		report.Address, report.Severity, report.Severity.Rank(), report.Status).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("reports: insert: %w", err)
	}
	return t.get(ctx, id)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id string) (*Report, error) {
	if !shared.ValidID(id) {
		return nil, shared.ErrNotFound
	}
	return scanReport(t.tx.QueryRow(ctx, selectReport+` WHERE r.id = $1 FOR UPDATE OF r`, id))
}

func (t *txRepo) Update(ctx context.Context, id string, in UpdateInput) (*Report, error) {
	var rank *int
	if in.Severity != nil {
		v := in.Severity.Rank()
		rank = &v
	}
	_, err := t.tx.Exec(ctx, `UPDATE disaster_reports SET
		type = COALESCE($2, type),
		title = COALESCE($3, title),
		description = COALESCE($4, description),
		latitude = COALESCE($5, latitude),
		longitude = COALESCE($6, longitude),
		address = COALESCE($7, address),
		severity = COALESCE($8, severity),
		severity_rank = COALESCE($9, severity_rank),
		updated_at = NOW()
		WHERE id = $1`,
		id, in.Type, in.Title, in.Description, in.Latitude, in.Longitude, in.Address, in.Severity, rank)
	if err != nil {
		return nil, fmt.Errorf("reports: update: %w", err)
	}
	return t.get(ctx, id)
}

func (t *txRepo) SetStatus(ctx context.Context, id string, status Status) (*Report, error) {
	if _, err := t.tx.Exec(ctx, `UPDATE disaster_reports SET status = $2, updated_at = NOW() WHERE id = $1`, id, status); err != nil {
		return nil, fmt.Errorf("reports: set status: %w", err)
	}
	return t.get(ctx, id)
}

func (t *txRepo) Delete(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM disaster_reports WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reports: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepo) AppendHistory(ctx context.Context, entry StatusEntry) (*StatusEntry, error) {
	out, err := scanEntry(t.tx.QueryRow(ctx, `WITH ins AS (
			INSERT INTO report_status (report_id, user_id, status, notes) VALUES ($1, $2, $3, $4)
			RETURNING id, report_id, user_id, status, notes, created_at)
		SELECT ins.id::text, ins.report_id::text, ins.user_id::text, ins.status, ins.notes, ins.created_at,
			u.id::text, u.name, u.role
		FROM ins JOIN users u ON u.id = ins.user_id`,
		entry.ReportID, entry.UserID, entry.Status, entry.Notes))
	if err != nil {
		return nil, fmt.Errorf("reports: append history: %w", err)
	}
	return out, nil
}

func (t *txRepo) InsertMedia(ctx context.Context, media Media) (*Media, error) {
	out, err := scanMedia(t.tx.QueryRow(ctx, `INSERT INTO media (report_id, url, type, filename, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text, report_id::text, url, type, filename, content_type, size_bytes, created_at`,
		media.ReportID, media.URL, media.Type, media.Filename, media.ContentType, media.SizeBytes))
	if err != nil {
		return nil, fmt.Errorf("reports: insert media: %w", err)
	}
	return out, nil
}

func (t *txRepo) GetMediaForUpdate(ctx context.Context, id string) (*Media, string, error) {
	if !shared.ValidID(id) {
		return nil, "", shared.ErrNotFound
	}
	var (
		m     Media
		owner string
	)
	err := t.tx.QueryRow(ctx, `SELECT m.id::text, m.report_id::text, m.url, m.type, m.filename, m.content_type,
			m.size_bytes, m.created_at, r.user_id::text
		FROM media m JOIN disaster_reports r ON r.id = m.report_id
		WHERE m.id = $1 FOR UPDATE OF m`, id).
		Scan(&m.ID, &m.ReportID, &m.URL, &m.Type, &m.Filename, &m.ContentType, &m.SizeBytes, &m.CreatedAt, &owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", shared.ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return &m, owner, nil
}

func (t *txRepo) DeleteMedia(ctx context.Context, id string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM media WHERE id = $1`, id); err != nil {
		return fmt.Errorf("reports: delete media: %w", err)
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, entry shared.AuditLog) error {
	return t.audit.Record(ctx, t.tx, entry)
}

func (t *txRepo) AppendEvent(ctx context.Context, typ realtime.EventType, reportID string, payload any) (int64, error) {
	return realtime.Append(ctx, t.tx, typ, reportID, payload)
}

func (t *txRepo) EnqueueMirror(ctx context.Context, op mirror.Op, reportID string, payload any) (int64, error) {
	return mirror.Enqueue(ctx, t.tx, op, reportID, payload)
}

var _ Store = (*Repository)(nil)
