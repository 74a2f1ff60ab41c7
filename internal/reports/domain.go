package reports

import (
	"time"

	"github.com/sitdb/sitdb/internal/shared"
)

// Type is the kind of disaster being reported.
type Type string

// Disaster kinds.
const (
	TypeBanjir     Type = "BANJIR"
	TypeGempa      Type = "GEMPA"
	TypeKebakaran  Type = "KEBAKARAN"
	TypeLongsor    Type = "LONGSOR"
	TypeTsunami    Type = "TSUNAMI"
	TypeAnginTopan Type = "ANGIN_TOPAN"
	TypeKekeringan Type = "KEKERINGAN"
	TypeLainnya    Type = "LAINNYA"
)

// Types lists every disaster kind in display order.
var Types = []Type{TypeBanjir, TypeGempa, TypeKebakaran, TypeLongsor, TypeTsunami, TypeAnginTopan, TypeKekeringan, TypeLainnya}

// Severity is the ordinal impact scale RINGAN < SEDANG < BERAT < KRITIS.
type Severity string

// Severity levels.
const (
	SeverityRingan Severity = "RINGAN"
	SeveritySedang Severity = "SEDANG"
	SeverityBerat  Severity = "BERAT"
	SeverityKritis Severity = "KRITIS"
)

// Severities lists every level from lowest to highest.
var Severities = []Severity{SeverityRingan, SeveritySedang, SeverityBerat, SeverityKritis}

// Rank returns 1..4 for known levels and 0 otherwise.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i + 1
		}
	}
	return 0
}

// Status is the lifecycle state of a report.
type Status string

// Report statuses.
const (
	StatusPending    Status = "PENDING"
	StatusVerified   Status = "VERIFIED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusRejected   Status = "REJECTED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusPending, StatusVerified, StatusInProgress, StatusResolved, StatusRejected}

// MediaType classifies an attachment.
type MediaType string

// Media kinds.
const (
	MediaImage MediaType = "IMAGE"
	MediaVideo MediaType = "VIDEO"
)

// Owner is the denormalized reporting user.
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Actor is the user attributed to a history entry.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Report is a single disaster incident.
type Report struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Type        Type      `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Address     *string   `json:"address"`
	Severity    Severity  `json:"severity"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	User        *Owner    `json:"user,omitempty"`
}

// StatusEntry is one row of the append-only status history.
type StatusEntry struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"reportId"`
	UserID    string    `json:"userId"`
	Status    Status    `json:"status"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
	User      *Actor    `json:"user,omitempty"`
}

// Media is an attachment registered against a report.
type Media struct {
	ID          string    `json:"id"`
	ReportID    string    `json:"reportId"`
	URL         string    `json:"url"`
	Type        MediaType `json:"type"`
	Filename    *string   `json:"filename"`
	ContentType *string   `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Detail is a report with its history (newest first) and media.
type Detail struct {
	Report
	StatusHistory []StatusEntry `json:"statusHistory"`
	Media         []Media       `json:"media"`
}

// Marker is the compact map representation of a report.
type Marker struct {
	ID        string   `json:"id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Type      Type     `json:"type"`
	Severity  Severity `json:"severity"`
	Status    Status   `json:"status"`
	Title     string   `json:"title"`
}

// CreateInput is the payload for a new report.
type CreateInput struct {
	Type        Type     `json:"type" validate:"required,report_type"`
	Title       string   `json:"title" validate:"required,min=5,max=200"`
	Description string   `json:"description" validate:"required,min=20"`
	Latitude    *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Address     *string  `json:"address" validate:"omitempty,max=500"`
	Severity    Severity `json:"severity" validate:"required,report_severity"`
}

// UpdateInput is a partial patch of report fields. Status is changed
// through StatusInput only.
type UpdateInput struct {
	Type        *Type     `json:"type" validate:"omitempty,report_type"`
	Title       *string   `json:"title" validate:"omitempty,min=5,max=200"`
	Description *string   `json:"description" validate:"omitempty,min=20"`
	Latitude    *float64  `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude   *float64  `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Address     *string   `json:"address" validate:"omitempty,max=500"`
	Severity    *Severity `json:"severity" validate:"omitempty,report_severity"`
}

// Empty reports whether the patch changes nothing.
func (in UpdateInput) Empty() bool {
	return in.Type == nil && in.Title == nil && in.Description == nil && in.Latitude == nil &&
		in.Longitude == nil && in.Address == nil && in.Severity == nil
}

// StatusInput moves a report to a new status.
type StatusInput struct {
	Status Status  `json:"status" validate:"required,report_status"`
	Notes  *string `json:"notes" validate:"omitempty,max=1000"`
}

// MediaInput registers an already uploaded file.
type MediaInput struct {
	URL         string    `json:"url" validate:"required,url"`
	Type        MediaType `json:"type" validate:"required,oneof=IMAGE VIDEO"`
	Filename    *string   `json:"filename" validate:"omitempty,max=255"`
	ContentType string    `json:"contentType" validate:"required"`
	SizeBytes   int64     `json:"sizeBytes" validate:"gte=0"`
}

// Sort keys accepted by ListFilter.SortBy.
const (
	SortCreatedAt = "createdAt"
	SortSeverity  = "severity"
	SortStatus    = "status"
)

// ListFilter narrows and orders the report listing.
type ListFilter struct {
	Status    Status   `json:"status" validate:"omitempty,report_status"`
	Type      Type     `json:"type" validate:"omitempty,report_type"`
	Severity  Severity `json:"severity" validate:"omitempty,report_severity"`
	Search    string   `json:"search" validate:"omitempty,max=200"`
	SortBy    string   `json:"sortBy" validate:"omitempty,oneof=createdAt severity status"`
	SortOrder string   `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Lat       *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng       *float64 `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	Radius    *float64 `json:"radius" validate:"omitempty,gt=0,lte=20000"`
	shared.PageRequest
}

// HasGeo reports whether the radius filter is active.
func (f ListFilter) HasGeo() bool {
	return f.Lat != nil && f.Lng != nil && f.Radius != nil
}

func (r Report) snapshot() map[string]any {
	return map[string]any{
		"id":          r.ID,
		"userId":      r.UserID,
		"type":        r.Type,
		"title":       r.Title,
		"description": r.Description,
		"latitude":    r.Latitude,
		"longitude":   r.Longitude,
		"address":     r.Address,
		"severity":    r.Severity,
		"status":      r.Status,
		"createdAt":   r.CreatedAt,
		"updatedAt":   r.UpdatedAt,
	}
}
