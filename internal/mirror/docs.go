// Package mirror keeps the MongoDB copy of reports in step with PostgreSQL
// through a transactional outbox.
package mirror

import "time"

// ReportDoc is the mirrored report document. ID is the document _id.
type ReportDoc struct {
	ID          string    `json:"id" bson:"_id"`
	UserID      string    `json:"userId" bson:"userId"`
	UserName    string    `json:"userName,omitempty" bson:"userName,omitempty"`
	Type        string    `json:"type" bson:"type"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description" bson:"description"`
	Latitude    float64   `json:"latitude" bson:"latitude"`
	Longitude   float64   `json:"longitude" bson:"longitude"`
	Address     *string   `json:"address" bson:"address"`
	Severity    string    `json:"severity" bson:"severity"`
	Status      string    `json:"status" bson:"status"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// StatusChange describes one status transition of a report.
type StatusChange struct {
	ReportID       string    `json:"reportId" bson:"reportId"`
	OwnerID        string    `json:"ownerId" bson:"-"`
	Title          string    `json:"title" bson:"-"`
	PreviousStatus string    `json:"previousStatus" bson:"previousStatus"`
	Status         string    `json:"status" bson:"status"`
	Notes          *string   `json:"notes" bson:"notes"`
	UpdatedBy      string    `json:"updatedBy" bson:"updatedBy"`
	UpdatedByName  string    `json:"updatedByName" bson:"updatedByName"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"createdAt"`
}

// Deletion identifies a removed report.
type Deletion struct {
	ReportID string `json:"reportId"`
}

// Notification kinds.
const (
	NotificationNewReport    = "NEW_REPORT"
	NotificationStatusUpdate = "STATUS_UPDATE"
	NotificationSystem       = "SYSTEM"
)

// Notification is an inbox item for one user.
type Notification struct {
	UserID    string    `bson:"userId"`
	Title     string    `bson:"title"`
	Body      string    `bson:"body"`
	ReportID  string    `bson:"reportId,omitempty"`
	Type      string    `bson:"type"`
	Read      bool      `bson:"read"`
	CreatedAt time.Time `bson:"createdAt"`
}
