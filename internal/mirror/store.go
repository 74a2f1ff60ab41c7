package mirror

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sitdb/sitdb/internal/platform/docstore"
)

// Store applies mirror operations to the document store.
type Store interface {
	UpsertReport(ctx context.Context, doc ReportDoc) error
	UpdateStatus(ctx context.Context, change StatusChange) error
	DeleteReport(ctx context.Context, reportID string) error
	AddNotification(ctx context.Context, n Notification) error
}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	reports       *mongo.Collection
	statuses      *mongo.Collection
	notifications *mongo.Collection
}

// NewMongoStore binds the mirror collections of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		reports:       db.Collection(docstore.CollectionReports),
		statuses:      db.Collection(docstore.CollectionReportStatus),
		notifications: db.Collection(docstore.CollectionNotifications),
	}
}

// UpsertReport replaces the report document, creating it when missing.
func (s *MongoStore) UpsertReport(ctx context.Context, doc ReportDoc) error {
	_, err := s.reports.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mirror: upsert report %s: %w", doc.ID, err)
	}
	return nil
}

// UpdateStatus sets the report status and appends a status document. A
// report missing from the mirror is not recreated; the next upsert restores
// it.
func (s *MongoStore) UpdateStatus(ctx context.Context, change StatusChange) error {
	_, err := s.reports.UpdateOne(ctx, bson.M{"_id": change.ReportID}, bson.M{
		"$set": bson.M{"status": change.Status, "updatedAt": change.UpdatedAt},
	})
	if err != nil {
		return fmt.Errorf("mirror: update status %s: %w", change.ReportID, err)
	}
	if _, err := s.statuses.InsertOne(ctx, change); err != nil {
		return fmt.Errorf("mirror: insert status %s: %w", change.ReportID, err)
	}
	return nil
}

// DeleteReport removes the report and its status documents.
func (s *MongoStore) DeleteReport(ctx context.Context, reportID string) error {
	if _, err := s.reports.DeleteOne(ctx, bson.M{"_id": reportID}); err != nil {
		return fmt.Errorf("mirror: delete report %s: %w", reportID, err)
	}
	if _, err := s.statuses.DeleteMany(ctx, bson.M{"reportId": reportID}); err != nil {
		return fmt.Errorf("mirror: delete statuses %s: %w", reportID, err)
	}
	return nil
}

// AddNotification inserts an inbox item.
func (s *MongoStore) AddNotification(ctx context.Context, n Notification) error {
	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("mirror: insert notification: %w", err)
	}
	return nil
}

var _ Store = (*MongoStore)(nil)
