// Package docstore connects to the MongoDB document store used as the report mirror.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names mirrored from the relational store.
const (
	CollectionReports       = "reports"
	CollectionReportStatus  = "report_status"
	CollectionNotifications = "notifications"
)

// Connect dials MongoDB, pings it and returns the named database.
func Connect(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, nil, errors.New("platform/docstore: uri required")
	}
	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(dctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("platform/docstore: connect: %w", err)
	}
	if err := client.Ping(dctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("platform/docstore: ping: %w", err)
	}
	return client, client.Database(database), nil
}

// EnsureIndexes creates the mirror indexes. All failures are collected.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	if db == nil {
		return errors.New("platform/docstore: database is nil")
	}
	ictx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	specs := []struct {
		collection string
		name       string
		keys       bson.D
	}{
		{CollectionReports, "created_at", bson.D{{Key: "createdAt", Value: -1}}},
		{CollectionReports, "status", bson.D{{Key: "status", Value: 1}}},
		{CollectionReports, "location", bson.D{{Key: "latitude", Value: 1}, {Key: "longitude", Value: 1}}},
		{CollectionReportStatus, "report", bson.D{{Key: "reportId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{CollectionNotifications, "user", bson.D{{Key: "userId", Value: 1}, {Key: "read", Value: 1}}},
	}
	var errs []string
	for _, spec := range specs {
		_, err := db.Collection(spec.collection).Indexes().CreateOne(ictx, mongo.IndexModel{Keys: spec.keys})
		if err != nil {
			errs = append(errs, spec.collection+"."+spec.name+": "+err.Error())
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// RedactURI masks credentials so the URI can be logged.
func RedactURI(raw string) string {
	if raw == "" || !strings.Contains(raw, "://") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = url.UserPassword("****", "****")
	return u.String()
}
