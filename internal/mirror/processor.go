package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Processor applies outbox entries to the mirror store.
type Processor struct {
	outbox Outbox
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor constructs a Processor.
func NewProcessor(outbox Outbox, store Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{outbox: outbox, store: store, logger: logger, now: time.Now}
}

// Process applies one outbox entry. Already processed and unknown entries
// are skipped, so duplicate deliveries are harmless.
func (p *Processor) Process(ctx context.Context, id int64) error {
	entry, err := p.outbox.Get(ctx, id)
	if errors.Is(err, ErrEntryNotFound) {
		p.logger.Warn("mirror entry missing", slog.Int64("outbox_id", id))
		return nil
	}
	if err != nil {
		return err
	}
	if entry.Processed() {
		return nil
	}

	if err := p.apply(ctx, entry); err != nil {
		if markErr := p.outbox.MarkFailed(ctx, id, err); markErr != nil {
			p.logger.Error("mark mirror entry failed", slog.Int64("outbox_id", id), slog.Any("error", markErr))
		}
		return fmt.Errorf("mirror entry %d (%s): %w", id, entry.Op, err)
	}
	return p.outbox.MarkDone(ctx, id)
}

func (p *Processor) apply(ctx context.Context, entry *Entry) error {
	switch entry.Op {
	case OpUpsertReport:
		var doc ReportDoc
		if err := json.Unmarshal(entry.Payload, &doc); err != nil {
			return fmt.Errorf("decode report: %w", err)
		}
		return p.store.UpsertReport(ctx, doc)
	case OpUpdateStatus:
		var change StatusChange
		if err := json.Unmarshal(entry.Payload, &change); err != nil {
			return fmt.Errorf("decode status change: %w", err)
		}
		if err := p.store.UpdateStatus(ctx, change); err != nil {
			return err
		}
		if change.OwnerID == "" || change.OwnerID == change.UpdatedBy {
			return nil
		}
		return p.store.AddNotification(ctx, Notification{
			UserID:    change.OwnerID,
			Title:     "Status Laporan Diperbarui",
			Body:      fmt.Sprintf("Laporan \"%s\" sekarang berstatus %s", change.Title, change.Status),
			ReportID:  change.ReportID,
			Type:      NotificationStatusUpdate,
			CreatedAt: p.now().UTC(),
		})
	case OpDeleteReport:
		return p.store.DeleteReport(ctx, entry.ReportID)
	default:
		return fmt.Errorf("unknown op %q", entry.Op)
	}
}
