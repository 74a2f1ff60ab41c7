package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sitdb/sitdb/internal/mirror"
)

// OutboxStatsReader reads the mirror outbox backlog.
type OutboxStatsReader interface {
	Stats(ctx context.Context) (mirror.Stats, error)
}

// Sweeper re-enqueues stale outbox rows.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// OutboxCLI offers operational helpers for the mirror outbox.
type OutboxCLI struct {
	stats   OutboxStatsReader
	sweeper Sweeper
}

// NewOutboxCLI constructs a new helper instance.
func NewOutboxCLI(stats OutboxStatsReader, sweeper Sweeper) *OutboxCLI {
	return &OutboxCLI{stats: stats, sweeper: sweeper}
}

// OutboxSummary is the JSON shape of outbox stats.
type OutboxSummary struct {
	OK               bool    `json:"ok"`
	Pending          int     `json:"pending"`
	Failed           int     `json:"failed"`
	OldestAgeSeconds float64 `json:"oldest_age_seconds"`
}

// StatsCommand prints the backlog. It exits 10 when rows carry a sync error.
func (c *OutboxCLI) StatsCommand(ctx context.Context, opts OutputOptions) int {
	opts = opts.withDefaults()
	if c.stats == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "outbox stats: not configured")
		return 1
	}
	stats, err := c.stats.Stats(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "outbox stats: %v\n", err)
		return 1
	}
	summary := OutboxSummary{
		OK:               stats.Failed == 0,
		Pending:          stats.Pending,
		Failed:           stats.Failed,
		OldestAgeSeconds: stats.OldestAge.Seconds(),
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "outbox stats: encode json: %v\n", err)
			return 1
		}
	} else if stats.Pending == 0 {
		_, _ = fmt.Fprintln(opts.Stdout, "Outbox is empty, mirror is up to date.")
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "%d row(s) pending, %d with errors, oldest %s\n",
			stats.Pending, stats.Failed, stats.OldestAge.Round(time.Second))
	}
	if !summary.OK {
		return 10
	}
	return 0
}

// Sweep runs one sweep immediately.
func (c *OutboxCLI) Sweep(ctx context.Context) (int, error) {
	if c == nil || c.sweeper == nil {
		return 0, errors.New("outbox cli: sweeper not configured")
	}
	return c.sweeper.Sweep(ctx)
}
