package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seuros/mfdash/internal/logging"
)

var (
	nowFunc       = time.Now
	pruneInterval = 24 * time.Hour
)

// RetentionScheduler prunes saved filter snapshots that have not been written
// for longer than the retention window. Other preferences are never pruned.
type RetentionScheduler struct {
	retentionDays int
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewRetentionScheduler creates a scheduler; retentionDays <= 0 disables it.
func NewRetentionScheduler(retentionDays int) *RetentionScheduler {
	return &RetentionScheduler{
		retentionDays: retentionDays,
		stopChan:      make(chan struct{}),
	}
}

// Start launches the daily prune loop.
func (rs *RetentionScheduler) Start() {
	if rs.retentionDays <= 0 {
		logging.L().Info("preference retention disabled")
		return
	}
	logging.L().Info("starting preference retention scheduler", "retention_days", rs.retentionDays)
	go rs.schedulePrune()
}

// Stop ends the prune loop. Calling it more than once is harmless.
func (rs *RetentionScheduler) Stop() {
	rs.stopOnce.Do(func() { close(rs.stopChan) })
}

func (rs *RetentionScheduler) schedulePrune() {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	rs.prune()

	for {
		select {
		case <-ticker.C:
			rs.prune()
		case <-rs.stopChan:
			return
		}
	}
}

// prune deletes stale filter snapshots and returns how many went away.
func (rs *RetentionScheduler) prune() int64 {
	if DB == nil {
		return 0
	}
	cutoff := nowFunc().AddDate(0, 0, -rs.retentionDays)

	res, err := DB.Exec(`
		DELETE FROM preferences
		WHERE updated_at < $1
		  AND key LIKE 'filters.%'
	`, cutoff)
	if err != nil {
		logging.L().Warn("failed to prune preferences", "error", err)
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	if n > 0 {
		logging.L().Info("pruned stale filter snapshots", "deleted", n, "cutoff", cutoff.Format("2006-01-02"))
	}
	return n
}

// PreferenceStats summarizes the preferences table.
type PreferenceStats struct {
	Count       int64      `json:"count"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// GetPreferenceStats counts stored preferences and finds the newest write.
func GetPreferenceStats(ctx context.Context) (PreferenceStats, error) {
	if DB == nil {
		return PreferenceStats{}, errors.New("database not connected")
	}
	var stats PreferenceStats
	var last sql.NullTime
	err := DB.QueryRowContext(ctx, `SELECT COUNT(*), MAX(updated_at) FROM preferences`).Scan(&stats.Count, &last)
	if err != nil {
		return PreferenceStats{}, fmt.Errorf("failed to query preference stats: %w", err)
	}
	if last.Valid {
		t := last.Time
		stats.LastUpdated = &t
	}
	return stats, nil
}
