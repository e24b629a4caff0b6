package sqlite

import (
	"context"
	"fmt"

	"github.com/stackwatch/relclean/internal/types"
)

// RecordRun stores one invocation in the run ledger
func (s *SQLiteStorage) RecordRun(ctx context.Context, run *types.Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cleanup_runs (
			id, dry_run, started_at, finished_at,
			groups_merged, groups_renamed, releases_total, orphans_deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.DryRun, run.StartedAt, run.FinishedAt,
		run.GroupsMerged, run.GroupsRenamed, run.ReleasesTotal, run.OrphansDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// DuplicateStats summarizes the remaining duplicate surface in the datastore
type DuplicateStats struct {
	TotalReleases     int
	DuplicateGroups   int
	DuplicateReleases int
	LargestGroupSize  int
	RunsRecorded      int
}

// GetDuplicateStats computes a census of duplicate (organization, version)
// pairs without mutating anything.
func (s *SQLiteStorage) GetDuplicateStats(ctx context.Context) (*DuplicateStats, error) {
	stats := &DuplicateStats{}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM releases`).Scan(&stats.TotalReleases); err != nil {
		return nil, fmt.Errorf("failed to count releases: %w", err)
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(n), 0), COALESCE(MAX(n), 0)
		FROM (
			SELECT COUNT(*) AS n
			FROM releases
			GROUP BY organization_id, version
			HAVING COUNT(*) > 1
		)
	`).Scan(&stats.DuplicateGroups, &stats.DuplicateReleases, &stats.LargestGroupSize)
	if err != nil {
		return nil, fmt.Errorf("failed to count duplicate groups: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cleanup_runs`).Scan(&stats.RunsRecorded); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	return stats, nil
}
