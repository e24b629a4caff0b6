package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/stackwatch/relclean/internal/types"
)

// DuplicateGroups returns every (organization, version) pair with more than
// one release, each group's releases ordered by creation time. Projects are
// loaded eagerly because every downstream decision needs them.
func (s *SQLiteStorage) DuplicateGroups(ctx context.Context) ([]*types.DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.organization_id, r.version, r.ref, r.url, r.date_added
		FROM releases r
		JOIN (
			SELECT organization_id, version
			FROM releases
			GROUP BY organization_id, version
			HAVING COUNT(*) > 1
		) dup ON r.organization_id = dup.organization_id AND r.version = dup.version
		ORDER BY r.organization_id, r.version, r.date_added, r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query duplicate releases: %w", err)
	}
	defer rows.Close()

	var groups []*types.DuplicateGroup
	var current *types.DuplicateGroup
	for rows.Next() {
		var rel types.Release
		var ref, url sql.NullString
		if err := rows.Scan(&rel.ID, &rel.OrganizationID, &rel.Version, &ref, &url, &rel.DateAdded); err != nil {
			return nil, fmt.Errorf("failed to scan release: %w", err)
		}
		if ref.Valid {
			rel.Ref = ref.String
		}
		if url.Valid {
			rel.URL = url.String
		}

		if current == nil || current.OrganizationID != rel.OrganizationID || current.Version != rel.Version {
			current = &types.DuplicateGroup{
				OrganizationID: rel.OrganizationID,
				Version:        rel.Version,
			}
			groups = append(groups, current)
		}
		current.Releases = append(current.Releases, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duplicate releases: %w", err)
	}

	for _, g := range groups {
		for _, rel := range g.Releases {
			projects, err := s.getReleaseProjects(ctx, rel.ID)
			if err != nil {
				return nil, err
			}
			rel.Projects = projects
		}
	}

	return groups, nil
}

// getReleaseProjects loads the projects a release was reported under
func (s *SQLiteStorage) getReleaseProjects(ctx context.Context, releaseID int64) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.slug
		FROM projects p
		JOIN release_projects rp ON rp.project_id = p.id
		WHERE rp.release_id = ?
		ORDER BY p.id
	`, releaseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects for release %d: %w", releaseID, err)
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// ReleasesWithArtifacts returns which of the given releases have at least one
// attached build artifact. Existence is the signal; content never matters.
func (s *SQLiteStorage) ReleasesWithArtifacts(ctx context.Context, releaseIDs []int64) (map[int64]bool, error) {
	result := make(map[int64]bool)
	if len(releaseIDs) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(releaseIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(releaseIDs))
	for i, id := range releaseIDs {
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT release_id
		FROM release_files
		WHERE release_id IN (%s)
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query release artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan release id: %w", err)
		}
		result[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating release artifacts: %w", err)
	}
	return result, nil
}

// UpdateReleaseVersion sets a release's version string
func (s *SQLiteStorage) UpdateReleaseVersion(ctx context.Context, releaseID int64, version string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE releases SET version = ? WHERE id = ?
	`, version, releaseID)
	if err != nil {
		return fmt.Errorf("failed to update version for release %d: %w", releaseID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("release %d not found", releaseID)
	}
	return nil
}

// RewriteTagValues updates every denormalized tag row matching the old value,
// scoped to the given projects. Called after a rename so telemetry lookups by
// release version keep resolving.
func (s *SQLiteStorage) RewriteTagValues(ctx context.Context, projectIDs []int64, key, oldValue, newValue string) error {
	if len(projectIDs) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(projectIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := []interface{}{newValue, key, oldValue}
	for _, id := range projectIDs {
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE tagvalues
		SET value = ?
		WHERE key = ? AND value = ? AND project_id IN (%s)
	`, placeholders)

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to rewrite tag values: %w", err)
	}
	return nil
}

// DeleteRelease removes a release row. Project and file associations cascade.
func (s *SQLiteStorage) DeleteRelease(ctx context.Context, releaseID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM releases WHERE id = ?`, releaseID)
	if err != nil {
		return fmt.Errorf("failed to delete release %d: %w", releaseID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("release %d not found", releaseID)
	}
	return nil
}

// MergeReleases atomically reassigns all source-side associations to the
// target release and removes the source records. Either the whole merge lands
// or none of it does.
func (s *SQLiteStorage) MergeReleases(ctx context.Context, targetID int64, sourceIDs []int64) error {
	if len(sourceIDs) == 0 {
		return fmt.Errorf("merge requires at least one source release")
	}
	for _, id := range sourceIDs {
		if id == targetID {
			return fmt.Errorf("release %d cannot be merged into itself", targetID)
		}
	}

	placeholders := strings.Repeat("?,", len(sourceIDs))
	placeholders = placeholders[:len(placeholders)-1]
	sourceArgs := make([]interface{}, len(sourceIDs))
	for i, id := range sourceIDs {
		sourceArgs[i] = id
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Reattach build artifacts to the target
	query := fmt.Sprintf(`
		UPDATE release_files SET release_id = ? WHERE release_id IN (%s)
	`, placeholders)
	if _, err := tx.ExecContext(ctx, query, append([]interface{}{targetID}, sourceArgs...)...); err != nil {
		return fmt.Errorf("failed to reassign release files: %w", err)
	}

	// Carry over project associations the target doesn't already have
	query = fmt.Sprintf(`
		INSERT OR IGNORE INTO release_projects (release_id, project_id)
		SELECT ?, project_id FROM release_projects WHERE release_id IN (%s)
	`, placeholders)
	if _, err := tx.ExecContext(ctx, query, append([]interface{}{targetID}, sourceArgs...)...); err != nil {
		return fmt.Errorf("failed to reassign release projects: %w", err)
	}

	query = fmt.Sprintf(`
		DELETE FROM release_projects WHERE release_id IN (%s)
	`, placeholders)
	if _, err := tx.ExecContext(ctx, query, sourceArgs...); err != nil {
		return fmt.Errorf("failed to remove source project associations: %w", err)
	}

	// Remove the absorbed releases
	query = fmt.Sprintf(`
		DELETE FROM releases WHERE id IN (%s)
	`, placeholders)
	res, err := tx.ExecContext(ctx, query, sourceArgs...)
	if err != nil {
		return fmt.Errorf("failed to delete source releases: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check merge result: %w", err)
	}
	if int(affected) != len(sourceIDs) {
		return fmt.Errorf("merge expected to delete %d releases, deleted %d", len(sourceIDs), affected)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit merge: %w", err)
	}
	return nil
}
