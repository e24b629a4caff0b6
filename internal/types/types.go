package types

import (
	"fmt"
	"time"
)

// Release is one recorded deployment of a version of software.
// Identity within an organization is the version string; duplicates of that
// pair are what this tool exists to clean up.
type Release struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Version        string    `json:"version"`
	Ref            string    `json:"ref,omitempty"` // source-control ref, "" when unset
	URL            string    `json:"url,omitempty"` // source URL, "" when unset
	DateAdded      time.Time `json:"date_added"`
	Projects       []Project `json:"projects,omitempty"`
}

// Project is a project a release was reported under.
type Project struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
}

// DuplicateGroup is every release sharing one (organization, version) pair,
// ordered by creation time. It is query-derived and never persisted.
type DuplicateGroup struct {
	OrganizationID int64      `json:"organization_id"`
	Version        string     `json:"version"`
	Releases       []*Release `json:"releases"`
}

// DateSpread returns the elapsed time between the earliest and latest
// release in the group.
func (g *DuplicateGroup) DateSpread() time.Duration {
	if len(g.Releases) == 0 {
		return 0
	}
	min, max := g.Releases[0].DateAdded, g.Releases[0].DateAdded
	for _, r := range g.Releases[1:] {
		if r.DateAdded.Before(min) {
			min = r.DateAdded
		}
		if r.DateAdded.After(max) {
			max = r.DateAdded
		}
	}
	return max.Sub(min)
}

// Earliest returns the release with the oldest creation timestamp.
// Ties keep the first-listed release so the result is deterministic for
// groups fetched in creation order.
func (g *DuplicateGroup) Earliest() *Release {
	if len(g.Releases) == 0 {
		return nil
	}
	earliest := g.Releases[0]
	for _, r := range g.Releases[1:] {
		if r.DateAdded.Before(earliest.DateAdded) {
			earliest = r
		}
	}
	return earliest
}

// Action is the per-release outcome recorded in the audit report.
type Action string

const (
	// ActionMerge means the release was consolidated (as target or source)
	// into a single canonical record.
	ActionMerge Action = "merge"

	// ActionUpdatedVersion means the release's version string was qualified
	// with a project slug to restore uniqueness.
	ActionUpdatedVersion Action = "updated_version"

	// ActionReleaseDeleted means the release had no project associations and
	// was removed instead of renamed.
	ActionReleaseDeleted Action = "release_deleted"
)

// IsValid checks if the action is a known value
func (a Action) IsValid() bool {
	switch a {
	case ActionMerge, ActionUpdatedVersion, ActionReleaseDeleted:
		return true
	}
	return false
}

// AuditRow is one line of the run report: what happened to one release.
type AuditRow struct {
	OrganizationID int64     `json:"organization_id"`
	ReleaseID      int64     `json:"release_id"`
	Version        string    `json:"version"` // post-action version (pre-action in dry runs)
	DateAdded      time.Time `json:"date_added"`
	Action         Action    `json:"action"`
}

// Validate checks if the audit row has valid field values
func (r *AuditRow) Validate() error {
	if r.ReleaseID <= 0 {
		return fmt.Errorf("release_id must be positive (got %d)", r.ReleaseID)
	}
	if r.Version == "" {
		return fmt.Errorf("version is required")
	}
	if !r.Action.IsValid() {
		return fmt.Errorf("invalid action: %s", r.Action)
	}
	return nil
}

// Run records one invocation of the cleanup tool.
type Run struct {
	ID             string    `json:"id"` // uuid
	DryRun         bool      `json:"dry_run"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	GroupsMerged   int       `json:"groups_merged"`
	GroupsRenamed  int       `json:"groups_renamed"`
	ReleasesTotal  int       `json:"releases_total"`
	OrphansDeleted int       `json:"orphans_deleted"`
}
