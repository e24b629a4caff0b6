package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stackwatch/relclean/internal/storage"
	"github.com/stackwatch/relclean/internal/types"
	"github.com/stackwatch/relclean/internal/versions"
)

// Outcome is the engine's verdict for one duplicate group.
type Outcome string

const (
	// OutcomeMerge collapses the group into a single canonical release.
	OutcomeMerge Outcome = "merge"
	// OutcomeRename qualifies each release's version with a project slug.
	OutcomeRename Outcome = "rename"
)

// Reporter receives one audit row per processed release. The CSV report
// writer implements it; tests substitute collectors.
type Reporter interface {
	Row(row *types.AuditRow) error
}

// Engine applies the merge/rename decision rules to duplicate groups and
// issues the resulting datastore mutations. It processes groups one at a
// time, synchronously; a failed merge aborts the whole run by design.
type Engine struct {
	store    storage.Storage
	reporter Reporter
	cfg      Config
	dryRun   bool
}

// New creates a decision engine. With dryRun set, every branch still runs and
// reports but no mutation reaches the store.
func New(store storage.Storage, reporter Reporter, cfg Config, dryRun bool) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Engine{
		store:    store,
		reporter: reporter,
		cfg:      cfg,
		dryRun:   dryRun,
	}, nil
}

// Summary reports what a run did (or, in dry-run mode, would do).
type Summary struct {
	GroupsProcessed   int
	GroupsMerged      int
	GroupsRenamed     int
	ReleasesProcessed int
	OrphansDeleted    int
}

// Run processes every duplicate group in the datastore to completion and
// records the invocation in the run ledger. Dry runs are recorded too; the
// ledger is the tool's own bookkeeping, separate from the release data being
// cleaned.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	startedAt := time.Now()

	groups, err := e.store.DuplicateGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate duplicate groups: %w", err)
	}

	summary := &Summary{}
	for _, group := range groups {
		if err := e.processGroup(ctx, group, summary); err != nil {
			return nil, fmt.Errorf("group (org %d, version %q): %w",
				group.OrganizationID, group.Version, err)
		}
		summary.GroupsProcessed++
	}

	run := &types.Run{
		ID:             uuid.NewString(),
		DryRun:         e.dryRun,
		StartedAt:      startedAt,
		FinishedAt:     time.Now(),
		GroupsMerged:   summary.GroupsMerged,
		GroupsRenamed:  summary.GroupsRenamed,
		ReleasesTotal:  summary.ReleasesProcessed,
		OrphansDeleted: summary.OrphansDeleted,
	}
	if err := e.store.RecordRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}

	return summary, nil
}

// processGroup classifies, decides and mutates one group, emitting one audit
// row per release no matter which branch is taken.
func (e *Engine) processGroup(ctx context.Context, group *types.DuplicateGroup, summary *Summary) error {
	ids := make([]int64, len(group.Releases))
	for i, r := range group.Releases {
		ids[i] = r.ID
	}
	withArtifacts, err := e.store.ReleasesWithArtifacts(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to check artifacts: %w", err)
	}

	target := SelectMergeTarget(group, withArtifacts)

	// No unambiguous target means more than one release carries artifacts;
	// merging would silently discard someone's binaries.
	outcome := OutcomeRename
	if target != nil {
		outcome = e.Decide(group)
	}

	switch outcome {
	case OutcomeMerge:
		if err := e.mergeGroup(ctx, group, target); err != nil {
			return err
		}
		summary.GroupsMerged++
	default:
		deleted, err := e.renameGroup(ctx, group)
		if err != nil {
			return err
		}
		summary.GroupsRenamed++
		summary.OrphansDeleted += deleted
	}
	summary.ReleasesProcessed += len(group.Releases)
	return nil
}

// SelectMergeTarget picks the release the rest of the group would be merged
// into: the sole artifact holder if there is exactly one, the earliest-created
// release if there is none, and nil if several releases carry artifacts
// (no merge is safe then).
func SelectMergeTarget(group *types.DuplicateGroup, withArtifacts map[int64]bool) *types.Release {
	var holder *types.Release
	holders := 0
	for _, r := range group.Releases {
		if withArtifacts[r.ID] {
			holders++
			holder = r
		}
	}
	switch {
	case holders > 1:
		return nil
	case holders == 1:
		return holder
	default:
		return group.Earliest()
	}
}

// policy is one row of the shape-keyed rule table.
type policy struct {
	mergeAlways  bool
	renameAlways bool
	// refURLMerge merges when every release shares one non-null ref or URL,
	// regardless of timing.
	refURLMerge bool
	// renameAfter is the date-spread threshold beyond which the group is
	// renamed. Ignored when mergeAlways or renameAlways is set.
	renameAfter time.Duration
}

// policyFor maps a version shape to its decision policy.
func (c Config) policyFor(shape versions.Shape) policy {
	switch shape {
	case versions.ShapeFullSHA:
		// Identical complete hashes are the same commit; merge outright.
		return policy{mergeAlways: true}
	case versions.ShapeShortSHA, versions.ShapeHeadTag, versions.ShapeSHAAndDate:
		return policy{renameAfter: c.ShortSHARenameAfter}
	case versions.ShapeSemverLike:
		return policy{refURLMerge: true, renameAfter: c.SemverRenameAfter}
	case versions.ShapeCIBuild, versions.ShapeWordAndDate, versions.ShapeLongOpaque:
		return policy{renameAfter: c.LooseShapeRenameAfter}
	default:
		// No shape-specific evidence to justify an automatic merge.
		return policy{renameAlways: true}
	}
}

// Decide applies the rule table to a group, assuming target selection has
// already ruled out the multiple-artifact-holder case.
func (e *Engine) Decide(group *types.DuplicateGroup) Outcome {
	p := e.cfg.policyFor(versions.Classify(group.Version))

	if p.renameAlways {
		return OutcomeRename
	}
	if p.mergeAlways {
		return OutcomeMerge
	}
	if p.refURLMerge && (allShare(group, refOf) || allShare(group, urlOf)) {
		return OutcomeMerge
	}

	spread := group.DateSpread()
	if environmentSplit(group) && spread < e.cfg.EnvSplitMergeWindow {
		return OutcomeMerge
	}
	if spread > p.renameAfter {
		return OutcomeRename
	}
	// Tightly clustered duplicates are assumed to be ingestion races.
	return OutcomeMerge
}

func refOf(r *types.Release) string { return r.Ref }
func urlOf(r *types.Release) string { return r.URL }

// allShare reports whether every release in the group carries the same
// non-empty value for the given field.
func allShare(group *types.DuplicateGroup, field func(*types.Release) string) bool {
	if len(group.Releases) == 0 {
		return false
	}
	first := field(group.Releases[0])
	if first == "" {
		return false
	}
	for _, r := range group.Releases[1:] {
		if field(r) != first {
			return false
		}
	}
	return true
}

// environmentSplit reports whether the group's project slugs span at least
// two of the prod/staging/dev environment families. Slugs are lowercase by
// platform convention.
func environmentSplit(group *types.DuplicateGroup) bool {
	var prod, staging, dev bool
	for _, r := range group.Releases {
		for _, p := range r.Projects {
			if strings.Contains(p.Slug, "prod") {
				prod = true
			}
			if strings.Contains(p.Slug, "stag") || strings.Contains(p.Slug, "stg") {
				staging = true
			}
			if strings.Contains(p.Slug, "dev") {
				dev = true
			}
		}
	}
	families := 0
	for _, present := range []bool{prod, staging, dev} {
		if present {
			families++
		}
	}
	return families >= 2
}

// mergeGroup invokes the merge primitive and reports every group member.
// A primitive failure is propagated untouched: a half-applied merge is not
// something to retry blind.
func (e *Engine) mergeGroup(ctx context.Context, group *types.DuplicateGroup, target *types.Release) error {
	if !e.dryRun {
		var sources []int64
		for _, r := range group.Releases {
			if r.ID != target.ID {
				sources = append(sources, r.ID)
			}
		}
		if err := e.store.MergeReleases(ctx, target.ID, sources); err != nil {
			return fmt.Errorf("merge into release %d failed: %w", target.ID, err)
		}
	}

	for _, r := range group.Releases {
		row := &types.AuditRow{
			OrganizationID: group.OrganizationID,
			ReleaseID:      r.ID,
			Version:        group.Version,
			DateAdded:      r.DateAdded,
			Action:         types.ActionMerge,
		}
		if err := e.reporter.Row(row); err != nil {
			return fmt.Errorf("failed to report merge of release %d: %w", r.ID, err)
		}
	}
	return nil
}

// renameGroup renames every member of the group, deleting orphans.
// Returns how many orphans were deleted.
func (e *Engine) renameGroup(ctx context.Context, group *types.DuplicateGroup) (int, error) {
	deleted := 0
	for _, r := range group.Releases {
		row, wasOrphan, err := e.renameRelease(ctx, group, r)
		if err != nil {
			return deleted, err
		}
		if wasOrphan {
			deleted++
		}
		if err := e.reporter.Row(row); err != nil {
			return deleted, fmt.Errorf("failed to report rename of release %d: %w", r.ID, err)
		}
	}
	return deleted, nil
}

// renameRelease qualifies one release's version with its project slug and
// keeps the denormalized tag index in step. A release with no project left to
// borrow a slug from is deleted instead.
func (e *Engine) renameRelease(ctx context.Context, group *types.DuplicateGroup, r *types.Release) (*types.AuditRow, bool, error) {
	if len(r.Projects) == 0 {
		if !e.dryRun {
			if err := e.store.DeleteRelease(ctx, r.ID); err != nil {
				return nil, false, fmt.Errorf("failed to delete orphan release %d: %w", r.ID, err)
			}
		}
		return &types.AuditRow{
			OrganizationID: group.OrganizationID,
			ReleaseID:      r.ID,
			Version:        r.Version,
			DateAdded:      r.DateAdded,
			Action:         types.ActionReleaseDeleted,
		}, true, nil
	}

	newVersion := truncate(r.Projects[0].Slug+"-"+r.Version, e.cfg.MaxVersionLength)

	// In a dry run the post-rename string is advisory only; report the
	// version as it stands.
	reported := newVersion
	if e.dryRun {
		reported = r.Version
	} else {
		if err := e.store.UpdateReleaseVersion(ctx, r.ID, newVersion); err != nil {
			return nil, false, fmt.Errorf("failed to rename release %d: %w", r.ID, err)
		}
		projectIDs := make([]int64, len(r.Projects))
		for i, p := range r.Projects {
			projectIDs[i] = p.ID
		}
		if err := e.store.RewriteTagValues(ctx, projectIDs, "release", r.Version, newVersion); err != nil {
			return nil, false, fmt.Errorf("failed to rewrite tags for release %d: %w", r.ID, err)
		}
	}

	return &types.AuditRow{
		OrganizationID: group.OrganizationID,
		ReleaseID:      r.ID,
		Version:        reported,
		DateAdded:      r.DateAdded,
		Action:         types.ActionUpdatedVersion,
	}, false, nil
}

// truncate caps s at max characters
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
