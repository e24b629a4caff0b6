package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stackwatch/relclean/internal/storage/sqlite"
	"github.com/stackwatch/relclean/internal/types"
)

// fakeStore records mutations instead of performing them
type fakeStore struct {
	groups    []*types.DuplicateGroup
	artifacts map[int64]bool
	mergeErr  error

	merges      []mergeCall
	renames     map[int64]string
	tagRewrites []tagRewrite
	deletes     []int64
	runs        []*types.Run
}

type mergeCall struct {
	targetID  int64
	sourceIDs []int64
}

type tagRewrite struct {
	projectIDs []int64
	key        string
	oldValue   string
	newValue   string
}

func newFakeStore(groups ...*types.DuplicateGroup) *fakeStore {
	return &fakeStore{
		groups:    groups,
		artifacts: make(map[int64]bool),
		renames:   make(map[int64]string),
	}
}

func (f *fakeStore) DuplicateGroups(ctx context.Context) ([]*types.DuplicateGroup, error) {
	return f.groups, nil
}

func (f *fakeStore) ReleasesWithArtifacts(ctx context.Context, releaseIDs []int64) (map[int64]bool, error) {
	result := make(map[int64]bool)
	for _, id := range releaseIDs {
		if f.artifacts[id] {
			result[id] = true
		}
	}
	return result, nil
}

func (f *fakeStore) UpdateReleaseVersion(ctx context.Context, releaseID int64, version string) error {
	f.renames[releaseID] = version
	return nil
}

func (f *fakeStore) RewriteTagValues(ctx context.Context, projectIDs []int64, key, oldValue, newValue string) error {
	f.tagRewrites = append(f.tagRewrites, tagRewrite{projectIDs, key, oldValue, newValue})
	return nil
}

func (f *fakeStore) DeleteRelease(ctx context.Context, releaseID int64) error {
	f.deletes = append(f.deletes, releaseID)
	return nil
}

func (f *fakeStore) MergeReleases(ctx context.Context, targetID int64, sourceIDs []int64) error {
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.merges = append(f.merges, mergeCall{targetID, sourceIDs})
	return nil
}

func (f *fakeStore) RecordRun(ctx context.Context, run *types.Run) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeStore) GetDuplicateStats(ctx context.Context) (*sqlite.DuplicateStats, error) {
	return &sqlite.DuplicateStats{}, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) mutationCount() int {
	return len(f.merges) + len(f.renames) + len(f.tagRewrites) + len(f.deletes)
}

// rowCollector implements Reporter for tests
type rowCollector struct {
	rows []*types.AuditRow
}

func (c *rowCollector) Row(row *types.AuditRow) error {
	c.rows = append(c.rows, row)
	return nil
}

var baseTime = time.Date(2016, 3, 1, 12, 0, 0, 0, time.UTC)

func rel(id int64, version string, added time.Time, projects ...types.Project) *types.Release {
	return &types.Release{
		ID:             id,
		OrganizationID: 1,
		Version:        version,
		DateAdded:      added,
		Projects:       projects,
	}
}

func group(org int64, version string, releases ...*types.Release) *types.DuplicateGroup {
	for _, r := range releases {
		r.OrganizationID = org
	}
	return &types.DuplicateGroup{OrganizationID: org, Version: version, Releases: releases}
}

func newTestEngine(t *testing.T, store *fakeStore, dryRun bool) (*Engine, *rowCollector) {
	t.Helper()
	collector := &rowCollector{}
	engine, err := New(store, collector, DefaultConfig(), dryRun)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return engine, collector
}

func TestFullSHAGroupMerges(t *testing.T) {
	// Scenario: two releases under one 40-char hash, no artifacts.
	fullSHA := "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0"
	app := types.Project{ID: 10, Slug: "app"}
	g := group(1, fullSHA,
		rel(1, fullSHA, baseTime, app),
		rel(2, fullSHA, baseTime.Add(48*time.Hour), app),
	)
	store := newFakeStore(g)
	engine, collector := newTestEngine(t, store, false)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.GroupsMerged != 1 || summary.GroupsRenamed != 0 {
		t.Errorf("Expected 1 merged group, got %+v", summary)
	}
	if len(store.merges) != 1 {
		t.Fatalf("Expected 1 merge call, got %d", len(store.merges))
	}
	// Earliest release is the target when nothing has artifacts
	if store.merges[0].targetID != 1 {
		t.Errorf("Expected merge target 1, got %d", store.merges[0].targetID)
	}
	if len(collector.rows) != 2 {
		t.Fatalf("Expected 2 audit rows, got %d", len(collector.rows))
	}
	for _, row := range collector.rows {
		if row.Action != types.ActionMerge {
			t.Errorf("Expected action merge, got %s", row.Action)
		}
		if row.Version != fullSHA {
			t.Errorf("Expected version unchanged, got %s", row.Version)
		}
	}
}

func TestWordDateEnvironmentSplitMerges(t *testing.T) {
	// Scenario: word+date label reported from prod and dev projects,
	// three days apart. Environment split inside the window merges.
	g := group(2, "release-2016-01-01",
		rel(1, "release-2016-01-01", baseTime, types.Project{ID: 10, Slug: "app-prod"}),
		rel(2, "release-2016-01-01", baseTime.Add(72*time.Hour), types.Project{ID: 11, Slug: "app-dev"}),
	)
	store := newFakeStore(g)
	engine, collector := newTestEngine(t, store, false)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.GroupsMerged != 1 {
		t.Errorf("Expected merge outcome, got %+v", summary)
	}
	if len(collector.rows) != 2 {
		t.Errorf("Expected 2 audit rows, got %d", len(collector.rows))
	}
}

func TestSemverSpreadRenames(t *testing.T) {
	// Scenario: semver tag, one shared project, two hours apart, no shared
	// ref or URL. Past the 30-minute window this renames both.
	app := types.Project{ID: 10, Slug: "app"}
	g := group(3, "1.2.3",
		rel(1, "1.2.3", baseTime, app),
		rel(2, "1.2.3", baseTime.Add(2*time.Hour), app),
	)
	store := newFakeStore(g)
	engine, collector := newTestEngine(t, store, false)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.GroupsRenamed != 1 || summary.GroupsMerged != 0 {
		t.Errorf("Expected rename outcome, got %+v", summary)
	}

	for _, id := range []int64{1, 2} {
		if store.renames[id] != "app-1.2.3" {
			t.Errorf("Expected release %d renamed to app-1.2.3, got %q", id, store.renames[id])
		}
	}
	if len(store.tagRewrites) != 2 {
		t.Fatalf("Expected 2 tag rewrites, got %d", len(store.tagRewrites))
	}
	for _, tr := range store.tagRewrites {
		if tr.key != "release" || tr.oldValue != "1.2.3" || tr.newValue != "app-1.2.3" {
			t.Errorf("Unexpected tag rewrite: %+v", tr)
		}
	}
	for _, row := range collector.rows {
		if row.Action != types.ActionUpdatedVersion {
			t.Errorf("Expected action updated_version, got %s", row.Action)
		}
		if row.Version != "app-1.2.3" {
			t.Errorf("Expected post-rename version in report, got %s", row.Version)
		}
	}
}

func TestSemverSharedRefMerges(t *testing.T) {
	app := types.Project{ID: 10, Slug: "app"}
	r1 := rel(1, "1.2.3", baseTime, app)
	r2 := rel(2, "1.2.3", baseTime.Add(48*time.Hour), app)
	r1.Ref, r2.Ref = "deadbeef", "deadbeef"
	store := newFakeStore(group(3, "1.2.3", r1, r2))
	engine, _ := newTestEngine(t, store, false)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// Shared non-null ref trumps the timing rules entirely
	if summary.GroupsMerged != 1 {
		t.Errorf("Expected merge for shared ref, got %+v", summary)
	}
}

func TestOrphanReleaseDeleted(t *testing.T) {
	// Scenario: a projectless release hit during a rename branch.
	app := types.Project{ID: 10, Slug: "app"}
	g := group(4, "???",
		rel(1, "???", baseTime, app),
		rel(2, "???", baseTime.Add(time.Hour)), // no projects
	)
	store := newFakeStore(g)
	engine, collector := newTestEngine(t, store, false)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.OrphansDeleted != 1 {
		t.Errorf("Expected 1 orphan deleted, got %d", summary.OrphansDeleted)
	}
	if len(store.deletes) != 1 || store.deletes[0] != 2 {
		t.Errorf("Expected release 2 deleted, got %v", store.deletes)
	}
	// No tag rewrite for the deleted orphan
	for _, tr := range store.tagRewrites {
		if tr.oldValue == "???" && len(tr.projectIDs) == 0 {
			t.Errorf("Unexpected tag rewrite for orphan: %+v", tr)
		}
	}

	var sawDeleted bool
	for _, row := range collector.rows {
		if row.ReleaseID == 2 {
			sawDeleted = true
			if row.Action != types.ActionReleaseDeleted {
				t.Errorf("Expected release_deleted for orphan, got %s", row.Action)
			}
			if row.Version != "???" {
				t.Errorf("Expected original version for orphan, got %s", row.Version)
			}
		}
	}
	if !sawDeleted {
		t.Errorf("Expected an audit row for the deleted orphan")
	}
}

func TestDryRunReportsWithoutMutating(t *testing.T) {
	// Scenario: dry run over the semver rename case. Same rows, no writes,
	// pre-mutation version strings.
	app := types.Project{ID: 10, Slug: "app"}
	g := group(3, "1.2.3",
		rel(1, "1.2.3", baseTime, app),
		rel(2, "1.2.3", baseTime.Add(2*time.Hour), app),
	)
	store := newFakeStore(g)
	engine, collector := newTestEngine(t, store, true)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.GroupsRenamed != 1 {
		t.Errorf("Expected rename decision in dry run, got %+v", summary)
	}
	if store.mutationCount() != 0 {
		t.Errorf("Expected no mutations in dry run, got %d", store.mutationCount())
	}
	if len(collector.rows) != 2 {
		t.Fatalf("Expected 2 audit rows, got %d", len(collector.rows))
	}
	for _, row := range collector.rows {
		if row.Action != types.ActionUpdatedVersion {
			t.Errorf("Expected action updated_version, got %s", row.Action)
		}
		if row.Version != "1.2.3" {
			t.Errorf("Expected pre-mutation version in dry run, got %s", row.Version)
		}
	}
	// The run ledger still gets a row; it is tool bookkeeping, not data.
	if len(store.runs) != 1 || !store.runs[0].DryRun {
		t.Errorf("Expected one dry-run ledger entry, got %+v", store.runs)
	}
}

func TestMultipleArtifactHoldersForceRename(t *testing.T) {
	// Even a full-sha group renames when two releases carry artifacts.
	fullSHA := "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0"
	g := group(1, fullSHA,
		rel(1, fullSHA, baseTime, types.Project{ID: 10, Slug: "app"}),
		rel(2, fullSHA, baseTime.Add(time.Minute), types.Project{ID: 11, Slug: "worker"}),
	)
	store := newFakeStore(g)
	store.artifacts[1] = true
	store.artifacts[2] = true
	engine, _ := newTestEngine(t, store, false)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.GroupsRenamed != 1 || summary.GroupsMerged != 0 {
		t.Errorf("Expected forced rename, got %+v", summary)
	}
	if len(store.merges) != 0 {
		t.Errorf("Expected no merge calls, got %d", len(store.merges))
	}
}

func TestSingleArtifactHolderBecomesTarget(t *testing.T) {
	fullSHA := "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0"
	app := types.Project{ID: 10, Slug: "app"}
	g := group(1, fullSHA,
		rel(1, fullSHA, baseTime, app),
		rel(2, fullSHA, baseTime.Add(time.Minute), app),
	)
	store := newFakeStore(g)
	store.artifacts[2] = true // the later release holds the binaries
	engine, _ := newTestEngine(t, store, false)

	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(store.merges) != 1 {
		t.Fatalf("Expected 1 merge, got %d", len(store.merges))
	}
	if store.merges[0].targetID != 2 {
		t.Errorf("Expected artifact holder 2 as target, got %d", store.merges[0].targetID)
	}
}

func TestEmptyDatastoreIsNoOp(t *testing.T) {
	store := newFakeStore()
	engine, collector := newTestEngine(t, store, false)

	summary, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.GroupsProcessed != 0 || summary.ReleasesProcessed != 0 {
		t.Errorf("Expected empty summary, got %+v", summary)
	}
	if len(collector.rows) != 0 {
		t.Errorf("Expected empty report, got %d rows", len(collector.rows))
	}
	if store.mutationCount() != 0 {
		t.Errorf("Expected zero mutations, got %d", store.mutationCount())
	}
}

func TestRenameTruncation(t *testing.T) {
	longVersion := strings.Repeat("x", 70)
	app := types.Project{ID: 10, Slug: "frontend"}
	g := group(5, longVersion,
		rel(1, longVersion, baseTime, app),
		rel(2, longVersion, baseTime.Add(time.Hour), app),
	)
	store := newFakeStore(g)
	engine, _ := newTestEngine(t, store, false)

	if _, err := engine.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := truncate("frontend-"+longVersion, 64)
	if len(want) != 64 {
		t.Fatalf("Test setup broken: expected 64-char version, got %d", len(want))
	}
	if store.renames[1] != want {
		t.Errorf("Expected truncated rename %q, got %q", want, store.renames[1])
	}
	// Tag rewrite must use the same truncated value
	if len(store.tagRewrites) == 0 || store.tagRewrites[0].newValue != want {
		t.Errorf("Expected tag rewrite with truncated value, got %+v", store.tagRewrites)
	}
}

func TestMergeFailureAbortsRun(t *testing.T) {
	fullSHA := "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0"
	app := types.Project{ID: 10, Slug: "app"}
	g := group(1, fullSHA,
		rel(1, fullSHA, baseTime, app),
		rel(2, fullSHA, baseTime.Add(time.Minute), app),
	)
	store := newFakeStore(g)
	store.mergeErr = errors.New("foreign key constraint failed")
	engine, _ := newTestEngine(t, store, false)

	_, err := engine.Run(context.Background())
	if err == nil {
		t.Fatalf("Expected merge failure to abort the run")
	}
	if !strings.Contains(err.Error(), "foreign key constraint failed") {
		t.Errorf("Expected primitive failure in error chain, got: %v", err)
	}
	// Nothing recorded for an aborted run
	if len(store.runs) != 0 {
		t.Errorf("Expected no run ledger entry after abort, got %d", len(store.runs))
	}
}

func TestSelectMergeTarget(t *testing.T) {
	app := types.Project{ID: 10, Slug: "app"}
	early := rel(1, "v", baseTime, app)
	late := rel(2, "v", baseTime.Add(time.Hour), app)
	g := group(1, "v", late, early) // deliberately unordered

	if target := SelectMergeTarget(g, map[int64]bool{}); target != early {
		t.Errorf("Expected earliest release as target, got %+v", target)
	}
	if target := SelectMergeTarget(g, map[int64]bool{2: true}); target != late {
		t.Errorf("Expected sole artifact holder as target, got %+v", target)
	}
	if target := SelectMergeTarget(g, map[int64]bool{1: true, 2: true}); target != nil {
		t.Errorf("Expected no target with two artifact holders, got %+v", target)
	}
}

func TestDecideRuleTable(t *testing.T) {
	app := types.Project{ID: 10, Slug: "app"}
	prod := types.Project{ID: 11, Slug: "api-prod"}
	stag := types.Project{ID: 12, Slug: "api-staging"}

	tests := []struct {
		name    string
		version string
		spread  time.Duration
		p1, p2  types.Project
		want    Outcome
	}{
		{"short sha within window", "abc1234", time.Hour, app, app, OutcomeMerge},
		{"short sha past 8h", "abc1234", 9 * time.Hour, app, app, OutcomeRename},
		{"short sha past 8h but env split", "abc1234", 72 * time.Hour, prod, stag, OutcomeMerge},
		{"head tag past 8h", "HEAD-abc123", 9 * time.Hour, app, app, OutcomeRename},
		{"sha+date within window", "abc1234-2016-01-01", 4 * time.Hour, app, app, OutcomeMerge},
		{"semver within 30m", "1.2.3", 20 * time.Minute, app, app, OutcomeMerge},
		{"semver past 30m", "1.2.3", 2 * time.Hour, app, app, OutcomeRename},
		{"ci build within 4h", "travis-abc123", 3 * time.Hour, app, app, OutcomeMerge},
		{"ci build past 4h", "travis-abc123", 5 * time.Hour, app, app, OutcomeRename},
		{"word+date past 4h", "release-2016-01-01", 5 * time.Hour, app, app, OutcomeRename},
		{"long opaque within 4h", strings.Repeat("Z", 25), 3 * time.Hour, app, app, OutcomeMerge},
		{"short opaque always renames", "???", time.Second, app, app, OutcomeRename},
		{"env split past whole week", "abc1234", 8 * 24 * time.Hour, prod, stag, OutcomeRename},
	}

	engine, _ := newTestEngine(t, newFakeStore(), false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := group(1, tt.version,
				rel(1, tt.version, baseTime, tt.p1),
				rel(2, tt.version, baseTime.Add(tt.spread), tt.p2),
			)
			if got := engine.Decide(g); got != tt.want {
				t.Errorf("Decide(%s, spread %v) = %s, want %s", tt.version, tt.spread, got, tt.want)
			}
		})
	}
}
