// Package dedup decides what to do with groups of release records that share
// an organization and version string, and carries the decision out.
//
// Duplicate releases exist because the ingestion path raced with itself or
// because several projects reported the same deploy under one version label.
// For each duplicate group the engine picks one of two outcomes:
//
//   - MERGE: collapse the group into a single canonical release. All
//     artifact and project associations move to the merge target and the
//     other rows are deleted. Irreversible, so the rules err on the side of
//     evidence: identical full commit hashes merge unconditionally, everything
//     else needs corroborating signals (shared source refs, cross-environment
//     reporting, tight creation-time clustering).
//
//   - RENAME: qualify each release's version with a project slug so the
//     records stop colliding. Chosen whenever a merge would be ambiguous,
//     most importantly when more than one release in the group carries
//     uploaded build artifacts (merging would silently discard binaries).
//
// The decision cascade:
//
//	artifact census ──> more than one holder? ──────────────> RENAME all
//	        │
//	        └─> shape of the version string (internal/versions)
//	              full sha ──────────────────────────────────> MERGE
//	              short sha / head tag / sha+date ──> timing rules (8h)
//	              ci build / word+date / long opaque ─> timing rules (4h)
//	              semver-like ──> shared ref or URL? ─> MERGE, else timing (30m)
//	              anything else ─────────────────────────────> RENAME all
//
// The timing rules merge when the group spans several environments inside a
// seven-day window, rename when the creation timestamps are spread wider than
// the shape's threshold, and otherwise merge (near-simultaneous duplicates
// are assumed to be ingestion races).
//
// Thresholds were tuned against historical data, not derived from a model;
// they live in Config as plain tunable values.
//
// A dry run walks every branch and emits the same audit rows but issues no
// datastore mutations. Rename rows in a dry run show the pre-rename version,
// since the final string is only knowable after mutation.
package dedup
