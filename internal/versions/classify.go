// Package versions classifies release version strings by shape.
//
// The classifier is pure and total: every string matches at least the opaque
// fallback. The shape predicates are independent and deliberately overlap
// (a 40-char hex string matches both the full-sha and short-sha tests), so the
// priority order lives in one explicit list rather than in scattered call
// sites. Classify returns the first shape in that list whose predicate
// matches; downstream merge rules key off the result.
package versions

import "regexp"

// Shape is the classified form of a version string.
type Shape string

const (
	// ShapeFullSHA is exactly 40 or 32 lowercase hex characters.
	ShapeFullSHA Shape = "full-sha"
	// ShapeShortSHA is 7-40 lowercase hex characters (superset of full-sha;
	// only reported when the full-sha test already failed).
	ShapeShortSHA Shape = "short-sha"
	// ShapeHeadTag is head/master/qa followed by a separator and hex digits.
	ShapeHeadTag Shape = "head-tag"
	// ShapeSHAAndDate is a short hash with a -YYYY-MM-DD suffix.
	ShapeSHAAndDate Shape = "sha-date"
	// ShapeCIBuild is a Travis or Jenkins build tag.
	ShapeCIBuild Shape = "ci-build"
	// ShapeWordAndDate is a lowercase word with a -YYYY-MM-DD suffix.
	ShapeWordAndDate Shape = "word-date"
	// ShapeSemverLike is an optional word/v prefix followed by dot-separated
	// numeric groups. Intentionally loose: it matches almost any
	// letter-leading string with a digit in it, catching build labels that
	// would otherwise fall through to the opaque bucket.
	ShapeSemverLike Shape = "semver"
	// ShapeLongOpaque is any unmatched string of 20 or more characters.
	ShapeLongOpaque Shape = "long-opaque"
	// ShapeOpaque is everything else.
	ShapeOpaque Shape = "opaque"
)

// The sha tests are end-anchored: trailing garbage disqualifies a hash.
// Everything else is a prefix match, mirroring how these labels are produced
// (CI systems append build metadata after the recognizable stem).
var (
	fullSHAPattern  = regexp.MustCompile(`^([a-f0-9]{40}|[a-f0-9]{32})$`)
	shortSHAPattern = regexp.MustCompile(`^[a-f0-9]{7,40}$`)
	headTagPattern  = regexp.MustCompile(`(?i)^(head|master|qa)[_\-@(][a-f0-9]{6,40}\)?`)
	shaDatePattern  = regexp.MustCompile(`^[a-f0-9]{7,40}-\d{4}-\d{2}-\d{2}`)
	travisPattern   = regexp.MustCompile(`(?i)^travis[_-][a-f0-9]{1,40}`)
	jenkinsPattern  = regexp.MustCompile(`(?i)^jenkins[_-]\d{1,40}[_-][0-9a-f]{5,40}`)
	wordDatePattern = regexp.MustCompile(`^[a-z]+-\d{4}-\d{2}-\d{2}`)
	semverPattern   = regexp.MustCompile(`^[a-z]*-?v?\d+(\.\d+)*`)
)

// IsFullSHA reports whether v is a complete git (40) or md5-style (32)
// lowercase hex digest.
func IsFullSHA(v string) bool { return fullSHAPattern.MatchString(v) }

// IsShortSHA reports whether v is an abbreviated lowercase hex digest.
func IsShortSHA(v string) bool { return shortSHAPattern.MatchString(v) }

// IsHeadTag reports whether v looks like a branch-head label such as
// "HEAD-abc123" or "master@deadbeef".
func IsHeadTag(v string) bool { return headTagPattern.MatchString(v) }

// IsSHAAndDate reports whether v starts with a short hash followed by a
// YYYY-MM-DD date.
func IsSHAAndDate(v string) bool { return shaDatePattern.MatchString(v) }

// IsTravisBuild reports whether v looks like a Travis CI build tag.
func IsTravisBuild(v string) bool { return travisPattern.MatchString(v) }

// IsJenkinsBuild reports whether v looks like a Jenkins build tag.
func IsJenkinsBuild(v string) bool { return jenkinsPattern.MatchString(v) }

// IsWordAndDate reports whether v starts with a lowercase word followed by a
// YYYY-MM-DD date, e.g. "release-2016-01-01".
func IsWordAndDate(v string) bool { return wordDatePattern.MatchString(v) }

// IsSemverLike reports whether v starts with an optional lowercase word,
// optional hyphen, optional "v", then numeric dot groups. See ShapeSemverLike
// for why this is looser than real semver.
func IsSemverLike(v string) bool { return semverPattern.MatchString(v) }

// longOpaqueThreshold splits the fallback bucket: long unmatched strings are
// treated like CI build labels, short ones get no benefit of the doubt.
const longOpaqueThreshold = 20

// classifiers is the priority order. The date-shaped and CI tests run before
// the loose semver test so that strings like "release-2016-01-01" (which the
// semver pattern would also accept) classify by their more specific shape.
var classifiers = []struct {
	shape Shape
	match func(string) bool
}{
	{ShapeFullSHA, IsFullSHA},
	{ShapeShortSHA, IsShortSHA},
	{ShapeHeadTag, IsHeadTag},
	{ShapeSHAAndDate, IsSHAAndDate},
	{ShapeCIBuild, func(v string) bool { return IsTravisBuild(v) || IsJenkinsBuild(v) }},
	{ShapeWordAndDate, IsWordAndDate},
	{ShapeSemverLike, IsSemverLike},
}

// Classify returns the first matching shape in priority order.
func Classify(v string) Shape {
	for _, c := range classifiers {
		if c.match(v) {
			return c.shape
		}
	}
	if len(v) >= longOpaqueThreshold {
		return ShapeLongOpaque
	}
	return ShapeOpaque
}
