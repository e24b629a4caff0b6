package storage

import (
	"context"

	"github.com/stackwatch/relclean/internal/storage/sqlite"
	"github.com/stackwatch/relclean/internal/types"
)

// Storage defines the datastore operations the cleanup engine consumes.
// The engine never touches SQL directly; everything it needs from the
// backing store goes through this interface so tests can substitute fakes.
type Storage interface {
	// Duplicate groups - all releases sharing (organization, version) with
	// count > 1, releases ordered by creation time
	DuplicateGroups(ctx context.Context) ([]*types.DuplicateGroup, error)

	// Artifact signal - distinct release IDs (from the given set) that have
	// at least one attached build artifact
	ReleasesWithArtifacts(ctx context.Context, releaseIDs []int64) (map[int64]bool, error)

	// Rename path
	UpdateReleaseVersion(ctx context.Context, releaseID int64, version string) error
	RewriteTagValues(ctx context.Context, projectIDs []int64, key, oldValue, newValue string) error
	DeleteRelease(ctx context.Context, releaseID int64) error

	// Merge primitive - atomically reassign all source-side associations to
	// the target and remove the sources. Failure leaves the group untouched
	// and must abort the run.
	MergeReleases(ctx context.Context, targetID int64, sourceIDs []int64) error

	// Run ledger
	RecordRun(ctx context.Context, run *types.Run) error

	// Statistics
	GetDuplicateStats(ctx context.Context) (*sqlite.DuplicateStats, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: "relclean.db",
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = "relclean.db"
	}
	return sqlite.New(cfg.Path)
}
