package dedup

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the tunable thresholds for the merge decision engine.
//
// The durations were tuned empirically against the historical duplicate data
// this tool was written to repair. Treat them as knobs, not as meaningful
// domain boundaries.
type Config struct {
	// EnvSplitMergeWindow is the maximum creation-time spread under which a
	// group reported across multiple environments (prod/staging/dev) is still
	// merged. Default: 7 days.
	EnvSplitMergeWindow time.Duration

	// ShortSHARenameAfter is the spread beyond which short-sha, head-tag and
	// sha+date groups are renamed instead of merged. Default: 8 hours.
	ShortSHARenameAfter time.Duration

	// LooseShapeRenameAfter is the spread beyond which CI-build, word+date
	// and long opaque groups are renamed. These shapes carry less identity
	// than a hash, so the window is tighter. Default: 4 hours.
	LooseShapeRenameAfter time.Duration

	// SemverRenameAfter is the spread beyond which semver-like groups are
	// renamed (absent a shared ref or URL). Semver tags are reused across
	// genuinely different builds all the time, so this window is the
	// tightest. Default: 30 minutes.
	SemverRenameAfter time.Duration

	// MaxVersionLength is the cap applied to generated slug-qualified
	// version strings on rename. Default: 64, the datastore column limit.
	MaxVersionLength int
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		EnvSplitMergeWindow:   7 * 24 * time.Hour,
		ShortSHARenameAfter:   8 * time.Hour,
		LooseShapeRenameAfter: 4 * time.Hour,
		SemverRenameAfter:     30 * time.Minute,
		MaxVersionLength:      64,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.EnvSplitMergeWindow <= 0 {
		return fmt.Errorf("env_split_merge_window must be positive (got %v)", c.EnvSplitMergeWindow)
	}
	if c.ShortSHARenameAfter <= 0 {
		return fmt.Errorf("short_sha_rename_after must be positive (got %v)", c.ShortSHARenameAfter)
	}
	if c.LooseShapeRenameAfter <= 0 {
		return fmt.Errorf("loose_shape_rename_after must be positive (got %v)", c.LooseShapeRenameAfter)
	}
	if c.SemverRenameAfter <= 0 {
		return fmt.Errorf("semver_rename_after must be positive (got %v)", c.SemverRenameAfter)
	}
	if c.ShortSHARenameAfter >= c.EnvSplitMergeWindow {
		return fmt.Errorf("short_sha_rename_after (%v) must be below env_split_merge_window (%v)",
			c.ShortSHARenameAfter, c.EnvSplitMergeWindow)
	}
	if c.MaxVersionLength < 16 {
		return fmt.Errorf("max_version_length too small (got %d, min 16)", c.MaxVersionLength)
	}
	if c.MaxVersionLength > 256 {
		return fmt.Errorf("max_version_length too large (got %d, max 256)", c.MaxVersionLength)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{EnvSplitWindow: %v, ShaRename: %v, LooseRename: %v, SemverRename: %v, MaxVersionLen: %d}",
		c.EnvSplitMergeWindow, c.ShortSHARenameAfter, c.LooseShapeRenameAfter,
		c.SemverRenameAfter, c.MaxVersionLength,
	)
}

// ConfigFromEnv creates a Config from environment variables, falling back to
// defaults.
//
// Environment variables:
//   - RELCLEAN_ENV_SPLIT_WINDOW_SECS: multi-environment merge window (default: 604800)
//   - RELCLEAN_SHA_RENAME_SECS: short-sha shape rename threshold (default: 28800)
//   - RELCLEAN_LOOSE_RENAME_SECS: loose shape rename threshold (default: 14400)
//   - RELCLEAN_SEMVER_RENAME_SECS: semver shape rename threshold (default: 1800)
//   - RELCLEAN_MAX_VERSION_LEN: generated version length cap (default: 64)
//
// Returns an error if any environment variable has an invalid value.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if err := parseEnvDuration("RELCLEAN_ENV_SPLIT_WINDOW_SECS", &cfg.EnvSplitMergeWindow, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("RELCLEAN_SHA_RENAME_SECS", &cfg.ShortSHARenameAfter, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("RELCLEAN_LOOSE_RENAME_SECS", &cfg.LooseShapeRenameAfter, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("RELCLEAN_SEMVER_RENAME_SECS", &cfg.SemverRenameAfter, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("RELCLEAN_MAX_VERSION_LEN", &cfg.MaxVersionLength); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable.
// The multiplier converts the numeric value to a duration.
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
