package sqlite

const schema = `
-- Releases table
CREATE TABLE IF NOT EXISTS releases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    organization_id INTEGER NOT NULL,
    version TEXT NOT NULL CHECK(length(version) <= 64),
    ref TEXT,
    url TEXT,
    date_added DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_releases_org_version ON releases(organization_id, version);
CREATE INDEX IF NOT EXISTS idx_releases_date_added ON releases(date_added);

-- Projects table
CREATE TABLE IF NOT EXISTS projects (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    slug TEXT NOT NULL UNIQUE
);

-- Release/project associations
CREATE TABLE IF NOT EXISTS release_projects (
    release_id INTEGER NOT NULL,
    project_id INTEGER NOT NULL,
    PRIMARY KEY (release_id, project_id),
    FOREIGN KEY (release_id) REFERENCES releases(id) ON DELETE CASCADE,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_release_projects_project ON release_projects(project_id);

-- Uploaded build artifacts attached to releases
CREATE TABLE IF NOT EXISTS release_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    release_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    FOREIGN KEY (release_id) REFERENCES releases(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_release_files_release ON release_files(release_id);

-- Denormalized tag index; rows with key='release' must track version renames
CREATE TABLE IF NOT EXISTS tagvalues (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_id INTEGER NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id)
);

CREATE INDEX IF NOT EXISTS idx_tagvalues_lookup ON tagvalues(project_id, key, value);

-- One row per invocation of the cleanup tool
CREATE TABLE IF NOT EXISTS cleanup_runs (
    id TEXT PRIMARY KEY,
    dry_run INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    groups_merged INTEGER NOT NULL DEFAULT 0,
    groups_renamed INTEGER NOT NULL DEFAULT 0,
    releases_total INTEGER NOT NULL DEFAULT 0,
    orphans_deleted INTEGER NOT NULL DEFAULT 0
);
`
