package identity

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateProfiles = `CREATE TABLE profiles (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    display_name TEXT,
    account_number TEXT UNIQUE,
    phone_number TEXT,
    balance REAL,
    is_admin INTEGER NOT NULL DEFAULT 0,
    role TEXT,
    is_verified INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP
);`

	sqliteCreateSessions = `CREATE TABLE user_sessions (
    id TEXT NOT NULL PRIMARY KEY,
    profile_id TEXT NOT NULL,
    session_token TEXT NOT NULL UNIQUE,
    device_name TEXT,
    device_type TEXT,
    browser TEXT,
    os TEXT,
    ip_address TEXT,
    city TEXT,
    region TEXT,
    country TEXT,
    country_code TEXT,
    timezone TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    last_activity TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP NULL,
    FOREIGN KEY (profile_id) REFERENCES profiles (id) ON DELETE CASCADE
);`

	sqliteCreateActivityLogs = `CREATE TABLE activity_logs (
    id TEXT NOT NULL PRIMARY KEY,
    profile_id TEXT NOT NULL,
    action TEXT NOT NULL,
    resource_type TEXT,
    resource_id TEXT,
    device_info TEXT,
    location_info TEXT,
    session_token_prefix TEXT,
    success INTEGER NOT NULL DEFAULT 1,
    error_message TEXT,
    metadata TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (profile_id) REFERENCES profiles (id) ON DELETE CASCADE
);`

	sqliteCreateAdminUsers = `CREATE TABLE admin_users (
    id TEXT NOT NULL PRIMARY KEY,
    profile_id TEXT NOT NULL UNIQUE,
    role TEXT NOT NULL DEFAULT 'admin',
    is_active INTEGER NOT NULL DEFAULT 1,
    granted_by TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    FOREIGN KEY (profile_id) REFERENCES profiles (id) ON DELETE CASCADE
);`
)

func setupTestDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	for _, ddl := range []string{
		sqliteCreateProfiles,
		sqliteCreateSessions,
		sqliteCreateActivityLogs,
		sqliteCreateAdminUsers,
	} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return bunDB, cleanup
}

func setupTestRepos(t *testing.T) (RepositoryManager, func()) {
	t.Helper()

	db, cleanup := setupTestDB(t)
	return NewRepositoryManager(db), cleanup
}
