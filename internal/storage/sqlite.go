package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding sandbox accounts, profiles, and
// per-client properties.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "sandbox.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and avoids
	// "database is locked" errors.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Accounts ---

const accountColumns = `a.user_id, p.profile_id, a.mail, a.password_hash, a.status, a.locale, a.timezone, a.created_at`

// CreateAccount inserts a new account together with its empty profile and
// returns it with both ids assigned. A taken mail yields ErrDuplicate.
func (s *Store) CreateAccount(a Account) (Account, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = "active"
	}
	if a.Locale == "" {
		a.Locale = "en_US"
	}
	if a.Timezone == "" {
		a.Timezone = "UTC"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return Account{}, fmt.Errorf("beginning account transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		INSERT INTO accounts (mail, password_hash, status, locale, timezone, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.Mail, a.PasswordHash, a.Status, a.Locale, a.Timezone, a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, fmt.Errorf("account %q: %w", a.Mail, ErrDuplicate)
		}
		return Account{}, err
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return Account{}, err
	}

	res, err = tx.Exec(`INSERT INTO profiles (user_id, updated_at) VALUES (?, ?)`,
		userID, a.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return Account{}, fmt.Errorf("creating profile: %w", err)
	}
	profileID, err := res.LastInsertId()
	if err != nil {
		return Account{}, err
	}

	if err := tx.Commit(); err != nil {
		return Account{}, fmt.Errorf("committing account: %w", err)
	}
	a.UserID = int(userID)
	a.ProfileID = int(profileID)
	return a, nil
}

func (s *Store) GetAccount(userID int) (Account, error) {
	return s.scanAccount(s.db.QueryRow(`
		SELECT `+accountColumns+`
		FROM accounts a JOIN profiles p ON p.user_id = a.user_id
		WHERE a.user_id = ?`, userID))
}

// GetAccountByMail looks an account up by mail, ignoring case.
func (s *Store) GetAccountByMail(mail string) (Account, error) {
	return s.scanAccount(s.db.QueryRow(`
		SELECT `+accountColumns+`
		FROM accounts a JOIN profiles p ON p.user_id = a.user_id
		WHERE a.mail = ?`, mail))
}

func (s *Store) scanAccount(row *sql.Row) (Account, error) {
	var a Account
	var createdAt string
	err := row.Scan(&a.UserID, &a.ProfileID, &a.Mail, &a.PasswordHash, &a.Status, &a.Locale, &a.Timezone, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Account{}, fmt.Errorf("parsing created_at: %w", err)
	}
	a.CreatedAt = t
	return a, nil
}

// UpdateAccount overwrites the mutable columns of an existing account.
func (s *Store) UpdateAccount(a Account) error {
	res, err := s.db.Exec(`
		UPDATE accounts SET mail = ?, password_hash = ?, status = ?, locale = ?, timezone = ?
		WHERE user_id = ?`,
		a.Mail, a.PasswordHash, a.Status, a.Locale, a.Timezone, a.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("account %q: %w", a.Mail, ErrDuplicate)
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Profiles ---

// GetProfile returns the profile owned by userID.
func (s *Store) GetProfile(userID int) (ProfileRecord, error) {
	var r ProfileRecord
	var updatedAt string
	err := s.db.QueryRow(`SELECT profile_id, user_id, updated_at FROM profiles WHERE user_id = ?`, userID).
		Scan(&r.ProfileID, &r.UserID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProfileRecord{}, ErrNotFound
	}
	if err != nil {
		return ProfileRecord{}, err
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return ProfileRecord{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	if r.Fields, err = s.profileFields(r.ProfileID); err != nil {
		return ProfileRecord{}, err
	}
	return r, nil
}

func (s *Store) profileFields(profileID int) (map[string]json.RawMessage, error) {
	rows, err := s.db.Query(`SELECT field, value FROM profile_fields WHERE profile_id = ?`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := make(map[string]json.RawMessage)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		fields[name] = json.RawMessage(value)
	}
	return fields, rows.Err()
}

// UpdateProfileFields applies set and clear to the profile of userID in one
// transaction. A field present in both is cleared.
func (s *Store) UpdateProfileFields(userID int, set map[string]json.RawMessage, clear []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning profile transaction: %w", err)
	}
	defer tx.Rollback()

	var profileID int
	err = tx.QueryRow(`SELECT profile_id FROM profiles WHERE user_id = ?`, userID).Scan(&profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	for name, value := range set {
		if _, err := tx.Exec(`
			INSERT INTO profile_fields (profile_id, field, value) VALUES (?, ?, ?)
			ON CONFLICT(profile_id, field) DO UPDATE SET value = excluded.value`,
			profileID, name, string(value),
		); err != nil {
			return fmt.Errorf("setting field %s: %w", name, err)
		}
	}
	for _, name := range clear {
		if _, err := tx.Exec(`DELETE FROM profile_fields WHERE profile_id = ? AND field = ?`, profileID, name); err != nil {
			return fmt.Errorf("clearing field %s: %w", name, err)
		}
	}
	if _, err := tx.Exec(`UPDATE profiles SET updated_at = ? WHERE profile_id = ?`,
		time.Now().UTC().Format(time.RFC3339), profileID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListProfiles returns profiles ordered by profile id. A limit of zero
// means no limit.
func (s *Store) ListProfiles(limit, offset int) ([]ProfileRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT profile_id, user_id, updated_at FROM profiles
		ORDER BY profile_id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}

	var results []ProfileRecord
	for rows.Next() {
		var r ProfileRecord
		var updatedAt string
		if err := rows.Scan(&r.ProfileID, &r.UserID, &updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if r.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Fields are loaded after the cursor is released; the pool has one connection.
	for i := range results {
		if results[i].Fields, err = s.profileFields(results[i].ProfileID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// GetProfileByID returns a profile by its own id rather than the owner's.
func (s *Store) GetProfileByID(profileID int) (ProfileRecord, error) {
	var userID int
	err := s.db.QueryRow(`SELECT user_id FROM profiles WHERE profile_id = ?`, profileID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ProfileRecord{}, ErrNotFound
	}
	if err != nil {
		return ProfileRecord{}, err
	}
	return s.GetProfile(userID)
}

// --- Properties ---

// GetProperty returns the value stored for key, scoped to the user and the
// calling client.
func (s *Store) GetProperty(userID int, clientID, key string) (bool, error) {
	var v bool
	err := s.db.QueryRow(`SELECT value FROM properties WHERE user_id = ? AND client_id = ? AND key = ?`,
		userID, clientID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return v, err
}

func (s *Store) SetProperty(userID int, clientID, key string, value bool) error {
	_, err := s.db.Exec(`
		INSERT INTO properties (user_id, client_id, key, value) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, client_id, key) DO UPDATE SET value = excluded.value`,
		userID, clientID, key, value,
	)
	return err
}

// DeleteProperty removes key. Deleting an absent property yields ErrNotFound.
func (s *Store) DeleteProperty(userID int, clientID, key string) error {
	res, err := s.db.Exec(`DELETE FROM properties WHERE user_id = ? AND client_id = ? AND key = ?`,
		userID, clientID, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProperties returns every property the client has stored for the user.
func (s *Store) ListProperties(userID int, clientID string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT key, value FROM properties WHERE user_id = ? AND client_id = ?`, userID, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]bool)
	for rows.Next() {
		var k string
		var v bool
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}
