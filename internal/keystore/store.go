// Package keystore provides SQLite-backed storage for API credentials and
// personas. A credential authorises programmatic chat access: it is bound to
// one persona and carries a rolling hourly rate budget. Verification and rate
// accounting happen in a single conditional UPDATE so concurrent requests
// against the same credential cannot both pass a check the ceiling should
// have rejected.
package keystore

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// KeyPrefix is the fixed prefix every API key carries. Requests whose
// credential does not start with it are rejected before any store lookup.
const KeyPrefix = "sk_"

// rateWindow is the rolling rate-limit window. The usage counter resets the
// first time a request arrives after a full window has elapsed since
// last_used — not on a fixed clock boundary.
const rateWindow = time.Hour

// defaultRateLimit is the per-hour request ceiling assigned to new keys.
const defaultRateLimit = 100

// defaultPermissions is the capability set granted to new keys.
var defaultPermissions = []string{"persona:read", "chat:create"}

// ErrUnauthenticated is returned when a credential is missing, malformed,
// unknown, or inactive. Callers must not distinguish these cases to clients.
var ErrUnauthenticated = errors.New("keystore: unauthenticated")

// ErrRateLimited is returned when a credential has spent its hourly budget.
var ErrRateLimited = errors.New("keystore: rate limit exceeded")

// Credential is a resolved API key. UsageCount and LastUsed reflect the state
// after the verification that produced it (the accepted request is counted).
type Credential struct {
	// ID is the key's stable identifier, safe to expose in listings.
	ID string
	// Key is the secret credential string. Only populated on creation.
	Key string
	// Account identifies the owning account.
	Account string
	// Name is the operator-assigned label for the key.
	Name string
	// PersonaID is the persona this key is bound to.
	PersonaID string
	// Active indicates the key has not been revoked.
	Active bool
	// UsageCount is the number of accepted requests in the current window.
	UsageCount int
	// RateLimit is the per-hour request ceiling.
	RateLimit int
	// LastUsed is the time of the most recent accepted request.
	// Zero if the key has never been used.
	LastUsed time.Time
	// Permissions is the granted capability set.
	Permissions []string
	// CreatedAt is when the key was created.
	CreatedAt time.Time
}

// Remaining returns the requests left in the current rate window.
func (c *Credential) Remaining() int {
	if r := c.RateLimit - c.UsageCount; r > 0 {
		return r
	}
	return 0
}

// Persona is the system-prompt identity a credential speaks as.
type Persona struct {
	// ID is the persona identifier.
	ID string
	// Name is the display name returned to API callers.
	Name string
	// SystemPrompt is the base instruction text for the generation model.
	SystemPrompt string
	// Active indicates the persona is available for use.
	Active bool
}

// Store persists API keys and personas in a local SQLite database.
// It is safe for concurrent use.
type Store struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// now returns the current time; overridable in tests.
	now func() time.Time
}

// DefaultDBPath returns the default path for the credential database.
// It resolves to ~/.adab/adab.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("keystore: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".adab")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("keystore: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "adab.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("keystore: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS api_keys (
    id           TEXT    PRIMARY KEY,
    key          TEXT    NOT NULL UNIQUE,
    account      TEXT    NOT NULL,
    name         TEXT    NOT NULL,
    persona_id   TEXT    NOT NULL,
    is_active    INTEGER NOT NULL DEFAULT 1,
    usage_count  INTEGER NOT NULL DEFAULT 0,
    rate_limit   INTEGER NOT NULL,
    last_used    INTEGER,           -- Unix timestamp (seconds), NULL = never used
    permissions  TEXT    NOT NULL,  -- comma-separated capability set
    created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_api_keys_account ON api_keys(account);

CREATE TABLE IF NOT EXISTS personas (
    id            TEXT    PRIMARY KEY,
    name          TEXT    NOT NULL,
    system_prompt TEXT    NOT NULL,
    is_active     INTEGER NOT NULL DEFAULT 1
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("keystore: migrate: %w", err)
	}
	return nil
}

// Verify resolves a raw credential string, consuming one unit of its rate
// budget on success. The reset-if-expired / reject-at-ceiling / increment
// sequence runs as one conditional UPDATE: SQLite serialises writers, so the
// counter can never overshoot the ceiling.
//
// Returns ErrUnauthenticated for missing/malformed/unknown/inactive keys and
// ErrRateLimited when the hourly budget is spent.
func (s *Store) Verify(ctx context.Context, rawKey string) (*Credential, error) {
	// Prefix gate — malformed credentials never reach the database.
	if !strings.HasPrefix(rawKey, KeyPrefix) || len(rawKey) <= len(KeyPrefix) {
		return nil, ErrUnauthenticated
	}

	now := s.now().UTC()
	cutoff := now.Add(-rateWindow).Unix()

	// One statement: reset the counter if the previous window fully elapsed,
	// otherwise increment — but only when under the ceiling. A key that has
	// never been used (last_used NULL) always passes.
	res, err := s.db.ExecContext(ctx, `
UPDATE api_keys SET
    usage_count = CASE
        WHEN last_used IS NOT NULL AND last_used <= ?1 THEN 1
        ELSE usage_count + 1
    END,
    last_used = ?2
WHERE key = ?3 AND is_active = 1
  AND (last_used IS NULL OR last_used <= ?1 OR usage_count < rate_limit)`,
		cutoff, now.Unix(), rawKey)
	if err != nil {
		return nil, fmt.Errorf("keystore: verify update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("keystore: verify rows affected: %w", err)
	}

	if n == 0 {
		// Either the key does not exist / is inactive, or it is at its
		// ceiling within the current window. Distinguish with a read.
		var active bool
		err := s.db.QueryRowContext(ctx,
			`SELECT is_active FROM api_keys WHERE key = ?1`, rawKey).Scan(&active)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, ErrUnauthenticated
		case err != nil:
			return nil, fmt.Errorf("keystore: verify lookup: %w", err)
		case !active:
			return nil, ErrUnauthenticated
		default:
			return nil, ErrRateLimited
		}
	}

	cred, err := s.credentialByKey(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// credentialByKey reads the full credential row for the given key.
func (s *Store) credentialByKey(ctx context.Context, rawKey string) (*Credential, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, key, account, name, persona_id, is_active, usage_count, rate_limit,
       last_used, permissions, created_at
FROM api_keys WHERE key = ?1`, rawKey)
	return scanCredential(row)
}

// CreateKey generates a new API key bound to the given persona and inserts
// it. The secret key string is only available on the returned Credential —
// it is never retrievable again in full.
func (s *Store) CreateKey(ctx context.Context, account, name, personaID string, rateLimit int) (*Credential, error) {
	if account == "" || name == "" || personaID == "" {
		return nil, fmt.Errorf("keystore: account, name, and persona are required")
	}
	if rateLimit <= 0 {
		rateLimit = defaultRateLimit
	}

	key, err := generateKey()
	if err != nil {
		return nil, err
	}
	id, err := randomHex(8)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cred := &Credential{
		ID:          id,
		Key:         key,
		Account:     account,
		Name:        name,
		PersonaID:   personaID,
		Active:      true,
		RateLimit:   rateLimit,
		Permissions: append([]string(nil), defaultPermissions...),
		CreatedAt:   now,
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO api_keys (id, key, account, name, persona_id, is_active, usage_count,
                      rate_limit, last_used, permissions, created_at)
VALUES (?1, ?2, ?3, ?4, ?5, 1, 0, ?6, NULL, ?7, ?8)`,
		cred.ID, cred.Key, cred.Account, cred.Name, cred.PersonaID,
		cred.RateLimit, strings.Join(cred.Permissions, ","), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("keystore: create key: %w", err)
	}

	return cred, nil
}

// ListKeys returns all keys for the given account, newest first. The secret
// key column is redacted to its prefix plus the last four characters.
func (s *Store) ListKeys(ctx context.Context, account string) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, key, account, name, persona_id, is_active, usage_count, rate_limit,
       last_used, permissions, created_at
FROM api_keys WHERE account = ?1 ORDER BY created_at DESC`, account)
	if err != nil {
		return nil, fmt.Errorf("keystore: list keys: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		c.Key = redactKey(c.Key)
		creds = append(creds, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("keystore: list keys: %w", err)
	}
	return creds, nil
}

// RevokeKey deactivates the key with the given ID. Revocation is soft so
// usage history survives for accounting.
func (s *Store) RevokeKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = 0 WHERE id = ?1`, id)
	if err != nil {
		return fmt.Errorf("keystore: revoke key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("keystore: revoke key: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("keystore: no key with id %q", id)
	}
	return nil
}

// Persona returns the active persona with the given ID, or an error if it
// does not exist or has been deactivated.
func (s *Store) Persona(ctx context.Context, id string) (*Persona, error) {
	var p Persona
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, system_prompt, is_active FROM personas WHERE id = ?1 AND is_active = 1`,
		id).Scan(&p.ID, &p.Name, &p.SystemPrompt, &p.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("keystore: persona %q not found or inactive", id)
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: load persona: %w", err)
	}
	return &p, nil
}

// UpsertPersona inserts or replaces a persona definition.
func (s *Store) UpsertPersona(ctx context.Context, p *Persona) error {
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("keystore: persona id and name are required")
	}
	active := 0
	if p.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO personas (id, name, system_prompt, is_active)
VALUES (?1, ?2, ?3, ?4)
ON CONFLICT(id) DO UPDATE SET name = ?2, system_prompt = ?3, is_active = ?4`,
		p.ID, p.Name, p.SystemPrompt, active)
	if err != nil {
		return fmt.Errorf("keystore: upsert persona: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("keystore: ping: %w", err)
	}
	return nil
}

// Close releases the underlying database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCredential reads one api_keys row into a Credential.
func scanCredential(row rowScanner) (*Credential, error) {
	var (
		c         Credential
		active    int
		lastUsed  sql.NullInt64
		perms     string
		createdAt int64
	)
	err := row.Scan(&c.ID, &c.Key, &c.Account, &c.Name, &c.PersonaID, &active,
		&c.UsageCount, &c.RateLimit, &lastUsed, &perms, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("keystore: scan credential: %w", err)
	}
	c.Active = active == 1
	if lastUsed.Valid {
		c.LastUsed = time.Unix(lastUsed.Int64, 0).UTC()
	}
	if perms != "" {
		c.Permissions = strings.Split(perms, ",")
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &c, nil
}

// generateKey returns a new secret key: the fixed prefix plus 48 hex chars.
func generateKey() (string, error) {
	suffix, err := randomHex(24)
	if err != nil {
		return "", err
	}
	return KeyPrefix + suffix, nil
}

// randomHex returns n cryptographically random bytes hex-encoded.
func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("keystore: random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// redactKey keeps the prefix and final four characters of a key, masking the
// rest, for safe display in listings.
func redactKey(key string) string {
	if len(key) <= len(KeyPrefix)+4 {
		return key
	}
	return KeyPrefix + "..." + key[len(key)-4:]
}
