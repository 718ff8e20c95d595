package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tvship/internal/config"
	"tvship/internal/services"
)

// Store manages device registry persistence backed by SQLite.
type Store struct {
	db     *sql.DB
	path   string
	retain int
}

// Open initializes or connects to the registry database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.RegistryPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, retain: cfg.Deploy.HistoryRetainRecent}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

const deviceColumns = "alias, host, port, token, state, last_seen, created_at, updated_at"

// Upsert inserts or updates a device entry. Creating an alias that already
// exists with a different host:port fails with ErrDuplicateAlias so a trusted
// device is never silently repointed.
func (s *Store) Upsert(ctx context.Context, device *Device) error {
	if device == nil {
		return errors.New("device is required")
	}
	device.Alias = NormalizeAlias(device.Alias)
	if err := device.Validate(); err != nil {
		return fmt.Errorf("validate device: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	existing, err := scanDevice(tx.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE alias = ?", device.Alias))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing = nil
	case err != nil:
		return fmt.Errorf("lookup device: %w", err)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	if existing == nil {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO devices ("+deviceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			device.Alias, device.Host, device.Port, device.Token, string(device.State),
			nullableTime(device.LastSeen), timestamp, timestamp,
		); err != nil {
			return fmt.Errorf("insert device: %w", err)
		}
		device.CreatedAt = now
		device.UpdatedAt = now
	} else {
		if existing.Host != device.Host || existing.Port != device.Port {
			return services.Wrap(services.ErrDuplicateAlias, "registry", "upsert",
				fmt.Sprintf("alias %q already registered at %s", device.Alias, existing.Endpoint()), nil)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE devices SET host = ?, port = ?, token = ?, state = ?, last_seen = ?, updated_at = ? WHERE alias = ?",
			device.Host, device.Port, device.Token, string(device.State),
			nullableTime(device.LastSeen), timestamp, device.Alias,
		); err != nil {
			return fmt.Errorf("update device: %w", err)
		}
		device.CreatedAt = existing.CreatedAt
		device.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Get fetches a device by alias.
func (s *Store) Get(ctx context.Context, alias string) (*Device, error) {
	alias = NormalizeAlias(alias)
	device, err := scanDevice(s.db.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE alias = ?", alias))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "registry", "get", fmt.Sprintf("no device registered as %q", alias), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	return device, nil
}

// List returns all devices ordered by alias.
func (s *Store) List(ctx context.Context) ([]*Device, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY alias")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

// Remove deletes a device entry and its deployment history.
func (s *Store) Remove(ctx context.Context, alias string) error {
	alias = NormalizeAlias(alias)
	res, err := s.db.ExecContext(ctx, "DELETE FROM devices WHERE alias = ?", alias)
	if err != nil {
		return fmt.Errorf("remove device: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "registry", "remove", fmt.Sprintf("no device registered as %q", alias), nil)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM deployments WHERE alias = ?", alias); err != nil {
		return fmt.Errorf("remove deployment history: %w", err)
	}
	return nil
}

// SetState transitions a device's state. Transitioning away from paired
// clears the stored token so the token-iff-paired invariant holds; use
// Upsert to record a fresh pairing.
func (s *Store) SetState(ctx context.Context, alias string, state State) error {
	if !ValidState(state) {
		return fmt.Errorf("unknown device state %q", state)
	}
	if state == StatePaired {
		return errors.New("paired state requires a token; use Upsert")
	}
	alias = NormalizeAlias(alias)
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		"UPDATE devices SET state = ?, token = '', updated_at = ? WHERE alias = ?",
		string(state), timestamp, alias,
	)
	if err != nil {
		return fmt.Errorf("set device state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "registry", "set state", fmt.Sprintf("no device registered as %q", alias), nil)
	}
	return nil
}

// TouchLastSeen records a successful interaction with the device.
func (s *Store) TouchLastSeen(ctx context.Context, alias string, at time.Time) error {
	alias = NormalizeAlias(alias)
	_, err := s.db.ExecContext(ctx,
		"UPDATE devices SET last_seen = ?, updated_at = ? WHERE alias = ?",
		at.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano), alias,
	)
	if err != nil {
		return fmt.Errorf("touch last seen: %w", err)
	}
	return nil
}

// RecordDeployment appends one deployment attempt to the history, pruning
// old rows beyond the configured retention per alias.
func (s *Store) RecordDeployment(ctx context.Context, rec *DeploymentRecord) error {
	if rec == nil {
		return errors.New("deployment record is required")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("deployment record id is required")
	}
	rec.Alias = NormalizeAlias(rec.Alias)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO deployments (id, alias, package_id, version, checksum, status, attempts, error, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Alias, rec.PackageID, rec.Version, rec.Checksum, rec.Status, rec.Attempts, rec.Error,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("record deployment: %w", err)
	}
	if s.retain > 0 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM deployments WHERE alias = ? AND id NOT IN (
                SELECT id FROM deployments WHERE alias = ? ORDER BY started_at DESC LIMIT ?
            )`,
			rec.Alias, rec.Alias, s.retain,
		); err != nil {
			return fmt.Errorf("prune deployment history: %w", err)
		}
	}
	return nil
}

// ListDeployments returns the most recent deployment attempts for an alias,
// newest first.
func (s *Store) ListDeployments(ctx context.Context, alias string, limit int) ([]*DeploymentRecord, error) {
	if limit <= 0 {
		limit = s.retain
	}
	alias = NormalizeAlias(alias)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, alias, package_id, version, checksum, status, attempts, error, started_at, finished_at
         FROM deployments WHERE alias = ? ORDER BY started_at DESC LIMIT ?`,
		alias, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var records []*DeploymentRecord
	for rows.Next() {
		var rec DeploymentRecord
		var started, finished string
		if err := rows.Scan(&rec.ID, &rec.Alias, &rec.PackageID, &rec.Version, &rec.Checksum,
			&rec.Status, &rec.Attempts, &rec.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan deployment: %w", err)
		}
		if rec.StartedAt, err = parseTimestamp(started); err != nil {
			return nil, err
		}
		if rec.FinishedAt, err = parseTimestamp(finished); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deployments: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var device Device
	var state string
	var lastSeen sql.NullString
	var created, updated string
	if err := row.Scan(&device.Alias, &device.Host, &device.Port, &device.Token, &state, &lastSeen, &created, &updated); err != nil {
		return nil, err
	}
	device.State = State(state)
	if lastSeen.Valid && strings.TrimSpace(lastSeen.String) != "" {
		parsed, err := parseTimestamp(lastSeen.String)
		if err != nil {
			return nil, err
		}
		device.LastSeen = &parsed
	}
	var err error
	if device.CreatedAt, err = parseTimestamp(created); err != nil {
		return nil, err
	}
	if device.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return nil, err
	}
	return &device, nil
}

func parseTimestamp(value string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return parsed, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
