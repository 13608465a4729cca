package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/blackwell-systems/capwatch/internal/consent"
)

// Capability operations

// UpdateCapability inserts or replaces a capability row.
func (s *Store) UpdateCapability(info *CapabilityInfo) error {
	query := `
		INSERT INTO capabilities (name, state_name, change_stamp, updated_at, session_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			state_name = excluded.state_name,
			change_stamp = excluded.change_stamp,
			updated_at = excluded.updated_at,
			session_id = excluded.session_id
	`

	_, err := s.db.Exec(query,
		info.Name,
		formatStateName(info.StateName),
		int64(info.ChangeStamp),
		info.UpdatedAt.UTC().Format(time.RFC3339Nano),
		info.SessionID,
	)
	if err != nil {
		return wrap(err, "failed to update capability %s", info.Name)
	}
	return nil
}

// GetCapability retrieves a capability by name.
func (s *Store) GetCapability(name string) (*CapabilityInfo, error) {
	query := `
		SELECT name, state_name, change_stamp, updated_at, session_id
		FROM capabilities
		WHERE name = ?
	`

	info, err := scanCapability(s.db.QueryRow(query, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("capability %s not found", name)
	}
	if err != nil {
		return nil, wrap(err, "failed to get capability %s", name)
	}
	return info, nil
}

// ListCapabilities returns all capability rows ordered by name.
func (s *Store) ListCapabilities() ([]*CapabilityInfo, error) {
	query := `
		SELECT name, state_name, change_stamp, updated_at, session_id
		FROM capabilities
		ORDER BY name
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrap(err, "failed to list capabilities")
	}
	defer rows.Close()

	var infos []*CapabilityInfo
	for rows.Next() {
		info, err := scanCapability(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan capability row: %w", err)
		}
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating capabilities: %w", err)
	}
	return infos, nil
}

// RemoveCapability deletes a capability and its usage rows.
func (s *Store) RemoveCapability(name string) error {
	if _, err := s.db.Exec("DELETE FROM capabilities WHERE name = ?", name); err != nil {
		return wrap(err, "failed to remove capability %s", name)
	}
	return nil
}

// Reset deletes every row. The watcher calls it when a new session starts
// so the file never describes a previous session.
func (s *Store) Reset() error {
	if _, err := s.db.Exec("DELETE FROM capabilities"); err != nil {
		return wrap(err, "failed to reset store")
	}
	return nil
}

// Usage operations

// ReplaceSnapshot replaces every usage row of capability with snap in one
// transaction. The capability row must exist.
func (s *Store) ReplaceSnapshot(capability string, snap consent.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM current_usage WHERE capability = ?", capability); err != nil {
		return wrap(err, "failed to clear usage for %s", capability)
	}
	if err := upsertUsage(tx, capability, snap); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot for %s: %w", capability, err)
	}
	return nil
}

// ApplyChanges upserts changed records. Records missing from changed are
// left untouched.
func (s *Store) ApplyChanges(capability string, changed []consent.UsageRecord) error {
	if len(changed) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertUsage(tx, capability, changed); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit changes for %s: %w", capability, err)
	}
	return nil
}

// CurrentUsage returns the mirrored snapshot of capability ordered by app.
func (s *Store) CurrentUsage(capability string) (consent.Snapshot, error) {
	query := `
		SELECT capability, app_id, packaged, in_use, last_used_stop
		FROM current_usage
		WHERE capability = ?
		ORDER BY app_id
	`

	rows, err := s.db.Query(query, capability)
	if err != nil {
		return nil, wrap(err, "failed to get usage for %s", capability)
	}
	defer rows.Close()

	return scanUsageRows(rows)
}

// InUse returns every in-use record across capabilities.
func (s *Store) InUse() ([]consent.UsageRecord, error) {
	query := `
		SELECT capability, app_id, packaged, in_use, last_used_stop
		FROM current_usage
		WHERE in_use = 1
		ORDER BY capability, app_id
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, wrap(err, "failed to list in-use apps")
	}
	defer rows.Close()

	return scanUsageRows(rows)
}

func upsertUsage(tx *sql.Tx, capability string, records []consent.UsageRecord) error {
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO current_usage
		(capability, app_id, packaged, in_use, last_used_stop)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return wrap(err, "failed to prepare usage insert")
	}
	defer stmt.Close()

	for _, r := range records {
		var stop sql.NullString
		if !r.LastUsedStop.IsZero() {
			stop = sql.NullString{String: r.LastUsedStop.UTC().Format(time.RFC3339Nano), Valid: true}
		}
		if _, err := stmt.Exec(capability, r.AppID, r.Packaged, r.InUse, stop); err != nil {
			return wrap(err, "failed to store usage of %s by %s", capability, r.AppID)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCapability(row scanner) (*CapabilityInfo, error) {
	var info CapabilityInfo
	var stateName string
	var stamp int64
	var updatedAt string

	if err := row.Scan(&info.Name, &stateName, &stamp, &updatedAt, &info.SessionID); err != nil {
		return nil, err
	}

	var err error
	info.StateName, err = parseStateName(stateName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse state_name for %s: %w", info.Name, err)
	}
	info.ChangeStamp = uint32(stamp)
	info.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at for %s: %w", info.Name, err)
	}
	return &info, nil
}

func scanUsageRows(rows *sql.Rows) (consent.Snapshot, error) {
	snap := consent.Snapshot{}
	for rows.Next() {
		var r consent.UsageRecord
		var stop sql.NullString

		if err := rows.Scan(&r.Capability, &r.AppID, &r.Packaged, &r.InUse, &stop); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		if stop.Valid {
			t, err := time.Parse(time.RFC3339Nano, stop.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse last_used_stop for %s: %w", r.AppID, err)
			}
			r.LastUsedStop = t
		}
		snap = append(snap, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}
	return snap, nil
}

// State names use the full uint64 range, which database/sql cannot bind.
// formatStateName writes 16 hex digits so the column sorts and reads
// uniformly.
func formatStateName(v uint64) string {
	return fmt.Sprintf("0x%016x", v)
}

func parseStateName(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}
