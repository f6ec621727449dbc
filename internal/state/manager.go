package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DBFileName is created inside the state directory
const DBFileName = "filesync.db"

// Cycle status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	// StatusIdle marks a cycle in which no peer responded
	StatusIdle = "idle"
)

// Manager handles state persistence and cycle history
type Manager struct {
	db *sql.DB
}

// CycleRecord represents one sync cycle of one remote
type CycleRecord struct {
	ID             int64
	CycleID        string
	RemoteName     string
	StartTime      time.Time
	EndTime        time.Time
	Status         string
	PeersQueried   int
	PeersResponded int
	FilesInstalled int
	BytesFetched   int64
	StagingDir     string
	Error          string

	// Installs is only populated by GetInstalls / SaveCycle
	Installs []InstallRecord
}

// InstallRecord is one file replaced during a cycle. BackupPath is empty
// when no live file existed.
type InstallRecord struct {
	Path        string
	PeerAlias   string
	BackupPath  string
	InstalledAt time.Time
}

// NewManager creates a new state manager
func NewManager(dataDir string) (*Manager, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, DBFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Limit connection pool to prevent "database is locked" errors
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000; PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	manager := &Manager{db: db}
	if err := manager.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return manager, nil
}

func (m *Manager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL UNIQUE,
		remote_name TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		peers_queried INTEGER DEFAULT 0,
		peers_responded INTEGER DEFAULT 0,
		files_installed INTEGER DEFAULT 0,
		bytes_fetched INTEGER DEFAULT 0,
		staging_dir TEXT,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_remote_time ON cycles(remote_name, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles(status);

	CREATE TABLE IF NOT EXISTS installs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cycle_id TEXT NOT NULL REFERENCES cycles(cycle_id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		peer_alias TEXT NOT NULL,
		backup_path TEXT,
		installed_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_installs_cycle ON installs(cycle_id);
	CREATE INDEX IF NOT EXISTS idx_installs_path ON installs(path);
	`

	_, err := m.db.Exec(schema)
	return err
}

// SaveCycle records a cycle and its installs in one transaction
func (m *Manager) SaveCycle(record CycleRecord) error {
	switch record.Status {
	case StatusSuccess, StatusFailed, StatusIdle:
	default:
		return fmt.Errorf("invalid status: %s (must be 'success', 'failed', or 'idle')", record.Status)
	}
	if record.CycleID == "" {
		return fmt.Errorf("cycle id cannot be empty")
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO cycles (cycle_id, remote_name, start_time, end_time, status,
			peers_queried, peers_responded, files_installed, bytes_fetched, staging_dir, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.CycleID,
		record.RemoteName,
		record.StartTime,
		record.EndTime,
		record.Status,
		record.PeersQueried,
		record.PeersResponded,
		record.FilesInstalled,
		record.BytesFetched,
		record.StagingDir,
		record.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle record: %w", err)
	}

	for _, inst := range record.Installs {
		_, err := tx.Exec(`
			INSERT INTO installs (cycle_id, path, peer_alias, backup_path, installed_at)
			VALUES (?, ?, ?, ?, ?)`,
			record.CycleID, inst.Path, inst.PeerAlias, inst.BackupPath, inst.InstalledAt)
		if err != nil {
			return fmt.Errorf("failed to save install record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle record: %w", err)
	}
	return nil
}

const cycleColumns = `id, cycle_id, remote_name, start_time, end_time, status,
	peers_queried, peers_responded, files_installed, bytes_fetched, staging_dir, error`

func scanCycle(row interface{ Scan(...any) error }) (CycleRecord, error) {
	var r CycleRecord
	var stagingDir, errText sql.NullString
	err := row.Scan(
		&r.ID,
		&r.CycleID,
		&r.RemoteName,
		&r.StartTime,
		&r.EndTime,
		&r.Status,
		&r.PeersQueried,
		&r.PeersResponded,
		&r.FilesInstalled,
		&r.BytesFetched,
		&stagingDir,
		&errText,
	)
	r.StagingDir = stagingDir.String
	r.Error = errText.String
	return r, err
}

func (m *Manager) queryCycles(query string, args ...any) ([]CycleRecord, error) {
	rows, err := m.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []CycleRecord
	for rows.Next() {
		record, err := scanCycle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}

// GetHistory retrieves the most recent cycles of a remote
func (m *Manager) GetHistory(remoteName string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return m.queryCycles(`SELECT `+cycleColumns+` FROM cycles
		WHERE remote_name = ? ORDER BY start_time DESC, id DESC LIMIT ?`, remoteName, limit)
}

// GetAllHistory retrieves the most recent cycles of all remotes
func (m *Manager) GetAllHistory(limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return m.queryCycles(`SELECT `+cycleColumns+` FROM cycles
		ORDER BY start_time DESC, id DESC LIMIT ?`, limit)
}

// GetLastSuccess retrieves the last successful cycle of a remote, or nil
func (m *Manager) GetLastSuccess(remoteName string) (*CycleRecord, error) {
	row := m.db.QueryRow(`SELECT `+cycleColumns+` FROM cycles
		WHERE remote_name = ? AND status = ? ORDER BY start_time DESC, id DESC LIMIT 1`,
		remoteName, StatusSuccess)

	record, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	return &record, nil
}

// GetInstalls lists the files installed by a cycle in install order
func (m *Manager) GetInstalls(cycleID string) ([]InstallRecord, error) {
	rows, err := m.db.Query(`SELECT path, peer_alias, backup_path, installed_at
		FROM installs WHERE cycle_id = ? ORDER BY id`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query installs: %w", err)
	}
	defer rows.Close()

	var installs []InstallRecord
	for rows.Next() {
		var inst InstallRecord
		var backup sql.NullString
		if err := rows.Scan(&inst.Path, &inst.PeerAlias, &backup, &inst.InstalledAt); err != nil {
			return nil, fmt.Errorf("failed to scan install: %w", err)
		}
		inst.BackupPath = backup.String
		installs = append(installs, inst)
	}
	return installs, rows.Err()
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
