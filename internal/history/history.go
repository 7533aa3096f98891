package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History manages the deployment attempt log in SQLite
type History struct {
	db *sql.DB
}

// NewHistory creates a new history tracker
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			site TEXT NOT NULL,
			client TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			deployment_id TEXT,
			url TEXT,
			duration_seconds REAL,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_site_created
		ON deployments(site, created_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordDeployment records a deployment attempt in the history
func (h *History) RecordDeployment(ctx context.Context, record *DeploymentRecord) (int64, error) {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := h.db.ExecContext(ctx, `
		INSERT INTO deployments
		(site, client, status, created_at, deployment_id, url,
		 duration_seconds, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.Site,
		record.Client,
		record.Status,
		createdAt.UTC().Format(time.RFC3339),
		record.DeploymentID,
		record.URL,
		record.DurationSeconds,
		record.ErrorMessage,
	)

	if err != nil {
		return 0, fmt.Errorf("failed to insert deployment record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// GetLatestDeployment returns the most recent deployment attempt for a site
func (h *History) GetLatestDeployment(ctx context.Context, site string) (*DeploymentRecord, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, site, client, status, created_at, deployment_id, url,
		       duration_seconds, error_message
		FROM deployments
		WHERE site = ?
		ORDER BY id DESC
		LIMIT 1
	`, site)

	record, err := scanDeploymentRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest deployment: %w", err)
	}

	return record, nil
}

// GetDeploymentHistory returns recent deployment attempts for a site
func (h *History) GetDeploymentHistory(ctx context.Context, site string, limit int) ([]DeploymentRecord, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, site, client, status, created_at, deployment_id, url,
		       duration_seconds, error_message
		FROM deployments
		WHERE site = ?
		ORDER BY id DESC
		LIMIT ?
	`, site, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployment history: %w", err)
	}
	defer rows.Close()

	var records []DeploymentRecord
	for rows.Next() {
		record, err := scanDeploymentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// CountDeployments returns the total number of recorded attempts
func (h *History) CountDeployments(ctx context.Context) (int64, error) {
	var count int64
	err := h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deployments`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count deployments: %w", err)
	}
	return count, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDeploymentRecord scans a database row into a DeploymentRecord
func scanDeploymentRecord(s scanner) (*DeploymentRecord, error) {
	var record DeploymentRecord
	var createdAtStr string

	err := s.Scan(
		&record.ID,
		&record.Site,
		&record.Client,
		&record.Status,
		&createdAtStr,
		&record.DeploymentID,
		&record.URL,
		&record.DurationSeconds,
		&record.ErrorMessage,
	)

	if err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	record.CreatedAt = createdAt

	return &record, nil
}
