package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/storage/models"
	"github.com/claimlens/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS verification_history (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		claim TEXT NOT NULL,
		verdict TEXT NOT NULL,
		confidence REAL NOT NULL,
		rationale TEXT,
		escalated INTEGER DEFAULT 0,
		internal_count INTEGER DEFAULT 0,
		external_count INTEGER DEFAULT 0,
		duration_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verification_user ON verification_history(user_id);
	CREATE INDEX IF NOT EXISTS idx_verification_created ON verification_history(created_at);
	CREATE INDEX IF NOT EXISTS idx_verification_verdict ON verification_history(verdict);

	CREATE TABLE IF NOT EXISTS verification_evidence (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		verification_id TEXT NOT NULL,
		evidence_id TEXT NOT NULL,
		source_url TEXT,
		origin TEXT NOT NULL,
		role TEXT NOT NULL,
		snippet TEXT,
		FOREIGN KEY (verification_id) REFERENCES verification_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_evidence_verification ON verification_evidence(verification_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertVerification(record *models.VerificationRecord) error {
	escalated := 0
	if record.Escalated {
		escalated = 1
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO verification_history (id, user_id, claim, verdict, confidence, rationale,
			escalated, internal_count, external_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.UserID,
		record.Claim,
		record.Verdict,
		record.Confidence,
		record.Rationale,
		escalated,
		record.InternalCount,
		record.ExternalCount,
		record.DurationMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert verification record: %w", err)
	}

	for _, ref := range record.Evidence {
		_, err = tx.Exec(`
			INSERT INTO verification_evidence (verification_id, evidence_id, source_url, origin, role, snippet)
			VALUES (?, ?, ?, ?, ?, ?)`,
			record.ID,
			ref.EvidenceID,
			ref.SourceURL,
			ref.Origin,
			ref.Role,
			ref.Snippet,
		)
		if err != nil {
			return fmt.Errorf("failed to insert evidence ref: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	logger.Info("Verification recorded",
		zap.String("verification_id", record.ID),
		zap.String("verdict", record.Verdict),
		zap.Float64("confidence", record.Confidence),
	)

	return nil
}

func (c *Client) GetHistory(userID string, limit int) ([]models.VerificationRecord, error) {
	rows, err := c.db.Query(`
		SELECT id, claim, verdict, confidence, rationale, escalated,
			internal_count, external_count, duration_ms, created_at
		FROM verification_history
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []models.VerificationRecord
	for rows.Next() {
		var r models.VerificationRecord
		var escalated int
		var createdAt int64

		err := rows.Scan(&r.ID, &r.Claim, &r.Verdict, &r.Confidence, &r.Rationale,
			&escalated, &r.InternalCount, &r.ExternalCount, &r.DurationMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.UserID = userID
		r.Escalated = escalated == 1
		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) GetVerification(id string) (*models.VerificationRecord, error) {
	var r models.VerificationRecord
	var escalated int
	var createdAt int64

	err := c.db.QueryRow(`
		SELECT id, user_id, claim, verdict, confidence, rationale, escalated,
			internal_count, external_count, duration_ms, created_at
		FROM verification_history WHERE id = ?`, id).Scan(
		&r.ID, &r.UserID, &r.Claim, &r.Verdict, &r.Confidence, &r.Rationale,
		&escalated, &r.InternalCount, &r.ExternalCount, &r.DurationMS, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get verification: %w", err)
	}

	r.Escalated = escalated == 1
	r.CreatedAt = time.Unix(createdAt, 0)

	rows, err := c.db.Query(`
		SELECT evidence_id, source_url, origin, role, snippet
		FROM verification_evidence WHERE verification_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get evidence refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		ref := models.EvidenceRef{VerificationID: id}
		if err := rows.Scan(&ref.EvidenceID, &ref.SourceURL, &ref.Origin, &ref.Role, &ref.Snippet); err != nil {
			return nil, fmt.Errorf("failed to scan evidence ref: %w", err)
		}
		r.Evidence = append(r.Evidence, ref)
	}

	return &r, rows.Err()
}
