package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Detection is one stored classification result.
type Detection struct {
	ID          int64
	Source      string // file path or IMAP UID the message came from
	Agent       string // detector identifier, e.g. "RFC3834"
	Reason      string // e.g. "vacation", "userunknown"
	Recipient   string
	Diagnosis   string
	Status      string // enhanced status code, may be empty
	SoftBounce  bool
	MessageDate string // verbatim Date header
	CreatedAt   time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS detections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT,
		agent TEXT NOT NULL,
		reason TEXT NOT NULL,
		recipient TEXT NOT NULL,
		diagnosis TEXT,
		status TEXT,
		soft_bounce INTEGER DEFAULT 0,
		message_date TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_det_agent ON detections(agent);
	CREATE INDEX IF NOT EXISTS idx_det_reason ON detections(reason);
	CREATE INDEX IF NOT EXISTS idx_det_recipient ON detections(recipient);
	`

	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Add(d *Detection) error {
	query := `
	INSERT INTO detections (source, agent, reason, recipient, diagnosis, status, soft_bounce, message_date, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	soft := 0
	if d.SoftBounce {
		soft = 1
	}

	result, err := s.db.Exec(query,
		d.Source, d.Agent, d.Reason, d.Recipient, d.Diagnosis, d.Status, soft, d.MessageDate, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	d.ID = id
	return nil
}

func (s *Store) GetRecent(limit int) ([]Detection, error) {
	query := `
	SELECT id, source, agent, reason, recipient, diagnosis, status, soft_bounce, message_date, created_at
	FROM detections ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var detections []Detection
	for rows.Next() {
		d, err := scanDetection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		detections = append(detections, *d)
	}
	return detections, rows.Err()
}

// scanDetection handles nullable columns when scanning a row
func scanDetection(scanner interface{ Scan(...any) error }) (*Detection, error) {
	var d Detection
	var source, diagnosis, status, messageDate sql.NullString
	var soft int
	var createdAt sql.NullTime

	err := scanner.Scan(&d.ID, &source, &d.Agent, &d.Reason, &d.Recipient,
		&diagnosis, &status, &soft, &messageDate, &createdAt)
	if err != nil {
		return nil, err
	}

	d.Source = source.String
	d.Diagnosis = diagnosis.String
	d.Status = status.String
	d.SoftBounce = soft == 1
	d.MessageDate = messageDate.String
	d.CreatedAt = createdAt.Time
	return &d, nil
}

// GetReasonStats returns counts of detections per reason
func (s *Store) GetReasonStats() (map[string]int, error) {
	return s.countBy("reason")
}

// GetAgentStats returns counts of detections per agent
func (s *Store) GetAgentStats() (map[string]int, error) {
	return s.countBy("agent")
}

func (s *Store) countBy(column string) (map[string]int, error) {
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM detections GROUP BY %s`, column, column)

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		stats[key] = count
	}
	return stats, rows.Err()
}

// GetStats returns overall totals: all detections, hard bounces, soft bounces
func (s *Store) GetStats() (total, hard, soft int, err error) {
	query := `SELECT COUNT(*),
		SUM(CASE WHEN soft_bounce=0 AND status != '' THEN 1 ELSE 0 END),
		SUM(CASE WHEN soft_bounce=1 THEN 1 ELSE 0 END) FROM detections`

	var hardNull, softNull sql.NullInt64
	err = s.db.QueryRow(query).Scan(&total, &hardNull, &softNull)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to get stats: %w", err)
	}
	return total, int(hardNull.Int64), int(softNull.Int64), nil
}

func (s *Store) Close() error { return s.db.Close() }

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "bouncesift.db"
	}
	return filepath.Join(home, ".bouncesift", "bouncesift.db")
}
