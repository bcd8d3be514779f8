package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"

	"github.com/loserner/CipherTrace/ledger"
)

// PostgresStore implements ledger.Store with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore opens the database, verifies connectivity and runs
// migrations.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS data_handles (
		id VARCHAR(66) PRIMARY KEY,
		owner VARCHAR(42) NOT NULL,
		ciphertext TEXT NOT NULL,
		active BOOLEAN NOT NULL,
		seq BIGSERIAL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analysis_requests (
		id VARCHAR(66) PRIMARY KEY,
		owner VARCHAR(42) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		input_handles TEXT NOT NULL,
		result_handle TEXT,
		seq BIGSERIAL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL,
		completed_at TIMESTAMP WITH TIME ZONE
	);

	CREATE INDEX IF NOT EXISTS idx_handles_owner ON data_handles(owner, seq);
	CREATE INDEX IF NOT EXISTS idx_requests_owner ON analysis_requests(owner, seq);
	CREATE INDEX IF NOT EXISTS idx_requests_status ON analysis_requests(status, seq);
	`

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) PutHandle(h *ledger.DataHandle) error {
	ctx, cancel := opCtx()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO data_handles (id, owner, ciphertext, active, created_at)
	VALUES ($1, $2, $3, $4, $5)`,
		h.ID.Hex(), h.Owner.Hex(), h.Payload.Ciphertext, h.Active, h.CreatedAt)
	return err
}

func (s *PostgresStore) Handle(id common.Hash) (*ledger.DataHandle, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var (
		h        ledger.DataHandle
		idHex    string
		ownerHex string
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT id, owner, ciphertext, active, created_at
	FROM data_handles WHERE id = $1`, id.Hex()).
		Scan(&idHex, &ownerHex, &h.Payload.Ciphertext, &h.Active, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.ID = common.HexToHash(idHex)
	h.Owner = common.HexToAddress(ownerHex)
	return &h, nil
}

func (s *PostgresStore) UpdateHandle(h *ledger.DataHandle) error {
	ctx, cancel := opCtx()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
	UPDATE data_handles SET active = $2 WHERE id = $1`, h.ID.Hex(), h.Active)
	return err
}

func (s *PostgresStore) HandlesByOwner(owner common.Address, offset, limit int) ([]common.Hash, error) {
	return s.idPage(`SELECT id FROM data_handles WHERE owner = $1 ORDER BY seq OFFSET $2 LIMIT $3`,
		owner, offset, limit)
}

func (s *PostgresStore) PutRequest(r *ledger.AnalysisRequest) error {
	ctx, cancel := opCtx()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO analysis_requests (id, owner, kind, status, input_handles, result_handle, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID.Hex(), r.Owner.Hex(), string(r.Kind), string(r.Status),
		joinHashes(r.InputHandles), r.ResultHandle, r.CreatedAt)
	return err
}

func (s *PostgresStore) Request(id common.Hash) (*ledger.AnalysisRequest, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var (
		r           ledger.AnalysisRequest
		idHex       string
		ownerHex    string
		kind        string
		status      string
		inputs      string
		result      sql.NullString
		completedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT id, owner, kind, status, input_handles, result_handle, created_at, completed_at
	FROM analysis_requests WHERE id = $1`, id.Hex()).
		Scan(&idHex, &ownerHex, &kind, &status, &inputs, &result, &r.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ID = common.HexToHash(idHex)
	r.Owner = common.HexToAddress(ownerHex)
	r.Kind = ledger.AnalysisKind(kind)
	r.Status = ledger.AnalysisStatus(status)
	r.InputHandles = splitHashes(inputs)
	if result.Valid {
		r.ResultHandle = result.String
	}
	if completedAt.Valid {
		r.CompletedAt = completedAt.Time
	}
	return &r, nil
}

// UpdateRequest persists a completion. The status guard in the WHERE clause
// keeps a lost race from overwriting an existing result.
func (s *PostgresStore) UpdateRequest(r *ledger.AnalysisRequest) error {
	ctx, cancel := opCtx()
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
	UPDATE analysis_requests
	SET status = $2, result_handle = $3, completed_at = $4
	WHERE id = $1 AND status = 'pending'`,
		r.ID.Hex(), string(r.Status), r.ResultHandle, r.CompletedAt)
	return err
}

func (s *PostgresStore) RequestsByOwner(owner common.Address, offset, limit int) ([]common.Hash, error) {
	return s.idPage(`SELECT id FROM analysis_requests WHERE owner = $1 ORDER BY seq OFFSET $2 LIMIT $3`,
		owner, offset, limit)
}

func (s *PostgresStore) PendingRequests(limit int) ([]common.Hash, error) {
	ctx, cancel := opCtx()
	defer cancel()

	if limit <= 0 {
		limit = 1 << 30
	}
	rows, err := s.db.QueryContext(ctx, `
	SELECT id FROM analysis_requests WHERE status = 'pending' ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHashes(rows)
}

func (s *PostgresStore) Counts() (ledger.Counts, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var c ledger.Counts
	err := s.db.QueryRowContext(ctx, `
	SELECT
		(SELECT COUNT(*) FROM data_handles),
		(SELECT COUNT(*) FROM data_handles WHERE active),
		(SELECT COUNT(*) FROM analysis_requests),
		(SELECT COUNT(*) FROM analysis_requests WHERE status = 'completed')`).
		Scan(&c.TotalHandles, &c.ActiveHandles, &c.TotalAnalyses, &c.CompletedAnalyses)
	return c, err
}

func (s *PostgresStore) idPage(query string, owner common.Address, offset, limit int) ([]common.Hash, error) {
	ctx, cancel := opCtx()
	defer cancel()

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 1 << 30
	}
	rows, err := s.db.QueryContext(ctx, query, owner.Hex(), offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanHashes(rows)
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func scanHashes(rows *sql.Rows) ([]common.Hash, error) {
	out := []common.Hash{}
	for rows.Next() {
		var hex string
		if err := rows.Scan(&hex); err != nil {
			return nil, err
		}
		out = append(out, common.HexToHash(hex))
	}
	return out, rows.Err()
}

func joinHashes(ids []common.Hash) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.Hex()
	}
	return strings.Join(parts, ",")
}

func splitHashes(raw string) []common.Hash {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]common.Hash, len(parts))
	for i, p := range parts {
		out[i] = common.HexToHash(p)
	}
	return out
}
