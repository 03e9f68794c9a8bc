// Package analytics mirrors attached token transactions into Postgres
// for downstream reporting; it is entirely optional and never sits on
// the attach critical path. It follows the teacher's database client
// idiom (pkg/database/client.go, pkg/database/repository_proof.go): a
// *sql.DB-wrapping Client built with functional options, and a
// repository type issuing raw parameterized SQL with QueryRowContext.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// Client wraps a connection pool to the analytics database.
type Client struct {
	db     *sql.DB
	logger *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger overrides the client's default logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient opens a connection pool against databaseURL (a standard
// postgres:// DSN) and verifies connectivity.
func NewClient(databaseURL string, opts ...ClientOption) (*Client, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("analytics: database URL cannot be empty")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("analytics: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	client := &Client{db: db, logger: log.New(log.Writer(), "[Analytics] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(client)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("analytics: ping: %w", err)
	}
	return client, nil
}

// Close releases the connection pool.
func (c *Client) Close() error { return c.db.Close() }

// EnsureSchema creates the mirror table if it does not already exist.
// The table is a flat append-only mirror, not a normalized model: it
// exists for reporting queries, not as a source of truth.
func (c *Client) EnsureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS yuv_attached_transactions (
	txid        TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	chroma      TEXT,
	attached_at TIMESTAMPTZ NOT NULL
)`
	_, err := c.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("analytics: ensure schema: %w", err)
	}
	return nil
}

// Repository issues the mirror's read/write queries.
type Repository struct {
	client *Client
}

// NewRepository builds a Repository over client.
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// RecordAttached mirrors one attached transaction. kindChroma is the
// empty chroma for non-chroma-scoped kinds. txid is the table's key, so
// each transaction is stored once, under the single chroma passed here,
// even when a Transfer touches several chromas.
func (r *Repository) RecordAttached(ctx context.Context, txid chainhash.Hash, kind txtypes.Kind, kindChroma chroma.Chroma) error {
	const query = `
INSERT INTO yuv_attached_transactions (txid, kind, chroma, attached_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (txid) DO NOTHING`

	var chromaVal *string
	if !kindChroma.IsZero() {
		s := kindChroma.String()
		chromaVal = &s
	}

	_, err := r.client.db.ExecContext(ctx, query, txid.String(), kindLabel(kind), chromaVal, time.Now())
	if err != nil {
		return fmt.Errorf("analytics: record attached %s: %w", txid, err)
	}
	return nil
}

func kindLabel(k txtypes.Kind) string {
	switch k {
	case txtypes.KindIssue:
		return "issue"
	case txtypes.KindTransfer:
		return "transfer"
	case txtypes.KindAnnouncement:
		return "announcement"
	default:
		return "unknown"
	}
}

// CountByChroma reports how many attached transactions were recorded
// under chroma c (one chroma per transaction, see RecordAttached), a
// representative reporting query this mirror exists to answer cheaply
// without scanning the KV page index.
func (r *Repository) CountByChroma(ctx context.Context, c chroma.Chroma) (int64, error) {
	const query = `SELECT count(*) FROM yuv_attached_transactions WHERE chroma = $1`
	var count int64
	err := r.client.db.QueryRowContext(ctx, query, c.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("analytics: count by chroma: %w", err)
	}
	return count, nil
}
