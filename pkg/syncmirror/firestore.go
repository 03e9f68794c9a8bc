// Package syncmirror pushes attached-transaction state to Firestore for
// a real-time dashboard, exactly as the teacher's pkg/firestore does for
// proof-cycle status snapshots (pkg/firestore/client.go,
// pkg/firestore/sync_service.go): an Enabled-gated client that no-ops
// when Firestore sync is turned off, plus a sync service that writes
// one document per tracked entity.
package syncmirror

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yuvchain/yuvd/pkg/chroma"
)

// Client wraps the Firestore client, no-opping every operation when
// disabled so a node can run without GCP credentials in dev/test.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	logger    *log.Logger
	enabled   bool
	mu        sync.RWMutex
}

// Config configures the Firestore client.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Logger          *log.Logger
}

// NewClient builds a Client. When cfg.Enabled is false every later call
// is a no-op and no Firebase app is initialized.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[SyncMirror] ", log.LstdFlags)
	}

	client := &Client{projectID: cfg.ProjectID, logger: cfg.Logger, enabled: cfg.Enabled}
	if !cfg.Enabled {
		cfg.Logger.Println("dashboard sync disabled, running in no-op mode")
		return client, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("syncmirror: project ID required when enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("syncmirror: init firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncmirror: init firestore client: %w", err)
	}

	client.app = app
	client.firestore = fsClient
	cfg.Logger.Printf("dashboard sync enabled for project %s", cfg.ProjectID)
	return client, nil
}

// Close releases the underlying Firestore client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// IsEnabled reports whether sync is active.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// TxSnapshot is the dashboard-facing projection of one tracked
// transaction's lifecycle state, refreshed on every mempool transition
// and on attach.
type TxSnapshot struct {
	Txid      string    `firestore:"txid"`
	Status    string    `firestore:"status"`
	Chroma    string    `firestore:"chroma,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// SyncService mirrors mempool and attach transitions into Firestore
// documents under /yuvTransactions/{txid}.
type SyncService struct {
	client *Client
	logger *log.Logger
}

// NewSyncService builds a SyncService over client.
func NewSyncService(client *Client, logger *log.Logger) *SyncService {
	if logger == nil {
		logger = client.logger
	}
	return &SyncService{client: client, logger: logger}
}

// PushStatus writes the current status of txid to its dashboard
// document. chromaID may be the zero chroma for non-chroma-scoped
// transactions.
func (s *SyncService) PushStatus(ctx context.Context, txid chainhash.Hash, status string, chromaID chroma.Chroma) error {
	if !s.client.IsEnabled() {
		s.logger.Printf("sync disabled, skipping status push for %s (%s)", txid, status)
		return nil
	}

	snapshot := TxSnapshot{Txid: txid.String(), Status: status, UpdatedAt: time.Now()}
	if !chromaID.IsZero() {
		snapshot.Chroma = chromaID.String()
	}

	doc := s.client.firestore.Collection("yuvTransactions").Doc(txid.String())
	_, err := doc.Set(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("syncmirror: push status for %s: %w", txid, err)
	}
	return nil
}
