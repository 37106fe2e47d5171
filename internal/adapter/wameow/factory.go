// ABOUTME: Factory building whatsmeow adapters with per-session sqlite device stores.
// ABOUTME: Cleanup removes a destroyed session's persisted device store files.

package wameow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"

	"github.com/verdin/verdin/internal/adapter"
)

// Factory creates whatsmeow adapters. Each session gets its own sqlite device
// store under the configured directory, keyed by session id.
type Factory struct {
	storeDir string
	logger   *slog.Logger
}

// NewFactory creates an adapter factory rooted at storeDir.
func NewFactory(storeDir string, logger *slog.Logger) (*Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &Factory{storeDir: storeDir, logger: logger}, nil
}

// New constructs an adapter for the session, opening (or creating) its device
// store. Construction failure is fatal for the creation attempt; no retry
// happens at this level.
func (f *Factory) New(ctx context.Context, sessionID string) (adapter.Adapter, error) {
	dbPath := f.dbPath(sessionID)
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", dbPath)

	waLogger := loggerAdapter{logger: f.logger.With("session_id", sessionID)}

	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLogger.Sub("store"))
	if err != nil {
		return nil, fmt.Errorf("opening device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("loading device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLogger.Sub("client"))

	return &Client{
		client:    client,
		container: container,
		logger:    f.logger.With("session_id", sessionID),
		done:      make(chan struct{}),
	}, nil
}

// Cleanup removes the session's device store files. Missing files are not an
// error; anything else is reported for the caller to log.
func (f *Factory) Cleanup(sessionID string) error {
	var errs []error
	for _, suffix := range []string{"", "-wal", "-shm"} {
		path := f.dbPath(sessionID) + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Factory) dbPath(sessionID string) string {
	return filepath.Join(f.storeDir, sessionID+".db")
}
