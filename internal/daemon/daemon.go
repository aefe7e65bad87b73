package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelsight/internal/config"
	"reelsight/internal/history"
	"reelsight/internal/logging"
	"reelsight/internal/storage"
	"reelsight/internal/workflow"
)

// ObjectStore is the storage surface the API needs: the flat store plus
// streaming uploads.
type ObjectStore interface {
	storage.Store
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
}

// HistoryReader lists recorded jobs.
type HistoryReader interface {
	List(ctx context.Context, filter history.Filter) ([]history.Entry, error)
}

// Dependencies are the services a daemon exposes.
type Dependencies struct {
	Manager *workflow.Manager
	Store   ObjectStore
	History HistoryReader
	Logger  *slog.Logger
}

// Daemon coordinates the API server and the workflow manager and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  *workflow.Manager
	store    ObjectStore
	history  HistoryReader
	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	server  *apiServer
	running atomic.Bool
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	LockFilePath string
	Workflow     workflow.Health
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies) (*Daemon, error) {
	if cfg == nil || deps.Manager == nil || deps.Store == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(deps.Logger, "daemon"),
		manager:  deps.Manager,
		store:    deps.Store,
		history:  deps.History,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and opens the API listener.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another reelsightd instance is already running")
	}

	server := newAPIServer(d.cfg, d, d.logger)
	if err := server.start(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	d.server = server
	d.running.Store(true)
	d.logger.Info("reelsight daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("address", server.address()),
	)
	return nil
}

// Stop closes the API server, stops the manager, and releases the lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.server.stop()
	d.server = nil
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("reelsight daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Address returns the bound API address while running.
func (d *Daemon) Address() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.server == nil {
		return ""
	}
	return d.server.address()
}

// Handler returns the API routes without starting a listener.
func (d *Daemon) Handler() http.Handler {
	return newAPIServer(d.cfg, d, d.logger).routes()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.Address(),
		LockFilePath: d.lockPath,
		Workflow:     d.manager.Health(ctx),
	}
}
