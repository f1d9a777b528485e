package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/decksync/decksync/internal/dashboard"
	"github.com/decksync/decksync/internal/importer"
	"github.com/decksync/decksync/internal/store"
	"github.com/decksync/decksync/internal/types"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long a dropped file must sit quiet
	// before it is imported. This batches the write events a copy in
	// progress produces.
	DebounceInterval time.Duration

	// Tags is the space-delimited tag string attached to notes from
	// auto-imported collections.
	Tags string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches a drop folder and imports collection files as they
// appear. Imports run one at a time against the local store.
type Daemon struct {
	local   *store.Store
	dropDir string
	config  *Config

	watcher *FileWatcher
	events  *dashboard.Handler

	pending   map[string]time.Time // dropped file -> last event time
	pendingMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance for the local store and drop
// directory. Use Start() to begin watching and importing.
func New(local *store.Store, dropDir string, config *Config) (*Daemon, error) {
	if local == nil {
		return nil, fmt.Errorf("local store cannot be nil")
	}
	if dropDir == "" {
		return nil, fmt.Errorf("dropDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		local:   local,
		dropDir: dropDir,
		config:  config,
		watcher: watcher,
		pending: make(map[string]time.Time),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// AttachDashboard wires a dashboard event handler. Optional; imports
// are broadcast to connected clients when attached.
func (d *Daemon) AttachDashboard(events *dashboard.Handler) {
	d.events = events
}

// Start begins watching the drop folder. Blocks until ctx is
// cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	if err := os.MkdirAll(d.dropDir, 0755); err != nil {
		return fmt.Errorf("failed to create drop directory: %w", err)
	}

	if err := d.watcher.Start(d.dropDir); err != nil {
		return err
	}

	d.config.Logger.Printf("Watching drop folder: %s", d.dropDir)

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.processPending()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Stop(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents queues collection-file events for debounced import.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			if event.Op == OpDelete {
				d.pendingMu.Lock()
				delete(d.pending, event.Path)
				d.pendingMu.Unlock()
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Path)
			d.pendingMu.Lock()
			d.pending[event.Path] = time.Now()
			d.pendingMu.Unlock()

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processPending imports files whose events have settled.
func (d *Daemon) processPending() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			for _, path := range d.takeSettled() {
				d.importOne(path)
			}
		}
	}
}

// takeSettled removes and returns the pending files that have been
// quiet for at least one debounce interval.
func (d *Daemon) takeSettled() []string {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	now := time.Now()
	var ready []string
	for path, last := range d.pending {
		if now.Sub(last) >= d.config.DebounceInterval {
			ready = append(ready, path)
			delete(d.pending, path)
		}
	}
	return ready
}

// importOne runs one import and reports the outcome.
func (d *Daemon) importOne(path string) {
	d.config.Logger.Printf("Importing %s", path)
	d.events.OnImportStarted(path, d.config.Tags)

	start := time.Now()
	imp := importer.New(d.local, d.config.Logger)
	count, err := imp.ImportFile(d.ctx, path, d.config.Tags)
	elapsed := time.Since(start)

	d.events.OnImportComplete(path, count, elapsed, err)
	if err != nil {
		d.config.Logger.Printf("WARNING: import of %s failed: %v", path, err)
		return
	}
	d.config.Logger.Printf("Imported %s: %d notes added in %v", path, count, elapsed.Round(time.Millisecond))

	d.publishStats()
}

// publishStats broadcasts collection counts after a successful import.
func (d *Daemon) publishStats() {
	if d.events == nil {
		return
	}
	templates, err := d.local.Count(d.ctx, types.KindTemplate)
	if err != nil {
		return
	}
	notes, err := d.local.Count(d.ctx, types.KindNote)
	if err != nil {
		return
	}
	cards, err := d.local.Count(d.ctx, types.KindCard)
	if err != nil {
		return
	}
	d.events.PublishStats(templates, notes, cards)
}
