// Package watch auto-registers files dropped into a monitored directory.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"death2data.org/internal/obs"
	"death2data.org/internal/registry"
	"death2data.org/internal/stream"
)

// Registrar is the slice of the registration service the watcher needs.
type Registrar interface {
	Register(ctx context.Context, req registry.RegisterRequest) (registry.Record, error)
}

// Watcher debounces filesystem events and registers each settled file once.
// Auto-registrations do not count against the owner's quota.
type Watcher struct {
	dir     string
	settle  time.Duration
	reg     Registrar
	ownerID string
	tier    string
	license string
	events  *stream.Stream

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// Config configures a Watcher.
type Config struct {
	Dir     string
	Settle  time.Duration
	OwnerID string
	Tier    string
	License string
	Events  *stream.Stream
}

func New(reg Registrar, cfg Config) *Watcher {
	settle := cfg.Settle
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Watcher{
		dir:     cfg.Dir,
		settle:  settle,
		reg:     reg,
		ownerID: cfg.OwnerID,
		tier:    cfg.Tier,
		license: cfg.License,
		events:  cfg.Events,
		pending: make(map[string]*time.Timer),
	}
}

// Run watches the directory until the context is cancelled. A file is
// registered only after no write has touched it for the settle delay, so
// partially copied files never get fingerprinted mid-transfer.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return err
	}

	obs.LogEvent(map[string]any{
		"event":     "watch.started",
		"dir":       w.dir,
		"settle_ms": w.settle.Milliseconds(),
	})

	for {
		select {
		case <-ctx.Done():
			w.drainTimers()
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if ignored(ev.Name) {
				continue
			}
			w.schedule(ctx, ev.Name)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			obs.LogEvent(map[string]any{
				"event": "watch.error",
				"error": err.Error(),
			})
		}
	}
}

// schedule arms (or re-arms) the settle timer for a path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.register(ctx, path)
	})
}

func (w *Watcher) register(ctx context.Context, path string) {
	rec, err := w.reg.Register(ctx, registry.RegisterRequest{
		Path:    path,
		OwnerID: w.ownerID,
		Tier:    w.tier,
		License: w.license,
		Auto:    true,
	})
	if err != nil {
		obs.LogEvent(map[string]any{
			"event": "watch.register_failed",
			"path":  path,
			"error": err.Error(),
		})
		obs.ObserveRegistration("auto", "error")
		return
	}
	obs.ObserveRegistration("auto", "ok")
	obs.LogEvent(map[string]any{
		"event": "watch.registered",
		"uuid":  rec.ID,
		"path":  path,
	})
	if w.events != nil {
		w.events.Publish(stream.RegistrationEvent{
			UUID:      rec.ID,
			Filename:  rec.Filename,
			License:   rec.License,
			Auto:      true,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (w *Watcher) drainTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// ignored filters dotfiles and well-known temp suffixes.
func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	for _, suffix := range []string{".tmp", ".part", ".swp", "~"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
