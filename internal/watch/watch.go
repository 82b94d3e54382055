// Package watch reports keychains that appear or disappear outside of
// keychainctl, by watching the keychain directory and re-listing the
// search list when it changes.
package watch

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the directory must be quiet before a rescan.
const DefaultDebounce = 500 * time.Millisecond

// Lister returns the current keychain names.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Diff is a change in keychain membership.
type Diff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Compare returns the names in next but not prev, and in prev but not next.
// Each side keeps the order of the list it came from.
func Compare(prev, next []string) Diff {
	var d Diff
	for _, n := range next {
		if !slices.Contains(prev, n) {
			d.Added = append(d.Added, n)
		}
	}
	for _, p := range prev {
		if !slices.Contains(next, p) {
			d.Removed = append(d.Removed, p)
		}
	}
	return d
}

// Config configures a Watcher.
type Config struct {
	Dir      string
	Lister   Lister
	OnChange func(Diff)
	Debounce time.Duration // default: DefaultDebounce
	Logger   *slog.Logger
}

// Watcher observes a keychain directory. It does not coordinate with
// concurrent writers; it only reports what it sees after the fact.
type Watcher struct {
	dir      string
	lister   Lister
	onChange func(Diff)
	debounce time.Duration
	logger   *slog.Logger
	known    []string
}

func New(cfg Config) *Watcher {
	w := &Watcher{
		dir:      cfg.Dir,
		lister:   cfg.Lister,
		onChange: cfg.OnChange,
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}
	if w.logger == nil {
		w.logger = slog.With("component", "watch")
	}
	if w.onChange == nil {
		w.onChange = func(Diff) {}
	}
	return w
}

// Run takes an initial listing, then watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	known, err := w.lister.List(ctx)
	if err != nil {
		return err
	}
	w.known = known

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	w.logger.Info("watching keychain directory", "dir", w.dir, "keychains", len(known))

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("keychain directory changed", "file", event.Name, "op", event.Op)
			debounce.Reset(w.debounce)

		case <-debounce.C:
			w.rescan(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) rescan(ctx context.Context) {
	names, err := w.lister.List(ctx)
	if err != nil {
		w.logger.Error("rescan failed", "error", err)
		return
	}
	d := Compare(w.known, names)
	w.known = names
	if d.Empty() {
		w.logger.Debug("rescan: no changes detected")
		return
	}
	w.logger.Info("keychains changed", "added", d.Added, "removed", d.Removed)
	w.onChange(d)
}
