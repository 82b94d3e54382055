package watch

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"
)

type fakeLister struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeLister) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...), nil
}

func (f *fakeLister) set(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = names
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name       string
		prev, next []string
		want       Diff
	}{
		{"no change", []string{"a", "b"}, []string{"b", "a"}, Diff{}},
		{"added", []string{"login"}, []string{"login", "ci"}, Diff{Added: []string{"ci"}}},
		{"removed", []string{"login", "ci"}, []string{"login"}, Diff{Removed: []string{"ci"}}},
		{"both", []string{"a", "b"}, []string{"b", "c"}, Diff{Added: []string{"c"}, Removed: []string{"a"}}},
		{"from empty", nil, []string{"x"}, Diff{Added: []string{"x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.prev, tt.next)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Compare = %+v, want %+v", got, tt.want)
			}
			if got.Empty() != tt.want.Empty() {
				t.Errorf("Empty() = %v", got.Empty())
			}
		})
	}
}

func TestWatcherReportsAddedKeychain(t *testing.T) {
	dir := t.TempDir()
	lister := &fakeLister{names: []string{"login"}}
	changes := make(chan Diff, 4)

	w := New(Config{
		Dir:      dir,
		Lister:   lister,
		Debounce: 20 * time.Millisecond,
		OnChange: func(d Diff) { changes <- d },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	lister.set("login", "ci")
	if err := os.WriteFile(filepath.Join(dir, "ci.keychain-db"), nil, 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-changes:
		want := Diff{Added: []string{"ci"}}
		if !reflect.DeepEqual(d, want) {
			t.Errorf("diff = %+v, want %+v", d, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestWatcherMissingDir(t *testing.T) {
	w := New(Config{
		Dir:    filepath.Join(t.TempDir(), "missing"),
		Lister: &fakeLister{},
	})
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
