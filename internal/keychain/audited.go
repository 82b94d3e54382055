package keychain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benaskins/keychainctl/internal/audit"
	"github.com/samber/mo"
)

// EntryMetadata tracks age and rotation policy for a generic password.
type EntryMetadata struct {
	CreatedAt   time.Time `json:"created_at"`
	LastChanged time.Time `json:"last_changed,omitempty"`
	RotateEvery string    `json:"rotate_every,omitempty"`
}

// MetadataKey is the metadata key of an entry: keychain/account, with
// @service appended when a service is set.
func MetadataKey(keychain, account string, service mo.Option[string]) string {
	key := keychain + "/" + account
	if s, ok := service.Get(); ok {
		key += "@" + s
	}
	return key
}

// ParseInterval parses a rotation interval. It accepts Go durations and a
// whole number of days such as "30d".
func ParseInterval(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return d, nil
}

// MetadataStore persists entry metadata to a JSON file.
type MetadataStore struct {
	mu       sync.RWMutex
	path     string
	metadata map[string]*EntryMetadata
}

// NewMetadataStore loads or creates a metadata file.
func NewMetadataStore(path string) (*MetadataStore, error) {
	ms := &MetadataStore{
		path:     path,
		metadata: make(map[string]*EntryMetadata),
	}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	if err == nil {
		if jsonErr := json.Unmarshal(data, &ms.metadata); jsonErr != nil {
			slog.Warn("corrupt metadata file, starting fresh", "path", path, "error", jsonErr)
			ms.metadata = make(map[string]*EntryMetadata)
		}
	}

	return ms, nil
}

// Get returns a copy of the metadata for a key, or nil if not tracked.
func (ms *MetadataStore) Get(key string) *EntryMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m, ok := ms.metadata[key]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// Touch records a write to key, creating metadata on first sight.
func (ms *MetadataStore) Touch(key string, now time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m, ok := ms.metadata[key]
	if !ok {
		ms.metadata[key] = &EntryMetadata{CreatedAt: now}
		return ms.save()
	}
	m.LastChanged = now
	return ms.save()
}

// SetRotateEvery sets the rotation interval for a tracked key. An empty
// interval clears it.
func (ms *MetadataStore) SetRotateEvery(key, interval string) error {
	if interval != "" {
		if _, err := ParseInterval(interval); err != nil {
			return err
		}
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m, ok := ms.metadata[key]
	if !ok {
		return fmt.Errorf("no metadata for %s", key)
	}
	m.RotateEvery = interval
	return ms.save()
}

// Delete removes metadata for a key.
func (ms *MetadataStore) Delete(key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.metadata, key)
	return ms.save()
}

// DeletePrefix removes every key under keychain, used when a keychain is
// deleted.
func (ms *MetadataStore) DeletePrefix(keychain string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	prefix := keychain + "/"
	for k := range ms.metadata {
		if strings.HasPrefix(k, prefix) {
			delete(ms.metadata, k)
		}
	}
	return ms.save()
}

// All returns copies of all metadata entries.
func (ms *MetadataStore) All() map[string]*EntryMetadata {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	result := make(map[string]*EntryMetadata, len(ms.metadata))
	for k, v := range ms.metadata {
		cp := *v
		result[k] = &cp
	}
	return result
}

// Stale returns, sorted, the keys whose rotation interval has elapsed
// since they were last written.
func (ms *MetadataStore) Stale(now time.Time) []string {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	var keys []string
	for k, m := range ms.metadata {
		if m.RotateEvery == "" {
			continue
		}
		every, err := ParseInterval(m.RotateEvery)
		if err != nil {
			continue
		}
		last := m.CreatedAt
		if m.LastChanged.After(last) {
			last = m.LastChanged
		}
		if now.Sub(last) >= every {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (ms *MetadataStore) save() error {
	data, err := json.MarshalIndent(ms.metadata, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := ms.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmpPath, ms.path)
}

// AuditedStore wraps a Store and adds audit logging and metadata tracking.
// Secret values never reach the audit log.
type AuditedStore struct {
	inner    Store
	audit    *audit.Logger
	metadata *MetadataStore
	actor    string // e.g. "cli"
	now      func() time.Time
}

var _ Store = (*AuditedStore)(nil)

// NewAuditedStore wraps an existing store with audit logging.
func NewAuditedStore(inner Store, auditLog *audit.Logger, metadata *MetadataStore, actor string) *AuditedStore {
	return &AuditedStore{
		inner:    inner,
		audit:    auditLog,
		metadata: metadata,
		actor:    actor,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Metadata returns the metadata store for direct access.
func (s *AuditedStore) Metadata() *MetadataStore {
	return s.metadata
}

// record writes an audit entry. Logging is best-effort and never fails the
// operation it describes.
func (s *AuditedStore) record(e audit.Entry, err error) {
	e.Actor = s.actor
	if e.Trigger == "" {
		e.Trigger = "manual"
	}
	if err != nil {
		e.Error = err.Error()
	}
	s.audit.Log(e)
}

func (s *AuditedStore) Create(ctx context.Context, name, password string) (Result, error) {
	res, err := s.inner.Create(ctx, name, password)
	s.record(audit.Entry{Action: audit.ActionKeychainCreate, Keychain: name}, err)
	return res, err
}

func (s *AuditedStore) Delete(ctx context.Context, name string) (Result, error) {
	res, err := s.inner.Delete(ctx, name)
	s.record(audit.Entry{Action: audit.ActionKeychainDelete, Keychain: name}, err)
	if err != nil {
		return res, err
	}
	if norm, nerr := NormaliseName(name); nerr == nil {
		if err := s.metadata.DeletePrefix(norm); err != nil {
			return res, fmt.Errorf("deleting metadata: %w", err)
		}
	}
	return res, nil
}

func (s *AuditedStore) Exists(ctx context.Context, name string) (bool, error) {
	return s.inner.Exists(ctx, name)
}

func (s *AuditedStore) List(ctx context.Context) ([]string, error) {
	return s.inner.List(ctx)
}

func (s *AuditedStore) ShowSettings(ctx context.Context, name string) (Settings, error) {
	return s.inner.ShowSettings(ctx, name)
}

func (s *AuditedStore) SetSettings(ctx context.Context, name string, lockOnSleep bool, timeout mo.Option[int]) (Result, error) {
	res, err := s.inner.SetSettings(ctx, name, lockOnSleep, timeout)
	s.record(audit.Entry{Action: audit.ActionKeychainSettings, Keychain: name}, err)
	return res, err
}

func (s *AuditedStore) Unlock(ctx context.Context, name, password string) (Result, error) {
	res, err := s.inner.Unlock(ctx, name, password)
	s.record(audit.Entry{Action: audit.ActionKeychainUnlock, Keychain: name}, err)
	return res, err
}

func (s *AuditedStore) Lock(ctx context.Context, name string) (Result, error) {
	res, err := s.inner.Lock(ctx, name)
	s.record(audit.Entry{Action: audit.ActionKeychainLock, Keychain: name}, err)
	return res, err
}

func (s *AuditedStore) SetGenericPassword(ctx context.Context, keychain, account, password string, service mo.Option[string]) (Result, error) {
	res, err := s.inner.SetGenericPassword(ctx, keychain, account, password, service)
	s.record(itemEntry(audit.ActionPasswordWrite, keychain, account, service), err)
	if err != nil {
		return res, err
	}
	if err := s.touch(keychain, account, service); err != nil {
		return res, err
	}
	return res, nil
}

func (s *AuditedStore) GetGenericPassword(ctx context.Context, keychain, account string, service mo.Option[string]) (Entry, error) {
	e, err := s.inner.GetGenericPassword(ctx, keychain, account, service)
	s.record(itemEntry(audit.ActionPasswordRead, keychain, account, service), err)
	return e, err
}

// FindEntry returns the stored entry with its secret, so it is audited as a
// read.
func (s *AuditedStore) FindEntry(ctx context.Context, keychain, account string, service mo.Option[string]) (Entry, error) {
	e, err := s.inner.FindEntry(ctx, keychain, account, service)
	s.record(itemEntry(audit.ActionPasswordRead, keychain, account, service), err)
	return e, err
}

func (s *AuditedStore) ChangeGenericPassword(ctx context.Context, keychain, account, password string, service mo.Option[string]) (Result, error) {
	service = s.storedService(ctx, keychain, account, service)
	res, err := s.inner.ChangeGenericPassword(ctx, keychain, account, password, service)
	s.record(itemEntry(audit.ActionPasswordChange, keychain, account, service), err)
	if err != nil {
		return res, err
	}
	if err := s.touch(keychain, account, service); err != nil {
		return res, err
	}
	return res, nil
}

func (s *AuditedStore) RemoveGenericPassword(ctx context.Context, keychain, account string, service mo.Option[string]) (Result, error) {
	service = s.storedService(ctx, keychain, account, service)
	res, err := s.inner.RemoveGenericPassword(ctx, keychain, account, service)
	s.record(itemEntry(audit.ActionPasswordDelete, keychain, account, service), err)
	if err != nil {
		return res, err
	}
	if norm, nerr := NormaliseName(keychain); nerr == nil {
		if err := s.metadata.Delete(MetadataKey(norm, account, service)); err != nil {
			return res, fmt.Errorf("deleting metadata: %w", err)
		}
	}
	return res, nil
}

// ListAccounts reads every secret of the keychain, so each returned entry
// is audited as a read.
func (s *AuditedStore) ListAccounts(ctx context.Context, keychain string) ([]Entry, error) {
	entries, err := s.inner.ListAccounts(ctx, keychain)
	if err != nil {
		s.record(audit.Entry{Action: audit.ActionPasswordRead, Keychain: keychain}, err)
		return nil, err
	}
	for _, e := range entries {
		s.record(itemEntry(audit.ActionPasswordRead, keychain, e.Account, e.Service), nil)
	}
	return entries, nil
}

// Rotate runs a rotation command, takes its stdout as the new password and
// writes it over the existing entry. A failed command leaves the entry as
// it was.
func (s *AuditedStore) Rotate(ctx context.Context, keychain, account string, service mo.Option[string], command string) (Result, error) {
	service = s.storedService(ctx, keychain, account, service)
	e := itemEntry(audit.ActionPasswordRotate, keychain, account, service)
	e.Trigger = "command"
	e.Command = command

	password, err := runRotationCommand(ctx, command)
	if err != nil {
		s.record(e, err)
		return Result{}, fmt.Errorf("rotation command failed: %w", err)
	}

	res, err := s.inner.ChangeGenericPassword(ctx, keychain, account, password, service)
	s.record(e, err)
	if err != nil {
		return Result{}, fmt.Errorf("storing rotated password: %w", err)
	}
	if err := s.touch(keychain, account, service); err != nil {
		return res, err
	}
	return res, nil
}

// storedService pins an absent service to the service of the entry the
// tool would pick, so that metadata is keyed on that exact entry. A lookup
// failure leaves service as given and the operation reports the error.
func (s *AuditedStore) storedService(ctx context.Context, keychain, account string, service mo.Option[string]) mo.Option[string] {
	if service.IsPresent() {
		return service
	}
	e, err := s.inner.FindEntry(ctx, keychain, account, service)
	if err != nil {
		return service
	}
	return e.Service
}

func (s *AuditedStore) touch(keychain, account string, service mo.Option[string]) error {
	norm, err := NormaliseName(keychain)
	if err != nil {
		return err
	}
	if err := s.metadata.Touch(MetadataKey(norm, account, service), s.now()); err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}
	return nil
}

func itemEntry(action audit.Action, keychain, account string, service mo.Option[string]) audit.Entry {
	return audit.Entry{
		Action:   action,
		Keychain: keychain,
		Account:  account,
		Service:  service.OrEmpty(),
	}
}
