// Package audit provides append-only structured logging for keychain operations.
//
// Every mutation and every secret read is recorded to an audit log at
// ~/.keychainctl/audit.log as newline-delimited JSON. Secret values are
// never written.
package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Action describes what happened.
type Action string

const (
	ActionKeychainCreate   Action = "keychain_create"
	ActionKeychainDelete   Action = "keychain_delete"
	ActionKeychainSettings Action = "keychain_settings"
	ActionKeychainUnlock   Action = "keychain_unlock"
	ActionKeychainLock     Action = "keychain_lock"
	ActionPasswordWrite    Action = "password_write"
	ActionPasswordRead     Action = "password_read"
	ActionPasswordChange   Action = "password_change"
	ActionPasswordDelete   Action = "password_delete"
	ActionPasswordRotate   Action = "password_rotate"
)

// Entry is a single audit log record.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Action    Action    `json:"action"`
	Keychain  string    `json:"keychain"`
	Account   string    `json:"account,omitempty"`
	Service   string    `json:"service,omitempty"`
	Actor     string    `json:"actor,omitempty"`   // "cli"
	Trigger   string    `json:"trigger,omitempty"` // "manual", "command"
	Command   string    `json:"command,omitempty"` // rotation command if applicable
	Error     string    `json:"error,omitempty"`
}

// Logger writes audit entries to an append-only file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Path returns the file the logger appends to.
func (l *Logger) Path() string {
	return l.path
}

// Log writes an audit entry, assigning an ID and timestamp when missing.
func (l *Logger) Log(entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	return l.file.Close()
}

// ReadEntries returns all entries in the log at path, oldest first.
// A missing file has no entries. Lines that fail to decode are skipped.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	return entries, nil
}

// Tail returns the last n entries of the log at path.
func Tail(path string, n int) ([]Entry, error) {
	entries, err := ReadEntries(path)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
