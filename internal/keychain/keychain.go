// Package keychain manages macOS keychains and their generic passwords
// through the security(1) tool.
//
// Every operation is a single round-trip to the tool: the facade builds the
// argument vector, runs it and parses the text the tool prints. Nothing is
// cached; the keychain files are the only state. Failures surface as a
// single error type, *security.Error, carrying the tool's own diagnostic.
//
// Keychains are addressed by a normalised name without the ".keychain"
// suffix. Generic passwords are addressed by account and an optional
// service label; results carry only the fields that were set.
package keychain

import (
	"context"

	"github.com/benaskins/keychainctl/internal/security"
	"github.com/samber/mo"
)

// Error is the error type returned by every operation.
type Error = security.Error

// Result reports a successful mutation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func ok(msg string) Result {
	return Result{Success: true, Message: msg}
}

// Store is the set of keychain operations. Client talks to the tool;
// AuditedStore decorates another Store.
type Store interface {
	Create(ctx context.Context, name, password string) (Result, error)
	Delete(ctx context.Context, name string) (Result, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
	ShowSettings(ctx context.Context, name string) (Settings, error)
	SetSettings(ctx context.Context, name string, lockOnSleep bool, timeout mo.Option[int]) (Result, error)
	Unlock(ctx context.Context, name, password string) (Result, error)
	Lock(ctx context.Context, name string) (Result, error)

	SetGenericPassword(ctx context.Context, keychain, account, password string, service mo.Option[string]) (Result, error)
	GetGenericPassword(ctx context.Context, keychain, account string, service mo.Option[string]) (Entry, error)
	FindEntry(ctx context.Context, keychain, account string, service mo.Option[string]) (Entry, error)
	ChangeGenericPassword(ctx context.Context, keychain, account, password string, service mo.Option[string]) (Result, error)
	RemoveGenericPassword(ctx context.Context, keychain, account string, service mo.Option[string]) (Result, error)
	ListAccounts(ctx context.Context, keychain string) ([]Entry, error)
}
