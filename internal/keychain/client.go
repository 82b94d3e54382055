package keychain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/benaskins/keychainctl/internal/security"
	"github.com/samber/mo"
)

// Config holds the collaborators of a Client. Zero fields get defaults.
type Config struct {
	Runner security.Runner // default: security.NewExecRunner("")
	Parser Parser          // default: LineParser
	Logger *slog.Logger
}

// Client performs keychain operations through the security tool.
// It keeps no state between calls.
type Client struct {
	runner security.Runner
	parser Parser
	logger *slog.Logger
}

var _ Store = (*Client)(nil)

// New creates a Client.
func New(cfg Config) *Client {
	c := &Client{
		runner: cfg.Runner,
		parser: cfg.Parser,
		logger: cfg.Logger,
	}
	if c.runner == nil {
		c.runner = security.NewExecRunner("")
	}
	if c.parser == nil {
		c.parser = LineParser{}
	}
	if c.logger == nil {
		c.logger = slog.With("component", "keychain")
	}
	return c
}

// Create creates a keychain protected by password. It fails if a keychain
// with that name already exists.
func (c *Client) Create(ctx context.Context, name, password string) (Result, error) {
	name, err := NormaliseName(name)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.runner.Run(ctx, security.CreateKeychain(toolPath(name), password)); err != nil {
		return Result{}, err
	}
	c.logger.Info("keychain created", "keychain", name)
	return ok("Keychain created successfully"), nil
}

// Delete deletes a keychain. It fails if the keychain does not exist.
func (c *Client) Delete(ctx context.Context, name string) (Result, error) {
	name, err := NormaliseName(name)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.runner.Run(ctx, security.DeleteKeychain(toolPath(name))); err != nil {
		return Result{}, err
	}
	c.logger.Info("keychain deleted", "keychain", name)
	return ok("Keychain deleted successfully"), nil
}

// Exists reports whether name is on the keychain search list. A missing
// keychain is not an error.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	name, err := NormaliseName(name)
	if err != nil {
		return false, err
	}
	names, err := c.List(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(names, name), nil
}

// List returns the names of all keychains on the user search list, in the
// order the tool reports them.
func (c *Client) List(ctx context.Context) ([]string, error) {
	out, err := c.runner.Run(ctx, security.ListKeychains())
	if err != nil {
		return nil, err
	}
	return c.parser.KeychainNames(out), nil
}

// ShowSettings reads lock-on-sleep and the idle timeout.
func (c *Client) ShowSettings(ctx context.Context, name string) (Settings, error) {
	name, err := NormaliseName(name)
	if err != nil {
		return Settings{}, err
	}
	out, err := c.runner.Run(ctx, security.ShowKeychainInfo(toolPath(name)))
	if err != nil {
		return Settings{}, err
	}
	return c.parser.Settings(out)
}

// SetSettings writes lock-on-sleep and the idle timeout. An absent timeout
// means the keychain never locks on idle.
func (c *Client) SetSettings(ctx context.Context, name string, lockOnSleep bool, timeout mo.Option[int]) (Result, error) {
	name, err := NormaliseName(name)
	if err != nil {
		return Result{}, err
	}
	if secs, ok := timeout.Get(); ok && secs < 0 {
		return Result{}, security.InvalidArgument(security.OpSetKeychainSettings, "timeout must not be negative, got %d", secs)
	}
	if _, err := c.runner.Run(ctx, security.SetKeychainSettings(toolPath(name), lockOnSleep, timeout)); err != nil {
		return Result{}, err
	}
	c.logger.Info("keychain settings updated", "keychain", name, "lock_on_sleep", lockOnSleep, "timeout", timeout.OrEmpty())
	return ok("Keychain settings updated successfully"), nil
}

func (c *Client) Unlock(ctx context.Context, name, password string) (Result, error) {
	name, err := NormaliseName(name)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.runner.Run(ctx, security.UnlockKeychain(toolPath(name), password)); err != nil {
		return Result{}, err
	}
	return ok("Keychain unlocked successfully"), nil
}

func (c *Client) Lock(ctx context.Context, name string) (Result, error) {
	name, err := NormaliseName(name)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.runner.Run(ctx, security.LockKeychain(toolPath(name))); err != nil {
		return Result{}, err
	}
	return ok("Keychain locked successfully"), nil
}

// SetGenericPassword adds a generic password. Without a service the entry
// is keyed by account alone.
func (c *Client) SetGenericPassword(ctx context.Context, keychain, account, password string, service mo.Option[string]) (Result, error) {
	keychain, err := c.itemTarget(security.OpAddGenericPassword, keychain, account, service)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.runner.Run(ctx, security.AddGenericPassword(toolPath(keychain), account, password, service, false)); err != nil {
		return Result{}, err
	}
	c.logger.Info("password added", "keychain", keychain, "account", account, "service", service.OrEmpty())
	return ok(fmt.Sprintf("Password added to %s successfully", keychain)), nil
}

// GetGenericPassword returns the entry for account (and service, if given).
// The entry holds exactly the fields supplied plus the password.
func (c *Client) GetGenericPassword(ctx context.Context, keychain, account string, service mo.Option[string]) (Entry, error) {
	keychain, err := c.itemTarget(security.OpFindGenericPassword, keychain, account, service)
	if err != nil {
		return Entry{}, err
	}
	out, err := c.runner.Run(ctx, security.FindGenericPassword(toolPath(keychain), account, service))
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Account:  account,
		Password: c.parser.Password(out),
		Service:  service,
	}, nil
}

// FindEntry returns the stored entry the tool picks for account: the one
// with the given service, or without one, the first entry for account in
// keychain order. Unlike GetGenericPassword the entry carries the service
// it was stored with.
func (c *Client) FindEntry(ctx context.Context, keychain, account string, service mo.Option[string]) (Entry, error) {
	keychain, err := c.itemTarget(security.OpDumpKeychain, keychain, account, service)
	if err != nil {
		return Entry{}, err
	}
	entries, err := c.ListAccounts(ctx, keychain)
	if err != nil {
		return Entry{}, err
	}

	idx := slices.IndexFunc(entries, func(e Entry) bool {
		if e.Account != account {
			return false
		}
		if want, ok := service.Get(); ok {
			got, _ := e.Service.Get()
			return got == want
		}
		return true
	})
	if idx < 0 {
		return Entry{}, &security.Error{
			Op:       security.OpDumpKeychain,
			Kind:     security.KindItemNotFound,
			ExitCode: -1,
			Message:  fmt.Sprintf("no password for account %q in %s", account, keychain),
		}
	}
	return entries[idx], nil
}

// ChangeGenericPassword replaces the password of an existing entry. The
// entry is located first so that its service label is written back as is.
func (c *Client) ChangeGenericPassword(ctx context.Context, keychain, account, password string, service mo.Option[string]) (Result, error) {
	keychain, err := c.itemTarget(security.OpAddGenericPassword, keychain, account, service)
	if err != nil {
		return Result{}, err
	}
	existing, err := c.FindEntry(ctx, keychain, account, service)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.runner.Run(ctx, security.AddGenericPassword(toolPath(keychain), account, password, existing.Service, true)); err != nil {
		return Result{}, err
	}
	c.logger.Info("password changed", "keychain", keychain, "account", account, "service", existing.Service.OrEmpty())
	return ok(fmt.Sprintf("Password in %s changed successfully", keychain)), nil
}

// RemoveGenericPassword deletes the first entry matching account (and
// service, if given).
func (c *Client) RemoveGenericPassword(ctx context.Context, keychain, account string, service mo.Option[string]) (Result, error) {
	keychain, err := c.itemTarget(security.OpDeleteGenericPassword, keychain, account, service)
	if err != nil {
		return Result{}, err
	}
	if _, err := c.runner.Run(ctx, security.DeleteGenericPassword(toolPath(keychain), account, service)); err != nil {
		return Result{}, err
	}
	c.logger.Info("password removed", "keychain", keychain, "account", account, "service", service.OrEmpty())
	return ok(fmt.Sprintf("Password removed from %s successfully", keychain)), nil
}

// ListAccounts returns every generic password in the keychain, each with
// only the fields that were set for it.
func (c *Client) ListAccounts(ctx context.Context, keychain string) ([]Entry, error) {
	keychain, err := NormaliseName(keychain)
	if err != nil {
		return nil, err
	}
	out, err := c.runner.Run(ctx, security.DumpKeychain(toolPath(keychain)))
	if err != nil {
		return nil, err
	}
	return c.parser.Entries(out)
}

// itemTarget validates the address of a generic password. A service, when
// given, must not be empty: the tool stores an empty service as no service.
func (c *Client) itemTarget(op, keychain, account string, service mo.Option[string]) (string, error) {
	keychain, err := NormaliseName(keychain)
	if err != nil {
		return "", err
	}
	if account == "" {
		return "", security.InvalidArgument(op, "account must not be empty")
	}
	if s, ok := service.Get(); ok && s == "" {
		return "", security.InvalidArgument(op, "service must not be empty when given")
	}
	return keychain, nil
}
