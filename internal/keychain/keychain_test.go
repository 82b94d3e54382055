package keychain

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"

	"github.com/benaskins/keychainctl/internal/security"
	"github.com/samber/mo"
)

func newTestClient(t *testing.T) (*Client, *security.MemoryRunner) {
	t.Helper()
	m := security.NewMemoryRunner()
	return New(Config{Runner: m}), m
}

func mustCreate(t *testing.T, c *Client, name string) {
	t.Helper()
	if _, err := c.Create(context.Background(), name, "pw"); err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
}

func TestNormaliseName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"ci", "ci"},
		{"ci.keychain", "ci"},
		{"  ci.keychain\n", "ci"},
		{"build agents", "build agents"},
		{"a-b", "a-b"},
	}
	for _, tt := range tests {
		got, err := NormaliseName(tt.raw)
		if err != nil {
			t.Errorf("NormaliseName(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormaliseName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormaliseNameIdempotent(t *testing.T) {
	for _, raw := range []string{"ci", "ci.keychain", " dev ", "x.y"} {
		once, err := NormaliseName(raw)
		if err != nil {
			t.Fatalf("NormaliseName(%q): %v", raw, err)
		}
		twice, err := NormaliseName(once)
		if err != nil {
			t.Fatalf("NormaliseName(%q): %v", once, err)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", raw, once, twice)
		}
	}
}

func TestNormaliseNameRejects(t *testing.T) {
	for _, raw := range []string{"", "   ", ".keychain", "-p", "a/b", "tab\there", "nul\x00", "ci.keychain.keychain", "ci.keychain.keychain.keychain"} {
		_, err := NormaliseName(raw)
		if !errors.Is(err, security.ErrInvalidArgument) {
			t.Errorf("NormaliseName(%q): expected invalid argument, got %v", raw, err)
		}
	}
}

func TestCreateThenExists(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	res, err := c.Create(ctx, "ci.keychain", "pw")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !res.Success || res.Message != "Keychain created successfully" {
		t.Errorf("unexpected result %+v", res)
	}

	exists, err := c.Exists(ctx, "ci")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Error("expected keychain to exist")
	}

	names, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !slices.Contains(names, "ci") {
		t.Errorf("expected ci in %v", names)
	}
	if !slices.Contains(names, "login") {
		t.Errorf("expected login in %v", names)
	}
}

func TestCreateThenDelete(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	res, err := c.Delete(ctx, "ci")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if res.Message != "Keychain deleted successfully" {
		t.Errorf("unexpected message %q", res.Message)
	}

	exists, err := c.Exists(ctx, "ci")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("expected keychain to be gone")
	}
}

func TestCreateDuplicate(t *testing.T) {
	c, _ := newTestClient(t)
	mustCreate(t, c, "ci")

	_, err := c.Create(context.Background(), "ci", "pw")
	if !errors.Is(err, security.ErrDuplicateKeychain) {
		t.Fatalf("expected duplicate keychain, got %v", err)
	}
	var kerr *Error
	if !errors.As(err, &kerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if kerr.ExitCode != 48 || kerr.Message == "" {
		t.Errorf("unexpected error %+v", kerr)
	}
}

func TestDeleteMissing(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Delete(context.Background(), "nope")
	if !errors.Is(err, security.ErrNoSuchKeychain) {
		t.Fatalf("expected no such keychain, got %v", err)
	}
}

func TestCreateUsesToolPath(t *testing.T) {
	c, m := newTestClient(t)
	mustCreate(t, c, " ci.keychain ")

	reqs := m.Requests()
	want := []string{"create-keychain", "-p", "pw", "ci.keychain"}
	if !reflect.DeepEqual(reqs[0].Args, want) {
		t.Errorf("args = %v, want %v", reqs[0].Args, want)
	}
}

func TestInvalidNameNeverReachesTool(t *testing.T) {
	c, m := newTestClient(t)
	_, err := c.Create(context.Background(), "-p", "pw")
	if !errors.Is(err, security.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if n := len(m.Requests()); n != 0 {
		t.Errorf("expected no tool calls, got %d", n)
	}
}

func TestSetGetWithoutService(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	res, err := c.SetGenericPassword(ctx, "ci", "deploy", "s3cret", mo.None[string]())
	if err != nil {
		t.Fatalf("SetGenericPassword: %v", err)
	}
	if res.Message != "Password added to ci successfully" {
		t.Errorf("unexpected message %q", res.Message)
	}

	e, err := c.GetGenericPassword(ctx, "ci", "deploy", mo.None[string]())
	if err != nil {
		t.Fatalf("GetGenericPassword: %v", err)
	}
	want := map[string]string{"account": "deploy", "password": "s3cret"}
	if !reflect.DeepEqual(e.Fields(), want) {
		t.Errorf("Fields() = %v, want %v", e.Fields(), want)
	}
}

func TestSetGetWithService(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	svc := mo.Some("github")
	if _, err := c.SetGenericPassword(ctx, "ci", "deploy", "s3cret", svc); err != nil {
		t.Fatalf("SetGenericPassword: %v", err)
	}

	e, err := c.GetGenericPassword(ctx, "ci", "deploy", svc)
	if err != nil {
		t.Fatalf("GetGenericPassword: %v", err)
	}
	want := map[string]string{"account": "deploy", "password": "s3cret", "service": "github"}
	if !reflect.DeepEqual(e.Fields(), want) {
		t.Errorf("Fields() = %v, want %v", e.Fields(), want)
	}
}

func TestGetMissing(t *testing.T) {
	c, _ := newTestClient(t)
	mustCreate(t, c, "ci")

	_, err := c.GetGenericPassword(context.Background(), "ci", "nobody", mo.None[string]())
	if !errors.Is(err, security.ErrItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestSetEmptyAccount(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.SetGenericPassword(context.Background(), "ci", "", "pw", mo.None[string]())
	if !errors.Is(err, security.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestSetDuplicate(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	c.SetGenericPassword(ctx, "ci", "deploy", "one", mo.None[string]())
	_, err := c.SetGenericPassword(ctx, "ci", "deploy", "two", mo.None[string]())
	if !errors.Is(err, security.ErrDuplicateItem) {
		t.Fatalf("expected duplicate item, got %v", err)
	}
}

func TestListAccountsOrderAndFields(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	c.SetGenericPassword(ctx, "ci", "alice", "pw-a", mo.None[string]())
	c.SetGenericPassword(ctx, "ci", "bob", "pw-b", mo.Some("smtp"))

	entries, err := c.ListAccounts(ctx, "ci")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	want := []map[string]string{
		{"account": "alice", "password": "pw-a"},
		{"account": "bob", "password": "pw-b", "service": "smtp"},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if !reflect.DeepEqual(e.Fields(), want[i]) {
			t.Errorf("entry %d = %v, want %v", i, e.Fields(), want[i])
		}
	}
}

func TestListAccountsEmpty(t *testing.T) {
	c, _ := newTestClient(t)
	mustCreate(t, c, "ci")

	entries, err := c.ListAccounts(context.Background(), "ci")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
}

func TestRemoveOneOfTwo(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	c.SetGenericPassword(ctx, "ci", "alice", "pw-a", mo.Some("imap"))
	c.SetGenericPassword(ctx, "ci", "bob", "pw-b", mo.None[string]())

	res, err := c.RemoveGenericPassword(ctx, "ci", "alice", mo.None[string]())
	if err != nil {
		t.Fatalf("RemoveGenericPassword: %v", err)
	}
	if res.Message != "Password removed from ci successfully" {
		t.Errorf("unexpected message %q", res.Message)
	}

	entries, _ := c.ListAccounts(ctx, "ci")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	want := map[string]string{"account": "bob", "password": "pw-b"}
	if !reflect.DeepEqual(entries[0].Fields(), want) {
		t.Errorf("remaining = %v, want %v", entries[0].Fields(), want)
	}
}

func TestChangePasswordOnlyChangesPassword(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	c.SetGenericPassword(ctx, "ci", "deploy", "old", mo.Some("github"))
	c.SetGenericPassword(ctx, "ci", "other", "keep", mo.None[string]())

	// Without a service the entry is found by account and keeps its service.
	res, err := c.ChangeGenericPassword(ctx, "ci", "deploy", "new", mo.None[string]())
	if err != nil {
		t.Fatalf("ChangeGenericPassword: %v", err)
	}
	if res.Message != "Password in ci changed successfully" {
		t.Errorf("unexpected message %q", res.Message)
	}

	entries, _ := c.ListAccounts(ctx, "ci")
	want := []map[string]string{
		{"account": "deploy", "password": "new", "service": "github"},
		{"account": "other", "password": "keep"},
	}
	for i, e := range entries {
		if !reflect.DeepEqual(e.Fields(), want[i]) {
			t.Errorf("entry %d = %v, want %v", i, e.Fields(), want[i])
		}
	}

	reqs := m.Requests()
	last := reqs[len(reqs)-2].Args // before the final dump
	wantArgs := []string{"add-generic-password", "-U", "-a", "deploy", "-s", "github", "-w", "new", "ci.keychain"}
	if !reflect.DeepEqual(last, wantArgs) {
		t.Errorf("args = %v, want %v", last, wantArgs)
	}
}

func TestChangeMissing(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")
	c.SetGenericPassword(ctx, "ci", "deploy", "old", mo.Some("github"))

	_, err := c.ChangeGenericPassword(ctx, "ci", "deploy", "new", mo.Some("gitlab"))
	if !errors.Is(err, security.ErrItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
	var kerr *Error
	if !errors.As(err, &kerr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if kerr.Op != security.OpDumpKeychain || kerr.ExitCode != -1 {
		t.Errorf("op = %q, exit code = %d", kerr.Op, kerr.ExitCode)
	}
}

func TestChangeWithoutServicePicksFirstForAccount(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	c.SetGenericPassword(ctx, "ci", "a", "one", mo.Some("svc"))
	c.SetGenericPassword(ctx, "ci", "a", "two", mo.None[string]())

	if _, err := c.ChangeGenericPassword(ctx, "ci", "a", "bare", mo.None[string]()); err != nil {
		t.Fatalf("ChangeGenericPassword: %v", err)
	}
	entries, _ := c.ListAccounts(ctx, "ci")
	want := []map[string]string{
		{"account": "a", "password": "bare", "service": "svc"},
		{"account": "a", "password": "two"},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if !reflect.DeepEqual(e.Fields(), want[i]) {
			t.Errorf("entry %d = %v, want %v", i, e.Fields(), want[i])
		}
	}
}

func TestFindEntry(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	c.SetGenericPassword(ctx, "ci", "deploy", "s3cret", mo.Some("github"))

	e, err := c.FindEntry(ctx, "ci", "deploy", mo.None[string]())
	if err != nil {
		t.Fatalf("FindEntry: %v", err)
	}
	want := map[string]string{"account": "deploy", "password": "s3cret", "service": "github"}
	if !reflect.DeepEqual(e.Fields(), want) {
		t.Errorf("Fields() = %v, want %v", e.Fields(), want)
	}

	_, err = c.FindEntry(ctx, "ci", "nobody", mo.None[string]())
	if !errors.Is(err, security.ErrItemNotFound) {
		t.Fatalf("expected item not found, got %v", err)
	}
}

func TestEmptyServiceRejected(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")
	before := len(m.Requests())

	empty := mo.Some("")
	if _, err := c.SetGenericPassword(ctx, "ci", "deploy", "pw", empty); !errors.Is(err, security.ErrInvalidArgument) {
		t.Errorf("Set: expected invalid argument, got %v", err)
	}
	if _, err := c.GetGenericPassword(ctx, "ci", "deploy", empty); !errors.Is(err, security.ErrInvalidArgument) {
		t.Errorf("Get: expected invalid argument, got %v", err)
	}
	if _, err := c.ChangeGenericPassword(ctx, "ci", "deploy", "pw", empty); !errors.Is(err, security.ErrInvalidArgument) {
		t.Errorf("Change: expected invalid argument, got %v", err)
	}
	if _, err := c.RemoveGenericPassword(ctx, "ci", "deploy", empty); !errors.Is(err, security.ErrInvalidArgument) {
		t.Errorf("Remove: expected invalid argument, got %v", err)
	}
	if n := len(m.Requests()) - before; n != 0 {
		t.Errorf("expected no tool calls, got %d", n)
	}
}

func TestSetGetNonASCII(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	for _, pw := range []string{"pässword", "tab\tand\nnewline", "\x01binary"} {
		account := "u" + pw[:1]
		if _, err := c.SetGenericPassword(ctx, "ci", account, pw, mo.None[string]()); err != nil {
			t.Fatalf("SetGenericPassword: %v", err)
		}
		e, err := c.GetGenericPassword(ctx, "ci", account, mo.None[string]())
		if err != nil {
			t.Fatalf("GetGenericPassword: %v", err)
		}
		if e.Password != pw {
			t.Errorf("Password = %q, want %q", e.Password, pw)
		}
	}

	reqs := m.Requests()
	find := reqs[len(reqs)-1].Args
	wantArgs := []string{"find-generic-password", "-a", "u\x01", "-g", "ci.keychain"}
	if !reflect.DeepEqual(find, wantArgs) {
		t.Errorf("args = %v, want %v", find, wantArgs)
	}
}

func TestDefaultSettings(t *testing.T) {
	c, _ := newTestClient(t)
	mustCreate(t, c, "ci")

	s, err := c.ShowSettings(context.Background(), "ci")
	if err != nil {
		t.Fatalf("ShowSettings: %v", err)
	}
	want := map[string]string{"lock-on-sleep": "true", "timeout": "300"}
	if !reflect.DeepEqual(s.Fields(), want) {
		t.Errorf("Fields() = %v, want %v", s.Fields(), want)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	res, err := c.SetSettings(ctx, "ci", false, mo.Some(100))
	if err != nil {
		t.Fatalf("SetSettings: %v", err)
	}
	if res.Message != "Keychain settings updated successfully" {
		t.Errorf("unexpected message %q", res.Message)
	}

	s, err := c.ShowSettings(ctx, "ci")
	if err != nil {
		t.Fatalf("ShowSettings: %v", err)
	}
	if secs, ok := s.Timeout.Get(); !ok || secs != 100 {
		t.Errorf("timeout = %v, want 100", s.Timeout)
	}
	if s.LockOnSleep.IsPresent() {
		t.Errorf("lock-on-sleep should be absent, got %v", s.LockOnSleep)
	}
}

func TestSettingsNoTimeout(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")

	c.SetSettings(ctx, "ci", true, mo.None[int]())
	s, err := c.ShowSettings(ctx, "ci")
	if err != nil {
		t.Fatalf("ShowSettings: %v", err)
	}
	want := map[string]string{"lock-on-sleep": "true"}
	if !reflect.DeepEqual(s.Fields(), want) {
		t.Errorf("Fields() = %v, want %v", s.Fields(), want)
	}
}

func TestSetSettingsNegativeTimeout(t *testing.T) {
	c, m := newTestClient(t)
	_, err := c.SetSettings(context.Background(), "ci", false, mo.Some(-1))
	if !errors.Is(err, security.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(m.Requests()) != 0 {
		t.Error("expected no tool calls")
	}
}

func TestLockUnlock(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()
	mustCreate(t, c, "ci")
	c.SetGenericPassword(ctx, "ci", "deploy", "s3cret", mo.None[string]())

	if _, err := c.Lock(ctx, "ci"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	_, err := c.GetGenericPassword(ctx, "ci", "deploy", mo.None[string]())
	if !errors.Is(err, security.ErrInteractionNotAllowed) {
		t.Fatalf("expected interaction not allowed, got %v", err)
	}

	if _, err := c.Unlock(ctx, "ci", "wrong"); !errors.Is(err, security.ErrAuthFailed) {
		t.Fatalf("expected auth failed, got %v", err)
	}
	res, err := c.Unlock(ctx, "ci", "pw")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if res.Message != "Keychain unlocked successfully" {
		t.Errorf("unexpected message %q", res.Message)
	}
	if _, err := c.GetGenericPassword(ctx, "ci", "deploy", mo.None[string]()); err != nil {
		t.Errorf("GetGenericPassword after unlock: %v", err)
	}
}

func TestToolFailureCarriesDiagnostic(t *testing.T) {
	c, m := newTestClient(t)
	m.FailNext(security.OpListKeychains, 1, "security: something odd happened")

	_, err := c.List(context.Background())
	var kerr *Error
	if !errors.As(err, &kerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if kerr.Message != "security: something odd happened" {
		t.Errorf("message = %q", kerr.Message)
	}
	if kerr.Op != security.OpListKeychains {
		t.Errorf("op = %q", kerr.Op)
	}
}

func TestNothingIsCached(t *testing.T) {
	c, m := newTestClient(t)
	ctx := context.Background()
	c.List(ctx)
	c.List(ctx)
	if n := len(m.Requests()); n != 2 {
		t.Errorf("expected 2 tool calls, got %d", n)
	}
}

func TestCancelledContext(t *testing.T) {
	c, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.List(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
