package security

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const memoryHome = "/Users/test"

// MemoryRunner is an in-memory stand-in for the security tool, for testing.
// It understands the argument vectors built by this package and answers
// with the tool's output formats, exit statuses and diagnostics.
type MemoryRunner struct {
	mu        sync.Mutex
	keychains map[string]*memKeychain
	search    []string
	requests  []Request
	failures  map[string]*Error
}

type memKeychain struct {
	password    string
	lockOnSleep bool
	timeout     int // seconds, 0 for no timeout
	locked      bool
	items       []memItem
}

type memItem struct {
	account  string
	service  string
	password string
}

// Compile-time check to ensure MemoryRunner implements Runner
var _ Runner = (*MemoryRunner)(nil)

// NewMemoryRunner returns an emulator holding only the login keychain.
func NewMemoryRunner() *MemoryRunner {
	login := resolvePath("login.keychain")
	return &MemoryRunner{
		keychains: map[string]*memKeychain{login: {timeout: 0}},
		search:    []string{login},
		failures:  make(map[string]*Error),
	}
}

// Requests returns a copy of every request received so far.
func (m *MemoryRunner) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// FailNext makes the next request for op fail with the given exit status
// and diagnostic.
func (m *MemoryRunner) FailNext(op string, exitCode int, diagnostic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = Classify(op, exitCode, diagnostic)
}

func (m *MemoryRunner) Run(ctx context.Context, req Request) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	op := req.Op()
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return Output{Stderr: []byte(err.Message + "\n")}, err
	}

	args := req.Args
	if len(args) > 0 {
		args = args[1:]
	}

	switch op {
	case OpCreateKeychain:
		return m.createKeychain(args)
	case OpDeleteKeychain:
		return m.deleteKeychain(args)
	case OpListKeychains:
		return m.listKeychains()
	case OpShowKeychainInfo:
		return m.showKeychainInfo(args)
	case OpSetKeychainSettings:
		return m.setKeychainSettings(args)
	case OpUnlockKeychain:
		return m.unlockKeychain(args)
	case OpLockKeychain:
		return m.lockKeychain(args)
	case OpAddGenericPassword:
		return m.addGenericPassword(args)
	case OpFindGenericPassword:
		return m.findGenericPassword(args)
	case OpDeleteGenericPassword:
		return m.deleteGenericPassword(args)
	case OpDumpKeychain:
		return m.dumpKeychain(args)
	default:
		return fail(op, 1, fmt.Sprintf("security: unknown command %q", op))
	}
}

func (m *MemoryRunner) createKeychain(args []string) (Output, error) {
	flags, pos := parseArgs(args, "p")
	if len(pos) != 1 {
		return usage(OpCreateKeychain)
	}
	path := resolvePath(pos[0])
	if _, ok := m.keychains[path]; ok {
		return fail(OpCreateKeychain, 48, fmt.Sprintf(
			"security: SecKeychainCreate %s: A keychain with the same name already exists.", pos[0]))
	}
	m.keychains[path] = &memKeychain{
		password:    flags["p"],
		lockOnSleep: true,
		timeout:     300,
	}
	m.search = append(m.search, path)
	return Output{}, nil
}

func (m *MemoryRunner) deleteKeychain(args []string) (Output, error) {
	_, pos := parseArgs(args)
	if len(pos) != 1 {
		return usage(OpDeleteKeychain)
	}
	path := resolvePath(pos[0])
	if _, ok := m.keychains[path]; !ok {
		return noSuchKeychain(OpDeleteKeychain, "SecKeychainDelete")
	}
	delete(m.keychains, path)
	for i, p := range m.search {
		if p == path {
			m.search = append(m.search[:i], m.search[i+1:]...)
			break
		}
	}
	return Output{}, nil
}

func (m *MemoryRunner) listKeychains() (Output, error) {
	var b strings.Builder
	for _, p := range m.search {
		fmt.Fprintf(&b, "    %q\n", p)
	}
	return Output{Stdout: []byte(b.String())}, nil
}

func (m *MemoryRunner) showKeychainInfo(args []string) (Output, error) {
	_, pos := parseArgs(args)
	if len(pos) != 1 {
		return usage(OpShowKeychainInfo)
	}
	path := resolvePath(pos[0])
	kc, ok := m.keychains[path]
	if !ok {
		return noSuchKeychain(OpShowKeychainInfo, "SecKeychainCopySettings "+pos[0])
	}
	line := fmt.Sprintf("Keychain %q", path)
	if kc.lockOnSleep {
		line += " lock-on-sleep"
	}
	if kc.timeout > 0 {
		line += fmt.Sprintf(" timeout=%ds", kc.timeout)
	} else {
		line += " no-timeout"
	}
	return Output{Stderr: []byte(line + "\n")}, nil
}

func (m *MemoryRunner) setKeychainSettings(args []string) (Output, error) {
	flags, pos := parseArgs(args, "t")
	if len(pos) != 1 {
		return usage(OpSetKeychainSettings)
	}
	kc, ok := m.keychains[resolvePath(pos[0])]
	if !ok {
		return noSuchKeychain(OpSetKeychainSettings, "SecKeychainSetSettings "+pos[0])
	}
	_, kc.lockOnSleep = flags["l"]
	kc.timeout = 0
	if t, ok := flags["t"]; ok {
		secs, err := strconv.Atoi(t)
		if err != nil || secs < 0 {
			return usage(OpSetKeychainSettings)
		}
		kc.timeout = secs
	}
	return Output{}, nil
}

func (m *MemoryRunner) unlockKeychain(args []string) (Output, error) {
	flags, pos := parseArgs(args, "p")
	if len(pos) != 1 {
		return usage(OpUnlockKeychain)
	}
	kc, ok := m.keychains[resolvePath(pos[0])]
	if !ok {
		return noSuchKeychain(OpUnlockKeychain, "SecKeychainUnlock "+pos[0])
	}
	if flags["p"] != kc.password {
		return fail(OpUnlockKeychain, 51, fmt.Sprintf(
			"security: SecKeychainUnlock %s: The user name or passphrase you entered is not correct.", pos[0]))
	}
	kc.locked = false
	return Output{}, nil
}

func (m *MemoryRunner) lockKeychain(args []string) (Output, error) {
	_, pos := parseArgs(args)
	if len(pos) != 1 {
		return usage(OpLockKeychain)
	}
	kc, ok := m.keychains[resolvePath(pos[0])]
	if !ok {
		return noSuchKeychain(OpLockKeychain, "SecKeychainLock "+pos[0])
	}
	kc.locked = true
	return Output{}, nil
}

func (m *MemoryRunner) addGenericPassword(args []string) (Output, error) {
	flags, pos := parseArgs(args, "a", "s", "w")
	if len(pos) != 1 {
		return usage(OpAddGenericPassword)
	}
	kc, ok := m.keychains[resolvePath(pos[0])]
	if !ok {
		return noSuchKeychain(OpAddGenericPassword, "SecKeychainItemCreateFromContent ("+pos[0]+")")
	}
	if kc.locked {
		return interactionNotAllowed(OpAddGenericPassword)
	}
	account, service := flags["a"], flags["s"]
	for i := range kc.items {
		if kc.items[i].account == account && kc.items[i].service == service {
			if _, update := flags["U"]; !update {
				return fail(OpAddGenericPassword, 45, fmt.Sprintf(
					"security: SecKeychainItemCreateFromContent (%s): The specified item already exists in the keychain.", pos[0]))
			}
			kc.items[i].password = flags["w"]
			return Output{}, nil
		}
	}
	kc.items = append(kc.items, memItem{account: account, service: service, password: flags["w"]})
	return Output{}, nil
}

func (m *MemoryRunner) findGenericPassword(args []string) (Output, error) {
	flags, pos := parseArgs(args, "a", "s")
	kc, err := m.searchTarget(OpFindGenericPassword, pos)
	if err != nil {
		return Output{Stderr: []byte(err.Message + "\n")}, err
	}
	if kc.locked {
		return interactionNotAllowed(OpFindGenericPassword)
	}
	i := kc.match(flags)
	if i < 0 {
		return itemNotFound(OpFindGenericPassword)
	}
	it := kc.items[i]
	var b strings.Builder
	b.WriteString("class: \"genp\"\nattributes:\n")
	fmt.Fprintf(&b, "    \"acct\"<blob>=%s\n", toolBlob(it.account))
	fmt.Fprintf(&b, "    \"svce\"<blob>=%s\n", toolBlob(it.service))
	return Output{
		Stdout: []byte(b.String()),
		Stderr: []byte("password: " + toolData(it.password) + "\n"),
	}, nil
}

func (m *MemoryRunner) deleteGenericPassword(args []string) (Output, error) {
	flags, pos := parseArgs(args, "a", "s")
	kc, err := m.searchTarget(OpDeleteGenericPassword, pos)
	if err != nil {
		return Output{Stderr: []byte(err.Message + "\n")}, err
	}
	i := kc.match(flags)
	if i < 0 {
		return itemNotFound(OpDeleteGenericPassword)
	}
	kc.items = append(kc.items[:i], kc.items[i+1:]...)
	return Output{Stdout: []byte("password has been deleted.\n")}, nil
}

func (m *MemoryRunner) dumpKeychain(args []string) (Output, error) {
	_, pos := parseArgs(args)
	if len(pos) != 1 {
		return usage(OpDumpKeychain)
	}
	path := resolvePath(pos[0])
	kc, ok := m.keychains[path]
	if !ok {
		return noSuchKeychain(OpDumpKeychain, "SecKeychainCopySearchList "+pos[0])
	}
	if kc.locked {
		return interactionNotAllowed(OpDumpKeychain)
	}
	var b strings.Builder
	for _, it := range kc.items {
		fmt.Fprintf(&b, "keychain: %q\n", path)
		b.WriteString("version: 512\n")
		b.WriteString("class: \"genp\"\n")
		b.WriteString("attributes:\n")
		fmt.Fprintf(&b, "    0x00000007 <blob>=%s\n", toolBlob(it.service))
		b.WriteString("    0x00000008 <blob>=<NULL>\n")
		fmt.Fprintf(&b, "    \"acct\"<blob>=%s\n", toolBlob(it.account))
		b.WriteString("    \"cdat\"<timedate>=0x32303236313031393132303030305A00  \"20261019120000Z\\000\"\n")
		b.WriteString("    \"crtr\"<uint32>=<NULL>\n")
		b.WriteString("    \"desc\"<blob>=<NULL>\n")
		b.WriteString("    \"gena\"<blob>=<NULL>\n")
		b.WriteString("    \"invi\"<sint32>=<NULL>\n")
		fmt.Fprintf(&b, "    \"svce\"<blob>=%s\n", toolBlob(it.service))
		b.WriteString("    \"type\"<uint32>=<NULL>\n")
		b.WriteString("data:\n")
		b.WriteString(toolData(it.password) + "\n")
	}
	return Output{Stdout: []byte(b.String())}, nil
}

// searchTarget resolves the keychain named by the trailing argument; without
// one the tool searches the user search list, which here means the first
// keychain on it.
func (m *MemoryRunner) searchTarget(op string, pos []string) (*memKeychain, *Error) {
	path := ""
	switch len(pos) {
	case 0:
		if len(m.search) == 0 {
			return nil, Classify(op, 44, "security: SecKeychainSearchCopyNext: The specified item could not be found in the keychain.")
		}
		path = m.search[0]
	case 1:
		path = resolvePath(pos[0])
	default:
		return nil, Classify(op, 2, "security: "+op+": too many arguments")
	}
	kc, ok := m.keychains[path]
	if !ok {
		return nil, Classify(op, 50, "security: "+op+": The specified keychain could not be found.")
	}
	return kc, nil
}

func (kc *memKeychain) match(flags map[string]string) int {
	account, hasAccount := flags["a"]
	service, hasService := flags["s"]
	for i, it := range kc.items {
		if hasAccount && it.account != account {
			continue
		}
		if hasService && it.service != service {
			continue
		}
		return i
	}
	return -1
}

// resolvePath mirrors the tool: bare names live in ~/Library/Keychains and
// current macOS stores them with a -db suffix.
func resolvePath(p string) string {
	if !strings.Contains(p, "/") {
		p = memoryHome + "/Library/Keychains/" + p
	}
	if strings.HasSuffix(p, ".keychain") {
		p += "-db"
	}
	return p
}

// parseArgs splits flags from positional arguments. Flags listed in
// withValue consume the following argument; others are boolean.
func parseArgs(args []string, withValue ...string) (map[string]string, []string) {
	takes := make(map[string]bool, len(withValue))
	for _, f := range withValue {
		takes[f] = true
	}
	flags := make(map[string]string)
	var pos []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if len(a) < 2 || a[0] != '-' {
			pos = append(pos, a)
			continue
		}
		name := a[1:]
		if takes[name] && i+1 < len(args) {
			flags[name] = args[i+1]
			i++
			continue
		}
		flags[name] = ""
	}
	return flags, pos
}

func toolBlob(s string) string {
	if s == "" {
		return "<NULL>"
	}
	return toolQuote(s)
}

// toolData renders a secret like the tool: quoted when it is printable
// ASCII, otherwise hex with the quoted rendering after it.
func toolData(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return fmt.Sprintf("0x%X  %s", s, toolQuote(s))
		}
	}
	return toolQuote(s)
}

// toolQuote quotes like the tool: printable ASCII verbatim, everything else
// as three-digit octal escapes.
func toolQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c > 0x7e:
			fmt.Fprintf(&b, "\\%03o", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func fail(op string, code int, msg string) (Output, error) {
	return Output{Stderr: []byte(msg + "\n")}, Classify(op, code, msg)
}

func usage(op string) (Output, error) {
	return fail(op, 2, "security: "+op+": usage error")
}

func noSuchKeychain(op, call string) (Output, error) {
	return fail(op, 50, fmt.Sprintf("security: %s: The specified keychain could not be found.", call))
}

func itemNotFound(op string) (Output, error) {
	return fail(op, 44, "security: SecKeychainSearchCopyNext: The specified item could not be found in the keychain.")
}

func interactionNotAllowed(op string) (Output, error) {
	return fail(op, 36, "security: "+op+": User interaction is not allowed.")
}
