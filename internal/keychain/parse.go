package keychain

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/benaskins/keychainctl/internal/security"
	"github.com/samber/mo"
)

// Parser turns the tool's text output into structured results. The
// formats are not a stable interface of the tool, so parsing stays behind
// this seam.
type Parser interface {
	KeychainNames(out security.Output) []string
	Settings(out security.Output) (Settings, error)
	Entries(out security.Output) ([]Entry, error)
	Password(out security.Output) string
}

// LineParser scans output line by line for known tokens.
type LineParser struct{}

var _ Parser = LineParser{}

// KeychainNames parses list-keychains: one quoted path per line.
func (LineParser) KeychainNames(out security.Output) []string {
	var names []string
	for _, line := range lines(out.Stdout) {
		p := strings.Trim(strings.TrimSpace(line), `"`)
		if p == "" {
			continue
		}
		name, err := nameFromPath(p)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Settings parses show-keychain-info, which prints a single line such as
//
//	Keychain "/Users/me/Library/Keychains/ci.keychain-db" lock-on-sleep timeout=300s
//
// to stderr. lock-on-sleep is only printed when enabled.
func (LineParser) Settings(out security.Output) (Settings, error) {
	for _, line := range lines([]byte(out.Text())) {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, `Keychain "`) {
			continue
		}
		var s Settings
		end := strings.LastIndex(line, `"`)
		for _, tok := range strings.Fields(line[end+1:]) {
			switch {
			case tok == "lock-on-sleep":
				s.LockOnSleep = mo.Some(true)
			case strings.HasPrefix(tok, "timeout="):
				v := strings.TrimSuffix(strings.TrimPrefix(tok, "timeout="), "s")
				secs, err := strconv.Atoi(v)
				if err != nil {
					return Settings{}, unparsable(security.OpShowKeychainInfo, line)
				}
				s.Timeout = mo.Some(secs)
			}
		}
		return s, nil
	}
	return Settings{}, unparsable(security.OpShowKeychainInfo, out.Text())
}

type dumpItem struct {
	class   string
	account string
	service string
	data    string
}

// Entries parses dump-keychain -d, keeping generic passwords in dump order.
func (LineParser) Entries(out security.Output) ([]Entry, error) {
	var (
		entries []Entry
		cur     *dumpItem
		inData  bool
	)
	flush := func() {
		if cur != nil && cur.class == "genp" {
			e := Entry{Account: cur.account, Password: cur.data}
			// <NULL> and "" both mean no service; the facade never stores "".
			if cur.service != "" {
				e.Service = mo.Some(cur.service)
			}
			entries = append(entries, e)
		}
	}

	for _, line := range lines(out.Stdout) {
		if strings.HasPrefix(line, "keychain: ") {
			flush()
			cur = &dumpItem{}
			inData = false
			continue
		}
		if cur == nil {
			continue
		}
		if inData {
			cur.data = decodeValue(line)
			inData = false
			continue
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "data:":
			inData = true
		case strings.HasPrefix(trimmed, "class: "):
			cur.class = decodeValue(strings.TrimPrefix(trimmed, "class: "))
		case strings.HasPrefix(trimmed, `"acct"<blob>=`):
			cur.account = decodeValue(strings.TrimPrefix(trimmed, `"acct"<blob>=`))
		case strings.HasPrefix(trimmed, `"svce"<blob>=`):
			cur.service = decodeValue(strings.TrimPrefix(trimmed, `"svce"<blob>=`))
		}
	}
	flush()

	if entries == nil && len(bytes.TrimSpace(out.Stdout)) > 0 && cur == nil {
		return nil, unparsable(security.OpDumpKeychain, string(out.Stdout))
	}
	return entries, nil
}

// Password parses the password: line find-generic-password -g prints to
// stderr, either
//
//	password: "s3cret"
//	password: 0x70C3A47373776F7264  "p\303\244ssword"
//
// A secret with no data prints no value.
func (LineParser) Password(out security.Output) string {
	for _, line := range lines([]byte(out.Text())) {
		if v, ok := strings.CutPrefix(line, "password:"); ok {
			return decodeValue(v)
		}
	}
	return ""
}

func lines(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

// decodeValue decodes an attribute or data value as the tool prints it:
// <NULL>, a quoted string with octal escapes, or 0x-prefixed hex optionally
// followed by a quoted rendering.
func decodeValue(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "<NULL>":
		return ""
	case strings.HasPrefix(s, "0x"):
		tok := strings.Fields(s)[0]
		if b, err := hex.DecodeString(tok[2:]); err == nil {
			return string(b)
		}
		return s
	case strings.HasPrefix(s, `"`):
		return unquote(s)
	default:
		return s
	}
}

func unquote(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimSuffix(s, `"`)
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		if i+3 < len(s) && isOctal(next) && isOctal(s[i+2]) && isOctal(s[i+3]) {
			v, _ := strconv.ParseUint(s[i+1:i+4], 8, 8)
			b.WriteByte(byte(v))
			i += 3
			continue
		}
		b.WriteByte(next)
		i++
	}
	return b.String()
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

func unparsable(op, text string) *security.Error {
	return &security.Error{
		Op:       op,
		Kind:     security.KindUnknown,
		ExitCode: 0,
		Message:  "unrecognised output: " + strings.TrimSpace(text),
	}
}
