package keychain

import (
	"path"
	"regexp"
	"strings"

	"github.com/benaskins/keychainctl/internal/security"
)

// Suffix is the conventional keychain file suffix.
const Suffix = ".keychain"

const maxNameLen = 255

// No path separators or control characters, and no leading dash that the
// tool would read as a flag.
var nameRe = regexp.MustCompile(`^[^-/\x00-\x1f\x7f][^/\x00-\x1f\x7f]*$`)

// NormaliseName trims whitespace and strips one trailing ".keychain".
// A name still ending in the suffix after that is rejected, so a returned
// name always normalises to itself.
func NormaliseName(raw string) (string, error) {
	name := strings.TrimSuffix(strings.TrimSpace(raw), Suffix)
	if name == "" || len(name) > maxNameLen || !nameRe.MatchString(name) || strings.HasSuffix(name, Suffix) {
		return "", security.InvalidArgument("normalise", "invalid keychain name %q", raw)
	}
	return name, nil
}

// toolPath is the argument the tool resolves against ~/Library/Keychains.
func toolPath(name string) string {
	return name + Suffix
}

// nameFromPath reduces a path reported by the tool, such as
// /Users/me/Library/Keychains/login.keychain-db, to a normalised name.
func nameFromPath(p string) (string, error) {
	base := strings.TrimSuffix(path.Base(p), "-db")
	return NormaliseName(base)
}
