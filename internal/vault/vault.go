// Package vault remembers keychain unlock passwords in the platform's own
// credential store, so keychains created by keychainctl can be unlocked
// later without prompting.
package vault

import "errors"

// ServiceName is the service attribute under which unlock passwords are
// stored.
const ServiceName = "com.keychainctl.unlock"

// ErrNotFound is returned when no password is remembered for a keychain.
var ErrNotFound = errors.New("no remembered password")

// Store holds one unlock password per keychain name.
type Store interface {
	Set(name, password string) error
	Get(name string) (string, error)
	Delete(name string) error
}
