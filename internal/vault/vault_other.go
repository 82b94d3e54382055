//go:build !darwin

package vault

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// SystemStore keeps unlock passwords in the desktop keyring (Secret
// Service on Linux, Credential Manager on Windows).
type SystemStore struct {
	service string
}

var _ Store = (*SystemStore)(nil)

// NewSystemStore creates a keyring-backed vault.
func NewSystemStore() *SystemStore {
	return &SystemStore{service: ServiceName}
}

func (s *SystemStore) Set(name, password string) error {
	if err := keyring.Set(s.service, name, password); err != nil {
		return fmt.Errorf("remembering password for %s: %w", name, err)
	}
	return nil
}

func (s *SystemStore) Get(name string) (string, error) {
	password, err := keyring.Get(s.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("reading remembered password for %s: %w", name, err)
	}
	if password == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return password, nil
}

func (s *SystemStore) Delete(name string) error {
	err := keyring.Delete(s.service, name)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("forgetting password for %s: %w", name, err)
	}
	return nil
}
