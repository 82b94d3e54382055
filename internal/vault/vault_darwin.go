//go:build darwin

package vault

import (
	"errors"
	"fmt"

	gokeychain "github.com/keybase/go-keychain"
)

// SystemStore keeps unlock passwords as generic passwords in the login
// keychain, one item per keychain name. The item's label names the keychain
// it unlocks so it reads sensibly in Keychain Access.
type SystemStore struct {
	service string
}

var _ Store = (*SystemStore)(nil)

func NewSystemStore() *SystemStore {
	return &SystemStore{service: ServiceName}
}

// match is the query addressing the item for name.
func (s *SystemStore) match(name string) gokeychain.Item {
	q := gokeychain.NewItem()
	q.SetSecClass(gokeychain.SecClassGenericPassword)
	q.SetService(s.service)
	q.SetAccount(name)
	return q
}

// Set stores the unlock password for name. An existing item is updated in
// place, keeping its access settings.
func (s *SystemStore) Set(name, password string) error {
	item := s.match(name)
	item.SetLabel("keychainctl: unlock " + name + ".keychain")
	item.SetDescription("keychain password")
	item.SetData([]byte(password))
	item.SetSynchronizable(gokeychain.SynchronizableNo)
	item.SetAccessible(gokeychain.AccessibleWhenUnlockedThisDeviceOnly)

	err := gokeychain.AddItem(item)
	if errors.Is(err, gokeychain.ErrorDuplicateItem) {
		update := gokeychain.NewItem()
		update.SetData([]byte(password))
		err = gokeychain.UpdateItem(s.match(name), update)
	}
	if err != nil {
		return fmt.Errorf("remembering password for %s: %w", name, err)
	}
	return nil
}

func (s *SystemStore) Get(name string) (string, error) {
	q := s.match(name)
	q.SetMatchLimit(gokeychain.MatchLimitOne)
	q.SetReturnData(true)

	results, err := gokeychain.QueryItem(q)
	switch {
	case errors.Is(err, gokeychain.ErrorItemNotFound):
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	case err != nil:
		return "", fmt.Errorf("reading remembered password for %s: %w", name, err)
	case len(results) == 0 || len(results[0].Data) == 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return string(results[0].Data), nil
}

// Delete forgets the password for name. Forgetting an unknown name is not
// an error.
func (s *SystemStore) Delete(name string) error {
	err := gokeychain.DeleteItem(s.match(name))
	if err != nil && !errors.Is(err, gokeychain.ErrorItemNotFound) {
		return fmt.Errorf("forgetting password for %s: %w", name, err)
	}
	return nil
}
