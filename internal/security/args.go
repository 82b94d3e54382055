package security

import (
	"strconv"

	"github.com/samber/mo"
)

// Sub-commands of the tool.
const (
	OpCreateKeychain        = "create-keychain"
	OpDeleteKeychain        = "delete-keychain"
	OpListKeychains         = "list-keychains"
	OpShowKeychainInfo      = "show-keychain-info"
	OpSetKeychainSettings   = "set-keychain-settings"
	OpUnlockKeychain        = "unlock-keychain"
	OpLockKeychain          = "lock-keychain"
	OpAddGenericPassword    = "add-generic-password"
	OpFindGenericPassword   = "find-generic-password"
	OpDeleteGenericPassword = "delete-generic-password"
	OpDumpKeychain          = "dump-keychain"
)

func CreateKeychain(path, password string) Request {
	return Request{Args: []string{OpCreateKeychain, "-p", password, path}}
}

func DeleteKeychain(path string) Request {
	return Request{Args: []string{OpDeleteKeychain, path}}
}

// ListKeychains lists the user search list.
func ListKeychains() Request {
	return Request{Args: []string{OpListKeychains, "-d", "user"}}
}

func ShowKeychainInfo(path string) Request {
	return Request{Args: []string{OpShowKeychainInfo, path}}
}

// SetKeychainSettings writes lock-on-sleep and the idle timeout. Omitting
// the timeout leaves the keychain with no timeout.
func SetKeychainSettings(path string, lockOnSleep bool, timeout mo.Option[int]) Request {
	args := []string{OpSetKeychainSettings}
	if lockOnSleep {
		args = append(args, "-l")
	}
	if secs, ok := timeout.Get(); ok {
		args = append(args, "-u", "-t", strconv.Itoa(secs))
	}
	args = append(args, path)
	return Request{Args: args}
}

func UnlockKeychain(path, password string) Request {
	return Request{Args: []string{OpUnlockKeychain, "-p", password, path}}
}

func LockKeychain(path string) Request {
	return Request{Args: []string{OpLockKeychain, path}}
}

// AddGenericPassword adds an item; with update set an existing item is
// overwritten instead of failing as a duplicate.
func AddGenericPassword(path, account, password string, service mo.Option[string], update bool) Request {
	args := []string{OpAddGenericPassword}
	if update {
		args = append(args, "-U")
	}
	args = append(args, "-a", account)
	args = appendService(args, service)
	args = append(args, "-w", password, path)
	return Request{Args: args}
}

// FindGenericPassword finds the first matching item. With -g the tool
// prints the secret to stderr as a password: line, quoted when printable
// and hex encoded otherwise.
func FindGenericPassword(path, account string, service mo.Option[string]) Request {
	args := []string{OpFindGenericPassword, "-a", account}
	args = appendService(args, service)
	args = append(args, "-g", path)
	return Request{Args: args}
}

func DeleteGenericPassword(path, account string, service mo.Option[string]) Request {
	args := []string{OpDeleteGenericPassword, "-a", account}
	args = appendService(args, service)
	args = append(args, path)
	return Request{Args: args}
}

// DumpKeychain dumps every item of the keychain including secret data.
func DumpKeychain(path string) Request {
	return Request{Args: []string{OpDumpKeychain, "-d", path}}
}

func appendService(args []string, service mo.Option[string]) []string {
	if s, ok := service.Get(); ok {
		args = append(args, "-s", s)
	}
	return args
}
