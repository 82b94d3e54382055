package keychain

import (
	"encoding/json"
	"strconv"

	"github.com/samber/mo"
)

// Entry is a generic password. Service is present only if it was set.
type Entry struct {
	Account  string
	Password string
	Service  mo.Option[string]
}

// Fields returns the entry as a mapping holding only the fields that were set.
func (e Entry) Fields() map[string]string {
	f := map[string]string{
		"account":  e.Account,
		"password": e.Password,
	}
	if s, ok := e.Service.Get(); ok {
		f["service"] = s
	}
	return f
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields())
}

// Settings are the two keychain settings the tool reports. A setting the
// tool does not print is absent, which is not the same as false.
type Settings struct {
	LockOnSleep mo.Option[bool]
	Timeout     mo.Option[int] // seconds
}

// Fields returns the present settings keyed as the tool names them.
func (s Settings) Fields() map[string]string {
	f := make(map[string]string, 2)
	if v, ok := s.LockOnSleep.Get(); ok {
		f["lock-on-sleep"] = strconv.FormatBool(v)
	}
	if v, ok := s.Timeout.Get(); ok {
		f["timeout"] = strconv.Itoa(v)
	}
	return f
}

func (s Settings) MarshalJSON() ([]byte, error) {
	f := make(map[string]any, 2)
	if v, ok := s.LockOnSleep.Get(); ok {
		f["lock-on-sleep"] = v
	}
	if v, ok := s.Timeout.Get(); ok {
		f["timeout"] = v
	}
	return json.Marshal(f)
}
