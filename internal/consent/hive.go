package consent

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by a Hive or Key when the requested key
	// does not exist.
	ErrKeyNotFound = errors.New("consent: key not found")

	// ErrUnsupportedPlatform is returned by the system hive on platforms
	// without a Windows registry.
	ErrUnsupportedPlatform = errors.New("consent: consent store is only available on Windows")
)

// Hive is a read-only hierarchical key/value store rooted at the current
// user's registry hive. Paths use '\' as separator.
type Hive interface {
	OpenKey(path string) (Key, error)
}

// Key is an open node in a Hive. Callers must Close every key they open.
type Key interface {
	SubKeyNames() ([]string, error)
	OpenSubKey(name string) (Key, error)
	// Uint64 reads an integer value. ok is false when the value is absent.
	Uint64(name string) (value uint64, ok bool, err error)
	Close() error
}

// StoreReadError reports a consent store failure other than a missing
// capability root.
type StoreReadError struct {
	Capability string
	Path       string
	Err        error
}

func (e *StoreReadError) Error() string {
	return fmt.Sprintf("consent: failed to read %s for %q: %v", e.Path, e.Capability, e.Err)
}

func (e *StoreReadError) Unwrap() error {
	return e.Err
}
