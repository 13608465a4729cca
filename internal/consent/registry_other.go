//go:build !windows

package consent

type unsupportedHive struct{}

// SystemHive returns a hive that fails every open with
// ErrUnsupportedPlatform.
func SystemHive() Hive {
	return unsupportedHive{}
}

func (unsupportedHive) OpenKey(string) (Key, error) {
	return nil, ErrUnsupportedPlatform
}
