//go:build !windows || !(amd64 || arm64)

package wnf

type unsupportedPlatform struct{}

// SystemPlatform returns a platform that fails with ErrUnsupportedPlatform.
func SystemPlatform() Platform {
	return unsupportedPlatform{}
}

func (unsupportedPlatform) QueryStateData(uint64, []byte) (uint32, uint32, error) {
	return 0, 0, ErrUnsupportedPlatform
}

func (unsupportedPlatform) Subscribe(uint64, uint32, uintptr) (Handle, error) {
	return 0, ErrUnsupportedPlatform
}

func (unsupportedPlatform) Unsubscribe(Handle) error {
	return ErrUnsupportedPlatform
}
