//go:build !windows

package capability

type unsupportedActivator struct{}

// SystemActivator returns an activator that always fails with
// ErrUnsupportedPlatform.
func SystemActivator() Activator {
	return unsupportedActivator{}
}

func (unsupportedActivator) ActivationFactory(string, string) (Factory, error) {
	return nil, ErrUnsupportedPlatform
}
