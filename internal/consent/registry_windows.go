//go:build windows

package consent

import (
	"errors"

	"golang.org/x/sys/windows/registry"
)

type registryHive struct {
	root registry.Key
}

// SystemHive returns the HKEY_CURRENT_USER registry hive.
func SystemHive() Hive {
	return registryHive{root: registry.CURRENT_USER}
}

func (h registryHive) OpenKey(path string) (Key, error) {
	return openRegistryKey(h.root, path)
}

type registryKey struct {
	k registry.Key
}

func openRegistryKey(parent registry.Key, path string) (Key, error) {
	k, err := registry.OpenKey(parent, path, registry.ENUMERATE_SUB_KEYS|registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return registryKey{k: k}, nil
}

func (k registryKey) SubKeyNames() ([]string, error) {
	return k.k.ReadSubKeyNames(-1)
}

func (k registryKey) OpenSubKey(name string) (Key, error) {
	return openRegistryKey(k.k, name)
}

func (k registryKey) Uint64(name string) (uint64, bool, error) {
	v, _, err := k.k.GetIntegerValue(name)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return v, true, nil
}

func (k registryKey) Close() error {
	return k.k.Close()
}
