package consent

import "strings"

// The NonPackaged subtree cannot use '\' in key names, so the OS stores
// executable paths with every separator swapped for '#'.
const (
	pathSeparator   = `\`
	pathPlaceholder = "#"
)

// EncodeAppPath converts an executable path into its NonPackaged key name.
func EncodeAppPath(path string) string {
	return strings.ReplaceAll(path, pathSeparator, pathPlaceholder)
}

// DecodeAppPath reverses EncodeAppPath.
func DecodeAppPath(name string) string {
	return strings.ReplaceAll(name, pathPlaceholder, pathSeparator)
}
