//go:build unix

package platform

import "os"

// RemoveOpen unlinks the file behind f while f stays open, so its storage
// is reclaimed when f is closed or the process exits. It reports whether the
// name was removed.
func RemoveOpen(f *os.File) bool {
	return os.Remove(f.Name()) == nil
}
