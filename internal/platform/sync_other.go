//go:build !unix

package platform

// SyncDir is a no-op on systems that cannot fsync directories.
func SyncDir(string) error {
	return nil
}
