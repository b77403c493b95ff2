//go:build unix

package platform

import "os"

// SyncDir flushes directory metadata so that renames into dir survive a crash.
func SyncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // caller-provided directory
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}
