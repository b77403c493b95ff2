//go:build !unix

package platform

import "os"

// RemoveOpen leaves f in place on systems that cannot remove open files.
func RemoveOpen(*os.File) bool {
	return false
}
