package disk

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

type blockFile struct {
	path    string
	size    int64
	modTime time.Time
}

// blockFiles lists cached blocks under root. Staging files are skipped.
func blockFiles(root string) ([]blockFile, error) {
	var files []blockFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !strings.HasSuffix(d.Name(), blockExt) {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		files = append(files, blockFile{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return files, err
}

func dirSize(root string) (int64, error) {
	files, err := blockFiles(root)
	var total int64
	for _, f := range files {
		total += f.size
	}
	return total, err
}

// pruneDir removes the oldest blocks first until at most targetBytes remain.
func pruneDir(root string, targetBytes int64) (freed, remaining int64, err error) {
	files, err := blockFiles(root)
	if err != nil {
		return 0, 0, err
	}
	for _, f := range files {
		remaining += f.size
	}
	if remaining <= targetBytes {
		return 0, remaining, nil
	}

	slices.SortFunc(files, func(a, b blockFile) int {
		if c := a.modTime.Compare(b.modTime); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})
	for _, f := range files {
		if remaining <= targetBytes {
			break
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return freed, remaining, err
		}
		remaining -= f.size
		freed += f.size
	}
	return freed, remaining, nil
}
