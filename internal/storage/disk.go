package storage

import (
	"errors"
	"io/fs"
	"path/filepath"
)

// sqliteSidecars are the files SQLite keeps next to a database in WAL or rollback mode.
var sqliteSidecars = []string{"-wal", "-shm", "-journal"}

// DiskUsageBytes sums the on-disk size of the local storage paths: the ledger database with
// its SQLite sidecar files, and the vector snapshot. Directories are walked. Missing paths and
// empty strings count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return total, err
		}
		total += n
		for _, suffix := range sqliteSidecars {
			if n, err := pathSize(p + suffix); err == nil {
				total += n
			}
		}
	}
	return total, nil
}

func pathSize(p string) (int64, error) {
	var size int64
	err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			size += info.Size()
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return size, err
}
