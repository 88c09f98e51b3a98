package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk size of a persisted index, by component.
type Usage struct {
	Database int64 `json:"database_bytes"`
	Vectors  int64 `json:"vectors_bytes"`
	Keyword  int64 `json:"keyword_bytes"`
	Total    int64 `json:"total_bytes"`
}

// IndexUsage measures the SQLite database (with its WAL files), the vector file and
// the keyword index directory. Components that do not exist count as zero.
func IndexUsage(dbPath, indexPath, keywordPath string) (Usage, error) {
	var u Usage
	var err error
	if dbPath != ":memory:" {
		if u.Database, err = DiskUsageBytes(dbPath, dbPath+"-wal", dbPath+"-shm"); err != nil {
			return Usage{}, err
		}
	}
	if u.Vectors, err = DiskUsageBytes(indexPath); err != nil {
		return Usage{}, err
	}
	if u.Keyword, err = DiskUsageBytes(keywordPath); err != nil {
		return Usage{}, err
	}
	u.Total = u.Database + u.Vectors + u.Keyword
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given files or directories.
// Missing and empty paths contribute 0.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if !info.IsDir() {
			total += info.Size()
			continue
		}
		n, err := dirSize(p)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
