package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bets3435-dev/book-search-app/internal/config"
)

// sqliteSidecars are the files SQLite keeps next to the database in WAL mode.
var sqliteSidecars = []string{"-wal", "-shm"}

// DiskUsage is the on-disk footprint of each persisted component, in bytes.
type DiskUsage struct {
	RecordStore    int64 `json:"record_store"`
	VectorIndex    int64 `json:"vector_index"`
	EmbeddingCache int64 `json:"embedding_cache"`
	Total          int64 `json:"total"`
}

// MeasureDiskUsage sizes the record store of the configured backend, the vector file and
// the embedding cache directory. In-memory and missing components count as zero.
func MeasureDiskUsage(cfg *config.StorageConfig) (DiskUsage, error) {
	var (
		usage DiskUsage
		err   error
	)
	switch cfg.Backend {
	case "bleve":
		usage.RecordStore, err = pathSize(cfg.BleveIndexPath)
	default:
		usage.RecordStore, err = sqliteSize(cfg.DatabasePath)
	}
	if err != nil {
		return DiskUsage{}, err
	}
	if usage.VectorIndex, err = pathSize(cfg.VectorIndexPath); err != nil {
		return DiskUsage{}, err
	}
	if usage.EmbeddingCache, err = pathSize(cfg.EmbeddingCachePath); err != nil {
		return DiskUsage{}, err
	}
	usage.Total = usage.RecordStore + usage.VectorIndex + usage.EmbeddingCache
	return usage, nil
}

func sqliteSize(path string) (int64, error) {
	if path == ":memory:" {
		return 0, nil
	}
	total, err := pathSize(path)
	if err != nil || path == "" {
		return total, err
	}
	for _, suffix := range sqliteSidecars {
		n, err := pathSize(path + suffix)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// pathSize returns the size of a file, or the recursive size of a directory.
func pathSize(path string) (int64, error) {
	if path == "" {
		return 0, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			// Removed mid-walk, e.g. a retired bleve generation.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
