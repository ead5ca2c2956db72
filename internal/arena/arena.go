// Package arena stores the artifacts handed off between pipeline stages.
//
// Fixed well-known paths between stages would forbid running profiles in
// parallel, so every artifact instead lives in its own namespace keyed by
// (revision, profile fingerprint, stage). Metadata goes into BoltDB, file
// payloads into per-key directories on disk. Records are write-once from the
// consumer's point of view: a stage either regenerates its whole output or
// leaves it alone, and downstream stages copy artifacts out rather than
// reading them in place.
package arena

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// DefaultDir is the default arena directory name.
	DefaultDir = ".boostpack"

	bucketName = "artifacts"
)

// Arena manages artifact records and payload directories.
type Arena struct {
	db   *bbolt.DB
	root string
}

// Open creates or opens an arena rooted at dir. An empty dir means
// DefaultDir under the current working directory.
func Open(dir string) (*Arena, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}

		dir = filepath.Join(cwd, DefaultDir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create arena directory: %w", err)
	}

	dbPath := filepath.Join(dir, "arena.db")
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open arena database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create arena bucket: %w", err)
	}

	return &Arena{db: db, root: dir}, nil
}

// Close closes the arena database.
func (a *Arena) Close() error {
	if a.db != nil {
		return a.db.Close()
	}

	return nil
}

// Dir returns the payload directory for a key. Publish creates it through
// EnsureDir; it does not exist before the first publish.
func (a *Arena) Dir(key Key) string {
	return filepath.Join(a.root, "artifacts", key.Hash())
}

// EnsureDir creates and returns the payload directory for a key.
func (a *Arena) EnsureDir(key Key) (string, error) {
	dir := a.Dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return dir, nil
}

// Get retrieves the record for a key. Returns nil on a miss.
func (a *Arena) Get(key Key) (*Record, error) {
	var record Record

	err := a.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(key.Hash()))
		if data == nil {
			return nil // miss
		}

		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}

	if record.Key == "" {
		return nil, nil // miss
	}

	return &record, nil
}

// Publish copies the named files (relative paths) from srcDir into the key's
// payload directory and stores the record. Republishing a key replaces the
// record and payload wholesale; there is no partial update.
func (a *Arena) Publish(key Key, srcDir string, files []string) (*Record, error) {
	dir := a.Dir(key)

	// Full regeneration: drop any stale payload first. The directory is
	// recreated even for an empty file list so Dir always points at a
	// real payload dir once a record exists.
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to clear artifact directory: %w", err)
	}

	if _, err := a.EnsureDir(key); err != nil {
		return nil, err
	}

	if err := CopyArtifacts(srcDir, dir, files); err != nil {
		return nil, err
	}

	size, err := TreeSize(dir)
	if err != nil {
		return nil, err
	}

	record := &Record{
		Key:       key.Hash(),
		Revision:  key.Revision,
		Profile:   key.Profile,
		Stage:     key.Stage,
		CreatedAt: time.Now().UTC(),
		Files:     files,
		TotalSize: size,
	}

	err = a.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}

		return tx.Bucket([]byte(bucketName)).Put([]byte(record.Key), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store artifact record: %w", err)
	}

	return record, nil
}

// Materialize copies a published artifact into destDir. This is the hand-off
// path between stages: the arena copy stays untouched.
func (a *Arena) Materialize(key Key, destDir string) error {
	record, err := a.Get(key)
	if err != nil {
		return err
	}

	if record == nil {
		return fmt.Errorf("no artifact published for %s", key)
	}

	return CopyArtifacts(a.Dir(key), destDir, record.Files)
}

// Clear removes every record and payload.
func (a *Arena) Clear() error {
	err := a.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(filepath.Join(a.root, "artifacts")); err != nil {
		return fmt.Errorf("failed to remove artifacts: %w", err)
	}

	return nil
}

// Stats returns the record count and total payload size.
func (a *Arena) Stats() (int, int64, error) {
	var count int

	err := a.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	size, err := TreeSize(filepath.Join(a.root, "artifacts"))
	if err != nil {
		if os.IsNotExist(err) {
			return count, 0, nil
		}

		return 0, 0, err
	}

	return count, size, nil
}
