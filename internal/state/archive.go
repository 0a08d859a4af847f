package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/voxhall/tts-api/internal/domain"
)

var snapshotBucket = []byte("task_snapshots")

// Archive is an embedded bbolt store for task snapshots. It gives the
// state manager best-effort durability on a single host without any
// external process; it is not a distributed or guaranteed store.
type Archive struct {
	db *bolt.DB
}

// OpenArchive opens (creating if needed) the snapshot archive at path.
func OpenArchive(path string) (*Archive, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot archive: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot bucket: %w", err)
	}

	return &Archive{db: db}, nil
}

// Put writes the snapshot, keyed by task id.
func (a *Archive) Put(snap domain.TaskSnapshot) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return tx.Bucket(snapshotBucket).Put([]byte(snap.TaskID.String()), data)
	})
}

// Get reads the snapshot for a task, if present.
func (a *Archive) Get(taskID uuid.UUID) (domain.TaskSnapshot, bool, error) {
	var snap domain.TaskSnapshot
	found := false
	err := a.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(snapshotBucket).Get([]byte(taskID.String()))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &snap); err != nil {
			return err
		}
		found = true
		return nil
	})
	return snap, found, err
}

// All returns every archived snapshot. Entries that fail to decode are
// skipped; the archive is best-effort.
func (a *Archive) All() ([]domain.TaskSnapshot, error) {
	var snaps []domain.TaskSnapshot
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).ForEach(func(k, v []byte) error {
			var snap domain.TaskSnapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return nil
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	return snaps, err
}

// Delete removes the snapshot for a task.
func (a *Archive) Delete(taskID uuid.UUID) error {
	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Delete([]byte(taskID.String()))
	})
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
