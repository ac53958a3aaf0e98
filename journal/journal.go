// Package journal records installer runs and their step outcomes in a
// bbolt database, so an operator can inspect what a previous invocation
// did to the machine.
package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"onlinstall/util"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Bucket names for the bbolt database
const (
	BucketRuns  = "runs"
	BucketSteps = "steps"
)

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusAborted = "aborted"
)

// RunRecord captures metadata for one installer invocation.
type RunRecord struct {
	UUID      string    `json:"uuid"`
	Operation string    `json:"operation"` // "bootstrap" | "teardown" | "install"
	Root      string    `json:"root"`      // chroot target, empty when not applicable
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// StepRecord represents one step executed within a run.
type StepRecord struct {
	Name   string    `json:"name"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// DB wraps a bbolt database for run journaling
type DB struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the journal at the given path, initializing the
// runs and steps buckets. The parent directory is created if missing.
func Open(path string) (*DB, error) {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	bdb, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	err = bdb.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRuns)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketRuns, Err: err}
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketSteps)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketSteps, Err: err}
		}
		return nil
	})
	if err != nil {
		bdb.Close()
		return nil, err
	}

	return &DB{db: bdb, path: path}, nil
}

// Close closes the journal. Safe to call multiple times.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	err := db.db.Close()
	db.db = nil
	return err
}

// StartRun creates a new running record and returns its generated run ID.
func (db *DB) StartRun(operation, root string) (string, error) {
	runID := uuid.New().String()
	rec := RunRecord{
		UUID:      runID,
		Operation: operation,
		Root:      root,
		Status:    RunStatusRunning,
		StartTime: time.Now(),
	}
	if err := db.saveRunRecord(&rec); err != nil {
		return "", err
	}
	return runID, nil
}

// FinishRun stamps an existing run with its final status and end time.
func (db *DB) FinishRun(runID, status string) error {
	if runID == "" {
		return ErrEmptyRunID
	}

	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRuns, Err: ErrBucketNotFound}
		}

		data := bucket.Get([]byte(runID))
		if data == nil {
			return &RecordError{Op: "update", RunID: runID, Err: ErrRecordNotFound}
		}

		var rec RunRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return &RecordError{Op: "unmarshal", RunID: runID, Err: err}
		}

		rec.Status = status
		rec.EndTime = time.Now()

		updated, err := json.Marshal(&rec)
		if err != nil {
			return &RecordError{Op: "marshal", RunID: runID, Err: err}
		}
		return bucket.Put([]byte(runID), updated)
	})
}

// GetRun fetches a run record by its ID.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrEmptyRunID
	}

	var rec RunRecord
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRuns, Err: ErrBucketNotFound}
		}

		data := bucket.Get([]byte(runID))
		if data == nil {
			return &RecordError{Op: "get", RunID: runID, Err: ErrRecordNotFound}
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns all run records, most recent start time first.
func (db *DB) ListRuns() ([]RunRecord, error) {
	var records []RunRecord

	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRuns, Err: ErrBucketNotFound}
		}

		return bucket.ForEach(func(k, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return &RecordError{Op: "unmarshal", RunID: string(k), Err: err}
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.After(records[j].StartTime)
	})
	return records, nil
}

// AppendStep records a step outcome for the given run. Steps are keyed in
// append order and come back from ListSteps in that order.
func (db *DB) AppendStep(runID string, step StepRecord) error {
	if runID == "" {
		return ErrEmptyRunID
	}
	if step.Time.IsZero() {
		step.Time = time.Now()
	}

	data, err := json.Marshal(&step)
	if err != nil {
		return &RecordError{Op: "marshal step", RunID: runID, Err: err}
	}

	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketSteps))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketSteps, Err: ErrBucketNotFound}
		}

		seq, err := bucket.NextSequence()
		if err != nil {
			return &DatabaseError{Op: "next sequence", Bucket: BucketSteps, Err: err}
		}
		key := append(stepPrefix(runID), []byte(fmt.Sprintf("%016d", seq))...)
		return bucket.Put(key, data)
	})
}

// ListSteps returns the step records for one run in append order.
func (db *DB) ListSteps(runID string) ([]StepRecord, error) {
	if runID == "" {
		return nil, ErrEmptyRunID
	}

	prefix := stepPrefix(runID)
	var records []StepRecord

	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketSteps))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketSteps, Err: ErrBucketNotFound}
		}

		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec StepRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return &RecordError{Op: "unmarshal step", RunID: runID, Err: err}
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func stepPrefix(runID string) []byte {
	return []byte(runID + "\x00")
}

func (db *DB) saveRunRecord(rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &RecordError{Op: "marshal", RunID: rec.UUID, Err: err}
	}

	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRuns, Err: ErrBucketNotFound}
		}
		return bucket.Put([]byte(rec.UUID), data)
	})
}
