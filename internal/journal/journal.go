// Package journal keeps a durable history of runs: who ran, with what spec,
// how long it took, and how every rank exited.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"
)

var runsBucket = []byte("runs")

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Record is one completed run or benchmark cell.
type Record struct {
	ID          string      `json:"id"`
	StartedAt   time.Time   `json:"started_at"`
	DurationSec float64     `json:"duration_sec"`
	Peers       int         `json:"peers"`
	Threads     int         `json:"threads"`
	GridSize    int         `json:"grid_size"`
	BlockSize   int         `json:"block_size"`
	ExitCodes   map[int]int `json:"exit_codes,omitempty"`
	Outcome     Outcome     `json:"outcome"`
}

// Journal is a Bolt-backed append/list store of run records.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append stores a record and returns it with its assigned ID. Records keep
// insertion order: keys are the bucket's monotonic sequence number, while the
// UUID lives inside the record.
func (j *Journal) Append(rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Outcome == "" {
		rec.Outcome = OutcomeOK
	}

	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(runsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
	if err != nil {
		return Record{}, fmt.Errorf("appending run record: %w", err)
	}
	return rec, nil
}

// List returns every record in insertion order.
func (j *Journal) List() ([]Record, error) {
	var records []Record
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(_, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing run records: %w", err)
	}
	return records, nil
}
