// Package store implements the worker's persistent read model and the
// append-only send history using bbolt.
//
// Schedules, collections, users and content units are synced in from the
// central server (NATS or WebSocket push, plus a bootstrap snapshot) and read
// by the scheduler engine every tick. Send history is the single source of
// truth for idempotence: the engine's dedup gates are existence checks over
// history rows, so history writes are append-only and never mutated.
//
// History keys are composed as scheduleID/contentUnitID/itemID/seq, which
// makes every dedup check a prefix scan. The sequence suffix comes from the
// bucket's NextSequence so rows for the same triple stay unique and ordered.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// Bucket names.
var (
	bucketSchedules = []byte("schedules")
	bucketUsers     = []byte("users")
	bucketColls     = []byte("collections")
	bucketUnits     = []byte("content_units")
	bucketHistory   = []byte("history")
	bucketPending   = []byte("pending_history")
)

// legacyItemKey is the item segment used in history keys for rows written by
// the legacy/rotation path, where no schedule item is involved.
const legacyItemKey = "-"

// Store provides persistent storage for the worker's read model and history.
// All methods are safe for concurrent use; bbolt serializes writers.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the store database at dbPath and ensures all buckets
// exist.
func Open(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketSchedules, bucketUsers, bucketColls,
			bucketUnits, bucketHistory, bucketPending,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ActiveSchedules returns all non-paused schedules with their items sorted by
// position. The slice is a fresh snapshot; callers may hold it for the whole
// tick without further locking.
func (s *Store) ActiveSchedules() ([]*model.Schedule, error) {
	var schedules []*model.Schedule

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		return b.ForEach(func(k, v []byte) error {
			var sched model.Schedule
			if err := json.Unmarshal(v, &sched); err != nil {
				return nil // Skip invalid entries
			}
			if sched.Paused {
				return nil
			}
			sort.Slice(sched.Items, func(i, j int) bool {
				return sched.Items[i].Position < sched.Items[j].Position
			})
			schedules = append(schedules, &sched)
			return nil
		})
	})

	return schedules, err
}

// SaveSchedule stores or replaces a schedule definition. Used by the sync
// transports; the engine itself only ever touches TimesSent via
// IncrementTimesSent.
func (s *Store) SaveSchedule(sched *model.Schedule) error {
	return s.putJSON(bucketSchedules, []byte(sched.ID), sched)
}

// DeleteSchedule removes a schedule by ID. History rows are retained; they
// are audit records, not owned by the schedule's lifecycle inside the worker.
func (s *Store) DeleteSchedule(id string) error {
	return s.delete(bucketSchedules, []byte(id))
}

// GetSchedule retrieves a schedule by ID, or nil when absent.
func (s *Store) GetSchedule(id string) (*model.Schedule, error) {
	var sched model.Schedule
	ok, err := s.getJSON(bucketSchedules, []byte(id), &sched)
	if err != nil || !ok {
		return nil, err
	}
	return &sched, nil
}

// IncrementTimesSent atomically increments a schedule's send counter. The
// read-modify-write happens inside a single bbolt update transaction so the
// increment cannot be lost.
func (s *Store) IncrementTimesSent(scheduleID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		data := b.Get([]byte(scheduleID))
		if data == nil {
			return fmt.Errorf("schedule %s not found", scheduleID)
		}
		var sched model.Schedule
		if err := json.Unmarshal(data, &sched); err != nil {
			return fmt.Errorf("unmarshal schedule %s: %w", scheduleID, err)
		}
		sched.TimesSent++
		out, err := json.Marshal(&sched)
		if err != nil {
			return err
		}
		return b.Put([]byte(scheduleID), out)
	})
}

// SaveUser stores or replaces a user. Also called by the dispatcher after an
// adapter refreshes OAuth tokens.
func (s *Store) SaveUser(u *model.User) error {
	return s.putJSON(bucketUsers, []byte(u.ID), u)
}

// DeleteUser removes a user by ID.
func (s *Store) DeleteUser(id string) error {
	return s.delete(bucketUsers, []byte(id))
}

// GetUser retrieves a user by ID, or nil when absent.
func (s *Store) GetUser(id string) (*model.User, error) {
	var u model.User
	ok, err := s.getJSON(bucketUsers, []byte(id), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// SaveCollection stores or replaces a collection.
func (s *Store) SaveCollection(c *model.Collection) error {
	return s.putJSON(bucketColls, []byte(c.ID), c)
}

// DeleteCollection removes a collection by ID.
func (s *Store) DeleteCollection(id string) error {
	return s.delete(bucketColls, []byte(id))
}

// GetCollection retrieves a collection by ID, or nil when absent.
func (s *Store) GetCollection(id string) (*model.Collection, error) {
	var c model.Collection
	ok, err := s.getJSON(bucketColls, []byte(id), &c)
	if err != nil || !ok {
		return nil, err
	}
	return &c, nil
}

// SaveContentUnit stores or replaces a content unit.
func (s *Store) SaveContentUnit(u *model.ContentUnit) error {
	return s.putJSON(bucketUnits, []byte(u.ID), u)
}

// DeleteContentUnit removes a content unit by ID.
func (s *Store) DeleteContentUnit(id string) error {
	return s.delete(bucketUnits, []byte(id))
}

// GetContentUnit retrieves a content unit by ID, or nil when absent.
func (s *Store) GetContentUnit(id string) (*model.ContentUnit, error) {
	var u model.ContentUnit
	ok, err := s.getJSON(bucketUnits, []byte(id), &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

// RecordHistory appends a send-history row and enqueues it for upload to the
// server. The row is assigned a UUID if it has none. Rows are never updated
// or deleted afterwards.
func (s *Store) RecordHistory(entry *model.SendHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		hb := tx.Bucket(bucketHistory)
		pb := tx.Bucket(bucketPending)

		seq, err := hb.NextSequence()
		if err != nil {
			return err
		}
		pseq, err := pb.NextSequence()
		if err != nil {
			return err
		}
		entry.UploadSeq = pseq

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		key := historyKey(entry.ScheduleID, entry.ContentUnitID, entry.ScheduleItemID, seq)
		if err := hb.Put(key, data); err != nil {
			return err
		}
		return pb.Put(itob(pseq), data)
	})
}

// AlreadySent reports whether any history row exists for the given schedule,
// content unit and schedule item. An empty itemID matches only rows written
// by the legacy/rotation path. This is the dedup gate for ONCE schedules.
func (s *Store) AlreadySent(scheduleID, contentUnitID, itemID string) (bool, error) {
	prefix := historyPrefix(scheduleID, contentUnitID, itemID)
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		k, _ := c.Seek(prefix)
		found = k != nil && bytes.HasPrefix(k, prefix)
		return nil
	})

	return found, err
}

// AlreadySentThisYear reports whether any history row for the schedule has a
// SentAt within now's calendar year. This is the dedup gate for ANNUALLY
// schedules.
func (s *Store) AlreadySentThisYear(scheduleID string, now time.Time) (bool, error) {
	prefix := []byte(scheduleID + "/")
	year := now.Year()
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var h model.SendHistory
			if err := json.Unmarshal(v, &h); err != nil {
				continue
			}
			if h.SentAt.Year() == year {
				found = true
				return nil
			}
		}
		return nil
	})

	return found, err
}

// AlreadySentInMinute reports whether a history row for the exact
// (schedule, content unit, item) triple exists within now's wall-clock
// minute. This is the ROTATION guard against the same due window firing
// twice, e.g. a process restart within the matching minute.
func (s *Store) AlreadySentInMinute(scheduleID, contentUnitID, itemID string, now time.Time) (bool, error) {
	prefix := historyPrefix(scheduleID, contentUnitID, itemID)
	minute := now.Truncate(time.Minute)
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var h model.SendHistory
			if err := json.Unmarshal(v, &h); err != nil {
				continue
			}
			if h.SentAt.Truncate(time.Minute).Equal(minute) {
				found = true
				return nil
			}
		}
		return nil
	})

	return found, err
}

// HistoryForSchedule returns all history rows for a schedule, oldest first.
// Used by tests and diagnostics.
func (s *Store) HistoryForSchedule(scheduleID string) ([]*model.SendHistory, error) {
	prefix := []byte(scheduleID + "/")
	var rows []*model.SendHistory

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var h model.SendHistory
			if err := json.Unmarshal(v, &h); err != nil {
				continue
			}
			rows = append(rows, &h)
		}
		return nil
	})

	return rows, err
}

// historyKey builds the composite history key for one row.
func historyKey(scheduleID, contentUnitID, itemID string, seq uint64) []byte {
	return append(historyPrefix(scheduleID, contentUnitID, itemID), itob(seq)...)
}

// historyPrefix builds the key prefix shared by all rows for one
// (schedule, content unit, item) triple.
func historyPrefix(scheduleID, contentUnitID, itemID string) []byte {
	if itemID == "" {
		itemID = legacyItemKey
	}
	return []byte(scheduleID + "/" + contentUnitID + "/" + itemID + "/")
}

// putJSON marshals v and stores it under key.
func (s *Store) putJSON(bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

// getJSON loads key into v, reporting whether the key existed.
func (s *Store) getJSON(bucket, key []byte, v any) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

// delete removes key from bucket.
func (s *Store) delete(bucket, key []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

// itob converts uint64 to big-endian bytes for ordered keys.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
