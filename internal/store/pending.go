// pending.go implements the pending-upload queue over send-history rows.
//
// Every RecordHistory call also writes the row into the pending bucket under
// a NextSequence key, so the uploader can drain rows oldest-first and remove
// them once the server has accepted the batch. The history bucket itself is
// never touched by the uploader.
package store

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"github.com/BrandonSocialRotation/social-rotation-backend-sub001/internal/model"
)

// PendingHistory retrieves up to limit queued history rows, oldest first.
func (s *Store) PendingHistory(limit int) ([]*model.SendHistory, error) {
	var rows []*model.SendHistory

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPending).Cursor()
		for k, v := c.First(); k != nil && len(rows) < limit; k, v = c.Next() {
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

// RemovePending deletes queued rows by upload sequence after a successful
// upload.
func (s *Store) RemovePending(seqs []uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPending)
		for _, seq := range seqs {
			if err := b.Delete(itob(seq)); err != nil {
				return err
			}
		}
		return nil
	})
}

// PendingCount returns the number of rows awaiting upload.
func (s *Store) PendingCount() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketPending).Stats().KeyN
		return nil
	})
	return count, err
}
