// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold"
)

// BadgerMetadataStorage implements MetadataStorage atop badgerhold, the same
// embedded-KV wrapper the teacher's pkg/storage.Store uses for BundleItem
// records.
type BadgerMetadataStorage struct {
	bh *badgerhold.Store
}

// NewBadgerMetadataStorage opens (creating if necessary) a metadata store
// rooted at dir.
func NewBadgerMetadataStorage(dir string) (*BadgerMetadataStorage, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerMetadataStorage{bh: bh}, nil
}

// Close releases the underlying badger handles.
func (s *BadgerMetadataStorage) Close() error {
	return s.bh.Close()
}

func (s *BadgerMetadataStorage) InsertMetadata(meta BundleMetadata) (bool, error) {
	if existing, err := s.GetMetadata(meta.Id); err == nil {
		if existing.Status == StatusTombstone && time.Now().After(existing.TombstoneUntil) {
			// Tombstone window elapsed; treat as a fresh identity.
			if err := s.bh.Delete(existing.Id, BundleMetadata{}); err != nil {
				return false, err
			}
		} else {
			return false, nil
		}
	}

	if err := s.bh.Insert(meta.Id, meta); err != nil {
		return false, err
	}
	return true, nil
}

func (s *BadgerMetadataStorage) ConfirmMetadata(meta BundleMetadata) error {
	return s.bh.Update(meta.Id, meta)
}

func (s *BadgerMetadataStorage) UpdateStatus(id string, status BundleStatus, token string, until time.Time) error {
	meta, err := s.GetMetadata(id)
	if err != nil {
		return err
	}

	meta.Status = status
	meta.ForwardToken = token
	meta.Until = until
	if status == StatusTombstone {
		meta.TombstoneUntil = until
	}

	return s.bh.Update(meta.Id, meta)
}

func (s *BadgerMetadataStorage) RemoveMetadata(id string) error {
	err := s.bh.Delete(id, BundleMetadata{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}

func (s *BadgerMetadataStorage) GetMetadata(id string) (meta BundleMetadata, err error) {
	err = s.bh.Get(id, &meta)
	if err == badgerhold.ErrNotFound {
		err = fmt.Errorf("store: no metadata for %q: %w", id, err)
	}
	return
}

func (s *BadgerMetadataStorage) GetWaitingBundles(horizon time.Time) (out []BundleMetadata, err error) {
	var records []BundleMetadata
	if err = s.bh.Find(&records, badgerhold.Where("Until").Le(horizon)); err != nil {
		return nil, err
	}
	for _, m := range records {
		if m.IsWaiting() {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *BadgerMetadataStorage) GetUnconfirmedBundles() (out []BundleMetadata, err error) {
	err = s.bh.Find(&out, badgerhold.Where("Status").Eq(StatusDispatchPending))
	return
}

func (s *BadgerMetadataStorage) All() (out []BundleMetadata, err error) {
	err = s.bh.Find(&out, nil)
	return
}
