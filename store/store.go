// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// Store combines a BundleStorage and a MetadataStorage into the single
// persistence boundary the dispatcher talks to, generalising the teacher's
// pkg/storage.Store (which fuses the two concerns into one badgerhold-backed
// type) into the spec's explicitly separate interfaces.
type Store struct {
	Bundles  BundleStorage
	Metadata MetadataStorage

	// WaitSampleInterval bounds how far ahead PollWaiting samples; see
	// spec §4.7's poll_waiting contract.
	WaitSampleInterval time.Duration
}

// NewStore opens a disk-backed Store rooted at dir, with bundle bytes under
// dir/bndl and metadata under dir/db, mirroring the teacher's directory
// layout constants dirBadger/dirBundle.
func NewStore(dir string, waitSampleInterval time.Duration) (*Store, error) {
	bundles, err := NewFileBundleStorage(dir + "/bndl")
	if err != nil {
		return nil, err
	}
	meta, err := NewBadgerMetadataStorage(dir + "/db")
	if err != nil {
		return nil, err
	}
	return &Store{Bundles: bundles, Metadata: meta, WaitSampleInterval: waitSampleInterval}, nil
}

// Insert stores a fresh bundle's bytes and metadata record. It returns false
// if a record with this identity (including a live Tombstone) already
// exists, per the duplicate-suppression contract.
func (s *Store) Insert(id bpv7.BundleID, raw []byte, nonCanonical bool) (bool, error) {
	name, err := s.Bundles.SaveData(raw)
	if err != nil {
		return false, err
	}

	ok, err := s.Metadata.InsertMetadata(BundleMetadata{
		Id:           id.String(),
		StorageName:  name,
		Status:       StatusDispatchPending,
		ReceivedAt:   time.Now(),
		NonCanonical: nonCanonical,
	})
	if err != nil || !ok {
		return ok, err
	}
	return true, nil
}

// Tombstone replaces a record with a terminal tombstone blocking re-insertion
// of the same identity until now+lifetime, then removes its bundle bytes.
func (s *Store) Tombstone(meta BundleMetadata, lifetime time.Duration) error {
	if err := s.Metadata.UpdateStatus(meta.Id, StatusTombstone, "", time.Now().Add(lifetime)); err != nil {
		return err
	}
	return s.Bundles.Remove(meta.StorageName)
}

// PollWaiting runs until stop is closed, periodically draining every record
// whose Waiting(until) or ForwardAckPending(_, until) falls within
// WaitSampleInterval of now and emitting it on out for dispatcher re-entry.
func (s *Store) PollWaiting(out chan<- BundleMetadata, stop <-chan struct{}) {
	ticker := time.NewTicker(s.WaitSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			horizon := time.Now().Add(s.WaitSampleInterval)
			due, err := s.Metadata.GetWaitingBundles(horizon)
			if err != nil {
				log.WithError(err).Warn("store: poll_waiting query failed")
				continue
			}
			for _, meta := range due {
				select {
				case out <- meta:
				case <-stop:
					return
				}
			}
		}
	}
}

// Reconcile runs the §4.7 restart procedure: it lists every stored bundle,
// re-parses it through sec, and reconciles the result against the metadata
// store. deletionReport is invoked for metadata-only orphans (a record whose
// storage_name no longer resolves), so the caller can emit a Deletion status
// report with ReasonDepletedStorage before the record is dropped.
func (s *Store) Reconcile(sec bpv7.SecurityProcessor, deletionReport func(meta BundleMetadata)) error {
	names, err := s.Bundles.List()
	if err != nil {
		return err
	}

	known := map[string]bool{}
	all, err := s.Metadata.All()
	if err != nil {
		return err
	}
	byName := map[string]BundleMetadata{}
	for _, m := range all {
		byName[string(m.StorageName)] = m
		known[m.Id] = true
	}

	for _, name := range names {
		raw, err := s.Bundles.Load(name)
		if err != nil {
			log.WithError(err).WithField("storage_name", name).Warn("store: reconcile could not load file")
			continue
		}

		result := bpv7.ParseBundle(raw, sec)
		switch result.Outcome {
		case bpv7.Invalid:
			log.WithField("reason", result.Reason).Info("store: reconcile found an invalid bundle, tombstoning")
			if err := s.Bundles.Remove(name); err != nil {
				return err
			}
			continue
		case bpv7.Rewritten:
			id := result.Bundle.ID()
			newName, err := s.Bundles.SaveData(result.NewBytes)
			if err != nil {
				return err
			}
			if err := s.Bundles.Remove(name); err != nil {
				return err
			}
			if existing, ok := byName[string(name)]; ok {
				existing.StorageName = newName
				existing.NonCanonical = false
				if err := s.Metadata.ConfirmMetadata(existing); err != nil {
					return err
				}
			} else {
				if _, err := s.Insert(id, result.NewBytes, false); err != nil {
					return err
				}
			}
			continue
		}

		id := result.Bundle.ID()
		if existing, ok := byName[string(name)]; ok {
			if existing.Id != id.String() {
				// The metadata record points at a different identity than
				// this file's content: a spurious duplicate file.
				log.WithField("storage_name", name).Warn("store: reconcile dropping spurious duplicate file")
				if err := s.Bundles.Remove(name); err != nil {
					return err
				}
			}
			continue
		}

		// The metadata store does not know this file: treat as fresh
		// ingress.
		if _, err := s.Insert(id, raw, false); err != nil {
			return err
		}
	}

	for _, meta := range all {
		if meta.Status == StatusTombstone {
			continue
		}
		if _, err := s.Bundles.Load(meta.StorageName); err != nil {
			if deletionReport != nil {
				deletionReport(meta)
			}
			if err := s.Metadata.RemoveMetadata(meta.Id); err != nil {
				return err
			}
		}
	}

	return nil
}
