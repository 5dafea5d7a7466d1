// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"time"

	"github.com/hardy-dtn/bpa-go/bpv7"
)

// MetadataStorage tracks the BundleStatus state machine for every bundle
// identity the agent has accepted, independent of where its bytes live.
type MetadataStorage interface {
	// InsertMetadata records a freshly ingested bundle. It returns false
	// without modifying the store if a record for this identity already
	// exists (including a live Tombstone), driving duplicate suppression
	// at ingress.
	InsertMetadata(meta BundleMetadata) (bool, error)

	// ConfirmMetadata updates a record in place; it fails if no record with
	// meta.Id exists.
	ConfirmMetadata(meta BundleMetadata) error

	// UpdateStatus transitions a record's status, setting/clearing the
	// fields the new status implies (ForwardToken, Until, TombstoneUntil).
	UpdateStatus(id string, status BundleStatus, token string, until time.Time) error

	// RemoveMetadata deletes a record outright, used once a bundle's
	// Tombstone window has elapsed or its data is confirmed gone.
	RemoveMetadata(id string) error

	// GetMetadata fetches a single record by its scrubbed BundleID string.
	GetMetadata(id string) (BundleMetadata, error)

	// GetWaitingBundles returns every record in Waiting or
	// ForwardAckPending whose Until is at most horizon away, the set the
	// waiting-bundle poller re-admits to the dispatcher.
	GetWaitingBundles(horizon time.Time) ([]BundleMetadata, error)

	// GetUnconfirmedBundles returns every record still in DispatchPending,
	// used by restart reconciliation to find bundles that never finished
	// their first pass through the dispatcher.
	GetUnconfirmedBundles() ([]BundleMetadata, error)

	// All returns every metadata record, used for restart reconciliation
	// against the bundle storage's file listing.
	All() ([]BundleMetadata, error)
}

// BundleStorage persists bundle bytes under an opaque storage_name, handed
// back to the caller on save and used to retrieve or remove the bytes later.
type BundleStorage interface {
	// SaveData writes data to storage and returns its storage_name. For a
	// content-addressed backing store this is idempotent for identical
	// bytes; otherwise a fresh name is minted on every call.
	SaveData(data []byte) (storageName []byte, err error)

	// Load reads back the bytes behind storageName.
	Load(storageName []byte) ([]byte, error)

	// Remove deletes the bytes behind storageName. Removing a name that
	// does not resolve is not an error.
	Remove(storageName []byte) error

	// List enumerates every storage_name currently on disk, used during
	// restart reconciliation to find metadata-only orphans and spurious
	// duplicate files.
	List() ([][]byte, error)
}

// ParsedBundle pairs a fully parsed/reconciled bundle with the BundleID used
// as its metadata key, so callers do not need to re-derive it.
type ParsedBundle struct {
	Bundle bpv7.Bundle
	ID     bpv7.BundleID
}
