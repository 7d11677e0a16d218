package recommend

import (
	"sync/atomic"
)

// State names the three-state lifecycle of the queryable artist index.
type State int32

const (
	// StateEmpty is the initial state: queries return an empty list.
	StateEmpty State = iota
	// StateLoading means initialization is in progress; queries fail
	// fast with ErrNotReady rather than blocking until the load
	// completes.
	StateLoading
	// StateReady means queries are served from the current snapshot.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// indexSnapshot is the immutable artist index published by ingestion.
// Readers hold a reference for the duration of a query; a new snapshot
// replaces the old one atomically on Reload, so readers never see a
// torn view.
type indexSnapshot struct {
	artists []ArtistResult
}

// Index holds the current queryable snapshot and lifecycle state.
type Index struct {
	state    atomic.Int32
	snapshot atomic.Pointer[indexSnapshot]
}

// NewIndex returns an Index in StateEmpty.
func NewIndex() *Index {
	idx := &Index{}
	idx.state.Store(int32(StateEmpty))
	idx.snapshot.Store(&indexSnapshot{})
	return idx
}

// State returns the current lifecycle state.
func (idx *Index) State() State {
	return State(idx.state.Load())
}

// Snapshot returns the current artist list. Safe to call concurrently
// with Publish; the caller sees either the previous or new list, never
// a mix.
func (idx *Index) Snapshot() []ArtistResult {
	return idx.snapshot.Load().artists
}

// BeginLoad transitions to StateLoading. Accepted queries already in
// flight continue to read the prior snapshot; only new queries observe
// StateLoading.
func (idx *Index) BeginLoad() {
	idx.state.Store(int32(StateLoading))
}

// Publish installs a new artist list and transitions to StateReady,
// completing a Ready → Loading → Ready cycle without interrupting
// queries that were already reading the old snapshot.
func (idx *Index) Publish(artists []ArtistResult) {
	idx.snapshot.Store(&indexSnapshot{artists: artists})
	idx.state.Store(int32(StateReady))
}
