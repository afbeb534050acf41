package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmalatre/handoff/internal/storage/flatstore"
)

// ErrChainNotFound is returned when no persisted state exists for a chain id.
var ErrChainNotFound = errors.New("chain not found")

// ResumableChain is one entry in the resumable-chain listing.
type ResumableChain struct {
	ChainID string      `json:"chain_id"`
	Status  ChainStatus `json:"status"`
	SavedAt time.Time   `json:"saved_at"`
}

// Store defines the persistence interface for chain state.
type Store interface {
	Save(state *PersistedTaskState) error
	Load(chainID string) (*PersistedTaskState, error)
	ListResumable() ([]ResumableChain, error)
	Delete(chainID string) (bool, error)
}

// FileStore persists one JSON document per chain, named by the sanitized
// chain id, under a base directory.
type FileStore struct {
	fs *flatstore.FlatStore
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{fs: flatstore.NewFlatStore(baseDir, ".json", "chain")}
}

// Save serializes and atomically writes the chain state, replacing any
// existing document. SavedAt is stamped here if unset.
func (s *FileStore) Save(state *PersistedTaskState) error {
	s.fs.Lock()
	defer s.fs.Unlock()

	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chain state: %w", err)
	}

	return s.fs.WriteDoc(state.ChainID, data)
}

// Load reads and deserializes the state for chainID.
// Returns ErrChainNotFound if absent; a corrupt document is a fatal error.
func (s *FileStore) Load(chainID string) (*PersistedTaskState, error) {
	s.fs.RLock()
	defer s.fs.RUnlock()

	data, err := s.fs.ReadDoc(chainID)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrChainNotFound, chainID)
	}

	var state PersistedTaskState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal chain state %s: %w", chainID, err)
	}
	return &state, nil
}

// ListResumable returns all chains with status running or paused,
// most recently saved first.
func (s *FileStore) ListResumable() ([]ResumableChain, error) {
	s.fs.RLock()
	defer s.fs.RUnlock()

	docs, err := s.fs.ListDocs()
	if err != nil {
		return nil, err
	}

	var out []ResumableChain
	for _, doc := range docs {
		var state PersistedTaskState
		if err := json.Unmarshal(doc, &state); err != nil {
			continue // skip corrupted entries when scanning
		}
		if !state.Status.IsResumable() {
			continue
		}
		out = append(out, ResumableChain{
			ChainID: state.ChainID,
			Status:  state.Status,
			SavedAt: state.SavedAt,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SavedAt.After(out[j].SavedAt)
	})

	return out, nil
}

// ListAll returns every stored chain state, including terminal ones,
// most recently saved first. Used by retention passes.
func (s *FileStore) ListAll() ([]*PersistedTaskState, error) {
	s.fs.RLock()
	defer s.fs.RUnlock()

	docs, err := s.fs.ListDocs()
	if err != nil {
		return nil, err
	}

	var out []*PersistedTaskState
	for _, doc := range docs {
		var state PersistedTaskState
		if err := json.Unmarshal(doc, &state); err != nil {
			continue // skip corrupted entries when scanning
		}
		out = append(out, &state)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SavedAt.After(out[j].SavedAt)
	})

	return out, nil
}

// Delete removes the persisted state if present. Reports whether anything was removed.
func (s *FileStore) Delete(chainID string) (bool, error) {
	s.fs.Lock()
	defer s.fs.Unlock()

	return s.fs.RemoveDoc(chainID)
}
