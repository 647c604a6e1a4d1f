package utxo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/kgxledger/kgxledger/internal/storage"
	"github.com/kgxledger/kgxledger/pkg/types"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO = []byte("u/") // u/<txid><index> -> Entry JSON
	prefixAddr = []byte("a/") // a/<address><txid><index> -> empty (index)
)

// Store implements Set, persisting the unspent output set to a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixUTXO)+types.HashSize+4)
	copy(key, prefixUTXO)
	copy(key[len(prefixUTXO):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixUTXO)+types.HashSize:], op.Index)
	return key
}

func addrKey(addr types.Address, op types.Outpoint) []byte {
	key := make([]byte, len(prefixAddr)+types.AddressSize+types.HashSize+4)
	copy(key, prefixAddr)
	copy(key[len(prefixAddr):], addr[:])
	off := len(prefixAddr) + types.AddressSize
	copy(key[off:], op.TxID[:])
	binary.BigEndian.PutUint32(key[off+types.HashSize:], op.Index)
	return key
}

// Get retrieves an unspent output by its outpoint.
func (s *Store) Get(outpoint types.Outpoint) (*Entry, error) {
	data, err := s.db.Get(utxoKey(outpoint))
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &e, nil
}

// Put stores an unspent output and updates its address index.
func (s *Store) Put(e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.db.Put(utxoKey(e.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}
	if err := s.db.Put(addrKey(e.Address, e.Outpoint), []byte{}); err != nil {
		return fmt.Errorf("utxo index put: %w", err)
	}
	return nil
}

// Delete removes an unspent output and its address index entry.
func (s *Store) Delete(outpoint types.Outpoint) error {
	if e, err := s.Get(outpoint); err == nil {
		s.db.Delete(addrKey(e.Address, e.Outpoint))
	}
	if err := s.db.Delete(utxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// Has checks if an unspent output exists for the given outpoint.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(outpoint))
}

// ForEach iterates over every unspent output in the store.
func (s *Store) ForEach(fn func(*Entry) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&e)
	})
}

// GetByAddress returns every unspent output belonging to addr.
func (s *Store) GetByAddress(addr types.Address) ([]*Entry, error) {
	prefix := make([]byte, len(prefixAddr)+types.AddressSize)
	copy(prefix, prefixAddr)
	copy(prefix[len(prefixAddr):], addr[:])

	var entries []*Entry
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		off := len(prefixAddr) + types.AddressSize
		if len(key) < off+types.HashSize+4 {
			return nil
		}
		var op types.Outpoint
		copy(op.TxID[:], key[off:off+types.HashSize])
		op.Index = binary.BigEndian.Uint32(key[off+types.HashSize:])

		e, err := s.Get(op)
		if err != nil {
			return nil // Already spent; index entry will be cleaned up lazily.
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan address index: %w", err)
	}
	return entries, nil
}

// ClearAll removes every unspent output and index entry. PersistSnapshot
// calls it to replace the store's contents wholesale rather than diffing
// against them.
func (s *Store) ClearAll() error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixUTXO, prefixAddr} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("delete utxo key: %w", err)
		}
	}
	return nil
}

// LoadSnapshot reads the entire persisted set into an in-memory Snapshot.
func (s *Store) LoadSnapshot() (*Snapshot, error) {
	snap := NewSnapshot()
	err := s.ForEach(func(e *Entry) error {
		snap.Put(e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return snap, nil
}

// PersistSnapshot replaces the store's entire contents with snap.
func (s *Store) PersistSnapshot(snap *Snapshot) error {
	if err := s.ClearAll(); err != nil {
		return fmt.Errorf("clear before persist: %w", err)
	}
	for _, e := range snap.All() {
		if err := s.Put(e); err != nil {
			return fmt.Errorf("persist entry %s: %w", e.Outpoint, err)
		}
	}
	return nil
}
