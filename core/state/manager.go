package state

import (
	"fmt"

	"fundvault/storage"
)

// Manager mediates every read and write against the backing key-value store
// and keeps an undo journal so a partially applied operation can be rolled
// back. Snapshots are cheap: they record the current journal depth and
// reverting replays the undo entries above it in reverse order.
type Manager struct {
	db      storage.Database
	journal []journalEntry
}

type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) put(key, value []byte) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state: manager not configured")
	}
	existed, err := m.db.Has(key)
	if err != nil {
		return err
	}
	var prev []byte
	if existed {
		prev, err = m.db.Get(key)
		if err != nil {
			return err
		}
	}
	if err := m.db.Put(key, value); err != nil {
		return err
	}
	m.journal = append(m.journal, journalEntry{
		key:     append([]byte(nil), key...),
		prev:    prev,
		existed: existed,
	})
	return nil
}

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	if m == nil || m.db == nil {
		return nil, false, fmt.Errorf("state: manager not configured")
	}
	existed, err := m.db.Has(key)
	if err != nil {
		return nil, false, err
	}
	if !existed {
		return nil, false, nil
	}
	value, err := m.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Snapshot returns an identifier for the current journal depth. It stays valid
// until the journal is committed or reverted past it.
func (m *Manager) Snapshot() int {
	if m == nil {
		return 0
	}
	return len(m.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
// Writes that created a key are deleted by restoring the empty marker; the
// storage interface has no delete, so a vanished key is represented by its
// previous value being rewritten (or a zero-length value for keys that did not
// exist, which every decoder in this package treats as absent).
func (m *Manager) RevertToSnapshot(id int) error {
	if m == nil {
		return fmt.Errorf("state: manager not configured")
	}
	if id < 0 || id > len(m.journal) {
		return fmt.Errorf("state: invalid snapshot id %d", id)
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		entry := m.journal[i]
		if entry.existed {
			if err := m.db.Put(entry.key, entry.prev); err != nil {
				return err
			}
			continue
		}
		if err := m.db.Put(entry.key, nil); err != nil {
			return err
		}
	}
	m.journal = m.journal[:id]
	return nil
}

// CommitJournal discards accumulated undo entries. Called once an operation
// has fully succeeded; earlier snapshots become invalid.
func (m *Manager) CommitJournal() {
	if m == nil {
		return
	}
	m.journal = m.journal[:0]
}
