// Package forensics keeps a write-only, append-only audit trail of every
// block a node has ever accepted onto its chain, independent of whatever
// the chain currently looks like after a later reorg or rewrite attack.
// It backs nothing at runtime — the live Chain stays entirely in memory —
// it only answers, after the fact, "did this node ever see this block".
package forensics

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/ramonaguilera/simplechain/pkg/block"
)

// Log is an append-only, badger-backed record of accepted blocks, keyed
// by hash.
type Log struct {
	db *badger.DB
}

// Open opens (creating if necessary) the audit log at dir.
func Open(dir string) (*Log, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("forensics: open %s: %w", dir, err)
	}
	return &Log{db: db}, nil
}

// Record appends b to the audit trail, keyed by its own hash. Recording
// the same hash twice is harmless: the second write just overwrites the
// first with an identical value.
func (l *Log) Record(b *block.Block) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("forensics: marshal block %s: %w", b.Hash, err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("block:"+b.Hash), data)
	})
}

// Seen reports whether a block with the given hash was ever recorded.
func (l *Log) Seen(hash string) (bool, error) {
	var found bool
	err := l.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("block:" + hash))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("forensics: lookup %s: %w", hash, err)
	}
	return found, nil
}

// Close releases the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}
