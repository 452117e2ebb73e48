// Package idset holds the wanted read ids and filenames of one run.
//
// Small runs keep the set in a map. Runs selecting tens of millions of reads
// can spill it to a badger store on local disk instead.
package idset

import (
	"errors"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// Set is an unordered collection of distinct strings.
type Set interface {
	// Add inserts s; adding an existing member is a no-op.
	Add(s string) error
	Has(s string) (bool, error)
	Len() int
	// Each calls fn for every member in unspecified order, stopping at the first error.
	Each(fn func(string) error) error
	Close() error
}

// New returns a Memory set when dir is empty, otherwise an empty Disk set rooted at dir.
// Whatever an earlier run left in dir is dropped.
func New(dir string) (Set, error) {
	if dir == "" {
		return NewMemory(0), nil
	}
	d, err := OpenDisk(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	if err := d.Reset(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// Memory is a map-backed Set.
type Memory struct {
	m map[string]struct{}
}

func NewMemory(hint int) *Memory { return &Memory{m: make(map[string]struct{}, hint)} }

// Of builds a Memory set from literal members.
func Of(members ...string) *Memory {
	m := NewMemory(len(members))
	for _, s := range members {
		m.m[s] = struct{}{}
	}
	return m
}

func (m *Memory) Add(s string) error {
	m.m[s] = struct{}{}
	return nil
}

func (m *Memory) Has(s string) (bool, error) {
	_, ok := m.m[s]
	return ok, nil
}

func (m *Memory) Len() int { return len(m.m) }

func (m *Memory) Each(fn func(string) error) error {
	for s := range m.m {
		if err := fn(s); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Disk is a badger-backed Set. Keys are the members; values are a single marker byte.
type Disk struct {
	db *badger.DB
	n  int
}

// OpenDisk opens a badger store with opts, keeping and counting any keys already in it.
// Use WithInMemory(true) for a throwaway store.
func OpenDisk(opts badger.Options) (*Disk, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	d := &Disk{db: db}
	if err := d.Each(func(string) error { d.n++; return nil }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// Reset removes every member.
func (d *Disk) Reset() error {
	if err := d.db.DropAll(); err != nil {
		return err
	}
	d.n = 0
	return nil
}

func (d *Disk) Add(s string) error {
	k := []byte(s)
	added := false
	err := d.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			added = true
			return txn.Set(k, []byte{1})
		}
		return err
	})
	if err == nil && added {
		d.n++
	}
	return err
}

func (d *Disk) Has(s string) (bool, error) {
	var ok bool
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(s))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

func (d *Disk) Len() int { return d.n }

func (d *Disk) Each(fn func(string) error) error {
	return d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := fn(string(it.Item().KeyCopy(nil))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *Disk) Close() error { return d.db.Close() }

// Sorted returns the members of s in ascending order.
func Sorted(s Set) ([]string, error) {
	out := make([]string, 0, s.Len())
	err := s.Each(func(v string) error {
		out = append(out, v)
		return nil
	})
	sort.Strings(out)
	return out, err
}
