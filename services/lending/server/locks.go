package server

import (
	"sort"
	"sync"

	"astrolend/native/lending"
)

// lockTable serialises operations per bank and per account, providing the
// mutual exclusion contract the engine expects from its caller. Keys are
// acquired in sorted order so overlapping footprints cannot deadlock.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.Mutex)}
}

func (t *lockTable) lock(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[key]
	if !ok {
		m = &sync.Mutex{}
		t.locks[key] = m
	}
	return m
}

// acquire locks every entity the footprint writes and returns the release
// function. Read-only banks are not locked: reads observe committed records
// and the write locks of mutating operations keep commits atomic per entity.
func (t *lockTable) acquire(fp lending.Footprint) func() {
	keys := make([]string, 0, len(fp.WriteBanks)+len(fp.WriteAccounts))
	for _, asset := range fp.WriteBanks {
		keys = append(keys, "bank/"+asset)
	}
	for _, id := range fp.WriteAccounts {
		keys = append(keys, "acct/"+id.String())
	}
	sort.Strings(keys)

	held := make([]*sync.Mutex, 0, len(keys))
	for i, key := range keys {
		if i > 0 && keys[i-1] == key {
			continue
		}
		m := t.lock(key)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
