// Package table implements an open-addressed, linear-probed hash table.
// It backs the VM's global-variable store and its string-interning set.
// Keys are interned string handles (*value.Obj); comparing keys by
// pointer identity is only correct because strings are always interned
// before becoming table keys.
package table

import "github.com/emberlang/ember/internal/value"

// maxLoad is the load-factor cap: the table grows before count+1 would
// exceed capacity*maxLoad.
const maxLoad = 0.75

// entry is one probe slot. Three logical states:
//   - empty:     key == nil, tombstone == false
//   - tombstone: key == nil, tombstone == true
//   - live:      key != nil
type entry struct {
	key       *value.Obj
	val       value.Value
	tombstone bool
}

// Table is an open-addressed hash table keyed by interned string handle.
type Table struct {
	entries []entry
	// count tracks slots that are live or tombstoned, i.e. not free for
	// a fresh key, so the load-factor check still forces a grow once
	// tombstones alone would starve the probe sequence of empty slots.
	// A grow rebuilds skipping tombstones and recomputes count from live
	// entries only.
	count int
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Count returns the number of slots considered occupied (live entries
// plus not-yet-reclaimed tombstones).
func (t *Table) Count() int {
	return t.count
}

// Capacity returns the current number of probe slots.
func (t *Table) Capacity() int {
	return len(t.entries)
}

// Set stores value under key, growing the table first if needed. It
// returns true iff key was not already present; SET_GLOBAL uses this to
// detect an assignment to a name that was never defined.
func (t *Table) Set(key *value.Obj, val value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}
	e := findEntry(t.entries, key)
	isNewKey := e.key == nil
	if isNewKey && !e.tombstone {
		t.count++
	}
	e.key = key
	e.val = val
	e.tombstone = false
	return isNewKey
}

// Get looks up key, returning (value, true) if present.
func (t *Table) Get(key *value.Obj) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil(), false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return value.Nil(), false
	}
	return e.val, true
}

// Has reports whether key is present, without copying its value out.
func (t *Table) Has(key *value.Obj) bool {
	_, ok := t.Get(key)
	return ok
}

// Delete removes key, leaving a tombstone behind so later probe
// sequences through this slot still terminate correctly. count is
// deliberately not decremented.
func (t *Table) Delete(key *value.Obj) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.val = value.Nil()
	e.tombstone = true
	return true
}

// FindString looks up an interned string by its raw content rather than
// by handle. It cannot reuse findEntry's identity comparison because the
// caller doesn't have a handle yet; that's the whole point of calling
// it. Used only when this Table is serving as the VM's string-interning
// set.
func (t *Table) FindString(chars string, hash uint32) *value.Obj {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash % uint32(capacity))
	for {
		e := &t.entries[index]
		if e.key == nil {
			if !e.tombstone {
				return nil
			}
		} else if e.key.Str.Hash == hash && e.key.Str.Chars == chars {
			return e.key
		}
		index = (index + 1) % capacity
	}
}

// Keys returns every live key, in probe-slot order. Intended for
// iteration over the globals table by callers that need it (e.g. tests);
// not part of the hot path.
func (t *Table) Keys() []*value.Obj {
	keys := make([]*value.Obj, 0, t.count)
	for i := range t.entries {
		if e := &t.entries[i]; e.key != nil {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// findEntry is the unified lookup/insertion-target primitive: it returns
// the live entry matching key, or the first available slot (preferring a
// remembered tombstone over a fresh empty slot so inserts reclaim
// tombstones before growing the probe sequence).
func findEntry(entries []entry, key *value.Obj) *entry {
	capacity := len(entries)
	index := int(key.Str.Hash % uint32(capacity))
	var tombstone *entry
	for {
		e := &entries[index]
		switch {
		case e.key == nil:
			if !e.tombstone {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		case e.key == key:
			return e
		}
		index = (index + 1) % capacity
	}
}

func (t *Table) grow() {
	newCapacity := 8
	if len(t.entries) > 0 {
		newCapacity = len(t.entries) * 2
	}
	newEntries := make([]entry, newCapacity)
	newCount := 0
	for i := range t.entries {
		old := &t.entries[i]
		if old.key == nil {
			continue
		}
		dst := findEntry(newEntries, old.key)
		dst.key = old.key
		dst.val = old.val
		newCount++
	}
	t.entries = newEntries
	t.count = newCount
}
