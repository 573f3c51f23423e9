package models

import (
	"fmt"
	"sort"
)

// KeyLength is the fixed length of a Zotero object key
const KeyLength = 8

// IsValidKey reports whether k is structurally a Zotero key:
// exactly eight ASCII letters or digits. It says nothing about whether
// the key exists anywhere.
func IsValidKey(k string) bool {
	if len(k) != KeyLength {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}

// EntryID identifies an entry: the attachment's item ID, or a placeholder
// when there is no attachment to point at.
type EntryID string

// AttachmentEntryID returns the entry identity for a real attachment
func AttachmentEntryID(itemID int64) EntryID {
	return EntryID(fmt.Sprintf("item:%d", itemID))
}

// Entry aggregates the annotation keys found for one attachment
type Entry struct {
	ID         EntryID
	Label      string
	Attachment *Item

	keys map[string]struct{}
}

// NewEntry creates an empty entry. The label is fixed for the entry's lifetime.
func NewEntry(id EntryID, label string, att *Item) *Entry {
	return &Entry{
		ID:         id,
		Label:      label,
		Attachment: att,
		keys:       make(map[string]struct{}),
	}
}

// HasKeys reports whether any key was collected
func (e *Entry) HasKeys() bool {
	return len(e.keys) > 0
}

// Contains reports whether key was collected for this entry
func (e *Entry) Contains(key string) bool {
	_, ok := e.keys[key]
	return ok
}

// Keys returns the collected keys in byte order
func (e *Entry) Keys() []string {
	out := make([]string, 0, len(e.keys))
	for k := range e.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Entries is the arena of entries built by one extraction, in creation
// order, together with the union of their keys.
type Entries struct {
	order    []*Entry
	byID     map[EntryID]*Entry
	universe map[string]struct{}
}

// NewEntries creates an empty arena
func NewEntries() *Entries {
	return &Entries{
		byID:     make(map[EntryID]*Entry),
		universe: make(map[string]struct{}),
	}
}

// Ensure returns the entry with the given id, creating it with the label
// produced by label() when it does not exist yet. label is only called on
// creation.
func (es *Entries) Ensure(id EntryID, att *Item, label func() string) *Entry {
	if e, ok := es.byID[id]; ok {
		return e
	}
	e := NewEntry(id, label(), att)
	es.byID[id] = e
	es.order = append(es.order, e)
	return e
}

// AddKey records key for the entry and in the key universe. Invalid keys
// are ignored; the return value says whether the key was accepted.
func (es *Entries) AddKey(e *Entry, key string) bool {
	if e == nil || !IsValidKey(key) {
		return false
	}
	e.keys[key] = struct{}{}
	es.universe[key] = struct{}{}
	return true
}

// Get returns the entry with the given id
func (es *Entries) Get(id EntryID) (*Entry, bool) {
	e, ok := es.byID[id]
	return e, ok
}

// List returns the entries in creation order
func (es *Entries) List() []*Entry {
	out := make([]*Entry, len(es.order))
	copy(out, es.order)
	return out
}

// Len returns the number of entries
func (es *Entries) Len() int {
	return len(es.order)
}

// Universe returns every collected key in byte order
func (es *Entries) Universe() []string {
	out := make([]string, 0, len(es.universe))
	for k := range es.universe {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
