package loader

import "sync"

// KeySet tracks the natural primary key values already loaded into one
// table. Files appending into the same table share a KeySet so duplicates
// across them are caught before the store rejects a whole batch.
type KeySet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewKeySet() *KeySet {
	return &KeySet{seen: map[string]struct{}{}}
}

// Add records key and reports whether it was new.
func (k *KeySet) Add(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, dup := k.seen[key]; dup {
		return false
	}
	k.seen[key] = struct{}{}
	return true
}

// Remove forgets keys, e.g. those of a batch the store rolled back.
func (k *KeySet) Remove(keys ...string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.seen, key)
	}
}

func (k *KeySet) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.seen)
}
