// Package order keeps the client's display order of entity keys.
//
// Keys are appended the first time they are seen and keep their position
// until an explicit Remove. A removed key is tombstoned: reconciling with a
// stale entity list cannot bring it back, only an explicit Add can.
package order

// Order is an insertion-order preserving set of entity keys.
// It is not safe for concurrent use.
type Order struct {
	keys    []string
	index   map[string]int
	removed map[string]struct{}
}

// New returns an Order seeded with keys, de-duplicated.
func New(keys ...string) *Order {
	o := &Order{
		index:   make(map[string]int),
		removed: make(map[string]struct{}),
	}
	for _, k := range keys {
		o.push(k)
	}
	return o
}

func (o *Order) push(key string) bool {
	if key == "" {
		return false
	}
	if _, ok := o.index[key]; ok {
		return false
	}
	o.index[key] = len(o.keys)
	o.keys = append(o.keys, key)
	return true
}

// Reconcile appends the keys of fetched that are neither known nor removed,
// in fetch order. Known keys missing from fetched stay where they are.
// It returns the appended keys.
func (o *Order) Reconcile(fetched []string) []string {
	var added []string
	for _, k := range fetched {
		if _, gone := o.removed[k]; gone {
			continue
		}
		if o.push(k) {
			added = append(added, k)
		}
	}
	return added
}

// Add re-introduces key explicitly, clearing a tombstone. Already present
// keys keep their position. It reports whether the key was appended.
func (o *Order) Add(key string) bool {
	delete(o.removed, key)
	return o.push(key)
}

// Remove drops key and tombstones it. It reports whether the key was present.
func (o *Order) Remove(key string) bool {
	if key == "" {
		return false
	}
	o.removed[key] = struct{}{}
	i, ok := o.index[key]
	if !ok {
		return false
	}
	o.keys = append(o.keys[:i], o.keys[i+1:]...)
	delete(o.index, key)
	for j := i; j < len(o.keys); j++ {
		o.index[o.keys[j]] = j
	}
	return true
}

// Keys returns a copy of the current order.
func (o *Order) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len is the number of keys in the order.
func (o *Order) Len() int { return len(o.keys) }

// Contains reports whether key is displayed.
func (o *Order) Contains(key string) bool {
	_, ok := o.index[key]
	return ok
}

// Removed reports whether key is tombstoned.
func (o *Order) Removed(key string) bool {
	_, ok := o.removed[key]
	return ok
}

// Position returns the index of key, or -1.
func (o *Order) Position(key string) int {
	if i, ok := o.index[key]; ok {
		return i
	}
	return -1
}
