// Package cache provides a generic, byte-size-bounded LRU cache used by the
// higher storage layers to serve hot records without repeated round trips to
// BadgerDB.
//
// The cache tracks recency with a doubly-linked list over a key map, giving
// O(1) get/set/delete. Entries carry an estimated byte size; eviction
// removes least-recently-used entries until both the byte budget and the
// optional item bound are satisfied. Entries may also expire after a
// configured TTL, in which case they are treated as misses on access.
//
// The cache has no knowledge of domain types: callers supply a Sizer for
// their value type, or rely on the conservative fallback estimate.
package cache
