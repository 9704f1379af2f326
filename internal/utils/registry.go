package utils

import (
	"maps"
	"sync"
)

// Registry holds an inner map[K]V with a mutex to protect accesses.
//
// The auth server identity registries and the message server session table are
// Registry instances, which gives each of them an at-most-one-concurrent-mutator
// guarantee without per-call-site locking.
type Registry[K comparable, V any] struct {
	mut     sync.RWMutex
	entries map[K]V
}

// NewRegistry returns a Registry[K, V] pointer.
func NewRegistry[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{entries: make(map[K]V)}
}

// RegistrySet adds a new entry to the Registry. It errors if key is already in use.
func RegistrySet[K comparable, V any](registry *Registry[K, V], key K, value V) error {
	registry.mut.Lock()
	defer registry.mut.Unlock()
	_, conflict := registry.entries[key]
	if conflict {
		return newError("key already in use")
	}
	registry.entries[key] = value
	return nil
}

// RegistryPut adds or overwrites an entry in the Registry.
//
// Overwriting is a feature, the session table relies on it so that a later
// successful handshake supersedes the previous session of the same client.
func RegistryPut[K comparable, V any](registry *Registry[K, V], key K, value V) {
	registry.mut.Lock()
	defer registry.mut.Unlock()
	registry.entries[key] = value
}

// RegistryGet returns the value referenced by key and a bool indicating if this value
// exists in the Registry.
func RegistryGet[K comparable, V any](registry *Registry[K, V], key K) (V, bool) {
	registry.mut.RLock()
	defer registry.mut.RUnlock()
	rv, ok := registry.entries[key]
	return rv, ok
}

// RegistryFind returns the first value matching pred and a bool indicating if such
// a value exists. Iteration order is unspecified.
func RegistryFind[K comparable, V any](registry *Registry[K, V], pred func(V) bool) (V, bool) {
	registry.mut.RLock()
	defer registry.mut.RUnlock()
	for _, v := range registry.entries {
		if pred(v) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

// RegistryEntries returns a copy of the data in the registry.
func RegistryEntries[K comparable, V any](registry *Registry[K, V]) map[K]V {
	registry.mut.RLock()
	defer registry.mut.RUnlock()
	return maps.Clone(registry.entries)
}

// RegistryLen returns the number of entries in the Registry.
func RegistryLen[K comparable, V any](registry *Registry[K, V]) int {
	registry.mut.RLock()
	defer registry.mut.RUnlock()
	return len(registry.entries)
}
