package iterz

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryCheckpoint is a thread-safe in-memory implementation of
// StateWriter and StateReader. It is the storage vehicle used by tests and
// demos; durable byte layouts are the concern of whatever implements the
// interfaces on top of real storage.
//
// Writing a key that already exists overwrites it, so one checkpoint can
// be reused across repeated saves of the same iterator tree.
type MemoryCheckpoint struct {
	mu     sync.RWMutex
	ints   map[Name]int64
	values map[Name]Value
}

// NewMemoryCheckpoint creates an empty in-memory checkpoint.
func NewMemoryCheckpoint() *MemoryCheckpoint {
	return &MemoryCheckpoint{
		ints:   make(map[Name]int64),
		values: make(map[Name]Value),
	}
}

// WriteInt stores an integer under key.
func (c *MemoryCheckpoint) WriteInt(key Name, v int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ints[key] = v
	return nil
}

// WriteValue stores a deep copy of v under key.
func (c *MemoryCheckpoint) WriteValue(key Name, v Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v.Clone()
	return nil
}

// ReadInt returns the integer stored under key.
func (c *MemoryCheckpoint) ReadInt(key Name) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.ints[key]
	if !ok {
		return 0, fmt.Errorf("iterz: checkpoint key %q not found", key)
	}
	return v, nil
}

// ReadValue returns a deep copy of the value stored under key.
func (c *MemoryCheckpoint) ReadValue(key Name) (Value, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	if !ok {
		return Value{}, fmt.Errorf("iterz: checkpoint key %q not found", key)
	}
	return v.Clone(), nil
}

// Contains reports whether key holds either an integer or a value.
func (c *MemoryCheckpoint) Contains(key Name) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.ints[key]; ok {
		return true
	}
	_, ok := c.values[key]
	return ok
}

// Keys returns every stored key in sorted order, for diagnostics.
func (c *MemoryCheckpoint) Keys() []Name {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]Name, 0, len(c.ints)+len(c.values))
	for k := range c.ints {
		keys = append(keys, k)
	}
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
