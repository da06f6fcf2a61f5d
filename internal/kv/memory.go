package kv

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used by tests and single-node dev
// setups. Semantics follow Redis, including negative list indices and
// lazy expiry.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memEntry
}

type memEntry struct {
	kind      string
	str       string
	hash      map[string]string
	set       map[string]struct{}
	list      []string
	expiresAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*memEntry)}
}

// live returns the entry for key, dropping it first if expired.
func (m *Memory) live(key string) *memEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *Memory) typed(key, kind string) (*memEntry, error) {
	e := m.live(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kind {
		return nil, ErrWrongType
	}
	return e, nil
}

// Get returns the string value of key.
func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindString)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNotFound
	}
	return e.str, nil
}

// Set stores a string value without expiry.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = &memEntry{kind: KindString, str: value}
	return nil
}

// SetWithTTL stores a string value that expires after ttl.
func (m *Memory) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = &memEntry{kind: KindString, str: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Exists reports whether key exists.
func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.live(key) != nil, nil
}

// Del removes the given keys.
func (m *Memory) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}

// Type returns the value kind stored at key ("none" if absent).
func (m *Memory) Type(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil {
		return KindNone, nil
	}
	return e.kind, nil
}

// Keys returns all keys matching the glob pattern, sorted for
// determinism.
func (m *Memory) Keys(ctx context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for k := range m.entries {
		if m.live(k) == nil {
			continue
		}
		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// HSet stores a hash field.
func (m *Memory) HSet(ctx context.Context, key, field, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindHash)
	if err != nil {
		return err
	}
	if e == nil {
		e = &memEntry{kind: KindHash, hash: make(map[string]string)}
		m.entries[key] = e
	}
	e.hash[field] = value
	return nil
}

// HGet returns a hash field value.
func (m *Memory) HGet(ctx context.Context, key, field string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindHash)
	if err != nil {
		return "", err
	}
	if e == nil {
		return "", ErrNotFound
	}
	v, ok := e.hash[field]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// HGetAll returns a copy of all fields of a hash. An absent key yields
// an empty map.
func (m *Memory) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindHash)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if e != nil {
		for k, v := range e.hash {
			out[k] = v
		}
	}
	return out, nil
}

// SAdd adds members to a set.
func (m *Memory) SAdd(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindSet)
	if err != nil {
		return err
	}
	if e == nil {
		e = &memEntry{kind: KindSet, set: make(map[string]struct{})}
		m.entries[key] = e
	}
	for _, member := range members {
		e.set[member] = struct{}{}
	}
	return nil
}

// SRem removes members from a set; removing the last member deletes
// the key, matching Redis.
func (m *Memory) SRem(ctx context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindSet)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	for _, member := range members {
		delete(e.set, member)
	}
	if len(e.set) == 0 {
		delete(m.entries, key)
	}
	return nil
}

// SMembers returns all members of a set, sorted for determinism.
func (m *Memory) SMembers(ctx context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindSet)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}
	out := make([]string, 0, len(e.set))
	for member := range e.set {
		out = append(out, member)
	}
	sort.Strings(out)
	return out, nil
}

// SIsMember reports set membership.
func (m *Memory) SIsMember(ctx context.Context, key, member string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindSet)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}
	_, ok := e.set[member]
	return ok, nil
}

// SCard returns the cardinality of a set.
func (m *Memory) SCard(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindSet)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return int64(len(e.set)), nil
}

// RPush appends values to the tail of a list.
func (m *Memory) RPush(ctx context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindList)
	if err != nil {
		return err
	}
	if e == nil {
		e = &memEntry{kind: KindList}
		m.entries[key] = e
	}
	e.list = append(e.list, values...)
	return nil
}

// LRange returns list elements between start and stop inclusive.
func (m *Memory) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindList)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}

	lo, hi, empty := clampRange(int64(len(e.list)), start, stop)
	if empty {
		return nil, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, e.list[lo:hi+1])
	return out, nil
}

// LTrim trims a list to the given inclusive range; an empty result
// deletes the key, matching Redis.
func (m *Memory) LTrim(ctx context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindList)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}

	lo, hi, empty := clampRange(int64(len(e.list)), start, stop)
	if empty {
		delete(m.entries, key)
		return nil
	}
	e.list = append([]string(nil), e.list[lo:hi+1]...)
	return nil
}

// LSet overwrites the list element at index.
func (m *Memory) LSet(ctx context.Context, key string, index int64, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindList)
	if err != nil {
		return err
	}
	if e == nil {
		return ErrNotFound
	}

	n := int64(len(e.list))
	if index < 0 {
		index += n
	}
	if index < 0 || index >= n {
		return ErrIndexOutOfRange
	}
	e.list[index] = value
	return nil
}

// LLen returns the length of a list.
func (m *Memory) LLen(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.typed(key, KindList)
	if err != nil {
		return 0, err
	}
	if e == nil {
		return 0, nil
	}
	return int64(len(e.list)), nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}

// clampRange resolves negative indices and clamps an inclusive range
// to a list of length n. empty is true when the range selects nothing.
func clampRange(n, start, stop int64) (lo, hi int64, empty bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n || stop < 0 {
		return 0, 0, true
	}
	return start, stop, false
}
