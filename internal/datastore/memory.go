package datastore

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/desertthunder/soundshare/internal/models"
)

type memNode struct {
	fields   models.Fields
	children map[string]*memNode
}

func (n *memNode) empty() bool {
	return n.fields == nil && len(n.children) == 0
}

func (n *memNode) sortedKeys() []string {
	keys := make([]string, 0, len(n.children))
	for k := range n.children {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// MemoryStore implements [Store] as an in-process tree.
type MemoryStore struct {
	mu     sync.RWMutex
	root   *memNode
	subsMu sync.Mutex
	subs   map[*Subscription]struct{}
}

// NewMemoryStore creates an empty tree.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: &memNode{children: map[string]*memNode{}},
		subs: map[*Subscription]struct{}{},
	}
}

// lookup walks to path without creating nodes. Callers hold mu.
func (m *MemoryStore) lookup(path string) *memNode {
	n := m.root
	for _, seg := range strings.Split(path, "/") {
		next, ok := n.children[seg]
		if !ok {
			return nil
		}
		n = next
	}
	return n
}

// ensure walks to path, creating missing nodes. Callers hold mu for writing.
func (m *MemoryStore) ensure(path string) *memNode {
	n := m.root
	for _, seg := range strings.Split(path, "/") {
		next, ok := n.children[seg]
		if !ok {
			next = &memNode{children: map[string]*memNode{}}
			n.children[seg] = next
		}
		n = next
	}
	return n
}

func (m *MemoryStore) Get(_ context.Context, path string) (Snapshot, error) {
	if err := validatePath(path); err != nil {
		return Snapshot{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{Path: path}
	n := m.lookup(path)
	if n == nil || n.empty() {
		return snap, nil
	}

	snap.Exists = true
	if n.fields != nil {
		snap.Fields = cloneFields(n.fields)
	}
	for _, k := range n.sortedKeys() {
		snap.Children = append(snap.Children, Child{Key: k, Fields: cloneFields(n.children[k].fields)})
	}
	return snap, nil
}

func (m *MemoryStore) Set(_ context.Context, path string, fields models.Fields) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if err := validateFields(path, fields); err != nil {
		return err
	}

	m.mu.Lock()
	m.ensure(path).fields = cloneFields(fields)
	m.mu.Unlock()

	m.publish(path)
	return nil
}

func (m *MemoryStore) SetIfAbsent(_ context.Context, path string, fields models.Fields) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}
	if err := validateFields(path, fields); err != nil {
		return false, err
	}

	m.mu.Lock()
	n := m.ensure(path)
	if n.fields != nil {
		m.mu.Unlock()
		return false, nil
	}
	n.fields = cloneFields(fields)
	m.mu.Unlock()

	m.publish(path)
	return true, nil
}

func (m *MemoryStore) Remove(_ context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	m.mu.Lock()
	segs := strings.Split(path, "/")
	trail := []*memNode{m.root}
	for _, seg := range segs {
		next, ok := trail[len(trail)-1].children[seg]
		if !ok {
			m.mu.Unlock()
			return nil
		}
		trail = append(trail, next)
	}

	for i := len(segs) - 1; i >= 0; i-- {
		parent := trail[i]
		delete(parent.children, segs[i])
		if i == 0 || !parent.empty() {
			break
		}
	}
	m.mu.Unlock()

	m.publish(path)
	return nil
}

func (m *MemoryStore) Children(_ context.Context, path string, r Range) ([]Child, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.lookup(path)
	if n == nil {
		return nil, nil
	}

	var out []Child
	for _, k := range n.sortedKeys() {
		if r.contains(k) {
			out = append(out, Child{Key: k, Fields: cloneFields(n.children[k].fields)})
		}
	}
	return out, nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	var sub *Subscription
	sub = newSubscription(ctx, path, func() {
		m.subsMu.Lock()
		delete(m.subs, sub)
		m.subsMu.Unlock()
	})

	m.subsMu.Lock()
	m.subs[sub] = struct{}{}
	m.subsMu.Unlock()

	sub.start(m.Get)
	return sub, nil
}

// Close detaches every open subscription.
func (m *MemoryStore) Close() error {
	m.subsMu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.subsMu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return nil
}

func (m *MemoryStore) publish(changed string) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for s := range m.subs {
		if related(changed, s.path) {
			s.notify()
		}
	}
}
