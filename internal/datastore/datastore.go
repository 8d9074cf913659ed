package datastore

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
)

// Store is the read/write/subscribe surface of the real-time tree.
type Store interface {
	// Get reads the node at path and its direct children.
	Get(ctx context.Context, path string) (Snapshot, error)
	// Set overwrites the fields of the node at path. Its children are left alone.
	Set(ctx context.Context, path string, fields models.Fields) error
	// SetIfAbsent writes fields only when the node has no fields of its own and reports whether it wrote.
	SetIfAbsent(ctx context.Context, path string, fields models.Fields) (bool, error)
	// Remove deletes the node and its subtree, then prunes ancestors left empty.
	Remove(ctx context.Context, path string) error
	// Children returns the direct children of path whose keys fall inside r, ordered by key.
	Children(ctx context.Context, path string, r Range) ([]Child, error)
	// Subscribe starts continuous delivery of snapshots of path until ctx ends or the subscription is closed.
	Subscribe(ctx context.Context, path string) (*Subscription, error)
	Close() error
}

// Range bounds a children query by key, inclusive at both ends. An empty bound is open.
type Range struct {
	Start string
	End   string
}

// HighSentinel sorts after every key a user can produce and closes a prefix range.
const HighSentinel = "\uf8ff"

// Prefix returns the range of keys starting with p.
func Prefix(p string) Range {
	if p == "" {
		return Range{}
	}
	return Range{Start: p, End: p + HighSentinel}
}

func (r Range) contains(key string) bool {
	if r.Start != "" && key < r.Start {
		return false
	}
	if r.End != "" && key > r.End {
		return false
	}
	return true
}

// Child is one direct child of a node.
type Child struct {
	Key    string
	Fields models.Fields
}

// Snapshot is the state of a node at one instant.
type Snapshot struct {
	Path     string
	Exists   bool
	Fields   models.Fields
	Children []Child
}

// Child looks up a direct child by key.
func (s Snapshot) Child(key string) (models.Fields, bool) {
	for _, c := range s.Children {
		if c.Key == key {
			return c.Fields, true
		}
	}
	return nil, false
}

// HasChild reports whether key is a direct child.
func (s Snapshot) HasChild(key string) bool {
	_, ok := s.Child(key)
	return ok
}

// Open builds the store selected by conf.Driver.
func Open(ctx context.Context, conf shared.DatastoreConfig) (Store, error) {
	switch conf.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		opts, err := redis.ParseURL(conf.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: datastore.url: %v", shared.ErrInvalidConfig, err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("%w: redis at %s: %v", shared.ErrServiceUnavailable, opts.Addr, err)
		}
		return NewRedisStore(client, conf.Namespace), nil
	default:
		return nil, fmt.Errorf("%w: unknown datastore driver %q", shared.ErrInvalidConfig, conf.Driver)
	}
}

// validatePath rejects empty segments and characters the hosted tree never allowed in keys.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", shared.ErrInvalidInput)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return fmt.Errorf("%w: empty segment in path %q", shared.ErrInvalidInput, path)
		}
		if strings.ContainsAny(seg, ".#$[]") {
			return fmt.Errorf("%w: illegal character in path %q", shared.ErrInvalidInput, path)
		}
	}
	return nil
}

func validateFields(path string, fields models.Fields) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty value for %q", shared.ErrInvalidInput, path)
	}
	return nil
}

// splitPath returns the parent path and the final key. The parent of a top-level key is "".
func splitPath(path string) (parent, key string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// related reports whether a write at changed can alter a snapshot of watched.
func related(changed, watched string) bool {
	return changed == watched ||
		strings.HasPrefix(changed, watched+"/") ||
		strings.HasPrefix(watched, changed+"/")
}

func cloneFields(f models.Fields) models.Fields {
	if f == nil {
		return models.Fields{}
	}
	return maps.Clone(f)
}
