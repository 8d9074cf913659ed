package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
)

// RedisStore implements [Store] on Redis.
//
// Layout, with ns the configured namespace:
//
//	ns:node:<path>   string   JSON object of the node's fields
//	ns:idx:<path>    zset     child keys, all scored 0 so ZRANGEBYLEX orders them by key
//	ns:changes       channel  every write publishes the path it touched
type RedisStore struct {
	client redis.UniversalClient
	ns     string
	mu     sync.Mutex
	subs   map[*Subscription]*redis.PubSub
}

// NewRedisStore wraps client. The namespace prefixes every key and defaults to "soundshare".
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "soundshare"
	}
	return &RedisStore{client: client, ns: namespace, subs: map[*Subscription]*redis.PubSub{}}
}

func (r *RedisStore) nodeKey(path string) string { return r.ns + ":node:" + path }
func (r *RedisStore) idxKey(path string) string  { return r.ns + ":idx:" + path }
func (r *RedisStore) channel() string            { return r.ns + ":changes" }

func storeErr(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", shared.ErrServiceUnavailable, op, path, err)
}

func decodeFields(raw string) (models.Fields, error) {
	var f models.Fields
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, err
	}
	if f == nil {
		f = models.Fields{}
	}
	return f, nil
}

// indexAncestors queues ZADDs linking path into every ancestor index.
func (r *RedisStore) indexAncestors(ctx context.Context, pipe redis.Pipeliner, path string) {
	for p := path; p != ""; {
		parent, key := splitPath(p)
		pipe.ZAdd(ctx, r.idxKey(parent), redis.Z{Score: 0, Member: key})
		p = parent
	}
}

func (r *RedisStore) Get(ctx context.Context, path string) (Snapshot, error) {
	if err := validatePath(path); err != nil {
		return Snapshot{}, err
	}

	pipe := r.client.Pipeline()
	nodeCmd := pipe.Get(ctx, r.nodeKey(path))
	keysCmd := pipe.ZRange(ctx, r.idxKey(path), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Snapshot{}, storeErr("get", path, err)
	}

	snap := Snapshot{Path: path}

	raw, err := nodeCmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return Snapshot{}, storeErr("get", path, err)
	default:
		fields, err := decodeFields(raw)
		if err != nil {
			return Snapshot{}, fmt.Errorf("corrupt node %s: %w", path, err)
		}
		snap.Fields = fields
		snap.Exists = true
	}

	keys, err := keysCmd.Result()
	if err != nil {
		return Snapshot{}, storeErr("get", path, err)
	}
	children, err := r.loadChildren(ctx, path, keys)
	if err != nil {
		return Snapshot{}, err
	}
	if len(children) > 0 {
		snap.Children = children
		snap.Exists = true
	}

	return snap, nil
}

// loadChildren fetches the fields of each child key in one MGET.
func (r *RedisStore) loadChildren(ctx context.Context, path string, keys []string) ([]Child, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	nodeKeys := make([]string, len(keys))
	for i, k := range keys {
		nodeKeys[i] = r.nodeKey(path + "/" + k)
	}

	values, err := r.client.MGet(ctx, nodeKeys...).Result()
	if err != nil {
		return nil, storeErr("children", path, err)
	}

	children := make([]Child, 0, len(keys))
	for i, k := range keys {
		child := Child{Key: k, Fields: models.Fields{}}
		if raw, ok := values[i].(string); ok {
			fields, err := decodeFields(raw)
			if err != nil {
				return nil, fmt.Errorf("corrupt node %s/%s: %w", path, k, err)
			}
			child.Fields = fields
		}
		children = append(children, child)
	}
	return children, nil
}

func (r *RedisStore) Set(ctx context.Context, path string, fields models.Fields) error {
	if err := validatePath(path); err != nil {
		return err
	}
	if err := validateFields(path, fields); err != nil {
		return err
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.nodeKey(path), raw, 0)
		r.indexAncestors(ctx, pipe, path)
		pipe.Publish(ctx, r.channel(), path)
		return nil
	})
	if err != nil {
		return storeErr("set", path, err)
	}
	return nil
}

func (r *RedisStore) SetIfAbsent(ctx context.Context, path string, fields models.Fields) (bool, error) {
	if err := validatePath(path); err != nil {
		return false, err
	}
	if err := validateFields(path, fields); err != nil {
		return false, err
	}

	raw, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s: %w", path, err)
	}

	created, err := r.client.SetNX(ctx, r.nodeKey(path), raw, 0).Result()
	if err != nil {
		return false, storeErr("create", path, err)
	}
	if !created {
		return false, nil
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.indexAncestors(ctx, pipe, path)
		pipe.Publish(ctx, r.channel(), path)
		return nil
	})
	if err != nil {
		return true, storeErr("index", path, err)
	}
	return true, nil
}

func (r *RedisStore) Remove(ctx context.Context, path string) error {
	if err := validatePath(path); err != nil {
		return err
	}

	subtree, err := r.subtree(ctx, path)
	if err != nil {
		return err
	}

	parent, key := splitPath(path)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range subtree {
			pipe.Del(ctx, r.nodeKey(p), r.idxKey(p))
		}
		pipe.ZRem(ctx, r.idxKey(parent), key)
		return nil
	})
	if err != nil {
		return storeErr("remove", path, err)
	}

	if err := r.prune(ctx, parent); err != nil {
		return err
	}

	if err := r.client.Publish(ctx, r.channel(), path).Err(); err != nil {
		return storeErr("publish", path, err)
	}
	return nil
}

// subtree lists path and every descendant reachable through the child indexes.
func (r *RedisStore) subtree(ctx context.Context, path string) ([]string, error) {
	out := []string{path}
	for i := 0; i < len(out); i++ {
		keys, err := r.client.ZRange(ctx, r.idxKey(out[i]), 0, -1).Result()
		if err != nil {
			return nil, storeErr("scan", out[i], err)
		}
		for _, k := range keys {
			out = append(out, out[i]+"/"+k)
		}
	}
	return out, nil
}

// prune unlinks path and its ancestors while they hold neither fields nor children.
func (r *RedisStore) prune(ctx context.Context, path string) error {
	for path != "" {
		pipe := r.client.Pipeline()
		exists := pipe.Exists(ctx, r.nodeKey(path))
		card := pipe.ZCard(ctx, r.idxKey(path))
		if _, err := pipe.Exec(ctx); err != nil {
			return storeErr("prune", path, err)
		}
		if exists.Val() > 0 || card.Val() > 0 {
			return nil
		}

		parent, key := splitPath(path)
		if err := r.client.ZRem(ctx, r.idxKey(parent), key).Err(); err != nil {
			return storeErr("prune", path, err)
		}
		path = parent
	}
	return nil
}

func (r *RedisStore) Children(ctx context.Context, path string, rng Range) ([]Child, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	by := &redis.ZRangeBy{Min: "-", Max: "+"}
	if rng.Start != "" {
		by.Min = "[" + rng.Start
	}
	if rng.End != "" {
		by.Max = "[" + rng.End
	}

	keys, err := r.client.ZRangeByLex(ctx, r.idxKey(path), by).Result()
	if err != nil {
		return nil, storeErr("children", path, err)
	}
	return r.loadChildren(ctx, path, keys)
}

func (r *RedisStore) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	ps := r.client.Subscribe(ctx, r.channel())
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, storeErr("subscribe", path, err)
	}

	var sub *Subscription
	sub = newSubscription(ctx, path, func() {
		r.mu.Lock()
		delete(r.subs, sub)
		r.mu.Unlock()
		ps.Close()
	})

	r.mu.Lock()
	r.subs[sub] = ps
	r.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			if related(msg.Payload, path) {
				sub.notify()
			}
		}
	}()
	sub.start(r.Get)

	return sub, nil
}

// Close detaches open subscriptions and closes the client.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for s := range r.subs {
		subs = append(subs, s)
	}
	r.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return r.client.Close()
}
