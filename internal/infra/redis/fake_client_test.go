//go:build !integration

package redis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// fakeClient is an in-memory RedisClient. Expirations are recorded but only
// enforced through expireNow.
type fakeClient struct {
	mu   sync.Mutex
	kv   map[string]string
	ttl  map[string]time.Duration
	zset map[string]map[string]float64
}

var _ RedisClient = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{
		kv:   map[string]string{},
		ttl:  map[string]time.Duration{},
		zset: map[string]map[string]float64{},
	}
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }

func (f *fakeClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = toString(value)
	f.ttl[key] = expiration
	return nil
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.kv[key]; ok {
		return false, nil
	}
	f.kv[key] = toString(value)
	f.ttl[key] = expiration
	return true, nil
}

func (f *fakeClient) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	if !ok {
		return "", Nil
	}
	return v, nil
}

func (f *fakeClient) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	fmt.Sscan(f.kv[key], &n)
	n++
	f.kv[key] = fmt.Sprint(n)
	return n, nil
}

func (f *fakeClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ttl[key] = expiration
	return nil
}

func (f *fakeClient) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.ttl, k)
	}
	return nil
}

func (f *fakeClient) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kv[key] != value {
		return false, nil
	}
	delete(f.kv, key)
	return true, nil
}

func (f *fakeClient) ZAdd(ctx context.Context, key string, score float64, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.zset[key] == nil {
		f.zset[key] = map[string]float64{}
	}
	f.zset[key][member] = score
	return nil
}

func (f *fakeClient) ZRangeByScore(ctx context.Context, key string, max float64, limit int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type entry struct {
		m string
		s float64
	}
	var all []entry
	for m, s := range f.zset[key] {
		if s <= max {
			all = append(all, entry{m, s})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].s == all[j].s {
			return all[i].m < all[j].m
		}
		return all[i].s < all[j].s
	})
	var out []string
	for _, e := range all {
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		out = append(out, e.m)
	}
	return out, nil
}

func (f *fakeClient) ZRem(ctx context.Context, key string, members ...string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range members {
		if _, ok := f.zset[key][m]; ok {
			delete(f.zset[key], m)
			n++
		}
	}
	return n, nil
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) expireNow(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.kv, key)
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
