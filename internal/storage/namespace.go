package storage

import (
	"context"
	"strings"
)

type nsStore struct {
	inner  Store
	prefix string
}

// WithNamespace returns a view of s where every key is prefixed with "ns:".
// Closing the view closes the underlying store.
func WithNamespace(s Store, ns string) Store {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s
	}
	return &nsStore{inner: s, prefix: ns + ":"}
}

func (n *nsStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *nsStore) Put(ctx context.Context, key string, value []byte) error {
	return n.inner.Put(ctx, n.prefix+key, value)
}

func (n *nsStore) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *nsStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.inner.Keys(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

func (n *nsStore) Close() error { return n.inner.Close() }
