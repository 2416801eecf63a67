package router

import (
	"context"
	"fmt"
)

// RedisClient is a minimal interface any Redis library (go-redis, redigo)
// can satisfy; the router doesn't import a specific driver — the caller
// wiring up a node creates the concrete client (see RedisAdapter) and
// injects it here.
type RedisClient interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// RedisMailboxStore mirrors mailbox liveness into Redis so other node
// processes can see addresses registered elsewhere via ListRemote. The
// admin status feed does not read it. It is never consulted on the
// portal's own correctness-critical Send path, which only ever routes
// in-process.
type RedisMailboxStore struct {
	client RedisClient
	key    string
}

// NewRedisMailboxStore returns a store keyed under a single Redis set,
// defaulting to "relay:mailboxes" when key is empty.
func NewRedisMailboxStore(client RedisClient, key string) *RedisMailboxStore {
	if key == "" {
		key = "relay:mailboxes"
	}
	return &RedisMailboxStore{client: client, key: key}
}

// MarkRegistered adds addr to the shared mailbox set.
func (s *RedisMailboxStore) MarkRegistered(ctx context.Context, addr Address) error {
	if err := s.client.SAdd(ctx, s.key, string(addr)); err != nil {
		return fmt.Errorf("router: redis mark registered %s: %w", addr, err)
	}
	return nil
}

// MarkRemoved removes addr from the shared mailbox set.
func (s *RedisMailboxStore) MarkRemoved(ctx context.Context, addr Address) error {
	if err := s.client.SRem(ctx, s.key, string(addr)); err != nil {
		return fmt.Errorf("router: redis mark removed %s: %w", addr, err)
	}
	return nil
}

// ListRemote returns every address currently marked live in Redis,
// across every node process sharing this store's key.
func (s *RedisMailboxStore) ListRemote(ctx context.Context) ([]Address, error) {
	members, err := s.client.SMembers(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("router: redis list mailboxes: %w", err)
	}
	addrs := make([]Address, len(members))
	for i, m := range members {
		addrs[i] = Address(m)
	}
	return addrs, nil
}

var _ MailboxStore = (*RedisMailboxStore)(nil)
