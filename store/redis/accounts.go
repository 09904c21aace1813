// Package redis provides a Redis-backed account collaborator and a
// distributed per-transaction lock, for deployments that run the engine in
// more than one process.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/affiliate/account"
)

var _ account.Store = (*Accounts)(nil)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "affiliate:"

// affiliateField is the hash field of a user holding its affiliate id.
// Attributes live in a separate hash so no attribute key can collide with it.
const affiliateField = "affiliate_id"

// Accounts implements account.Store over Redis hashes:
//
//	<prefix>user:<ref>       hash  affiliate_id
//	<prefix>attrs:<ref>      hash  attribute key -> value
//	<prefix>affid:<id>       string  owning user ref
type Accounts struct {
	client *redis.Client
	prefix string
}

// AccountsOption configures Accounts.
type AccountsOption func(*Accounts)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) AccountsOption {
	return func(a *Accounts) { a.prefix = prefix }
}

// NewAccounts creates an account store on client.
func NewAccounts(client *redis.Client, opts ...AccountsOption) *Accounts {
	a := &Accounts{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect initializes a Redis client from a redis:// URL or a host:port.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("affiliate/redis: parse url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

func (a *Accounts) userKey(ref string) string  { return a.prefix + "user:" + ref }
func (a *Accounts) attrsKey(ref string) string { return a.prefix + "attrs:" + ref }
func (a *Accounts) affKey(id string) string    { return a.prefix + "affid:" + id }

// AddUser registers userRef and, when non-empty, its affiliate id. A
// previous affiliate id of the same user is unregistered.
func (a *Accounts) AddUser(ctx context.Context, userRef, affiliateID string) error {
	prev, err := a.client.HGet(ctx, a.userKey(userRef), affiliateField).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("affiliate/redis: add user: %w", err)
	}
	_, err = a.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != "" && prev != affiliateID {
			p.Del(ctx, a.affKey(prev))
		}
		p.HSet(ctx, a.userKey(userRef), affiliateField, affiliateID)
		if affiliateID != "" {
			p.Set(ctx, a.affKey(affiliateID), userRef, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("affiliate/redis: add user: %w", err)
	}
	return nil
}

// DeleteUser removes userRef, its attributes and its affiliate id.
func (a *Accounts) DeleteUser(ctx context.Context, userRef string) error {
	affID, err := a.client.HGet(ctx, a.userKey(userRef), affiliateField).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("affiliate/redis: delete user: %w", err)
	}
	keys := []string{a.userKey(userRef), a.attrsKey(userRef)}
	if affID != "" {
		keys = append(keys, a.affKey(affID))
	}
	if err := a.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("affiliate/redis: delete user: %w", err)
	}
	return nil
}

func (a *Accounts) FindAffiliateID(ctx context.Context, userRef string) (string, error) {
	affID, err := a.client.HGet(ctx, a.userKey(userRef), affiliateField).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", account.ErrNotFound
		}
		return "", fmt.Errorf("affiliate/redis: find affiliate id: %w", err)
	}
	if affID == "" {
		return "", account.ErrNotFound
	}
	return affID, nil
}

func (a *Accounts) FindUserByAffiliateID(ctx context.Context, affiliateID string) (string, error) {
	ref, err := a.client.Get(ctx, a.affKey(affiliateID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", account.ErrNotFound
		}
		return "", fmt.Errorf("affiliate/redis: find user: %w", err)
	}
	return ref, nil
}

func (a *Accounts) GetAttribute(ctx context.Context, userRef, key string) (string, error) {
	v, err := a.client.HGet(ctx, a.attrsKey(userRef), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", account.ErrNotFound
		}
		return "", fmt.Errorf("affiliate/redis: get attribute: %w", err)
	}
	return v, nil
}

func (a *Accounts) SetAttribute(ctx context.Context, userRef, key, value string) error {
	if err := a.client.HSet(ctx, a.attrsKey(userRef), key, value).Err(); err != nil {
		return fmt.Errorf("affiliate/redis: set attribute: %w", err)
	}
	return nil
}

func (a *Accounts) DeleteAttribute(ctx context.Context, userRef, key string) error {
	if err := a.client.HDel(ctx, a.attrsKey(userRef), key).Err(); err != nil {
		return fmt.Errorf("affiliate/redis: delete attribute: %w", err)
	}
	return nil
}
