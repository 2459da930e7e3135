package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const maxTxRetries = 10

// RedisStore keeps each ticket as JSON under <prefix>ticket:<id> and the
// session's pending ticket id under <prefix>session:<sid>:pending.
// Changes run inside WATCH/MULTI so concurrent decisions resolve once.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisStore wraps client. Ticket keys live retention past their
// expiry before redis drops them.
func NewRedisStore(client *redis.Client, prefix string, retention time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "gcalbook:"
	}
	return &RedisStore{client: client, prefix: prefix, retention: retention}
}

// DialRedis connects and pings like the rest of our redis clients.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) ticketKey(id string) string {
	return s.prefix + "ticket:" + id
}

func (s *RedisStore) pendingKey(sessionID string) string {
	return s.prefix + "session:" + sessionID + ":pending"
}

func (s *RedisStore) ttl(t Ticket) time.Duration {
	ttl := t.ExpiresAt.Sub(t.CreatedAt) + s.retention
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl
}

func (s *RedisStore) Open(ctx context.Context, t Ticket) error {
	t.Resolution = Pending
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("error encoding ticket: %w", err)
	}

	if t.SessionID == "" {
		return s.client.Set(ctx, s.ticketKey(t.ID), data, s.ttl(t)).Err()
	}

	pendingKey := s.pendingKey(t.SessionID)
	return s.retry(ctx, func(tx *redis.Tx) error {
		old, oldData, err := s.watchPending(ctx, tx, t.SessionID)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if oldData != nil {
				pipe.Set(ctx, s.ticketKey(old.ID), s.superseded(old, oldData, t.CreatedAt), redis.KeepTTL)
			}
			pipe.Set(ctx, s.ticketKey(t.ID), data, s.ttl(t))
			pipe.Set(ctx, pendingKey, t.ID, t.ExpiresAt.Sub(t.CreatedAt)+s.retention)
			return nil
		})
		return err
	}, pendingKey)
}

func (s *RedisStore) Get(ctx context.Context, id string) (Ticket, error) {
	data, err := s.client.Get(ctx, s.ticketKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("error reading ticket: %w", err)
	}
	return decodeTicket(data)
}

func (s *RedisStore) Pending(ctx context.Context, sessionID string) (Ticket, error) {
	id, err := s.client.Get(ctx, s.pendingKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return Ticket{}, ErrNotFound
	}
	if err != nil {
		return Ticket{}, fmt.Errorf("error reading session: %w", err)
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return Ticket{}, err
	}
	if t.Resolution != Pending {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

func (s *RedisStore) Resolve(ctx context.Context, id string, res Resolution, at time.Time) error {
	key := s.ticketKey(id)
	return s.retry(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		t, err := decodeTicket(data)
		if err != nil {
			return err
		}
		if t.Resolution != Pending {
			return ErrNotPending
		}

		var pendingID string
		if t.SessionID != "" {
			if err := tx.Watch(ctx, s.pendingKey(t.SessionID)).Err(); err != nil {
				return err
			}
			pendingID, err = tx.Get(ctx, s.pendingKey(t.SessionID)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		}

		t.Resolution = res
		t.ResolvedAt = at
		updated, err := json.Marshal(t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			if pendingID == id {
				pipe.Del(ctx, s.pendingKey(t.SessionID))
			}
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) Reopen(ctx context.Context, id string) error {
	key := s.ticketKey(id)
	return s.retry(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		t, err := decodeTicket(data)
		if err != nil {
			return err
		}
		if t.Resolution != Accepted {
			return ErrNotReopenable
		}

		if t.SessionID != "" {
			if err := tx.Watch(ctx, s.pendingKey(t.SessionID)).Err(); err != nil {
				return err
			}
			_, other, err := s.watchPending(ctx, tx, t.SessionID)
			if err != nil {
				return err
			}
			if other != nil {
				return ErrNotReopenable
			}
		}

		t.Resolution = Pending
		t.ResolvedAt = time.Time{}
		updated, err := json.Marshal(t)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			if t.SessionID != "" {
				pipe.Set(ctx, s.pendingKey(t.SessionID), t.ID, s.ttl(t))
			}
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) Supersede(ctx context.Context, sessionID string, at time.Time) error {
	if sessionID == "" {
		return nil
	}
	pendingKey := s.pendingKey(sessionID)
	return s.retry(ctx, func(tx *redis.Tx) error {
		old, oldData, err := s.watchPending(ctx, tx, sessionID)
		if err != nil || oldData == nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.ticketKey(old.ID), s.superseded(old, oldData, at), redis.KeepTTL)
			pipe.Del(ctx, pendingKey)
			return nil
		})
		return err
	}, pendingKey)
}

// Purge removes tickets that expired before the given instant. Redis
// also drops them on its own once their TTL runs out.
func (s *RedisStore) Purge(ctx context.Context, before time.Time) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"ticket:*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return n, err
		}
		t, err := decodeTicket(data)
		if err != nil || !t.ExpiresAt.Before(before) {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return n, err
		}
		if t.SessionID != "" {
			s.client.Eval(ctx, delIfEquals, []string{s.pendingKey(t.SessionID)}, t.ID)
		}
		n++
	}
	return n, iter.Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

const delIfEquals = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) end return 0`

// watchPending loads the session's pending ticket inside tx, watching its
// key too. oldData is nil when the session has no pending ticket.
func (s *RedisStore) watchPending(ctx context.Context, tx *redis.Tx, sessionID string) (Ticket, []byte, error) {
	id, err := tx.Get(ctx, s.pendingKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return Ticket{}, nil, nil
	}
	if err != nil {
		return Ticket{}, nil, err
	}
	if err := tx.Watch(ctx, s.ticketKey(id)).Err(); err != nil {
		return Ticket{}, nil, err
	}
	data, err := tx.Get(ctx, s.ticketKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Ticket{}, nil, nil
	}
	if err != nil {
		return Ticket{}, nil, err
	}
	t, err := decodeTicket(data)
	if err != nil {
		return Ticket{}, nil, err
	}
	if t.Resolution != Pending {
		return Ticket{}, nil, nil
	}
	return t, data, nil
}

func (s *RedisStore) superseded(t Ticket, fallback []byte, at time.Time) []byte {
	t.Resolution = Superseded
	t.ResolvedAt = at
	data, err := json.Marshal(t)
	if err != nil {
		return fallback
	}
	return data
}

func (s *RedisStore) retry(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis transaction on %s kept conflicting", strings.Join(keys, ","))
}

func decodeTicket(data []byte) (Ticket, error) {
	var t Ticket
	if err := json.Unmarshal(data, &t); err != nil {
		return Ticket{}, fmt.Errorf("error decoding ticket: %w", err)
	}
	return t, nil
}
