package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const defaultKeyPrefix = "guildkeeper:"

// Number of optimistic transaction attempts before Update gives up
const maxUpdateAttempts = 25

// Redis keeps every document under <prefix><namespace>:<scope> and the set
// of scopes of a namespace under <prefix><namespace>:scopes
type Redis struct {
	rdb   *redis.Client
	keyNS string
}

func NewRedis(rdb *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &Redis{rdb: rdb, keyNS: keyPrefix}
}

func (r *Redis) key(namespace string, scope string) string {
	return r.keyNS + namespace + ":" + scope
}

func (r *Redis) scopesKey(namespace string) string {
	return r.keyNS + namespace + ":scopes"
}

func (r *Redis) Get(ctx context.Context, namespace string, scope string) ([]byte, error) {
	data, err := r.rdb.Get(ctx, r.key(namespace, scope)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Redis) Update(ctx context.Context, namespace string, scope string, fn func(current []byte) ([]byte, error)) error {

	k := r.key(namespace, scope)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if err == redis.Nil {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		// Only executed if the watched key did not change in between
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			r.write(ctx, pipe, namespace, scope, next)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := r.rdb.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			log.Debug().Msg(fmt.Sprintf("Concurrent update of %s, retrying", k))
			continue
		}
		return err
	}
	return fmt.Errorf("updating %s: %w", k, ErrConflict)
}

func (r *Redis) Scopes(ctx context.Context, namespace string) ([]string, error) {
	return r.rdb.SMembers(ctx, r.scopesKey(namespace)).Result()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) write(ctx context.Context, pipe redis.Pipeliner, namespace string, scope string, data []byte) {
	if data == nil {
		pipe.Del(ctx, r.key(namespace, scope))
		pipe.SRem(ctx, r.scopesKey(namespace), scope)
		return
	}
	pipe.Set(ctx, r.key(namespace, scope), data, 0)
	pipe.SAdd(ctx, r.scopesKey(namespace), scope)
}
