package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/monocart/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

var errStaleGeneration = errors.New("cart generation changed")

const (
	baseTTL       = 15 * time.Minute
	maxJitter     = 5
	generationTTL = 24 * time.Hour
)

// RedisCache stores the lines of a cart under cart:<userID>, without product
// details. cart:<userID>:gen counts invalidations; a fill is written only if
// the counter still holds the value read before the database was queried.
// The TTL is spread by up to a few minutes so entries written together do not
// expire together.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, ttl: baseTTL}
}

// Generation returns the current invalidation counter of the user's cart. A
// counter that was never bumped reads as zero.
func (c *RedisCache) Generation(ctx context.Context, userID int64) (int64, error) {
	gen, err := readGeneration(ctx, c.client, userID)
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

// Get returns the cached cart lines. Items carry no Product.
func (c *RedisCache) Get(ctx context.Context, userID int64) (*domain.Cart, error) {
	data, err := c.client.Get(ctx, cacheKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if cart.CartItems == nil {
		cart.CartItems = []domain.CartItem{}
	}
	return &cart, nil
}

// Fill caches the lines of cart if the user's generation is still gen. It
// reports whether the entry was written.
func (c *RedisCache) Fill(ctx context.Context, userID, gen int64, cart *domain.Cart) (bool, error) {
	data, err := json.Marshal(linesOf(cart))
	if err != nil {
		return false, fmt.Errorf("marshal cart failed: %w", err)
	}
	ttl := c.ttl + time.Duration(rand.IntN(maxJitter))*time.Minute

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, userID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(userID), data, ttl)
			return nil
		})
		return err
	}, generationKey(userID))

	switch {
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("redis fill failed: %w", err)
	}
	return true, nil
}

// Invalidate bumps the user's generation and drops the cached lines in one
// transaction, so a fill that read the old generation can no longer land.
func (c *RedisCache) Invalidate(ctx context.Context, userID int64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), generationTTL)
		pipe.Del(ctx, cacheKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, r getter, userID int64) (int64, error) {
	gen, err := r.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// linesOf strips product details, which change with other users' checkouts
// and catalog edits.
func linesOf(cart *domain.Cart) *domain.Cart {
	lines := &domain.Cart{ID: cart.ID, UserID: cart.UserID, CartItems: make([]domain.CartItem, 0, len(cart.CartItems))}
	for _, item := range cart.CartItems {
		item.Product = nil
		lines.CartItems = append(lines.CartItems, item)
	}
	return lines
}

func cacheKey(userID int64) string {
	return "cart:" + strconv.FormatInt(userID, 10)
}

func generationKey(userID int64) string {
	return cacheKey(userID) + ":gen"
}
