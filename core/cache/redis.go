package cache

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/jask/dashlego/core/errs"
	"github.com/jask/dashlego/core/frame"
)

const signatureSize = sha256.Size

// RedisOptions addresses a redis database.
type RedisOptions struct {
	Host     string
	Port     int
	DB       int
	Password string
	// SigningKey authenticates stored values. Instances that share a keyspace
	// must share the key. When empty a random key is generated, which limits
	// sharing to a single backend instance.
	SigningKey []byte
	TTL        time.Duration
}

func (o RedisOptions) withDefaults() RedisOptions {
	if o.Host == "" {
		o.Host = "localhost"
	}
	if o.Port == 0 {
		o.Port = 6379
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	return o
}

func (o RedisOptions) addr() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o RedisOptions) poolKey() string {
	return fmt.Sprintf("%s:%d:%d", o.Host, o.Port, o.DB)
}

var (
	poolsMu sync.Mutex
	pools   = map[string]*redis.Client{}
)

// redisClient returns the pooled client for the (host, port, db) triple.
func redisClient(o RedisOptions) *redis.Client {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	key := o.poolKey()
	if c, ok := pools[key]; ok {
		return c
	}
	c := redis.NewClient(&redis.Options{
		Addr:     o.addr(),
		Password: o.Password,
		DB:       o.DB,
	})
	pools[key] = c
	return c
}

// ResetRedisPools closes and forgets every pooled client.
func ResetRedisPools() error {
	poolsMu.Lock()
	defer poolsMu.Unlock()
	var err error
	for key, c := range pools {
		err = multierr.Append(err, c.Close())
		delete(pools, key)
	}
	return err
}

// Redis stores HMAC-SHA256 signed frames. The stored layout is the 32 byte
// signature followed by the encoded frame; Get verifies before decoding.
type Redis struct {
	client *redis.Client
	opts   RedisOptions
	key    []byte
}

// NewRedis builds a backend on the shared client for opts' (host, port, db).
func NewRedis(opts RedisOptions, log logr.Logger) (*Redis, error) {
	opts = opts.withDefaults()
	key := opts.SigningKey
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, errs.Cache("redis signing key", err)
		}
		log.Info("no redis signing key configured, generated a random one; entries will not be shared across processes", "addr", opts.addr())
	}
	return &Redis{client: redisClient(opts), opts: opts, key: key}, nil
}

// Client exposes the pooled client.
func (r *Redis) Client() *redis.Client { return r.client }

func (r *Redis) Contains(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, errs.Cache("redis contains", err)
	}
	return n > 0, nil
}

func (r *Redis) Get(ctx context.Context, key string) (dataframe.DataFrame, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return frame.Empty(), ErrNotFound
	}
	if err != nil {
		return frame.Empty(), errs.Cache("redis get", err)
	}
	data, err := r.verify(raw)
	if err != nil {
		return frame.Empty(), fmt.Errorf("key %q: %w", key, err)
	}
	df, err := frame.Decode(data)
	if err != nil {
		return frame.Empty(), errs.Cache("redis get", err)
	}
	return df, nil
}

func (r *Redis) Set(ctx context.Context, key string, df dataframe.DataFrame, ttl time.Duration) error {
	data, err := frame.Encode(df)
	if err != nil {
		return errs.Cache("redis set", err)
	}
	if ttl <= 0 {
		ttl = r.opts.TTL
	}
	if err := r.client.Set(ctx, key, r.sign(data), ttl).Err(); err != nil {
		return errs.Cache("redis set", err)
	}
	return nil
}

// Close leaves the pooled client open; use ResetRedisPools to release it.
func (r *Redis) Close() error { return nil }

func (r *Redis) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, r.key)
	mac.Write(data)
	out := make([]byte, 0, signatureSize+len(data))
	out = mac.Sum(out)
	return append(out, data...)
}

func (r *Redis) verify(signed []byte) ([]byte, error) {
	if len(signed) < signatureSize {
		return nil, ErrIntegrity
	}
	sig, data := signed[:signatureSize], signed[signatureSize:]
	mac := hmac.New(sha256.New, r.key)
	mac.Write(data)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrIntegrity
	}
	return data, nil
}
