// Package cache keeps a short-lived Redis copy of each identity's record list.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"medboard/internal/domain"
)

type backend interface {
	ListRecordsByOwner(ctx context.Context, email string) ([]domain.Record, error)
}

// Records is a read-through cache in front of the record store. A nil Redis
// client turns it into a pass-through.
type Records struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
	log   log.FieldLogger
}

// NewRecords wraps base. A non-positive ttl disables writes to Redis.
func NewRecords(base backend, client *redis.Client, ttl time.Duration, logger log.FieldLogger) *Records {
	if base == nil {
		panic("cache.NewRecords: base is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Records{base: base, redis: client, ttl: ttl, log: logger}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Records) ListRecordsByOwner(ctx context.Context, email string) ([]domain.Record, error) {
	if recs, ok := c.load(ctx, email); ok {
		return recs, nil
	}
	recs, err := c.base.ListRecordsByOwner(ctx, email)
	if err != nil {
		return nil, err
	}
	c.store(ctx, email, recs)
	return recs, nil
}

// Evict drops the cached list after a write touching email's records.
func (c *Records) Evict(ctx context.Context, email string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, recordsKey(email)).Err(); err != nil {
		c.log.WithError(err).WithField("email", email).Warn("cache: evict failed")
	}
}

func (c *Records) load(ctx context.Context, email string) ([]domain.Record, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, recordsKey(email)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Debug("cache: get failed, reading through")
			_ = c.redis.Del(ctx, recordsKey(email)).Err()
		}
		return nil, false
	}
	var recs []domain.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		_ = c.redis.Del(ctx, recordsKey(email)).Err()
		return nil, false
	}
	return recs, true
}

func (c *Records) store(ctx context.Context, email string, recs []domain.Record) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, recordsKey(email), data, c.ttl).Err(); err != nil {
		c.log.WithError(err).Debug("cache: set failed")
	}
}

func recordsKey(email string) string {
	return "records:" + email
}
