// Package redis provides a Redis-backed record store for orthomate.
// Records are JSON documents; each template keeps a list of record ids in
// save order.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"

	"github.com/thebtf/orthomate/internal/config"
	"github.com/thebtf/orthomate/pkg/models"
)

// ErrRecordExists is returned when a record id is already taken.
var ErrRecordExists = errors.New("record already exists")

// saveScript writes the document only if the id is new, then appends the id
// to the template index, atomically.
var saveScript = redis.NewScript(2, `
if redis.call('SET', KEYS[1], ARGV[1], 'NX') then
  redis.call('RPUSH', KEYS[2], ARGV[2])
  return 1
end
return 0
`)

// RecordStore saves and queries notes in Redis.
type RecordStore struct {
	pool   *redis.Pool
	prefix string
}

// NewRecordStore dials lazily through a pool built from sc.
func NewRecordStore(sc config.StoreConfig) (*RecordStore, error) {
	if sc.RedisURL == "" {
		return nil, errors.New("redis url is required")
	}
	maxConns := sc.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	prefix := sc.RedisPrefix
	if prefix == "" {
		prefix = "orthomate"
	}

	pool := &redis.Pool{
		MaxIdle:     maxConns,
		MaxActive:   maxConns,
		Wait:        true,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialURLContext(ctx, sc.RedisURL)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	return &RecordStore{pool: pool, prefix: prefix}, nil
}

// Backend names the store kind for health reports.
func (s *RecordStore) Backend() string {
	return config.BackendRedis
}

// Ping verifies the server is reachable.
func (s *RecordStore) Ping(ctx context.Context) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = redis.DoContext(conn, ctx, "PING")
	return err
}

// Close releases pooled connections.
func (s *RecordStore) Close() error {
	return s.pool.Close()
}

// SaveRecord stores r, assigning an id and date when empty.
func (s *RecordStore) SaveRecord(ctx context.Context, r *models.Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Date == "" {
		r.Date = time.Now().UTC().Format(models.DateLayout)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	created, err := redis.Int(saveScript.DoContext(ctx, conn, s.recordKey(r.ID), s.templateKey(string(r.Template)), data, r.ID))
	if err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	if created == 0 {
		return fmt.Errorf("%w: %s", ErrRecordExists, r.ID)
	}
	return nil
}

// FindByTemplate returns records whose template equals template exactly, in
// save order. No match yields an empty slice.
func (s *RecordStore) FindByTemplate(ctx context.Context, template string) ([]*models.Record, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	defer conn.Close()

	ids, err := redis.Strings(redis.DoContext(conn, ctx, "LRANGE", s.templateKey(template), 0, -1))
	if err != nil {
		return nil, fmt.Errorf("list template index: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Record{}, nil
	}

	keys := make([]interface{}, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	blobs, err := redis.ByteSlices(redis.DoContext(conn, ctx, "MGET", keys...))
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}

	records := make([]*models.Record, 0, len(blobs))
	for i, blob := range blobs {
		if blob == nil {
			continue
		}
		var r models.Record
		if err := json.Unmarshal(blob, &r); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", ids[i], err)
		}
		records = append(records, &r)
	}
	return records, nil
}

func (s *RecordStore) recordKey(id string) string {
	return s.prefix + ":record:" + id
}

func (s *RecordStore) templateKey(template string) string {
	return s.prefix + ":template:" + template
}
