package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTTL bounds how long a compiled result stays retrievable.
const DefaultTTL = time.Hour

// ErrResultNotFound is returned for unknown or expired result ids.
var ErrResultNotFound = errors.New("result not found")

// Result is one compiled document handed off for download.
type Result struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Tool      string    `json:"tool"`
	Pages     int       `json:"pages"`
	Location  string    `json:"location,omitempty"`
	Created   time.Time `json:"created"`
	Data      []byte    `json:"-"`
}

// ResultStore keeps compiled results in Redis hashes that expire after ttl.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
	keyNS  string
}

// NewResultStore connects to redisURL and verifies the connection.
func NewResultStore(ctx context.Context, redisURL string, ttl time.Duration) (*ResultStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opt)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultStore{client: c, ttl: ttl, keyNS: "result"}, nil
}

func (s *ResultStore) key(id string) string { return fmt.Sprintf("%s:%s", s.keyNS, id) }

// Save writes r and sets its expiry in one transaction.
func (s *ResultStore) Save(ctx context.Context, r Result) error {
	if r.ID == "" {
		return errors.New("save result: empty id")
	}
	if r.Created.IsZero() {
		r.Created = time.Now().UTC()
	}
	k := s.key(r.ID)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, encodeResult(r))
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.ID, err)
	}
	log.Debug().Str("result_id", r.ID).Str("session_id", r.SessionID).Int("bytes", len(r.Data)).Dur("ttl", s.ttl).Msg("stored compiled result")
	return nil
}

// Get returns the result, or ErrResultNotFound once it expired.
func (s *ResultStore) Get(ctx context.Context, id string) (Result, error) {
	res, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return Result{}, fmt.Errorf("get result %s: %w", id, err)
	}
	if len(res) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	r := decodeResult(res)
	r.ID = id
	return r, nil
}

// Delete removes a result; deleting an unknown id is not an error.
func (s *ResultStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Ping checks the connection for health reporting.
func (s *ResultStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Client exposes the connection for other Redis-backed helpers.
func (s *ResultStore) Client() *redis.Client { return s.client }

func (s *ResultStore) Close() error { return s.client.Close() }

func encodeResult(r Result) map[string]interface{} {
	m := map[string]interface{}{
		"data":    r.Data,
		"session": r.SessionID,
		"tool":    r.Tool,
		"pages":   r.Pages,
		"created": r.Created.Format(time.RFC3339Nano),
	}
	if r.Location != "" {
		m["location"] = r.Location
	}
	return m
}

func decodeResult(res map[string]string) Result {
	r := Result{
		SessionID: res["session"],
		Tool:      res["tool"],
		Location:  res["location"],
		Data:      []byte(res["data"]),
	}
	// ignore parse errors; zero values are fine for display fields
	r.Pages, _ = strconv.Atoi(res["pages"])
	if t, err := time.Parse(time.RFC3339Nano, res["created"]); err == nil {
		r.Created = t
	}
	return r
}
