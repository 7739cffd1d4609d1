package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/escrowcore/ledgercore/internal/idempotency"
)

// Store is the Redis-backed implementation of idempotency.Store, spec
// §4.6's preferred backend ("Redis preferred with an in-process
// fallback map").
type Store struct {
	Conn *Connection
}

func NewStore(conn *Connection) *Store {
	return &Store{Conn: conn}
}

// wireRecord is the JSON-on-the-wire shape of an idempotency.Record —
// idempotency.Record itself carries no json tags since it has never
// needed to cross a wire boundary until this adapter.
type wireRecord struct {
	State       idempotency.State `json:"state"`
	Fingerprint string            `json:"fingerprint"`
	StatusCode  int               `json:"statusCode"`
	Body        []byte            `json:"body"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func toWire(r idempotency.Record) wireRecord {
	return wireRecord{State: r.State, Fingerprint: r.Fingerprint, StatusCode: r.StatusCode, Body: r.Body, CreatedAt: r.CreatedAt}
}

func (w wireRecord) toRecord() idempotency.Record {
	return idempotency.Record{State: w.State, Fingerprint: w.Fingerprint, StatusCode: w.StatusCode, Body: w.Body, CreatedAt: w.CreatedAt}
}

func (s *Store) TrySetProcessing(ctx context.Context, key, fingerprint string, ttl time.Duration) (bool, error) {
	client, err := s.Conn.GetClient(ctx)
	if err != nil {
		return false, err
	}

	payload, err := json.Marshal(toWire(idempotency.Record{
		State: idempotency.StateProcessing, Fingerprint: fingerprint, CreatedAt: time.Now().UTC(),
	}))
	if err != nil {
		return false, err
	}

	// SETNX is exactly spec §4.6's "atomically insert iff absent"
	// primitive; go-redis exposes it as SetNX.
	return client.SetNX(ctx, key, payload, ttl).Result()
}

func (s *Store) Load(ctx context.Context, key string) (idempotency.Record, bool, error) {
	client, err := s.Conn.GetClient(ctx)
	if err != nil {
		return idempotency.Record{}, false, err
	}

	raw, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return idempotency.Record{}, false, nil
	}

	if err != nil {
		return idempotency.Record{}, false, err
	}

	var w wireRecord
	if err := json.Unmarshal(raw, &w); err != nil {
		return idempotency.Record{}, false, err
	}

	return w.toRecord(), true, nil
}

func (s *Store) Save(ctx context.Context, key string, rec idempotency.Record, ttl time.Duration) error {
	client, err := s.Conn.GetClient(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(toWire(rec))
	if err != nil {
		return err
	}

	return client.Set(ctx, key, payload, ttl).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	client, err := s.Conn.GetClient(ctx)
	if err != nil {
		return err
	}

	return client.Del(ctx, key).Err()
}
