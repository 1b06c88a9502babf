package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// Persister keeps a sealed copy of the session across process restarts.
// Load reports false when nothing is stored.
type Persister interface {
	Save(ctx context.Context, sess Session) error
	Load(ctx context.Context) (Session, bool, error)
	Delete(ctx context.Context) error
}

const redisKeyPrefix = "iftv:session:v1:"

// RedisPersister stores the sealed session under one key per device.
type RedisPersister struct {
	client *redis.Client
	sealer *Sealer
	key    string
	ttl    time.Duration
}

// NewRedisPersister builds a Redis-backed persister. A zero ttl keeps the
// entry until it is deleted.
func NewRedisPersister(client *redis.Client, sealer *Sealer, deviceID string, ttl time.Duration) *RedisPersister {
	return &RedisPersister{client: client, sealer: sealer, key: redisKeyPrefix + deviceID, ttl: ttl}
}

// Save seals and writes sess.
func (p *RedisPersister) Save(ctx context.Context, sess Session) error {
	box, err := p.sealer.encode(sess)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.key, box, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Load reads and opens the stored session.
func (p *RedisPersister) Load(ctx context.Context) (Session, bool, error) {
	box, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("redis load session: %w", err)
	}
	sess, err := p.sealer.decode(box)
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// Delete removes the stored session. Deleting a missing key is not an error.
func (p *RedisPersister) Delete(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// querier is the subset of *pgxpool.Pool used by PostgresPersister.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createSessionsTable = `CREATE TABLE IF NOT EXISTS client_sessions (
    device_id  TEXT PRIMARY KEY,
    payload    BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresPersister stores the sealed session in the client_sessions table.
type PostgresPersister struct {
	db       querier
	sealer   *Sealer
	deviceID string
	now      func() time.Time
}

// NewPostgresPersister builds a Postgres-backed persister. Call EnsureSchema
// once before use.
func NewPostgresPersister(db querier, sealer *Sealer, deviceID string) *PostgresPersister {
	return &PostgresPersister{db: db, sealer: sealer, deviceID: deviceID, now: time.Now}
}

// EnsureSchema creates the sessions table when missing.
func (p *PostgresPersister) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, createSessionsTable); err != nil {
		return fmt.Errorf("create client_sessions: %w", err)
	}
	return nil
}

// Save upserts the sealed session for this device.
func (p *PostgresPersister) Save(ctx context.Context, sess Session) error {
	box, err := p.sealer.encode(sess)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, `INSERT INTO client_sessions (device_id, payload, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (device_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		p.deviceID, box, p.now().UTC())
	if err != nil {
		return fmt.Errorf("postgres save session: %w", err)
	}
	return nil
}

// Load fetches the sealed session for this device.
func (p *PostgresPersister) Load(ctx context.Context) (Session, bool, error) {
	var box []byte
	row := p.db.QueryRow(ctx, `SELECT payload FROM client_sessions WHERE device_id = $1`, p.deviceID)
	if err := row.Scan(&box); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("postgres load session: %w", err)
	}
	sess, err := p.sealer.decode(box)
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

// Delete removes the session row for this device.
func (p *PostgresPersister) Delete(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM client_sessions WHERE device_id = $1`, p.deviceID); err != nil {
		return fmt.Errorf("postgres delete session: %w", err)
	}
	return nil
}
