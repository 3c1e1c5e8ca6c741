package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	room_id      TEXT PRIMARY KEY,
	code         TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	active_users INTEGER NOT NULL DEFAULT 0
)`

// Postgres keeps rooms in a PostgreSQL "rooms" table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and makes sure the rooms table exists.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Create(ctx context.Context) (Room, error) {
	room := newRoom(time.Now().UTC())
	_, err := p.pool.Exec(ctx,
		`INSERT INTO rooms (room_id, code, created_at, updated_at, active_users) VALUES ($1, $2, $3, $4, 0)`,
		room.ID, room.Code, room.CreatedAt, room.UpdatedAt)
	if err != nil {
		return Room{}, fmt.Errorf("insert room: %w", err)
	}
	return room, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (Room, error) {
	var room Room
	err := p.pool.QueryRow(ctx,
		`SELECT room_id, code, created_at, updated_at, active_users FROM rooms WHERE room_id = $1`, id,
	).Scan(&room.ID, &room.Code, &room.CreatedAt, &room.UpdatedAt, &room.ActiveUsers)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Room{}, fmt.Errorf("select room %s: %w", id, err)
	}
	return room, nil
}

func (p *Postgres) UpdateCode(ctx context.Context, id, code string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE rooms SET code = $2, updated_at = $3 WHERE room_id = $1`, id, code, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update room %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) AdjustActiveUsers(ctx context.Context, id string, delta int) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx,
		`UPDATE rooms SET active_users = GREATEST(active_users + $2, 0) WHERE room_id = $1 RETURNING active_users`,
		id, delta,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("adjust active users %s: %w", id, err)
	}
	return n, nil
}

func (p *Postgres) Delete(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM rooms WHERE room_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
