package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var roomsBucket = []byte("rooms")

// Bolt keeps rooms in an embedded bbolt file, one JSON record per room.
type Bolt struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(roomsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create rooms bucket: %w", err)
	}
	return &Bolt{db: db, now: time.Now}, nil
}

func (b *Bolt) Create(ctx context.Context) (Room, error) {
	room := newRoom(b.now().UTC())
	err := b.db.Update(func(tx *bolt.Tx) error {
		return put(tx, room)
	})
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

func (b *Bolt) Get(ctx context.Context, id string) (Room, error) {
	var room Room
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		room, err = get(tx, id)
		return err
	})
	return room, err
}

func (b *Bolt) UpdateCode(ctx context.Context, id, code string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		room, err := get(tx, id)
		if err != nil {
			return err
		}
		room.Code = code
		room.UpdatedAt = b.now().UTC()
		return put(tx, room)
	})
}

func (b *Bolt) AdjustActiveUsers(ctx context.Context, id string, delta int) (int, error) {
	var n int
	err := b.db.Update(func(tx *bolt.Tx) error {
		room, err := get(tx, id)
		if err != nil {
			return err
		}
		room.ActiveUsers = max(room.ActiveUsers+delta, 0)
		n = room.ActiveUsers
		return put(tx, room)
	})
	return n, err
}

func (b *Bolt) Delete(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(roomsBucket)
		if bkt.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bkt.Delete([]byte(id))
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func get(tx *bolt.Tx, id string) (Room, error) {
	data := tx.Bucket(roomsBucket).Get([]byte(id))
	if data == nil {
		return Room{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var room Room
	if err := json.Unmarshal(data, &room); err != nil {
		return Room{}, fmt.Errorf("decode room %s: %w", id, err)
	}
	return room, nil
}

func put(tx *bolt.Tx, room Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	return tx.Bucket(roomsBucket).Put([]byte(room.ID), data)
}
