package relay

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Bus fans frames for a room out to every hub subscribed to it.
type Bus interface {
	Publish(ctx context.Context, roomID string, payload []byte) error
	// Subscribe calls deliver for every payload published to roomID until the
	// returned func is called.
	Subscribe(ctx context.Context, roomID string, deliver func([]byte)) (func(), error)
}

// LocalBus delivers within the process.
type LocalBus struct {
	mu     sync.Mutex
	next   int
	topics map[string]map[int]func([]byte)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{topics: make(map[string]map[int]func([]byte))}
}

func (b *LocalBus) Publish(ctx context.Context, roomID string, payload []byte) error {
	b.mu.Lock()
	subs := make([]func([]byte), 0, len(b.topics[roomID]))
	for _, deliver := range b.topics[roomID] {
		subs = append(subs, deliver)
	}
	b.mu.Unlock()

	for _, deliver := range subs {
		deliver(payload)
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, roomID string, deliver func([]byte)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.topics[roomID] == nil {
		b.topics[roomID] = make(map[int]func([]byte))
	}
	id := b.next
	b.next++
	b.topics[roomID][id] = deliver

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.topics[roomID], id)
		if len(b.topics[roomID]) == 0 {
			delete(b.topics, roomID)
		}
	}, nil
}

// RedisBus relays through redis pub/sub so hubs on several server instances
// share their rooms.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

// Channel returns the redis channel carrying roomID's frames.
func Channel(roomID string) string {
	return "collabtext:room:" + roomID
}

func (b *RedisBus) Publish(ctx context.Context, roomID string, payload []byte) error {
	return b.rdb.Publish(ctx, Channel(roomID), payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, roomID string, deliver func([]byte)) (func(), error) {
	pubsub := b.rdb.Subscribe(ctx, Channel(roomID))
	// Wait for the subscription to be confirmed so nothing published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	ch := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver([]byte(msg.Payload))
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			if err := pubsub.Close(); err != nil {
				log.Printf("Error closing redis subscription for room %s: %v", roomID, err)
			}
		})
	}, nil
}
