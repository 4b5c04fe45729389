// Package presence tracks which room participants currently hold a live
// connection, backed by Redis with TTL-based expiry:
//
//	Key:   presence:<room_id>:<user_id>
//	Value: connection session ID
//	TTL:   refreshed by each heartbeat tick
//
// A crashed server therefore leaks no permanent online state; entries decay
// on their own.
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for presence records.
	KeyPrefix = "presence:"

	// DefaultTTL is how long a presence record survives without a refresh.
	// It must comfortably exceed the heartbeat interval.
	DefaultTTL = 90 * time.Second
)

// Store manages presence records in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a presence store using the provided Redis client. A zero
// ttl selects DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

func key(roomID, userID string) string {
	return fmt.Sprintf("%s%s:%s", KeyPrefix, roomID, userID)
}

// MarkOnline records that the user holds a live connection to the room.
func (s *Store) MarkOnline(ctx context.Context, roomID, userID, sessionID string) error {
	if err := s.client.Set(ctx, key(roomID, userID), sessionID, s.ttl).Err(); err != nil {
		return fmt.Errorf("presence: mark online: %w", err)
	}
	return nil
}

// Refresh extends the TTL of an existing presence record. A missing record
// is not an error; the next MarkOnline recreates it.
func (s *Store) Refresh(ctx context.Context, roomID, userID string) error {
	if err := s.client.Expire(ctx, key(roomID, userID), s.ttl).Err(); err != nil {
		return fmt.Errorf("presence: refresh: %w", err)
	}
	return nil
}

// MarkOffline removes the user's presence record for the room.
func (s *Store) MarkOffline(ctx context.Context, roomID, userID string) error {
	if err := s.client.Del(ctx, key(roomID, userID)).Err(); err != nil {
		return fmt.Errorf("presence: mark offline: %w", err)
	}
	return nil
}

// IsOnline reports whether the user currently holds a live connection to
// the room.
func (s *Store) IsOnline(ctx context.Context, roomID, userID string) (bool, error) {
	err := s.client.Get(ctx, key(roomID, userID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("presence: check online: %w", err)
	}
	return true, nil
}
