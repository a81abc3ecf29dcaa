package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizarena/go/internal/models"
)

const (
	roomKeyPrefix   = "room:"
	defaultCacheTTL = 2 * time.Hour
)

// CachedRoomStore is a read-through Redis cache in front of a RoomStore.
// Writes always go to the backing store first; cache failures are logged and
// never fail the call.
type CachedRoomStore struct {
	RoomStore
	rdb *redis.Client
	ttl time.Duration
}

func NewCachedRoomStore(inner RoomStore, rdb *redis.Client, ttl time.Duration) *CachedRoomStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedRoomStore{RoomStore: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedRoomStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	data, err := c.rdb.Get(ctx, roomKeyPrefix+roomID).Bytes()
	if err == nil {
		var room models.Room
		if err := json.Unmarshal(data, &room); err == nil {
			return &room, nil
		}
		log.Warn().Str("room_id", roomID).Msg("discarding undecodable cached room")
	} else if !errors.Is(err, redis.Nil) {
		log.Warn().Err(err).Str("room_id", roomID).Msg("redis get failed, falling back to store")
	}

	room, err := c.RoomStore.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, room)
	return room, nil
}

func (c *CachedRoomStore) SaveRoom(ctx context.Context, room *models.Room) error {
	if err := c.RoomStore.SaveRoom(ctx, room); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			c.evict(ctx, room.ID)
		}
		return err
	}
	c.put(ctx, room)
	return nil
}

func (c *CachedRoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	if err := c.RoomStore.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	c.evict(ctx, roomID)
	return nil
}

func (c *CachedRoomStore) put(ctx context.Context, room *models.Room) {
	data, err := json.Marshal(room)
	if err != nil {
		log.Error().Err(err).Str("room_id", room.ID).Msg("failed to encode room for cache")
		return
	}
	if err := c.rdb.Set(ctx, roomKeyPrefix+room.ID, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("room_id", room.ID).Msg("failed to cache room")
	}
}

func (c *CachedRoomStore) evict(ctx context.Context, roomID string) {
	if err := c.rdb.Del(ctx, roomKeyPrefix+roomID).Err(); err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("failed to evict cached room")
	}
}

// cachedStore routes the room methods of a Store through a CachedRoomStore.
type cachedStore struct {
	Store
	rooms *CachedRoomStore
}

// WithRoomCache puts a Redis room cache in front of store.
func WithRoomCache(store Store, rdb *redis.Client, ttl time.Duration) Store {
	return &cachedStore{Store: store, rooms: NewCachedRoomStore(store, rdb, ttl)}
}

func (s *cachedStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.rooms.GetRoom(ctx, roomID)
}

func (s *cachedStore) SaveRoom(ctx context.Context, room *models.Room) error {
	return s.rooms.SaveRoom(ctx, room)
}

func (s *cachedStore) DeleteRoom(ctx context.Context, roomID string) error {
	return s.rooms.DeleteRoom(ctx, roomID)
}

func (s *cachedStore) RecordAnswer(ctx context.Context, answer *models.Answer, room *models.Room) error {
	if err := s.Store.RecordAnswer(ctx, answer, room); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			s.rooms.evict(ctx, room.ID)
		}
		return err
	}
	s.rooms.put(ctx, room)
	return nil
}
