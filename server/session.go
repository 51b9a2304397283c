// ABOUTME: Redis-backed board membership registry implementing the room Authorizer.
// ABOUTME: Boards with no member set are open; granting the first member makes them private.
package server

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/2389-research/huddle/hub"
)

// RedisAuthorizer gates board access on a Redis set of member user IDs per
// board. A board with no member set at all is open to any authenticated
// caller; once a member is granted, only members get in. All server
// instances pointing at the same Redis share the registry.
type RedisAuthorizer struct {
	client *redis.Client
}

// NewRedisAuthorizer creates an authorizer backed by the given Redis client.
func NewRedisAuthorizer(client *redis.Client) *RedisAuthorizer {
	return &RedisAuthorizer{client: client}
}

func memberKey(boardID ulid.ULID) string {
	return fmt.Sprintf("board:%s:members", boardID)
}

// CanAccessBoard implements hub.Authorizer.
func (ra *RedisAuthorizer) CanAccessBoard(ctx context.Context, id hub.Identity, boardID ulid.ULID) error {
	key := memberKey(boardID)
	n, err := ra.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}
	if n == 0 {
		// Open board.
		return nil
	}
	member, err := ra.client.SIsMember(ctx, key, id.UserID).Result()
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !member {
		return &hub.DeniedError{UserID: id.UserID, BoardID: boardID}
	}
	return nil
}

// Grant adds userID to the board's member set.
func (ra *RedisAuthorizer) Grant(ctx context.Context, boardID ulid.ULID, userID string) error {
	if err := ra.client.SAdd(ctx, memberKey(boardID), userID).Err(); err != nil {
		return fmt.Errorf("grant member: %w", err)
	}
	return nil
}

// Revoke removes userID from the board's member set. Redis drops empty
// sets, so revoking the last member reopens the board.
func (ra *RedisAuthorizer) Revoke(ctx context.Context, boardID ulid.ULID, userID string) error {
	if err := ra.client.SRem(ctx, memberKey(boardID), userID).Err(); err != nil {
		return fmt.Errorf("revoke member: %w", err)
	}
	return nil
}

// Members lists the board's member set. Empty means the board is open.
func (ra *RedisAuthorizer) Members(ctx context.Context, boardID ulid.ULID) ([]string, error) {
	members, err := ra.client.SMembers(ctx, memberKey(boardID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}
