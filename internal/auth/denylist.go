package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist tracks token IDs revoked by logout until they would have
// expired anyway.
type Denylist struct {
	client *redis.Client
}

// NewDenylist constructs a Denylist.
func NewDenylist(client *redis.Client) *Denylist {
	return &Denylist{client: client}
}

func denyKey(jti string) string {
	return "auth:revoked:" + jti
}

// Revoke marks the token id as revoked until expiry.
func (d *Denylist) Revoke(ctx context.Context, jti string, expiry time.Time) error {
	if d == nil || d.client == nil {
		return errors.New("denylist not configured")
	}
	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, denyKey(jti), "1", ttl).Err()
}

// IsRevoked reports whether the token id has been revoked. Redis
// outages fail open so a cache blip cannot lock everyone out.
func (d *Denylist) IsRevoked(ctx context.Context, jti string) bool {
	if d == nil || d.client == nil {
		return false
	}
	_, err := d.client.Get(ctx, denyKey(jti)).Result()
	return err == nil
}
