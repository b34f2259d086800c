package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gobarber/appointments/services/appointment-service/internal/model"
	"github.com/redis/go-redis/v9"
)

// Cached is a read-through Redis cache in front of another Directory. Unknown users and
// Redis failures are never cached; a Redis outage degrades to direct lookups. Lookups under
// WithFresh skip the stored entry and overwrite it with the backend's answer.
type Cached struct {
	next   Directory
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCached(next Directory, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, prefix: "directory:user:", logger: logger}
}

type cachedUser struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Provider   bool   `json:"provider"`
	AvatarPath string `json:"avatar_path"`
}

func (c *Cached) Lookup(ctx context.Context, id int64) (model.User, error) {
	key := c.prefix + strconv.FormatInt(id, 10)

	if IsFresh(ctx) {
		return c.load(ctx, key, id)
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cu cachedUser
		if err := json.Unmarshal(raw, &cu); err == nil {
			return model.User(cu), nil
		}
		c.logger.Warn("dropping corrupt directory cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("directory cache read failed", "err", err)
	}

	return c.load(ctx, key, id)
}

func (c *Cached) load(ctx context.Context, key string, id int64) (model.User, error) {
	u, err := c.next.Lookup(ctx, id)
	if err != nil {
		return model.User{}, err
	}
	if raw, err := json.Marshal(cachedUser(u)); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("directory cache write failed", "err", err)
		}
	}
	return u, nil
}
