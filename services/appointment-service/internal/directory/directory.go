// Package directory resolves user ids to the identity the booking engine needs: whether the
// user is a provider, their display name, email and avatar.
package directory

import (
	"context"
	"errors"

	"github.com/gobarber/appointments/services/appointment-service/internal/model"
)

var ErrUnknownUser = errors.New("directory: unknown user")

type Directory interface {
	// Lookup returns the user or ErrUnknownUser.
	Lookup(ctx context.Context, id int64) (model.User, error)
}

// Static serves a fixed set of users; it backs local runs without a user database.
type Static map[int64]model.User

func (s Static) Lookup(_ context.Context, id int64) (model.User, error) {
	u, ok := s[id]
	if !ok {
		return model.User{}, ErrUnknownUser
	}
	return u, nil
}

type freshKey struct{}

// WithFresh marks lookups made with ctx as authoritative: caches must consult their backend
// instead of serving a stored entry.
func WithFresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

// IsFresh reports whether ctx was marked by WithFresh.
func IsFresh(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshKey{}).(bool)
	return fresh
}
