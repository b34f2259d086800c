package storage

import (
	"context"

	"github.com/gobarber/appointments/libs/db"
	"github.com/gobarber/appointments/services/appointment-service/internal/directory"
	"github.com/gobarber/appointments/services/appointment-service/internal/model"
)

// Users reads identities from the user service's tables.
type Users struct {
	pool *db.Pool
}

func NewUsers(pool *db.Pool) *Users {
	return &Users{pool: pool}
}

var _ directory.Directory = (*Users)(nil)

func (u *Users) Lookup(ctx context.Context, id int64) (model.User, error) {
	var out model.User
	err := u.pool.QueryRow(ctx, `
		SELECT u.id, u.name, u.email, u.provider, COALESCE(f.path, '')
		FROM users u
		LEFT JOIN files f ON f.id = u.avatar_id
		WHERE u.id = $1
	`, id).Scan(&out.ID, &out.Name, &out.Email, &out.Provider, &out.AvatarPath)
	if err != nil {
		if db.IsNotFound(err) {
			return model.User{}, directory.ErrUnknownUser
		}
		return model.User{}, err
	}
	return out, nil
}
