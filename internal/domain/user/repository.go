package user

import (
	"context"
)

// Repository defines the operations for persisting and retrieving User entities.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	Update(ctx context.Context, u *User) error // Username, Timezone, IsActive
	Delete(ctx context.Context, id int64) error // Removes the user and everything owned by them
	Stats(ctx context.Context) (Stats, error)
}
