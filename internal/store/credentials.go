package store

import (
	"context"
	"errors"

	"STORM_VISION/internal/models"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username already taken")
)

// CredentialStore — хранилище username -> учётная запись.
// Уникальность имени гарантирует реализация, а не вызывающий код.
type CredentialStore interface {
	// Lookup возвращает пользователя вместе с хэшем секрета.
	Lookup(ctx context.Context, username string) (*models.User, error)

	// Insert добавляет пользователя; ErrDuplicate при занятом имени.
	Insert(ctx context.Context, user *models.User) error
}
