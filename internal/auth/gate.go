package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"STORM_VISION/internal/models"
	"STORM_VISION/internal/session"
	"STORM_VISION/internal/store"
)

var (
	ErrEmptyInput         = errors.New("username and password are required")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakUsername       = errors.New("username must be 3-20 characters")
	ErrWeakSecret         = errors.New("password is too short")
	ErrSecretMismatch     = errors.New("passwords do not match")
	ErrDuplicateUser      = errors.New("username already taken")
)

const (
	minUsernameLen = 3
	maxUsernameLen = 20
	minPasswordLen = 8
	// bcrypt не принимает секреты длиннее 72 байт
	maxPasswordLen = 72
)

// Gate — состояние входа/выхода поверх хранилища учётных записей.
// Единственные переходы: LOGGED_OUT -> LOGGED_IN -> LOGGED_OUT.
type Gate struct {
	store store.CredentialStore
}

func NewGate(credStore store.CredentialStore) *Gate {
	return &Gate{store: credStore}
}

// Authenticate сверяет секрет и помечает сессию как вошедшую.
// Оба поля обрезаются по краям до сравнения.
func (g *Gate) Authenticate(ctx context.Context, sess *session.Session, username, secret string) error {
	username = strings.TrimSpace(username)
	secret = strings.TrimSpace(secret)

	if username == "" || secret == "" {
		return ErrEmptyInput
	}

	user, err := g.store.Lookup(ctx, username)
	if err == store.ErrNotFound {
		return ErrInvalidCredentials
	} else if err != nil {
		return fmt.Errorf("credential lookup: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(secret)) != nil {
		return ErrInvalidCredentials
	}

	sess.Authenticated = true
	sess.ActiveUser = user.Username
	return nil
}

// Deauthenticate сбрасывает только поля аутентификации. Пороги,
// раскладка и остальные выборы остаются: быстрый повторный вход.
func (g *Gate) Deauthenticate(sess *session.Session) {
	sess.Authenticated = false
	sess.ActiveUser = ""
}

// Register валидирует данные и добавляет пользователя с ролью user.
// Секрет обрезается по краям так же, как в Authenticate, иначе запись
// с пробельным секретом навсегда останется невходимой.
func (g *Gate) Register(ctx context.Context, username, secret, confirm string) (*models.User, error) {
	username = strings.TrimSpace(username)
	secret = strings.TrimSpace(secret)
	confirm = strings.TrimSpace(confirm)

	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		return nil, ErrWeakUsername
	}
	if len(secret) < minPasswordLen || len(secret) > maxPasswordLen {
		return nil, ErrWeakSecret
	}
	if secret != confirm {
		return nil, ErrSecretMismatch
	}

	hash, err := HashSecret(secret)
	if err != nil {
		return nil, fmt.Errorf("hash secret: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}

	if err := g.store.Insert(ctx, user); err != nil {
		if err == store.ErrDuplicate {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return user, nil
}

// HashSecret — единственная схема хэширования секретов в хранилище.
// bcrypt несёт идентификатор алгоритма и соль в самом хэше, поэтому
// записи остаются проверяемыми при смене стоимости.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SeedAdmin создаёт административную запись, если имя свободно.
func SeedAdmin(ctx context.Context, credStore store.CredentialStore, username, secret string) error {
	if secret == "" {
		return nil
	}

	hash, err := HashSecret(secret)
	if err != nil {
		return err
	}

	err = credStore.Insert(ctx, &models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	})
	if err == store.ErrDuplicate {
		return nil
	}
	return err
}
