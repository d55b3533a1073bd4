package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"STORM_VISION/internal/models"
	"STORM_VISION/internal/session"
	"STORM_VISION/internal/store"
)

func newGateWithUser(t *testing.T) (*Gate, *session.Session) {
	t.Helper()

	credStore := store.NewMemoryStore()
	gate := NewGate(credStore)

	_, err := gate.Register(context.Background(), "operator", "Secret1234", "Secret1234")
	require.NoError(t, err)

	return gate, session.NewStore().Get("test")
}

func TestAuthenticate_Success(t *testing.T) {
	gate, sess := newGateWithUser(t)

	err := gate.Authenticate(context.Background(), sess, "operator", "Secret1234")
	require.NoError(t, err)
	require.True(t, sess.Authenticated)
	require.Equal(t, "operator", sess.ActiveUser)
}

func TestAuthenticate_TrimsWhitespace(t *testing.T) {
	gate, sess := newGateWithUser(t)

	err := gate.Authenticate(context.Background(), sess, "  operator  ", " Secret1234 ")
	require.NoError(t, err)
	require.True(t, sess.Authenticated)
}

func TestRegister_TrimsSecretLikeAuthenticate(t *testing.T) {
	gate := NewGate(store.NewMemoryStore())
	ctx := context.Background()

	// Секрет с пробелами по краям хранится обрезанным, иначе вход
	// с тем же вводом был бы невозможен
	_, err := gate.Register(ctx, "operator", " Secret1234 ", " Secret1234 ")
	require.NoError(t, err)

	sess := session.NewStore().Get("test")
	require.NoError(t, gate.Authenticate(ctx, sess, "operator", " Secret1234 "))
	require.True(t, sess.Authenticated)

	gate.Deauthenticate(sess)
	require.NoError(t, gate.Authenticate(ctx, sess, "operator", "Secret1234"))
	require.True(t, sess.Authenticated)
}

func TestAuthenticate_EmptyInput(t *testing.T) {
	gate, sess := newGateWithUser(t)

	require.ErrorIs(t, gate.Authenticate(context.Background(), sess, "   ", "Secret1234"), ErrEmptyInput)
	require.ErrorIs(t, gate.Authenticate(context.Background(), sess, "operator", "  "), ErrEmptyInput)
	require.False(t, sess.Authenticated)
}

func TestAuthenticate_InvalidCredentials(t *testing.T) {
	gate, sess := newGateWithUser(t)

	require.ErrorIs(t, gate.Authenticate(context.Background(), sess, "operator", "WrongSecret1"), ErrInvalidCredentials)
	require.ErrorIs(t, gate.Authenticate(context.Background(), sess, "nobody", "Secret1234"), ErrInvalidCredentials)
	require.False(t, sess.Authenticated)
}

func TestDeauthenticate_PreservesSelections(t *testing.T) {
	gate, sess := newGateWithUser(t)
	require.NoError(t, gate.Authenticate(context.Background(), sess, "operator", "Secret1234"))

	sess.Thresholds = models.Thresholds{Confidence: 0.7, IOU: 0.4}
	sess.Layout = models.LayoutDual

	gate.Deauthenticate(sess)
	require.False(t, sess.Authenticated)
	require.Empty(t, sess.ActiveUser)

	// Выборы оператора переживают выход: быстрый повторный вход
	require.Equal(t, 0.7, sess.Thresholds.Confidence)
	require.Equal(t, models.LayoutDual, sess.Layout)

	require.NoError(t, gate.Authenticate(context.Background(), sess, "operator", "Secret1234"))
	require.True(t, sess.Authenticated)
	require.Equal(t, models.LayoutDual, sess.Layout)
}

func TestRegister_Validation(t *testing.T) {
	gate := NewGate(store.NewMemoryStore())
	ctx := context.Background()

	_, err := gate.Register(ctx, "ab", "Secret1234", "Secret1234")
	require.ErrorIs(t, err, ErrWeakUsername)

	_, err = gate.Register(ctx, "toolongusernameforthisfield", "Secret1234", "Secret1234")
	require.ErrorIs(t, err, ErrWeakUsername)

	_, err = gate.Register(ctx, "operator", "short", "short")
	require.ErrorIs(t, err, ErrWeakSecret)

	_, err = gate.Register(ctx, "operator", "Secret1234", "Different1")
	require.ErrorIs(t, err, ErrSecretMismatch)
}

func TestRegister_DuplicateUser(t *testing.T) {
	gate := NewGate(store.NewMemoryStore())
	ctx := context.Background()

	user, err := gate.Register(ctx, "operator", "Secret1234", "Secret1234")
	require.NoError(t, err)
	require.Equal(t, models.RoleUser, user.Role)
	require.NotEqual(t, "Secret1234", user.PasswordHash)

	_, err = gate.Register(ctx, "operator", "Another123", "Another123")
	require.ErrorIs(t, err, ErrDuplicateUser)
}

func TestSeedAdmin(t *testing.T) {
	credStore := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, SeedAdmin(ctx, credStore, "admin", "AdminSecret1"))

	user, err := credStore.Lookup(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, user.Role)

	// Повторный запуск не ломается о занятое имя
	require.NoError(t, SeedAdmin(ctx, credStore, "admin", "AdminSecret1"))

	// Без пароля администратор не создаётся
	require.NoError(t, SeedAdmin(ctx, credStore, "admin2", ""))
	_, err = credStore.Lookup(ctx, "admin2")
	require.ErrorIs(t, err, store.ErrNotFound)
}
