package store

import (
	"context"
	"sync"
	"time"

	"STORM_VISION/internal/models"
)

// MemoryStore — in-memory хранилище учётных записей.
// Используется в тестах и при запуске без базы данных.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int
	users  map[string]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		users:  make(map[string]*models.User),
	}
}

func (m *MemoryStore) Lookup(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, exists := m.users[username]
	if !exists {
		return nil, ErrNotFound
	}

	copied := *user
	return &copied, nil
}

// Insert сериализует конкурентные регистрации одним мьютексом,
// иначе два клиента могли бы занять одно имя.
func (m *MemoryStore) Insert(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.Username]; exists {
		return ErrDuplicate
	}

	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.nextID++

	copied := *user
	m.users[user.Username] = &copied
	return nil
}

// Проверка реализации интерфейса
var _ CredentialStore = (*MemoryStore)(nil)
