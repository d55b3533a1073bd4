package session

import (
	"sync"
	"time"

	"STORM_VISION/internal/models"
)

// Пороги по умолчанию совпадают с начальными положениями слайдеров UI.
const (
	DefaultConfidence = 0.25
	DefaultIOU        = 0.5
)

// Session — всё состояние одного клиента: аутентификация, выборы
// оператора, текущий батч загрузки и прогон конвейера.
type Session struct {
	// Mu сериализует триггеры внутри одной сессии: пока идёт
	// восстановление, следующий запрос этой сессии ждёт.
	Mu sync.Mutex

	ID        string
	CreatedAt time.Time

	Authenticated bool
	ActiveUser    string

	Thresholds   models.Thresholds
	Algorithm    models.Algorithm
	Task         models.Task
	Layout       models.Layout
	TargetFilter string

	Slots []models.UploadSlot
	Run   models.PipelineRun
}

// newSession возвращает сессию с валидными значениями всех полей:
// ни одно поле не читается раньше, чем получит значение по умолчанию.
func newSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Thresholds: models.Thresholds{
			Confidence: DefaultConfidence,
			IOU:        DefaultIOU,
		},
		Algorithm:    models.AlgorithmGeneric,
		Task:         models.TaskDetection,
		Layout:       models.LayoutSingle,
		TargetFilter: models.TargetFilterAll,
		Run:          models.NewRun(),
	}
}

// ResetBatch заменяет батч и сбрасывает прогон в начальное состояние.
// Результаты предыдущего батча не переживают новую загрузку.
func (s *Session) ResetBatch(slots []models.UploadSlot) {
	s.Slots = slots
	s.Run = models.NewRun()
}

// Store — in-memory хранилище сессий, ключ — session_id из cookie.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Get возвращает сессию по ID, создаёт новую если не найдена.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	sess, exists := st.sessions[id]
	st.mu.RUnlock()

	if exists {
		return sess
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, exists = st.sessions[id]; exists {
		return sess
	}

	sess = newSession(id)
	st.sessions[id] = sess
	return sess
}

// Drop удаляет сессию целиком (не используется при logout: выборы
// оператора переживают повторный вход намеренно).
func (st *Store) Drop(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len возвращает число живых сессий, для метрик.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
