package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"STORM_VISION/internal/auth"
	"STORM_VISION/internal/ingest"
	"STORM_VISION/internal/models"
	"STORM_VISION/internal/pipeline"
	"STORM_VISION/internal/render"
	"STORM_VISION/internal/services"
	"STORM_VISION/internal/session"
)

const sessionCookie = "session_id"

// multipart-форма держит в памяти до 64 МБ, остальное уходит на диск
const multipartMemory = 64 << 20

type Handler struct {
	gate     *auth.Gate
	sessions *session.Store
	ingestor *ingest.Ingestor
	orch     *pipeline.Orchestrator
	metrics  *services.Metrics
	hub      *Hub

	maxUploadFiles int
	corsOrigin     string
	modelHealth    func() error
	started        time.Time
}

type Options struct {
	Gate           *auth.Gate
	Sessions       *session.Store
	Ingestor       *ingest.Ingestor
	Orchestrator   *pipeline.Orchestrator
	Metrics        *services.Metrics
	Hub            *Hub
	MaxUploadFiles int
	CORSOrigin     string
	// ModelHealth nil означает работу на заглушке моделей.
	ModelHealth func() error
}

func NewHandler(opts Options) *Handler {
	return &Handler{
		gate:           opts.Gate,
		sessions:       opts.Sessions,
		ingestor:       opts.Ingestor,
		orch:           opts.Orchestrator,
		metrics:        opts.Metrics,
		hub:            opts.Hub,
		maxUploadFiles: opts.MaxUploadFiles,
		corsOrigin:     opts.CORSOrigin,
		modelHealth:    opts.ModelHealth,
		started:        time.Now(),
	}
}

// Routes вешает все эндпоинты на mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", h.Register)
	mux.HandleFunc("/api/auth/login", h.Login)
	mux.HandleFunc("/api/auth/logout", h.Logout)
	mux.HandleFunc("/api/auth/me", h.Me)

	mux.HandleFunc("/api/upload", h.Upload)
	mux.HandleFunc("/api/restore", h.Restore)
	mux.HandleFunc("/api/downstream", h.Downstream)
	mux.HandleFunc("/api/render", h.Render)
	mux.HandleFunc("/api/settings", h.Settings)

	mux.HandleFunc("/api/health", h.Health)
	mux.HandleFunc("/api/metrics", h.Metrics)

	mux.HandleFunc("/ws", h.hub.HandleWS)
}

// CORS — middleware с заголовками для браузерного фронтенда.
func (h *Handler) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.corsOrigin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cookie")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// sessionFor достаёт сессию по cookie, при первом визите заводит новую.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return h.sessions.Get(cookie.Value)
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return h.sessions.Get(id)
}

// requireAuth отдаёт 401, пока клиент не вошёл.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess := h.sessionFor(w, r)
	if !sess.Authenticated {
		respondError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return sess, true
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.gate.Register(r.Context(), req.Username, req.Password, req.Confirm)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrDuplicateUser):
		respondError(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, auth.ErrWeakUsername), errors.Is(err, auth.ErrWeakSecret), errors.Is(err, auth.ErrSecretMismatch):
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	default:
		log.Printf("Registration failed: %v", err)
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, user, http.StatusCreated)
	log.Printf("User registered: %s", user.Username)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	sess := h.sessionFor(w, r)
	err := h.gate.Authenticate(r.Context(), sess, req.Username, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrEmptyInput):
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, err.Error(), http.StatusUnauthorized)
		return
	default:
		log.Printf("Login error: %v", err)
		respondError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"username":      sess.ActiveUser,
		"authenticated": true,
	}, http.StatusOK)
	log.Printf("User logged in: %s", sess.ActiveUser)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.sessionFor(w, r)
	user := sess.ActiveUser
	h.gate.Deauthenticate(sess)

	respondJSON(w, map[string]interface{}{"authenticated": false}, http.StatusOK)
	if user != "" {
		log.Printf("User logged out: %s", user)
	}
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := h.sessionFor(w, r)
	respondJSON(w, map[string]interface{}{
		"authenticated": sess.Authenticated,
		"username":      sess.ActiveUser,
		"thresholds":    sess.Thresholds,
		"algorithm":     sess.Algorithm,
		"task":          sess.Task,
		"layout":        sess.Layout,
		"filter":        sess.TargetFilter,
	}, http.StatusOK)
}

// Upload принимает батч файлов и заменяет им текущий. Прогон конвейера
// при этом всегда возвращается в начальное состояние.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		respondError(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) > h.maxUploadFiles {
		respondError(w, "Too many files in batch", http.StatusBadRequest)
		return
	}

	batch := make([]ingest.Blob, 0, len(files))
	for _, header := range files {
		file, err := header.Open()
		if err != nil {
			respondError(w, "Failed to read file", http.StatusInternalServerError)
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			respondError(w, "Failed to read file", http.StatusInternalServerError)
			return
		}
		batch = append(batch, ingest.Blob{Filename: header.Filename, Data: data})
	}

	slots, rejected := h.ingestor.Ingest(batch)

	sess.Mu.Lock()
	sess.ResetBatch(slots)
	sess.Mu.Unlock()

	h.metrics.IncrementBatches()
	h.hub.Broadcast("BATCH", models.RunEvent{Stage: models.StageIdle.String()})

	respondJSON(w, map[string]interface{}{
		"slots":    slotStatuses(slots, nil),
		"rejected": rejected,
	}, http.StatusOK)
	log.Printf("Batch ingested: %d slots, %d rejected", len(slots), len(rejected))
}

func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req models.RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = sess.Algorithm
	}
	if !algorithm.Valid() {
		respondError(w, "Unknown restoration algorithm", http.StatusBadRequest)
		return
	}

	start := time.Now()

	sess.Mu.Lock()
	sess.Algorithm = algorithm
	err := h.orch.RestoreTrigger(r.Context(), &sess.Run, sess.Slots, sess.Layout, algorithm)
	event := models.RunEvent{
		Stage:     sess.Run.Stage.String(),
		Algorithm: algorithm,
		Warnings:  sess.Run.Warnings,
		Stale:     sess.Run.DownstreamStale,
	}
	statuses := slotStatuses(sess.Slots, sess.Run.Warnings)
	sess.Mu.Unlock()

	if err != nil {
		h.metrics.IncrementErrors()
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.metrics.IncrementRestored()
	h.metrics.RecordLatency(time.Since(start))
	h.hub.Broadcast("RESTORED", event)

	respondJSON(w, map[string]interface{}{
		"stage":     event.Stage,
		"algorithm": algorithm,
		"slots":     statuses,
		"stale":     event.Stale,
	}, http.StatusOK)
	log.Printf("Restoration done in %v, algorithm=%s", time.Since(start), algorithm)
}

func (h *Handler) Downstream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req models.DownstreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	task := req.Task
	if task == "" {
		task = sess.Task
	}
	if !task.Valid() {
		respondError(w, "Unknown downstream task", http.StatusBadRequest)
		return
	}

	thresholds := models.Thresholds{Confidence: req.Confidence, IOU: req.IOU}
	if !thresholds.Valid() {
		respondError(w, "Thresholds must be within [0,1]", http.StatusBadRequest)
		return
	}

	start := time.Now()

	sess.Mu.Lock()
	sess.Task = task
	sess.Thresholds = thresholds
	if req.Filter != "" {
		sess.TargetFilter = req.Filter
	}
	err := h.orch.DownstreamTrigger(r.Context(), &sess.Run, task, thresholds)
	event := models.RunEvent{
		Stage:    sess.Run.Stage.String(),
		Task:     task,
		Warnings: sess.Run.Warnings,
	}
	statuses := slotStatuses(sess.Slots, sess.Run.Warnings)
	sess.Mu.Unlock()

	if err != nil {
		h.metrics.IncrementErrors()
		respondError(w, err.Error(), http.StatusConflict)
		return
	}

	h.metrics.IncrementDetected()
	h.metrics.RecordLatency(time.Since(start))
	h.hub.Broadcast("DOWNSTREAM", event)

	respondJSON(w, map[string]interface{}{
		"stage": event.Stage,
		"task":  task,
		"slots": statuses,
	}, http.StatusOK)
	log.Printf("Downstream task done in %v, task=%s", time.Since(start), task)
}

func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	sess.Mu.Lock()
	defer sess.Mu.Unlock()

	if layout := models.Layout(r.URL.Query().Get("layout")); layout != "" {
		if !layout.Valid() {
			respondError(w, "Unknown layout", http.StatusBadRequest)
			return
		}
		sess.Layout = layout
	}

	respondJSON(w, render.Project(sess), http.StatusOK)
}

func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req models.SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	sess.Mu.Lock()
	defer sess.Mu.Unlock()

	if req.Confidence != nil {
		sess.Thresholds.Confidence = *req.Confidence
	}
	if req.IOU != nil {
		sess.Thresholds.IOU = *req.IOU
	}
	if !sess.Thresholds.Valid() {
		respondError(w, "Thresholds must be within [0,1]", http.StatusBadRequest)
		return
	}
	if req.Algorithm != nil {
		if !req.Algorithm.Valid() {
			respondError(w, "Unknown restoration algorithm", http.StatusBadRequest)
			return
		}
		sess.Algorithm = *req.Algorithm
	}
	if req.Task != nil {
		if !req.Task.Valid() {
			respondError(w, "Unknown downstream task", http.StatusBadRequest)
			return
		}
		sess.Task = *req.Task
	}
	if req.Layout != nil {
		if !req.Layout.Valid() {
			respondError(w, "Unknown layout", http.StatusBadRequest)
			return
		}
		sess.Layout = *req.Layout
	}
	if req.Filter != nil {
		sess.TargetFilter = *req.Filter
	}

	respondJSON(w, map[string]interface{}{
		"thresholds": sess.Thresholds,
		"algorithm":  sess.Algorithm,
		"task":       sess.Task,
		"layout":     sess.Layout,
		"filter":     sess.TargetFilter,
	}, http.StatusOK)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	modelStatus := "stub"
	if h.modelHealth != nil {
		if err := h.modelHealth(); err != nil {
			modelStatus = "unavailable"
		} else {
			modelStatus = "running"
		}
	}

	respondJSON(w, map[string]interface{}{
		"status":          "healthy",
		"model_service":   modelStatus,
		"active_sessions": h.sessions.Len(),
		"uptime_sec":      int(time.Since(h.started).Seconds()),
		"timestamp":       time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	respondJSON(w, map[string]interface{}{
		"total_batches":   h.metrics.GetTotalBatches(),
		"total_restored":  h.metrics.GetTotalRestored(),
		"total_detected":  h.metrics.GetTotalDetected(),
		"total_errors":    h.metrics.GetTotalErrors(),
		"avg_latency_ms":  h.metrics.GetAvgLatency(),
		"active_sessions": h.sessions.Len(),
		"websocket":       h.metrics.GetWebSocketMetrics(),
		"timestamp":       time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

func slotStatuses(slots []models.UploadSlot, warnings map[int]string) []models.SlotStatus {
	statuses := make([]models.SlotStatus, 0, len(slots))
	for i := range slots {
		slot := &slots[i]
		status := models.SlotStatus{
			Index:    slot.Index,
			Filename: slot.Filename,
			Width:    slot.Width,
			Height:   slot.Height,
			Decoded:  slot.Decodable(),
			Warning:  slot.DecodeErr,
		}
		if warn, ok := warnings[slot.Index]; ok {
			status.Warning = warn
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func respondJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, models.ErrorResponse{
		Error:     message,
		Timestamp: time.Now().Unix(),
	}, status)
}
