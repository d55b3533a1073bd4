package models

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Confirm  string `json:"confirm"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RestoreRequest struct {
	Algorithm Algorithm `json:"algorithm"`
}

type DownstreamRequest struct {
	Task       Task    `json:"task"`
	Confidence float64 `json:"confidence"`
	IOU        float64 `json:"iou"`
	Filter     string  `json:"filter,omitempty"`
}

// SettingsRequest — частичное обновление выборов сессии.
type SettingsRequest struct {
	Confidence *float64   `json:"confidence,omitempty"`
	IOU        *float64   `json:"iou,omitempty"`
	Algorithm  *Algorithm `json:"algorithm,omitempty"`
	Task       *Task      `json:"task,omitempty"`
	Layout     *Layout    `json:"layout,omitempty"`
	Filter     *string    `json:"filter,omitempty"`
}

// SlotStatus — сводка по слоту для ответов API.
type SlotStatus struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Decoded  bool   `json:"decoded"`
	Warning  string `json:"warning,omitempty"`
}

// Rejection — файл, отклонённый до декодирования.
type Rejection struct {
	Filename string `json:"filename"`
	Reason   string `json:"reason"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Timestamp int64  `json:"timestamp"`
	Code      string `json:"code,omitempty"`
}

// RunEvent уходит в WebSocket при смене стадии прогона.
type RunEvent struct {
	Stage     string         `json:"stage"`
	Algorithm Algorithm      `json:"algorithm,omitempty"`
	Task      Task           `json:"task,omitempty"`
	Warnings  map[int]string `json:"warnings,omitempty"`
	Stale     bool           `json:"stale,omitempty"`
}
