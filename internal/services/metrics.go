package services

import (
	"sync"
	"sync/atomic"
	"time"
)

type Metrics struct {
	totalBatches  atomic.Int64
	totalRestored atomic.Int64
	totalDetected atomic.Int64
	totalErrors   atomic.Int64
	totalLatency  atomic.Int64
	lastRunTime   atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

func NewMetrics() *Metrics {
	return &Metrics{}
}

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = NewMetrics()
	})
	return metricsInstance
}

func (m *Metrics) IncrementBatches() {
	m.totalBatches.Add(1)
}

func (m *Metrics) IncrementRestored() {
	m.totalRestored.Add(1)
	m.lastRunTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementDetected() {
	m.totalDetected.Add(1)
	m.lastRunTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementErrors() {
	m.totalErrors.Add(1)
}

func (m *Metrics) RecordLatency(duration time.Duration) {
	m.totalLatency.Add(duration.Milliseconds())
}

func (m *Metrics) GetTotalBatches() int64 {
	return m.totalBatches.Load()
}

func (m *Metrics) GetTotalRestored() int64 {
	return m.totalRestored.Load()
}

func (m *Metrics) GetTotalDetected() int64 {
	return m.totalDetected.Load()
}

func (m *Metrics) GetTotalErrors() int64 {
	return m.totalErrors.Load()
}

// GetAvgLatency — средняя длительность триггера в миллисекундах.
func (m *Metrics) GetAvgLatency() float64 {
	runs := m.totalRestored.Load() + m.totalDetected.Load()
	if runs == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(runs)
}

func (m *Metrics) GetLastRunTime() int64 {
	return m.lastRunTime.Load()
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

// DecrementWebSocketConnections decrements WebSocket connection count
func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

// GetWebSocketConnections returns current WebSocket connections
func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

// IncrementWebSocketMessages increments WebSocket message count
func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

// IncrementWebSocketErrors increments WebSocket error count
func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

// GetWebSocketMetrics returns WebSocket-specific metrics
func (m *Metrics) GetWebSocketMetrics() map[string]interface{} {
	return map[string]interface{}{
		"connections": m.wsConnections.Load(),
		"messages":    m.wsMessages.Load(),
		"errors":      m.wsErrors.Load(),
	}
}
