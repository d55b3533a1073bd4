package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"STORM_VISION/internal/services"
)

type WebSocketMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type wsClient struct {
	conn     *websocket.Conn
	clientID string
	send     chan interface{}
}

// Hub раздаёт события конвейера подключённым WebSocket-клиентам.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	closed  bool
	metrics *services.Metrics
}

func NewHub(metrics *services.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]*wsClient),
		metrics: metrics,
	}
}

func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	log.Printf("WebSocket client connected: %s", clientID)

	client := &wsClient{
		conn:     conn,
		clientID: clientID,
		send:     make(chan interface{}, 256),
	}

	// Регистрируем клиента
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[clientID] = client
	h.mu.Unlock()
	h.metrics.IncrementWebSocketConnections()

	defer func() {
		// Удаляем клиента при отключении
		h.mu.Lock()
		delete(h.clients, clientID)
		h.mu.Unlock()
		h.metrics.DecrementWebSocketConnections()

		conn.Close()
		log.Printf("WebSocket client disconnected: %s", clientID)
	}()

	go h.writePump(client)

	h.deliver(client, WebSocketMessage{
		Type:      "WELCOME",
		ClientID:  clientID,
		Timestamp: time.Now().Unix(),
		Payload: map[string]interface{}{
			"message": "Connected to Storm Vision Server",
			"version": "1.0",
		},
	})

	h.readPump(client)
}

// deliver отправляет сообщение одному клиенту. Канал закрывает только
// CloseAll под полной блокировкой, поэтому под RLock отправка в канал
// зарегистрированного клиента безопасна.
func (h *Hub) deliver(client *wsClient, msg WebSocketMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client.clientID]; !ok {
		return
	}

	select {
	case client.send <- msg:
		h.metrics.IncrementWebSocketMessages()
	default:
		h.metrics.IncrementWebSocketErrors()
	}
}

// Broadcast рассылает событие всем подключённым клиентам.
func (h *Hub) Broadcast(msgType string, payload interface{}) {
	msg := WebSocketMessage{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- msg:
			h.metrics.IncrementWebSocketMessages()
		default:
			// Клиент не читает — его сообщение пропускаем
			h.metrics.IncrementWebSocketErrors()
		}
	}
}

// Цикл чтения из WebSocket
func (h *Hub) readPump(client *wsClient) {
	defer client.conn.Close()

	client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg WebSocketMessage
		err := client.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error for %s: %v", client.clientID, err)
			}
			return
		}

		switch msg.Type {
		case "PING":
			h.deliver(client, WebSocketMessage{
				Type:      "PONG",
				ClientID:  client.clientID,
				Timestamp: time.Now().Unix(),
			})
		default:
			log.Printf("Unknown message type: %s", msg.Type)
		}
	}
}

// Цикл отправки в WebSocket
func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(10 * time.Minute)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// CloseAll закрывает все соединения при остановке сервера. После
// вызова новые клиенты не регистрируются, а Broadcast и deliver
// видят пустую карту и в закрытые каналы не пишут.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for clientID, client := range h.clients {
		close(client.send)
		client.conn.Close()
		log.Printf("Closed connection for client: %s", clientID)
	}
	h.clients = make(map[string]*wsClient)
}
