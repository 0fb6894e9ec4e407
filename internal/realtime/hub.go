// Package realtime реализует push-канал поверх websocket: соединения
// объединяются в комнаты пользователя и арендатора, события рассылаются
// в конверте {"event": ..., "data": ...}.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/magabrotheeeer/schoolhub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/metrics"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	maxReadBytes = 4096
)

// TokenValidator проверяет токен подключения.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Identity, error)
}

// Envelope формат сообщения клиенту.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// UserRoom имя комнаты пользователя.
func UserRoom(userID string) string { return "user:" + userID }

// TenantRoom имя комнаты арендатора.
func TenantRoom(tenantID string) string { return "tenant:" + tenantID }

type conn struct {
	ws    *websocket.Conn
	mu    sync.Mutex
	rooms []string
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Hub хранит подключения по комнатам.
type Hub struct {
	log       *slog.Logger
	validator TokenValidator
	upgrader  websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*conn]struct{}
}

// NewHub создаёт хаб. Пустой список или "*" в allowedOrigins разрешает любой Origin.
func NewHub(log *slog.Logger, validator TokenValidator, allowedOrigins []string) *Hub {
	return &Hub{
		log:       log,
		validator: validator,
		upgrader:  makeUpgrader(allowedOrigins),
		rooms:     make(map[string]map[*conn]struct{}),
	}
}

func makeUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*")
	originSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return originSet[origin]
		},
	}
}

// ServeHTTP принимает подключение GET /ws?token=JWT.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "realtime.ServeHTTP"
	log := h.log.With(slog.String("op", op))

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	identity, err := h.validator.ValidateToken(r.Context(), token)
	if err != nil {
		log.Debug("websocket token rejected", sl.Err(err))
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}

	c := &conn{ws: ws, rooms: []string{UserRoom(identity.UserID)}}
	if identity.TenantID != "" {
		c.rooms = append(c.rooms, TenantRoom(identity.TenantID))
	}
	h.join(c)
	metrics.WebsocketConnections.Inc()
	log.Info("websocket connected", slog.String("user_id", identity.UserID))

	stop := h.keepalive(c)
	defer func() {
		stop()
		h.leave(c)
		metrics.WebsocketConnections.Dec()
		_ = ws.Close()
		log.Info("websocket disconnected", slog.String("user_id", identity.UserID))
	}()

	ws.SetReadLimit(maxReadBytes)
	for {
		// клиент ничего не присылает, чтение нужно для обработки pong и close
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (h *Hub) keepalive(c *conn) (cancel func()) {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.mu.Lock()
				err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.mu.Unlock()
				if err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

func (h *Hub) join(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*conn]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
}

func (h *Hub) leave(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range c.rooms {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Emit отправляет событие всем подключениям комнаты и возвращает число доставок.
func (h *Hub) Emit(room, event string, data any) int {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.log.Error("failed to marshal push event", slog.String("event", event), sl.Err(err))
		return 0
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.write(payload); err != nil {
			h.log.Debug("push write failed", slog.String("room", room), sl.Err(err))
			_ = c.ws.Close()
			continue
		}
		sent++
	}
	if sent > 0 {
		metrics.NotificationsSent.WithLabelValues("push", event).Add(float64(sent))
	}
	return sent
}

// Deliver рассылает событие в комнаты его адресатов.
func (h *Hub) Deliver(ev models.PushEvent) int {
	sent := 0
	if ev.UserID != "" {
		sent += h.Emit(UserRoom(ev.UserID), ev.Event, ev.Data)
	}
	if ev.TenantID != "" {
		sent += h.Emit(TenantRoom(ev.TenantID), ev.Event, ev.Data)
	}
	return sent
}

// HandleMessage обработчик очереди push: разбирает models.PushEvent и доставляет его.
// Некорректное сообщение отбрасывается без повторной доставки.
func (h *Hub) HandleMessage(_ context.Context, body []byte) error {
	var ev models.PushEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("realtime.HandleMessage: %w: %v", rabbitmq.ErrPermanent, err)
	}
	if ev.Event == "" || (ev.UserID == "" && ev.TenantID == "") {
		return fmt.Errorf("realtime.HandleMessage: %w: event without target", rabbitmq.ErrPermanent)
	}
	h.Deliver(ev)
	return nil
}

// Connections возвращает число подключений в комнате.
func (h *Hub) Connections(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
