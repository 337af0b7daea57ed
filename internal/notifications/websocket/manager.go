// Package websocket streams committed market events to connected clients.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
	"carbon-scribe/credit-market/credit-market-backend/pkg/apperrors"
)

const (
	MessageTypeEvent     = "event"
	MessageTypeSubscribe = "subscribe"
	MessageTypeStatus    = "status"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Message is the envelope exchanged with clients
type Message struct {
	Type       string        `json:"type"`
	Event      *market.Event `json:"event,omitempty"`
	ProjectIDs []int64       `json:"project_ids,omitempty"`
	Status     string        `json:"status,omitempty"`
	Connection string        `json:"connection_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Connection is one websocket client. An empty project filter receives every event.
type Connection struct {
	ID           string
	Conn         *websocket.Conn
	Send         chan Message
	LastActivity time.Time
	RemoteAddr   string

	mu       sync.Mutex
	projects map[int64]bool
}

func (c *Connection) wants(projectID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.projects) == 0 || c.projects[projectID]
}

func (c *Connection) subscribe(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = make(map[int64]bool, len(ids))
	for _, id := range ids {
		c.projects[id] = true
	}
	c.LastActivity = time.Now()
}

// Manager tracks live connections and fans market events out to them
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// Handle upgrades GET /api/v1/ws. An optional project_id query narrows the feed.
func (m *Manager) Handle(c *gin.Context) {
	var filter []int64
	if raw := c.Query("project_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			apperrors.RespondInvalid(c, errors.New("invalid project_id"))
			return
		}
		filter = append(filter, id)
	}

	if _, err := m.HandleConnection(c.Writer, c.Request, filter); err != nil {
		m.logger.Warn("Websocket upgrade failed", zap.Error(err))
	}
}

// HandleConnection upgrades the request and starts the connection pumps
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, projectIDs []int64) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		Conn:         conn,
		Send:         make(chan Message, sendBuffer),
		LastActivity: time.Now(),
		RemoteAddr:   r.RemoteAddr,
	}
	connection.subscribe(projectIDs)

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	m.logger.Info("Websocket connected",
		zap.String("connection_id", connection.ID),
		zap.String("remote_addr", connection.RemoteAddr))

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// Publish delivers the event to every interested connection. A client whose
// buffer is full is dropped rather than blocking the engine.
func (m *Manager) Publish(_ context.Context, event market.Event) error {
	msg := Message{Type: MessageTypeEvent, Event: &event, Timestamp: time.Now()}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, conn := range m.connections {
		if !conn.wants(event.ProjectID) {
			continue
		}
		select {
		case conn.Send <- msg:
		default:
			m.logger.Warn("Websocket buffer full, dropping connection", zap.String("connection_id", id))
			m.removeLocked(conn)
		}
	}
	return nil
}

// ConnectionCount returns the number of live connections
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close disconnects every client
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.connections {
		m.removeLocked(conn)
	}
}

func (m *Manager) remove(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(conn)
}

// removeLocked closes Send exactly once; the write pump then closes the socket
func (m *Manager) removeLocked(conn *Connection) {
	if _, ok := m.connections[conn.ID]; !ok {
		return
	}
	delete(m.connections, conn.ID)
	close(conn.Send)
	m.logger.Info("Websocket disconnected", zap.String("connection_id", conn.ID))
}

func (m *Manager) readPump(conn *Connection) {
	defer func() {
		m.remove(conn)
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("Websocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		m.handleMessage(conn, msg)
	}
}

func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) handleMessage(conn *Connection, msg Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		conn.subscribe(msg.ProjectIDs)
		m.reply(conn, Message{
			Type:       MessageTypeStatus,
			Status:     "subscribed",
			Connection: conn.ID,
			ProjectIDs: msg.ProjectIDs,
			Timestamp:  time.Now(),
		})
	default:
		m.logger.Debug("Unknown websocket message", zap.String("type", msg.Type))
	}
}

func (m *Manager) reply(conn *Connection, msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[conn.ID]; !ok {
		return
	}
	select {
	case conn.Send <- msg:
	default:
		m.removeLocked(conn)
	}
}
