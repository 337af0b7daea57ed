package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
)

func newTestFeed(t *testing.T) (*Manager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := NewManager(nil)
	router := gin.New()
	router.GET("/ws", m.Handle)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		m.Close()
		srv.Close()
	})
	return m, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func subscribe(t *testing.T, conn *websocket.Conn, ids ...int64) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypeSubscribe, ProjectIDs: ids}))

	var status Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&status))
	require.Equal(t, MessageTypeStatus, status.Type)
	require.Equal(t, "subscribed", status.Status)
}

func testEvent(projectID int64, seq uint64) market.Event {
	return market.Event{
		ID:         uuid.New(),
		Sequence:   seq,
		Type:       market.EventPurchase,
		ProjectID:  projectID,
		CompanyID:  "0xcompany",
		Buyer:      "0xbuyer",
		Amount:     1,
		Value:      decimal.NewFromInt(1),
		OccurredAt: time.Now(),
	}
}

func TestPublishDeliversEvents(t *testing.T) {
	m, url := newTestFeed(t)
	conn := dial(t, url)
	subscribe(t, conn)

	var _ market.Publisher = m
	require.NoError(t, m.Publish(context.Background(), testEvent(3, 7)))

	var msg Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeEvent, msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, uint64(7), msg.Event.Sequence)
	assert.Equal(t, int64(3), msg.Event.ProjectID)
	assert.Equal(t, 1, m.ConnectionCount())
}

func TestPublishFiltersByProject(t *testing.T) {
	m, url := newTestFeed(t)
	conn := dial(t, url)
	subscribe(t, conn, 2)

	require.NoError(t, m.Publish(context.Background(), testEvent(1, 1)))
	require.NoError(t, m.Publish(context.Background(), testEvent(2, 2)))

	var msg Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	require.NotNil(t, msg.Event)
	assert.Equal(t, uint64(2), msg.Event.Sequence, "event for project 1 must be filtered out")
}

func TestPublishWithoutClients(t *testing.T) {
	m := NewManager(nil)
	assert.NoError(t, m.Publish(context.Background(), testEvent(0, 1)))
	assert.Zero(t, m.ConnectionCount())
}

func TestHandleRejectsBadProjectFilter(t *testing.T) {
	_, url := newTestFeed(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?project_id=abc", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
