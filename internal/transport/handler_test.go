package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/RoseWrightdev/board-game-relay/internal/config"
	"github.com/RoseWrightdev/board-game-relay/internal/relay"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeGame_InvalidGameID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewHandler(relay.NewDirectory(&config.Config{ReplayBufferSize: 500, MaxClientsPerHub: 64}), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/g/bad", nil)
	c.Params = gin.Params{{Key: "gameId", Value: "#bad"}}

	h.ServeGame(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func newTestServer(t *testing.T, cfg *config.Config) (*httptest.Server, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := relay.NewDirectory(cfg)
	t.Cleanup(dir.Shutdown)
	h := NewHandler(dir, nil)

	router := gin.New()
	router.GET("/g/:gameId", h.ServeGame)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/g/aa-bb"
	return srv, wsURL
}

func readEnvelope(t *testing.T, conn *websocket.Conn) relay.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env relay.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestServeGame_WelcomeAndCookie(t *testing.T) {
	_, wsURL := newTestServer(t, &config.Config{ReplayBufferSize: 500, MaxClientsPerHub: 64})

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var foundCookie bool
	for _, c := range resp.Cookies() {
		if c.Name == "clientID" && c.Value != "" {
			foundCookie = true
		}
	}
	assert.True(t, foundCookie, "expected a clientID cookie on the upgrade response")

	welcome := readEnvelope(t, conn)
	assert.Equal(t, relay.IntentWelcome, welcome.Intent)
	assert.Equal(t, uint64(0), welcome.Num)
}

func TestServeGame_TwoClientEcho(t *testing.T) {
	_, wsURL := newTestServer(t, &config.Config{ReplayBufferSize: 500, MaxClientsPerHub: 64})

	aConn, _, err := websocket.DefaultDialer.Dial(wsURL+"?id=alice", nil)
	require.NoError(t, err)
	defer aConn.Close()
	aWelcome := readEnvelope(t, aConn)
	assert.Equal(t, relay.IntentWelcome, aWelcome.Intent)

	bConn, _, err := websocket.DefaultDialer.Dial(wsURL+"?id=bob", nil)
	require.NoError(t, err)
	defer bConn.Close()

	aJoiner := readEnvelope(t, aConn)
	assert.Equal(t, relay.IntentJoiner, aJoiner.Intent)
	assert.Equal(t, []string{"bob"}, aJoiner.From)

	bWelcome := readEnvelope(t, bConn)
	assert.Equal(t, relay.IntentWelcome, bWelcome.Intent)
	assert.Equal(t, []string{"alice"}, bWelcome.From)

	require.NoError(t, aConn.WriteMessage(websocket.TextMessage, []byte("hi")))

	aReceipt := readEnvelope(t, aConn)
	assert.Equal(t, relay.IntentReceipt, aReceipt.Intent)
	assert.Equal(t, "hi", string(aReceipt.Body))

	bPeer := readEnvelope(t, bConn)
	assert.Equal(t, relay.IntentPeer, bPeer.Intent)
	assert.Equal(t, "hi", string(bPeer.Body))
	assert.Equal(t, aReceipt.Num, bPeer.Num)
}

func TestServeGame_StaleLastNumCloses(t *testing.T) {
	_, wsURL := newTestServer(t, &config.Config{ReplayBufferSize: 1, MaxClientsPerHub: 64})

	aConn, _, err := websocket.DefaultDialer.Dial(wsURL+"?id=alice", nil)
	require.NoError(t, err)
	defer aConn.Close()
	_ = readEnvelope(t, aConn) // Welcome, Num 0

	for i := 0; i < 5; i++ {
		require.NoError(t, aConn.WriteMessage(websocket.TextMessage, []byte("x")))
		_ = readEnvelope(t, aConn) // Receipt
	}

	bConn, _, err := websocket.DefaultDialer.Dial(wsURL+"?id=bob&lastnum=0", nil)
	require.NoError(t, err)
	defer bConn.Close()

	bConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = bConn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close error, got %v", err)
	assert.Equal(t, 4000, closeErr.Code)
	assert.Contains(t, closeErr.Text, "lastnum")
}
