package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/nothanks/internal/arena"
	"github.com/lox/nothanks/internal/randutil"
	"github.com/lox/nothanks/internal/room"
	"github.com/lox/nothanks/protocol"
)

type testServer struct {
	*Server
	http  *httptest.Server
	clock *quartz.Mock
}

func newTestServer(t *testing.T, staticDir string) *testServer {
	t.Helper()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	clock := quartz.NewMock(t)
	a := arena.New(logger, randutil.New(11), arena.Config{
		TurnTimeout: arena.DefaultTurnTimeout,
		Clock:       clock,
	})
	rooms := room.NewDirectory(logger, randutil.New(12), clock)
	s := New(logger, a, rooms, staticDir)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		hs.Close()
	})
	return &testServer{Server: s, http: hs, clock: clock}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	seq  int
}

func (ts *testServer) dial(t *testing.T, path string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(typ protocol.Type, data any) string {
	c.t.Helper()
	msg, err := protocol.NewMessage(typ, data)
	require.NoError(c.t, err)
	c.seq++
	msg.RequestID = fmt.Sprintf("req-%d", c.seq)
	require.NoError(c.t, c.conn.WriteJSON(msg))
	return msg.RequestID
}

func (c *wsClient) read() (*protocol.Message, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// expect reads until a message of type typ arrives and decodes it into v.
func (c *wsClient) expect(typ protocol.Type, v any) *protocol.Message {
	c.t.Helper()
	for {
		msg, err := c.read()
		require.NoError(c.t, err, "waiting for %s", typ)
		if msg.Type != typ {
			continue
		}
		if v != nil {
			require.NoError(c.t, msg.Decode(v))
		}
		return msg
	}
}

func (c *wsClient) register(name string) protocol.RegisterAck {
	c.t.Helper()
	id := c.send(protocol.TypeRegisterBot, protocol.RegisterBot{Name: name})
	var ack protocol.RegisterAck
	msg := c.expect(protocol.TypeAck, &ack)
	assert.Equal(c.t, id, msg.RequestID)
	return ack
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")
	resp, err := http.Get(ts.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestRatingsEmpty(t *testing.T) {
	ts := newTestServer(t, "")
	resp, err := http.Get(ts.http.URL + "/api/bots/ratings")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `[]`, string(body))
}

func TestBotsPageNeedsStaticDir(t *testing.T) {
	ts := newTestServer(t, "")
	resp, err := http.Get(ts.http.URL + "/bots")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStaticPages(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("rooms"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bots.html"), []byte("arena"), 0o600))
	ts := newTestServer(t, dir)

	get := func(path string) string {
		resp, err := http.Get(ts.http.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}
	assert.Equal(t, "rooms", get("/"))
	assert.Equal(t, "rooms", get("/room/table-1"))
	assert.Equal(t, "arena", get("/bots"))
}

func TestBotsRegisterAndPlay(t *testing.T) {
	ts := newTestServer(t, "")

	clients := make([]*wsClient, 3)
	ids := make(map[string]*wsClient)
	for i := range clients {
		c := ts.dial(t, "/bots")
		ack := c.register(fmt.Sprintf("bot-%d", i))
		require.True(t, ack.OK, ack.Error)
		assert.Equal(t, 1200, ack.Rating)
		require.NotNil(t, ack.Stats)

		var reg protocol.Registered
		c.expect(protocol.TypeRegistered, &reg)
		assert.Equal(t, ack.BotID, reg.BotID)

		clients[i] = c
		ids[ack.BotID] = c
	}

	var started protocol.MatchState
	for _, c := range clients {
		c.expect(protocol.TypeMatchStarted, &started)
	}
	require.Len(t, started.Players, 3)

	var mover *wsClient
	var view protocol.BotView
	for _, p := range started.Players {
		if p.IsTurn {
			mover = ids[p.BotID]
		}
	}
	require.NotNil(t, mover, "someone holds the turn")
	mover.expect(protocol.TypeTurn, &view)
	require.NotNil(t, view.CurrentCard)
	assert.Equal(t, started.MatchID, view.MatchID)
	assert.Equal(t, int64(5000), view.TimeoutMs)

	mover.send(protocol.TypeBotAction, protocol.BotAction{MatchID: view.MatchID, Action: "take"})
	var update protocol.MatchState
	mover.expect(protocol.TypeMatchUpdate, &update)
	assert.Equal(t, 22, update.DeckCount)

	resp, err := http.Get(ts.http.URL + "/api/bots/ratings")
	require.NoError(t, err)
	defer resp.Body.Close()
	var board []protocol.LeaderboardEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&board))
	assert.Len(t, board, 3)
}

func TestBotActionRejectedOutOfTurn(t *testing.T) {
	ts := newTestServer(t, "")
	c := ts.dial(t, "/bots")
	require.True(t, c.register("solo").OK)

	c.send(protocol.TypeBotAction, protocol.BotAction{Action: "take"})
	var e protocol.Error
	c.expect(protocol.TypeError, &e)
	assert.Equal(t, protocol.CodeRejected, e.Code)
	assert.Equal(t, arena.ErrNotInMatch.Error(), e.Message)
}

func TestBotMustRegisterFirst(t *testing.T) {
	ts := newTestServer(t, "")
	c := ts.dial(t, "/bots")

	c.send(protocol.TypeEnqueue, nil)
	var e protocol.Error
	c.expect(protocol.TypeError, &e)
	assert.Equal(t, protocol.CodeNotJoined, e.Code)
}

func TestRegistrationFailureClosesConnection(t *testing.T) {
	ts := newTestServer(t, "")
	c := ts.dial(t, "/bots")

	ack := c.register("   ")
	assert.False(t, ack.OK)
	assert.Equal(t, arena.ErrNameRequired.Error(), ack.Error)

	_, err := c.read()
	assert.Error(t, err)
}

func TestDuplicateLiveNameRejected(t *testing.T) {
	ts := newTestServer(t, "")
	first := ts.dial(t, "/bots")
	require.True(t, first.register("Twin").OK)

	second := ts.dial(t, "/bots")
	ack := second.register("twin")
	assert.False(t, ack.OK)
	assert.Equal(t, arena.ErrNameInUse.Error(), ack.Error)
}

func TestUnknownMessageType(t *testing.T) {
	ts := newTestServer(t, "")
	c := ts.dial(t, "/ws")

	c.send(protocol.Type("dance"), nil)
	var e protocol.Error
	c.expect(protocol.TypeError, &e)
	assert.Equal(t, protocol.CodeUnknownType, e.Code)
}

func TestRoomJoinAndStart(t *testing.T) {
	ts := newTestServer(t, "")

	alice := ts.dial(t, "/ws")
	alice.send(protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "Table 1", Name: "Alice"})
	var aliceAck protocol.JoinAck
	alice.expect(protocol.TypeAck, &aliceAck)
	require.True(t, aliceAck.OK, aliceAck.Error)
	assert.Equal(t, "table-1", aliceAck.RoomID)
	require.NotNil(t, aliceAck.State)
	require.NotNil(t, aliceAck.State.HostID)
	assert.Equal(t, aliceAck.PlayerID, *aliceAck.State.HostID)

	bob := ts.dial(t, "/ws")
	bob.send(protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "table-1", Name: "Bob"})
	var bobAck protocol.JoinAck
	bob.expect(protocol.TypeAck, &bobAck)
	require.True(t, bobAck.OK, bobAck.Error)

	bob.send(protocol.TypeStartGame, nil)
	var e protocol.Error
	bob.expect(protocol.TypeError, &e)
	assert.Equal(t, room.ErrNotHost.Error(), e.Message)

	alice.send(protocol.TypeStartGame, nil)
	var state protocol.RoomState
	for state.State != "inProgress" {
		bob.expect(protocol.TypeStateUpdate, &state)
	}
	require.Len(t, state.Players, 2)
	assert.NotNil(t, state.CurrentCard)
	assert.Equal(t, 23, state.DeckCount)
	for _, p := range state.Players {
		assert.Equal(t, p.ID == aliceAck.PlayerID, p.IsTurn)
	}
}

func TestRoomRequiresJoin(t *testing.T) {
	ts := newTestServer(t, "")
	c := ts.dial(t, "/ws")

	c.send(protocol.TypePlayerAction, protocol.PlayerAction{Action: "pass"})
	var e protocol.Error
	c.expect(protocol.TypeError, &e)
	assert.Equal(t, protocol.CodeNotJoined, e.Code)
}

func TestRoomDisconnectFreesSeat(t *testing.T) {
	ts := newTestServer(t, "")
	c := ts.dial(t, "/ws")
	c.send(protocol.TypeJoinRoom, protocol.JoinRoom{RoomID: "solo", Name: "Ann"})
	var ack protocol.JoinAck
	c.expect(protocol.TypeAck, &ack)
	require.True(t, ack.OK)
	require.Equal(t, 1, ts.rooms.Len())

	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return ts.rooms.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	a := arena.New(logger, randutil.New(1), arena.DefaultConfig())
	s := New(logger, a, room.NewDirectory(logger, randutil.New(2), nil), "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
