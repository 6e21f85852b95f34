package server

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/cawio/snake/internal/game"
	"github.com/cawio/snake/protocol"
)

// ---------- helpers ----------

const testAdminPassword = "hunter2"

type testEnv struct {
	srv   *httptest.Server
	wsURL string
	game  *game.Game
	hub   *Hub
}

// startTestServer spins up an httptest.Server around a Game that does not
// tick on its own, so every snapshot comes from a join or leave.
func startTestServer(t *testing.T) *testEnv {
	t.Helper()
	return startTestServerWithLimits(t, DefaultLimits())
}

func startTestServerWithLimits(t *testing.T, limits Limits) *testEnv {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	auth, err := NewAuth("admin", string(hash), "test-secret")
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}

	d := NewDispatcher(nil)
	g := game.New(game.DefaultConfig(), game.WithRand(rand.New(rand.NewSource(1))), game.WithPublisher(d))
	hub := NewHub(g, d, limits, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	mux := SetupRoutes(hub, NewSession("", g), auth, "")
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &testEnv{
		srv:   srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		game:  g,
		hub:   hub,
	}
}

// dialWS opens a WebSocket connection for the given client id.
func dialWS(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL+"?id="+id, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMsg reads and decodes one JSON frame.
func readMsg(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	msg, err := protocol.JSON.Decode(raw)
	if err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return msg
}

// readState reads one frame and requires it to be a state-update.
func readState(t *testing.T, conn *websocket.Conn) protocol.StateUpdateData {
	t.Helper()
	msg := readMsg(t, conn)
	if msg.Type != protocol.MsgStateUpdate {
		t.Fatalf("expected state-update, got %s (%+v)", msg.Type, msg.Data)
	}
	return msg.Data.(protocol.StateUpdateData)
}

// sendMsg encodes and sends a message as a text frame.
func sendMsg(t *testing.T, conn *websocket.Conn, msg protocol.Message) {
	t.Helper()
	raw, err := protocol.JSON.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func usernames(s protocol.StateUpdateData) []string {
	var names []string
	for _, p := range s.Players {
		names = append(names, p.Username)
	}
	return names
}

// ---------- websocket ----------

func TestMissingIDRejected(t *testing.T) {
	env := startTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake failure without id")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", resp)
	}
}

func TestUnknownEncodingRejected(t *testing.T) {
	env := startTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL+"?id=a&enc=xml", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown encoding, got err=%v resp=%v", err, resp)
	}
}

func TestSnapshotOnConnect(t *testing.T) {
	env := startTestServer(t)
	conn := dialWS(t, env, "c1")

	state := readState(t, conn)
	if len(state.Players) != 0 {
		t.Errorf("expected empty session, got %v", usernames(state))
	}
	if state.Food != env.game.Food() {
		t.Errorf("food %v, want %v", state.Food, env.game.Food())
	}
}

func TestJoinBroadcastToAll(t *testing.T) {
	env := startTestServer(t)
	alice := dialWS(t, env, "a")
	watcher := dialWS(t, env, "w")
	readState(t, alice)
	readState(t, watcher)

	sendMsg(t, alice, protocol.Join("alice"))

	for _, conn := range []*websocket.Conn{alice, watcher} {
		state := readState(t, conn)
		if len(state.Players) != 1 || state.Players[0].ID != "a" || state.Players[0].Username != "alice" {
			t.Fatalf("unexpected snapshot: %+v", state)
		}
		if state.Players[0].State != protocol.Alive {
			t.Error("new player should be alive")
		}
	}
}

func TestJoinErrorsGoToSenderOnly(t *testing.T) {
	env := startTestServer(t)
	alice := dialWS(t, env, "a")
	bob := dialWS(t, env, "b")
	readState(t, alice)
	readState(t, bob)

	sendMsg(t, alice, protocol.Join("alice"))
	readState(t, alice)
	readState(t, bob)

	sendMsg(t, bob, protocol.Join("alice"))
	msg := readMsg(t, bob)
	if msg.Type != protocol.MsgError {
		t.Fatalf("expected error, got %s", msg.Type)
	}
	if code := msg.Data.(protocol.ErrorData).Code; code != protocol.CodeUsernameTaken {
		t.Errorf("code = %s, want %s", code, protocol.CodeUsernameTaken)
	}

	sendMsg(t, bob, protocol.Join("   "))
	msg = readMsg(t, bob)
	if msg.Type != protocol.MsgError || msg.Data.(protocol.ErrorData).Code != protocol.CodeEmptyUsername {
		t.Fatalf("expected empty-username error, got %+v", msg)
	}

	// alice saw nothing; the next frame she gets is bob's successful join
	sendMsg(t, bob, protocol.Join("bob"))
	state := readState(t, alice)
	if len(state.Players) != 2 {
		t.Errorf("expected alice and bob, got %v", usernames(state))
	}
	if env.game.PlayerCount() != 2 {
		t.Errorf("player count = %d, want 2", env.game.PlayerCount())
	}
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	env := startTestServer(t)
	conn := dialWS(t, env, "a")
	readState(t, conn)

	conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"teleport","data":{}}`))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"join"}`))
	sendMsg(t, conn, protocol.Join("alice"))

	state := readState(t, conn)
	if len(state.Players) != 1 {
		t.Fatalf("join after malformed frames should work, got %v", usernames(state))
	}
	if got := env.hub.dispatch.Metrics().Snapshot()["malformed_frames"].(int64); got != 3 {
		t.Errorf("malformed_frames = %d, want 3", got)
	}
}

func TestMoveReachesGame(t *testing.T) {
	env := startTestServer(t)
	conn := dialWS(t, env, "a")
	readState(t, conn)
	sendMsg(t, conn, protocol.Join("alice"))
	before := readState(t, conn).Players[0].Snake[0]

	sendMsg(t, conn, protocol.Move(protocol.Down))
	sendMsg(t, conn, protocol.Move("diagonal")) // ignored
	// a second join round-trips through the same read loop, so the moves
	// above have been applied once its error arrives
	sendMsg(t, conn, protocol.Join("alice"))
	if msg := readMsg(t, conn); msg.Type != protocol.MsgError {
		t.Fatalf("expected already-joined error, got %s", msg.Type)
	}

	env.game.Tick()
	after := readState(t, conn).Players[0]
	if after.State == protocol.Alive && after.Snake[0] != before.Add(protocol.Down) {
		t.Errorf("head %v, want %v", after.Snake[0], before.Add(protocol.Down))
	}
}

func TestLeaveAndDisconnectRemovePlayer(t *testing.T) {
	env := startTestServer(t)
	alice := dialWS(t, env, "a")
	bob := dialWS(t, env, "b")
	watcher := dialWS(t, env, "w")
	for _, c := range []*websocket.Conn{alice, bob, watcher} {
		readState(t, c)
	}

	sendMsg(t, alice, protocol.Join("alice"))
	readState(t, watcher)
	sendMsg(t, bob, protocol.Join("bob"))
	readState(t, watcher)

	sendMsg(t, alice, protocol.Leave())
	if names := usernames(readState(t, watcher)); len(names) != 1 || names[0] != "bob" {
		t.Fatalf("after leave got %v", names)
	}

	bob.Close()
	if state := readState(t, watcher); len(state.Players) != 0 {
		t.Fatalf("after disconnect got %v", usernames(state))
	}
}

func TestSameIDSupersedesConnection(t *testing.T) {
	env := startTestServer(t)
	first := dialWS(t, env, "dup")
	readState(t, first)
	sendMsg(t, first, protocol.Join("alice"))
	readState(t, first)

	second := dialWS(t, env, "dup")
	state := readState(t, second)
	if len(state.Players) != 1 || state.Players[0].Username != "alice" {
		t.Fatalf("new connection should see the existing player, got %v", usernames(state))
	}

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}
	time.Sleep(50 * time.Millisecond)
	if env.game.PlayerCount() != 1 {
		t.Errorf("superseded connection must not remove the player")
	}

	// the new connection owns the player now
	sendMsg(t, second, protocol.Leave())
	if state := readState(t, second); len(state.Players) != 0 {
		t.Errorf("leave from new connection failed: %v", usernames(state))
	}
}

func TestMsgpackConnection(t *testing.T) {
	env := startTestServer(t)
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL+"?id=m&enc=msgpack", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	raw, _ := protocol.Msgpack.Encode(protocol.Join("packer"))
	conn.WriteMessage(websocket.BinaryMessage, raw)

	for i := 0; i < 2; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		frameType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if frameType != websocket.BinaryMessage {
			t.Fatalf("expected binary frame, got %d", frameType)
		}
		msg, err := protocol.Msgpack.Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		state := msg.Data.(protocol.StateUpdateData)
		if i == 1 && (len(state.Players) != 1 || state.Players[0].Username != "packer") {
			t.Errorf("unexpected snapshot %+v", state)
		}
	}
}

func TestConnectionLimitPerIP(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxConnsPerIP = 1
	env := startTestServerWithLimits(t, limits)

	dialWS(t, env, "a")
	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL+"?id=b", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 over the per-IP limit, got err=%v resp=%v", err, resp)
	}
}

// ---------- HTTP ----------

func TestHealthz(t *testing.T) {
	env := startTestServer(t)
	resp, err := http.Get(env.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestServer(t)
	conn := dialWS(t, env, "a")
	readState(t, conn)
	sendMsg(t, conn, protocol.Join("alice"))
	readState(t, conn)

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Session   map[string]any `json:"session"`
		Game      map[string]any `json:"game"`
		Transport map[string]any `json:"transport"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Game["joins"].(float64) != 1 {
		t.Errorf("joins = %v", body.Game["joins"])
	}
	if body.Transport["connections"].(float64) != 1 {
		t.Errorf("connections = %v", body.Transport["connections"])
	}
	if body.Session["players"].(float64) != 1 {
		t.Errorf("players = %v", body.Session["players"])
	}
}

func TestQRCode(t *testing.T) {
	env := startTestServer(t)
	resp, err := http.Get(env.srv.URL + "/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type %q", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}
}

func adminLogin(t *testing.T, env *testEnv, password string) (*http.Response, string) {
	t.Helper()
	body, _ := json.Marshal(loginRequest{Username: "admin", Password: password})
	resp, err := http.Post(env.srv.URL+"/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out["token"]
}

func TestAdminConfig(t *testing.T) {
	env := startTestServer(t)

	if resp, _ := adminLogin(t, env, "wrong"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d", resp.StatusCode)
	}
	resp, token := adminLogin(t, env, testAdminPassword)
	if resp.StatusCode != http.StatusOK || token == "" {
		t.Fatalf("login: status %d token %q", resp.StatusCode, token)
	}

	unauth, err := http.Get(env.srv.URL + "/admin/config")
	if err != nil {
		t.Fatal(err)
	}
	unauth.Body.Close()
	if unauth.StatusCode != http.StatusUnauthorized {
		t.Errorf("config without token: status %d", unauth.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/admin/config", strings.NewReader(`{"score_increment":3}`))
	req.Header.Set("Authorization", "Bearer "+token)
	post, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d", post.StatusCode)
	}
	if env.game.ScoreIncrement() != 3 {
		t.Errorf("score increment = %d, want 3", env.game.ScoreIncrement())
	}

	req, _ = http.NewRequest(http.MethodGet, env.srv.URL+"/admin/config", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	get, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer get.Body.Close()
	var cfg adminConfig
	if err := json.NewDecoder(get.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.ScoreIncrement == nil || *cfg.ScoreIncrement != 3 || cfg.GridSize != 20 {
		t.Errorf("unexpected config %+v", cfg)
	}
}
