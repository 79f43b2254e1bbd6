package httpapi_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"log/slog"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gavelhq/gavel/internal/auth"
	"github.com/gavelhq/gavel/internal/catalog"
	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/httpapi"
	"github.com/gavelhq/gavel/internal/hub"
	"github.com/gavelhq/gavel/internal/lobby"
	"github.com/gavelhq/gavel/internal/store"
	_ "github.com/gavelhq/gavel/internal/store/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Defaults()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Bots.Enabled = false

	clk := clock.Real{}
	repos, err := store.Open(t.Context(), cfg.Database, clk)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog.Load: %v", err)
	}

	logger := slog.Default()
	wsHub := hub.New(logger)
	lobbyMgr := lobby.NewManager(cat, cfg, repos, wsHub, logger, noop.NewTracerProvider(), clk)
	t.Cleanup(lobbyMgr.Close)

	mux := http.NewServeMux()
	httpapi.New(auth.NewService(repos.Users, cfg.Auth, clk, logger), lobbyMgr, cat, wsHub, logger).Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// call issues a JSON request and decodes the JSON response into out
// (when out is non-nil).
func call(t *testing.T, srv *httptest.Server, method, path, token string, body, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := sonic.ConfigDefault.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := sonic.ConfigDefault.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func signup(t *testing.T, srv *httptest.Server, username string) (token, userID string) {
	t.Helper()
	creds := map[string]string{"username": username, "password": "hunter2!"}
	if code := call(t, srv, http.MethodPost, "/api/auth/register", "", creds, nil); code != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, code)
	}
	var login struct {
		Token string `json:"token"`
		ID    string `json:"id"`
	}
	if code := call(t, srv, http.MethodPost, "/api/auth/login", "", creds, &login); code != http.StatusOK {
		t.Fatalf("login %s: status %d", username, code)
	}
	return login.Token, login.ID
}

func TestMe(t *testing.T) {
	srv := newTestServer(t)
	token, userID := signup(t, srv, "alice")

	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if code := call(t, srv, http.MethodGet, "/api/auth/me", token, nil, &me); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	if me.ID != userID || me.Username != "alice" {
		t.Errorf("me = %+v, want alice/%s", me, userID)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	if code := call(t, srv, http.MethodGet, "/api/rooms", "", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated list rooms: status %d, want 401", code)
	}
	if code := call(t, srv, http.MethodGet, "/api/rooms", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("bad token list rooms: status %d, want 401", code)
	}

	token, _ := signup(t, srv, "alice")
	if code := call(t, srv, http.MethodGet, "/api/rooms", token, nil, nil); code != http.StatusOK {
		t.Errorf("authenticated list rooms: status %d, want 200", code)
	}
}

func TestCatalogEndpoints(t *testing.T) {
	srv := newTestServer(t)
	token, _ := signup(t, srv, "alice")

	var teams []catalog.Team
	if code := call(t, srv, http.MethodGet, "/api/teams", token, nil, &teams); code != http.StatusOK {
		t.Fatalf("teams: status %d", code)
	}
	if len(teams) != 8 {
		t.Errorf("teams = %d, want 8", len(teams))
	}

	var players []catalog.Player
	if code := call(t, srv, http.MethodGet, "/api/players", token, nil, &players); code != http.StatusOK {
		t.Fatalf("players: status %d", code)
	}
	if len(players) != 30 {
		t.Errorf("players = %d, want 30", len(players))
	}
}

func TestRoomLifecycle(t *testing.T) {
	srv := newTestServer(t)
	hostToken, hostID := signup(t, srv, "alice")
	guestToken, _ := signup(t, srv, "bob")

	var room store.Room
	if code := call(t, srv, http.MethodPost, "/api/rooms", hostToken,
		map[string]string{"name": "friday night"}, &room); code != http.StatusCreated {
		t.Fatalf("create room: status %d", code)
	}
	base := "/api/rooms/" + room.ID

	if code := call(t, srv, http.MethodPost, base+"/join", hostToken,
		map[string]string{"teamId": "csk"}, nil); code != http.StatusOK {
		t.Fatalf("host join: status %d", code)
	}
	if code := call(t, srv, http.MethodPost, base+"/join", guestToken,
		map[string]string{"teamId": "csk"}, nil); code != http.StatusConflict {
		t.Errorf("taken team join: status %d, want 409", code)
	}

	if code := call(t, srv, http.MethodPost, base+"/start", guestToken, nil, nil); code != http.StatusForbidden {
		t.Errorf("non-host start: status %d, want 403", code)
	}

	var snap struct {
		Phase      string            `json:"phase"`
		HumanTeams map[string]string `json:"humanTeams"`
	}
	if code := call(t, srv, http.MethodPost, base+"/start", hostToken, nil, &snap); code != http.StatusOK {
		t.Fatalf("start: status %d", code)
	}
	if snap.HumanTeams["csk"] != hostID {
		t.Errorf("HumanTeams = %v, want csk owned by host", snap.HumanTeams)
	}

	if code := call(t, srv, http.MethodPost, base+"/start", hostToken, nil, nil); code != http.StatusConflict {
		t.Errorf("double start: status %d, want 409", code)
	}
	if code := call(t, srv, http.MethodGet, base+"/state", hostToken, nil, nil); code != http.StatusOK {
		t.Errorf("state: status %d, want 200", code)
	}
	if code := call(t, srv, http.MethodGet, "/api/rooms/nope/state", hostToken, nil, nil); code != http.StatusNotFound {
		t.Errorf("state of unknown room: status %d, want 404", code)
	}
}

func TestBidOwnership(t *testing.T) {
	srv := newTestServer(t)
	hostToken, _ := signup(t, srv, "alice")

	var room store.Room
	if code := call(t, srv, http.MethodPost, "/api/rooms", hostToken,
		map[string]string{"name": "room"}, &room); code != http.StatusCreated {
		t.Fatalf("create room: status %d", code)
	}
	base := "/api/rooms/" + room.ID

	if code := call(t, srv, http.MethodPost, base+"/join", hostToken,
		map[string]string{"teamId": "csk"}, nil); code != http.StatusOK {
		t.Fatalf("join: status %d", code)
	}
	if code := call(t, srv, http.MethodPost, base+"/start", hostToken, nil, nil); code != http.StatusOK {
		t.Fatalf("start: status %d", code)
	}

	// No lot is open yet, so a valid bid on the owned team conflicts.
	if code := call(t, srv, http.MethodPost, base+"/bid", hostToken,
		map[string]any{"teamId": "csk"}, nil); code != http.StatusConflict {
		t.Errorf("bid with no lot: status %d, want 409", code)
	}
	// Bidding with a bot-controlled team is forbidden regardless.
	if code := call(t, srv, http.MethodPost, base+"/bid", hostToken,
		map[string]any{"teamId": "mi"}, nil); code != http.StatusForbidden {
		t.Errorf("bid with unowned team: status %d, want 403", code)
	}

	if code := call(t, srv, http.MethodPost, base+"/start-category", hostToken,
		map[string]string{"category": "Marquee"}, nil); code != http.StatusOK {
		t.Fatalf("start category: status %d", code)
	}

	var snap struct {
		Lot *struct {
			CurrentBid    int    `json:"currentBid"`
			CurrentBidder string `json:"currentBidder"`
		} `json:"lot"`
	}
	if code := call(t, srv, http.MethodPost, base+"/bid", hostToken,
		map[string]any{"teamId": "csk"}, &snap); code != http.StatusOK {
		t.Fatalf("bid: status %d", code)
	}
	if snap.Lot == nil || snap.Lot.CurrentBidder != "csk" {
		t.Errorf("lot after bid = %+v, want csk leading", snap.Lot)
	}
}
