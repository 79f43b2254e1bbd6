package lobby_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"github.com/gavelhq/gavel/internal/auction"
	"github.com/gavelhq/gavel/internal/catalog"
	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/event"
	"github.com/gavelhq/gavel/internal/lobby"
	"github.com/gavelhq/gavel/internal/store"
	_ "github.com/gavelhq/gavel/internal/store/memory"
)

var t0 = time.Date(2025, 4, 12, 19, 0, 0, 0, time.UTC)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{
		Teams: []catalog.Team{
			{ID: "csk", Name: "Chennai Super Kings", ShortName: "CSK", Purse: 1000},
			{ID: "mi", Name: "Mumbai Indians", ShortName: "MI", Purse: 1000},
		},
		Players: []catalog.Player{
			{ID: "m1", Name: "Rohit Verma", Role: catalog.RoleBatsman, Marquee: true, Country: "India", BasePrice: 100},
		},
	}
}

// recorder collects broadcasts so tests can assert fan-out happened.
type recorder struct {
	mu       sync.Mutex
	rooms    []string
	payloads []any
}

func (r *recorder) Broadcast(roomID string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, roomID)
	r.payloads = append(r.payloads, v)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func (r *recorder) all() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any{}, r.payloads...)
}

func newManager(t *testing.T) (*lobby.Manager, *store.Repositories, *clock.Mock, *recorder) {
	t.Helper()
	clk := clock.NewMock(t0)

	cfg := config.Defaults()
	cfg.Bots.Enabled = false

	repos, err := store.Open(context.Background(), cfg.Database, clk)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	bcast := &recorder{}
	m := lobby.NewManager(testCatalog(), cfg, repos, bcast, slog.Default(), noop.NewTracerProvider(), clk)
	t.Cleanup(m.Close)
	return m, repos, clk, bcast
}

func seedUser(t *testing.T, repos *store.Repositories, username string) *store.User {
	t.Helper()
	u := &store.User{Username: username, PasswordHash: "x"}
	if err := repos.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return u
}

func TestManager_CreateAndListRooms(t *testing.T) {
	m, repos, _, _ := newManager(t)
	ctx := context.Background()
	host := seedUser(t, repos, "alice")

	room, err := m.CreateRoom(ctx, host.ID, "friday night")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.ID == "" || room.Status != store.RoomOpen {
		t.Errorf("room = %+v, want open with an id", room)
	}

	got, parts, err := m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if got.Name != "friday night" || len(parts) != 0 {
		t.Errorf("GetRoom = %+v with %d participants, want fresh room", got, len(parts))
	}

	rooms, err := m.ListRooms(ctx)
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 1 {
		t.Errorf("ListRooms = %d rooms, want 1", len(rooms))
	}

	if _, _, err := m.GetRoom(ctx, "nope"); !errors.Is(err, lobby.ErrRoomNotFound) {
		t.Errorf("GetRoom(nope) error = %v, want ErrRoomNotFound", err)
	}
}

func TestManager_JoinRoom(t *testing.T) {
	m, repos, _, _ := newManager(t)
	ctx := context.Background()
	host := seedUser(t, repos, "alice")
	guest := seedUser(t, repos, "bob")

	room, err := m.CreateRoom(ctx, host.ID, "room")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if err := m.JoinRoom(ctx, room.ID, host.ID, "csk"); err != nil {
		t.Fatalf("JoinRoom(host): %v", err)
	}
	if err := m.JoinRoom(ctx, room.ID, guest.ID, "csk"); !errors.Is(err, lobby.ErrTeamTaken) {
		t.Errorf("joining a taken team error = %v, want ErrTeamTaken", err)
	}
	if err := m.JoinRoom(ctx, room.ID, guest.ID, "kkr"); err == nil {
		t.Error("joining with an unknown team succeeded")
	}

	// Rejoining with a different team moves the user.
	if err := m.JoinRoom(ctx, room.ID, host.ID, "mi"); err != nil {
		t.Fatalf("JoinRoom(move): %v", err)
	}
	if err := m.JoinRoom(ctx, room.ID, guest.ID, "csk"); err != nil {
		t.Fatalf("JoinRoom(freed team): %v", err)
	}

	_, parts, err := m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if len(parts) != 2 {
		t.Errorf("participants = %d, want 2", len(parts))
	}
}

func TestManager_LeaveRoom(t *testing.T) {
	m, repos, _, _ := newManager(t)
	ctx := context.Background()
	host := seedUser(t, repos, "alice")
	guest := seedUser(t, repos, "bob")

	room, err := m.CreateRoom(ctx, host.ID, "room")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := m.JoinRoom(ctx, room.ID, guest.ID, "mi"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if err := m.LeaveRoom(ctx, room.ID, host.ID); err == nil {
		t.Error("leaving a room the user never joined succeeded")
	}
	if err := m.LeaveRoom(ctx, room.ID, guest.ID); err != nil {
		t.Fatalf("LeaveRoom: %v", err)
	}

	_, parts, err := m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("participants after leave = %d, want 0", len(parts))
	}

	// The freed team is claimable again.
	if err := m.JoinRoom(ctx, room.ID, host.ID, "mi"); err != nil {
		t.Errorf("rejoining a freed team: %v", err)
	}
}

func TestManager_StartRoom(t *testing.T) {
	m, repos, _, _ := newManager(t)
	ctx := context.Background()
	host := seedUser(t, repos, "alice")
	guest := seedUser(t, repos, "bob")

	room, err := m.CreateRoom(ctx, host.ID, "room")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := m.JoinRoom(ctx, room.ID, host.ID, "csk"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if _, err := m.StartRoom(ctx, room.ID, guest.ID); !errors.Is(err, lobby.ErrNotHost) {
		t.Errorf("StartRoom by non-host error = %v, want ErrNotHost", err)
	}

	sess, err := m.StartRoom(ctx, room.ID, host.ID)
	if err != nil {
		t.Fatalf("StartRoom: %v", err)
	}
	snap := sess.Snapshot()
	if snap.HumanTeams["csk"] != host.ID {
		t.Errorf("HumanTeams = %v, want csk owned by host", snap.HumanTeams)
	}

	got, _, err := m.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if got.Status != store.RoomRunning || got.StartedAt == nil {
		t.Errorf("room after start = %+v, want running with StartedAt", got)
	}

	if _, err := m.StartRoom(ctx, room.ID, host.ID); !errors.Is(err, lobby.ErrRoomNotOpen) {
		t.Errorf("second StartRoom error = %v, want ErrRoomNotOpen", err)
	}
	if err := m.JoinRoom(ctx, room.ID, guest.ID, "mi"); !errors.Is(err, lobby.ErrRoomNotOpen) {
		t.Errorf("JoinRoom after start error = %v, want ErrRoomNotOpen", err)
	}

	live, err := m.Session(room.ID)
	if err != nil || live != sess {
		t.Errorf("Session = (%v, %v), want the started session", live, err)
	}
	if _, err := m.Session("nope"); !errors.Is(err, lobby.ErrRoomNotLive) {
		t.Errorf("Session(nope) error = %v, want ErrRoomNotLive", err)
	}

	// The lobby journals the room lifecycle ahead of the session's events.
	evs, err := repos.Events.Load(ctx, room.ID)
	if err != nil {
		t.Fatalf("loading journal: %v", err)
	}
	wantTypes := []event.Type{event.RoomCreated, event.RoomJoined, event.RoomStarted}
	if len(evs) != len(wantTypes) {
		t.Fatalf("journal has %d events, want %d", len(evs), len(wantTypes))
	}
	for i, want := range wantTypes {
		if evs[i].Type != want || evs[i].Version != i+1 {
			t.Errorf("journal[%d] = %s v%d, want %s v%d", i, evs[i].Type, evs[i].Version, want, i+1)
		}
	}
}

func TestManager_StartRoom_ConcurrentStartsOnce(t *testing.T) {
	m, repos, _, _ := newManager(t)
	ctx := context.Background()
	host := seedUser(t, repos, "alice")

	room, err := m.CreateRoom(ctx, host.ID, "room")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := m.JoinRoom(ctx, room.ID, host.ID, "csk"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	const racers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		started  int
		sessions []*auction.Session
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := m.StartRoom(ctx, room.ID, host.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
				sessions = append(sessions, sess)
			case !errors.Is(err, lobby.ErrRoomNotOpen):
				t.Errorf("StartRoom error = %v, want ErrRoomNotOpen", err)
			}
		}()
	}
	wg.Wait()

	if started != 1 {
		t.Fatalf("%d of %d concurrent starts succeeded, want exactly 1", started, racers)
	}
	live, err := m.Session(room.ID)
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if live != sessions[0] {
		t.Error("live session is not the one the winning start returned")
	}
}

func TestManager_BroadcastsAreEnveloped(t *testing.T) {
	m, repos, clk, bcast := newManager(t)
	ctx := context.Background()
	host := seedUser(t, repos, "alice")

	room, err := m.CreateRoom(ctx, host.ID, "room")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := m.JoinRoom(ctx, room.ID, host.ID, "csk"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	sess, err := m.StartRoom(ctx, room.ID, host.ID)
	if err != nil {
		t.Fatalf("StartRoom: %v", err)
	}
	if err := sess.StartCategory(ctx, catalog.CategoryMarquee); err != nil {
		t.Fatalf("StartCategory: %v", err)
	}
	clk.Advance(time.Second)

	// Lobby notices and session snapshots share one websocket, so every
	// message carries the same {type, data} shape.
	msgs := bcast.all()
	if len(msgs) == 0 {
		t.Fatal("nothing was broadcast")
	}
	kinds := map[string]bool{}
	for i, msg := range msgs {
		env, ok := msg.(map[string]any)
		if !ok {
			t.Fatalf("broadcast[%d] = %T, want map envelope", i, msg)
		}
		kind, ok := env["type"].(string)
		if !ok || kind == "" {
			t.Fatalf("broadcast[%d] has no type: %v", i, env)
		}
		if _, ok := env["data"]; !ok {
			t.Fatalf("broadcast[%d] has no data: %v", i, env)
		}
		kinds[kind] = true
	}
	for _, want := range []string{"participant_joined", "room_started", "snapshot"} {
		if !kinds[want] {
			t.Errorf("no %q broadcast was sent (saw %v)", want, kinds)
		}
	}
}

func TestManager_ResetRoom_RearmsCompletedRoom(t *testing.T) {
	m, repos, clk, _ := newManager(t)
	ctx := context.Background()
	host := seedUser(t, repos, "alice")

	room, err := m.CreateRoom(ctx, host.ID, "room")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := m.JoinRoom(ctx, room.ID, host.ID, "csk"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	sess, err := m.StartRoom(ctx, room.ID, host.ID)
	if err != nil {
		t.Fatalf("StartRoom: %v", err)
	}
	if err := sess.StartCategory(ctx, catalog.CategoryMarquee); err != nil {
		t.Fatalf("StartCategory: %v", err)
	}
	if err := sess.Bid(ctx, "csk"); err != nil {
		t.Fatalf("Bid: %v", err)
	}
	clk.Advance(16 * time.Second)
	waitForStatus(t, m, room.ID, store.RoomCompleted)

	got, err := m.ResetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("ResetRoom: %v", err)
	}
	if got != sess {
		t.Error("ResetRoom returned a different session")
	}
	snap := sess.Snapshot()
	if snap.Completed || snap.Phase != auction.PhasePool {
		t.Fatalf("after reset phase = %s completed = %v, want POOL and live", snap.Phase, snap.Completed)
	}
	waitForStatus(t, m, room.ID, store.RoomRunning)

	// The countdown only moves if the re-armed ticker is driving Tick.
	if err := sess.StartCategory(ctx, catalog.CategoryMarquee); err != nil {
		t.Fatalf("StartCategory after reset: %v", err)
	}
	before := sess.Snapshot().Lot.TimeLeft
	clk.Advance(time.Second)
	after := sess.Snapshot().Lot.TimeLeft
	if after != before-1 {
		t.Errorf("TimeLeft went %d -> %d after one tick, want it to count down", before, after)
	}
}

func waitForStatus(t *testing.T, m *lobby.Manager, roomID, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _, err := m.GetRoom(context.Background(), roomID)
		if err != nil {
			t.Fatalf("GetRoom: %v", err)
		}
		if got.Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("room status = %s, want %s", got.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManager_CompletionPersistsResults(t *testing.T) {
	m, repos, clk, bcast := newManager(t)
	ctx := context.Background()
	host := seedUser(t, repos, "alice")

	room, err := m.CreateRoom(ctx, host.ID, "room")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := m.JoinRoom(ctx, room.ID, host.ID, "csk"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	sess, err := m.StartRoom(ctx, room.ID, host.ID)
	if err != nil {
		t.Fatalf("StartRoom: %v", err)
	}

	if err := sess.StartCategory(ctx, catalog.CategoryMarquee); err != nil {
		t.Fatalf("StartCategory: %v", err)
	}
	if err := sess.Bid(ctx, "csk"); err != nil {
		t.Fatalf("Bid: %v", err)
	}
	// Let the only lot run out; the single player resolving completes the
	// auction.
	clk.Advance(16 * time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, _, err := m.GetRoom(ctx, room.ID)
		if err != nil {
			t.Fatalf("GetRoom: %v", err)
		}
		if got.Status == store.RoomCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("room status = %s, want completed", got.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	results, err := m.Results(ctx, room.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.PlayerID != "m1" || r.Status != string(auction.StatusSold) {
		t.Errorf("result = %+v, want m1 sold", r)
	}
	if r.SoldTo == nil || *r.SoldTo != "csk" || r.SoldFor == nil || *r.SoldFor != 100 {
		t.Errorf("sale fields = %v/%v, want csk for 100", r.SoldTo, r.SoldFor)
	}

	if bcast.count() == 0 {
		t.Error("no snapshots were broadcast")
	}
}
