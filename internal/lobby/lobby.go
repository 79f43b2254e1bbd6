// Package lobby coordinates room lifecycle: creation, joining, and
// promoting an open room into a live auction session.
package lobby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gavelhq/gavel/internal/auction"
	"github.com/gavelhq/gavel/internal/bot"
	"github.com/gavelhq/gavel/internal/catalog"
	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/event"
	"github.com/gavelhq/gavel/internal/store"
)

var (
	// ErrRoomNotFound is returned when the room id is unknown.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotHost is returned when someone other than the host tries to
	// start the room.
	ErrNotHost = errors.New("only the host can start the room")
	// ErrRoomNotOpen is returned when joining or starting a room that
	// already started or completed.
	ErrRoomNotOpen = errors.New("room is not open")
	// ErrRoomNotLive is returned when a command targets a room with no
	// running session.
	ErrRoomNotLive = errors.New("room has no live session")
	// ErrTeamTaken is returned when the requested team already has an owner.
	ErrTeamTaken = errors.New("team already taken")
)

// Broadcaster pushes room updates to connected clients.
type Broadcaster interface {
	Broadcast(roomID string, v any)
}

// liveRoom is a started room: its session plus the running ticker's
// cancel. All fields are guarded by the Manager's mutex; completed
// marks that the ticker was stopped after the auction finished, and a
// reset re-arms it.
type liveRoom struct {
	session   *auction.Session
	cancel    context.CancelFunc
	completed bool
}

// Manager owns every room and the live sessions of started ones.
type Manager struct {
	mu   sync.RWMutex
	live map[string]*liveRoom

	catalog *catalog.Catalog
	cfg     *config.Config
	repos   *store.Repositories
	bcast   Broadcaster
	logger  *slog.Logger
	tracer  trace.Tracer
	tp      trace.TracerProvider
	clock   clock.Clock
}

// NewManager creates a lobby Manager.
func NewManager(cat *catalog.Catalog, cfg *config.Config, repos *store.Repositories, bcast Broadcaster, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Manager {
	return &Manager{
		live:    make(map[string]*liveRoom),
		catalog: cat,
		cfg:     cfg,
		repos:   repos,
		bcast:   bcast,
		logger:  logger,
		tracer:  tp.Tracer("github.com/gavelhq/gavel/internal/lobby"),
		tp:      tp,
		clock:   clk,
	}
}

// CreateRoom creates an open room hosted by the given user.
func (m *Manager) CreateRoom(ctx context.Context, hostID, name string) (*store.Room, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.CreateRoom",
		trace.WithAttributes(attribute.String("host_id", hostID)),
	)
	defer span.End()

	room := &store.Room{Name: name, HostID: hostID}
	if err := m.repos.Rooms.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	m.record(ctx, room.ID, event.RoomCreated, event.RoomCreatedData{Name: name, CreatedBy: hostID})

	m.logger.InfoContext(ctx, "room created",
		slog.String("room_id", room.ID),
		slog.String("host_id", hostID),
	)
	return room, nil
}

// record appends a room-level event, continuing the room's journal
// version sequence. Journal failures are logged, not fatal: the journal
// is an audit trail, not the source of truth.
func (m *Manager) record(ctx context.Context, roomID string, t event.Type, data any) int {
	prior, err := m.repos.Events.Load(ctx, roomID)
	if err != nil {
		m.logger.ErrorContext(ctx, "loading room journal", slog.String("room_id", roomID), slog.Any("error", err))
		return 0
	}
	raw, err := json.Marshal(data)
	if err != nil {
		m.logger.ErrorContext(ctx, "encoding room event", slog.String("room_id", roomID), slog.Any("error", err))
		return len(prior)
	}
	version := len(prior) + 1
	e := event.Event{
		AggregateID: roomID,
		Type:        t,
		Data:        raw,
		Version:     version,
		CreatedAt:   m.clock.Now(),
	}
	if err := m.repos.Events.Append(ctx, e); err != nil {
		m.logger.ErrorContext(ctx, "appending room event", slog.String("room_id", roomID), slog.Any("error", err))
		return len(prior)
	}
	return version
}

// ListRooms returns all rooms, newest first.
func (m *Manager) ListRooms(ctx context.Context) ([]store.Room, error) {
	return m.repos.Rooms.List(ctx)
}

// GetRoom returns one room with its participants.
func (m *Manager) GetRoom(ctx context.Context, roomID string) (*store.Room, []store.Participant, error) {
	room, err := m.repos.Rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRoomNotFound, err)
	}
	parts, err := m.repos.Rooms.Participants(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing participants: %w", err)
	}
	return room, parts, nil
}

// JoinRoom claims a team in an open room for the user. Rejoining with a
// different team moves the user rather than adding a second entry.
func (m *Manager) JoinRoom(ctx context.Context, roomID, userID, teamID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.JoinRoom",
		trace.WithAttributes(
			attribute.String("room_id", roomID),
			attribute.String("team_id", teamID),
		),
	)
	defer span.End()

	room, parts, err := m.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != store.RoomOpen {
		return ErrRoomNotOpen
	}
	if m.catalog.Team(teamID) == nil {
		return fmt.Errorf("unknown team %q", teamID)
	}
	for _, p := range parts {
		if p.TeamID == teamID && p.UserID != userID {
			return ErrTeamTaken
		}
	}

	if err := m.repos.Rooms.UpsertParticipant(ctx, &store.Participant{
		RoomID: roomID,
		UserID: userID,
		TeamID: teamID,
	}); err != nil {
		return fmt.Errorf("joining room: %w", err)
	}

	m.record(ctx, roomID, event.RoomJoined, event.RoomJoinedData{UserID: userID, TeamID: teamID})

	m.logger.InfoContext(ctx, "user joined room",
		slog.String("room_id", roomID),
		slog.String("user_id", userID),
		slog.String("team_id", teamID),
	)
	m.signal(roomID, "participant_joined", map[string]string{"userId": userID, "teamId": teamID})
	return nil
}

// signal pushes a lobby-level notice (joins, room start) to the room's
// websocket subscribers. Auction snapshots go out separately via the
// session's observer.
func (m *Manager) signal(roomID, kind string, data any) {
	if m.bcast == nil {
		return
	}
	m.bcast.Broadcast(roomID, map[string]any{"type": kind, "data": data})
}

// LeaveRoom releases the user's team in an open room.
func (m *Manager) LeaveRoom(ctx context.Context, roomID, userID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.LeaveRoom",
		trace.WithAttributes(attribute.String("room_id", roomID)),
	)
	defer span.End()

	room, _, err := m.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != store.RoomOpen {
		return ErrRoomNotOpen
	}
	if err := m.repos.Rooms.RemoveParticipant(ctx, roomID, userID); err != nil {
		return fmt.Errorf("leaving room: %w", err)
	}

	m.record(ctx, roomID, event.RoomLeft, event.RoomJoinedData{UserID: userID})

	m.logger.InfoContext(ctx, "user left room",
		slog.String("room_id", roomID),
		slog.String("user_id", userID),
	)
	m.signal(roomID, "participant_left", map[string]string{"userId": userID})
	return nil
}

// StartRoom promotes an open room into a live session. Host only. Teams
// claimed by participants are human-controlled; everything else is run
// by bots.
func (m *Manager) StartRoom(ctx context.Context, roomID, userID string) (*auction.Session, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.StartRoom",
		trace.WithAttributes(attribute.String("room_id", roomID)),
	)
	defer span.End()

	room, parts, err := m.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != userID {
		return nil, ErrNotHost
	}
	if room.Status != store.RoomOpen {
		return nil, ErrRoomNotOpen
	}

	// Reserve the room before doing anything else; concurrent starts
	// race on the status check above, and the loser must not end up
	// with a second live session whose ticker nobody can stop.
	m.mu.Lock()
	if _, exists := m.live[roomID]; exists {
		m.mu.Unlock()
		return nil, ErrRoomNotOpen
	}
	lr := &liveRoom{}
	m.live[roomID] = lr
	m.mu.Unlock()

	humans := make(map[string]string, len(parts))
	for _, p := range parts {
		humans[p.TeamID] = p.UserID
	}

	version := m.record(ctx, roomID, event.RoomStarted, struct{}{})

	sess := auction.NewSession(roomID, m.catalog, m.cfg.Auction, humans, auction.Deps{
		Clock:          m.clock,
		Logger:         m.logger,
		TracerProvider: m.tp,
		Events:         m.repos.Events,
		InitialVersion: version,
		Results:        resultWriter{results: m.repos.Results},
	})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	if m.cfg.Bots.Enabled {
		rng := rand.New(rand.NewSource(m.clock.Now().UnixNano()))
		bot.NewRunner(m.cfg.Bots, sess, m.clock, m.logger, rng).Attach()
	}
	sess.OnUpdate(func(snap auction.Snapshot) {
		m.signal(roomID, "snapshot", snap)
		if snap.Completed {
			go m.completeRoom(roomID)
		}
	})

	if err := m.repos.Rooms.SetStatus(ctx, roomID, store.RoomRunning, m.clock.Now()); err != nil {
		cancel()
		m.mu.Lock()
		delete(m.live, roomID)
		m.mu.Unlock()
		return nil, fmt.Errorf("marking room running: %w", err)
	}

	m.mu.Lock()
	lr.session = sess
	lr.cancel = cancel
	m.mu.Unlock()

	sess.RunTicker(runCtx)
	m.signal(roomID, "room_started", sess.Snapshot())

	m.logger.InfoContext(ctx, "room started",
		slog.String("room_id", roomID),
		slog.Int("human_teams", len(humans)),
	)
	return sess, nil
}

// Session returns the live session of a room.
func (m *Manager) Session(roomID string) (*auction.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lr, ok := m.live[roomID]
	if !ok || lr.session == nil {
		return nil, ErrRoomNotLive
	}
	return lr.session, nil
}

// ResetRoom wipes a live session back to team selection. If the room
// already completed, its stopped ticker is re-armed and the room goes
// back to running.
func (m *Manager) ResetRoom(ctx context.Context, roomID string) (*auction.Session, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ResetRoom",
		trace.WithAttributes(attribute.String("room_id", roomID)),
	)
	defer span.End()

	sess, err := m.Session(roomID)
	if err != nil {
		return nil, err
	}
	if err := sess.Reset(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	lr, ok := m.live[roomID]
	rearmed := ok && lr.completed
	if rearmed {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		lr.cancel = cancel
		lr.completed = false
		lr.session.RunTicker(runCtx)
	}
	m.mu.Unlock()

	if rearmed {
		if err := m.repos.Rooms.SetStatus(ctx, roomID, store.RoomRunning, m.clock.Now()); err != nil {
			m.logger.ErrorContext(ctx, "marking room running after reset", slog.String("room_id", roomID), slog.Any("error", err))
		}
	}

	m.logger.InfoContext(ctx, "room reset", slog.String("room_id", roomID))
	return sess, nil
}

// Results returns the persisted lot results of a room.
func (m *Manager) Results(ctx context.Context, roomID string) ([]store.Result, error) {
	if _, err := m.repos.Rooms.GetByID(ctx, roomID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoomNotFound, err)
	}
	return m.repos.Results.ListByRoom(ctx, roomID)
}

// Close stops the tickers of every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lr := range m.live {
		if lr.cancel != nil {
			lr.cancel()
		}
	}
	m.live = map[string]*liveRoom{}
}

// completeRoom marks a finished auction's room completed and stops its
// ticker, at most once until a reset re-arms the room. Runs outside the
// session's observer call stack.
func (m *Manager) completeRoom(roomID string) {
	m.mu.Lock()
	lr, ok := m.live[roomID]
	if !ok || lr.completed || lr.cancel == nil {
		m.mu.Unlock()
		return
	}
	if !lr.session.Snapshot().Completed {
		// A reset beat us here; the session is live again.
		m.mu.Unlock()
		return
	}
	lr.completed = true
	cancel := lr.cancel
	m.mu.Unlock()

	ctx := context.Background()
	if err := m.repos.Rooms.SetStatus(ctx, roomID, store.RoomCompleted, m.clock.Now()); err != nil {
		m.logger.Error("marking room completed", slog.String("room_id", roomID), slog.Any("error", err))
	}
	cancel()
	m.logger.Info("room completed", slog.String("room_id", roomID))
}

// resultWriter adapts the result repository to the session's callback.
type resultWriter struct {
	results store.ResultRepository
}

func (w resultWriter) SaveResult(ctx context.Context, roomID string, r auction.Resolution) error {
	res := &store.Result{
		RoomID:     roomID,
		PlayerID:   r.PlayerID,
		Category:   string(r.Category),
		Status:     string(r.Status),
		ResolvedAt: r.ResolvedAt,
	}
	if r.Status == auction.StatusSold {
		soldTo := r.SoldTo
		soldFor := r.SoldFor
		res.SoldTo = &soldTo
		res.SoldFor = &soldFor
	}
	return w.results.Save(ctx, res)
}
