package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gavelhq/gavel/internal/catalog"
	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/event"
)

// ErrUnknownCategory is returned when a category outside the configured
// order is requested.
var ErrUnknownCategory = fmt.Errorf("unknown category")

// ResultWriter persists lot resolutions as they happen.
type ResultWriter interface {
	SaveResult(ctx context.Context, roomID string, r Resolution) error
}

// Deps carries the session's collaborators.
type Deps struct {
	Clock          clock.Clock
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	// Events, if set, receives the session's journal.
	Events event.Store
	// InitialVersion is the version of the room's last journal entry
	// written before the session started, so the session continues the
	// sequence instead of colliding with it.
	InitialVersion int
	// Results, if set, receives every resolution.
	Results ResultWriter
}

// Session is the authoritative state of one auction room. Every
// mutation (human bid intents, bot bid intents, timer ticks, phase
// delays) goes through the one mutex, so there is exactly one writer
// at a time. Scheduled callbacks carry the generation they were created
// under and are dropped if the session has moved on.
type Session struct {
	mu sync.Mutex

	id      string
	catalog *catalog.Catalog
	cfg     config.AuctionConfig
	clock   clock.Clock
	logger  *slog.Logger
	tracer  trace.Tracer
	events  event.Store
	results ResultWriter

	ledger *Ledger
	engine *Engine

	phase      Phase
	squadsOpen bool
	generation uint64
	fatal      error

	// humans maps team id to the controlling user id. Teams without an
	// entry are bot-controlled.
	humans        map[string]string
	initialHumans map[string]string

	order           []catalog.Category
	categoryEntered bool
	activeCategory  catalog.Category

	resolutions []Resolution
	resolved    map[string]bool

	lastAuctionResult     Status
	lastSoldCategory      catalog.Category
	lastSoldAt            *time.Time
	lastCompletedCategory catalog.Category
	lastCompletedAt       *time.Time

	pendingTimer clock.Timer

	observers []func(Snapshot)
	pending   []event.Event
	version   int
}

// NewSession creates a session over the given catalog. humans maps team
// ids to user ids for teams under human control; when empty the session
// starts in SELECTION and waits for SelectTeam, otherwise it starts in
// POOL.
func NewSession(id string, cat *catalog.Catalog, cfg config.AuctionConfig, humans map[string]string, deps Deps) *Session {
	ledger := NewLedger(cat.Teams)
	s := &Session{
		id:            id,
		catalog:       cat,
		cfg:           cfg,
		clock:         deps.Clock,
		logger:        deps.Logger,
		tracer:        deps.TracerProvider.Tracer("github.com/gavelhq/gavel/internal/auction"),
		events:        deps.Events,
		version:       deps.InitialVersion,
		results:       deps.Results,
		ledger:        ledger,
		engine:        NewEngine(cfg, ledger, deps.Clock),
		humans:        map[string]string{},
		initialHumans: map[string]string{},
		resolved:      map[string]bool{},
		phase:         PhaseSelection,
	}
	for teamID, userID := range humans {
		s.humans[teamID] = userID
		s.initialHumans[teamID] = userID
	}
	if len(s.humans) > 0 {
		s.phase = PhasePool
	}
	for _, name := range cfg.CategoryOrder {
		s.order = append(s.order, catalog.Category(name))
	}
	return s
}

// ID returns the room id the session belongs to.
func (s *Session) ID() string { return s.id }

// OnUpdate registers an observer called with a fresh snapshot after
// every applied mutation. Observers must not call back into the session
// synchronously.
func (s *Session) OnUpdate(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// SelectTeam assigns the human-controlled team and moves to POOL.
func (s *Session) SelectTeam(ctx context.Context, userID, teamID string) error {
	ctx, span := s.tracer.Start(ctx, "Session.SelectTeam",
		trace.WithAttributes(attribute.String("team_id", teamID)),
	)
	defer span.End()

	s.mu.Lock()
	if err := s.fatal; err != nil {
		s.mu.Unlock()
		return err
	}
	if s.phase != PhaseSelection {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	if !s.ledger.HasTeam(teamID) {
		s.mu.Unlock()
		return ErrUnknownTeam
	}
	s.humans[teamID] = userID
	s.phase = PhasePool
	s.record(event.TeamSelected, event.TeamSelectedData{TeamID: teamID})
	snap, evs := s.collect()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "team selected",
		slog.String("room_id", s.id),
		slog.String("team_id", teamID),
	)
	s.finish(ctx, snap, evs)
	return nil
}

// SetCategoryOrder permutes the category order. Only allowed before any
// category has been entered.
func (s *Session) SetCategoryOrder(order []catalog.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryEntered {
		return ErrInvalidPhase
	}
	s.order = append([]catalog.Category(nil), order...)
	return nil
}

// NextCategory returns the first category in the configured order that
// still has unresolved players, or "" when the auction is complete.
func (s *Session) NextCategory() catalog.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cat := range s.order {
		if NextPlayer(s.catalog, cat, s.resolved) != nil {
			return cat
		}
	}
	return ""
}

// StartCategory enters a category from the POOL and opens its first
// unresolved lot. If the category is already exhausted the session
// still enters AUCTION briefly and falls back to POOL on its own.
func (s *Session) StartCategory(ctx context.Context, cat catalog.Category) error {
	ctx, span := s.tracer.Start(ctx, "Session.StartCategory",
		trace.WithAttributes(attribute.String("category", string(cat))),
	)
	defer span.End()

	s.mu.Lock()
	if err := s.fatal; err != nil {
		s.mu.Unlock()
		return err
	}
	if s.phase != PhasePool {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	if !s.knownCategory(cat) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCategory, cat)
	}

	s.categoryEntered = true
	s.activeCategory = cat
	s.phase = PhaseAuction
	s.record(event.CategoryStarted, event.CategoryData{Category: string(cat)})

	if p := NextPlayer(s.catalog, cat, s.resolved); p != nil {
		s.openLotLocked(*p)
	} else {
		// Entered an already-empty category; bounce back to POOL after a
		// short delay rather than sitting on a dead AUCTION screen.
		s.scheduleLocked(s.transitionDelay(), s.generation, s.fallbackToPool)
	}
	snap, evs := s.collect()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "category started",
		slog.String("room_id", s.id),
		slog.String("category", string(cat)),
	)
	s.finish(ctx, snap, evs)
	return nil
}

// NextLegalAmount returns the only amount PlaceBid will accept right
// now. Exposing this instead of free-form amounts keeps every client's
// idea of the increment in one place.
func (s *Session) NextLegalAmount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.NextLegalAmount()
}

// PlaceBid applies a bid intent for teamID at the given amount. Human
// and bot intents both come through here; neither gets a shortcut
// around validation. A rejection leaves all state unchanged.
func (s *Session) PlaceBid(ctx context.Context, teamID string, amount int) error {
	ctx, span := s.tracer.Start(ctx, "Session.PlaceBid",
		trace.WithAttributes(
			attribute.String("team_id", teamID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	s.mu.Lock()
	if err := s.fatal; err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.engine.PlaceBid(teamID, amount); err != nil {
		s.mu.Unlock()
		return err
	}
	s.record(event.LotBidPlaced, event.BidPlacedData{
		PlayerID: s.engine.Lot().Player.ID,
		TeamID:   teamID,
		Amount:   amount,
	})
	snap, evs := s.collect()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "bid placed",
		slog.String("room_id", s.id),
		slog.String("team_id", teamID),
		slog.Int("amount", amount),
	)
	s.finish(ctx, snap, evs)
	return nil
}

// Bid places a bid for teamID at the next legal amount.
func (s *Session) Bid(ctx context.Context, teamID string) error {
	s.mu.Lock()
	amount, err := s.engine.NextLegalAmount()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.PlaceBid(ctx, teamID, amount)
}

// Tick advances the live lot's countdown by one tick. On expiry the lot
// resolves, the result is recorded and persisted, and the session moves
// to TRANSITION for a fixed cool-down before the next lot. Ticking with
// no live lot does nothing.
func (s *Session) Tick(ctx context.Context) error {
	s.mu.Lock()
	if err := s.fatal; err != nil {
		s.mu.Unlock()
		return err
	}
	res, err := s.engine.Tick()
	if err != nil {
		// Ledger desync. Freeze the session rather than guessing.
		s.fatal = err
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "session frozen by ledger desynchronization",
			slog.String("room_id", s.id),
			slog.Any("error", err),
		)
		return err
	}
	if res == nil {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		s.notify(snap)
		return nil
	}

	s.applyResolutionLocked(*res)
	snap, evs := s.collect()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "lot resolved",
		slog.String("room_id", s.id),
		slog.String("player_id", res.PlayerID),
		slog.String("status", string(res.Status)),
		slog.Int("sold_for", res.SoldFor),
	)
	if s.results != nil {
		if saveErr := s.results.SaveResult(ctx, s.id, *res); saveErr != nil {
			s.logger.ErrorContext(ctx, "failed to persist resolution", slog.Any("error", saveErr))
		}
	}
	s.finish(ctx, snap, evs)
	return nil
}

// ReturnToPool leaves a lot-less AUCTION or TRANSITION early. It never
// abandons a live lot.
func (s *Session) ReturnToPool(ctx context.Context) error {
	s.mu.Lock()
	if err := s.fatal; err != nil {
		s.mu.Unlock()
		return err
	}
	if s.phase == PhaseSelection || s.engine.Lot() != nil {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	s.generation++
	s.stopPendingLocked()
	s.phase = PhasePool
	s.activeCategory = ""
	snap, evs := s.collect()
	s.mu.Unlock()

	s.finish(ctx, snap, evs)
	return nil
}

// OpenSquads raises the squads overlay. The auction keeps running
// underneath: countdown ticks and bot timers are not paused.
func (s *Session) OpenSquads(ctx context.Context) error {
	return s.setSquads(ctx, true)
}

// CloseSquads drops the overlay and reveals whatever phase the session
// progressed to underneath.
func (s *Session) CloseSquads(ctx context.Context) error {
	return s.setSquads(ctx, false)
}

func (s *Session) setSquads(ctx context.Context, open bool) error {
	s.mu.Lock()
	if err := s.fatal; err != nil {
		s.mu.Unlock()
		return err
	}
	if s.phase == PhaseSelection {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	s.squadsOpen = open
	snap, evs := s.collect()
	s.mu.Unlock()

	s.finish(ctx, snap, evs)
	return nil
}

// Reset wipes the session back to its initial state: full purses, empty
// squads, no resolutions, SELECTION phase (or POOL when the human teams
// were fixed at construction). Every outstanding timer is invalidated.
func (s *Session) Reset(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Session.Reset")
	defer span.End()

	s.mu.Lock()
	s.generation++
	s.stopPendingLocked()
	s.engine.CloseLot()
	s.ledger.Reset()
	s.fatal = nil
	s.resolutions = nil
	s.resolved = map[string]bool{}
	s.activeCategory = ""
	s.categoryEntered = false
	s.squadsOpen = false
	s.lastAuctionResult = ""
	s.lastSoldCategory = ""
	s.lastSoldAt = nil
	s.lastCompletedCategory = ""
	s.lastCompletedAt = nil
	s.humans = map[string]string{}
	for teamID, userID := range s.initialHumans {
		s.humans[teamID] = userID
	}
	s.phase = PhaseSelection
	if len(s.humans) > 0 {
		s.phase = PhasePool
	}
	s.record(event.SessionReset, struct{}{})
	snap, evs := s.collect()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "session reset", slog.String("room_id", s.id))
	s.finish(ctx, snap, evs)
	return nil
}

// RunTicker drives Tick at the configured interval until ctx is done.
func (s *Session) RunTicker(ctx context.Context) {
	var schedule func()
	schedule = func() {
		s.clock.AfterFunc(s.cfg.TickInterval, func() {
			if ctx.Err() != nil {
				return
			}
			_ = s.Tick(ctx)
			schedule()
		})
	}
	schedule()
}

// Snapshot returns a copy of the complete session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// --- internals (callers hold s.mu) ---

func (s *Session) knownCategory(cat catalog.Category) bool {
	for _, c := range s.order {
		if c == cat {
			return true
		}
	}
	return false
}

func (s *Session) transitionDelay() time.Duration {
	return time.Duration(s.cfg.TransitionTicks) * s.cfg.TickInterval
}

func (s *Session) openLotLocked(p catalog.Player) {
	s.generation++
	s.stopPendingLocked()
	if err := s.engine.OpenLot(p); err != nil {
		// Unreachable: callers only open after resolution or from POOL.
		s.logger.Error("open lot rejected", slog.String("player_id", p.ID), slog.Any("error", err))
		return
	}
	s.record(event.LotOpened, event.LotOpenedData{
		PlayerID:  p.ID,
		Category:  string(p.EffectiveCategory()),
		BasePrice: p.BasePrice,
	})
}

func (s *Session) applyResolutionLocked(res Resolution) {
	s.generation++
	s.stopPendingLocked()
	s.resolutions = append(s.resolutions, res)
	s.resolved[res.PlayerID] = true
	s.lastAuctionResult = res.Status
	s.lastSoldCategory = res.Category
	at := res.ResolvedAt
	s.lastSoldAt = &at
	s.phase = PhaseTransition

	if res.Status == StatusSold {
		s.record(event.LotSold, event.LotResolvedData{
			PlayerID: res.PlayerID,
			Category: string(res.Category),
			SoldTo:   res.SoldTo,
			SoldFor:  res.SoldFor,
		})
	} else {
		s.record(event.LotUnsold, event.LotResolvedData{
			PlayerID: res.PlayerID,
			Category: string(res.Category),
		})
	}
	s.scheduleLocked(s.transitionDelay(), s.generation, s.advance)
}

// advance runs when the TRANSITION cool-down elapses: next lot in the
// same category, or back to POOL when the category is done.
func (s *Session) advance(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseTransition {
		s.mu.Unlock()
		return
	}
	if p := NextPlayer(s.catalog, s.activeCategory, s.resolved); p != nil {
		s.phase = PhaseAuction
		s.openLotLocked(*p)
	} else {
		completed := s.activeCategory
		at := s.clock.Now()
		s.phase = PhasePool
		s.activeCategory = ""
		s.lastCompletedCategory = completed
		s.lastCompletedAt = &at
		s.record(event.CategoryCompleted, event.CategoryData{Category: string(completed)})
	}
	snap, evs := s.collect()
	s.mu.Unlock()
	s.finish(ctx, snap, evs)
}

// fallbackToPool runs when AUCTION was entered on an exhausted category.
func (s *Session) fallbackToPool(ctx context.Context) {
	s.mu.Lock()
	if s.phase != PhaseAuction || s.engine.Lot() != nil {
		s.mu.Unlock()
		return
	}
	s.phase = PhasePool
	s.activeCategory = ""
	snap, evs := s.collect()
	s.mu.Unlock()
	s.finish(ctx, snap, evs)
}

// scheduleLocked arms a deferred phase change guarded by the generation
// it was armed under; a stale callback is a no-op.
func (s *Session) scheduleLocked(d time.Duration, gen uint64, fn func(context.Context)) {
	s.pendingTimer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		stale := s.generation != gen
		s.mu.Unlock()
		if stale {
			return
		}
		fn(context.Background())
	})
}

func (s *Session) stopPendingLocked() {
	if s.pendingTimer != nil {
		s.pendingTimer.Stop()
		s.pendingTimer = nil
	}
}

func (s *Session) record(t event.Type, data any) {
	raw, _ := json.Marshal(data)
	s.version++
	s.pending = append(s.pending, event.Event{
		AggregateID: s.id,
		Type:        t,
		Data:        raw,
		Version:     s.version,
		CreatedAt:   s.clock.Now(),
	})
}

// collect builds a snapshot and drains the pending event buffer.
func (s *Session) collect() (Snapshot, []event.Event) {
	evs := s.pending
	s.pending = nil
	return s.snapshotLocked(), evs
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		RoomID:                s.id,
		Phase:                 s.phase,
		Generation:            s.generation,
		HumanTeams:            make(map[string]string, len(s.humans)),
		ActiveCategory:        s.activeCategory,
		CategoryOrder:         append([]catalog.Category(nil), s.order...),
		Resolutions:           append([]Resolution(nil), s.resolutions...),
		LastAuctionResult:     s.lastAuctionResult,
		LastSoldCategory:      s.lastSoldCategory,
		LastSoldAt:            s.lastSoldAt,
		LastCompletedCategory: s.lastCompletedCategory,
		LastCompletedAt:       s.lastCompletedAt,
		Completed:             len(s.resolved) == len(s.catalog.Players),
	}
	if s.squadsOpen {
		snap.Phase = PhaseSquads
	}
	for teamID, userID := range s.humans {
		snap.HumanTeams[teamID] = userID
	}
	if lot := s.engine.Lot(); lot != nil {
		cp := *lot
		cp.BidHistory = append([]Bid(nil), lot.BidHistory...)
		snap.Lot = &cp
		if next, err := s.engine.NextLegalAmount(); err == nil {
			snap.NextLegal = next
		}
	}
	for _, t := range s.ledger.Teams() {
		purse, _ := s.ledger.Purse(t.ID)
		snap.Teams = append(snap.Teams, TeamState{
			Team:           t,
			RemainingPurse: purse,
			Squad:          append([]Sale(nil), s.ledger.Squad(t.ID)...),
		})
	}
	for _, res := range s.resolutions {
		if res.Status == StatusUnsold {
			if p := s.catalog.Player(res.PlayerID); p != nil {
				snap.Unsold = append(snap.Unsold, *p)
			}
		}
	}
	return snap
}

// finish persists drained events and fans the snapshot out. Runs with
// the mutex released.
func (s *Session) finish(ctx context.Context, snap Snapshot, evs []event.Event) {
	if s.events != nil && len(evs) > 0 {
		if err := s.events.Append(ctx, evs...); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist session events",
				slog.String("room_id", s.id),
				slog.Any("error", err),
			)
		}
	}
	s.notify(snap)
}

func (s *Session) notify(snap Snapshot) {
	s.mu.Lock()
	observers := append([]func(Snapshot){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(snap)
	}
}
