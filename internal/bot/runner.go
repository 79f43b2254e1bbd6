// Package bot drives the simulated opponents of an auction session.
// Every team without a human owner is bid for by the Runner, which
// watches session snapshots and schedules bid intents on the shared
// clock. Bots get no shortcut into the session: their intents go
// through the same validation as human bids, so a bid scheduled
// against a lot that has since moved on is simply rejected.
package bot

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gavelhq/gavel/internal/auction"
	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
)

// lotKey identifies one distinct bidding state. Countdown ticks repeat
// the same key; a new lot or an accepted bid produces a fresh one.
type lotKey struct {
	generation uint64
	playerID   string
	bidder     string
	bid        int
}

// Runner is one room's opponent policy. At most one bot bid is in
// flight per session; a change of bidding state cancels it and rolls
// the dice again.
type Runner struct {
	cfg     config.BotsConfig
	session *auction.Session
	clk     clock.Clock
	logger  *slog.Logger

	mu    sync.Mutex
	rng   *rand.Rand
	timer clock.Timer
	last  lotKey
}

// NewRunner creates a Runner bidding into the given session. The
// random source is injected so tests can pin the dice.
func NewRunner(cfg config.BotsConfig, sess *auction.Session, clk clock.Clock, logger *slog.Logger, rng *rand.Rand) *Runner {
	return &Runner{
		cfg:     cfg,
		session: sess,
		clk:     clk,
		logger:  logger,
		rng:     rng,
	}
}

// Attach subscribes the runner to the session's updates.
func (r *Runner) Attach() {
	r.session.OnUpdate(r.Observe)
}

// Observe reacts to a session snapshot. It only acts when the bidding
// state actually changed; the per-second countdown notifications leave
// a scheduled bid undisturbed so its delay cannot be pushed back
// forever.
func (r *Runner) Observe(snap auction.Snapshot) {
	if !r.cfg.Enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.Lot == nil {
		r.stopLocked()
		r.last = lotKey{}
		return
	}
	k := lotKey{
		generation: snap.Generation,
		playerID:   snap.Lot.Player.ID,
		bidder:     snap.Lot.CurrentBidder,
		bid:        snap.Lot.CurrentBid,
	}
	if k == r.last {
		return
	}
	r.last = k
	r.stopLocked()

	prob, delay := r.regimeLocked(snap)
	if r.rng.Float64() >= prob {
		return
	}
	teamID := r.pickTeamLocked(snap)
	if teamID == "" {
		return
	}
	amount := snap.NextLegal
	gen := snap.Generation
	r.timer = r.clk.AfterFunc(delay, func() {
		r.fire(gen, teamID, amount)
	})
}

// regimeLocked maps the bidding state to a challenge probability and
// delay. Three regimes: nobody has bid yet, a human leads, or another
// bot leads. A human-led bid that has run past ExpensiveMultiple times
// the base price gets contested far less eagerly.
func (r *Runner) regimeLocked(snap auction.Snapshot) (float64, time.Duration) {
	lot := snap.Lot
	switch {
	case lot.CurrentBidder == "":
		return r.cfg.OpenBid, r.cfg.OpenBidDelay
	case snap.IsHuman(lot.CurrentBidder):
		prob := r.cfg.ChallengeHuman
		if lot.CurrentBid > r.cfg.ExpensiveMultiple*lot.Player.BasePrice {
			prob = r.cfg.ChallengeHumanExpensive
		}
		delay := r.cfg.ChallengeDelayMin
		if spread := r.cfg.ChallengeDelayMax - r.cfg.ChallengeDelayMin; spread > 0 {
			delay += time.Duration(r.rng.Int63n(int64(spread) + 1))
		}
		return prob, delay
	default:
		return r.cfg.ChallengeBot, r.cfg.ChallengeBotDelay
	}
}

// pickTeamLocked chooses a random bot team that is not already leading
// and can afford the next legal amount. Empty when no team qualifies.
func (r *Runner) pickTeamLocked(snap auction.Snapshot) string {
	var candidates []string
	for _, t := range snap.Teams {
		if snap.IsHuman(t.ID) {
			continue
		}
		if snap.Lot != nil && snap.Lot.CurrentBidder == t.ID {
			continue
		}
		if t.RemainingPurse < snap.NextLegal {
			continue
		}
		candidates = append(candidates, t.ID)
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[r.rng.Intn(len(candidates))]
}

// fire runs when a scheduled bid's delay elapses. The bot hesitates
// one last time, then submits through the regular bid path; if the lot
// moved on in the meantime the intent is dropped.
func (r *Runner) fire(gen uint64, teamID string, amount int) {
	r.mu.Lock()
	hesitated := r.rng.Float64() < r.cfg.Hesitation
	r.mu.Unlock()
	if hesitated {
		return
	}
	if r.session.Snapshot().Generation != gen {
		return
	}
	if err := r.session.PlaceBid(context.Background(), teamID, amount); err != nil {
		r.logger.Debug("bot bid dropped",
			slog.String("room_id", r.session.ID()),
			slog.String("team_id", teamID),
			slog.Int("amount", amount),
			slog.Any("error", err),
		)
	}
}

func (r *Runner) stopLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
