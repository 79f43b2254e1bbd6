package auction

import (
	"github.com/gavelhq/gavel/internal/catalog"
	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
)

// Engine runs the bidding on a single lot at a time: it validates bid
// intents against the ledger, drives the countdown, and resolves the
// lot to SOLD or UNSOLD. All mutating methods require single-writer
// discipline; the owning Session serializes them under one mutex.
type Engine struct {
	cfg    config.AuctionConfig
	ledger *Ledger
	clock  clock.Clock

	lot *Lot
}

// NewEngine returns an Engine bidding against the given ledger.
func NewEngine(cfg config.AuctionConfig, ledger *Ledger, clk clock.Clock) *Engine {
	return &Engine{cfg: cfg, ledger: ledger, clock: clk}
}

// Lot returns the live lot, or nil.
func (e *Engine) Lot() *Lot { return e.lot }

// OpenLot puts a player under the hammer with a full countdown and the
// asking price at the player's base price.
func (e *Engine) OpenLot(p catalog.Player) error {
	if e.lot != nil {
		return ErrLotAlreadyOpen
	}
	e.lot = &Lot{
		Player:     p,
		CurrentBid: p.BasePrice,
		TimeLeft:   e.cfg.TimerTicks,
		OpenedAt:   e.clock.Now(),
	}
	return nil
}

// NextLegalAmount returns the only bid amount the engine will accept:
// the base price while no bid has been placed (the opening bid is the
// one non-incremented amount), then the current bid plus the small step
// below the threshold and the large step from it up.
func (e *Engine) NextLegalAmount() (int, error) {
	if e.lot == nil {
		return 0, ErrNoLotOpen
	}
	if e.lot.CurrentBidder == "" {
		return e.lot.Player.BasePrice, nil
	}
	if e.lot.CurrentBid < e.cfg.StepThreshold {
		return e.lot.CurrentBid + e.cfg.SmallStep, nil
	}
	return e.lot.CurrentBid + e.cfg.LargeStep, nil
}

// PlaceBid applies a bid intent. A rejected intent leaves the lot
// completely unchanged. An accepted bid becomes the leading bid and
// resets the countdown, which is what stops sniping: the lot can only
// close after a full countdown with no valid bid.
func (e *Engine) PlaceBid(teamID string, amount int) error {
	if e.lot == nil {
		return ErrNoLotOpen
	}
	if !e.ledger.HasTeam(teamID) {
		return ErrUnknownTeam
	}
	next, err := e.NextLegalAmount()
	if err != nil {
		return err
	}
	if amount != next {
		return ErrIllegalBidAmount
	}
	if !e.ledger.CanAfford(teamID, amount) {
		return ErrInsufficientFunds
	}

	e.lot.CurrentBid = amount
	e.lot.CurrentBidder = teamID
	e.lot.BidHistory = append([]Bid{{TeamID: teamID, Amount: amount, At: e.clock.Now()}}, e.lot.BidHistory...)
	e.lot.TimeLeft = e.cfg.TimerTicks
	return nil
}

// Tick advances the countdown by one tick. When it hits zero the lot
// resolves: SOLD to the current bidder (committing the sale to the
// ledger) or UNSOLD if nobody bid. The lot is closed either way and the
// resolution returned. Tick with no open lot is a no-op, so ticking
// after a resolution cannot resolve twice.
func (e *Engine) Tick() (*Resolution, error) {
	if e.lot == nil {
		return nil, nil
	}
	e.lot.TimeLeft--
	if e.lot.TimeLeft > 0 {
		return nil, nil
	}

	lot := e.lot
	res := Resolution{
		PlayerID:   lot.Player.ID,
		Category:   lot.Player.EffectiveCategory(),
		Status:     StatusUnsold,
		ResolvedAt: e.clock.Now(),
	}
	if lot.CurrentBidder != "" {
		if _, err := e.ledger.CommitSale(lot.CurrentBidder, lot.Player, lot.CurrentBid, res.ResolvedAt); err != nil {
			// Engine and ledger disagree on affordability; the session
			// must treat this as fatal.
			return nil, err
		}
		res.Status = StatusSold
		res.SoldTo = lot.CurrentBidder
		res.SoldFor = lot.CurrentBid
	}
	e.lot = nil
	return &res, nil
}

// CloseLot abandons the live lot without resolving it. Used on reset.
func (e *Engine) CloseLot() {
	e.lot = nil
}
