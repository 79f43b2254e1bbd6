package auction

import (
	"time"

	"github.com/gavelhq/gavel/internal/catalog"
)

// Bid is one accepted bid on a lot.
type Bid struct {
	TeamID string    `json:"teamId"`
	Amount int       `json:"amount"`
	At     time.Time `json:"at"`
}

// Lot is the player currently under the hammer plus its live bidding
// sub-state. Exactly one lot is live at a time per session.
type Lot struct {
	Player catalog.Player `json:"player"`
	// CurrentBid starts at the player's base price. Until a bid is
	// accepted CurrentBidder is empty and CurrentBid is only the asking
	// price, not money anyone owes.
	CurrentBid    int    `json:"currentBid"`
	CurrentBidder string `json:"currentBidder,omitempty"`
	// BidHistory is most-recent-first.
	BidHistory []Bid `json:"bidHistory"`
	// TimeLeft counts down in ticks and snaps back to the full countdown
	// on every accepted bid.
	TimeLeft int       `json:"timeLeft"`
	OpenedAt time.Time `json:"openedAt"`
}

// Status is the terminal outcome of a lot.
type Status string

const (
	StatusSold   Status = "SOLD"
	StatusUnsold Status = "UNSOLD"
)

// Resolution records how a lot closed. SoldTo/SoldFor are set iff the
// status is SOLD.
type Resolution struct {
	PlayerID   string           `json:"playerId"`
	Category   catalog.Category `json:"category"`
	Status     Status           `json:"status"`
	SoldTo     string           `json:"soldTo,omitempty"`
	SoldFor    int              `json:"soldFor,omitempty"`
	ResolvedAt time.Time        `json:"resolvedAt"`
}
